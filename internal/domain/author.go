package domain

import "time"

// Author is a writer credited on books. Authors may or may not hold a platform
// account; PasswordHash is nil for catalog-only authors.
type Author struct {
	Timestamps
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash *string    `json:"-"`
	Biography    string     `json:"biography,omitempty"`
	Birthday     *time.Time `json:"birthday,omitempty"`
}

// HasAccount reports whether the author can log in.
func (a *Author) HasAccount() bool {
	return a.PasswordHash != nil && *a.PasswordHash != ""
}

package domain

import "time"

// Genre is a category books can belong to. Names are unique across the
// catalog; uniqueness is checked on Slug, the normalized form of Name.
type Genre struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

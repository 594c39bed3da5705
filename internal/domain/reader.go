package domain

// DefaultQuota is the number of simultaneous loans a new reader may hold.
const DefaultQuota = 5

// Reader is a library member who borrows books.
type Reader struct {
	Timestamps
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Email        string `json:"email,omitempty"`
	Info         string `json:"info,omitempty"`
	CanGetMore   int    `json:"can_get_more"`
}

// Admin is a library operator.
type Admin struct {
	Timestamps
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

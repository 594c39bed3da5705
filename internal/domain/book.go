// Package domain contains the entities of the library catalog and lending engine.
package domain

import "time"

// Book is a catalog title with a number of physical copies.
//
// TotalCopies is the number of copies the library owns. CountAvailable is the
// number of those copies on the shelf; it is changed only by checkouts and
// returns and always equals TotalCopies minus the open loans of the book.
type Book struct {
	Timestamps
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	PublishedAt    *time.Time `json:"published_at,omitempty"`
	TotalCopies    int        `json:"total_copies"`
	CountAvailable int        `json:"count_available"`
	Authors        []Author   `json:"authors"`
	Genres         []Genre    `json:"genres"`
}

// OnLoan returns the number of copies currently checked out.
func (b *Book) OnLoan() int {
	return b.TotalCopies - b.CountAvailable
}

// AuthorIDs returns the ids of the book's authors in order.
func (b *Book) AuthorIDs() []string {
	ids := make([]string, len(b.Authors))
	for i, a := range b.Authors {
		ids[i] = a.ID
	}
	return ids
}

// GenreIDs returns the ids of the book's genres in order.
func (b *Book) GenreIDs() []string {
	ids := make([]string, len(b.Genres))
	for i, g := range b.Genres {
		ids[i] = g.ID
	}
	return ids
}

// BookUpdate carries the fields of a partial book update. Nil fields are left unchanged.
// AuthorIDs and GenreIDs, when non-nil, replace the book's association sets.
type BookUpdate struct {
	Name           *string
	Description    *string
	PublishedAt    *time.Time
	ClearPublished bool
	CountAvailable *int
	TotalCopies    *int
	AuthorIDs      *[]string
	GenreIDs       *[]string
}

// IsEmpty reports whether the update changes nothing.
func (u BookUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.PublishedAt == nil && !u.ClearPublished &&
		u.CountAvailable == nil && u.TotalCopies == nil && u.AuthorIDs == nil && u.GenreIDs == nil
}

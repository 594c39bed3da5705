// Package store defines the persistence contract of the catalog and lending engine.
package store

import (
	"context"
	"time"

	"github.com/libris/libris-server/internal/domain"
)

// Store is a durable, transactional store.
//
// Methods called directly on the Store run in their own implicit transaction.
// InTx runs fn against a single transaction that commits when fn returns nil
// and rolls back otherwise, including when ctx is cancelled or fn panics.
type Store interface {
	Queries

	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Queries are the row-level operations available inside and outside a transaction.
type Queries interface {
	// Authors
	CreateAuthor(ctx context.Context, a *domain.Author) error
	GetAuthor(ctx context.Context, id string) (*domain.Author, error)
	GetAuthorAccount(ctx context.Context, username string) (*domain.Author, error)
	ListAuthors(ctx context.Context) ([]*domain.Author, error)
	// FindAuthorsByUsernames maps each matched username to its oldest author.
	FindAuthorsByUsernames(ctx context.Context, usernames []string) (map[string]*domain.Author, error)
	GetAuthorsByIDs(ctx context.Context, ids []string) ([]*domain.Author, error)

	// Genres
	CreateGenre(ctx context.Context, g *domain.Genre) error
	ListGenres(ctx context.Context) ([]*domain.Genre, error)
	// FindGenresBySlugs maps each matched slug to its genre.
	FindGenresBySlugs(ctx context.Context, slugs []string) (map[string]*domain.Genre, error)
	GetGenresByIDs(ctx context.Context, ids []string) ([]*domain.Genre, error)

	// Books
	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	GetBookStock(ctx context.Context, id string) (Stock, error)
	GetBooksByIDs(ctx context.Context, ids []string) ([]*domain.Book, error)
	ListBooks(ctx context.Context, page Page) ([]*domain.Book, error)
	CountBooks(ctx context.Context) (int, error)
	UpdateBook(ctx context.Context, id string, patch BookPatch) error
	DeleteBook(ctx context.Context, id string) error
	SetBookAuthors(ctx context.Context, bookID string, authorIDs []string) error
	SetBookGenres(ctx context.Context, bookID string, genreIDs []string) error

	// Availability
	TakeCopy(ctx context.Context, bookID string) error
	PutBackCopy(ctx context.Context, bookID string) error
	ListAvailabilityDrift(ctx context.Context) ([]Drift, error)

	// Loans
	OpenLoan(ctx context.Context, loan *domain.Loan) error
	CloseLoan(ctx context.Context, loanID string, at time.Time) error
	GetOpenLoan(ctx context.Context, readerID, bookID string) (*domain.Loan, error)
	CountOpenLoansByReader(ctx context.Context, readerID string) (int, error)
	CountOpenLoansByBook(ctx context.Context, bookID string) (int, error)
	CountLoansByBook(ctx context.Context, bookID string) (int, error)
	ListOpenLoansByReader(ctx context.Context, readerID string) ([]*domain.Loan, error)
	ListLoansByBook(ctx context.Context, bookID string) ([]*domain.Loan, error)

	// Readers
	CreateReader(ctx context.Context, r *domain.Reader) error
	GetReader(ctx context.Context, id string) (*domain.Reader, error)
	GetReaderByUsername(ctx context.Context, username string) (*domain.Reader, error)
	ListReaders(ctx context.Context) ([]*domain.Reader, error)
	SetReaderQuota(ctx context.Context, id string, quota int) error

	// Admins
	CreateAdmin(ctx context.Context, a *domain.Admin) error
	GetAdmin(ctx context.Context, id string) (*domain.Admin, error)
	GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error)
	CountAdmins(ctx context.Context) (int, error)

	// SetPasswordHash replaces the stored hash of a reader, author, or admin.
	SetPasswordHash(ctx context.Context, role domain.Role, id, hash string) error
}

// Stock is the copy accounting of a single book.
type Stock struct {
	TotalCopies    int
	CountAvailable int
}

// BookPatch lists the book columns to overwrite. Nil fields are left as they are.
type BookPatch struct {
	Name           *string
	Description    *string
	PublishedAt    *time.Time
	ClearPublished bool
	TotalCopies    *int
	CountAvailable *int
}

// IsEmpty reports whether the patch writes nothing.
func (p BookPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.PublishedAt == nil && !p.ClearPublished &&
		p.TotalCopies == nil && p.CountAvailable == nil
}

// Drift describes a book whose available count disagrees with its open loans.
type Drift struct {
	BookID         string `json:"book_id"`
	Name           string `json:"name"`
	TotalCopies    int    `json:"total_copies"`
	CountAvailable int    `json:"count_available"`
	OpenLoans      int    `json:"open_loans"`
}

// Expected returns the available count implied by the open loans.
func (d Drift) Expected() int {
	return d.TotalCopies - d.OpenLoans
}

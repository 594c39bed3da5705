package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/store"
)

const (
	tableBooks = "books"

	colID             = "id"
	colName           = "name"
	colDescription    = "description"
	colPublishedAt    = "published_at"
	colTotalCopies    = "total_copies"
	colCountAvailable = "count_available"
	colUpdatedAt      = "updated_at"
)

const bookColumns = `books.id, books.name, books.description, books.published_at,
	books.total_copies, books.count_available, books.created_at, books.updated_at`

type bookRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    string         `db:"description"`
	PublishedAt    sql.NullString `db:"published_at"`
	TotalCopies    int            `db:"total_copies"`
	CountAvailable int            `db:"count_available"`
	CreatedAt      string         `db:"created_at"`
	UpdatedAt      string         `db:"updated_at"`
}

func (r bookRow) toDomain() (*domain.Book, error) {
	b := &domain.Book{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		TotalCopies:    r.TotalCopies,
		CountAvailable: r.CountAvailable,
		Authors:        []domain.Author{},
		Genres:         []domain.Genre{},
	}
	var err error
	if b.PublishedAt, err = parseNullableTime(r.PublishedAt); err != nil {
		return nil, fmt.Errorf("book %s published_at: %w", r.ID, err)
	}
	if b.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("book %s created_at: %w", r.ID, err)
	}
	if b.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("book %s updated_at: %w", r.ID, err)
	}
	return b, nil
}

// CreateBook inserts the book row. Associations are written with
// SetBookAuthors and SetBookGenres.
func (q *queries) CreateBook(ctx context.Context, b *domain.Book) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO books (id, name, description, published_at, total_copies, count_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.Name,
		b.Description,
		nullTimeString(b.PublishedAt),
		b.TotalCopies,
		b.CountAvailable,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	return mapWriteError(err)
}

// GetBook retrieves a book with its authors and genres.
// Returns store.ErrNotFound if the book does not exist.
func (q *queries) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var row bookRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	b, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if err := q.loadAssociations(ctx, []*domain.Book{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookStock returns the copy counts of a book.
// Returns store.ErrNotFound if the book does not exist.
func (q *queries) GetBookStock(ctx context.Context, id string) (store.Stock, error) {
	var s struct {
		Total     int `db:"total_copies"`
		Available int `db:"count_available"`
	}
	if err := sqlx.GetContext(ctx, q.ext, &s,
		`SELECT total_copies, count_available FROM books WHERE id = ?`, id); err != nil {
		return store.Stock{}, notFound(err)
	}
	return store.Stock{TotalCopies: s.Total, CountAvailable: s.Available}, nil
}

// GetBooksByIDs returns the books with the given ids in the order given.
// Missing ids are skipped.
func (q *queries) GetBooksByIDs(ctx context.Context, ids []string) ([]*domain.Book, error) {
	if len(ids) == 0 {
		return []*domain.Book{}, nil
	}
	query, args, err := q.in(`SELECT `+bookColumns+` FROM books WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	books, err := q.selectBooks(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]*domain.Book, 0, len(books))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// ListBooks returns a page of books in insertion order.
func (q *queries) ListBooks(ctx context.Context, page store.Page) ([]*domain.Book, error) {
	page = page.Normalize()
	return q.selectBooks(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY books.rowid LIMIT ? OFFSET ?`,
		page.Limit, page.Offset)
}

// CountBooks returns the number of books in the catalog.
func (q *queries) CountBooks(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n, `SELECT COUNT(*) FROM books`)
	return n, err
}

func (q *queries) selectBooks(ctx context.Context, query string, args ...any) ([]*domain.Book, error) {
	var rows []bookRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	books := make([]*domain.Book, 0, len(rows))
	for _, r := range rows {
		b, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	if err := q.loadAssociations(ctx, books); err != nil {
		return nil, err
	}
	return books, nil
}

// loadAssociations fills Authors and Genres for the given books with two queries.
func (q *queries) loadAssociations(ctx context.Context, books []*domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]string, len(books))
	byID := make(map[string]*domain.Book, len(books))
	for i, b := range books {
		ids[i] = b.ID
		byID[b.ID] = b
	}

	query, args, err := q.in(`
		SELECT book_authors.book_id, `+authorColumns+`
		FROM book_authors JOIN authors ON authors.id = book_authors.author_id
		WHERE book_authors.book_id IN (?)
		ORDER BY book_authors.book_id, book_authors.position`, ids)
	if err != nil {
		return err
	}
	var authorRows []struct {
		BookID string `db:"book_id"`
		authorRow
	}
	if err := sqlx.SelectContext(ctx, q.ext, &authorRows, query, args...); err != nil {
		return fmt.Errorf("load book authors: %w", err)
	}
	for _, r := range authorRows {
		a, err := r.toDomain()
		if err != nil {
			return err
		}
		b := byID[r.BookID]
		b.Authors = append(b.Authors, *a)
	}

	query, args, err = q.in(`
		SELECT book_genres.book_id, `+genreColumns+`
		FROM book_genres JOIN genres ON genres.id = book_genres.genre_id
		WHERE book_genres.book_id IN (?)
		ORDER BY book_genres.book_id, book_genres.position`, ids)
	if err != nil {
		return err
	}
	var genreRows []struct {
		BookID string `db:"book_id"`
		genreRow
	}
	if err := sqlx.SelectContext(ctx, q.ext, &genreRows, query, args...); err != nil {
		return fmt.Errorf("load book genres: %w", err)
	}
	for _, r := range genreRows {
		g, err := r.toDomain()
		if err != nil {
			return err
		}
		b := byID[r.BookID]
		b.Genres = append(b.Genres, *g)
	}
	return nil
}

// UpdateBook overwrites the columns named in patch.
// Returns store.ErrNotFound if the book does not exist and store.ErrGuardFailed
// if the new copy counts violate the availability constraint.
func (q *queries) UpdateBook(ctx context.Context, id string, patch store.BookPatch) error {
	rec := goqu.Record{colUpdatedAt: formatTime(time.Now())}
	if patch.Name != nil {
		rec[colName] = *patch.Name
	}
	if patch.Description != nil {
		rec[colDescription] = *patch.Description
	}
	switch {
	case patch.ClearPublished:
		rec[colPublishedAt] = nil
	case patch.PublishedAt != nil:
		rec[colPublishedAt] = formatTime(*patch.PublishedAt)
	}
	if patch.TotalCopies != nil {
		rec[colTotalCopies] = *patch.TotalCopies
	}
	if patch.CountAvailable != nil {
		rec[colCountAvailable] = *patch.CountAvailable
	}

	res, err := q.exec(ctx, dialect.Update(tableBooks).
		Prepared(true).
		Set(rec).
		Where(goqu.C(colID).Eq(id)))
	if err != nil {
		return mapWriteError(err)
	}
	if err := rowsAffected(res); err != nil {
		if errors.Is(err, store.ErrGuardFailed) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// DeleteBook removes a book and its associations. Loans keep the book
// referenced, so a book with any loan history cannot be removed.
// Returns store.ErrNotFound if the book does not exist and
// store.ErrGuardFailed if loans reference it.
func (q *queries) DeleteBook(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return fmt.Errorf("%w: book has loans", store.ErrGuardFailed)
		}
		return mapWriteError(err)
	}
	if err := rowsAffected(res); err != nil {
		if errors.Is(err, store.ErrGuardFailed) {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// SetBookAuthors replaces the book's author set. Order is preserved.
// Returns store.ErrNotFound if the book or any author does not exist.
func (q *queries) SetBookAuthors(ctx context.Context, bookID string, authorIDs []string) error {
	return q.replaceAssociation(ctx, "book_authors", "author_id", bookID, authorIDs)
}

// SetBookGenres replaces the book's genre set. Order is preserved.
// Returns store.ErrNotFound if the book or any genre does not exist.
func (q *queries) SetBookGenres(ctx context.Context, bookID string, genreIDs []string) error {
	return q.replaceAssociation(ctx, "book_genres", "genre_id", bookID, genreIDs)
}

func (q *queries) replaceAssociation(ctx context.Context, table, col, bookID string, ids []string) error {
	if _, err := q.exec(ctx, dialect.Delete(table).
		Prepared(true).
		Where(goqu.C("book_id").Eq(bookID))); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	if len(ids) == 0 {
		return nil
	}

	rows := make([]any, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, goqu.Record{"book_id": bookID, col: id, "position": len(rows)})
	}

	_, err := q.exec(ctx, dialect.Insert(table).Prepared(true).Rows(rows...))
	return mapWriteError(err)
}

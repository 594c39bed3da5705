package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/store"
)

const authorColumns = `authors.id, authors.username, authors.password_hash, authors.biography,
	authors.birthday, authors.created_at, authors.updated_at`

// authorRow mirrors the authors table.
type authorRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	PasswordHash sql.NullString `db:"password_hash"`
	Biography    string         `db:"biography"`
	Birthday     sql.NullString `db:"birthday"`
	CreatedAt    string         `db:"created_at"`
	UpdatedAt    string         `db:"updated_at"`
}

func (r authorRow) toDomain() (*domain.Author, error) {
	a := &domain.Author{
		ID:        r.ID,
		Username:  r.Username,
		Biography: r.Biography,
	}
	if r.PasswordHash.Valid {
		h := r.PasswordHash.String
		a.PasswordHash = &h
	}

	var err error
	if a.Birthday, err = parseNullableTime(r.Birthday); err != nil {
		return nil, fmt.Errorf("author %s birthday: %w", r.ID, err)
	}
	if a.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("author %s created_at: %w", r.ID, err)
	}
	if a.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("author %s updated_at: %w", r.ID, err)
	}
	return a, nil
}

func authorsFromRows(rows []authorRow) ([]*domain.Author, error) {
	out := make([]*domain.Author, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CreateAuthor inserts a new author. Usernames are not unique.
func (q *queries) CreateAuthor(ctx context.Context, a *domain.Author) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO authors (id, username, password_hash, biography, birthday, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.Username,
		nullableString(a.PasswordHash),
		a.Biography,
		nullTimeString(a.Birthday),
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	return mapWriteError(err)
}

// GetAuthor retrieves an author by ID.
// Returns store.ErrNotFound if the author does not exist.
func (q *queries) GetAuthor(ctx context.Context, id string) (*domain.Author, error) {
	var row authorRow
	err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+authorColumns+` FROM authors WHERE id = ?`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// GetAuthorAccount retrieves the oldest author with the given username that can log in.
// Returns store.ErrNotFound if there is none.
func (q *queries) GetAuthorAccount(ctx context.Context, username string) (*domain.Author, error) {
	var row authorRow
	err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT `+authorColumns+` FROM authors
		WHERE username = ? AND password_hash IS NOT NULL
		ORDER BY created_at, rowid
		LIMIT 1`, username)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// ListAuthors returns every author in creation order.
func (q *queries) ListAuthors(ctx context.Context) ([]*domain.Author, error) {
	var rows []authorRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+authorColumns+` FROM authors ORDER BY created_at, rowid`); err != nil {
		return nil, err
	}
	return authorsFromRows(rows)
}

// FindAuthorsByUsernames resolves usernames to authors. When several authors
// share a username the oldest wins. Unmatched names are absent from the map.
func (q *queries) FindAuthorsByUsernames(ctx context.Context, usernames []string) (map[string]*domain.Author, error) {
	out := make(map[string]*domain.Author, len(usernames))
	if len(usernames) == 0 {
		return out, nil
	}

	query, args, err := q.in(`SELECT `+authorColumns+` FROM authors
		WHERE username IN (?)
		ORDER BY created_at, rowid`, usernames)
	if err != nil {
		return nil, err
	}

	var rows []authorRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	authors, err := authorsFromRows(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range authors {
		if _, seen := out[a.Username]; !seen {
			out[a.Username] = a
		}
	}
	return out, nil
}

// GetAuthorsByIDs returns the authors with the given ids. Missing ids are skipped.
func (q *queries) GetAuthorsByIDs(ctx context.Context, ids []string) ([]*domain.Author, error) {
	if len(ids) == 0 {
		return []*domain.Author{}, nil
	}
	query, args, err := q.in(`SELECT `+authorColumns+` FROM authors WHERE id IN (?) ORDER BY created_at, rowid`, ids)
	if err != nil {
		return nil, err
	}
	var rows []authorRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	return authorsFromRows(rows)
}

var _ store.Queries = (*queries)(nil)

package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/domain"
)

const genreColumns = `genres.id, genres.name, genres.slug, genres.created_at`

type genreRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Slug      string `db:"slug"`
	CreatedAt string `db:"created_at"`
}

func (r genreRow) toDomain() (*domain.Genre, error) {
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("genre %s created_at: %w", r.ID, err)
	}
	return &domain.Genre{ID: r.ID, Name: r.Name, Slug: r.Slug, CreatedAt: created}, nil
}

func genresFromRows(rows []genreRow) ([]*domain.Genre, error) {
	out := make([]*domain.Genre, 0, len(rows))
	for _, r := range rows {
		g, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// CreateGenre inserts a new genre.
// Returns store.ErrAlreadyExists if the name or slug is taken.
func (q *queries) CreateGenre(ctx context.Context, g *domain.Genre) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO genres (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		g.ID, g.Name, g.Slug, formatTime(g.CreatedAt))
	return mapWriteError(err)
}

// ListGenres returns every genre ordered by name.
func (q *queries) ListGenres(ctx context.Context) ([]*domain.Genre, error) {
	var rows []genreRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+genreColumns+` FROM genres ORDER BY name COLLATE NOCASE`); err != nil {
		return nil, err
	}
	return genresFromRows(rows)
}

// FindGenresBySlugs resolves slugs to genres. Unmatched slugs are absent from the map.
func (q *queries) FindGenresBySlugs(ctx context.Context, slugs []string) (map[string]*domain.Genre, error) {
	out := make(map[string]*domain.Genre, len(slugs))
	if len(slugs) == 0 {
		return out, nil
	}
	query, args, err := q.in(`SELECT `+genreColumns+` FROM genres WHERE slug IN (?)`, slugs)
	if err != nil {
		return nil, err
	}
	var rows []genreRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	genres, err := genresFromRows(rows)
	if err != nil {
		return nil, err
	}
	for _, g := range genres {
		out[g.Slug] = g
	}
	return out, nil
}

// GetGenresByIDs returns the genres with the given ids. Missing ids are skipped.
func (q *queries) GetGenresByIDs(ctx context.Context, ids []string) ([]*domain.Genre, error) {
	if len(ids) == 0 {
		return []*domain.Genre{}, nil
	}
	query, args, err := q.in(`SELECT `+genreColumns+` FROM genres WHERE id IN (?) ORDER BY name COLLATE NOCASE`, ids)
	if err != nil {
		return nil, err
	}
	var rows []genreRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	return genresFromRows(rows)
}

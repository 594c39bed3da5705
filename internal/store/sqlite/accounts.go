package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/store"
)

const readerColumns = `id, username, password_hash, email, info, can_get_more, created_at, updated_at`

type readerRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	Email        string `db:"email"`
	Info         string `db:"info"`
	CanGetMore   int    `db:"can_get_more"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r readerRow) toDomain() (*domain.Reader, error) {
	rd := &domain.Reader{
		ID:           r.ID,
		Username:     r.Username,
		PasswordHash: r.PasswordHash,
		Email:        r.Email,
		Info:         r.Info,
		CanGetMore:   r.CanGetMore,
	}
	var err error
	if rd.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("reader %s created_at: %w", r.ID, err)
	}
	if rd.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("reader %s updated_at: %w", r.ID, err)
	}
	return rd, nil
}

// CreateReader inserts a new reader.
// Returns store.ErrAlreadyExists if the username is taken.
func (q *queries) CreateReader(ctx context.Context, r *domain.Reader) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO readers (`+readerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Username, r.PasswordHash, r.Email, r.Info, r.CanGetMore,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return mapWriteError(err)
}

// GetReader retrieves a reader by ID.
// Returns store.ErrNotFound if the reader does not exist.
func (q *queries) GetReader(ctx context.Context, id string) (*domain.Reader, error) {
	var row readerRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+readerColumns+` FROM readers WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// GetReaderByUsername retrieves a reader by username.
// Returns store.ErrNotFound if the reader does not exist.
func (q *queries) GetReaderByUsername(ctx context.Context, username string) (*domain.Reader, error) {
	var row readerRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+readerColumns+` FROM readers WHERE username = ?`, username); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// ListReaders returns every reader in registration order.
func (q *queries) ListReaders(ctx context.Context) ([]*domain.Reader, error) {
	var rows []readerRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows,
		`SELECT `+readerColumns+` FROM readers ORDER BY created_at, rowid`); err != nil {
		return nil, err
	}
	out := make([]*domain.Reader, 0, len(rows))
	for _, r := range rows {
		rd, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

// SetReaderQuota changes how many simultaneous loans the reader may hold.
// Returns store.ErrNotFound if the reader does not exist.
func (q *queries) SetReaderQuota(ctx context.Context, id string, quota int) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE readers SET can_get_more = ?, updated_at = ? WHERE id = ?`,
		quota, formatTime(time.Now()), id)
	if err != nil {
		return mapWriteError(err)
	}
	if err := rowsAffected(res); errors.Is(err, store.ErrGuardFailed) {
		return store.ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

const adminColumns = `id, username, password_hash, created_at, updated_at`

type adminRow struct {
	ID           string `db:"id"`
	Username     string `db:"username"`
	PasswordHash string `db:"password_hash"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func (r adminRow) toDomain() (*domain.Admin, error) {
	a := &domain.Admin{ID: r.ID, Username: r.Username, PasswordHash: r.PasswordHash}
	var err error
	if a.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, fmt.Errorf("admin %s created_at: %w", r.ID, err)
	}
	if a.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, fmt.Errorf("admin %s updated_at: %w", r.ID, err)
	}
	return a, nil
}

// CreateAdmin inserts a new admin.
// Returns store.ErrAlreadyExists if the username is taken.
func (q *queries) CreateAdmin(ctx context.Context, a *domain.Admin) error {
	_, err := q.ext.ExecContext(ctx,
		`INSERT INTO admins (`+adminColumns+`) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.PasswordHash, formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	return mapWriteError(err)
}

// GetAdmin retrieves an admin by ID.
// Returns store.ErrNotFound if the admin does not exist.
func (q *queries) GetAdmin(ctx context.Context, id string) (*domain.Admin, error) {
	var row adminRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+adminColumns+` FROM admins WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// GetAdminByUsername retrieves an admin by username.
// Returns store.ErrNotFound if the admin does not exist.
func (q *queries) GetAdminByUsername(ctx context.Context, username string) (*domain.Admin, error) {
	var row adminRow
	if err := sqlx.GetContext(ctx, q.ext, &row, `SELECT `+adminColumns+` FROM admins WHERE username = ?`, username); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// CountAdmins returns the number of admins.
func (q *queries) CountAdmins(ctx context.Context) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n, `SELECT COUNT(*) FROM admins`)
	return n, err
}

// SetPasswordHash replaces the stored password hash of an account.
// Returns store.ErrNotFound if no account of that role has the id.
func (q *queries) SetPasswordHash(ctx context.Context, role domain.Role, id, hash string) error {
	var table string
	switch role {
	case domain.RoleReader:
		table = "readers"
	case domain.RoleAuthor:
		table = "authors"
	case domain.RoleAdmin:
		table = "admins"
	default:
		return fmt.Errorf("set password hash: unknown role %q", role)
	}

	res, err := q.exec(ctx, dialect.Update(table).
		Prepared(true).
		Set(goqu.Record{"password_hash": hash, "updated_at": formatTime(time.Now())}).
		Where(goqu.C("id").Eq(id)))
	if err != nil {
		return mapWriteError(err)
	}
	if err := rowsAffected(res); errors.Is(err, store.ErrGuardFailed) {
		return store.ErrNotFound
	} else if err != nil {
		return err
	}
	return nil
}

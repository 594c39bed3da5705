package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/store"
)

const (
	tableLoans = "loans"

	colReaderID   = "reader_id"
	colBookID     = "book_id"
	colOutputDate = "output_date"
	colInputDate  = "input_date"
)

const loanColumns = `loans.id, loans.reader_id, loans.book_id, loans.output_date, loans.input_date`

type loanRow struct {
	ID         string         `db:"id"`
	ReaderID   string         `db:"reader_id"`
	BookID     string         `db:"book_id"`
	OutputDate string         `db:"output_date"`
	InputDate  sql.NullString `db:"input_date"`
}

func (r loanRow) toDomain() (*domain.Loan, error) {
	l := &domain.Loan{ID: r.ID, ReaderID: r.ReaderID, BookID: r.BookID}
	var err error
	if l.OutputDate, err = parseTime(r.OutputDate); err != nil {
		return nil, fmt.Errorf("loan %s output_date: %w", r.ID, err)
	}
	if l.InputDate, err = parseNullableTime(r.InputDate); err != nil {
		return nil, fmt.Errorf("loan %s input_date: %w", r.ID, err)
	}
	return l, nil
}

func (q *queries) selectLoans(ctx context.Context, query string, args ...any) ([]*domain.Loan, error) {
	var rows []loanRow
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, args...); err != nil {
		return nil, err
	}
	loans := make([]*domain.Loan, 0, len(rows))
	for _, r := range rows {
		l, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, nil
}

// OpenLoan inserts an open loan unless the pair already has one.
//
// The insert is a single conditional statement:
//
//	INSERT INTO loans (...) SELECT ... WHERE NOT EXISTS (open loan for the pair)
//
// so no separate read can go stale before the write. Zero affected rows, or
// a hit on the open-pair unique index, yields store.ErrAlreadyExists.
func (q *queries) OpenLoan(ctx context.Context, l *domain.Loan) error {
	openForPair := dialect.From(tableLoans).
		Select(goqu.L("1")).
		Where(goqu.Ex{
			colReaderID:  l.ReaderID,
			colBookID:    l.BookID,
			colInputDate: nil,
		})

	insert := dialect.Insert(tableLoans).
		Prepared(true).
		Cols(colID, colReaderID, colBookID, colOutputDate).
		FromQuery(dialect.
			Select(goqu.V(l.ID), goqu.V(l.ReaderID), goqu.V(l.BookID), goqu.V(formatTime(l.OutputDate))).
			Where(goqu.L("NOT EXISTS ?", openForPair)))

	res, err := q.exec(ctx, insert)
	if err != nil {
		return mapWriteError(err)
	}
	if err := rowsAffected(res); err != nil {
		if errors.Is(err, store.ErrGuardFailed) {
			return fmt.Errorf("%w: open loan for reader %s and book %s", store.ErrAlreadyExists, l.ReaderID, l.BookID)
		}
		return err
	}
	l.InputDate = nil
	return nil
}

// CloseLoan sets the return date of an open loan.
// Returns store.ErrGuardFailed if the loan is missing or already closed.
func (q *queries) CloseLoan(ctx context.Context, loanID string, at time.Time) error {
	res, err := q.exec(ctx, dialect.Update(tableLoans).
		Prepared(true).
		Set(goqu.Record{colInputDate: formatTime(at)}).
		Where(goqu.C(colID).Eq(loanID), goqu.C(colInputDate).IsNull()))
	if err != nil {
		return err
	}
	return rowsAffected(res)
}

// GetOpenLoan returns the open loan for a reader and book.
// Returns store.ErrNotFound if there is none.
func (q *queries) GetOpenLoan(ctx context.Context, readerID, bookID string) (*domain.Loan, error) {
	var row loanRow
	err := sqlx.GetContext(ctx, q.ext, &row, `
		SELECT `+loanColumns+` FROM loans
		WHERE reader_id = ? AND book_id = ? AND input_date IS NULL`, readerID, bookID)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// CountOpenLoansByReader returns how many loans the reader has not returned.
func (q *queries) CountOpenLoansByReader(ctx context.Context, readerID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(*) FROM loans WHERE reader_id = ? AND input_date IS NULL`, readerID)
	return n, err
}

// CountOpenLoansByBook returns how many copies of the book are out.
func (q *queries) CountOpenLoansByBook(ctx context.Context, bookID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n,
		`SELECT COUNT(*) FROM loans WHERE book_id = ? AND input_date IS NULL`, bookID)
	return n, err
}

// CountLoansByBook returns how many loans, open or closed, reference the book.
func (q *queries) CountLoansByBook(ctx context.Context, bookID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q.ext, &n, `SELECT COUNT(*) FROM loans WHERE book_id = ?`, bookID)
	return n, err
}

// ListOpenLoansByReader returns the reader's open loans, oldest first.
func (q *queries) ListOpenLoansByReader(ctx context.Context, readerID string) ([]*domain.Loan, error) {
	return q.selectLoans(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE reader_id = ? AND input_date IS NULL
		ORDER BY output_date, rowid`, readerID)
}

// ListLoansByBook returns every loan of the book, open and closed, oldest first.
func (q *queries) ListLoansByBook(ctx context.Context, bookID string) ([]*domain.Loan, error) {
	return q.selectLoans(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE book_id = ?
		ORDER BY output_date, rowid`, bookID)
}

// TakeCopy decrements the available count of a book by one.
// Returns store.ErrNotFound if the book does not exist and
// store.ErrGuardFailed if no copy is on the shelf.
func (q *queries) TakeCopy(ctx context.Context, bookID string) error {
	return q.adjustCopies(ctx, bookID, -1, goqu.C(colCountAvailable).Gt(0))
}

// PutBackCopy increments the available count of a book by one.
// Returns store.ErrNotFound if the book does not exist and
// store.ErrGuardFailed if every copy is already on the shelf.
func (q *queries) PutBackCopy(ctx context.Context, bookID string) error {
	return q.adjustCopies(ctx, bookID, 1, goqu.C(colCountAvailable).Lt(goqu.I(colTotalCopies)))
}

func (q *queries) adjustCopies(ctx context.Context, bookID string, delta int, guard goqu.Expression) error {
	res, err := q.exec(ctx, dialect.Update(tableBooks).
		Prepared(true).
		Set(goqu.Record{
			colCountAvailable: goqu.L("? + ?", goqu.I(colCountAvailable), delta),
			colUpdatedAt:      formatTime(time.Now()),
		}).
		Where(goqu.C(colID).Eq(bookID), guard))
	if err != nil {
		return mapWriteError(err)
	}
	err = rowsAffected(res)
	if !errors.Is(err, store.ErrGuardFailed) {
		return err
	}
	if _, stockErr := q.GetBookStock(ctx, bookID); stockErr != nil {
		return stockErr
	}
	return store.ErrGuardFailed
}

// ListAvailabilityDrift returns the books whose available count differs from
// their total copies minus open loans.
func (q *queries) ListAvailabilityDrift(ctx context.Context) ([]store.Drift, error) {
	var rows []struct {
		BookID         string `db:"id"`
		Name           string `db:"name"`
		TotalCopies    int    `db:"total_copies"`
		CountAvailable int    `db:"count_available"`
		OpenLoans      int    `db:"open_loans"`
	}
	err := sqlx.SelectContext(ctx, q.ext, &rows, `
		SELECT books.id, books.name, books.total_copies, books.count_available,
		       COUNT(loans.id) AS open_loans
		FROM books
		LEFT JOIN loans ON loans.book_id = books.id AND loans.input_date IS NULL
		GROUP BY books.id
		HAVING books.count_available != books.total_copies - COUNT(loans.id)
		ORDER BY books.rowid`)
	if err != nil {
		return nil, err
	}
	out := make([]store.Drift, len(rows))
	for i, r := range rows {
		out[i] = store.Drift{
			BookID:         r.BookID,
			Name:           r.Name,
			TotalCopies:    r.TotalCopies,
			CountAvailable: r.CountAvailable,
			OpenLoans:      r.OpenLoans,
		}
	}
	return out, nil
}

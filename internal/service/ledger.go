package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/normalize"
	"github.com/libris/libris-server/internal/store"
	"github.com/libris/libris-server/internal/validation"
)

// LedgerService owns the loan relationship between readers and books and the
// availability counts it drives.
//
// Per (reader, book) pair a loan moves NoLoan -> Open -> Closed. Closed is
// terminal for that loan; a later checkout opens a new one.
type LedgerService struct {
	store     store.Store
	logger    *slog.Logger
	validator *validation.Validator
	now       func() time.Time
}

// NewLedgerService creates a ledger service.
func NewLedgerService(s store.Store, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		store:     s,
		logger:    orDiscard(logger),
		validator: validation.New(),
		now:       time.Now,
	}
}

// LoanRequest names a reader (by id or username) and a book.
type LoanRequest struct {
	Reader string `json:"reader" validate:"required,notblank,max=200"`
	BookID string `json:"book_id" validate:"required,notblank"`
}

// Checkout lends one copy of a book to a reader.
//
// The existence, quota, and availability checks and the two writes run in one
// immediate transaction. The open-pair unique index and the guarded decrement
// back the checks, so a lost race surfaces as ErrAlreadyCheckedOut or
// ErrNoCopiesAvailable rather than a broken count.
func (s *LedgerService) Checkout(ctx context.Context, actor *domain.Principal, req LoanRequest) (*domain.Loan, error) {
	if err := authorize(actor, access.OpCheckout); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var loan *domain.Loan
	err := s.store.InTx(ctx, func(q store.Queries) error {
		reader, err := resolveReader(ctx, q, req.Reader)
		if err != nil {
			return err
		}
		stock, err := q.GetBookStock(ctx, req.BookID)
		if err != nil {
			return storeError(err, "book")
		}

		switch _, err := q.GetOpenLoan(ctx, reader.ID, req.BookID); {
		case err == nil:
			return domainerrors.ErrAlreadyCheckedOut.WithDetails(pairDetails(reader.ID, req.BookID))
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		open, err := q.CountOpenLoansByReader(ctx, reader.ID)
		if err != nil {
			return err
		}
		if open >= reader.CanGetMore {
			return domainerrors.ErrQuotaExceeded.WithDetails(map[string]int{
				"open_loans":   open,
				"can_get_more": reader.CanGetMore,
			})
		}

		if stock.CountAvailable <= 0 {
			return domainerrors.ErrNoCopiesAvailable.WithDetails(map[string]string{"book_id": req.BookID})
		}

		l := &domain.Loan{
			ID:         id.New(),
			ReaderID:   reader.ID,
			BookID:     req.BookID,
			OutputDate: s.now().UTC(),
		}
		if err := q.OpenLoan(ctx, l); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return domainerrors.ErrAlreadyCheckedOut.WithDetails(pairDetails(reader.ID, req.BookID)).WithCause(err)
			}
			return storeError(err, "loan")
		}
		if err := q.TakeCopy(ctx, req.BookID); err != nil {
			if errors.Is(err, store.ErrGuardFailed) {
				return domainerrors.ErrNoCopiesAvailable.WithDetails(map[string]string{"book_id": req.BookID}).WithCause(err)
			}
			return storeError(err, "book")
		}
		loan = l
		return nil
	})
	if err != nil {
		err = storeError(err, "loan")
		s.logRejection(ctx, "checkout", req, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "loan opened", "loan_id", loan.ID, "reader_id", loan.ReaderID, "book_id", loan.BookID)
	return loan, nil
}

// ReturnBook closes the reader's open loan of a book and puts the copy back on the shelf.
// It fails with ErrNoOpenLoan when the reader does not hold the book.
func (s *LedgerService) ReturnBook(ctx context.Context, actor *domain.Principal, req LoanRequest) (*domain.Loan, error) {
	if err := authorize(actor, access.OpReturnBook); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var loan *domain.Loan
	err := s.store.InTx(ctx, func(q store.Queries) error {
		reader, err := resolveReader(ctx, q, req.Reader)
		if err != nil {
			return err
		}
		l, err := q.GetOpenLoan(ctx, reader.ID, req.BookID)
		if errors.Is(err, store.ErrNotFound) {
			return domainerrors.ErrNoOpenLoan.WithDetails(pairDetails(reader.ID, req.BookID))
		}
		if err != nil {
			return err
		}

		at := s.now().UTC()
		if err := q.CloseLoan(ctx, l.ID, at); err != nil {
			if errors.Is(err, store.ErrGuardFailed) {
				return domainerrors.ErrNoOpenLoan.WithDetails(pairDetails(reader.ID, req.BookID)).WithCause(err)
			}
			return storeError(err, "loan")
		}
		if err := q.PutBackCopy(ctx, req.BookID); err != nil {
			if errors.Is(err, store.ErrGuardFailed) {
				// Every copy is already on the shelf although a loan was open.
				return domainerrors.Internal("availability count is out of step with open loans; run reconcile").WithCause(err)
			}
			return storeError(err, "book")
		}
		l.InputDate = &at
		loan = l
		return nil
	})
	if err != nil {
		err = storeError(err, "loan")
		s.logRejection(ctx, "return_book", req, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "loan closed", "loan_id", loan.ID, "reader_id", loan.ReaderID, "book_id", loan.BookID)
	return loan, nil
}

// ListOpenLoansForReader returns the reader's open loans, oldest first.
func (s *LedgerService) ListOpenLoansForReader(ctx context.Context, actor *domain.Principal, reader string) ([]*domain.Loan, error) {
	if err := authorize(actor, access.OpListReaderLoans); err != nil {
		return nil, err
	}

	var loans []*domain.Loan
	err := s.store.InTx(ctx, func(q store.Queries) error {
		r, err := resolveReader(ctx, q, reader)
		if err != nil {
			return err
		}
		loans, err = q.ListOpenLoansByReader(ctx, r.ID)
		return err
	})
	if err != nil {
		return nil, storeError(err, "reader")
	}
	return loans, nil
}

// ListLoansForBook returns every loan of a book, open and closed, oldest first.
func (s *LedgerService) ListLoansForBook(ctx context.Context, actor *domain.Principal, bookID string) ([]*domain.Loan, error) {
	if err := authorize(actor, access.OpListBookLoans); err != nil {
		return nil, err
	}

	var loans []*domain.Loan
	err := s.store.InTx(ctx, func(q store.Queries) error {
		if _, err := q.GetBookStock(ctx, bookID); err != nil {
			return storeError(err, "book")
		}
		var err error
		loans, err = q.ListLoansByBook(ctx, bookID)
		return err
	})
	if err != nil {
		return nil, storeError(err, "book")
	}
	return loans, nil
}

// ReconcileAvailability recomputes count_available from the open loans of
// every book and repairs the books that drifted. It returns those books as they
// were before the repair.
//
// A book with more open loans than owned copies has its total raised to the
// number of open loans.
func (s *LedgerService) ReconcileAvailability(ctx context.Context, actor *domain.Principal) ([]store.Drift, error) {
	if err := authorize(actor, access.OpReconcile); err != nil {
		return nil, err
	}

	var repaired []store.Drift
	err := s.store.InTx(ctx, func(q store.Queries) error {
		drifts, err := q.ListAvailabilityDrift(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			total, available := d.TotalCopies, d.Expected()
			if available < 0 {
				total, available = d.OpenLoans, 0
			}
			if err := q.UpdateBook(ctx, d.BookID, store.BookPatch{
				TotalCopies:    &total,
				CountAvailable: &available,
			}); err != nil {
				return storeError(err, "book")
			}
		}
		repaired = drifts
		return nil
	})
	if err != nil {
		err = storeError(err, "book")
		logStoreFailure(ctx, s.logger, "reconcile_availability", err)
		return nil, err
	}

	for _, d := range repaired {
		s.logger.WarnContext(ctx, "availability repaired",
			"book_id", d.BookID,
			"total", d.TotalCopies,
			"was_available", d.CountAvailable,
			"open_loans", d.OpenLoans,
		)
	}
	if repaired == nil {
		repaired = []store.Drift{}
	}
	return repaired, nil
}

func (s *LedgerService) logRejection(ctx context.Context, op string, req LoanRequest, err error) {
	if domainerrors.Is(err, domainerrors.ErrStoreUnavailable) || domainerrors.Is(err, domainerrors.ErrInternal) {
		s.logger.ErrorContext(ctx, op+" failed", "reader", req.Reader, "book_id", req.BookID, "error", err)
		return
	}
	s.logger.DebugContext(ctx, op+" rejected", "reader", req.Reader, "book_id", req.BookID, "code", domainerrors.CodeOf(err))
}

// resolveReader finds a reader by id, falling back to username.
func resolveReader(ctx context.Context, q store.Queries, ident string) (*domain.Reader, error) {
	if id.IsEntityID(ident) {
		r, err := q.GetReader(ctx, ident)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	r, err := q.GetReaderByUsername(ctx, normalize.Name(ident))
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("reader %q not found", ident)
	}
	return r, err
}

func pairDetails(readerID, bookID string) map[string]string {
	return map[string]string{"reader_id": readerID, "book_id": bookID}
}

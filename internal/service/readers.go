package service

import (
	"context"
	"log/slog"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/store"
	"github.com/libris/libris-server/internal/validation"
)

// ReaderService gives admins access to reader accounts.
type ReaderService struct {
	store     store.Store
	logger    *slog.Logger
	validator *validation.Validator
}

// NewReaderService creates a reader service.
func NewReaderService(s store.Store, logger *slog.Logger) *ReaderService {
	return &ReaderService{
		store:     s,
		logger:    orDiscard(logger),
		validator: validation.New(),
	}
}

// ListReaders returns every reader in registration order.
func (s *ReaderService) ListReaders(ctx context.Context, actor *domain.Principal) ([]*domain.Reader, error) {
	if err := authorize(actor, access.OpListReaders); err != nil {
		return nil, err
	}
	readers, err := s.store.ListReaders(ctx)
	if err != nil {
		return nil, storeError(err, "readers")
	}
	return readers, nil
}

// GetReader returns a reader by id or username.
func (s *ReaderService) GetReader(ctx context.Context, actor *domain.Principal, ident string) (*domain.Reader, error) {
	if err := authorize(actor, access.OpGetReader); err != nil {
		return nil, err
	}
	r, err := resolveReader(ctx, s.store, ident)
	if err != nil {
		return nil, storeError(err, "reader")
	}
	return r, nil
}

// SetQuotaRequest sets how many simultaneous loans a reader may hold.
type SetQuotaRequest struct {
	CanGetMore int `json:"can_get_more" validate:"gte=0,lte=1000"`
}

// SetReaderQuota changes a reader's quota. Lowering it below the reader's
// current open loans is allowed; it only blocks further checkouts.
func (s *ReaderService) SetReaderQuota(ctx context.Context, actor *domain.Principal, ident string, req SetQuotaRequest) (*domain.Reader, error) {
	if err := authorize(actor, access.OpSetReaderQuota); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	var updated *domain.Reader
	err := s.store.InTx(ctx, func(q store.Queries) error {
		r, err := resolveReader(ctx, q, ident)
		if err != nil {
			return err
		}
		if err := q.SetReaderQuota(ctx, r.ID, req.CanGetMore); err != nil {
			return storeError(err, "reader")
		}
		updated, err = q.GetReader(ctx, r.ID)
		return err
	})
	if err != nil {
		err = storeError(err, "reader")
		logStoreFailure(ctx, s.logger, "set_reader_quota", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "reader quota changed", "reader_id", updated.ID, "can_get_more", updated.CanGetMore)
	return updated, nil
}

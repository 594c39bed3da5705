// Package service implements the catalog, lending, and account operations.
//
// Every gated operation takes the acting principal and authorizes it before
// touching the store. Multi-step writes run inside a single store transaction,
// so a failure at any step leaves nothing behind.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/store"
)

// authorize runs the access gate for the principal's role. A nil principal has no role.
func authorize(actor *domain.Principal, op access.Operation) error {
	return access.Authorize(actor.Role(), op)
}

// storeError translates a store error into a domain error.
// Domain errors raised inside a transaction pass through untouched.
func storeError(err error, what string) error {
	if err == nil {
		return nil
	}
	var de *domainerrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domainerrors.NotFoundf("%s not found", what).WithCause(err)
	case errors.Is(err, store.ErrAlreadyExists):
		return domainerrors.AlreadyExistsf("%s already exists", what).WithCause(err)
	case errors.Is(err, store.ErrGuardFailed):
		return domainerrors.Conflictf("%s changed concurrently", what).WithCause(err)
	default:
		return domainerrors.StoreUnavailable(err)
	}
}

// logStoreFailure records err at Error level when it is a store outage.
func logStoreFailure(ctx context.Context, logger *slog.Logger, op string, err error) {
	if domainerrors.Is(err, domainerrors.ErrStoreUnavailable) {
		logger.ErrorContext(ctx, "store failure", "operation", op, "error", err)
	}
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}

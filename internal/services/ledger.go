// Package services provides business logic and orchestration services.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// SyncPublisher enqueues transactions for spreadsheet export.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, version int64) error
	Close() error
}

// LedgerService orchestrates transaction writes across storage and the
// export queue. The database is the source of truth, publish failures
// never fail the request.
type LedgerService struct {
	storage   storage.Repository
	publisher SyncPublisher
}

func NewLedgerService(st storage.Repository, publisher SyncPublisher) *LedgerService {
	return &LedgerService{
		storage:   st,
		publisher: publisher,
	}
}

// CreateTransaction validates, saves locally and publishes a sync message.
func (s *LedgerService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	created, err := s.storage.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publishSync(ctx, created.ID, created.Version)
	return created, nil
}

// UpdateTransaction saves the edit and re-enqueues the row for export.
func (s *LedgerService) UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	updated, err := s.storage.UpdateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, err
	}

	s.publishSync(ctx, updated.ID, updated.Version)
	return updated, nil
}

// DeleteTransaction removes the row. The exported spreadsheet keeps its
// copy, exports are append-only.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	return s.storage.DeleteTransaction(ctx, userID, id)
}

func (s *LedgerService) publishSync(ctx context.Context, id, version int64) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Publisher not available, skipping sync message")
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, id, version); err != nil {
		// The row stays sync_status=pending, the worker batch poll
		// will pick it up later.
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id, "error", err)
	}
}

// Close closes both storage and the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}

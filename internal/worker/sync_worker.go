// Package worker exports pending transactions to the spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kakeibo/internal/amqp"
	"kakeibo/internal/core"
	"kakeibo/internal/export"
	"kakeibo/internal/storage"
)

// SyncWorker moves transactions from the database to the export target.
// It consumes queue messages for freshly written rows and periodically
// sweeps the pending backlog in case messages were lost.
type SyncWorker struct {
	storage   storage.Repository
	appender  export.RowAppender
	batchSize int
}

func NewSyncWorker(st storage.Repository, appender export.RowAppender, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   st,
		appender:  appender,
		batchSize: batchSize,
	}
}

// HandleSyncMessage exports the transaction named by one queue message.
func (w *SyncWorker) HandleSyncMessage(msg *amqp.TransactionSyncMessage) error {
	ctx := context.Background()

	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	return w.exportTransaction(ctx, msg.ID)
}

// ProcessPendingTransactions sweeps rows still marked pending. This is the
// backup path when queue messages are lost or the worker was down.
func (w *SyncWorker) ProcessPendingTransactions(ctx context.Context) error {
	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	var failed int
	for _, p := range pending {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.exportTransaction(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending transaction",
				"id", p.ID, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d pending transactions failed", failed, len(pending))
	}
	return nil
}

func (w *SyncWorker) exportTransaction(ctx context.Context, id int64) error {
	txn, err := w.storage.GetTransactionByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted before the worker got to it. Nothing to export.
		slog.WarnContext(ctx, "Transaction gone before export", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction %d: %w", id, err)
	}

	row, err := w.buildRow(ctx, txn)
	if err != nil {
		return err
	}

	ref, err := w.appender.AppendRow(ctx, row)
	if err != nil {
		if markErr := w.storage.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"id", id, "error", markErr)
		}
		return fmt.Errorf("append row for transaction %d: %w", id, err)
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		// The row is in the sheet, do not fail the message over bookkeeping.
		slog.WarnContext(ctx, "Failed to mark transaction synced",
			"id", id, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"id", id,
		"sheets_ref", ref)
	return nil
}

func (w *SyncWorker) buildRow(ctx context.Context, txn core.Transaction) (export.Row, error) {
	row := export.Row{
		Date:        txn.Date.String(),
		Type:        string(txn.Type),
		AmountCents: txn.Amount.Cents,
		Memo:        txn.Memo,
	}

	if txn.CategoryID != nil {
		cat, err := w.storage.GetCategory(ctx, txn.UserID, *txn.CategoryID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return export.Row{}, fmt.Errorf("resolve category: %w", err)
		}
		row.Category = cat.Name
	}

	user, err := w.storage.GetUserByID(ctx, txn.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return export.Row{}, fmt.Errorf("resolve user: %w", err)
	}
	row.UserEmail = user.Email

	return row, nil
}

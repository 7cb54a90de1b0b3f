package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kakeibo/internal/core"
	"kakeibo/internal/storage"
)

// TransactionNotifier tells a user about a transaction created for them.
type TransactionNotifier interface {
	NotifyTransaction(ctx context.Context, txn core.Transaction) error
}

// RecurringProcessor materializes transactions from recurring templates.
type RecurringProcessor struct {
	storage  storage.Repository
	ledger   *LedgerService
	notifier TransactionNotifier
}

// NewRecurringProcessor creates a processor. notifier may be nil, then
// materialized transactions are created without telling the user.
func NewRecurringProcessor(st storage.Repository, ledger *LedgerService, notifier TransactionNotifier) *RecurringProcessor {
	return &RecurringProcessor{
		storage:  st,
		ledger:   ledger,
		notifier: notifier,
	}
}

// ProcessDue creates transactions for every template that is due at now
// and returns how many were created. Failures on one template never stop
// the rest.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	if p.storage == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	candidates, err := p.storage.ListDueCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due candidates: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurring templates",
		"candidates", len(candidates),
		"processing_date", now.Format("2006-01-02"))

	processed := 0
	for _, candidate := range candidates {
		tmpl := candidate.Template

		checker, err := GetDuenessChecker(tmpl.Every)
		if err != nil {
			slog.ErrorContext(ctx, "Skipping template with unknown frequency",
				"recurring_id", tmpl.ID,
				"frequency", tmpl.Every)
			continue
		}
		if !checker.IsDue(candidate.LastExecution, now, tmpl.StartDate) {
			continue
		}

		txn := core.Transaction{
			UserID:     tmpl.UserID,
			CategoryID: tmpl.CategoryID,
			Date:       core.NewDate(now.Year(), int(now.Month()), now.Day()),
			Type:       tmpl.Type,
			Amount:     tmpl.Amount,
			Memo:       tmpl.Memo,
		}

		created, err := p.ledger.CreateTransaction(ctx, txn)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to create transaction from template",
				"recurring_id", tmpl.ID,
				"memo", tmpl.Memo,
				"error", err)
			continue
		}

		if err := p.storage.UpdateRecurringLastExecution(ctx, tmpl.ID, now); err != nil {
			// The transaction exists, keep going. Worst case the
			// template fires again next run and the duplicate has to
			// be removed by hand.
			slog.ErrorContext(ctx, "Failed to update last execution",
				"recurring_id", tmpl.ID,
				"error", err)
		}

		if p.notifier != nil {
			if err := p.notifier.NotifyTransaction(ctx, created); err != nil {
				slog.WarnContext(ctx, "Failed to notify user",
					"recurring_id", tmpl.ID,
					"error", err)
			}
		}

		processed++
		slog.InfoContext(ctx, "Created transaction from recurring template",
			"recurring_id", tmpl.ID,
			"transaction_id", created.ID,
			"amount_cents", tmpl.Amount.Cents,
			"frequency", tmpl.Every)
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"processed", processed,
		"checked", len(candidates))

	return processed, nil
}

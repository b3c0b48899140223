package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/poll"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/storage"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked  int
	Promoted int
	Pending  int
}

// Reconcile retries the delivery proof of every unverified gateway-backed
// transaction once and promotes its reference when the gateway accepts it.
func (o *Orchestrator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	txs, err := o.store.ListUnverifiedTransactions(ctx, 0)
	if err != nil {
		return report, err
	}

	for _, tx := range txs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		ref, ok := o.reconcileOne(ctx, tx)
		if !ok {
			report.Pending++
			continue
		}

		if err := o.store.PromoteTransactionRef(ctx, tx.ID, ref); err != nil {
			slog.Error("Failed to promote transaction ref", "transaction_id", tx.ID, "error", err)
			report.Pending++
			continue
		}
		report.Promoted++

		job, err := o.store.GetJob(ctx, tx.IntentID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			slog.Warn("Failed to load job for promoted transaction", "intent_id", tx.IntentID, "error", err)
		default:
			job.TransactionRef = ref
			job.Verified = true
			if err := o.store.UpdateJob(ctx, job); err != nil {
				slog.Warn("Failed to update job for promoted transaction", "intent_id", tx.IntentID, "error", err)
			}
		}
	}

	slog.Info("Reconciliation pass finished", "checked", report.Checked, "promoted", report.Promoted, "pending", report.Pending)
	return report, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, tx models.Transaction) (string, bool) {
	escrow, err := o.awaitEscrow(ctx, tx.IntentID, poll.Policy{MaxAttempts: 1})
	if err != nil {
		slog.Debug("Escrow still unavailable", "intent_id", tx.IntentID, "error", err)
		return "", false
	}
	if err := matchAmount(escrow, tx.Amount.Abs()); err != nil {
		slog.Warn("Escrow does not match transaction", "intent_id", tx.IntentID, "error", err)
		return "", false
	}

	kind := receipts.KindContribution
	if tx.Amount.IsNegative() {
		kind = receipts.KindRefund
	}

	ref, verified := o.submitProof(ctx, receipts.Receipt{
		IntentID:   tx.IntentID,
		EventID:    tx.EventID,
		UserID:     tx.UserID,
		CategoryID: tx.CategoryID,
		Amount:     tx.Amount.Abs().StringFixed(2),
		Currency:   o.cfg.Currency,
		Kind:       kind,
		IssuedAt:   tx.CreatedAt,
	}, escrow)
	return ref, verified
}

// RunReconciler runs Reconcile every interval until ctx is cancelled. When a
// queue is given, unfinished payment jobs are resumed on the same schedule.
func (o *Orchestrator) RunReconciler(ctx context.Context, interval time.Duration, queue *Queue) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Reconciliation failed", "error", err)
			}
			if queue != nil {
				if _, err := queue.Resume(ctx); err != nil && ctx.Err() == nil {
					slog.Error("Failed to resume payment jobs", "error", err)
				}
			}
		}
	}
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/poll"
	"github.com/mmynk/cooper/internal/receipts"
)

// RunContribution drives a contribution job to RECORDED or FAILED, persisting
// every transition. A job that already has its proof goes straight to the ledger.
//
// If ctx is cancelled the job keeps its last persisted state so it can be resumed.
func (o *Orchestrator) RunContribution(ctx context.Context, job *models.PaymentJob) error {
	slog.Info("RunContribution called", "intent_id", job.IntentID, "state", job.State)

	job.Attempts++
	job.Error = ""

	if job.State != models.JobProofSubmitted {
		st, err := o.awaitFunds(ctx, job.IntentID)
		if err != nil {
			return o.fail(ctx, job, fmt.Errorf("waiting for payment: %w", err))
		}
		if err := matchMetadata(job, st.Metadata); err != nil {
			return o.fail(ctx, job, err)
		}
		if err := o.transition(ctx, job, models.JobAwaitingEscrow); err != nil {
			return err
		}

		escrow, err := o.awaitEscrow(ctx, job.IntentID, o.cfg.EscrowPoll)
		if err != nil {
			return o.fail(ctx, job, err)
		}
		if err := matchAmount(escrow, job.Amount); err != nil {
			return o.fail(ctx, job, err)
		}
		if err := o.transition(ctx, job, models.JobEscrowReady); err != nil {
			return err
		}

		job.TransactionRef, job.Verified = o.submitProof(ctx, receipts.Receipt{
			IntentID:   job.IntentID,
			EventID:    job.EventID,
			UserID:     job.UserID,
			CategoryID: job.CategoryID,
			Amount:     job.Amount.StringFixed(2),
			Currency:   o.cfg.Currency,
			Kind:       receipts.KindContribution,
			IssuedAt:   time.Now().Unix(),
		}, escrow)
		if err := o.transition(ctx, job, models.JobProofSubmitted); err != nil {
			return err
		}
	}

	recorded, err := o.store.RecordContribution(ctx, &models.Transaction{
		Amount:         job.Amount,
		UserID:         job.UserID,
		EventID:        job.EventID,
		CategoryID:     job.CategoryID,
		Status:         models.TxSuccess,
		TransactionRef: job.TransactionRef,
		Verified:       job.Verified,
		IntentID:       job.IntentID,
	})
	if err != nil {
		return o.fail(ctx, job, fmt.Errorf("recording contribution: %w", err))
	}
	if !recorded {
		slog.Info("Contribution already recorded", "intent_id", job.IntentID)
	}

	if err := o.transition(ctx, job, models.JobRecorded); err != nil {
		return err
	}
	o.metrics.JobFinished(string(models.JobRecorded))

	slog.Info("RunContribution completed", "intent_id", job.IntentID, "verified", job.Verified, "transaction_ref", job.TransactionRef)
	return nil
}

// awaitFunds polls the intent until the gateway reports it as funded and
// returns its last status. Running out of attempts is an error.
func (o *Orchestrator) awaitFunds(ctx context.Context, intentID string) (*gateway.IntentStatus, error) {
	var status *gateway.IntentStatus
	out := poll.Until(ctx, o.cfg.StatusPoll, func(ctx context.Context) (bool, error) {
		st, err := o.gw.GetIntent(ctx, intentID)
		if err != nil {
			if gateway.IsRetryable(err) {
				return false, err
			}
			return false, poll.Permanent(err)
		}
		if st.Failed() {
			return false, poll.Permanent(fmt.Errorf("%w: status %s", ErrIntentFailed, st.Status))
		}
		status = st
		return st.Ready(), nil
	})
	if err := out.Err(); err != nil {
		return nil, err
	}
	return status, nil
}

// matchMetadata checks the ids the intent was created with against the job.
// Keys the gateway does not echo back are not checked.
func matchMetadata(job *models.PaymentJob, meta map[string]any) error {
	want := map[string]string{
		"eventId":    job.EventID,
		"categoryId": job.CategoryID,
		"userId":     job.UserID,
	}
	for key, expected := range want {
		got, _ := meta[key].(string)
		if got != "" && got != expected {
			return fmt.Errorf("%w: %s is %q, job has %q", ErrIntentMismatch, key, got, expected)
		}
	}
	return nil
}

// matchAmount checks the escrowed amount against the amount about to be
// credited. An escrow that reports no amount is accepted.
func matchAmount(escrow *gateway.Escrow, amount decimal.Decimal) error {
	if !escrow.Amount.IsPositive() {
		return nil
	}
	if !escrow.Amount.Round(2).Equal(amount.Round(2)) {
		return fmt.Errorf("%w: escrow holds %s, job claims %s",
			ErrIntentMismatch, escrow.Amount.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, job *models.PaymentJob, state models.JobState) error {
	job.State = state
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job state %s: %w", state, err)
	}
	slog.Debug("Payment job advanced", "intent_id", job.IntentID, "state", state)
	return nil
}

// fail marks the job FAILED unless ctx was cancelled, in which case the job is
// left to be resumed.
func (o *Orchestrator) fail(ctx context.Context, job *models.PaymentJob, cause error) error {
	if ctx.Err() != nil {
		slog.Warn("Payment job interrupted", "intent_id", job.IntentID, "state", job.State, "error", cause)
		return cause
	}

	slog.Error("Payment job failed", "intent_id", job.IntentID, "state", job.State, "error", cause)
	job.State = models.JobFailed
	job.Error = cause.Error()
	if err := o.store.UpdateJob(ctx, job); err != nil {
		slog.Error("Failed to persist job failure", "intent_id", job.IntentID, "error", err)
	}
	o.metrics.JobFinished(string(models.JobFailed))
	return cause
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/cooper/internal/calculator"
	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/storage"
)

// Settlement types.
const (
	SettlementVendor = "VENDOR"
	SettlementRefund = "REFUND"
)

// PayVendor pays a vendor out of a basket without involving the gateway.
func (o *Orchestrator) PayVendor(ctx context.Context, eventID, categoryID string, amount decimal.Decimal) (*models.Category, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("vendor payment must be positive, got %s", amount)
	}

	ref := "VENDOR_PAY_" + uuid.New().String()
	cat, err := o.store.PayVendor(ctx, eventID, categoryID, amount.Round(2), ref)
	if err != nil {
		return nil, err
	}

	o.metrics.SettlementExecuted(SettlementVendor)
	slog.Info("Vendor paid", "event_id", eventID, "category_id", categoryID, "amount", amount.StringFixed(2), "ref", ref)
	return cat, nil
}

// RefundOutcome is the result of refunding one participant.
type RefundOutcome struct {
	UserID         string
	UserName       string
	Amount         decimal.Decimal
	IntentID       string
	TransactionRef string
	Verified       bool

	// Error describes why no verified proof was obtained, if so.
	Error string
}

// RefundReport summarizes a refund settlement.
type RefundReport struct {
	EventID       string
	Outcomes      []RefundOutcome
	Stranded      []calculator.BasketBalance
	TotalRefunded decimal.Decimal
}

// Count is the number of refunds written to the ledger.
func (r *RefundReport) Count() int {
	return len(r.Outcomes)
}

// DistributeRefunds refunds every basket's leftover balance to its members and
// closes the event.
//
// The event is locked for the duration. Refunds run concurrently and a failing
// refund is recorded with a placeholder reference without affecting the others.
// All ledger changes are applied in one transaction at the end; if anything
// fails before that the lock is released and nothing is written. Baskets are
// debited by what was planned, so a contribution that lands meanwhile stays
// in its basket.
func (o *Orchestrator) DistributeRefunds(ctx context.Context, eventID string) (*RefundReport, error) {
	slog.Info("DistributeRefunds called", "event_id", eventID)

	if err := o.store.AcquireSettlementLock(ctx, eventID, o.cfg.SettlementLockTTL); err != nil {
		return nil, err
	}
	applied := false
	defer func() {
		if applied {
			return
		}
		if err := o.store.ReleaseSettlementLock(context.WithoutCancel(ctx), eventID); err != nil {
			slog.Error("Failed to release settlement lock", "event_id", eventID, "error", err)
		}
	}()

	event, err := o.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	history, err := o.store.ListTransactions(ctx, eventID)
	if err != nil {
		return nil, err
	}

	plan := calculator.PlanSettlement(event, history)
	payable := plan.Payable()

	outcomes := make([]RefundOutcome, len(payable))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.RefundConcurrency)
	for i, line := range payable {
		g.Go(func() error {
			outcomes[i] = o.refundOne(gctx, event, line)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("refunds interrupted: %w", err)
	}

	now := time.Now().Unix()
	txs := make([]models.Transaction, len(outcomes))
	report := &RefundReport{
		EventID:       eventID,
		Outcomes:      outcomes,
		Stranded:      plan.Stranded,
		TotalRefunded: decimal.Zero,
	}
	for i, out := range outcomes {
		txs[i] = models.Transaction{
			Amount:         out.Amount.Neg(),
			UserID:         out.UserID,
			Status:         models.TxRefunded,
			TransactionRef: out.TransactionRef,
			Verified:       out.Verified,
			IntentID:       out.IntentID,
			CreatedAt:      now,
		}
		report.TotalRefunded = report.TotalRefunded.Add(out.Amount)
	}

	var debits []storage.BasketDebit
	for _, b := range plan.Debits() {
		debits = append(debits, storage.BasketDebit{CategoryID: b.CategoryID, Amount: b.Balance})
	}

	if err := o.store.ApplyRefunds(ctx, eventID, txs, debits); err != nil {
		return nil, fmt.Errorf("failed to apply refunds: %w", err)
	}
	applied = true

	o.metrics.SettlementExecuted(SettlementRefund)
	for _, out := range outcomes {
		o.metrics.RefundIssued(out.Verified)
	}
	for _, b := range plan.Stranded {
		slog.Warn("Basket has no members, balance left in place", "event_id", eventID, "category_id", b.CategoryID, "balance", b.Balance.StringFixed(2))
	}

	slog.Info("DistributeRefunds completed", "event_id", eventID, "count", report.Count(), "total", report.TotalRefunded.StringFixed(2))
	return report, nil
}

// refundOne creates a refund intent for one participant, waits for its escrow
// and submits the delivery proof. Failures degrade to an unverified outcome.
func (o *Orchestrator) refundOne(ctx context.Context, event *models.Event, line calculator.RefundLine) RefundOutcome {
	out := RefundOutcome{
		UserID:   line.UserID,
		UserName: line.UserName,
		Amount:   line.Balance,
	}

	intent, err := o.gw.CreateIntent(ctx, gateway.IntentRequest{
		Amount:                line.Balance,
		Currency:              o.cfg.Currency,
		Type:                  o.cfg.IntentType,
		SettlementMethod:      o.cfg.SettlementMethod,
		SettlementDestination: o.cfg.DestinationPrefix + line.UserID,
		Description:           "Refund for " + event.Name,
		Metadata:              map[string]string{"refundUser": line.UserID},
	})
	if err != nil {
		slog.Error("Failed to create refund intent", "event_id", event.ID, "user_id", line.UserID, "error", err)
		out.TransactionRef = "REFUND_PENDING_" + uuid.New().String()
		out.Error = err.Error()
		return out
	}
	out.IntentID = intent.ID
	out.TransactionRef = placeholderRef(intent.ID)

	escrow, err := o.awaitEscrow(ctx, intent.ID, o.cfg.EscrowPoll)
	if err != nil {
		slog.Warn("Refund escrow unavailable", "event_id", event.ID, "intent_id", intent.ID, "error", err)
		out.Error = err.Error()
		return out
	}

	out.TransactionRef, out.Verified = o.submitProof(ctx, receipts.Receipt{
		IntentID: intent.ID,
		EventID:  event.ID,
		UserID:   line.UserID,
		Amount:   line.Balance.StringFixed(2),
		Currency: o.cfg.Currency,
		Kind:     receipts.KindRefund,
		IssuedAt: time.Now().Unix(),
	}, escrow)
	if !out.Verified {
		out.Error = "delivery proof not accepted"
	}
	return out
}

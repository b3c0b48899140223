// Package pipeline reconciles the payment gateway's asynchronous state with the ledger.
//
// A contribution moves through the states
//
//	CREATED -> AWAITING_ESCROW -> ESCROW_READY -> PROOF_SUBMITTED -> RECORDED
//
// or ends in FAILED. Every transition is persisted so progress can be reported
// and interrupted jobs resumed. Settlement payouts (vendor payments and
// refunds) are driven from the same Orchestrator.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/metrics"
	"github.com/mmynk/cooper/internal/poll"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/storage"
)

var (
	// ErrIntentFailed is returned when the gateway reports the intent as failed, cancelled or expired.
	ErrIntentFailed = errors.New("payment intent failed")

	// ErrEscrowUnavailable is returned when the escrow never became available.
	ErrEscrowUnavailable = errors.New("escrow unavailable")

	// ErrIntentMismatch is returned when the gateway's view of an intent
	// disagrees with the job it is recorded for.
	ErrIntentMismatch = errors.New("payment intent does not match job")
)

// Gateway is the subset of the payment gateway the pipeline needs.
type Gateway interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*gateway.IntentStatus, error)
	GetEscrow(ctx context.Context, intentID string) (*gateway.Escrow, error)
	SubmitDeliveryProof(ctx context.Context, intentID string, proof gateway.Proof) (*gateway.ProofResult, error)
}

// Archive stores receipts and provides the proof hash and URI.
type Archive interface {
	Put(ctx context.Context, r receipts.Receipt) (*receipts.Archived, error)
}

// Config tunes the orchestrator.
type Config struct {
	// StatusPoll bounds the wait for an intent to reach a funded state.
	StatusPoll poll.Policy

	// EscrowPoll bounds the wait for an intent's escrow.
	EscrowPoll poll.Policy

	// RefundConcurrency caps the number of refunds processed at once.
	RefundConcurrency int

	// SettlementLockTTL is how long a settlement lock is honoured before
	// another settlement may take it over.
	SettlementLockTTL time.Duration

	Currency          string
	IntentType        string
	SettlementMethod  string
	DestinationPrefix string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		StatusPoll:        poll.Policy{MaxAttempts: 10, Delay: 2 * time.Second},
		EscrowPoll:        poll.Policy{MaxAttempts: 5, Delay: 1500 * time.Millisecond},
		RefundConcurrency: 4,
		SettlementLockTTL: 10 * time.Minute,
		Currency:          gateway.DefaultCurrency,
		IntentType:        gateway.TypeDeliveryVsPayment,
		SettlementMethod:  gateway.SettlementOffRampMock,
		DestinationPrefix: gateway.DestinationPrefix,
	}
}

// Orchestrator drives payments through the gateway and records them in the ledger.
type Orchestrator struct {
	store   storage.Store
	gw      Gateway
	archive Archive
	metrics *metrics.Metrics
	cfg     Config
}

// New creates an Orchestrator. m may be nil.
func New(store storage.Store, gw Gateway, archive Archive, m *metrics.Metrics, cfg Config) *Orchestrator {
	if cfg.RefundConcurrency < 1 {
		cfg.RefundConcurrency = 1
	}
	return &Orchestrator{
		store:   store,
		gw:      gw,
		archive: archive,
		metrics: m,
		cfg:     cfg,
	}
}

// placeholderRef is stored when no delivery proof could be obtained for an intent.
func placeholderRef(intentID string) string {
	return "PENDING_PROOF_" + intentID
}

// awaitEscrow polls the intent's escrow until it names a buyer address.
func (o *Orchestrator) awaitEscrow(ctx context.Context, intentID string, policy poll.Policy) (*gateway.Escrow, error) {
	var escrow *gateway.Escrow
	out := poll.Until(ctx, policy, func(ctx context.Context) (bool, error) {
		e, err := o.gw.GetEscrow(ctx, intentID)
		if err != nil {
			if gateway.IsRetryable(err) {
				return false, err
			}
			return false, poll.Permanent(err)
		}
		if e.BuyerAddress == "" {
			return false, nil
		}
		escrow = e
		return true, nil
	})
	if err := out.Err(); err != nil {
		return nil, errors.Join(ErrEscrowUnavailable, err)
	}
	return escrow, nil
}

// submitProof archives the receipt and submits its delivery proof. It never
// fails: without a proof id the placeholder reference is returned unverified.
func (o *Orchestrator) submitProof(ctx context.Context, r receipts.Receipt, escrow *gateway.Escrow) (ref string, verified bool) {
	archived, err := o.archive.Put(ctx, r)
	if err != nil {
		slog.Warn("Failed to archive receipt", "intent_id", r.IntentID, "error", err)
		return placeholderRef(r.IntentID), false
	}

	res, err := o.gw.SubmitDeliveryProof(ctx, r.IntentID, gateway.Proof{
		ProofHash:   archived.Hash,
		ProofURI:    archived.URI,
		SubmittedBy: escrow.BuyerAddress,
	})
	if err != nil {
		slog.Warn("Delivery proof rejected", "intent_id", r.IntentID, "error", err)
		return placeholderRef(r.IntentID), false
	}
	if res.ID == "" {
		slog.Warn("Delivery proof returned no id", "intent_id", r.IntentID)
		return placeholderRef(r.IntentID), false
	}
	return res.ID, true
}

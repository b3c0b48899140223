package models

import "github.com/shopspring/decimal"

// JobState is a payment intent's position in the pipeline.
type JobState string

const (
	JobCreated        JobState = "CREATED"
	JobAwaitingEscrow JobState = "AWAITING_ESCROW"
	JobEscrowReady    JobState = "ESCROW_READY"
	JobProofSubmitted JobState = "PROOF_SUBMITTED"
	JobRecorded       JobState = "RECORDED"
	JobFailed         JobState = "FAILED"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == JobRecorded || s == JobFailed
}

// JobKind distinguishes the pipelines a job can run.
type JobKind string

// JobContribution is an inbound contribution to a basket.
const JobContribution JobKind = "CONTRIBUTION"

// PaymentJob tracks one payment intent through the pipeline.
type PaymentJob struct {
	// IntentID is the gateway's payment intent id and the job's key.
	IntentID string

	Kind       JobKind
	UserID     string
	EventID    string
	CategoryID string
	Amount     decimal.Decimal

	State JobState

	// TransactionRef and Verified are set once the proof step has run.
	TransactionRef string
	Verified       bool

	// Error holds the failure reason when State is JobFailed.
	Error string

	// Attempts counts how many times a worker picked the job up.
	Attempts int

	CreatedAt int64
	UpdatedAt int64
}

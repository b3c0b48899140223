package gateway

import "github.com/shopspring/decimal"

// Intent statuses reported by the gateway.
const (
	StatusCreated    = "CREATED"
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSucceeded  = "SUCCEEDED"
	StatusCompleted  = "COMPLETED"
	StatusSettled    = "SETTLED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
	StatusExpired    = "EXPIRED"
)

// Intent defaults used by this application.
const (
	DefaultCurrency       = "USDC"
	TypeDeliveryVsPayment = "DELIVERY_VS_PAYMENT"
	SettlementOffRampMock = "OFF_RAMP_MOCK"
	DestinationPrefix     = "bank_account_"
)

// IntentRequest describes a payment intent to create.
type IntentRequest struct {
	Amount                decimal.Decimal
	Currency              string
	Type                  string
	SettlementMethod      string
	SettlementDestination string
	Description           string
	Metadata              map[string]string
}

// Intent is a created payment intent.
type Intent struct {
	ID         string
	Status     string
	PaymentURL string
}

// IntentStatus is the current state of an intent.
type IntentStatus struct {
	ID       string
	Status   string
	Metadata map[string]any
}

// Ready reports whether the payer's funds have reached the gateway.
func (s IntentStatus) Ready() bool {
	switch s.Status {
	case StatusProcessing, StatusSucceeded, StatusCompleted, StatusSettled:
		return true
	}
	return false
}

// Failed reports whether the intent can never become ready.
func (s IntentStatus) Failed() bool {
	switch s.Status {
	case StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Escrow holds the funds of a delivery-vs-payment intent.
// Amount is zero when the gateway does not report it.
type Escrow struct {
	BuyerAddress string
	Amount       decimal.Decimal
}

// Proof is the delivery proof that releases an escrow.
type Proof struct {
	ProofHash   string `json:"proofHash"`
	ProofURI    string `json:"proofURI"`
	SubmittedBy string `json:"submittedBy"`
}

// ProofResult identifies an accepted delivery proof.
type ProofResult struct {
	ID string
}

// Wire formats.

type intentRequestBody struct {
	Amount                string            `json:"amount"`
	Currency              string            `json:"currency"`
	Type                  string            `json:"type"`
	SettlementMethod      string            `json:"settlementMethod"`
	SettlementDestination string            `json:"settlementDestination"`
	Description           string            `json:"description,omitempty"`
	Metadata              map[string]string `json:"metadata,omitempty"`
}

type intentResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Data   struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		PaymentURL string `json:"paymentUrl"`
	} `json:"data"`
}

type intentStatusResponse struct {
	ID       string         `json:"id"`
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata"`
	Data     struct {
		Status string `json:"status"`
	} `json:"data"`
}

type escrowResponse struct {
	Data struct {
		BuyerAddress string          `json:"buyerAddress"`
		Amount       decimal.Decimal `json:"amount"`
	} `json:"data"`
}

type proofResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

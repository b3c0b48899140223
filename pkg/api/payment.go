package api

// Settlement types.
const (
	SettlementVendor = "VENDOR"
	SettlementRefund = "REFUND"
)

type RefundLine struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	Contributed string `json:"contributed"`
	Balance     string `json:"balance"`
}

type BasketBalance struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	Members    int    `json:"members"`
}

type PreviewSettlementRequest struct {
	EventID string `json:"eventId"`
}

type PreviewSettlementResponse struct {
	Refunds     []RefundLine    `json:"refunds"`
	Stranded    []BasketBalance `json:"stranded"`
	Dust        []BasketBalance `json:"dust"`
	TotalRefund string          `json:"totalRefund"`
}

type ExecuteSettlementRequest struct {
	EventID string `json:"eventId"`
	Type    string `json:"type"`

	// CategoryID and Amount are required for VENDOR settlements.
	CategoryID string `json:"categoryId,omitempty"`
	Amount     string `json:"amount,omitempty"`
}

type RefundOutcome struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	Amount         string `json:"amount"`
	IntentID       string `json:"intentId,omitempty"`
	TransactionRef string `json:"transactionRef"`
	Verified       bool   `json:"verified"`
	Error          string `json:"error,omitempty"`
}

type ExecuteSettlementResponse struct {
	// Category is the paid basket of a VENDOR settlement.
	Category *Category `json:"category,omitempty"`

	RefundCount   int             `json:"refundCount"`
	Refunds       []RefundOutcome `json:"refunds,omitempty"`
	Stranded      []BasketBalance `json:"stranded,omitempty"`
	TotalRefunded string          `json:"totalRefunded,omitempty"`
}

type CreateIntentRequest struct {
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Amount     string `json:"amount"`
}

type CreateIntentResponse struct {
	IntentID   string `json:"intentId"`
	Status     string `json:"status"`
	PaymentURL string `json:"paymentUrl,omitempty"`
}

type GetIntentRequest struct {
	IntentID string `json:"intentId"`
}

type GetIntentResponse struct {
	IntentID string `json:"intentId"`
	Status   string `json:"status"`
}

// PipelineJob is the progress of a contribution through the payment pipeline.
type PipelineJob struct {
	IntentID       string `json:"intentId"`
	State          string `json:"state"`
	UserID         string `json:"userId"`
	EventID        string `json:"eventId"`
	CategoryID     string `json:"categoryId"`
	Amount         string `json:"amount"`
	TransactionRef string `json:"transactionRef,omitempty"`
	Verified       bool   `json:"verified"`
	Error          string `json:"error,omitempty"`
	Attempts       int    `json:"attempts"`
	UpdatedAt      int64  `json:"updatedAt"`
}

type StartPipelineRequest struct {
	IntentID   string `json:"intentId"`
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Amount     string `json:"amount"`
}

type StartPipelineResponse struct {
	Job *PipelineJob `json:"job"`

	// Created is false when a job already existed for the intent.
	Created bool `json:"created"`
}

type GetPipelineStatusRequest struct {
	IntentID string `json:"intentId"`
}

type GetPipelineStatusResponse struct {
	Job *PipelineJob `json:"job"`
}

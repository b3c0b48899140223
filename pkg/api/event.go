package api

// Event is an expense occasion with its baskets and participants.
type Event struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	GroupID      string        `json:"groupId,omitempty"`
	TotalPooled  string        `json:"totalPooled"`
	Status       string        `json:"status"`
	CreatedBy    string        `json:"createdBy"`
	CreatedAt    int64         `json:"createdAt"`
	Categories   []Category    `json:"categories"`
	Participants []Participant `json:"participants"`
	Progress     *Progress     `json:"progress,omitempty"`
}

// Category is a basket.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// SpendingLimit is empty when the basket has no target.
	SpendingLimit string           `json:"spendingLimit,omitempty"`
	RuleType      string           `json:"ruleType"`
	TotalPooled   string           `json:"totalPooled"`
	Members       []CategoryMember `json:"members"`
}

type CategoryMember struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	JoinedAt    int64  `json:"joinedAt"`
}

type Participant struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	JoinedAt    int64  `json:"joinedAt"`
}

// Progress compares the raised amount with the sum of basket targets.
type Progress struct {
	Goal    string  `json:"goal"`
	Raised  string  `json:"raised"`
	Percent float64 `json:"percent"`
}

// Transaction is one audit log entry.
type Transaction struct {
	ID             string `json:"id"`
	Amount         string `json:"amount"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	CategoryID     string `json:"categoryId,omitempty"`
	Status         string `json:"status"`
	TransactionRef string `json:"transactionRef"`
	Verified       bool   `json:"verified"`
	IntentID       string `json:"intentId,omitempty"`
	CreatedAt      int64  `json:"createdAt"`
}

// BasketInput describes a basket to create with an event.
type BasketInput struct {
	Name          string `json:"name"`
	SpendingLimit string `json:"spendingLimit,omitempty"`
	RuleType      string `json:"ruleType,omitempty"`
}

type CreateEventRequest struct {
	Name    string `json:"name"`
	GroupID string `json:"groupId,omitempty"`

	// ParticipantIDs are added as participants. When GroupID is set and this
	// is empty, every group member is added.
	ParticipantIDs []string      `json:"participantIds"`
	Categories     []BasketInput `json:"categories"`
}

type CreateEventResponse struct {
	Event *Event `json:"event"`
}

type ListEventsRequest struct{}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
}

type GetEventRequest struct {
	EventID string `json:"eventId"`
}

type GetEventResponse struct {
	Event *Event `json:"event"`
}

type DeleteEventRequest struct {
	EventID string `json:"eventId"`
}

type DeleteEventResponse struct{}

type GetAuditLogRequest struct {
	EventID string `json:"eventId"`
}

type GetAuditLogResponse struct {
	Transactions []Transaction `json:"transactions"`
}

type GetDuesRequest struct {
	EventID string `json:"eventId"`

	// UserID defaults to the caller.
	UserID string `json:"userId,omitempty"`
}

type BasketDue struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Share      string `json:"share"`
	Members    int    `json:"members"`
}

type GetDuesResponse struct {
	UserID      string      `json:"userId"`
	Baskets     []BasketDue `json:"baskets"`
	TotalDue    string      `json:"totalDue"`
	Contributed string      `json:"contributed"`
	Outstanding string      `json:"outstanding"`
}

// Opt-in actions.
const (
	ActionJoin  = "JOIN"
	ActionLeave = "LEAVE"
)

type OptInRequest struct {
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Action     string `json:"action"`
}

type OptInResponse struct {
	Category *Category `json:"category"`
}

type DepositRequest struct {
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Amount     string `json:"amount"`
}

type DepositResponse struct {
	Transaction *Transaction `json:"transaction"`
	Category    *Category    `json:"category"`
}

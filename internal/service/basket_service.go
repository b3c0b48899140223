package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// BasketService implements the Connect BasketService.
type BasketService struct {
	store storage.Store
}

var _ apiconnect.BasketServiceHandler = (*BasketService)(nil)

// NewBasketService creates a new BasketService with the given storage backend.
func NewBasketService(store storage.Store) *BasketService {
	return &BasketService{store: store}
}

// OptIn joins or leaves a basket. Both actions are idempotent.
func (s *BasketService) OptIn(ctx context.Context, req *connect.Request[api.OptInRequest]) (*connect.Response[api.OptInResponse], error) {
	slog.Info("OptIn request received", "event_id", req.Msg.EventID, "category_id", req.Msg.CategoryID, "action", req.Msg.Action)

	if req.Msg.CategoryID == "" {
		return nil, invalidArgument("category_id is required")
	}
	if req.Msg.Action != api.ActionJoin && req.Msg.Action != api.ActionLeave {
		return nil, invalidArgument("action must be %s or %s", api.ActionJoin, api.ActionLeave)
	}

	event, userID, err := participantEvent(ctx, s.store, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	if event.Category(req.Msg.CategoryID) == nil {
		return nil, connect.NewError(connect.CodeNotFound, storage.ErrNotFound)
	}

	if req.Msg.Action == api.ActionJoin {
		err = s.store.JoinCategory(ctx, event.ID, req.Msg.CategoryID, userID)
	} else {
		err = s.store.LeaveCategory(ctx, event.ID, req.Msg.CategoryID, userID)
	}
	if err != nil {
		return nil, fail("OptIn", err, "event_id", event.ID, "category_id", req.Msg.CategoryID)
	}

	updated, err := s.store.GetEvent(ctx, event.ID)
	if err != nil {
		return nil, fail("OptIn", err, "event_id", event.ID)
	}

	slog.Info("OptIn completed", "event_id", event.ID, "category_id", req.Msg.CategoryID, "user_id", userID, "action", req.Msg.Action)
	return connect.NewResponse(&api.OptInResponse{
		Category: toAPICategory(updated.Category(req.Msg.CategoryID), participantNames(updated)),
	}), nil
}

// Deposit records a contribution made outside the payment gateway.
func (s *BasketService) Deposit(ctx context.Context, req *connect.Request[api.DepositRequest]) (*connect.Response[api.DepositResponse], error) {
	slog.Info("Deposit request received", "event_id", req.Msg.EventID, "category_id", req.Msg.CategoryID, "amount", req.Msg.Amount)

	amount, err := parseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, err
	}
	if req.Msg.CategoryID == "" {
		return nil, invalidArgument("category_id is required")
	}

	event, userID, err := participantEvent(ctx, s.store, req.Msg.EventID)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		Amount:         amount,
		UserID:         userID,
		EventID:        event.ID,
		CategoryID:     req.Msg.CategoryID,
		Status:         models.TxSuccess,
		TransactionRef: "DEPOSIT_" + uuid.New().String(),
	}
	if _, err := s.store.RecordContribution(ctx, tx); err != nil {
		return nil, fail("Deposit", err, "event_id", event.ID, "category_id", req.Msg.CategoryID)
	}

	updated, err := s.store.GetEvent(ctx, event.ID)
	if err != nil {
		return nil, fail("Deposit", err, "event_id", event.ID)
	}

	slog.Info("Deposit recorded", "event_id", event.ID, "category_id", req.Msg.CategoryID, "amount", amount.StringFixed(2), "ref", tx.TransactionRef)
	out := toAPITransaction(tx)
	return connect.NewResponse(&api.DepositResponse{
		Transaction: &out,
		Category:    toAPICategory(updated.Category(req.Msg.CategoryID), participantNames(updated)),
	}), nil
}

func participantNames(e *models.Event) map[string]string {
	names := make(map[string]string, len(e.Participants))
	for _, p := range e.Participants {
		if p.User != nil {
			names[p.UserID] = p.User.DisplayName
		}
	}
	return names
}

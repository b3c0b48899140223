package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/calculator"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// Settler executes settlements against the gateway and the ledger.
type Settler interface {
	PayVendor(ctx context.Context, eventID, categoryID string, amount decimal.Decimal) (*models.Category, error)
	DistributeRefunds(ctx context.Context, eventID string) (*pipeline.RefundReport, error)
}

// SettlementService implements the Connect SettlementService.
type SettlementService struct {
	store   storage.Store
	settler Settler
}

var _ apiconnect.SettlementServiceHandler = (*SettlementService)(nil)

// NewSettlementService creates a SettlementService.
func NewSettlementService(store storage.Store, settler Settler) *SettlementService {
	return &SettlementService{store: store, settler: settler}
}

// PreviewSettlement computes the refund plan without changing anything.
func (s *SettlementService) PreviewSettlement(ctx context.Context, req *connect.Request[api.PreviewSettlementRequest]) (*connect.Response[api.PreviewSettlementResponse], error) {
	slog.Info("PreviewSettlement request received", "event_id", req.Msg.EventID)

	event, _, err := participantEvent(ctx, s.store, req.Msg.EventID)
	if err != nil {
		return nil, err
	}

	txs, err := s.store.ListTransactions(ctx, event.ID)
	if err != nil {
		return nil, fail("PreviewSettlement", err, "event_id", event.ID)
	}

	plan := calculator.PlanSettlement(event, txs)
	refunds := make([]api.RefundLine, len(plan.Refunds))
	for i, r := range plan.Refunds {
		refunds[i] = api.RefundLine{
			UserID:      r.UserID,
			UserName:    r.UserName,
			Contributed: r.Contributed.StringFixed(2),
			Balance:     r.Balance.StringFixed(2),
		}
	}

	return connect.NewResponse(&api.PreviewSettlementResponse{
		Refunds:     refunds,
		Stranded:    toAPIBasketBalances(plan.Stranded),
		Dust:        toAPIBasketBalances(plan.Dust),
		TotalRefund: plan.TotalRefund.StringFixed(2),
	}), nil
}

// ExecuteSettlement pays a vendor from a basket or refunds every leftover balance.
// Only the organizer may settle.
func (s *SettlementService) ExecuteSettlement(ctx context.Context, req *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error) {
	slog.Info("ExecuteSettlement request received", "event_id", req.Msg.EventID, "type", req.Msg.Type)

	switch req.Msg.Type {
	case api.SettlementVendor:
		if req.Msg.CategoryID == "" {
			return nil, invalidArgument("category_id is required for vendor settlements")
		}
		amount, err := parseAmount("amount", req.Msg.Amount)
		if err != nil {
			return nil, err
		}
		event, err := organizerEvent(ctx, s.store, req.Msg.EventID)
		if err != nil {
			return nil, err
		}
		return s.payVendor(ctx, event, req.Msg.CategoryID, amount)

	case api.SettlementRefund:
		event, err := organizerEvent(ctx, s.store, req.Msg.EventID)
		if err != nil {
			return nil, err
		}
		return s.refund(ctx, event)
	}
	return nil, invalidArgument("settlement type must be %s or %s", api.SettlementVendor, api.SettlementRefund)
}

func (s *SettlementService) payVendor(ctx context.Context, event *models.Event, categoryID string, amount decimal.Decimal) (*connect.Response[api.ExecuteSettlementResponse], error) {
	cat, err := s.settler.PayVendor(ctx, event.ID, categoryID, amount)
	if err != nil {
		return nil, fail("PayVendor", err, "event_id", event.ID, "category_id", categoryID)
	}
	return connect.NewResponse(&api.ExecuteSettlementResponse{
		Category: toAPICategory(cat, participantNames(event)),
	}), nil
}

func (s *SettlementService) refund(ctx context.Context, event *models.Event) (*connect.Response[api.ExecuteSettlementResponse], error) {
	report, err := s.settler.DistributeRefunds(ctx, event.ID)
	if err != nil {
		return nil, fail("DistributeRefunds", err, "event_id", event.ID)
	}

	slog.Info("ExecuteSettlement completed", "event_id", event.ID, "refunds", report.Count(), "total", report.TotalRefunded.StringFixed(2))
	return connect.NewResponse(&api.ExecuteSettlementResponse{
		RefundCount:   report.Count(),
		Refunds:       toAPIRefundOutcomes(report.Outcomes),
		Stranded:      toAPIBasketBalances(report.Stranded),
		TotalRefunded: report.TotalRefunded.StringFixed(2),
	}), nil
}

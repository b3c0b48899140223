package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// IntentGateway is the part of the payment gateway exposed to clients.
type IntentGateway interface {
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
	GetIntent(ctx context.Context, intentID string) (*gateway.IntentStatus, error)
}

// JobQueue schedules payment jobs in the background.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.PaymentJob) (*models.PaymentJob, bool, error)
}

// IntentOptions are the fixed fields of every intent the service creates.
type IntentOptions struct {
	Currency          string
	Type              string
	SettlementMethod  string
	DestinationPrefix string
}

// PaymentService implements the Connect PaymentService.
type PaymentService struct {
	store   storage.Store
	gw      IntentGateway
	queue   JobQueue
	options IntentOptions
}

var _ apiconnect.PaymentServiceHandler = (*PaymentService)(nil)

// NewPaymentService creates a PaymentService.
func NewPaymentService(store storage.Store, gw IntentGateway, queue JobQueue, options IntentOptions) *PaymentService {
	return &PaymentService{store: store, gw: gw, queue: queue, options: options}
}

// CreateIntent creates a delivery-vs-payment intent for the caller's contribution to a basket.
func (s *PaymentService) CreateIntent(ctx context.Context, req *connect.Request[api.CreateIntentRequest]) (*connect.Response[api.CreateIntentResponse], error) {
	slog.Info("CreateIntent request received", "event_id", req.Msg.EventID, "category_id", req.Msg.CategoryID, "amount", req.Msg.Amount)

	amount, err := parseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, err
	}
	event, userID, err := s.contributionTarget(ctx, req.Msg.EventID, req.Msg.CategoryID)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventOpen {
		return nil, connect.NewError(connect.CodeFailedPrecondition, storage.ErrEventClosed)
	}
	cat := event.Category(req.Msg.CategoryID)

	intent, err := s.gw.CreateIntent(ctx, gateway.IntentRequest{
		Amount:                amount,
		Currency:              s.options.Currency,
		Type:                  s.options.Type,
		SettlementMethod:      s.options.SettlementMethod,
		SettlementDestination: s.options.DestinationPrefix + event.ID,
		Description:           fmt.Sprintf("%s: %s", event.Name, cat.Name),
		Metadata: map[string]string{
			"eventId":    event.ID,
			"categoryId": cat.ID,
			"userId":     userID,
		},
	})
	if err != nil {
		slog.Error("CreateIntent failed", "event_id", event.ID, "error", err)
		return nil, gatewayError(err)
	}

	slog.Info("Intent created", "intent_id", intent.ID, "event_id", event.ID, "status", intent.Status)
	return connect.NewResponse(&api.CreateIntentResponse{
		IntentID:   intent.ID,
		Status:     intent.Status,
		PaymentURL: intent.PaymentURL,
	}), nil
}

// GetIntent returns the gateway's current status of an intent.
func (s *PaymentService) GetIntent(ctx context.Context, req *connect.Request[api.GetIntentRequest]) (*connect.Response[api.GetIntentResponse], error) {
	if _, err := callerID(ctx); err != nil {
		return nil, err
	}
	intentID := strings.TrimSpace(req.Msg.IntentID)
	if intentID == "" {
		return nil, invalidArgument("intent_id is required")
	}

	status, err := s.gw.GetIntent(ctx, intentID)
	if err != nil {
		if gateway.IsNotFound(err) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		slog.Error("GetIntent failed", "intent_id", intentID, "error", err)
		return nil, gatewayError(err)
	}

	return connect.NewResponse(&api.GetIntentResponse{IntentID: status.ID, Status: status.Status}), nil
}

// StartPipeline schedules a paid intent to be verified and recorded. It returns
// as soon as the job is persisted; progress is reported by GetPipelineStatus.
func (s *PaymentService) StartPipeline(ctx context.Context, req *connect.Request[api.StartPipelineRequest]) (*connect.Response[api.StartPipelineResponse], error) {
	slog.Info("StartPipeline request received", "intent_id", req.Msg.IntentID, "event_id", req.Msg.EventID, "category_id", req.Msg.CategoryID)

	intentID := strings.TrimSpace(req.Msg.IntentID)
	if intentID == "" {
		return nil, invalidArgument("intent_id is required")
	}
	amount, err := parseAmount("amount", req.Msg.Amount)
	if err != nil {
		return nil, err
	}
	event, userID, err := s.contributionTarget(ctx, req.Msg.EventID, req.Msg.CategoryID)
	if err != nil {
		return nil, err
	}

	job, created, err := s.queue.Enqueue(ctx, &models.PaymentJob{
		IntentID:   intentID,
		Kind:       models.JobContribution,
		UserID:     userID,
		EventID:    event.ID,
		CategoryID: req.Msg.CategoryID,
		Amount:     amount,
		State:      models.JobCreated,
	})
	if err != nil {
		return nil, fail("StartPipeline", err, "intent_id", intentID)
	}
	if !created && job.UserID != userID {
		slog.Warn("Intent belongs to another user", "intent_id", intentID, "user_id", userID)
		return nil, connect.NewError(connect.CodePermissionDenied, errors.New("intent belongs to another user"))
	}

	slog.Info("StartPipeline completed", "intent_id", intentID, "created", created, "state", job.State)
	return connect.NewResponse(&api.StartPipelineResponse{Job: toAPIJob(job), Created: created}), nil
}

// GetPipelineStatus reports a job's progress to the participants of its event.
func (s *PaymentService) GetPipelineStatus(ctx context.Context, req *connect.Request[api.GetPipelineStatusRequest]) (*connect.Response[api.GetPipelineStatusResponse], error) {
	if req.Msg.IntentID == "" {
		return nil, invalidArgument("intent_id is required")
	}
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	job, err := s.store.GetJob(ctx, req.Msg.IntentID)
	if err != nil {
		return nil, fail("GetPipelineStatus", err, "intent_id", req.Msg.IntentID)
	}
	if job.UserID != userID {
		if _, _, err := participantEvent(ctx, s.store, job.EventID); err != nil {
			return nil, err
		}
	}

	return connect.NewResponse(&api.GetPipelineStatusResponse{Job: toAPIJob(job)}), nil
}

// contributionTarget checks the caller can contribute to the basket.
func (s *PaymentService) contributionTarget(ctx context.Context, eventID, categoryID string) (*models.Event, string, error) {
	if categoryID == "" {
		return nil, "", invalidArgument("category_id is required")
	}
	event, userID, err := participantEvent(ctx, s.store, eventID)
	if err != nil {
		return nil, "", err
	}
	if event.Category(categoryID) == nil {
		return nil, "", connect.NewError(connect.CodeNotFound, fmt.Errorf("category %s: %w", categoryID, storage.ErrNotFound))
	}
	return event, userID, nil
}

package service

import (
	"context"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/calculator"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// EventService implements the Connect EventService.
type EventService struct {
	store storage.Store
}

var _ apiconnect.EventServiceHandler = (*EventService)(nil)

// NewEventService creates a new EventService with the given storage backend.
func NewEventService(store storage.Store) *EventService {
	return &EventService{store: store}
}

// CreateEvent creates an event with its baskets. The caller becomes the organizer.
func (s *EventService) CreateEvent(ctx context.Context, req *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateEvent request received",
		"name", req.Msg.Name,
		"group_id", req.Msg.GroupID,
		"participants_count", len(req.Msg.ParticipantIDs),
		"categories_count", len(req.Msg.Categories),
	)

	event := &models.Event{
		Name:      strings.TrimSpace(req.Msg.Name),
		GroupID:   req.Msg.GroupID,
		CreatedBy: userID,
	}
	if event.Name == "" {
		return nil, invalidArgument("event name is required")
	}

	for i, in := range req.Msg.Categories {
		cat, err := toCategory(in)
		if err != nil {
			slog.Warn("CreateEvent: invalid basket", "index", i, "error", err)
			return nil, err
		}
		event.Categories = append(event.Categories, cat)
	}

	participantIDs := req.Msg.ParticipantIDs
	if event.GroupID != "" && len(participantIDs) == 0 {
		group, err := s.store.GetGroup(ctx, event.GroupID)
		if err != nil {
			return nil, fail("CreateEvent", err, "group_id", event.GroupID)
		}
		for _, m := range group.Members {
			participantIDs = append(participantIDs, m.UserID)
		}
	}

	ids := dedupe(append([]string{userID}, participantIDs...))
	if err := requireUsers(ctx, s.store, ids); err != nil {
		return nil, err
	}
	for _, id := range ids {
		role := models.RoleParticipant
		if id == userID {
			role = models.RoleOrganizer
		}
		event.Participants = append(event.Participants, models.Participant{UserID: id, Role: role})
	}

	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fail("CreateEvent", err)
	}

	created, err := s.store.GetEvent(ctx, event.ID)
	if err != nil {
		return nil, fail("CreateEvent", err, "event_id", event.ID)
	}

	slog.Info("Event created", "event_id", created.ID, "categories", len(created.Categories))
	return connect.NewResponse(&api.CreateEventResponse{Event: toAPIEvent(created, true)}), nil
}

// toCategory validates a basket definition.
func toCategory(in api.BasketInput) (models.Category, error) {
	cat := models.Category{Name: strings.TrimSpace(in.Name), RuleType: models.RuleEqualSplit}
	if cat.Name == "" {
		return cat, invalidArgument("basket name is required")
	}

	switch models.RuleType(in.RuleType) {
	case "", models.RuleEqualSplit:
	default:
		return cat, invalidArgument("unsupported rule type %q", in.RuleType)
	}

	if in.SpendingLimit != "" {
		limit, err := decimal.NewFromString(in.SpendingLimit)
		if err != nil {
			return cat, invalidArgument("spending limit of %q is not a number", cat.Name)
		}
		if limit.IsNegative() {
			return cat, invalidArgument("spending limit of %q must not be negative", cat.Name)
		}
		limit = limit.Round(2)
		cat.SpendingLimit = &limit
	}
	return cat, nil
}

// ListEvents returns the caller's events, newest first.
func (s *EventService) ListEvents(ctx context.Context, req *connect.Request[api.ListEventsRequest]) (*connect.Response[api.ListEventsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListEventsForUser(ctx, userID)
	if err != nil {
		return nil, fail("ListEvents", err, "user_id", userID)
	}

	out := make([]*api.Event, len(events))
	for i, e := range events {
		out[i] = toAPIEvent(e, true)
	}

	slog.Info("ListEvents completed", "user_id", userID, "count", len(out))
	return connect.NewResponse(&api.ListEventsResponse{Events: out}), nil
}

// GetEvent returns an event the caller takes part in.
func (s *EventService) GetEvent(ctx context.Context, req *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error) {
	slog.Info("GetEvent request received", "event_id", req.Msg.EventID)

	event, _, err := participantEvent(ctx, s.store, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&api.GetEventResponse{Event: toAPIEvent(event, true)}), nil
}

// DeleteEvent removes an event and everything it owns. Only the organizer may delete.
func (s *EventService) DeleteEvent(ctx context.Context, req *connect.Request[api.DeleteEventRequest]) (*connect.Response[api.DeleteEventResponse], error) {
	slog.Info("DeleteEvent request received", "event_id", req.Msg.EventID)

	if _, err := organizerEvent(ctx, s.store, req.Msg.EventID); err != nil {
		return nil, err
	}

	if err := s.store.DeleteEvent(ctx, req.Msg.EventID); err != nil {
		return nil, fail("DeleteEvent", err, "event_id", req.Msg.EventID)
	}

	slog.Info("Event deleted", "event_id", req.Msg.EventID)
	return connect.NewResponse(&api.DeleteEventResponse{}), nil
}

// GetAuditLog returns every transaction of the event, newest first.
func (s *EventService) GetAuditLog(ctx context.Context, req *connect.Request[api.GetAuditLogRequest]) (*connect.Response[api.GetAuditLogResponse], error) {
	slog.Info("GetAuditLog request received", "event_id", req.Msg.EventID)

	if _, _, err := participantEvent(ctx, s.store, req.Msg.EventID); err != nil {
		return nil, err
	}

	txs, err := s.store.ListTransactions(ctx, req.Msg.EventID)
	if err != nil {
		return nil, fail("GetAuditLog", err, "event_id", req.Msg.EventID)
	}

	out := make([]api.Transaction, len(txs))
	for i := range txs {
		out[i] = toAPITransaction(&txs[i])
	}
	return connect.NewResponse(&api.GetAuditLogResponse{Transactions: out}), nil
}

// GetDues returns a participant's share of the baskets they joined and how much is still owed.
func (s *EventService) GetDues(ctx context.Context, req *connect.Request[api.GetDuesRequest]) (*connect.Response[api.GetDuesResponse], error) {
	slog.Info("GetDues request received", "event_id", req.Msg.EventID, "user_id", req.Msg.UserID)

	event, userID, err := participantEvent(ctx, s.store, req.Msg.EventID)
	if err != nil {
		return nil, err
	}
	if req.Msg.UserID != "" {
		if !event.IsParticipant(req.Msg.UserID) {
			return nil, connect.NewError(connect.CodeNotFound, storage.ErrNotParticipant)
		}
		userID = req.Msg.UserID
	}

	txs, err := s.store.ListTransactions(ctx, event.ID)
	if err != nil {
		return nil, fail("GetDues", err, "event_id", event.ID)
	}

	dues := calculator.Dues(event, txs, userID)
	baskets := make([]api.BasketDue, len(dues.Baskets))
	for i, b := range dues.Baskets {
		baskets[i] = api.BasketDue{
			CategoryID: b.CategoryID,
			Name:       b.Name,
			Share:      b.Share.StringFixed(2),
			Members:    b.Members,
		}
	}

	return connect.NewResponse(&api.GetDuesResponse{
		UserID:      userID,
		Baskets:     baskets,
		TotalDue:    dues.TotalDue.StringFixed(2),
		Contributed: dues.Contributed.StringFixed(2),
		Outstanding: dues.Outstanding.StringFixed(2),
	}), nil
}

// participantEvent loads the event and checks the caller takes part in it.
// It returns the event and the caller's ID.
func participantEvent(ctx context.Context, events storage.EventStore, eventID string) (*models.Event, string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, "", err
	}
	if eventID == "" {
		return nil, "", invalidArgument("event_id is required")
	}

	event, err := events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, "", fail("GetEvent", err, "event_id", eventID)
	}
	if !event.IsParticipant(userID) {
		slog.Warn("Caller is not a participant", "event_id", eventID, "user_id", userID)
		return nil, "", connect.NewError(connect.CodePermissionDenied, errNotParticipant)
	}
	return event, userID, nil
}

// organizerEvent is participantEvent restricted to the event's organizer.
func organizerEvent(ctx context.Context, events storage.EventStore, eventID string) (*models.Event, error) {
	event, userID, err := participantEvent(ctx, events, eventID)
	if err != nil {
		return nil, err
	}
	if p := event.Participant(userID); event.CreatedBy != userID && p.Role != models.RoleOrganizer {
		return nil, connect.NewError(connect.CodePermissionDenied, errNotOrganizer)
	}
	return event, nil
}

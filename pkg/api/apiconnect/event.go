package apiconnect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/pkg/api"
)

// EventServiceName is the fully-qualified name of the EventService.
const EventServiceName = "cooper.v1.EventService"

// Procedure paths of the EventService.
const (
	EventServiceCreateEventProcedure = "/cooper.v1.EventService/CreateEvent"
	EventServiceListEventsProcedure  = "/cooper.v1.EventService/ListEvents"
	EventServiceGetEventProcedure    = "/cooper.v1.EventService/GetEvent"
	EventServiceDeleteEventProcedure = "/cooper.v1.EventService/DeleteEvent"
	EventServiceGetAuditLogProcedure = "/cooper.v1.EventService/GetAuditLog"
	EventServiceGetDuesProcedure     = "/cooper.v1.EventService/GetDues"
)

// EventServiceHandler manages events and reads their ledger.
type EventServiceHandler interface {
	CreateEvent(context.Context, *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error)
	ListEvents(context.Context, *connect.Request[api.ListEventsRequest]) (*connect.Response[api.ListEventsResponse], error)
	GetEvent(context.Context, *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error)
	DeleteEvent(context.Context, *connect.Request[api.DeleteEventRequest]) (*connect.Response[api.DeleteEventResponse], error)
	GetAuditLog(context.Context, *connect.Request[api.GetAuditLogRequest]) (*connect.Response[api.GetAuditLogResponse], error)
	GetDues(context.Context, *connect.Request[api.GetDuesRequest]) (*connect.Response[api.GetDuesResponse], error)
}

// NewEventServiceHandler builds an HTTP handler serving every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewEventServiceHandler(svc EventServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(EventServiceCreateEventProcedure, connect.NewUnaryHandler(EventServiceCreateEventProcedure, svc.CreateEvent, opts...))
	mux.Handle(EventServiceListEventsProcedure, connect.NewUnaryHandler(EventServiceListEventsProcedure, svc.ListEvents, opts...))
	mux.Handle(EventServiceGetEventProcedure, connect.NewUnaryHandler(EventServiceGetEventProcedure, svc.GetEvent, opts...))
	mux.Handle(EventServiceDeleteEventProcedure, connect.NewUnaryHandler(EventServiceDeleteEventProcedure, svc.DeleteEvent, opts...))
	mux.Handle(EventServiceGetAuditLogProcedure, connect.NewUnaryHandler(EventServiceGetAuditLogProcedure, svc.GetAuditLog, opts...))
	mux.Handle(EventServiceGetDuesProcedure, connect.NewUnaryHandler(EventServiceGetDuesProcedure, svc.GetDues, opts...))
	return "/" + EventServiceName + "/", mux
}

// EventServiceClient is a client for the EventService.
type EventServiceClient interface {
	CreateEvent(context.Context, *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error)
	ListEvents(context.Context, *connect.Request[api.ListEventsRequest]) (*connect.Response[api.ListEventsResponse], error)
	GetEvent(context.Context, *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error)
	DeleteEvent(context.Context, *connect.Request[api.DeleteEventRequest]) (*connect.Response[api.DeleteEventResponse], error)
	GetAuditLog(context.Context, *connect.Request[api.GetAuditLogRequest]) (*connect.Response[api.GetAuditLogResponse], error)
	GetDues(context.Context, *connect.Request[api.GetDuesRequest]) (*connect.Response[api.GetDuesResponse], error)
}

// NewEventServiceClient creates a client for the service at baseURL, e.g. http://localhost:8080.
func NewEventServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) EventServiceClient {
	opts = clientOptions(opts)
	return &eventServiceClient{
		createEvent: connect.NewClient[api.CreateEventRequest, api.CreateEventResponse](httpClient, baseURL+EventServiceCreateEventProcedure, opts...),
		listEvents:  connect.NewClient[api.ListEventsRequest, api.ListEventsResponse](httpClient, baseURL+EventServiceListEventsProcedure, opts...),
		getEvent:    connect.NewClient[api.GetEventRequest, api.GetEventResponse](httpClient, baseURL+EventServiceGetEventProcedure, opts...),
		deleteEvent: connect.NewClient[api.DeleteEventRequest, api.DeleteEventResponse](httpClient, baseURL+EventServiceDeleteEventProcedure, opts...),
		getAuditLog: connect.NewClient[api.GetAuditLogRequest, api.GetAuditLogResponse](httpClient, baseURL+EventServiceGetAuditLogProcedure, opts...),
		getDues:     connect.NewClient[api.GetDuesRequest, api.GetDuesResponse](httpClient, baseURL+EventServiceGetDuesProcedure, opts...),
	}
}

type eventServiceClient struct {
	createEvent *connect.Client[api.CreateEventRequest, api.CreateEventResponse]
	listEvents  *connect.Client[api.ListEventsRequest, api.ListEventsResponse]
	getEvent    *connect.Client[api.GetEventRequest, api.GetEventResponse]
	deleteEvent *connect.Client[api.DeleteEventRequest, api.DeleteEventResponse]
	getAuditLog *connect.Client[api.GetAuditLogRequest, api.GetAuditLogResponse]
	getDues     *connect.Client[api.GetDuesRequest, api.GetDuesResponse]
}

func (c *eventServiceClient) CreateEvent(ctx context.Context, req *connect.Request[api.CreateEventRequest]) (*connect.Response[api.CreateEventResponse], error) {
	return c.createEvent.CallUnary(ctx, req)
}

func (c *eventServiceClient) ListEvents(ctx context.Context, req *connect.Request[api.ListEventsRequest]) (*connect.Response[api.ListEventsResponse], error) {
	return c.listEvents.CallUnary(ctx, req)
}

func (c *eventServiceClient) GetEvent(ctx context.Context, req *connect.Request[api.GetEventRequest]) (*connect.Response[api.GetEventResponse], error) {
	return c.getEvent.CallUnary(ctx, req)
}

func (c *eventServiceClient) DeleteEvent(ctx context.Context, req *connect.Request[api.DeleteEventRequest]) (*connect.Response[api.DeleteEventResponse], error) {
	return c.deleteEvent.CallUnary(ctx, req)
}

func (c *eventServiceClient) GetAuditLog(ctx context.Context, req *connect.Request[api.GetAuditLogRequest]) (*connect.Response[api.GetAuditLogResponse], error) {
	return c.getAuditLog.CallUnary(ctx, req)
}

func (c *eventServiceClient) GetDues(ctx context.Context, req *connect.Request[api.GetDuesRequest]) (*connect.Response[api.GetDuesResponse], error) {
	return c.getDues.CallUnary(ctx, req)
}

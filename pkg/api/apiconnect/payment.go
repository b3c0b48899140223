package apiconnect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/pkg/api"
)

// PaymentServiceName is the fully-qualified name of the PaymentService.
const PaymentServiceName = "cooper.v1.PaymentService"

// Procedure paths of the PaymentService.
const (
	PaymentServiceCreateIntentProcedure      = "/cooper.v1.PaymentService/CreateIntent"
	PaymentServiceGetIntentProcedure         = "/cooper.v1.PaymentService/GetIntent"
	PaymentServiceStartPipelineProcedure     = "/cooper.v1.PaymentService/StartPipeline"
	PaymentServiceGetPipelineStatusProcedure = "/cooper.v1.PaymentService/GetPipelineStatus"
)

// PaymentServiceHandler proxies the payment gateway and runs the payment pipeline.
type PaymentServiceHandler interface {
	CreateIntent(context.Context, *connect.Request[api.CreateIntentRequest]) (*connect.Response[api.CreateIntentResponse], error)
	GetIntent(context.Context, *connect.Request[api.GetIntentRequest]) (*connect.Response[api.GetIntentResponse], error)
	StartPipeline(context.Context, *connect.Request[api.StartPipelineRequest]) (*connect.Response[api.StartPipelineResponse], error)
	GetPipelineStatus(context.Context, *connect.Request[api.GetPipelineStatusRequest]) (*connect.Response[api.GetPipelineStatusResponse], error)
}

// NewPaymentServiceHandler builds an HTTP handler serving every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewPaymentServiceHandler(svc PaymentServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(PaymentServiceCreateIntentProcedure, connect.NewUnaryHandler(PaymentServiceCreateIntentProcedure, svc.CreateIntent, opts...))
	mux.Handle(PaymentServiceGetIntentProcedure, connect.NewUnaryHandler(PaymentServiceGetIntentProcedure, svc.GetIntent, opts...))
	mux.Handle(PaymentServiceStartPipelineProcedure, connect.NewUnaryHandler(PaymentServiceStartPipelineProcedure, svc.StartPipeline, opts...))
	mux.Handle(PaymentServiceGetPipelineStatusProcedure, connect.NewUnaryHandler(PaymentServiceGetPipelineStatusProcedure, svc.GetPipelineStatus, opts...))
	return "/" + PaymentServiceName + "/", mux
}

// PaymentServiceClient is a client for the PaymentService.
type PaymentServiceClient interface {
	CreateIntent(context.Context, *connect.Request[api.CreateIntentRequest]) (*connect.Response[api.CreateIntentResponse], error)
	GetIntent(context.Context, *connect.Request[api.GetIntentRequest]) (*connect.Response[api.GetIntentResponse], error)
	StartPipeline(context.Context, *connect.Request[api.StartPipelineRequest]) (*connect.Response[api.StartPipelineResponse], error)
	GetPipelineStatus(context.Context, *connect.Request[api.GetPipelineStatusRequest]) (*connect.Response[api.GetPipelineStatusResponse], error)
}

// NewPaymentServiceClient creates a client for the service at baseURL, e.g. http://localhost:8080.
func NewPaymentServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) PaymentServiceClient {
	opts = clientOptions(opts)
	return &paymentServiceClient{
		createIntent:      connect.NewClient[api.CreateIntentRequest, api.CreateIntentResponse](httpClient, baseURL+PaymentServiceCreateIntentProcedure, opts...),
		getIntent:         connect.NewClient[api.GetIntentRequest, api.GetIntentResponse](httpClient, baseURL+PaymentServiceGetIntentProcedure, opts...),
		startPipeline:     connect.NewClient[api.StartPipelineRequest, api.StartPipelineResponse](httpClient, baseURL+PaymentServiceStartPipelineProcedure, opts...),
		getPipelineStatus: connect.NewClient[api.GetPipelineStatusRequest, api.GetPipelineStatusResponse](httpClient, baseURL+PaymentServiceGetPipelineStatusProcedure, opts...),
	}
}

type paymentServiceClient struct {
	createIntent      *connect.Client[api.CreateIntentRequest, api.CreateIntentResponse]
	getIntent         *connect.Client[api.GetIntentRequest, api.GetIntentResponse]
	startPipeline     *connect.Client[api.StartPipelineRequest, api.StartPipelineResponse]
	getPipelineStatus *connect.Client[api.GetPipelineStatusRequest, api.GetPipelineStatusResponse]
}

func (c *paymentServiceClient) CreateIntent(ctx context.Context, req *connect.Request[api.CreateIntentRequest]) (*connect.Response[api.CreateIntentResponse], error) {
	return c.createIntent.CallUnary(ctx, req)
}

func (c *paymentServiceClient) GetIntent(ctx context.Context, req *connect.Request[api.GetIntentRequest]) (*connect.Response[api.GetIntentResponse], error) {
	return c.getIntent.CallUnary(ctx, req)
}

func (c *paymentServiceClient) StartPipeline(ctx context.Context, req *connect.Request[api.StartPipelineRequest]) (*connect.Response[api.StartPipelineResponse], error) {
	return c.startPipeline.CallUnary(ctx, req)
}

func (c *paymentServiceClient) GetPipelineStatus(ctx context.Context, req *connect.Request[api.GetPipelineStatusRequest]) (*connect.Response[api.GetPipelineStatusResponse], error) {
	return c.getPipelineStatus.CallUnary(ctx, req)
}

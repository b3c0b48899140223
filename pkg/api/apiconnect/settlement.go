package apiconnect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/pkg/api"
)

// SettlementServiceName is the fully-qualified name of the SettlementService.
const SettlementServiceName = "cooper.v1.SettlementService"

// Procedure paths of the SettlementService.
const (
	SettlementServicePreviewSettlementProcedure = "/cooper.v1.SettlementService/PreviewSettlement"
	SettlementServiceExecuteSettlementProcedure = "/cooper.v1.SettlementService/ExecuteSettlement"
)

// SettlementServiceHandler previews and executes event settlements.
type SettlementServiceHandler interface {
	PreviewSettlement(context.Context, *connect.Request[api.PreviewSettlementRequest]) (*connect.Response[api.PreviewSettlementResponse], error)
	ExecuteSettlement(context.Context, *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error)
}

// NewSettlementServiceHandler builds an HTTP handler serving every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewSettlementServiceHandler(svc SettlementServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(SettlementServicePreviewSettlementProcedure, connect.NewUnaryHandler(SettlementServicePreviewSettlementProcedure, svc.PreviewSettlement, opts...))
	mux.Handle(SettlementServiceExecuteSettlementProcedure, connect.NewUnaryHandler(SettlementServiceExecuteSettlementProcedure, svc.ExecuteSettlement, opts...))
	return "/" + SettlementServiceName + "/", mux
}

// SettlementServiceClient is a client for the SettlementService.
type SettlementServiceClient interface {
	PreviewSettlement(context.Context, *connect.Request[api.PreviewSettlementRequest]) (*connect.Response[api.PreviewSettlementResponse], error)
	ExecuteSettlement(context.Context, *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error)
}

// NewSettlementServiceClient creates a client for the service at baseURL, e.g. http://localhost:8080.
func NewSettlementServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) SettlementServiceClient {
	opts = clientOptions(opts)
	return &settlementServiceClient{
		previewSettlement: connect.NewClient[api.PreviewSettlementRequest, api.PreviewSettlementResponse](httpClient, baseURL+SettlementServicePreviewSettlementProcedure, opts...),
		executeSettlement: connect.NewClient[api.ExecuteSettlementRequest, api.ExecuteSettlementResponse](httpClient, baseURL+SettlementServiceExecuteSettlementProcedure, opts...),
	}
}

type settlementServiceClient struct {
	previewSettlement *connect.Client[api.PreviewSettlementRequest, api.PreviewSettlementResponse]
	executeSettlement *connect.Client[api.ExecuteSettlementRequest, api.ExecuteSettlementResponse]
}

func (c *settlementServiceClient) PreviewSettlement(ctx context.Context, req *connect.Request[api.PreviewSettlementRequest]) (*connect.Response[api.PreviewSettlementResponse], error) {
	return c.previewSettlement.CallUnary(ctx, req)
}

func (c *settlementServiceClient) ExecuteSettlement(ctx context.Context, req *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error) {
	return c.executeSettlement.CallUnary(ctx, req)
}

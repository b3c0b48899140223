package apiconnect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/cooper/pkg/api"
)

// BasketServiceName is the fully-qualified name of the BasketService.
const BasketServiceName = "cooper.v1.BasketService"

// Procedure paths of the BasketService.
const (
	BasketServiceOptInProcedure   = "/cooper.v1.BasketService/OptIn"
	BasketServiceDepositProcedure = "/cooper.v1.BasketService/Deposit"
)

// BasketServiceHandler handles basket membership and manual deposits.
type BasketServiceHandler interface {
	OptIn(context.Context, *connect.Request[api.OptInRequest]) (*connect.Response[api.OptInResponse], error)
	Deposit(context.Context, *connect.Request[api.DepositRequest]) (*connect.Response[api.DepositResponse], error)
}

// NewBasketServiceHandler builds an HTTP handler serving every procedure of svc.
// It returns the path prefix to mount the handler on.
func NewBasketServiceHandler(svc BasketServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(BasketServiceOptInProcedure, connect.NewUnaryHandler(BasketServiceOptInProcedure, svc.OptIn, opts...))
	mux.Handle(BasketServiceDepositProcedure, connect.NewUnaryHandler(BasketServiceDepositProcedure, svc.Deposit, opts...))
	return "/" + BasketServiceName + "/", mux
}

// BasketServiceClient is a client for the BasketService.
type BasketServiceClient interface {
	OptIn(context.Context, *connect.Request[api.OptInRequest]) (*connect.Response[api.OptInResponse], error)
	Deposit(context.Context, *connect.Request[api.DepositRequest]) (*connect.Response[api.DepositResponse], error)
}

// NewBasketServiceClient creates a client for the service at baseURL, e.g. http://localhost:8080.
func NewBasketServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) BasketServiceClient {
	opts = clientOptions(opts)
	return &basketServiceClient{
		optIn:   connect.NewClient[api.OptInRequest, api.OptInResponse](httpClient, baseURL+BasketServiceOptInProcedure, opts...),
		deposit: connect.NewClient[api.DepositRequest, api.DepositResponse](httpClient, baseURL+BasketServiceDepositProcedure, opts...),
	}
}

type basketServiceClient struct {
	optIn   *connect.Client[api.OptInRequest, api.OptInResponse]
	deposit *connect.Client[api.DepositRequest, api.DepositResponse]
}

func (c *basketServiceClient) OptIn(ctx context.Context, req *connect.Request[api.OptInRequest]) (*connect.Response[api.OptInResponse], error) {
	return c.optIn.CallUnary(ctx, req)
}

func (c *basketServiceClient) Deposit(ctx context.Context, req *connect.Request[api.DepositRequest]) (*connect.Response[api.DepositResponse], error) {
	return c.deposit.CallUnary(ctx, req)
}

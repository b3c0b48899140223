// Package server assembles the HTTP surface: the Connect services, the receipt
// endpoint, health and metrics, behind logging and CORS middleware.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/cooper/internal/auth"
	"github.com/mmynk/cooper/internal/metrics"
	"github.com/mmynk/cooper/internal/middleware"
	"github.com/mmynk/cooper/internal/service"
	"github.com/mmynk/cooper/internal/storage"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// ReceiptSource serves archived receipts.
type ReceiptSource interface {
	Get(ctx context.Context, intentID string) ([]byte, error)
}

// Deps are the collaborators the handlers are built from.
type Deps struct {
	Store         storage.Store
	JWT           *auth.JWTManager
	Authenticator auth.Authenticator
	Gateway       service.IntentGateway
	Settler       service.Settler
	Queue         service.JobQueue
	Intents       service.IntentOptions
	Receipts      ReceiptSource
	Metrics       prometheus.Gatherer

	// CORSOrigins lists the allowed browser origins; "*" allows any.
	CORSOrigins []string
}

// publicProcedures can be called without a session token.
var publicProcedures = []string{
	apiconnect.AuthServiceRegisterProcedure,
	apiconnect.AuthServiceLoginProcedure,
}

// NewHandler builds the router. The result speaks HTTP/2 without TLS (h2c) as well as HTTP/1.1.
func NewHandler(d Deps) http.Handler {
	interceptors := connect.WithInterceptors(
		middleware.RequireAuth(d.JWT, publicProcedures...),
		middleware.LoggingInterceptor(),
	)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware(d.CORSOrigins))

	mount := func(path string, h http.Handler) {
		r.Handle(path+"*", h)
	}
	mount(apiconnect.NewAuthServiceHandler(service.NewAuthService(d.Authenticator, d.JWT, d.Store, slog.Default()), interceptors))
	mount(apiconnect.NewGroupServiceHandler(service.NewGroupService(d.Store), interceptors))
	mount(apiconnect.NewEventServiceHandler(service.NewEventService(d.Store), interceptors))
	mount(apiconnect.NewBasketServiceHandler(service.NewBasketService(d.Store), interceptors))
	mount(apiconnect.NewSettlementServiceHandler(service.NewSettlementService(d.Store, d.Settler), interceptors))
	mount(apiconnect.NewPaymentServiceHandler(service.NewPaymentService(d.Store, d.Gateway, d.Queue, d.Intents), interceptors))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Metrics))
	}
	if d.Receipts != nil {
		r.Get("/receipts/{intentId}", receiptHandler(d.Receipts))
	}

	return h2c.NewHandler(r, &http2.Server{})
}

// receiptHandler serves the canonical receipt a delivery proof points at.
func receiptHandler(src ReceiptSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		intentID := chi.URLParam(r, "intentId")
		body, err := src.Get(r.Context(), intentID)
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			slog.Error("Failed to load receipt", "intent_id", intentID, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Write(body)
	}
}

// Run serves handler on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/cooper/internal/auth"
	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/metrics"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/service"
	"github.com/mmynk/cooper/internal/storage/sqlstore"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

func setupServer(t *testing.T, origins []string) (*httptest.Server, *sqlstore.Store) {
	t.Helper()

	store, err := sqlstore.New(filepath.Join(t.TempDir(), "server.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	gw := gateway.New("http://127.0.0.1:1", "test-key", gateway.WithTimeout(time.Second), gateway.WithObserver(m))
	archive := receipts.NewArchive(store, "https://cooper.test", nil)
	orch := pipeline.New(store, gw, archive, m, pipeline.DefaultConfig())

	handler := NewHandler(Deps{
		Store:         store,
		JWT:           auth.NewJWTManager("server-secret", time.Hour),
		Authenticator: auth.NewPasswordAuthenticator(store).WithCost(bcrypt.MinCost),
		Gateway:       gw,
		Settler:       orch,
		Queue:         pipeline.NewQueue(store, orch, 1, 4),
		Intents:       service.IntentOptions{Currency: gateway.DefaultCurrency},
		Receipts:      archive,
		Metrics:       reg,
		CORSOrigins:   origins,
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, store
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body), resp.Header
}

func TestPlainRoutes(t *testing.T) {
	srv, store := setupServer(t, nil)

	if err := store.SaveReceipt(context.Background(), "pi_1", []byte(`{"intentId":"pi_1"}`)); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}

	tests := []struct {
		name        string
		path        string
		wantStatus  int
		wantContain string
	}{
		{name: "health", path: "/healthz", wantStatus: http.StatusOK, wantContain: "ok"},
		{name: "metrics", path: "/metrics", wantStatus: http.StatusOK, wantContain: "go_goroutines"},
		{name: "receipt", path: "/receipts/pi_1", wantStatus: http.StatusOK, wantContain: `"intentId":"pi_1"`},
		{name: "missing receipt", path: "/receipts/pi_2", wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body, _ := get(t, srv.URL+tt.path)
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if !strings.Contains(body, tt.wantContain) {
				t.Errorf("expected body to contain %q, got %q", tt.wantContain, body)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	srv, _ := setupServer(t, []string{"https://app.example"})

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://app.example", want: "https://app.example"},
		{origin: "https://evil.example", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, srv.URL+apiconnect.EventServiceListEventsProcedure, nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("preflight failed: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("expected allow origin %q, got %q", tt.want, got)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	srv, _ := setupServer(t, nil)
	ctx := context.Background()

	authClient := apiconnect.NewAuthServiceClient(http.DefaultClient, srv.URL)
	reg, err := authClient.Register(ctx, connect.NewRequest(&api.RegisterRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "password123",
	}))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	events := apiconnect.NewEventServiceClient(http.DefaultClient, srv.URL)

	_, err = events.ListEvents(ctx, connect.NewRequest(&api.ListEventsRequest{}))
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("expected Unauthenticated without a token, got %v", err)
	}

	req := connect.NewRequest(&api.CreateEventRequest{Name: "Picnic", Categories: []api.BasketInput{{Name: "Food"}}})
	req.Header().Set("Authorization", "Bearer "+reg.Msg.Token)
	created, err := events.CreateEvent(ctx, req)
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if created.Msg.Event.CreatedBy != reg.Msg.User.ID {
		t.Errorf("expected event created by %q, got %q", reg.Msg.User.ID, created.Msg.Event.CreatedBy)
	}

	list := connect.NewRequest(&api.ListEventsRequest{})
	list.Header().Set("Authorization", "Bearer "+reg.Msg.Token)
	resp, err := events.ListEvents(ctx, list)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(resp.Msg.Events) != 1 {
		t.Errorf("expected 1 event, got %d", len(resp.Msg.Events))
	}
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/gateway"
	"github.com/mmynk/cooper/internal/middleware"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/internal/poll"
	"github.com/mmynk/cooper/internal/receipts"
	"github.com/mmynk/cooper/internal/storage/sqlstore"
	"github.com/mmynk/cooper/pkg/api"
	"github.com/mmynk/cooper/pkg/api/apiconnect"
)

// testUserHeader carries the caller's ID from test clients to the test auth interceptor.
const testUserHeader = "X-Test-User"

// testAuthInterceptor returns a Connect interceptor that puts the user named by
// testUserHeader in the context.
func testAuthInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if id := req.Header().Get(testUserHeader); id != "" {
				ctx = middleware.WithUser(ctx, id, "")
			}
			return next(ctx, req)
		}
	}
}

// asUser makes every call of a client on behalf of userID.
func asUser(userID string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set(testUserHeader, userID)
			return next(ctx, req)
		}
	}
}

// fakeGateway accepts every intent and proof. Intent statuses are PROCESSING
// unless set otherwise.
type fakeGateway struct {
	mu       sync.Mutex
	created  []map[string]any
	statuses map[string]string
	down     bool
	nextID   int
}

func newFakeGateway(t *testing.T) (*fakeGateway, *gateway.Client) {
	t.Helper()
	f := &fakeGateway{statuses: make(map[string]string)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment-intents", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "maintenance"})
			return
		}
		f.nextID++
		id := fmt.Sprintf("pi_%d", f.nextID)
		f.created = append(f.created, body)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id":     id,
			"status": gateway.StatusCreated,
			"data":   map[string]string{"paymentUrl": "https://pay.example/" + id},
		})
	})
	mux.HandleFunc("GET /payment-intents/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		status, ok := f.statuses[id]
		f.mu.Unlock()
		if id == "pi_missing" {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "no such intent"})
			return
		}
		if !ok {
			status = gateway.StatusProcessing
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": status})
	})
	mux.HandleFunc("GET /payment-intents/{id}/escrow", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"buyerAddress": "0xbuyer"}})
	})
	mux.HandleFunc("POST /payment-intents/{id}/escrow/delivery-proof", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"id": "proof_" + r.PathValue("id")}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, gateway.New(srv.URL, "test-key")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeGateway) lastCreated() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeGateway) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type testServer struct {
	store *sqlstore.Store
	gw    *fakeGateway
	url   string

	alice *models.User
	bob   *models.User
	carol *models.User
}

// setupTestServer serves every service over httptest with a temp SQLite
// database. alice, bob and carol exist as users.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlstore.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fake, client := newFakeGateway(t)

	cfg := pipeline.DefaultConfig()
	cfg.StatusPoll = poll.Policy{MaxAttempts: 2, Delay: time.Millisecond}
	cfg.EscrowPoll = poll.Policy{MaxAttempts: 2, Delay: time.Millisecond}
	archive := receipts.NewArchive(store, "https://cooper.test", nil)
	orch := pipeline.New(store, client, archive, nil, cfg)

	// Workers are not started: jobs stay CREATED so tests observe them as enqueued.
	queue := pipeline.NewQueue(store, orch, 1, 16)

	opts := connect.WithInterceptors(testAuthInterceptor())
	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewGroupServiceHandler(NewGroupService(store), opts))
	mux.Handle(apiconnect.NewEventServiceHandler(NewEventService(store), opts))
	mux.Handle(apiconnect.NewBasketServiceHandler(NewBasketService(store), opts))
	mux.Handle(apiconnect.NewSettlementServiceHandler(NewSettlementService(store, orch), opts))
	mux.Handle(apiconnect.NewPaymentServiceHandler(NewPaymentService(store, client, queue, IntentOptions{
		Currency:          cfg.Currency,
		Type:              cfg.IntentType,
		SettlementMethod:  cfg.SettlementMethod,
		DestinationPrefix: cfg.DestinationPrefix,
	}), opts))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ts := &testServer{store: store, gw: fake, url: server.URL}
	ts.alice = models.NewUser("alice@example.com", "Alice", "")
	ts.bob = models.NewUser("bob@example.com", "Bob", "")
	ts.carol = models.NewUser("carol@example.com", "Carol", "")
	for _, u := range []*models.User{ts.alice, ts.bob, ts.carol} {
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}
	return ts
}

func (ts *testServer) groups(u *models.User) apiconnect.GroupServiceClient {
	return apiconnect.NewGroupServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(asUser(u.ID)))
}

func (ts *testServer) events(u *models.User) apiconnect.EventServiceClient {
	return apiconnect.NewEventServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(asUser(u.ID)))
}

func (ts *testServer) baskets(u *models.User) apiconnect.BasketServiceClient {
	return apiconnect.NewBasketServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(asUser(u.ID)))
}

func (ts *testServer) settlements(u *models.User) apiconnect.SettlementServiceClient {
	return apiconnect.NewSettlementServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(asUser(u.ID)))
}

func (ts *testServer) payments(u *models.User) apiconnect.PaymentServiceClient {
	return apiconnect.NewPaymentServiceClient(http.DefaultClient, ts.url, connect.WithInterceptors(asUser(u.ID)))
}

// createTrip creates an event organized by alice with bob as participant and
// the baskets Food (limit 100) and Drinks (no limit).
func (ts *testServer) createTrip(t *testing.T) *api.Event {
	t.Helper()
	resp, err := ts.events(ts.alice).CreateEvent(context.Background(), connect.NewRequest(&api.CreateEventRequest{
		Name:           "Goa Trip",
		ParticipantIDs: []string{ts.bob.ID},
		Categories: []api.BasketInput{
			{Name: "Food", SpendingLimit: "100"},
			{Name: "Drinks"},
		},
	}))
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return resp.Msg.Event
}

func (ts *testServer) optIn(t *testing.T, u *models.User, eventID, categoryID string) {
	t.Helper()
	_, err := ts.baskets(u).OptIn(context.Background(), connect.NewRequest(&api.OptInRequest{
		EventID: eventID, CategoryID: categoryID, Action: api.ActionJoin,
	}))
	if err != nil {
		t.Fatalf("OptIn failed: %v", err)
	}
}

func (ts *testServer) deposit(t *testing.T, u *models.User, eventID, categoryID, amount string) {
	t.Helper()
	_, err := ts.baskets(u).Deposit(context.Background(), connect.NewRequest(&api.DepositRequest{
		EventID: eventID, CategoryID: categoryID, Amount: amount,
	}))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
}

func categoryNamed(t *testing.T, e *api.Event, name string) api.Category {
	t.Helper()
	for _, c := range e.Categories {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("event has no category %q", name)
	return api.Category{}
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	if got := connect.CodeOf(err); got != want {
		t.Errorf("expected code %v, got %v (%v)", want, got, err)
	}
}

func assertMoney(t *testing.T, what, got, want string) {
	t.Helper()
	g, err := decimal.NewFromString(got)
	if err != nil {
		t.Fatalf("%s: %q is not a number", what, got)
	}
	if !g.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s: expected %s, got %s", what, want, got)
	}
}

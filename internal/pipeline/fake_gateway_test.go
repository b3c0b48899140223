package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mmynk/cooper/internal/gateway"
)

// fakeGateway is an in-memory payment gateway speaking the real HTTP contract.
type fakeGateway struct {
	mu sync.Mutex

	// statuses is the sequence of statuses reported per intent; the last one repeats.
	statuses map[string][]string
	polls    map[string]int

	// escrowMisses is the number of 404s returned before an escrow appears.
	escrowMisses map[string]int
	escrowCalls  map[string]int

	// escrowAmounts is the amount each escrow reports; "0" when unset.
	escrowAmounts map[string]string

	// metadata is echoed back when an intent's status is fetched.
	metadata map[string]map[string]string

	// rejectProof makes delivery proofs fail for the intent.
	rejectProof map[string]bool

	// rejectRefundFor makes refund intent creation fail for the user.
	rejectRefundFor map[string]bool

	// onCreate runs before each intent is created.
	onCreate func()

	created []map[string]any
	proofs  map[string]gateway.Proof
	nextID  int
}

func newFakeGateway(t *testing.T) (*fakeGateway, *gateway.Client) {
	t.Helper()
	f := &fakeGateway{
		statuses:        make(map[string][]string),
		polls:           make(map[string]int),
		escrowMisses:    make(map[string]int),
		escrowCalls:     make(map[string]int),
		escrowAmounts:   make(map[string]string),
		metadata:        make(map[string]map[string]string),
		rejectProof:     make(map[string]bool),
		rejectRefundFor: make(map[string]bool),
		proofs:          make(map[string]gateway.Proof),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /payment-intents", f.createIntent)
	mux.HandleFunc("GET /payment-intents/{id}", f.getIntent)
	mux.HandleFunc("GET /payment-intents/{id}/escrow", f.getEscrow)
	mux.HandleFunc("POST /payment-intents/{id}/escrow/delivery-proof", f.submitProof)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return f, gateway.New(srv.URL, "test-key")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeGateway) createIntent(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	hook := f.onCreate
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if meta, ok := body["metadata"].(map[string]any); ok {
		if user, _ := meta["refundUser"].(string); f.rejectRefundFor[user] {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": map[string]string{"message": "destination rejected"}})
			return
		}
	}

	f.nextID++
	id := fmt.Sprintf("pi_gen_%d", f.nextID)
	f.created = append(f.created, body)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     id,
		"status": gateway.StatusCreated,
		"data":   map[string]string{"paymentUrl": "https://pay.example/" + id},
	})
}

func (f *fakeGateway) getIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.statuses[id]
	if len(seq) == 0 {
		seq = []string{gateway.StatusProcessing}
	}
	i := f.polls[id]
	if i >= len(seq) {
		i = len(seq) - 1
	}
	f.polls[id]++

	resp := map[string]any{"id": id, "status": seq[i]}
	if meta, ok := f.metadata[id]; ok {
		resp["metadata"] = meta
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeGateway) getEscrow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.escrowCalls[id]++
	if f.escrowMisses[id] < 0 || f.escrowCalls[id] <= f.escrowMisses[id] {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "escrow not found"})
		return
	}
	amount, ok := f.escrowAmounts[id]
	if !ok {
		amount = "0"
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"buyerAddress": "0xbuyer", "amount": amount}})
}

func (f *fakeGateway) submitProof(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var proof gateway.Proof
	if err := json.NewDecoder(r.Body).Decode(&proof); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.rejectProof[id] {
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "proof service down"})
		return
	}
	f.proofs[id] = proof
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{"id": "proof_" + id}})
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeGateway) proof(intentID string) (gateway.Proof, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proofs[intentID]
	return p, ok
}

func (f *fakeGateway) pollCount(intentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls[intentID]
}

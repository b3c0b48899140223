package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createUser(t *testing.T, store *Store, name string) *models.User {
	t.Helper()
	user := models.NewUser(name+"@example.com", name, "")
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", name, err)
	}
	return user
}

// seedEvent creates an event organized by the first user with one empty basket.
func seedEvent(t *testing.T, store *Store, users ...*models.User) *models.Event {
	t.Helper()
	limit := decimal.NewFromInt(100)
	event := &models.Event{
		Name:      "Beach trip",
		CreatedBy: users[0].ID,
		Categories: []models.Category{
			{Name: "Food", SpendingLimit: &limit},
		},
	}
	for i, u := range users {
		role := models.RoleParticipant
		if i == 0 {
			role = models.RoleOrganizer
		}
		event.Participants = append(event.Participants, models.Participant{UserID: u.ID, Role: role})
	}
	if err := store.CreateEvent(context.Background(), event); err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	return event
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		query  string
		want   string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		s := &Store{driver: tt.driver}
		if got := s.rebind(tt.query); got != tt.want {
			t.Errorf("rebind(%q) with %s = %q, want %q", tt.query, tt.driver, got, tt.want)
		}
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")

	t.Run("duplicate email is rejected", func(t *testing.T) {
		dup := models.NewUser(alice.Email, "Other", "")
		err := store.CreateUser(ctx, dup)
		if !errors.Is(err, storage.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("lookup by email and id", func(t *testing.T) {
		byEmail, err := store.GetUserByEmail(ctx, alice.Email)
		if err != nil {
			t.Fatalf("GetUserByEmail failed: %v", err)
		}
		if byEmail.ID != alice.ID {
			t.Errorf("ID mismatch: got %s, want %s", byEmail.ID, alice.ID)
		}

		byID, err := store.GetUserByID(ctx, alice.ID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if byID.DisplayName != "alice" {
			t.Errorf("DisplayName = %s, want alice", byID.DisplayName)
		}
	})

	t.Run("missing user is not found", func(t *testing.T) {
		_, err := store.GetUserByID(ctx, "nobody")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetUsersByIDs omits unknown ids", func(t *testing.T) {
		bob := createUser(t, store, "bob")
		users, err := store.GetUsersByIDs(ctx, []string{alice.ID, bob.ID, "ghost"})
		if err != nil {
			t.Fatalf("GetUsersByIDs failed: %v", err)
		}
		if len(users) != 2 {
			t.Errorf("expected 2 users, got %d", len(users))
		}
	})

	t.Run("EnsureUser is idempotent", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := store.EnsureUser(ctx, models.VendorUser()); err != nil {
				t.Fatalf("EnsureUser failed: %v", err)
			}
		}
		vendor, err := store.GetUserByID(ctx, models.VendorUserID)
		if err != nil {
			t.Fatalf("GetUserByID failed: %v", err)
		}
		if vendor.DisplayName != "External Vendor" {
			t.Errorf("DisplayName = %s, want External Vendor", vendor.DisplayName)
		}
	})
}

func TestGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	carol := createUser(t, store, "carol")

	group := &models.Group{
		Name: "Flatmates",
		Members: []models.GroupMember{
			{UserID: alice.ID, Role: models.GroupRoleAdmin},
			{UserID: bob.ID},
		},
	}
	if err := store.CreateGroup(ctx, group); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if group.ID == "" {
		t.Fatal("Expected group ID to be generated")
	}

	t.Run("AddGroupMembers ignores existing members", func(t *testing.T) {
		err := store.AddGroupMembers(ctx, group.ID, []models.GroupMember{{UserID: bob.ID}, {UserID: carol.ID}})
		if err != nil {
			t.Fatalf("AddGroupMembers failed: %v", err)
		}

		members, err := store.ListGroupUsers(ctx, group.ID)
		if err != nil {
			t.Fatalf("ListGroupUsers failed: %v", err)
		}
		if len(members) != 3 {
			t.Fatalf("expected 3 members, got %d", len(members))
		}
		for _, m := range members {
			if m.User == nil {
				t.Errorf("member %s has no user record", m.UserID)
			}
			if m.UserID == alice.ID && m.Role != models.GroupRoleAdmin {
				t.Errorf("alice role = %s, want ADMIN", m.Role)
			}
		}
	})

	t.Run("unknown group", func(t *testing.T) {
		_, err := store.GetGroup(ctx, "missing")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		err = store.AddGroupMembers(ctx, "missing", []models.GroupMember{{UserID: alice.ID}})
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	mallory := createUser(t, store, "mallory")
	event := seedEvent(t, store, alice, bob)
	foodID := event.Categories[0].ID

	t.Run("GetEvent loads nested state", func(t *testing.T) {
		got, err := store.GetEvent(ctx, event.ID)
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		if got.Status != models.EventOpen {
			t.Errorf("Status = %s, want OPEN", got.Status)
		}
		if len(got.Participants) != 2 {
			t.Errorf("expected 2 participants, got %d", len(got.Participants))
		}
		if p := got.Participant(alice.ID); p == nil || p.Role != models.RoleOrganizer {
			t.Errorf("expected alice to be organizer, got %+v", p)
		}
		if len(got.Categories) != 1 || got.Categories[0].SpendingLimit == nil {
			t.Fatalf("expected one basket with a limit, got %+v", got.Categories)
		}
		if !got.Categories[0].SpendingLimit.Equal(dec("100")) {
			t.Errorf("SpendingLimit = %s, want 100", got.Categories[0].SpendingLimit)
		}
	})

	t.Run("JOIN twice yields one membership", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			if err := store.JoinCategory(ctx, event.ID, foodID, bob.ID); err != nil {
				t.Fatalf("JoinCategory failed: %v", err)
			}
		}
		got, _ := store.GetEvent(ctx, event.ID)
		if n := len(got.Categories[0].Members); n != 1 {
			t.Errorf("expected 1 member, got %d", n)
		}
	})

	t.Run("non participant cannot join", func(t *testing.T) {
		err := store.JoinCategory(ctx, event.ID, foodID, mallory.ID)
		if !errors.Is(err, storage.ErrNotParticipant) {
			t.Errorf("expected ErrNotParticipant, got %v", err)
		}
	})

	t.Run("basket of another event is not found", func(t *testing.T) {
		other := seedEvent(t, store, alice)
		err := store.JoinCategory(ctx, event.ID, other.Categories[0].ID, alice.ID)
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("LEAVE when not a member is a no-op", func(t *testing.T) {
		if err := store.LeaveCategory(ctx, event.ID, foodID, alice.ID); err != nil {
			t.Fatalf("LeaveCategory failed: %v", err)
		}
		got, _ := store.GetEvent(ctx, event.ID)
		if n := len(got.Categories[0].Members); n != 1 {
			t.Errorf("expected membership to be unchanged, got %d members", n)
		}
	})

	t.Run("ListEventsForUser is newest first", func(t *testing.T) {
		later := &models.Event{
			Name:         "Later",
			CreatedBy:    bob.ID,
			CreatedAt:    time.Now().Add(time.Hour).Unix(),
			Participants: []models.Participant{{UserID: bob.ID, Role: models.RoleOrganizer}},
		}
		if err := store.CreateEvent(ctx, later); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}

		events, err := store.ListEventsForUser(ctx, bob.ID)
		if err != nil {
			t.Fatalf("ListEventsForUser failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].ID != later.ID {
			t.Errorf("expected newest event first, got %s", events[0].Name)
		}

		none, err := store.ListEventsForUser(ctx, mallory.ID)
		if err != nil {
			t.Fatalf("ListEventsForUser failed: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("expected no events for mallory, got %d", len(none))
		}
	})

	t.Run("DeleteEvent cascades", func(t *testing.T) {
		_, err := store.RecordContribution(ctx, &models.Transaction{
			Amount: dec("10"), UserID: bob.ID, EventID: event.ID, CategoryID: foodID,
			TransactionRef: "DEPOSIT_1", Verified: true,
		})
		if err != nil {
			t.Fatalf("RecordContribution failed: %v", err)
		}

		if err := store.DeleteEvent(ctx, event.ID); err != nil {
			t.Fatalf("DeleteEvent failed: %v", err)
		}
		if _, err := store.GetEvent(ctx, event.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		txs, err := store.ListTransactions(ctx, event.ID)
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(txs) != 0 {
			t.Errorf("expected transactions to be deleted, got %d", len(txs))
		}
		if err := store.DeleteEvent(ctx, event.ID); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	event := seedEvent(t, store, alice, bob)
	foodID := event.Categories[0].ID

	basketTotal := func(t *testing.T) (decimal.Decimal, decimal.Decimal) {
		t.Helper()
		got, err := store.GetEvent(ctx, event.ID)
		if err != nil {
			t.Fatalf("GetEvent failed: %v", err)
		}
		return got.Categories[0].TotalPooled, got.TotalPooled
	}

	t.Run("contribution credits basket and event once", func(t *testing.T) {
		contribution := &models.Transaction{
			Amount: dec("50"), UserID: alice.ID, EventID: event.ID, CategoryID: foodID,
			TransactionRef: "proof-1", Verified: true, IntentID: "pi_1",
		}
		recorded, err := store.RecordContribution(ctx, contribution)
		if err != nil {
			t.Fatalf("RecordContribution failed: %v", err)
		}
		if !recorded {
			t.Fatal("expected first contribution to be recorded")
		}

		again := *contribution
		again.ID = ""
		recorded, err = store.RecordContribution(ctx, &again)
		if err != nil {
			t.Fatalf("RecordContribution retry failed: %v", err)
		}
		if recorded {
			t.Error("expected duplicate intent to be ignored")
		}

		basket, total := basketTotal(t)
		if !basket.Equal(dec("50")) || !total.Equal(dec("50")) {
			t.Errorf("basket=%s event=%s, want 50/50", basket, total)
		}
	})

	t.Run("vendor payment debits basket", func(t *testing.T) {
		cat, err := store.PayVendor(ctx, event.ID, foodID, dec("30"), "VENDOR_PAY_1")
		if err != nil {
			t.Fatalf("PayVendor failed: %v", err)
		}
		if !cat.TotalPooled.Equal(dec("20")) {
			t.Errorf("returned basket total = %s, want 20", cat.TotalPooled)
		}

		basket, total := basketTotal(t)
		if !basket.Equal(dec("20")) || !total.Equal(dec("20")) {
			t.Errorf("basket=%s event=%s, want 20/20", basket, total)
		}

		txs, _ := store.ListTransactions(ctx, event.ID)
		var found bool
		for _, tx := range txs {
			if tx.UserID == models.VendorUserID {
				found = true
				if !tx.Amount.Equal(dec("-30")) || tx.Status != models.TxSuccess {
					t.Errorf("vendor tx = %s %s, want -30 SUCCESS", tx.Amount, tx.Status)
				}
				if tx.UserName != "External Vendor" {
					t.Errorf("vendor name = %q", tx.UserName)
				}
			}
		}
		if !found {
			t.Error("expected a vendor transaction")
		}
	})

	t.Run("vendor payment beyond balance is rejected", func(t *testing.T) {
		_, err := store.PayVendor(ctx, event.ID, foodID, dec("20.01"), "VENDOR_PAY_2")
		if !errors.Is(err, storage.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
		basket, _ := basketTotal(t)
		if !basket.Equal(dec("20")) {
			t.Errorf("basket changed after failed payment: %s", basket)
		}
	})

	t.Run("unverified placeholder is promoted", func(t *testing.T) {
		_, err := store.RecordContribution(ctx, &models.Transaction{
			Amount: dec("5"), UserID: bob.ID, EventID: event.ID, CategoryID: foodID,
			TransactionRef: "PENDING_PROOF_pi_2", IntentID: "pi_2",
		})
		if err != nil {
			t.Fatalf("RecordContribution failed: %v", err)
		}

		pending, err := store.ListUnverifiedTransactions(ctx, 10)
		if err != nil {
			t.Fatalf("ListUnverifiedTransactions failed: %v", err)
		}
		if len(pending) != 1 || pending[0].IntentID != "pi_2" {
			t.Fatalf("expected pi_2 to be unverified, got %+v", pending)
		}

		if err := store.PromoteTransactionRef(ctx, pending[0].ID, "proof-2"); err != nil {
			t.Fatalf("PromoteTransactionRef failed: %v", err)
		}
		if err := store.PromoteTransactionRef(ctx, pending[0].ID, "proof-3"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound promoting twice, got %v", err)
		}

		pending, _ = store.ListUnverifiedTransactions(ctx, 10)
		if len(pending) != 0 {
			t.Errorf("expected no unverified transactions, got %d", len(pending))
		}
	})

	t.Run("settlement lock excludes a second settler", func(t *testing.T) {
		if err := store.AcquireSettlementLock(ctx, event.ID, time.Hour); err != nil {
			t.Fatalf("AcquireSettlementLock failed: %v", err)
		}
		err := store.AcquireSettlementLock(ctx, event.ID, time.Hour)
		if !errors.Is(err, storage.ErrSettlementInProgress) {
			t.Errorf("expected ErrSettlementInProgress, got %v", err)
		}

		_, err = store.RecordContribution(ctx, &models.Transaction{
			Amount: dec("1"), UserID: bob.ID, EventID: event.ID, CategoryID: foodID, TransactionRef: "DEPOSIT_2",
		})
		if !errors.Is(err, storage.ErrSettlementInProgress) {
			t.Errorf("expected deposit to be blocked while settling, got %v", err)
		}

		if err := store.ReleaseSettlementLock(ctx, event.ID); err != nil {
			t.Fatalf("ReleaseSettlementLock failed: %v", err)
		}
		if err := store.AcquireSettlementLock(ctx, event.ID, time.Hour); err != nil {
			t.Fatalf("AcquireSettlementLock after release failed: %v", err)
		}
	})

	t.Run("ApplyRefunds rejects debits that do not match refunds", func(t *testing.T) {
		refunds := []models.Transaction{{Amount: dec("-12.50"), UserID: alice.ID, TransactionRef: "proof-r0"}}
		err := store.ApplyRefunds(ctx, event.ID, refunds, []storage.BasketDebit{{CategoryID: foodID, Amount: dec("25")}})
		if err == nil {
			t.Fatal("expected mismatched debits to be rejected")
		}
		basket, _ := basketTotal(t)
		if !basket.Equal(dec("25")) {
			t.Errorf("basket changed after rejected refunds: %s", basket)
		}
	})

	t.Run("ApplyRefunds debits baskets and closes event", func(t *testing.T) {
		// Credited after the refunds were planned.
		if _, err := store.RecordContribution(ctx, &models.Transaction{
			Amount: dec("8"), UserID: bob.ID, EventID: event.ID, CategoryID: foodID,
			TransactionRef: "proof-late", Verified: true, IntentID: "pi_late",
		}); err != nil {
			t.Fatalf("RecordContribution while settling failed: %v", err)
		}

		refunds := []models.Transaction{
			{Amount: dec("-12.50"), UserID: alice.ID, TransactionRef: "proof-r1", Verified: true, IntentID: "pi_r1"},
			{Amount: dec("-12.50"), UserID: bob.ID, TransactionRef: "PENDING_PROOF_pi_r2", IntentID: "pi_r2"},
		}
		debits := []storage.BasketDebit{{CategoryID: foodID, Amount: dec("25")}}
		if err := store.ApplyRefunds(ctx, event.ID, refunds, debits); err != nil {
			t.Fatalf("ApplyRefunds failed: %v", err)
		}

		got, _ := store.GetEvent(ctx, event.ID)
		if got.Status != models.EventClosed {
			t.Errorf("Status = %s, want CLOSED", got.Status)
		}
		if !got.TotalPooled.Equal(dec("8")) || !got.Categories[0].TotalPooled.Equal(dec("8")) {
			t.Errorf("expected the late 8 to remain, got event=%s basket=%s", got.TotalPooled, got.Categories[0].TotalPooled)
		}

		err := store.AcquireSettlementLock(ctx, event.ID, time.Hour)
		if !errors.Is(err, storage.ErrEventClosed) {
			t.Errorf("expected ErrEventClosed, got %v", err)
		}
		_, err = store.PayVendor(ctx, event.ID, foodID, dec("1"), "VENDOR_PAY_3")
		if !errors.Is(err, storage.ErrEventClosed) {
			t.Errorf("expected ErrEventClosed, got %v", err)
		}
	})
}

func TestSettlementLockTakeover(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	event := seedEvent(t, store, alice)

	if err := store.AcquireSettlementLock(ctx, event.ID, time.Hour); err != nil {
		t.Fatalf("AcquireSettlementLock failed: %v", err)
	}

	// Age the lock past its TTL.
	if _, err := store.db.ExecContext(ctx,
		"UPDATE events SET settling_since = ? WHERE id = ?",
		time.Now().Add(-2*time.Hour).Unix(), event.ID,
	); err != nil {
		t.Fatalf("failed to age lock: %v", err)
	}

	if err := store.AcquireSettlementLock(ctx, event.ID, time.Hour); err != nil {
		t.Errorf("expected stale lock to be taken over, got %v", err)
	}
	if err := store.AcquireSettlementLock(ctx, event.ID, 0); !errors.Is(err, storage.ErrSettlementInProgress) {
		t.Errorf("expected fresh lock to hold, got %v", err)
	}
}

func TestJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, store, "alice")
	event := seedEvent(t, store, alice)

	job := &models.PaymentJob{
		IntentID:   "pi_1",
		Kind:       models.JobContribution,
		UserID:     alice.ID,
		EventID:    event.ID,
		CategoryID: event.Categories[0].ID,
		Amount:     dec("25"),
	}

	created, err := store.CreateJob(ctx, job)
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if !created || job.State != models.JobCreated {
		t.Fatalf("expected new CREATED job, got created=%v state=%s", created, job.State)
	}

	created, err = store.CreateJob(ctx, &models.PaymentJob{IntentID: "pi_1", Kind: models.JobContribution, EventID: event.ID})
	if err != nil {
		t.Fatalf("CreateJob retry failed: %v", err)
	}
	if created {
		t.Error("expected duplicate job to be ignored")
	}

	active, err := store.ListActiveJobs(ctx)
	if err != nil {
		t.Fatalf("ListActiveJobs failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected 1 active job, got %d", len(active))
	}

	job.State = models.JobRecorded
	job.TransactionRef = "proof-1"
	job.Verified = true
	job.Attempts = 3
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}

	got, err := store.GetJob(ctx, "pi_1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.State != models.JobRecorded || !got.Verified || got.Attempts != 3 || !got.Amount.Equal(dec("25")) {
		t.Errorf("unexpected job: %+v", got)
	}

	active, _ = store.ListActiveJobs(ctx)
	if len(active) != 0 {
		t.Errorf("expected no active jobs, got %d", len(active))
	}

	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReceipts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveReceipt(ctx, "pi_1", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("SaveReceipt failed: %v", err)
	}
	if err := store.SaveReceipt(ctx, "pi_1", []byte(`{"a":2}`)); err != nil {
		t.Fatalf("SaveReceipt retry failed: %v", err)
	}

	body, err := store.GetReceipt(ctx, "pi_1")
	if err != nil {
		t.Fatalf("GetReceipt failed: %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Errorf("body = %s, want the first receipt", body)
	}

	if _, err := store.GetReceipt(ctx, "pi_2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

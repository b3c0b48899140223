package calculator

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func basket(id string, total string, members ...string) models.Category {
	cat := models.Category{
		ID:          id,
		Name:        id,
		RuleType:    models.RuleEqualSplit,
		TotalPooled: d(total),
	}
	for _, m := range members {
		cat.Members = append(cat.Members, models.CategoryMember{UserID: m, CategoryID: id})
	}
	return cat
}

func participants(names map[string]string) []models.Participant {
	var ps []models.Participant
	for id, name := range names {
		ps = append(ps, models.Participant{
			UserID: id,
			Role:   models.RoleParticipant,
			User:   &models.User{ID: id, DisplayName: name},
		})
	}
	return ps
}

func refundFor(plan SettlementPlan, userID string) (RefundLine, bool) {
	for _, r := range plan.Refunds {
		if r.UserID == userID {
			return r, true
		}
	}
	return RefundLine{}, false
}

func TestSplitEqually(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		n      int
		want   []string
	}{
		{"even split", "20", 2, []string{"10", "10"}},
		{"remainder to first shares", "20", 3, []string{"6.67", "6.67", "6.66"}},
		{"single cent", "0.01", 3, []string{"0.01", "0", "0"}},
		{"sub-cent residue dropped", "10.005", 2, []string{"5", "5"}},
		{"zero members", "10", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitEqually(d(tt.amount), tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("SplitEqually(%s, %d) returned %d shares, want %d", tt.amount, tt.n, len(got), len(tt.want))
			}
			for i := range got {
				if !got[i].Equal(d(tt.want[i])) {
					t.Errorf("share %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlanSettlement(t *testing.T) {
	tests := []struct {
		name         string
		event        *models.Event
		txs          []models.Transaction
		validateFunc func(t *testing.T, plan SettlementPlan)
	}{
		{
			name: "single basket split between two members",
			event: &models.Event{
				ID:           "trip",
				Categories:   []models.Category{basket("food", "20", "alice", "bob")},
				Participants: participants(map[string]string{"alice": "Alice", "bob": "Bob"}),
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				if len(plan.Refunds) != 2 {
					t.Fatalf("expected 2 refunds, got %d", len(plan.Refunds))
				}
				for _, r := range plan.Refunds {
					if !r.Balance.Equal(d("10")) {
						t.Errorf("%s balance = %s, want 10", r.UserID, r.Balance)
					}
				}
				alice, _ := refundFor(plan, "alice")
				if alice.UserName != "Alice" {
					t.Errorf("alice name = %q, want Alice", alice.UserName)
				}
			},
		},
		{
			name: "user in several baskets accumulates shares",
			event: &models.Event{
				ID: "trip",
				Categories: []models.Category{
					basket("food", "30", "alice", "bob", "carol"),
					basket("fuel", "15", "alice"),
				},
				Participants: participants(map[string]string{"alice": "Alice", "bob": "Bob", "carol": "Carol"}),
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				alice, ok := refundFor(plan, "alice")
				if !ok {
					t.Fatal("expected a refund for alice")
				}
				if !alice.Balance.Equal(d("25")) {
					t.Errorf("alice balance = %s, want 25", alice.Balance)
				}
				bob, _ := refundFor(plan, "bob")
				if !bob.Balance.Equal(d("10")) {
					t.Errorf("bob balance = %s, want 10", bob.Balance)
				}
				if len(plan.Refunded) != 2 {
					t.Errorf("expected 2 refunded baskets, got %d", len(plan.Refunded))
				}
			},
		},
		{
			name: "basket without members is stranded",
			event: &models.Event{
				ID: "trip",
				Categories: []models.Category{
					basket("food", "20", "alice"),
					basket("tickets", "40"),
				},
				Participants: participants(map[string]string{"alice": "Alice", "bob": "Bob"}),
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				if len(plan.Stranded) != 1 || plan.Stranded[0].CategoryID != "tickets" {
					t.Fatalf("expected tickets to be stranded, got %+v", plan.Stranded)
				}
				if !plan.TotalRefund.Equal(d("20")) {
					t.Errorf("total refund = %s, want 20 (stranded money must not be refunded)", plan.TotalRefund)
				}
				if _, ok := refundFor(plan, "bob"); ok {
					t.Error("bob is in no basket and must not receive a refund")
				}
			},
		},
		{
			name: "dust baskets are not refunded",
			event: &models.Event{
				ID:         "trip",
				Categories: []models.Category{basket("food", "0.01", "alice", "bob"), basket("fuel", "0", "alice")},
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				if len(plan.Refunds) != 0 {
					t.Errorf("expected no refunds, got %d", len(plan.Refunds))
				}
				if len(plan.Dust) != 1 {
					t.Errorf("expected 1 dust basket, got %d", len(plan.Dust))
				}
			},
		},
		{
			name: "unknown user name falls back",
			event: &models.Event{
				ID:         "trip",
				Categories: []models.Category{basket("food", "5", "ghost")},
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				ghost, ok := refundFor(plan, "ghost")
				if !ok {
					t.Fatal("expected a refund for ghost")
				}
				if ghost.UserName != "Unknown" {
					t.Errorf("name = %q, want Unknown", ghost.UserName)
				}
			},
		},
		{
			name: "contributed is computed from transaction history",
			event: &models.Event{
				ID:           "trip",
				Categories:   []models.Category{basket("food", "20", "alice", "bob")},
				Participants: participants(map[string]string{"alice": "Alice", "bob": "Bob"}),
			},
			txs: []models.Transaction{
				{EventID: "trip", UserID: "alice", Amount: d("30"), Status: models.TxSuccess},
				{EventID: "trip", UserID: "alice", Amount: d("20"), Status: models.TxSuccess},
				{EventID: "trip", UserID: "bob", Amount: d("50"), Status: models.TxFailed},
				{EventID: "trip", UserID: "VENDOR", Amount: d("-30"), Status: models.TxSuccess},
				{EventID: "other", UserID: "bob", Amount: d("99"), Status: models.TxSuccess},
			},
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				alice, _ := refundFor(plan, "alice")
				if !alice.Contributed.Equal(d("50")) {
					t.Errorf("alice contributed = %s, want 50", alice.Contributed)
				}
				bob, _ := refundFor(plan, "bob")
				if !bob.Contributed.IsZero() {
					t.Errorf("bob contributed = %s, want 0", bob.Contributed)
				}
			},
		},
		{
			name:  "nil event yields empty plan",
			event: nil,
			validateFunc: func(t *testing.T, plan SettlementPlan) {
				if len(plan.Refunds) != 0 || !plan.TotalRefund.IsZero() {
					t.Errorf("expected empty plan, got %+v", plan)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanSettlement(tt.event, tt.txs)
			tt.validateFunc(t, plan)
		})
	}
}

func TestPlanSettlement_Conservation(t *testing.T) {
	balances := []string{"0.02", "0.05", "1", "10", "20", "33.33", "100", "101.01", "999.99"}
	memberSets := [][]string{
		{"a"},
		{"a", "b"},
		{"a", "b", "c"},
		{"a", "b", "c", "d", "e", "f", "g"},
	}

	for _, bal := range balances {
		for _, members := range memberSets {
			event := &models.Event{
				ID: "e",
				Categories: []models.Category{
					basket("x", bal, members...),
					basket("y", bal, members[:1]...),
				},
			}
			plan := PlanSettlement(event, nil)

			pooled := d(bal).Mul(decimal.NewFromInt(2))
			if plan.TotalRefund.GreaterThan(pooled) {
				t.Errorf("balance %s, %d members: refunds %s exceed pooled %s", bal, len(members), plan.TotalRefund, pooled)
			}

			// Shares of basket x are within a cent of r/k and sum to r.
			exact := d(bal).Div(decimal.NewFromInt(int64(len(members))))
			sum := decimal.Zero
			for _, share := range SplitEqually(d(bal), len(members)) {
				if share.Sub(exact).Abs().GreaterThanOrEqual(cent) {
					t.Errorf("balance %s, %d members: share %s too far from %s", bal, len(members), share, exact)
				}
				sum = sum.Add(share)
			}
			if !sum.Equal(d(bal)) {
				t.Errorf("balance %s, %d members: shares sum to %s", bal, len(members), sum)
			}
		}
	}
}

func TestPlanSettlement_Deterministic(t *testing.T) {
	event := &models.Event{
		ID:         "e",
		Categories: []models.Category{basket("x", "10", "c", "a", "b")},
	}

	first := PlanSettlement(event, nil)
	for i := 0; i < 20; i++ {
		again := PlanSettlement(event, nil)
		for j := range first.Refunds {
			if first.Refunds[j].UserID != again.Refunds[j].UserID || !first.Refunds[j].Balance.Equal(again.Refunds[j].Balance) {
				t.Fatalf("run %d differs: %+v vs %+v", i, first.Refunds, again.Refunds)
			}
		}
	}

	// Remainder cent goes to the lowest user id.
	a, _ := refundFor(first, "a")
	if !a.Balance.Equal(d("3.34")) {
		t.Errorf("a balance = %s, want 3.34", a.Balance)
	}
}

func TestSettlementPlan_Payable(t *testing.T) {
	plan := SettlementPlan{Refunds: []RefundLine{
		{UserID: "a", Balance: d("10")},
		{UserID: "b", Balance: d("0.01")},
	}}
	payable := plan.Payable()
	if len(payable) != 1 || payable[0].UserID != "a" {
		t.Errorf("Payable() = %+v, want only a", payable)
	}
}

func TestSettlementPlan_Debits(t *testing.T) {
	tests := []struct {
		name       string
		categories []models.Category
		want       map[string]string
	}{
		{
			name:       "whole basket paid out",
			categories: []models.Category{basket("food", "20", "alice", "bob")},
			want:       map[string]string{"food": "20"},
		},
		{
			name: "shares across baskets",
			categories: []models.Category{
				basket("food", "30", "alice", "bob", "carol"),
				basket("fuel", "15", "alice"),
			},
			want: map[string]string{"food": "30", "fuel": "15"},
		},
		{
			name:       "cent shares below threshold stay in basket",
			categories: []models.Category{basket("food", "0.03", "a", "b", "c", "d", "e")},
			want:       map[string]string{},
		},
		{
			name: "payable user keeps small share elsewhere",
			categories: []models.Category{
				basket("food", "20", "alice"),
				basket("tips", "0.02", "alice", "bob"),
			},
			want: map[string]string{"food": "20", "tips": "0.01"},
		},
		{
			name:       "stranded and dust baskets are never debited",
			categories: []models.Category{basket("tickets", "40"), basket("fuel", "0.01", "alice")},
			want:       map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanSettlement(&models.Event{ID: "e", Categories: tt.categories}, nil)
			debits := plan.Debits()
			if len(debits) != len(tt.want) {
				t.Fatalf("got %d debits, want %d: %+v", len(debits), len(tt.want), debits)
			}

			debited := decimal.Zero
			for _, debit := range debits {
				want, ok := tt.want[debit.CategoryID]
				if !ok {
					t.Errorf("unexpected debit of %s", debit.CategoryID)
					continue
				}
				if !debit.Balance.Equal(d(want)) {
					t.Errorf("%s debit = %s, want %s", debit.CategoryID, debit.Balance, want)
				}
				debited = debited.Add(debit.Balance)
			}

			paid := decimal.Zero
			for _, line := range plan.Payable() {
				paid = paid.Add(line.Balance)
			}
			if !debited.Equal(paid) {
				t.Errorf("debits sum to %s, payable refunds to %s", debited, paid)
			}
		})
	}
}

package calculator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
)

// unknownUserName is shown when a refunded user is not an event participant.
const unknownUserName = "Unknown"

// RefundLine is one user's share of the leftover basket balances.
type RefundLine struct {
	UserID   string
	UserName string

	// Contributed is the sum of the user's successful contributions to the event.
	Contributed decimal.Decimal

	// Balance is the total refund owed to the user, rounded to cents.
	Balance decimal.Decimal

	// Shares breaks Balance down by basket.
	Shares []BasketShare
}

// BasketShare is the part of a refund paid out of one basket.
type BasketShare struct {
	CategoryID string
	Amount     decimal.Decimal
}

// BasketBalance identifies a basket and the balance it held when the plan was computed.
type BasketBalance struct {
	CategoryID string
	Name       string
	Balance    decimal.Decimal
	Members    int
}

// SettlementPlan is the output of PlanSettlement.
type SettlementPlan struct {
	EventID string

	// Refunds has one line per user owed money, sorted by user ID.
	Refunds []RefundLine

	// Refunded lists the baskets whose balance is distributed by Refunds.
	Refunded []BasketBalance

	// Stranded lists baskets that hold money but have no members to refund it to.
	Stranded []BasketBalance

	// Dust lists baskets whose balance is too small to refund. It stays in the basket.
	Dust []BasketBalance

	// TotalRefund is the sum of all refund balances.
	TotalRefund decimal.Decimal
}

// Payable returns the refund lines with a balance above the settlement threshold.
func (p SettlementPlan) Payable() []RefundLine {
	var lines []RefundLine
	for _, r := range p.Refunds {
		if r.Balance.GreaterThan(cent) {
			lines = append(lines, r)
		}
	}
	return lines
}

// Debits returns how much of each refunded basket the payable refund lines pay
// out. Shares of users below the payout threshold stay in their basket.
func (p SettlementPlan) Debits() []BasketBalance {
	paid := make(map[string]decimal.Decimal)
	for _, line := range p.Payable() {
		for _, share := range line.Shares {
			paid[share.CategoryID] = paid[share.CategoryID].Add(share.Amount)
		}
	}

	var debits []BasketBalance
	for _, b := range p.Refunded {
		amount, ok := paid[b.CategoryID]
		if !ok || !amount.IsPositive() {
			continue
		}
		b.Balance = amount
		debits = append(debits, b)
	}
	return debits
}

// PlanSettlement computes how much each participant is refunded from leftover basket
// balances when an event closes out.
//
// Algorithm:
// - Baskets holding more than 0.01 are split equally across their current members
// - A user in several baskets accumulates one share per basket
// - Baskets with no members are reported as stranded and refund nothing
// - Baskets holding 0.01 or less are left alone
//
// The function performs no I/O and never mutates its input.
func PlanSettlement(event *models.Event, txs []models.Transaction) SettlementPlan {
	plan := SettlementPlan{TotalRefund: decimal.Zero}
	if event == nil {
		return plan
	}
	plan.EventID = event.ID

	refunds := make(map[string]decimal.Decimal)
	shares := make(map[string][]BasketShare)

	for _, cat := range event.Categories {
		balance := BasketBalance{
			CategoryID: cat.ID,
			Name:       cat.Name,
			Balance:    cat.TotalPooled,
			Members:    len(cat.Members),
		}

		if !cat.TotalPooled.GreaterThan(cent) {
			if cat.TotalPooled.IsPositive() {
				plan.Dust = append(plan.Dust, balance)
			}
			continue
		}

		if len(cat.Members) == 0 {
			plan.Stranded = append(plan.Stranded, balance)
			continue
		}

		memberIDs := make([]string, len(cat.Members))
		for i, m := range cat.Members {
			memberIDs[i] = m.UserID
		}
		memberIDs = sortedMemberIDs(memberIDs)

		split := SplitEqually(cat.TotalPooled, len(memberIDs))
		for i, userID := range memberIDs {
			refunds[userID] = refunds[userID].Add(split[i])
			if split[i].IsPositive() {
				shares[userID] = append(shares[userID], BasketShare{CategoryID: cat.ID, Amount: split[i]})
			}
		}
		plan.Refunded = append(plan.Refunded, balance)
	}

	contributed := contributionsByUser(event.ID, txs)

	for userID, amount := range refunds {
		line := RefundLine{
			UserID:      userID,
			UserName:    displayName(event, userID),
			Contributed: contributed[userID],
			Balance:     amount.Round(2),
			Shares:      shares[userID],
		}
		plan.Refunds = append(plan.Refunds, line)
		plan.TotalRefund = plan.TotalRefund.Add(line.Balance)
	}

	sort.Slice(plan.Refunds, func(i, j int) bool {
		return plan.Refunds[i].UserID < plan.Refunds[j].UserID
	})

	return plan
}

// contributionsByUser sums positive successful transactions per user.
func contributionsByUser(eventID string, txs []models.Transaction) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.EventID != eventID || tx.Status != models.TxSuccess || !tx.Amount.IsPositive() {
			continue
		}
		sums[tx.UserID] = sums[tx.UserID].Add(tx.Amount)
	}
	return sums
}

func displayName(event *models.Event, userID string) string {
	p := event.Participant(userID)
	if p == nil || p.User == nil || p.User.DisplayName == "" {
		return unknownUserName
	}
	return p.User.DisplayName
}

package calculator

import (
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
)

// BasketDue is a user's share of one basket's spending target.
type BasketDue struct {
	CategoryID string
	Name       string
	Share      decimal.Decimal
	Members    int
}

// DuesSummary is what a user is expected to contribute across the baskets they joined.
type DuesSummary struct {
	UserID      string
	Baskets     []BasketDue
	TotalDue    decimal.Decimal
	Contributed decimal.Decimal
	Outstanding decimal.Decimal
}

// Dues computes the user's cut of every basket they joined: the basket's spending limit
// split equally across its members. Baskets without a limit cost nothing.
func Dues(event *models.Event, txs []models.Transaction, userID string) DuesSummary {
	summary := DuesSummary{
		UserID:      userID,
		TotalDue:    decimal.Zero,
		Contributed: decimal.Zero,
		Outstanding: decimal.Zero,
	}
	if event == nil {
		return summary
	}

	for _, cat := range event.Categories {
		if !cat.HasMember(userID) {
			continue
		}

		due := BasketDue{
			CategoryID: cat.ID,
			Name:       cat.Name,
			Share:      decimal.Zero,
			Members:    len(cat.Members),
		}

		if cat.SpendingLimit != nil && cat.SpendingLimit.IsPositive() {
			memberIDs := make([]string, len(cat.Members))
			for i, m := range cat.Members {
				memberIDs[i] = m.UserID
			}
			memberIDs = sortedMemberIDs(memberIDs)
			shares := SplitEqually(*cat.SpendingLimit, len(memberIDs))
			for i, id := range memberIDs {
				if id == userID {
					due.Share = shares[i]
					break
				}
			}
		}

		summary.Baskets = append(summary.Baskets, due)
		summary.TotalDue = summary.TotalDue.Add(due.Share)
	}

	summary.Contributed = contributionsByUser(event.ID, txs)[userID].Round(2)

	outstanding := summary.TotalDue.Sub(summary.Contributed)
	if outstanding.IsPositive() {
		summary.Outstanding = outstanding
	}

	return summary
}

// EventProgress compares what has been raised with the sum of the basket targets.
type EventProgress struct {
	Goal    decimal.Decimal
	Raised  decimal.Decimal
	Percent float64
}

// Progress reports how far the event is towards its spending targets.
// Raised is always derived from the basket totals.
func Progress(event *models.Event) EventProgress {
	progress := EventProgress{Goal: decimal.Zero, Raised: decimal.Zero}
	if event == nil {
		return progress
	}

	for _, cat := range event.Categories {
		if cat.SpendingLimit != nil {
			progress.Goal = progress.Goal.Add(*cat.SpendingLimit)
		}
		progress.Raised = progress.Raised.Add(cat.TotalPooled)
	}

	if progress.Goal.IsPositive() {
		progress.Percent = progress.Raised.Div(progress.Goal).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return progress
}

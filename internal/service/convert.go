package service

import (
	"github.com/mmynk/cooper/internal/calculator"
	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/pipeline"
	"github.com/mmynk/cooper/pkg/api"
)

func toAPIUser(u *models.User) *api.User {
	if u == nil {
		return nil
	}
	return &api.User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

func toAPIGroupMembers(members []models.GroupMember) []api.GroupMember {
	out := make([]api.GroupMember, len(members))
	for i, m := range members {
		out[i] = api.GroupMember{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
		if m.User != nil {
			out[i].DisplayName = m.User.DisplayName
			out[i].Email = m.User.Email
		}
	}
	return out
}

func toAPIGroup(g *models.Group) *api.Group {
	return &api.Group{
		ID:        g.ID,
		Name:      g.Name,
		Members:   toAPIGroupMembers(g.Members),
		CreatedAt: g.CreatedAt,
	}
}

func toAPIEvent(e *models.Event, withProgress bool) *api.Event {
	names := make(map[string]string, len(e.Participants))
	participants := make([]api.Participant, len(e.Participants))
	for i, p := range e.Participants {
		participants[i] = api.Participant{UserID: p.UserID, Role: p.Role, JoinedAt: p.JoinedAt}
		if p.User != nil {
			participants[i].DisplayName = p.User.DisplayName
			participants[i].Email = p.User.Email
			names[p.UserID] = p.User.DisplayName
		}
	}

	categories := make([]api.Category, len(e.Categories))
	for i := range e.Categories {
		categories[i] = *toAPICategory(&e.Categories[i], names)
	}

	out := &api.Event{
		ID:           e.ID,
		Name:         e.Name,
		GroupID:      e.GroupID,
		TotalPooled:  e.TotalPooled.StringFixed(2),
		Status:       string(e.Status),
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		Categories:   categories,
		Participants: participants,
	}
	if withProgress {
		p := calculator.Progress(e)
		out.Progress = &api.Progress{
			Goal:    p.Goal.StringFixed(2),
			Raised:  p.Raised.StringFixed(2),
			Percent: p.Percent,
		}
	}
	return out
}

// toAPICategory converts a basket; names resolves member display names and may be nil.
func toAPICategory(c *models.Category, names map[string]string) *api.Category {
	out := &api.Category{
		ID:          c.ID,
		Name:        c.Name,
		RuleType:    string(c.RuleType),
		TotalPooled: c.TotalPooled.StringFixed(2),
		Members:     make([]api.CategoryMember, len(c.Members)),
	}
	if c.SpendingLimit != nil {
		out.SpendingLimit = c.SpendingLimit.StringFixed(2)
	}
	for i, m := range c.Members {
		out.Members[i] = api.CategoryMember{UserID: m.UserID, DisplayName: names[m.UserID], JoinedAt: m.JoinedAt}
	}
	return out
}

func toAPITransaction(t *models.Transaction) api.Transaction {
	return api.Transaction{
		ID:             t.ID,
		Amount:         t.Amount.StringFixed(2),
		UserID:         t.UserID,
		UserName:       t.UserName,
		CategoryID:     t.CategoryID,
		Status:         string(t.Status),
		TransactionRef: t.TransactionRef,
		Verified:       t.Verified,
		IntentID:       t.IntentID,
		CreatedAt:      t.CreatedAt,
	}
}

func toAPIBasketBalances(in []calculator.BasketBalance) []api.BasketBalance {
	out := make([]api.BasketBalance, len(in))
	for i, b := range in {
		out[i] = api.BasketBalance{
			CategoryID: b.CategoryID,
			Name:       b.Name,
			Balance:    b.Balance.StringFixed(2),
			Members:    b.Members,
		}
	}
	return out
}

func toAPIRefundOutcomes(in []pipeline.RefundOutcome) []api.RefundOutcome {
	out := make([]api.RefundOutcome, len(in))
	for i, o := range in {
		out[i] = api.RefundOutcome{
			UserID:         o.UserID,
			UserName:       o.UserName,
			Amount:         o.Amount.StringFixed(2),
			IntentID:       o.IntentID,
			TransactionRef: o.TransactionRef,
			Verified:       o.Verified,
			Error:          o.Error,
		}
	}
	return out
}

func toAPIJob(j *models.PaymentJob) *api.PipelineJob {
	return &api.PipelineJob{
		IntentID:       j.IntentID,
		State:          string(j.State),
		UserID:         j.UserID,
		EventID:        j.EventID,
		CategoryID:     j.CategoryID,
		Amount:         j.Amount.StringFixed(2),
		TransactionRef: j.TransactionRef,
		Verified:       j.Verified,
		Error:          j.Error,
		Attempts:       j.Attempts,
		UpdatedAt:      j.UpdatedAt,
	}
}

package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
)

// money formats an amount the way it is stored.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CreateEvent persists a new event with its participants and baskets.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	if event.Status == "" {
		event.Status = models.EventOpen
	}
	event.TotalPooled = decimal.Zero

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.exec(ctx, tx,
			`INSERT INTO events (id, name, group_id, total_pooled, status, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.Name, nullString(event.GroupID), money(event.TotalPooled),
			string(event.Status), event.CreatedBy, event.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}

		for i := range event.Participants {
			p := &event.Participants[i]
			p.EventID = event.ID
			if p.Role == "" {
				p.Role = models.RoleParticipant
			}
			if p.JoinedAt == 0 {
				p.JoinedAt = event.CreatedAt
			}
			if _, err := s.exec(ctx, tx,
				`INSERT INTO event_participants (event_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT (event_id, user_id) DO NOTHING`,
				event.ID, p.UserID, p.Role, p.JoinedAt,
			); err != nil {
				return fmt.Errorf("failed to insert participant %s: %w", p.UserID, err)
			}
		}

		for i := range event.Categories {
			cat := &event.Categories[i]
			if cat.ID == "" {
				cat.ID = uuid.New().String()
			}
			if cat.RuleType == "" {
				cat.RuleType = models.RuleEqualSplit
			}
			cat.EventID = event.ID
			cat.TotalPooled = decimal.Zero

			var limit sql.NullString
			if cat.SpendingLimit != nil {
				limit = sql.NullString{String: money(*cat.SpendingLimit), Valid: true}
			}
			if _, err := s.exec(ctx, tx,
				`INSERT INTO categories (id, event_id, name, spending_limit, rule_type, total_pooled, position)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				cat.ID, event.ID, cat.Name, limit, string(cat.RuleType), money(cat.TotalPooled), i,
			); err != nil {
				return fmt.Errorf("failed to insert category: %w", err)
			}

			for j := range cat.Members {
				m := &cat.Members[j]
				m.CategoryID = cat.ID
				if m.JoinedAt == 0 {
					m.JoinedAt = event.CreatedAt
				}
				if _, err := s.exec(ctx, tx,
					"INSERT INTO category_members (category_id, user_id, joined_at) VALUES (?, ?, ?)",
					cat.ID, m.UserID, m.JoinedAt,
				); err != nil {
					return fmt.Errorf("failed to insert category member: %w", err)
				}
			}
		}

		return nil
	})
}

// GetEvent retrieves an event with its baskets, basket members and participants.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.loadEvent(ctx, s.db, eventID)
}

// ListEventsForUser returns the events the user participates in, newest first.
func (s *Store) ListEventsForUser(ctx context.Context, userID string) ([]*models.Event, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT e.id FROM events e
		 JOIN event_participants p ON p.event_id = e.id
		 WHERE p.user_id = ?
		 ORDER BY e.created_at DESC, e.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	events := make([]*models.Event, 0, len(ids))
	for _, id := range ids {
		event, err := s.loadEvent(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *Store) loadEvent(ctx context.Context, q querier, eventID string) (*models.Event, error) {
	event := &models.Event{}
	var groupID sql.NullString
	var settlingSince sql.NullInt64
	var status string
	err := s.queryRow(ctx, q,
		`SELECT id, name, group_id, total_pooled, status, settling_since, created_by, created_at
		 FROM events WHERE id = ?`,
		eventID,
	).Scan(&event.ID, &event.Name, &groupID, &event.TotalPooled, &status, &settlingSince, &event.CreatedBy, &event.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	event.GroupID = groupID.String
	event.SettlingSince = settlingSince.Int64
	event.Status = models.EventStatus(status)

	categories, err := s.loadCategories(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	event.Categories = categories

	participants, err := s.loadParticipants(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	event.Participants = participants

	return event, nil
}

func (s *Store) loadCategories(ctx context.Context, q querier, eventID string) ([]models.Category, error) {
	rows, err := s.query(ctx, q,
		`SELECT id, event_id, name, spending_limit, rule_type, total_pooled
		 FROM categories WHERE event_id = ? ORDER BY position, id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}

	var categories []models.Category
	index := make(map[string]int)
	for rows.Next() {
		var cat models.Category
		var limit decimal.NullDecimal
		var rule string
		if err := rows.Scan(&cat.ID, &cat.EventID, &cat.Name, &limit, &rule, &cat.TotalPooled); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		if limit.Valid {
			l := limit.Decimal
			cat.SpendingLimit = &l
		}
		cat.RuleType = models.RuleType(rule)
		index[cat.ID] = len(categories)
		categories = append(categories, cat)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	memberRows, err := s.query(ctx, q,
		`SELECT cm.category_id, cm.user_id, cm.joined_at
		 FROM category_members cm
		 JOIN categories c ON c.id = cm.category_id
		 WHERE c.event_id = ?
		 ORDER BY cm.joined_at, cm.user_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get category members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		var m models.CategoryMember
		if err := memberRows.Scan(&m.CategoryID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category member: %w", err)
		}
		if i, ok := index[m.CategoryID]; ok {
			categories[i].Members = append(categories[i].Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category members: %w", err)
	}

	return categories, nil
}

func (s *Store) loadParticipants(ctx context.Context, q querier, eventID string) ([]models.Participant, error) {
	rows, err := s.query(ctx, q,
		`SELECT p.event_id, p.user_id, p.role, p.joined_at,
		        u.id, u.email, u.display_name, u.password_hash, u.verified_at, u.created_at, u.updated_at
		 FROM event_participants p
		 JOIN users u ON u.id = p.user_id
		 WHERE p.event_id = ?
		 ORDER BY p.joined_at, p.user_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		var verifiedAt sql.NullInt64
		user := &models.User{}
		if err := rows.Scan(&p.EventID, &p.UserID, &p.Role, &p.JoinedAt,
			&user.ID, &user.Email, &user.DisplayName, &user.PasswordHash, &verifiedAt, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		user.VerifiedAt = verifiedAt.Int64
		p.User = user
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

// DeleteEvent removes an event and everything it owns in one transaction.
func (s *Store) DeleteEvent(ctx context.Context, eventID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := s.queryRow(ctx, tx, "SELECT 1 FROM events WHERE id = ?", eventID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check event existence: %w", err)
		}

		steps := []struct {
			what  string
			query string
		}{
			{"receipts", "DELETE FROM receipts WHERE intent_id IN (SELECT intent_id FROM transactions WHERE event_id = ?)"},
			{"receipts", "DELETE FROM receipts WHERE intent_id IN (SELECT intent_id FROM payment_jobs WHERE event_id = ?)"},
			{"transactions", "DELETE FROM transactions WHERE event_id = ?"},
			{"category members", "DELETE FROM category_members WHERE category_id IN (SELECT id FROM categories WHERE event_id = ?)"},
			{"categories", "DELETE FROM categories WHERE event_id = ?"},
			{"participants", "DELETE FROM event_participants WHERE event_id = ?"},
			{"payment jobs", "DELETE FROM payment_jobs WHERE event_id = ?"},
			{"event", "DELETE FROM events WHERE id = ?"},
		}
		for _, step := range steps {
			if _, err := s.exec(ctx, tx, step.query, eventID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", step.what, err)
			}
		}
		return nil
	})
}

// JoinCategory adds the user to a basket of an open event.
func (s *Store) JoinCategory(ctx context.Context, eventID, categoryID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkEventOpen(ctx, tx, eventID); err != nil {
			return err
		}
		if err := s.checkCategory(ctx, tx, eventID, categoryID); err != nil {
			return err
		}

		var exists int
		err := s.queryRow(ctx, tx,
			"SELECT 1 FROM event_participants WHERE event_id = ? AND user_id = ?",
			eventID, userID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s in event %s: %w", userID, eventID, storage.ErrNotParticipant)
		}
		if err != nil {
			return fmt.Errorf("failed to check participant: %w", err)
		}

		if _, err := s.exec(ctx, tx,
			`INSERT INTO category_members (category_id, user_id, joined_at) VALUES (?, ?, ?)
			 ON CONFLICT (category_id, user_id) DO NOTHING`,
			categoryID, userID, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("failed to join category: %w", err)
		}
		return nil
	})
}

// LeaveCategory removes the user from a basket of an open event.
func (s *Store) LeaveCategory(ctx context.Context, eventID, categoryID, userID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkEventOpen(ctx, tx, eventID); err != nil {
			return err
		}
		if err := s.checkCategory(ctx, tx, eventID, categoryID); err != nil {
			return err
		}

		if _, err := s.exec(ctx, tx,
			"DELETE FROM category_members WHERE category_id = ? AND user_id = ?",
			categoryID, userID,
		); err != nil {
			return fmt.Errorf("failed to leave category: %w", err)
		}
		return nil
	})
}

// checkEventOpen returns ErrNotFound, ErrEventClosed or ErrSettlementInProgress
// unless the event accepts writes.
func (s *Store) checkEventOpen(ctx context.Context, q querier, eventID string) error {
	var status string
	err := s.queryRow(ctx, q, "SELECT status FROM events WHERE id = ?"+s.forUpdate(), eventID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get event status: %w", err)
	}

	switch models.EventStatus(status) {
	case models.EventOpen:
		return nil
	case models.EventSettling:
		return fmt.Errorf("event %s: %w", eventID, storage.ErrSettlementInProgress)
	default:
		return fmt.Errorf("event %s: %w", eventID, storage.ErrEventClosed)
	}
}

func (s *Store) checkCategory(ctx context.Context, q querier, eventID, categoryID string) error {
	var exists int
	err := s.queryRow(ctx, q,
		"SELECT 1 FROM categories WHERE id = ? AND event_id = ?",
		categoryID, eventID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("category %s in event %s: %w", categoryID, eventID, storage.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	return nil
}

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

const transactionColumns = "id, amount, user_id, event_id, category_id, status, transaction_ref, verified, intent_id, created_at"

const defaultUnverifiedLimit = 100

// RecordContribution appends a contribution and credits its basket.
// Manual deposits require an open event. Gateway-backed contributions are
// recorded whatever the event state, since the money has already moved.
func (s *Store) RecordContribution(ctx context.Context, t *models.Transaction) (bool, error) {
	if !t.Amount.IsPositive() {
		return false, fmt.Errorf("contribution amount must be positive, got %s", t.Amount)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	if t.Status == "" {
		t.Status = models.TxSuccess
	}

	recorded := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if t.IntentID == "" {
			if err := s.checkEventOpen(ctx, tx, t.EventID); err != nil {
				return err
			}
		}
		if err := s.checkCategory(ctx, tx, t.EventID, t.CategoryID); err != nil {
			return err
		}

		res, err := s.exec(ctx, tx,
			"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (intent_id) DO NOTHING",
			transactionArgs(t)...,
		)
		if err != nil {
			return fmt.Errorf("failed to insert contribution: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := s.adjustCategory(ctx, tx, t.EventID, t.CategoryID, t.Amount); err != nil {
			return err
		}
		if err := s.recomputeEventTotal(ctx, tx, t.EventID); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return recorded, nil
}

// PayVendor pays a vendor out of a basket.
func (s *Store) PayVendor(ctx context.Context, eventID, categoryID string, amount decimal.Decimal, ref string) (*models.Category, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("vendor payment must be positive, got %s", amount)
	}

	var updated *models.Category
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkEventOpen(ctx, tx, eventID); err != nil {
			return err
		}
		if err := s.ensureUser(ctx, tx, models.VendorUser()); err != nil {
			return err
		}
		if _, err := s.adjustCategory(ctx, tx, eventID, categoryID, amount.Neg()); err != nil {
			return err
		}

		payout := &models.Transaction{
			ID:             uuid.New().String(),
			Amount:         amount.Neg(),
			UserID:         models.VendorUserID,
			EventID:        eventID,
			CategoryID:     categoryID,
			Status:         models.TxSuccess,
			TransactionRef: ref,
			Verified:       true,
			CreatedAt:      time.Now().Unix(),
		}
		if err := s.insertTransaction(ctx, tx, payout); err != nil {
			return err
		}
		if err := s.recomputeEventTotal(ctx, tx, eventID); err != nil {
			return err
		}

		categories, err := s.loadCategories(ctx, tx, eventID)
		if err != nil {
			return err
		}
		for i := range categories {
			if categories[i].ID == categoryID {
				updated = &categories[i]
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AcquireSettlementLock moves the event from OPEN to SETTLING with a conditional
// update, so only one caller can win.
func (s *Store) AcquireSettlementLock(ctx context.Context, eventID string, staleAfter time.Duration) error {
	now := time.Now()
	var staleBefore int64
	if staleAfter > 0 {
		staleBefore = now.Add(-staleAfter).Unix()
	}

	res, err := s.exec(ctx, s.db,
		`UPDATE events SET status = ?, settling_since = ?
		 WHERE id = ? AND (status = ? OR (status = ? AND settling_since < ?))`,
		string(models.EventSettling), now.Unix(),
		eventID, string(models.EventOpen), string(models.EventSettling), staleBefore,
	)
	if err != nil {
		return fmt.Errorf("failed to acquire settlement lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// The event is missing, closed, or held by someone else.
	if err := s.checkEventOpen(ctx, s.db, eventID); err != nil {
		return err
	}
	return fmt.Errorf("event %s: %w", eventID, storage.ErrSettlementInProgress)
}

// ReleaseSettlementLock reopens an event that is still settling.
func (s *Store) ReleaseSettlementLock(ctx context.Context, eventID string) error {
	_, err := s.exec(ctx, s.db,
		"UPDATE events SET status = ?, settling_since = NULL WHERE id = ? AND status = ?",
		string(models.EventOpen), eventID, string(models.EventSettling),
	)
	if err != nil {
		return fmt.Errorf("failed to release settlement lock: %w", err)
	}
	return nil
}

// ApplyRefunds records the refunds, debits the refunded baskets by what was
// paid out of them and closes the event. Money credited after the refunds were
// planned stays in its basket.
func (s *Store) ApplyRefunds(ctx context.Context, eventID string, refunds []models.Transaction, debits []storage.BasketDebit) error {
	refunded, debited := decimal.Zero, decimal.Zero
	for _, r := range refunds {
		refunded = refunded.Add(r.Amount.Abs())
	}
	for _, d := range debits {
		if !d.Amount.IsPositive() {
			return fmt.Errorf("debit of category %s must be positive, got %s", d.CategoryID, d.Amount)
		}
		debited = debited.Add(d.Amount)
	}
	if !refunded.Equal(debited) {
		return fmt.Errorf("refunds total %s but baskets are debited %s", money(refunded), money(debited))
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := s.queryRow(ctx, tx, "SELECT status FROM events WHERE id = ?"+s.forUpdate(), eventID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("event %s: %w", eventID, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get event status: %w", err)
		}
		switch models.EventStatus(status) {
		case models.EventSettling:
		case models.EventClosed:
			return fmt.Errorf("event %s: %w", eventID, storage.ErrEventClosed)
		default:
			return fmt.Errorf("event %s is not locked for settlement", eventID)
		}

		now := time.Now().Unix()
		for i := range refunds {
			r := &refunds[i]
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			if r.CreatedAt == 0 {
				r.CreatedAt = now
			}
			if r.Status == "" {
				r.Status = models.TxRefunded
			}
			r.EventID = eventID
			if err := s.insertTransaction(ctx, tx, r); err != nil {
				return err
			}
		}

		for _, d := range debits {
			if _, err := s.adjustCategory(ctx, tx, eventID, d.CategoryID, d.Amount.Neg()); err != nil {
				return err
			}
		}

		if err := s.recomputeEventTotal(ctx, tx, eventID); err != nil {
			return err
		}

		if _, err := s.exec(ctx, tx,
			"UPDATE events SET status = ?, settling_since = NULL WHERE id = ?",
			string(models.EventClosed), eventID,
		); err != nil {
			return fmt.Errorf("failed to close event: %w", err)
		}
		return nil
	})
}

// ListTransactions returns the event's transactions with user names, newest first.
func (s *Store) ListTransactions(ctx context.Context, eventID string) ([]models.Transaction, error) {
	rows, err := s.query(ctx, s.db,
		`SELECT t.id, t.amount, t.user_id, t.event_id, t.category_id, t.status, t.transaction_ref,
		        t.verified, t.intent_id, t.created_at, COALESCE(u.display_name, '')
		 FROM transactions t
		 LEFT JOIN users u ON u.id = t.user_id
		 WHERE t.event_id = ?
		 ORDER BY t.created_at DESC, t.id DESC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows, true)
}

// ListUnverifiedTransactions returns gateway-backed transactions with placeholder references.
func (s *Store) ListUnverifiedTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = defaultUnverifiedLimit
	}

	rows, err := s.query(ctx, s.db,
		"SELECT "+transactionColumns+` FROM transactions
		 WHERE verified = 0 AND intent_id IS NOT NULL
		 ORDER BY created_at, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unverified transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows, false)
}

// PromoteTransactionRef marks an unverified transaction as verified with the given reference.
func (s *Store) PromoteTransactionRef(ctx context.Context, transactionID, ref string) error {
	res, err := s.exec(ctx, s.db,
		"UPDATE transactions SET transaction_ref = ?, verified = 1 WHERE id = ? AND verified = 0",
		ref, transactionID,
	)
	if err != nil {
		return fmt.Errorf("failed to promote transaction ref: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unverified transaction %s: %w", transactionID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) insertTransaction(ctx context.Context, tx *sql.Tx, t *models.Transaction) error {
	if _, err := s.exec(ctx, tx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		transactionArgs(t)...,
	); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func transactionArgs(t *models.Transaction) []any {
	return []any{
		t.ID,
		money(t.Amount),
		t.UserID,
		t.EventID,
		nullString(t.CategoryID),
		string(t.Status),
		t.TransactionRef,
		boolInt(t.Verified),
		nullString(t.IntentID),
		t.CreatedAt,
	}
}

func scanTransactions(rows *sql.Rows, withUserName bool) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var categoryID, intentID sql.NullString
		var status string
		var verified int
		dest := []any{&t.ID, &t.Amount, &t.UserID, &t.EventID, &categoryID, &status,
			&t.TransactionRef, &verified, &intentID, &t.CreatedAt}
		if withUserName {
			dest = append(dest, &t.UserName)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.CategoryID = categoryID.String
		t.IntentID = intentID.String
		t.Status = models.TransactionStatus(status)
		t.Verified = verified != 0
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txs, nil
}

// adjustCategory adds delta to a basket's total and returns the new total.
// A basket total never goes negative.
func (s *Store) adjustCategory(ctx context.Context, tx *sql.Tx, eventID, categoryID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.queryRow(ctx, tx,
		"SELECT total_pooled FROM categories WHERE id = ? AND event_id = ?"+s.forUpdate(),
		categoryID, eventID,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("category %s in event %s: %w", categoryID, eventID, storage.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get category total: %w", err)
	}

	updated := total.Add(delta)
	if updated.IsNegative() {
		return decimal.Zero, fmt.Errorf("category %s holds %s, needs %s: %w",
			categoryID, money(total), money(delta.Neg()), storage.ErrInsufficientFunds)
	}

	if _, err := s.exec(ctx, tx,
		"UPDATE categories SET total_pooled = ? WHERE id = ?",
		money(updated), categoryID,
	); err != nil {
		return decimal.Zero, fmt.Errorf("failed to update category total: %w", err)
	}
	return updated, nil
}

// recomputeEventTotal sets the event total to the sum of its basket totals.
func (s *Store) recomputeEventTotal(ctx context.Context, tx *sql.Tx, eventID string) error {
	rows, err := s.query(ctx, tx, "SELECT total_pooled FROM categories WHERE event_id = ?", eventID)
	if err != nil {
		return fmt.Errorf("failed to sum category totals: %w", err)
	}

	sum := decimal.Zero
	for rows.Next() {
		var total decimal.Decimal
		if err := rows.Scan(&total); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan category total: %w", err)
		}
		sum = sum.Add(total)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate category totals: %w", err)
	}

	if _, err := s.exec(ctx, tx,
		"UPDATE events SET total_pooled = ? WHERE id = ?",
		money(sum), eventID,
	); err != nil {
		return fmt.Errorf("failed to update event total: %w", err)
	}
	return nil
}

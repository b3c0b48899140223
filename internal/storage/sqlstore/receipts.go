package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/cooper/internal/storage"
)

// SaveReceipt stores the receipt body for an intent, keeping the first one written.
func (s *Store) SaveReceipt(ctx context.Context, intentID string, body []byte) error {
	_, err := s.exec(ctx, s.db,
		"INSERT INTO receipts (intent_id, body, created_at) VALUES (?, ?, ?) ON CONFLICT (intent_id) DO NOTHING",
		intentID, string(body), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save receipt: %w", err)
	}
	return nil
}

// GetReceipt returns the stored receipt body for an intent.
func (s *Store) GetReceipt(ctx context.Context, intentID string) ([]byte, error) {
	var body string
	err := s.queryRow(ctx, s.db, "SELECT body FROM receipts WHERE intent_id = ?", intentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt %s: %w", intentID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return []byte(body), nil
}

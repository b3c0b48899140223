// Package receipts builds the canonical receipts that back delivery proofs.
//
// A receipt is hashed into the proof hash and archived so that the proof URI
// resolves to the exact bytes that were hashed.
package receipts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/cooper/internal/storage"
)

// Receipt kinds.
const (
	KindContribution = "CONTRIBUTION"
	KindRefund       = "REFUND"
)

// Receipt describes one gateway-backed money movement.
// Field order is part of the canonical form.
type Receipt struct {
	IntentID   string `json:"intentId"`
	EventID    string `json:"eventId"`
	UserID     string `json:"userId"`
	CategoryID string `json:"categoryId,omitempty"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Kind       string `json:"kind"`
	IssuedAt   int64  `json:"issuedAt"`
}

// Canonical returns the byte form that is hashed and archived.
func (r Receipt) Canonical() ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	return body, nil
}

// Hash returns the 0x-prefixed SHA-256 of body.
func Hash(body []byte) string {
	sum := sha256.Sum256(body)
	return "0x" + hex.EncodeToString(sum[:])
}

// Archived is the result of archiving a receipt.
type Archived struct {
	Hash string
	URI  string
}

// Uploader publishes a receipt body and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, intentID string, body []byte) (string, error)
}

// Archive keeps receipts in the ledger store and serves them from the API.
type Archive struct {
	store     storage.ReceiptStore
	publicURL string
	uploader  Uploader
}

// NewArchive creates an archive. When uploader is non-nil receipts are also
// uploaded and the uploaded URL is used as the proof URI.
func NewArchive(store storage.ReceiptStore, publicURL string, uploader Uploader) *Archive {
	return &Archive{
		store:     store,
		publicURL: strings.TrimRight(publicURL, "/"),
		uploader:  uploader,
	}
}

// Put stores the receipt and returns its hash and URI.
// The first receipt stored for an intent is kept, and the hash always covers
// the stored bytes. A failed upload falls back to the API URI.
func (a *Archive) Put(ctx context.Context, r Receipt) (*Archived, error) {
	body, err := r.Canonical()
	if err != nil {
		return nil, err
	}

	if err := a.store.SaveReceipt(ctx, r.IntentID, body); err != nil {
		return nil, err
	}
	if body, err = a.store.GetReceipt(ctx, r.IntentID); err != nil {
		return nil, err
	}

	archived := &Archived{
		Hash: Hash(body),
		URI:  a.URL(r.IntentID),
	}

	if a.uploader != nil {
		url, err := a.uploader.Upload(ctx, r.IntentID, body)
		if err != nil {
			slog.Warn("Receipt upload failed, using API URI", "intent_id", r.IntentID, "error", err)
		} else {
			archived.URI = url
		}
	}

	return archived, nil
}

// Get returns the stored receipt body.
func (a *Archive) Get(ctx context.Context, intentID string) ([]byte, error) {
	return a.store.GetReceipt(ctx, intentID)
}

// URL is where the API serves the receipt for intentID.
func (a *Archive) URL(intentID string) string {
	return a.publicURL + "/receipts/" + intentID
}

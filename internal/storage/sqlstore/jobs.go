package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
)

const jobColumns = "intent_id, kind, user_id, event_id, category_id, amount, state, transaction_ref, verified, error, attempts, created_at, updated_at"

// CreateJob inserts a payment job unless one already exists for the intent.
func (s *Store) CreateJob(ctx context.Context, job *models.PaymentJob) (bool, error) {
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.State == "" {
		job.State = models.JobCreated
	}

	res, err := s.exec(ctx, s.db,
		"INSERT INTO payment_jobs ("+jobColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (intent_id) DO NOTHING",
		job.IntentID, string(job.Kind), job.UserID, job.EventID, job.CategoryID, money(job.Amount),
		string(job.State), job.TransactionRef, boolInt(job.Verified), job.Error, job.Attempts,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert payment job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// GetJob retrieves the job for an intent.
func (s *Store) GetJob(ctx context.Context, intentID string) (*models.PaymentJob, error) {
	job, err := scanJob(s.queryRow(ctx, s.db, "SELECT "+jobColumns+" FROM payment_jobs WHERE intent_id = ?", intentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment job %s: %w", intentID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment job: %w", err)
	}
	return job, nil
}

// UpdateJob persists the job's progress.
func (s *Store) UpdateJob(ctx context.Context, job *models.PaymentJob) error {
	job.UpdatedAt = time.Now().Unix()

	res, err := s.exec(ctx, s.db,
		`UPDATE payment_jobs
		 SET state = ?, transaction_ref = ?, verified = ?, error = ?, attempts = ?, updated_at = ?
		 WHERE intent_id = ?`,
		string(job.State), job.TransactionRef, boolInt(job.Verified), job.Error, job.Attempts, job.UpdatedAt,
		job.IntentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("payment job %s: %w", job.IntentID, storage.ErrNotFound)
	}
	return nil
}

// ListActiveJobs returns jobs that are neither recorded nor failed.
func (s *Store) ListActiveJobs(ctx context.Context) ([]*models.PaymentJob, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT "+jobColumns+" FROM payment_jobs WHERE state NOT IN (?, ?) ORDER BY created_at, intent_id",
		string(models.JobRecorded), string(models.JobFailed),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PaymentJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row rowScanner) (*models.PaymentJob, error) {
	job := &models.PaymentJob{}
	var kind, state string
	var verified int
	if err := row.Scan(&job.IntentID, &kind, &job.UserID, &job.EventID, &job.CategoryID, &job.Amount,
		&state, &job.TransactionRef, &verified, &job.Error, &job.Attempts, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Kind = models.JobKind(kind)
	job.State = models.JobState(state)
	job.Verified = verified != 0
	return job, nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmynk/cooper/internal/models"
	"github.com/mmynk/cooper/internal/storage"
)

// Runner advances a contribution job.
type Runner interface {
	RunContribution(ctx context.Context, job *models.PaymentJob) error
}

// Queue persists payment jobs and runs them on a pool of background workers.
// Jobs survive restarts: anything not finished is picked up again by Resume.
type Queue struct {
	store   storage.JobStore
	runner  Runner
	jobs    chan *models.PaymentJob
	workers int

	mu       sync.Mutex
	inFlight map[string]struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue with the given number of workers and buffer size.
func NewQueue(store storage.JobStore, runner Runner, workers, bufferSize int) *Queue {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:    store,
		runner:   runner,
		jobs:     make(chan *models.PaymentJob, bufferSize),
		workers:  workers,
		inFlight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the workers.
func (q *Queue) Start() {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.runner.RunContribution(q.ctx, job); err != nil {
				slog.Error("Payment job did not complete", "intent_id", job.IntentID, "state", job.State, "error", err)
			}
			q.done(job.IntentID)
		}
	}
}

// Enqueue persists a new job and schedules it. If a job already exists for the
// intent, the existing job is returned and created is false.
func (q *Queue) Enqueue(ctx context.Context, job *models.PaymentJob) (*models.PaymentJob, bool, error) {
	if job.IntentID == "" {
		return nil, false, errors.New("payment job requires an intent id")
	}
	if job.Kind == "" {
		job.Kind = models.JobContribution
	}

	created, err := q.store.CreateJob(ctx, job)
	if err != nil {
		return nil, false, fmt.Errorf("failed to persist job: %w", err)
	}
	if !created {
		existing, err := q.store.GetJob(ctx, job.IntentID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	q.dispatch(job)
	return job, true, nil
}

// Resume schedules every persisted job that has not finished and is not
// already running. It returns the number of jobs scheduled.
func (q *Queue) Resume(ctx context.Context) (int, error) {
	jobs, err := q.store.ListActiveJobs(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, job := range jobs {
		if q.dispatch(job) {
			n++
		}
	}
	if n > 0 {
		slog.Info("Resumed payment jobs", "count", n)
	}
	return n, nil
}

// dispatch hands the job to a worker without blocking. A job that does not fit
// stays persisted and is picked up by the next Resume.
func (q *Queue) dispatch(job *models.PaymentJob) bool {
	q.mu.Lock()
	if _, ok := q.inFlight[job.IntentID]; ok {
		q.mu.Unlock()
		return false
	}
	q.inFlight[job.IntentID] = struct{}{}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		return true
	default:
		slog.Warn("Payment job queue full, deferring job", "intent_id", job.IntentID)
		q.done(job.IntentID)
		return false
	}
}

func (q *Queue) done(intentID string) {
	q.mu.Lock()
	delete(q.inFlight, intentID)
	q.mu.Unlock()
}

// Shutdown stops the workers and waits for running jobs to return.
// Queued jobs remain persisted for the next start.
func (q *Queue) Shutdown() {
	q.cancel()
	q.wg.Wait()
	slog.Info("Payment job queue stopped", "deferred_jobs", len(q.jobs))
}

// Package poll waits for an asynchronous condition with a bounded number of
// attempts and a constant delay between them.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned by Outcome.Err when the attempts or the deadline ran out.
var ErrTimeout = errors.New("timed out waiting for condition")

var errNotReady = errors.New("condition not met")

// Status is the result of a wait.
type Status int

const (
	// Ready means the check reported done.
	Ready Status = iota
	// TimedOut means every attempt ran without the check reporting done.
	TimedOut
	// Failed means the check returned a permanent error or the context was cancelled.
	Failed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Policy bounds a wait.
type Policy struct {
	// MaxAttempts is the total number of checks. Values below 1 mean one check.
	MaxAttempts int

	// Delay is the pause between checks.
	Delay time.Duration

	// Deadline optionally bounds the whole wait.
	Deadline time.Duration
}

// Outcome describes how a wait ended.
type Outcome struct {
	Status   Status
	Attempts int

	// LastErr is the last error returned by the check, if any.
	LastErr error
}

// Err converts the outcome into an error, nil when ready.
func (o Outcome) Err() error {
	switch o.Status {
	case Ready:
		return nil
	case TimedOut:
		if o.LastErr != nil {
			return fmt.Errorf("%w after %d attempts: %v", ErrTimeout, o.Attempts, o.LastErr)
		}
		return fmt.Errorf("%w after %d attempts", ErrTimeout, o.Attempts)
	default:
		if o.LastErr == nil {
			return errors.New("wait failed")
		}
		return o.LastErr
	}
}

// CheckFunc reports whether the awaited condition holds. Returning an error
// wrapped with Permanent stops the wait immediately; other errors are retried.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Until runs check until it reports done, the attempts are used up, the
// deadline passes or ctx is cancelled.
func Until(ctx context.Context, p Policy, check CheckFunc) Outcome {
	parent := ctx
	if p.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Deadline)
		defer cancel()
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	out := Outcome{}
	permanent := false
	err := backoff.Retry(func() error {
		out.Attempts++
		done, err := check(ctx)
		if err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				permanent = true
				out.LastErr = perm.Err
				return err
			}
			out.LastErr = err
			return err
		}
		if !done {
			return errNotReady
		}
		return nil
	}, b)

	switch {
	case err == nil:
		out.Status = Ready
	case permanent:
		out.Status = Failed
	case parent.Err() != nil:
		out.Status = Failed
		out.LastErr = parent.Err()
	default:
		out.Status = TimedOut
	}
	return out
}

package streamctx

import (
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/log"
	"github.com/pithecene-io/strata/metrics"
)

// RetryPolicy bounds retries of stream opens that fail on a transient lock.
type RetryPolicy struct {
	// Attempts is the total number of tries, first included.
	Attempts int
	// Wait is the pause between tries.
	Wait time.Duration
}

// DefaultRetryPolicy tries 10 times, 100ms apart.
var DefaultRetryPolicy = RetryPolicy{Attempts: 10, Wait: 100 * time.Millisecond}

// MaxWait returns the longest total time the policy spends waiting.
func (p RetryPolicy) MaxWait() time.Duration {
	if p.Attempts <= 1 {
		return 0
	}
	return time.Duration(p.Attempts-1) * p.Wait
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Wait < 0 {
		p.Wait = 0
	}
	return p
}

// retrier runs an open with bounded retries on IsBusy errors.
type retrier struct {
	policy  RetryPolicy
	sleep   func(time.Duration)
	logger  *log.Logger
	metrics *metrics.Collector
}

// do runs fn until it succeeds, fails with a non-busy error, or the policy
// is exhausted. Exhaustion fails with archive.ErrFileInUse.
func (r *retrier) do(op, path string, fn func() error) error {
	p := r.policy.normalized()
	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt == p.Attempts {
			break
		}
		r.metrics.IncOpenRetry()
		r.logger.Warn("stream busy, retrying", map[string]any{
			"op":      op,
			"path":    path,
			"attempt": attempt,
			"wait":    p.Wait.String(),
		})
		sleep(p.Wait)
	}
	return archive.NewError(archive.ErrFileInUse, op, path, err)
}

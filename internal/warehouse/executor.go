package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/explorer-api/pkg/common/logger"
)

// ExhaustedError wraps the last endpoint failure once the whole pool has been
// tried. Exhaustion is terminal for the request; callers must not retry.
type ExhaustedError struct {
	Attempts int
	Endpoint string
	Status   int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf(
		"all %d warehouse endpoints failed (last: %s, status %d): %v",
		e.Attempts, e.Endpoint, e.Status, e.Err,
	)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err means the whole pool was tried and failed.
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// Executor runs queries against the pool with sticky failover: each call
// starts at the current active endpoint and wraps around the list exactly
// once. A success at a non-active endpoint promotes it, so later requests
// prefer the known-good backend instead of hammering a bad primary. The
// primary regains the active slot the next time rotation reaches it and it
// answers.
type Executor struct {
	pool *Pool
}

func NewExecutor(pool *Pool) *Executor {
	return &Executor{pool: pool}
}

func (x *Executor) Query(ctx context.Context, sql string, params map[string]string) (*Result, error) {
	n := x.pool.Len()
	if n == 0 {
		return nil, fmt.Errorf("no warehouse endpoints configured")
	}

	start := x.pool.ActiveIndex() % n
	endpoints := x.pool.Endpoints()

	var (
		lastErr error
		lastEp  *Endpoint
	)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := endpoints[idx]

		result, err := ep.client.Query(ctx, ep.Database, sql, params)
		if err == nil {
			if idx != start && x.pool.Promote(start, idx) {
				logger.Warn("Switched active warehouse endpoint",
					"from", endpoints[start].Name,
					"to", ep.Name)
			}
			result.ServedBy = ep.Name
			return result, nil
		}

		// A cancelled request is not an endpoint's fault: stop rotating and
		// leave the failure counter alone.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		ep.recordFailure()
		lastErr = err
		lastEp = ep

		logger.Debug("Warehouse endpoint failed",
			"endpoint", ep.Name,
			"failures", ep.FailureCount(),
			"error", err)
	}

	status := 0
	var epErr *EndpointError
	if errors.As(lastErr, &epErr) {
		status = epErr.Status
	}
	return nil, &ExhaustedError{
		Attempts: n,
		Endpoint: lastEp.Name,
		Status:   status,
		Err:      lastErr,
	}
}

package warehouse

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fystack/explorer-api/pkg/common/config"
)

// Endpoint is one named base URL of the analytical store. All endpoints of a
// pool share the credential pair and target database.
type Endpoint struct {
	Name      string
	URL       string
	Database  string
	IsPrimary bool

	client   *Client
	failures atomic.Int64
}

// FailureCount returns how many queries this endpoint has failed since start.
func (e *Endpoint) FailureCount() int64 {
	return e.failures.Load()
}

func (e *Endpoint) recordFailure() {
	e.failures.Add(1)
}

// Pool holds the ordered endpoint list with exactly one primary (the first
// configured URL) and a process-wide sticky active index. The index is only
// moved through Promote, a compare-and-swap: concurrent requests may briefly
// disagree during failover, which self-heals on the next successful call.
type Pool struct {
	endpoints []*Endpoint
	active    atomic.Int32
}

func NewPool(cfg config.WarehouseConfig) (*Pool, error) {
	urls := cfg.EndpointURLs()
	if len(urls) == 0 {
		return nil, fmt.Errorf("no warehouse endpoints configured")
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	endpoints := make([]*Endpoint, 0, len(urls))
	for i, url := range urls {
		name := "primary"
		if i > 0 {
			name = fmt.Sprintf("fallback-%d", i)
		}
		endpoints = append(endpoints, &Endpoint{
			Name:      name,
			URL:       url,
			Database:  cfg.Database,
			IsPrimary: i == 0,
			client:    NewClient(url, cfg.Username, cfg.Password, timeout),
		})
	}

	return &Pool{endpoints: endpoints}, nil
}

func (p *Pool) Len() int { return len(p.endpoints) }

func (p *Pool) Endpoints() []*Endpoint { return p.endpoints }

// ActiveIndex returns the current sticky endpoint index.
func (p *Pool) ActiveIndex() int {
	return int(p.active.Load())
}

// Promote flips the sticky index from from to to. It fails (returns false)
// when another request already moved it, which is fine: someone won the race
// and the preference is eventually consistent.
func (p *Pool) Promote(from, to int) bool {
	if to < 0 || to >= len(p.endpoints) || from == to {
		return false
	}
	return p.active.CompareAndSwap(int32(from), int32(to))
}

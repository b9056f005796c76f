package warehouse

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fystack/explorer-api/pkg/common/config"
)

// fakeEndpoint is an HTTP warehouse whose health can be flipped mid-test.
type fakeEndpoint struct {
	server  *httptest.Server
	healthy atomic.Bool
	hits    atomic.Int64
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{}
	f.healthy.Store(true)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if !f.healthy.Load() {
			http.Error(w, "DB::Exception: too many simultaneous queries", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"meta":[{"name":"height","type":"UInt64"}],"data":[{"height":"42"}],"rows":1}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newTestPool(t *testing.T, endpoints ...*fakeEndpoint) *Pool {
	t.Helper()
	urls := ""
	for i, ep := range endpoints {
		if i > 0 {
			urls += ","
		}
		urls += ep.server.URL
	}
	pool, err := NewPool(config.WarehouseConfig{
		URLs:         urls,
		Database:     "chain",
		QueryTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return pool
}

func TestExecutor_QueryPrimary(t *testing.T) {
	primary := newFakeEndpoint(t)
	fallback := newFakeEndpoint(t)
	pool := newTestPool(t, primary, fallback)

	result, err := NewExecutor(pool).Query(context.Background(), "SELECT 1", nil)
	require.NoError(t, err)

	assert.Equal(t, "primary", result.ServedBy)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "42", result.Rows[0]["height"])
	assert.Equal(t, int64(0), fallback.hits.Load(), "healthy primary never spills over")
}

// Failover must be sticky: once the fallback answers, later queries go there
// first, and the primary only regains the slot after it answers a probe that
// rotation sent its way.
func TestExecutor_StickyFailover(t *testing.T) {
	primary := newFakeEndpoint(t)
	fallback := newFakeEndpoint(t)
	pool := newTestPool(t, primary, fallback)
	exec := NewExecutor(pool)
	ctx := context.Background()

	primary.healthy.Store(false)

	// Two queries while the primary is down: both land on the fallback, and
	// only the first one pays the failed primary attempt.
	for i := 0; i < 2; i++ {
		result, err := exec.Query(ctx, "SELECT 1", nil)
		require.NoError(t, err)
		assert.Equal(t, "fallback-1", result.ServedBy)
	}
	assert.Equal(t, 1, pool.ActiveIndex())
	assert.Equal(t, int64(1), primary.hits.Load(), "second query goes straight to the fallback")
	assert.Equal(t, int64(1), primary.FailureCountOf(pool), "failure counter tracks the one failed attempt")

	// Primary recovers, but preference stays with the fallback until the
	// fallback itself fails.
	primary.healthy.Store(true)
	result, err := exec.Query(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "fallback-1", result.ServedBy)
	assert.Equal(t, 1, pool.ActiveIndex())

	// Fallback fails, rotation wraps to the primary, primary answers and is
	// promoted back.
	fallback.healthy.Store(false)
	result, err = exec.Query(ctx, "SELECT 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "primary", result.ServedBy)
	assert.Equal(t, 0, pool.ActiveIndex())
}

func (f *fakeEndpoint) FailureCountOf(pool *Pool) int64 {
	for _, ep := range pool.Endpoints() {
		if ep.URL == f.server.URL {
			return ep.FailureCount()
		}
	}
	return -1
}

func TestExecutor_ExhaustedError(t *testing.T) {
	primary := newFakeEndpoint(t)
	fallback := newFakeEndpoint(t)
	primary.healthy.Store(false)
	fallback.healthy.Store(false)
	pool := newTestPool(t, primary, fallback)

	_, err := NewExecutor(pool).Query(context.Background(), "SELECT 1", nil)
	require.Error(t, err)
	require.True(t, IsExhausted(err))

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 2, exhausted.Attempts)
	assert.Equal(t, "fallback-1", exhausted.Endpoint)
	assert.Equal(t, http.StatusInternalServerError, exhausted.Status)
}

func TestExecutor_ContextCancellationStopsRotation(t *testing.T) {
	primary := newFakeEndpoint(t)
	fallback := newFakeEndpoint(t)
	pool := newTestPool(t, primary, fallback)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(pool).Query(ctx, "SELECT 1", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsExhausted(err), "cancellation is the caller's doing, not exhaustion")
	assert.Equal(t, int64(0), fallback.hits.Load(), "no rotation after cancellation")
	assert.Equal(t, int64(0), pool.Endpoints()[0].FailureCount(),
		"cancellation is not an endpoint failure")
}

func TestExecutor_PassesQueryAndParams(t *testing.T) {
	var gotBody, gotDatabase, gotParam string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotDatabase = r.URL.Query().Get("database")
		gotParam = r.URL.Query().Get("param_p0")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"rows":0}`))
	}))
	defer server.Close()

	pool, err := NewPool(config.WarehouseConfig{URLs: server.URL, Database: "chain"})
	require.NoError(t, err)

	sql := "SELECT height FROM transactions WHERE address = {p0:String}"
	_, err = NewExecutor(pool).Query(context.Background(), sql, map[string]string{"p0": "cosmos1addr"})
	require.NoError(t, err)

	assert.Equal(t, sql, gotBody)
	assert.Equal(t, "chain", gotDatabase)
	assert.Equal(t, "cosmos1addr", gotParam)
}

func TestPool_PromoteCAS(t *testing.T) {
	pool := &Pool{endpoints: []*Endpoint{{Name: "primary"}, {Name: "fallback-1"}}}

	assert.True(t, pool.Promote(0, 1))
	assert.Equal(t, 1, pool.ActiveIndex())

	assert.False(t, pool.Promote(0, 1), "stale from index loses the race")
	assert.False(t, pool.Promote(1, 1), "no-op move is rejected")
	assert.False(t, pool.Promote(1, 5), "out-of-range target is rejected")
	assert.Equal(t, 1, pool.ActiveIndex())

	assert.True(t, pool.Promote(1, 0))
	assert.Equal(t, 0, pool.ActiveIndex())
}

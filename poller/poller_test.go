package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
	"github.com/ShadeREPO/elizaOS-sub000/breaker"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/cache"
)

const memoriesBody = `{
	"success": true,
	"data": {
		"memories": [
			{"id": "m1", "entityId": "user-1", "agentId": "agent-1", "roomId": "room-1",
			 "content": {"text": "hello", "source": "client_chat"}, "createdAt": 1724500000000},
			{"id": "m2", "entityId": "agent-1", "agentId": "agent-1", "roomId": "room-1",
			 "content": {"text": "meow", "source": "agent_response"}, "createdAt": 1724500001000},
			{"id": "m3", "entityId": "user-2", "agentId": "agent-1", "roomId": "room-2",
			 "content": {"text": "hi there", "source": "client_chat"}, "createdAt": 1724500002000}
		]
	}
}`

type fixture struct {
	poller *Poller
	cache  cache.Cache[[]agentapi.Memory]
	brk    *breaker.Breaker
	hits   *atomic.Int64
}

func newFixture(t *testing.T, handler http.HandlerFunc) *fixture {
	t.Helper()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	api, err := agentapi.NewClient(agentapi.Config{
		BaseURL:           srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 0,
	})
	require.NoError(t, err)

	c, err := cache.New[[]agentapi.Memory](cache.Config{
		Enabled:       true,
		TTL:           time.Minute,
		MaxEntries:    10,
		SweepInterval: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	brk, err := breaker.New(breaker.DefaultConfig())
	require.NoError(t, err)

	p, err := New(testConfig(), api, c, brk)
	require.NoError(t, err)

	return &fixture{poller: p, cache: c, brk: brk, hits: &hits}
}

func serveMemories(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(memoriesBody))
}

func TestPoller_FetchPublishesState(t *testing.T) {
	f := newFixture(t, serveMemories)

	require.NoError(t, f.poller.Refresh(context.Background()))

	memories := f.poller.Memories()
	require.Len(t, memories, 3)

	conversations := f.poller.Conversations()
	require.Len(t, conversations, 2)
	assert.Equal(t, "room-2", conversations[0].ID, "newest conversation first")
	assert.Equal(t, "hi there", conversations[0].LastMessage)
	assert.Equal(t, "room-1", conversations[1].ID)
	assert.Equal(t, 2, conversations[1].MessageCount)
	assert.Equal(t, "agent-1", conversations[1].LastSender)
}

func TestPoller_RepeatRefreshServedFromCache(t *testing.T) {
	f := newFixture(t, serveMemories)
	ctx := context.Background()

	require.NoError(t, f.poller.Refresh(ctx))
	require.NoError(t, f.poller.Refresh(ctx))
	require.NoError(t, f.poller.Refresh(ctx))

	assert.Equal(t, int64(1), f.hits.Load(), "repeated refreshes within TTL reuse the cached result")
	assert.Equal(t, 1, f.cache.Size(), "identical scope resolves to one cache entry")

	status := f.poller.Status()
	assert.Equal(t, int64(3), status.Performance.TotalRequests)
	assert.Equal(t, int64(2), status.Performance.CacheHits)
}

func TestPoller_ConcurrentRefreshDeduplicated(t *testing.T) {
	release := make(chan struct{})
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		serveMemories(w, r)
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.poller.Refresh(ctx)
		}()
	}

	// Give the goroutines time to pile onto the same flight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), f.hits.Load(), "concurrent refreshes share one upstream fetch")
	require.Len(t, f.poller.Memories(), 3)
}

func TestPoller_ServerErrorFeedsBreaker(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := f.poller.Refresh(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, f.brk.ConsecutiveErrors())
	assert.Empty(t, f.poller.Memories(), "failed fetch publishes nothing")
}

func TestPoller_MalformedResponseDoesNotTripBreaker(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "data"`))
	})

	err := f.poller.Refresh(context.Background())
	assert.NoError(t, err, "malformed payload is absorbed as an empty cycle")

	assert.Equal(t, 0, f.brk.ConsecutiveErrors(), "parse failures are not upstream-health signals")
	assert.Empty(t, f.poller.Memories())
}

func TestPoller_RateLimitArmsBackoff(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	ctx := context.Background()

	require.Error(t, f.poller.Refresh(ctx))
	status := f.poller.Status()
	assert.Greater(t, status.RateLimitBackoff, time.Duration(0))
	assert.Equal(t, 1, status.ConsecutiveErrors)

	// The armed backoff suppresses the next attempt entirely
	before := f.hits.Load()
	assert.NoError(t, f.poller.Refresh(ctx))
	assert.Equal(t, before, f.hits.Load(), "no upstream traffic while backoff is active")
}

func TestPoller_OpenBreakerSkipsFetch(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx := context.Background()

	for i := 0; i < breaker.DefaultConfig().ErrorThreshold; i++ {
		_ = f.poller.Refresh(ctx)
	}
	require.True(t, f.poller.Status().CircuitBreakerOpen)

	before := f.hits.Load()
	assert.NoError(t, f.poller.Refresh(ctx), "skipped poll is not an error")
	assert.Equal(t, before, f.hits.Load())
}

func TestPoller_EmptyPollTrackingStretchesInterval(t *testing.T) {
	f := newFixture(t, serveMemories)
	ctx := context.Background()

	// First fetch observes growth, the rest observe the same count
	for i := 0; i < 5; i++ {
		require.NoError(t, f.poller.Refresh(ctx))
	}

	interval := f.poller.nextIntervalNow()
	base := f.poller.cfg.BaseInterval
	assert.GreaterOrEqual(t, interval, base, "quiet polls never tighten the cadence")
	assert.LessOrEqual(t, interval, f.poller.cfg.maxInterval())
}

func TestPoller_ActivityTightensInterval(t *testing.T) {
	f := newFixture(t, serveMemories)

	require.NoError(t, f.poller.Refresh(context.Background()))
	f.poller.NoteRemoteChange(time.Now())

	interval := f.poller.nextIntervalNow()
	assert.Less(t, interval, f.poller.cfg.BaseInterval)
	assert.GreaterOrEqual(t, interval, f.poller.cfg.MinInterval)
}

func TestPoller_Lifecycle(t *testing.T) {
	f := newFixture(t, serveMemories)
	ctx := context.Background()

	require.NoError(t, f.poller.Start(ctx))
	assert.Error(t, f.poller.Start(ctx), "double start is rejected")

	// The immediate first poll lands without waiting for the interval
	require.Eventually(t, func() bool {
		return len(f.poller.Memories()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.poller.Stop())

	// Results arriving after teardown are discarded
	f.poller.publish(nil)
	assert.Len(t, f.poller.Memories(), 3)
}

func TestPoller_StopWithoutStart(t *testing.T) {
	f := newFixture(t, serveMemories)
	assert.Error(t, f.poller.Stop())
}

func TestNew_RequiresDependencies(t *testing.T) {
	brk, err := breaker.New(breaker.DefaultConfig())
	require.NoError(t, err)

	_, err = New(testConfig(), nil, cache.NewNoop[[]agentapi.Memory](), brk)
	assert.Error(t, err)

	_, err = New(Config{}, nil, nil, nil)
	assert.Error(t, err)
}

// Package poller implements the adaptive-polling memory fetcher. It
// fetches the memories resource on a self-tuning cadence and publishes
// the latest dataset plus derived conversation groupings.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
	"github.com/ShadeREPO/elizaOS-sub000/breaker"
	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/cache"
)

// PerformanceMetrics is the rolling view of fetch performance exposed to
// diagnostics alongside the Prometheus metrics.
type PerformanceMetrics struct {
	TotalRequests  int64         `json:"total_requests"`
	CacheHits      int64         `json:"cache_hits"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Status is the read-only diagnostic surface of the poller.
type Status struct {
	RateLimitBackoff   time.Duration      `json:"rate_limit_backoff"`
	ConsecutiveErrors  int                `json:"consecutive_errors"`
	CircuitBreakerOpen bool               `json:"is_circuit_breaker_open"`
	PendingRequests    int                `json:"pending_requests"`
	Performance        PerformanceMetrics `json:"performance_metrics"`
}

// Poller fetches memories for one agent on an adaptive cadence.
// All fetches flow through the circuit breaker and the shared response
// cache; the poller itself never lets an error escape its run loop.
type Poller struct {
	cfg     Config
	api     *agentapi.Client
	cache   cache.Cache[[]agentapi.Memory]
	brk     *breaker.Breaker
	logger  *slog.Logger
	metrics *metric.Metrics

	// flight deduplicates concurrent Refresh calls into one fetch
	flight singleflight.Group

	// Observed and published state
	mu               sync.RWMutex
	memories         []agentapi.Memory
	conversations    []Conversation
	lastItemCount    int
	consecutiveEmpty int
	lastChangeAt     time.Time
	lastActivityAt   time.Time
	totalRequests    int64
	cacheHits        int64
	avgLatency       time.Duration
	latencySamples   int64

	// Lifecycle
	lifecycleMu sync.Mutex
	started     bool
	shutdown    chan struct{}
	done        chan struct{}
	closed      atomic.Bool

	// now is replaceable in tests
	now func() time.Time
}

// Option is a functional option for configuring the Poller
type Option func(*Poller)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records fetch outcomes through the core metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// New creates an adaptive poller.
func New(cfg Config, api *agentapi.Client, c cache.Cache[[]agentapi.Memory], brk *breaker.Breaker, opts ...Option) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if api == nil || c == nil || brk == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "poller", "New", "api, cache, and breaker are required")
	}

	p := &Poller{
		cfg:      cfg,
		api:      api,
		cache:    c,
		brk:      brk,
		logger:   slog.Default(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Start launches the polling loop. The first poll runs immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "poller", "Start", "lifecycle check")
	}
	p.started = true

	go p.run(ctx)
	return nil
}

// Stop tears down the polling loop. In-flight fetches are not aborted;
// their results are discarded once the poller is closed.
func (p *Poller) Stop() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return errors.WrapInvalid(errors.ErrNotStarted, "poller", "Stop", "lifecycle check")
	}

	p.closed.Store(true)
	select {
	case <-p.shutdown:
	default:
		close(p.shutdown)
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for poll loop to finish")
	}
}

// run is the adaptive polling loop.
func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	// Immediate first poll so the UI has data as soon as possible
	_ = p.pollOnce(ctx)

	timer := time.NewTimer(p.nextIntervalNow())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			p.closed.Store(true)
			return
		case <-p.shutdown:
			return
		case <-timer.C:
			_ = p.pollOnce(ctx)
			timer.Reset(p.nextIntervalNow())
		}
	}
}

// Fetch performs one breaker-gated fetch with explicit options and
// publishes the result. Exposed for callers that need a scope other
// than the configured polling scope.
func (p *Poller) Fetch(ctx context.Context, opts agentapi.MemoriesOptions) error {
	return p.fetch(ctx, opts)
}

// Refresh bypasses adaptive scheduling for one immediate attempt, still
// breaker-gated. Concurrent refreshes share a single fetch.
func (p *Poller) Refresh(ctx context.Context) error {
	_, err, _ := p.flight.Do("refresh", func() (any, error) {
		return nil, p.pollOnce(ctx)
	})
	return err
}

// MarkActivity records caller presence, keeping the poller from relaxing
// to its inactive cadence.
func (p *Poller) MarkActivity(at time.Time) {
	p.mu.Lock()
	if at.After(p.lastActivityAt) {
		p.lastActivityAt = at
	}
	p.mu.Unlock()
}

// NoteRemoteChange records an upstream change signal (from the real-time
// session), tightening the next interval toward the activity floor.
func (p *Poller) NoteRemoteChange(at time.Time) {
	p.mu.Lock()
	if at.After(p.lastChangeAt) {
		p.lastChangeAt = at
	}
	if at.After(p.lastActivityAt) {
		p.lastActivityAt = at
	}
	p.mu.Unlock()
}

// Memories returns the latest published dataset.
func (p *Poller) Memories() []agentapi.Memory {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]agentapi.Memory(nil), p.memories...)
}

// Conversations returns the latest derived conversation groupings.
func (p *Poller) Conversations() []Conversation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Conversation(nil), p.conversations...)
}

// Status returns the read-only diagnostic view.
func (p *Poller) Status() Status {
	snap := p.brk.Snapshot()

	p.mu.RLock()
	perf := PerformanceMetrics{
		TotalRequests:  p.totalRequests,
		CacheHits:      p.cacheHits,
		AverageLatency: p.avgLatency,
	}
	p.mu.RUnlock()

	return Status{
		RateLimitBackoff:   snap.BackoffRemaining,
		ConsecutiveErrors:  snap.ConsecutiveErrors,
		CircuitBreakerOpen: snap.State != breaker.StateClosed,
		PendingRequests:    snap.InFlight,
		Performance:        perf,
	}
}

// pollOnce runs one poll cycle with the configured scope.
func (p *Poller) pollOnce(ctx context.Context) error {
	return p.fetch(ctx, agentapi.MemoriesOptions{
		TableName: p.cfg.TableName,
		RoomID:    p.cfg.RoomID,
		ChannelID: p.cfg.ChannelID,
	})
}

// fetch executes one cache-then-network cycle and publishes the outcome.
func (p *Poller) fetch(ctx context.Context, opts agentapi.MemoriesOptions) error {
	if p.closed.Load() {
		return errors.WrapFatal(errors.ErrClientClosed, "poller", "fetch", "lifecycle check")
	}
	if p.brk.ShouldSkip() {
		p.logger.Debug("poll skipped by breaker", "agent_id", p.cfg.AgentID)
		return nil
	}

	p.mu.Lock()
	p.totalRequests++
	p.mu.Unlock()

	key := opts.CacheKey(p.cfg.AgentID)
	if cached, ok := p.cache.Get(key); ok {
		p.mu.Lock()
		p.cacheHits++
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.RecordCacheHit("memories")
		}
		p.publish(cached)
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordCacheMiss("memories")
	}

	if err := p.brk.Acquire(); err != nil {
		p.logger.Debug("poll skipped at acquire", "error", err)
		return nil
	}
	defer p.brk.Release()

	start := p.now()
	memories, err := p.api.FetchMemories(ctx, p.cfg.AgentID, opts)
	p.observeLatency(p.now().Sub(start))

	if err != nil {
		// Malformed payloads are not an upstream-health signal: log,
		// treat as an empty cycle, leave the breaker untouched.
		if errors.IsInvalid(err) {
			p.logger.Warn("malformed memories response, treating as empty cycle", "error", err)
			if p.metrics != nil {
				p.metrics.RecordError("poller", errors.Classify(err).String())
			}
			p.publish(nil)
			return nil
		}

		p.brk.RecordError(agentapi.StatusCode(err))
		if p.metrics != nil {
			p.metrics.RecordError("poller", errors.Classify(err).String())
		}
		p.logger.Warn("memories fetch failed",
			"agent_id", p.cfg.AgentID,
			"consecutive_errors", p.brk.ConsecutiveErrors(),
			"error", err)
		return err
	}

	p.brk.RecordSuccess()
	if _, err := p.cache.Set(key, memories); err != nil {
		p.logger.Warn("cache write failed", "key", key, "error", err)
	}
	p.publish(memories)
	return nil
}

// publish applies a fetched dataset to the published state, tracking
// growth for the adaptive interval. Results arriving after teardown are
// discarded.
func (p *Poller) publish(memories []agentapi.Memory) {
	if p.closed.Load() {
		return
	}

	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(memories) > p.lastItemCount {
		p.consecutiveEmpty = 0
		p.lastChangeAt = now
	} else {
		p.consecutiveEmpty++
	}
	p.lastItemCount = len(memories)
	if memories != nil {
		p.memories = memories
		p.conversations = groupConversations(memories)
	}
}

// observeLatency folds one latency sample into the rolling average.
func (p *Poller) observeLatency(sample time.Duration) {
	p.mu.Lock()
	p.latencySamples++
	p.avgLatency += (sample - p.avgLatency) / time.Duration(p.latencySamples)
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordRequestDuration("memories", sample)
	}
}

// nextIntervalNow evaluates the interval policy against current state.
func (p *Poller) nextIntervalNow() time.Duration {
	snap := p.brk.Snapshot()

	p.mu.RLock()
	in := intervalInputs{
		breakerOpen:    snap.State == breaker.StateOpen,
		errorCount:     snap.ConsecutiveErrors,
		backoffActive:  snap.BackoffRemaining > 0,
		emptyPolls:     p.consecutiveEmpty,
		lastActivityAt: p.lastActivityAt,
		lastChangeAt:   p.lastChangeAt,
		now:            p.now(),
	}
	p.mu.RUnlock()

	interval := p.cfg.nextInterval(in)
	p.logger.Debug("next poll scheduled",
		"interval", interval,
		"empty_polls", in.emptyPolls,
		"errors", in.errorCount)
	return interval
}

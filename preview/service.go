// Package preview implements the batched conversation preview service.
// Callers ask for one conversation preview at a time; the service
// coalesces bursts into rate-friendly sequential batches and always
// resolves every request, degrading through cache and fallback data
// rather than surfacing upstream failures.
package preview

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/fallback"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/cache"
)

// Source identifies where a preview's data came from.
type Source string

const (
	SourceServer   Source = "server"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// Preview is the resolved view of one conversation.
type Preview struct {
	ConversationID string             `json:"conversation_id"`
	Messages       []fallback.Message `json:"messages"`
	Source         Source             `json:"source"`
}

// Fetcher is the upstream surface the service needs. *agentapi.Client
// satisfies it.
type Fetcher interface {
	FetchConversation(ctx context.Context, agentID, conversationID string) ([]agentapi.Memory, error)
}

// result carries a resolved preview to a waiter. There is no error arm:
// resolution always produces a preview.
type result struct {
	preview Preview
}

// Service batches and deduplicates preview requests.
//
// Requests for the same conversation share one upstream fetch. Distinct
// conversations queue up behind a debounce timer and are fetched in
// strictly sequential sub-batches with pacing delays, so a burst of
// requests never fans out into parallel upstream traffic.
type Service struct {
	cfg     Config
	fetcher Fetcher
	store   fallback.Store
	cache   cache.Cache[Preview]
	logger  *slog.Logger
	metrics *metric.Metrics

	mu            sync.Mutex
	pending       map[string][]chan result
	queue         []string // enqueue order; ids here always have a pending entry
	timer         *time.Timer
	cooldownUntil time.Time
	running       bool
	closed        bool

	// now and sleep are replaceable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

// Option is a functional option for configuring the Service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records batching outcomes through the core metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a preview service. The fallback store may be
// fallback.Empty{}; requests then degrade to explicit empty previews.
func New(cfg Config, fetcher Fetcher, store fallback.Store, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "preview", "New", "fetcher is required")
	}
	if store == nil {
		store = fallback.Empty{}
	}

	previewCache, err := cache.New[Preview](cache.Config{
		Enabled:       true,
		TTL:           cfg.CacheTTL,
		MaxEntries:    cfg.CacheMaxEntries,
		SweepInterval: cfg.CacheTTL,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		cache:   previewCache,
		logger:  slog.Default(),
		pending: make(map[string][]chan result),
		now:     time.Now,
		sleep:   time.Sleep,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// GetPreview resolves a preview for one conversation. It never fails on
// upstream trouble: degraded results come from cache or fallback data,
// down to an explicit empty preview. The error return fires only for an
// empty id, caller cancellation, or a closed service.
func (s *Service) GetPreview(ctx context.Context, conversationID string) (Preview, error) {
	if conversationID == "" {
		return Preview{}, errors.WrapInvalid(errors.ErrInvalidData, "preview", "GetPreview", "conversation id is required")
	}

	if cached, ok := s.cache.Get(conversationID); ok {
		if s.metrics != nil {
			s.metrics.RecordCacheHit("preview")
		}
		cached.Source = SourceCache
		return cached, nil
	}
	if s.metrics != nil {
		s.metrics.RecordCacheMiss("preview")
	}

	ch, err := s.enqueue(conversationID)
	if err != nil {
		return Preview{}, err
	}

	select {
	case res := <-ch:
		return res.preview, nil
	case <-ctx.Done():
		return Preview{}, errors.WrapTransient(ctx.Err(), "preview", "GetPreview", "wait for batch")
	}
}

// enqueue registers a waiter, adding the id to the batch queue when it is
// not already in flight, and (re)arms the debounce timer.
func (s *Service) enqueue(conversationID string) (chan result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.WrapFatal(errors.ErrClientClosed, "preview", "enqueue", "lifecycle check")
	}

	ch := make(chan result, 1)
	waiters, inFlight := s.pending[conversationID]
	s.pending[conversationID] = append(waiters, ch)

	if !inFlight {
		s.queue = append(s.queue, conversationID)
	}
	if s.metrics != nil {
		s.metrics.RecordPendingPreviews(len(s.pending))
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.DebounceDelay, s.runBatch)

	return ch, nil
}

// runBatch drains up to MaxBatchSize queued ids and processes them. Fired
// by the debounce timer; re-fires itself while work remains.
func (s *Service) runBatch() {
	s.mu.Lock()
	if s.closed || s.running || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}

	// A batch-wide cooldown pushes the whole run out, it does not drop it
	if wait := s.cooldownUntil.Sub(s.now()); wait > 0 {
		s.timer = time.AfterFunc(wait, s.runBatch)
		s.mu.Unlock()
		return
	}

	n := len(s.queue)
	if n > s.cfg.MaxBatchSize {
		n = s.cfg.MaxBatchSize
	}
	batch := make([]string, n)
	copy(batch, s.queue[:n])
	s.queue = append(s.queue[:0], s.queue[n:]...)
	s.running = true
	s.mu.Unlock()

	s.processBatch(batch)

	s.mu.Lock()
	s.running = false
	remaining := len(s.queue) > 0 && !s.closed
	if remaining {
		s.timer = time.AfterFunc(s.cfg.DebounceDelay, s.runBatch)
	}
	s.mu.Unlock()
}

// processBatch fetches a drained batch strictly sequentially: pacing
// delays between items, a longer delay between sub-batches, never any
// parallel fan-out. A rate limit anywhere resolves the rest of the batch
// from fallback and arms the global cooldown.
func (s *Service) processBatch(batch []string) {
	if s.metrics != nil {
		s.metrics.RecordBatch()
	}

	rateLimited := false
	fetched := 0
	for i, id := range batch {
		if rateLimited {
			s.resolve(id, s.degradedPreview(id))
			continue
		}

		if fetched > 0 {
			if i%s.cfg.SubBatchSize == 0 {
				s.sleep(s.cfg.InterSubBatchDelay)
			} else {
				s.sleep(s.cfg.InterRequestDelay)
			}
		}
		fetched++

		pv, err := s.fetchOne(id)
		if err != nil {
			if errors.IsRateLimited(err) {
				s.armCooldown()
				rateLimited = true
				s.logger.Warn("preview batch rate limited, degrading remainder",
					"conversation_id", id,
					"cooldown", s.cfg.CooldownDuration)
			} else {
				s.logger.Warn("preview fetch failed, using fallback",
					"conversation_id", id,
					"error", err)
			}
			if s.metrics != nil {
				s.metrics.RecordError("preview", errors.Classify(err).String())
			}
			s.resolve(id, s.degradedPreview(id))
			continue
		}

		if _, err := s.cache.Set(id, pv); err != nil {
			s.logger.Warn("preview cache write failed", "conversation_id", id, "error", err)
		}
		s.resolve(id, pv)
	}
}

// fetchOne fetches and shapes one conversation preview from upstream.
func (s *Service) fetchOne(conversationID string) (Preview, error) {
	memories, err := s.fetcher.FetchConversation(context.Background(), s.cfg.AgentID, conversationID)
	if err != nil {
		return Preview{}, err
	}

	sort.Slice(memories, func(i, j int) bool {
		return memories[i].CreatedAt < memories[j].CreatedAt
	})

	messages := make([]fallback.Message, 0, len(memories))
	for _, m := range memories {
		msg := fallback.Message{
			Type:      "user",
			Content:   m.Content.Text,
			Timestamp: m.CreatedTime(),
			Sender:    m.EntityID,
		}
		if m.IsFromAgent() {
			msg.Type = "agent"
			msg.Sender = m.AgentID
		}
		messages = append(messages, msg)
	}

	return Preview{
		ConversationID: conversationID,
		Messages:       messages,
		Source:         SourceServer,
	}, nil
}

// degradedPreview resolves from the fallback store, or to an explicit
// empty preview when the store has nothing.
func (s *Service) degradedPreview(conversationID string) Preview {
	if s.metrics != nil {
		s.metrics.RecordFallbackResolution()
	}

	messages, _ := s.store.Messages(conversationID)
	return Preview{
		ConversationID: conversationID,
		Messages:       messages,
		Source:         SourceFallback,
	}
}

// resolve delivers a preview to every waiter for an id. Results for ids
// already resolved elsewhere (e.g. by Close) are discarded.
func (s *Service) resolve(conversationID string, pv Preview) {
	s.mu.Lock()
	waiters := s.pending[conversationID]
	delete(s.pending, conversationID)
	if s.metrics != nil {
		s.metrics.RecordPendingPreviews(len(s.pending))
	}
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{preview: pv}
	}
}

// armCooldown suspends batch processing globally after a rate limit.
func (s *Service) armCooldown() {
	s.mu.Lock()
	s.cooldownUntil = s.now().Add(s.cfg.CooldownDuration)
	s.mu.Unlock()
}

// CoolingDown reports whether batch processing is currently suspended.
func (s *Service) CoolingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.cooldownUntil)
}

// PendingCount reports the number of conversations awaiting resolution.
func (s *Service) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops batching and resolves every outstanding waiter from cache
// or fallback data. It rejects nothing: waiters get degraded previews,
// not errors. In-flight batch fetches finish but their results are
// discarded.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.queue = nil
	s.mu.Unlock()

	for _, id := range ids {
		if cached, ok := s.cache.Get(id); ok {
			cached.Source = SourceCache
			s.resolve(id, cached)
			continue
		}
		s.resolve(id, s.degradedPreview(id))
	}

	return s.cache.Close()
}

// Package syncclient assembles the sync layer into one explicitly
// constructed client per agent session: upstream API client, response
// cache, circuit breaker, adaptive poller, preview service, and an
// optional real-time change source. There is no package-level state;
// everything a Client owns is built in New and torn down in Close.
package syncclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
	"github.com/ShadeREPO/elizaOS-sub000/breaker"
	"github.com/ShadeREPO/elizaOS-sub000/config"
	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/events"
	"github.com/ShadeREPO/elizaOS-sub000/fallback"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/cache"
	"github.com/ShadeREPO/elizaOS-sub000/poller"
	"github.com/ShadeREPO/elizaOS-sub000/preview"
)

// Client is the top-level sync client for one agent session.
type Client struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	api     *agentapi.Client
	cache   cache.Cache[[]agentapi.Memory]
	brk     *breaker.Breaker
	poller  *poller.Poller
	preview *preview.Service
	source  events.Source

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
	cancel      context.CancelFunc
	group       *errgroup.Group
}

// Option is a functional option for configuring the Client
type Option func(*clientOptions)

type clientOptions struct {
	logger  *slog.Logger
	metrics *metric.Metrics
	store   fallback.Store
	source  events.Source
}

// WithLogger sets a custom logger for the client and every component it
// builds.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records component outcomes through the given core metrics.
func WithMetrics(m *metric.Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithFallbackStore supplies the persisted conversations consulted when
// network and cache are exhausted.
func WithFallbackStore(store fallback.Store) Option {
	return func(o *clientOptions) {
		o.store = store
	}
}

// WithEventSource overrides the change-event source built from config.
// Useful for tests and embedders with their own transport.
func WithEventSource(source events.Source) Option {
	return func(o *clientOptions) {
		o.source = source
	}
}

// New builds a sync client from configuration. Nothing starts polling
// until Run is called.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &clientOptions{
		logger: slog.Default(),
		store:  fallback.Empty{},
	}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger.With("agent_id", cfg.AgentID)

	api, err := agentapi.NewClient(cfg.API,
		agentapi.WithLogger(logger),
		agentapi.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	memoryCache, err := cache.New[[]agentapi.Memory](cfg.Cache)
	if err != nil {
		return nil, err
	}

	brk, err := breaker.New(cfg.Breaker,
		breaker.WithLogger(logger),
		breaker.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	p, err := poller.New(cfg.Poller, api, memoryCache, brk,
		poller.WithLogger(logger),
		poller.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	svc, err := preview.New(cfg.Preview, api, o.store,
		preview.WithLogger(logger),
		preview.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}

	source := o.source
	if source == nil {
		source, err = buildEventSource(cfg.Events, logger)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		metrics: o.metrics,
		api:     api,
		cache:   memoryCache,
		brk:     brk,
		poller:  p,
		preview: svc,
		source:  source,
	}, nil
}

// buildEventSource constructs the configured real-time source, or nil
// when none is configured.
func buildEventSource(cfg config.EventsConfig, logger *slog.Logger) (events.Source, error) {
	switch {
	case cfg.WebSocketURL != "":
		return events.NewWebSocketSource(events.WebSocketConfig{
			URL: cfg.WebSocketURL,
		}, nil, logger)
	case cfg.NATSURL != "":
		return events.NewNATSSource(events.NATSConfig{
			URL:     cfg.NATSURL,
			Subject: cfg.Subject,
		}, nil, logger)
	default:
		return nil, nil
	}
}

// Run starts the poller and, when a change source is configured, the
// goroutine routing its events into the poller. Run returns once the
// context is cancelled or Close is called; a missing event source is
// not an error.
func (c *Client) Run(ctx context.Context) error {
	c.lifecycleMu.Lock()
	if c.closed {
		c.lifecycleMu.Unlock()
		return errors.WrapFatal(errors.ErrClientClosed, "syncclient", "Run", "lifecycle check")
	}
	if c.started {
		c.lifecycleMu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "syncclient", "Run", "lifecycle check")
	}
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	group, ctx := errgroup.WithContext(ctx)
	c.group = group
	c.lifecycleMu.Unlock()

	if err := c.poller.Start(ctx); err != nil {
		cancel()
		return err
	}

	if c.source != nil {
		group.Go(func() error {
			return c.routeEvents(ctx)
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := group.Wait()
	if stopErr := c.poller.Stop(); stopErr != nil {
		c.logger.Warn("poller stop failed", "error", stopErr)
	}
	return err
}

// routeEvents feeds change events into the poller as presence and
// change signals until the source or the context ends.
func (c *Client) routeEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-c.source.Events():
			if !ok {
				return nil
			}
			at := ev.At
			if at.IsZero() {
				at = time.Now()
			}
			if ev.Kind == events.KindPresence {
				c.poller.MarkActivity(at)
				continue
			}
			c.poller.NoteRemoteChange(at)
			c.logger.Debug("change event routed to poller",
				"kind", ev.Kind,
				"conversation_id", ev.ConversationID)
		}
	}
}

// FetchMemories fetches memories for an explicit scope through the
// shared cache and breaker, updating the published dataset.
func (c *Client) FetchMemories(ctx context.Context, opts agentapi.MemoriesOptions) ([]agentapi.Memory, error) {
	if err := c.poller.Fetch(ctx, opts); err != nil {
		return nil, err
	}
	return c.poller.Memories(), nil
}

// RefreshMemories forces one immediate breaker-gated poll of the
// configured scope. Concurrent refreshes coalesce into one fetch.
func (c *Client) RefreshMemories(ctx context.Context) error {
	return c.poller.Refresh(ctx)
}

// Memories returns the latest published dataset.
func (c *Client) Memories() []agentapi.Memory {
	return c.poller.Memories()
}

// Conversations returns the latest derived conversation summaries.
func (c *Client) Conversations() []poller.Conversation {
	return c.poller.Conversations()
}

// GetConversationPreview resolves a preview for one conversation. It
// degrades through cache and fallback data rather than failing.
func (c *Client) GetConversationPreview(ctx context.Context, conversationID string) (preview.Preview, error) {
	return c.preview.GetPreview(ctx, conversationID)
}

// MarkActivity records caller presence for the adaptive interval.
func (c *Client) MarkActivity() {
	c.poller.MarkActivity(time.Now())
}

// Status returns the poller's diagnostic view.
func (c *Client) Status() poller.Status {
	return c.poller.Status()
}

// Close tears the client down: event source first, then the run group,
// preview waiters, and the cache. Safe to call more than once.
func (c *Client) Close() error {
	c.lifecycleMu.Lock()
	if c.closed {
		c.lifecycleMu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	group := c.group
	c.lifecycleMu.Unlock()

	var firstErr error
	if c.source != nil {
		if err := c.source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if cancel != nil {
		cancel()
	}
	if group != nil {
		if err := group.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.preview.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

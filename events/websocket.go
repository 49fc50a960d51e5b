package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/backoff"
)

// WebSocketConfig configures the websocket change-event source.
type WebSocketConfig struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:3000/ws"
	URL string `json:"url" yaml:"url"`

	// Reconnect configures the backoff between reconnect attempts
	Reconnect backoff.Config `json:"reconnect" yaml:"reconnect"`

	// BufferSize is the event channel capacity (default 64)
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// WebSocketSource reads real-time frames from the agent runtime and
// normalizes them into ChangeEvents. Connection failures trigger
// reconnects with backoff; they never propagate to consumers.
type WebSocketSource struct {
	url        string
	normalizer *Normalizer
	calc       *backoff.Calculator
	logger     *slog.Logger
	events     chan ChangeEvent

	cancel  context.CancelFunc
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

// NewWebSocketSource creates and starts a websocket event source.
func NewWebSocketSource(cfg WebSocketConfig, normalizer *Normalizer, logger *slog.Logger) (*WebSocketSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "events", "NewWebSocketSource", "url is required")
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketSource{
		url:        cfg.URL,
		normalizer: normalizer,
		calc:       backoff.New(cfg.Reconnect),
		logger:     logger,
		events:     make(chan ChangeEvent, bufferSize),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go s.run(ctx)

	return s, nil
}

// Events returns the normalized event channel.
func (s *WebSocketSource) Events() <-chan ChangeEvent {
	return s.events
}

// Close stops the read loop and closes the event channel.
func (s *WebSocketSource) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	<-s.done
	return nil
}

// run connects, reads frames, and reconnects with backoff until cancelled.
func (s *WebSocketSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			delay := s.calc.Delay(failures)
			failures++
			s.logger.Debug("websocket dial failed, retrying",
				"url", s.url,
				"delay", delay,
				"error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		failures = 0
		s.logger.Info("websocket event source connected", "url", s.url)
		s.readLoop(ctx, conn)
		_ = conn.Close()
	}
}

// readLoop consumes frames until the connection breaks or ctx is cancelled.
func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	// Unblock ReadMessage when the context is cancelled
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("websocket read failed, reconnecting", "error", err)
			}
			return
		}

		ev, ok := s.normalizer.Normalize(raw)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		default:
			// Consumer is behind; dropping only delays the next poll
		}
	}
}

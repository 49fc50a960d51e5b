package events

import (
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// NATSConfig configures the NATS change-event source. Deployments that
// bridge the agent runtime through NATS publish activity frames on a
// subject instead of (or in addition to) the websocket.
type NATSConfig struct {
	// URL is the NATS server URL, e.g. nats.DefaultURL
	URL string `json:"url" yaml:"url"`

	// Subject is the subject carrying activity frames, e.g. "purl.activity.>"
	Subject string `json:"subject" yaml:"subject"`

	// BufferSize is the event channel capacity (default 64)
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`
}

// NATSSource subscribes to an activity subject and normalizes every
// message through the shared extraction rules.
type NATSSource struct {
	conn       *nats.Conn
	sub        *nats.Subscription
	normalizer *Normalizer
	logger     *slog.Logger
	events     chan ChangeEvent

	closeMu sync.Mutex
	closed  bool
}

// NewNATSSource connects to NATS and starts the subscription.
func NewNATSSource(cfg NATSConfig, normalizer *Normalizer, logger *slog.Logger) (*NATSSource, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "events", "NewNATSSource", "url is required")
	}
	if cfg.Subject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "events", "NewNATSSource", "subject is required")
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

	conn, err := nats.Connect(cfg.URL,
		nats.Name("purlsync-events"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "events", "NewNATSSource", "nats connect")
	}

	s := &NATSSource{
		conn:       conn,
		normalizer: normalizer,
		logger:     logger,
		events:     make(chan ChangeEvent, bufferSize),
	}

	sub, err := conn.Subscribe(cfg.Subject, s.handle)
	if err != nil {
		conn.Close()
		return nil, errors.WrapTransient(err, "events", "NewNATSSource", "subscribe")
	}
	s.sub = sub

	logger.Info("nats event source connected", "url", cfg.URL, "subject", cfg.Subject)

	return s, nil
}

// Events returns the normalized event channel.
func (s *NATSSource) Events() <-chan ChangeEvent {
	return s.events
}

// Close unsubscribes, closes the connection, and closes the event channel.
func (s *NATSSource) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	s.conn.Close()
	close(s.events)
	return nil
}

// handle normalizes one NATS message into the event channel.
func (s *NATSSource) handle(msg *nats.Msg) {
	ev, ok := s.normalizer.Normalize(msg.Data)
	if !ok {
		return
	}

	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	select {
	case s.events <- ev:
	default:
		// Consumer is behind; dropping only delays the next poll
	}
	s.closeMu.Unlock()
}

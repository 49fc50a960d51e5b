package events

// Source is a fire-and-forget stream of canonical change events.
// Implementations deliver best-effort: slow consumers drop events rather
// than block, since a dropped event only delays the poller's next cycle.
type Source interface {
	// Events returns the channel of normalized change events. The channel
	// is closed when the source shuts down.
	Events() <-chan ChangeEvent

	// Close stops the source and closes the event channel.
	Close() error
}

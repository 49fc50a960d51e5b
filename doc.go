// Package purlsync provides a resilient synchronization layer between a
// chat UI and an agent runtime's HTTP memory API, built for upstreams
// that rate limit aggressively and fail intermittently.
//
// # Architecture
//
// The layer has two data paths sharing one set of resilience primitives:
//
// Memory path (read-mostly, periodic):
//   - agentapi: typed HTTP client for the memories resource
//   - poller: adaptive-interval fetch loop publishing memories and
//     derived conversation summaries
//   - pkg/cache: TTL response cache with insertion-order size trimming
//
// Preview path (bursty, demand-driven):
//   - preview: batched, deduplicated conversation preview service with
//     strictly sequential sub-batch pacing
//   - fallback: local persisted messages used when network and cache
//     are exhausted
//
// Shared resilience:
//   - breaker: consecutive-error circuit breaker with rate-limit
//     backoff and an in-flight ceiling
//   - pkg/backoff: exponential backoff with jitter
//   - events: optional real-time change sources (websocket, NATS)
//     feeding presence signals into the poller
//
// Ambient infrastructure:
//   - errors: classified errors (transient, invalid, fatal) with
//     domain sentinels
//   - metric: Prometheus registry and core sync metrics
//   - config: aggregated YAML + environment configuration
//
// # Usage
//
// Everything is assembled through syncclient, one explicitly
// constructed Client per agent session:
//
//	cfg := config.FromEnv()
//	client, err := syncclient.New(cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	go client.Run(ctx)
//
//	pv, _ := client.GetConversationPreview(ctx, conversationID)
//
// The degradation chain is uniform: fresh server data, then cached
// data, then locally persisted fallback data, then explicit emptiness.
// Read surfaces never propagate upstream failures to the UI.
package purlsync

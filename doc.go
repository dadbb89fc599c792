// Package intention mediates calls from application code to generative-model
// providers, layering composable resilience primitives around plain adapter
// interfaces:
//
//   - Deterministic request fingerprinting (canonical payload identity)
//   - Response caching with per-entry TTL and lazy expiry (in-process or Redis)
//   - Single-flight coalescing of concurrent identical requests
//   - Per-provider token-bucket rate limiting with blocking admission
//   - Cost-budget enforcement per caller-defined scope
//   - Failure classification with bounded retries, backoff + jitter and
//     structural repair of malformed responses
//   - Per-provider circuit breakers
//   - Prometheus metrics and structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - No process-wide singletons; all state is constructed and passed in
//   - Safe concurrent use of a single *Coordinator instance
//   - Extensibility via user supplied providers, templates and cache stores
//
// Typical usage:
//
//	coord := intention.New(
//	    intention.WithProvider(adapter),
//	    intention.WithTemplate(summaryTemplate),
//	    intention.WithRateLimit(adapter.ID(), 10, 2),
//	    intention.WithBudget("tenant-a", 100, time.Hour),
//	    intention.WithMaxRetries(3),
//	)
//	resp, err := coord.Execute(ctx, intention.Action{
//	    Template: "summary",
//	    Input:    map[string]any{"text": document},
//	}, "tenant-a")
//
// Concurrent callers issuing the same logical request share one provider call
// and one cost commit; everything else is bounded, classified and surfaced as
// a tagged *Error.
package intention

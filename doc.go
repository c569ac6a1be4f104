// Package backend provides the SoundVault content-access API server.

// This package is only an anchor for module-level documentation. The server
// itself lives in cmd/server and the operator CLI in cmd/streamctl; the
// functionality is organized into subpackages:

// - internal/streaming: the edge orchestrating every protection gate
// - internal/token: signed, time-bounded stream access tokens
// - internal/cipher: authenticated per-track chunk encryption
// - internal/watermark: per-delivery content marking
// - internal/ratelimit: fixed-window request budgets (memory and Redis)
// - internal/abuse: streaming abuse heuristics
// - internal/capability: API keys, permissions, and scope checks
// - internal/catalog: track metadata lookups
// - internal/storage: encrypted chunk storage (S3 and memory)
// - internal/events: asynchronous security event delivery
// - internal/config: environment configuration
// - internal/database: database connection and pooling
// - internal/middleware: HTTP middleware (auth, logging, metrics, tracing)

// See the individual package documentation for details.
package backend

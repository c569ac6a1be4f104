package streaming

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundvault/backend/internal/abuse"
	"github.com/soundvault/backend/internal/catalog"
	"github.com/soundvault/backend/internal/cipher"
	apierrors "github.com/soundvault/backend/internal/errors"
	"github.com/soundvault/backend/internal/events"
	"github.com/soundvault/backend/internal/ratelimit"
	"github.com/soundvault/backend/internal/storage"
	"github.com/soundvault/backend/internal/token"
	"github.com/soundvault/backend/internal/util"
	"github.com/soundvault/backend/internal/watermark"
)

// Config holds the edge's behavior switches, passed in at construction
// instead of being attached to handlers declaratively.
type Config struct {
	// AuditAll additionally emits events for successful operations
	// (token_issued, served), not just denials.
	AuditAll bool
	// DefaultTTL is applied when a token request omits ttl_seconds.
	DefaultTTL time.Duration
	// MaxChunkBytes bounds ingest request bodies.
	MaxChunkBytes int64
}

// Edge orchestrates the protection gates in front of the byte-serving path.
// Gates run strictly in sequence - capability, rate, token, abuse - and the
// first failure terminates the request. Every denial emits exactly one
// security event.
type Edge struct {
	codec    *token.Codec
	payloads *cipher.PayloadCipher
	marker   *watermark.Marker
	limiter  ratelimit.Limiter
	detector *abuse.Detector
	catalog  catalog.Catalog
	chunks   storage.ChunkStore
	emitter  *events.Emitter
	cfg      Config
}

// NewEdge wires the streaming edge. All collaborators are injected; the
// edge owns no mutable state of its own.
func NewEdge(
	codec *token.Codec,
	payloads *cipher.PayloadCipher,
	marker *watermark.Marker,
	limiter ratelimit.Limiter,
	detector *abuse.Detector,
	cat catalog.Catalog,
	chunks storage.ChunkStore,
	emitter *events.Emitter,
	cfg Config,
) *Edge {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = token.DefaultTTL
	}
	if cfg.MaxChunkBytes <= 0 {
		cfg.MaxChunkBytes = 16 << 20
	}
	return &Edge{
		codec:    codec,
		payloads: payloads,
		marker:   marker,
		limiter:  limiter,
		detector: detector,
		catalog:  cat,
		chunks:   chunks,
		emitter:  emitter,
		cfg:      cfg,
	}
}

// RegisterRoutes attaches the streaming endpoints to a router group that
// already carries API key authentication.
func (e *Edge) RegisterRoutes(r gin.IRouter) {
	r.POST("/token", e.IssueToken)
	r.GET("/:track_id/chunks/:index", e.GetChunk)
	r.PUT("/:track_id/chunks/:index", e.PutChunk)
}

// deny sends the error response and emits the single security event for
// this denial.
func (e *Edge) deny(c *gin.Context, eventType events.Type, apiErr *apierrors.APIError, identityKey string, metadata map[string]string) {
	e.emitter.Emit(events.Event{
		Type:        eventType,
		IdentityKey: identityKey,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Endpoint:    c.FullPath(),
		Metadata:    metadata,
	})
	util.RespondWithAPIError(c, apiErr)
}

// audit emits success events when audit-all mode is on.
func (e *Edge) audit(c *gin.Context, eventType events.Type, identityKey string, metadata map[string]string) {
	if !e.cfg.AuditAll {
		return
	}
	e.emitter.Emit(events.Event{
		Type:        eventType,
		IdentityKey: identityKey,
		IP:          c.ClientIP(),
		UserAgent:   c.Request.UserAgent(),
		Endpoint:    c.FullPath(),
		Metadata:    metadata,
	})
}

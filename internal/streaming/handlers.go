package streaming

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/soundvault/backend/internal/abuse"
	"github.com/soundvault/backend/internal/capability"
	"github.com/soundvault/backend/internal/catalog"
	apierrors "github.com/soundvault/backend/internal/errors"
	"github.com/soundvault/backend/internal/events"
	"github.com/soundvault/backend/internal/logger"
	"github.com/soundvault/backend/internal/metrics"
	"github.com/soundvault/backend/internal/ratelimit"
	"github.com/soundvault/backend/internal/storage"
	"github.com/soundvault/backend/internal/token"
	"github.com/soundvault/backend/internal/util"
)

// IssueTokenRequest is the token issuance payload.
type IssueTokenRequest struct {
	TrackID     string   `json:"track_id" binding:"required"`
	UserID      string   `json:"user_id" binding:"required"`
	Permissions []string `json:"permissions"`
	TTLSeconds  int      `json:"ttl_seconds"`
}

// IssueTokenResponse is returned on successful issuance.
type IssueTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
	TrackID   string `json:"track_id"`
}

// IssueToken handles POST /token. Gate order: capability, rate, abuse,
// catalog, then issuance.
func (e *Edge) IssueToken(c *gin.Context) {
	m := metrics.Get()

	identity, ok := util.GetIdentityFromContext(c)
	if !ok {
		return
	}
	scopes, ok := util.GetScopesFromContext(c)
	if !ok {
		return
	}

	var req IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "invalid token request body")
		return
	}

	// Capability gate
	if err := capability.Authorize(scopes, []capability.Permission{capability.PermIssueToken}); err != nil {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope(""), identity, nil)
		return
	}

	// Rate gate
	res, err := e.limiter.Check(c.Request.Context(), identity, ratelimit.RouteToken)
	if err != nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("rate limiter"))
		return
	}
	if !res.Allowed {
		m.RateLimitExceededTotal.WithLabelValues(string(ratelimit.RouteToken)).Inc()
		e.emitter.Emit(events.Event{
			Type:        events.TypeRateLimited,
			IdentityKey: identity,
			IP:          c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Endpoint:    c.FullPath(),
			Metadata:    map[string]string{"retry_after": strconv.Itoa(res.RetryAfter)},
		})
		util.RespondRateLimited(c, res.RetryAfter)
		return
	}

	// Abuse gate: issuance requests carry no chunk index
	verdict := e.detector.Evaluate(req.UserID, req.TrackID, abuse.NotChunkRequest, c.ClientIP())
	if verdict.Abusive {
		m.AbuseDetectedTotal.WithLabelValues(verdict.Reason).Inc()
		e.deny(c, events.TypeAbuseDetected, apierrors.AbuseDetected(verdict.Reason), identity,
			map[string]string{"reason": verdict.Reason, "track_id": req.TrackID})
		return
	}

	// Requested permissions default to stream and must stay within the
	// API key's own scopes - a key cannot mint tokens beyond itself.
	perms := []capability.Permission{capability.PermStream}
	if len(req.Permissions) > 0 {
		perms = perms[:0]
		for _, name := range req.Permissions {
			p, err := capability.ParsePermission(name)
			if err != nil {
				util.RespondBadRequest(c, "unknown permission: "+name)
				return
			}
			perms = append(perms, p)
		}
	}
	if err := capability.Authorize(scopes, perms); err != nil {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope("requested permissions exceed API key scopes"), identity, nil)
		return
	}

	if _, err := e.catalog.Lookup(c.Request.Context(), req.TrackID); err != nil {
		if errors.Is(err, catalog.ErrTrackNotFound) {
			util.RespondNotFound(c, "track")
			return
		}
		util.RespondInternalError(c, "catalog lookup failed")
		return
	}

	ttl := e.cfg.DefaultTTL
	if req.TTLSeconds != 0 {
		if req.TTLSeconds < 0 {
			util.RespondBadRequest(c, "ttl_seconds must be positive")
			return
		}
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	signed, err := e.codec.Issue(req.TrackID, req.UserID, perms, ttl)
	if err != nil {
		if errors.Is(err, token.ErrInvalidTTL) {
			util.RespondBadRequest(c, "ttl_seconds must be positive")
			return
		}
		m.TokensIssuedTotal.WithLabelValues("error").Inc()
		util.RespondInternalError(c, "token issuance failed")
		return
	}

	m.TokensIssuedTotal.WithLabelValues("ok").Inc()
	e.audit(c, events.TypeTokenIssued, identity, map[string]string{
		"track_id": req.TrackID,
		"user_id":  req.UserID,
	})

	c.JSON(http.StatusOK, IssueTokenResponse{
		Token:     signed,
		ExpiresIn: int(ttl.Seconds()),
		TrackID:   req.TrackID,
	})
}

// GetChunk handles GET /:track_id/chunks/:index. Gate order: capability,
// rate, token, abuse, catalog, then decrypt + watermark + serve.
func (e *Edge) GetChunk(c *gin.Context) {
	m := metrics.Get()

	identity, ok := util.GetIdentityFromContext(c)
	if !ok {
		return
	}
	scopes, ok := util.GetScopesFromContext(c)
	if !ok {
		return
	}

	trackID := c.Param("track_id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		util.RespondBadRequest(c, "chunk index must be a non-negative integer")
		return
	}

	// Capability gate
	if err := capability.Authorize(scopes, []capability.Permission{capability.PermStream}); err != nil {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope(""), identity, nil)
		return
	}

	// Rate gate
	res, err := e.limiter.Check(c.Request.Context(), identity, ratelimit.RouteStream)
	if err != nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("rate limiter"))
		return
	}
	if !res.Allowed {
		m.RateLimitExceededTotal.WithLabelValues(string(ratelimit.RouteStream)).Inc()
		e.emitter.Emit(events.Event{
			Type:        events.TypeRateLimited,
			IdentityKey: identity,
			IP:          c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Endpoint:    c.FullPath(),
			Metadata:    map[string]string{"retry_after": strconv.Itoa(res.RetryAfter)},
		})
		util.RespondRateLimited(c, res.RetryAfter)
		return
	}

	// Token gate
	claims, apiErr := e.verifyBearer(c)
	if apiErr != nil {
		m.TokenVerificationsTotal.WithLabelValues(strings.ToLower(string(apiErr.Code))).Inc()
		e.deny(c, events.TypeTokenDenied, apiErr, identity, map[string]string{"track_id": trackID})
		return
	}
	m.TokenVerificationsTotal.WithLabelValues("ok").Inc()

	// A token for another track grants nothing here
	if claims.TrackID != trackID {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope("token not valid for this track"), identity,
			map[string]string{"track_id": trackID, "token_track_id": claims.TrackID})
		return
	}
	if !claims.Allows(capability.PermStream) {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope("token does not grant streaming"), identity,
			map[string]string{"track_id": trackID})
		return
	}

	// Abuse gate, scoped to the streaming user
	verdict := e.detector.Evaluate(claims.UserID, trackID, index, c.ClientIP())
	if verdict.Abusive {
		m.AbuseDetectedTotal.WithLabelValues(verdict.Reason).Inc()
		e.deny(c, events.TypeAbuseDetected, apierrors.AbuseDetected(verdict.Reason), identity,
			map[string]string{"reason": verdict.Reason, "track_id": trackID})
		return
	}

	track, err := e.catalog.Lookup(c.Request.Context(), trackID)
	if err != nil {
		if errors.Is(err, catalog.ErrTrackNotFound) {
			util.RespondNotFound(c, "track")
			return
		}
		util.RespondInternalError(c, "catalog lookup failed")
		return
	}
	if track.ChunkCount > 0 && index >= track.ChunkCount {
		util.RespondNotFound(c, "chunk")
		return
	}

	ciphertext, err := e.chunks.Get(c.Request.Context(), trackID, index)
	if err != nil {
		if errors.Is(err, storage.ErrChunkNotFound) {
			util.RespondNotFound(c, "chunk")
			return
		}
		util.RespondInternalError(c, "chunk fetch failed")
		return
	}

	plaintext, err := e.payloads.Decrypt(trackID, ciphertext)
	if err != nil {
		// Integrity violation or resource mismatch: always logged, never
		// detailed to the client, never retried with different keys.
		m.DecryptionFailuresTotal.Inc()
		logger.Error("chunk decryption failed",
			logger.WithTrackID(trackID),
			zap.Int("chunk_index", index),
			zap.Error(err),
		)
		e.deny(c, events.TypeDecryptionFailure, apierrors.DecryptionFailure(), identity,
			map[string]string{"track_id": trackID, "chunk_index": strconv.Itoa(index)})
		return
	}

	mark := e.marker.Mark(claims.UserID, trackID)

	m.ChunksServedTotal.Inc()
	e.audit(c, events.TypeServed, identity, map[string]string{
		"track_id":    trackID,
		"chunk_index": strconv.Itoa(index),
		"watermark":   mark,
	})

	c.Header("X-Watermark", mark)
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.Data(http.StatusOK, "application/octet-stream", plaintext)
}

// PutChunk handles PUT /:track_id/chunks/:index: encrypts a plaintext chunk
// and stores it. The write path for ingest tooling.
func (e *Edge) PutChunk(c *gin.Context) {
	m := metrics.Get()

	identity, ok := util.GetIdentityFromContext(c)
	if !ok {
		return
	}
	scopes, ok := util.GetScopesFromContext(c)
	if !ok {
		return
	}

	trackID := c.Param("track_id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		util.RespondBadRequest(c, "chunk index must be a non-negative integer")
		return
	}

	if err := capability.Authorize(scopes, []capability.Permission{capability.PermIngest}); err != nil {
		m.ScopeDeniedTotal.WithLabelValues(c.FullPath()).Inc()
		e.deny(c, events.TypeScopeDenied, apierrors.InsufficientScope(""), identity, nil)
		return
	}

	res, err := e.limiter.Check(c.Request.Context(), identity, ratelimit.RouteDefault)
	if err != nil {
		util.RespondWithAPIError(c, apierrors.ServiceUnavailable("rate limiter"))
		return
	}
	if !res.Allowed {
		m.RateLimitExceededTotal.WithLabelValues(string(ratelimit.RouteDefault)).Inc()
		e.emitter.Emit(events.Event{
			Type:        events.TypeRateLimited,
			IdentityKey: identity,
			IP:          c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Endpoint:    c.FullPath(),
			Metadata:    map[string]string{"retry_after": strconv.Itoa(res.RetryAfter)},
		})
		util.RespondRateLimited(c, res.RetryAfter)
		return
	}

	plaintext, err := io.ReadAll(io.LimitReader(c.Request.Body, e.cfg.MaxChunkBytes+1))
	if err != nil {
		util.RespondBadRequest(c, "failed to read chunk body")
		return
	}
	if int64(len(plaintext)) > e.cfg.MaxChunkBytes {
		util.RespondBadRequest(c, "chunk exceeds maximum size")
		return
	}

	ciphertext, err := e.payloads.Encrypt(trackID, plaintext)
	if err != nil {
		logger.ErrorWithFields("chunk encryption failed", err)
		util.RespondInternalError(c, "chunk encryption failed")
		return
	}

	if err := e.chunks.Put(c.Request.Context(), trackID, index, ciphertext); err != nil {
		util.RespondInternalError(c, "chunk store failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"track_id":    trackID,
		"chunk_index": index,
		"stored":      len(ciphertext),
	})
}

// verifyBearer extracts and verifies the access token from the
// Authorization header, mapping codec errors onto the API error taxonomy.
func (e *Edge) verifyBearer(c *gin.Context) (*token.AccessToken, *apierrors.APIError) {
	header := c.GetHeader("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return nil, apierrors.Malformed("missing bearer token")
	}

	claims, err := e.codec.Verify(raw)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			return nil, apierrors.Expired()
		case errors.Is(err, token.ErrInvalidSignature):
			return nil, apierrors.InvalidSignature()
		default:
			return nil, apierrors.Malformed("token malformed")
		}
	}
	return claims, nil
}

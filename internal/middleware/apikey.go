package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/soundvault/backend/internal/capability"
	"github.com/soundvault/backend/internal/logger"
	"github.com/soundvault/backend/internal/util"
)

// APIKeyAuth authenticates requests with an X-API-Key header formatted
// "keyID.secret" and stores the caller's identity key and scope set in the
// request context. Authentication only; scope enforcement happens at the
// individual gates.
func APIKeyAuth(registry *capability.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			util.RespondUnauthorized(c, "missing API key")
			return
		}

		keyID, secret, found := strings.Cut(raw, ".")
		if !found || keyID == "" || secret == "" {
			util.RespondUnauthorized(c, "malformed API key")
			return
		}

		scopes, err := registry.Authenticate(keyID, secret)
		if err != nil {
			if errors.Is(err, capability.ErrKeyNotFound) ||
				errors.Is(err, capability.ErrBadSecret) ||
				errors.Is(err, capability.ErrKeyDisabled) {
				logger.Warn("API key rejected",
					zap.String("key_id", keyID),
					logger.WithIP(c.ClientIP()),
				)
				util.RespondUnauthorized(c, "invalid API key")
				return
			}
			logger.ErrorWithFields("API key lookup failed", err)
			util.RespondInternalError(c, "authentication unavailable")
			return
		}

		c.Set(util.ContextIdentityKey, keyID)
		c.Set(util.ContextScopes, scopes)
		c.Next()
	}
}

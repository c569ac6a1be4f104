package util

import (
	"github.com/gin-gonic/gin"

	"github.com/soundvault/backend/internal/capability"
)

const (
	// ContextIdentityKey is the gin context key holding the caller's identity key
	ContextIdentityKey = "identity_key"
	// ContextScopes is the gin context key holding the caller's API key scopes
	ContextScopes = "api_key_scopes"
)

// GetIdentityFromContext extracts the caller's identity key from the Gin context.
// Returns the key and true if found, or empty string and false if the request
// was not authenticated. On failure it responds with 401 Unauthorized.
func GetIdentityFromContext(c *gin.Context) (string, bool) {
	v, exists := c.Get(ContextIdentityKey)
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	key, ok := v.(string)
	if !ok || key == "" {
		RespondInternalError(c, "invalid identity in request context")
		return "", false
	}
	return key, true
}

// GetScopesFromContext extracts the API key scopes from the Gin context.
// Missing scopes mean the API key middleware did not run; respond 401.
func GetScopesFromContext(c *gin.Context) ([]capability.Permission, bool) {
	v, exists := c.Get(ContextScopes)
	if !exists {
		RespondUnauthorized(c)
		return nil, false
	}
	scopes, ok := v.([]capability.Permission)
	if !ok {
		RespondInternalError(c, "invalid scopes in request context")
		return nil, false
	}
	return scopes, true
}

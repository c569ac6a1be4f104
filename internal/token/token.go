package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soundvault/backend/internal/capability"
)

var (
	ErrInvalidTTL       = errors.New("token ttl must be positive")
	ErrMalformed        = errors.New("token malformed")
	ErrExpired          = errors.New("token expired")
	ErrInvalidSignature = errors.New("token signature invalid")
)

// DefaultTTL is applied when Issue is called with a zero ttl.
const DefaultTTL = time.Hour

// AccessToken holds the decoded claims of a verified token.
// Immutable once issued; expiry comparisons use wall-clock whole seconds.
type AccessToken struct {
	TrackID     string
	UserID      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	Permissions []capability.Permission
}

// Allows reports whether the token grants the given permission.
func (t *AccessToken) Allows(p capability.Permission) bool {
	for _, have := range t.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

type claims struct {
	TrackID     string   `json:"trk"`
	Permissions []string `json:"prm"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed access tokens. The signing secret is
// process-wide and must stay stable for the lifetime of outstanding tokens;
// rotating it invalidates everything issued under the old secret.
type Codec struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCodec creates a token codec with the given HMAC signing secret.
func NewCodec(secret []byte, defaultTTL time.Duration) *Codec {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Codec{
		secret:     secret,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Issue constructs and signs a token binding a track, a user, and a
// permission set. A zero ttl selects the configured default; a negative
// ttl is rejected with ErrInvalidTTL.
func (c *Codec) Issue(trackID, userID string, perms []capability.Permission, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}

	now := c.now().Truncate(time.Second)
	permNames := make([]string, len(perms))
	for i, p := range perms {
		permNames[i] = string(p)
	}

	cl := claims{
		TrackID:     trackID,
		Permissions: permNames,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, cl)
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and authenticates a token, returning the decoded claims.
// Failures map to exactly one of ErrExpired, ErrInvalidSignature or
// ErrMalformed so the caller can surface the right denial.
func (c *Codec) Verify(tokenString string) (*AccessToken, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)

	var cl claims
	tok, err := parser.ParseWithClaims(tokenString, &cl, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformed
		}
	}
	if !tok.Valid {
		return nil, ErrMalformed
	}
	if cl.TrackID == "" || cl.Subject == "" || cl.IssuedAt == nil {
		return nil, ErrMalformed
	}

	perms := make([]capability.Permission, 0, len(cl.Permissions))
	for _, name := range cl.Permissions {
		p, err := capability.ParsePermission(name)
		if err != nil {
			return nil, ErrMalformed
		}
		perms = append(perms, p)
	}

	return &AccessToken{
		TrackID:     cl.TrackID,
		UserID:      cl.Subject,
		IssuedAt:    cl.IssuedAt.Time,
		ExpiresAt:   cl.ExpiresAt.Time,
		Permissions: perms,
	}, nil
}

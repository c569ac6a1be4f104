package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundvault/backend/internal/abuse"
	"github.com/soundvault/backend/internal/capability"
	"github.com/soundvault/backend/internal/catalog"
	"github.com/soundvault/backend/internal/cipher"
	"github.com/soundvault/backend/internal/events"
	"github.com/soundvault/backend/internal/logger"
	"github.com/soundvault/backend/internal/ratelimit"
	"github.com/soundvault/backend/internal/storage"
	"github.com/soundvault/backend/internal/token"
	"github.com/soundvault/backend/internal/util"
	"github.com/soundvault/backend/internal/watermark"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.InitializeSilent()
	m.Run()
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Write(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) ofType(t events.Type) []events.Event {
	var out []events.Event
	for _, ev := range s.all() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	router   *gin.Engine
	codec    *token.Codec
	payloads *cipher.PayloadCipher
	chunks   *storage.MemoryChunkStore
	catalog  *catalog.MemoryCatalog
	sink     *recordingSink
	emitter  *events.Emitter
}

// flush closes the emitter so every pending event reaches the sink.
func (env *testEnv) flush() {
	env.emitter.Close()
}

const testSigningSecret = "0123456789abcdef0123456789abcdef"

func newTestEnv(t *testing.T, cfg Config, table ratelimit.Table, scopes []capability.Permission) *testEnv {
	t.Helper()

	codec := token.NewCodec([]byte(testSigningSecret), time.Hour)
	payloads, err := cipher.NewPayloadCipher([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)

	if table == nil {
		table = ratelimit.DefaultTable()
	}
	limiter := ratelimit.NewMemoryLimiter(table)
	t.Cleanup(limiter.Stop)

	cat := catalog.NewMemoryCatalog()
	cat.Put(catalog.Track{ID: "trk_1", Title: "First Light", ChunkCount: 3, Streamable: true})

	chunks := storage.NewMemoryChunkStore()
	sink := &recordingSink{}
	emitter := events.NewEmitter(sink, 64)
	t.Cleanup(emitter.Close)

	edge := NewEdge(
		codec,
		payloads,
		watermark.NewMarker(),
		limiter,
		abuse.NewDetector(abuse.DefaultThresholds()),
		cat,
		chunks,
		emitter,
		cfg,
	)

	router := gin.New()
	group := router.Group("/api/v1/stream")
	group.Use(func(c *gin.Context) {
		c.Set(util.ContextIdentityKey, "key_test")
		c.Set(util.ContextScopes, scopes)
		c.Next()
	})
	edge.RegisterRoutes(group)

	return &testEnv{
		router:   router,
		codec:    codec,
		payloads: payloads,
		chunks:   chunks,
		catalog:  cat,
		sink:     sink,
		emitter:  emitter,
	}
}

func (env *testEnv) seedChunk(t *testing.T, trackID string, index int, plaintext []byte) {
	t.Helper()
	ciphertext, err := env.payloads.Encrypt(trackID, plaintext)
	require.NoError(t, err)
	require.NoError(t, env.chunks.Put(context.Background(), trackID, index, ciphertext))
}

func (env *testEnv) do(method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) issueToken(t *testing.T, trackID, userID string) string {
	t.Helper()
	body, _ := json.Marshal(IssueTokenRequest{TrackID: trackID, UserID: userID})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp IssueTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp util.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func fullScopes() []capability.Permission {
	return []capability.Permission{capability.PermIssueToken, capability.PermStream, capability.PermIngest}
}

func TestIssueTokenSuccess(t *testing.T) {
	env := newTestEnv(t, Config{AuditAll: true}, nil, fullScopes())

	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_1", UserID: "user_1"})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp IssueTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "trk_1", resp.TrackID)

	claims, err := env.codec.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "trk_1", claims.TrackID)
	assert.Equal(t, "user_1", claims.UserID)
	assert.True(t, claims.Allows(capability.PermStream))

	env.flush()
	issued := env.sink.ofType(events.TypeTokenIssued)
	require.Len(t, issued, 1)
	assert.Equal(t, "key_test", issued[0].IdentityKey)
	assert.Equal(t, "trk_1", issued[0].Metadata["track_id"])
}

func TestIssueTokenCustomTTL(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())

	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_1", UserID: "user_1", TTLSeconds: 90})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp IssueTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 90, resp.ExpiresIn)
}

func TestIssueTokenNegativeTTL(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())

	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_1", UserID: "user_1", TTLSeconds: -5})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueTokenUnknownTrack(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())

	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_missing", UserID: "user_1"})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIssueTokenScopeDenied(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, []capability.Permission{capability.PermStream})

	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_1", UserID: "user_1"})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, w))

	env.flush()
	all := env.sink.all()
	require.Len(t, all, 1)
	assert.Equal(t, events.TypeScopeDenied, all[0].Type)
}

func TestIssueTokenPermissionsExceedKey(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, []capability.Permission{capability.PermIssueToken, capability.PermStream})

	body, _ := json.Marshal(IssueTokenRequest{
		TrackID:     "trk_1",
		UserID:      "user_1",
		Permissions: []string{"ingest"},
	})
	w := env.do(http.MethodPost, "/api/v1/stream/token", body, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, w))
}

func TestGetChunkServed(t *testing.T) {
	env := newTestEnv(t, Config{AuditAll: true}, nil, fullScopes())
	plaintext := []byte("opus frame data for chunk zero")
	env.seedChunk(t, "trk_1", 0, plaintext)

	tok := env.issueToken(t, "trk_1", "user_1")
	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, plaintext, w.Body.Bytes())
	assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{16}$`), w.Header().Get("X-Watermark"))

	env.flush()
	served := env.sink.ofType(events.TypeServed)
	require.Len(t, served, 1)
	assert.Equal(t, w.Header().Get("X-Watermark"), served[0].Metadata["watermark"])
}

func TestGetChunkTokenDenials(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))

	otherCodec := token.NewCodec([]byte("another-secret-another-secret-00"), time.Hour)
	forged, err := otherCodec.Issue("trk_1", "user_1", []capability.Permission{capability.PermStream}, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"missing header", "", "MALFORMED"},
		{"not a token", "Bearer not.a.token", "MALFORMED"},
		{"wrong secret", "Bearer " + forged, "INVALID_SIGNATURE"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, w))
		})
	}

	env.flush()
	denied := env.sink.ofType(events.TypeTokenDenied)
	assert.Len(t, denied, len(cases))
}

func TestGetChunkExpiredToken(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))

	// signed with the right secret but already expired
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user_1",
		"trk": "trk_1",
		"prm": []string{"stream"},
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte(testSigningSecret))
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + signed,
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "EXPIRED", errorCode(t, w))

	env.flush()
	denied := env.sink.ofType(events.TypeTokenDenied)
	require.Len(t, denied, 1)
}

func TestGetChunkTokenForOtherTrack(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))

	tok, err := env.codec.Issue("trk_2", "user_1", []capability.Permission{capability.PermStream}, time.Hour)
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, w))
}

func TestGetChunkTokenWithoutStreamPermission(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))

	tok, err := env.codec.Issue("trk_1", "user_1", []capability.Permission{capability.PermDownloadPreview}, time.Hour)
	require.NoError(t, err)

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, w))
}

func TestGetChunkRateLimited(t *testing.T) {
	table := ratelimit.Table{
		ratelimit.RouteToken:   {Limit: 30, Window: time.Minute},
		ratelimit.RouteStream:  {Limit: 2, Window: time.Minute},
		ratelimit.RouteDefault: {Limit: 100, Window: time.Minute},
	}
	env := newTestEnv(t, Config{}, table, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))
	tok := env.issueToken(t, "trk_1", "user_1")

	headers := map[string]string{"Authorization": "Bearer " + tok}
	for i := 0; i < 2; i++ {
		w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, headers)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "RATE_LIMITED", resp["code"])
	assert.NotNil(t, resp["retry_after"])

	env.flush()
	limited := env.sink.ofType(events.TypeRateLimited)
	require.Len(t, limited, 1)
}

func TestGetChunkCorruptCiphertext(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	require.NoError(t, env.chunks.Put(context.Background(), "trk_1", 0, []byte("definitely not a sealed chunk")))
	tok := env.issueToken(t, "trk_1", "user_1")

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "DECRYPTION_FAILURE", errorCode(t, w))
	// client response carries no cipher internals
	assert.NotContains(t, w.Body.String(), "message authentication")

	env.flush()
	failures := env.sink.ofType(events.TypeDecryptionFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, "trk_1", failures[0].Metadata["track_id"])
}

func TestGetChunkWrongTrackKeyFailsDecryption(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.catalog.Put(catalog.Track{ID: "trk_2", Title: "Second", ChunkCount: 3, Streamable: true})

	// chunk sealed under trk_2's derived key, stored at trk_1's path
	ciphertext, err := env.payloads.Encrypt("trk_2", []byte("cross-track payload"))
	require.NoError(t, err)
	require.NoError(t, env.chunks.Put(context.Background(), "trk_1", 0, ciphertext))

	tok := env.issueToken(t, "trk_1", "user_1")
	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "DECRYPTION_FAILURE", errorCode(t, w))
}

func TestGetChunkIndexOutOfRange(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	tok := env.issueToken(t, "trk_1", "user_1")

	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/99", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/-1", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEveryDenialEmitsExactlyOneEvent(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, []capability.Permission{capability.PermIngest})

	// scope denial on both endpoints, one event each
	body, _ := json.Marshal(IssueTokenRequest{TrackID: "trk_1", UserID: "user_1"})
	env.do(http.MethodPost, "/api/v1/stream/token", body, nil)
	env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, nil)

	env.flush()
	all := env.sink.all()
	require.Len(t, all, 2)
	for _, ev := range all {
		assert.Equal(t, events.TypeScopeDenied, ev.Type)
	}
}

func TestAuditAllOffEmitsNothingOnSuccess(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	env.seedChunk(t, "trk_1", 0, []byte("payload"))

	tok := env.issueToken(t, "trk_1", "user_1")
	w := env.do(http.MethodGet, "/api/v1/stream/trk_1/chunks/0", nil, map[string]string{
		"Authorization": "Bearer " + tok,
	})
	require.Equal(t, http.StatusOK, w.Code)

	env.flush()
	assert.Empty(t, env.sink.all())
}

func TestPutChunkRoundTrip(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, fullScopes())
	plaintext := []byte("fresh ingest payload")

	w := env.do(http.MethodPut, "/api/v1/stream/trk_1/chunks/1", plaintext, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// stored ciphertext decrypts back under the track key
	stored, err := env.chunks.Get(context.Background(), "trk_1", 1)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, stored)

	got, err := env.payloads.Decrypt("trk_1", stored)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestPutChunkRequiresIngestScope(t *testing.T) {
	env := newTestEnv(t, Config{}, nil, []capability.Permission{capability.PermStream, capability.PermIssueToken})

	w := env.do(http.MethodPut, "/api/v1/stream/trk_1/chunks/0", []byte("payload"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INSUFFICIENT_SCOPE", errorCode(t, w))
}

func TestPutChunkTooLarge(t *testing.T) {
	env := newTestEnv(t, Config{MaxChunkBytes: 64}, nil, fullScopes())

	w := env.do(http.MethodPut, "/api/v1/stream/trk_1/chunks/0", make([]byte, 65), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

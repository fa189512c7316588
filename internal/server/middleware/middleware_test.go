package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/easybet/internal/crypto"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitPerClient(t *testing.T) {
	h := RateLimit(NewLocalLimiter(0), 2, time.Minute, discard)(okHandler())

	hit := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/token", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, hit("1.1.1.1"))
	assert.Equal(t, http.StatusOK, hit("1.1.1.1"))
	assert.Equal(t, http.StatusTooManyRequests, hit("1.1.1.1"))
	assert.Equal(t, http.StatusOK, hit("2.2.2.2"))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	h := RateLimit(failingLimiter{}, 1, time.Second, discard)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := CORS([]string{"https://app.easybet.example"})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/projects", nil)
	req.Header.Set("Origin", "https://app.easybet.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.easybet.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), crypto.HeaderSignature)

	req = httptest.NewRequest(http.MethodGet, "/api/projects", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestActorHeaderMode(t *testing.T) {
	var seen common.Address
	var had bool
	h := Actor(AuthConfig{Mode: AuthHeader})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, had = ActorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.False(t, had)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(crypto.HeaderAddress, "0x0000000000000000000000000000000000000011")
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.True(t, had)
	assert.Equal(t, common.HexToAddress("0x11"), seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(crypto.HeaderAddress, "bob")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKey(t *testing.T) {
	h := APIKey("s3cret")(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	APIKey("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	s := NewMemoryIdempotencyStore()
	s.now = func() time.Time { return now }

	ok, err := s.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.Reserve(ctx, "k", time.Minute)
	assert.False(t, ok)

	data, _ := s.Load(ctx, "k")
	assert.Nil(t, data, "a reservation has no response yet")

	require.NoError(t, s.Save(ctx, "k", []byte("resp"), time.Minute))
	data, _ = s.Load(ctx, "k")
	assert.Equal(t, []byte("resp"), data)

	now = now.Add(2 * time.Minute)
	data, _ = s.Load(ctx, "k")
	assert.Nil(t, data)

	ok, _ = s.Reserve(ctx, "k", time.Minute)
	assert.True(t, ok)
	require.NoError(t, s.Release(ctx, "k"))
	ok, _ = s.Reserve(ctx, "k", time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	s.Cleanup()
	assert.Empty(t, s.entries)
}

func TestIdempotencyReleasesOnServerError(t *testing.T) {
	calls := 0
	h := Idempotency(NewMemoryIdempotencyStore(), time.Minute, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/projects", nil)
		req.Header.Set(IdempotencyHeader, "retry-me")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusInternalServerError, send())
	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, http.StatusCreated, send())
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeysSignedRequestsOnSignature(t *testing.T) {
	calls := 0
	h := Idempotency(NewMemoryIdempotencyStore(), time.Minute, discard)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	caller := common.HexToAddress("0x11")

	send := func(sig string, withActor bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/token/transfer", nil)
		if sig != "" {
			req.Header.Set(crypto.HeaderSignature, sig)
		}
		if withActor {
			req = req.WithContext(WithActor(req.Context(), caller))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("0xABCD", true).Code)
	rec := send("0xabcd", true)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	send("0xbeef", true)
	assert.Equal(t, 2, calls)

	// Unsigned or unauthenticated requests are never deduplicated implicitly.
	send("", true)
	send("", true)
	send("0xbeef", false)
	assert.Equal(t, 5, calls)
}

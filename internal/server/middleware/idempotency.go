package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/easybet/internal/crypto"
	"github.com/alanyoungcy/easybet/internal/domain"
)

// IdempotencyHeader is the client-supplied retry key.
const IdempotencyHeader = "Idempotency-Key"

// storedResponse is what is kept per idempotency key.
type storedResponse struct {
	RequestHash string `json:"requestHash"`
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Idempotency returns middleware that replays the first response for a
// repeated Idempotency-Key on POST and DELETE requests. Keys are scoped to
// the caller and route. Reusing a key with a different body, or while the
// first request is still running, yields 409. Store errors fail open.
//
// A signed request without an Idempotency-Key is keyed on its signature, so
// a captured request resent within the skew window gets the stored response
// instead of running again. ttl must outlast twice the signature skew.
func Idempotency(store domain.IdempotencyStore, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idem := requestKey(r)
			if idem == "" || (r.Method != http.MethodPost && r.Method != http.MethodDelete) {
				next.ServeHTTP(w, r)
				return
			}
			if len(idem) > 255 {
				writeJSONError(w, http.StatusBadRequest, "idempotency key too long", "InvalidParameters")
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
				if err != nil {
					writeJSONError(w, http.StatusBadRequest, "failed to read request body", "InvalidParameters")
					return
				}
				r.Body.Close()
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			sum := sha256.Sum256(body)
			hash := hex.EncodeToString(sum[:])

			actor, _ := ActorFrom(r.Context())
			key := "idem:" + actor.Hex() + ":" + r.Method + " " + r.URL.Path + ":" + idem
			ctx := r.Context()

			saved, err := store.Load(ctx, key)
			if err != nil {
				logger.WarnContext(ctx, "middleware: idempotency store unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if saved != nil {
				replay(w, saved, hash)
				return
			}

			ok, err := store.Reserve(ctx, key, ttl)
			if err != nil {
				logger.WarnContext(ctx, "middleware: idempotency store unavailable", slog.String("error", err.Error()))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				writeJSONError(w, http.StatusConflict, "request with this idempotency key is in progress", "RequestConflict")
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			// Server errors leave the key free so the client can retry.
			if rec.status >= http.StatusInternalServerError {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					logger.WarnContext(ctx, "middleware: idempotency release failed", slog.String("error", err.Error()))
				}
				return
			}
			data, _ := json.Marshal(storedResponse{
				RequestHash: hash,
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.buf.Bytes(),
			})
			if err := store.Save(context.WithoutCancel(ctx), key, data, ttl); err != nil {
				logger.WarnContext(ctx, "middleware: idempotency save failed", slog.String("error", err.Error()))
			}
		})
	}
}

// requestKey is the client's Idempotency-Key, or the signature of a signed
// request from an authenticated caller.
func requestKey(r *http.Request) string {
	if idem := r.Header.Get(IdempotencyHeader); idem != "" {
		return idem
	}
	if _, ok := ActorFrom(r.Context()); !ok {
		return ""
	}
	if sig := r.Header.Get(crypto.HeaderSignature); sig != "" {
		return "sig:" + strings.ToLower(strings.TrimPrefix(sig, "0x"))
	}
	return ""
}

func replay(w http.ResponseWriter, saved []byte, hash string) {
	var resp storedResponse
	if err := json.Unmarshal(saved, &resp); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "corrupt idempotency record", "Internal")
		return
	}
	if resp.RequestHash != hash {
		writeJSONError(w, http.StatusConflict, domain.ErrRequestConflict.Error(), "RequestConflict")
		return
	}
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// recordingWriter copies the response into a buffer as it is written.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.buf.Write(b)
	return rw.ResponseWriter.Write(b)
}

// MemoryIdempotencyStore keeps idempotency records in process memory. It
// serves standalone mode, where there is only one API instance.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if ok && !now.Before(e.expires) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, ok := s.live(key, now); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{expires: now.Add(ttl)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, key string, resp []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{data: bytes.Clone(resp), expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key, s.now())
	if !ok {
		return nil, nil
	}
	return e.data, nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Cleanup removes expired entries. Call it periodically.
func (s *MemoryIdempotencyStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}

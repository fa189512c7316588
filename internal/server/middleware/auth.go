package middleware

import (
	"bytes"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/easybet/internal/crypto"
)

// Actor authentication modes.
const (
	AuthSignature = "signature"
	AuthHeader    = "header"
)

// DefaultMaxSkew is the accepted clock difference for signed requests when
// AuthConfig leaves it unset.
const DefaultMaxSkew = 5 * time.Minute

// maxSignedBody caps how much of a request body is read to verify its hash.
const maxSignedBody = 1 << 20

type actorKey struct{}

// WithActor returns a copy of ctx carrying the authenticated caller.
func WithActor(ctx context.Context, actor common.Address) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated caller, if the request had one.
func ActorFrom(ctx context.Context) (common.Address, bool) {
	a, ok := ctx.Value(actorKey{}).(common.Address)
	return a, ok
}

// AuthConfig selects how callers prove their identity.
type AuthConfig struct {
	// Mode is AuthSignature or AuthHeader.
	Mode    string
	MaxSkew time.Duration
	// Now is the time source for skew checks. Defaults to time.Now.
	Now func() time.Time
}

// Actor returns middleware that attaches the caller's address to the request
// context. Requests without an X-EasyBet-Address header pass through
// anonymously; handlers decide whether an actor is required. A request that
// names an address but fails verification is rejected with 401.
func Actor(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxSkew <= 0 {
		cfg.MaxSkew = DefaultMaxSkew
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(crypto.HeaderAddress))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !common.IsHexAddress(raw) {
				writeUnauthorized(w, "malformed "+crypto.HeaderAddress)
				return
			}
			claimed := common.HexToAddress(raw)

			if cfg.Mode != AuthHeader {
				if err := verifySignature(r, claimed, cfg); err != nil {
					writeUnauthorized(w, err.Error())
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), claimed)))
		})
	}
}

// verifySignature checks the EIP-191 signature headers against the claimed
// address. The body is read and restored so handlers can decode it.
func verifySignature(r *http.Request, claimed common.Address, cfg AuthConfig) error {
	tsRaw := r.Header.Get(crypto.HeaderTimestamp)
	sig := r.Header.Get(crypto.HeaderSignature)
	if tsRaw == "" || sig == "" {
		return errors.New("missing signature headers")
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return errors.New("malformed " + crypto.HeaderTimestamp)
	}
	skew := cfg.Now().Sub(time.Unix(ts, 0))
	if skew > cfg.MaxSkew || skew < -cfg.MaxSkew {
		return fmt.Errorf("timestamp outside allowed skew of %s", cfg.MaxSkew)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
		if err != nil {
			return errors.New("failed to read request body")
		}
		if len(body) > maxSignedBody {
			return errors.New("request body too large")
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	signer, err := crypto.RecoverRequestSigner(r.Method, r.URL.Path, ts, body, sig)
	if err != nil {
		return err
	}
	if signer != claimed {
		return errors.New("signature does not match address")
	}
	return nil
}

// APIKey returns middleware that requires a static key in the Authorization
// (Bearer) or X-API-Key header. An empty apiKey disables the check.
func APIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := extractToken(r)
			if token == "" {
				writeUnauthorized(w, "missing api key")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeUnauthorized(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg, "Unauthenticated")
}

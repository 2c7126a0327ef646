// Package verifier lets relying parties verify keytrust tokens offline against the
// public JWKS endpoint. Keys are cached and refreshed by ETag when a token names a
// key id the cache has not seen, so a rotation on the server needs no coordination.
package verifier

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrKidNotFound  = errors.New("kid not found in JWKS")
	ErrNoKeysFound  = errors.New("no keys found in JWKS response")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

const (
	defaultHTTPTimeout        = 10 * time.Second
	defaultMinRefreshInterval = 10 * time.Second
)

// Claims is the verified content of a keytrust token.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string `json:"user_id,omitempty"`
	Authorities string `json:"authorities,omitempty"`
}

// AuthorityList splits the space-delimited authorities claim.
func (c *Claims) AuthorityList() []string {
	return strings.Fields(c.Authorities)
}

// Options tune a Verifier. The zero value is usable.
type Options struct {
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
	// MinRefreshInterval rate limits JWKS fetches triggered by unknown key ids.
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Verifier is a thread-safe client for fetching and caching the JWKS and verifying tokens against it.
type Verifier struct {
	jwksURL string
	opts    Options
	parser  *jwt.Parser

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastETag    string
	lastRefresh time.Time
	refreshMu   sync.Mutex
}

// New creates a Verifier for the JWKS served at jwksURL. Keys are fetched lazily.
func New(jwksURL string, opts Options) *Verifier {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = defaultMinRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(opts.Now),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	return &Verifier{
		jwksURL: jwksURL,
		opts:    opts,
		parser:  jwt.NewParser(parserOpts...),
		keys:    make(map[string]*rsa.PublicKey),
	}
}

// Refresh fetches the JWKS, sending the last ETag so an unchanged set costs a 304.
func (v *Verifier) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()
	return v.fetch(ctx)
}

func (v *Verifier) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}

	v.mu.RLock()
	if v.lastETag != "" {
		req.Header.Set("If-None-Match", v.lastETag)
	}
	v.mu.RUnlock()

	resp, err := v.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	now := v.opts.Now()
	if resp.StatusCode == http.StatusNotModified {
		v.mu.Lock()
		v.lastRefresh = now
		v.mu.Unlock()
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch JWKS: status code %d", resp.StatusCode)
	}

	var jwks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return err
	}
	if len(jwks.Keys) == 0 {
		return ErrNoKeysFound
	}

	keys := make(map[string]*rsa.PublicKey, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Algorithm != string(jose.RS256) || (key.Use != "" && key.Use != "sig") {
			continue
		}
		if pub, ok := key.Key.(*rsa.PublicKey); ok {
			keys[key.KeyID] = pub
		}
	}

	v.mu.Lock()
	v.keys = keys
	v.lastETag = resp.Header.Get("ETag")
	v.lastRefresh = now
	v.mu.Unlock()
	return nil
}

// refreshIfStale fetches unless a fetch happened within MinRefreshInterval.
func (v *Verifier) refreshIfStale(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	v.mu.RLock()
	fresh := !v.lastRefresh.IsZero() && v.opts.Now().Sub(v.lastRefresh) < v.opts.MinRefreshInterval
	v.mu.RUnlock()
	if fresh {
		return nil
	}
	return v.fetch(ctx)
}

// Verify checks the signature and time claims of token and returns its claims.
// A token naming an unknown key id triggers one rate limited JWKS refresh.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	v.mu.RLock()
	empty := len(v.keys) == 0
	v.mu.RUnlock()
	if empty {
		if err := v.refreshIfStale(ctx); err != nil {
			return nil, err
		}
	}

	claims, err := v.parse(token)
	if errors.Is(err, ErrKidNotFound) {
		if rerr := v.refreshIfStale(ctx); rerr != nil {
			return nil, rerr
		}
		claims, err = v.parse(token)
	}
	return claims, err
}

func (v *Verifier) parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(token, claims, v.keyfunc)
	switch {
	case err == nil:
		if claims.ID == "" || claims.Subject == "" {
			return nil, fmt.Errorf("%w: missing jti or sub", ErrInvalidToken)
		}
		return claims, nil
	case errors.Is(err, ErrKidNotFound):
		return nil, ErrKidNotFound
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// keyfunc selects the key named by kid. Tokens without a kid are tried against every cached key.
func (v *Verifier) keyfunc(t *jwt.Token) (interface{}, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(v.keys))}
		for _, k := range v.keys {
			set.Keys = append(set.Keys, k)
		}
		return set, nil
	}
	pub, ok := v.keys[kid]
	if !ok {
		return nil, ErrKidNotFound
	}
	return pub, nil
}

package oauth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"newsroom/pkg/logging"
)

const (
	// DefaultKeySetTTL is how long fetched signing keys are used before the
	// next lookup refetches them.
	DefaultKeySetTTL = time.Hour

	// DefaultMinRefreshInterval is how long a key ID that was still missing
	// after a refresh is rejected without refreshing again.
	DefaultMinRefreshInterval = time.Minute

	// maxMissingKids bounds the negative cache of unknown key IDs.
	maxMissingKids = 1024

	// KeyFetchTimeout bounds a single JWKS request.
	KeyFetchTimeout = 5 * time.Second

	maxJWKSSize = 1 << 20
)

// JWK is a single JSON Web Key (RFC 7517).
type JWK struct {
	Kty string   `json:"kty"`
	Use string   `json:"use,omitempty"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg,omitempty"`
	N   string   `json:"n,omitempty"`
	E   string   `json:"e,omitempty"`
	X   string   `json:"x,omitempty"`
	Y   string   `json:"y,omitempty"`
	Crv string   `json:"crv,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// JWKSet is a JSON Web Key Set document.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// KeySetOptions configures a KeySet.
type KeySetOptions struct {
	HTTPClient         *http.Client
	TTL                time.Duration
	MinRefreshInterval time.Duration
	Clock              Clock
	Metrics            *Metrics
}

// KeySet caches the provider's signing keys by key ID. Refreshes build a new
// map and swap it in, so readers never see a partially populated set.
type KeySet struct {
	uri        string
	httpClient *http.Client
	ttl        time.Duration
	minRefresh time.Duration
	clock      Clock
	metrics    *Metrics

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	// missing records when a key ID was last absent from a fresh set.
	missing map[string]time.Time

	group singleflight.Group
}

// NewKeySet creates an empty key set for the JWKS document at uri. Keys are
// fetched lazily on first lookup.
func NewKeySet(uri string, opts KeySetOptions) *KeySet {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultKeySetTTL
	}
	if opts.MinRefreshInterval <= 0 {
		opts.MinRefreshInterval = DefaultMinRefreshInterval
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	return &KeySet{
		uri:        uri,
		httpClient: opts.HTTPClient,
		ttl:        opts.TTL,
		minRefresh: opts.MinRefreshInterval,
		clock:      opts.Clock,
		metrics:    opts.Metrics,
		keys:       make(map[string]crypto.PublicKey),
		missing:    make(map[string]time.Time),
	}
}

// Key returns the public key for kid. A stale or empty set is refreshed
// first. An unknown kid triggers one forced refresh before failing, unless
// the same kid was already missing from a refresh within the minimum
// refresh interval.
func (k *KeySet) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	key, found, stale, recentlyMissing := k.lookup(kid)
	if found && !stale {
		return key, nil
	}

	if found || !recentlyMissing {
		if err := k.Refresh(ctx); err != nil {
			if found {
				logging.Warn("OAuth", "Using cached signing key %s after refresh failure: %v", kid, err)
				return key, nil
			}
			return nil, err
		}
		key, found, _, _ = k.lookup(kid)
		if found {
			return key, nil
		}
		k.markMissing(kid)
	}

	return nil, fmt.Errorf("%w: signing key %q not found", ErrTokenInvalid, kid)
}

func (k *KeySet) lookup(kid string) (key crypto.PublicKey, found, stale, recentlyMissing bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	now := k.clock.Now()
	key, found = k.keys[kid]
	stale = k.fetchedAt.IsZero() || now.Sub(k.fetchedAt) >= k.ttl
	missedAt, missed := k.missing[kid]
	recentlyMissing = missed && now.Sub(missedAt) < k.minRefresh
	return key, found, stale, recentlyMissing
}

// markMissing negatively caches kid. Expired entries are pruned first; when
// the cache is still full the kid is not recorded.
func (k *KeySet) markMissing(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clock.Now()
	if len(k.missing) >= maxMissingKids {
		for id, at := range k.missing {
			if now.Sub(at) >= k.minRefresh {
				delete(k.missing, id)
			}
		}
		if len(k.missing) >= maxMissingKids {
			return
		}
	}
	k.missing[kid] = now
}

// Len returns the number of cached keys.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Refresh fetches the JWKS document and replaces the cached keys.
// Concurrent callers share one request.
func (k *KeySet) Refresh(ctx context.Context) error {
	ch := k.group.DoChan("refresh", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), KeyFetchTimeout)
		defer cancel()

		keys, err := k.fetch(fetchCtx)
		if err != nil {
			k.metrics.jwksRefresh(false)
			return nil, err
		}

		k.mu.Lock()
		k.keys = keys
		k.fetchedAt = k.clock.Now()
		for kid := range keys {
			delete(k.missing, kid)
		}
		k.mu.Unlock()

		k.metrics.jwksRefresh(true)
		logging.Debug("OAuth", "Refreshed signing keys from %s (%d keys)", k.uri, len(keys))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrKeyFetch, ctx.Err())
	}
}

func (k *KeySet) fetch(ctx context.Context) (map[string]crypto.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: JWKS endpoint returned status %d", ErrKeyFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read JWKS response: %w", ErrKeyFetch, err)
	}

	var set JWKSet
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JWKS: %w", ErrKeyFetch, err)
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.Use != "" && jwk.Use != "sig" {
			continue
		}
		key, err := ParseJWK(jwk)
		if err != nil {
			logging.Warn("OAuth", "Skipping signing key %q: %v", jwk.Kid, err)
			continue
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: JWKS contains no usable signing keys", ErrKeyFetch)
	}
	return keys, nil
}

// ParseJWK converts a JWK into a public key. An x5c certificate takes
// precedence over inline key material.
func ParseJWK(jwk JWK) (crypto.PublicKey, error) {
	if len(jwk.X5c) > 0 {
		der, err := base64.StdEncoding.DecodeString(jwk.X5c[0])
		if err != nil {
			return nil, fmt.Errorf("failed to decode certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		return cert.PublicKey, nil
	}

	switch jwk.Kty {
	case "RSA":
		return parseRSAKey(jwk)
	case "EC":
		return parseECKey(jwk)
	default:
		return nil, fmt.Errorf("unsupported key type: %s", jwk.Kty)
	}
}

func parseRSAKey(jwk JWK) (*rsa.PublicKey, error) {
	n, err := decodeBigInt(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := decodeBigInt(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if n.Sign() == 0 || !e.IsInt64() || e.Int64() < 2 || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("invalid RSA key parameters")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func parseECKey(jwk JWK) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch jwk.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve: %s", jwk.Crv)
	}
	x, err := decodeBigInt(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x coordinate: %w", err)
	}
	y, err := decodeBigInt(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y coordinate: %w", err)
	}
	if !curve.IsOnCurve(x, y) {
		return nil, fmt.Errorf("point is not on curve %s", jwk.Crv)
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func decodeBigInt(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}

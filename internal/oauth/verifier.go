package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates bearer tokens presented to the MCP endpoint.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error)
}

// VerifiedIdentity is the caller identity extracted from a valid token.
type VerifiedIdentity struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	Email     string
	Name      string
	Scopes    []string
	Claims    map[string]any
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	JWKSURI  string
	Issuer   string
	Audience string

	HTTPClient *http.Client
	// Leeway tolerates clock skew on exp/nbf/iat. Zero by default.
	Leeway time.Duration
	Clock  Clock

	KeySetTTL          time.Duration
	MinRefreshInterval time.Duration
	Metrics            *Metrics
}

var validMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384"}

// Verifier checks JWT signatures against the provider's JWKS and enforces
// issuer, audience and expiry.
type Verifier struct {
	keys    *KeySet
	parser  *jwt.Parser
	metrics *Metrics
}

// NewVerifier creates a verifier. Keys are fetched on first use.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.JWKSURI == "" {
		return nil, errors.New("JWKS URI is required")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(validMethods),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}

	return &Verifier{
		keys: NewKeySet(cfg.JWKSURI, KeySetOptions{
			HTTPClient:         cfg.HTTPClient,
			TTL:                cfg.KeySetTTL,
			MinRefreshInterval: cfg.MinRefreshInterval,
			Clock:              clock,
			Metrics:            cfg.Metrics,
		}),
		parser:  jwt.NewParser(opts...),
		metrics: cfg.Metrics,
	}, nil
}

// KeySet exposes the verifier's key cache.
func (v *Verifier) KeySet() *KeySet {
	return v.keys
}

// Verify parses and validates rawToken. Failures wrap ErrTokenInvalid or,
// when the signing keys could not be fetched, ErrKeyFetch.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	identity, err := v.verify(ctx, rawToken)
	v.metrics.tokenVerification(err)
	return identity, err
}

func (v *Verifier) verify(ctx context.Context, rawToken string) (*VerifiedIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("%w: token has no key ID", ErrTokenInvalid)
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, ErrKeyFetch) || errors.Is(err, ErrTokenInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	return identityFromClaims(claims)
}

func identityFromClaims(claims jwt.MapClaims) (*VerifiedIdentity, error) {
	subject, err := claims.GetSubject()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", ErrTokenInvalid)
	}
	issuer, _ := claims.GetIssuer()
	audience, _ := claims.GetAudience()
	exp, _ := claims.GetExpirationTime()

	identity := &VerifiedIdentity{
		Subject:  subject,
		Issuer:   issuer,
		Audience: audience,
		Claims:   claims,
	}
	if exp != nil {
		identity.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		identity.Email = email
	} else if upn, ok := claims["preferred_username"].(string); ok {
		identity.Email = upn
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if scp, ok := claims["scp"].(string); ok {
		identity.Scopes = strings.Fields(scp)
	}
	return identity, nil
}

package oauth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// DefaultHandoffTTL is how long an MCP client has to redeem a handoff code.
const DefaultHandoffTTL = 2 * time.Minute

// ErrInvalidGrant is returned when a handoff code is unknown, expired, already
// used, or presented with the wrong redirect URI or PKCE verifier.
var ErrInvalidGrant = errors.New("invalid grant")

type handoff struct {
	token         *pkgoauth.Token
	redirectURI   string
	codeChallenge string
	attemptID     string
	expiresAt     time.Time
}

// HandoffStore holds one-time codes that release an authenticated attempt's
// tokens to the MCP client that started it.
type HandoffStore struct {
	mu    sync.Mutex
	codes map[string]*handoff

	ttl   time.Duration
	clock Clock

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewHandoffStore creates a store and starts its cleanup loop.
func NewHandoffStore(ttl time.Duration, clock Clock) *HandoffStore {
	if ttl <= 0 {
		ttl = DefaultHandoffTTL
	}
	if clock == nil {
		clock = realClock{}
	}
	hs := &HandoffStore{
		codes:       make(map[string]*handoff),
		ttl:         ttl,
		clock:       clock,
		stopCleanup: make(chan struct{}),
	}

	go hs.cleanupLoop()

	return hs
}

// Issue stores the attempt's tokens under a fresh code. The attempt must be
// Authenticated.
func (hs *HandoffStore) Issue(a *Attempt) (string, error) {
	if a.Status != StatusAuthenticated || a.Token == nil {
		return "", fmt.Errorf("attempt %s is not authenticated", a.ID)
	}
	code, err := pkgoauth.GenerateCode()
	if err != nil {
		return "", err
	}

	hs.mu.Lock()
	hs.codes[code] = &handoff{
		token:         a.Token,
		redirectURI:   a.ClientRedirectURI,
		codeChallenge: a.ClientCodeChallenge,
		attemptID:     a.ID,
		expiresAt:     hs.clock.Now().Add(hs.ttl),
	}
	hs.mu.Unlock()

	logging.Debug("OAuth", "Issued handoff code for attempt %s", a.ID)
	return code, nil
}

// Redeem exchanges a code for its tokens. A redirect URI bound at
// authorization must be repeated exactly. The code is consumed whether or
// not the checks pass.
func (hs *HandoffStore) Redeem(code, redirectURI, verifier string) (*pkgoauth.Token, error) {
	hs.mu.Lock()
	h, ok := hs.codes[code]
	delete(hs.codes, code)
	hs.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown or already used code", ErrInvalidGrant)
	}
	if hs.clock.Now().After(h.expiresAt) {
		return nil, fmt.Errorf("%w: code expired", ErrInvalidGrant)
	}
	if h.redirectURI != "" && redirectURI != h.redirectURI {
		return nil, fmt.Errorf("%w: redirect_uri does not match authorization request", ErrInvalidGrant)
	}
	if h.codeChallenge != "" {
		if verifier == "" {
			return nil, fmt.Errorf("%w: code_verifier is required", ErrInvalidGrant)
		}
		if !pkgoauth.VerifyPKCE(h.codeChallenge, "S256", verifier) {
			return nil, fmt.Errorf("%w: code_verifier does not match code_challenge", ErrInvalidGrant)
		}
	}

	logging.Debug("OAuth", "Redeemed handoff code for attempt %s", h.attemptID)
	return h.token, nil
}

// Len returns the number of outstanding codes.
func (hs *HandoffStore) Len() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return len(hs.codes)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (hs *HandoffStore) Close() {
	hs.stopOnce.Do(func() {
		close(hs.stopCleanup)
	})
}

func (hs *HandoffStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hs.cleanup()
		case <-hs.stopCleanup:
			return
		}
	}
}

func (hs *HandoffStore) cleanup() int {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	now := hs.clock.Now()
	count := 0
	for code, h := range hs.codes {
		if now.After(h.expiresAt) {
			delete(hs.codes, code)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired handoff codes", count)
	}
	return count
}

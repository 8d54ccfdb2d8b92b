package oauth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// DefaultAttemptTTL is how long a login attempt may wait for its callback.
const DefaultAttemptTTL = 10 * time.Minute

// Clock is the time source used by the proxy. Tests inject a mock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// AttemptStatus is a state of the login state machine.
type AttemptStatus string

const (
	StatusInitialized          AttemptStatus = "initialized"
	StatusAuthorizationPending AttemptStatus = "authorization_pending"
	StatusExchangingCode       AttemptStatus = "exchanging_code"
	StatusAuthenticated        AttemptStatus = "authenticated"
	StatusFailed               AttemptStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s AttemptStatus) Terminal() bool {
	return s == StatusAuthenticated || s == StatusFailed
}

var transitions = map[AttemptStatus][]AttemptStatus{
	StatusInitialized:          {StatusAuthorizationPending, StatusFailed},
	StatusAuthorizationPending: {StatusExchangingCode, StatusFailed},
	StatusExchangingCode:       {StatusAuthenticated, StatusFailed},
}

// CanTransition reports whether s may move to next.
func (s AttemptStatus) CanTransition(next AttemptStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned for a state change the machine forbids.
var ErrInvalidTransition = errors.New("invalid attempt transition")

// Attempt is one login flow, keyed by its state nonce.
type Attempt struct {
	// ID correlates log lines; it never leaves the server.
	ID     string
	State  string
	Status AttemptStatus
	Reason Reason
	Err    error

	Scopes       []string
	CodeVerifier string

	// Set when an MCP client started the flow and expects a handoff code.
	ClientRedirectURI   string
	ClientState         string
	ClientCodeChallenge string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Token is populated only once Authenticated.
	Token *pkgoauth.Token
}

func (a *Attempt) transition(next AttemptStatus, now time.Time) error {
	if !a.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

func (a *Attempt) fail(reason Reason, err error, now time.Time) error {
	if err := a.transition(StatusFailed, now); err != nil {
		return err
	}
	a.Reason = reason
	a.Err = err
	a.Token = nil
	return nil
}

// Expired reports whether the attempt is older than ttl.
func (a *Attempt) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(a.CreatedAt) > ttl
}

// AttemptStore holds pending attempts by state nonce. Take removes an
// attempt atomically, so a nonce is consumed by at most one callback.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[string]*Attempt

	ttl     time.Duration
	clock   Clock
	metrics *Metrics

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewAttemptStore creates a store and starts its cleanup loop.
func NewAttemptStore(ttl time.Duration, clock Clock, metrics *Metrics) *AttemptStore {
	if ttl <= 0 {
		ttl = DefaultAttemptTTL
	}
	if clock == nil {
		clock = realClock{}
	}
	s := &AttemptStore{
		attempts:    make(map[string]*Attempt),
		ttl:         ttl,
		clock:       clock,
		metrics:     metrics,
		stopCleanup: make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// TTL returns the attempt lifetime.
func (s *AttemptStore) TTL() time.Duration {
	return s.ttl
}

// Put stores a pending attempt.
func (s *AttemptStore) Put(a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attempts[a.State]; exists {
		return fmt.Errorf("attempt with state %s already exists", logging.TruncateID(a.State))
	}
	s.attempts[a.State] = a
	s.metrics.setPending(len(s.attempts))
	return nil
}

// Take removes and returns the attempt for state.
func (s *AttemptStore) Take(state string) (*Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[state]
	if ok {
		delete(s.attempts, state)
		s.metrics.setPending(len(s.attempts))
	}
	return a, ok
}

// Len returns the number of pending attempts.
func (s *AttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attempts)
}

// Close stops the cleanup loop. It is safe to call more than once.
func (s *AttemptStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

func (s *AttemptStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *AttemptStore) cleanup() int {
	s.mu.Lock()
	now := s.clock.Now()
	var expired []*Attempt
	for state, a := range s.attempts {
		if a.Expired(now, s.ttl) {
			delete(s.attempts, state)
			expired = append(expired, a)
		}
	}
	s.metrics.setPending(len(s.attempts))
	s.mu.Unlock()

	for _, a := range expired {
		if err := a.fail(ReasonTimeout, nil, now); err == nil {
			s.metrics.attemptFinished(a.Status, a.Reason)
		}
		logging.Audit(logging.AuditEvent{
			Action:  "oauth_login",
			Outcome: logging.OutcomeFailure,
			Attempt: a.ID,
			Reason:  string(ReasonTimeout),
		})
	}
	if len(expired) > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired login attempts", len(expired))
	}
	return len(expired)
}

package oauth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the OAuth proxy. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// AuthAttempts counts finished login attempts by outcome: authenticated
	// or one of the failure reasons.
	AuthAttempts *prometheus.CounterVec
	// PendingAttempts is the number of attempts waiting for a callback.
	PendingAttempts prometheus.Gauge
	// TokenVerifications counts bearer checks by result.
	TokenVerifications *prometheus.CounterVec
	// JWKSRefreshes counts signing key fetches by result.
	JWKSRefreshes *prometheus.CounterVec
	// TokenRequests counts client calls to the token endpoint by grant type
	// and result.
	TokenRequests *prometheus.CounterVec
}

// NewMetrics registers the proxy collectors with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		AuthAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_oauth_attempts_total",
				Help: "Total number of finished OAuth login attempts",
			},
			[]string{"outcome"},
		),
		PendingAttempts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "newsroom_oauth_pending_attempts",
				Help: "Number of OAuth login attempts awaiting a provider callback",
			},
		),
		TokenVerifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_token_verifications_total",
				Help: "Total number of bearer token verifications",
			},
			[]string{"result"},
		),
		JWKSRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_jwks_refreshes_total",
				Help: "Total number of signing key set fetches",
			},
			[]string{"result"},
		),
		TokenRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsroom_token_requests_total",
				Help: "Total number of client token endpoint requests",
			},
			[]string{"grant_type", "result"},
		),
	}
}

func (m *Metrics) attemptFinished(status AttemptStatus, reason Reason) {
	if m == nil {
		return
	}
	outcome := string(status)
	if status == StatusFailed {
		outcome = string(reason)
	}
	m.AuthAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.PendingAttempts.Set(float64(n))
}

func (m *Metrics) tokenVerification(err error) {
	if m == nil {
		return
	}
	result := "valid"
	switch {
	case err == nil:
	case errors.Is(err, ErrKeyFetch):
		result = "key_fetch_error"
	default:
		result = "invalid"
	}
	m.TokenVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) jwksRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "error"
	}
	m.JWKSRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) tokenRequest(grantType string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = OAuthErrorCode(err)
	}
	m.TokenRequests.WithLabelValues(grantType, result).Inc()
}

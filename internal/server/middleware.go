package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"newsroom/internal/oauth"
	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

// BearerVerifier checks a raw bearer token and returns the caller identity.
// *oauth.Proxy implements it.
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, rawToken string) (*oauth.VerifiedIdentity, error)
}

// RequireBearer rejects requests that do not carry a valid bearer token.
// Accepted requests reach next with the identity attached to their context.
func RequireBearer(verifier BearerVerifier, resourceMetadataURL string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, r, resourceMetadataURL, "missing bearer token")
			return
		}

		identity, err := verifier.VerifyBearer(r.Context(), rawToken)
		if err != nil {
			description := "token is invalid or expired"
			if errors.Is(err, oauth.ErrKeyFetch) {
				description = "signing keys are unavailable"
			}
			logging.Debug("HTTP", "Bearer token rejected: %v", err)
			unauthorized(w, r, resourceMetadataURL, description)
			return
		}

		next.ServeHTTP(w, r.WithContext(oauth.WithIdentity(r.Context(), identity)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, resourceMetadataURL, description string) {
	logging.Audit(logging.AuditEvent{
		Action:     "bearer",
		Outcome:    logging.OutcomeFailure,
		Reason:     description,
		RemoteAddr: r.RemoteAddr,
	})

	w.Header().Set("WWW-Authenticate", pkgoauth.BuildWWWAuthenticate(pkgoauth.AuthChallenge{
		Error:               "invalid_token",
		ErrorDescription:    description,
		ResourceMetadataURL: resourceMetadataURL,
	}))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             "invalid_token",
		"error_description": description,
	})
}

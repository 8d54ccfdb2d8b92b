package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"newsroom/pkg/logging"
	pkgoauth "newsroom/pkg/oauth"
)

const (
	AuthorizePath                 = "/authorize"
	TokenPath                     = "/token"
	ProtectedResourceMetadataPath = "/.well-known/oauth-protected-resource"
	AuthorizationServerPath       = "/.well-known/oauth-authorization-server"
)

// HandlerConfig describes how the proxy is exposed over HTTP.
type HandlerConfig struct {
	// BaseURL is the public URL of this server.
	BaseURL      string
	RedirectPath string
	ServerName   string
	Scopes       []string
}

// Handler serves the client-facing OAuth endpoints.
type Handler struct {
	proxy *Proxy
	cfg   HandlerConfig
}

// NewHandler creates the HTTP handler for proxy.
func NewHandler(proxy *Proxy, cfg HandlerConfig) *Handler {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Handler{proxy: proxy, cfg: cfg}
}

// Register mounts every OAuth endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+AuthorizePath, h.HandleAuthorize)
	mux.HandleFunc("GET "+h.cfg.RedirectPath, h.HandleCallback)
	mux.HandleFunc("POST "+TokenPath, h.HandleToken)
	mux.HandleFunc("GET "+ProtectedResourceMetadataPath, h.HandleProtectedResourceMetadata)
	mux.HandleFunc("GET "+ProtectedResourceMetadataPath+h.proxy.MCPPath(), h.HandleProtectedResourceMetadata)
	mux.HandleFunc("GET "+AuthorizationServerPath, h.HandleAuthorizationServerMetadata)
}

// ResourceURL is the public URL of the protected MCP endpoint.
func (h *Handler) ResourceURL() string {
	return h.cfg.BaseURL + h.proxy.MCPPath()
}

// ResourceMetadataURL is advertised in WWW-Authenticate challenges.
func (h *Handler) ResourceMetadataURL() string {
	return h.cfg.BaseURL + ProtectedResourceMetadataPath
}

// HandleAuthorize starts a login and redirects the browser upstream.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if rt := q.Get("response_type"); rt != "" && rt != "code" {
		h.rejectAuthorize(w, r, q, "unsupported_response_type", "only response_type=code is supported")
		return
	}

	redirect, err := h.proxy.StartAuthorization(r.Context(), ClientRequest{
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Resource:            q.Get(ParamResource),
		RemoteAddr:          r.RemoteAddr,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			h.rejectAuthorize(w, r, q, "invalid_request", err.Error())
			return
		}
		logging.Error("OAuth", err, "Failed to start authorization")
		renderErrorPage(w, http.StatusInternalServerError, h.cfg.ServerName, "The sign-in could not be started.")
		return
	}

	logging.Debug("OAuth", "Redirecting attempt %s to the identity provider", redirect.AttemptID)
	http.Redirect(w, r, redirect.URL, http.StatusFound)
}

// rejectAuthorize sends an OAuth error back to a valid client redirect URI,
// or renders an error page when there is none to trust.
func (h *Handler) rejectAuthorize(w http.ResponseWriter, r *http.Request, q url.Values, code, description string) {
	redirectURI := q.Get("redirect_uri")
	if redirectURI == "" || h.proxy.ValidateClientRedirectURI(redirectURI) != nil {
		renderErrorPage(w, http.StatusBadRequest, h.cfg.ServerName, description)
		return
	}
	http.Redirect(w, r, clientRedirect(redirectURI, url.Values{
		"error":             {code},
		"error_description": {description},
		"state":             {q.Get("state")},
	}), http.StatusFound)
}

// HandleCallback receives the provider redirect, completes the code
// exchange and hands the result to the client.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	attempt, err := h.proxy.HandleCallback(r.Context(), CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
		RemoteAddr:       r.RemoteAddr,
	})
	if err != nil {
		h.callbackFailed(w, r, attempt, err)
		return
	}

	if attempt.ClientRedirectURI == "" {
		renderSuccessPage(w, h.cfg.ServerName)
		return
	}

	code, err := h.proxy.IssueClientCode(attempt)
	if err != nil {
		logging.Error("OAuth", err, "Failed to issue handoff code for attempt %s", attempt.ID)
		renderErrorPage(w, http.StatusInternalServerError, h.cfg.ServerName, failureMessage(ReasonNone))
		return
	}
	http.Redirect(w, r, clientRedirect(attempt.ClientRedirectURI, url.Values{
		"code":  {code},
		"state": {attempt.ClientState},
	}), http.StatusFound)
}

func (h *Handler) callbackFailed(w http.ResponseWriter, r *http.Request, attempt *Attempt, err error) {
	var authErr *AuthorizationError
	reason := ReasonNone
	if errors.As(err, &authErr) {
		reason = authErr.Reason
	}

	if attempt != nil && attempt.ClientRedirectURI != "" {
		http.Redirect(w, r, clientRedirect(attempt.ClientRedirectURI, url.Values{
			"error":             {OAuthErrorCode(err)},
			"error_description": {failureMessage(reason)},
			"state":             {attempt.ClientState},
		}), http.StatusFound)
		return
	}

	status := http.StatusBadRequest
	if reason == ReasonCodeExchangeFailed || reason == ReasonTimeout && errors.Is(err, ErrTokenExchangeFailed) {
		status = http.StatusBadGateway
	}
	renderErrorPage(w, status, h.cfg.ServerName, failureMessage(reason))
}

// HandleToken implements the client token endpoint for handoff codes and
// refresh tokens.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeTokenError(w, http.StatusBadRequest, "invalid_request", "malformed form body")
		return
	}

	grantType := r.PostForm.Get("grant_type")
	switch grantType {
	case "authorization_code":
		code := r.PostForm.Get("code")
		if code == "" {
			writeTokenError(w, http.StatusBadRequest, "invalid_request", "code is required")
			return
		}
		token, err := h.proxy.RedeemClientCode(code, r.PostForm.Get("redirect_uri"), r.PostForm.Get("code_verifier"))
		if err != nil {
			logging.Audit(logging.AuditEvent{
				Action:     "token_redeem",
				Outcome:    logging.OutcomeFailure,
				Reason:     err.Error(),
				RemoteAddr: r.RemoteAddr,
			})
			writeTokenError(w, http.StatusBadRequest, "invalid_grant", "the authorization code is invalid or expired")
			return
		}
		h.writeToken(w, token)

	case "refresh_token":
		token, err := h.proxy.Refresh(r.Context(), r.PostForm.Get("refresh_token"))
		if err != nil {
			status := http.StatusBadRequest
			var exchangeErr *TokenExchangeError
			if errors.As(err, &exchangeErr) && (exchangeErr.Status == 0 || exchangeErr.Status >= 500) && exchangeErr.ErrorCode == "" {
				status = http.StatusBadGateway
			}
			logging.Warn("OAuth", "Refresh failed: %v", err)
			writeTokenError(w, status, OAuthErrorCode(err), "the refresh token could not be exchanged")
			return
		}
		h.writeToken(w, token)

	default:
		writeTokenError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be authorization_code or refresh_token")
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

func (h *Handler) writeToken(w http.ResponseWriter, token *pkgoauth.Token) {
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  token.AccessToken,
		TokenType:    tokenType,
		ExpiresIn:    token.ExpiresIn(h.proxy.opts.clock.Now()),
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
		Scope:        token.Scope,
	})
}

// HandleProtectedResourceMetadata serves the RFC 9728 document.
func (h *Handler) HandleProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pkgoauth.ProtectedResourceMetadata{
		Resource:               h.ResourceURL(),
		AuthorizationServers:   []string{h.cfg.BaseURL},
		ScopesSupported:        h.cfg.Scopes,
		BearerMethodsSupported: []string{"header"},
		ResourceName:           h.cfg.ServerName,
	})
}

// HandleAuthorizationServerMetadata serves the RFC 8414 document describing
// the proxy's own endpoints.
func (h *Handler) HandleAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pkgoauth.AuthorizationServerMetadata{
		Issuer:                            h.cfg.BaseURL,
		AuthorizationEndpoint:             h.cfg.BaseURL + AuthorizePath,
		TokenEndpoint:                     h.cfg.BaseURL + TokenPath,
		ScopesSupported:                   h.cfg.Scopes,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		TokenEndpointAuthMethodsSupported: []string{"none"},
		CodeChallengeMethodsSupported:     []string{"S256"},
	})
}

func clientRedirect(redirectURI string, params url.Values) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return redirectURI
	}
	q := u.Query()
	for key, values := range params {
		if len(values) > 0 && values[0] != "" {
			q.Set(key, values[0])
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func writeTokenError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("OAuth", err, "Failed to write JSON response")
	}
}

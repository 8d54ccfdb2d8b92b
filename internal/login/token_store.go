package login

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"newsroom/pkg/logging"
)

// tokenExpiryBuffer is subtracted from the expiry when deciding whether a
// stored access token is still usable.
const tokenExpiryBuffer = 60 * time.Second

// StoredToken is a token persisted for one MCP server.
type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	ServerURL    string    `json:"server_url"`
	IssuerURL    string    `json:"issuer_url"`
	TokenURL     string    `json:"token_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// Valid reports whether the access token can still be presented at now.
func (t *StoredToken) Valid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(tokenExpiryBuffer).Before(t.Expiry)
}

// ToOAuth2Token converts t for use with golang.org/x/oauth2.
func (t *StoredToken) ToOAuth2Token() *oauth2.Token {
	token := &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		token = token.WithExtra(map[string]any{"id_token": t.IDToken})
	}
	return token
}

// TokenStore keeps one JSON file per server URL. Files are written with
// 0600 permissions inside a 0700 directory; token values are never logged.
type TokenStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

// DefaultTokenDir returns $XDG_CONFIG_HOME/newsroom/tokens or the platform
// equivalent.
func DefaultTokenDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(base, "newsroom", "tokens"), nil
}

// NewTokenStore creates a store rooted at dir, or DefaultTokenDir when dir
// is empty.
func NewTokenStore(dir string) (*TokenStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultTokenDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}
	return &TokenStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory tokens are written to.
func (s *TokenStore) Dir() string {
	return s.dir
}

// Save persists token for serverURL, replacing any earlier one.
func (s *TokenStore) Save(serverURL, issuerURL, tokenURL string, token *oauth2.Token) (*StoredToken, error) {
	stored := &StoredToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		Expiry:       token.Expiry,
		ServerURL:    serverURL,
		IssuerURL:    issuerURL,
		TokenURL:     tokenURL,
		CreatedAt:    s.now(),
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		stored.IDToken = idToken
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(serverURL), data, 0o600); err != nil {
		logging.Audit(logging.AuditEvent{
			Action:  "token_store",
			Outcome: logging.OutcomeFailure,
			Reason:  err.Error(),
		})
		return nil, fmt.Errorf("failed to write token file: %w", err)
	}

	logging.Audit(logging.AuditEvent{Action: "token_store", Outcome: logging.OutcomeSuccess})
	logging.Debug("Login", "Stored token for %s (expires %s, refresh token: %t)",
		serverURL, stored.Expiry.Format(time.RFC3339), stored.RefreshToken != "")
	return stored, nil
}

// Load returns the token stored for serverURL, expired or not. It returns
// ErrLoginRequired when there is none.
func (s *TokenStore) Load(serverURL string) (*StoredToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- the file name is a hash of the server URL
	data, err := os.ReadFile(s.path(serverURL))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrLoginRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var stored StoredToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode token file: %w", err)
	}
	return &stored, nil
}

// Delete removes the token for serverURL. A missing token is not an error.
func (s *TokenStore) Delete(serverURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(serverURL))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	logging.Audit(logging.AuditEvent{Action: "token_delete", Outcome: logging.OutcomeSuccess})
	return nil
}

func (s *TokenStore) path(serverURL string) string {
	sum := sha256.Sum256([]byte(serverURL))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}

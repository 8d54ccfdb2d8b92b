package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// pkceVerifierBytes is the number of random bytes for the PKCE code verifier.
	pkceVerifierBytes = 32

	// randomTokenBytes is the number of random bytes for state values and
	// one-time codes. 32 bytes encodes to 43 base64url characters.
	randomTokenBytes = 32
)

// GeneratePKCE generates a new S256 PKCE code verifier and challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifierBytes := make([]byte, pkceVerifierBytes)
	if _, err := rand.Read(verifierBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes for PKCE: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       S256Challenge(verifier),
		CodeChallengeMethod: "S256",
	}, nil
}

// S256Challenge returns base64url(SHA256(verifier)).
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyPKCE checks a code verifier against a previously supplied challenge.
// Only S256 is accepted.
func VerifyPKCE(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	if method != "" && method != "S256" {
		return false
	}
	computed := S256Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// GenerateState generates a random, URL-safe state nonce.
func GenerateState() (string, error) {
	return randomToken("state")
}

// GenerateCode generates a random, URL-safe one-time code.
func GenerateCode() (string, error) {
	return randomToken("code")
}

func randomToken(kind string) (string, error) {
	b := make([]byte, randomTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", kind, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

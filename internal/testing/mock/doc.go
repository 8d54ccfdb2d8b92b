// Package mock provides test doubles for newsroom's OAuth layer.
//
// AzureIdP is an in-process Microsoft Entra ID v2.0 tenant listening on a
// loopback port. It serves:
//
//	GET  /{tenant}/v2.0/.well-known/openid-configuration
//	GET  /{tenant}/discovery/v2.0/keys
//	GET  /{tenant}/oauth2/v2.0/authorize
//	POST /{tenant}/oauth2/v2.0/token
//
// Like the real service it rejects any request carrying the "resource"
// parameter with AADSTS901002. Issued access and ID tokens are RS256 JWTs
// signed with a key published in the JWKS; RotateKey and
// SignTokenWithUnknownKey exercise key refresh paths, and SetErrors injects
// discovery, JWKS, consent and token endpoint failures. Every authorize and
// token request is recorded for assertions.
//
// MockClock lets tests move time forward to expire tokens and login attempts.
package mock

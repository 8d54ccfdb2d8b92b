package oauth

import "context"

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the verified caller identity.
func WithIdentity(ctx context.Context, identity *VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*VerifiedIdentity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*VerifiedIdentity)
	return identity, ok && identity != nil
}

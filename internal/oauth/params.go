package oauth

import (
	"fmt"
	"net/url"
	"sort"
)

// ParamResource is the RFC 8707 resource indicator. Azure AD v2.0 rejects
// authorization requests carrying it together with scopes (AADSTS901002).
const ParamResource = "resource"

// AuthorizationParams are the query parameters of an upstream authorization
// request.
type AuthorizationParams map[string]string

// StripResource returns a copy of p without the resource key. Every other
// entry is preserved unchanged. It never fails and is idempotent.
func StripResource(p AuthorizationParams) AuthorizationParams {
	out := make(AuthorizationParams, len(p))
	for k, v := range p {
		if k == ParamResource {
			continue
		}
		out[k] = v
	}
	return out
}

// Has reports whether key is present.
func (p AuthorizationParams) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Keys returns the parameter names in sorted order.
func (p AuthorizationParams) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values converts the parameters to url.Values.
func (p AuthorizationParams) Values() url.Values {
	v := make(url.Values, len(p))
	for key, value := range p {
		v.Set(key, value)
	}
	return v
}

// URL appends the parameters to endpoint, merging with any query the
// endpoint already has.
func (p AuthorizationParams) URL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	query := u.Query()
	for key, value := range p {
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

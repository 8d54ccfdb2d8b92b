package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// BuildWWWAuthenticate renders a Bearer challenge. Empty fields are omitted.
//
//	Bearer error="invalid_token", error_description="token expired", resource_metadata="https://mcp.example.com/.well-known/oauth-protected-resource"
func BuildWWWAuthenticate(c AuthChallenge) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "Bearer"
	}

	var params []string
	add := func(key, value string) {
		if value != "" {
			params = append(params, fmt.Sprintf(`%s="%s"`, key, strings.ReplaceAll(value, `"`, `'`)))
		}
	}
	add("realm", c.Realm)
	add("error", c.Error)
	add("error_description", c.ErrorDescription)
	add("scope", c.Scope)
	add("resource_metadata", c.ResourceMetadataURL)

	if len(params) == 0 {
		return scheme
	}
	return scheme + " " + strings.Join(params, ", ")
}

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &AuthChallenge{Scheme: parts[0]}

	if len(parts) > 1 {
		params := make(map[string]string)
		for _, match := range authParamRegex.FindAllStringSubmatch(parts[1], -1) {
			params[strings.ToLower(match[1])] = match[2]
		}

		challenge.Realm = params["realm"]
		challenge.ResourceMetadataURL = params["resource_metadata"]
		challenge.Scope = params["scope"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
	}

	return challenge, nil
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401 response.
// Returns nil if the response is not a 401 or carries no parsable header.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}

package app

import (
	"strconv"
	"strings"

	"newsroom/internal/config"
	"newsroom/internal/formatting"
	"newsroom/internal/oauth"
	"newsroom/internal/server"
)

// Banner summarizes the running server for the startup message. Secrets
// never appear in it.
func Banner(cfg *config.Config) formatting.Record {
	return formatting.Record{
		Title: cfg.Server.Name,
		Fields: []formatting.Field{
			{Key: "Version", Value: cfg.Server.Version},
			{Key: "Authentication", Value: "Azure OAuth (Microsoft Entra ID)"},
			{Key: "Tenant", Value: cfg.Azure.TenantID},
			{Key: "Listen address", Value: cfg.Server.Addr()},
			{Key: "MCP endpoint", Value: cfg.Azure.PublicURL(oauth.DefaultMCPPath)},
			{Key: "Redirect URI", Value: cfg.Azure.RedirectURI()},
			{Key: "Scopes", Value: strings.Join(cfg.Azure.RequiredScopes, " ")},
			{Key: "PKCE", Value: strconv.FormatBool(cfg.Azure.UsePKCE)},
			{Key: "Health", Value: cfg.Azure.PublicURL(server.HealthPath)},
		},
	}
}

// Banner returns the startup summary for the loaded configuration.
func (a *Application) Banner() formatting.Record {
	return Banner(a.config.Newsroom)
}

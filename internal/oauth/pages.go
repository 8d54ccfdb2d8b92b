package oauth

import (
	"html/template"
	"net/http"

	"newsroom/pkg/logging"
)

const pageStyle = `
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 50%, #0f3460 100%);
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #e8e8e8;
        }
        .container {
            text-align: center;
            padding: 3rem;
            background: rgba(255, 255, 255, 0.05);
            border-radius: 16px;
            border: 1px solid rgba(255, 255, 255, 0.1);
            max-width: 500px;
            margin: 1rem;
        }
        .icon {
            width: 80px;
            height: 80px;
            margin: 0 auto 1.5rem;
            border-radius: 50%;
            display: flex;
            align-items: center;
            justify-content: center;
            font-size: 2.5rem;
        }
        .success { background: linear-gradient(135deg, #00d4aa 0%, #00a896 100%); }
        .failure { background: linear-gradient(135deg, #ff6b6b 0%, #ee5a5a 100%); }
        h1 { font-size: 1.75rem; font-weight: 600; margin-bottom: 0.5rem; color: #fff; }
        .highlight { color: #00d4aa; font-weight: 500; }
        .message { color: #ff6b6b; font-weight: 500; }
        p { color: #a0a0a0; line-height: 1.6; margin-top: 1rem; }
        .footer {
            margin-top: 2rem;
            padding-top: 1.5rem;
            border-top: 1px solid rgba(255, 255, 255, 0.1);
            font-size: 0.875rem;
            color: #666;
        }
`

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - {{.ServerName}}</title>
    <style>{{.Style}}</style>
</head>
<body>
    <div class="container">
        {{if .Success}}<div class="icon success">✓</div>{{else}}<div class="icon failure">✕</div>{{end}}
        <h1>{{.Title}}</h1>
        {{if .Success}}<p>You are signed in to <span class="highlight">{{.ServerName}}</span>.</p>
        <p>You can close this window and return to your MCP client.</p>
        {{else}}<p class="message">{{.Message}}</p>
        <p>Please return to your MCP client and try again.</p>{{end}}
        <div class="footer">{{.ServerName}}</div>
    </div>
</body>
</html>
`))

type pageData struct {
	Title      string
	ServerName string
	Message    string
	Success    bool
	Style      template.CSS
}

// setSecurityHeaders sets the headers every HTML and token response carries.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	data.Style = template.CSS(pageStyle)

	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	if err := resultPage.Execute(w, data); err != nil {
		logging.Error("OAuth", err, "Failed to render %q page", data.Title)
	}
}

func renderSuccessPage(w http.ResponseWriter, serverName string) {
	renderPage(w, http.StatusOK, pageData{
		Title:      "Authentication Successful",
		ServerName: serverName,
		Success:    true,
	})
}

func renderErrorPage(w http.ResponseWriter, status int, serverName, message string) {
	renderPage(w, status, pageData{
		Title:      "Authentication Failed",
		ServerName: serverName,
		Message:    message,
	})
}

// failureMessage returns a user-facing explanation that never echoes
// provider-supplied text.
func failureMessage(reason Reason) string {
	switch reason {
	case ReasonStateMismatch:
		return "This sign-in link is invalid or was already used."
	case ReasonTimeout:
		return "The sign-in took too long and has expired."
	case ReasonAccessDenied:
		return "Authentication was denied or failed at the identity provider."
	case ReasonMissingCode:
		return "The identity provider did not return an authorization code."
	case ReasonCancelled:
		return "The sign-in was cancelled."
	default:
		return "The sign-in could not be completed."
	}
}

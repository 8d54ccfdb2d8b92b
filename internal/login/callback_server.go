package login

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"newsroom/pkg/logging"
)

// CallbackPath is where the loopback server receives the redirect.
const CallbackPath = "/callback"

// DefaultCallbackTimeout bounds how long a login waits for the browser.
const DefaultCallbackTimeout = 5 * time.Minute

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: system-ui, sans-serif; text-align: center; padding: 3em;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>
`))

// CallbackResult holds the query parameters of the redirect.
type CallbackResult struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// IsError reports whether the authorization server returned an error.
func (r *CallbackResult) IsError() bool {
	return r.Error != ""
}

// CallbackServer is a short-lived loopback HTTP server that accepts exactly
// one OAuth redirect.
type CallbackServer struct {
	port     int
	server   *http.Server
	listener net.Listener
	resultCh chan *CallbackResult
	errCh    chan error
	once     sync.Once
	stopOnce sync.Once
}

// NewCallbackServer creates a callback server for port. Port 0 picks a free
// port when the server starts.
func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{
		port:     port,
		resultCh: make(chan *CallbackResult, 1),
		errCh:    make(chan error, 1),
	}
}

// Start listens on 127.0.0.1 and returns the redirect URI to register with
// the authorization request. The server stops when ctx is done.
func (s *CallbackServer) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+CallbackPath, s.handleCallback)
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Login", "Callback server listening on %s", listener.Addr())
	return s.RedirectURI(), nil
}

// RedirectURI is the loopback URL the authorization server redirects to.
func (s *CallbackServer) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.port, CallbackPath)
}

// Port returns the bound port.
func (s *CallbackServer) Port() int {
	return s.port
}

// Wait blocks until the redirect arrives, the server fails or ctx is done.
func (s *CallbackServer) Wait(ctx context.Context) (*CallbackResult, error) {
	select {
	case result := <-s.resultCh:
		return result, nil
	case err := <-s.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *CallbackServer) processCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result := &CallbackResult{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	data := struct{ Title, Message string }{
		Title:   "Login complete",
		Message: "You can close this window and return to the terminal.",
	}
	status := http.StatusOK
	if result.IsError() {
		status = http.StatusBadRequest
		data.Title = "Login failed"
		data.Message = result.Error
		if result.ErrorDescription != "" {
			data.Message += ": " + result.ErrorDescription
		}
	}
	w.WriteHeader(status)
	if err := callbackPage.Execute(w, data); err != nil {
		logging.Error("Login", err, "Failed to render callback page")
	}

	select {
	case s.resultCh <- result:
	default:
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *CallbackServer) Stop() {
	s.stopOnce.Do(func() {
		if s.server == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctx)
	})
}

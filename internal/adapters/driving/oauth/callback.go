// Package oauth runs the loopback redirect endpoint that completes a
// provider authorization started from the command line.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"
)

// CallbackPath is where the provider redirects after consent.
const CallbackPath = "/callback"

var (
	// ErrStateMismatch is returned when the callback carries a foreign state.
	ErrStateMismatch = errors.New("oauth: state mismatch")
	// ErrNoCode is returned when the callback has neither code nor error.
	ErrNoCode = errors.New("oauth: no authorization code received")
)

// ConsentError is the error a provider reported instead of a code.
type ConsentError struct {
	Code        string
	Description string
}

func (e *ConsentError) Error() string {
	if e.Description == "" {
		return "oauth: " + e.Code
	}
	return fmt.Sprintf("oauth: %s: %s", e.Code, e.Description)
}

type outcome struct {
	code string
	err  error
}

// Loopback is a one-shot HTTP listener on 127.0.0.1 that receives a single
// authorization redirect.
type Loopback struct {
	state  string
	ln     net.Listener
	srv    *http.Server
	result chan outcome
}

// Listen binds the loopback endpoint. Port 0 picks a free port.
func Listen(port int, state string) (*Loopback, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("oauth: listening for callback on port %d: %w", port, err)
	}
	l := &Loopback{state: state, ln: ln, result: make(chan outcome, 1)}
	l.srv = &http.Server{
		Handler:           l,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.deliver(outcome{err: err})
		}
	}()
	return l, nil
}

// Port returns the bound port.
func (l *Loopback) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// RedirectURI is the URI to register with the provider for this listener.
func (l *Loopback) RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", l.Port(), CallbackPath)
}

// ServeHTTP answers the redirect and hands its outcome to Await. Only the
// first outcome is kept.
func (l *Loopback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != CallbackPath {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code, err := readCallback(r.URL.Query(), l.state)
	l.deliver(outcome{code: code, err: err})

	page := pageData{Title: "Authorization successful", Message: "You can close this window and return to caseflow."}
	status := http.StatusOK
	var consent *ConsentError
	switch {
	case errors.As(err, &consent):
		page = pageData{Title: "Authorization failed", Message: consent.Description}
	case err != nil:
		page = pageData{Title: "Authorization failed", Message: err.Error()}
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = resultPage.Execute(w, page)
}

// readCallback extracts the code from redirect parameters. The state is
// compared before anything else is trusted.
func readCallback(q url.Values, state string) (string, error) {
	if e := q.Get("error"); e != "" {
		return "", &ConsentError{Code: e, Description: q.Get("error_description")}
	}
	if q.Get("state") != state {
		return "", ErrStateMismatch
	}
	code := q.Get("code")
	if code == "" {
		return "", ErrNoCode
	}
	return code, nil
}

func (l *Loopback) deliver(o outcome) {
	select {
	case l.result <- o:
	default:
	}
}

// Await blocks until the redirect arrives or ctx ends.
func (l *Loopback) Await(ctx context.Context) (string, error) {
	select {
	case o := <-l.result:
		return o.code, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization callback: %w", ctx.Err())
	}
}

// Close stops the listener.
func (l *Loopback) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

// NewState returns a random state value for one authorization attempt.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type pageData struct {
	Title   string
	Message string
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
<title>caseflow</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #f6f7f9; }
main { text-align: center; background: #fff; padding: 40px 56px; border-radius: 12px; border: 1px solid #d0d4da; }
h1 { color: #1f2a37; margin: 0 0 8px; font-size: 22px; }
p { color: #6b7280; margin: 0; }
</style>
</head>
<body><main><h1>{{.Title}}</h1><p>{{.Message}}</p></main></body>
</html>
`))

// OpenBrowser asks the desktop to open url.
func OpenBrowser(url string) error {
	var name string
	var args []string
	switch runtime.GOOS {
	case "darwin":
		name, args = "open", []string{url}
	case "linux", "freebsd", "openbsd":
		name, args = "xdg-open", []string{url}
	case "windows":
		name, args = "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return fmt.Errorf("opening a browser is not supported on %s", runtime.GOOS)
	}
	return exec.Command(name, args...).Start()
}

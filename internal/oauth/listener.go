package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const completedPage = `<!DOCTYPE html>
<html><head><title>sealbox</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Authorization complete</h2>
<p>You can close this window and return to the application.</p>
<script>setTimeout(function(){window.close()}, 1500);</script>
</body></html>`

const errorPage = `<!DOCTYPE html>
<html><head><title>sealbox</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 4em;">
<h2>Authorization failed</h2>
<p>This sign-in link is unknown or has expired. Please restart the flow from the application.</p>
</body></html>`

// listener is the minimal localhost HTTP endpoint serving the redirect_uri.
// It binds an ephemeral port on the loopback interface only.
type listener struct {
	coord *Coordinator
	srv   *http.Server
	addr  string
}

func newListener(c *Coordinator) (*listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bind callback listener: %w", err)
	}

	l := &listener{coord: c, addr: ln.Addr().String()}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", l.handleCallback)

	l.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("callback listener error", slog.String("error", err.Error()))
		}
	}()
	return l, nil
}

func (l *listener) redirectURI() string {
	return "http://" + l.addr + "/callback"
}

func (l *listener) shutdown(ctx context.Context) error {
	return l.srv.Shutdown(ctx)
}

// handleCallback receives the provider redirect. An unknown or expired state
// renders a terminal error page without creating any session state.
func (l *listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	code := q.Get("code")
	providerErr := q.Get("error")

	if state == "" || (code == "" && providerErr == "") {
		writeHTML(w, http.StatusBadRequest, errorPage)
		return
	}

	if !l.coord.complete(state, code, providerErr) {
		l.coord.logger.Warn("callback for unknown or expired state")
		writeHTML(w, http.StatusBadRequest, errorPage)
		return
	}
	writeHTML(w, http.StatusOK, completedPage)
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

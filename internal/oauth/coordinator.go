// Package oauth runs local authorization-code flows: it opens the provider's
// consent page, captures the redirect on a localhost listener and hands the
// authorization code back to the caller via polling. Token exchange is the
// caller's job.
package oauth

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/sealbox/sealbox/internal/logging"
	"github.com/sealbox/sealbox/pkg/schema"
)

const (
	defaultMaxSessions = 10
	defaultSessionTTL  = 5 * time.Minute
)

// Config configures the Coordinator.
type Config struct {
	MaxSessions int           // hard cap on live sessions (default 10)
	SessionTTL  time.Duration // session lifetime (default 5m)

	// OpenBrowser opens the consent page in a user-facing browser surface.
	// Defaults to the system browser; tests swap it out.
	OpenBrowser func(url string) error
}

// Coordinator owns the session registry and the callback listener.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	listener *listener
}

// NewCoordinator creates a Coordinator. Call Start to bind the callback
// listener before starting flows.
func NewCoordinator(cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = defaultMaxSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = browser.OpenURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Coordinator{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Start binds the localhost callback listener on an ephemeral port.
func (c *Coordinator) Start(ctx context.Context) error {
	l, err := newListener(c)
	if err != nil {
		return err
	}
	c.listener = l
	c.logger.Info("oauth callback listener started", slog.String("redirect_uri", l.redirectURI()))
	return nil
}

// Stop shuts down the callback listener. Live sessions are dropped.
func (c *Coordinator) Stop(ctx context.Context) error {
	if c.listener == nil {
		return nil
	}
	return c.listener.shutdown(ctx)
}

// RedirectURI returns the localhost callback URL to register with providers.
func (c *Coordinator) RedirectURI() string {
	if c.listener == nil {
		return ""
	}
	return c.listener.redirectURI()
}

// StartFlow registers a new session and opens the provider authorization page.
// The state parameter is the session id; with PKCE the S256 challenge of a
// fresh verifier is attached and the verifier returned to the caller.
func (c *Coordinator) StartFlow(ctx context.Context, authURL, clientID string, scopes []string, usePKCE bool) (*FlowStart, error) {
	if c.listener == nil {
		return nil, schema.NewError(schema.ErrCodeOAuth, "callback listener not started")
	}
	if clientID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "client_id is required")
	}
	parsed, err := url.Parse(authURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid authorization url %q", authURL)
	}

	c.mu.Lock()
	// Sweep first so stale sessions don't count against the cap.
	c.removeExpiredLocked(time.Now())
	if len(c.sessions) >= c.cfg.MaxSessions {
		c.mu.Unlock()
		return nil, schema.NewErrorf(schema.ErrCodeCapacityExceeded,
			"%d oauth sessions already in flight", c.cfg.MaxSessions)
	}

	now := time.Now()
	sess := &Session{
		ID:          uuid.NewString(),
		RedirectURI: c.listener.redirectURI(),
		ClientID:    clientID,
		Scopes:      scopes,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.cfg.SessionTTL),
	}

	conf := &oauth2.Config{
		ClientID:    clientID,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
		RedirectURL: sess.RedirectURI,
		Scopes:      scopes,
	}
	var opts []oauth2.AuthCodeOption
	if usePKCE {
		sess.CodeVerifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(sess.CodeVerifier))
	}
	consentURL := conf.AuthCodeURL(sess.ID, opts...)

	c.sessions[sess.ID] = sess
	c.mu.Unlock()

	ctx = logging.WithSessionID(ctx, sess.ID)
	if err := c.cfg.OpenBrowser(consentURL); err != nil {
		// The flow is still viable: the caller gets the URL to present.
		c.logger.WarnContext(ctx, "failed to open browser", slog.String("error", err.Error()))
	}
	c.logger.InfoContext(ctx, "oauth flow started",
		slog.String("client_id", clientID), slog.Bool("pkce", usePKCE))

	return &FlowStart{
		SessionID:    sess.ID,
		CodeVerifier: sess.CodeVerifier,
		AuthURL:      consentURL,
	}, nil
}

// complete records the provider redirect on the matching session. It returns
// false when the state is unknown or the session already expired; no session
// state is created in that case.
func (c *Coordinator) complete(state, code, providerErr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[state]
	if !ok {
		return false
	}
	now := time.Now()
	if sess.expired(now) {
		delete(c.sessions, state)
		return false
	}
	if sess.Completed {
		// Replayed redirect; the first result stands.
		return false
	}
	sess.Completed = true
	sess.Code = code
	sess.ProviderError = providerErr
	return true
}

// PollResult reports the state of a session. A completed session is consumed
// by the first successful poll; a second poll for the same id is NOT_FOUND.
// Expired sessions are purged and reported as EXPIRED.
func (c *Coordinator) PollResult(ctx context.Context, sessionID string) (*PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[sessionID]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "session %q not found", sessionID)
	}
	if sess.expired(time.Now()) {
		delete(c.sessions, sessionID)
		return nil, schema.NewErrorf(schema.ErrCodeExpired, "session %q expired", sessionID)
	}
	if !sess.Completed {
		return &PollResult{Pending: true}, nil
	}

	delete(c.sessions, sessionID)
	c.logger.InfoContext(logging.WithSessionID(ctx, sessionID), "oauth result consumed",
		slog.Bool("success", sess.ProviderError == ""))
	return &PollResult{Code: sess.Code, ProviderError: sess.ProviderError}, nil
}

// Sweep removes all expired sessions regardless of completion, bounding
// memory and preventing replay of stale state values. Safe to call
// concurrently; returns the number of sessions removed.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeExpiredLocked(time.Now())
}

func (c *Coordinator) removeExpiredLocked(now time.Time) int {
	removed := 0
	for id, sess := range c.sessions {
		if sess.expired(now) {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

// liveSessions returns the current session count, for tests and diagnostics.
func (c *Coordinator) liveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

package oauth

import "time"

// Session tracks one in-flight authorization-code flow. The session id is
// also the OAuth state parameter: cryptographically random, unguessable and
// single-use, so it doubles as CSRF defense.
type Session struct {
	ID           string    `json:"session_id"`
	RedirectURI  string    `json:"redirect_uri"`
	ClientID     string    `json:"client_id"`
	Scopes       []string  `json:"scopes,omitempty"`
	CodeVerifier string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Completed    bool      `json:"completed"`

	// Set once, when the provider redirect arrives.
	Code          string `json:"-"`
	ProviderError string `json:"-"`
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// FlowStart is returned by StartFlow. The caller must pass CodeVerifier back
// to whatever performs the token exchange; the coordinator only captures the
// authorization code.
type FlowStart struct {
	SessionID    string `json:"session_id"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	AuthURL      string `json:"auth_url"`
}

// PollResult reports the state of a flow. Exactly one of Pending, Code or
// ProviderError is meaningful.
type PollResult struct {
	Pending       bool   `json:"pending,omitempty"`
	Code          string `json:"code,omitempty"`
	ProviderError string `json:"error,omitempty"`
}

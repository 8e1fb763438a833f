// Package browser manages the heavyweight automation resources used by
// credential-retrieval jobs: isolated browsing profiles with their own cookie
// state and on-disk scratch directory. A profile is exclusively owned by one
// job at a time.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/sealbox/sealbox/pkg/schema"
)

const (
	defaultNavigateTimeout = 30 * time.Second
	maxPageSize            = 10 * 1024 * 1024 // 10MB
)

// Profile is one isolated browsing context: a cookie jar, a scratch directory
// and the most recently loaded page. Not safe for concurrent use; exclusivity
// is enforced by the Pool.
type Profile struct {
	ID  string
	Dir string

	client *http.Client

	mu         sync.Mutex
	currentURL string
	page       []byte
}

func newProfile(id, dir string) (*Profile, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Profile{
		ID:  id,
		Dir: dir,
		client: &http.Client{
			Jar:     jar,
			Timeout: defaultNavigateTimeout,
		},
	}, nil
}

// Navigate loads a page into the profile, carrying the profile's cookie state
// across calls. The body becomes the profile's current page.
func (p *Profile) Navigate(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeValidation, "invalid navigation url %q", rawURL).WithCause(err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExecution, "navigation to %q failed", rawURL).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeExecution, "reading page body from %q", rawURL).WithCause(err)
	}

	p.mu.Lock()
	p.currentURL = rawURL
	p.page = body
	p.mu.Unlock()
	return resp.StatusCode, nil
}

// Page returns the URL and body of the most recently navigated page.
func (p *Profile) Page() (string, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentURL, p.page
}

// reset clears navigation state before the profile is handed to the next job.
// Cookie state is dropped with the jar so jobs cannot observe each other.
func (p *Profile) reset() {
	jar, err := cookiejar.New(nil)
	if err == nil {
		p.client.Jar = jar
	}
	p.mu.Lock()
	p.currentURL = ""
	p.page = nil
	p.mu.Unlock()
}

package browser

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/sealbox/sealbox/pkg/schema"
)

const defaultPoolSize = 3

// Pool hands out exclusive profiles. Acquire never blocks: when every profile
// is owned the caller gets a RESOURCE_ERROR and decides whether to retry.
type Pool struct {
	logger *slog.Logger

	mu    sync.Mutex
	free  []*Profile
	inUse map[string]*Profile

	acquired int64
	released int64
}

// NewPool creates size profiles, each with its own scratch directory under
// baseDir. An empty baseDir uses a temp directory.
func NewPool(size int, baseDir string, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}
	if baseDir == "" {
		dir, err := os.MkdirTemp("", "sealbox-profiles-")
		if err != nil {
			return nil, fmt.Errorf("create profile base dir: %w", err)
		}
		baseDir = dir
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		logger: logger,
		free:   make([]*Profile, 0, size),
		inUse:  make(map[string]*Profile),
	}
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("profile-%d", i)
		dir := filepath.Join(baseDir, id)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create profile dir %s: %w", dir, err)
		}
		prof, err := newProfile(id, dir)
		if err != nil {
			return nil, err
		}
		p.free = append(p.free, prof)
	}
	return p, nil
}

// Acquire takes exclusive ownership of a free profile.
func (p *Pool) Acquire() (*Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return nil, schema.NewError(schema.ErrCodeResource, "no browser profile available")
	}
	prof := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[prof.ID] = prof
	p.acquired++
	return prof, nil
}

// Release returns a profile to the pool, clearing its state. Releasing a
// profile that is not in use is a no-op, so a sweeper force-release racing a
// normal release is harmless.
func (p *Pool) Release(prof *Profile) {
	if prof == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[prof.ID]; !ok {
		return
	}
	delete(p.inUse, prof.ID)
	prof.reset()
	p.free = append(p.free, prof)
	p.released++
}

// InUse returns the number of profiles currently owned by jobs.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Counts returns cumulative acquire/release totals.
func (p *Pool) Counts() (acquired, released int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired, p.released
}

// Package tenant holds the active-project state for docserver: the
// tenant triple, the resolved config snapshot, and the is_activated
// gate every tool handler but activate_project must check first.
package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// lockFileName is the single-instance lock guarding a project's on-disk
// index while it is activated.
const lockFileName = "docserver.lock"

// Key is the tenant triple that isolates every stored record. It is the
// sole isolation boundary; there is no cross-tenant query.
type Key struct {
	ProjectName string
	BranchName  string
	PathHash    string
}

func (k Key) String() string {
	return k.ProjectName + "/" + k.BranchName + "/" + k.PathHash
}

// HashPath returns a stable hex digest of absPath, used as PathHash so
// concurrent checkouts of the same project at different paths don't
// collide in the store.
func HashPath(absPath string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(absPath)))
	return hex.EncodeToString(sum[:])[:16]
}

// DetectBranch reads rootPath/.git/HEAD and returns the checked-out
// branch name, or "main" if rootPath isn't a git repository or HEAD is
// detached.
func DetectBranch(rootPath string) string {
	data, err := os.ReadFile(filepath.Join(rootPath, ".git", "HEAD"))
	if err != nil {
		return "main"
	}
	content := strings.TrimSpace(string(data))
	const refPrefix = "ref: refs/heads/"
	if strings.HasPrefix(content, refPrefix) {
		if branch := strings.TrimPrefix(content, refPrefix); branch != "" {
			return branch
		}
	}
	return "main"
}

// Context holds the single active tenant for a docserver process. One
// process activates at most one project at a time.
type Context struct {
	mu        sync.RWMutex
	activated bool
	key       Key
	rootPath  string
	cfg       *config.Config
	lock      *flock.Flock
}

// NewContext returns an unactivated Context.
func NewContext() *Context {
	return &Context{}
}

// Activate resolves rootPath, acquires the project's single-instance
// lock, computes the tenant triple, and makes it the active tenant.
// Calling Activate again with a different rootPath acquires the new
// lock and then releases the previous one.
func (c *Context) Activate(rootPath string, cfg *config.Config) (Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return Key{}, errors.Wrap(errors.TagInvalidArgument, "failed to resolve root path", err)
	}

	lockDir := config.ConfigDir(absPath)
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return Key{}, errors.Wrap(errors.TagFileSystemError, "failed to create config directory", err)
	}

	lock := flock.New(filepath.Join(lockDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return Key{}, errors.Wrap(errors.TagFileSystemError, "failed to acquire project lock", err)
	}
	if !locked {
		return Key{}, errors.New(errors.TagInvalidArgument, "another docserver process already has this project activated")
	}

	if c.lock != nil {
		_ = c.lock.Unlock()
	}

	key := Key{
		ProjectName: cfg.ProjectName,
		BranchName:  DetectBranch(absPath),
		PathHash:    HashPath(absPath),
	}

	c.key = key
	c.rootPath = absPath
	c.cfg = cfg
	c.lock = lock
	c.activated = true

	return key, nil
}

// Deactivate releases the project lock and clears the active tenant.
func (c *Context) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lock != nil {
		_ = c.lock.Unlock()
		c.lock = nil
	}
	c.activated = false
}

// RequireActivated returns ProjectNotActivated if no tenant is active.
func (c *Context) RequireActivated() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.activated {
		return errors.New(errors.TagProjectNotActivated, "no project is activated; call activate_project first")
	}
	return nil
}

// Key returns the active tenant triple.
func (c *Context) Key() (Key, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.activated {
		return Key{}, errors.New(errors.TagProjectNotActivated, "no project is activated; call activate_project first")
	}
	return c.key, nil
}

// Config returns the active tenant's config snapshot.
func (c *Context) Config() (*config.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.activated {
		return nil, errors.New(errors.TagProjectNotActivated, "no project is activated; call activate_project first")
	}
	return c.cfg, nil
}

// RootPath returns the activated project's resolved absolute path, or
// "" if no tenant is active.
func (c *Context) RootPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rootPath
}

// IsActivated reports whether a tenant is currently active.
func (c *Context) IsActivated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activated
}

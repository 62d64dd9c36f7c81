// Package vault handles the on-disk markdown vault: collision-safe note
// creation, reads, moves, and compensating deletes.
package vault

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Vault errors.
var (
	// ErrOutsideVault is returned for paths escaping the vault root.
	ErrOutsideVault = errors.New("path escapes vault root")

	// ErrTooManyCollisions is returned when filename disambiguation
	// gives up.
	ErrTooManyCollisions = errors.New("too many filename collisions")
)

// maxCollisionSuffix bounds the "-N" disambiguation loop.
const maxCollisionSuffix = 100

// Vault writes markdown files under a single root directory. Concurrent
// writes to the same relative path are serialized with a keyed lock so
// disambiguation never races.
type Vault struct {
	root   string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Vault) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// New opens a vault rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Vault, error) {
	if dir == "" {
		return nil, fmt.Errorf("vault root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create vault root: %w", err)
	}
	v := &Vault{
		root:   abs,
		logger: zap.NewNop(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the vault's absolute root directory.
func (v *Vault) Root() string {
	return v.root
}

func (v *Vault) pathLock(rel string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.locks[rel]
	if !ok {
		m = &sync.Mutex{}
		v.locks[rel] = m
	}
	return m
}

// resolve maps a vault-relative path to an absolute one, rejecting
// escapes.
func (v *Vault) resolve(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}
	return filepath.Join(v.root, clean), nil
}

// WriteNew creates a new file at the requested vault-relative path.
// When the name is taken, a numeric suffix ("-2", "-3", ...) is appended
// before the extension until an unclaimed name is found. Existing files
// are never overwritten. The actually written relative path is returned.
func (v *Vault) WriteNew(rel string, content []byte) (string, error) {
	lock := v.pathLock(rel)
	lock.Lock()
	defer lock.Unlock()

	ext := filepath.Ext(rel)
	base := strings.TrimSuffix(rel, ext)

	for i := 1; i <= maxCollisionSuffix; i++ {
		candidate := rel
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
		}
		abs, err := v.resolve(candidate)
		if err != nil {
			return "", err
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return "", fmt.Errorf("create note directory: %w", err)
		}

		f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create note file: %w", err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			os.Remove(abs)
			return "", fmt.Errorf("write note file: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(abs)
			return "", fmt.Errorf("close note file: %w", err)
		}

		if candidate != rel {
			v.logger.Debug("note filename disambiguated",
				zap.String("requested", rel),
				zap.String("written", candidate),
			)
		}
		return filepath.ToSlash(candidate), nil
	}
	return "", fmt.Errorf("%w: %s", ErrTooManyCollisions, rel)
}

// Read returns the content of a vault-relative path.
func (v *Vault) Read(rel string) ([]byte, error) {
	abs, err := v.resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// Exists reports whether a vault-relative path is present.
func (v *Vault) Exists(rel string) bool {
	abs, err := v.resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Move relocates a note within the vault, creating the destination
// directory as needed. Used when feedback corrects a filing decision.
func (v *Vault) Move(fromRel, toRel string) error {
	from, err := v.resolve(fromRel)
	if err != nil {
		return err
	}
	to, err := v.resolve(toRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move note: %w", err)
	}
	return nil
}

// Delete removes a note file. Missing files are not an error so
// compensating deletes stay idempotent.
func (v *Vault) Delete(rel string) error {
	abs, err := v.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

package game

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrInvalidModule = errors.New("invalid game module")
	ErrDuplicateGame = errors.New("game already registered")
)

// Loader builds a module from a file.
type Loader func(path string) (Module, error)

// Registry resolves game modules by name.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds a module. Names are unique: the first module registered
// under a name keeps it.
func (r *Registry) Register(m Module) error {
	if m == nil {
		return ErrInvalidModule
	}
	name := m.Info().Name
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.modules[name]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateGame, name)
	}
	r.modules[name] = m
	return nil
}

// Resolve returns the module registered under name.
func (r *Registry) Resolve(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGameNotFound, name)
	}
	return m, nil
}

// Has reports whether a module is registered under name.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Limits returns the player bounds declared by the module registered under name.
func (r *Registry) Limits(name string) (minPlayers, maxPlayers int, ok bool) {
	m, err := r.Resolve(name)
	if err != nil {
		return 0, 0, false
	}
	info := m.Info()
	return info.MinPlayers, info.MaxPlayers, true
}

// List returns the info of every module, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Info, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDir registers every file in dir whose name ends with ext.
// Files that fail to load are skipped and reported in the joined error.
func (r *Registry) LoadDir(dir, ext string, load Loader) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read games dir: %w", err)
	}

	var (
		loaded int
		errs   []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		m, err := load(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", path, err))
			continue
		}
		if err := r.Register(m); err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", path, err))
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

package modules

import (
	"errors"
	"io/fs"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Registry resolves module identifiers to compiled modules.
//
// Modules are compiled from a descriptor directory in fsys the first time they
// are required and cached afterwards, so repeated Require calls for the same ID
// return the identical *Module. Failed loads are not cached. Safe for
// concurrent use.
type Registry struct {
	fsys   fs.FS
	minify bool
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	once   sync.Once
	mod    *Module
	err    error
	loaded bool // guarded by Registry.mu
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithMinify toggles minification for descriptors that request it
func WithMinify(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.minify = enabled
	}
}

// WithLogger sets the logger used for module load events
func WithLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry that compiles modules out of fsys
func NewRegistry(fsys fs.FS, opts ...RegistryOption) *Registry {
	r := &Registry{
		fsys:    fsys,
		minify:  true,
		logger:  zerolog.Nop(),
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Require returns the module registered under id, compiling it on first use
func (r *Registry) Require(id string) (*Module, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		e = &entry{}
		r.entries[id] = e
	}
	r.mu.Unlock()

	e.once.Do(func() {
		e.mod, e.err = r.load(id)
	})

	if e.err != nil {
		// Drop the failed entry so a later Require can retry the load
		r.mu.Lock()
		if r.entries[id] == e {
			delete(r.entries, id)
		}
		r.mu.Unlock()
		return nil, e.err
	}

	r.mu.Lock()
	e.loaded = true
	r.mu.Unlock()

	return e.mod, nil
}

// Loaded returns the sorted identifiers of the modules currently cached
func (r *Registry) Loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.loaded {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) load(id string) (*Module, error) {
	dir, ok := descriptorDir(id)
	if !ok {
		return nil, ErrModuleNotFound{ID: id}
	}

	d, err := LoadDescriptor(r.fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrModuleNotFound{ID: id, Err: err}
		}
		return nil, err
	}

	if d.ID != id {
		return nil, ErrMalformedModule{ID: id, Reason: "descriptor declares id " + d.ID}
	}

	mod, err := compile(r.fsys, dir, d, r.minify)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().
		Str("module", id).
		Str("kind", string(d.Kind)).
		Strs("exports", mod.ExportNames()).
		Msg("module loaded")

	return mod, nil
}

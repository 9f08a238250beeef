package plugin

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Registry tracks installed plugin manifests plus the Factory used to
// construct a running instance for each (spec.md §4.9 "installed by
// registering their manifest plus an executable blob; installation is
// deduplicated by key").
//
// A Registry is per-handle, mirroring the teacher's process-wide
// backendRegistry but scoped to one lix.Engine instance instead of the
// whole process, since two handles may have different installed plugins.
type Registry struct {
	mu        sync.RWMutex
	installed map[string]Installed
	factories map[string]Factory
}

// NewRegistry returns an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{installed: map[string]Installed{}, factories: map[string]Factory{}}
}

// RegisterFactory associates a Factory with the runtime_version a manifest
// declares (e.g. "wasm-v1", "subprocess-v1"), so Install can construct a
// runnable Plugin for any manifest that names a known runtime.
func (r *Registry) RegisterFactory(runtimeVersion string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[runtimeVersion] = f
}

// Install registers inst, deduplicated by manifest key: installing the same
// key twice replaces the prior manifest+payload (spec.md §4.9 "installation
// is deduplicated by key").
func (r *Registry) Install(inst Installed) error {
	if err := inst.Manifest.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installed[inst.Manifest.Key] = inst
	return nil
}

// Get returns the installed manifest+payload for key, if any.
func (r *Registry) Get(key string) (Installed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.installed[key]
	return inst, ok
}

// Keys returns every installed plugin key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.installed))
	for k := range r.installed {
		keys = append(keys, k)
	}
	return keys
}

// Resolve returns the plugin manifest whose detect_changes_glob matches
// path, or ok=false if none matches — the caller falls back to binary
// history (spec.md §4.9 step 1 "Resolve matching plugin by glob on path;
// otherwise use binary fallback").
//
// Matching uses path/filepath.Match, the same glob primitive the teacher
// uses for layout-path matching; no third-party glob library is involved
// (see DESIGN.md's standard-library justification). A leading "**/" also
// matches zero or more leading directories, so "**/*.json" matches both
// "config.json" and "/a/b/config.json".
func (r *Registry) Resolve(path string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.installed {
		pattern := inst.Manifest.DetectChangesGlob
		ok, err := filepath.Match(pattern, path)
		if err == nil && !ok && strings.HasPrefix(pattern, "**/") {
			rest := strings.TrimPrefix(pattern, "**/")
			for p := path; err == nil && !ok; {
				ok, err = filepath.Match(rest, p)
				i := strings.Index(p, "/")
				if i < 0 {
					break
				}
				p = p[i+1:]
			}
		}
		if err == nil && ok {
			return inst.Manifest, true
		}
	}
	return Manifest{}, false
}

func (r *Registry) factoryFor(runtimeVersion string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[runtimeVersion]
	if !ok {
		return nil, fmt.Errorf("plugin: no factory registered for runtime_version %q", runtimeVersion)
	}
	return f, nil
}

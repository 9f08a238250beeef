// Package plugin implements the plugin-mediated file path from spec.md §4.9:
// glob-based plugin selection, detect_changes/apply_changes invocation, and
// a per-handle plugin instance cache.
//
// Grounded on the teacher's internal/storage/factory/factory.go
// (backendRegistry: a map[string]Factory populated by RegisterBackend,
// looked up by a string key at construction time) — generalized from
// "storage backend, keyed by CLI --backend flag" to "codec plugin, keyed by
// manifest key and selected by glob match on file path" — plus
// internal/beads/paths.go's glob/layout matching idiom, reused here for
// detect_changes_glob.
package plugin

import "fmt"

// Manifest describes an installed plugin (spec.md §4.9 "{ key,
// runtime_version, detect_changes_glob, entry, api_version }").
type Manifest struct {
	Key               string
	RuntimeVersion    string
	DetectChangesGlob string
	Entry             string
	APIVersion        string
}

// Installed is a manifest plus its executable payload, as persisted by
// install_plugin (spec.md §4.9, §4 host API "install_plugin({ manifest,
// code_bytes })").
type Installed struct {
	Manifest  Manifest
	CodeBytes []byte
}

func (m Manifest) validate() error {
	if m.Key == "" {
		return fmt.Errorf("plugin: manifest key must not be empty")
	}
	if m.DetectChangesGlob == "" {
		return fmt.Errorf("plugin: manifest %s: detect_changes_glob must not be empty", m.Key)
	}
	if m.Entry == "" {
		return fmt.Errorf("plugin: manifest %s: entry must not be empty", m.Key)
	}
	return nil
}

// Package fsx implements the filesystem core from spec.md §4.7/§4.10:
// path normalization, ancestor-directory auto-create, collision checks, and
// the file-data/file-path caches the plugin runtime and read path rely on.
//
// Grounded on the teacher's internal/beads/paths.go (VarPath/VarPathForWrite/
// IsVarLayout: layout-aware path resolution with a read-both fallback),
// generalized from a flat var/-vs-root layout choice to lix's directory-tree
// + per-version-inheritance path resolution.
package fsx

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// NormalizedPath is a validated, percent-decoded absolute path split into
// its directory and leaf components.
type NormalizedPath struct {
	Full      string // "/docs/readme.md"
	Dir       string // "/docs" ("/" for root-level files)
	Name      string // "readme"
	Extension string // "md" (no leading dot; empty if none)
}

// Normalize validates and splits raw per spec.md §4.7: leading slash
// required, percent-encoding of unreserved bytes only, NUL forbidden,
// ancestor escape ("..") forbidden.
func Normalize(raw string) (*NormalizedPath, error) {
	if raw == "" || raw[0] != '/' {
		return nil, fmt.Errorf("fsx: path must start with '/': %q", raw)
	}
	if strings.ContainsRune(raw, 0) {
		return nil, fmt.Errorf("fsx: path contains NUL byte: %q", raw)
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return nil, fmt.Errorf("fsx: invalid percent-encoding in %q: %w", raw, err)
	}
	clean := path.Clean(decoded)
	if clean != "/" && strings.HasSuffix(decoded, "/") {
		return nil, fmt.Errorf("fsx: path must not end with '/': %q", raw)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return nil, fmt.Errorf("fsx: path escapes root via '..': %q", raw)
		}
	}
	if clean == "/" || clean == "." {
		return nil, fmt.Errorf("fsx: path has no file name: %q", raw)
	}

	dir, base := path.Split(clean)
	dir = strings.TrimSuffix(dir, "/")
	if dir == "" {
		dir = "/"
	}
	name, ext := splitExt(base)
	return &NormalizedPath{Full: clean, Dir: dir, Name: name, Extension: ext}, nil
}

func splitExt(base string) (name, ext string) {
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 { // no dot, or dotfile with no further extension (".gitignore")
		return base, ""
	}
	return base[:idx], base[idx+1:]
}

// AncestorDirs returns the chain of directory paths from root down to and
// including dir itself, in creation order — the order the filesystem write
// planner must ensure-exist in to satisfy FK ordering (spec.md §4.7
// "Resolve or create ancestor directories idempotently"). For dir == "/"
// it returns nil: the root directory is implicit and never materialized.
func AncestorDirs(dir string) []string {
	if dir == "/" {
		return nil
	}
	segs := strings.Split(strings.TrimPrefix(dir, "/"), "/")
	var out []string
	cur := ""
	for _, s := range segs {
		cur += "/" + s
		out = append(out, cur)
	}
	return out
}

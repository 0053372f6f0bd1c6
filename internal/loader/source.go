package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/stacklok/toolhive-gateway/internal/endpoint"
	"github.com/stacklok/toolhive-gateway/internal/versions"
)

// Source discovers endpoint modules. Modules are returned in the source's natural order.
type Source interface {
	// Name identifies the source in logs
	Name() string

	// Modules lists the modules currently available. An error here aborts the discovery pass.
	Modules(ctx context.Context) ([]endpoint.Module, error)
}

// IsManifestFile reports whether a file name is a candidate module manifest
func IsManifestFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// DirectorySource reads module manifests from a single directory
type DirectorySource struct {
	dir  string
	skip []string
}

// NewDirectorySource creates a source reading manifests in dir, ignoring the file names in skip
func NewDirectorySource(dir string, skip ...string) *DirectorySource {
	return &DirectorySource{dir: dir, skip: skip}
}

// Name implements Source
func (s *DirectorySource) Name() string {
	return "dir:" + s.dir
}

// Dir returns the watched directory
func (s *DirectorySource) Dir() string {
	return s.dir
}

// Modules implements Source. Files are visited in lexical order. When several manifests
// declare the same module name the highest version is kept at the position of the
// first occurrence.
func (s *DirectorySource) Modules(ctx context.Context) ([]endpoint.Module, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read module directory %s: %w", s.dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var modules []endpoint.Module
	index := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() || !IsManifestFile(entry.Name()) || slices.Contains(s.skip, entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			modules = append(modules, &brokenModule{name: entry.Name(), err: fmt.Errorf("failed to read manifest: %w", err)})
			continue
		}
		manifest, err := ParseManifest(data)
		if err != nil {
			modules = append(modules, &brokenModule{name: entry.Name(), err: err})
			continue
		}

		mod := &manifestModule{manifest: manifest, file: entry.Name()}
		pos, seen := index[manifest.Name]
		if !seen {
			index[manifest.Name] = len(modules)
			modules = append(modules, mod)
			continue
		}

		current := modules[pos].(*manifestModule)
		if versions.CompareModuleVersions(manifest.Version, current.manifest.Version) > 0 {
			slog.InfoContext(ctx, "Newer module version supersedes earlier manifest",
				"module", manifest.Name, "version", manifest.Version,
				"file", entry.Name(), "replaced_file", current.file)
			modules[pos] = mod
			continue
		}
		slog.InfoContext(ctx, "Ignoring older module manifest",
			"module", manifest.Name, "version", manifest.Version,
			"file", entry.Name(), "kept_file", current.file)
	}
	return modules, nil
}

// StaticSource serves modules compiled into the binary
type StaticSource struct {
	name    string
	modules []endpoint.Module
}

// NewStaticSource creates a source with a fixed module list
func NewStaticSource(name string, modules ...endpoint.Module) *StaticSource {
	return &StaticSource{name: name, modules: modules}
}

// Name implements Source
func (s *StaticSource) Name() string {
	return "static:" + s.name
}

// Modules implements Source
func (s *StaticSource) Modules(context.Context) ([]endpoint.Module, error) {
	return slices.Clone(s.modules), nil
}

// MultiSource chains sources; modules of earlier sources come first
type MultiSource []Source

// Name implements Source
func (m MultiSource) Name() string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

// Modules implements Source
func (m MultiSource) Modules(ctx context.Context) ([]endpoint.Module, error) {
	var out []endpoint.Module
	for _, s := range m {
		mods, err := s.Modules(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name(), err)
		}
		out = append(out, mods...)
	}
	return out, nil
}

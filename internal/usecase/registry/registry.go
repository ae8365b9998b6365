// Package registry discovers template files under a set of base directories
// and serves an in-memory catalog of them. A scan rebuilds the catalog
// wholesale into a fresh snapshot and swaps it in atomically, so concurrent
// readers always observe either the previous or the new catalog, never a
// partially built one.
package registry

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"agentforge/internal/adapter/loader"
	"agentforge/internal/domain"
)

// templatePattern matches candidate template files within a base directory.
const templatePattern = "**/*.{yaml,yml}"

// Registry catalogs templates by name. All lookups read the current
// snapshot; Scan is the only writer.
type Registry struct {
	dirs   []string
	logger *slog.Logger

	mu   sync.RWMutex
	snap *snapshot
}

// snapshot is one fully built catalog generation.
type snapshot struct {
	templates map[string]*domain.Template
	paths     map[string]string
	tags      map[string][]string // lowercased tag -> template names
	catalog   domain.Catalog
}

// New creates a registry over the given base directories. A nil logger
// discards log output.
func New(dirs []string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		dirs:   dirs,
		logger: logger.With("component", "registry"),
		snap:   emptySnapshot(),
	}
}

func emptySnapshot() *snapshot {
	return &snapshot{
		templates: map[string]*domain.Template{},
		paths:     map[string]string{},
		tags:      map[string][]string{},
	}
}

// Scan rebuilds the catalog from disk. Per-file problems and missing base
// directories are reported as warnings, not errors: scanning multiple search
// roots must tolerate optional paths and a single bad file must not abort
// discovery. The returned warnings are also logged at Warn level.
func (r *Registry) Scan() ([]string, error) {
	next := emptySnapshot()
	var warnings []string
	warnf := func(format string, args ...any) {
		w := fmt.Sprintf(format, args...)
		warnings = append(warnings, w)
		r.logger.Warn("scan warning", "detail", w)
	}

	for _, dir := range r.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			warnf("template directory %s does not exist, skipping", dir)
			continue
		}
		files, err := discoverFiles(dir)
		if err != nil {
			return warnings, domain.WrapOp("registry.scan", err)
		}
		for _, path := range files {
			r.addFile(next, path, warnf)
		}
	}

	buildCatalog(next)

	r.mu.Lock()
	r.snap = next
	r.mu.Unlock()

	r.logger.Info("scan complete", "templates", len(next.templates), "warnings", len(warnings))
	return warnings, nil
}

// Refresh is a full rescan; there is no incremental mode.
func (r *Registry) Refresh() ([]string, error) {
	return r.Scan()
}

// discoverFiles walks dir recursively and returns every file matching the
// template pattern, in deterministic (sorted) order so that duplicate
// resolution is stable across scans.
func discoverFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		ok, err := doublestar.Match(templatePattern, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Registry) addFile(snap *snapshot, path string, warnf func(string, ...any)) {
	tpl, err := loader.New("").LoadTemplate(path)
	if err != nil {
		warnf("skipping %s: %v", path, err)
		return
	}

	name := tpl.Metadata.Name
	if existing, ok := snap.paths[name]; ok {
		warnf("skipping %s: duplicate template name %q (already loaded from %s)", path, name, existing)
		return
	}

	snap.templates[name] = tpl
	snap.paths[name] = path
	for _, tag := range tpl.Metadata.Tags {
		key := strings.ToLower(tag)
		snap.tags[key] = append(snap.tags[key], name)
	}
}

func buildCatalog(snap *snapshot) {
	names := make([]string, 0, len(snap.templates))
	for name := range snap.templates {
		names = append(names, name)
	}
	sort.Strings(names)

	snap.catalog = make(domain.Catalog, 0, len(names))
	for _, name := range names {
		tpl := snap.templates[name]
		tools := make([]string, 0, len(tpl.Agent.Tools))
		for _, ref := range tpl.Agent.Tools {
			tools = append(tools, ref.Name)
		}
		snap.catalog = append(snap.catalog, domain.CatalogEntry{
			Name:        name,
			Version:     tpl.Metadata.Version,
			Description: tpl.Metadata.Description,
			Tags:        append([]string(nil), tpl.Metadata.Tags...),
			Tools:       tools,
			Path:        snap.paths[name],
			HasExtends:  tpl.Metadata.Extends != "",
			MixinCount:  len(tpl.Metadata.Mixins),
		})
	}
}

func (r *Registry) snapshot() *snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Template returns the template registered under name.
func (r *Registry) Template(name string) (*domain.Template, bool) {
	tpl, ok := r.snapshot().templates[name]
	return tpl, ok
}

// Path returns the file path the named template was loaded from.
func (r *Registry) Path(name string) (string, bool) {
	path, ok := r.snapshot().paths[name]
	return path, ok
}

// Catalog returns the discovery listing, sorted by name.
func (r *Registry) Catalog() domain.Catalog {
	return r.snapshot().catalog
}

// Names returns all registered template names, sorted.
func (r *Registry) Names() []string {
	snap := r.snapshot()
	names := make([]string, 0, len(snap.templates))
	for name := range snap.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered templates.
func (r *Registry) Len() int {
	return len(r.snapshot().templates)
}

// FilterByTag returns catalog entries whose templates carry the tag,
// case-insensitively.
func (r *Registry) FilterByTag(tag string) domain.Catalog {
	snap := r.snapshot()
	names := snap.tags[strings.ToLower(tag)]
	if len(names) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var out domain.Catalog
	for _, entry := range snap.catalog {
		if wanted[entry.Name] {
			out = append(out, entry)
		}
	}
	return out
}

// FilterByTool returns catalog entries for templates referencing the tool,
// case-insensitively.
func (r *Registry) FilterByTool(tool string) domain.Catalog {
	lower := strings.ToLower(tool)
	var out domain.Catalog
	for _, entry := range r.snapshot().catalog {
		for _, t := range entry.Tools {
			if strings.ToLower(t) == lower {
				out = append(out, entry)
				break
			}
		}
	}
	return out
}

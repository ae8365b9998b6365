// Package resolve turns a loaded template into its fully merged form: the
// inheritance chain is walked and flattened, mixin fragments are appended to
// the prompt, and per-tool configurations are layered. Each stage feeds the
// next and fails fast on the first fatal condition. Resolution always
// produces new templates; inputs are never mutated.
package resolve

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"agentforge/internal/adapter/loader"
	"agentforge/internal/domain"
)

// DefaultMaxDepth bounds the extends chain. Exceeding it fails even without
// a true cycle.
const DefaultMaxDepth = 10

// Resolver resolves one template rooted at a base directory. Relative
// extends, mixin, and tool-config paths are resolved against that
// directory.
type Resolver struct {
	loader   *loader.Loader
	baseDir  string
	maxDepth int
	logger   *slog.Logger
}

// New creates a resolver. A nil logger discards output; maxDepth <= 0 means
// DefaultMaxDepth.
func New(baseDir string, maxDepth int, logger *slog.Logger) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		loader:   loader.New(baseDir),
		baseDir:  baseDir,
		maxDepth: maxDepth,
		logger:   logger.With("component", "resolver"),
	}
}

// Resolve runs the full pipeline: extends, then fragments, then tool
// configs. templatePath locates the template itself so that a self-extends
// is caught as a cycle; it may be empty for templates not loaded from disk.
func (r *Resolver) Resolve(tpl *domain.Template, templatePath string) (*domain.Template, map[string]domain.ToolConfig, error) {
	merged, err := r.ResolveExtends(tpl, templatePath)
	if err != nil {
		return nil, nil, err
	}
	merged, err = r.ResolveFragments(merged)
	if err != nil {
		return nil, nil, err
	}
	toolConfigs, err := r.ResolveToolConfigs(merged)
	if err != nil {
		return nil, nil, err
	}
	return merged, toolConfigs, nil
}

// ResolveExtends flattens the inheritance chain. A template without extends
// is returned as a clone, unchanged.
func (r *Resolver) ResolveExtends(tpl *domain.Template, templatePath string) (*domain.Template, error) {
	visited := map[string]bool{}
	var chain []string
	if templatePath != "" {
		abs := r.abs(templatePath)
		visited[abs] = true
		chain = append(chain, abs)
	}
	return r.resolveExtends(tpl, visited, chain, 0)
}

func (r *Resolver) resolveExtends(tpl *domain.Template, visited map[string]bool, chain []string, depth int) (*domain.Template, error) {
	if tpl.Metadata.Extends == "" {
		out := tpl.Clone()
		if out.Agent.Settings["inherit"] == "base" {
			delete(out.Agent.Settings, "inherit")
		}
		return out, nil
	}
	if depth >= r.maxDepth {
		return nil, &domain.ResolveError{
			Template: tpl.Metadata.Name,
			Err:      domain.ErrMaxDepthExceeded,
			Detail:   fmt.Sprintf("inheritance chain deeper than %d", r.maxDepth),
			Chain:    chain,
		}
	}

	parentPath := r.abs(tpl.Metadata.Extends)
	if visited[parentPath] {
		return nil, &domain.ResolveError{
			Template: tpl.Metadata.Name,
			Err:      domain.ErrCircularInheritance,
			Chain:    append(append([]string(nil), chain...), parentPath),
		}
	}
	visited[parentPath] = true
	chain = append(chain, parentPath)

	parent, err := r.loader.LoadTemplate(tpl.Metadata.Extends)
	if err != nil {
		return nil, &domain.ResolveError{
			Template: tpl.Metadata.Name,
			Err:      domain.ErrResolution,
			Detail:   fmt.Sprintf("loading parent template: %v", err),
		}
	}

	parent, err = r.resolveExtends(parent, visited, chain, depth+1)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("merged parent template",
		"template", tpl.Metadata.Name, "parent", parent.Metadata.Name)
	return mergeTemplates(parent, tpl), nil
}

// mergeTemplates merges child over an already fully resolved parent,
// producing a new template. The child's identity is kept; prompt is a
// parent-first textual append; tools are the ordered union with the
// parent's first; settings merge shallowly with child keys winning.
func mergeTemplates(parent, child *domain.Template) *domain.Template {
	out := child.Clone()
	out.Metadata.Extends = ""

	switch {
	case parent.Agent.Prompt == "":
		// child prompt stands alone
	case child.Agent.Prompt == "":
		out.Agent.Prompt = parent.Agent.Prompt
	default:
		out.Agent.Prompt = parent.Agent.Prompt + "\n\n" + child.Agent.Prompt
	}

	out.Agent.Tools = mergeToolRefs(parent.Agent.Tools, child.Agent.Tools)
	out.Agent.ToolConfigs = unionStrings(parent.Agent.ToolConfigs, child.Agent.ToolConfigs)
	out.Agent.ToolBundles = unionStrings(parent.Agent.ToolBundles, child.Agent.ToolBundles)
	out.Metadata.Mixins = unionStrings(parent.Metadata.Mixins, child.Metadata.Mixins)
	out.Agent.Settings = mergeSettings(parent.Agent.Settings, child.Agent.Settings)

	if out.Validation == nil && parent.Validation != nil {
		out.Validation = parent.Clone().Validation
	}
	if out.Runtime == nil && parent.Runtime != nil {
		out.Runtime = parent.Clone().Runtime
	}
	return out
}

// mergeToolRefs is the ordered union on tool name, parent-first,
// case-sensitive. A child reference to a tool the parent already lists is
// dropped; the parent's reference wins.
func mergeToolRefs(parent, child []domain.ToolReference) []domain.ToolReference {
	out := append([]domain.ToolReference(nil), parent...)
	seen := make(map[string]bool, len(parent))
	for _, ref := range parent {
		seen[ref.Name] = true
	}
	for _, ref := range child {
		if !seen[ref.Name] {
			seen[ref.Name] = true
			out = append(out, ref)
		}
	}
	return out
}

func unionStrings(parent, child []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range parent {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range child {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// mergeSettings shallow-merges child keys over the parent's. The sentinel
// inherit: base is consumed here and never appears in the output; it forces
// the parent's full settings as the starting point, which is also the
// default behavior, so its presence only ever signals intent.
func mergeSettings(parent, child map[string]any) map[string]any {
	if child == nil && parent == nil {
		return nil
	}
	out := map[string]any{}
	for k, v := range parent {
		out[k] = cloneAny(v)
	}
	for k, v := range child {
		if k == "inherit" && v == "base" {
			continue
		}
		out[k] = cloneAny(v)
	}
	return out
}

// ResolveFragments loads each mixin in declared order and appends it to the
// prompt under a fragment heading. A missing or invalid fragment is a
// terminal failure, never skipped.
func (r *Resolver) ResolveFragments(tpl *domain.Template) (*domain.Template, error) {
	if len(tpl.Metadata.Mixins) == 0 {
		return tpl, nil
	}

	out := tpl.Clone()
	for _, path := range tpl.Metadata.Mixins {
		frag, err := r.loader.LoadFragment(path)
		if err != nil {
			return nil, &domain.ResolveError{
				Template: tpl.Metadata.Name,
				Err:      domain.ErrResolution,
				Detail:   fmt.Sprintf("loading fragment %s: %v", path, err),
			}
		}
		out.Agent.Prompt += "\n\n# Fragment: " + frag.Name + "\n\n" + frag.Instructions
		r.logger.Debug("applied fragment", "template", tpl.Metadata.Name, "fragment", frag.Name)
	}
	return out, nil
}

func (r *Resolver) abs(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(r.baseDir, path)
}

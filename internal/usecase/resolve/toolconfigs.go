package resolve

import (
	"fmt"

	"agentforge/internal/domain"
)

// toolConfigExtendsDepth bounds the extends chain of a single tool config
// file, mirroring the template chain bound.
const toolConfigExtendsDepth = 10

// ResolveToolConfigs builds the per-tool configuration map for every tool
// the template references. Up to three sources layer in increasing
// priority: a template-wide config file matching the tool, the reference's
// own config file, and the reference's inline overrides. A tool with no
// source anywhere gets a minimal config carrying only its name. Any
// referenced file that cannot be loaded is a terminal failure.
func (r *Resolver) ResolveToolConfigs(tpl *domain.Template) (map[string]domain.ToolConfig, error) {
	templateWide, err := r.loadTemplateWideConfigs(tpl)
	if err != nil {
		return nil, err
	}

	out := make(map[string]domain.ToolConfig, len(tpl.Agent.Tools))
	for _, ref := range tpl.Agent.Tools {
		if _, done := out[ref.Name]; done {
			continue
		}

		cfg := domain.ToolConfig{Tool: domain.ToolSpec{Name: ref.Name}}
		if base, ok := templateWide[ref.Name]; ok {
			cfg = base.Clone()
		}

		if ref.Config != "" {
			refCfg, err := r.loadToolConfigChain(ref.Config, map[string]bool{}, 0)
			if err != nil {
				return nil, &domain.ResolveError{
					Template: tpl.Metadata.Name,
					Err:      domain.ErrResolution,
					Detail:   fmt.Sprintf("loading tool config %s for %s: %v", ref.Config, ref.Name, err),
				}
			}
			cfg = mergeToolConfigs(cfg, *refCfg)
		}

		if len(ref.Overrides) > 0 {
			cfg = applyOverrides(cfg, ref.Overrides)
		}

		cfg.Tool.Name = ref.Name
		out[ref.Name] = cfg
	}
	return out, nil
}

// loadTemplateWideConfigs loads every agent.toolConfigs file and every
// agent.toolBundles bundle, indexing the documents by tool name. Files are
// multi-document; later documents for the same tool merge over earlier
// ones.
func (r *Resolver) loadTemplateWideConfigs(tpl *domain.Template) (map[string]domain.ToolConfig, error) {
	paths := append([]string(nil), tpl.Agent.ToolConfigs...)
	for _, bundle := range tpl.Agent.ToolBundles {
		paths = append(paths, bundlePath(bundle))
	}

	out := map[string]domain.ToolConfig{}
	for _, path := range paths {
		cfgs, err := r.loader.LoadToolConfigs(path)
		if err != nil {
			return nil, &domain.ResolveError{
				Template: tpl.Metadata.Name,
				Err:      domain.ErrResolution,
				Detail:   fmt.Sprintf("loading tool configs %s: %v", path, err),
			}
		}
		for _, cfg := range cfgs {
			if existing, ok := out[cfg.Tool.Name]; ok {
				out[cfg.Tool.Name] = mergeToolConfigs(existing, cfg)
			} else {
				out[cfg.Tool.Name] = cfg.Clone()
			}
		}
	}
	return out, nil
}

// bundlePath maps a bundle name to its conventional file location under the
// template base directory.
func bundlePath(name string) string {
	return "bundles/" + name + ".yaml"
}

// loadToolConfigChain loads a tool config file and, when it extends another
// config, flattens that chain child-over-parent with the same cycle and
// depth protection as template inheritance.
func (r *Resolver) loadToolConfigChain(path string, visited map[string]bool, depth int) (*domain.ToolConfig, error) {
	if depth >= toolConfigExtendsDepth {
		return nil, &domain.ResolveError{
			Template: path,
			Err:      domain.ErrMaxDepthExceeded,
			Detail:   fmt.Sprintf("tool config chain deeper than %d", toolConfigExtendsDepth),
		}
	}
	abs := r.abs(path)
	if visited[abs] {
		return nil, &domain.ResolveError{
			Template: path,
			Err:      domain.ErrCircularInheritance,
		}
	}
	visited[abs] = true

	cfg, err := r.loader.LoadToolConfig(path)
	if err != nil {
		return nil, err
	}
	if cfg.Tool.Extends == "" {
		return cfg, nil
	}

	parent, err := r.loadToolConfigChain(cfg.Tool.Extends, visited, depth+1)
	if err != nil {
		return nil, err
	}
	merged := mergeToolConfigs(*parent, *cfg)
	merged.Tool.Extends = ""
	return &merged, nil
}

// mergeToolConfigs deep-merges overlay over base, section by section.
func mergeToolConfigs(base, overlay domain.ToolConfig) domain.ToolConfig {
	out := base.Clone()
	if overlay.Tool.Name != "" {
		out.Tool.Name = overlay.Tool.Name
	}
	if overlay.Tool.Extends != "" {
		out.Tool.Extends = overlay.Tool.Extends
	}
	out.Tool.DefaultSettings = deepMerge(out.Tool.DefaultSettings, overlay.Tool.DefaultSettings)
	out.Tool.Permissions = deepMerge(out.Tool.Permissions, overlay.Tool.Permissions)
	out.Tool.Validation = deepMerge(out.Tool.Validation, overlay.Tool.Validation)
	out.Tool.ErrorHandling = deepMerge(out.Tool.ErrorHandling, overlay.Tool.ErrorHandling)
	return out
}

// applyOverrides deep-merges an inline overrides mapping (a partial tool
// spec keyed by section) over the layered config. Identity fields are not
// overridable.
func applyOverrides(cfg domain.ToolConfig, overrides map[string]any) domain.ToolConfig {
	out := cfg.Clone()
	for key, value := range overrides {
		section, ok := value.(map[string]any)
		if !ok {
			continue
		}
		switch key {
		case "defaultSettings":
			out.Tool.DefaultSettings = deepMerge(out.Tool.DefaultSettings, section)
		case "permissions":
			out.Tool.Permissions = deepMerge(out.Tool.Permissions, section)
		case "validation":
			out.Tool.Validation = deepMerge(out.Tool.Validation, section)
		case "errorHandling":
			out.Tool.ErrorHandling = deepMerge(out.Tool.ErrorHandling, section)
		}
	}
	return out
}

// deepMerge merges overlay over base: nested plain mappings recurse, while
// arrays and primitives replace. Neither input is mutated.
func deepMerge(base, overlay map[string]any) map[string]any {
	if overlay == nil {
		return cloneAnyMap(base)
	}
	out := cloneAnyMap(base)
	if out == nil {
		out = map[string]any{}
	}
	for k, v := range overlay {
		if sub, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = deepMerge(baseSub, sub)
				continue
			}
		}
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAnyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}

// Package factory orchestrates the full pipeline: registry lookup,
// validation, resolution, and interpolation, turning a template name (or
// file path) plus a variable map into a ready-to-execute agent
// configuration. It is also the error translation boundary: internal
// failures surface here as user-actionable ones carrying recovery aids,
// while known error kinds pass through unchanged for callers to
// discriminate on.
package factory

import (
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"agentforge/internal/adapter/loader"
	"agentforge/internal/domain"
	"agentforge/internal/usecase/interp"
	"agentforge/internal/usecase/registry"
	"agentforge/internal/usecase/resolve"
	"agentforge/internal/usecase/validate"
)

// Options configures a Factory.
type Options struct {
	// TemplateDirs are the search roots the registry scans.
	TemplateDirs []string
	// SkipValidation disables schema validation before resolution.
	SkipValidation bool
	// EnableCache memoizes Create results by (name, variables).
	EnableCache bool
	// MaxInheritanceDepth bounds extends chains; zero means the resolver
	// default.
	MaxInheritanceDepth int
	// Logger receives structured progress and warning output; nil
	// discards it.
	Logger *slog.Logger
}

// Factory builds resolved agent configurations from templates.
type Factory struct {
	opts     Options
	registry *registry.Registry
	engine   *interp.Engine
	logger   *slog.Logger
	cache    *cache
}

// New creates a factory over the given options.
func New(opts Options) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	f := &Factory{
		opts:     opts,
		registry: registry.New(opts.TemplateDirs, logger),
		engine:   interp.New(),
		logger:   logger.With("component", "factory"),
	}
	if opts.EnableCache {
		f.cache = newCache()
	}
	return f
}

// SetEngine replaces the interpolation engine, letting tests inject a
// deterministic clock and working directory.
func (f *Factory) SetEngine(e *interp.Engine) { f.engine = e }

// Registry exposes the underlying registry for catalog browsing.
func (f *Factory) Registry() *registry.Registry { return f.registry }

// Scan discovers templates under the configured directories. It must run
// before Create.
func (f *Factory) Scan() ([]string, error) { return f.registry.Scan() }

// Refresh rescans from scratch.
func (f *Factory) Refresh() ([]string, error) { return f.registry.Refresh() }

// Create resolves the named template with the given variables. Identical
// concurrent calls share one computation when caching is enabled; with
// caching disabled every call computes and returns a fresh object.
func (f *Factory) Create(name string, vars map[string]any) (*domain.ResolvedAgentConfig, error) {
	tpl, ok := f.registry.Template(name)
	if !ok {
		return nil, &domain.FactoryError{
			Template: name,
			Err:      domain.ErrTemplateNotFound,
			Known:    f.registry.Names(),
		}
	}
	path, _ := f.registry.Path(name)

	if f.cache == nil {
		return f.build(name, tpl, path, vars)
	}

	key, ok := cacheKey(name, vars)
	if !ok {
		return f.build(name, tpl, path, vars)
	}
	if cfg, hit := f.cache.get(key); hit {
		f.logger.Debug("cache hit", "template", name)
		return cfg, nil
	}
	cfg, err := f.cache.compute(key, func() (*domain.ResolvedAgentConfig, error) {
		return f.build(name, tpl, path, vars)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateFromPath runs the same pipeline starting from an explicit template
// file. It does not require a prior Scan and is never cached.
func (f *Factory) CreateFromPath(path string, vars map[string]any) (*domain.ResolvedAgentConfig, error) {
	tpl, err := loader.New("").LoadTemplate(path)
	if err != nil {
		return nil, err
	}
	return f.build(tpl.Metadata.Name, tpl, path, vars)
}

// build is the uncached pipeline for one template.
func (f *Factory) build(name string, tpl *domain.Template, path string, vars map[string]any) (*domain.ResolvedAgentConfig, error) {
	if !f.opts.SkipValidation {
		result := validate.Template(tpl)
		if !result.Valid {
			return nil, &domain.FactoryError{
				Template: name,
				Err:      domain.ErrTemplateInvalid,
				Findings: result.Errors(),
			}
		}
	}

	// Absent required variables are reported as a missing-variables failure
	// carrying the full union of names; the per-variable type checks below
	// only ever see variables that were actually supplied.
	if missing := f.missingVariables(tpl, vars); len(missing) > 0 {
		return nil, &domain.FactoryError{
			Template: name,
			Err:      domain.ErrMissingVariables,
			Missing:  missing,
		}
	}

	if !f.opts.SkipValidation {
		varsResult := validate.Variables(tpl, vars)
		if !varsResult.Valid {
			return nil, &domain.FactoryError{
				Template: name,
				Err:      domain.ErrTemplateInvalid,
				Findings: varsResult.Errors(),
			}
		}
	}

	baseDir := filepath.Dir(path)
	if path == "" {
		baseDir = ""
	}
	resolver := resolve.New(baseDir, f.opts.MaxInheritanceDepth, f.logger)
	merged, toolConfigs, err := resolver.Resolve(tpl, path)
	if err != nil {
		// Known resolution error kinds pass through unchanged.
		return nil, err
	}

	effective := f.effectiveVariables(merged, vars)
	prompt, err := f.engine.Interpolate(merged.Agent.Prompt, effective)
	if err != nil {
		return nil, err
	}

	cfg := &domain.ResolvedAgentConfig{
		Prompt:      prompt,
		Tools:       toolNames(merged.Agent.Tools),
		ToolConfigs: toolConfigs,
		Settings:    extractSettings(merged.Agent.Settings),
	}

	runtime, err := f.resolveRuntime(merged, effective)
	if err != nil {
		return nil, err
	}
	cfg.Runtime = runtime

	f.logger.Info("template resolved",
		"template", name, "tools", len(cfg.Tools), "promptBytes", len(cfg.Prompt))
	return cfg, nil
}

// missingVariables computes the union of names required by the declared
// rules and by the raw prompt text but satisfied by neither the provided
// map, a rule default, nor a built-in.
func (f *Factory) missingVariables(tpl *domain.Template, vars map[string]any) []string {
	var missing []string
	seen := map[string]bool{}

	if tpl.Validation != nil {
		for _, name := range tpl.Validation.Required {
			if _, ok := vars[name]; ok {
				continue
			}
			if rule, ok := tpl.Validation.Types[name]; ok && rule.Default != nil {
				continue
			}
			if !seen[name] {
				seen[name] = true
				missing = append(missing, name)
			}
		}
	}

	for _, name := range f.engine.MissingVariables(tpl.Agent.Prompt, vars) {
		if tpl.Validation != nil {
			if rule, ok := tpl.Validation.Types[name]; ok && rule.Default != nil {
				continue
			}
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
	}
	return missing
}

// effectiveVariables overlays rule defaults for variables the caller did
// not provide.
func (f *Factory) effectiveVariables(tpl *domain.Template, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	if tpl.Validation != nil {
		for name, rule := range tpl.Validation.Types {
			if rule.Default == nil {
				continue
			}
			if _, ok := out[name]; !ok {
				out[name] = rule.Default
			}
		}
	}
	return out
}

func (f *Factory) resolveRuntime(tpl *domain.Template, vars map[string]any) (domain.ResolvedRuntime, error) {
	var out domain.ResolvedRuntime
	if tpl.Runtime != nil && tpl.Runtime.WorkingDirectory != "" {
		wd, err := f.engine.Interpolate(tpl.Runtime.WorkingDirectory, vars)
		if err != nil {
			return out, err
		}
		out.WorkingDirectory = wd
	} else {
		cwd, err := f.engine.Interpolate("{{ cwd }}", nil)
		if err != nil {
			return out, err
		}
		out.WorkingDirectory = cwd
	}
	if tpl.Runtime != nil && tpl.Runtime.Timeout > 0 {
		out.Timeout = time.Duration(tpl.Runtime.Timeout) * time.Second
	}
	return out, nil
}

// toolNames flattens references to deduplicated names, preserving the
// base-before-derived order the resolver established.
func toolNames(refs []domain.ToolReference) []string {
	out := make([]string, 0, len(refs))
	seen := map[string]bool{}
	for _, ref := range refs {
		if !seen[ref.Name] {
			seen[ref.Name] = true
			out = append(out, ref.Name)
		}
	}
	return out
}

// extractSettings pulls the typed execution settings out of the merged
// settings map, ignoring anything malformed (validation already reported
// it).
func extractSettings(settings map[string]any) domain.ResolvedSettings {
	var out domain.ResolvedSettings
	if settings == nil {
		return out
	}
	if s, ok := settings["model"].(string); ok {
		out.Model = s
	}
	switch t := settings["temperature"].(type) {
	case float64:
		out.Temperature = &t
	case int:
		f := float64(t)
		out.Temperature = &f
	}
	switch n := settings["maxTurns"].(type) {
	case int:
		out.MaxTurns = n
	case float64:
		out.MaxTurns = int(n)
	}
	if s, ok := settings["permissionMode"].(string); ok {
		out.PermissionMode = s
	}
	return out
}

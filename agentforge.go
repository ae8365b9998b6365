// Package agentforge resolves composable, YAML-authored agent templates
// into fully resolved, ready-to-execute configurations. Templates can
// inherit from a parent (extends), mix in reusable prompt fragments,
// reference shared tool-permission configs, and contain {{ }} placeholder
// variables substituted at resolution time. Only a fixed allow-list of six
// local tools may ever be referenced.
//
// Typical use:
//
//	forge := agentforge.New(agentforge.Options{
//		TemplateDirs: []string{"./templates"},
//		EnableCache:  true,
//	})
//	if _, err := forge.Scan(); err != nil { ... }
//	cfg, err := forge.Create("code-reviewer", map[string]any{"file": "main.go"})
package agentforge

import (
	"log/slog"

	"agentforge/internal/domain"
	"agentforge/internal/infra/logger"
	"agentforge/internal/usecase/factory"
	"agentforge/internal/usecase/registry"
)

// Re-exported data model and error types. Callers discriminate failures
// with errors.Is against the Err* sentinels and errors.As against the
// typed wrappers.
type (
	Template            = domain.Template
	Metadata            = domain.Metadata
	AgentConfig         = domain.AgentConfig
	ToolReference       = domain.ToolReference
	ToolConfig          = domain.ToolConfig
	Fragment            = domain.Fragment
	ValidationRules     = domain.ValidationRules
	TypeRule            = domain.TypeRule
	ResolvedAgentConfig = domain.ResolvedAgentConfig
	ResolvedSettings    = domain.ResolvedSettings
	ResolvedRuntime     = domain.ResolvedRuntime
	Catalog             = domain.Catalog
	CatalogEntry        = domain.CatalogEntry
	Finding             = domain.Finding
	Result              = domain.Result

	LoadError          = domain.LoadError
	ResolveError       = domain.ResolveError
	InterpolationError = domain.InterpolationError
	FactoryError       = domain.FactoryError
)

// Error sentinels, one per failure kind.
var (
	ErrFileNotFound        = domain.ErrFileNotFound
	ErrFileAccessDenied    = domain.ErrFileAccessDenied
	ErrYAMLSyntax          = domain.ErrYAMLSyntax
	ErrSchemaMismatch      = domain.ErrSchemaMismatch
	ErrCircularInheritance = domain.ErrCircularInheritance
	ErrMaxDepthExceeded    = domain.ErrMaxDepthExceeded
	ErrResolution          = domain.ErrResolution
	ErrMissingVariable     = domain.ErrMissingVariable
	ErrInvalidPath         = domain.ErrInvalidPath
	ErrCircularVariable    = domain.ErrCircularVariable
	ErrTemplateNotFound    = domain.ErrTemplateNotFound
	ErrMissingVariables    = domain.ErrMissingVariables
	ErrTemplateInvalid     = domain.ErrTemplateInvalid
)

// Options configures a Forge. The zero value is usable once TemplateDirs
// is set.
type Options struct {
	// TemplateDirs are the search roots scanned for template files.
	// Directories that do not exist produce scan warnings, not errors.
	TemplateDirs []string
	// SkipValidation disables schema validation before resolution.
	SkipValidation bool
	// EnableCache memoizes Create results by (name, variables) and
	// coalesces concurrent identical calls.
	EnableCache bool
	// MaxInheritanceDepth bounds extends chains (default 10).
	MaxInheritanceDepth int
	// Logger receives structured output; nil discards it.
	Logger *slog.Logger
}

// LoggerConfig is re-exported for hosts that want the library to build
// their process logger.
type LoggerConfig = logger.Config

// NewLogger builds a structured logger from config. The closer should be
// deferred when the output is a file.
func NewLogger(cfg LoggerConfig) (*slog.Logger, func() error, error) {
	return logger.New(cfg)
}

// Forge is the public entry point wrapping the template factory.
type Forge struct {
	factory *factory.Factory
}

// New creates a Forge. Call Scan before Create.
func New(opts Options) *Forge {
	return &Forge{factory: factory.New(factory.Options{
		TemplateDirs:        opts.TemplateDirs,
		SkipValidation:      opts.SkipValidation,
		EnableCache:         opts.EnableCache,
		MaxInheritanceDepth: opts.MaxInheritanceDepth,
		Logger:              opts.Logger,
	})}
}

// Scan discovers templates under the configured directories, returning
// per-file warnings.
func (f *Forge) Scan() ([]string, error) { return f.factory.Scan() }

// Refresh is a full rescan.
func (f *Forge) Refresh() ([]string, error) { return f.factory.Refresh() }

// Create resolves the named template with the given variables into a
// ready-to-execute configuration.
func (f *Forge) Create(name string, vars map[string]any) (*ResolvedAgentConfig, error) {
	return f.factory.Create(name, vars)
}

// CreateFromPath resolves a template from an explicit file path. No prior
// Scan is needed.
func (f *Forge) CreateFromPath(path string, vars map[string]any) (*ResolvedAgentConfig, error) {
	return f.factory.CreateFromPath(path, vars)
}

// Registry exposes the catalog for discovery UIs.
func (f *Forge) Registry() *registry.Registry { return f.factory.Registry() }

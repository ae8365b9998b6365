package domain

import "time"

// ResolvedAgentConfig is the terminal artifact: a fully merged and
// interpolated configuration ready to hand to an execution layer. It is
// owned by the caller and holds no references back into the registry.
type ResolvedAgentConfig struct {
	Prompt      string                `json:"prompt"`
	Tools       []string              `json:"tools"`
	ToolConfigs map[string]ToolConfig `json:"toolConfigs"`
	Settings    ResolvedSettings      `json:"settings"`
	Runtime     ResolvedRuntime       `json:"runtime"`
}

// ResolvedSettings are the execution settings extracted from the merged
// template settings map.
type ResolvedSettings struct {
	Model          string   `json:"model"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTurns       int      `json:"maxTurns,omitempty"`
	PermissionMode string   `json:"permissionMode,omitempty"`
}

// ResolvedRuntime is the execution environment after interpolation.
type ResolvedRuntime struct {
	WorkingDirectory string        `json:"workingDirectory"`
	Timeout          time.Duration `json:"timeout,omitempty"`
}

// CatalogEntry is a discovery-oriented projection of one registered
// template.
type CatalogEntry struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Tools       []string `json:"tools"`
	Path        string   `json:"path"`
	HasExtends  bool     `json:"hasExtends"`
	MixinCount  int      `json:"mixinCount"`
}

// Catalog is the registry's read-only listing, rebuilt wholesale on each
// scan.
type Catalog []CatalogEntry

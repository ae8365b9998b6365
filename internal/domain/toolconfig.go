package domain

import "strings"

// ToolConfig is a standalone YAML document bundling permission, validation,
// and error-handling rules for exactly one tool.
type ToolConfig struct {
	Tool ToolSpec `yaml:"tool"`
}

// ToolSpec is the body of a tool config document.
type ToolSpec struct {
	Name            string         `yaml:"name"`
	DefaultSettings map[string]any `yaml:"defaultSettings,omitempty"`
	Permissions     map[string]any `yaml:"permissions,omitempty"`
	Validation      map[string]any `yaml:"validation,omitempty"`
	ErrorHandling   map[string]any `yaml:"errorHandling,omitempty"`
	Extends         string         `yaml:"extends,omitempty"`
}

// Clone returns a deep copy of the config.
func (c ToolConfig) Clone() ToolConfig {
	return ToolConfig{Tool: ToolSpec{
		Name:            c.Tool.Name,
		DefaultSettings: cloneMap(c.Tool.DefaultSettings),
		Permissions:     cloneMap(c.Tool.Permissions),
		Validation:      cloneMap(c.Tool.Validation),
		ErrorHandling:   cloneMap(c.Tool.ErrorHandling),
		Extends:         c.Tool.Extends,
	}}
}

// AllowedTools is the fixed set of local tools a template may ever
// reference. Nothing outside this list is valid regardless of where the name
// appears.
var AllowedTools = []string{"Read", "Write", "Edit", "Bash", "Grep", "Glob"}

// ForbiddenToolSubstrings are case-insensitive tokens that mark a tool name
// as forbidden for security before the allow-list is even consulted. They
// block network-capable and MCP-proxied tools under any spelling.
var ForbiddenToolSubstrings = []string{
	"websearch",
	"webfetch",
	"mcp__",
	"http",
	"fetch",
	"curl",
	"wget",
}

// IsAllowedTool reports whether name is exactly one of the six allowed
// tools.
func IsAllowedTool(name string) bool {
	for _, t := range AllowedTools {
		if name == t {
			return true
		}
	}
	return false
}

// ForbiddenToolToken returns the first forbidden token contained in name
// (case-insensitive), or "" if the name carries none.
func ForbiddenToolToken(name string) string {
	lower := strings.ToLower(name)
	for _, tok := range ForbiddenToolSubstrings {
		if strings.Contains(lower, tok) {
			return tok
		}
	}
	return ""
}

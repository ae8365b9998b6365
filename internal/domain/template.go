package domain

import "fmt"

// Template is the root authored document describing an agent: identity,
// prompt, tools, and execution settings. Templates are read-only after
// loading; resolution produces new merged copies and never mutates the
// original, so loaded templates stay cacheable.
type Template struct {
	Metadata   Metadata         `yaml:"metadata"`
	Agent      AgentConfig      `yaml:"agent"`
	Validation *ValidationRules `yaml:"validation,omitempty"`
	Runtime    *RuntimeConfig   `yaml:"runtime,omitempty"`
}

// Metadata identifies a template. Name is the registry identity and must be
// unique across all scanned files.
type Metadata struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Base        string   `yaml:"base,omitempty"`
	Extends     string   `yaml:"extends,omitempty"`
	Mixins      []string `yaml:"mixins,omitempty"`
}

// AgentConfig is the executable part of a template: the prompt (which may
// contain {{ }} placeholders), the tools the agent may use, and settings.
type AgentConfig struct {
	Description string          `yaml:"description"`
	Prompt      string          `yaml:"prompt"`
	Tools       []ToolReference `yaml:"tools"`
	ToolConfigs []string        `yaml:"toolConfigs,omitempty"`
	ToolBundles []string        `yaml:"toolBundles,omitempty"`
	Settings    map[string]any  `yaml:"settings,omitempty"`
}

// ToolReference mentions a tool either by bare name or as a mapping carrying
// an optional config file path and inline overrides.
type ToolReference struct {
	Name      string         `yaml:"name"`
	Config    string         `yaml:"config,omitempty"`
	Overrides map[string]any `yaml:"overrides,omitempty"`
}

// UnmarshalYAML accepts both reference forms:
//
//	tools:
//	  - Read
//	  - name: Write
//	    config: ./configs/write.yaml
//	    overrides: {requireConfirmation: false}
func (r *ToolReference) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		r.Name = name
		return nil
	}

	type plain ToolReference
	var p plain
	if err := unmarshal(&p); err != nil {
		return fmt.Errorf("tool reference must be a string or a mapping: %w", err)
	}
	*r = ToolReference(p)
	return nil
}

// ValidationRules declares the variables a template expects from its caller.
type ValidationRules struct {
	Required []string            `yaml:"required,omitempty"`
	Optional []string            `yaml:"optional,omitempty"`
	Types    map[string]TypeRule `yaml:"types,omitempty"`
}

// TypeRule constrains one declared variable.
type TypeRule struct {
	Type    string   `yaml:"type"`
	Enum    []string `yaml:"enum,omitempty"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Default any      `yaml:"default,omitempty"`
}

// RuntimeConfig carries execution-environment settings. Timeout is in
// seconds.
type RuntimeConfig struct {
	WorkingDirectory string            `yaml:"workingDirectory,omitempty"`
	Timeout          int               `yaml:"timeout,omitempty"`
	LogLevel         string            `yaml:"logLevel,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty"`
}

// Clone returns a deep copy of the template. The resolver merges onto clones
// so that registry-held originals are never written to.
func (t *Template) Clone() *Template {
	out := &Template{Metadata: t.Metadata, Agent: t.Agent}

	out.Metadata.Tags = append([]string(nil), t.Metadata.Tags...)
	out.Metadata.Mixins = append([]string(nil), t.Metadata.Mixins...)

	out.Agent.Tools = make([]ToolReference, len(t.Agent.Tools))
	for i, ref := range t.Agent.Tools {
		out.Agent.Tools[i] = ToolReference{
			Name:      ref.Name,
			Config:    ref.Config,
			Overrides: cloneMap(ref.Overrides),
		}
	}
	out.Agent.ToolConfigs = append([]string(nil), t.Agent.ToolConfigs...)
	out.Agent.ToolBundles = append([]string(nil), t.Agent.ToolBundles...)
	out.Agent.Settings = cloneMap(t.Agent.Settings)

	if t.Validation != nil {
		v := ValidationRules{
			Required: append([]string(nil), t.Validation.Required...),
			Optional: append([]string(nil), t.Validation.Optional...),
		}
		if t.Validation.Types != nil {
			v.Types = make(map[string]TypeRule, len(t.Validation.Types))
			for name, rule := range t.Validation.Types {
				rule.Enum = append([]string(nil), rule.Enum...)
				v.Types[name] = rule
			}
		}
		out.Validation = &v
	}
	if t.Runtime != nil {
		r := *t.Runtime
		if t.Runtime.Environment != nil {
			r.Environment = make(map[string]string, len(t.Runtime.Environment))
			for k, v := range t.Runtime.Environment {
				r.Environment[k] = v
			}
		}
		out.Runtime = &r
	}
	return out
}

// cloneMap deep-copies a YAML-shaped map (nested maps copied recursively,
// slices copied element-wise).
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

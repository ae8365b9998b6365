// Package validate performs structural and security validation over
// templates, tool configs, fragments, and user-supplied variables. It never
// fails fast: every problem in the document is collected into a batch of
// findings so callers can present the complete list at once. Only
// error-severity findings make a document invalid.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"agentforge/internal/domain"
)

var semverRe = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)

var validModels = map[string]bool{
	"sonnet": true,
	"opus":   true,
	"haiku":  true,
}

var validPermissionModes = map[string]bool{
	"ask":        true,
	"allow-all":  true,
	"reject-all": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validRuleTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"enum":    true,
	"array":   true,
}

const (
	minTimeoutSeconds = 1
	maxTimeoutSeconds = 600
)

// Template validates a template document: metadata, agent config, settings,
// declared validation rules, and runtime config, each independently.
func Template(t *domain.Template) domain.Result {
	var c domain.Collector
	validateMetadata(&c, t.Metadata)
	validateAgent(&c, t.Agent)
	validateSettings(&c, t.Agent.Settings)
	if t.Validation != nil {
		validateRules(&c, t.Validation)
	}
	if t.Runtime != nil {
		validateRuntime(&c, t.Runtime)
	}
	return c.Result()
}

func validateMetadata(c *domain.Collector, m domain.Metadata) {
	if m.Name == "" {
		c.Errorf("metadata.name", "must not be empty")
	}
	if m.Version == "" {
		c.Errorf("metadata.version", "must not be empty")
	} else if !semverRe.MatchString(m.Version) {
		c.Errorf("metadata.version", "%q is not a semantic version (want MAJOR.MINOR.PATCH)", m.Version)
	}
	if m.Description == "" {
		c.Errorf("metadata.description", "must not be empty")
	}
	if m.Extends != "" && strings.TrimSpace(m.Extends) == "" {
		c.Errorf("metadata.extends", "must be a non-empty path")
	}
	for i, mixin := range m.Mixins {
		if strings.TrimSpace(mixin) == "" {
			c.Errorf(fmt.Sprintf("metadata.mixins[%d]", i), "must be a non-empty path")
		}
	}
}

func validateAgent(c *domain.Collector, a domain.AgentConfig) {
	if a.Description == "" {
		c.Errorf("agent.description", "must not be empty")
	}
	if a.Prompt == "" {
		c.Errorf("agent.prompt", "must not be empty")
	}
	if len(a.Tools) == 0 {
		c.Errorf("agent.tools", "at least one tool is required")
	}
	for i, ref := range a.Tools {
		field := fmt.Sprintf("agent.tools[%d]", i)
		if ref.Name == "" {
			c.Errorf(field, "tool name must not be empty")
			continue
		}
		CheckToolName(c, field, ref.Name)
		if ref.Config != "" && strings.TrimSpace(ref.Config) == "" {
			c.Errorf(field+".config", "must be a non-empty path")
		}
		checkOverrides(c, field, ref.Overrides)
	}
	for i, path := range a.ToolConfigs {
		if strings.TrimSpace(path) == "" {
			c.Errorf(fmt.Sprintf("agent.toolConfigs[%d]", i), "must be a non-empty path")
		}
	}
}

// CheckToolName applies the tool security policy to one name. The forbidden
// substring check runs first and short-circuits: a forbidden name yields a
// single security finding and is not additionally reported as unknown.
func CheckToolName(c *domain.Collector, field, name string) {
	if tok := domain.ForbiddenToolToken(name); tok != "" {
		c.Errorf(field, "tool %q is forbidden for security (matched %q); allowed tools: %s",
			name, tok, strings.Join(domain.AllowedTools, ", "))
		return
	}
	if !domain.IsAllowedTool(name) {
		c.Errorf(field, "invalid tool %q; allowed tools: %s",
			name, strings.Join(domain.AllowedTools, ", "))
	}
}

var overrideSections = map[string]bool{
	"defaultSettings": true,
	"permissions":     true,
	"validation":      true,
	"errorHandling":   true,
}

// checkOverrides verifies that inline overrides are keyed by config section.
// The resolver applies only section keys with mapping values, so anything
// else would be silently discarded; warn about it here instead.
func checkOverrides(c *domain.Collector, field string, overrides map[string]any) {
	for key, value := range overrides {
		if !overrideSections[key] {
			c.Warnf(field+".overrides."+key,
				"unknown override section is ignored (want defaultSettings, permissions, validation, or errorHandling)")
			continue
		}
		if _, ok := value.(map[string]any); !ok {
			c.Warnf(field+".overrides."+key, "override section must be a mapping, got %T", value)
		}
	}
}

func validateSettings(c *domain.Collector, settings map[string]any) {
	if settings == nil {
		return
	}
	if v, ok := settings["model"]; ok {
		if s, ok := v.(string); !ok || !validModels[s] {
			c.Errorf("agent.settings.model", "%v is not a valid model (want sonnet, opus, or haiku)", v)
		}
	}
	if v, ok := settings["temperature"]; ok {
		if f, ok := asNumber(v); !ok || f < 0 || f > 1 {
			c.Errorf("agent.settings.temperature", "%v must be a number between 0 and 1", v)
		}
	}
	if v, ok := settings["maxTurns"]; ok {
		if n, ok := asInt(v); !ok || n <= 0 {
			c.Errorf("agent.settings.maxTurns", "%v must be a positive integer", v)
		}
	}
	if v, ok := settings["permissionMode"]; ok {
		if s, ok := v.(string); !ok || !validPermissionModes[s] {
			c.Errorf("agent.settings.permissionMode", "%v is not a valid mode (want ask, allow-all, or reject-all)", v)
		}
	}
}

func validateRules(c *domain.Collector, rules *domain.ValidationRules) {
	for i, name := range rules.Required {
		if strings.TrimSpace(name) == "" {
			c.Errorf(fmt.Sprintf("validation.required[%d]", i), "variable name must not be empty")
		}
	}
	required := make(map[string]bool, len(rules.Required))
	for _, name := range rules.Required {
		required[name] = true
	}
	for i, name := range rules.Optional {
		if strings.TrimSpace(name) == "" {
			c.Errorf(fmt.Sprintf("validation.optional[%d]", i), "variable name must not be empty")
		} else if required[name] {
			c.Warnf(fmt.Sprintf("validation.optional[%d]", i), "variable %q is both required and optional", name)
		}
	}
	for name, rule := range rules.Types {
		field := "validation.types." + name
		if !validRuleTypes[rule.Type] {
			c.Errorf(field+".type", "%q is not a valid type (want string, number, boolean, enum, or array)", rule.Type)
			continue
		}
		if rule.Type == "enum" && len(rule.Enum) == 0 {
			c.Errorf(field+".enum", "enum type requires at least one value")
		}
		if rule.Type != "enum" && len(rule.Enum) > 0 {
			c.Warnf(field+".enum", "enum values are ignored for type %q", rule.Type)
		}
		if rule.Type != "number" && (rule.Min != nil || rule.Max != nil) {
			c.Warnf(field, "min/max constraints only apply to number type, not %q", rule.Type)
		}
		if rule.Min != nil && rule.Max != nil && *rule.Min > *rule.Max {
			c.Errorf(field, "min (%v) is greater than max (%v)", *rule.Min, *rule.Max)
		}
	}
}

func validateRuntime(c *domain.Collector, r *domain.RuntimeConfig) {
	if r.Timeout != 0 && (r.Timeout < minTimeoutSeconds || r.Timeout > maxTimeoutSeconds) {
		c.Errorf("runtime.timeout", "%d is out of range (want %d-%d seconds)",
			r.Timeout, minTimeoutSeconds, maxTimeoutSeconds)
	}
	if r.LogLevel != "" && !validLogLevels[r.LogLevel] {
		c.Errorf("runtime.logLevel", "%q is not a valid level (want debug, info, warn, or error)", r.LogLevel)
	}
}

// ToolConfig validates a standalone tool config document under the same
// security policy as template tool references.
func ToolConfig(cfg *domain.ToolConfig) domain.Result {
	var c domain.Collector
	if cfg.Tool.Name == "" {
		c.Errorf("tool.name", "must not be empty")
	} else {
		CheckToolName(&c, "tool.name", cfg.Tool.Name)
	}
	validatePermissions(&c, cfg.Tool.Permissions)
	validateToolValidation(&c, cfg.Tool.Validation)
	validateErrorHandling(&c, cfg.Tool.ErrorHandling)
	if cfg.Tool.Extends != "" && strings.TrimSpace(cfg.Tool.Extends) == "" {
		c.Errorf("tool.extends", "must be a non-empty path")
	}
	return c.Result()
}

func validatePermissions(c *domain.Collector, perms map[string]any) {
	if perms == nil {
		return
	}
	for _, key := range []string{"requireConfirmation", "allowDestructive"} {
		if v, ok := perms[key]; ok {
			if _, ok := v.(bool); !ok {
				c.Errorf("tool.permissions."+key, "%v must be a boolean", v)
			}
		}
	}
	if v, ok := perms["allowedPaths"]; ok {
		if _, ok := v.([]any); !ok {
			c.Errorf("tool.permissions.allowedPaths", "must be a list of paths")
		}
	}
}

func validateToolValidation(c *domain.Collector, rules map[string]any) {
	if rules == nil {
		return
	}
	if v, ok := rules["maxFileSize"]; ok {
		if n, ok := asNumber(v); !ok || n <= 0 {
			c.Errorf("tool.validation.maxFileSize", "%v must be a positive number", v)
		}
	}
	if v, ok := rules["rateLimit"]; ok {
		limit, ok := v.(map[string]any)
		if !ok {
			c.Errorf("tool.validation.rateLimit", "must be a mapping")
			return
		}
		if rpm, ok := limit["requestsPerMinute"]; ok {
			if n, ok := asNumber(rpm); !ok || n <= 0 {
				c.Warnf("tool.validation.rateLimit.requestsPerMinute", "%v is not a sensible rate limit", rpm)
			}
		}
	}
}

func validateErrorHandling(c *domain.Collector, eh map[string]any) {
	if eh == nil {
		return
	}
	if v, ok := eh["maxRetries"]; ok {
		n, isInt := asInt(v)
		switch {
		case !isInt || n < 0:
			c.Errorf("tool.errorHandling.maxRetries", "%v must be a non-negative integer", v)
		case n > 10:
			c.Warnf("tool.errorHandling.maxRetries", "%d retries is excessive", n)
		}
	}
	if v, ok := eh["onFailure"]; ok {
		s, isStr := v.(string)
		if !isStr || (s != "abort" && s != "continue" && s != "prompt") {
			c.Errorf("tool.errorHandling.onFailure", "%v is not a valid strategy (want abort, continue, or prompt)", v)
		}
	}
}

// Fragment validates a prompt fragment.
func Fragment(f *domain.Fragment) domain.Result {
	var c domain.Collector
	if f.Name == "" {
		c.Errorf("fragment.name", "must not be empty")
	}
	if f.Instructions == "" {
		c.Errorf("fragment.instructions", "must not be empty")
	}
	for i, tag := range f.Tags {
		if strings.TrimSpace(tag) == "" {
			c.Warnf(fmt.Sprintf("fragment.tags[%d]", i), "empty tag")
		}
	}
	for i, v := range f.Variables {
		if strings.TrimSpace(v) == "" {
			c.Warnf(fmt.Sprintf("fragment.variables[%d]", i), "empty variable name")
		}
	}
	return c.Result()
}

// Variables checks provided variables against the template's declared rules:
// required presence, run-time type, enum membership, and numeric range.
func Variables(t *domain.Template, provided map[string]any) domain.Result {
	var c domain.Collector
	if t.Validation == nil {
		return c.Result()
	}

	for _, name := range t.Validation.Required {
		if _, ok := provided[name]; !ok {
			if rule, hasRule := t.Validation.Types[name]; !hasRule || rule.Default == nil {
				c.Errorf("variables."+name, "required variable is missing")
			}
		}
	}

	for name, rule := range t.Validation.Types {
		value, ok := provided[name]
		if !ok {
			continue
		}
		checkVariableType(&c, "variables."+name, value, rule)
	}
	return c.Result()
}

func checkVariableType(c *domain.Collector, field string, value any, rule domain.TypeRule) {
	switch rule.Type {
	case "string":
		if _, ok := value.(string); !ok {
			c.Errorf(field, "expected string, got %T", value)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			c.Errorf(field, "expected boolean, got %T", value)
		}
	case "array":
		if !isArray(value) {
			c.Errorf(field, "expected array, got %T", value)
		}
	case "number":
		n, ok := asNumber(value)
		if !ok {
			c.Errorf(field, "expected number, got %T", value)
			return
		}
		if rule.Min != nil && n < *rule.Min {
			c.Errorf(field, "%v is below minimum %v", n, *rule.Min)
		}
		if rule.Max != nil && n > *rule.Max {
			c.Errorf(field, "%v is above maximum %v", n, *rule.Max)
		}
	case "enum":
		s, ok := value.(string)
		if !ok {
			c.Errorf(field, "expected enum value (string), got %T", value)
			return
		}
		for _, allowed := range rule.Enum {
			if s == allowed {
				return
			}
		}
		c.Errorf(field, "%q is not one of: %s", s, strings.Join(rule.Enum, ", "))
	}
	if rule.Type != "number" && (rule.Min != nil || rule.Max != nil) {
		c.Warnf(field, "min/max constraints ignored for type %q", rule.Type)
	}
}

func isArray(v any) bool {
	switch v.(type) {
	case []any, []string, []int, []float64:
		return true
	default:
		return false
	}
}

// asNumber accepts the numeric shapes YAML and callers produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

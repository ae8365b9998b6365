package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per failure kind. Callers discriminate with
// errors.Is; the typed wrappers below carry the per-kind payloads and are
// reached with errors.As.
var (
	// Loader failures.
	ErrFileNotFound     = errors.New("file not found")
	ErrFileAccessDenied = errors.New("file access denied")
	ErrYAMLSyntax       = errors.New("yaml syntax error")
	ErrSchemaMismatch   = errors.New("document schema mismatch")

	// Resolver failures.
	ErrCircularInheritance = errors.New("circular inheritance")
	ErrMaxDepthExceeded    = errors.New("max inheritance depth exceeded")
	ErrResolution          = errors.New("resolution failed")

	// Interpolation failures.
	ErrMissingVariable  = errors.New("missing variable")
	ErrInvalidPath      = errors.New("invalid variable path")
	ErrCircularVariable = errors.New("circular variable reference")

	// Factory failures.
	ErrTemplateNotFound = errors.New("template not found")
	ErrMissingVariables = errors.New("missing required variables")
	ErrTemplateInvalid  = errors.New("template validation failed")
)

// LoadError is a terminal failure loading one document. Path is always set;
// Line/Column are set for syntax errors when the parser reports them, and
// MissingKey for schema mismatches.
type LoadError struct {
	Path       string
	Err        error // one of the loader sentinels
	Detail     string
	Line       int
	Column     int
	MissingKey string
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("load %s: %s", e.Path, e.Err)
	if e.Line > 0 && e.Column > 0 {
		msg = fmt.Sprintf("%s (line %d, column %d)", msg, e.Line, e.Column)
	} else if e.Line > 0 {
		msg = fmt.Sprintf("%s (line %d)", msg, e.Line)
	}
	if e.MissingKey != "" {
		msg = fmt.Sprintf("%s: missing required key %q", msg, e.MissingKey)
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Err }

// ResolveError is a terminal failure in the resolution pipeline. Chain
// holds the visited template paths for circular-inheritance failures.
type ResolveError struct {
	Template string
	Err      error // one of the resolver sentinels
	Detail   string
	Chain    []string
}

func (e *ResolveError) Error() string {
	msg := fmt.Sprintf("resolve %s: %s", e.Template, e.Err)
	if len(e.Chain) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Chain, " -> "))
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	return msg
}

func (e *ResolveError) Unwrap() error { return e.Err }

// InterpolationError is a terminal interpolation failure. Variable is the
// offending name; Path carries the exact failing sub-path for dotted
// lookups (e.g. "user.profile.email" failing at "user.profile").
type InterpolationError struct {
	Variable string
	Path     string
	Err      error // one of the interpolation sentinels
}

func (e *InterpolationError) Error() string {
	if e.Path != "" && e.Path != e.Variable {
		return fmt.Sprintf("%s: %q (at %q)", e.Err, e.Variable, e.Path)
	}
	return fmt.Sprintf("%s: %q", e.Err, e.Variable)
}

func (e *InterpolationError) Unwrap() error { return e.Err }

// FactoryError is the factory's translation of a failure into a
// user-actionable one, always annotated with the template name. Known lists
// all registered names for not-found failures; Missing lists absent
// variables; Findings carries the error-severity validation findings.
type FactoryError struct {
	Template string
	Err      error
	Known    []string
	Missing  []string
	Findings []Finding
}

func (e *FactoryError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTemplateNotFound):
		return fmt.Sprintf("template %q not found (known templates: %s)",
			e.Template, strings.Join(e.Known, ", "))
	case errors.Is(e.Err, ErrMissingVariables):
		return fmt.Sprintf("template %q: missing required variables: %s",
			e.Template, strings.Join(e.Missing, ", "))
	case errors.Is(e.Err, ErrTemplateInvalid):
		msgs := make([]string, len(e.Findings))
		for i, f := range e.Findings {
			msgs[i] = f.String()
		}
		return fmt.Sprintf("template %q is invalid: %s",
			e.Template, strings.Join(msgs, "; "))
	default:
		return fmt.Sprintf("template %q: %s", e.Template, e.Err)
	}
}

func (e *FactoryError) Unwrap() error { return e.Err }

// WrapOp adds operation context to an error. Returns nil for nil err,
// enabling: return domain.WrapOp("registry.scan", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Package interp implements the template placeholder language:
//
//	{{ name }}                       simple variable
//	{{ a.b.c }}                      dotted path into nested mappings
//	{{ name | default: literal }}    fallback literal when name is unresolved
//	{{ if cond }} ... {{ endif }}    conditional block on cond's truthiness
//
// Conditional blocks are resolved to a fixed point, innermost outward,
// before any variable substitution. Built-in variables (cwd, timestamp,
// date, time) are always available unless shadowed by a provided variable.
package interp

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"agentforge/internal/domain"
)

// Context supplies the ambient inputs for built-in variables. Injecting it
// keeps the engine deterministic under test.
type Context struct {
	WorkingDir string
	Now        func() time.Time
}

// Engine substitutes variables into template text.
type Engine struct {
	ctx Context
}

// New creates an engine reading ambient state from the process: working
// directory and wall clock.
func New() *Engine {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return NewWithContext(Context{WorkingDir: wd, Now: time.Now})
}

// NewWithContext creates an engine with explicit ambient inputs.
func NewWithContext(ctx Context) *Engine {
	if ctx.Now == nil {
		ctx.Now = time.Now
	}
	return &Engine{ctx: ctx}
}

var (
	// placeholderRe matches one substitution site: a (possibly dotted)
	// name with an optional default clause whose literal runs to the
	// closing braces.
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*(\|\s*default:\s*(.*?)\s*)?\}\}`)

	// ifOpenRe and endifRe tokenize conditional delimiters.
	ifOpenRe = regexp.MustCompile(`\{\{\s*if\s+([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*\}\}`)
	endifRe  = regexp.MustCompile(`\{\{\s*endif\s*\}\}`)

	// anyRefRe matches any placeholder or condition reference, used for
	// variable extraction. The keyword "endif" is filtered out by the
	// caller.
	anyRefRe = regexp.MustCompile(`\{\{\s*(?:if\s+)?([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z0-9_]+)*)\s*(?:\|\s*default:.*?)?\}\}`)
)

// Interpolate substitutes variables into text. It resolves conditional
// blocks first, then substitutes placeholders repeatedly until none remain,
// so variable values may themselves contain placeholders. A provided
// variable graph with a reference cycle, a missing variable without a
// default, and a dotted path through a non-mapping are each terminal
// failures.
func (e *Engine) Interpolate(text string, vars map[string]any) (string, error) {
	if err := e.checkCycles(text, vars); err != nil {
		return "", err
	}

	out := e.resolveConditionals(text, vars)

	for HasVariables(out) {
		next, err := e.substituteOnce(out, vars)
		if err != nil {
			return "", err
		}
		if next == out {
			break
		}
		out = e.resolveConditionals(next, vars)
	}
	return out, nil
}

// resolveConditionals processes {{ if }} blocks to a fixed point. Each pass
// replaces one innermost block (the first endif paired with the nearest
// preceding if); processing stops once a pass produces no change. An
// unresolved condition is falsy, never an error. Dangling delimiters with no
// partner gate nothing and are dropped, so conditional syntax never survives
// into the substituted output.
func (e *Engine) resolveConditionals(text string, vars map[string]any) string {
	for {
		endif := endifRe.FindStringIndex(text)
		if endif == nil {
			break
		}

		opens := ifOpenRe.FindAllStringSubmatchIndex(text[:endif[0]], -1)
		if len(opens) == 0 {
			// Unmatched endif; drop the token.
			text = text[:endif[0]] + text[endif[1]:]
			continue
		}
		open := opens[len(opens)-1]
		cond := text[open[2]:open[3]]
		body := text[open[1]:endif[0]]

		var replacement string
		if value, err := e.lookup(cond, vars); err == nil && truthy(value) {
			replacement = body
		}
		text = text[:open[0]] + replacement + text[endif[1]:]
	}
	return ifOpenRe.ReplaceAllString(text, "")
}

// substituteOnce replaces every placeholder in one pass.
func (e *Engine) substituteOnce(text string, vars map[string]any) (string, error) {
	var failure error
	out := placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		if failure != nil {
			return match
		}
		groups := placeholderRe.FindStringSubmatch(match)
		name, hasDefault, literal := groups[1], groups[2] != "", groups[3]

		value, err := e.lookup(name, vars)
		if err == nil {
			return Stringify(value)
		}
		if hasDefault {
			return literal
		}
		failure = err
		return match
	})
	if failure != nil {
		return "", failure
	}
	return out, nil
}

// lookup resolves a simple or dotted name against provided variables and
// built-ins. The two-outcome shape (value or typed error) keeps the default
// fallback path free of error plumbing.
func (e *Engine) lookup(name string, vars map[string]any) (any, error) {
	segments := strings.Split(name, ".")
	root := segments[0]

	value, ok := vars[root]
	if !ok {
		value, ok = e.builtin(root)
	}
	if !ok {
		return nil, &domain.InterpolationError{
			Variable: name,
			Path:     root,
			Err:      domain.ErrMissingVariable,
		}
	}

	for i, segment := range segments[1:] {
		sub := strings.Join(segments[:i+1], ".")
		obj, ok := asMapping(value)
		if !ok {
			return nil, &domain.InterpolationError{
				Variable: name,
				Path:     sub,
				Err:      domain.ErrInvalidPath,
			}
		}
		value, ok = obj[segment]
		if !ok {
			return nil, &domain.InterpolationError{
				Variable: name,
				Path:     sub + "." + segment,
				Err:      domain.ErrMissingVariable,
			}
		}
	}
	return value, nil
}

func asMapping(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// builtin resolves the ambient variable names. All derive from the
// injected context so tests can pin them.
func (e *Engine) builtin(name string) (any, bool) {
	switch name {
	case "cwd":
		return e.ctx.WorkingDir, true
	case "timestamp":
		return e.ctx.Now().Format(time.RFC3339), true
	case "date":
		return e.ctx.Now().Format("2006-01-02"), true
	case "time":
		return e.ctx.Now().Format("15:04:05"), true
	default:
		return nil, false
	}
}

// truthy follows ordinary dynamic-language coercion: empty string, zero,
// false, and nil are falsy; everything else is truthy.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	default:
		return true
	}
}

// Stringify converts a value to its substitution text: numbers and booleans
// as their literal text, nil as "null", arrays comma-joined, and mappings
// as a fixed placeholder. Deliberately plain text conversion, not JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []any:
		parts := make([]string, len(val))
		for i, e := range val {
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(val, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// checkCycles walks the provided variable values looking for a reference
// path that returns to a name already on the current walk. Only string
// values can carry further placeholders, and only provided values
// participate; the template text structure is irrelevant here.
func (e *Engine) checkCycles(text string, vars map[string]any) error {
	for _, name := range ExtractVariables(text) {
		root := strings.Split(name, ".")[0]
		if err := walkRefs(root, vars, map[string]bool{root: true}); err != nil {
			return err
		}
	}
	return nil
}

func walkRefs(name string, vars map[string]any, visiting map[string]bool) error {
	value, ok := vars[name]
	if !ok {
		return nil
	}
	s, ok := value.(string)
	if !ok {
		return nil
	}
	for _, ref := range ExtractVariables(s) {
		root := strings.Split(ref, ".")[0]
		if visiting[root] {
			return &domain.InterpolationError{
				Variable: root,
				Err:      domain.ErrCircularVariable,
			}
		}
		visiting[root] = true
		if err := walkRefs(root, vars, visiting); err != nil {
			return err
		}
		delete(visiting, root)
	}
	return nil
}

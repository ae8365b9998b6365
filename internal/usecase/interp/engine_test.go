package interp

import (
	"errors"
	"strings"
	"testing"
	"time"

	"agentforge/internal/domain"
)

func testEngine() *Engine {
	return NewWithContext(Context{
		WorkingDir: "/work/project",
		Now: func() time.Time {
			return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
		},
	})
}

func TestInterpolateSimple(t *testing.T) {
	e := testEngine()

	out, err := e.Interpolate("Hello {{ name }}!", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if out != "Hello Alice!" {
		t.Errorf("out = %q", out)
	}

	// Whitespace around the name is insignificant.
	out, err = e.Interpolate("{{name}} {{  name  }}", map[string]any{"name": "x"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "x x" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateMissing(t *testing.T) {
	_, err := testEngine().Interpolate("{{ name }}", nil)
	if !errors.Is(err, domain.ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}
	var ie *domain.InterpolationError
	if !errors.As(err, &ie) || ie.Variable != "name" {
		t.Errorf("error must carry the variable name: %v", err)
	}
}

func TestInterpolateDefault(t *testing.T) {
	e := testEngine()

	out, err := e.Interpolate("{{ name | default: World }}", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "World" {
		t.Errorf("out = %q, want World", out)
	}

	out, err = e.Interpolate("{{ name | default: World }}", map[string]any{"name": "Alice"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Alice" {
		t.Errorf("out = %q, want Alice", out)
	}
}

func TestInterpolateDefaultLiteralIsVerbatim(t *testing.T) {
	out, err := testEngine().Interpolate("{{ x | default: a b: c }}", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a b: c" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateDottedPath(t *testing.T) {
	e := testEngine()
	vars := map[string]any{
		"user": map[string]any{
			"profile": map[string]any{"email": "a@b.c"},
		},
	}

	out, err := e.Interpolate("{{ user.profile.email }}", vars)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a@b.c" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateDottedPathFailures(t *testing.T) {
	e := testEngine()

	// Intermediate segment is not an object.
	_, err := e.Interpolate("{{ user.profile.email }}", map[string]any{"user": map[string]any{"profile": 42}})
	if !errors.Is(err, domain.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	var ie *domain.InterpolationError
	if !errors.As(err, &ie) || ie.Path != "user.profile" {
		t.Errorf("error must carry the failing sub-path, got %+v", ie)
	}

	// Leaf missing.
	_, err = e.Interpolate("{{ user.name }}", map[string]any{"user": map[string]any{}})
	if !errors.Is(err, domain.ErrMissingVariable) {
		t.Fatalf("expected ErrMissingVariable, got %v", err)
	}
	if !errors.As(err, &ie) || ie.Path != "user.name" {
		t.Errorf("error path = %+v", ie)
	}
}

func TestInterpolateConditionals(t *testing.T) {
	e := testEngine()
	cases := []struct {
		vars map[string]any
		want string
	}{
		{map[string]any{"flag": true}, "X"},
		{map[string]any{"flag": false}, ""},
		{map[string]any{}, ""}, // absent is falsy, never an error
		{map[string]any{"flag": ""}, ""},
		{map[string]any{"flag": 0}, ""},
		{map[string]any{"flag": "yes"}, "X"},
		{map[string]any{"flag": 7}, "X"},
	}
	for _, tc := range cases {
		out, err := e.Interpolate("{{ if flag }}X{{ endif }}", tc.vars)
		if err != nil {
			t.Fatalf("vars %v: %v", tc.vars, err)
		}
		if out != tc.want {
			t.Errorf("vars %v: out = %q, want %q", tc.vars, out, tc.want)
		}
	}
}

func TestInterpolateNestedConditionals(t *testing.T) {
	e := testEngine()
	text := "{{ if outer }}A{{ if inner }}B{{ endif }}C{{ endif }}"

	out, err := e.Interpolate(text, map[string]any{"outer": true, "inner": true})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ABC" {
		t.Errorf("out = %q", out)
	}

	out, err = e.Interpolate(text, map[string]any{"outer": true, "inner": false})
	if err != nil {
		t.Fatal(err)
	}
	if out != "AC" {
		t.Errorf("out = %q", out)
	}

	out, err = e.Interpolate(text, map[string]any{"outer": false, "inner": true})
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateDanglingConditionalDelimiters(t *testing.T) {
	e := testEngine()

	// An if with no matching endif gates nothing; the token is dropped and
	// never survives into the output.
	out, err := e.Interpolate("a {{ if flag }}b", map[string]any{"flag": true})
	if err != nil {
		t.Fatal(err)
	}
	if out != "a b" {
		t.Errorf("out = %q", out)
	}

	out, err = e.Interpolate("a {{ endif }}b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a b" {
		t.Errorf("out = %q", out)
	}

	// Text after a dangling if is unconditional: its placeholders are
	// substituted (and required) like any other.
	out, err = e.Interpolate("{{ if flag }}x is {{ x }}", map[string]any{"x": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "x is 1" {
		t.Errorf("out = %q", out)
	}
	if strings.Contains(out, "{{") {
		t.Errorf("conditional syntax survived: %q", out)
	}
	if got := e.MissingVariables("{{ if flag }}x is {{ x }}", nil); len(got) != 1 || got[0] != "x" {
		t.Errorf("MissingVariables = %v, want [x]", got)
	}
	if got := e.MissingVariables("done {{ endif }}", nil); len(got) != 0 {
		t.Errorf("MissingVariables = %v, want none", got)
	}
}

func TestInterpolateConditionalThenSubstitution(t *testing.T) {
	out, err := testEngine().Interpolate(
		"{{ if verbose }}Details: {{ detail }}{{ endif }}",
		map[string]any{"verbose": true, "detail": "all of them"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Details: all of them" {
		t.Errorf("out = %q", out)
	}

	// A falsy conditional removes the placeholder before substitution, so
	// the missing variable inside it is never an error.
	out, err = testEngine().Interpolate(
		"{{ if verbose }}Details: {{ detail }}{{ endif }}",
		map[string]any{"verbose": false})
	if err != nil {
		t.Fatal(err)
	}
	if out != "" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateBuiltins(t *testing.T) {
	e := testEngine()

	out, err := e.Interpolate("{{ cwd }} {{ timestamp }} {{ date }} {{ time }}", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := "/work/project 2025-03-14T09:26:53Z 2025-03-14 09:26:53"
	if out != want {
		t.Errorf("out = %q\nwant %q", out, want)
	}

	// Provided variables shadow built-ins.
	out, err = e.Interpolate("{{ cwd }}", map[string]any{"cwd": "/elsewhere"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "/elsewhere" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateValueChains(t *testing.T) {
	out, err := testEngine().Interpolate("{{ a }}", map[string]any{
		"a": "x{{ b }}",
		"b": "y",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "xy" {
		t.Errorf("out = %q", out)
	}
}

func TestInterpolateSelfReferenceCycle(t *testing.T) {
	_, err := testEngine().Interpolate("{{ a }}", map[string]any{"a": "{{ a }}"})
	if !errors.Is(err, domain.ErrCircularVariable) {
		t.Fatalf("expected ErrCircularVariable, got %v", err)
	}
	var ie *domain.InterpolationError
	if !errors.As(err, &ie) || ie.Variable != "a" {
		t.Errorf("error must name the variable: %v", err)
	}
}

func TestInterpolateMutualCycle(t *testing.T) {
	_, err := testEngine().Interpolate("{{ a }}", map[string]any{
		"a": "{{ b }}",
		"b": "{{ a }}",
	})
	if !errors.Is(err, domain.ErrCircularVariable) {
		t.Fatalf("expected ErrCircularVariable, got %v", err)
	}
}

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{42, "42"},
		{3.5, "3.5"},
		{true, "true"},
		{false, "false"},
		{nil, "null"},
		{[]any{"a", 1, true}, "a,1,true"},
		{[]string{"x", "y"}, "x,y"},
		{map[string]any{"k": "v"}, "[object Object]"},
	}
	for _, tc := range cases {
		if got := Stringify(tc.in); got != tc.want {
			t.Errorf("Stringify(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasVariables(t *testing.T) {
	if !HasVariables("a {{ b }} c") {
		t.Error("expected true")
	}
	if !HasVariables("{{ if x }}y{{ endif }}") {
		t.Error("conditionals count")
	}
	if HasVariables("plain text { not } a placeholder") {
		t.Error("expected false")
	}
}

func TestExtractVariables(t *testing.T) {
	text := "{{ b }} {{ a }} {{ b }} {{ c | default: v }} {{ if d }}{{ e }}{{ endif }} {{ f.g }}"
	got := ExtractVariables(text)
	want := []string{"b", "a", "c", "d", "e", "f.g"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v (first-seen order, deduplicated)", got, want)
		}
	}
}

func TestMissingVariables(t *testing.T) {
	e := testEngine()
	text := "{{ file }} {{ mode | default: fast }} {{ if opt }}{{ extra }}{{ endif }} {{ cwd }}"

	got := e.MissingVariables(text, nil)
	if len(got) != 1 || got[0] != "file" {
		t.Errorf("got %v, want [file]: defaulted, conditional-only, and built-in names are not required", got)
	}

	if got := e.MissingVariables(text, map[string]any{"file": "x"}); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestMissingVariablesConditionalAndDefaultAmbiguity(t *testing.T) {
	// A name used both inside a conditional and with default syntax
	// elsewhere is classified by the defaulted occurrence: optional.
	e := testEngine()
	text := "{{ if x }}{{ x }}{{ endif }} {{ x | default: none }}"

	if got := e.MissingVariables(text, nil); len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestExtractSupersetOfMissing(t *testing.T) {
	e := testEngine()
	text := "{{ a }} {{ b | default: v }} {{ if c }}inner {{ d }}{{ endif }}"

	extracted := map[string]bool{}
	for _, name := range ExtractVariables(text) {
		extracted[name] = true
	}
	for _, name := range e.MissingVariables(text, nil) {
		if !extracted[name] {
			t.Errorf("missing name %q not in extracted set", name)
		}
	}
}

package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"agentforge/internal/adapter/loader"
	"agentforge/internal/domain"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func load(t *testing.T, dir, name string) *domain.Template {
	t.Helper()
	tpl, err := loader.New(dir).LoadTemplate(name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return tpl
}

const baseTemplate = `metadata:
  name: base
  version: 1.0.0
  description: base agent
agent:
  description: base
  prompt: You are a careful engineer.
  tools: [Read, Grep]
  settings:
    model: sonnet
    temperature: 0.2
`

func TestResolveExtendsNoParent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "base.yaml", baseTemplate)
	tpl := load(t, dir, "base.yaml")

	r := New(dir, 0, nil)
	out, err := r.ResolveExtends(tpl, filepath.Join(dir, "base.yaml"))
	if err != nil {
		t.Fatalf("ResolveExtends: %v", err)
	}
	if out == tpl {
		t.Error("must return a new template, not the input")
	}
	if out.Agent.Prompt != tpl.Agent.Prompt {
		t.Errorf("prompt changed: %q", out.Agent.Prompt)
	}
}

func TestResolveExtendsMergesChildOverParent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "base.yaml", baseTemplate)
	write(t, dir, "child.yaml", `metadata:
  name: child
  version: 1.1.0
  description: child agent
  extends: base.yaml
agent:
  description: child
  prompt: Focus on Go code.
  tools: [Write, Read]
  settings:
    temperature: 0.8
`)
	tpl := load(t, dir, "child.yaml")

	out, err := New(dir, 0, nil).ResolveExtends(tpl, filepath.Join(dir, "child.yaml"))
	if err != nil {
		t.Fatalf("ResolveExtends: %v", err)
	}

	want := "You are a careful engineer.\n\nFocus on Go code."
	if out.Agent.Prompt != want {
		t.Errorf("prompt = %q, want %q", out.Agent.Prompt, want)
	}

	// Ordered union, parent first, duplicate Read dropped from the child.
	names := make([]string, len(out.Agent.Tools))
	for i, ref := range out.Agent.Tools {
		names[i] = ref.Name
	}
	if len(names) != 3 || names[0] != "Read" || names[1] != "Grep" || names[2] != "Write" {
		t.Errorf("tools = %v, want [Read Grep Write]", names)
	}

	if out.Agent.Settings["model"] != "sonnet" {
		t.Errorf("parent model lost: %v", out.Agent.Settings["model"])
	}
	if out.Agent.Settings["temperature"] != 0.8 {
		t.Errorf("child temperature must win: %v", out.Agent.Settings["temperature"])
	}
	if out.Metadata.Name != "child" {
		t.Errorf("identity must stay the child's: %q", out.Metadata.Name)
	}
	if out.Metadata.Extends != "" {
		t.Error("extends must be consumed")
	}
}

func TestResolveExtendsInheritSentinel(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "base.yaml", baseTemplate)
	write(t, dir, "child.yaml", `metadata:
  name: child
  version: 1.0.0
  description: child
  extends: base.yaml
agent:
  description: child
  prompt: Child prompt.
  tools: [Read]
  settings:
    inherit: base
    maxTurns: 3
`)
	tpl := load(t, dir, "child.yaml")

	out, err := New(dir, 0, nil).ResolveExtends(tpl, filepath.Join(dir, "child.yaml"))
	if err != nil {
		t.Fatalf("ResolveExtends: %v", err)
	}
	if _, ok := out.Agent.Settings["inherit"]; ok {
		t.Error("inherit sentinel must be consumed")
	}
	if out.Agent.Settings["model"] != "sonnet" || out.Agent.Settings["temperature"] != 0.2 {
		t.Errorf("parent settings not taken: %v", out.Agent.Settings)
	}
	if out.Agent.Settings["maxTurns"] != 3 {
		t.Errorf("child keys must still apply: %v", out.Agent.Settings["maxTurns"])
	}
}

func TestResolveExtendsChainDepthOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "root.yaml", `metadata:
  name: root
  version: 1.0.0
  description: root
agent:
  description: root
  prompt: Root.
  tools: [Read]
`)
	write(t, dir, "mid.yaml", `metadata:
  name: mid
  version: 1.0.0
  description: mid
  extends: root.yaml
agent:
  description: mid
  prompt: Mid.
  tools: [Grep]
`)
	write(t, dir, "leaf.yaml", `metadata:
  name: leaf
  version: 1.0.0
  description: leaf
  extends: mid.yaml
agent:
  description: leaf
  prompt: Leaf.
  tools: [Bash, Read]
`)
	tpl := load(t, dir, "leaf.yaml")

	out, err := New(dir, 0, nil).ResolveExtends(tpl, filepath.Join(dir, "leaf.yaml"))
	if err != nil {
		t.Fatalf("ResolveExtends: %v", err)
	}
	if out.Agent.Prompt != "Root.\n\nMid.\n\nLeaf." {
		t.Errorf("prompt = %q", out.Agent.Prompt)
	}
	names := make([]string, len(out.Agent.Tools))
	for i, ref := range out.Agent.Tools {
		names[i] = ref.Name
	}
	if len(names) != 3 || names[0] != "Read" || names[1] != "Grep" || names[2] != "Bash" {
		t.Errorf("tools = %v, want root-first union [Read Grep Bash]", names)
	}
}

func TestResolveExtendsCycle(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", `metadata:
  name: a
  version: 1.0.0
  description: a
  extends: b.yaml
agent:
  description: a
  prompt: A.
  tools: [Read]
`)
	write(t, dir, "b.yaml", `metadata:
  name: b
  version: 1.0.0
  description: b
  extends: a.yaml
agent:
  description: b
  prompt: B.
  tools: [Read]
`)
	tpl := load(t, dir, "a.yaml")

	_, err := New(dir, 0, nil).ResolveExtends(tpl, filepath.Join(dir, "a.yaml"))
	if !errors.Is(err, domain.ErrCircularInheritance) {
		t.Fatalf("expected ErrCircularInheritance, got %v", err)
	}
	var re *domain.ResolveError
	if !errors.As(err, &re) || len(re.Chain) == 0 {
		t.Errorf("cycle error must identify the chain: %v", err)
	}
}

func TestResolveExtendsSelfReference(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "self.yaml", `metadata:
  name: self
  version: 1.0.0
  description: self
  extends: self.yaml
agent:
  description: self
  prompt: Me.
  tools: [Read]
`)
	tpl := load(t, dir, "self.yaml")

	_, err := New(dir, 0, nil).ResolveExtends(tpl, filepath.Join(dir, "self.yaml"))
	if !errors.Is(err, domain.ErrCircularInheritance) {
		t.Fatalf("expected ErrCircularInheritance, got %v", err)
	}
}

func TestResolveExtendsMaxDepth(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "t0.yaml", `metadata:
  name: t0
  version: 1.0.0
  description: level 0
agent:
  description: t0
  prompt: P0.
  tools: [Read]
`)
	for i := 1; i <= 4; i++ {
		write(t, dir, fileN(i), `metadata:
  name: t`+itoa(i)+`
  version: 1.0.0
  description: level
  extends: `+fileN(i-1)+`
agent:
  description: t
  prompt: P.
  tools: [Read]
`)
	}
	tpl := load(t, dir, fileN(4))

	_, err := New(dir, 2, nil).ResolveExtends(tpl, filepath.Join(dir, fileN(4)))
	if !errors.Is(err, domain.ErrMaxDepthExceeded) {
		t.Fatalf("expected ErrMaxDepthExceeded, got %v", err)
	}

	if _, err := New(dir, 10, nil).ResolveExtends(tpl, filepath.Join(dir, fileN(4))); err != nil {
		t.Errorf("chain within bound must resolve: %v", err)
	}
}

func fileN(i int) string { return "t" + itoa(i) + ".yaml" }

func itoa(i int) string { return string(rune('0' + i)) }

func TestResolveFragments(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "style.yaml", `fragment:
  name: style
  instructions: Keep functions short.
`)
	write(t, dir, "safety.yaml", `fragment:
  name: safety
  instructions: Never delete files.
`)
	write(t, dir, "tpl.yaml", `metadata:
  name: tpl
  version: 1.0.0
  description: t
  mixins: [style.yaml, safety.yaml]
agent:
  description: t
  prompt: Base prompt.
  tools: [Read]
`)
	tpl := load(t, dir, "tpl.yaml")

	out, err := New(dir, 0, nil).ResolveFragments(tpl)
	if err != nil {
		t.Fatalf("ResolveFragments: %v", err)
	}
	want := "Base prompt." +
		"\n\n# Fragment: style\n\nKeep functions short." +
		"\n\n# Fragment: safety\n\nNever delete files."
	if out.Agent.Prompt != want {
		t.Errorf("prompt = %q\nwant %q", out.Agent.Prompt, want)
	}
	if tpl.Agent.Prompt != "Base prompt." {
		t.Error("input template must not be mutated")
	}
}

func TestResolveFragmentsMissingIsTerminal(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "tpl.yaml", `metadata:
  name: tpl
  version: 1.0.0
  description: t
  mixins: [gone.yaml]
agent:
  description: t
  prompt: P.
  tools: [Read]
`)
	tpl := load(t, dir, "tpl.yaml")

	_, err := New(dir, 0, nil).ResolveFragments(tpl)
	if !errors.Is(err, domain.ErrResolution) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
}

func TestResolveToolConfigsLayering(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "defaults.yaml", `tool:
  name: Write
  permissions:
    requireConfirmation: true
    allowDestructive: false
  defaultSettings:
    backupFirst: true
`)
	write(t, dir, "ref.yaml", `tool:
  name: Write
  permissions:
    allowDestructive: true
`)
	write(t, dir, "tpl.yaml", `metadata:
  name: tpl
  version: 1.0.0
  description: t
agent:
  description: t
  prompt: P.
  toolConfigs: [defaults.yaml]
  tools:
    - Read
    - name: Write
      config: ref.yaml
      overrides:
        permissions:
          requireConfirmation: false
`)
	tpl := load(t, dir, "tpl.yaml")

	cfgs, err := New(dir, 0, nil).ResolveToolConfigs(tpl)
	if err != nil {
		t.Fatalf("ResolveToolConfigs: %v", err)
	}

	// A tool with no source gets a minimal config.
	read, ok := cfgs["Read"]
	if !ok {
		t.Fatal("Read missing")
	}
	if read.Tool.Name != "Read" || read.Tool.Permissions != nil {
		t.Errorf("Read = %+v, want minimal", read.Tool)
	}

	wr := cfgs["Write"]
	if wr.Tool.Permissions["requireConfirmation"] != false {
		t.Errorf("inline override must win: %v", wr.Tool.Permissions)
	}
	if wr.Tool.Permissions["allowDestructive"] != true {
		t.Errorf("reference config must override template default: %v", wr.Tool.Permissions)
	}
	if wr.Tool.DefaultSettings["backupFirst"] != true {
		t.Errorf("template-wide layer lost: %v", wr.Tool.DefaultSettings)
	}
}

func TestResolveToolConfigsMissingFileIsTerminal(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "tpl.yaml", `metadata:
  name: tpl
  version: 1.0.0
  description: t
agent:
  description: t
  prompt: P.
  tools:
    - name: Read
      config: nope.yaml
`)
	tpl := load(t, dir, "tpl.yaml")

	_, err := New(dir, 0, nil).ResolveToolConfigs(tpl)
	if !errors.Is(err, domain.ErrResolution) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
}

func TestResolveToolConfigExtendsChain(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "strict.yaml", `tool:
  name: Bash
  permissions:
    requireConfirmation: true
  errorHandling:
    maxRetries: 1
`)
	write(t, dir, "relaxed.yaml", `tool:
  name: Bash
  extends: strict.yaml
  permissions:
    requireConfirmation: false
`)
	write(t, dir, "tpl.yaml", `metadata:
  name: tpl
  version: 1.0.0
  description: t
agent:
  description: t
  prompt: P.
  tools:
    - name: Bash
      config: relaxed.yaml
`)
	tpl := load(t, dir, "tpl.yaml")

	cfgs, err := New(dir, 0, nil).ResolveToolConfigs(tpl)
	if err != nil {
		t.Fatalf("ResolveToolConfigs: %v", err)
	}
	bash := cfgs["Bash"]
	if bash.Tool.Permissions["requireConfirmation"] != false {
		t.Errorf("child must win: %v", bash.Tool.Permissions)
	}
	if bash.Tool.ErrorHandling["maxRetries"] != 1 {
		t.Errorf("parent section lost: %v", bash.Tool.ErrorHandling)
	}
	if bash.Tool.Extends != "" {
		t.Error("extends must be consumed")
	}
}

func TestDeepMergeReplacesArraysAndPrimitives(t *testing.T) {
	base := map[string]any{
		"limits": map[string]any{"maxFileSize": 100, "paths": []any{"/a", "/b"}},
		"mode":   "strict",
	}
	overlay := map[string]any{
		"limits": map[string]any{"paths": []any{"/c"}},
	}

	out := deepMerge(base, overlay)
	limits := out["limits"].(map[string]any)
	if limits["maxFileSize"] != 100 {
		t.Errorf("nested key lost: %v", limits)
	}
	paths := limits["paths"].([]any)
	if len(paths) != 1 || paths[0] != "/c" {
		t.Errorf("arrays must replace, not concatenate: %v", paths)
	}
	if out["mode"] != "strict" {
		t.Errorf("mode = %v", out["mode"])
	}

	// Inputs untouched.
	if len(base["limits"].(map[string]any)["paths"].([]any)) != 2 {
		t.Error("base was mutated")
	}
}

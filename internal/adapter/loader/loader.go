// Package loader reads single YAML documents from disk and parses them into
// one of the three typed shapes: template, fragment, or tool config. Every
// failure is terminal for the single load call and classified into a
// distinct error kind carrying the offending path.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"agentforge/internal/domain"
)

// maxDocumentSize caps a single document at 1 MiB. Anything larger is
// rejected as malformed rather than parsed.
const maxDocumentSize = 1 << 20

// Loader resolves relative paths against a base directory and parses the
// three document kinds.
type Loader struct {
	baseDir string
}

// New creates a loader. Relative document paths are resolved against
// baseDir; an empty baseDir means the process working directory.
func New(baseDir string) *Loader {
	return &Loader{baseDir: baseDir}
}

// LoadTemplate reads and parses a template document.
func (l *Loader) LoadTemplate(path string) (*domain.Template, error) {
	resolved := l.resolve(path)
	data, raw, err := l.readDocument(resolved)
	if err != nil {
		return nil, err
	}

	var tpl domain.Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, syntaxError(resolved, err)
	}

	if _, ok := raw["metadata"]; !ok {
		return nil, missingKey(resolved, "metadata")
	}
	if _, ok := raw["agent"]; !ok {
		return nil, missingKey(resolved, "agent")
	}
	if tpl.Metadata.Name == "" {
		return nil, missingKey(resolved, "metadata.name")
	}
	return &tpl, nil
}

// LoadFragment reads and parses a prompt fragment document.
func (l *Loader) LoadFragment(path string) (*domain.Fragment, error) {
	resolved := l.resolve(path)
	data, raw, err := l.readDocument(resolved)
	if err != nil {
		return nil, err
	}

	var doc domain.FragmentDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, syntaxError(resolved, err)
	}

	if _, ok := raw["fragment"]; !ok {
		return nil, missingKey(resolved, "fragment")
	}
	if doc.Fragment.Name == "" {
		return nil, missingKey(resolved, "fragment.name")
	}
	if doc.Fragment.Instructions == "" {
		return nil, missingKey(resolved, "fragment.instructions")
	}
	return &doc.Fragment, nil
}

// LoadToolConfig reads and parses a tool config document. The file may hold
// multiple YAML documents (a bundle); the first document with a tool name is
// returned.
func (l *Loader) LoadToolConfig(path string) (*domain.ToolConfig, error) {
	cfgs, err := l.LoadToolConfigs(path)
	if err != nil {
		return nil, err
	}
	return &cfgs[0], nil
}

// LoadToolConfigs returns every tool config document in the file, in
// declared order. Documents without a tool name are skipped; a file with no
// matching document at all is a schema mismatch.
func (l *Loader) LoadToolConfigs(path string) ([]domain.ToolConfig, error) {
	resolved := l.resolve(path)
	data, _, err := l.readDocument(resolved)
	if err != nil {
		return nil, err
	}

	var out []domain.ToolConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var cfg domain.ToolConfig
		err := dec.Decode(&cfg)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, syntaxError(resolved, err)
		}
		if cfg.Tool.Name != "" {
			out = append(out, cfg)
		}
	}
	if len(out) == 0 {
		return nil, missingKey(resolved, "tool.name")
	}
	return out, nil
}

// Resolve returns the absolute path a document path maps to, without
// reading it.
func (l *Loader) Resolve(path string) string {
	return l.resolve(path)
}

func (l *Loader) resolve(path string) string {
	if filepath.IsAbs(path) || l.baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(l.baseDir, path)
}

// readDocument reads the file and additionally unmarshals it into a raw map
// so callers can check top-level key presence. IO failures are classified
// here.
func (l *Loader) readDocument(path string) ([]byte, map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, classifyIOError(path, err)
	}
	if info.IsDir() {
		return nil, nil, &domain.LoadError{
			Path:   path,
			Err:    domain.ErrSchemaMismatch,
			Detail: "path is a directory, not a document",
		}
	}
	if info.Size() > maxDocumentSize {
		return nil, nil, &domain.LoadError{
			Path:   path,
			Err:    domain.ErrSchemaMismatch,
			Detail: fmt.Sprintf("document too large (%d bytes, max %d)", info.Size(), maxDocumentSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, classifyIOError(path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, syntaxError(path, err)
	}
	return data, raw, nil
}

func classifyIOError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return &domain.LoadError{Path: path, Err: domain.ErrFileNotFound}
	case os.IsPermission(err):
		return &domain.LoadError{Path: path, Err: domain.ErrFileAccessDenied}
	default:
		return &domain.LoadError{Path: path, Err: domain.ErrSchemaMismatch, Detail: err.Error()}
	}
}

func missingKey(path, key string) error {
	return &domain.LoadError{Path: path, Err: domain.ErrSchemaMismatch, MissingKey: key}
}

// yamlLineRe extracts the position yaml.v3 embeds in its error text.
var yamlLineRe = regexp.MustCompile(`(?:yaml: )?line (\d+):`)

func syntaxError(path string, err error) error {
	le := &domain.LoadError{Path: path, Err: domain.ErrYAMLSyntax, Detail: err.Error()}
	if m := yamlLineRe.FindStringSubmatch(err.Error()); m != nil {
		le.Line, _ = strconv.Atoi(m[1])
	}
	return le
}

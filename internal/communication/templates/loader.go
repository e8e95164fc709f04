// Package templates loads and renders notification templates. Default templates
// are embedded in the binary; an operator directory can override any of them by
// providing a file with the same relative name.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"
	tmplparse "text/template/parse"

	"github.com/spf13/afero"
)

//go:embed defaults
var defaultFiles embed.FS

var (
	// ErrTemplateNotFound is returned when no template exists under the requested name.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateRender wraps parse and execution failures of a template that exists.
	ErrTemplateRender = errors.New("template render failed")
)

// missingKey makes a lookup that withDefaults could not fill fail instead of
// printing "<no value>".
const missingKey = "missingkey=error"

// executor is satisfied by both text/template and html/template. refs are the
// root key paths the template reads.
type executor interface {
	Execute(wr io.Writer, data interface{}) error
	refs() [][]string
}

type textExecutor struct {
	t    *texttemplate.Template
	keys [][]string
}

func (e textExecutor) Execute(wr io.Writer, data interface{}) error {
	return e.t.Execute(wr, data)
}

func (e textExecutor) refs() [][]string { return e.keys }

type htmlExecutor struct {
	t    *htmltemplate.Template
	keys [][]string
}

func (e htmlExecutor) Execute(wr io.Writer, data interface{}) error {
	return e.t.Execute(wr, data)
}

func (e htmlExecutor) refs() [][]string { return e.keys }

// Loader resolves template names against a filesystem and caches parsed templates.
type Loader struct {
	fs    afero.Fs
	mu    sync.RWMutex
	cache map[string]executor
}

// NewLoader renders templates from fsys only.
func NewLoader(fsys afero.Fs) *Loader {
	return &Loader{
		fs:    fsys,
		cache: make(map[string]executor),
	}
}

// NewOverlayLoader renders templates from layer, falling back to the embedded defaults.
func NewOverlayLoader(layer afero.Fs) (*Loader, error) {
	base, err := DefaultFs()
	if err != nil {
		return nil, err
	}
	if layer == nil {
		return NewLoader(base), nil
	}
	return NewLoader(afero.NewCopyOnWriteFs(base, layer)), nil
}

// NewDirLoader overlays the templates in dir (if any) on the embedded defaults.
func NewDirLoader(dir string) (*Loader, error) {
	if dir == "" {
		return NewOverlayLoader(nil)
	}
	osFs := afero.NewOsFs()
	ok, err := afero.DirExists(osFs, dir)
	if err != nil {
		return nil, fmt.Errorf("stat template dir %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("template dir %s does not exist", dir)
	}
	return NewOverlayLoader(afero.NewReadOnlyFs(afero.NewBasePathFs(osFs, dir)))
}

// DefaultFs exposes the embedded default templates as a read-only filesystem.
func DefaultFs() (afero.Fs, error) {
	sub, err := fs.Sub(defaultFiles, "defaults")
	if err != nil {
		return nil, fmt.Errorf("open embedded templates: %w", err)
	}
	return afero.NewReadOnlyFs(afero.FromIOFS{FS: sub}), nil
}

// Exists reports whether a template is available under name.
func (l *Loader) Exists(name string) bool {
	ok, err := afero.Exists(l.fs, clean(name))
	return err == nil && ok
}

// Render executes the named template. Names ending in .html are rendered with
// html/template, everything else with text/template.
func (l *Loader) Render(name string, data map[string]interface{}) (string, error) {
	tmpl, err := l.get(name)
	if err != nil {
		return "", err
	}
	return execute(name, tmpl, data)
}

// RenderString parses and executes an inline template. The name decides escaping
// the same way it does for files.
func RenderString(name, source string, data map[string]interface{}) (string, error) {
	tmpl, err := parse(name, source)
	if err != nil {
		return "", err
	}
	return execute(name, tmpl, data)
}

func (l *Loader) get(name string) (executor, error) {
	name = clean(name)

	l.mu.RLock()
	tmpl, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	source, err := afero.ReadFile(l.fs, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, fmt.Errorf("read template %s: %w", name, err)
	}

	tmpl, err = parse(name, string(source))
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = tmpl
	l.mu.Unlock()

	return tmpl, nil
}

func parse(name, source string) (executor, error) {
	if strings.HasSuffix(name, ".html") {
		t, err := htmltemplate.New(name).Option(missingKey).Parse(source)
		if err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrTemplateRender, name, err)
		}
		var trees []*tmplparse.Tree
		for _, assoc := range t.Templates() {
			trees = append(trees, assoc.Tree)
		}
		return htmlExecutor{t: t, keys: rootRefs(trees)}, nil
	}
	t, err := texttemplate.New(name).Option(missingKey).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrTemplateRender, name, err)
	}
	var trees []*tmplparse.Tree
	for _, assoc := range t.Templates() {
		trees = append(trees, assoc.Tree)
	}
	return textExecutor{t: t, keys: rootRefs(trees)}, nil
}

// execute renders with every referenced but missing context key set to "".
func execute(name string, tmpl executor, data map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, withDefaults(data, tmpl.refs())); err != nil {
		return "", fmt.Errorf("%w: execute %s: %w", ErrTemplateRender, name, err)
	}
	return buf.String(), nil
}

func clean(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

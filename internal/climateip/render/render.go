package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// bannedTags are template tags that could reach outside the descriptor.
var bannedTags = []string{"include", "extends", "import", "ssi"}

var autoescapeOnce sync.Once

// Vars are the variables made available to a template.
type Vars struct {
	DeviceState any
	Value       any
}

func (v Vars) context() pongo2.Context {
	return pongo2.Context{
		"device_state": v.DeviceState,
		"value":        v.Value,
	}
}

// Engine compiles templates inside one sandboxed pongo2 template set.
//
// Thread Safety: Compile and Render are safe for concurrent use.
type Engine struct {
	set *pongo2.TemplateSet
	mu  sync.Mutex
}

// NewEngine creates a sandboxed template engine.
func NewEngine() *Engine {
	autoescapeOnce.Do(func() {
		pongo2.SetAutoescape(false)
	})

	set := pongo2.NewSet("climateip", pongo2.DefaultLoader)
	for _, tag := range bannedTags {
		// Banning only fails for unknown tags or after the first compile.
		_ = set.BanTag(tag) //nolint:errcheck // tags are known builtins
	}

	return &Engine{set: set}
}

// Compile parses a template source.
//
// Returns:
//   - *Template: compiled template
//   - error: wrapped ErrCompile on syntax errors
func (e *Engine) Compile(src string) (*Template, error) {
	e.mu.Lock()
	tpl, err := e.set.FromString(src)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return &Template{src: src, tpl: tpl}, nil
}

// MustCompile is like Compile but panics on error. Only for tests and
// templates embedded in the binary.
func (e *Engine) MustCompile(src string) *Template {
	t, err := e.Compile(src)
	if err != nil {
		panic(err)
	}
	return t
}

// Template is a compiled template.
type Template struct {
	src string
	tpl *pongo2.Template
}

// Source returns the template text as written in the descriptor.
func (t *Template) Source() string {
	if t == nil {
		return ""
	}
	return t.src
}

// Render executes the template. The output is returned untrimmed.
func (t *Template) Render(vars Vars) (out string, err error) {
	if t == nil || t.tpl == nil {
		return "", fmt.Errorf("%w: nil template", ErrRender)
	}

	// pongo2 recovers most panics itself; reflection on exotic state
	// values is the remaining source.
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: panic: %v", ErrRender, r)
		}
	}()

	out, err = t.tpl.Execute(vars.context())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return out, nil
}

// Keep applies the stale-read rule: the trimmed render output replaces the
// previous value only when rendering succeeded and produced something.
func Keep(previous, out string, err error) string {
	if err != nil {
		return previous
	}
	if s := strings.TrimSpace(out); s != "" {
		return s
	}
	return previous
}

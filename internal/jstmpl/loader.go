// Package jstmpl loads the JavaScript patch templates the gates install and
// renders them by substituting __PLACEHOLDER__ tokens. Templates are embedded
// for single-binary deployment; an external directory can override individual
// files for experimentation. The cache is process-wide and immutable after
// first read.
package jstmpl

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Rorqualx/gatecap/internal/types"
)

//go:embed js/*.js
var jsFS embed.FS

// Loader caches templates by file name and renders them with a variable map.
type Loader struct {
	dir   string // optional override directory; empty means embedded only
	mu    sync.RWMutex
	cache map[string]string
}

// NewLoader creates a template loader. dir, when non-empty, is consulted
// before the embedded templates.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]string)}
}

// Load returns the raw template text for name, caching after first read.
func (l *Loader) Load(name string) (string, error) {
	l.mu.RLock()
	tpl, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	var raw []byte
	var err error
	if l.dir != "" {
		raw, err = os.ReadFile(filepath.Join(l.dir, name))
	}
	if l.dir == "" || err != nil {
		raw, err = jsFS.ReadFile("js/" + name)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", types.ErrTemplateNotFound, name)
	}

	l.mu.Lock()
	l.cache[name] = string(raw)
	l.mu.Unlock()
	return string(raw), nil
}

// LoadAndRender loads a template and substitutes every __KEY__ placeholder
// present in vars. Keys not already in __KEY__ form are upper-cased and
// wrapped. Values are inserted verbatim — callers must pre-encode strings
// destined for JS string literals. Placeholders with no matching variable
// are left intact, since no single gate knows every variable another gate
// publishes.
func (l *Loader) LoadAndRender(name string, vars map[string]string) (string, error) {
	tpl, err := l.Load(name)
	if err != nil {
		return "", err
	}
	return Render(tpl, vars), nil
}

// Render performs placeholder substitution on an already-loaded template.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, val := range vars {
		pairs = append(pairs, Placeholder(key), val)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// Placeholder normalizes a variable key to its __KEY__ token form.
func Placeholder(key string) string {
	if strings.HasPrefix(key, "__") && strings.HasSuffix(key, "__") {
		return key
	}
	return "__" + strings.ToUpper(key) + "__"
}

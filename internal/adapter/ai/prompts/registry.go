// Package prompts loads versioned prompt templates. Defaults are embedded in
// the binary; an on-disk prompt directory overrides them so prompts can be
// tuned without a rebuild.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates
var embedded embed.FS

// Template names used by the pipeline.
const (
	CVStructurer   = "cv_structurer"
	QueryTranslate = "query_translate"
	HRAnalyze      = "hr_analyze"
	HRCategorize   = "hr_categorize"
	MatchComment   = "match_comment"
)

// Registry resolves named prompt templates for one prompt version.
type Registry struct {
	version   string
	dir       string
	templates map[string]*template.Template
}

// Load builds a Registry for version. Templates found under dir/version take
// precedence over the embedded defaults of the same name.
func Load(dir, version string) (*Registry, error) {
	r := &Registry{version: version, dir: dir, templates: map[string]*template.Template{}}

	entries, err := embedded.ReadDir(filepath.Join("templates", version))
	if err != nil {
		return nil, fmt.Errorf("op=prompts.Load: unknown prompt version %q: %w", version, err)
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		b, err := embedded.ReadFile(filepath.Join("templates", version, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("op=prompts.Load: %w", err)
		}
		t, err := template.New(name).Parse(string(b))
		if err != nil {
			return nil, fmt.Errorf("op=prompts.Load: parse %s: %w", name, err)
		}
		r.templates[name] = t
	}

	if dir != "" {
		overrides, err := os.ReadDir(filepath.Join(dir, version))
		if err == nil {
			for _, e := range overrides {
				if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
					continue
				}
				name := strings.TrimSuffix(e.Name(), ".tmpl")
				b, err := os.ReadFile(filepath.Join(dir, version, e.Name()))
				if err != nil {
					return nil, fmt.Errorf("op=prompts.Load: %w", err)
				}
				t, err := template.New(name).Parse(string(b))
				if err != nil {
					return nil, fmt.Errorf("op=prompts.Load: parse override %s: %w", name, err)
				}
				r.templates[name] = t
			}
		}
	}
	return r, nil
}

// Version returns the loaded prompt version.
func (r *Registry) Version() string { return r.version }

// Render executes the named template with data.
func (r *Registry) Render(name string, data any) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("op=prompts.Render: no template %q in version %s", name, r.version)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("op=prompts.Render: %s: %w", name, err)
	}
	return b.String(), nil
}

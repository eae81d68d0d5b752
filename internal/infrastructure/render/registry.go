package render

import (
	"fmt"
	"html/template"
)

// Registry maps press release creators to newsletter templates.
type Registry struct {
	templates map[string]*template.Template
	fallback  *template.Template
}

// NewRegistry builds a registry; fallback serves unknown creators and may be nil.
func NewRegistry(fallback *template.Template) *Registry {
	return &Registry{templates: map[string]*template.Template{}, fallback: fallback}
}

// Register adds or replaces the template of a creator.
func (r *Registry) Register(creator string, tpl *template.Template) {
	if r.templates == nil {
		r.templates = map[string]*template.Template{}
	}
	r.templates[creator] = tpl
}

// Resolve returns the creator's template, the fallback, or an error if neither exists.
func (r *Registry) Resolve(creator string) (*template.Template, error) {
	if tpl, ok := r.templates[creator]; ok {
		return tpl, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no newsletter template registered for creator %q", creator)
}

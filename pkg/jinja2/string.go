package jinja2

import (
	"fmt"
)

// TemplateString is a template held inline in configuration, such as an
// output file name pattern.
type TemplateString string

func (t TemplateString) Validate() error {
	if _, err := Parse(string(t)); err != nil {
		return fmt.Errorf("invalid jinja template: %w", err)
	}
	return nil
}

func (t TemplateString) Render(ctx Context) (string, error) {
	return t.RenderWith(defaultEnvironment, ctx)
}

// RenderWith renders the template under env, so includes and extends go
// through env's loader.
func (t TemplateString) RenderWith(env *Environment, ctx Context) (string, error) {
	tmpl, err := env.Parse("", string(t))
	if err != nil {
		return "", fmt.Errorf("parsing jinja template: %w", err)
	}
	return env.RenderTemplate(tmpl, ctx)
}

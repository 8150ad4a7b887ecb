// Package recipe loads recipe files and cooks their dishes: each dish renders
// one skeleton template against a context assembled from the recipe data,
// typed inputs, Starlark scripts and annotations.
package recipe

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/neurodesk/recpp/pkg/prompt"
	v "github.com/neurodesk/recpp/pkg/validator"

	"gopkg.in/yaml.v3"
)

// Script is a Starlark context script, given inline or as a file relative to
// the recipe.
type Script struct {
	File   string `yaml:"file,omitempty"`
	Source string `yaml:"source,omitempty"`
}

func (s *Script) Validate() error {
	if s == nil {
		return nil
	}
	switch {
	case s.File == "" && s.Source == "":
		return errors.New("script must have one of file or source")
	case s.File != "" && s.Source != "":
		return errors.New("script must have only one of file or source")
	}
	return nil
}

type Dish struct {
	Name string `yaml:"name"`
	// Template names the skeleton to render; it may use the recipe context,
	// e.g. "{{ type }}_class.h".
	Template jinja2.TemplateString `yaml:"template"`
	// Output is the file name written by Write. Defaults to the template name.
	Output      jinja2.TemplateString `yaml:"output,omitempty"`
	Context     map[string]any        `yaml:"context,omitempty"`
	Inputs      []prompt.Input        `yaml:"inputs,omitempty"`
	Script      *Script               `yaml:"script,omitempty"`
	Annotations []Annotation          `yaml:"annotations,omitempty"`
	// When skips the dish unless the condition holds on the recipe context.
	When string `yaml:"when,omitempty"`
}

func (d Dish) Validate() error {
	return v.All(
		v.NotEmpty(d.Name, "dish name"),
		v.NotEmpty(string(d.Template), fmt.Sprintf("template of dish %q", d.Name)),
		d.Template.Validate(),
		d.Output.Validate(),
		validateContext(d.Context),
		v.Each(d.Inputs),
		d.Script.Validate(),
		v.Each(d.Annotations),
	)
}

type Recipe struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Context     map[string]any `yaml:"context,omitempty"`
	// Inputs are asked once and shared by every dish.
	Inputs      []prompt.Input `yaml:"inputs,omitempty"`
	Script      *Script        `yaml:"script,omitempty"`
	Annotations []Annotation   `yaml:"annotations,omitempty"`
	Dishes      []Dish         `yaml:"dishes"`

	// dir resolves relative script files; empty for built-in recipes.
	dir string
}

func (r *Recipe) Validate() error {
	names := make([]string, 0, len(r.Dishes))
	for _, d := range r.Dishes {
		names = append(names, d.Name)
	}
	inputs := slices.Concat(r.Inputs)
	for _, d := range r.Dishes {
		inputs = append(inputs, d.Inputs...)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	var noDishes error
	if len(r.Dishes) == 0 {
		noDishes = errors.New("recipe has no dishes")
	}
	return v.All(
		v.NotEmpty(r.Name, "recipe name"),
		validateContext(r.Context),
		v.Each(r.Inputs),
		r.Script.Validate(),
		v.Each(r.Annotations),
		noDishes,
		v.Each(r.Dishes),
		v.NoDuplicates(names, "dish names"),
		v.NoDuplicates(inputNames, "input names"),
	)
}

// Dir is the directory relative script files are read from.
func (r *Recipe) Dir() string { return r.dir }

func validateContext(ctx map[string]any) error {
	return v.MapDict(ctx, func(key string, _ any) error {
		return v.Identifier(key, "context key")
	}, "context")
}

// Parse decodes and validates a recipe. dir is used for relative script
// files.
func Parse(data []byte, dir string) (*Recipe, error) {
	var r Recipe
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decoding recipe: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recipe %q: %w", r.Name, err)
	}
	r.dir = dir
	return &r, nil
}

// Load reads a recipe file.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe: %w", err)
	}
	return Parse(data, filepath.Dir(path))
}

//go:embed cookbook/*.yaml
var cookbook embed.FS

// Cookbook lists the names of the built-in recipes.
func Cookbook() []string {
	entries, err := fs.ReadDir(cookbook, "cookbook")
	if err != nil {
		panic(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// Builtin returns a recipe of the cookbook.
func Builtin(name string) (*Recipe, error) {
	data, err := cookbook.ReadFile("cookbook/" + name + ".yaml")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("no built-in recipe %q (have %s)", name, strings.Join(Cookbook(), ", "))
	}
	if err != nil {
		return nil, err
	}
	return Parse(data, "")
}

// Find loads ref as a recipe file when it exists, and from the cookbook
// otherwise.
func Find(ref string) (*Recipe, error) {
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		return Load(ref)
	}
	return Builtin(ref)
}

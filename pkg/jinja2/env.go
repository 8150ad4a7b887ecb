package jinja2

import (
	"fmt"
	"strings"
)

// Syntax holds the marker pairs that delimit statements, expressions and
// comments in template source.
type Syntax struct {
	BlockStart    string
	BlockEnd      string
	VariableStart string
	VariableEnd   string
	CommentStart  string
	CommentEnd    string
}

// DefaultSyntax is the usual Jinja marker set.
var DefaultSyntax = Syntax{
	BlockStart:    "{%",
	BlockEnd:      "%}",
	VariableStart: "{{",
	VariableEnd:   "}}",
	CommentStart:  "{#",
	CommentEnd:    "#}",
}

func (s Syntax) validate() error {
	markers := map[string]string{
		"block start":    s.BlockStart,
		"block end":      s.BlockEnd,
		"variable start": s.VariableStart,
		"variable end":   s.VariableEnd,
		"comment start":  s.CommentStart,
		"comment end":    s.CommentEnd,
	}
	for what, m := range markers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("%s marker must not be empty", what)
		}
	}
	starts := []string{s.BlockStart, s.VariableStart, s.CommentStart}
	for i, a := range starts {
		for j, b := range starts {
			if i != j && strings.HasPrefix(a, b) {
				return fmt.Errorf("opening markers %q and %q are ambiguous", a, b)
			}
		}
	}
	return nil
}

// Whitespace is a set of whitespace-control flags applied at parse time.
type Whitespace uint8

const (
	// TrimBlocks removes the first newline after a statement or comment tag.
	TrimBlocks Whitespace = 1 << iota
	// LstripBlocks strips spaces and tabs from the start of a line up to a
	// statement or comment tag.
	LstripBlocks
	// StripTrailingNewline removes a single trailing newline from the source.
	StripTrailingNewline
)

func (w Whitespace) Has(flag Whitespace) bool { return w&flag != 0 }

func (w Whitespace) String() string {
	var names []string
	if w.Has(TrimBlocks) {
		names = append(names, "trim_blocks")
	}
	if w.Has(LstripBlocks) {
		names = append(names, "lstrip_blocks")
	}
	if w.Has(StripTrailingNewline) {
		names = append(names, "strip_trailing_newline")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// UndefinedBehavior controls what happens when an undefined value is printed,
// iterated or used as an operand.
type UndefinedBehavior int

const (
	// UndefinedStrict fails the render with an UndefinedVariableError.
	UndefinedStrict UndefinedBehavior = iota
	// UndefinedLenient substitutes the empty string.
	UndefinedLenient
)

// Environment is the process-wide render configuration. It is built once by
// NewEnvironment and only read afterwards, so it may be shared by concurrent
// renders.
type Environment struct {
	syntax       Syntax
	whitespace   Whitespace
	undefined    UndefinedBehavior
	strictBlocks bool
	loader       Loader
	filters      Filters
	globals      map[string]Value
}

// Option configures an Environment under construction.
type Option func(*Environment)

func WithSyntax(s Syntax) Option {
	return func(e *Environment) { e.syntax = s }
}

func WithWhitespace(w Whitespace) Option {
	return func(e *Environment) { e.whitespace = w }
}

func WithUndefined(b UndefinedBehavior) Option {
	return func(e *Environment) { e.undefined = b }
}

// WithStrictBlocks makes resolution fail when a child overrides a block its
// parents never define.
func WithStrictBlocks(strict bool) Option {
	return func(e *Environment) { e.strictBlocks = strict }
}

func WithLoader(l Loader) Option {
	return func(e *Environment) { e.loader = l }
}

// WithFilter registers (or replaces) a filter.
func WithFilter(name string, f Filter) Option {
	return func(e *Environment) { e.filters[name] = f }
}

// WithGlobal binds a value visible to every template below the context.
func WithGlobal(name string, v Value) Option {
	return func(e *Environment) { e.globals[name] = v }
}

// NewEnvironment builds and validates an Environment.
func NewEnvironment(opts ...Option) (*Environment, error) {
	e := &Environment{
		syntax:  DefaultSyntax,
		filters: DefaultFilters(),
		globals: DefaultGlobals(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.syntax.validate(); err != nil {
		return nil, fmt.Errorf("invalid syntax: %w", err)
	}
	switch e.undefined {
	case UndefinedStrict, UndefinedLenient:
	default:
		return nil, fmt.Errorf("unknown undefined behavior %d", e.undefined)
	}
	return e, nil
}

var defaultEnvironment = func() *Environment {
	e, err := NewEnvironment()
	if err != nil {
		panic(err)
	}
	return e
}()

func (e *Environment) Syntax() Syntax                { return e.syntax }
func (e *Environment) Whitespace() Whitespace        { return e.whitespace }
func (e *Environment) Undefined() UndefinedBehavior  { return e.undefined }
func (e *Environment) StrictBlocks() bool            { return e.strictBlocks }
func (e *Environment) Loader() Loader                { return e.loader }

// withLoader returns a shallow copy of e using a different loader.
func (e *Environment) withLoader(l Loader) *Environment {
	c := *e
	c.loader = l
	return &c
}

// Parse parses source under this environment's syntax and whitespace rules.
// The name is only used in error messages and for cycle detection.
func (e *Environment) Parse(name, src string) (*Template, error) {
	return parse(e, name, src)
}

// Load fetches a template through the loader and parses it.
func (e *Environment) Load(name string) (*Template, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("loading %q: environment has no loader", name)
	}
	src, err := e.loader.Load(name)
	if err != nil {
		return nil, err
	}
	return e.Parse(name, src)
}

// Compile loads a template and resolves its inheritance chain.
func (e *Environment) Compile(name string) (*Template, error) {
	t, err := e.Load(name)
	if err != nil {
		return nil, err
	}
	return e.Resolve(t)
}

// Render is the entry point: load, parse, resolve and evaluate the named
// template against ctx.
func (e *Environment) Render(name string, ctx Context) (string, error) {
	t, err := e.Compile(name)
	if err != nil {
		return "", err
	}
	return e.RenderTemplate(t, ctx)
}

// RenderString parses src as an anonymous template and renders it.
func (e *Environment) RenderString(src string, ctx Context) (string, error) {
	t, err := e.Parse("", src)
	if err != nil {
		return "", err
	}
	return e.RenderTemplate(t, ctx)
}

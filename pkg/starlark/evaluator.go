package starlark

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Evaluator runs Starlark context scripts against a render context and
// exports what they compute back into one.
type Evaluator struct {
	thread   *starlark.Thread
	builtins starlark.StringDict
	globals  starlark.StringDict
	vars     jinja2.Context
	opts     *syntax.FileOptions
}

// NewEvaluator creates a new Starlark evaluator
func NewEvaluator() *Evaluator {
	return NewEvaluatorWithHost(nil)
}

// NewEvaluatorWithHost creates an evaluator whose annotation() builtin
// reports to host.
func NewEvaluatorWithHost(host Host) *Evaluator {
	e := &Evaluator{
		thread: &starlark.Thread{
			Name: "recpp",
			Print: func(_ *starlark.Thread, msg string) {
				slog.Info(msg, "source", "starlark")
			},
		},
		globals: make(starlark.StringDict),
		vars:    make(jinja2.Context),
		opts: &syntax.FileOptions{
			Set:             true,
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
		},
	}
	e.builtins = e.createBuiltins(host)
	return e
}

// SetGlobal sets a global variable in the Starlark environment
func (e *Evaluator) SetGlobal(name string, value jinja2.Value) {
	e.globals[name] = ToStarlark(value)
}

func (e *Evaluator) predeclared() starlark.StringDict {
	predeclared := make(starlark.StringDict, len(e.builtins)+len(e.globals))
	maps.Copy(predeclared, e.builtins)
	maps.Copy(predeclared, e.globals)
	return predeclared
}

// Eval evaluates a Starlark expression and returns the result as a template Value
func (e *Evaluator) Eval(expr string) (jinja2.Value, error) {
	val, err := starlark.EvalOptions(e.opts, e.thread, "<eval>", expr, e.predeclared())
	if err != nil {
		return nil, fmt.Errorf("starlark evaluation error: %w", err)
	}
	return FromStarlark(val), nil
}

// ExecFile executes a Starlark file and returns the globals it defined. src
// may be nil, in which case filename is read from disk.
func (e *Evaluator) ExecFile(filename string, src any) (starlark.StringDict, error) {
	globals, err := starlark.ExecFileOptions(e.opts, e.thread, filename, src, e.predeclared())
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return nil, fmt.Errorf("starlark execution error: %s", evalErr.Backtrace())
		}
		return nil, fmt.Errorf("starlark execution error: %w", err)
	}
	maps.Copy(e.globals, globals)
	return globals, nil
}

// ExecString executes a Starlark script from a string
func (e *Evaluator) ExecString(script string) (starlark.StringDict, error) {
	return e.ExecFile("<script>", script)
}

// GetGlobal retrieves a global variable as a template Value
func (e *Evaluator) GetGlobal(name string) (jinja2.Value, bool) {
	if val, ok := e.globals[name]; ok {
		return FromStarlark(val), true
	}
	return nil, false
}

// LoadContext makes every context entry a predeclared global of later scripts.
func (e *Evaluator) LoadContext(ctx jinja2.Context) {
	for key, value := range ctx {
		e.globals[key] = ToStarlark(value)
	}
}

// ExportContext returns the script globals that can be rendered, plus the
// values stored with set_variable, which take precedence.
func (e *Evaluator) ExportContext() jinja2.Context {
	ctx := make(jinja2.Context)
	for key, value := range e.globals {
		if !isExportable(key, value) {
			continue
		}
		ctx[key] = FromStarlark(value)
	}
	maps.Copy(ctx, e.vars)
	return ctx
}

// isExportable skips private names and functions.
func isExportable(key string, value starlark.Value) bool {
	if key == "" || key[0] == '_' {
		return false
	}
	_, callable := value.(starlark.Callable)
	return !callable
}

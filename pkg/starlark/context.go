package starlark

import (
	"fmt"

	"go.starlark.net/starlark"
)

// Host receives the side effects of a context script.
type Host interface {
	// Annotate records a note that ends up in the rendered skeleton.
	Annotate(kind, ref, msg string)
}

func stringArg(v starlark.Value) string {
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	return v.String()
}

// createBuiltins returns the functions available to context scripts. host
// may be nil, in which case annotation() fails.
func (e *Evaluator) createBuiltins(host Host) starlark.StringDict {
	return starlark.StringDict{
		"annotation": starlark.NewBuiltin("annotation", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var kind, ref, msg starlark.Value = starlark.String(""), starlark.String(""), starlark.String("")
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "type", &kind, "ref?", &ref, "msg?", &msg); err != nil {
				return starlark.None, err
			}
			if host == nil {
				return starlark.None, fmt.Errorf("annotation: no recipe to annotate")
			}
			host.Annotate(stringArg(kind), stringArg(ref), stringArg(msg))
			return starlark.None, nil
		}),

		"set_variable": starlark.NewBuiltin("set_variable", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if len(args) != 2 {
				return starlark.None, fmt.Errorf("set_variable requires exactly 2 arguments: name, value")
			}
			e.vars[stringArg(args[0])] = FromStarlark(args[1])
			return starlark.None, nil
		}),

		"get_variable": starlark.NewBuiltin("get_variable", func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var name string
			var def starlark.Value = starlark.None
			if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &def); err != nil {
				return starlark.None, err
			}
			if v, ok := e.vars[name]; ok {
				return ToStarlark(v), nil
			}
			if v, ok := e.globals[name]; ok {
				return v, nil
			}
			return def, nil
		}),
	}
}

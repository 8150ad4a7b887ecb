package jinja2

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Filter transforms a value. args are the already-evaluated arguments of
// the filter call, e.g. `x|default("y")`.
type Filter func(v Value, args []Value) (Value, error)

// Filters is a registry of filter functions.
type Filters map[string]Filter

func filterMismatch(name string, v Value) error {
	return &TypeMismatchError{Op: "apply filter " + name + " to", Left: typeName(v)}
}

func stringFilter(name string, fn func(string) string) Filter {
	return func(v Value, _ []Value) (Value, error) {
		s, ok := v.(StringValue)
		if !ok {
			return nil, filterMismatch(name, v)
		}
		return StringValue(fn(string(s))), nil
	}
}

// DefaultFilters provides the common filters every environment starts with.
func DefaultFilters() Filters {
	return Filters{
		"upper": stringFilter("upper", strings.ToUpper),
		"lower": stringFilter("lower", strings.ToLower),
		"trim":  stringFilter("trim", strings.TrimSpace),
		// A Caser keeps state, so each call gets its own.
		"title": stringFilter("title", func(s string) string { return cases.Title(language.Und).String(s) }),
		"default": func(v Value, args []Value) (Value, error) {
			var def Value = StringValue("")
			if len(args) > 0 {
				def = args[0]
			}
			if _, undef := v.(Undefined); undef {
				return def, nil
			}
			// default(x, true) also replaces falsy values.
			if len(args) > 1 && args[1].Truth() && !v.Truth() {
				return def, nil
			}
			return v, nil
		},
		"join": func(v Value, args []Value) (Value, error) {
			sep := ""
			if len(args) > 0 {
				s, ok := args[0].(StringValue)
				if !ok {
					return nil, filterMismatch("join", args[0])
				}
				sep = string(s)
			}
			items, err := iterateValue(v)
			if err != nil {
				return nil, filterMismatch("join", v)
			}
			parts := make([]string, len(items))
			for i, it := range items {
				parts[i] = it.String()
			}
			return StringValue(strings.Join(parts, sep)), nil
		},
		"length": func(v Value, _ []Value) (Value, error) {
			switch t := v.(type) {
			case StringValue:
				return IntValue(utf8.RuneCountInString(string(t))), nil
			case ListValue:
				return IntValue(len(t)), nil
			case DictValue:
				return IntValue(len(t)), nil
			}
			return nil, filterMismatch("length", v)
		},
		"first": func(v Value, _ []Value) (Value, error) {
			items, err := iterateValue(v)
			if err != nil {
				return nil, filterMismatch("first", v)
			}
			if len(items) == 0 {
				return Undefined{Name: "first"}, nil
			}
			return items[0], nil
		},
		"last": func(v Value, _ []Value) (Value, error) {
			items, err := iterateValue(v)
			if err != nil {
				return nil, filterMismatch("last", v)
			}
			if len(items) == 0 {
				return Undefined{Name: "last"}, nil
			}
			return items[len(items)-1], nil
		},
		"replace": func(v Value, args []Value) (Value, error) {
			s, ok := v.(StringValue)
			if !ok {
				return nil, filterMismatch("replace", v)
			}
			if len(args) < 2 {
				return nil, fmt.Errorf("replace expects old and new strings")
			}
			oldS, ok1 := args[0].(StringValue)
			newS, ok2 := args[1].(StringValue)
			if !ok1 || !ok2 {
				return nil, &TypeMismatchError{Op: "replace", Left: typeName(args[0]), Right: typeName(args[1])}
			}
			n := -1
			if len(args) > 2 {
				c, ok := args[2].(IntValue)
				if !ok {
					return nil, filterMismatch("replace", args[2])
				}
				n = int(c)
			}
			return StringValue(strings.Replace(string(s), string(oldS), string(newS), n)), nil
		},
		"list": func(v Value, _ []Value) (Value, error) {
			items, err := iterateValue(v)
			if err != nil {
				return nil, filterMismatch("list", v)
			}
			return ListValue(items), nil
		},
		"int": func(v Value, args []Value) (Value, error) {
			switch t := v.(type) {
			case IntValue:
				return t, nil
			case FloatValue:
				return IntValue(int64(t)), nil
			case BoolValue:
				if t {
					return IntValue(1), nil
				}
				return IntValue(0), nil
			case StringValue:
				if n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64); err == nil {
					return IntValue(n), nil
				}
				if len(args) > 0 {
					return args[0], nil
				}
				return IntValue(0), nil
			}
			return nil, filterMismatch("int", v)
		},
		"string": func(v Value, _ []Value) (Value, error) {
			return StringValue(v.String()), nil
		},
	}
}

// DefaultGlobals are the callables visible to every template.
func DefaultGlobals() map[string]Value {
	return map[string]Value{
		"range": CallableValue{Name: "range", Fn: rangeFn},
		"raise": CallableValue{Name: "raise", Fn: func(args []Value) (Value, error) {
			msg := "raised from template"
			if len(args) > 0 {
				msg = args[0].String()
			}
			return nil, errors.New(msg)
		}},
	}
}

func rangeFn(args []Value) (Value, error) {
	ints := make([]int64, len(args))
	for i, a := range args {
		n, ok := a.(IntValue)
		if !ok {
			return nil, &TypeMismatchError{Op: "call range with", Left: typeName(a)}
		}
		ints[i] = int64(n)
	}
	var start, stop, step int64 = 0, 0, 1
	switch len(ints) {
	case 1:
		stop = ints[0]
	case 2:
		start, stop = ints[0], ints[1]
	case 3:
		start, stop, step = ints[0], ints[1], ints[2]
	default:
		return nil, fmt.Errorf("range expects 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, fmt.Errorf("range step must not be zero")
	}
	var out ListValue
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, IntValue(i))
	}
	return out, nil
}

// stringMethod returns the bound method `name` of s, if there is one.
func stringMethod(s StringValue, name string) (Value, bool) {
	str := string(s)
	strArg := func(args []Value, i int) (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("%s: missing argument %d", name, i+1)
		}
		a, ok := args[i].(StringValue)
		if !ok {
			return "", &TypeMismatchError{Op: "call " + name + " with", Left: typeName(args[i])}
		}
		return string(a), nil
	}
	var fn func(args []Value) (Value, error)
	switch name {
	case "split":
		fn = func(args []Value) (Value, error) {
			var parts []string
			if len(args) == 0 {
				parts = strings.Fields(str)
			} else {
				sep, err := strArg(args, 0)
				if err != nil {
					return nil, err
				}
				parts = strings.Split(str, sep)
			}
			out := make(ListValue, len(parts))
			for i, p := range parts {
				out[i] = StringValue(p)
			}
			return out, nil
		}
	case "upper":
		fn = func([]Value) (Value, error) { return StringValue(strings.ToUpper(str)), nil }
	case "lower":
		fn = func([]Value) (Value, error) { return StringValue(strings.ToLower(str)), nil }
	case "strip":
		fn = func(args []Value) (Value, error) {
			if len(args) == 0 {
				return StringValue(strings.TrimSpace(str)), nil
			}
			cut, err := strArg(args, 0)
			if err != nil {
				return nil, err
			}
			return StringValue(strings.Trim(str, cut)), nil
		}
	case "startswith", "endswith":
		fn = func(args []Value) (Value, error) {
			arg, err := strArg(args, 0)
			if err != nil {
				return nil, err
			}
			if name == "startswith" {
				return BoolValue(strings.HasPrefix(str, arg)), nil
			}
			return BoolValue(strings.HasSuffix(str, arg)), nil
		}
	case "replace":
		fn = func(args []Value) (Value, error) {
			o, err := strArg(args, 0)
			if err != nil {
				return nil, err
			}
			n, err := strArg(args, 1)
			if err != nil {
				return nil, err
			}
			return StringValue(strings.ReplaceAll(str, o, n)), nil
		}
	default:
		return nil, false
	}
	return CallableValue{Name: name, Fn: fn}, true
}

// dictMethod returns the bound method `name` of d, if there is one.
func dictMethod(d DictValue, name string) (Value, bool) {
	var fn func(args []Value) (Value, error)
	switch name {
	case "items":
		fn = func([]Value) (Value, error) {
			out := make(ListValue, 0, len(d))
			for _, k := range sortedKeys(d) {
				out = append(out, ListValue{StringValue(k), d[k]})
			}
			return out, nil
		}
	case "keys":
		fn = func([]Value) (Value, error) {
			out := make(ListValue, 0, len(d))
			for _, k := range sortedKeys(d) {
				out = append(out, StringValue(k))
			}
			return out, nil
		}
	case "values":
		fn = func([]Value) (Value, error) {
			out := make(ListValue, 0, len(d))
			for _, k := range sortedKeys(d) {
				out = append(out, d[k])
			}
			return out, nil
		}
	case "get":
		fn = func(args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("get: missing key")
			}
			if k, ok := args[0].(StringValue); ok {
				if v, ok := d[string(k)]; ok {
					return v, nil
				}
			}
			if len(args) > 1 {
				return args[1], nil
			}
			return NoneValue{}, nil
		}
	default:
		return nil, false
	}
	return CallableValue{Name: name, Fn: fn}, true
}

// evaluator evaluates expressions for a single render call.
type evaluator struct {
	env *Environment
}

// operand returns v for use in an operation. Undefined fails in strict mode
// and becomes the empty string in lenient mode.
func (ev *evaluator) operand(v Value) (Value, error) {
	if u, ok := v.(Undefined); ok {
		if ev.env.undefined == UndefinedStrict {
			return nil, &UndefinedVariableError{Name: u.Name}
		}
		return StringValue(""), nil
	}
	return v, nil
}

func (ev *evaluator) evalOperand(e Expr, f *frame) (Value, error) {
	v, err := ev.eval(e, f)
	if err != nil {
		return nil, err
	}
	return ev.operand(v)
}

func (ev *evaluator) evalArgs(es []Expr, f *frame) ([]Value, error) {
	out := make([]Value, len(es))
	for i, e := range es {
		v, err := ev.evalOperand(e, f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ev *evaluator) eval(e Expr, f *frame) (Value, error) {
	switch t := e.(type) {
	case literalExpr:
		return t.val, nil
	case nameExpr:
		if v, ok := f.lookup(t.name); ok {
			return v, nil
		}
		if v, ok := ev.env.globals[t.name]; ok {
			return v, nil
		}
		return Undefined{Name: t.name}, nil
	case attrExpr:
		obj, err := ev.eval(t.obj, f)
		if err != nil {
			return nil, err
		}
		return attribute(obj, t.name, e), nil
	case indexExpr:
		obj, err := ev.eval(t.obj, f)
		if err != nil {
			return nil, err
		}
		idx, err := ev.evalOperand(t.index, f)
		if err != nil {
			return nil, err
		}
		return index(obj, idx, e)
	case callExpr:
		fn, err := ev.eval(t.fn, f)
		if err != nil {
			return nil, err
		}
		args, err := ev.evalArgs(t.args, f)
		if err != nil {
			return nil, err
		}
		switch c := fn.(type) {
		case CallableValue:
			return c.Fn(args)
		case Undefined:
			if ev.env.undefined == UndefinedStrict {
				return nil, &UndefinedVariableError{Name: c.Name}
			}
			return c, nil
		}
		return nil, &TypeMismatchError{Op: "call", Left: typeName(fn)}
	case filterExpr:
		v, err := ev.eval(t.arg, f)
		if err != nil {
			return nil, err
		}
		if t.name != "default" {
			if v, err = ev.operand(v); err != nil {
				return nil, err
			}
		}
		args, err := ev.evalArgs(t.args, f)
		if err != nil {
			return nil, err
		}
		fn, ok := ev.env.filters[t.name]
		if !ok {
			return nil, fmt.Errorf("unknown filter %q", t.name)
		}
		return fn(v, args)
	case testExpr:
		v, err := ev.eval(t.arg, f)
		if err != nil {
			return nil, err
		}
		return BoolValue(knownTests[t.name](v) != t.negate), nil
	case notExpr:
		v, err := ev.eval(t.arg, f)
		if err != nil {
			return nil, err
		}
		return BoolValue(!v.Truth()), nil
	case negExpr:
		v, err := ev.evalOperand(t.arg, f)
		if err != nil {
			return nil, err
		}
		switch n := v.(type) {
		case IntValue:
			return -n, nil
		case FloatValue:
			return -n, nil
		}
		return nil, &TypeMismatchError{Op: "negate", Left: typeName(v)}
	case binaryExpr:
		return ev.binary(t, f)
	case condExpr:
		c, err := ev.eval(t.cond, f)
		if err != nil {
			return nil, err
		}
		if c.Truth() {
			return ev.eval(t.then, f)
		}
		if t.els == nil {
			return StringValue(""), nil
		}
		return ev.eval(t.els, f)
	case listExpr:
		items, err := ev.evalArgs(t.items, f)
		if err != nil {
			return nil, err
		}
		return ListValue(items), nil
	}
	return nil, fmt.Errorf("unhandled expression type: %T", e)
}

func attribute(obj Value, name string, e Expr) Value {
	switch o := obj.(type) {
	case LookupHook:
		if v, ok := o.OnLookup(name); ok {
			return v
		}
	case DictValue:
		if v, ok := o[name]; ok {
			return v
		}
		if m, ok := dictMethod(o, name); ok {
			return m
		}
	case StringValue:
		if m, ok := stringMethod(o, name); ok {
			return m
		}
	}
	return Undefined{Name: e.String()}
}

func index(obj, idx Value, e Expr) (Value, error) {
	switch o := obj.(type) {
	case Undefined:
		return Undefined{Name: e.String()}, nil
	case ListValue, StringValue:
		i, ok := idx.(IntValue)
		if !ok {
			return nil, &TypeMismatchError{Op: "index", Left: typeName(obj), Right: typeName(idx)}
		}
		items, _ := iterateValue(o)
		n := int(i)
		if n < 0 {
			n += len(items)
		}
		if n < 0 || n >= len(items) {
			return Undefined{Name: e.String()}, nil
		}
		return items[n], nil
	case DictValue:
		k, ok := idx.(StringValue)
		if !ok {
			return nil, &TypeMismatchError{Op: "index", Left: typeName(obj), Right: typeName(idx)}
		}
		if v, ok := o[string(k)]; ok {
			return v, nil
		}
		return Undefined{Name: e.String()}, nil
	case LookupHook:
		if k, ok := idx.(StringValue); ok {
			if v, ok := o.OnLookup(string(k)); ok {
				return v, nil
			}
			return Undefined{Name: e.String()}, nil
		}
	}
	return nil, &TypeMismatchError{Op: "index", Left: typeName(obj), Right: typeName(idx)}
}

func (ev *evaluator) binary(b binaryExpr, f *frame) (Value, error) {
	switch b.op {
	case "and", "or":
		l, err := ev.eval(b.left, f)
		if err != nil {
			return nil, err
		}
		if l.Truth() == (b.op == "or") {
			return l, nil
		}
		return ev.eval(b.right, f)
	}
	l, err := ev.evalOperand(b.left, f)
	if err != nil {
		return nil, err
	}
	r, err := ev.evalOperand(b.right, f)
	if err != nil {
		return nil, err
	}
	switch b.op {
	case "==":
		return BoolValue(equalValues(l, r)), nil
	case "!=":
		return BoolValue(!equalValues(l, r)), nil
	case "<", "<=", ">", ">=":
		c, err := compare(l, r)
		if err != nil {
			return nil, err
		}
		switch b.op {
		case "<":
			return BoolValue(c < 0), nil
		case "<=":
			return BoolValue(c <= 0), nil
		case ">":
			return BoolValue(c > 0), nil
		}
		return BoolValue(c >= 0), nil
	case "in", "not in":
		ok, err := contains(r, l)
		if err != nil {
			return nil, err
		}
		return BoolValue(ok != (b.op == "not in")), nil
	case "+":
		return add(l, r)
	case "-":
		return sub(l, r)
	}
	return nil, fmt.Errorf("unknown operator %q", b.op)
}

func compare(l, r Value) (int, error) {
	switch a := l.(type) {
	case IntValue:
		if b, ok := r.(IntValue); ok {
			return cmp3(a < b, a > b), nil
		}
	case FloatValue:
		if b, ok := r.(FloatValue); ok {
			return cmp3(a < b, a > b), nil
		}
	case StringValue:
		if b, ok := r.(StringValue); ok {
			return strings.Compare(string(a), string(b)), nil
		}
	}
	return 0, &TypeMismatchError{Op: "compare", Left: typeName(l), Right: typeName(r)}
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}

func contains(container, item Value) (bool, error) {
	switch c := container.(type) {
	case StringValue:
		s, ok := item.(StringValue)
		if !ok {
			return false, &TypeMismatchError{Op: "test membership of", Left: typeName(item), Right: "string"}
		}
		return strings.Contains(string(c), string(s)), nil
	case ListValue:
		for _, it := range c {
			if equalValues(it, item) {
				return true, nil
			}
		}
		return false, nil
	case DictValue:
		s, ok := item.(StringValue)
		if !ok {
			return false, nil
		}
		_, found := c[string(s)]
		return found, nil
	}
	return false, &TypeMismatchError{Op: "test membership in", Left: typeName(container)}
}

func add(l, r Value) (Value, error) {
	switch a := l.(type) {
	case IntValue:
		if b, ok := r.(IntValue); ok {
			return a + b, nil
		}
	case FloatValue:
		if b, ok := r.(FloatValue); ok {
			return a + b, nil
		}
	case StringValue:
		if b, ok := r.(StringValue); ok {
			return a + b, nil
		}
	case ListValue:
		if b, ok := r.(ListValue); ok {
			out := make(ListValue, 0, len(a)+len(b))
			return append(append(out, a...), b...), nil
		}
	}
	return nil, &TypeMismatchError{Op: "add", Left: typeName(l), Right: typeName(r)}
}

func sub(l, r Value) (Value, error) {
	switch a := l.(type) {
	case IntValue:
		if b, ok := r.(IntValue); ok {
			return a - b, nil
		}
	case FloatValue:
		if b, ok := r.(FloatValue); ok {
			return a - b, nil
		}
	}
	return nil, &TypeMismatchError{Op: "subtract", Left: typeName(l), Right: typeName(r)}
}

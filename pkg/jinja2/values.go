package jinja2

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Value is anything a template expression can produce. String is the text
// an output tag writes and Truth decides if/and/or/not.
type Value interface {
	String() string
	Truth() bool
}

// LookupHook lets a value answer attribute access (x.name) itself.
type LookupHook interface {
	OnLookup(key string) (Value, bool)
}

// CallableValue is a Go function callable from expressions, such as a
// global like range().
type CallableValue struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

func (c CallableValue) String() string { return "<function " + c.Name + ">" }
func (CallableValue) Truth() bool      { return true }

// NoneValue is the none literal. It prints as nothing.
type NoneValue struct{}

func (NoneValue) String() string { return "" }
func (NoneValue) Truth() bool    { return false }

// Undefined is the result of a lookup that found nothing. Name is the dotted
// path that was looked up. Printing or iterating it is an error in strict mode.
type Undefined struct {
	Name string
}

func (Undefined) String() string { return "" }
func (Undefined) Truth() bool    { return false }

type BoolValue bool

func (b BoolValue) String() string { return strconv.FormatBool(bool(b)) }
func (b BoolValue) Truth() bool    { return bool(b) }

type IntValue int64

func (i IntValue) String() string { return strconv.FormatInt(int64(i), 10) }
func (i IntValue) Truth() bool    { return i != 0 }

type FloatValue float64

func (f FloatValue) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }
func (f FloatValue) Truth() bool    { return f != 0 }

type StringValue string

func (s StringValue) String() string { return string(s) }
func (s StringValue) Truth() bool    { return s != "" }

// ListValue is an ordered sequence. Tuple literals evaluate to lists too.
// Printed, the items are separated by single spaces.
type ListValue []Value

func (l ListValue) String() string {
	var sb strings.Builder
	for i, v := range l {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.String())
	}
	return sb.String()
}
func (l ListValue) Truth() bool { return len(l) != 0 }

// DictValue maps string keys to values. Iteration follows sorted key order.
type DictValue map[string]Value

func (DictValue) String() string { return "{...}" }
func (d DictValue) Truth() bool  { return len(d) != 0 }

// Context holds the top-level bindings of a render call. The renderer never
// writes to it.
type Context map[string]Value

// NewContextFromAny builds a Context from decoded YAML/JSON style data.
func NewContextFromAny(m map[string]any) Context {
	ctx := make(Context, len(m))
	for k, v := range m {
		ctx[k] = FromGo(v)
	}
	return ctx
}

// FromGo turns plain Go data into a Value: numbers, strings and bools map to
// scalars, slices and arrays to lists and maps to dicts with stringified keys.
// Other values are kept as their %v text.
func FromGo(v any) Value {
	switch t := v.(type) {
	case nil:
		return NoneValue{}
	case Value:
		return t
	case Context:
		return DictValue(t)
	case []byte:
		return StringValue(t)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return StringValue(rv.String())
	case reflect.Bool:
		return BoolValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntValue(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return IntValue(int64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return FloatValue(rv.Float())
	case reflect.Slice, reflect.Array:
		list := make(ListValue, rv.Len())
		for i := range list {
			list[i] = FromGo(rv.Index(i).Interface())
		}
		return list
	case reflect.Map:
		dict := make(DictValue, rv.Len())
		for iter := rv.MapRange(); iter.Next(); {
			dict[fmt.Sprint(iter.Key().Interface())] = FromGo(iter.Value().Interface())
		}
		return dict
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return NoneValue{}
		}
		return FromGo(rv.Elem().Interface())
	}
	return StringValue(fmt.Sprint(v))
}

// ToGo converts a Value back into plain Go data.
func ToGo(v Value) any {
	switch t := v.(type) {
	case nil, NoneValue, Undefined:
		return nil
	case StringValue:
		return string(t)
	case BoolValue:
		return bool(t)
	case IntValue:
		return int64(t)
	case FloatValue:
		return float64(t)
	case ListValue:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ToGo(item)
		}
		return out
	case DictValue:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = ToGo(item)
		}
		return out
	default:
		return v.String()
	}
}

// typeName names the kind of a value for error messages.
func typeName(v Value) string {
	switch v.(type) {
	case nil, NoneValue:
		return "none"
	case Undefined:
		return "undefined"
	case StringValue:
		return "string"
	case BoolValue:
		return "bool"
	case IntValue:
		return "int"
	case FloatValue:
		return "float"
	case ListValue:
		return "list"
	case DictValue:
		return "dict"
	case CallableValue:
		return "function"
	case *loopValue:
		return "loop"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// iterateValue lists what a for loop visits: the characters of a string,
// the items of a list or the sorted keys of a dict. none yields nothing.
func iterateValue(v Value) ([]Value, error) {
	var items []Value
	switch t := v.(type) {
	case NoneValue:
	case StringValue:
		for _, r := range string(t) {
			items = append(items, StringValue(string(r)))
		}
	case ListValue:
		items = slices.Clone(t)
	case DictValue:
		for _, k := range sortedKeys(t) {
			items = append(items, StringValue(k))
		}
	default:
		return nil, &TypeMismatchError{Op: "iterate over", Left: typeName(v)}
	}
	return items, nil
}

func sortedKeys(d DictValue) []string {
	return slices.Sorted(maps.Keys(d))
}

// equalValues is structural equality. Values of different kinds are never
// equal; the engine does not coerce.
func equalValues(a, b Value) bool {
	switch x := a.(type) {
	case nil, NoneValue:
		switch b.(type) {
		case nil, NoneValue:
			return true
		}
		return false
	case Undefined:
		_, ok := b.(Undefined)
		return ok
	case ListValue:
		y, ok := b.(ListValue)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equalValues(x[i], y[i]) {
				return false
			}
		}
		return true
	case DictValue:
		y, ok := b.(DictValue)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equalValues(xv, yv) {
				return false
			}
		}
		return true
	case StringValue, BoolValue, IntValue, FloatValue:
		return a == b
	}
	return false
}

// loopValue is the per-iteration `loop` object exposed to for-loop bodies.
type loopValue struct {
	index int
	items []Value
}

func (l *loopValue) String() string { return "<loop>" }
func (l *loopValue) Truth() bool    { return true }

func (l *loopValue) OnLookup(key string) (Value, bool) {
	n := len(l.items)
	switch key {
	case "index0":
		return IntValue(l.index), true
	case "index":
		return IntValue(l.index + 1), true
	case "revindex0":
		return IntValue(n - l.index - 1), true
	case "revindex":
		return IntValue(n - l.index), true
	case "first":
		return BoolValue(l.index == 0), true
	case "last":
		return BoolValue(l.index == n-1), true
	case "length":
		return IntValue(n), true
	case "previtem":
		if l.index == 0 {
			return Undefined{Name: "loop.previtem"}, true
		}
		return l.items[l.index-1], true
	case "nextitem":
		if l.index == n-1 {
			return Undefined{Name: "loop.nextitem"}, true
		}
		return l.items[l.index+1], true
	case "cycle":
		return CallableValue{Name: "loop.cycle", Fn: func(args []Value) (Value, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("loop.cycle requires at least one argument")
			}
			return args[l.index%len(args)], nil
		}}, true
	}
	return nil, false
}

var (
	_ Value      = &loopValue{}
	_ LookupHook = &loopValue{}
)

package starlark

import (
	"maps"
	"slices"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"go.starlark.net/starlark"
)

// ToStarlark maps a render value onto the matching Starlark value. Undefined
// and none both become None; dict keys are inserted in sorted order.
func ToStarlark(val jinja2.Value) starlark.Value {
	switch v := val.(type) {
	case nil, jinja2.NoneValue, jinja2.Undefined:
		return starlark.None
	case jinja2.StringValue:
		return starlark.String(v)
	case jinja2.IntValue:
		return starlark.MakeInt64(int64(v))
	case jinja2.FloatValue:
		return starlark.Float(v)
	case jinja2.BoolValue:
		return starlark.Bool(v)
	case jinja2.ListValue:
		elems := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			elems = append(elems, ToStarlark(item))
		}
		return starlark.NewList(elems)
	case jinja2.DictValue:
		d := starlark.NewDict(len(v))
		for _, k := range slices.Sorted(maps.Keys(v)) {
			_ = d.SetKey(starlark.String(k), ToStarlark(v[k]))
		}
		return d
	}
	return starlark.String(val.String())
}

// FromStarlark maps a Starlark value back onto a render value. Tuples become
// lists, non-string dict keys are stringified and anything else without a
// counterpart is kept as its string form.
func FromStarlark(val starlark.Value) jinja2.Value {
	switch v := val.(type) {
	case nil, starlark.NoneType:
		return jinja2.NoneValue{}
	case starlark.String:
		return jinja2.StringValue(v)
	case starlark.Bool:
		return jinja2.BoolValue(v)
	case starlark.Float:
		return jinja2.FloatValue(v)
	case starlark.Int:
		if n, ok := v.Int64(); ok {
			return jinja2.IntValue(n)
		}
		return jinja2.StringValue(v.String())
	case *starlark.List, starlark.Tuple:
		seq := v.(starlark.Indexable)
		out := make(jinja2.ListValue, seq.Len())
		for i := range out {
			out[i] = FromStarlark(seq.Index(i))
		}
		return out
	case *starlark.Dict:
		out := make(jinja2.DictValue, v.Len())
		for _, kv := range v.Items() {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				key = kv[0].String()
			}
			out[key] = FromStarlark(kv[1])
		}
		return out
	}
	return jinja2.StringValue(val.String())
}

package recipe

import (
	"maps"

	"github.com/neurodesk/recpp/pkg/jinja2"
)

// layer merges src over dst without modifying either. Nested dicts are
// merged key by key; any other value in src replaces the one in dst.
func layer(dst, src jinja2.Context) jinja2.Context {
	out := maps.Clone(dst)
	if out == nil {
		out = jinja2.Context{}
	}
	for k, val := range src {
		out[k] = mergeValue(out[k], val)
	}
	return out
}

func mergeValue(dst, src jinja2.Value) jinja2.Value {
	d, ok1 := dst.(jinja2.DictValue)
	s, ok2 := src.(jinja2.DictValue)
	if !ok1 || !ok2 {
		return src
	}
	return jinja2.DictValue(layer(jinja2.Context(d), jinja2.Context(s)))
}

// holds evaluates a condition the way an if statement would, so undefined
// names are false.
func holds(env *jinja2.Environment, cond string, ctx jinja2.Context) (bool, error) {
	s := env.Syntax()
	src := s.BlockStart + " if " + cond + " " + s.BlockEnd + "1" + s.BlockStart + " endif " + s.BlockEnd
	out, err := env.RenderString(src, ctx)
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

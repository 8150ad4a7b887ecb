package jinja2

import (
	"errors"
	"testing"
)

func evalContext() Context {
	return Context{
		"name":  StringValue("world"),
		"n":     IntValue(3),
		"f":     FloatValue(1.5),
		"empty": StringValue(""),
		"items": ListValue{IntValue(1), IntValue(2), IntValue(3)},
		"user": DictValue{
			"name": StringValue("Neo"),
			"tags": ListValue{StringValue("a"), StringValue("b")},
		},
		"d": DictValue{"b": IntValue(1), "a": IntValue(2)},
	}
}

func TestExpressions(t *testing.T) {
	tests := []struct {
		tpl  string
		want string
	}{
		{"{{ 1 + 2 }}", "3"},
		{"{{ 'a' + 'b' }}", "ab"},
		{"{{ n - 1 }}", "2"},
		{"{{ -n }}", "-3"},
		{"{{ 1.5 + f }}", "3"},
		{"{{ [1, 2] + [3] }}", "1 2 3"},
		{"{{ user.name }}", "Neo"},
		{"{{ user['name'] }}", "Neo"},
		{"{{ items[0] }}{{ items[-1] }}", "13"},
		{"{{ user.tags|join(',') }}", "a,b"},
		{"{{ items|join }}", "123"},
		{"{{ items|length }}", "3"},
		{"{{ name|length }}", "5"},
		{"{{ 'hello big world'|title }}", "Hello Big World"},
		{"{{ name|replace('o', '0') }}", "w0rld"},
		{"{{ items|first }}-{{ items|last }}", "1-3"},
		{"{{ '42'|int + 1 }}", "43"},
		{"{{ n|string + 'x' }}", "3x"},
		{"{{ '  pad  '|trim }}", "pad"},
		{"{{ 'ab'|list|join('-') }}", "a-b"},
		{"{{ 'x' if n > 2 else 'y' }}", "x"},
		{"{{ 'x' if n > 5 }}", ""},
		{"{{ n == 3 and name }}", "world"},
		{"{{ missing or 'fallback' }}", "fallback"},
		{"{{ 'or' in name }}", "true"},
		{"{{ 2 in items }}", "true"},
		{"{{ 5 not in items }}", "true"},
		{"{{ 'name' in user }}", "true"},
		{"{{ not 'noexcept' in 'const' }}", "true"},
		{"{{ 1 == '1' }}", "false"},
		{"{{ 1 != 2 }}", "true"},
		{"{{ 'a' < 'b' }}", "true"},
		{"{{ n >= 3 }}", "true"},
		{"{{ missing is defined }}", "false"},
		{"{{ missing is undefined }}", "true"},
		{"{{ name is string }}", "true"},
		{"{{ f is number }}", "true"},
		{"{{ items is sequence }}", "true"},
		{"{{ user is mapping }}", "true"},
		{"{{ n is not none }}", "true"},
		{"{{ name.upper() }}", "WORLD"},
		{"{{ 'a,b'.split(',')|length }}", "2"},
		{"{{ '  x '.strip() }}", "x"},
		{"{{ name.startswith('wo') }}-{{ name.endswith('x') }}", "true-false"},
		{"{{ name.replace('world', 'there') }}", "there"},
		{"{{ range(3)|join('-') }}", "0-1-2"},
		{"{{ range(1, 7, 2)|join }}", "135"},
		{"{{ user.items()|length }}", "2"},
		{"{{ d.keys()|join }}", "ab"},
		{"{{ user.get('nope', 'dflt') }}", "dflt"},
		{"{{ missing|default('d') }}", "d"},
		{"{{ empty|default('d') }}", ""},
		{"{{ empty|default('d', true) }}", "d"},
		{"{{ (1, 2)|length }}", "2"},
		{"{{ not empty }}", "true"},
		{"{{ \"{\" }}", "{"},
		{"{{ 'tab\\there' }}", "tab\there"},
	}
	ctx := evalContext()
	for _, tc := range tests {
		t.Run(tc.tpl, func(t *testing.T) {
			out, err := renderHelper(t, tc.tpl, ctx)
			if err != nil {
				t.Fatalf("render error: %v", err)
			}
			if out != tc.want {
				t.Fatalf("want %q, got %q", tc.want, out)
			}
		})
	}
}

func TestPrintedForms(t *testing.T) {
	for v, want := range map[Value]string{
		BoolValue(true):  "true",
		BoolValue(false): "false",
		FloatValue(1):    "1",
		FloatValue(2.5):  "2.5",
		IntValue(-4):     "-4",
		NoneValue{}:      "",
		Undefined{}:      "",
	} {
		if got := v.String(); got != want {
			t.Errorf("%#v prints %q, want %q", v, got, want)
		}
	}
	list := ListValue{StringValue("a"), IntValue(1), ListValue{BoolValue(true)}}
	if got := list.String(); got != "a 1 true" {
		t.Errorf("list prints %q", got)
	}
	if got := (DictValue{"k": IntValue(1)}).String(); got != "{...}" {
		t.Errorf("dict prints %q", got)
	}
}

func TestTypeMismatch(t *testing.T) {
	tests := []string{
		"{{ 1 + 'a' }}",
		"{{ 'a' - 'b' }}",
		"{{ 1 < 'a' }}",
		"{{ 1 < 1.5 }}",
		"{{ 1 in 5 }}",
		"{{ 1 in 'abc' }}",
		"{{ -name }}",
		"{{ n|upper }}",
		"{{ name() }}",
		"{{ items['a'] }}",
		"{{ user[0] }}",
		"{{ range('a') }}",
		"{% for x in 5 %}{% endfor %}",
		"{% for a, b in items %}{% endfor %}",
	}
	ctx := evalContext()
	for _, tpl := range tests {
		t.Run(tpl, func(t *testing.T) {
			out, err := renderHelper(t, tpl, ctx)
			var tm *TypeMismatchError
			if !errors.As(err, &tm) {
				t.Fatalf("want TypeMismatchError, got %v", err)
			}
			if out != "" {
				t.Fatalf("partial output on error: %q", out)
			}
		})
	}
}

func TestUndefinedStrict(t *testing.T) {
	tests := map[string]string{
		"{{ missing }}":                       "missing",
		"{{ user.missing.deep }}":             "user.missing.deep",
		"{% for x in missing %}{% endfor %}":  "missing",
		"{{ missing + 'x' }}":                 "missing",
		"{{ missing|upper }}":                 "missing",
		"{{ missing() }}":                     "missing",
		"{% set y = missing %}{{ y }}":        "missing",
		"before {{ items[10] }} after":        "items[10]",
		"{% for x in items %}{{ loop.nextitem }}{% endfor %}": "loop.nextitem",
	}
	ctx := evalContext()
	for tpl, name := range tests {
		t.Run(tpl, func(t *testing.T) {
			out, err := renderHelper(t, tpl, ctx)
			var ue *UndefinedVariableError
			if !errors.As(err, &ue) {
				t.Fatalf("want UndefinedVariableError, got %v", err)
			}
			if ue.Name != name {
				t.Fatalf("want name %q, got %q", name, ue.Name)
			}
			if out != "" {
				t.Fatalf("partial output on error: %q", out)
			}
		})
	}
}

func TestUndefinedInConditionIsFalse(t *testing.T) {
	out, err := renderHelper(t, "{% if missing %}y{% else %}n{% endif %}", Context{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "n" {
		t.Fatalf("got %q", out)
	}
}

func TestUndefinedLenient(t *testing.T) {
	env, err := NewEnvironment(WithUndefined(UndefinedLenient))
	if err != nil {
		t.Fatal(err)
	}
	tests := map[string]string{
		"a{{ missing }}b":                      "ab",
		"{% for x in missing %}x{% endfor %}":  "",
		"{{ missing + 'x' }}":                  "x",
		"{{ user.missing.deep }}|":             "|",
		"{{ missing|upper }}!":                 "!",
	}
	ctx := evalContext()
	for tpl, want := range tests {
		if out := mustRender(t, env, tpl, ctx); out != want {
			t.Errorf("%s: want %q, got %q", tpl, want, out)
		}
	}
}

func TestLoopObject(t *testing.T) {
	ctx := evalContext()
	tests := []struct {
		tpl  string
		want string
	}{
		{"{% for x in items %}{{ loop.index }}/{{ loop.length }}{{ ',' if not loop.last }}{% endfor %}", "1/3,2/3,3/3"},
		{"{% for x in items %}{{ loop.index0 }}{{ loop.revindex }}{{ loop.revindex0 }}{% endfor %}", "032121210"},
		{"{% for x in items %}{{ loop.previtem|default('-') }}{% endfor %}", "-12"},
		{"{% for x in items %}{{ loop.nextitem|default('-') }}{% endfor %}", "23-"},
		{"{% for x in items %}{{ loop.cycle('a', 'b') }}{% endfor %}", "aba"},
		{"{% for x in items %}{% if loop.first %}[{% endif %}{{ x }}{% if loop.last %}]{% endif %}{% endfor %}", "[123]"},
		{"{% for a in [1, 2] %}{% for b in [1, 2] %}{{ loop.index }}{% endfor %}{{ loop.index }};{% endfor %}", "121;122;"},
		{"{% for k in d %}{{ k }}{% endfor %}", "ab"},
		{"{% for k, v in d.items() %}{{ k }}={{ v }};{% endfor %}", "a=2;b=1;"},
		{"{% for c in 'abc' %}{{ c|upper }}{% endfor %}", "ABC"},
		{"{% for x in none %}x{% else %}none{% endfor %}", "none"},
	}
	for _, tc := range tests {
		if out := mustRender(t, defaultEnvironment, tc.tpl, ctx); out != tc.want {
			t.Errorf("%s: want %q, got %q", tc.tpl, tc.want, out)
		}
	}
}

func TestScopes(t *testing.T) {
	ctx := Context{"a": IntValue(1), "items": ListValue{StringValue("x"), StringValue("y")}}
	tests := []struct {
		tpl  string
		want string
	}{
		{"{% set x = 'outer' %}{% for i in items %}{% set x = i %}{{ x }}{% endfor %}{{ x }}", "xyouter"},
		{"{% for i in items %}{% if loop.first %}{% set seen = 1 %}{% endif %}{{ seen|default('-') }}{% endfor %}", "1-"},
		{"{% for i in items %}{% endfor %}{{ i|default('gone') }}", "gone"},
		{"{% set a = 2 %}{{ a }}", "2"},
		{"{% set p, q = [1, 2] %}{{ q }}{{ p }}", "21"},
		{"{% block b %}{% set inner = 1 %}{% endblock %}{{ inner|default('none') }}", "none"},
	}
	for _, tc := range tests {
		if out := mustRender(t, defaultEnvironment, tc.tpl, ctx); out != tc.want {
			t.Errorf("%s: want %q, got %q", tc.tpl, tc.want, out)
		}
	}
	if len(ctx) != 2 || ctx["a"] != IntValue(1) {
		t.Fatalf("context was modified: %#v", ctx)
	}
}

func TestCustomFilterAndGlobal(t *testing.T) {
	env, err := NewEnvironment(
		WithFilter("shout", func(v Value, _ []Value) (Value, error) {
			return StringValue(v.String() + "!"), nil
		}),
		WithGlobal("project", StringValue("recpp")),
	)
	if err != nil {
		t.Fatal(err)
	}
	if out := mustRender(t, env, "{{ project|shout }}", Context{}); out != "recpp!" {
		t.Fatalf("got %q", out)
	}
	if out := mustRender(t, env, "{{ project }}", Context{"project": StringValue("mine")}); out != "mine" {
		t.Fatalf("context should shadow globals, got %q", out)
	}
	if _, err := Parse("{{ x|shout }}"); err == nil {
		t.Fatal("filter registered on one environment leaked into the default one")
	}
}

func TestRaiseGlobal(t *testing.T) {
	_, err := renderHelper(t, "{% if not ok %}{{ raise('bad input') }}{% endif %}", Context{})
	if err == nil || err.Error() != "bad input" {
		t.Fatalf("got %v", err)
	}
}

func TestFromGo(t *testing.T) {
	ctx := NewContextFromAny(map[string]any{
		"s":    "x",
		"n":    7,
		"list": []string{"a", "b"},
		"m":    map[string]any{"k": true},
		"nil":  nil,
	})
	out := mustRender(t, defaultEnvironment, "{{ s }}{{ n }}{{ list|join }}{{ m.k }}{{ nil is none }}", ctx)
	if out != "x7abtruetrue" {
		t.Fatalf("got %q", out)
	}
	back := ToGo(ctx["m"]).(map[string]any)
	if back["k"] != true {
		t.Fatalf("ToGo lost data: %#v", back)
	}
}

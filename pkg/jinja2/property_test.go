package jinja2

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"go.uber.org/goleak"
)

func TestRenderProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: text with no opening marker renders to itself
	properties.Property("identity law", prop.ForAll(
		func(s string) bool {
			out, err := defaultEnvironment.RenderString(s, Context{})
			return err == nil && out == s
		},
		gen.AnyString().SuchThat(func(s string) bool { return !strings.Contains(s, "{") }),
	))

	// Property: raw content is emitted byte for byte
	properties.Property("raw identity", prop.ForAll(
		func(s string) bool {
			out, err := defaultEnvironment.RenderString("{% raw %}"+s+"{% endraw %}", Context{})
			return err == nil && out == s
		},
		gen.AnyString().SuchThat(func(s string) bool { return !strings.Contains(s, "{%") }),
	))

	// Property: loop metadata is consistent for every position
	const loopTpl = "{% for x in xs %}{{ loop.index0 }}:{{ loop.index }}:{{ loop.revindex }}:" +
		"{{ loop.revindex0 }}:{{ loop.first }}:{{ loop.last }}:{{ loop.length }};{% endfor %}"
	properties.Property("loop metadata", prop.ForAll(
		func(n int) bool {
			xs := make(ListValue, n)
			for i := range xs {
				xs[i] = IntValue(i)
			}
			out, err := defaultEnvironment.RenderString(loopTpl, Context{"xs": xs})
			if err != nil {
				return false
			}
			var want strings.Builder
			for i := 0; i < n; i++ {
				fmt.Fprintf(&want, "%d:%d:%d:%d:%t:%t:%d;", i, i+1, n-i, n-i-1, i == 0, i == n-1, n)
			}
			return out == want.String()
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

func TestParseIdempotent(t *testing.T) {
	sources := []string{
		"Hello {{ name }}",
		"{% extends 'base' %}{% block a %}{{ super() }}x{% endblock %}",
		"{% for k, v in d.items() %}{{ k|upper }}={{ v if v else 'none' }}{% else %}-{% endfor %}",
		"{% if a and not b or c in [1, 2] %}{% set x = (1, 'two') %}{% elif d is defined %}{% raw %}{{ }}{% endraw %}{% endif %}",
		"{%- block outer -%}{% block inner %}{% include 'x' %}{% endblock %}{%- endblock %}",
	}
	opt := cmp.Exporter(func(reflect.Type) bool { return true })
	for _, src := range sources {
		a, err := Parse(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		b, err := Parse(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		if diff := cmp.Diff(a, b, opt); diff != "" {
			t.Errorf("parse of %q not deterministic (-first +second):\n%s", src, diff)
		}
	}
}

func TestConcurrentRenders(t *testing.T) {
	defer goleak.VerifyNone(t)

	env, err := NewEnvironment(WithLoader(MemoryLoader{
		"base":  "{% block head %}H{% endblock %}:{% block body %}{% endblock %}",
		"child": "{% extends 'base' %}{% block body %}{% for i in range(n) %}{{ i }}{% endfor %}{% endblock %}",
	}))
	if err != nil {
		t.Fatal(err)
	}
	tmpl, err := env.Compile("child")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			out, err := env.RenderTemplate(tmpl, Context{"n": IntValue(n % 5)})
			if err != nil {
				errs <- err
				return
			}
			want := "H:" + strings.Join(strings.Split("01234", "")[:n%5], "")
			if out != want {
				errs <- fmt.Errorf("n=%d: want %q, got %q", n, want, out)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/stretchr/testify/require"
)

// run executes recpp with args and returns what it wrote to stdout and
// stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestRenderBuiltin(t *testing.T) {
	out, _, err := run(t, "render", "function.h", "--set", "name=area", "--set", "ret={rtype: double}")
	require.NoError(t, err)
	require.Contains(t, out, "double area (")
	require.Contains(t, out, "/// \\return TODO")
}

func TestRenderMissingRequired(t *testing.T) {
	_, _, err := run(t, "render", "concrete_class.h")
	require.ErrorContains(t, err, `template "concrete_class.h" requires classname`)
}

func TestRenderContextFiles(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tpl/hello.txt": "{{ greeting }} {{ who }}{% for a in annotations %} {{ a.type }}{% endfor %}",
		"a.yaml":        "greeting: hi\nwho: yaml\n",
		"b.json":        `{"who": "json"}`,
		"c.star":        "who = \"star\"\nannotation(\"PERF\", \"X.1\", \"fast\")\n",
	})
	out, _, err := run(t, "render", "hello.txt",
		"--template-dir", filepath.Join(dir, "tpl"),
		"-c", filepath.Join(dir, "a.yaml"),
		"-c", filepath.Join(dir, "b.json"),
		"-c", filepath.Join(dir, "c.star"))
	require.NoError(t, err)
	require.Equal(t, "hi star PERF", out)

	_, _, err = run(t, "render", "hello.txt", "--template-dir", filepath.Join(dir, "tpl"), "-c", filepath.Join(dir, "tpl", "hello.txt"))
	require.ErrorContains(t, err, "unsupported extension")
}

func TestRenderUndefined(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"t.txt": "{{ missing }}!"})

	_, _, err := run(t, "render", "t.txt", "--template-dir", dir)
	var undef *jinja2.UndefinedVariableError
	require.True(t, errors.As(err, &undef), "got %v", err)

	out, _, err := run(t, "render", "t.txt", "--template-dir", dir, "--strict=false")
	require.NoError(t, err)
	require.Equal(t, "!", out)
}

func TestRenderOutputFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.h")
	out, _, err := run(t, "render", "function.h", "--set", "name=area", "-o", path)
	require.NoError(t, err)
	require.Empty(t, out)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "void area (")
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"n=5", "flag=true", "a.b=x", "a.c=y", "empty=", "list=[x, y]", "name=Widget"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"n":     5,
		"flag":  true,
		"a":     map[string]any{"b": "x", "c": "y"},
		"empty": "",
		"list":  []any{"x", "y"},
		"name":  "Widget",
	}, got)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseSets([]string{bad})
		require.ErrorContains(t, err, "invalid --set")
	}
}

func TestCookToStdout(t *testing.T) {
	out, _, err := run(t, "cook", "class", "--set", "classname=Widget")
	require.NoError(t, err)
	require.Contains(t, out, "class Widget")
	require.Contains(t, out, "// MAINT [CCS.5]: give one entity one cohesive responsibility")
}

func TestCookToDirectory(t *testing.T) {
	dir := t.TempDir()
	_, _, err := run(t, "cook", "class", "--set", "classname=Engine", "--set", "abstraction=verythick", "-o", dir)
	require.NoError(t, err)
	for _, name := range []string{"engine.h", "engine.cpp"} {
		require.FileExists(t, filepath.Join(dir, name))
	}
}

func TestCookKeepAndLive(t *testing.T) {
	out, _, err := run(t, "cook", "impl", "--keep", "PERF")
	require.NoError(t, err)
	require.Contains(t, out, "// PERF [cppcore.Per.7]: design to enable optimization")
	require.NotContains(t, out, "cppcore.R.1")

	out, stderr, err := run(t, "cook", "impl", "--live")
	require.NoError(t, err)
	require.NotContains(t, out, "cppcore.R.1")
	require.Contains(t, stderr, "(!) REL [cppcore.R.1]: manage resources automatically using resource handles and RAII")
}

func TestCookRecipeFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"greet.yaml": `
name: greet
inputs:
  - name: who
    kind: identifier
    query: Who
dishes:
  - name: hello
    template: hello.txt
    output: "{{ who }}.txt"
`,
		"tpl/hello.txt": "hello {{ who }}",
	})
	out, _, err := run(t, "cook", filepath.Join(dir, "greet.yaml"), "--template-dir", filepath.Join(dir, "tpl"), "--set", "who=bob")
	require.NoError(t, err)
	require.Equal(t, "hello bob\n", out)

	_, _, err = run(t, "cook", filepath.Join(dir, "greet.yaml"), "--template-dir", filepath.Join(dir, "tpl"))
	require.ErrorContains(t, err, `input "who"`)
}

func TestCookUnknownRecipe(t *testing.T) {
	_, _, err := run(t, "cook", "nope")
	require.ErrorContains(t, err, `no built-in recipe "nope"`)
}

func TestRecipesCmd(t *testing.T) {
	out, _, err := run(t, "recipes")
	require.NoError(t, err)
	for _, name := range []string{"class", "function", "impl", "lambda"} {
		require.Contains(t, out, name)
	}
}

func TestTemplatesCmd(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"extra.h": "// extra"})
	out, _, err := run(t, "templates", "--template-dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "concrete_class.h")
	require.Regexp(t, `extra\.h\s+dir`, out)
	require.Regexp(t, `function\.h\s+embedded\s+name`, out)
}

func TestAstCmd(t *testing.T) {
	out, _, err := run(t, "ast", "hierarchy_class.h")
	require.NoError(t, err)
	require.Contains(t, out, `Template("hierarchy_class.h" extends "class.h")`)
	require.Contains(t, out, `Extends("class.h")`)

	out, _, err = run(t, "ast", "hierarchy_class.h", "--resolved")
	require.NoError(t, err)
	require.Contains(t, out, `Template("hierarchy_class.h")`)
	require.NotContains(t, out, `Extends(`)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"tpl/x.txt": "<< name >>|<< missing >>",
		"recpp.yaml": `
template_dir: ` + filepath.Join(dir, "tpl") + `
strict: false
delimiters:
  variable_start: "<<"
  variable_end: ">>"
`,
	})
	out, _, err := run(t, "--config", filepath.Join(dir, "recpp.yaml"), "render", "x.txt", "--set", "name=n")
	require.NoError(t, err)
	require.Equal(t, "n|", out)
}

func TestConfigEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"x.txt": "{{ missing }}env"})
	t.Setenv("RECPP_TEMPLATE_DIR", dir)
	t.Setenv("RECPP_STRICT", "false")
	out, _, err := run(t, "render", "x.txt")
	require.NoError(t, err)
	require.Equal(t, "env", out)
}

func TestConfigErrors(t *testing.T) {
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "templates")
	require.ErrorContains(t, err, "reading config")

	_, _, err = run(t, "--template-dir", filepath.Join(t.TempDir(), "missing"), "templates")
	require.ErrorContains(t, err, "template directory")

	_, _, err = run(t, "--template-url", "ftp://example.com", "templates")
	require.ErrorContains(t, err, "must be http or https")
}

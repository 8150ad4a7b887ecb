package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/neurodesk/recpp/pkg/starlark"
	"github.com/neurodesk/recpp/pkg/templates"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) renderCmd() *cobra.Command {
	var (
		contexts []string
		sets     []string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render one template against context files and --set values",
		Example: `  recpp render function.h --set name=area --set 'ret={rtype: double}'
  recpp render my_class.h --context widget.yaml --context derived.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.cfg.Environment(cmd.Context())
			if err != nil {
				return err
			}
			vars := map[string]any{}
			for _, path := range contexts {
				ctx, err := loadContextFile(path)
				if err != nil {
					return err
				}
				maps.Copy(vars, ctx)
			}
			set, err := parseSets(sets)
			if err != nil {
				return err
			}
			maps.Copy(vars, set)

			name := args[0]
			ctx := jinja2.NewContextFromAny(vars)
			if info, ok := templates.Lookup(name); ok {
				for k, val := range info.Context() {
					if _, ok := ctx[k]; !ok {
						ctx[k] = val
					}
				}
				if err := info.Check(ctx); err != nil {
					return err
				}
			}
			out, err := env.Render(name, ctx)
			if err != nil {
				return fmt.Errorf("rendering %s: %w", name, err)
			}
			if output == "" {
				_, err = fmt.Fprint(cmd.OutOrStdout(), out)
				return err
			}
			if err := os.WriteFile(output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&contexts, "context", "c", nil, "context file (.yaml, .yml, .json or .star); later files win")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "set a context value as key=value; the value is parsed as YAML and dotted keys nest")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

// annotationList receives the annotations of a .star context file.
type annotationList []any

func (l *annotationList) Annotate(kind, ref, msg string) {
	*l = append(*l, map[string]any{"type": kind, "ref": ref, "msg": msg})
}

// loadContextFile reads a render context. Starlark files are executed and
// their public globals exported; their annotation() calls fill an
// "annotations" list unless the script sets one itself.
func loadContextFile(path string) (map[string]any, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".star" {
		var notes annotationList
		ev := starlark.NewEvaluatorWithHost(&notes)
		if _, err := ev.ExecFile(path, nil); err != nil {
			return nil, fmt.Errorf("context %s: %w", path, err)
		}
		out := map[string]any{}
		for k, val := range ev.ExportContext() {
			out[k] = jinja2.ToGo(val)
		}
		if _, ok := out["annotations"]; !ok && len(notes) > 0 {
			out["annotations"] = []any(notes)
		}
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var out map[string]any
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	case ".json":
		err = json.Unmarshal(data, &out)
	default:
		return nil, fmt.Errorf("context %s: unsupported extension %q (want .yaml, .yml, .json or .star)", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding context %s: %w", path, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// parseSets turns key=value flags into a nested map. Values are YAML so
// that "5", "true" and "[a, b]" keep their type.
func parseSets(kvs []string) (map[string]any, error) {
	out := map[string]any{}
	for _, kv := range kvs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		var val any
		if err := yaml.Unmarshal([]byte(raw), &val); err != nil || val == nil {
			val = raw
		}
		path := strings.Split(key, ".")
		m := out
		for _, part := range path[:len(path)-1] {
			next, ok := m[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[part] = next
			}
			m = next
		}
		m[path[len(path)-1]] = val
	}
	return out, nil
}

package main

import (
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/neurodesk/recpp/pkg/prompt"
	"github.com/neurodesk/recpp/pkg/recipe"

	"github.com/spf13/cobra"
)

// cookFlags are shared by cook and watch.
type cookFlags struct {
	out         string
	keep        string
	live        bool
	interactive bool
	contexts    []string
	sets        []string
	jobs        int
}

func (f *cookFlags) register(cmd *cobra.Command, interactive bool) {
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the dishes into this directory instead of stdout")
	cmd.Flags().StringVarP(&f.keep, "keep", "k", "*", "comma separated annotation types to keep, e.g. PERF,USA")
	cmd.Flags().BoolVar(&f.live, "live", false, "print the annotations while cooking instead of embedding them")
	cmd.Flags().StringArrayVarP(&f.contexts, "context", "c", nil, "context file (.yaml, .yml, .json or .star) overriding recipe data")
	cmd.Flags().StringArrayVar(&f.sets, "set", nil, "set a value as key=value; it also answers the input of that name")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", 0, "dishes rendered at once (default from config, then one per CPU)")
	if interactive {
		cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "ask the recipe inputs on the terminal")
	}
}

func (f *cookFlags) vars() (map[string]any, error) {
	vars := map[string]any{}
	for _, path := range f.contexts {
		ctx, err := loadContextFile(path)
		if err != nil {
			return nil, err
		}
		maps.Copy(vars, ctx)
	}
	set, err := parseSets(f.sets)
	if err != nil {
		return nil, err
	}
	maps.Copy(vars, set)
	return vars, nil
}

// cooker assembles a Cooker from the configuration and flags.
func (a *app) cooker(cmd *cobra.Command, f *cookFlags) (*recipe.Cooker, error) {
	env, err := a.cfg.Environment(cmd.Context())
	if err != nil {
		return nil, err
	}
	vars, err := f.vars()
	if err != nil {
		return nil, err
	}
	c := &recipe.Cooker{
		Env:  env,
		Keep: recipe.ParseWhitelist(f.keep),
		Vars: vars,
		Jobs: a.cfg.Jobs,
	}
	if f.jobs > 0 {
		c.Jobs = f.jobs
	}
	if f.interactive {
		c.Asker = prompt.Terminal{}
	}
	if f.live {
		c.Live = cmd.ErrOrStderr()
	}
	return c, nil
}

// serve cooks r once and writes the plates below out, or to w when out is
// empty.
func serve(cmd *cobra.Command, c *recipe.Cooker, r *recipe.Recipe, out string, w io.Writer) error {
	plates, err := c.Cook(cmd.Context(), r)
	if err != nil {
		return fmt.Errorf("cooking %s: %w", r.Name, err)
	}
	if out == "" {
		return recipe.Serve(w, plates)
	}
	paths, err := recipe.Write(out, plates)
	if err != nil {
		return err
	}
	slog.Debug("recipe served", "recipe", r.Name, "files", len(paths))
	return nil
}

func (a *app) cookCmd() *cobra.Command {
	var f cookFlags
	cmd := &cobra.Command{
		Use:   "cook <recipe>",
		Short: "Cook a recipe file or a built-in recipe into C++ skeletons",
		Example: `  recpp cook class --set classname=Widget
  recpp cook function -i --keep PERF,USA -o src/
  recpp cook ./recipes/service.yaml --context service.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := recipe.Find(args[0])
			if err != nil {
				return err
			}
			c, err := a.cooker(cmd, &f)
			if err != nil {
				return err
			}
			return serve(cmd, c, r, f.out, cmd.OutOrStdout())
		},
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) recipesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List the built-in recipes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range recipe.Cookbook() {
				r, err := recipe.Builtin(name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", r.Name, r.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/spf13/cobra"
)

func (a *app) templatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the available templates and where they come from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.cfg.Source().List()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tORIGIN\tREQUIRES\tDESCRIPTION")
			for _, info := range infos {
				desc := info.Description
				if info.Abstract {
					desc += " (abstract)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Origin, strings.Join(info.Required, ","), desc)
			}
			return tw.Flush()
		},
	}
}

func (a *app) astCmd() *cobra.Command {
	var resolved bool
	cmd := &cobra.Command{
		Use:   "ast <template>",
		Short: "Print the parsed tree of a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := a.cfg.Environment(cmd.Context())
			if err != nil {
				return err
			}
			var t *jinja2.Template
			if resolved {
				t, err = env.Compile(args[0])
			} else {
				t, err = env.Load(args[0])
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), jinja2.Pretty(t))
			return err
		},
	}
	cmd.Flags().BoolVar(&resolved, "resolved", false, "merge the extends chain before printing")
	return cmd
}

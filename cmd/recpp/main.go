// Command recpp renders annotated C++ skeletons from Jinja-style templates
// and cooks recipes of several of them at once.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
	cfg     Config
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:   "recpp",
		Short: "Generate annotated C++ skeletons from templates and recipes",
		Long: `recpp renders C++ source skeletons carrying review annotations such as
"PERF [CCS.9]: avoid premature pessimization".

Configuration is read from recpp.yaml (or --config), RECPP_* environment
variables and flags, in increasing order of precedence.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd.ErrOrStderr(), a.verbose)
			cfg, err := loadConfig(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./recpp.yaml when present)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	flags.String("template-dir", "", "directory whose templates override the built-in ones")
	flags.String("template-url", "", "base URL templates are fetched from before falling back to the built-in ones")
	flags.String("cache-dir", "", "cache for remote templates (default is the user cache directory)")
	flags.Bool("strict", true, "fail on undefined variables instead of rendering them empty")
	flags.Bool("trim-blocks", false, "remove the first newline after a block tag")
	flags.Bool("lstrip-blocks", false, "strip whitespace before a block tag on its line")
	flags.Bool("strict-blocks", false, "fail when a child overrides a block its parents do not define")
	for key, name := range map[string]string{
		"template_dir":  "template-dir",
		"template_url":  "template-url",
		"cache_dir":     "cache-dir",
		"strict":        "strict",
		"trim_blocks":   "trim-blocks",
		"lstrip_blocks": "lstrip-blocks",
		"strict_blocks": "strict-blocks",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		a.renderCmd(),
		a.cookCmd(),
		a.watchCmd(),
		a.templatesCmd(),
		a.recipesCmd(),
		a.astCmd(),
	)
	return root
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/neurodesk/recpp/pkg/recipe"
	"github.com/spf13/cobra"
)

const watchDebounce = 200 * time.Millisecond

// watcher reports settled changes in a set of directories. Events below
// ignore, typically the output directory, are dropped.
type watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	ignore   string
}

func newWatcher(dirs []string, ignore string, debounce time.Duration) (*watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
		slog.Debug("watching", "dir", dir)
	}
	if ignore != "" {
		if ignore, err = filepath.Abs(ignore); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return &watcher{fs: fw, debounce: debounce, ignore: ignore}, nil
}

func (w *watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	if w.ignore == "" {
		return true
	}
	path, err := filepath.Abs(ev.Name)
	if err != nil {
		return true
	}
	rel, err := filepath.Rel(w.ignore, path)
	return err != nil || !filepath.IsLocal(rel)
}

// Run calls changed once per burst of relevant events until ctx is done,
// then closes the watcher.
func (w *watcher) Run(ctx context.Context, changed func()) error {
	defer w.fs.Close()
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("watcher closed")
			}
			if !w.relevant(ev) {
				continue
			}
			slog.Debug("change", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("watcher closed")
			}
			slog.Warn("watch error", "error", err)
		case <-fire:
			fire = nil
			changed()
		}
	}
}

// watchDirs lists the directories whose changes affect a cook: the recipe
// file, its script and context files, and the template override directory.
func watchDirs(ref string, contexts []string, templateDir string) []string {
	var dirs []string
	add := func(path string) {
		if abs, err := filepath.Abs(path); err == nil && !slices.Contains(dirs, abs) {
			dirs = append(dirs, abs)
		}
	}
	if st, err := os.Stat(ref); err == nil && !st.IsDir() {
		add(filepath.Dir(ref))
	}
	for _, c := range contexts {
		add(filepath.Dir(c))
	}
	if templateDir != "" {
		add(templateDir)
	}
	return dirs
}

func (a *app) watchCmd() *cobra.Command {
	var f cookFlags
	cmd := &cobra.Command{
		Use:   "watch <recipe>",
		Short: "Cook a recipe again whenever its recipe, context or template files change",
		Example: `  recpp watch ./recipes/service.yaml -o src/ --template-dir templates/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := args[0]
			dirs := watchDirs(ref, f.contexts, a.cfg.TemplateDir)
			if len(dirs) == 0 {
				return fmt.Errorf("nothing to watch: %s is a built-in recipe and no template directory is configured", ref)
			}
			cook := func() {
				r, err := recipe.Find(ref)
				if err == nil {
					var c *recipe.Cooker
					if c, err = a.cooker(cmd, &f); err == nil {
						err = serve(cmd, c, r, f.out, cmd.OutOrStdout())
					}
				}
				if err != nil {
					slog.Error("cook failed", "recipe", ref, "error", err)
					return
				}
				slog.Info("recipe cooked", "recipe", ref)
			}

			w, err := newWatcher(dirs, f.out, watchDebounce)
			if err != nil {
				return err
			}
			cook()
			return w.Run(cmd.Context(), cook)
		},
	}
	f.register(cmd, false)
	return cmd
}

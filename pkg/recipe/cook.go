package recipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/neurodesk/recpp/pkg/prompt"
	"github.com/neurodesk/recpp/pkg/starlark"
	"github.com/neurodesk/recpp/pkg/templates"

	"golang.org/x/sync/errgroup"
)

// Cooker turns recipes into plates. Inputs are asked sequentially before any
// dish is rendered; dishes are then rendered in parallel.
type Cooker struct {
	Env *jinja2.Environment
	// Asker answers recipe inputs. Nil uses the input defaults.
	Asker prompt.Asker
	Keep  Whitelist
	// Live receives the kept annotations instead of the skeletons.
	Live io.Writer
	// Vars override recipe data and answer the inputs of the same name.
	Vars map[string]any
	// Jobs bounds the dishes rendered at once; zero means GOMAXPROCS.
	Jobs int
}

// Plate is one rendered dish.
type Plate struct {
	Dish        string
	Template    string
	File        string
	Content     string
	Annotations []Annotation
}

// order is a dish whose inputs are answered and which is ready to render.
type order struct {
	dish     Dish
	template string
	ctx      jinja2.Context
	annots   []Annotation
}

func (c *Cooker) asker() prompt.Asker {
	if c.Asker == nil {
		return prompt.Answers{}
	}
	return c.Asker
}

// Cook renders every dish of r whose condition holds, in recipe order. On
// error, including cancellation of ctx, no plate is returned.
func (c *Cooker) Cook(ctx context.Context, r *Recipe) ([]Plate, error) {
	if c.Env == nil {
		return nil, errors.New("cooker has no environment")
	}
	orders, err := c.prepare(ctx, r)
	if err != nil {
		return nil, err
	}

	jobs := c.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	plates := make([]Plate, len(orders))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, o := range orders {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := c.cookDish(r, o)
			if err != nil {
				return fmt.Errorf("dish %q: %w", o.dish.Name, err)
			}
			slog.Debug("dish cooked", "recipe", r.Name, "dish", o.dish.Name, "template", o.template)
			plates[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.Live != nil {
		var all []Annotation
		for _, p := range plates {
			all = append(all, p.Annotations...)
		}
		if err := PrintLive(c.Live, all); err != nil {
			return nil, err
		}
	}
	return plates, nil
}

func (c *Cooker) prepare(ctx context.Context, r *Recipe) ([]order, error) {
	vars := jinja2.NewContextFromAny(c.Vars)
	base := layer(jinja2.NewContextFromAny(r.Context), vars)
	answers, err := c.ask(r.Inputs, base)
	if err != nil {
		return nil, err
	}
	base = layer(base, answers)

	notes := slices.Clone(r.Annotations)
	if r.Script != nil {
		col := &collector{}
		if base, err = c.runScript(r, r.Script, base, col); err != nil {
			return nil, fmt.Errorf("recipe script: %w", err)
		}
		notes = append(notes, col.list()...)
	}

	var orders []order
	for _, d := range r.Dishes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d.When != "" {
			ok, err := holds(c.Env, d.When, base)
			if err != nil {
				return nil, fmt.Errorf("condition of dish %q: %w", d.Name, err)
			}
			if !ok {
				slog.Debug("dish skipped", "recipe", r.Name, "dish", d.Name, "when", d.When)
				continue
			}
		}
		dctx := layer(base, jinja2.NewContextFromAny(d.Context))
		answers, err := c.ask(d.Inputs, dctx)
		if err != nil {
			return nil, fmt.Errorf("dish %q: %w", d.Name, err)
		}
		dctx = layer(layer(dctx, answers), vars)
		name, err := d.Template.RenderWith(c.Env, dctx)
		if err != nil {
			return nil, fmt.Errorf("template name of dish %q: %w", d.Name, err)
		}
		orders = append(orders, order{
			dish:     d,
			template: strings.TrimSpace(name),
			ctx:      dctx,
			annots:   slices.Concat(notes, d.Annotations),
		})
	}
	return orders, nil
}

// ask collects the inputs not already answered by c.Vars.
func (c *Cooker) ask(inputs []prompt.Input, ctx jinja2.Context) (jinja2.Context, error) {
	var pending []prompt.Input
	for _, in := range inputs {
		if _, ok := c.Vars[in.Name]; !ok {
			pending = append(pending, in)
		}
	}
	answers, err := prompt.Collect(c.asker(), pending, func(in prompt.Input, so map[string]any) (bool, error) {
		return holds(c.Env, in.When, layer(ctx, jinja2.NewContextFromAny(so)))
	})
	if err != nil {
		return nil, err
	}
	return jinja2.NewContextFromAny(answers), nil
}

func (c *Cooker) runScript(r *Recipe, s *Script, ctx jinja2.Context, host starlark.Host) (jinja2.Context, error) {
	ev := starlark.NewEvaluatorWithHost(host)
	ev.LoadContext(ctx)
	var err error
	if s.File != "" {
		path := s.File
		if !filepath.IsAbs(path) && r.dir != "" {
			path = filepath.Join(r.dir, path)
		}
		_, err = ev.ExecFile(path, nil)
	} else {
		_, err = ev.ExecFile(r.Name+".star", s.Source)
	}
	if err != nil {
		return nil, err
	}
	return layer(ctx, ev.ExportContext()), nil
}

func (c *Cooker) cookDish(r *Recipe, o order) (Plate, error) {
	vars := o.ctx
	info, indexed := templates.Lookup(o.template)
	if indexed {
		vars = layer(info.Context(), vars)
	}
	annots := o.annots
	if o.dish.Script != nil {
		col := &collector{}
		var err error
		if vars, err = c.runScript(r, o.dish.Script, vars, col); err != nil {
			return Plate{}, fmt.Errorf("script: %w", err)
		}
		annots = slices.Concat(annots, col.list())
	}
	kept := c.Keep.Filter(annots)
	rendered := jinja2.ListValue{}
	if c.Live == nil {
		for _, a := range kept {
			rendered = append(rendered, a.value())
		}
	}
	vars = layer(vars, jinja2.Context{"annotations": rendered})
	if indexed {
		if err := info.Check(vars); err != nil {
			return Plate{}, err
		}
	}

	content, err := c.Env.Render(o.template, vars)
	if err != nil {
		return Plate{}, err
	}
	file := o.template
	if o.dish.Output != "" {
		if file, err = o.dish.Output.RenderWith(c.Env, vars); err != nil {
			return Plate{}, fmt.Errorf("output name: %w", err)
		}
		file = strings.TrimSpace(file)
	}
	return Plate{
		Dish:        o.dish.Name,
		Template:    o.template,
		File:        file,
		Content:     content,
		Annotations: kept,
	}, nil
}

// Serve prints the plates to w, separated by a blank line.
func Serve(w io.Writer, plates []Plate) error {
	for i, p := range plates {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		content := p.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if _, err := io.WriteString(w, content); err != nil {
			return err
		}
	}
	return nil
}

// Write stores each plate as a file below dir and returns the written paths.
func Write(dir string, plates []Plate) ([]string, error) {
	seen := map[string]string{}
	for _, p := range plates {
		if !filepath.IsLocal(p.File) {
			return nil, fmt.Errorf("dish %q: output %q escapes the output directory", p.Dish, p.File)
		}
		if other, dup := seen[p.File]; dup {
			return nil, fmt.Errorf("dishes %q and %q both write %s", other, p.Dish, p.File)
		}
		seen[p.File] = p.Dish
	}
	var paths []string
	for _, p := range plates {
		path := filepath.Join(dir, p.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		slog.Info("dish served", "dish", p.Dish, "file", path)
		paths = append(paths, path)
	}
	return paths, nil
}

package jinja2

import (
	"fmt"
	"slices"
	"strings"
)

// RenderTemplate evaluates t against ctx. A template that still extends a
// parent is resolved first. On error no partial output is returned.
func (e *Environment) RenderTemplate(t *Template, ctx Context) (string, error) {
	if t.Extends != "" {
		var err error
		if t, err = e.Resolve(t); err != nil {
			return "", err
		}
	}
	r := &renderer{
		evaluator: evaluator{env: e},
		template:  t.Name,
		includes:  []string{t.Name},
	}
	var buf strings.Builder
	if err := r.renderNodes(&buf, t.Nodes, rootFrame(ctx).push()); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type renderer struct {
	evaluator
	template string
	includes []string
}

func (r *renderer) renderNodes(buf *strings.Builder, nodes []Node, f *frame) error {
	for _, n := range nodes {
		switch t := n.(type) {
		case *TextNode:
			buf.WriteString(t.Text)
		case *RawNode:
			buf.WriteString(t.Text)
		case *OutputNode:
			v, err := r.evalOperand(t.Expr, f)
			if err != nil {
				return err
			}
			buf.WriteString(v.String())
		case *SetNode:
			v, err := r.eval(t.Expr, f)
			if err != nil {
				return err
			}
			vals, err := unpack(t.Names, v)
			if err != nil {
				return err
			}
			for i, name := range t.Names {
				f.set(name, vals[i])
			}
		case *IfNode:
			body, err := r.branch(t, f)
			if err != nil {
				return err
			}
			if err := r.renderNodes(buf, body, f); err != nil {
				return err
			}
		case *ForNode:
			if err := r.renderFor(buf, t, f); err != nil {
				return err
			}
		case *BlockNode:
			if err := r.renderNodes(buf, t.Body, f.push()); err != nil {
				return err
			}
		case *SuperNode:
			return &BlockNotFoundError{Block: t.Block, Template: r.template}
		case *ExtendsNode:
			// Resolved before rendering.
		case *IncludeNode:
			if err := r.renderInclude(buf, t, f); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unhandled node type: %T", n)
		}
	}
	return nil
}

// branch picks the body of the first true condition of an if node.
func (r *renderer) branch(t *IfNode, f *frame) ([]Node, error) {
	v, err := r.eval(t.Cond, f)
	if err != nil {
		return nil, err
	}
	if v.Truth() {
		return t.Then, nil
	}
	for _, el := range t.Elifs {
		v, err := r.eval(el.Cond, f)
		if err != nil {
			return nil, err
		}
		if v.Truth() {
			return el.Body, nil
		}
	}
	return t.Else, nil
}

func (r *renderer) renderFor(buf *strings.Builder, t *ForNode, f *frame) error {
	v, err := r.eval(t.Iterable, f)
	if err != nil {
		return err
	}
	var items []Value
	if u, ok := v.(Undefined); ok {
		if r.env.undefined == UndefinedStrict {
			return &UndefinedVariableError{Name: u.Name}
		}
	} else if items, err = iterateValue(v); err != nil {
		return err
	}
	if len(items) == 0 {
		return r.renderNodes(buf, t.Else, f)
	}
	for i, item := range items {
		vals, err := unpack(t.Targets, item)
		if err != nil {
			return err
		}
		iter := f.push()
		for j, name := range t.Targets {
			iter.set(name, vals[j])
		}
		iter.set("loop", &loopValue{index: i, items: items})
		if err := r.renderNodes(buf, t.Body, iter); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderInclude(buf *strings.Builder, t *IncludeNode, f *frame) error {
	if slices.Contains(r.includes, t.Template) {
		chain := append(slices.Clone(r.includes), t.Template)
		for i := range chain {
			chain[i] = displayName(chain[i])
		}
		return &InheritanceCycleError{Chain: chain}
	}
	tmpl, err := r.env.Compile(t.Template)
	if err != nil {
		return fmt.Errorf("including %q: %w", t.Template, err)
	}
	outer := r.template
	r.template = tmpl.Name
	r.includes = append(r.includes, t.Template)
	defer func() {
		r.template = outer
		r.includes = r.includes[:len(r.includes)-1]
	}()
	return r.renderNodes(buf, tmpl.Nodes, f.push())
}

// unpack binds a value to one or more assignment targets.
func unpack(names []string, v Value) ([]Value, error) {
	if len(names) == 1 {
		return []Value{v}, nil
	}
	l, ok := v.(ListValue)
	if !ok || len(l) != len(names) {
		return nil, &TypeMismatchError{Op: fmt.Sprintf("unpack into %d targets", len(names)), Left: typeName(v)}
	}
	return l, nil
}

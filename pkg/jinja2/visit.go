package jinja2

import (
	"bytes"
	"fmt"
)

type Visitor interface {
	Visit(n Node) error
}

// Walk visits n and then its children depth-first.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	walkAll := func(nodes []Node) error {
		for _, c := range nodes {
			if err := Walk(v, c); err != nil {
				return err
			}
		}
		return nil
	}
	switch t := n.(type) {
	case *Template:
		return walkAll(t.Nodes)
	case *IfNode:
		if err := walkAll(t.Then); err != nil {
			return err
		}
		for _, e := range t.Elifs {
			if err := walkAll(e.Body); err != nil {
				return err
			}
		}
		return walkAll(t.Else)
	case *ForNode:
		if err := walkAll(t.Body); err != nil {
			return err
		}
		return walkAll(t.Else)
	case *BlockNode:
		return walkAll(t.Body)
	}
	return nil
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Pretty returns a line-oriented string representation of the AST.
func Pretty(t *Template) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, t)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	ind := func() {
		for i := 0; i < indent; i++ {
			buf.WriteByte(' ')
		}
	}
	children := func(nodes []Node) {
		for _, c := range nodes {
			ppNode(buf, indent+2, c)
		}
	}
	switch t := n.(type) {
	case *Template:
		ind()
		if t.Extends != "" {
			fmt.Fprintf(buf, "Template(%q extends %q)\n", t.Name, t.Extends)
		} else {
			fmt.Fprintf(buf, "Template(%q)\n", t.Name)
		}
		children(t.Nodes)
	case *TextNode:
		ind()
		fmt.Fprintf(buf, "Text(%q)\n", t.Text)
	case *OutputNode:
		ind()
		fmt.Fprintf(buf, "Output(%s)\n", t.Expr)
	case *SetNode:
		ind()
		fmt.Fprintf(buf, "Set(%v = %s)\n", t.Names, t.Expr)
	case *IfNode:
		ind()
		fmt.Fprintf(buf, "If(%s)\n", t.Cond)
		children(t.Then)
		for _, e := range t.Elifs {
			ind()
			fmt.Fprintf(buf, "Elif(%s)\n", e.Cond)
			children(e.Body)
		}
		if len(t.Else) > 0 {
			ind()
			buf.WriteString("Else\n")
			children(t.Else)
		}
	case *ForNode:
		ind()
		fmt.Fprintf(buf, "For(%v in %s)\n", t.Targets, t.Iterable)
		children(t.Body)
		if len(t.Else) > 0 {
			ind()
			buf.WriteString("Else\n")
			children(t.Else)
		}
	case *RawNode:
		ind()
		fmt.Fprintf(buf, "Raw(%q)\n", t.Text)
	case *BlockNode:
		ind()
		fmt.Fprintf(buf, "Block(%s)\n", t.Name)
		children(t.Body)
	case *SuperNode:
		ind()
		fmt.Fprintf(buf, "Super(%s)\n", t.Block)
	case *ExtendsNode:
		ind()
		fmt.Fprintf(buf, "Extends(%q)\n", t.Template)
	case *IncludeNode:
		ind()
		fmt.Fprintf(buf, "Include(%q)\n", t.Template)
	}
}

package jinja2

import (
	"fmt"
	"sort"
)

// Resolve merges t with its extends chain using loader and the default
// environment settings.
func Resolve(t *Template, loader Loader) (*Template, error) {
	return defaultEnvironment.withLoader(loader).Resolve(t)
}

// Resolve loads the parent chain of t and merges the block tables into a new
// Template without an extends declaration. A template that extends nothing
// is returned unchanged.
func (e *Environment) Resolve(t *Template) (*Template, error) {
	if t.Extends == "" {
		return t, nil
	}
	chain := []*Template{t}
	names := []string{displayName(t.Name)}
	seen := map[string]bool{t.Name: true}
	for cur := t; cur.Extends != ""; {
		if seen[cur.Extends] {
			return nil, &InheritanceCycleError{Chain: append(names, cur.Extends)}
		}
		parent, err := e.Load(cur.Extends)
		if err != nil {
			return nil, fmt.Errorf("loading parent of %s: %w", displayName(cur.Name), err)
		}
		seen[parent.Name] = true
		names = append(names, parent.Name)
		chain = append(chain, parent)
		cur = parent
	}

	m := &merger{
		overrides: map[string][][]Node{},
		expanding: map[string]bool{},
		blocks:    map[string]*BlockNode{},
		root:      chain[len(chain)-1].Name,
	}
	// Nearest child first, root last.
	for _, tmpl := range chain {
		for name, b := range tmpl.Blocks {
			m.overrides[name] = append(m.overrides[name], b.Body)
		}
	}
	nodes, err := m.expand(chain[len(chain)-1].Nodes, "", 0)
	if err != nil {
		return nil, err
	}
	if e.strictBlocks {
		if err := checkOverrides(chain, m.blocks); err != nil {
			return nil, err
		}
	}
	return &Template{Name: t.Name, Nodes: nodes, Blocks: m.blocks}, nil
}

type merger struct {
	overrides map[string][][]Node
	expanding map[string]bool
	blocks    map[string]*BlockNode
	root      string
}

// expand copies nodes, replacing every block with its nearest override.
// block and level locate the body being expanded so super() can step one
// ancestor further.
func (m *merger) expand(nodes []Node, block string, level int) ([]Node, error) {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		switch t := n.(type) {
		case *ExtendsNode:
		case *BlockNode:
			if m.expanding[t.Name] {
				return nil, &InheritanceCycleError{Chain: []string{"block " + t.Name, "block " + t.Name}}
			}
			m.expanding[t.Name] = true
			body, err := m.expand(m.overrides[t.Name][0], t.Name, 0)
			m.expanding[t.Name] = false
			if err != nil {
				return nil, err
			}
			bn := &BlockNode{Name: t.Name, Body: body}
			if _, ok := m.blocks[t.Name]; !ok {
				m.blocks[t.Name] = bn
			}
			out = append(out, bn)
		case *SuperNode:
			bodies := m.overrides[t.Block]
			if t.Block != block || level+1 >= len(bodies) {
				return nil, &BlockNotFoundError{Block: t.Block, Template: m.root}
			}
			body, err := m.expand(bodies[level+1], t.Block, level+1)
			if err != nil {
				return nil, err
			}
			out = append(out, body...)
		case *IfNode:
			c := &IfNode{Cond: t.Cond}
			var err error
			if c.Then, err = m.expand(t.Then, block, level); err != nil {
				return nil, err
			}
			for _, el := range t.Elifs {
				body, err := m.expand(el.Body, block, level)
				if err != nil {
					return nil, err
				}
				c.Elifs = append(c.Elifs, ElifBranch{Cond: el.Cond, Body: body})
			}
			if c.Else, err = m.expand(t.Else, block, level); err != nil {
				return nil, err
			}
			out = append(out, c)
		case *ForNode:
			c := &ForNode{Targets: t.Targets, Iterable: t.Iterable}
			var err error
			if c.Body, err = m.expand(t.Body, block, level); err != nil {
				return nil, err
			}
			if c.Else, err = m.expand(t.Else, block, level); err != nil {
				return nil, err
			}
			out = append(out, c)
		default:
			out = append(out, n)
		}
	}
	return out, nil
}

// checkOverrides requires every block of a descendant to be defined by one of
// its ancestors, or to be nested in an override that made it into the merged
// tree. chain runs from the child to the root.
func checkOverrides(chain []*Template, merged map[string]*BlockNode) error {
	defined := map[string]bool{}
	for i := len(chain) - 1; i > 0; i-- {
		for name := range chain[i].Blocks {
			defined[name] = true
		}
		child := chain[i-1]
		for _, name := range sortedBlockNames(child.Blocks) {
			if _, ok := merged[name]; !ok && !defined[name] {
				return &BlockNotFoundError{Block: name, Template: child.Name}
			}
		}
	}
	return nil
}

func displayName(name string) string {
	if name == "" {
		return "<string>"
	}
	return name
}

func sortedBlockNames(blocks map[string]*BlockNode) []string {
	names := make([]string, 0, len(blocks))
	for name := range blocks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

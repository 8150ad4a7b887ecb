package jinja2

import (
	"errors"
	"fmt"
	"strings"
)

// Parse parses a template string with the default environment.
func Parse(src string) (*Template, error) {
	return defaultEnvironment.Parse("", src)
}

func parse(e *Environment, name, src string) (*Template, error) {
	p := &parser{
		env:    e,
		name:   name,
		l:      newLexer(src, e.syntax, e.whitespace),
		blocks: map[string]*BlockNode{},
	}
	nodes, _, _, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}
	return &Template{Name: name, Nodes: nodes, Extends: p.extends, Blocks: p.blocks}, nil
}

type parser struct {
	env  *Environment
	name string
	l    *lexer

	blocks     map[string]*BlockNode
	blockStack []string
	extends    string
	depth      int
	// seenContent is set once anything other than whitespace text or a
	// comment appeared at the top level; extends is refused afterwards.
	seenContent bool
}

// closingTags may only appear when a directive that expects them is open.
var closingTags = map[string]bool{
	"elif": true, "else": true, "endif": true, "endfor": true,
	"endblock": true, "endraw": true,
}

func (p *parser) errorf(pos int, format string, args ...any) error {
	line := 1 + strings.Count(p.l.src[:min(pos, len(p.l.src))], "\n")
	return &SyntaxError{Template: p.name, Line: line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) next() (token, error) {
	tok, err := p.l.next()
	if err != nil {
		var le *lexError
		if errors.As(err, &le) {
			return token{}, p.errorf(le.pos, "%s", le.msg)
		}
		return token{}, err
	}
	return tok, nil
}

func (p *parser) expr(pos int, src string) (Expr, error) {
	e, err := parseExpr(src, p.env.filters)
	if err != nil {
		return nil, p.errorf(pos, "%v in %q", err, strings.TrimSpace(src))
	}
	return e, nil
}

// parseNodes parses until an ending statement with a name in `until` is
// encountered. With an empty `until` it parses to EOF; otherwise reaching EOF
// returns an empty endTag and the caller reports the unclosed directive.
func (p *parser) parseNodes(until map[string]bool) (nodes []Node, endTag, endArgs string, err error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, "", "", err
		}
		switch tok.kind {
		case tokEOF:
			return nodes, "", "", nil
		case tokText:
			if tok.val == "" {
				continue
			}
			if p.depth == 0 && strings.TrimSpace(tok.val) != "" {
				p.seenContent = true
			}
			nodes = append(nodes, &TextNode{Text: tok.val})
		case tokComment:
		case tokVar:
			p.seenContent = true
			e, err := p.expr(tok.pos, tok.val)
			if err != nil {
				return nil, "", "", err
			}
			if isSuperCall(e) {
				if len(p.blockStack) == 0 {
					return nil, "", "", p.errorf(tok.pos, "super() used outside of a block")
				}
				nodes = append(nodes, &SuperNode{Block: p.blockStack[len(p.blockStack)-1]})
				continue
			}
			nodes = append(nodes, &OutputNode{Expr: e, Line: 1 + strings.Count(p.l.src[:tok.pos], "\n")})
		case tokStmt:
			name, args := splitNameArgs(tok.val)
			if until[name] {
				return nodes, name, args, nil
			}
			if closingTags[name] {
				return nil, "", "", p.errorf(tok.pos, "unexpected %q with no open directive", name)
			}
			if name == "extends" {
				n, err := p.parseExtends(tok.pos, args)
				if err != nil {
					return nil, "", "", err
				}
				nodes = append(nodes, n)
				continue
			}
			p.seenContent = true
			n, err := p.parseStatement(tok.pos, name, args)
			if err != nil {
				return nil, "", "", err
			}
			if n != nil {
				nodes = append(nodes, n)
			}
		}
	}
}

func (p *parser) parseStatement(pos int, name, args string) (Node, error) {
	switch name {
	case "raw":
		if args != "" {
			return nil, p.errorf(pos, "raw takes no arguments")
		}
		text, err := p.l.scanRaw(pos)
		if err != nil {
			return nil, p.errorf(pos, "%v", err)
		}
		return &RawNode{Text: text}, nil
	case "block":
		return p.parseBlock(pos, args)
	case "include":
		t, ok := parseQuoted(args)
		if !ok || t == "" {
			return nil, p.errorf(pos, "include expects a quoted template name")
		}
		return &IncludeNode{Template: t}, nil
	case "set":
		return p.parseSet(pos, args)
	case "if":
		return p.parseIf(pos, args)
	case "for":
		return p.parseFor(pos, args)
	case "":
		return nil, p.errorf(pos, "empty statement")
	}
	return nil, p.errorf(pos, "unknown statement %q", name)
}

func splitNameArgs(stmt string) (name, args string) {
	s := strings.TrimSpace(stmt)
	i := 0
	for i < len(s) && !isSpace(s[i]) {
		i++
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func (p *parser) parseExtends(pos int, args string) (*ExtendsNode, error) {
	switch {
	case p.depth > 0:
		return nil, p.errorf(pos, "extends must appear at the top level")
	case p.extends != "":
		return nil, p.errorf(pos, "extends declared more than once")
	case p.seenContent:
		return nil, p.errorf(pos, "extends must be the first directive in the template")
	}
	t, ok := parseQuoted(args)
	if !ok || t == "" {
		return nil, p.errorf(pos, "extends expects a quoted template name")
	}
	p.extends = t
	return &ExtendsNode{Template: t}, nil
}

func (p *parser) parseSet(pos int, args string) (*SetNode, error) {
	i := strings.IndexByte(args, '=')
	if i < 0 || (i+1 < len(args) && args[i+1] == '=') {
		return nil, p.errorf(pos, "invalid set statement, expected 'name = expr': %q", args)
	}
	names, err := p.targets(pos, args[:i])
	if err != nil {
		return nil, err
	}
	e, err := p.expr(pos, args[i+1:])
	if err != nil {
		return nil, err
	}
	return &SetNode{Names: names, Expr: e}, nil
}

// targets splits a comma-separated list of assignment targets.
func (p *parser) targets(pos int, s string) ([]string, error) {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if !isIdentifier(name) {
			return nil, p.errorf(pos, "invalid assignment target %q", name)
		}
		out = append(out, name)
	}
	return out, nil
}

func (p *parser) parseIf(pos int, args string) (*IfNode, error) {
	cond, err := p.expr(pos, args)
	if err != nil {
		return nil, err
	}
	p.depth++
	defer func() { p.depth-- }()

	n := &IfNode{Cond: cond}
	until := map[string]bool{"elif": true, "else": true, "endif": true}
	body, endTag, endArgs, err := p.parseNodes(until)
	if err != nil {
		return nil, err
	}
	n.Then = body
	for endTag == "elif" {
		c, err := p.expr(pos, endArgs)
		if err != nil {
			return nil, err
		}
		branch := ElifBranch{Cond: c}
		branch.Body, endTag, endArgs, err = p.parseNodes(until)
		if err != nil {
			return nil, err
		}
		n.Elifs = append(n.Elifs, branch)
	}
	if endTag == "else" {
		n.Else, endTag, _, err = p.parseNodes(map[string]bool{"endif": true})
		if err != nil {
			return nil, err
		}
	}
	if endTag != "endif" {
		return nil, p.errorf(pos, "if is never closed, expected endif")
	}
	return n, nil
}

func (p *parser) parseFor(pos int, args string) (*ForNode, error) {
	target, iterable, ok := splitForHeader(args)
	if !ok {
		return nil, p.errorf(pos, "invalid for statement, expected 'target in iterable': %q", args)
	}
	targets, err := p.targets(pos, target)
	if err != nil {
		return nil, err
	}
	iter, err := p.expr(pos, iterable)
	if err != nil {
		return nil, err
	}
	p.depth++
	defer func() { p.depth-- }()

	n := &ForNode{Targets: targets, Iterable: iter}
	var endTag string
	n.Body, endTag, _, err = p.parseNodes(map[string]bool{"else": true, "endfor": true})
	if err != nil {
		return nil, err
	}
	if endTag == "else" {
		n.Else, endTag, _, err = p.parseNodes(map[string]bool{"endfor": true})
		if err != nil {
			return nil, err
		}
	}
	if endTag != "endfor" {
		return nil, p.errorf(pos, "for is never closed, expected endfor")
	}
	return n, nil
}

// splitForHeader splits "target in iterable" at the first standalone in
// keyword. Targets hold only names and commas, so no quoting can hide it.
func splitForHeader(args string) (target, iterable string, ok bool) {
	for i := 1; i+2 < len(args); i++ {
		if args[i:i+2] != "in" || !isSpace(args[i-1]) {
			continue
		}
		if c := args[i+2]; isSpace(c) || c == '(' || c == '[' {
			target, iterable = args[:i], args[i+2:]
			return target, iterable, strings.TrimSpace(target) != "" && strings.TrimSpace(iterable) != ""
		}
	}
	return "", "", false
}

func (p *parser) parseBlock(pos int, args string) (*BlockNode, error) {
	name := strings.TrimSpace(args)
	if !isIdentifier(name) {
		return nil, p.errorf(pos, "block requires a name, got %q", name)
	}
	if _, dup := p.blocks[name]; dup {
		return nil, p.errorf(pos, "block %q defined twice", name)
	}
	bn := &BlockNode{Name: name}
	p.blocks[name] = bn

	p.depth++
	p.blockStack = append(p.blockStack, name)
	defer func() {
		p.depth--
		p.blockStack = p.blockStack[:len(p.blockStack)-1]
	}()

	body, endTag, endArgs, err := p.parseNodes(map[string]bool{"endblock": true})
	if err != nil {
		return nil, err
	}
	if endTag != "endblock" {
		return nil, p.errorf(pos, "block %q is never closed, expected endblock", name)
	}
	if endArgs != "" && endArgs != name {
		return nil, p.errorf(pos, "endblock %q does not match open block %q", endArgs, name)
	}
	bn.Body = body
	return bn, nil
}

func parseQuoted(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return "", false
	}
	return s[1 : len(s)-1], true
}

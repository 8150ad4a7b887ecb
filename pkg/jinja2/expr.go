package jinja2

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed expression from a variable tag or a statement argument.
// String returns a canonical source form, used by Pretty and error messages.
type Expr interface {
	String() string
	expr()
}

type literalExpr struct{ val Value }

type nameExpr struct{ name string }

type attrExpr struct {
	obj  Expr
	name string
}

type indexExpr struct{ obj, index Expr }

type callExpr struct {
	fn   Expr
	args []Expr
}

type filterExpr struct {
	arg  Expr
	name string
	args []Expr
}

type testExpr struct {
	arg    Expr
	name   string
	negate bool
}

type notExpr struct{ arg Expr }

type negExpr struct{ arg Expr }

type binaryExpr struct {
	op          string
	left, right Expr
}

// condExpr is `then if cond else els`; els is nil when omitted.
type condExpr struct{ then, cond, els Expr }

type listExpr struct{ items []Expr }

func (literalExpr) expr() {}
func (nameExpr) expr()    {}
func (attrExpr) expr()    {}
func (indexExpr) expr()   {}
func (callExpr) expr()    {}
func (filterExpr) expr()  {}
func (testExpr) expr()    {}
func (notExpr) expr()     {}
func (negExpr) expr()     {}
func (binaryExpr) expr()  {}
func (condExpr) expr()    {}
func (listExpr) expr()    {}

func (e literalExpr) String() string {
	switch v := e.val.(type) {
	case StringValue:
		return strconv.Quote(string(v))
	case NoneValue:
		return "none"
	}
	return e.val.String()
}
func (e nameExpr) String() string  { return e.name }
func (e attrExpr) String() string  { return e.obj.String() + "." + e.name }
func (e indexExpr) String() string { return e.obj.String() + "[" + e.index.String() + "]" }
func (e callExpr) String() string  { return e.fn.String() + "(" + joinExprs(e.args) + ")" }
func (e filterExpr) String() string {
	if len(e.args) == 0 {
		return e.arg.String() + "|" + e.name
	}
	return e.arg.String() + "|" + e.name + "(" + joinExprs(e.args) + ")"
}
func (e testExpr) String() string {
	if e.negate {
		return e.arg.String() + " is not " + e.name
	}
	return e.arg.String() + " is " + e.name
}
func (e notExpr) String() string    { return "not " + e.arg.String() }
func (e negExpr) String() string    { return "-" + e.arg.String() }
func (e binaryExpr) String() string { return "(" + e.left.String() + " " + e.op + " " + e.right.String() + ")" }
func (e condExpr) String() string {
	s := e.then.String() + " if " + e.cond.String()
	if e.els != nil {
		s += " else " + e.els.String()
	}
	return s
}
func (e listExpr) String() string { return "[" + joinExprs(e.items) + "]" }

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Expression tokens.

type exprTokKind int

const (
	etEOF exprTokKind = iota
	etName
	etString
	etInt
	etFloat
	etOp
)

type exprTok struct {
	kind exprTokKind
	val  string
}

var twoCharOps = []string{"==", "!=", "<=", ">="}

func tokenizeExpr(s string) ([]exprTok, error) {
	var toks []exprTok
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case isSpace(c):
			i++
		case c == '"' || c == '\'':
			val, n, err := scanString(s[i:])
			if err != nil {
				return nil, err
			}
			toks = append(toks, exprTok{kind: etString, val: val})
			i += n
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '_') {
				j++
			}
			kind := etInt
			if j+1 < len(s) && s[j] == '.' && s[j+1] >= '0' && s[j+1] <= '9' {
				kind = etFloat
				j++
				for j < len(s) && s[j] >= '0' && s[j] <= '9' {
					j++
				}
			}
			toks = append(toks, exprTok{kind: kind, val: strings.ReplaceAll(s[i:j], "_", "")})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			toks = append(toks, exprTok{kind: etName, val: s[i:j]})
			i = j
		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, exprTok{kind: etOp, val: op})
					i += 2
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			if !strings.ContainsRune("()[],.|<>+-", rune(c)) {
				return nil, fmt.Errorf("unexpected character %q in expression", c)
			}
			toks = append(toks, exprTok{kind: etOp, val: string(c)})
			i++
		}
	}
	return append(toks, exprTok{kind: etEOF}), nil
}

// scanString reads a quoted literal at the start of s and returns its value
// and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	q := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == q:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}

// knownTests are the names accepted after `is`.
var knownTests = map[string]func(Value) bool{
	"defined":   func(v Value) bool { _, ok := v.(Undefined); return !ok },
	"undefined": func(v Value) bool { _, ok := v.(Undefined); return ok },
	"none":      func(v Value) bool { _, ok := v.(NoneValue); return ok },
	"string":    func(v Value) bool { _, ok := v.(StringValue); return ok },
	"number": func(v Value) bool {
		switch v.(type) {
		case IntValue, FloatValue:
			return true
		}
		return false
	},
	"sequence": func(v Value) bool {
		switch v.(type) {
		case ListValue, StringValue:
			return true
		}
		return false
	},
	"mapping": func(v Value) bool { _, ok := v.(DictValue); return ok },
}

type exprParser struct {
	toks    []exprTok
	pos     int
	filters Filters
}

// parseExpr parses a complete expression; trailing tokens are an error.
func parseExpr(src string, filters Filters) (Expr, error) {
	toks, err := tokenizeExpr(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks, filters: filters}
	if p.peek().kind == etEOF {
		return nil, fmt.Errorf("empty expression")
	}
	e, err := p.parseCond()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != etEOF {
		return nil, fmt.Errorf("unexpected %q after expression", t.val)
	}
	return e, nil
}

func (p *exprParser) peek() exprTok { return p.toks[p.pos] }

func (p *exprParser) advance() exprTok {
	t := p.toks[p.pos]
	if t.kind != etEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) isName(name string) bool {
	t := p.peek()
	return t.kind == etName && t.val == name
}

func (p *exprParser) isOp(op string) bool {
	t := p.peek()
	return t.kind == etOp && t.val == op
}

func (p *exprParser) expectOp(op string) error {
	if !p.isOp(op) {
		t := p.peek()
		if t.kind == etEOF {
			return fmt.Errorf("expected %q, got end of expression", op)
		}
		return fmt.Errorf("expected %q, got %q", op, t.val)
	}
	p.advance()
	return nil
}

func (p *exprParser) parseCond() (Expr, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.isName("if") {
		return then, nil
	}
	p.advance()
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	var els Expr
	if p.isName("else") {
		p.advance()
		if els, err = p.parseCond(); err != nil {
			return nil, err
		}
	}
	return condExpr{then: then, cond: cond, els: els}, nil
}

func (p *exprParser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isName("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isName("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseNot() (Expr, error) {
	if p.isName("not") {
		p.advance()
		arg, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notExpr{arg: arg}, nil
	}
	return p.parseCompare()
}

func (p *exprParser) parseCompare() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		var op string
		switch {
		case t.kind == etOp && (t.val == "==" || t.val == "!=" || t.val == "<" || t.val == "<=" || t.val == ">" || t.val == ">="):
			op = t.val
			p.advance()
		case p.isName("in"):
			op = "in"
			p.advance()
		case p.isName("not") && p.toks[p.pos+1].kind == etName && p.toks[p.pos+1].val == "in":
			op = "not in"
			p.pos += 2
		case p.isName("is"):
			p.advance()
			negate := false
			if p.isName("not") {
				p.advance()
				negate = true
			}
			name := p.advance()
			if name.kind != etName {
				return nil, fmt.Errorf("expected test name after 'is'")
			}
			if _, ok := knownTests[name.val]; !ok {
				return nil, fmt.Errorf("unknown test %q", name.val)
			}
			left = testExpr{arg: left, name: name.val, negate: negate}
			continue
		default:
			return left, nil
		}
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
}

func (p *exprParser) parseAdd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.advance().val
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryExpr{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (Expr, error) {
	if p.isOp("-") {
		p.advance()
		arg, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := arg.(literalExpr); ok {
			switch v := lit.val.(type) {
			case IntValue:
				return literalExpr{val: -v}, nil
			case FloatValue:
				return literalExpr{val: -v}, nil
			}
		}
		return negExpr{arg: arg}, nil
	}
	return p.parseFilter()
}

func (p *exprParser) parseFilter() (Expr, error) {
	e, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		p.advance()
		name := p.advance()
		if name.kind != etName {
			return nil, fmt.Errorf("expected filter name after '|'")
		}
		if _, ok := p.filters[name.val]; !ok {
			return nil, fmt.Errorf("unknown filter %q", name.val)
		}
		var args []Expr
		if p.isOp("(") {
			p.advance()
			if args, err = p.parseArgs(")"); err != nil {
				return nil, err
			}
		}
		e = filterExpr{arg: e, name: name.val, args: args}
	}
	return e, nil
}

func (p *exprParser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.advance()
			t := p.advance()
			switch t.kind {
			case etName:
				e = attrExpr{obj: e, name: t.val}
			case etInt:
				n, _ := strconv.ParseInt(t.val, 10, 64)
				e = indexExpr{obj: e, index: literalExpr{val: IntValue(n)}}
			default:
				return nil, fmt.Errorf("expected attribute name after '.'")
			}
		case p.isOp("["):
			p.advance()
			idx, err := p.parseCond()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			e = indexExpr{obj: e, index: idx}
		case p.isOp("("):
			p.advance()
			args, err := p.parseArgs(")")
			if err != nil {
				return nil, err
			}
			e = callExpr{fn: e, args: args}
		default:
			return e, nil
		}
	}
}

// parseArgs parses comma-separated expressions up to and including the
// closing operator.
func (p *exprParser) parseArgs(closeOp string) ([]Expr, error) {
	var args []Expr
	for !p.isOp(closeOp) {
		a, err := p.parseCond()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.isOp(",") {
			p.advance()
			continue
		}
		if !p.isOp(closeOp) {
			return nil, p.expectOp(closeOp)
		}
	}
	p.advance()
	return args, nil
}

func (p *exprParser) parsePrimary() (Expr, error) {
	t := p.advance()
	switch t.kind {
	case etString:
		return literalExpr{val: StringValue(t.val)}, nil
	case etInt:
		n, err := strconv.ParseInt(t.val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", t.val)
		}
		return literalExpr{val: IntValue(n)}, nil
	case etFloat:
		f, err := strconv.ParseFloat(t.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q", t.val)
		}
		return literalExpr{val: FloatValue(f)}, nil
	case etName:
		switch t.val {
		case "true", "True":
			return literalExpr{val: BoolValue(true)}, nil
		case "false", "False":
			return literalExpr{val: BoolValue(false)}, nil
		case "none", "None":
			return literalExpr{val: NoneValue{}}, nil
		case "and", "or", "not", "in", "is", "if", "else":
			return nil, fmt.Errorf("unexpected keyword %q", t.val)
		}
		return nameExpr{name: t.val}, nil
	case etOp:
		switch t.val {
		case "(":
			if p.isOp(")") {
				p.advance()
				return listExpr{}, nil
			}
			first, err := p.parseCond()
			if err != nil {
				return nil, err
			}
			if p.isOp(")") {
				p.advance()
				return first, nil
			}
			if err := p.expectOp(","); err != nil {
				return nil, err
			}
			rest, err := p.parseArgs(")")
			if err != nil {
				return nil, err
			}
			return listExpr{items: append([]Expr{first}, rest...)}, nil
		case "[":
			items, err := p.parseArgs("]")
			if err != nil {
				return nil, err
			}
			return listExpr{items: items}, nil
		}
		return nil, fmt.Errorf("unexpected %q", t.val)
	}
	return nil, fmt.Errorf("unexpected end of expression")
}

// isSuperCall reports whether e is exactly `super()`.
func isSuperCall(e Expr) bool {
	c, ok := e.(callExpr)
	if !ok || len(c.args) != 0 {
		return false
	}
	n, ok := c.fn.(nameExpr)
	return ok && n.name == "super"
}

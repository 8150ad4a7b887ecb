package jinja2

// Node is one element of a template body.
type Node interface {
	node()
}

// Template is the root node produced by Parse. It is never modified after
// parsing; resolution builds a new Template.
type Template struct {
	Name    string
	Nodes   []Node
	Extends string
	// Blocks indexes every block the template defines, nested ones included.
	Blocks map[string]*BlockNode
}

// TextNode is template text outside any tag, after whitespace control.
type TextNode struct {
	Text string
}

// RawNode is the untouched body of a raw section.
type RawNode struct {
	Text string
}

// OutputNode is a {{ ... }} tag. Line is where the tag starts.
type OutputNode struct {
	Expr Expr
	Line int
}

// SetNode binds one name, or unpacks a list into several.
type SetNode struct {
	Names []string
	Expr  Expr
}

// IfNode holds the branches of an if tag. Else is nil when absent.
type IfNode struct {
	Cond  Expr
	Then  []Node
	Elifs []ElifBranch
	Else  []Node
}

type ElifBranch struct {
	Cond Expr
	Body []Node
}

// ForNode loops Body over Iterable. Else renders instead when there is
// nothing to iterate.
type ForNode struct {
	Targets  []string
	Iterable Expr
	Body     []Node
	Else     []Node
}

// BlockNode is a named region a child template may replace.
type BlockNode struct {
	Name string
	Body []Node
}

// SuperNode is {{ super() }} inside a block. Resolution replaces it with the
// parent's body of Block.
type SuperNode struct {
	Block string
}

// ExtendsNode names the parent template. Parse also records it in
// Template.Extends.
type ExtendsNode struct {
	Template string
}

// IncludeNode renders another template in place with the current scope.
type IncludeNode struct {
	Template string
}

func (*Template) node()    {}
func (*TextNode) node()    {}
func (*RawNode) node()     {}
func (*OutputNode) node()  {}
func (*SetNode) node()     {}
func (*IfNode) node()      {}
func (*ForNode) node()     {}
func (*BlockNode) node()   {}
func (*SuperNode) node()   {}
func (*ExtendsNode) node() {}
func (*IncludeNode) node() {}

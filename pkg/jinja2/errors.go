package jinja2

import (
	"fmt"
	"strings"
)

// SyntaxError reports malformed template source: unbalanced directives,
// misplaced extends, unknown statements or unparsable expressions.
type SyntaxError struct {
	Template string
	Line     int
	Msg      string
}

func (e *SyntaxError) Error() string {
	name := e.Template
	if name == "" {
		name = "<string>"
	}
	return fmt.Sprintf("%s:%d: syntax error: %s", name, e.Line, e.Msg)
}

// InheritanceCycleError reports a template that (indirectly) extends or
// includes itself. Chain lists the templates in the order they were visited.
type InheritanceCycleError struct {
	Chain []string
}

func (e *InheritanceCycleError) Error() string {
	return "template cycle: " + strings.Join(e.Chain, " -> ")
}

// UndefinedVariableError reports a lookup that could not be satisfied by the
// render context while the environment is in strict mode.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Name)
}

// TypeMismatchError reports an operation applied to values of the wrong kind.
// Right is empty for unary operations.
type TypeMismatchError struct {
	Op    string
	Left  string
	Right string
}

func (e *TypeMismatchError) Error() string {
	if e.Right == "" {
		return fmt.Sprintf("type mismatch: cannot %s %s", e.Op, e.Left)
	}
	return fmt.Sprintf("type mismatch: cannot %s %s and %s", e.Op, e.Left, e.Right)
}

// BlockNotFoundError reports a block override with no matching block in the
// parent chain, or a super() call with no parent block to expand.
type BlockNotFoundError struct {
	Block    string
	Template string
}

func (e *BlockNotFoundError) Error() string {
	if e.Template == "" {
		return fmt.Sprintf("block %q not found in any parent template", e.Block)
	}
	return fmt.Sprintf("block %q of template %q not found in any parent template", e.Block, e.Template)
}

type ErrTemplateNotFound struct{ Name string }

func (e ErrTemplateNotFound) Error() string { return "template not found: " + e.Name }

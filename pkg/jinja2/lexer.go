package jinja2

import (
	"fmt"
	"strings"
)

// The lexer scans template source and yields literal text and whole tags of
// the three delimiter forms: variables, statements and comments. Whitespace
// control is applied here, while scanning, so the parser only ever sees
// already-trimmed literal text.

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokText
	tokVar
	tokStmt
	tokComment
)

type token struct {
	kind tokenKind
	val  string
	pos  int // byte offset in source
}

type lexer struct {
	src string
	i   int
	n   int
	syn Syntax
	ws  Whitespace

	// trimNext is set by a "-" closing marker and strips all leading
	// whitespace of the next literal.
	trimNext bool
	// dropNewline is set after a statement or comment tag under TrimBlocks.
	dropNewline bool
}

// lexError carries the offset of the tag that could not be scanned.
type lexError struct {
	pos int
	msg string
}

func (e *lexError) Error() string { return e.msg }

func newLexer(src string, syn Syntax, ws Whitespace) *lexer {
	if ws.Has(StripTrailingNewline) {
		if strings.HasSuffix(src, "\r\n") {
			src = src[:len(src)-2]
		} else if strings.HasSuffix(src, "\n") {
			src = src[:len(src)-1]
		}
	}
	return &lexer{src: src, n: len(src), syn: syn, ws: ws}
}

// openingAt reports which tag opens at offset i, if any.
func (l *lexer) openingAt(i int) (tokenKind, int) {
	rest := l.src[i:]
	switch {
	case strings.HasPrefix(rest, l.syn.CommentStart):
		return tokComment, len(l.syn.CommentStart)
	case strings.HasPrefix(rest, l.syn.BlockStart):
		return tokStmt, len(l.syn.BlockStart)
	case strings.HasPrefix(rest, l.syn.VariableStart):
		return tokVar, len(l.syn.VariableStart)
	}
	return tokEOF, 0
}

func (l *lexer) closing(kind tokenKind) string {
	switch kind {
	case tokComment:
		return l.syn.CommentEnd
	case tokStmt:
		return l.syn.BlockEnd
	default:
		return l.syn.VariableEnd
	}
}

// next returns the next literal run or tag.
func (l *lexer) next() (token, error) {
	if l.i >= l.n {
		return token{kind: tokEOF, pos: l.i}, nil
	}
	start := l.i
	for l.i < l.n {
		kind, mlen := l.openingAt(l.i)
		if kind == tokEOF {
			l.i++
			continue
		}
		if l.i > start {
			return l.text(start, l.i, kind, mlen), nil
		}
		return l.tag(kind, mlen)
	}
	return l.text(start, l.n, tokEOF, 0), nil
}

// text builds a literal token for src[start:end]. next is the kind of tag
// that follows at end (tokEOF when the literal runs to the end of source).
func (l *lexer) text(start, end int, next tokenKind, mlen int) token {
	s := l.src[start:end]
	// A newline dropped by trim_blocks still starts the line that follows.
	lineStart := start == 0
	switch {
	case l.trimNext:
		s = strings.TrimLeft(s, " \t\r\n")
	case l.dropNewline:
		trimmed := trimFirstNewline(s)
		lineStart = lineStart || len(trimmed) < len(s)
		s = trimmed
	}
	l.trimNext, l.dropNewline = false, false

	if next != tokEOF {
		var mod byte
		if end+mlen < l.n {
			mod = l.src[end+mlen]
		}
		switch {
		case mod == '-':
			s = strings.TrimRight(s, " \t\r\n")
		case mod != '+' && next != tokVar && l.ws.Has(LstripBlocks):
			s = lstripLine(s, lineStart)
		}
	}
	return token{kind: tokText, val: s, pos: start}
}

// tag scans a whole tag starting at l.i and returns its inner content with
// whitespace-control modifiers removed.
func (l *lexer) tag(kind tokenKind, mlen int) (token, error) {
	start := l.i
	l.trimNext, l.dropNewline = false, false
	l.i += mlen
	if l.i < l.n && (l.src[l.i] == '-' || (kind != tokVar && l.src[l.i] == '+')) {
		l.i++
	}
	closeMarker := l.closing(kind)
	contentStart := l.i
	var quote byte
	for l.i < l.n {
		c := l.src[l.i]
		if quote != 0 {
			if c == '\\' {
				l.i += 2
				continue
			}
			if c == quote {
				quote = 0
			}
			l.i++
			continue
		}
		if kind != tokComment && (c == '"' || c == '\'') {
			quote = c
			l.i++
			continue
		}
		mod := byte(0)
		at := l.i
		if (c == '-' || c == '+') && strings.HasPrefix(l.src[l.i+1:], closeMarker) {
			mod = c
			at = l.i + 1
		} else if !strings.HasPrefix(l.src[l.i:], closeMarker) {
			l.i++
			continue
		}
		content := l.src[contentStart:l.i]
		l.i = at + len(closeMarker)
		if mod == '-' {
			l.trimNext = true
		} else if mod != '+' && kind != tokVar && l.ws.Has(TrimBlocks) {
			l.dropNewline = true
		}
		return token{kind: kind, val: content, pos: start}, nil
	}
	return token{}, &lexError{pos: start, msg: fmt.Sprintf("unterminated tag, expected %q", closeMarker)}
}

// scanRaw is called right after a raw statement tag. It returns the verbatim
// content up to the matching endraw tag and consumes that tag.
func (l *lexer) scanRaw(openPos int) (string, error) {
	from := l.i
	for search := from; search < l.n; {
		idx := strings.Index(l.src[search:], l.syn.BlockStart)
		if idx < 0 {
			break
		}
		at := search + idx
		p := at + len(l.syn.BlockStart)
		trimBefore := false
		if p < l.n && (l.src[p] == '-' || l.src[p] == '+') {
			trimBefore = l.src[p] == '-'
			p++
		}
		for p < l.n && isSpace(l.src[p]) {
			p++
		}
		if !strings.HasPrefix(l.src[p:], "endraw") {
			search = at + 1
			continue
		}
		p += len("endraw")
		for p < l.n && isSpace(l.src[p]) {
			p++
		}
		mod := byte(0)
		if p < l.n && (l.src[p] == '-' || l.src[p] == '+') {
			mod = l.src[p]
			p++
		}
		if !strings.HasPrefix(l.src[p:], l.syn.BlockEnd) {
			search = at + 1
			continue
		}
		content := l.src[from:at]
		switch {
		case l.trimNext:
			content = strings.TrimLeft(content, " \t\r\n")
		case l.dropNewline:
			content = trimFirstNewline(content)
		}
		l.trimNext, l.dropNewline = false, false
		if trimBefore {
			content = strings.TrimRight(content, " \t\r\n")
		}
		l.i = p + len(l.syn.BlockEnd)
		if mod == '-' {
			l.trimNext = true
		} else if mod != '+' && l.ws.Has(TrimBlocks) {
			l.dropNewline = true
		}
		return content, nil
	}
	return "", &lexError{pos: openPos, msg: "unterminated raw block, expected endraw"}
}

func trimFirstNewline(s string) string {
	if strings.HasPrefix(s, "\r\n") {
		return s[2:]
	}
	if strings.HasPrefix(s, "\n") {
		return s[1:]
	}
	return s
}

// lstripLine removes the spaces and tabs between the last line start and the
// end of s, when only such characters are there. lineStart tells whether s
// itself begins a line.
func lstripLine(s string, lineStart bool) string {
	nl := strings.LastIndexByte(s, '\n')
	if nl < 0 && !lineStart {
		return s
	}
	tail := s[nl+1:]
	if strings.Trim(tail, " \t") != "" {
		return s
	}
	return s[:nl+1]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

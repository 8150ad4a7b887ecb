package recipe

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/neurodesk/recpp/pkg/jinja2"
	v "github.com/neurodesk/recpp/pkg/validator"
)

// Annotation is a review note emitted into a skeleton, such as
// "PERF [CCS.9]: avoid premature pessimization".
type Annotation struct {
	Type string `yaml:"type"`
	Ref  string `yaml:"ref,omitempty"`
	Msg  string `yaml:"msg"`
}

func (a Annotation) Validate() error {
	return v.All(
		v.NotEmpty(a.Type, "annotation type"),
		v.NotEmpty(a.Msg, "annotation msg"),
		v.HasNoJinja(a.Msg, "annotation msg"),
	)
}

func (a Annotation) String() string {
	return fmt.Sprintf("%s [%s]: %s", a.Type, a.Ref, a.Msg)
}

func (a Annotation) value() jinja2.Value {
	return jinja2.DictValue{
		"type": jinja2.StringValue(a.Type),
		"ref":  jinja2.StringValue(a.Ref),
		"msg":  jinja2.StringValue(a.Msg),
	}
}

// Whitelist selects annotations by the words of their type. An empty list
// or "*" keeps everything.
type Whitelist []string

// ParseWhitelist splits a comma separated list such as "PERF,USA".
func ParseWhitelist(s string) Whitelist {
	var w Whitelist
	for _, word := range strings.Split(s, ",") {
		if word = strings.TrimSpace(word); word != "" {
			w = append(w, word)
		}
	}
	return w
}

// Keep reports whether a passes the whitelist. A word matches when it is a
// substring of the annotation type, so "REL" keeps "USA,REL".
func (w Whitelist) Keep(a Annotation) bool {
	if len(w) == 0 || slices.Contains(w, "*") {
		return true
	}
	for _, word := range w {
		if strings.Contains(a.Type, word) {
			return true
		}
	}
	return false
}

func (w Whitelist) Filter(annots []Annotation) []Annotation {
	out := make([]Annotation, 0, len(annots))
	for _, a := range annots {
		if w.Keep(a) {
			out = append(out, a)
		}
	}
	return out
}

func (w Whitelist) String() string {
	if len(w) == 0 {
		return "*"
	}
	return strings.Join(w, ",")
}

// collector receives the annotations of a context script.
type collector struct {
	mu     sync.Mutex
	annots []Annotation
}

func (c *collector) Annotate(kind, ref, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.annots = append(c.annots, Annotation{Type: kind, Ref: ref, Msg: msg})
}

func (c *collector) list() []Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.annots)
}

// PrintLive writes annotations the way they are shown while cooking, once
// each, in first-seen order.
func PrintLive(w io.Writer, annots []Annotation) error {
	seen := map[Annotation]bool{}
	for _, a := range annots {
		if seen[a] {
			continue
		}
		seen[a] = true
		if _, err := fmt.Fprintf(w, "(!) %s\n", a); err != nil {
			return err
		}
	}
	return nil
}

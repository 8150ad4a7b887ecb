package jinja2

import (
	"errors"
	"fmt"
	"io/fs"
)

// Loader maps template names to source text.
type Loader interface {
	Load(name string) (string, error)
}

type MemoryLoader map[string]string

func (m MemoryLoader) Load(name string) (string, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return "", ErrTemplateNotFound{name}
}

// FSLoader loads templates from any fs.FS, such as an embed.FS or os.DirFS.
type FSLoader struct {
	FS fs.FS
}

func (l FSLoader) Load(name string) (string, error) {
	if !fs.ValidPath(name) {
		return "", ErrTemplateNotFound{name}
	}
	b, err := fs.ReadFile(l.FS, name)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrTemplateNotFound{name}
	}
	if err != nil {
		return "", fmt.Errorf("reading template %q: %w", name, err)
	}
	return string(b), nil
}

// ChainLoader asks each loader in turn; the first one that has the template
// wins.
type ChainLoader []Loader

func (c ChainLoader) Load(name string) (string, error) {
	for _, l := range c {
		src, err := l.Load(name)
		if err == nil {
			return src, nil
		}
		var nf ErrTemplateNotFound
		if !errors.As(err, &nf) {
			return "", err
		}
	}
	return "", ErrTemplateNotFound{name}
}

package templates

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/neurodesk/recpp/pkg/netcache"
	v "github.com/neurodesk/recpp/pkg/validator"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

//go:embed cpp
var files embed.FS

const indexFile = "index.yaml"

// Origins reported by List.
const (
	OriginEmbedded = "embedded"
	OriginDir      = "dir"
)

// Info describes one template of the index.
type Info struct {
	Name        string         `yaml:"-"`
	Description string         `yaml:"description"`
	Abstract    bool           `yaml:"abstract,omitempty"`
	Required    []string       `yaml:"required,omitempty"`
	Defaults    map[string]any `yaml:"defaults,omitempty"`

	// Origin is where the source used for Name is found.
	Origin string `yaml:"-"`
}

func (i Info) Validate() error {
	return v.All(
		v.NotEmpty(i.Description, "description"),
		v.Map(i.Required, func(name string, key string) error {
			return v.Identifier(name, key)
		}, "required variables"),
		v.NoDuplicates(i.Required, "required variables"),
		v.MapDict(i.Defaults, func(key string, _ any) error {
			return v.Identifier(key, "default variable")
		}, "defaults"),
	)
}

// Context returns the template defaults as a render context.
func (i Info) Context() jinja2.Context {
	return jinja2.NewContextFromAny(i.Defaults)
}

// Check reports the required variables missing from ctx.
func (i Info) Check(ctx jinja2.Context) error {
	var missing []string
	for _, name := range i.Required {
		if _, ok := ctx[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("template %q requires %s", i.Name, strings.Join(missing, ", "))
	}
	return nil
}

var index = map[string]Info{}

// Embedded returns the built-in templates rooted at their directory.
func Embedded() fs.FS {
	sub, err := fs.Sub(files, "cpp")
	if err != nil {
		panic(err)
	}
	return sub
}

// Lookup returns the index entry of a template. Templates that only exist
// in an override directory have a zero Info.
func Lookup(name string) (Info, bool) {
	info, ok := index[name]
	return info, ok
}

// Source resolves template names against, in order, a local override
// directory, a remote base URL and the embedded defaults.
type Source struct {
	Dir     string
	BaseURL string
	Cache   *netcache.Cache
}

func (s Source) Validate() error {
	var errs []error
	if s.Dir != "" {
		if st, err := os.Stat(s.Dir); err != nil {
			errs = append(errs, fmt.Errorf("template directory: %w", err))
		} else if !st.IsDir() {
			errs = append(errs, fmt.Errorf("template directory %q is not a directory", s.Dir))
		}
	}
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("template url: %w", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("template url %q must be http or https", s.BaseURL))
		}
		if s.Cache == nil {
			errs = append(errs, fmt.Errorf("template url %q needs a cache", s.BaseURL))
		}
	}
	return errors.Join(errs...)
}

// Loader builds the lookup chain for this source. ctx bounds remote fetches.
func (s Source) Loader(ctx context.Context) jinja2.Loader {
	var chain jinja2.ChainLoader
	if s.Dir != "" {
		chain = append(chain, dirLoader{dir: s.Dir, fs: jinja2.FSLoader{FS: os.DirFS(s.Dir)}})
	}
	if s.BaseURL != "" {
		chain = append(chain, NewRemoteLoader(ctx, s.BaseURL, s.Cache))
	}
	return append(chain, embeddedLoader{jinja2.FSLoader{FS: Embedded()}})
}

// List returns the embedded templates and the files of the override
// directory, sorted by name. Remote templates cannot be enumerated.
func (s Source) List() ([]Info, error) {
	byName := map[string]Info{}
	for name, info := range index {
		info.Origin = OriginEmbedded
		byName[name] = info
	}
	if s.Dir != "" {
		entries, err := os.ReadDir(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("listing template directory: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			info := byName[name]
			info.Name = name
			info.Origin = OriginDir
			byName[name] = info
		}
	}
	out := make([]Info, 0, len(byName))
	for _, info := range byName {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

type dirLoader struct {
	dir string
	fs  jinja2.FSLoader
}

func (d dirLoader) Load(name string) (string, error) {
	src, err := d.fs.Load(name)
	if err == nil {
		slog.Debug("template override", "name", name, "dir", d.dir)
	}
	return src, err
}

// embeddedLoader hides the index from template lookups.
type embeddedLoader struct {
	fs jinja2.FSLoader
}

func (e embeddedLoader) Load(name string) (string, error) {
	if name == indexFile {
		return "", jinja2.ErrTemplateNotFound{Name: name}
	}
	return e.fs.Load(name)
}

// RemoteLoader fetches templates below a base URL through an HTTP cache.
// Each name is fetched at most once per loader.
type RemoteLoader struct {
	// jinja2.Loader has no context parameter, so fetches run under the
	// context the loader was built with.
	ctx     context.Context
	baseURL string
	cache   *netcache.Cache

	group singleflight.Group
	mu    sync.Mutex
	seen  map[string]string
}

func NewRemoteLoader(ctx context.Context, baseURL string, cache *netcache.Cache) *RemoteLoader {
	return &RemoteLoader{
		ctx:     ctx,
		baseURL: baseURL,
		cache:   cache,
		seen:    map[string]string{},
	}
}

func (r *RemoteLoader) Load(name string) (string, error) {
	if !fs.ValidPath(name) || name == "." {
		return "", jinja2.ErrTemplateNotFound{Name: name}
	}
	r.mu.Lock()
	src, ok := r.seen[name]
	r.mu.Unlock()
	if ok {
		return src, nil
	}
	res, err, _ := r.group.Do(name, func() (any, error) {
		u, err := url.JoinPath(r.baseURL, name)
		if err != nil {
			return nil, err
		}
		b, fromCache, err := r.cache.GetBytes(r.ctx, u)
		if err != nil {
			return nil, err
		}
		slog.Debug("remote template", "name", name, "url", u, "cached", fromCache)
		r.mu.Lock()
		r.seen[name] = string(b)
		r.mu.Unlock()
		return string(b), nil
	})
	if errors.Is(err, netcache.ErrNotFound) {
		return "", jinja2.ErrTemplateNotFound{Name: name}
	}
	if err != nil {
		return "", fmt.Errorf("fetching template %q: %w", name, err)
	}
	return res.(string), nil
}

func init() {
	content, err := files.ReadFile("cpp/" + indexFile)
	if err != nil {
		panic(err)
	}
	var entries map[string]Info
	dec := yaml.NewDecoder(strings.NewReader(string(content)))
	dec.KnownFields(true)
	if err := dec.Decode(&entries); err != nil {
		panic(fmt.Errorf("failed to decode template index: %w", err))
	}
	for name, info := range entries {
		if _, err := fs.Stat(Embedded(), name); err != nil {
			panic(fmt.Errorf("template index names %q: %w", name, err))
		}
		if err := info.Validate(); err != nil {
			panic(fmt.Errorf("invalid template index entry %q: %w", name, err))
		}
		info.Name = name
		index[name] = info
	}
}

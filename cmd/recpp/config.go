package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/neurodesk/recpp/pkg/jinja2"
	"github.com/neurodesk/recpp/pkg/netcache"
	"github.com/neurodesk/recpp/pkg/templates"
	v "github.com/neurodesk/recpp/pkg/validator"

	"github.com/spf13/viper"
)

// Config is the merged recpp configuration.
type Config struct {
	TemplateDir  string     `mapstructure:"template_dir" yaml:"template_dir,omitempty"`
	TemplateURL  string     `mapstructure:"template_url" yaml:"template_url,omitempty"`
	CacheDir     string     `mapstructure:"cache_dir" yaml:"cache_dir,omitempty"`
	Strict       bool       `mapstructure:"strict" yaml:"strict"`
	TrimBlocks   bool       `mapstructure:"trim_blocks" yaml:"trim_blocks"`
	LstripBlocks bool       `mapstructure:"lstrip_blocks" yaml:"lstrip_blocks"`
	StrictBlocks bool       `mapstructure:"strict_blocks" yaml:"strict_blocks"`
	Delimiters   Delimiters `mapstructure:"delimiters" yaml:"delimiters,omitempty"`
	// Jobs bounds the dishes cooked at once; zero means one per CPU.
	Jobs int `mapstructure:"jobs" yaml:"jobs,omitempty"`
}

// Delimiters overrides the template markers. Empty fields keep the default.
type Delimiters struct {
	BlockStart    string `mapstructure:"block_start" yaml:"block_start,omitempty"`
	BlockEnd      string `mapstructure:"block_end" yaml:"block_end,omitempty"`
	VariableStart string `mapstructure:"variable_start" yaml:"variable_start,omitempty"`
	VariableEnd   string `mapstructure:"variable_end" yaml:"variable_end,omitempty"`
	CommentStart  string `mapstructure:"comment_start" yaml:"comment_start,omitempty"`
	CommentEnd    string `mapstructure:"comment_end" yaml:"comment_end,omitempty"`
}

func (d Delimiters) syntax() jinja2.Syntax {
	s := jinja2.DefaultSyntax
	return jinja2.Syntax{
		BlockStart:    cmp.Or(d.BlockStart, s.BlockStart),
		BlockEnd:      cmp.Or(d.BlockEnd, s.BlockEnd),
		VariableStart: cmp.Or(d.VariableStart, s.VariableStart),
		VariableEnd:   cmp.Or(d.VariableEnd, s.VariableEnd),
		CommentStart:  cmp.Or(d.CommentStart, s.CommentStart),
		CommentEnd:    cmp.Or(d.CommentEnd, s.CommentEnd),
	}
}

func (c Config) Validate() error {
	var jobs error
	if c.Jobs < 0 {
		jobs = fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	return v.All(
		c.Source().Validate(),
		jobs,
	)
}

// Source returns where templates are looked up.
func (c Config) Source() templates.Source {
	s := templates.Source{Dir: c.TemplateDir, BaseURL: c.TemplateURL}
	if c.TemplateURL != "" {
		s.Cache = netcache.New(c.cacheDir())
	}
	return s
}

func (c Config) cacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "recpp")
	}
	return filepath.Join(os.TempDir(), "recpp-cache")
}

// Environment builds the template environment described by c. ctx bounds
// remote template fetches.
func (c Config) Environment(ctx context.Context) (*jinja2.Environment, error) {
	var ws jinja2.Whitespace
	if c.TrimBlocks {
		ws |= jinja2.TrimBlocks
	}
	if c.LstripBlocks {
		ws |= jinja2.LstripBlocks
	}
	undefined := jinja2.UndefinedLenient
	if c.Strict {
		undefined = jinja2.UndefinedStrict
	}
	return jinja2.NewEnvironment(
		jinja2.WithSyntax(c.Delimiters.syntax()),
		jinja2.WithWhitespace(ws),
		jinja2.WithUndefined(undefined),
		jinja2.WithStrictBlocks(c.StrictBlocks),
		jinja2.WithLoader(c.Source().Loader(ctx)),
	)
}

// loadConfig merges defaults, the config file, RECPP_* variables and bound
// flags. An explicit path must exist; the default recpp.yaml is optional.
func loadConfig(vp *viper.Viper, path string) (Config, error) {
	vp.SetDefault("strict", true)
	vp.SetDefault("jobs", 0)
	for _, key := range []string{"block_start", "block_end", "variable_start", "variable_end", "comment_start", "comment_end"} {
		vp.SetDefault("delimiters."+key, "")
	}
	vp.SetEnvPrefix("RECPP")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vp.AutomaticEnv()

	if path != "" {
		vp.SetConfigFile(path)
		if err := vp.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	} else {
		vp.SetConfigName("recpp")
		vp.SetConfigType("yaml")
		vp.AddConfigPath(".")
		if err := vp.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return Config{}, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

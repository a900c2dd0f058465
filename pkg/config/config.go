// Package config loads stemma settings.
//
// Settings come from three places, later ones winning:
//
//  1. the built-in defaults ([Default]),
//  2. a TOML file, by default $XDG_CONFIG_HOME/stemma/config.toml,
//  3. STEMMA_* environment variables ([Env]).
//
// Command-line flags are applied on top by the CLI. The merged result is
// checked with struct tags before use.
//
// A config file looks like this:
//
//	[source]
//	kind = "api"
//	api_url = "https://family.example.com/api"
//	timeout = "15s"
//
//	[render]
//	background = "#1a1a2e"
//	jpeg_quality = 90
//
//	[cache]
//	kind = "redis"
//	redis_addr = "localhost:6379"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/layout"
	"github.com/matzehuels/stemma/pkg/render"
	"github.com/matzehuels/stemma/pkg/source"
)

const appName = "stemma"

// Source kinds.
const (
	SourceAPI   = "api"
	SourceFile  = "file"
	SourceMongo = "mongo"
)

// Cache kinds.
const (
	CacheNone  = "none"
	CacheFile  = "file"
	CacheRedis = "redis"
)

// Config is the complete stemma configuration.
type Config struct {
	Source SourceConfig `toml:"source"`
	Layout LayoutConfig `toml:"layout"`
	Render RenderConfig `toml:"render"`
	Cache  CacheConfig  `toml:"cache"`
	Server ServerConfig `toml:"server"`
}

// SourceConfig selects where trees are read from.
type SourceConfig struct {
	Kind    string        `toml:"kind" validate:"oneof=api file mongo"`
	TreeID  int64         `toml:"tree_id" validate:"gte=0"`
	APIURL  string        `toml:"api_url" validate:"required_if=Kind api"`
	Token   string        `toml:"token"`
	Timeout time.Duration `toml:"timeout" validate:"gte=0"`

	File string `toml:"file" validate:"required_if=Kind file"`

	MongoURI      string `toml:"mongo_uri" validate:"required_if=Kind mongo"`
	MongoDatabase string `toml:"mongo_database" validate:"required_if=Kind mongo"`
}

// LayoutConfig holds the spacing of the tree layout.
type LayoutConfig struct {
	LevelHeight       float64 `toml:"level_height" validate:"gt=0"`
	NodeSpacing       float64 `toml:"node_spacing" validate:"gt=0"`
	SiblingSeparation float64 `toml:"sibling_separation" validate:"gt=0"`
	CousinSeparation  float64 `toml:"cousin_separation" validate:"gt=0"`
	// Width, when positive, stretches the layout to exactly this width.
	Width float64 `toml:"width" validate:"gte=0"`
}

// RenderConfig holds drawing, viewing and export settings.
type RenderConfig struct {
	NodeRadius   float64 `toml:"node_radius" validate:"gt=0"`
	SpouseOffset float64 `toml:"spouse_offset" validate:"gt=0"`
	Background   string  `toml:"background" validate:"hexcolor"`

	MinZoom        float64 `toml:"min_zoom" validate:"gt=0"`
	MaxZoom        float64 `toml:"max_zoom" validate:"gtefield=MinZoom"`
	ViewportWidth  float64 `toml:"viewport_width" validate:"gt=0"`
	ViewportHeight float64 `toml:"viewport_height" validate:"gt=0"`

	ExportPadding float64 `toml:"export_padding" validate:"gte=0"`
	JPEGQuality   int     `toml:"jpeg_quality" validate:"min=1,max=100"`

	// PhotoBase resolves relative profile photo paths. Empty disables photos.
	PhotoBase string `toml:"photo_base"`
}

// CacheConfig selects the render and export cache.
type CacheConfig struct {
	Kind      string        `toml:"kind" validate:"oneof=none file redis"`
	Dir       string        `toml:"dir"`
	RedisAddr string        `toml:"redis_addr" validate:"required_if=Kind redis"`
	RedisDB   int           `toml:"redis_db" validate:"gte=0"`
	TTL       time.Duration `toml:"ttl" validate:"gte=0"`
}

// ServerConfig configures `stemma serve`.
type ServerConfig struct {
	Addr         string        `toml:"addr" validate:"required"`
	ReadTimeout  time.Duration `toml:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `toml:"write_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Kind:          SourceAPI,
			APIURL:        source.DefaultAPIURL,
			Timeout:       source.DefaultTimeout,
			MongoDatabase: source.DefaultMongoDatabase,
		},
		Layout: LayoutConfig{
			LevelHeight:       layout.DefaultLevelHeight,
			NodeSpacing:       layout.DefaultNodeSpacing,
			SiblingSeparation: layout.DefaultSiblingSeparation,
			CousinSeparation:  layout.DefaultCousinSeparation,
		},
		Render: RenderConfig{
			NodeRadius:     layout.DefaultNodeRadius,
			SpouseOffset:   layout.DefaultSpouseOffset,
			Background:     render.DefaultBackground,
			MinZoom:        0.1,
			MaxZoom:        3,
			ViewportWidth:  1200,
			ViewportHeight: 600,
			ExportPadding:  render.DefaultPadding,
			JPEGQuality:    95,
		},
		Cache: CacheConfig{
			Kind: CacheFile,
			TTL:  24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/stemma/config.toml, falling back to
// ~/.config.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// DefaultCacheDir returns $XDG_CACHE_HOME/stemma, falling back to ~/.cache.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// Load reads the config at path on top of the defaults, applies the
// environment and validates the result. With an empty path the default
// location is used, and a missing file there is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, fmt.Errorf("config path: %w", err)
		}
		path = p
	}

	if err := cfg.decodeFile(path); err != nil {
		switch {
		case !os.IsNotExist(err):
			return cfg, err
		case explicit:
			return cfg, errors.Wrap(errors.ErrCodeNotFound, err, "config %s does not exist", path)
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode parses TOML data on top of cfg. Unknown keys are an error.
func (cfg *Config) Decode(data string) error {
	md, err := toml.Decode(data, cfg)
	return checkDecode(md, err, "config")
}

func (cfg *Config) decodeFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "read config %s", path)
	}
	md, err := toml.DecodeFile(path, cfg)
	return checkDecode(md, err, path)
}

func checkDecode(md toml.MetaData, err error, name string) error {
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "parse %s", name)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New(errors.ErrCodeInvalidFormat, "%s: unknown keys %s", name, strings.Join(keys, ", "))
	}
	return nil
}

// Environment variables read by [Config.ApplyEnv].
const (
	EnvAPIURL    = "STEMMA_API_URL"
	EnvAPIToken  = "STEMMA_API_TOKEN"
	EnvMongoURI  = "STEMMA_MONGO_URI"
	EnvRedisAddr = "STEMMA_REDIS_ADDR"
)

// ApplyEnv overrides settings from the environment. Setting a Mongo URI or
// Redis address also switches the source or cache kind.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIURL); ok && v != "" {
		cfg.Source.APIURL = v
	}
	if v, ok := lookup(EnvAPIToken); ok {
		cfg.Source.Token = v
	}
	if v, ok := lookup(EnvMongoURI); ok && v != "" {
		cfg.Source.Kind, cfg.Source.MongoURI = SourceMongo, v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		cfg.Cache.Kind, cfg.Cache.RedisAddr = CacheRedis, v
	}
}

var configValidate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks every section. The first problem is reported by its TOML
// key, e.g. "render.jpeg_quality".
func (cfg Config) Validate() error {
	if err := configValidate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			key := strings.TrimPrefix(fe.Namespace(), "Config.")
			return errors.New(errors.ErrCodeInvalidInput, "config %s: %s", key, describe(fe))
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "config")
	}
	if cfg.Source.Kind == SourceAPI {
		if err := errors.ValidateURL(cfg.Source.APIURL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "config source.api_url")
		}
	}
	if cfg.Render.PhotoBase != "" {
		if err := errors.ValidateURL(cfg.Render.PhotoBase); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "config render.photo_base")
		}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %v", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "hexcolor":
		return fmt.Sprintf("%q is not a hex color", fe.Value())
	case "gtefield":
		return fmt.Sprintf("must not be below %s, got %v", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("must be %s %s, got %v", fe.Tag(), fe.Param(), fe.Value())
	}
}

// LayoutOptions returns the layout settings.
func (cfg Config) LayoutOptions() layout.Options {
	return layout.Options{
		LevelHeight:       cfg.Layout.LevelHeight,
		NodeSpacing:       cfg.Layout.NodeSpacing,
		Width:             cfg.Layout.Width,
		SiblingSeparation: cfg.Layout.SiblingSeparation,
		CousinSeparation:  cfg.Layout.CousinSeparation,
		SpouseOffset:      cfg.Render.SpouseOffset,
		NodeRadius:        cfg.Render.NodeRadius,
	}
}

// Theme returns the default theme with the configured background.
func (cfg Config) Theme() render.Theme {
	th := render.DefaultTheme()
	th.Background = cfg.Render.Background
	return th
}

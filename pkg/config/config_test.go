package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/layout"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
[source]
kind = "file"
file = "family.yaml"
tree_id = 3
timeout = "3s"

[layout]
level_height = 200

[render]
background = "#000000"
jpeg_quality = 80

[cache]
kind = "none"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	clearEnv(t)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Kind != SourceFile || cfg.Source.File != "family.yaml" || cfg.Source.TreeID != 3 {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Source.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v", cfg.Source.Timeout)
	}
	if cfg.Layout.LevelHeight != 200 || cfg.Layout.NodeSpacing != layout.DefaultNodeSpacing {
		t.Errorf("Layout = %+v", cfg.Layout)
	}
	if cfg.Render.JPEGQuality != 80 || cfg.Theme().Background != "#000000" {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Cache.Kind != CacheNone {
		t.Errorf("Cache.Kind = %q", cfg.Cache.Kind)
	}

	opts := cfg.LayoutOptions()
	if opts.LevelHeight != 200 || opts.NodeRadius != layout.DefaultNodeRadius || opts.SpouseOffset != layout.DefaultSpouseOffset {
		t.Errorf("LayoutOptions() = %+v", opts)
	}
}

func TestLoadMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load with no default file: %v", err)
	}
	if cfg.Source.Kind != SourceAPI {
		t.Errorf("expected defaults, got %+v", cfg.Source)
	}

	_, err = Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("Load(missing) = %v", err)
	}
}

func TestLoadDefaultPath(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "stemma"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stemma", "config.toml"), []byte("[server]\naddr = \":9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	path, err := DefaultPath()
	if err != nil || path != filepath.Join(dir, "stemma", "config.toml") {
		t.Fatalf("DefaultPath() = %q, %v", path, err)
	}
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"syntax", "[source\nkind = 1"},
		{"unknown key", "[render]\nbackgound = \"#000\""},
		{"wrong type", "[layout]\nlevel_height = \"tall\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			if err := cfg.Decode(tt.data); !errors.Is(err, errors.ErrCodeInvalidFormat) {
				t.Errorf("Decode = %v", err)
			}
		})
	}

	cfg := Default()
	err := cfg.Decode("[render]\nbackgound = \"#000\"")
	if err == nil || !strings.Contains(err.Error(), "render.backgound") {
		t.Errorf("unknown key error should name the key: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		key    string
	}{
		{"source kind", func(c *Config) { c.Source.Kind = "sql" }, "source.kind"},
		{"file without path", func(c *Config) { c.Source.Kind = SourceFile }, "source.file"},
		{"mongo without uri", func(c *Config) { c.Source.Kind = SourceMongo }, "source.mongo_uri"},
		{"api url scheme", func(c *Config) { c.Source.APIURL = "ftp://x" }, "source.api_url"},
		{"level height", func(c *Config) { c.Layout.LevelHeight = 0 }, "layout.level_height"},
		{"background", func(c *Config) { c.Render.Background = "navy" }, "render.background"},
		{"zoom range", func(c *Config) { c.Render.MaxZoom = 0.05 }, "render.max_zoom"},
		{"jpeg quality", func(c *Config) { c.Render.JPEGQuality = 101 }, "render.jpeg_quality"},
		{"photo base", func(c *Config) { c.Render.PhotoBase = "photos/" }, "render.photo_base"},
		{"cache kind", func(c *Config) { c.Cache.Kind = "memcached" }, "cache.kind"},
		{"redis without addr", func(c *Config) { c.Cache.Kind = CacheRedis }, "cache.redis_addr"},
		{"server addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, errors.ErrCodeInvalidInput) {
				t.Fatalf("Validate() = %v", err)
			}
			if !strings.Contains(err.Error(), tt.key) {
				t.Errorf("error %q should name %s", err, tt.key)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAPIURL:    "https://family.example.com/api",
		EnvAPIToken:  "secret",
		EnvRedisAddr: "redis:6379",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Source.APIURL != env[EnvAPIURL] || cfg.Source.Token != "secret" {
		t.Errorf("Source = %+v", cfg.Source)
	}
	if cfg.Source.Kind != SourceAPI {
		t.Errorf("Source.Kind = %q", cfg.Source.Kind)
	}
	if cfg.Cache.Kind != CacheRedis || cfg.Cache.RedisAddr != "redis:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}

	env = map[string]string{EnvMongoURI: "mongodb://localhost:27017"}
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if cfg.Source.Kind != SourceMongo || cfg.Source.MongoURI != env[EnvMongoURI] {
		t.Errorf("Source after mongo env = %+v", cfg.Source)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestDefaultCacheDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)
	got, err := DefaultCacheDir()
	if err != nil || got != filepath.Join(dir, "stemma") {
		t.Errorf("DefaultCacheDir() = %q, %v", got, err)
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvAPIURL, EnvAPIToken, EnvMongoURI, EnvRedisAddr} {
		t.Setenv(k, "")
	}
}

package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/stemma/pkg/observability"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || hit || data != nil {
		t.Errorf("Get = %q, %v, %v; want miss", data, hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}

	if _, hit, _ := c.Get(ctx, "export:abc"); hit {
		t.Error("empty cache should miss")
	}
	if err := c.Set(ctx, "export:abc", []byte("jpeg bytes"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "export:abc")
	if err != nil || !hit || string(data) != "jpeg bytes" {
		t.Fatalf("Get = %q, %v, %v", data, hit, err)
	}

	if err := c.Delete(ctx, "export:abc"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "export:abc"); hit {
		t.Error("deleted entry still present")
	}
	if err := c.Delete(ctx, "export:abc"); err != nil {
		t.Errorf("Delete of missing key error: %v", err)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set(ctx, "k", []byte("v"), time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); !hit {
		t.Fatal("fresh entry should hit")
	}
	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	c, _ := NewFileCache(t.TempDir())
	c.Set(ctx, "k", []byte("v"), 0)
	os.WriteFile(c.path("k"), []byte("{not json"), 0o644)

	if _, hit, err := c.Get(ctx, "k"); hit || err != nil {
		t.Errorf("corrupt entry: hit=%v err=%v, want clean miss", hit, err)
	}
}

func TestFileCacheCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := NewFileCache(t.TempDir())
	if err := c.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Error("Set with canceled context should fail")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	if h1 != Hash([]byte("hello")) {
		t.Error("Hash should be deterministic")
	}
	if h1 == Hash([]byte("world")) {
		t.Error("Different inputs should produce different hashes")
	}
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}

	a, _ := HashJSON(map[string]int{"x": 1})
	b, _ := HashJSON(map[string]int{"x": 2})
	if a == b {
		t.Error("HashJSON should differ for different values")
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	hd := k.ExportKey("layout1", ExportKeyOpts{Quality: "HD", Scale: 2, JPEG: 95})
	uhd := k.ExportKey("layout1", ExportKeyOpts{Quality: "4K", Scale: 4, JPEG: 95})
	if hd == uhd {
		t.Error("different export options should produce different keys")
	}
	if hd != k.ExportKey("layout1", ExportKeyOpts{Quality: "HD", Scale: 2, JPEG: 95}) {
		t.Error("ExportKey should be deterministic")
	}
	if !strings.HasPrefix(hd, "export:") {
		t.Errorf("ExportKey = %s", hd)
	}

	if k.RenderKey("layout1", RenderKeyOpts{Format: "svg"}) == k.RenderKey("layout2", RenderKeyOpts{Format: "svg"}) {
		t.Error("different layouts should produce different keys")
	}
}

func TestScopedKeyer(t *testing.T) {
	scoped := NewScopedKeyer(nil, "stemma:test:")
	key := scoped.RenderKey("h", RenderKeyOpts{Format: "png"})
	if !strings.HasPrefix(key, "stemma:test:render:") {
		t.Errorf("ScopedKeyer RenderKey should be prefixed: %s", key)
	}
	if got, want := key, "stemma:test:"+NewDefaultKeyer().RenderKey("h", RenderKeyOpts{Format: "png"}); got != want {
		t.Errorf("RenderKey = %s, want %s", got, want)
	}
}

type countingHooks struct {
	observability.NoopCacheHooks
	hits, misses, sets int
}

func (h *countingHooks) OnCacheHit(context.Context, string)      { h.hits++ }
func (h *countingHooks) OnCacheMiss(context.Context, string)     { h.misses++ }
func (h *countingHooks) OnCacheSet(context.Context, string, int) { h.sets++ }

func TestInstrumented(t *testing.T) {
	hooks := &countingHooks{}
	observability.SetCacheHooks(hooks)
	defer observability.Reset()

	ctx := context.Background()
	fc, _ := NewFileCache(t.TempDir())
	c := Instrumented(fc, "export")
	c.Get(ctx, "k")
	c.Set(ctx, "k", []byte("v"), 0)
	c.Get(ctx, "k")

	if hooks.hits != 1 || hooks.misses != 1 || hooks.sets != 1 {
		t.Errorf("hooks = %+v", hooks)
	}
}

func TestRedisCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedisCache(ctx, RedisConfig{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection error")
	}
}

func TestRedisCacheKeys(t *testing.T) {
	c := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "stemma:")
	defer c.Close()
	if got := c.key("export:abc"); got != "stemma:export:abc" {
		t.Errorf("key = %s", got)
	}
}

type ttlRecorder struct {
	NullCache
	ttls []time.Duration
}

func (c *ttlRecorder) Set(_ context.Context, _ string, _ []byte, ttl time.Duration) error {
	c.ttls = append(c.ttls, ttl)
	return nil
}

func TestWithMaxTTL(t *testing.T) {
	ctx := context.Background()
	rec := &ttlRecorder{}
	c := WithMaxTTL(rec, time.Hour)
	for _, ttl := range []time.Duration{0, time.Minute, 48 * time.Hour} {
		c.Set(ctx, "k", nil, ttl)
	}
	want := []time.Duration{time.Hour, time.Minute, time.Hour}
	for i, got := range rec.ttls {
		if got != want[i] {
			t.Errorf("ttl[%d] = %v, want %v", i, got, want[i])
		}
	}
	if WithMaxTTL(rec, 0) != Cache(rec) {
		t.Error("zero max should return the cache unchanged")
	}
}

package cache_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"cmod/asset"
	"cmod/cache"
	"cmod/modules"
)

func openCache(t *testing.T) *cache.Cache {
	t.Helper()
	c, err := cache.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_PutGetRoundTrip(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	in := cache.Entry{
		FilePath:    "/proj/a.css",
		ContentHash: "abc123",
		Version:     asset.ASTVersion,
		Tokens:      modules.Tokens{"foo": "_foo_12345"},
		CSS:         []byte("._foo_12345 {\n  color: red;\n}\n"),
		Companion:   []byte(`module.exports = {\n  "foo": "_foo_12345"\n};`),
	}
	if err := c.Put(ctx, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	out, ok, err := c.Get(ctx, "/proj/a.css", "abc123")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if out.Tokens["foo"] != "_foo_12345" {
		t.Errorf("unexpected tokens: %v", out.Tokens)
	}
	if string(out.CSS) != string(in.CSS) || string(out.Companion) != string(in.Companion) {
		t.Errorf("unexpected payload: %+v", out)
	}
}

func TestCache_MissOnDifferentHash(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, cache.Entry{FilePath: "/proj/a.css", ContentHash: "old", Version: asset.ASTVersion, Tokens: modules.Tokens{}, CSS: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok, err := c.Get(ctx, "/proj/a.css", "new"); err != nil || ok {
		t.Errorf("expected miss, got ok=%v err=%v", ok, err)
	}
}

func TestCache_IncompatibleVersionIgnored(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, cache.Entry{FilePath: "/proj/a.css", ContentHash: "h", Version: "99.0.0", Tokens: modules.Tokens{}, CSS: []byte("x")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok, err := c.Get(ctx, "/proj/a.css", "h"); err != nil || ok {
		t.Errorf("expected incompatible entry to be ignored, got ok=%v err=%v", ok, err)
	}
}

func TestCache_NilCompanion(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	if err := c.Put(ctx, cache.Entry{FilePath: "/proj/plain.css", ContentHash: "h", Version: asset.ASTVersion, Tokens: modules.Tokens{}, CSS: []byte("p {}")}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	out, ok, err := c.Get(ctx, "/proj/plain.css", "h")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if out.Companion != nil {
		t.Errorf("expected nil companion, got %q", out.Companion)
	}
}

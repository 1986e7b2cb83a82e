package asset_test

import (
	"context"
	"testing"

	"cmod/asset"
	"cmod/css"
)

func TestAsset_LazyCode(t *testing.T) {
	fs := asset.MapFS{"/proj/a.css": ".a { color: red; }"}
	a := asset.New("/proj/a.css", fs)

	code, err := a.Code(context.Background())
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	if string(code) != ".a { color: red; }" {
		t.Errorf("unexpected code: %q", code)
	}
}

func TestAsset_CodeMissingFile(t *testing.T) {
	a := asset.New("/proj/missing.css", asset.MapFS{})
	if _, err := a.Code(context.Background()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAsset_ASTDirtyTracking(t *testing.T) {
	a := asset.NewFromCode("/proj/a.css", []byte(".a {}"))
	if a.IsASTDirty() {
		t.Error("new asset must not be dirty")
	}
	a.SetAST(&asset.AST{Kind: asset.ASTKind, Version: asset.ASTVersion, Tree: &css.Stylesheet{}})
	if a.IsASTDirty() {
		t.Error("freshly parsed tree must not be dirty")
	}
	a.MarkASTDirty()
	if !a.IsASTDirty() {
		t.Error("expected dirty after mutation")
	}
}

func TestDependency_IsURL(t *testing.T) {
	tests := map[string]bool{
		"./a.css":                      false,
		"shared/buttons.css":           false,
		"https://cdn.example.com/x.css": true,
		"//cdn.example.com/x.css":      true,
		"data:text/css;base64,xxx":     true,
	}
	for spec, want := range tests {
		d := asset.Dependency{ModuleSpecifier: spec}
		if got := d.IsURL(); got != want {
			t.Errorf("IsURL(%q): expected %v, got %v", spec, want, got)
		}
	}
}

func TestRelativeResolver(t *testing.T) {
	r := asset.RelativeResolver{Root: "/proj/src"}
	ctx := context.Background()

	tests := []struct {
		from, spec, want string
	}{
		{"/proj/src/a.css", "./b.css", "/proj/src/b.css"},
		{"/proj/src/sub/a.css", "../b.css", "/proj/src/b.css"},
		{"/proj/src/a.css", "shared/x.css", "/proj/src/shared/x.css"},
		{"/proj/src/a.css", "/abs/x.css", "/abs/x.css"},
	}
	for _, tc := range tests {
		got, err := r.Resolve(ctx, tc.from, tc.spec)
		if err != nil {
			t.Errorf("Resolve(%q, %q) failed: %v", tc.from, tc.spec, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Resolve(%q, %q): expected %q, got %q", tc.from, tc.spec, tc.want, got)
		}
	}
}

package transform_test

import (
	"context"
	"strings"
	"testing"

	"cmod/asset"
	"cmod/modules"
	"cmod/transform"
)

func TestCompanion_NoDependenciesExactContent(t *testing.T) {
	fs := asset.MapFS{"/proj/a.css": ".a { color: red; }"}
	a := asset.New("/proj/a.css", fs)
	tr := newTransformer(fs)

	cfg := &transform.Config{Modules: &modules.Options{
		Generate: func(name, _ string, _ []byte) string { return "_" + name + "_1" },
	}}
	outputs, err := tr.Transform(context.Background(), a, cfg)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	want := "module.exports = {\n  \"a\": \"_a_1\"\n};"
	if got := string(outputs[1].Content); got != want {
		t.Errorf("companion content mismatch:\nwant: %q\ngot:  %q", want, got)
	}
}

func TestCompanion_DependenciesMergeInDeclarationOrder(t *testing.T) {
	fs := asset.MapFS{
		"/proj/main.css": ".a { composes: x from './x.css'; composes: y from './y.css'; }",
		"/proj/x.css":    ".x { color: red; }",
		"/proj/y.css":    ".y { color: blue; }",
	}
	a := asset.New("/proj/main.css", fs)
	tr := newTransformer(fs)

	outputs, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	content := string(outputs[1].Content)

	if !strings.HasPrefix(content, `module.exports = Object.assign({}, require("./x.css"), require("./y.css"), {`) {
		t.Errorf("unexpected merge prefix: %s", content)
	}
	if !strings.HasSuffix(content, "});") {
		t.Errorf("unexpected suffix: %s", content)
	}
	// local map comes last so local keys win on conflict
	if strings.Index(content, "require(") > strings.Index(content, `"a":`) {
		t.Errorf("local map must come after requires: %s", content)
	}
}

func TestCompanion_DuplicateSpecifiersRequireOnce(t *testing.T) {
	fs := asset.MapFS{
		"/proj/main.css": ".a { composes: x from './x.css'; }\n.b { composes: y from './x.css'; }",
		"/proj/x.css":    ".x { color: red; }\n.y { color: blue; }",
	}
	a := asset.New("/proj/main.css", fs)
	tr := newTransformer(fs)

	outputs, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	content := string(outputs[1].Content)
	if n := strings.Count(content, `require("./x.css")`); n != 1 {
		t.Errorf("expected a single require of './x.css', got %d:\n%s", n, content)
	}
}

func TestCompanion_NaturalKeyOrder(t *testing.T) {
	fs := asset.MapFS{"/proj/a.css": ".item10 {color: red;} .item2 {color: blue;}"}
	a := asset.New("/proj/a.css", fs)
	tr := newTransformer(fs)

	outputs, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	content := string(outputs[1].Content)
	if strings.Index(content, `"item2"`) > strings.Index(content, `"item10"`) {
		t.Errorf("expected natural ordering (item2 before item10):\n%s", content)
	}
}

func TestCompanion_AbsentWhenNoTokens(t *testing.T) {
	fs := asset.MapFS{"/proj/a.css": "p { color: red; }"}
	a := asset.New("/proj/a.css", fs)
	tr := newTransformer(fs)

	outputs, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}})
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if len(outputs) != 1 {
		t.Errorf("expected no companion for an empty token map, got %d outputs", len(outputs))
	}
}

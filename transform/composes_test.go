package transform_test

import (
	"context"
	"strings"
	"testing"

	"cmod/asset"
	"cmod/modules"
	"cmod/transform"
)

// transformWithModules runs a modules-enabled transform over in-memory files
// and returns the entry asset for inspection.
func transformWithModules(t *testing.T, fs asset.MapFS, entry string) *asset.Asset {
	t.Helper()
	a := asset.New(entry, fs)
	tr := newTransformer(fs)
	if _, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}}); err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	return a
}

func TestComposes_RegistersSingleDependency(t *testing.T) {
	fs := asset.MapFS{
		"/proj/main.css": ".foo {\n  composes: bar from './a.css';\n}\n",
		"/proj/a.css":    ".bar { color: red; }",
	}
	a := transformWithModules(t, fs, "/proj/main.css")

	deps := a.Dependencies()
	if len(deps) != 1 {
		t.Fatalf("expected exactly 1 dependency, got %d: %v", len(deps), deps)
	}
	d := deps[0]
	if d.ModuleSpecifier != "./a.css" {
		t.Errorf("expected specifier './a.css', got %q", d.ModuleSpecifier)
	}
	// location starts at the declaration value's start column:
	// line 2 is "  composes: bar from './a.css';", value starts at column 13
	if d.Loc.FilePath != "/proj/main.css" {
		t.Errorf("unexpected loc file %q", d.Loc.FilePath)
	}
	if d.Loc.Start.Line != 2 || d.Loc.Start.Column != 13 {
		t.Errorf("expected loc start 2:13, got %d:%d", d.Loc.Start.Line, d.Loc.Start.Column)
	}
	if d.Loc.End.Line != 2 || d.Loc.End.Column != 13+len("./a.css") {
		t.Errorf("expected loc end 2:%d, got %d:%d", 13+len("./a.css"), d.Loc.End.Line, d.Loc.End.Column)
	}
}

func TestComposes_LocalRegistersNothing(t *testing.T) {
	fs := asset.MapFS{
		"/proj/main.css": ".base { color: red; }\n.foo { composes: base; }\n",
	}
	a := transformWithModules(t, fs, "/proj/main.css")

	if deps := a.Dependencies(); len(deps) != 0 {
		t.Errorf("expected zero dependencies for local composes, got %v", deps)
	}
}

func TestComposes_MultipleStringTokensDuplicateRegistrations(t *testing.T) {
	// a comma-separated composes list with two quoted strings in the value
	// yields one registration per string token, same specifier each time
	fs := asset.MapFS{
		"/proj/main.css": ".foo { composes: a from './x.css'; composes: b from './x.css'; }",
		"/proj/x.css":    ".a { color: red; }\n.b { color: blue; }",
	}
	a := transformWithModules(t, fs, "/proj/main.css")

	deps := a.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 registrations, got %d", len(deps))
	}
	for _, d := range deps {
		if d.ModuleSpecifier != "./x.css" {
			t.Errorf("unexpected specifier %q", d.ModuleSpecifier)
		}
	}
}

func TestComposes_TransitiveChain(t *testing.T) {
	fs := asset.MapFS{
		"/proj/main.css": ".foo { composes: mid from './mid.css'; }",
		"/proj/mid.css":  ".mid { composes: leaf from './leaf.css'; color: red; }",
		"/proj/leaf.css": ".leaf { color: blue; }",
	}
	a := transformWithModules(t, fs, "/proj/main.css")

	tokens, _ := a.Meta["cssModules"].(modules.Tokens)
	if len(tokens) != 1 {
		t.Fatalf("expected 1 exported class, got %v", tokens)
	}
	// foo's token carries its own scoped name, mid's, and transitively leaf's
	foo := tokens["foo"]
	if parts := strings.Fields(foo); len(parts) != 3 {
		t.Fatalf("expected 3 class names in token %q", foo)
	}
}

func TestComposes_CycleFails(t *testing.T) {
	fs := asset.MapFS{
		"/proj/a.css": ".a { composes: b from './b.css'; }",
		"/proj/b.css": ".b { composes: a from './a.css'; }",
	}
	a := asset.New("/proj/a.css", fs)
	tr := newTransformer(fs)
	_, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}})
	if err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestComposes_MissingImportFails(t *testing.T) {
	fs := asset.MapFS{
		"/proj/a.css": ".a { composes: b from './missing.css'; }",
	}
	a := asset.New("/proj/a.css", fs)
	tr := newTransformer(fs)
	if _, err := tr.Transform(context.Background(), a, &transform.Config{Modules: &modules.Options{}}); err == nil {
		t.Fatal("expected error for unresolvable composes import")
	}
}

package build

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"cmod/config"
	"cmod/state"
)

func testEnv(t *testing.T) *state.LocalEnv {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("unable to load default configuration: %v", err)
	}
	return &state.LocalEnv{Cfg: cfg, Log: zap.NewNop()}
}

func TestBuildOutputPath_Default(t *testing.T) {
	env := testEnv(t)

	got := buildOutputPath("/proj/src/ui/a.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "ui", "a.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestBuildOutputPath_NoDirs(t *testing.T) {
	env := testEnv(t)
	env.NoDirs = true

	got := buildOutputPath("/proj/src/ui/a.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "a.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestBuildOutputPath_SourceOutsideRoot(t *testing.T) {
	env := testEnv(t)

	// a source that does not live under the scanned root must not escape dst
	got := buildOutputPath("/elsewhere/a.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "a.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestBuildOutputPath_Template(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Transform.OutputNameTemplate = "{{.SourceDir}}/{{.SourceFile}}-out"

	got := buildOutputPath("/proj/src/ui/a.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "ui", "ui", "a-out.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestBuildOutputPath_BadTemplateFallsBack(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Transform.OutputNameTemplate = "{{.NoSuchField}}"

	got := buildOutputPath("/proj/src/a.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "a.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestBuildOutputPath_Slugify(t *testing.T) {
	env := testEnv(t)
	env.Cfg.Transform.FileNameSlugify = true

	got := buildOutputPath("/proj/src/Main Theme.css", "/proj/src", "/out", env)
	want := filepath.Join("/out", "main-theme.css")
	if got != want {
		t.Errorf("buildOutputPath() = %q, want %q", got, want)
	}
}

func TestExpandTemplate(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		src     string
		want    string
		wantErr bool
	}{
		{"source file", "{{.SourceFile}}", "/proj/src/a.css", "a", false},
		{"with function", "{{.SourceFile | upper}}", "/proj/src/a.css", "A", false},
		{"source dir", "{{.SourceDir}}/{{.SourceFile}}", "/proj/src/a.css", "src/a", false},
		{"broken syntax", "{{.SourceFile", "/proj/src/a.css", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := expandTemplate(config.OutputNameTemplateFieldName, tc.field, tc.src)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expandTemplate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("expandTemplate() = %q, want %q", got, tc.want)
			}
		})
	}
}

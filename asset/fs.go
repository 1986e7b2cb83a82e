package asset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is the read-only filesystem capability the transform consumes.
type FileSystem interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// Resolver turns a module specifier into an absolute path, relative to the
// importing file.
type Resolver interface {
	Resolve(ctx context.Context, fromPath, specifier string) (string, error)
}

// OSFileSystem reads from the host filesystem.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// MapFS is an in-memory filesystem keyed by cleaned path. Used by tests and
// by callers that already hold all sources in memory.
type MapFS map[string]string

func (m MapFS) ReadFile(_ context.Context, path string) ([]byte, error) {
	if data, ok := m[filepath.Clean(path)]; ok {
		return []byte(data), nil
	}
	return nil, fmt.Errorf("file not found: %s", path)
}

// RelativeResolver resolves './' and '../' specifiers against the importing
// file's directory and bare specifiers against a configured root.
type RelativeResolver struct {
	Root string
}

func (r RelativeResolver) Resolve(_ context.Context, fromPath, specifier string) (string, error) {
	if specifier == "" {
		return "", fmt.Errorf("empty module specifier in %s", fromPath)
	}
	if filepath.IsAbs(specifier) {
		return filepath.Clean(specifier), nil
	}
	if strings.HasPrefix(specifier, ".") {
		return filepath.Join(filepath.Dir(fromPath), specifier), nil
	}
	root := r.Root
	if root == "" {
		root = filepath.Dir(fromPath)
	}
	return filepath.Join(root, specifier), nil
}

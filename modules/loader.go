package modules

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"cmod/asset"
	"cmod/css"
)

// FetchFunc resolves a composes import to the referenced file's export
// tokens. rawSpecifier may still carry its surrounding quotes.
type FetchFunc func(ctx context.Context, rawSpecifier, fromPath string) (Tokens, error)

// Loader resolves `composes ... from "<path>"` references by reading the
// referenced file from the shared read-only filesystem and tokenizing it
// recursively, so transitive composes chains of arbitrary depth work. It is
// a plain value closing over the pipeline's filesystem and resolver; it
// holds no mutable state and is safe for concurrent use.
type Loader struct {
	fs       asset.FileSystem
	resolver asset.Resolver
	generate NameGenerator
	log      *zap.Logger
}

// NewLoader creates a loader over the given capabilities. generate may be
// nil, in which case ScopedName is used for the fetched files' tokens.
func NewLoader(fs asset.FileSystem, resolver asset.Resolver, generate NameGenerator, log *zap.Logger) *Loader {
	if generate == nil {
		generate = ScopedName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{fs: fs, resolver: resolver, generate: generate, log: log.Named("loader")}
}

// Fetch returns the export tokens of the file referenced by rawSpecifier
// relative to fromPath. Only tokens flow onward, no aggregated source text
// is produced.
func (l *Loader) Fetch(ctx context.Context, rawSpecifier, fromPath string) (Tokens, error) {
	return l.fetch(ctx, rawSpecifier, fromPath, nil)
}

// fetch carries the ancestry of the current composes chain for cycle
// detection. Each recursion level copies the set, so concurrent sibling
// fetches never share it.
func (l *Loader) fetch(ctx context.Context, rawSpecifier, fromPath string, ancestry map[string]bool) (Tokens, error) {
	spec := css.Unquote(rawSpecifier)

	resolved, err := l.resolver.Resolve(ctx, fromPath, spec)
	if err != nil {
		return nil, err
	}
	if ancestry[resolved] {
		return nil, fmt.Errorf("composes cycle detected: %s imports %s which is already on the composes chain", fromPath, resolved)
	}
	chain := make(map[string]bool, len(ancestry)+1)
	for k := range ancestry {
		chain[k] = true
	}
	chain[resolved] = true

	rootRel := rootRelative(resolved, fromPath)
	source, err := l.fs.ReadFile(ctx, resolved)
	if err != nil {
		return nil, err
	}

	sheet, err := css.NewParser(l.log).Parse(source, rootRel)
	if err != nil {
		return nil, err
	}

	nested := func(ctx context.Context, raw, _ string) (Tokens, error) {
		return l.fetch(ctx, raw, resolved, chain)
	}

	l.log.Debug("Fetched composed module", zap.String("from", fromPath), zap.String("file", rootRel))
	return Tokenize(ctx, sheet, rootRel, source, l.generate, nested, l.log)
}

// rootRelative derives the path used as the tokenizer's file identity:
// resolved against the importing file's directory and with any leading
// filesystem root marker stripped. Some tokenizer implementations mishandle
// an absolute leading root segment on certain platforms, and names hashed
// from the stripped form stay identical either way.
func rootRelative(resolved, fromPath string) string {
	p := resolved
	if !filepath.IsAbs(p) {
		p = filepath.Join(filepath.Dir(fromPath), p)
	}
	p = filepath.Clean(p)
	if vol := filepath.VolumeName(p); vol != "" {
		p = p[len(vol):]
	}
	return strings.TrimPrefix(filepath.ToSlash(p), "/")
}

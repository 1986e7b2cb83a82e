// Package transform implements the CSS transformation stage: AST reuse
// guarding, composes dependency extraction, the plugin pipeline and
// companion asset synthesis.
package transform

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"cmod/asset"
	"cmod/css"
	"cmod/modules"
	"cmod/plugin"
)

// metaTokensKey is the asset metadata slot the CSS-Modules plugin fills.
const metaTokensKey = "cssModules"

// Config is the hydrated runtime configuration for one transform run.
type Config struct {
	// Plugins run in order before the injected CSS-Modules plugin.
	Plugins []plugin.Plugin
	// Modules enables CSS-Modules scoping when non-nil. Options set by the
	// caller override the injected defaults.
	Modules *modules.Options
}

// Transformer runs the transformation stage over single assets. It is
// stateless apart from its capabilities and safe for concurrent use.
type Transformer struct {
	fs       asset.FileSystem
	resolver asset.Resolver
	log      *zap.Logger
}

// New creates a transformer over the pipeline's filesystem and resolver.
func New(fs asset.FileSystem, resolver asset.Resolver, log *zap.Logger) *Transformer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Transformer{fs: fs, resolver: resolver, log: log.Named("transform")}
}

// CanReuse reports whether a previously produced tree may be reused: the
// kind must match and the version must be in the same major family as the
// current tree format.
func (t *Transformer) CanReuse(ast *asset.AST) bool {
	if ast == nil || ast.Kind != asset.ASTKind {
		return false
	}
	return semver.Major("v"+ast.Version) == semver.Major("v"+asset.ASTVersion)
}

// Parse parses the asset's current code into a tagged tree. It returns nil
// when no configuration is active for the asset (nothing to do).
func (t *Transformer) Parse(ctx context.Context, a *asset.Asset, cfg *Config) (*asset.AST, error) {
	if cfg == nil {
		return nil, nil
	}
	code, err := a.Code(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := css.NewParser(t.log).Parse(code, a.FilePath)
	if err != nil {
		return nil, err
	}
	return &asset.AST{Kind: asset.ASTKind, Version: asset.ASTVersion, Tree: tree}, nil
}

// Transform runs the full stage over one asset: ensure a usable tree,
// register composes dependencies, execute the plugin pipeline and emit the
// transformed asset plus, when CSS-Modules produced export tokens, the
// companion script asset. Any failure aborts the transform for this asset;
// no partial output is produced.
func (t *Transformer) Transform(ctx context.Context, a *asset.Asset, cfg *Config) ([]asset.Output, error) {
	if cfg == nil {
		code, err := a.Code(ctx)
		if err != nil {
			return nil, err
		}
		return []asset.Output{{Kind: "css", FilePath: a.FilePath, Content: code}}, nil
	}

	ast := a.AST()
	if !t.CanReuse(ast) {
		var err error
		if ast, err = t.Parse(ctx, a, cfg); err != nil {
			return nil, err
		}
		a.SetAST(ast)
	}

	// the code text only serves the extractor's fast path, and only while it
	// still matches the tree
	var code []byte
	if !a.IsASTDirty() {
		var err error
		if code, err = a.Code(ctx); err != nil {
			return nil, err
		}
	}
	t.extractComposes(a, ast.Tree, code)

	if err := t.runPipeline(ctx, a, cfg, ast.Tree, code); err != nil {
		return nil, err
	}
	a.SetAST(&asset.AST{Kind: asset.ASTKind, Version: asset.ASTVersion, Tree: ast.Tree})
	a.MarkASTDirty()

	outputs := []asset.Output{{
		Kind:     "css",
		FilePath: a.FilePath,
		Content:  []byte(ast.Tree.String()),
	}}
	if tokens := ExportTokens(a); len(tokens) > 0 {
		outputs = append(outputs, companionAsset(a, tokens))
	}

	t.log.Debug("Transformed asset",
		zap.String("file", a.FilePath),
		zap.Int("outputs", len(outputs)),
		zap.Int("dependencies", len(a.Dependencies())),
		zap.Int("included", len(a.IncludedFiles())))
	return outputs, nil
}

// ExportTokens reads the token map the CSS-Modules plugin stored on the
// asset, if any.
func ExportTokens(a *asset.Asset) modules.Tokens {
	tokens, _ := a.Meta[metaTokensKey].(modules.Tokens)
	return tokens
}

// runPipeline executes the configured plugins in order, with the injected
// CSS-Modules plugin appended when modules are enabled. Dependency messages
// become included files; messages of other kinds are ignored.
func (t *Transformer) runPipeline(ctx context.Context, a *asset.Asset, cfg *Config, tree *css.Stylesheet, code []byte) error {
	pass := &plugin.Pass{FilePath: a.FilePath, Code: code}

	plugins := cfg.Plugins
	if cfg.Modules != nil {
		loader := modules.NewLoader(t.fs, t.resolver, cfg.Modules.Generate, t.log)
		collect := func(_ string, tokens modules.Tokens) {
			a.Meta[metaTokensKey] = tokens
		}
		plugins = append(plugins[:len(plugins):len(plugins)],
			modules.New(*cfg.Modules, collect, loader.Fetch, t.log))
	}

	for _, p := range plugins {
		// plugin failures propagate unwrapped, the whole step is atomic
		if err := p.Transform(ctx, tree, pass); err != nil {
			return err
		}
	}

	for _, m := range pass.Messages {
		if m.Kind != plugin.KindDependency {
			t.log.Debug("Ignoring pipeline message", zap.String("kind", m.Kind))
			continue
		}
		a.AddIncludedFile(m.FilePath)
	}
	return nil
}

// Version returns the tree format identity of this transformer, mostly for
// diagnostics and cache keys.
func Version() string {
	return fmt.Sprintf("%s@%s", asset.ASTKind, asset.ASTVersion)
}

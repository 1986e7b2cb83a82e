// Package asset models a source file moving through the transform pipeline
// and the capabilities (filesystem, resolver) the pipeline lends to it.
package asset

import (
	"context"
	"strings"

	"cmod/css"
)

// ASTKind tags trees produced by this transformer.
const ASTKind = "cmod-css"

// ASTVersion is the current tree format version. Trees from other major
// families must be re-parsed from code.
const ASTVersion = "1.2.0"

// AST is a tagged syntax tree. Kind identifies the producing transformer,
// Version its tree format. A tree may only be reused when the kind matches
// and the version is compatible.
type AST struct {
	Kind    string
	Version string
	Tree    *css.Stylesheet
}

// SourceLocation is a span inside a source file, used for error reporting
// and incremental invalidation.
type SourceLocation struct {
	FilePath string
	Start    css.Position
	End      css.Position
}

// Dependency is a cross-file edge registered during transformation.
type Dependency struct {
	ModuleSpecifier string
	Loc             SourceLocation
}

// IsURL reports whether the specifier is a URL-style reference rather than
// a module path.
func (d Dependency) IsURL() bool {
	return strings.Contains(d.ModuleSpecifier, "://") ||
		strings.HasPrefix(d.ModuleSpecifier, "//") ||
		strings.HasPrefix(d.ModuleSpecifier, "data:")
}

// Output is a produced asset: the transformed original or a synthetic
// companion.
type Output struct {
	Kind     string // "css" or "js"
	FilePath string
	Content  []byte
}

// Asset is a single source file under transformation. It is owned by the
// surrounding pipeline and mutated only through the methods below.
type Asset struct {
	FilePath string
	Meta     map[string]any

	fs       FileSystem
	code     []byte
	haveCode bool
	ast      *AST
	astDirty bool
	deps     []Dependency
	included []string
}

// New creates an asset whose code is fetched lazily from fs.
func New(filePath string, fs FileSystem) *Asset {
	return &Asset{FilePath: filePath, fs: fs, Meta: make(map[string]any)}
}

// NewFromCode creates an asset with code already in memory.
func NewFromCode(filePath string, code []byte) *Asset {
	return &Asset{FilePath: filePath, code: code, haveCode: true, Meta: make(map[string]any)}
}

// Code returns the asset's source text, reading it on first use.
func (a *Asset) Code(ctx context.Context) ([]byte, error) {
	if a.haveCode {
		return a.code, nil
	}
	code, err := a.fs.ReadFile(ctx, a.FilePath)
	if err != nil {
		return nil, err
	}
	a.code = code
	a.haveCode = true
	return code, nil
}

// AST returns the current tree, or nil when none is attached.
func (a *Asset) AST() *AST { return a.ast }

// SetAST attaches a tree without marking it dirty. Freshly parsed trees are
// still in sync with the code.
func (a *Asset) SetAST(ast *AST) {
	a.ast = ast
	a.astDirty = false
}

// MarkASTDirty records that the tree no longer matches the code text.
func (a *Asset) MarkASTDirty() { a.astDirty = true }

// IsASTDirty reports whether the tree was mutated since the code was last
// materialized.
func (a *Asset) IsASTDirty() bool { return a.astDirty }

// AddDependency registers a cross-file dependency edge. Duplicates are kept,
// the consuming dependency graph deduplicates.
func (a *Asset) AddDependency(dep Dependency) {
	a.deps = append(a.deps, dep)
}

// Dependencies returns the dependencies registered so far, in order.
func (a *Asset) Dependencies() []Dependency { return a.deps }

// AddIncludedFile registers a file whose content affects this asset but does
// not form a graph dependency (invalidation tracking only).
func (a *Asset) AddIncludedFile(path string) {
	a.included = append(a.included, path)
}

// IncludedFiles returns the included files registered so far.
func (a *Asset) IncludedFiles() []string { return a.included }

package transform

import (
	"regexp"

	"go.uber.org/zap"

	"cmod/asset"
	"cmod/css"
)

// composesRe is the conservative textual fast path: when the raw code does
// not match it anywhere, the tree walk is skipped entirely. It can produce
// false negatives on unusual formatting (e.g. a newline between "composes:"
// and "from"); that fragility is a known trade-off kept for speed, do not
// broaden the pattern without considering the cost of always walking.
var composesRe = regexp.MustCompile(`composes:.+from\s*("|')`)

// fromImportRe extracts the import path from a composes declaration value of
// the shape "... from '<path>'".
var fromImportRe = regexp.MustCompile(`(?s).+from\s*(?:"(.*)"|'(.*)')\s*$`)

// extractComposes registers one dependency per string value token of every
// `composes ... from '<path>'` declaration. Local compositions (no from
// clause) register nothing. Duplicate registrations are acceptable, the
// consuming dependency graph deduplicates. code is nil when the tree no
// longer matches the text; the fast path is skipped then.
func (t *Transformer) extractComposes(a *asset.Asset, tree *css.Stylesheet, code []byte) {
	if code != nil && !composesRe.Match(code) {
		return
	}

	tree.WalkDecls(func(_ *css.Rule, d *css.Declaration) bool {
		if d.Prop != "composes" {
			return true
		}
		m := fromImportRe.FindStringSubmatch(d.Value)
		if m == nil {
			// same-file composition
			return true
		}
		importPath := m[1]
		if importPath == "" {
			importPath = m[2]
		}
		if importPath == "" {
			return true
		}
		for _, tok := range css.TokenizeValue(d.Value) {
			if tok.Type != css.ValueString {
				continue
			}
			a.AddDependency(asset.Dependency{
				ModuleSpecifier: importPath,
				Loc: asset.SourceLocation{
					FilePath: a.FilePath,
					Start:    d.ValuePos,
					End: css.Position{
						Line:   d.ValuePos.Line,
						Column: d.ValuePos.Column + len(importPath),
					},
				},
			})
			t.log.Debug("Registered composes dependency",
				zap.String("file", a.FilePath),
				zap.String("specifier", importPath),
				zap.Int("line", d.ValuePos.Line))
		}
		return true
	})
}

// Package css builds a mutable, position-aware stylesheet tree on top of the
// tdewolff CSS tokenizer. The tree keeps raw selector and value text so that
// transformation plugins can rewrite parts of it and print the result back
// without losing anything the grammar does not care about.
package css

import (
	"sort"
	"strings"

	tcss "github.com/tdewolff/parse/v2/css"
)

// Position is a 1-based line/column location in the source text.
type Position struct {
	Line   int
	Column int
}

// Stylesheet is the root of the parsed tree.
type Stylesheet struct {
	Nodes []Node
}

// Node is a union of everything that can appear in a stylesheet body.
// Exactly one field is set.
type Node struct {
	Rule    *Rule
	AtRule  *AtRule
	Comment *Comment
}

// Rule is a qualified rule: one or more selectors and a declaration block.
type Rule struct {
	Selectors []string
	Decls     []Declaration
	Pos       Position
}

// Declaration is a single property declaration inside a block.
type Declaration struct {
	Prop      string
	Value     string
	Important bool
	Pos       Position // start of the property name
	ValuePos  Position // start of the value text
}

// AtRule is an @-rule. Name keeps the leading '@'. Block-less rules
// (@import, @charset) have HasBlock false. Rules with a declaration body
// (@font-face, @page) fill Decls, rules with a nested rule body (@media,
// @supports) fill Body.
type AtRule struct {
	Name     string
	Params   string
	HasBlock bool
	Decls    []Declaration
	Body     *Stylesheet
	Pos      Position
}

// Comment is a /* ... */ comment node, text kept verbatim.
type Comment struct {
	Text string
	Pos  Position
}

// WalkDecls visits every declaration in the stylesheet in source order,
// including declarations nested inside at-rule blocks. For declarations that
// belong to an at-rule body (e.g. @font-face) the rule argument is nil.
// Returning false from fn stops the walk.
func (s *Stylesheet) WalkDecls(fn func(r *Rule, d *Declaration) bool) bool {
	for i := range s.Nodes {
		n := &s.Nodes[i]
		switch {
		case n.Rule != nil:
			for j := range n.Rule.Decls {
				if !fn(n.Rule, &n.Rule.Decls[j]) {
					return false
				}
			}
		case n.AtRule != nil:
			for j := range n.AtRule.Decls {
				if !fn(nil, &n.AtRule.Decls[j]) {
					return false
				}
			}
			if n.AtRule.Body != nil {
				if !n.AtRule.Body.WalkDecls(fn) {
					return false
				}
			}
		}
	}
	return true
}

// WalkRules visits every qualified rule in source order, descending into
// at-rule bodies. Returning false from fn stops the walk.
func (s *Stylesheet) WalkRules(fn func(r *Rule) bool) bool {
	for i := range s.Nodes {
		n := &s.Nodes[i]
		switch {
		case n.Rule != nil:
			if !fn(n.Rule) {
				return false
			}
		case n.AtRule != nil && n.AtRule.Body != nil:
			if !n.AtRule.Body.WalkRules(fn) {
				return false
			}
		}
	}
	return true
}

// RemoveDecl removes the declaration at index i.
func (r *Rule) RemoveDecl(i int) {
	r.Decls = append(r.Decls[:i], r.Decls[i+1:]...)
}

// ClassNames returns the class names referenced by a selector, in order of
// appearance. Duplicates are removed.
func ClassNames(selector string) []string {
	var names []string
	seen := make(map[string]bool)
	MapClasses(selector, func(name string) string {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return name
	})
	return names
}

// MapClasses rewrites every class name in a selector through fn and returns
// the resulting selector text. fn receives the name without the leading dot.
func MapClasses(selector string, fn func(name string) string) string {
	var b strings.Builder
	b.Grow(len(selector))
	for i := 0; i < len(selector); {
		c := selector[i]
		if c == '.' && i+1 < len(selector) && isIdentStart(selector[i+1]) {
			j := i + 1
			for j < len(selector) && isIdentChar(selector[j]) {
				j++
			}
			b.WriteByte('.')
			b.WriteString(fn(selector[i+1 : j]))
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '-' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// ValueTokenType classifies tokens produced by TokenizeValue.
type ValueTokenType int

const (
	ValueIdent ValueTokenType = iota
	ValueString
	ValueFunction
	ValueNumber
	ValueComma
	ValueSpace
	ValueDelim
)

// ValueToken is a single token of a declaration value. String tokens keep
// their surrounding quotes in Data, use Unquote to strip them.
type ValueToken struct {
	Type ValueTokenType
	Data string
}

// TokenizeValue tokenizes a declaration value. It understands quoted
// strings, comma-separated lists and function calls.
func TokenizeValue(value string) []ValueToken {
	var out []ValueToken
	for _, tok := range lexTokens([]byte(value)) {
		var tt ValueTokenType
		switch tok.tt {
		case tcss.StringToken, tcss.BadStringToken:
			tt = ValueString
		case tcss.IdentToken:
			tt = ValueIdent
		case tcss.FunctionToken, tcss.URLToken:
			tt = ValueFunction
		case tcss.NumberToken, tcss.PercentageToken, tcss.DimensionToken:
			tt = ValueNumber
		case tcss.CommaToken:
			tt = ValueComma
		case tcss.WhitespaceToken:
			tt = ValueSpace
		default:
			tt = ValueDelim
		}
		out = append(out, ValueToken{Type: tt, Data: tok.data})
	}
	return out
}

// Unquote removes surrounding single or double quotes from a string.
func Unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}
	if (s[0] == '"' && s[len(s)-1] == '"') ||
		(s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

// lineIndex maps byte offsets to 1-based line/column positions.
type lineIndex []int

func newLineIndex(src []byte) lineIndex {
	idx := lineIndex{0}
	for i, b := range src {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (idx lineIndex) position(offset int) Position {
	line := sort.Search(len(idx), func(i int) bool { return idx[i] > offset })
	return Position{Line: line, Column: offset - idx[line-1] + 1}
}

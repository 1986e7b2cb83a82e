package transform

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"cmod/asset"
	"cmod/modules"
)

// CompanionSuffix is appended to the asset path to name the synthesized
// script asset.
const CompanionSuffix = ".js"

// companionAsset emits the script asset exposing the export tokens. With no
// qualifying dependencies the token map is exported directly; otherwise the
// dependencies' own export maps are object-merged in declaration order with
// the local map last, so local keys win on conflict. URL-style references
// never participate.
func companionAsset(a *asset.Asset, tokens modules.Tokens) asset.Output {
	var b strings.Builder

	deps := companionDeps(a.Dependencies())
	if len(deps) == 0 {
		b.WriteString("module.exports = ")
		b.WriteString(tokensJSON(tokens))
		b.WriteString(";")
	} else {
		b.WriteString("module.exports = Object.assign({}")
		for _, spec := range deps {
			b.WriteString(", require(")
			b.WriteString(jsonString(spec))
			b.WriteString(")")
		}
		b.WriteString(", ")
		b.WriteString(tokensJSON(tokens))
		b.WriteString(");")
	}

	return asset.Output{
		Kind:     "js",
		FilePath: a.FilePath + CompanionSuffix,
		Content:  []byte(b.String()),
	}
}

// companionDeps returns the non-URL dependency specifiers in declaration
// order, first occurrence only.
func companionDeps(deps []asset.Dependency) []string {
	var specs []string
	seen := make(map[string]bool)
	for _, d := range deps {
		if d.IsURL() || seen[d.ModuleSpecifier] {
			continue
		}
		seen[d.ModuleSpecifier] = true
		specs = append(specs, d.ModuleSpecifier)
	}
	return specs
}

// tokensJSON serializes the token map as a 2-space indented JSON object with
// naturally ordered keys, so output stays stable across runs.
func tokensJSON(tokens modules.Tokens) string {
	keys := make([]string, 0, len(tokens))
	for k := range tokens {
		keys = append(keys, k)
	}
	sort.Sort(natural.StringSlice(keys))

	var b strings.Builder
	b.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n  ")
		b.WriteString(jsonString(k))
		b.WriteString(": ")
		b.WriteString(jsonString(tokens[k]))
	}
	b.WriteString("\n}")
	return b.String()
}

func jsonString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

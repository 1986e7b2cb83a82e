// Package modules implements CSS-Modules scoping: class selectors are
// renamed to collision-resistant scoped names, composes declarations are
// resolved (locally and across files) and the resulting export tokens are
// handed to a collector.
package modules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cmod/css"
	"cmod/plugin"
)

// Tokens maps local class names to their final scoped names.
type Tokens map[string]string

// Options tunes the CSS-Modules plugin. Caller-supplied values take
// precedence over the injected defaults.
type Options struct {
	// Generate overrides the default scoped-name generator.
	Generate NameGenerator
	// Fetch overrides the composes resolver (normally the virtual module
	// loader built from the pipeline's filesystem and resolver).
	Fetch FetchFunc
}

// CollectFunc receives the export tokens produced for a file.
type CollectFunc func(filename string, tokens Tokens)

// Plugin is the injected CSS-Modules pipeline plugin.
type Plugin struct {
	opts    Options
	collect CollectFunc
	fetch   FetchFunc
	log     *zap.Logger
}

// New creates the CSS-Modules plugin. fetch is the default composes
// resolver; opts.Fetch and opts.Generate win over the defaults when set.
func New(opts Options, collect CollectFunc, fetch FetchFunc, log *zap.Logger) *Plugin {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Fetch != nil {
		fetch = opts.Fetch
	}
	return &Plugin{opts: opts, collect: collect, fetch: fetch, log: log.Named("modules")}
}

func (p *Plugin) Name() string { return "modules" }

func (p *Plugin) Transform(ctx context.Context, sheet *css.Stylesheet, pass *plugin.Pass) error {
	gen := p.opts.Generate
	if gen == nil {
		gen = ScopedName
	}
	tokens, err := Tokenize(ctx, sheet, pass.FilePath, pass.Code, gen, p.fetch, p.log)
	if err != nil {
		return err
	}
	if p.collect != nil {
		p.collect(pass.FilePath, tokens)
	}
	return nil
}

// Tokenize scopes every class in the sheet in place and returns the export
// tokens. fetch resolves `composes ... from` imports; distinct imports are
// fetched concurrently.
func Tokenize(ctx context.Context, sheet *css.Stylesheet, filename string, src []byte, gen NameGenerator, fetch FetchFunc, log *zap.Logger) (Tokens, error) {
	if gen == nil {
		gen = ScopedName
	}
	if log == nil {
		log = zap.NewNop()
	}

	// scope every class that appears in a selector
	scoped := make(map[string]string)
	sheet.WalkRules(func(r *css.Rule) bool {
		for _, sel := range r.Selectors {
			for _, name := range css.ClassNames(sel) {
				if _, ok := scoped[name]; !ok {
					scoped[name] = gen(name, filename, src)
				}
			}
		}
		return true
	})

	tokens := make(Tokens, len(scoped))
	for name, s := range scoped {
		tokens[name] = s
	}

	// fetch every distinct composes-from import up front, concurrently
	imported, err := fetchImports(ctx, sheet, filename, fetch)
	if err != nil {
		return nil, err
	}

	// apply composes declarations and drop them from the tree
	applyErr := error(nil)
	sheet.WalkRules(func(r *css.Rule) bool {
		classes := ruleClasses(r)
		kept := r.Decls[:0]
		for _, d := range r.Decls {
			if d.Prop != "composes" {
				kept = append(kept, d)
				continue
			}
			cv, ok := parseComposes(d.Value)
			if !ok {
				applyErr = fmt.Errorf("%s:%d:%d: malformed composes declaration %q", filename, d.Pos.Line, d.Pos.Column, d.Value)
				return false
			}
			for _, class := range classes {
				for _, name := range cv.names {
					add, err := composedToken(name, cv, tokens, imported)
					if err != nil {
						applyErr = fmt.Errorf("%s:%d:%d: %w", filename, d.Pos.Line, d.Pos.Column, err)
						return false
					}
					tokens[class] = tokens[class] + " " + add
				}
			}
		}
		r.Decls = kept
		return true
	})
	if applyErr != nil {
		return nil, applyErr
	}

	// rename class selectors
	sheet.WalkRules(func(r *css.Rule) bool {
		for i, sel := range r.Selectors {
			r.Selectors[i] = css.MapClasses(sel, func(name string) string {
				if s, ok := scoped[name]; ok {
					return s
				}
				return name
			})
		}
		return true
	})

	log.Debug("Tokenized CSS module", zap.String("file", filename), zap.Int("tokens", len(tokens)))
	return tokens, nil
}

func composedToken(name string, cv composesValue, tokens Tokens, imported map[string]Tokens) (string, error) {
	switch {
	case cv.global:
		return name, nil
	case cv.from != "":
		imp, ok := imported[cv.from][name]
		if !ok {
			return "", fmt.Errorf("composes: %q has no export %q", cv.from, name)
		}
		return imp, nil
	default:
		local, ok := tokens[name]
		if !ok {
			return "", fmt.Errorf("composes references undefined class %q", name)
		}
		return local, nil
	}
}

// fetchImports collects the distinct composes-from paths of the sheet and
// fetches their tokens concurrently. Fetches share no mutable state beyond
// the result map, which is guarded.
func fetchImports(ctx context.Context, sheet *css.Stylesheet, filename string, fetch FetchFunc) (map[string]Tokens, error) {
	distinct := make(map[string]bool)
	sheet.WalkDecls(func(_ *css.Rule, d *css.Declaration) bool {
		if d.Prop != "composes" {
			return true
		}
		if cv, ok := parseComposes(d.Value); ok && cv.from != "" && !cv.global {
			distinct[cv.from] = true
		}
		return true
	})
	if len(distinct) == 0 {
		return nil, nil
	}
	if fetch == nil {
		return nil, fmt.Errorf("%s uses composes ... from but no composes resolver is configured", filename)
	}

	imported := make(map[string]Tokens, len(distinct))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for path := range distinct {
		g.Go(func() error {
			tokens, err := fetch(gctx, path, filename)
			if err != nil {
				return err
			}
			mu.Lock()
			imported[path] = tokens
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return imported, nil
}

func ruleClasses(r *css.Rule) []string {
	var classes []string
	seen := make(map[string]bool)
	for _, sel := range r.Selectors {
		for _, name := range css.ClassNames(sel) {
			if !seen[name] {
				seen[name] = true
				classes = append(classes, name)
			}
		}
	}
	return classes
}

var composesFromRe = regexp.MustCompile(`(?s)^(.+?)\s+from\s+(.+)$`)

type composesValue struct {
	names  []string
	from   string // unquoted import path, empty for local composition
	global bool   // composes ... from global
}

// parseComposes splits a composes value into composed names and an optional
// source. Accepted shapes: "a", "a b", "a, b", "a from './x.css'",
// "a from global".
func parseComposes(value string) (composesValue, bool) {
	var cv composesValue

	namesPart := value
	if m := composesFromRe.FindStringSubmatch(value); m != nil {
		namesPart = m[1]
		source := strings.TrimSpace(m[2])
		if source == "global" {
			cv.global = true
		} else {
			unquoted := css.Unquote(source)
			if unquoted == source {
				// not quoted and not global: malformed source
				return cv, false
			}
			cv.from = unquoted
		}
	}

	for _, tok := range css.TokenizeValue(namesPart) {
		if tok.Type == css.ValueIdent {
			cv.names = append(cv.names, tok.Data)
		}
	}
	if len(cv.names) == 0 {
		return cv, false
	}
	return cv, true
}

// Package plugin defines the AST transformation plugin contract and the
// built-in plugins shipped with the transformer.
package plugin

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cmod/asset"
	"cmod/css"
)

// KindDependency marks a pipeline message reporting that a plugin read an
// external file. The executor turns these into included files.
const KindDependency = "dependency"

// Message is a side-channel notification emitted by a plugin during a pass.
type Message struct {
	Kind     string
	FilePath string
}

// Pass carries per-asset context through one pipeline run and collects the
// messages plugins emit along the way.
type Pass struct {
	FilePath string
	Code     []byte
	Messages []Message
}

// Emit records a message on the pass.
func (p *Pass) Emit(m Message) {
	p.Messages = append(p.Messages, m)
}

// Plugin is a single AST transformation. Transform mutates the sheet in
// place; any error aborts the whole pipeline run.
type Plugin interface {
	Name() string
	Transform(ctx context.Context, sheet *css.Stylesheet, pass *Pass) error
}

// Env provides the capabilities built-in plugins may need.
type Env struct {
	FS       asset.FileSystem
	Resolver asset.Resolver
	Log      *zap.Logger
}

// New hydrates a plugin from its persisted name and options. Options are
// accepted for forward compatibility, none of the built-ins takes any today.
func New(name string, _ map[string]any, env Env) (Plugin, error) {
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	switch name {
	case "discard-comments":
		return &discardComments{}, nil
	case "inline-imports":
		return &inlineImports{env: env, log: env.Log.Named("inline-imports")}, nil
	default:
		return nil, fmt.Errorf("unknown plugin %q", name)
	}
}

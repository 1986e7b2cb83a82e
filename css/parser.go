package css

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	tcss "github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Parser parses CSS text into a mutable Stylesheet tree.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css")}
}

// Parse parses CSS text into a Stylesheet. The source parameter identifies
// what is being parsed and is used for error and debug messages.
func (p *Parser) Parse(data []byte, source string) (*Stylesheet, error) {
	p.log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))

	s := newScanner(data)
	nodes, err := p.parseNodes(s, false)
	if err != nil {
		pos := s.pos()
		return nil, fmt.Errorf("%s:%d:%d: css parse error: %w", source, pos.Line, pos.Column, err)
	}
	return &Stylesheet{Nodes: nodes}, nil
}

var importantSuffix = regexp.MustCompile(`(?i)!\s*important\s*$`)

// at-rules whose block contains nested rules rather than declarations
var ruleBodyAtRules = map[string]bool{
	"media":            true,
	"supports":         true,
	"layer":            true,
	"container":        true,
	"scope":            true,
	"document":         true,
	"keyframes":        true,
	"-webkit-keyframes": true,
}

func (p *Parser) parseNodes(s *scanner, inBlock bool) ([]Node, error) {
	var nodes []Node
	for s.next() {
		switch s.tt {
		case tcss.WhitespaceToken, tcss.CDOToken, tcss.CDCToken, tcss.SemicolonToken:
			continue
		case tcss.CommentToken:
			nodes = append(nodes, Node{Comment: &Comment{Text: string(s.data), Pos: s.pos()}})
		case tcss.RightBraceToken:
			if inBlock {
				return nodes, nil
			}
			p.log.Debug("Unexpected '}' at top level, skipping")
		case tcss.AtKeywordToken:
			at, err := p.parseAtRule(s)
			if err != nil {
				return nil, err
			}
			if at != nil {
				nodes = append(nodes, Node{AtRule: at})
			}
		default:
			rule, err := p.parseRule(s)
			if err != nil {
				return nil, err
			}
			if rule != nil {
				nodes = append(nodes, Node{Rule: rule})
			}
		}
	}
	return nodes, s.err
}

// parseRule parses a qualified rule starting at the current token (the first
// token of the selector prelude).
func (p *Parser) parseRule(s *scanner) (*Rule, error) {
	pos := s.pos()
	preludeStart := s.start
	for s.tt != tcss.LeftBraceToken {
		if !s.next() {
			// unterminated prelude at EOF, nothing to keep
			p.log.Debug("Discarding unterminated rule prelude")
			return nil, s.err
		}
	}
	selText := string(s.src[preludeStart:s.start])
	decls, err := p.parseDeclarations(s)
	if err != nil {
		return nil, err
	}
	return &Rule{Selectors: splitSelectors(selText), Decls: decls, Pos: pos}, nil
}

// parseAtRule parses an @-rule starting at the current AtKeywordToken.
func (p *Parser) parseAtRule(s *scanner) (*AtRule, error) {
	at := &AtRule{Name: string(s.data), Pos: s.pos()}

	paramsStart := -1
	for {
		if !s.next() {
			return at, s.err
		}
		switch s.tt {
		case tcss.SemicolonToken:
			if paramsStart >= 0 {
				at.Params = strings.TrimSpace(string(s.src[paramsStart:s.start]))
			}
			return at, nil
		case tcss.LeftBraceToken:
			if paramsStart >= 0 {
				at.Params = strings.TrimSpace(string(s.src[paramsStart:s.start]))
			}
			at.HasBlock = true
			name := strings.ToLower(strings.TrimPrefix(at.Name, "@"))
			if ruleBodyAtRules[name] {
				nodes, err := p.parseNodes(s, true)
				if err != nil {
					return nil, err
				}
				at.Body = &Stylesheet{Nodes: nodes}
			} else {
				decls, err := p.parseDeclarations(s)
				if err != nil {
					return nil, err
				}
				at.Decls = decls
			}
			return at, nil
		default:
			if paramsStart < 0 && s.tt != tcss.WhitespaceToken {
				paramsStart = s.start
			}
		}
	}
}

// parseDeclarations parses a declaration block. The current token is the
// opening '{'; on return the closing '}' (or EOF) has been consumed.
func (p *Parser) parseDeclarations(s *scanner) ([]Declaration, error) {
	var decls []Declaration
	for s.next() {
		switch s.tt {
		case tcss.WhitespaceToken, tcss.CommentToken, tcss.SemicolonToken:
			continue
		case tcss.RightBraceToken:
			return decls, nil
		case tcss.IdentToken, tcss.CustomPropertyNameToken:
			d, ok := p.parseDeclaration(s)
			if ok {
				decls = append(decls, d)
			}
			if s.tt == tcss.RightBraceToken {
				return decls, nil
			}
		default:
			p.log.Debug("Skipping malformed declaration", zap.String("token", string(s.data)))
			p.skipToDeclEnd(s)
			if s.tt == tcss.RightBraceToken {
				return decls, nil
			}
		}
		if s.err != nil {
			return decls, s.err
		}
	}
	// EOF inside a block is tolerated, declarations seen so far are kept
	return decls, s.err
}

// parseDeclaration parses one declaration starting at the property name
// token. On return the current token is the terminating ';', '}' or EOF.
func (p *Parser) parseDeclaration(s *scanner) (Declaration, bool) {
	d := Declaration{Prop: string(s.data), Pos: s.pos()}

	// colon
	for {
		if !s.next() {
			return d, false
		}
		if s.tt == tcss.WhitespaceToken || s.tt == tcss.CommentToken {
			continue
		}
		break
	}
	if s.tt != tcss.ColonToken {
		p.log.Debug("Declaration without ':', skipping", zap.String("prop", d.Prop))
		p.skipToDeclEnd(s)
		return d, false
	}

	// value: raw text from the first significant token to the last one
	// before the terminator, with function nesting tracked so that the
	// terminator is only recognized at depth zero
	valStart, valEnd := -1, -1
	depth := 0
	for {
		if !s.next() {
			break
		}
		if depth == 0 && (s.tt == tcss.SemicolonToken || s.tt == tcss.RightBraceToken) {
			break
		}
		switch s.tt {
		case tcss.FunctionToken, tcss.LeftParenthesisToken:
			depth++
		case tcss.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		}
		if s.tt != tcss.WhitespaceToken && s.tt != tcss.CommentToken {
			if valStart < 0 {
				valStart = s.start
				d.ValuePos = s.pos()
			}
			valEnd = s.end
		}
	}
	if valStart < 0 {
		p.log.Debug("Declaration without value, skipping", zap.String("prop", d.Prop))
		return d, false
	}
	d.Value = string(s.src[valStart:valEnd])
	if m := importantSuffix.FindStringIndex(d.Value); m != nil {
		d.Value = strings.TrimSpace(d.Value[:m[0]])
		d.Important = true
	}
	return d, true
}

// skipToDeclEnd consumes tokens until ';', '}' or EOF.
func (p *Parser) skipToDeclEnd(s *scanner) {
	depth := 0
	for {
		switch s.tt {
		case tcss.FunctionToken, tcss.LeftParenthesisToken:
			depth++
		case tcss.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case tcss.SemicolonToken, tcss.RightBraceToken:
			if depth == 0 {
				return
			}
		}
		if !s.next() {
			return
		}
	}
}

// splitSelectors splits grouped selectors on top-level commas.
func splitSelectors(text string) []string {
	var sels []string
	depth := 0
	start := 0
	flush := func(end int) {
		if sel := strings.TrimSpace(text[start:end]); sel != "" {
			sels = append(sels, sel)
		}
	}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(', '[':
			depth++
		case ')', ']':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(text))
	return sels
}

// scanner drives the tdewolff lexer and tracks byte offsets of every token
// so that tree nodes can carry exact source positions.
type scanner struct {
	lex   *tcss.Lexer
	src   []byte
	lines lineIndex

	tt         tcss.TokenType
	data       []byte
	start, end int
	err        error
}

func newScanner(src []byte) *scanner {
	return &scanner{
		lex:   tcss.NewLexer(parse.NewInputBytes(src)),
		src:   src,
		lines: newLineIndex(src),
	}
}

func (s *scanner) next() bool {
	if s.err != nil {
		return false
	}
	s.start = s.end
	tt, data := s.lex.Next()
	s.tt, s.data = tt, data
	s.end = s.start + len(data)
	if tt == tcss.ErrorToken {
		if err := s.lex.Err(); err != nil && err != io.EOF {
			s.err = err
		}
		return false
	}
	return true
}

// pos returns the position of the current token's first byte.
func (s *scanner) pos() Position {
	return s.lines.position(s.start)
}

// lexTokens tokenizes a standalone fragment (used for declaration values).
type rawToken struct {
	tt   tcss.TokenType
	data string
}

func lexTokens(src []byte) []rawToken {
	var out []rawToken
	s := newScanner(src)
	for s.next() {
		out = append(out, rawToken{tt: s.tt, data: string(s.data)})
	}
	return out
}

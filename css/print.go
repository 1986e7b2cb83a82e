package css

import (
	"io"
	"strings"
)

// WriteTo serializes the stylesheet back to CSS text. Formatting is stable
// but not byte-identical to the input: indentation is normalized to two
// spaces and non-semantic whitespace is collapsed.
func (s *Stylesheet) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i := range s.Nodes {
		if i > 0 {
			n, err := io.WriteString(w, "\n")
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
		n, err := writeNode(w, &s.Nodes[i], "")
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// String returns the stylesheet as CSS text.
func (s *Stylesheet) String() string {
	var sb strings.Builder
	_, _ = s.WriteTo(&sb)
	return sb.String()
}

func writeNode(w io.Writer, n *Node, indent string) (int, error) {
	switch {
	case n.Rule != nil:
		return writeRule(w, n.Rule, indent)
	case n.AtRule != nil:
		return writeAtRule(w, n.AtRule, indent)
	case n.Comment != nil:
		return io.WriteString(w, indent+n.Comment.Text+"\n")
	}
	return 0, nil
}

func writeRule(w io.Writer, r *Rule, indent string) (int, error) {
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString(strings.Join(r.Selectors, ", "))
	sb.WriteString(" {\n")
	writeDecls(&sb, r.Decls, indent+"  ")
	sb.WriteString(indent)
	sb.WriteString("}\n")
	return io.WriteString(w, sb.String())
}

func writeAtRule(w io.Writer, at *AtRule, indent string) (int, error) {
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString(at.Name)
	if at.Params != "" {
		sb.WriteString(" ")
		sb.WriteString(at.Params)
	}
	if !at.HasBlock {
		sb.WriteString(";\n")
		return io.WriteString(w, sb.String())
	}
	sb.WriteString(" {\n")
	total, err := io.WriteString(w, sb.String())
	if err != nil {
		return total, err
	}
	if len(at.Decls) > 0 {
		var db strings.Builder
		writeDecls(&db, at.Decls, indent+"  ")
		n, err := io.WriteString(w, db.String())
		total += n
		if err != nil {
			return total, err
		}
	}
	if at.Body != nil {
		for i := range at.Body.Nodes {
			n, err := writeNode(w, &at.Body.Nodes[i], indent+"  ")
			total += n
			if err != nil {
				return total, err
			}
		}
	}
	n, err := io.WriteString(w, indent+"}\n")
	total += n
	return total, err
}

func writeDecls(sb *strings.Builder, decls []Declaration, indent string) {
	for i := range decls {
		d := &decls[i]
		sb.WriteString(indent)
		sb.WriteString(d.Prop)
		sb.WriteString(": ")
		sb.WriteString(d.Value)
		if d.Important {
			sb.WriteString(" !important")
		}
		sb.WriteString(";\n")
	}
}

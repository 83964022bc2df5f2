package policy

import (
	"fmt"

	"github.com/gobwas/glob"
)

// SelectorKind discriminates the variant held by a Selector.
type SelectorKind int

const (
	SelHasColumn SelectorKind = iota
	SelNamed
	SelInSchema
	SelTagged
	SelAll
	SelAnd
	SelOr
	SelNot
)

// Selector is a predicate over table metadata deciding which tables a
// policy governs.
type Selector struct {
	Kind SelectorKind

	ColumnName string // SelHasColumn
	ColumnType string // SelHasColumn, optional

	Pattern string // SelNamed, SQL LIKE syntax

	Schema string // SelInSchema

	Tag string // SelTagged

	Left  *Selector // SelAnd, SelOr
	Right *Selector // SelAnd, SelOr
	Inner *Selector // SelNot
}

func HasColumn(name string, columnType string) Selector {
	return Selector{Kind: SelHasColumn, ColumnName: name, ColumnType: columnType}
}

func Named(pattern string) Selector { return Selector{Kind: SelNamed, Pattern: pattern} }

func InSchema(schema string) Selector { return Selector{Kind: SelInSchema, Schema: schema} }

func Tagged(tag string) Selector { return Selector{Kind: SelTagged, Tag: tag} }

func All() Selector { return Selector{Kind: SelAll} }

func And(left, right Selector) Selector { return Selector{Kind: SelAnd, Left: &left, Right: &right} }

func Or(left, right Selector) Selector { return Selector{Kind: SelOr, Left: &left, Right: &right} }

func Not(inner Selector) Selector { return Selector{Kind: SelNot, Inner: &inner} }

// Evaluate applies the selector predicate to a table's metadata. Both
// branches of And/Or are always evaluated; there are no short-circuit
// side effects to preserve.
func (s Selector) Evaluate(t TableMetadata) (bool, error) {
	switch s.Kind {
	case SelHasColumn:
		for _, col := range t.Columns {
			if col.Name != s.ColumnName {
				continue
			}
			if s.ColumnType == "" || col.Type == s.ColumnType {
				return true, nil
			}
		}
		return false, nil
	case SelNamed:
		g, err := glob.Compile(likeToGlob(s.Pattern))
		if err != nil {
			return false, fmt.Errorf("selector named(%q): %w", s.Pattern, err)
		}
		return g.Match(t.Name), nil
	case SelInSchema:
		return t.Schema == s.Schema, nil
	case SelTagged:
		for _, tag := range t.Tags {
			if tag == s.Tag {
				return true, nil
			}
		}
		return false, nil
	case SelAll:
		return true, nil
	case SelAnd:
		left, err := s.Left.Evaluate(t)
		if err != nil {
			return false, err
		}
		right, err := s.Right.Evaluate(t)
		if err != nil {
			return false, err
		}
		return left && right, nil
	case SelOr:
		left, err := s.Left.Evaluate(t)
		if err != nil {
			return false, err
		}
		right, err := s.Right.Evaluate(t)
		if err != nil {
			return false, err
		}
		return left || right, nil
	case SelNot:
		inner, err := s.Inner.Evaluate(t)
		if err != nil {
			return false, err
		}
		return !inner, nil
	default:
		return false, fmt.Errorf("unknown selector kind %d", s.Kind)
	}
}

// likeToGlob rewrites SQL LIKE wildcards (% any run, _ single char) into
// gobwas/glob syntax (* any run, ? single char), escaping glob's own
// metacharacters so a literal table name containing them still matches
// literally.
func likeToGlob(pattern string) string {
	out := make([]byte, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '%':
			out = append(out, '*')
		case '_':
			out = append(out, '?')
		case '*', '?', '[', ']', '{', '}', '!', '\\':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func (s Selector) String() string {
	switch s.Kind {
	case SelHasColumn:
		if s.ColumnType != "" {
			return fmt.Sprintf("has_column(%q, %q)", s.ColumnName, s.ColumnType)
		}
		return fmt.Sprintf("has_column(%q)", s.ColumnName)
	case SelNamed:
		return fmt.Sprintf("named(%q)", s.Pattern)
	case SelInSchema:
		return fmt.Sprintf("in_schema(%q)", s.Schema)
	case SelTagged:
		return fmt.Sprintf("tagged(%q)", s.Tag)
	case SelAll:
		return "all()"
	case SelAnd:
		return fmt.Sprintf("(%s AND %s)", s.Left, s.Right)
	case SelOr:
		return fmt.Sprintf("(%s OR %s)", s.Left, s.Right)
	case SelNot:
		return fmt.Sprintf("NOT %s", s.Inner)
	default:
		return "<invalid selector>"
	}
}

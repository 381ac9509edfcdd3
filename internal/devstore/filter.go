package devstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"labdesk/internal/store"
)

// Filter grammar:
//
//	expr       = and { "||" and }
//	and        = operand { "&&" operand }
//	operand    = "(" expr ")" | comparison
//	comparison = ident op literal
//	op         = "=" | "!=" | "~" | "!~" | ">" | ">=" | "<" | "<="
//	literal    = quoted string | number | true | false
//
// Strings may be quoted with " or ' and use \ to escape the next character.

// Expr is a parsed filter expression.
type Expr interface {
	exprNode()
}

// Logical joins two expressions with "&&" or "||".
type Logical struct {
	Op          string
	Left, Right Expr
}

// Comparison tests one attribute against a literal.
type Comparison struct {
	Field string
	Op    string
	Value Literal
}

type litKind int

const (
	litString litKind = iota
	litNumber
	litBool
)

// Literal is the right-hand side of a comparison in its source form.
type Literal struct {
	kind litKind
	Text string
}

func (Logical) exprNode()    {}
func (Comparison) exprNode() {}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		ch := rune(src[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case ch == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case strings.HasPrefix(src[i:], "&&"):
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case strings.HasPrefix(src[i:], "||"):
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case ch == '"' || ch == '\'':
			s, n, err := readString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("at %d: %w", i, err)
			}
			toks = append(toks, token{tokString, s, i})
			i += n
		case strings.ContainsRune("=!~<>", ch):
			op := string(ch)
			if i+1 < len(src) && (src[i+1] == '=' || (ch == '!' && src[i+1] == '~')) {
				op = src[i : i+2]
			}
			switch op {
			case "=", "!=", "~", "!~", ">", ">=", "<", "<=":
			default:
				return nil, fmt.Errorf("at %d: unknown operator %q", i, op)
			}
			toks = append(toks, token{tokOp, op, i})
			i += len(op)
		case ch == '-' || ch == '.' || unicode.IsDigit(ch):
			j := i + 1
			for j < len(src) && (src[j] == '.' || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			if _, err := strconv.ParseFloat(src[i:j], 64); err != nil {
				return nil, fmt.Errorf("at %d: invalid number %q", i, src[i:j])
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case ch == '_' || unicode.IsLetter(ch):
			j := i + 1
			for j < len(src) && (src[j] == '_' || src[j] == '.' || unicode.IsLetter(rune(src[j])) || unicode.IsDigit(rune(src[j]))) {
				j++
			}
			toks = append(toks, token{tokIdent, src[i:j], i})
			i = j
		default:
			return nil, fmt.Errorf("at %d: unexpected character %q", i, ch)
		}
	}
	return append(toks, token{tokEOF, "", len(src)}), nil
}

// readString reads a quoted string at the start of s and returns the unescaped
// value and the number of bytes consumed.
func readString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated escape")
			}
			i++
			b.WriteByte(s[i])
		case quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

type parser struct {
	toks []token
	pos  int
}

// ParseFilter parses a filter expression. An empty or blank filter yields nil.
func ParseFilter(src string) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.or()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("at %d: unexpected %q", t.pos, t.text)
	}
	return e, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) or() (Expr, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) and() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.operand()
		if err != nil {
			return nil, err
		}
		left = Logical{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) operand() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("at %d: expected )", closing.pos)
		}
		return e, nil
	case tokIdent:
		op := p.next()
		if op.kind != tokOp {
			return nil, fmt.Errorf("at %d: expected operator after %s", op.pos, t.text)
		}
		lit, err := p.literal()
		if err != nil {
			return nil, err
		}
		return Comparison{Field: t.text, Op: op.text, Value: lit}, nil
	default:
		return nil, fmt.Errorf("at %d: unexpected %q", t.pos, t.text)
	}
}

func (p *parser) literal() (Literal, error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return Literal{kind: litString, Text: t.text}, nil
	case t.kind == tokNumber:
		return Literal{kind: litNumber, Text: t.text}, nil
	case t.kind == tokIdent && (t.text == "true" || t.text == "false"):
		return Literal{kind: litBool, Text: t.text}, nil
	default:
		return Literal{}, fmt.Errorf("at %d: expected a value", t.pos)
	}
}

// filterCompiler turns an Expr into a WHERE fragment for one collection.
type filterCompiler struct {
	dialect store.Dialect
	pb      store.ParamBuilder
	columns map[string]store.Column
}

func (fc *filterCompiler) compile(e Expr) (string, error) {
	switch n := e.(type) {
	case Logical:
		l, err := fc.compile(n.Left)
		if err != nil {
			return "", err
		}
		r, err := fc.compile(n.Right)
		if err != nil {
			return "", err
		}
		op := "AND"
		if n.Op == "||" {
			op = "OR"
		}
		return fmt.Sprintf("(%s %s %s)", l, op, r), nil
	case Comparison:
		return fc.comparison(n)
	default:
		return "", fmt.Errorf("unsupported expression %T", e)
	}
}

func (fc *filterCompiler) comparison(cmp Comparison) (string, error) {
	col, ok := fc.columns[cmp.Field]
	if !ok {
		return "", fmt.Errorf("unknown field %q", cmp.Field)
	}
	ident := store.QuoteIdent(col.Name)

	switch cmp.Op {
	case "~", "!~":
		expr := fc.dialect.ContainsExpr(ident, fc.pb.Add(store.LikePattern(cmp.Value.Text)))
		return negate(cmp.Op == "!~", fmt.Sprintf("%s IS NOT NULL AND %s", ident, expr)), nil
	}

	if col.List {
		return fc.listComparison(ident, cmp)
	}

	val, err := literalFor(col, cmp.Value)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", cmp.Field, err)
	}
	if col.Type == store.TypeText {
		ident = fmt.Sprintf("COALESCE(%s, '')", ident)
	}
	return fmt.Sprintf("%s %s %s", ident, cmp.Op, fc.pb.Add(val)), nil
}

// listComparison treats = as "contains the element" and = "" as "is empty".
func (fc *filterCompiler) listComparison(ident string, cmp Comparison) (string, error) {
	if cmp.Op != "=" && cmp.Op != "!=" {
		return "", fmt.Errorf("operator %s not supported on multi-valued field %s", cmp.Op, cmp.Field)
	}
	if cmp.Value.Text == "" {
		return negate(cmp.Op == "!=", fmt.Sprintf("COALESCE(%s, '[]') = '[]'", ident)), nil
	}
	elem, _ := json.Marshal(cmp.Value.Text)
	expr := fc.dialect.ContainsExpr(ident, fc.pb.Add(store.LikePattern(string(elem))))
	return negate(cmp.Op == "!=", fmt.Sprintf("%s IS NOT NULL AND %s", ident, expr)), nil
}

func negate(not bool, expr string) string {
	if not {
		return "NOT (" + expr + ")"
	}
	return "(" + expr + ")"
}

// literalFor converts a literal to the column's Go type.
func literalFor(col store.Column, lit Literal) (any, error) {
	switch col.Type {
	case store.TypeReal:
		f, err := strconv.ParseFloat(lit.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", lit.Text)
		}
		return f, nil
	case store.TypeBool:
		b, err := strconv.ParseBool(lit.Text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", lit.Text)
		}
		return b, nil
	default:
		return lit.Text, nil
	}
}

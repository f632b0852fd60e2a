package expr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Lookup resolves an identifier to its stored value.
type Lookup func(identifier string) (string, bool)

// Expr is a parsed visibility expression.
//
// Supported syntax:
//   - literals: `true`, `false`, `null`, numbers, quoted strings
//   - identifiers: flat binding paths such as `applicant.age` or `people[0].kind`
//   - comparisons: `==`, `!=`, `<`, `<=`, `>`, `>=` between identifiers and literals
//   - composition: `!`, `&&`, `||` and parentheses
//
// A bare identifier is true when its value parses as true or, failing that,
// is non-empty.
type Expr struct {
	source string
	root   node
	idents []string
}

// Parse compiles rule. An empty rule is an error; callers decide what an
// absent rule means.
func Parse(rule string) (*Expr, error) {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return nil, errors.New("visibility/expr: empty expression")
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}
	stream := &tokenStream{tokens: tokens}
	root, err := parseOr(stream)
	if err != nil {
		return nil, err
	}
	if stream.pos < len(stream.tokens) {
		return nil, fmt.Errorf("visibility/expr: unexpected token %q", stream.tokens[stream.pos].raw)
	}

	var idents []string
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if tok.kind != tokenIdentifier {
			continue
		}
		if _, ok := seen[tok.raw]; ok {
			continue
		}
		seen[tok.raw] = struct{}{}
		idents = append(idents, tok.raw)
	}
	return &Expr{source: trimmed, root: root, idents: idents}, nil
}

// String returns the expression source.
func (e *Expr) String() string { return e.source }

// Identifiers lists the identifiers referenced by the expression in order of
// first appearance.
func (e *Expr) Identifiers() []string {
	return append([]string(nil), e.idents...)
}

// Eval evaluates the expression.
func (e *Expr) Eval(lookup Lookup) (bool, error) {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return e.root.eval(lookup)
}

// Eval parses and evaluates rule in one step.
func Eval(rule string, lookup Lookup) (bool, error) {
	e, err := Parse(rule)
	if err != nil {
		return false, err
	}
	return e.Eval(lookup)
}

type tokenKind int

const (
	tokenIdentifier tokenKind = iota
	tokenString
	tokenNumber
	tokenBool
	tokenNull
	tokenEq
	tokenNeq
	tokenLt
	tokenLte
	tokenGt
	tokenGte
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
)

type token struct {
	kind tokenKind
	raw  string
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '!', '=', '&', '|', '<', '>', '"', '\'':
		return true
	}
	return isSpace(ch)
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	emit := func(kind tokenKind, raw string) { tokens = append(tokens, token{kind: kind, raw: raw}) }
	peek := func(i int) byte {
		if i >= len(input) {
			return 0
		}
		return input[i]
	}

	for i := 0; i < len(input); {
		ch := input[i]
		switch {
		case isSpace(ch):
			i++
		case ch == '(':
			emit(tokenLParen, "(")
			i++
		case ch == ')':
			emit(tokenRParen, ")")
			i++
		case ch == '!':
			if peek(i+1) == '=' {
				emit(tokenNeq, "!=")
				i += 2
				continue
			}
			emit(tokenNot, "!")
			i++
		case ch == '=':
			if peek(i+1) != '=' {
				return nil, errors.New("visibility/expr: unexpected '='; use '=='")
			}
			emit(tokenEq, "==")
			i += 2
		case ch == '<' || ch == '>':
			kind, raw := tokenLt, "<"
			if ch == '>' {
				kind, raw = tokenGt, ">"
			}
			if peek(i+1) == '=' {
				kind++
				raw += "="
				i++
			}
			emit(kind, raw)
			i++
		case ch == '&':
			if peek(i+1) != '&' {
				return nil, errors.New("visibility/expr: unexpected '&'; use '&&'")
			}
			emit(tokenAnd, "&&")
			i += 2
		case ch == '|':
			if peek(i+1) != '|' {
				return nil, errors.New("visibility/expr: unexpected '|'; use '||'")
			}
			emit(tokenOr, "||")
			i += 2
		case ch == '"' || ch == '\'':
			end := i + 1
			escaped := false
			for ; end < len(input); end++ {
				c := input[end]
				if escaped {
					escaped = false
					continue
				}
				if c == '\\' {
					escaped = true
					continue
				}
				if c == ch {
					break
				}
			}
			if end >= len(input) {
				return nil, errors.New("visibility/expr: unterminated string literal")
			}
			body := input[i+1 : end]
			if ch == '\'' {
				body = strings.ReplaceAll(body, `\'`, `'`)
				body = strings.ReplaceAll(body, `"`, `\"`)
			}
			value, err := strconv.Unquote(`"` + body + `"`)
			if err != nil {
				return nil, fmt.Errorf("visibility/expr: invalid string literal: %w", err)
			}
			emit(tokenString, value)
			i = end + 1
		default:
			start := i
			for i < len(input) && !isDelimiter(input[i]) {
				i++
			}
			raw := input[start:i]
			switch strings.ToLower(raw) {
			case "true", "false":
				emit(tokenBool, strings.ToLower(raw))
			case "null", "nil":
				emit(tokenNull, "null")
			default:
				if looksLikeNumber(raw) {
					emit(tokenNumber, raw)
				} else {
					emit(tokenIdentifier, raw)
				}
			}
		}
	}
	return tokens, nil
}

func looksLikeNumber(raw string) bool {
	switch raw[0] {
	case '-', '+', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return false
	}
	_, err := strconv.ParseFloat(raw, 64)
	return err == nil
}

type node interface {
	eval(lookup Lookup) (bool, error)
}

type orNode struct{ left, right node }

func (n orNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.left.eval(lookup)
	if err != nil || ok {
		return ok, err
	}
	return n.right.eval(lookup)
}

type andNode struct{ left, right node }

func (n andNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.left.eval(lookup)
	if err != nil || !ok {
		return false, err
	}
	return n.right.eval(lookup)
}

type notNode struct{ inner node }

func (n notNode) eval(lookup Lookup) (bool, error) {
	ok, err := n.inner.eval(lookup)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// operand is either an identifier or a literal.
type operand struct {
	kind tokenKind
	raw  string
}

type resolved struct {
	null bool
	kind tokenKind
	text string
}

func (o operand) resolve(lookup Lookup) resolved {
	switch o.kind {
	case tokenIdentifier:
		value, ok := lookup(o.raw)
		if !ok || value == "" {
			return resolved{null: true, kind: tokenIdentifier}
		}
		return resolved{kind: tokenIdentifier, text: value}
	case tokenNull:
		return resolved{null: true, kind: tokenNull}
	default:
		return resolved{kind: o.kind, text: o.raw}
	}
}

type truthNode struct{ operand operand }

func (n truthNode) eval(lookup Lookup) (bool, error) {
	v := n.operand.resolve(lookup)
	if v.null {
		return false, nil
	}
	return truthy(v.text), nil
}

type compareNode struct {
	left, right operand
	op          tokenKind
}

func (n compareNode) eval(lookup Lookup) (bool, error) {
	l := n.left.resolve(lookup)
	r := n.right.resolve(lookup)

	if l.null || r.null {
		switch n.op {
		case tokenEq:
			return l.null && r.null, nil
		case tokenNeq:
			return l.null != r.null, nil
		default:
			return false, nil
		}
	}

	if l.kind == tokenBool || r.kind == tokenBool {
		lb, rb := truthy(l.text), truthy(r.text)
		switch n.op {
		case tokenEq:
			return lb == rb, nil
		case tokenNeq:
			return lb != rb, nil
		default:
			return false, fmt.Errorf("visibility/expr: operator %q is not defined for booleans", opString(n.op))
		}
	}

	cmp, ok := compareValues(l, r)
	if !ok {
		return n.op == tokenNeq, nil
	}
	switch n.op {
	case tokenEq:
		return cmp == 0, nil
	case tokenNeq:
		return cmp != 0, nil
	case tokenLt:
		return cmp < 0, nil
	case tokenLte:
		return cmp <= 0, nil
	case tokenGt:
		return cmp > 0, nil
	case tokenGte:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("visibility/expr: unsupported operator %q", opString(n.op))
	}
}

// compareValues orders two values numerically when a number literal is
// involved or both sides parse as numbers, and as strings otherwise. It
// reports false when a number literal meets a non-numeric value.
func compareValues(l, r resolved) (int, bool) {
	lf, lerr := strconv.ParseFloat(strings.TrimSpace(l.text), 64)
	rf, rerr := strconv.ParseFloat(strings.TrimSpace(r.text), 64)
	numeric := l.kind == tokenNumber || r.kind == tokenNumber
	if lerr == nil && rerr == nil && (numeric || (l.kind != tokenString && r.kind != tokenString)) {
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}
	if numeric {
		return 0, false
	}
	return strings.Compare(l.text, r.text), true
}

func truthy(text string) bool {
	trimmed := strings.TrimSpace(text)
	if parsed, err := strconv.ParseBool(trimmed); err == nil {
		return parsed
	}
	return trimmed != ""
}

func opString(op tokenKind) string {
	switch op {
	case tokenEq:
		return "=="
	case tokenNeq:
		return "!="
	case tokenLt:
		return "<"
	case tokenLte:
		return "<="
	case tokenGt:
		return ">"
	case tokenGte:
		return ">="
	default:
		return "?"
	}
}

type tokenStream struct {
	tokens []token
	pos    int
}

func parseOr(stream *tokenStream) (node, error) {
	left, err := parseAnd(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenOr) {
		right, err := parseAnd(stream)
		if err != nil {
			return nil, err
		}
		left = orNode{left: left, right: right}
	}
	return left, nil
}

func parseAnd(stream *tokenStream) (node, error) {
	left, err := parseUnary(stream)
	if err != nil {
		return nil, err
	}
	for stream.match(tokenAnd) {
		right, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		left = andNode{left: left, right: right}
	}
	return left, nil
}

func parseUnary(stream *tokenStream) (node, error) {
	if stream.match(tokenNot) {
		inner, err := parseUnary(stream)
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return parseComparison(stream)
}

func parseComparison(stream *tokenStream) (node, error) {
	if stream.match(tokenLParen) {
		inner, err := parseOr(stream)
		if err != nil {
			return nil, err
		}
		if !stream.match(tokenRParen) {
			return nil, errors.New("visibility/expr: missing closing ')'")
		}
		return inner, nil
	}

	left, err := stream.operand()
	if err != nil {
		return nil, err
	}
	if op, ok := stream.comparison(); ok {
		right, err := stream.operand()
		if err != nil {
			return nil, err
		}
		return compareNode{left: left, right: right, op: op}, nil
	}
	return truthNode{operand: left}, nil
}

func (s *tokenStream) match(kind tokenKind) bool {
	if s.pos >= len(s.tokens) || s.tokens[s.pos].kind != kind {
		return false
	}
	s.pos++
	return true
}

func (s *tokenStream) comparison() (tokenKind, bool) {
	if s.pos >= len(s.tokens) {
		return 0, false
	}
	switch kind := s.tokens[s.pos].kind; kind {
	case tokenEq, tokenNeq, tokenLt, tokenLte, tokenGt, tokenGte:
		s.pos++
		return kind, true
	}
	return 0, false
}

func (s *tokenStream) operand() (operand, error) {
	if s.pos >= len(s.tokens) {
		return operand{}, errors.New("visibility/expr: unexpected end of expression")
	}
	tok := s.tokens[s.pos]
	switch tok.kind {
	case tokenIdentifier, tokenString, tokenNumber, tokenBool, tokenNull:
		s.pos++
		return operand{kind: tok.kind, raw: tok.raw}, nil
	default:
		return operand{}, fmt.Errorf("visibility/expr: expected value, got %q", tok.raw)
	}
}

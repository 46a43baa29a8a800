package rule

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Env is what a trigger expression reads during evaluation: the window
// aggregates for one (subject, event type) pair. The window package's
// Snapshot satisfies it.
type Env interface {
	// Count is the number of events in the window.
	Count() float64
	// IdleSeconds is the time since the pair's newest event.
	IdleSeconds() float64
	// Aggregate computes fn ("sum","avg","min","max","last") over a
	// named attribute; false when the window holds no value for it.
	Aggregate(fn, field string) (float64, bool)
}

// Expr is a compiled trigger expression.
//
// Grammar:
//
//	expr    = and { "||" and }
//	and     = unary { "&&" unary }
//	unary   = "!" unary | "(" expr ")" | comparison
//	cmp     = term op term            op: > >= < <= == !=
//	term    = number | "count" | "idle_seconds" | "threshold"
//	        | fn "(" field ")"        fn: sum avg min max last
//
// A comparison involving an aggregate with no data is false, so rules
// cannot fire on empty windows by accident; absence is expressed with
// count or idle_seconds, which are always defined.
type Expr struct {
	root   node
	source string
}

// Parse compiles a trigger expression. The returned Expr is immutable
// and safe for concurrent evaluation.
func Parse(source string) (*Expr, error) {
	toks, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected %q at position %d", p.peek().text, p.peek().pos)
	}
	return &Expr{root: root, source: source}, nil
}

// Eval evaluates the expression. threshold is the value bound to the
// `threshold` identifier.
func (e *Expr) Eval(env Env, threshold float64) bool {
	return e.root.eval(env, threshold)
}

func (e *Expr) String() string { return e.source }

// --- lexer ---

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp     // > >= < <= == !=
	tokAnd    // &&
	tokOr     // ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '&':
			if i+1 >= len(s) || s[i+1] != '&' {
				return nil, fmt.Errorf("expected && at position %d", i)
			}
			toks = append(toks, token{tokAnd, "&&", i})
			i += 2
		case c == '|':
			if i+1 >= len(s) || s[i+1] != '|' {
				return nil, fmt.Errorf("expected || at position %d", i)
			}
			toks = append(toks, token{tokOr, "||", i})
			i += 2
		case c == '!':
			if i+1 < len(s) && s[i+1] == '=' {
				toks = append(toks, token{tokOp, "!=", i})
				i += 2
			} else {
				toks = append(toks, token{tokNot, "!", i})
				i++
			}
		case c == '>' || c == '<':
			op := string(c)
			if i+1 < len(s) && s[i+1] == '=' {
				op += "="
				i++
			}
			toks = append(toks, token{tokOp, op, i})
			i++
		case c == '=':
			if i+1 >= len(s) || s[i+1] != '=' {
				return nil, fmt.Errorf("expected == at position %d", i)
			}
			toks = append(toks, token{tokOp, "==", i})
			i += 2
		case c >= '0' && c <= '9' || c == '.':
			start := i
			for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, s[start:i], start})
		case isIdentStart(rune(c)):
			start := i
			for i < len(s) && isIdentPart(rune(s[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(s)})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	// Dots allow namespaced attribute names like pose.torso_angle.
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

// --- parser ---

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) atEnd() bool { return p.peek().kind == tokEOF }

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andNode{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	switch p.peek().kind {
	case tokNot:
		p.next()
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notNode{child: child}, nil
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("expected ) at position %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	op := p.peek()
	if op.kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", op.pos, op.text)
	}
	p.next()

	right, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	return &cmpNode{op: op.text, left: left, right: right}, nil
}

var aggFuncs = map[string]bool{
	"sum": true, "avg": true, "min": true, "max": true, "last": true,
}

func (p *parser) parseTerm() (term, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q at position %d", t.text, t.pos)
		}
		return litTerm(v), nil
	case tokIdent:
		switch t.text {
		case "count":
			return countTerm{}, nil
		case "idle_seconds":
			return idleTerm{}, nil
		case "threshold":
			return thresholdTerm{}, nil
		}
		if aggFuncs[t.text] {
			if p.peek().kind != tokLParen {
				return nil, fmt.Errorf("expected ( after %q at position %d", t.text, p.peek().pos)
			}
			p.next()
			arg := p.next()
			if arg.kind != tokIdent {
				return nil, fmt.Errorf("expected attribute name at position %d", arg.pos)
			}
			if p.peek().kind != tokRParen {
				return nil, fmt.Errorf("expected ) at position %d", p.peek().pos)
			}
			p.next()
			return aggTerm{fn: t.text, field: arg.text}, nil
		}
		return nil, fmt.Errorf("unknown identifier %q at position %d (expected count, idle_seconds, threshold, or %s)",
			t.text, t.pos, strings.Join([]string{"sum", "avg", "min", "max", "last"}, "/"))
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", t.text, t.pos)
	}
}

// --- AST ---

type node interface {
	eval(env Env, threshold float64) bool
}

type andNode struct{ left, right node }

func (n *andNode) eval(env Env, th float64) bool {
	return n.left.eval(env, th) && n.right.eval(env, th)
}

type orNode struct{ left, right node }

func (n *orNode) eval(env Env, th float64) bool {
	return n.left.eval(env, th) || n.right.eval(env, th)
}

type notNode struct{ child node }

func (n *notNode) eval(env Env, th float64) bool {
	return !n.child.eval(env, th)
}

type cmpNode struct {
	op          string
	left, right term
}

func (n *cmpNode) eval(env Env, th float64) bool {
	l, ok := n.left.value(env, th)
	if !ok {
		return false
	}
	r, ok := n.right.value(env, th)
	if !ok {
		return false
	}
	switch n.op {
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "<":
		return l < r
	case "<=":
		return l <= r
	case "==":
		return l == r
	case "!=":
		return l != r
	default:
		return false
	}
}

type term interface {
	value(env Env, threshold float64) (float64, bool)
}

type litTerm float64

func (t litTerm) value(Env, float64) (float64, bool) { return float64(t), true }

type countTerm struct{}

func (countTerm) value(env Env, _ float64) (float64, bool) { return env.Count(), true }

type idleTerm struct{}

func (idleTerm) value(env Env, _ float64) (float64, bool) { return env.IdleSeconds(), true }

type thresholdTerm struct{}

func (thresholdTerm) value(_ Env, th float64) (float64, bool) { return th, true }

type aggTerm struct {
	fn    string
	field string
}

func (t aggTerm) value(env Env, _ float64) (float64, bool) {
	return env.Aggregate(t.fn, t.field)
}

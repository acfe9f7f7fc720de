package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// SyntaxError reports a malformed expression. Col is 1-based.
type SyntaxError struct {
	Src string
	Col int
	Msg string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	return fmt.Sprintf("col %d: %s in %q", e.Col, e.Msg, e.Src)
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokInt
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	val  string
	col  int
}

// binaryOps maps infix spellings to operators.
var binaryOps = map[string]Op{
	"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
	"<<": OpShl, ">>": OpShr,
	"|": OpOr, "&": OpAnd, "^": OpXor,
	">": OpGt, "<": OpLt, ">=": OpGe, "<=": OpLe, "!=": OpNe, "==": OpEq,
	"&&": OpLogAnd, "||": OpLogOr,
}

// twoCharOps are checked before single characters so that "<<" is not "<" "<".
var twoCharOps = []string{"<<", ">>", ">=", "<=", "!=", "==", "&&", "||"}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		col := i + 1
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, val: "(", col: col})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, val: ")", col: col})
			i++
		case isDigit(c):
			j := i
			for j < len(src) && (isDigit(src[j]) || isHexLetter(src[j]) || src[j] == 'x' || src[j] == 'X') {
				j++
			}
			toks = append(toks, token{kind: tokInt, val: src[i:j], col: col})
			i = j
		case isIdentStart(c):
			j := i
			for j < len(src) && (isIdentStart(src[j]) || isDigit(src[j])) {
				j++
			}
			toks = append(toks, token{kind: tokIdent, val: src[i:j], col: col})
			i = j
		default:
			op := ""
			for _, two := range twoCharOps {
				if strings.HasPrefix(src[i:], two) {
					op = two
					break
				}
			}
			if op == "" && strings.ContainsRune("+-*/%|&^<>!~", rune(c)) {
				op = string(c)
			}
			if op == "" {
				return nil, &SyntaxError{Src: src, Col: col, Msg: fmt.Sprintf("unexpected character %q", c)}
			}
			toks = append(toks, token{kind: tokOp, val: op, col: col})
			i += len(op)
		}
	}
	toks = append(toks, token{kind: tokEOF, col: len(src) + 1})
	return toks, nil
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isHexLetter(c byte) bool  { return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse reads an integer expression over the accumulator x, e.g. "x + !!x".
// Binary operators follow C precedence and are left associative.
func Parse(src string) (Node, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	n, err := p.binary(1)
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.val)
	}
	return n, nil
}

// MustParse is Parse for static expressions in tests and tables.
func MustParse(src string) Node {
	n, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return n
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Src: p.src, Col: t.col, Msg: fmt.Sprintf(format, args...)}
}

// binary is precedence climbing: it consumes operators binding at least as
// tightly as minPrec.
func (p *parser) binary(minPrec int) (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return left, nil
		}
		op, ok := binaryOps[t.val]
		if !ok || op.Precedence() < minPrec {
			return left, nil
		}
		p.next()
		right, err := p.binary(op.Precedence() + 1)
		if err != nil {
			return nil, err
		}
		left = Call(op, left, right)
	}
}

func (p *parser) unary() (Node, error) {
	t := p.next()
	switch t.kind {
	case tokOp:
		var op Op
		switch t.val {
		case "-":
			op = OpNeg
		case "!":
			op = OpNot
		case "~":
			op = OpBitNot
		case "+":
			return p.unary()
		default:
			return nil, p.errorf(t, "expected operand, got %q", t.val)
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return Call(op, operand), nil
	case tokLParen:
		n, err := p.binary(1)
		if err != nil {
			return nil, err
		}
		if r := p.next(); r.kind != tokRParen {
			return nil, p.errorf(r, "unclosed parenthesis")
		}
		return n, nil
	case tokInt:
		v, err := strconv.ParseInt(t.val, 0, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid integer %q", t.val)
		}
		return Lit(v), nil
	case tokIdent:
		if t.val != AccName {
			return nil, p.errorf(t, "unknown identifier %q, only %s is defined", t.val, AccName)
		}
		return Acc{}, nil
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of expression")
	default:
		return nil, p.errorf(t, "unexpected %q", t.val)
	}
}

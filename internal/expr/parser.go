package expr

import (
	"fmt"
	"math"
)

// Binary operator precedence. Unary minus binds tighter than all of them.
var precedence = map[string]int{
	"+": 1,
	"-": 1,
	"*": 2,
	"/": 2,
	"^": 3,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

type parser struct {
	toks []token
	pos  int
	reg  Registry
	vars []string
	seen map[string]bool
}

func parse(src string, reg Registry) (node, []string, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, nil, err
	}
	p := &parser{toks: toks, reg: reg, seen: make(map[string]bool)}
	root, err := p.binary(1)
	if err != nil {
		return nil, nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
	return root, p.vars, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

// binary parses operators of at least minPrec by precedence climbing.
func (p *parser) binary(minPrec int) (node, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp {
			return lhs, nil
		}
		prec := precedence[t.text]
		if prec < minPrec {
			return lhs, nil
		}
		p.next()
		nextMin := prec + 1
		if t.text == "^" {
			nextMin = prec
		}
		rhs, err := p.binary(nextMin)
		if err != nil {
			return nil, err
		}
		lhs = binaryNode{op: t.text[0], l: lhs, r: rhs}
	}
}

func (p *parser) unary() (node, error) {
	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.text == "+" {
			return x, nil
		}
		if n, ok := x.(numberNode); ok {
			return numberNode{v: -n.v}, nil
		}
		return negNode{x: x}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode{v: t.num}, nil
	case tokLParen:
		inner, err := p.binary(1)
		if err != nil {
			return nil, err
		}
		if c := p.next(); c.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) but found %s", ErrSyntax, c)
		}
		return inner, nil
	case tokIdent:
		return p.identifier(t)
	default:
		return nil, fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
}

func (p *parser) identifier(t token) (node, error) {
	if p.peek().kind == tokLParen {
		fn, ok := p.reg.Lookup(t.text)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, t.text)
		}
		p.next()
		args, err := p.arguments()
		if err != nil {
			return nil, err
		}
		if len(args) < fn.MinArgs || (fn.MaxArgs >= 0 && len(args) > fn.MaxArgs) {
			return nil, fmt.Errorf("%w: %s takes %s, got %d", ErrArity, fn.Name, fn.arity(), len(args))
		}
		return callNode{fn: fn, args: args}, nil
	}
	if v, ok := constants[t.text]; ok {
		return numberNode{v: v}, nil
	}
	if _, ok := p.reg.Lookup(t.text); ok {
		return nil, fmt.Errorf("%w: function %s used without arguments", ErrSyntax, t.text)
	}
	if !p.seen[t.text] {
		p.seen[t.text] = true
		p.vars = append(p.vars, t.text)
	}
	return varNode{name: t.text}, nil
}

// arguments parses a comma separated list up to the closing parenthesis.
func (p *parser) arguments() ([]node, error) {
	var args []node
	if p.peek().kind == tokRParen {
		p.next()
		return args, nil
	}
	for {
		a, err := p.binary(1)
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		switch t := p.next(); t.kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, fmt.Errorf("%w: expected , or ) but found %s", ErrSyntax, t)
		}
	}
}

package parser

import (
	"github.com/mna/kenafgo/lang/ast"
	"github.com/mna/kenafgo/lang/source"
	"github.com/mna/kenafgo/lang/token"
)

// binding power table. Higher binds tighter. Mirrors spec.md §6.1's operator
// set: or < and < comparison/is < bitor < bitxor < bitand < shift < concat <
// additive < multiplicative < unary < postfix.
var binPower = map[token.Kind]int{
	token.OR:  1,
	token.AND: 2,

	token.LT: 3, token.LE: 3, token.GT: 3, token.GE: 3,
	token.EQ: 3, token.NE: 3, token.IS: 3,

	token.PIPE: 4,
	token.CARET: 5,
	token.AMP:   6,

	token.LSHIFT: 7, token.RSHIFT: 7, token.ASHIFT: 7,

	token.TILDE: 8, // binary concat

	token.PLUS: 9, token.MINUS: 9,

	token.STAR: 10, token.SLASH: 10, token.SLASH2: 10, token.PERCENT: 10,
}

const unaryPower = 11

func isComparisonOp(k token.Kind) bool {
	switch k {
	case token.LT, token.LE, token.GT, token.GE, token.EQ, token.NE, token.IS:
		return true
	default:
		return false
	}
}

// parseExpr parses a full expression, including the lowest-precedence
// "x if c else y" conditional form.
func (p *Parser) parseExpr() int32 {
	e := p.parseBinExpr(0)
	if p.accept(token.IF) {
		// postfix conditional: "x if c else y". Children are pushed in parse
		// order (then-value, condition, else-value); irbuild reads them back by
		// position via ast.Children, not by name.
		cond := p.parseBinExpr(0)
		p.expect(token.ELSE)
		elseE := p.parseExpr()
		_, _ = cond, elseE
		fc := p.cur()
		return fc.b.Node(ast.IfThenElse, fc.fn.Nodes[e].Pos, e)
	}
	return e
}

// parseBinExpr implements precedence climbing over binPower. Comparisons are
// left-associative like every other binary operator here: a < b < c parses
// as (a < b) < c, not as Python-style chaining — kenaf has no such sugar
// (see original_source/parser.cpp's expr_compare, a flat left-fold).
func (p *Parser) parseBinExpr(minPower int) int32 {
	left := p.parseUnary()

	for {
		op := p.tok.Kind
		power, ok := binPower[op]
		if !ok || power < minPower {
			break
		}
		opPos := p.tok.Pos
		p.advance()
		if op == token.IS && p.tok.Kind == token.NOT_KW {
			p.advance()
			op = token.ISNOT
		}
		right := p.parseBinExpr(power + 1)
		_ = right

		fc := p.cur()
		kind := ast.Binary
		switch op {
		case token.AND:
			kind = ast.LogicalAnd
		case token.OR:
			kind = ast.LogicalOr
		default:
			if isComparisonOp(op) || op == token.ISNOT {
				kind = ast.Compare
			}
		}
		left = fc.b.OpNode(kind, opPos, op, left)
	}
	return left
}

func (p *Parser) parseUnary() int32 {
	switch p.tok.Kind {
	case token.MINUS, token.PLUS, token.TILDE, token.NOT_KW, token.HASH:
		op := p.tok.Kind
		pos := p.tok.Pos
		p.advance()
		operand := p.parseBinExpr(unaryPower)
		fc := p.cur()
		return fc.b.OpNode(ast.Unary, pos, op, operand)
	case token.ELLIPSIS:
		pos := p.tok.Pos
		p.advance()
		operand := p.parsePostfix()
		fc := p.cur()
		return fc.b.Node(ast.Unpack, pos, operand)
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() int32 {
	e := p.parsePrimary()
	for {
		fc := p.cur()
		switch p.tok.Kind {
		case token.DOT:
			pos := p.tok.Pos
			p.advance()
			nameTok := p.expect(token.IDENT)
			n := fc.b.Node(ast.Key, pos, e)
			fc.fn.Payloads[n] = ast.Payload{Str: nameTok.Value.Raw}
			fc.fn.Nodes[n].Leaf = ast.LeafString
			e = n
		case token.LBRACK:
			pos := p.tok.Pos
			p.advance()
			idx := p.parseExpr()
			p.expect(token.RBRACK)
			e = fc.b.Node(ast.Index, pos, e)
			_ = idx
		case token.LPAREN:
			pos := p.tok.Pos
			p.advance()
			args := p.parseExprListUntil(token.RPAREN)
			p.expect(token.RPAREN)
			e = fc.b.Node(ast.Call, pos, e)
			_ = args
		default:
			return e
		}
	}
}

func (p *Parser) parseExprListUntil(end token.Kind) []int32 {
	var out []int32
	if p.at(end) {
		return out
	}
	out = append(out, p.parseExpr())
	for p.accept(token.COMMA) {
		out = append(out, p.parseExpr())
	}
	return out
}

func (p *Parser) parsePrimary() int32 {
	fc := p.cur()
	pos := p.tok.Pos

	switch p.tok.Kind {
	case token.NULL:
		p.advance()
		return fc.b.Node(ast.Null, pos, ast.NoIndex)
	case token.TRUE:
		p.advance()
		return fc.b.Node(ast.True, pos, ast.NoIndex)
	case token.FALSE:
		p.advance()
		return fc.b.Node(ast.False, pos, ast.NoIndex)
	case token.NUMBER:
		v := p.tok.Value.Number
		p.advance()
		return fc.b.NumberNode(ast.Number, pos, v)
	case token.STRING:
		v := p.tok.Value.String
		p.advance()
		return fc.b.StringNode(ast.String, pos, v)
	case token.SELF:
		p.advance()
		return fc.b.StringNode(ast.Name, pos, "self")
	case token.SUPER:
		p.advance()
		return fc.b.StringNode(ast.Name, pos, "super")
	case token.IDENT:
		name := p.tok.Value.Raw
		p.advance()
		return fc.b.StringNode(ast.Name, pos, name)
	case token.LPAREN:
		p.advance()
		e := p.parseExpr()
		p.expect(token.RPAREN)
		return e
	case token.LBRACK:
		return p.parseArrayLit()
	case token.LBRACE:
		return p.parseTableLit()
	case token.OBJECT:
		return p.parseObjectLit()
	case token.DEF:
		return p.parseLambda()
	case token.YIELD:
		p.advance()
		if p.accept(token.FOR) {
			e := p.parseBinExpr(0)
			return fc.b.Node(ast.YieldFor, pos, e)
		}
		first := ast.NoIndex
		if yieldHasOperand(p.tok.Kind) {
			first = p.parseExpr()
			for p.accept(token.COMMA) {
				p.parseExpr()
			}
		}
		return fc.b.Node(ast.Yield, pos, first)
	default:
		p.syntaxError()
		return fc.b.Node(ast.Null, pos, ast.NoIndex)
	}
}

// yieldHasOperand reports whether k can begin an expression, used to decide
// whether a bare "yield" carries a value or is followed directly by a
// statement boundary.
func yieldHasOperand(k token.Kind) bool {
	switch k {
	case token.SEMI, token.END, token.EOF, token.RPAREN, token.RBRACK, token.RBRACE,
		token.ELSE, token.ELIF, token.UNTIL:
		return false
	default:
		return true
	}
}

func (p *Parser) parseArrayLit() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // [
	items := p.parseExprListUntil(token.RBRACK)
	p.expect(token.RBRACK)
	return fc.b.Node(ast.ArrayDef, pos, firstOf(items))
}

func (p *Parser) parseTableLit() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // {
	var first int32 = ast.NoIndex
	for !p.at(token.RBRACE) && !p.at(token.EOF) {
		key := p.parseExpr()
		p.expect(token.COLON)
		val := p.parseExpr()
		kv := fc.b.Node(ast.KeyVal, fc.fn.Nodes[key].Pos, key)
		_ = val
		if first == ast.NoIndex {
			first = kv
		}
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RBRACE)
	return fc.b.Node(ast.TableDef, pos, first)
}

func (p *Parser) parseObjectLit() int32 {
	fc := p.cur()
	pos := p.tok.Pos
	p.advance() // object
	var first int32 = ast.NoIndex
	for !p.at(token.END) && !p.at(token.EOF) {
		nameTok := p.expect(token.IDENT)
		var entry int32
		if p.at(token.LPAREN) {
			// method sugar: implicit self parameter.
			entry = p.parseLambdaBody(nameTok.Pos, nameTok.Value.Raw, true)
		} else {
			p.expect(token.ASSIGN)
			entry = p.parseExpr()
		}
		kv := fc.b.StringNode(ast.ObjKeyDecl, nameTok.Pos, nameTok.Value.Raw)
		fc.fn.Nodes[kv].Child = entry
		if first == ast.NoIndex {
			first = kv
		}
		p.accept(token.SEMI)
	}
	p.expect(token.END)
	return fc.b.Node(ast.ObjectDef, pos, first)
}

func (p *Parser) parseLambda() int32 {
	pos := p.tok.Pos
	p.advance() // def
	return p.parseLambdaBody(pos, "<lambda>", false)
}

// parseLambdaBody parses a function signature and block, pushing a new
// funcCtx for the nested Function, and returns a FunctionNode leaf in the
// enclosing function referencing it.
func (p *Parser) parseLambdaBody(pos source.Pos, name string, implicitSelf bool) int32 {
	outerFn := p.cur().fn
	nested := &ast.Function{Name: name, Pos: pos, Parent: outerFn}
	if implicitSelf {
		nested.Flags |= ast.FlagImplicitSelf
		nested.Locals = append(nested.Locals, &ast.Local{Name: "self", Decl: pos, IsParameter: true, IsImplicitSelf: true})
	}
	nb := ast.NewBuilder(nested)

	p.expect(token.LPAREN)
	for !p.at(token.RPAREN) && !p.at(token.EOF) {
		if p.accept(token.ELLIPSIS) {
			nested.Flags |= ast.FlagVararg
			nested.Locals = append(nested.Locals, &ast.Local{Name: "...", IsParameter: true, IsVararg: true})
			break
		}
		ptok := p.expect(token.IDENT)
		nested.Locals = append(nested.Locals, &ast.Local{Name: ptok.Value.Raw, Decl: ptok.Pos, IsParameter: true})
		if !p.accept(token.COMMA) {
			break
		}
	}
	p.expect(token.RPAREN)

	p.pushFunc(nested, nb)
	start := p.tok.Pos
	stmts := p.parseStmtList(token.END)
	blk := nb.Node(ast.Block, start, firstOf(stmts))
	_ = blk
	p.popFunc()
	p.expect(token.END)

	outer := p.cur()
	return outer.b.FunctionNode(pos, nested)
}

// Package parser implements TPBA (Top-down Parsing, Bottom-up Abstraction):
// a single recursive-descent traversal of the token stream that builds a
// concrete parse tree (package cst) and abstracts it into an AST (package
// ast) at every production.
package parser

import (
	"pdp/ast"
	"pdp/cst"
	"pdp/token"
)

// Parser walks a fixed token slice with a single cursor. It never
// backtracks across a committed token: once a terminal is
// consumed, the arm choice it decided is final.
type Parser struct {
	tokens []token.Token
	pos    int
}

// New constructs a Parser over a complete token stream (as produced by
// lexer.Scan, always ending in exactly one END).
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse runs Program and returns the parse tree root alongside the AST
// root. On success the parser has consumed exactly
// len(tokens) tokens. On failure it still returns whatever prefix of the
// tree/AST had already been built before the failing production, so a
// caller can write partial artifacts for a file that doesn't fully parse.
func (p *Parser) Parse() (*cst.Node, ast.Node, error) {
	return p.program()
}

func (p *Parser) cur() token.Token {
	return p.tokens[p.pos]
}

func (p *Parser) at(kind token.Kind) bool {
	return p.cur().Kind == kind
}

func (p *Parser) atText(kind token.Kind, text string) bool {
	t := p.cur()
	return t.Kind == kind && t.Text == text
}

func (p *Parser) advance() token.Token {
	t := p.cur()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(expected string) error {
	t := p.cur()
	found := t.Kind.String()
	if t.Text != "" {
		found = t.Kind.String() + "(" + t.Text + ")"
	}
	return &ParseError{Row: t.Row, Col: t.Col, Expected: expected, Found: found}
}

func (p *Parser) expect(kind token.Kind, expected string) (token.Token, error) {
	if !p.at(kind) {
		return token.Token{}, p.errorf(expected)
	}
	return p.advance(), nil
}

func (p *Parser) expectText(kind token.Kind, text, expected string) (token.Token, error) {
	if !p.atText(kind, text) {
		return token.Token{}, p.errorf(expected)
	}
	return p.advance(), nil
}

// partial builds a best-effort CST branch out of whatever children were
// already parsed before a failure further down the production, dropping
// any not yet obtained. An empty prefix collapses to nil rather than an
// empty branch, so callers can tell "nothing parsed yet" from "something
// did."
func partial(arm string, kids ...*cst.Node) *cst.Node {
	var present []*cst.Node
	for _, k := range kids {
		if k != nil {
			present = append(present, k)
		}
	}
	if len(present) == 0 {
		return nil
	}
	return cst.Branch(arm, present...)
}

// ---- Program: END | Scoped* END ----

func (p *Parser) program() (*cst.Node, ast.Node, error) {
	at := ast.Pos{Row: p.cur().Row, Col: p.cur().Col}
	children, stmts, err := p.scopedStar(ctx{depth: 0})
	if err != nil {
		root := cst.Branch("Program", children...)
		return root, &ast.Script{At: at, Body: &ast.Block{At: at, Stmts: stmts}}, err
	}
	end, err := p.expect(token.END, "END")
	if err != nil {
		root := cst.Branch("Program", children...)
		return root, &ast.Script{At: at, Body: &ast.Block{At: at, Stmts: stmts}}, err
	}
	children = append(children, cst.Leaf(end))
	root := cst.Branch("Program", children...)
	block := &ast.Block{At: at, Stmts: stmts}
	return root, &ast.Script{At: at, Body: block}, nil
}

// scopedStar matches Scoped* at the given depth: each Scoped is either a
// bare NEWLINE (blank line, contributes no AST statement) or exactly n
// INDENT tokens followed by a Unit. Stops, without consuming, at END or at
// a line whose indentation doesn't match n. On a failing Unit it still
// returns every Scoped already matched, plus whatever prefix of the
// failing one (indents, and the Unit's own partial result) was obtained.
func (p *Parser) scopedStar(c ctx) ([]*cst.Node, []ast.Node, error) {
	var kids []*cst.Node
	var stmts []ast.Node
	for {
		if p.at(token.END) {
			return kids, stmts, nil
		}
		if p.at(token.NEWLINE) {
			nl := p.advance()
			kids = append(kids, cst.Branch("Scoped", cst.Leaf(nl)))
			continue
		}
		save := p.pos
		indentKids, matched, err := p.matchIndent(c.depth)
		if err != nil {
			if scoped := partial("Scoped", indentKids...); scoped != nil {
				kids = append(kids, scoped)
			}
			return kids, stmts, err
		}
		if !matched {
			p.pos = save
			return kids, stmts, nil
		}
		unitCST, unitAST, err := p.unit(c)
		if err != nil {
			scopedKids := indentKids
			if unitCST != nil {
				scopedKids = append(scopedKids, unitCST)
			}
			if scoped := partial("Scoped", scopedKids...); scoped != nil {
				kids = append(kids, scoped)
			}
			if unitAST != nil {
				stmts = append(stmts, unitAST)
			}
			return kids, stmts, err
		}
		scoped := cst.Branch("Scoped", append(indentKids, unitCST)...)
		kids = append(kids, scoped)
		stmts = append(stmts, unitAST)
	}
}

// scopedPlus requires at least one Scoped at depth n (used for indented
// blocks, which must be non-empty).
func (p *Parser) scopedPlus(c ctx) ([]*cst.Node, []ast.Node, error) {
	kids, stmts, err := p.scopedStar(c)
	if err != nil {
		return kids, stmts, err
	}
	if len(stmts) == 0 {
		return kids, stmts, p.errorf("indented block")
	}
	return kids, stmts, nil
}

// matchIndent consumes exactly n INDENT tokens if they're present and not
// followed by a further INDENT (over-indentation). It reports !matched if
// fewer than n are available; the INDENTs it already stepped over stay
// consumed, so the caller rewinds the cursor and treats that as "this block
// has ended" (a dedent) rather than an error.
func (p *Parser) matchIndent(n int) ([]*cst.Node, bool, error) {
	var kids []*cst.Node
	for i := 0; i < n; i++ {
		if !p.at(token.INDENT) {
			return nil, false, nil
		}
		kids = append(kids, cst.Leaf(p.advance()))
	}
	if p.at(token.INDENT) {
		return kids, false, p.errorf("statement at indent level " + itoa(n))
	}
	return kids, true, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// ---- Unit: if | while[l=true] | for[l=true] | continue[l] | break[l] |
//            return[f] | def[f=true] | NAME SideEffect NEWLINE ----

func (p *Parser) unit(c ctx) (*cst.Node, ast.Node, error) {
	t := p.cur()
	switch {
	case t.Kind == token.KEYWORD && t.Text == "if":
		return p.ifStmt(c)
	case t.Kind == token.KEYWORD && t.Text == "while":
		return p.whileStmt(c)
	case t.Kind == token.KEYWORD && t.Text == "for":
		return p.forStmt(c)
	case t.Kind == token.KEYWORD && t.Text == "continue" && c.inLoop:
		return p.continueStmt()
	case t.Kind == token.KEYWORD && t.Text == "break" && c.inLoop:
		return p.breakStmt()
	case t.Kind == token.KEYWORD && t.Text == "return" && c.inFunction:
		return p.returnStmt()
	case t.Kind == token.KEYWORD && t.Text == "yield" && c.inFunction:
		return p.yieldStmt()
	case t.Kind == token.KEYWORD && t.Text == "def":
		return p.funcDef(c)
	case t.Kind == token.NAME:
		return p.nameStmt(c)
	default:
		return nil, nil, p.errorf("statement")
	}
}

func (p *Parser) ifStmt(c ctx) (*cst.Node, ast.Node, error) {
	kw := p.advance()
	condCST, condAST, err := p.expr(c)
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST), nil, err
	}
	colon, err := p.expectText(token.MISC, ":", "':'")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST), nil, err
	}
	bodyCST, bodyAST, err := p.result(c)
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST, cst.Leaf(colon), bodyCST), nil, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), condCST, cst.Leaf(colon), bodyCST)
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	return node, &ast.If{At: at, Cond: condAST, Body: bodyAST.(*ast.Block)}, nil
}

func (p *Parser) whileStmt(c ctx) (*cst.Node, ast.Node, error) {
	kw := p.advance()
	condCST, condAST, err := p.expr(c)
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST), nil, err
	}
	colon, err := p.expectText(token.MISC, ":", "':'")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST), nil, err
	}
	bodyCST, bodyAST, err := p.result(c.loop())
	if err != nil {
		return partial("Unit", cst.Leaf(kw), condCST, cst.Leaf(colon), bodyCST), nil, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), condCST, cst.Leaf(colon), bodyCST)
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	return node, &ast.While{At: at, Cond: condAST, Body: bodyAST.(*ast.Block)}, nil
}

func (p *Parser) forStmt(c ctx) (*cst.Node, ast.Node, error) {
	kw := p.advance()
	nameTok, err := p.expect(token.NAME, "loop variable")
	if err != nil {
		return partial("Unit", cst.Leaf(kw)), nil, err
	}
	inTok, err := p.expectText(token.OP, "in", "'in'")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok)), nil, err
	}
	iterCST, iterAST, err := p.expr(c)
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), cst.Leaf(inTok)), nil, err
	}
	colon, err := p.expectText(token.MISC, ":", "':'")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), cst.Leaf(inTok), iterCST), nil, err
	}
	bodyCST, bodyAST, err := p.result(c.loop())
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), cst.Leaf(inTok), iterCST, cst.Leaf(colon), bodyCST), nil, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), cst.Leaf(nameTok), cst.Leaf(inTok), iterCST, cst.Leaf(colon), bodyCST)
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	return node, &ast.For{At: at, Var: nameTok.Text, Iter: iterAST, Body: bodyAST.(*ast.Block)}, nil
}

func (p *Parser) continueStmt() (*cst.Node, ast.Node, error) {
	kw := p.advance()
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Unit", cst.Leaf(kw)), &ast.Continue{At: at}, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), cst.Leaf(nl))
	return node, &ast.Continue{At: at}, nil
}

func (p *Parser) breakStmt() (*cst.Node, ast.Node, error) {
	kw := p.advance()
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Unit", cst.Leaf(kw)), &ast.Break{At: at}, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), cst.Leaf(nl))
	return node, &ast.Break{At: at}, nil
}

func (p *Parser) returnStmt() (*cst.Node, ast.Node, error) {
	kw := p.advance()
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	if p.at(token.NEWLINE) {
		nl := p.advance()
		node := cst.Branch("Unit", cst.Leaf(kw), cst.Leaf(nl))
		return node, &ast.Return{At: at, Value: nil}, nil
	}
	valCST, valAST, err := p.expr(ctx{})
	if err != nil {
		return partial("Unit", cst.Leaf(kw), valCST), nil, err
	}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), valCST), &ast.Return{At: at, Value: valAST}, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), valCST, cst.Leaf(nl))
	return node, &ast.Return{At: at, Value: valAST}, nil
}

// yieldStmt is the supplemented `yield <expr>` statement (see DESIGN.md):
// statement-level only, gated by in_function exactly like return.
func (p *Parser) yieldStmt() (*cst.Node, ast.Node, error) {
	kw := p.advance()
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	valCST, valAST, err := p.expr(ctx{})
	if err != nil {
		return partial("Unit", cst.Leaf(kw), valCST), nil, err
	}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), valCST), &ast.Yield{At: at, Value: valAST}, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), valCST, cst.Leaf(nl))
	return node, &ast.Yield{At: at, Value: valAST}, nil
}

func (p *Parser) funcDef(c ctx) (*cst.Node, ast.Node, error) {
	kw := p.advance()
	nameTok, err := p.expect(token.NAME, "function name")
	if err != nil {
		return partial("Unit", cst.Leaf(kw)), nil, err
	}
	paramsCST, paramsAST, err := p.paramsList()
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), paramsCST), nil, err
	}
	colon, err := p.expectText(token.MISC, ":", "':'")
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), paramsCST), nil, err
	}
	bodyCST, bodyAST, err := p.body(c.function())
	if err != nil {
		return partial("Unit", cst.Leaf(kw), cst.Leaf(nameTok), paramsCST, cst.Leaf(colon), bodyCST), nil, err
	}
	node := cst.Branch("Unit", cst.Leaf(kw), cst.Leaf(nameTok), paramsCST, cst.Leaf(colon), bodyCST)
	at := ast.Pos{Row: kw.Row, Col: kw.Col}
	return node, &ast.FunctionDef{At: at, Name: nameTok.Text, Params: paramsAST, Body: bodyAST.(*ast.Block)}, nil
}

// nameStmt is Unit's fallback arm: `NAME SideEffect NEWLINE`.
func (p *Parser) nameStmt(c ctx) (*cst.Node, ast.Node, error) {
	nameTok := p.advance()
	effectCST, effectAST, err := p.sideEffect(c, nameTok)
	if err != nil {
		return partial("Unit", cst.Leaf(nameTok), effectCST), nil, err
	}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Unit", cst.Leaf(nameTok), effectCST), effectAST, err
	}
	node := cst.Branch("Unit", cst.Leaf(nameTok), effectCST, cst.Leaf(nl))
	return node, effectAST, nil
}

// sideEffect: BRACKET('(') List? BRACKET(')') | Index* ASOP Expr
func (p *Parser) sideEffect(c ctx, nameTok token.Token) (*cst.Node, ast.Node, error) {
	at := ast.Pos{Row: nameTok.Row, Col: nameTok.Col}
	if p.atText(token.BRACKET, "(") {
		open := p.advance()
		argsCST, argsAST, err := p.listOrEmpty(c, token.BRACKET, ")")
		if err != nil {
			return partial("SideEffect", cst.Leaf(open), argsCST), nil, err
		}
		close, err := p.expectText(token.BRACKET, ")", "')'")
		if err != nil {
			callee := &ast.Variable{At: at, Name: nameTok.Text}
			call := &ast.FunctionCall{At: at, Callee: callee, Args: &ast.Arguments{At: at, Values: argsAST}}
			return partial("SideEffect", cst.Leaf(open), argsCST), call, err
		}
		node := cst.Branch("SideEffect", cst.Leaf(open), argsCST, cst.Leaf(close))
		callee := &ast.Variable{At: at, Name: nameTok.Text}
		return node, &ast.FunctionCall{At: at, Callee: callee, Args: &ast.Arguments{At: at, Values: argsAST}}, nil
	}

	var indexKids []*cst.Node
	var indices []ast.Node
	for p.atText(token.BRACKET, "[") {
		idxCST, idxAST, err := p.index(c)
		if err != nil {
			if idxCST != nil {
				indexKids = append(indexKids, idxCST)
			}
			return partial("SideEffect", indexKids...), nil, err
		}
		indexKids = append(indexKids, idxCST)
		indices = append(indices, idxAST)
	}

	asop, err := p.expect(token.ASOP, "assignment operator")
	if err != nil {
		return partial("SideEffect", indexKids...), nil, err
	}
	valCST, valAST, err := p.expr(c)
	if err != nil {
		return partial("SideEffect", append(indexKids, cst.Leaf(asop), valCST)...), nil, err
	}

	var target ast.Node
	if len(indices) == 0 {
		target = &ast.Variable{At: at, Name: nameTok.Text}
	} else {
		target = &ast.IndexChain{At: at, Base: &ast.Variable{At: at, Name: nameTok.Text}, Indices: indices}
	}
	node := cst.Branch("SideEffect", append(append(indexKids, cst.Leaf(asop)), valCST)...)
	return node, &ast.AssignOp{At: at, Target: target, Op: asop.Text, Value: valAST}, nil
}

// result: NEWLINE Scoped+ [n+=1] | NAME SideEffect NEWLINE
func (p *Parser) result(c ctx) (*cst.Node, ast.Node, error) {
	at := ast.Pos{Row: p.cur().Row, Col: p.cur().Col}
	if p.at(token.NEWLINE) {
		nl := p.advance()
		kids, stmts, err := p.scopedPlus(c.nested())
		if err != nil {
			node := partial("Result", append([]*cst.Node{cst.Leaf(nl)}, kids...)...)
			return node, &ast.Block{At: at, Stmts: stmts}, err
		}
		node := cst.Branch("Result", append([]*cst.Node{cst.Leaf(nl)}, kids...)...)
		return node, &ast.Block{At: at, Stmts: stmts}, nil
	}
	nameTok, err := p.expect(token.NAME, "indented block or statement")
	if err != nil {
		return nil, nil, err
	}
	effectCST, effectAST, err := p.sideEffect(c, nameTok)
	if err != nil {
		var stmts []ast.Node
		if effectAST != nil {
			stmts = append(stmts, effectAST)
		}
		return partial("Result", cst.Leaf(nameTok), effectCST), &ast.Block{At: at, Stmts: stmts}, err
	}
	nl, err := p.expect(token.NEWLINE, "newline")
	if err != nil {
		return partial("Result", cst.Leaf(nameTok), effectCST), &ast.Block{At: at, Stmts: []ast.Node{effectAST}}, err
	}
	node := cst.Branch("Result", cst.Leaf(nameTok), effectCST, cst.Leaf(nl))
	return node, &ast.Block{At: at, Stmts: []ast.Node{effectAST}}, nil
}

// body: NEWLINE Scoped+ [n+=1] | KEYWORD(Return) Expr NEWLINE
func (p *Parser) body(c ctx) (*cst.Node, ast.Node, error) {
	at := ast.Pos{Row: p.cur().Row, Col: p.cur().Col}
	if p.at(token.NEWLINE) {
		nl := p.advance()
		kids, stmts, err := p.scopedPlus(c.nested())
		if err != nil {
			node := partial("Body", append([]*cst.Node{cst.Leaf(nl)}, kids...)...)
			return node, &ast.Block{At: at, Stmts: stmts}, err
		}
		node := cst.Branch("Body", append([]*cst.Node{cst.Leaf(nl)}, kids...)...)
		return node, &ast.Block{At: at, Stmts: stmts}, nil
	}
	kw, err := p.expectText(token.KEYWORD, "return", "'return' or newline")
	if err != nil {
		return nil, nil, err
	}
	valCST, valAST, err := p.expr(c)
	if err != nil {
		return partial("Body", cst.Leaf(kw), valCST), nil, err
	}
	nl, err := p.expect(token.NEWLINE, "newline")
	ret := &ast.Return{At: ast.Pos{Row: kw.Row, Col: kw.Col}, Value: valAST}
	if err != nil {
		return partial("Body", cst.Leaf(kw), valCST), &ast.Block{At: at, Stmts: []ast.Node{ret}}, err
	}
	node := cst.Branch("Body", cst.Leaf(kw), valCST, cst.Leaf(nl))
	return node, &ast.Block{At: at, Stmts: []ast.Node{ret}}, nil
}

func (p *Parser) paramsList() (*cst.Node, *ast.ParamsList, error) {
	open, err := p.expectText(token.BRACKET, "(", "'('")
	if err != nil {
		return nil, nil, err
	}
	at := ast.Pos{Row: open.Row, Col: open.Col}
	kids := []*cst.Node{cst.Leaf(open)}
	var names []string
	if !p.atText(token.BRACKET, ")") {
		nameTok, err := p.expect(token.NAME, "parameter name")
		if err != nil {
			return cst.Branch("ParamsList", kids...), &ast.ParamsList{At: at, Names: names}, err
		}
		names = append(names, nameTok.Text)
		kids = append(kids, cst.Leaf(nameTok))
		for p.atText(token.MISC, ",") {
			comma := p.advance()
			nameTok, err := p.expect(token.NAME, "parameter name")
			if err != nil {
				kids = append(kids, cst.Leaf(comma))
				return cst.Branch("ParamsList", kids...), &ast.ParamsList{At: at, Names: names}, err
			}
			names = append(names, nameTok.Text)
			kids = append(kids, cst.Leaf(comma), cst.Leaf(nameTok))
		}
	}
	close, err := p.expectText(token.BRACKET, ")", "')'")
	if err != nil {
		return cst.Branch("ParamsList", kids...), &ast.ParamsList{At: at, Names: names}, err
	}
	kids = append(kids, cst.Leaf(close))
	return cst.Branch("ParamsList", kids...), &ast.ParamsList{At: at, Names: names}, nil
}

// ---- Expr: ExprUnary ExprBinary* ----

func (p *Parser) expr(c ctx) (*cst.Node, ast.Node, error) {
	headCST, headAST, err := p.exprUnary(c)
	if err != nil {
		return partial("Expr", headCST), headAST, err
	}
	kids := []*cst.Node{headCST}
	var tail []ast.OpOperand
	for p.at(token.OP) && isBinary(p.cur().Text) {
		opTok := p.advance()
		rhsCST, rhsAST, err := p.exprUnit(c)
		if err != nil {
			kids = append(kids, cst.Leaf(opTok))
			if rhsCST != nil {
				kids = append(kids, rhsCST)
			}
			node := cst.Branch("Expr", kids...)
			if len(tail) == 0 {
				return node, headAST, err
			}
			at := headAST.Position()
			return node, &ast.BinaryOpChain{At: at, Head: headAST, Tail: tail}, err
		}
		kids = append(kids, cst.Leaf(opTok), rhsCST)
		opAt := ast.Pos{Row: opTok.Row, Col: opTok.Col}
		tail = append(tail, ast.OpOperand{At: opAt, Op: opTok.Text, Rhs: rhsAST})
	}
	node := cst.Branch("Expr", kids...)
	if len(tail) == 0 {
		return node, headAST, nil
	}
	at := headAST.Position()
	return node, &ast.BinaryOpChain{At: at, Head: headAST, Tail: tail}, nil
}

func isBinary(op string) bool {
	return op != "not"
}

// exprUnary: OP(Minus) ExprUnit | OP(Not) ExprUnit | ExprUnit
func (p *Parser) exprUnary(c ctx) (*cst.Node, ast.Node, error) {
	if p.atText(token.OP, "-") || p.atText(token.OP, "not") {
		opTok := p.advance()
		operandCST, operandAST, err := p.exprUnit(c)
		if err != nil {
			return partial("ExprUnary", cst.Leaf(opTok), operandCST), nil, err
		}
		node := cst.Branch("ExprUnary", cst.Leaf(opTok), operandCST)
		at := ast.Pos{Row: opTok.Row, Col: opTok.Col}
		return node, &ast.UnaryOp{At: at, Op: opTok.Text, Operand: operandAST}, nil
	}
	inner, innerAST, err := p.exprUnit(c)
	if err != nil {
		return partial("ExprUnary", inner), innerAST, err
	}
	return cst.Branch("ExprUnary", inner), innerAST, nil
}

// exprUnit: NAME NameExpr | BRACKET('(') Expr BRACKET(')') |
//           BRACKET('[') List? BRACKET(']') | BRACKET('{') BracExpr? BRACKET('}') |
//           STRING | NUMBER | BOOLEAN
func (p *Parser) exprUnit(c ctx) (*cst.Node, ast.Node, error) {
	t := p.cur()
	switch {
	case t.Kind == token.NAME:
		nameTok := p.advance()
		return p.nameExpr(c, nameTok)

	case t.Kind == token.BRACKET && t.Text == "(":
		open := p.advance()
		innerCST, innerAST, err := p.expr(c)
		if err != nil {
			return partial("ExprUnit", cst.Leaf(open), innerCST), nil, err
		}
		close, err := p.expectText(token.BRACKET, ")", "')'")
		if err != nil {
			at := ast.Pos{Row: open.Row, Col: open.Col}
			return partial("ExprUnit", cst.Leaf(open), innerCST), &ast.Expr{At: at, Inner: innerAST}, err
		}
		node := cst.Branch("ExprUnit", cst.Leaf(open), innerCST, cst.Leaf(close))
		at := ast.Pos{Row: open.Row, Col: open.Col}
		return node, &ast.Expr{At: at, Inner: innerAST}, nil

	case t.Kind == token.BRACKET && t.Text == "[":
		open := p.advance()
		elemsCST, elemsAST, err := p.listOrEmpty(c, token.BRACKET, "]")
		if err != nil {
			at := ast.Pos{Row: open.Row, Col: open.Col}
			return partial("ExprUnit", cst.Leaf(open), elemsCST), &ast.List{At: at, Elements: elemsAST}, err
		}
		close, err := p.expectText(token.BRACKET, "]", "']'")
		if err != nil {
			at := ast.Pos{Row: open.Row, Col: open.Col}
			return partial("ExprUnit", cst.Leaf(open), elemsCST), &ast.List{At: at, Elements: elemsAST}, err
		}
		node := cst.Branch("ExprUnit", cst.Leaf(open), elemsCST, cst.Leaf(close))
		at := ast.Pos{Row: open.Row, Col: open.Col}
		return node, &ast.List{At: at, Elements: elemsAST}, nil

	case t.Kind == token.BRACKET && t.Text == "{":
		open := p.advance()
		at := ast.Pos{Row: open.Row, Col: open.Col}
		if p.atText(token.BRACKET, "}") {
			close := p.advance()
			node := cst.Branch("ExprUnit", cst.Leaf(open), cst.Leaf(close))
			return node, &ast.Dict{At: at}, nil
		}
		bracCST, bracAST, err := p.bracExpr(c)
		if err != nil {
			return partial("ExprUnit", cst.Leaf(open), bracCST), bracAST, err
		}
		close, err := p.expectText(token.BRACKET, "}", "'}'")
		if err != nil {
			return partial("ExprUnit", cst.Leaf(open), bracCST), bracAST, err
		}
		node := cst.Branch("ExprUnit", cst.Leaf(open), bracCST, cst.Leaf(close))
		return node, bracAST, nil

	case t.Kind == token.STRING:
		tok := p.advance()
		node := cst.Branch("ExprUnit", cst.Leaf(tok))
		at := ast.Pos{Row: tok.Row, Col: tok.Col}
		return node, &ast.String{At: at, Value: tok.Literal.(string)}, nil

	case t.Kind == token.NUMBER:
		tok := p.advance()
		node := cst.Branch("ExprUnit", cst.Leaf(tok))
		at := ast.Pos{Row: tok.Row, Col: tok.Col}
		return node, &ast.Number{At: at, Value: tok.Literal.(float64)}, nil

	case t.Kind == token.BOOL:
		tok := p.advance()
		node := cst.Branch("ExprUnit", cst.Leaf(tok))
		at := ast.Pos{Row: tok.Row, Col: tok.Col}
		return node, &ast.Boolean{At: at, Value: tok.Literal.(bool)}, nil

	default:
		return nil, nil, p.errorf("expression")
	}
}

// nameExpr: BRACKET('(') List? BRACKET(')') | Index*
func (p *Parser) nameExpr(c ctx, nameTok token.Token) (*cst.Node, ast.Node, error) {
	at := ast.Pos{Row: nameTok.Row, Col: nameTok.Col}
	variable := &ast.Variable{At: at, Name: nameTok.Text}

	if p.atText(token.BRACKET, "(") {
		open := p.advance()
		argsCST, argsAST, err := p.listOrEmpty(c, token.BRACKET, ")")
		if err != nil {
			wrapped := partial("ExprUnit", cst.Leaf(nameTok), partial("NameExpr", cst.Leaf(open), argsCST))
			return wrapped, variable, err
		}
		close, err := p.expectText(token.BRACKET, ")", "')'")
		if err != nil {
			call := &ast.FunctionCall{At: at, Callee: variable, Args: &ast.Arguments{At: at, Values: argsAST}}
			wrapped := partial("ExprUnit", cst.Leaf(nameTok), partial("NameExpr", cst.Leaf(open), argsCST))
			return wrapped, call, err
		}
		node := cst.Branch("NameExpr", cst.Leaf(open), argsCST, cst.Leaf(close))
		call := &ast.FunctionCall{At: at, Callee: variable, Args: &ast.Arguments{At: at, Values: argsAST}}
		return cst.Branch("ExprUnit", cst.Leaf(nameTok), node), call, nil
	}

	var kids []*cst.Node
	var indices []ast.Node
	for p.atText(token.BRACKET, "[") {
		idxCST, idxAST, err := p.index(c)
		if err != nil {
			if idxCST != nil {
				kids = append(kids, idxCST)
			}
			wrapped := partial("ExprUnit", cst.Leaf(nameTok), partial("NameExpr", kids...))
			var partialAST ast.Node = variable
			if len(indices) > 0 {
				partialAST = &ast.IndexChain{At: at, Base: variable, Indices: indices}
			}
			return wrapped, partialAST, err
		}
		kids = append(kids, idxCST)
		indices = append(indices, idxAST)
	}
	node := cst.Branch("NameExpr", kids...)
	wrapped := cst.Branch("ExprUnit", cst.Leaf(nameTok), node)
	if len(indices) == 0 {
		return wrapped, variable, nil
	}
	return wrapped, &ast.IndexChain{At: at, Base: variable, Indices: indices}, nil
}

// index: BRACKET('[') Expr BRACKET(']')
func (p *Parser) index(c ctx) (*cst.Node, ast.Node, error) {
	open, err := p.expectText(token.BRACKET, "[", "'['")
	if err != nil {
		return nil, nil, err
	}
	idxCST, idxAST, err := p.expr(c)
	if err != nil {
		return partial("Index", cst.Leaf(open), idxCST), idxAST, err
	}
	close, err := p.expectText(token.BRACKET, "]", "']'")
	if err != nil {
		return partial("Index", cst.Leaf(open), idxCST), idxAST, err
	}
	return cst.Branch("Index", cst.Leaf(open), idxCST, cst.Leaf(close)), idxAST, nil
}

// bracExpr: Dict | List, disambiguated by a two-token lookahead: STRING
// followed by MISC(":") selects Dict.
func (p *Parser) bracExpr(c ctx) (*cst.Node, ast.Node, error) {
	if p.at(token.STRING) && p.peekAt(1).Kind == token.MISC && p.peekAt(1).Text == ":" {
		return p.dict(c)
	}
	elemsCST, elemsAST, err := p.list(c)
	if err != nil {
		if len(elemsAST) == 0 {
			return elemsCST, nil, err
		}
		at := elemsAST[0].Position()
		return partial("BracExpr", elemsCST), &ast.Set{At: at, Elements: elemsAST}, err
	}
	at := elemsAST[0].Position()
	return cst.Branch("BracExpr", elemsCST), &ast.Set{At: at, Elements: elemsAST}, nil
}

func (p *Parser) peekAt(n int) token.Token {
	idx := p.pos + n
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *Parser) dict(c ctx) (*cst.Node, ast.Node, error) {
	keyTok, err := p.expect(token.STRING, "string key")
	if err != nil {
		return nil, nil, err
	}
	at := ast.Pos{Row: keyTok.Row, Col: keyTok.Col}
	colon, err := p.expectText(token.MISC, ":", "':'")
	if err != nil {
		return partial("BracExpr", partial("Dict", cst.Leaf(keyTok))), nil, err
	}
	valCST, valAST, err := p.expr(c)
	if err != nil {
		dictPartial := partial("Dict", cst.Leaf(keyTok), cst.Leaf(colon), valCST)
		return partial("BracExpr", dictPartial), nil, err
	}
	keys := []ast.Node{&ast.String{At: at, Value: keyTok.Literal.(string)}}
	values := []ast.Node{valAST}
	kids := []*cst.Node{cst.Leaf(keyTok), cst.Leaf(colon), valCST}

	for p.atText(token.MISC, ",") {
		comma := p.advance()
		keyTok, err := p.expect(token.STRING, "string key")
		if err != nil {
			kids = append(kids, cst.Leaf(comma))
			node := cst.Branch("BracExpr", cst.Branch("Dict", kids...))
			return node, &ast.Dict{At: at, Keys: keys, Values: values}, err
		}
		colon, err := p.expectText(token.MISC, ":", "':'")
		if err != nil {
			kids = append(kids, cst.Leaf(comma), cst.Leaf(keyTok))
			node := cst.Branch("BracExpr", cst.Branch("Dict", kids...))
			return node, &ast.Dict{At: at, Keys: keys, Values: values}, err
		}
		valCST, valAST, err := p.expr(c)
		if err != nil {
			kids = append(kids, cst.Leaf(comma), cst.Leaf(keyTok), cst.Leaf(colon))
			if valCST != nil {
				kids = append(kids, valCST)
			}
			node := cst.Branch("BracExpr", cst.Branch("Dict", kids...))
			return node, &ast.Dict{At: at, Keys: keys, Values: values}, err
		}
		keys = append(keys, &ast.String{At: ast.Pos{Row: keyTok.Row, Col: keyTok.Col}, Value: keyTok.Literal.(string)})
		values = append(values, valAST)
		kids = append(kids, cst.Leaf(comma), cst.Leaf(keyTok), cst.Leaf(colon), valCST)
	}
	node := cst.Branch("BracExpr", cst.Branch("Dict", kids...))
	return node, &ast.Dict{At: at, Keys: keys, Values: values}, nil
}

// list parses Expr (MISC(",") Expr)*, used for list literals, call
// arguments, and set literals alike. On a failing element it still
// returns every element already parsed, so a caller like bracExpr can
// recover a partial Set/Dict instead of losing the whole literal.
func (p *Parser) list(c ctx) (*cst.Node, []ast.Node, error) {
	firstCST, firstAST, err := p.expr(c)
	if err != nil {
		if firstCST == nil {
			return nil, nil, err
		}
		var elems []ast.Node
		if firstAST != nil {
			elems = []ast.Node{firstAST}
		}
		return cst.Branch("List", firstCST), elems, err
	}
	kids := []*cst.Node{firstCST}
	elems := []ast.Node{firstAST}
	for p.atText(token.MISC, ",") {
		comma := p.advance()
		nextCST, nextAST, err := p.expr(c)
		if err != nil {
			kids = append(kids, cst.Leaf(comma))
			if nextCST != nil {
				kids = append(kids, nextCST)
			}
			if nextAST != nil {
				elems = append(elems, nextAST)
			}
			return cst.Branch("List", kids...), elems, err
		}
		kids = append(kids, cst.Leaf(comma), nextCST)
		elems = append(elems, nextAST)
	}
	return cst.Branch("List", kids...), elems, nil
}

// listOrEmpty parses `List?`: zero elements when the very next token is the
// closer the caller is about to expect, otherwise delegates to list.
func (p *Parser) listOrEmpty(c ctx, closerKind token.Kind, closerText string) (*cst.Node, []ast.Node, error) {
	if p.atText(closerKind, closerText) {
		return cst.Branch("List"), nil, nil
	}
	return p.list(c)
}

// Package parser is the recursive-descent parser consuming package lexer's
// token stream and producing the package ast tree described in the
// external interface contract's PEG grammar.
package parser

import (
	"fmt"

	"github.com/arcjustin/bpfscript/ast"
	"github.com/arcjustin/bpfscript/lexer"
)

// SyntaxError is returned for any parse failure; Line is 1-based.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Message)
}

// Parser turns a token stream into a ScriptDef.
type Parser struct {
	lex  *lexer.Lexer
	tok  lexer.Token
	line int
}

// Parse lexes and parses source in one call.
func Parse(source string) (*ast.ScriptDef, error) {
	p := &Parser{lex: lexer.New(source), line: 1}
	if err := p.next(); err != nil {
		return nil, err
	}
	return p.parseScript()
}

func (p *Parser) next() error {
	tok, err := p.lex.Next()
	if err != nil {
		return &SyntaxError{Line: p.line, Message: err.Error()}
	}
	p.tok = tok
	p.line = tok.Line
	return nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Message: fmt.Sprintf(format, args...)}
}

func (p *Parser) expectSymbol(s string) error {
	if p.tok.Kind != lexer.Symbol || p.tok.Text != s {
		return p.errorf("expected %q, got %q", s, p.tok.Text)
	}
	return p.next()
}

func (p *Parser) expectKeyword(k string) error {
	if p.tok.Kind != lexer.Keyword || p.tok.Text != k {
		return p.errorf("expected keyword %q, got %q", k, p.tok.Text)
	}
	return p.next()
}

func (p *Parser) expectIdent() (string, error) {
	if p.tok.Kind != lexer.Ident {
		return "", p.errorf("expected identifier, got %q", p.tok.Text)
	}
	name := p.tok.Text
	return name, p.next()
}

func (p *Parser) isSymbol(s string) bool {
	return p.tok.Kind == lexer.Symbol && p.tok.Text == s
}

func (p *Parser) isKeyword(k string) bool {
	return p.tok.Kind == lexer.Keyword && p.tok.Text == k
}

// mark captures enough state to backtrack past one token of lookahead:
// the lexer's scan position plus the token/line already pulled from it.
type mark struct {
	lex lexer.Mark
	tok lexer.Token
	line int
}

func (p *Parser) save() mark {
	return mark{lex: p.lex.Save(), tok: p.tok, line: p.line}
}

func (p *Parser) restore(m mark) {
	p.lex.Restore(m.lex)
	p.tok = m.tok
	p.line = m.line
}

// ScriptDef = InputLine { NewLine Expression } EOF
func (p *Parser) parseScript() (*ast.ScriptDef, error) {
	input, err := p.parseInputLine()
	if err != nil {
		return nil, err
	}

	var exprs []ast.Expression
	for p.tok.Kind != lexer.EOF {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}

	return &ast.ScriptDef{Input: *input, Exprs: exprs}, nil
}

// InputLine = 'fn' '(' [ TypedArg { ',' TypedArg } ] ')'
func (p *Parser) parseInputLine() (*ast.InputLine, error) {
	if err := p.expectKeyword("fn"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	var args []ast.TypedArg
	for !p.isSymbol(")") {
		arg, err := p.parseTypedArg()
		if err != nil {
			return nil, err
		}
		args = append(args, *arg)
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return &ast.InputLine{Args: args}, nil
}

// TypedArg = Ident ':' TypeDecl
func (p *Parser) parseTypedArg() (*ast.TypedArg, error) {
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectSymbol(":"); err != nil {
		return nil, err
	}
	decl, err := p.parseTypeDecl()
	if err != nil {
		return nil, err
	}
	return &ast.TypedArg{Name: name, Type: *decl}, nil
}

// TypeDecl = [ '&' ] Ident
func (p *Parser) parseTypeDecl() (*ast.TypeDecl, error) {
	isRef := false
	if p.isSymbol("&") {
		isRef = true
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	return &ast.TypeDecl{IsRef: isRef, Name: name}, nil
}

// Expression = Assignment | FunctionCall | Return | IfStatement
func (p *Parser) parseExpression() (ast.Expression, error) {
	switch {
	case p.isKeyword("return"):
		return p.parseReturn()
	case p.isKeyword("if"):
		return p.parseIfStatement()
	case p.tok.Kind == lexer.Ident:
		return p.parseAssignmentOrCall()
	case p.isSymbol("&") || p.isSymbol("*"):
		// An assignment whose LValue carries a prefix.
		return p.parseAssignmentOrCall()
	default:
		return nil, p.errorf("unexpected token %q at start of expression", p.tok.Text)
	}
}

// Disambiguates `ident(...)` (a bare FunctionCall expression) from
// `lvalue [: TypeDecl] = rvalue` (an Assignment), and `&ident`/`*ident`
// assignments, by parsing the LValue/name first and branching on what
// follows.
func (p *Parser) parseAssignmentOrCall() (ast.Expression, error) {
	if p.tok.Kind == lexer.Ident && !p.isSymbol("&") && !p.isSymbol("*") {
		name := p.tok.Text
		// Peek: a bare identifier followed directly by '(' is a call.
		m := p.save()
		if err := p.next(); err != nil {
			return nil, err
		}
		if p.isSymbol("(") {
			return p.parseFunctionCallArgs(name)
		}
		p.restore(m)
	}

	left, err := p.parseLValue()
	if err != nil {
		return nil, err
	}

	var typeName *ast.TypeDecl
	if p.isSymbol(":") {
		if err := p.next(); err != nil {
			return nil, err
		}
		decl, err := p.parseTypeDecl()
		if err != nil {
			return nil, err
		}
		typeName = decl
	}

	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}

	right, err := p.parseRValue()
	if err != nil {
		return nil, err
	}

	return &ast.Assignment{Left: *left, TypeName: typeName, Right: right}, nil
}

// FunctionCall = Ident '(' [ RValue { ',' RValue } ] ')'
func (p *Parser) parseFunctionCallArgs(name string) (*ast.FunctionCall, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}

	var args []ast.RValue
	for !p.isSymbol(")") {
		rv, err := p.parseRValue()
		if err != nil {
			return nil, err
		}
		args = append(args, rv)
		if p.isSymbol(",") {
			if err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}

	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	return &ast.FunctionCall{Name: name, Args: args}, nil
}

// Return = 'return' [ RValue ]
func (p *Parser) parseReturn() (*ast.Return, error) {
	if err := p.expectKeyword("return"); err != nil {
		return nil, err
	}

	if p.tok.Kind == lexer.EOF || p.isSymbol("}") {
		return &ast.Return{}, nil
	}

	rv, err := p.parseRValue()
	if err != nil {
		return nil, err
	}
	return &ast.Return{Value: &rv}, nil
}

// IfStatement = 'if' Condition '{' {Expression} '}' [ 'else' '{' {Expression} '}' ]
func (p *Parser) parseIfStatement() (*ast.IfStatement, error) {
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}

	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}

	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	var body []ast.Expression
	for !p.isSymbol("}") {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		body = append(body, expr)
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	var elseBody []ast.Expression
	if p.isKeyword("else") {
		if err := p.next(); err != nil {
			return nil, err
		}
		if err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		for !p.isSymbol("}") {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			elseBody = append(elseBody, expr)
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}

	return &ast.IfStatement{Cond: *cond, Exprs: body, ElseExprs: elseBody}, nil
}

// Condition = RValue WS Comparator WS RValue
func (p *Parser) parseCondition() (*ast.Condition, error) {
	left, err := p.parseRValue()
	if err != nil {
		return nil, err
	}

	if p.tok.Kind != lexer.Compare {
		return nil, p.errorf("expected comparator, got %q", p.tok.Text)
	}
	op, err := comparatorFromText(p.tok.Text)
	if err != nil {
		return nil, p.errorf("%s", err)
	}
	if err := p.next(); err != nil {
		return nil, err
	}

	right, err := p.parseRValue()
	if err != nil {
		return nil, err
	}

	return &ast.Condition{Left: left, Op: op, Right: right}, nil
}

func comparatorFromText(s string) (ast.Comparator, error) {
	switch s {
	case "==":
		return ast.Eq, nil
	case "!=":
		return ast.Ne, nil
	case "<":
		return ast.Lt, nil
	case "<=":
		return ast.Le, nil
	case ">":
		return ast.Gt, nil
	case ">=":
		return ast.Ge, nil
	default:
		return 0, fmt.Errorf("unknown comparator %q", s)
	}
}

// RValue = FunctionCall | Immediate | LValue
func (p *Parser) parseRValue() (ast.RValue, error) {
	if p.tok.Kind == lexer.Number {
		text := p.tok.Text
		if err := p.next(); err != nil {
			return ast.RValue{}, err
		}
		return ast.RValue{Kind: ast.RImmediate, Immediate: text}, nil
	}

	if p.tok.Kind == lexer.Ident {
		name := p.tok.Text
		m := p.save()
		if err := p.next(); err != nil {
			return ast.RValue{}, err
		}
		if p.isSymbol("(") {
			call, err := p.parseFunctionCallArgs(name)
			if err != nil {
				return ast.RValue{}, err
			}
			return ast.RValue{Kind: ast.RFunctionCall, Call: *call}, nil
		}
		p.restore(m)
	}

	lv, err := p.parseLValue()
	if err != nil {
		return ast.RValue{}, err
	}
	return ast.RValue{Kind: ast.RLValue, LValue: *lv}, nil
}

// LValue = [ '&' | '*' ] Ident { DeReference }
func (p *Parser) parseLValue() (*ast.LValue, error) {
	prefix := ast.NoPrefix
	if p.isSymbol("&") {
		prefix = ast.AddrOf
		if err := p.next(); err != nil {
			return nil, err
		}
	} else if p.isSymbol("*") {
		prefix = ast.Deref
		if err := p.next(); err != nil {
			return nil, err
		}
	}

	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var derefs []ast.DeReference
	for {
		if p.isSymbol(".") {
			if err := p.next(); err != nil {
				return nil, err
			}
			field, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			derefs = append(derefs, ast.DeReference{Kind: ast.FieldAccess, Name: field})
			continue
		}
		if p.isSymbol("[") {
			if err := p.next(); err != nil {
				return nil, err
			}
			if p.tok.Kind != lexer.Number {
				return nil, p.errorf("expected array index, got %q", p.tok.Text)
			}
			index := p.tok.Text
			if err := p.next(); err != nil {
				return nil, err
			}
			if err := p.expectSymbol("]"); err != nil {
				return nil, err
			}
			derefs = append(derefs, ast.DeReference{Kind: ast.ArrayIndex, Index: index})
			continue
		}
		break
	}

	return &ast.LValue{Prefix: prefix, Name: name, Derefs: derefs}, nil
}

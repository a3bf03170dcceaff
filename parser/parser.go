package parser

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/datasetq/dsq/ast"
	"github.com/datasetq/dsq/lexer"
	"github.com/datasetq/dsq/value"
)

// Filter is a parsed filter expression plus the source text it came from.
// The compiled form is reusable across many inputs without re-parsing.
type Filter struct {
	Root   ast.Expr
	Source string
}

// ParseError reports an unexpected token. Pos is the rune offset into the
// source text.
type ParseError struct {
	Found    string
	Pos      int
	Expected string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("expected %s, got %q at position %d", e.Expected, e.Found, e.Pos)
}

// Parser converts a token stream into an AST.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// ParseFilter parses a filter expression. Parsing is deterministic: the same
// text always yields a structurally identical AST. No semantic validation
// happens here; unknown functions and variables are compile-time errors.
func ParseFilter(input string) (*Filter, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	p := &Parser{tokens: tokens, pos: 0}

	root, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != lexer.TokenEOF {
		return nil, &ParseError{Found: tok.Val, Pos: tok.Pos, Expected: "end of input"}
	}
	return &Filter{Root: root, Source: input}, nil
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekAt(n int) lexer.Token {
	if p.pos+n >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, &ParseError{Found: tok.Val, Pos: tok.Pos, Expected: tt.String()}
	}
	return tok, nil
}

// parsePipeline handles `|`, the lowest-precedence operator.
func (p *Parser) parsePipeline() (ast.Expr, error) {
	first, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenPipe {
		return first, nil
	}
	stages := []ast.Expr{first}
	for p.peek().Type == lexer.TokenPipe {
		p.advance() // consume |
		stage, err := p.parseAssign()
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return &ast.PipeExpr{Stages: stages}, nil
}

// parseAssign handles `=` and `+=`, binding between pipeline and `or`.
func (p *Parser) parseAssign() (ast.Expr, error) {
	target, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.Type != lexer.TokenEquals && tok.Type != lexer.TokenPlusEquals {
		return target, nil
	}
	p.advance()
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if _, ok := target.(*ast.FieldExpr); !ok {
		return nil, &ParseError{Found: tok.Val, Pos: tok.Pos, Expected: "field access on the left of assignment"}
	}
	return &ast.AssignExpr{Target: target, Op: tok.Val, Value: val}, nil
}

// Precedence levels for binary operators; `and` binds tighter than `or`.
const (
	precOr   = 1
	precAnd  = 2
	precComp = 3
	precAdd  = 4
	precMul  = 5
)

func (p *Parser) parseOr() (ast.Expr, error) {
	return p.parseExprPrec(precOr)
}

func (p *Parser) parseExprPrec(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		op, prec, ok := p.peekBinaryOp()
		if !ok || prec < minPrec {
			break
		}
		p.advance() // consume the operator token

		right, err := p.parseExprPrec(prec + 1) // left-associative
		if err != nil {
			return nil, err
		}
		left = &ast.BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) peekBinaryOp() (string, int, bool) {
	switch p.peek().Type {
	case lexer.TokenOr:
		return "or", precOr, true
	case lexer.TokenAnd:
		return "and", precAnd, true
	case lexer.TokenEq:
		return "==", precComp, true
	case lexer.TokenNeq:
		return "!=", precComp, true
	case lexer.TokenLt:
		return "<", precComp, true
	case lexer.TokenGt:
		return ">", precComp, true
	case lexer.TokenLte:
		return "<=", precComp, true
	case lexer.TokenGte:
		return ">=", precComp, true
	case lexer.TokenPlus:
		return "+", precAdd, true
	case lexer.TokenMinus:
		return "-", precAdd, true
	case lexer.TokenStar:
		return "*", precMul, true
	case lexer.TokenSlash:
		return "/", precMul, true
	}
	return "", 0, false
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	if p.peek().Type == lexer.TokenNot {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "not", Operand: operand}, nil
	}
	if p.peek().Type == lexer.TokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any number of field
// accesses, bracket accessors, and `?` suffixes.
func (p *Parser) parsePostfix() (ast.Expr, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Type {
		case lexer.TokenDot:
			next := p.peekAt(1)
			if next.Type == lexer.TokenIdent {
				p.advance() // consume .
				tok := p.advance()
				left = chainField(left, tok.Val)
				continue
			}
			if next.Type == lexer.TokenLBracket {
				p.advance() // consume .
				p.advance() // consume [
				step, err := p.parseBracket()
				if err != nil {
					return nil, err
				}
				left = chain(left, step)
				continue
			}
			return left, nil
		case lexer.TokenLBracket:
			// `.a[0]` indexes the preceding access without a second dot.
			p.advance() // consume [
			step, err := p.parseBracket()
			if err != nil {
				return nil, err
			}
			left = chain(left, step)
			continue
		case lexer.TokenQuestion:
			p.advance()
			left = &ast.TryExpr{Operand: left}
			continue
		default:
			return left, nil
		}
	}
}

// parseBracket parses the inside of `.[...]` after the opening bracket:
// empty brackets iterate, a string is field access, `a:b` is a slice, and
// anything else is an index expression.
func (p *Parser) parseBracket() (ast.Expr, error) {
	// .[]
	if p.peek().Type == lexer.TokenRBracket {
		p.advance()
		return &ast.IterateExpr{}, nil
	}

	// .[:to]
	if p.peek().Type == lexer.TokenColon {
		p.advance()
		to, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRBracket); err != nil {
			return nil, err
		}
		return &ast.SliceExpr{To: to}, nil
	}

	// .["name"]
	if p.peek().Type == lexer.TokenString && p.peekAt(1).Type == lexer.TokenRBracket {
		tok := p.advance()
		p.advance() // consume ]
		return &ast.FieldExpr{Names: []string{tok.Val}}, nil
	}

	first, err := p.parsePipeline()
	if err != nil {
		return nil, err
	}

	// .[from:] or .[from:to]
	if p.peek().Type == lexer.TokenColon {
		p.advance()
		var to ast.Expr
		if p.peek().Type != lexer.TokenRBracket {
			to, err = p.parsePipeline()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(lexer.TokenRBracket); err != nil {
			return nil, err
		}
		return &ast.SliceExpr{From: first, To: to}, nil
	}

	// .[n]
	if _, err := p.expect(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	return &ast.IndexExpr{Index: first}, nil
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	tok := p.peek()

	switch tok.Type {
	case lexer.TokenDot:
		// Bare `.` is identity; `.name` and `.[...]` are handled by the
		// postfix loop, which sees the Dot still pending.
		if p.peekAt(1).Type == lexer.TokenIdent || p.peekAt(1).Type == lexer.TokenLBracket {
			return &ast.IdentityExpr{}, nil
		}
		p.advance()
		return &ast.IdentityExpr{}, nil

	case lexer.TokenInt:
		p.advance()
		v, err := strconv.ParseInt(tok.Val, 10, 64)
		if err != nil {
			// Out of int64 range: keep exact precision.
			b, ok := new(big.Int).SetString(tok.Val, 10)
			if !ok {
				return nil, fmt.Errorf("invalid integer %q at position %d", tok.Val, tok.Pos)
			}
			return &ast.LiteralExpr{Val: value.BigVal(b)}, nil
		}
		return &ast.LiteralExpr{Val: value.IntVal(v)}, nil

	case lexer.TokenFloat:
		p.advance()
		v, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q at position %d", tok.Val, tok.Pos)
		}
		return &ast.LiteralExpr{Val: value.FloatVal(v)}, nil

	case lexer.TokenString:
		p.advance()
		return &ast.LiteralExpr{Val: value.StrVal(tok.Val)}, nil

	case lexer.TokenTrue:
		p.advance()
		return &ast.LiteralExpr{Val: value.BoolVal(true)}, nil

	case lexer.TokenFalse:
		p.advance()
		return &ast.LiteralExpr{Val: value.BoolVal(false)}, nil

	case lexer.TokenNull:
		p.advance()
		return &ast.LiteralExpr{Val: value.Null()}, nil

	case lexer.TokenVar:
		p.advance()
		return &ast.VarExpr{Name: tok.Val}, nil

	case lexer.TokenIdent:
		p.advance()
		if p.peek().Type == lexer.TokenLParen {
			return p.parseFuncCall(tok.Val)
		}
		// A bare name is a zero-argument function call: `length`, `keys`.
		return &ast.FuncCallExpr{Name: tok.Val}, nil

	case lexer.TokenLBrace:
		return p.parseObject()

	case lexer.TokenLBracket:
		return p.parseArray()

	case lexer.TokenLParen:
		p.advance() // consume (
		expr, err := p.parsePipeline()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, &ParseError{Found: tok.Val, Pos: tok.Pos, Expected: "expression"}
	}
}

func (p *Parser) parseFuncCall(name string) (ast.Expr, error) {
	p.advance() // consume (

	var args []ast.Expr
	if p.peek().Type != lexer.TokenRParen {
		for {
			arg, err := p.parsePipeline()
			if err != nil {
				return nil, fmt.Errorf("in function %s: %w", name, err)
			}
			args = append(args, arg)
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.advance() // consume comma
		}
	}

	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, fmt.Errorf("in function %s: %w", name, err)
	}
	return &ast.FuncCallExpr{Name: name, Args: args}, nil
}

// parseObject parses `{k: v, "k": v, (expr): v, shorthand}`.
func (p *Parser) parseObject() (ast.Expr, error) {
	p.advance() // consume {

	var entries []ast.ObjectEntry
	for p.peek().Type != lexer.TokenRBrace {
		var key ast.Expr
		switch tok := p.peek(); tok.Type {
		case lexer.TokenIdent:
			p.advance()
			key = &ast.LiteralExpr{Val: value.StrVal(tok.Val)}
		case lexer.TokenString:
			p.advance()
			key = &ast.LiteralExpr{Val: value.StrVal(tok.Val)}
		case lexer.TokenLParen:
			p.advance()
			var err error
			key, err = p.parsePipeline()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRParen); err != nil {
				return nil, err
			}
		default:
			return nil, &ParseError{Found: tok.Val, Pos: tok.Pos, Expected: "object key"}
		}

		var val ast.Expr
		if p.peek().Type == lexer.TokenColon {
			p.advance()
			var err error
			val, err = p.parseOr()
			if err != nil {
				return nil, err
			}
		}
		entries = append(entries, ast.ObjectEntry{Key: key, Value: val})

		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}

	if _, err := p.expect(lexer.TokenRBrace); err != nil {
		return nil, err
	}
	return &ast.ObjectExpr{Entries: entries}, nil
}

// parseArray parses `[e1, e2, ...]`.
func (p *Parser) parseArray() (ast.Expr, error) {
	p.advance() // consume [

	var items []ast.Expr
	for p.peek().Type != lexer.TokenRBracket {
		item, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}

	if _, err := p.expect(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	return &ast.ArrayExpr{Items: items}, nil
}

// chainField appends a field access to an access chain, merging adjacent
// field accesses into one node.
func chainField(left ast.Expr, name string) ast.Expr {
	switch l := left.(type) {
	case *ast.IdentityExpr:
		return &ast.FieldExpr{Names: []string{name}}
	case *ast.FieldExpr:
		names := make([]string, len(l.Names)+1)
		copy(names, l.Names)
		names[len(l.Names)] = name
		return &ast.FieldExpr{Names: names}
	default:
		return chain(left, &ast.FieldExpr{Names: []string{name}})
	}
}

// chain composes two access steps into a pipeline, flattening nested pipes.
func chain(left, step ast.Expr) ast.Expr {
	if _, ok := left.(*ast.IdentityExpr); ok {
		return step
	}
	if pipe, ok := left.(*ast.PipeExpr); ok {
		stages := make([]ast.Expr, len(pipe.Stages)+1)
		copy(stages, pipe.Stages)
		stages[len(pipe.Stages)] = step
		return &ast.PipeExpr{Stages: stages}
	}
	return &ast.PipeExpr{Stages: []ast.Expr{left, step}}
}

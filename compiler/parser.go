package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: token stream -> AST
// ---------------------------------------------------------------------------

// Parser builds an AST from a token stream. The first syntax error aborts
// the parse.
type Parser struct {
	tokens []Token
	pos    int
}

// NewParser creates a parser over the given tokens. The slice must be
// terminated by an EOF token, as produced by Tokenize.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses source text into a Program.
func Parse(source string) (*Program, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return NewParser(tokens).ParseProgram()
}

func (p *Parser) cur() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) advance() Token {
	tok := p.cur()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(t TokenType) (Token, error) {
	tok := p.cur()
	if tok.Type != t {
		return tok, p.errorf(tok, "expected %s, got %s", t, tok)
	}
	return p.advance(), nil
}

func (p *Parser) errorf(tok Token, format string, args ...any) error {
	return fmt.Errorf("syntax error at %s: %s", tok.Pos, fmt.Sprintf(format, args...))
}

// ParseProgram parses the whole token stream into a Program.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	for p.cur().Type != TokenEOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)
	}
	return prog, nil
}

// ParseExpressionOnly parses the stream as a single expression followed by
// EOF. Used by the expression evaluation entry point.
func (p *Parser) ParseExpressionOnly() (Expression, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipSemicolon()
	if p.cur().Type != TokenEOF {
		return nil, p.errorf(p.cur(), "unexpected %s after expression", p.cur())
	}
	return expr, nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() (Statement, error) {
	switch p.cur().Type {
	case TokenVar, TokenLet, TokenConst:
		return p.parseVarStatement()
	case TokenFunction:
		return p.parseFunctionStatement()
	case TokenReturn:
		return p.parseReturnStatement()
	case TokenIf:
		return p.parseIfStatement()
	case TokenWhile:
		return p.parseWhileStatement()
	case TokenLBrace:
		return p.parseBlockStatement()
	case TokenDebugger:
		tok := p.advance()
		p.skipSemicolon()
		return &DebuggerStatement{Position: tok.Pos}, nil
	case TokenSemicolon:
		// empty statement
		tok := p.advance()
		return &BlockStatement{Position: tok.Pos}, nil
	default:
		return p.parseExpressionStatement()
	}
}

func (p *Parser) parseVarStatement() (Statement, error) {
	tok := p.advance()
	var kind DeclKind
	switch tok.Type {
	case TokenVar:
		kind = DeclVar
	case TokenLet:
		kind = DeclLet
	case TokenConst:
		kind = DeclConst
	}
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	stmt := &VarStatement{Position: tok.Pos, Kind: kind, Name: name.Literal}
	if p.cur().Type == TokenAssign {
		p.advance()
		init, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Init = init
	} else if kind == DeclConst {
		return nil, p.errorf(tok, "const declaration of %q requires an initializer", name.Literal)
	}
	p.skipSemicolon()
	return stmt, nil
}

func (p *Parser) parseFunctionStatement() (Statement, error) {
	tok := p.advance()
	name, err := p.expect(TokenIdentifier)
	if err != nil {
		return nil, err
	}
	params, err := p.parseParameterList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLBrace); err != nil {
		return nil, err
	}
	var body []Statement
	for p.cur().Type != TokenRBrace {
		if p.cur().Type == TokenEOF {
			return nil, p.errorf(p.cur(), "unterminated function body for %q", name.Literal)
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
	}
	p.advance() // }
	return &FunctionStatement{Position: tok.Pos, Name: name.Literal, Params: params, Body: body}, nil
}

func (p *Parser) parseParameterList() ([]string, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var params []string
	for p.cur().Type != TokenRParen {
		name, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		params = append(params, name.Literal)
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *Parser) parseReturnStatement() (Statement, error) {
	tok := p.advance()
	stmt := &ReturnStatement{Position: tok.Pos}
	if !p.atStatementEnd() {
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}
	p.skipSemicolon()
	return stmt, nil
}

func (p *Parser) parseIfStatement() (Statement, error) {
	tok := p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	stmt := &IfStatement{Position: tok.Pos, Condition: cond, Then: then}
	if p.cur().Type == TokenElse {
		p.advance()
		alt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt.Else = alt
	}
	return stmt, nil
}

func (p *Parser) parseWhileStatement() (Statement, error) {
	tok := p.advance()
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStatement{Position: tok.Pos, Condition: cond, Body: body}, nil
}

func (p *Parser) parseBlockStatement() (Statement, error) {
	tok := p.advance() // {
	block := &BlockStatement{Position: tok.Pos}
	for p.cur().Type != TokenRBrace {
		if p.cur().Type == TokenEOF {
			return nil, p.errorf(p.cur(), "unterminated block")
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		block.Statements = append(block.Statements, stmt)
	}
	p.advance() // }
	return block, nil
}

func (p *Parser) parseExpressionStatement() (Statement, error) {
	tok := p.cur()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	p.skipSemicolon()
	return &ExpressionStatement{Position: tok.Pos, Expression: expr}, nil
}

func (p *Parser) skipSemicolon() {
	if p.cur().Type == TokenSemicolon {
		p.advance()
	}
}

func (p *Parser) atStatementEnd() bool {
	switch p.cur().Type {
	case TokenSemicolon, TokenRBrace, TokenEOF:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() (Expression, error) {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() (Expression, error) {
	left, err := p.parseBinary()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokenAssign {
		return left, nil
	}
	tok := p.advance()
	switch left.(type) {
	case *Identifier, *MemberExpression:
	default:
		return nil, p.errorf(tok, "invalid assignment target")
	}
	value, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &AssignExpression{Position: left.Pos(), Target: left, Value: value}, nil
}

// parseBinary parses the single binary operator tier, left-associative:
// a - b + c parses as (a - b) + c.
func (p *Parser) parseBinary() (Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur().Type.IsBinaryOp() {
		op := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpression{Position: left.Pos(), Op: op.Type, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expression, error) {
	switch p.cur().Type {
	case TokenMinus, TokenBang:
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpression{Position: tok.Pos, Op: tok.Type, Operand: operand}, nil
	case TokenNew:
		return p.parseNewExpression()
	}
	return p.parsePostfix()
}

func (p *Parser) parseNewExpression() (Expression, error) {
	tok := p.advance() // new
	callee, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	// Member access binds tighter than new: new a.b() constructs a.b.
	for p.cur().Type == TokenDot {
		p.advance()
		name, err := p.expect(TokenIdentifier)
		if err != nil {
			return nil, err
		}
		callee = &MemberExpression{Position: callee.Pos(), Object: callee, Name: name.Literal}
	}
	args, err := p.parseArguments()
	if err != nil {
		return nil, err
	}
	return &NewExpression{Position: tok.Pos, Callee: callee, Args: args}, nil
}

// parsePostfix parses a primary expression followed by any chain of member
// accesses and calls.
func (p *Parser) parsePostfix() (Expression, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case TokenDot:
			p.advance()
			name, err := p.expect(TokenIdentifier)
			if err != nil {
				return nil, err
			}
			expr = &MemberExpression{Position: expr.Pos(), Object: expr, Name: name.Literal}
		case TokenLBracket:
			p.advance()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &MemberExpression{Position: expr.Pos(), Object: expr, Key: key, Computed: true}
		case TokenLParen:
			args, err := p.parseArguments()
			if err != nil {
				return nil, err
			}
			expr = &CallExpression{Position: expr.Pos(), Callee: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseArguments() ([]Expression, error) {
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var args []Expression
	for p.cur().Type != TokenRParen {
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expression, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		value, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number literal %q", tok.Literal)
		}
		return &NumberLiteral{Position: tok.Pos, Value: value}, nil
	case TokenString:
		p.advance()
		return &StringLiteral{Position: tok.Pos, Value: tok.Literal}, nil
	case TokenTrue:
		p.advance()
		return &BooleanLiteral{Position: tok.Pos, Value: true}, nil
	case TokenFalse:
		p.advance()
		return &BooleanLiteral{Position: tok.Pos, Value: false}, nil
	case TokenNull:
		p.advance()
		return &NullLiteral{Position: tok.Pos}, nil
	case TokenUndefined:
		p.advance()
		return &UndefinedLiteral{Position: tok.Pos}, nil
	case TokenIdentifier:
		p.advance()
		return &Identifier{Position: tok.Pos, Name: tok.Literal}, nil
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBrace:
		return p.parseObjectLiteral()
	case TokenLBracket:
		return p.parseArrayLiteral()
	}
	return nil, p.errorf(tok, "unexpected %s", tok)
}

func (p *Parser) parseObjectLiteral() (Expression, error) {
	tok := p.advance() // {
	obj := &ObjectLiteral{Position: tok.Pos}
	for p.cur().Type != TokenRBrace {
		key := p.cur()
		switch key.Type {
		case TokenIdentifier, TokenString:
		default:
			return nil, p.errorf(key, "expected property name, got %s", key)
		}
		p.advance()
		if _, err := p.expect(TokenColon); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		obj.Entries = append(obj.Entries, ObjectEntry{Key: key.Literal, Value: value})
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBrace); err != nil {
		return nil, err
	}
	return obj, nil
}

func (p *Parser) parseArrayLiteral() (Expression, error) {
	tok := p.advance() // [
	arr := &ArrayLiteral{Position: tok.Pos}
	for p.cur().Type != TokenRBracket {
		elem, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, elem)
		if p.cur().Type == TokenComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(TokenRBracket); err != nil {
		return nil, err
	}
	return arr, nil
}

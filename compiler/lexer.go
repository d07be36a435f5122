package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Lexer: source text -> token stream
// ---------------------------------------------------------------------------

// Lexer scans Petrel script source into a stream of tokens.
type Lexer struct {
	input   string
	pos     int  // current position (points at ch)
	readPos int  // next position
	ch      byte // current character, 0 at EOF
	line    int
	col     int
}

// NewLexer creates a lexer for the given source text.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1, col: 0}
	l.readChar()
	return l
}

// Tokenize scans the entire input and returns the token list, terminated by
// an EOF token. The first lexical error aborts the scan.
func Tokenize(input string) ([]Token, error) {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenError {
			return nil, fmt.Errorf("lexical error at %s: %s", tok.Pos, tok.Literal)
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	if l.ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken scans and returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: pos}
	case '=':
		if l.peekChar() == '=' {
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				l.readChar()
				return Token{Type: TokenStrictEq, Literal: "===", Pos: pos}
			}
			l.readChar()
			return Token{Type: TokenEq, Literal: "==", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenAssign, Literal: "=", Pos: pos}
	case '!':
		if l.peekChar() == '=' {
			l.readChar()
			if l.peekChar() == '=' {
				l.readChar()
				l.readChar()
				return Token{Type: TokenStrictNotEq, Literal: "!==", Pos: pos}
			}
			l.readChar()
			return Token{Type: TokenNotEq, Literal: "!=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenBang, Literal: "!", Pos: pos}
	case '<':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenLessEq, Literal: "<=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenLess, Literal: "<", Pos: pos}
	case '>':
		if l.peekChar() == '=' {
			l.readChar()
			l.readChar()
			return Token{Type: TokenGreaterEq, Literal: ">=", Pos: pos}
		}
		l.readChar()
		return Token{Type: TokenGreater, Literal: ">", Pos: pos}
	case '+':
		l.readChar()
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}
	case '-':
		l.readChar()
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}
	case '*':
		l.readChar()
		return Token{Type: TokenStar, Literal: "*", Pos: pos}
	case '/':
		l.readChar()
		return Token{Type: TokenSlash, Literal: "/", Pos: pos}
	case '%':
		l.readChar()
		return Token{Type: TokenPercent, Literal: "%", Pos: pos}
	case '(':
		l.readChar()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}
	case ')':
		l.readChar()
		return Token{Type: TokenRParen, Literal: ")", Pos: pos}
	case '{':
		l.readChar()
		return Token{Type: TokenLBrace, Literal: "{", Pos: pos}
	case '}':
		l.readChar()
		return Token{Type: TokenRBrace, Literal: "}", Pos: pos}
	case '[':
		l.readChar()
		return Token{Type: TokenLBracket, Literal: "[", Pos: pos}
	case ']':
		l.readChar()
		return Token{Type: TokenRBracket, Literal: "]", Pos: pos}
	case ',':
		l.readChar()
		return Token{Type: TokenComma, Literal: ",", Pos: pos}
	case ';':
		l.readChar()
		return Token{Type: TokenSemicolon, Literal: ";", Pos: pos}
	case '.':
		l.readChar()
		return Token{Type: TokenDot, Literal: ".", Pos: pos}
	case ':':
		l.readChar()
		return Token{Type: TokenColon, Literal: ":", Pos: pos}
	case '\'', '"':
		return l.readString(pos)
	}

	if isDigit(l.ch) {
		return l.readNumber(pos)
	}
	if isIdentStart(l.ch) {
		return l.readIdentifier(pos)
	}

	lit := string(l.ch)
	l.readChar()
	return Token{Type: TokenError, Literal: fmt.Sprintf("unexpected character %q", lit), Pos: pos}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// readNumber scans a decimal number: an integer part optionally followed by
// a fractional part.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readString scans a string literal delimited by a single or double quote.
// A backslash takes the following character verbatim.
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()
	var out []byte
	for l.ch != quote {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			if l.ch == 0 {
				return Token{Type: TokenError, Literal: "unterminated string literal", Pos: pos}
			}
		}
		out = append(out, l.ch)
		l.readChar()
	}
	l.readChar() // closing quote
	return Token{Type: TokenString, Literal: string(out), Pos: pos}
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isIdentPart(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if kw, ok := keywords[lit]; ok {
		return Token{Type: kw, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ch == '$' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

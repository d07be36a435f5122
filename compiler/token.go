package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Petrel script lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14
	TokenString     // 'hello', "hello"
	TokenIdentifier // foo, Bar

	// Keywords
	TokenVar
	TokenLet
	TokenConst
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenNew
	TokenTrue
	TokenFalse
	TokenNull
	TokenUndefined
	TokenDebugger

	// Operators
	TokenAssign       // =
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPercent      // %
	TokenBang         // !
	TokenEq           // ==
	TokenNotEq        // !=
	TokenStrictEq     // ===
	TokenStrictNotEq  // !==
	TokenLess         // <
	TokenGreater      // >
	TokenLessEq       // <=
	TokenGreaterEq    // >=

	// Delimiters
	TokenLParen    // (
	TokenRParen    // )
	TokenLBrace    // {
	TokenRBrace    // }
	TokenLBracket  // [
	TokenRBracket  // ]
	TokenComma     // ,
	TokenSemicolon // ;
	TokenDot       // .
	TokenColon     // :
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNumber:      "NUMBER",
	TokenString:      "STRING",
	TokenIdentifier:  "IDENTIFIER",
	TokenVar:         "var",
	TokenLet:         "let",
	TokenConst:       "const",
	TokenFunction:    "function",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenNew:         "new",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenNull:        "null",
	TokenUndefined:   "undefined",
	TokenDebugger:    "debugger",
	TokenAssign:      "=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenBang:        "!",
	TokenEq:          "==",
	TokenNotEq:       "!=",
	TokenStrictEq:    "===",
	TokenStrictNotEq: "!==",
	TokenLess:        "<",
	TokenGreater:     ">",
	TokenLessEq:      "<=",
	TokenGreaterEq:   ">=",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenComma:       ",",
	TokenSemicolon:   ";",
	TokenDot:         ".",
	TokenColon:       ":",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if t.Type == TokenError {
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}

// Keywords mapped to their token types. Identifiers matching an entry are
// reclassified by the scanner.
var keywords = map[string]TokenType{
	"var":       TokenVar,
	"let":       TokenLet,
	"const":     TokenConst,
	"function":  TokenFunction,
	"return":    TokenReturn,
	"if":        TokenIf,
	"else":      TokenElse,
	"while":     TokenWhile,
	"new":       TokenNew,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"null":      TokenNull,
	"undefined": TokenUndefined,
	"debugger":  TokenDebugger,
}

// IsBinaryOp returns true if t is a binary operator token. All binary
// operators share one precedence tier.
func (t TokenType) IsBinaryOp() bool {
	switch t {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent,
		TokenEq, TokenNotEq, TokenStrictEq, TokenStrictNotEq,
		TokenLess, TokenGreater, TokenLessEq, TokenGreaterEq:
		return true
	}
	return false
}

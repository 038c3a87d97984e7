package shell

import (
	"fmt"
	"strings"
)

type Parser struct{}

type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

type TokenType int

const (
	TokenWord TokenType = iota
	TokenBackground
)

type ParseError struct {
	Message string
	Pos     int
}

// Command is one parsed input line.
type Command struct {
	Args       []string
	Background bool
	// Line is the input as typed, minus the line terminator.
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Pos, e.Message)
}

func NewParser() *Parser {
	return &Parser{}
}

// Parse splits input into arguments. Quoted spans become one argument, and an
// unquoted '&' as the last character of the line requests a background job.
// Anywhere else '&' is an ordinary character.
func (p *Parser) Parse(input string) (Command, error) {
	line := strings.TrimRight(input, "\r\n")

	tokens, err := p.tokenize(line)
	if err != nil {
		return Command{}, err
	}

	cmd, err := p.parseTokens(tokens)
	if err != nil {
		return Command{}, err
	}
	cmd.Line = line

	return cmd, nil
}

func (p *Parser) tokenize(input string) ([]Token, error) {
	var tokens []Token
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	start := 0
	last := len(strings.TrimRight(input, " \t")) - 1

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, Token{Type: TokenWord, Value: current.String(), Pos: start})
			current.Reset()
		}
	}

	for pos, char := range input {
		if current.Len() == 0 && !inQuote {
			start = pos
		}

		switch {
		case char == '\'' || char == '"':
			if !inQuote {
				inQuote = true
				quoteChar = char
			} else if char == quoteChar {
				inQuote = false
				tokens = append(tokens, Token{Type: TokenWord, Value: current.String(), Pos: start})
				current.Reset()
			} else {
				current.WriteRune(char)
			}

		case inQuote:
			current.WriteRune(char)

		case char == '&' && pos == last:
			flush()
			tokens = append(tokens, Token{Type: TokenBackground, Value: "&", Pos: pos})

		case char == ' ' || char == '\t' || char == '\r' || char == '\n':
			flush()

		default:
			current.WriteRune(char)
		}
	}

	if inQuote {
		return nil, &ParseError{Message: "unclosed quote", Pos: len(input)}
	}

	flush()

	return tokens, nil
}

func (p *Parser) parseTokens(tokens []Token) (Command, error) {
	var cmd Command

	for _, token := range tokens {
		switch token.Type {
		case TokenWord:
			cmd.Args = append(cmd.Args, token.Value)

		case TokenBackground:
			cmd.Background = true
		}
	}

	return cmd, nil
}

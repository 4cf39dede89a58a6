package scaledsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	ruleIdent      = lexer.SimpleRule{Name: "Ident", Pattern: `[a-z][\w-]*`}
	ruleNumber     = lexer.SimpleRule{Name: "Number", Pattern: `[-+]?(\d*\.)?\d+([eE][-+]?\d+)?`}
	rulePunct      = lexer.SimpleRule{Name: "Punct", Pattern: `[(),]`}
	ruleWhitespace = lexer.SimpleRule{Name: "Whitespace", Pattern: `[ \t]+`}
)

var expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
	ruleWhitespace,
	ruleNumber,
	ruleIdent,
	rulePunct,
})

var expressionParser = participle.MustBuild[Expression](
	participle.Lexer(expressionLexer),
	participle.Elide(ruleWhitespace.Name),
)

// Expression is a scale function call such as `linear(20, 20000)`. Parentheses are optional
// for functions without arguments.
type Expression struct {
	Name      string   `parser:"@Ident" json:"name"`
	Arguments []string `parser:"( '(' ( @Number ( ',' @Number )* )? ')' )?" json:"arguments,omitempty"`
}

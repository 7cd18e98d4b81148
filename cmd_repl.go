package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/subcommands"
	"golang.org/x/sys/unix"

	"nilan/compiler"
	"nilan/lexer"
	"nilan/parser"
	"nilan/token"
)

// lineReader is the minimal surface both the readline-backed interactive
// reader and the plain bufio.Scanner fallback (for piped, non-tty stdin)
// implement.
type lineReader interface {
	SetPrompt(string)
	Readline() (string, error)
	Close() error
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (s *scannerReader) SetPrompt(string) {}

func (s *scannerReader) Readline() (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.scanner.Text(), nil
}

func (s *scannerReader) Close() error { return nil }

// isTerminal reports whether fd refers to a tty, the way readline needs to
// know before it tries to put the terminal in raw mode — piping a script's
// stdin (tests, CI) must fall back to scannerReader instead.
func isTerminal(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}

type replCmd struct {
	trace bool
}

func (*replCmd) Name() string     { return "repl" }
func (*replCmd) Synopsis() string { return "Start an interactive Nilan session" }
func (*replCmd) Usage() string {
	return `repl:
  Start an interactive session. Unfinished blocks continue onto new lines.
`
}

func (r *replCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&r.trace, "trace", false, "log every instruction the vm executes")
}

func (r *replCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println("مرحبا بك في نيلان!")

	var rl lineReader
	if isTerminal(int(os.Stdin.Fd())) {
		real, err := readline.NewEx(&readline.Config{Prompt: ">>> "})
		if err != nil {
			fmt.Fprintf(os.Stderr, "💥 تعذر بدء الجلسة التفاعلية: %v\n", err)
			return subcommands.ExitFailure
		}
		rl = real
	} else {
		rl = &scannerReader{scanner: bufio.NewScanner(os.Stdin)}
	}
	defer rl.Close()

	machine := newVM()
	machine.SetTrace(r.trace)

	var buffer strings.Builder
	for {
		if buffer.Len() == 0 {
			rl.SetPrompt(">>> ")
		} else {
			rl.SetPrompt("... ")
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				buffer.Reset()
				continue
			}
			if err == io.EOF {
				return subcommands.ExitSuccess
			}
			fmt.Fprintf(os.Stderr, "💥 %v\n", err)
			return subcommands.ExitFailure
		}

		if strings.TrimSpace(line) == "خروج" && buffer.Len() == 0 {
			return subcommands.ExitSuccess
		}

		if buffer.Len() > 0 {
			buffer.WriteString("\n")
		}
		buffer.WriteString(line)
		source := buffer.String()

		fn, ready, err := tryCompile(source)
		if !ready {
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			buffer.Reset()
			continue
		}

		if _, err := machine.Run(fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		buffer.Reset()
	}
}

// tryCompile attempts to lex, parse and compile source typed so far. ready
// is false when the input is plainly incomplete (an open brace, a trailing
// operator, a parse error sitting right at EOF) and the REPL should keep
// reading lines instead of reporting an error. Grounded on
// cmd_repl_compiled.go's isInputReady/allParseErrorsAtEOF heuristic.
func tryCompile(source string) (fn *compiler.Function, ready bool, err error) {
	lex := lexer.New(source)
	tokens, err := lex.Scan()
	if err != nil {
		return nil, true, err
	}

	if !isInputReady(tokens) {
		return nil, false, nil
	}

	p := parser.New(tokens)
	statements, perr := p.Parse()
	if perr != nil {
		errs := parseErrorList(perr)
		if allParseErrorsAtEOF(errs, tokens[len(tokens)-1]) {
			return nil, false, nil
		}
		return nil, true, formatParseErrors(perr)
	}

	c := compiler.New()
	fn, err = c.Compile(statements)
	return fn, true, err
}

// isInputReady checks for balanced braces and for a trailing token that
// plainly expects a continuation (an operator, an opening keyword) before
// letting the REPL try to parse what has been typed so far.
func isInputReady(tokens []token.Token) bool {
	braceBalance := 0
	for _, tok := range tokens {
		switch tok.TokenType {
		case token.LCUR:
			braceBalance++
		case token.RCUR:
			braceBalance--
		}
	}
	if braceBalance > 0 {
		return false
	}

	last := lastNonEOF(tokens)
	if last == nil {
		return true
	}

	switch last.TokenType {
	case token.ASSIGN, token.ADD, token.SUB, token.MULT, token.DIV, token.PERCENT,
		token.BANG, token.EQUAL_EQUAL, token.NOT_EQUAL,
		token.LESS, token.LESS_EQUAL, token.LARGER, token.LARGER_EQUAL,
		token.COMMA, token.LPA, token.LCUR, token.PIPE, token.DPIPE,
		token.IF, token.ELSE, token.ELIF, token.WHILE, token.LOOP, token.FOR, token.IN,
		token.FUNC, token.RETURN, token.VAR, token.CONST, token.AND, token.OR,
		token.THROW, token.TRY, token.CATCH, token.IMPORT, token.EXPORT, token.FROM:
		return false
	}
	return true
}

func lastNonEOF(tokens []token.Token) *token.Token {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].TokenType != token.EOF {
			return &tokens[i]
		}
	}
	return nil
}

// allParseErrorsAtEOF reports whether every parse error sits at the EOF
// token's position, meaning the user is mid-statement rather than having
// written something actually invalid.
func allParseErrorsAtEOF(errs []error, eof token.Token) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		syn, ok := e.(parser.SyntaxError)
		if !ok || syn.Line != eof.Line || syn.Column != eof.Column {
			return false
		}
	}
	return true
}

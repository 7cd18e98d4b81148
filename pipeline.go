package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"nilan/compiler"
	"nilan/lexer"
	"nilan/natives"
	"nilan/parser"
	"nilan/vm"
)

// compile runs the lexer, parser and compiler over source in sequence,
// stopping at the first phase that fails. Grounded on how cmd_run_compiled.go
// used to chain these three stages by hand.
func compile(source string) (*compiler.Function, error) {
	lex := lexer.New(source)
	tokens, err := lex.Scan()
	if err != nil {
		return nil, fmt.Errorf("خطأ في التحليل اللغوي: %w", err)
	}

	p := parser.New(tokens)
	statements, err := p.Parse()
	if err != nil {
		return nil, formatParseErrors(err)
	}

	c := compiler.New()
	fn, err := c.Compile(statements)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// formatParseErrors flattens the parser's aggregated *multierror.Error into
// one newline-joined message so callers can print it like any other error.
func formatParseErrors(err error) error {
	lines := make([]string, 0, 1)
	for _, e := range parseErrorList(err) {
		lines = append(lines, e.Error())
	}
	return fmt.Errorf("%s", strings.Join(lines, "\n"))
}

// parseErrorList unwraps a *multierror.Error into its individual errors, or
// wraps a bare error in a one-element slice. nil stays nil.
func parseErrorList(err error) []error {
	if err == nil {
		return nil
	}
	if merr, ok := err.(*multierror.Error); ok {
		return merr.Errors
	}
	return []error{err}
}

// newVM builds a vm.VM with the full native table registered, the way the
// compiled REPL/run commands both need it.
func newVM() *vm.VM {
	machine := vm.New()
	natives.Register(machine, time.Now())
	return machine
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"nilan/compiler"
)

type emitCmd struct {
	out string
}

func (*emitCmd) Name() string     { return "emit" }
func (*emitCmd) Synopsis() string { return "Compile a source file and write its disassembly to a file" }
func (*emitCmd) Usage() string {
	return `emit <file> [-out path]:
  Compile a source file and write its disassembled bytecode to a text file.
`
}

func (cmd *emitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.out, "out", "", "output path; defaults to <file>.dnic")
}

func (cmd *emitCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "💥 لم يتم تحديد ملف\n")
		return subcommands.ExitUsageError
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "💥 تعذرت قراءة الملف: %v\n", err)
		return subcommands.ExitFailure
	}

	fn, err := compile(string(data))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out := cmd.out
	if out == "" {
		base := args[0]
		if i := strings.LastIndex(base, "."); i >= 0 {
			base = base[:i]
		}
		out = base + ".dnic"
	}

	if err := os.WriteFile(out, []byte(compiler.Disassemble(fn)), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "💥 تعذرت كتابة ملف التفكيك: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

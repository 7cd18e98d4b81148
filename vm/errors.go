package vm

import (
	"fmt"
	"strings"

	"nilan/value"
)

// RuntimeError is an uncaught exception that escaped every try/catch in the
// program: either a value the script threw itself ("ارم") or one the vm
// raised for a type/arity mismatch. Frames carries a backtrace, innermost
// call first, the way a stack-based vm built for scripting normally reports
// failures.
type RuntimeError struct {
	Value  any
	Frames []string
}

func (e RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💥 خطأ غير ممسوك: %s\n", value.ToString(e.Value)))
	for _, f := range e.Frames {
		b.WriteString("  عند " + f + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

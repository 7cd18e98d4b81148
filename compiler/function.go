package compiler

// Function is a compiled, callable unit: either the implicit top-level
// script or a "دالة"/lambda body. The vm wraps a *Function in a
// value.Closure at the point an OpClosure instruction executes, pairing it
// with the upvalues it captured.
type Function struct {
	Name      string
	Arity     int
	Chunk     Bytecode
	Upvalues  []UpvalueRef
	IsLambda  bool
}

// UpvalueRef tells the vm, for slot i of a closure's captured-variable
// array, where to find the value at the moment the closure is created:
// either a local slot in the immediately enclosing frame (IsLocal) or an
// upvalue already captured by that enclosing closure.
type UpvalueRef struct {
	IsLocal bool
	Index   int
}

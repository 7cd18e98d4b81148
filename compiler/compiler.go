// This package compiles a parsed AST directly to bytecode. It walks the
// tree once, using the ast.ExpressionVisitor/ast.StmtVisitor interfaces,
// emitting instructions as it goes and backpatching jump targets once their
// destination is known.
package compiler

import (
	"fmt"

	"nilan/ast"
	"nilan/token"
)

// local is a variable declared inside a function body or block. Locals live
// on the vm's value stack rather than in a name-indexed table; the compiler
// only needs to remember which stack slot a name resolves to.
type local struct {
	name        string
	depth       int
	initialized bool
	isCaptured  bool
}

// loopContext tracks the bytecode position a "استمر" (continue) should jump
// back to and the positions of every "اكسر" (break) jump still waiting to
// be patched to the loop's exit.
type loopContext struct {
	continueTarget int
	breakJumps     []int
	scopeDepth     int
}

// funcScope is the compiler state local to one function body (or the
// implicit top-level script). Nested function/lambda literals get their own
// funcScope linked to the enclosing one via parent, which is how upvalue
// resolution walks outward through lexical scope.
type funcScope struct {
	parent     *funcScope
	fn         *Function
	locals     []local
	scopeDepth int
	loops      []loopContext
}

// Compiler turns a parsed Nilan program into a top-level Function. Globals
// are resolved by name at runtime (OpGetGlobal/OpSetGlobal pop the name off
// the stack), so the compiler does not need a separate global symbol table
// beyond tracking which names have been declared, used to give a clean
// compile-time error for references to undeclared globals.
type Compiler struct {
	current *funcScope
	globals map[string]bool
}

func New() *Compiler {
	top := &Function{Name: "برنامج"}
	// The vm runs the top-level script as a closure sitting at stack slot 0,
	// exactly like a called function, so slot 0 is reserved here too.
	self := local{name: "", depth: 0, initialized: true}
	return &Compiler{
		current: &funcScope{fn: top, locals: []local{self}},
		globals: make(map[string]bool),
	}
}

// Compile compiles a whole program's statement list into its top-level
// Function. Panics raised by the visitor methods (SemanticError,
// DeveloperError) are recovered here and returned as err, matching the
// teacher's ast_compiler.go convention of using panic/recover for
// compile-time errors so visitor methods don't all need an error return.
func (c *Compiler) Compile(statements []ast.Stmt) (fn *Function, err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case SemanticError:
				err = v
			case DeveloperError:
				err = v
			default:
				panic(r)
			}
		}
	}()

	for _, stmt := range statements {
		c.compileStmt(stmt)
	}
	c.emitConstant(nil)
	c.emit(OpReturn)
	return c.current.fn, nil
}

func (c *Compiler) compileStmt(s ast.Stmt) {
	s.Accept(c)
}

func (c *Compiler) compileExpr(e ast.Expression) {
	e.Accept(c)
}

// emit appends one instruction (with its token for runtime diagnostics) to
// the current function's chunk and returns the byte offset it was written
// at, which callers use later as a jump-patch anchor.
func (c *Compiler) emit(op Opcode, operands ...int) int {
	pos := len(c.current.fn.Chunk.Instructions)
	instr := Assemble(op, operands...)
	if instr == nil {
		panic(DeveloperError{Message: fmt.Sprintf("unknown opcode %d", op)})
	}
	c.current.fn.Chunk.Instructions = append(c.current.fn.Chunk.Instructions, instr...)
	return pos
}

// noteToken records the source position of the instruction just emitted so
// the vm can report runtime errors at the originating line/column, per
// spec.md §4.2.
func (c *Compiler) noteToken(tok token.Token) {
	chunk := &c.current.fn.Chunk
	for len(chunk.Tokens) < len(chunk.Instructions) {
		chunk.Tokens = append(chunk.Tokens, Positioned{Line: tok.Line, Column: tok.Column})
	}
}

func (c *Compiler) addConstant(v any) int {
	chunk := &c.current.fn.Chunk
	chunk.Constants = append(chunk.Constants, v)
	return len(chunk.Constants) - 1
}

// emitConstant pushes v onto the stack, choosing the 1-byte or 2-byte
// constant opcode depending on how large the pool has grown.
func (c *Compiler) emitConstant(v any) {
	idx := c.addConstant(v)
	if idx <= 0xff {
		c.emit(OpConstant8, idx)
	} else {
		c.emit(OpConstant16, idx)
	}
}

func (c *Compiler) patchJumpTo(pos int, target int) {
	ins := c.current.fn.Chunk.Instructions
	ins[pos+1] = byte(target)
	ins[pos+2] = byte(target >> 8)
}

func (c *Compiler) here() int {
	return len(c.current.fn.Chunk.Instructions)
}

// ---- scopes and locals ----

func (c *Compiler) beginScope() {
	c.current.scopeDepth++
}

// endScope pops every local declared in the scope just closed, emitting an
// OpCloseUpValue for any that were captured by a nested closure so the
// closure keeps a valid copy after the slot is gone, and a plain OpPop for
// the rest.
func (c *Compiler) endScope() {
	c.current.scopeDepth--
	locals := c.current.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.current.scopeDepth {
		last := locals[len(locals)-1]
		if last.isCaptured {
			c.emit(OpCloseUpValue)
		} else {
			c.emit(OpPop)
		}
		locals = locals[:len(locals)-1]
	}
	c.current.locals = locals
}

func (c *Compiler) declareLocal(name string) int {
	for i := len(c.current.locals) - 1; i >= 0; i-- {
		l := c.current.locals[i]
		if l.depth < c.current.scopeDepth {
			break
		}
		if l.name == name {
			panic(SemanticError{Message: fmt.Sprintf("إعادة تعريف المتغير '%s'", name)})
		}
	}
	c.current.locals = append(c.current.locals, local{name: name, depth: c.current.scopeDepth})
	return len(c.current.locals) - 1
}

func (c *Compiler) markInitialized(slot int) {
	c.current.locals[slot].initialized = true
}

func resolveLocal(fs *funcScope, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

// resolveUpvalue implements the classic closure-capture algorithm: if name
// is a local of the immediately enclosing function, capture it directly;
// otherwise recurse outward, capturing whatever upvalue the enclosing
// function itself would need. Each function's Upvalues slice is built up
// lazily as resolution discovers captures, and repeats are deduplicated.
func resolveUpvalue(fs *funcScope, name string) int {
	if fs.parent == nil {
		return -1
	}
	if slot := resolveLocal(fs.parent, name); slot != -1 {
		fs.parent.locals[slot].isCaptured = true
		return addUpvalue(fs, true, slot)
	}
	if idx := resolveUpvalue(fs.parent, name); idx != -1 {
		return addUpvalue(fs, false, idx)
	}
	return -1
}

func addUpvalue(fs *funcScope, isLocal bool, index int) int {
	for i, uv := range fs.fn.Upvalues {
		if uv.IsLocal == isLocal && uv.Index == index {
			return i
		}
	}
	fs.fn.Upvalues = append(fs.fn.Upvalues, UpvalueRef{IsLocal: isLocal, Index: index})
	return len(fs.fn.Upvalues) - 1
}

// ---- expressions ----

func (c *Compiler) VisitBinary(binary ast.Binary) any {
	c.compileExpr(binary.Left)
	c.compileExpr(binary.Right)
	switch binary.Operator.TokenType {
	case token.ADD:
		c.emit(OpAdd)
	case token.SUB:
		c.emit(OpSubtract)
	case token.MULT:
		c.emit(OpMultiply)
	case token.DIV:
		c.emit(OpDivide)
	case token.PERCENT:
		c.emit(OpRemainder)
	case token.EQUAL_EQUAL:
		c.emit(OpEqual)
	case token.NOT_EQUAL:
		c.emit(OpEqual)
		c.emit(OpNot)
	case token.LARGER:
		c.emit(OpGreater)
	case token.LARGER_EQUAL:
		c.emit(OpGreaterEqual)
	case token.LESS:
		c.emit(OpLess)
	case token.LESS_EQUAL:
		c.emit(OpLessEqual)
	}
	c.noteToken(binary.Operator)
	return nil
}

func (c *Compiler) VisitUnary(unary ast.Unary) any {
	c.compileExpr(unary.Right)
	switch unary.Operator.TokenType {
	case token.SUB:
		c.emit(OpNegate)
	case token.BANG:
		c.emit(OpNot)
	}
	c.noteToken(unary.Operator)
	return nil
}

func (c *Compiler) VisitLiteral(literal ast.Literal) any {
	c.emitConstant(literal.Value)
	return nil
}

func (c *Compiler) VisitListLiteral(list ast.ListLiteral) any {
	for _, item := range list.Items {
		c.compileExpr(item)
	}
	c.emit(OpBuildList, len(list.Items))
	c.noteToken(list.Bracket)
	return nil
}

func (c *Compiler) VisitObjectLiteral(obj ast.ObjectLiteral) any {
	for _, prop := range obj.Properties {
		c.emitConstant(prop.Name.Lexeme)
		c.compileExpr(prop.Value)
	}
	c.emit(OpBuildObject, len(obj.Properties))
	c.noteToken(obj.Brace)
	return nil
}

func (c *Compiler) VisitGrouping(grouping ast.Grouping) any {
	c.compileExpr(grouping.Expression)
	return nil
}

func (c *Compiler) VisitVariableExpression(variable ast.Variable) any {
	name := variable.Name.Lexeme
	if slot := resolveLocal(c.current, name); slot != -1 {
		if !c.current.locals[slot].initialized {
			panic(SemanticError{Message: fmt.Sprintf("لا يمكن الوصول إلى المتغير غير المهيأ '%s'", name)})
		}
		c.emit(OpGetLocal, slot)
		c.noteToken(variable.Name)
		return nil
	}
	if idx := resolveUpvalue(c.current, name); idx != -1 {
		c.emit(OpGetUpValue, idx)
		c.noteToken(variable.Name)
		return nil
	}
	if !c.globals[name] {
		panic(SemanticError{Message: fmt.Sprintf("الاسم '%s' غير معرف", name)})
	}
	c.emitConstant(name)
	c.emit(OpGetGlobal)
	c.noteToken(variable.Name)
	return nil
}

func (c *Compiler) VisitAssignExpression(assign ast.Assign) any {
	name := assign.Name.Lexeme
	c.compileExpr(assign.Value)
	if slot := resolveLocal(c.current, name); slot != -1 {
		c.current.locals[slot].initialized = true
		c.emit(OpSetLocal, slot)
		c.noteToken(assign.Name)
		return nil
	}
	if idx := resolveUpvalue(c.current, name); idx != -1 {
		c.emit(OpSetUpValue, idx)
		c.noteToken(assign.Name)
		return nil
	}
	if !c.globals[name] {
		panic(SemanticError{Message: fmt.Sprintf("الاسم '%s' غير معرف", name)})
	}
	c.emitConstant(name)
	c.emit(OpSetGlobal)
	c.noteToken(assign.Name)
	return nil
}

func (c *Compiler) VisitLogicalExpression(logical ast.Logical) any {
	c.compileExpr(logical.Left)
	switch logical.Operator.TokenType {
	case token.OR:
		jumpIfTrue := c.emit(OpJumpIfTrue, 0)
		c.emit(OpPop)
		c.compileExpr(logical.Right)
		c.patchJumpTo(jumpIfTrue, c.here())
	case token.AND:
		jumpIfFalse := c.emit(OpJumpIfFalse, 0)
		c.emit(OpPop)
		c.compileExpr(logical.Right)
		c.patchJumpTo(jumpIfFalse, c.here())
	}
	return nil
}

func (c *Compiler) VisitCall(call ast.Call) any {
	c.compileExpr(call.Callee)
	for _, arg := range call.Args {
		c.compileExpr(arg)
	}
	c.emit(OpCall, len(call.Args))
	c.noteToken(call.Paren)
	return nil
}

func (c *Compiler) VisitGet(get ast.Get) any {
	c.compileExpr(get.Target)
	c.compileExpr(get.Key)
	c.emit(OpGet)
	c.noteToken(get.Operator)
	return nil
}

func (c *Compiler) VisitSet(set ast.Set) any {
	c.compileExpr(set.Target)
	c.compileExpr(set.Key)
	c.compileExpr(set.Value)
	c.emit(OpSet)
	c.noteToken(set.Operator)
	return nil
}

// VisitLambda compiles a "|params| { body }" literal as a nested function,
// linking its funcScope to the current one so resolveUpvalue can capture
// variables from the enclosing scope, then emits OpClosure to build the
// runtime value at the point the lambda expression is evaluated.
func (c *Compiler) VisitLambda(lambda ast.Lambda) any {
	c.compileFunctionBody("<lambda>", lambda.Params, lambda.Body, true)
	c.noteToken(lambda.Pipe)
	return nil
}

// ---- statements ----

func (c *Compiler) VisitExpressionStmt(exprStmt ast.ExpressionStmt) any {
	c.compileExpr(exprStmt.Expression)
	c.emit(OpPop)
	return nil
}

func (c *Compiler) VisitVarStmt(varStmt ast.VarStmt) any {
	name := varStmt.Name.Lexeme
	if c.current.scopeDepth == 0 {
		if varStmt.Initializer != nil {
			c.compileExpr(varStmt.Initializer)
		} else {
			c.emitConstant(nil)
		}
		c.emitConstant(name)
		c.emit(OpDefineGlobal)
		c.noteToken(varStmt.Name)
		c.globals[name] = true
		return nil
	}

	slot := c.declareLocal(name)
	if varStmt.Initializer != nil {
		c.compileExpr(varStmt.Initializer)
	} else {
		c.emitConstant(nil)
	}
	// The initializer's pushed value sits exactly at this local's slot
	// already; a local IS its stack slot, so there is nothing further to
	// emit here (contrast a plain assignment, which re-writes an existing
	// slot and so does need OpSetLocal).
	c.markInitialized(slot)
	return nil
}

func (c *Compiler) VisitBlockStmt(blockStmt ast.BlockStmt) any {
	c.beginScope()
	for _, stmt := range blockStmt.Statements {
		c.compileStmt(stmt)
	}
	c.endScope()
	return nil
}

// VisitIfStmt compiles an if/elif*/else chain as a cascade of
// condition-then-jump blocks, identical in shape to however many elif
// branches are present; the final else (or nothing) terminates the chain.
func (c *Compiler) VisitIfStmt(ifStmt ast.IfStmt) any {
	var endJumps []int

	compileBranch := func(cond ast.Expression, then ast.Stmt) {
		c.compileExpr(cond)
		skip := c.emit(OpJumpIfFalse, 0)
		c.emit(OpPop)
		c.compileStmt(then)
		endJumps = append(endJumps, c.emit(OpJump, 0))
		c.patchJumpTo(skip, c.here())
		c.emit(OpPop)
	}

	compileBranch(ifStmt.Condition, ifStmt.Then)
	for _, elif := range ifStmt.Elifs {
		compileBranch(elif.Condition, elif.Then)
	}
	if ifStmt.Else != nil {
		c.compileStmt(ifStmt.Else)
	}
	for _, j := range endJumps {
		c.patchJumpTo(j, c.here())
	}
	return nil
}

func (c *Compiler) pushLoop(continueTarget int) {
	c.current.loops = append(c.current.loops, loopContext{
		continueTarget: continueTarget,
		scopeDepth:     c.current.scopeDepth,
	})
}

func (c *Compiler) popLoop() loopContext {
	loops := c.current.loops
	l := loops[len(loops)-1]
	c.current.loops = loops[:len(loops)-1]
	return l
}

func (c *Compiler) VisitWhileStmt(whileStmt ast.WhileStmt) any {
	start := c.here()
	c.pushLoop(start)
	c.compileExpr(whileStmt.Condition)
	exitJump := c.emit(OpJumpIfFalse, 0)
	c.emit(OpPop)
	c.compileStmt(whileStmt.Body)
	c.emit(OpLoop, start)
	c.patchJumpTo(exitJump, c.here())
	c.emit(OpPop)
	loop := c.popLoop()
	for _, b := range loop.breakJumps {
		c.patchJumpTo(b, c.here())
	}
	return nil
}

func (c *Compiler) VisitLoopStmt(loopStmt ast.LoopStmt) any {
	start := c.here()
	c.pushLoop(start)
	c.compileStmt(loopStmt.Body)
	c.emit(OpLoop, start)
	loop := c.popLoop()
	for _, b := range loop.breakJumps {
		c.patchJumpTo(b, c.here())
	}
	return nil
}

// VisitForInStmt compiles "لكل x في iter { body }" by desugaring to an
// index-counting loop over the list, exactly as a user would hand-write it:
// the iterable and a numeric index are kept as hidden locals, and the
// index is bounds-checked each iteration against the "حجم" (size) native
// rather than against a dedicated opcode, since spec.md's instruction set
// has none. A string iterates rune by rune, since both "حجم" and OpGet
// accept strings; any other non-list throws, either from "حجم" (numbers,
// booleans, null) or from OpGet's string-key check (objects).
func (c *Compiler) VisitForInStmt(forIn ast.ForInStmt) any {
	c.beginScope()

	c.compileExpr(forIn.Iter)
	iterSlot := c.declareLocal(" iter")
	c.markInitialized(iterSlot)

	c.emitConstant(0.0)
	idxSlot := c.declareLocal(" idx")
	c.markInitialized(idxSlot)

	start := c.here()
	c.pushLoop(0) // patched below once the increment's position is known

	c.emit(OpGetLocal, idxSlot)
	c.emitConstant("حجم")
	c.emit(OpGetGlobal)
	c.emit(OpGetLocal, iterSlot)
	c.emit(OpCall, 1)
	c.emit(OpLess)
	exitJump := c.emit(OpJumpIfFalse, 0)
	c.emit(OpPop)

	c.beginScope()
	c.emit(OpGetLocal, iterSlot)
	c.emit(OpGetLocal, idxSlot)
	c.emit(OpGet)
	elemSlot := c.declareLocal(forIn.Elem.Lexeme)
	c.markInitialized(elemSlot)
	c.compileStmt(forIn.Body)
	c.endScope()

	incrTarget := c.here()
	c.current.loops[len(c.current.loops)-1].continueTarget = incrTarget
	c.emit(OpGetLocal, idxSlot)
	c.emitConstant(1.0)
	c.emit(OpAdd)
	c.emit(OpSetLocal, idxSlot)
	c.emit(OpPop)
	c.emit(OpLoop, start)

	c.patchJumpTo(exitJump, c.here())
	c.emit(OpPop)

	loop := c.popLoop()
	for _, b := range loop.breakJumps {
		c.patchJumpTo(b, c.here())
	}

	c.endScope()
	c.noteToken(forIn.Keyword)
	return nil
}

func (c *Compiler) VisitBreakStmt(b ast.BreakStmt) any {
	if len(c.current.loops) == 0 {
		panic(SemanticError{Message: "'اكسر' خارج أي حلقة"})
	}
	idx := len(c.current.loops) - 1
	loop := &c.current.loops[idx]
	pos := c.emit(OpJump, 0)
	loop.breakJumps = append(loop.breakJumps, pos)
	c.noteToken(b.Keyword)
	return nil
}

func (c *Compiler) VisitContinueStmt(cont ast.ContinueStmt) any {
	if len(c.current.loops) == 0 {
		panic(SemanticError{Message: "'استمر' خارج أي حلقة"})
	}
	loop := c.current.loops[len(c.current.loops)-1]
	c.emit(OpLoop, loop.continueTarget)
	c.noteToken(cont.Keyword)
	return nil
}

// compileFunctionBody compiles params+body into a fresh nested *Function,
// then emits the OpConstant/OpClosure pair that turns it into a runtime
// value at the point the declaration or lambda expression executes.
func (c *Compiler) compileFunctionBody(name string, params []token.Token, body []ast.Stmt, isLambda bool) *Function {
	fn := &Function{Name: name, Arity: len(params), IsLambda: isLambda}
	enclosing := c.current
	c.current = &funcScope{parent: enclosing, fn: fn}
	c.beginScope()

	// Slot 0 is reserved for the closure value itself, matching the vm's
	// calling convention (spec.md §4.3): Call locates the callee at
	// len(stack)-argc-1 and that index becomes the new frame's base.
	selfSlot := c.declareLocal("")
	c.markInitialized(selfSlot)

	for _, p := range params {
		slot := c.declareLocal(p.Lexeme)
		c.markInitialized(slot)
	}
	for _, stmt := range body {
		c.compileStmt(stmt)
	}
	c.emitConstant(nil)
	c.emit(OpReturn)

	upvalues := fn.Upvalues
	c.current = enclosing

	idx := c.addConstant(fn)
	if idx <= 0xff {
		c.emit(OpConstant8, idx)
	} else {
		c.emit(OpConstant16, idx)
	}
	c.emit(OpClosure, len(upvalues))
	ins := &c.current.fn.Chunk.Instructions
	for _, uv := range upvalues {
		isLocalByte := byte(0)
		if uv.IsLocal {
			isLocalByte = 1
		}
		*ins = append(*ins, isLocalByte, byte(uv.Index))
	}
	return fn
}

func (c *Compiler) VisitFunctionDecl(f ast.FunctionDecl) any {
	name := f.Name.Lexeme
	if c.current.scopeDepth == 0 {
		c.globals[name] = true
		c.compileFunctionBody(name, f.Params, f.Body, false)
		c.emitConstant(name)
		c.emit(OpDefineGlobal)
		c.noteToken(f.Name)
		return nil
	}
	slot := c.declareLocal(name)
	c.markInitialized(slot)
	// The closure compileFunctionBody leaves on the stack already sits in
	// this local's slot; as with a var declaration, nothing more is emitted.
	c.compileFunctionBody(name, f.Params, f.Body, false)
	c.noteToken(f.Name)
	return nil
}

func (c *Compiler) VisitReturnStmt(r ast.ReturnStmt) any {
	if r.Value != nil {
		c.compileExpr(r.Value)
	} else {
		c.emitConstant(nil)
	}
	c.emit(OpReturn)
	c.noteToken(r.Keyword)
	return nil
}

func (c *Compiler) VisitThrowStmt(t ast.ThrowStmt) any {
	c.compileExpr(t.Value)
	c.emit(OpThrow)
	c.noteToken(t.Keyword)
	return nil
}

// VisitTryCatchStmt compiles a try/catch using the vm's handler stack:
// OpAppendHandler pushes the address execution resumes at if an OpThrow
// propagates past this point, OpPopHandler removes it once the try body
// finishes normally, and the catch body runs with the thrown value bound
// to Binding.
func (c *Compiler) VisitTryCatchStmt(t ast.TryCatchStmt) any {
	handlerPos := c.emit(OpAppendHandler, 0)
	c.compileStmt(t.Body)
	c.emit(OpPopHandler)
	skipCatch := c.emit(OpJump, 0)

	c.patchJumpTo(handlerPos, c.here())
	c.beginScope()
	// vm.raise already pushed the thrown value at exactly this slot before
	// jumping here; declaring the binding just teaches the compiler where
	// it landed, nothing more needs to be emitted.
	slot := c.declareLocal(t.Binding.Lexeme)
	c.markInitialized(slot)
	c.compileStmt(t.Handler)
	c.endScope()

	c.patchJumpTo(skipCatch, c.here())
	return nil
}

// VisitImportStmt compiles to a placeholder global declaration bound to
// null; module resolution is out of scope (spec.md Non-goals), but the
// binding still needs to exist so code referencing the imported name
// compiles instead of failing with "undefined name".
func (c *Compiler) VisitImportStmt(i ast.ImportStmt) any {
	name := i.Name.Lexeme
	c.globals[name] = true
	c.emitConstant(nil)
	c.emitConstant(name)
	c.emit(OpDefineGlobal)
	c.noteToken(i.Keyword)
	return nil
}

func (c *Compiler) VisitExportStmt(e ast.ExportStmt) any {
	c.compileStmt(e.Inner)
	return nil
}

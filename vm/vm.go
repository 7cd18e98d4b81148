// Package vm executes compiled Nilan bytecode. It is a stack machine: a
// single value stack shared by every active call, a frame per active call
// pointing at its own instruction stream, and a handler stack for
// try/catch. Grounded on original_source/src/vm.rs's Vm struct and
// execution loop; spec.md §4.3 fixes the calling convention.
package vm

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"nilan/compiler"
	"nilan/value"
)

// VM is one execution context: its own stack, frames, globals and open
// upvalues. A fresh VM is created per script run by the cmd package; the
// REPL reuses one VM across lines so global state persists between them.
type VM struct {
	stack        Stack
	frames       []*Frame
	handlers     []handler
	globals      map[string]any
	openUpvalues map[int]*value.UpValue
	trace        bool
	log          *logrus.Logger
}

// New creates a VM with an empty global environment. Natives are
// registered afterward via DefineGlobal (see the natives package).
func New() *VM {
	return &VM{
		globals:      make(map[string]any),
		openUpvalues: make(map[int]*value.UpValue),
		log:          logrus.New(),
	}
}

// SetTrace toggles per-instruction logging via logrus (the ip, the opcode
// number and the stack before the instruction runs), used by
// the "--trace" flag on the run/repl subcommands.
func (vm *VM) SetTrace(enabled bool) {
	vm.trace = enabled
	if enabled {
		vm.log.SetLevel(logrus.DebugLevel)
	}
}

func (vm *VM) DefineGlobal(name string, v any) {
	vm.globals[name] = v
}

func (vm *VM) frame() *Frame {
	return vm.frames[len(vm.frames)-1]
}

// maxStack bounds the value stack's backing array capacity, allocated once
// up front. Open upvalues hold a raw pointer into this array (see
// captureUpvalue); reserving the capacity ahead of time means Push's
// append never reallocates mid-run and invalidates those pointers.
const maxStack = 1 << 16

// Run executes a compiled top-level Function to completion and returns its
// final return value (the script's implicit trailing OpReturn).
func (vm *VM) Run(fn *compiler.Function) (any, error) {
	if vm.stack == nil {
		vm.stack = make(Stack, 0, maxStack)
	}
	// Each run starts from empty value, call and handler stacks; only
	// globals carry over from an earlier run on the same VM.
	vm.closeUpvaluesFrom(0)
	vm.stack = vm.stack[:0]
	vm.frames = vm.frames[:0]
	vm.handlers = vm.handlers[:0]
	closure := &value.Closure{Fn: fn}
	vm.stack.Push(closure)
	vm.frames = append(vm.frames, &Frame{closure: closure, base: 0})

	for len(vm.frames) > 0 {
		f := vm.frame()
		chunk := &f.closure.Fn.Chunk
		if f.ip >= len(chunk.Instructions) {
			return nil, RuntimeError{Value: "انتهت التعليمات البرمجية بشكل غير متوقع"}
		}
		op := compiler.Opcode(chunk.Instructions[f.ip])

		if vm.trace {
			vm.log.Debugf("ip=%d op=%v stack=%v", f.ip, op, vm.stack)
		}

		switch op {
		case compiler.OpPop:
			vm.stack.Pop()
			f.ip++

		case compiler.OpConstant8:
			idx := compiler.ReadUint8(chunk.Instructions, f.ip+1)
			vm.stack.Push(chunk.Constants[idx])
			f.ip += 2

		case compiler.OpConstant16:
			idx := compiler.ReadUint16(chunk.Instructions, f.ip+1)
			vm.stack.Push(chunk.Constants[idx])
			f.ip += 3

		case compiler.OpNegate:
			v, _ := vm.stack.Pop()
			n, ok := v.(float64)
			if !ok {
				if err := vm.raise(vm.typeErrorValue("لا يمكن نفي قيمة من نوع '%s'", value.TypeName(v))); err != nil {
					return nil, err
				}
				continue
			}
			vm.stack.Push(-n)
			f.ip++

		case compiler.OpNot:
			v, _ := vm.stack.Pop()
			vm.stack.Push(!value.IsTruthy(v))
			f.ip++

		case compiler.OpAdd:
			if err := vm.binaryAdd(); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}
			f.ip++

		case compiler.OpSubtract, compiler.OpMultiply, compiler.OpDivide, compiler.OpRemainder:
			if err := vm.binaryArith(op); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}
			f.ip++

		case compiler.OpEqual:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			vm.stack.Push(value.Equal(a, b))
			f.ip++

		case compiler.OpGreater, compiler.OpGreaterEqual, compiler.OpLess, compiler.OpLessEqual:
			if err := vm.binaryCompare(op); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}
			f.ip++

		case compiler.OpJump:
			f.ip = int(compiler.ReadUint16(chunk.Instructions, f.ip+1))

		case compiler.OpJumpIfFalse:
			top, _ := vm.stack.Peek()
			if !value.IsTruthy(top) {
				f.ip = int(compiler.ReadUint16(chunk.Instructions, f.ip+1))
			} else {
				f.ip += 3
			}

		case compiler.OpJumpIfTrue:
			top, _ := vm.stack.Peek()
			if value.IsTruthy(top) {
				f.ip = int(compiler.ReadUint16(chunk.Instructions, f.ip+1))
			} else {
				f.ip += 3
			}

		case compiler.OpLoop:
			f.ip = int(compiler.ReadUint16(chunk.Instructions, f.ip+1))

		case compiler.OpDefineGlobal:
			name, _ := vm.stack.Pop()
			v, _ := vm.stack.Pop()
			vm.globals[name.(string)] = v
			f.ip++

		case compiler.OpSetGlobal:
			name, _ := vm.stack.Pop()
			v, _ := vm.stack.Peek()
			if _, ok := vm.globals[name.(string)]; !ok {
				if err := vm.raise(vm.typeErrorValue("الاسم '%s' غير معرف", name.(string))); err != nil {
					return nil, err
				}
				continue
			}
			vm.globals[name.(string)] = v
			f.ip++

		case compiler.OpGetGlobal:
			name, _ := vm.stack.Pop()
			v, ok := vm.globals[name.(string)]
			if !ok {
				if err := vm.raise(vm.typeErrorValue("الاسم '%s' غير معرف", name.(string))); err != nil {
					return nil, err
				}
				continue
			}
			vm.stack.Push(v)
			f.ip++

		case compiler.OpGetLocal:
			idx := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			vm.stack.Push(vm.stack[f.base+idx])
			f.ip += 2

		case compiler.OpSetLocal:
			idx := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			v, _ := vm.stack.Peek()
			vm.stack[f.base+idx] = v
			f.ip += 2

		case compiler.OpBuildList:
			n := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			items := make([]any, n)
			for i := n - 1; i >= 0; i-- {
				items[i], _ = vm.stack.Pop()
			}
			vm.stack.Push(&value.List{Items: items})
			f.ip += 2

		case compiler.OpBuildObject:
			n := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			pairs := make([][2]any, n)
			for i := n - 1; i >= 0; i-- {
				v, _ := vm.stack.Pop()
				k, _ := vm.stack.Pop()
				pairs[i] = [2]any{k, v}
			}
			obj := value.NewObject()
			for _, p := range pairs {
				obj.Set(p[0].(string), p[1])
			}
			vm.stack.Push(obj)
			f.ip += 2

		case compiler.OpGet:
			if err := vm.execGet(); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}
			f.ip++

		case compiler.OpSet:
			if err := vm.execSet(); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}
			f.ip++

		case compiler.OpClosure:
			count := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			fnVal, _ := vm.stack.Pop()
			inner, ok := fnVal.(*compiler.Function)
			if !ok {
				return nil, RuntimeError{Value: "🤖 constant preceding OpClosure is not a function"}
			}
			upvalues := make([]*value.UpValue, count)
			base := f.ip + 2
			for i := 0; i < count; i++ {
				isLocal := chunk.Instructions[base+2*i] == 1
				index := int(chunk.Instructions[base+2*i+1])
				if isLocal {
					upvalues[i] = vm.captureUpvalue(f.base + index)
				} else {
					upvalues[i] = f.closure.Upvalues[index]
				}
			}
			vm.stack.Push(&value.Closure{Fn: inner, Upvalues: upvalues})
			f.ip = base + 2*count

		case compiler.OpCall:
			argc := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			f.ip += 2
			if err := vm.call(argc); err != nil {
				if rerr := vm.raise(err); rerr != nil {
					return nil, rerr
				}
				continue
			}

		case compiler.OpReturn:
			retval, _ := vm.stack.Pop()
			vm.closeUpvaluesFrom(f.base)
			vm.stack = vm.stack[:f.base]
			vm.stack.Push(retval)
			vm.frames = vm.frames[:len(vm.frames)-1]
			if len(vm.frames) == 0 {
				return retval, nil
			}

		case compiler.OpGetUpValue:
			idx := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			vm.stack.Push(f.closure.Upvalues[idx].Get())
			f.ip += 2

		case compiler.OpSetUpValue:
			idx := int(compiler.ReadUint8(chunk.Instructions, f.ip+1))
			v, _ := vm.stack.Peek()
			f.closure.Upvalues[idx].Set(v)
			f.ip += 2

		case compiler.OpCloseUpValue:
			vm.closeUpvaluesFrom(len(vm.stack) - 1)
			vm.stack.Pop()
			f.ip++

		case compiler.OpAppendHandler:
			target := int(compiler.ReadUint16(chunk.Instructions, f.ip+1))
			vm.handlers = append(vm.handlers, handler{
				frameIndex: len(vm.frames) - 1,
				catchIP:    target,
				stackLen:   len(vm.stack),
			})
			f.ip += 3

		case compiler.OpPopHandler:
			vm.handlers = vm.handlers[:len(vm.handlers)-1]
			f.ip++

		case compiler.OpThrow:
			v, _ := vm.stack.Pop()
			if err := vm.raise(v); err != nil {
				return nil, err
			}

		default:
			return nil, RuntimeError{Value: fmt.Sprintf("🤖 opcode غير معروف %d", op)}
		}
	}

	return nil, nil
}

// raise searches the handler stack for a try/catch that covers the current
// point of execution. If one is found, it unwinds frames and the value
// stack to the point the handler was registered, binds the thrown value,
// and resumes at the catch block; the main loop's "continue" re-reads
// vm.frame() afterward so this never returns an error in that case. If no
// handler applies, it assembles a backtrace and returns the uncaught error.
func (vm *VM) raise(thrown any) error {
	if len(vm.handlers) == 0 {
		return RuntimeError{Value: thrown, Frames: vm.backtrace()}
	}
	h := vm.handlers[len(vm.handlers)-1]
	vm.handlers = vm.handlers[:len(vm.handlers)-1]
	vm.closeUpvaluesFrom(h.stackLen)
	vm.frames = vm.frames[:h.frameIndex+1]
	vm.stack = vm.stack[:h.stackLen]
	vm.stack.Push(thrown)
	vm.frames[h.frameIndex].ip = h.catchIP
	return nil
}

func (vm *VM) backtrace() []string {
	trace := make([]string, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		trace = append(trace, vm.frames[i].closure.Fn.Name)
	}
	return trace
}

func (vm *VM) typeErrorValue(format string, args ...any) any {
	return fmt.Sprintf(format, args...)
}

func (vm *VM) binaryAdd() any {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			vm.stack.Push(av + bv)
			return nil
		}
	case string:
		if bv, ok := b.(string); ok {
			vm.stack.Push(av + bv)
			return nil
		}
	}
	return vm.typeErrorValue("لا يمكن جمع '%s' مع '%s'", value.TypeName(a), value.TypeName(b))
}

func (vm *VM) binaryArith(op compiler.Opcode) any {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	av, aok := a.(float64)
	bv, bok := b.(float64)
	if !aok || !bok {
		return vm.typeErrorValue("العملية الحسابية تتطلب أرقامًا، حصلت على '%s' و '%s'", value.TypeName(a), value.TypeName(b))
	}
	switch op {
	case compiler.OpSubtract:
		vm.stack.Push(av - bv)
	case compiler.OpMultiply:
		vm.stack.Push(av * bv)
	case compiler.OpDivide:
		vm.stack.Push(av / bv)
	case compiler.OpRemainder:
		vm.stack.Push(math.Mod(av, bv))
	}
	return nil
}

func (vm *VM) binaryCompare(op compiler.Opcode) any {
	b, _ := vm.stack.Pop()
	a, _ := vm.stack.Pop()
	av, aok := a.(float64)
	bv, bok := b.(float64)
	if !aok || !bok {
		return vm.typeErrorValue("لا يمكن مقارنة '%s' مع '%s'", value.TypeName(a), value.TypeName(b))
	}
	switch op {
	case compiler.OpGreater:
		vm.stack.Push(av > bv)
	case compiler.OpGreaterEqual:
		vm.stack.Push(av >= bv)
	case compiler.OpLess:
		vm.stack.Push(av < bv)
	case compiler.OpLessEqual:
		vm.stack.Push(av <= bv)
	}
	return nil
}

func (vm *VM) execGet() any {
	key, _ := vm.stack.Pop()
	target, _ := vm.stack.Pop()
	switch t := target.(type) {
	case *value.List:
		idx, ok := key.(float64)
		if !ok || !value.IsIntIndex(idx) {
			return vm.typeErrorValue("فهرس القائمة يجب أن يكون رقمًا صحيحًا")
		}
		i := int(idx)
		if i < 0 {
			i += len(t.Items)
		}
		if i < 0 || i >= len(t.Items) {
			return vm.typeErrorValue("فهرس القائمة خارج الحدود: %d", int(idx))
		}
		vm.stack.Push(t.Items[i])
	case string:
		idx, ok := key.(float64)
		if !ok || !value.IsIntIndex(idx) {
			return vm.typeErrorValue("فهرس النص يجب أن يكون رقمًا صحيحًا")
		}
		runes := []rune(t)
		i := int(idx)
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return vm.typeErrorValue("فهرس النص خارج الحدود: %d", int(idx))
		}
		vm.stack.Push(string(runes[i]))
	case *value.Object:
		key, ok := key.(string)
		if !ok {
			return vm.typeErrorValue("مفتاح الكائن يجب أن يكون نصًا")
		}
		v, ok := t.Get(key)
		if !ok {
			return vm.typeErrorValue("لا توجد خاصية بهذا الاسم '%s'", key)
		}
		vm.stack.Push(v)
	default:
		return vm.typeErrorValue("لا يمكن الوصول إلى خاصية على قيمة من نوع '%s'", value.TypeName(target))
	}
	return nil
}

func (vm *VM) execSet() any {
	v, _ := vm.stack.Pop()
	key, _ := vm.stack.Pop()
	target, _ := vm.stack.Pop()
	switch t := target.(type) {
	case *value.List:
		idx, ok := key.(float64)
		if !ok || !value.IsIntIndex(idx) {
			return vm.typeErrorValue("فهرس القائمة يجب أن يكون رقمًا صحيحًا")
		}
		i := int(idx)
		if i < 0 {
			i += len(t.Items)
		}
		if i < 0 || i >= len(t.Items) {
			return vm.typeErrorValue("فهرس القائمة خارج الحدود: %d", int(idx))
		}
		t.Items[i] = v
	case *value.Object:
		key, ok := key.(string)
		if !ok {
			return vm.typeErrorValue("مفتاح الكائن يجب أن يكون نصًا")
		}
		t.Set(key, v)
	default:
		return vm.typeErrorValue("لا يمكن تعيين خاصية على قيمة من نوع '%s'", value.TypeName(target))
	}
	vm.stack.Push(v)
	return nil
}

// call dispatches an OpCall: Closure calls push a new Frame, Native calls
// run synchronously in Go and leave just the result on the stack.
func (vm *VM) call(argc int) any {
	calleeIdx := len(vm.stack) - argc - 1
	callee := vm.stack[calleeIdx]
	switch fn := callee.(type) {
	case *value.Closure:
		if fn.Fn.Arity != argc {
			return vm.typeErrorValue("توقعت %d من المعطيات ولكن حصلت على %d", fn.Fn.Arity, argc)
		}
		vm.frames = append(vm.frames, &Frame{closure: fn, base: calleeIdx})
		return nil
	case *value.Native:
		args := append([]any(nil), vm.stack[calleeIdx+1:]...)
		if fn.Arity >= 0 && fn.Arity != argc {
			return vm.typeErrorValue("توقعت %d من المعطيات ولكن حصلت على %d", fn.Arity, argc)
		}
		result, err := fn.Fn(args)
		if err != nil {
			return err.Error()
		}
		vm.stack = vm.stack[:calleeIdx]
		vm.stack.Push(result)
		return nil
	default:
		return vm.typeErrorValue("القيمة من نوع '%s' غير قابلة للاستدعاء", value.TypeName(callee))
	}
}

// captureUpvalue returns the open upvalue for absolute stack slot, creating
// and caching it the first time a closure captures that slot so that two
// closures capturing the same variable share one UpValue.
func (vm *VM) captureUpvalue(slot int) *value.UpValue {
	if uv, ok := vm.openUpvalues[slot]; ok {
		return uv
	}
	uv := &value.UpValue{Location: &vm.stack[slot]}
	vm.openUpvalues[slot] = uv
	return uv
}

// closeUpvaluesFrom closes every open upvalue at or above the given
// absolute stack slot, called when a scope or frame whose locals they
// pointed into is about to be discarded.
func (vm *VM) closeUpvaluesFrom(fromSlot int) {
	for slot, uv := range vm.openUpvalues {
		if slot >= fromSlot {
			uv.Close()
			delete(vm.openUpvalues, slot)
		}
	}
}

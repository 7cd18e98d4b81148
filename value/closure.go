package value

import "nilan/compiler"

// UpValue is a reference to a variable captured by a closure. While the
// frame that declared the variable is still on the vm's call stack, Location
// points directly at that stack slot (open); once the frame returns, the vm
// copies the value out and flips the upvalue to closed so the closure keeps
// working after its enclosing scope is gone. Grounded on
// original_source/src/vm.rs's open/closed upvalue handling for "دالة" literals.
type UpValue struct {
	Location *any
	Closed   any
	IsClosed bool
}

func (u *UpValue) Get() any {
	if u.IsClosed {
		return u.Closed
	}
	return *u.Location
}

func (u *UpValue) Set(v any) {
	if u.IsClosed {
		u.Closed = v
		return
	}
	*u.Location = v
}

// Close copies the current value out of the stack slot and detaches the
// upvalue from it, called when the vm pops the frame that owns the slot.
func (u *UpValue) Close() {
	if u.IsClosed {
		return
	}
	u.Closed = *u.Location
	u.IsClosed = true
}

// Closure pairs a compiled function with the upvalues it captured at the
// point it was created, i.e. the result of executing an OpClosure
// instruction.
type Closure struct {
	Fn       *compiler.Function
	Upvalues []*UpValue
}

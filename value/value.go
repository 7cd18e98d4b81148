// Package value defines the runtime representation of Nilan values and the
// handful of operations (truthiness, equality, stringification, the
// integer-index check) that are shared by the vm's instruction dispatch and
// the natives package. Grounded on original_source/src/vm.rs's Value enum:
// scalars (number, bool, null, string) travel as plain Go values so the
// constant pool and the VM stack can both hold `any` without a wrapper,
// while heap-shaped values (list, object, closure, native, file) get
// dedicated pointer types so identity and mutation work the way the
// original's Rc<RefCell<...>> values do.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// List is a dynamically sized, heap-allocated array. Mutating methods on a
// *List are visible to every reference to it, matching the original's
// reference-counted list semantics.
type List struct {
	Items []any
}

// Object is an insertion-ordered string-keyed map. Keys is kept alongside
// the map so that enumeration (the properties native, to-string) is deterministic instead
// of following Go's randomized map iteration order.
type Object struct {
	Keys   []string
	Values map[string]any
}

func NewObject() *Object {
	return &Object{Values: make(map[string]any)}
}

func (o *Object) Get(key string) (any, bool) {
	v, ok := o.Values[key]
	return v, ok
}

func (o *Object) Set(key string, val any) {
	if _, exists := o.Values[key]; !exists {
		o.Keys = append(o.Keys, key)
	}
	o.Values[key] = val
}

// Native is a built-in function implemented in Go rather than compiled
// Nilan bytecode. Arity of -1 means variadic.
type Native struct {
	Name  string
	Arity int
	Fn    func(args []any) (any, error)
}

// File is the runtime shape of a file handle. No native creates one: the
// file natives read and write by path. Nothing reads or sets Closed.
type File struct {
	Path   string
	Handle any
	Closed bool
}

// IsIntIndex reports whether n has no fractional part, the way spec.md
// requires list/string indices to be integer-valued even though every
// Nilan number is a float64 under the hood.
func IsIntIndex(n float64) bool {
	return n == math.Trunc(n)
}

// IsTruthy implements Nilan's truthiness rule: everything is truthy except
// null and the boolean false. Grounded on original_source/src/vm.rs's
// is_falsey check (the numeric zero and empty string/list/object are still
// truthy, unlike some scripting languages).
func IsTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

// TypeName returns the Nilan type name of v, as surfaced by the "نوع"
// native and used in error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "عدم"
	case bool:
		return "منطقي"
	case float64:
		return "رقم"
	case string:
		return "نص"
	case *List:
		return "قائمة"
	case *Object:
		return "كائن"
	case *Closure:
		return "دالة"
	case *Native:
		return "دالة"
	case *File:
		return "ملف"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Equal implements Nilan's "==" for scalar and heap values. Lists and
// objects compare by identity, matching the original's reference-counted
// aliasing semantics rather than deep structural equality.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		return ok && av == bv
	case *Object:
		bv, ok := b.(*Object)
		return ok && av == bv
	case *Closure:
		bv, ok := b.(*Closure)
		return ok && av == bv
	case *Native:
		bv, ok := b.(*Native)
		return ok && av == bv
	default:
		return a == b
	}
}

// ToString renders v the way the "نص" native and string concatenation do.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return "عدم"
	case bool:
		if val {
			return "صحيح"
		}
		return "خطأ"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return val
	case *List:
		parts := make([]string, len(val.Items))
		for i, item := range val.Items {
			parts[i] = quoteIfString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Object:
		parts := make([]string, 0, len(val.Keys))
		for _, k := range val.Keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, quoteIfString(val.Values[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Closure:
		return fmt.Sprintf("<دالة %s>", val.Fn.Name)
	case *Native:
		return fmt.Sprintf("<دالة أصلية %s>", val.Name)
	case *File:
		return fmt.Sprintf("<ملف %s>", val.Path)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func quoteIfString(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return ToString(v)
}

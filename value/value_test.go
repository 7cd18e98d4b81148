package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsIntIndex(t *testing.T) {
	assert.True(t, IsIntIndex(0))
	assert.True(t, IsIntIndex(3))
	assert.True(t, IsIntIndex(-2))
	assert.False(t, IsIntIndex(0.5))
	assert.False(t, IsIntIndex(-1.1))
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, IsTruthy(nil))
	assert.False(t, IsTruthy(false))
	assert.True(t, IsTruthy(true))
	assert.True(t, IsTruthy(0.0))
	assert.True(t, IsTruthy(""))
	assert.True(t, IsTruthy(&List{}))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "عدم", TypeName(nil))
	assert.Equal(t, "منطقي", TypeName(true))
	assert.Equal(t, "رقم", TypeName(1.0))
	assert.Equal(t, "نص", TypeName("س"))
	assert.Equal(t, "قائمة", TypeName(&List{}))
	assert.Equal(t, "كائن", TypeName(NewObject()))
}

func TestEqualScalars(t *testing.T) {
	assert.True(t, Equal(1.0, 1.0))
	assert.False(t, Equal(1.0, 2.0))
	assert.True(t, Equal("أ", "أ"))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, false))
}

func TestEqualHeapValuesByIdentity(t *testing.T) {
	a := &List{Items: []any{1.0}}
	b := &List{Items: []any{1.0}}
	assert.True(t, Equal(a, a))
	assert.False(t, Equal(a, b))
}

func TestObjectPreservesInsertionOrder(t *testing.T) {
	obj := NewObject()
	obj.Set("ب", 2.0)
	obj.Set("أ", 1.0)
	obj.Set("ب", 20.0)
	assert.Equal(t, []string{"ب", "أ"}, obj.Keys)
	v, ok := obj.Get("ب")
	assert.True(t, ok)
	assert.Equal(t, 20.0, v)
}

func TestToStringScalars(t *testing.T) {
	assert.Equal(t, "عدم", ToString(nil))
	assert.Equal(t, "صحيح", ToString(true))
	assert.Equal(t, "خطأ", ToString(false))
	assert.Equal(t, "3.5", ToString(3.5))
	assert.Equal(t, "مرحبا", ToString("مرحبا"))
}

func TestToStringListQuotesStringItems(t *testing.T) {
	list := &List{Items: []any{1.0, "أ"}}
	assert.Equal(t, `[1, "أ"]`, ToString(list))
}

func TestToStringObject(t *testing.T) {
	obj := NewObject()
	obj.Set("س", 1.0)
	assert.Equal(t, "{س: 1}", ToString(obj))
}

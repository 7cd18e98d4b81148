package natives

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nilan/value"
)

type fakeVM struct {
	globals map[string]any
}

func newFakeVM() *fakeVM {
	return &fakeVM{globals: make(map[string]any)}
}

func (f *fakeVM) DefineGlobal(name string, v any) {
	f.globals[name] = v
}

func (f *fakeVM) native(t *testing.T, name string) *value.Native {
	t.Helper()
	n, ok := f.globals[name].(*value.Native)
	require.True(t, ok, "native %q not registered", name)
	return n
}

func TestRegisterDefinesSizeNative(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())

	size := vm.native(t, "حجم")
	v, err := size.Fn([]any{&value.List{Items: []any{1.0, 2.0}}})
	require.NoError(t, err)
	assert.Equal(t, 2.0, v)

	v, err = size.Fn([]any{"أبجد"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestRegisterSizeRejectsWrongType(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	size := vm.native(t, "حجم")
	_, err := size.Fn([]any{1.0})
	assert.Error(t, err)
}

func TestRegisterTypeNative(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	typ := vm.native(t, "نوع")
	v, err := typ.Fn([]any{true})
	require.NoError(t, err)
	assert.Equal(t, "منطقي", v)
}

func TestRegisterPushAndPop(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	push := vm.native(t, "ادفع")
	pop := vm.native(t, "اسحب")

	list := &value.List{}
	_, err := push.Fn([]any{list, 1.0})
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, list.Items)

	v, err := pop.Fn([]any{list})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Empty(t, list.Items)
}

func TestRegisterPopEmptyListErrors(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	pop := vm.native(t, "اسحب")
	_, err := pop.Fn([]any{&value.List{}})
	assert.Error(t, err)
}

func TestRegisterIntegerAndFloatConversion(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	toInt := vm.native(t, "عدد_صحيح")
	toFloat := vm.native(t, "عدد_عشري")

	v, err := toInt.Fn([]any{"3.9"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	v, err = toFloat.Fn([]any{"3.9"})
	require.NoError(t, err)
	assert.Equal(t, 3.9, v)

	_, err = toInt.Fn([]any{"ليس رقمًا"})
	assert.Error(t, err)
}

func TestRegisterProperties(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	props := vm.native(t, "خصائص")

	obj := value.NewObject()
	obj.Set("ب", 1.0)
	obj.Set("أ", 2.0)
	v, err := props.Fn([]any{obj})
	require.NoError(t, err)
	list := v.(*value.List)
	assert.Equal(t, []any{"ب", "أ"}, list.Items)
}

func TestRegisterVariadicPrint(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	print := vm.native(t, "اطبع")
	assert.Equal(t, -1, print.Arity)
	_, err := print.Fn([]any{1.0, "أ", nil})
	assert.NoError(t, err)
}

func TestRegisterTrigFunctions(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now())
	sin := vm.native(t, "جا")
	v, err := sin.Fn([]any{0.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, v.(float64), 1e-9)
}

func TestRegisterUptimeAdvancesWithStartTime(t *testing.T) {
	vm := newFakeVM()
	Register(vm, time.Now().Add(-5*time.Second))
	uptime := vm.native(t, "وقت")
	v, err := uptime.Fn(nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.(float64), 5.0)
}

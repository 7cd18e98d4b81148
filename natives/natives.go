// Package natives builds the table of global functions a fresh vm.VM starts
// with: conversions, reflection, list/string/object helpers, file I/O and
// trig, per spec.md §6. Arabic names are chosen to read the way a Nilan
// script would call them; the only Go caller is the CLI's newVM in
// pipeline.go, which calls Register right after vm.New.
package natives

import (
	"bufio"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"nilan/value"
)

// Register defines every native in the table on vm. A native reports a
// failure as a Go error (wrongType builds the type-mismatch ones); the vm
// throws the error's text as a string, so a script can catch it like any
// other thrown value.
func Register(vm interface {
	DefineGlobal(name string, v any)
}, startedAt time.Time) {
	scanner := bufio.NewScanner(os.Stdin)

	define := func(name string, arity int, fn func([]any) (any, error)) {
		vm.DefineGlobal(name, &value.Native{Name: name, Arity: arity, Fn: fn})
	}

	define("نص", 1, func(args []any) (any, error) {
		return value.ToString(args[0]), nil
	})

	define("عدد_صحيح", 1, func(args []any) (any, error) {
		switch v := args[0].(type) {
		case float64:
			return math.Trunc(v), nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("لا يمكن تحويل '%s' إلى رقم صحيح", v)
			}
			return math.Trunc(n), nil
		default:
			return nil, wrongType("عدد_صحيح", v)
		}
	})

	define("عدد_عشري", 1, func(args []any) (any, error) {
		switch v := args[0].(type) {
		case float64:
			return v, nil
		case string:
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("لا يمكن تحويل '%s' إلى رقم", v)
			}
			return n, nil
		default:
			return nil, wrongType("عدد_عشري", v)
		}
	})

	define("نوع", 1, func(args []any) (any, error) {
		return value.TypeName(args[0]), nil
	})

	define("حجم", 1, func(args []any) (any, error) {
		switch v := args[0].(type) {
		case *value.List:
			return float64(len(v.Items)), nil
		case *value.Object:
			return float64(len(v.Keys)), nil
		case string:
			return float64(len([]rune(v))), nil
		default:
			return nil, wrongType("حجم", v)
		}
	})

	define("خصائص", 1, func(args []any) (any, error) {
		obj, ok := args[0].(*value.Object)
		if !ok {
			return nil, wrongType("خصائص", args[0])
		}
		items := make([]any, len(obj.Keys))
		for i, k := range obj.Keys {
			items[i] = k
		}
		return &value.List{Items: items}, nil
	})

	define("ادفع", 2, func(args []any) (any, error) {
		list, ok := args[0].(*value.List)
		if !ok {
			return nil, wrongType("ادفع", args[0])
		}
		list.Items = append(list.Items, args[1])
		return list, nil
	})

	define("اسحب", 1, func(args []any) (any, error) {
		list, ok := args[0].(*value.List)
		if !ok {
			return nil, wrongType("اسحب", args[0])
		}
		if len(list.Items) == 0 {
			return nil, fmt.Errorf("لا يمكن السحب من قائمة فارغة")
		}
		last := list.Items[len(list.Items)-1]
		list.Items = list.Items[:len(list.Items)-1]
		return last, nil
	})

	define("وقت", 0, func(args []any) (any, error) {
		return time.Since(startedAt).Seconds(), nil
	})

	define("اخرج", 1, func(args []any) (any, error) {
		code, ok := args[0].(float64)
		if !ok {
			return nil, wrongType("اخرج", args[0])
		}
		os.Exit(int(code))
		return nil, nil
	})

	define("عشوائي", 0, func(args []any) (any, error) {
		return rand.Float64(), nil
	})

	define("اقرأ", 1, func(args []any) (any, error) {
		path, ok := args[0].(string)
		if !ok {
			return nil, wrongType("اقرأ", args[0])
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("تعذرت قراءة الملف '%s'", path)
		}
		return string(data), nil
	})

	define("اكتب", 2, func(args []any) (any, error) {
		path, ok := args[0].(string)
		if !ok {
			return nil, wrongType("اكتب", args[0])
		}
		content := value.ToString(args[1])
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("تعذرت الكتابة إلى الملف '%s'", path)
		}
		return nil, nil
	})

	trig := map[string]func(float64) float64{
		"جا": math.Sin,
		"جتا": math.Cos,
		"ظا": math.Tan,
		"قتا": func(x float64) float64 { return 1 / math.Sin(x) },
		"قا":  func(x float64) float64 { return 1 / math.Cos(x) },
		"ظتا": func(x float64) float64 { return 1 / math.Tan(x) },
	}
	for name, fn := range trig {
		f := fn
		n := name
		define(n, 1, func(args []any) (any, error) {
			x, ok := args[0].(float64)
			if !ok {
				return nil, wrongType(n, args[0])
			}
			return f(x), nil
		})
	}

	define("اطبع", -1, func(args []any) (any, error) {
		parts := make([]any, len(args))
		for i, a := range args {
			parts[i] = value.ToString(a)
		}
		fmt.Println(parts...)
		return nil, nil
	})

	define("اقرأ_سطر", 0, func(args []any) (any, error) {
		if !scanner.Scan() {
			return "", nil
		}
		return scanner.Text(), nil
	})
}

func wrongType(name string, v any) error {
	return fmt.Errorf("لا يمكن استخدام '%s' من النوع '%s' هنا", name, value.TypeName(v))
}

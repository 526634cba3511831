package configexpression

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
)

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// compareValues 返回 -1/0/1, 第二个返回值表示两个值是否可以比较
func compareValues(left, right any) (int, bool) {
	if lf, ok := toFloat(left); ok {
		rf, ok := toFloat(right)
		if !ok {
			return 0, false
		}
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		}
		return 0, true
	}
	switch l := left.(type) {
	case string:
		r, ok := right.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(l, r), true
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return 0, false
		}
		return l.Compare(r), true
	}
	return 0, false
}

func valuesEqual(left, right any) bool {
	if left == nil || right == nil {
		return isNilValue(left) && isNilValue(right)
	}
	if c, ok := compareValues(left, right); ok {
		return c == 0
	}
	return reflect.DeepEqual(left, right)
}

// isBlank nil, 空字符串, 空集合视为空
func isBlank(v any) bool {
	if isNilValue(v) {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

// toSlice 把切片或数组转成 []any
func toSlice(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	ret := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ret = append(ret, rv.Index(i).Interface())
	}
	return ret, true
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

package configexpression

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// compileExpression 生成 f.MustCreate("name", []any{...}, "message"[, condition]) 形式的源码
func compileExpression(factoryAccessor, name string, options []any, message string, condition Expression) string {
	var b strings.Builder
	b.WriteString(factoryAccessor)
	b.WriteString(".MustCreate(")
	b.WriteString(strconv.Quote(name))
	b.WriteString(", ")
	b.WriteString(compileSlice(factoryAccessor, options))
	b.WriteString(", ")
	b.WriteString(strconv.Quote(message))
	if condition != nil {
		b.WriteString(", ")
		b.WriteString(condition.Compile(factoryAccessor))
	}
	b.WriteString(")")
	return b.String()
}

func compileSlice(factoryAccessor string, values []any) string {
	if values == nil {
		return "nil"
	}
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, compileValue(factoryAccessor, v))
	}
	return "[]any{" + strings.Join(parts, ", ") + "}"
}

func compileValue(factoryAccessor string, v any) string {
	switch value := v.(type) {
	case nil:
		return "nil"
	case Expression:
		return value.Compile(factoryAccessor)
	case *PropertyPath:
		return fmt.Sprintf("%s.Path(%s, %s)", factoryAccessor, strconv.Quote(value.String()), strconv.Quote(value.Original()))
	case string:
		return strconv.Quote(value)
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return fmt.Sprintf("int64(%d)", value)
	case float64:
		return fmt.Sprintf("float64(%s)", strconv.FormatFloat(value, 'g', -1, 64))
	case []any:
		return compileSlice(factoryAccessor, value)
	case map[string]any:
		keys := make([]string, 0, len(value))
		for k := range value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, strconv.Quote(k)+": "+compileValue(factoryAccessor, value[k]))
		}
		return "map[string]any{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%#v", v)
}

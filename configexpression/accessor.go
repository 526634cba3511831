package configexpression

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// PathAccessible 自定义对象通过它暴露给属性路径读写
type PathAccessible interface {
	GetPathValue(key string) (any, bool)
	SetPathValue(key string, value any) error
}

// ContextAccessor 根据属性路径读写上下文, 上下文可以是 map, 结构体指针, 切片或者 PathAccessible
type ContextAccessor struct{}

func NewContextAccessor() *ContextAccessor {
	return &ContextAccessor{}
}

// GetValue value 不是属性路径时原样返回; 路径中间任何一段不存在都返回 nil
func (a *ContextAccessor) GetValue(data any, value any) any {
	path, ok := value.(*PropertyPath)
	if !ok {
		return value
	}
	ret, _ := a.lookup(data, path)
	return ret
}

// GetRequiredValue 路径不存在时返回 ErrPropertyPathNotFound
func (a *ContextAccessor) GetRequiredValue(data any, path *PropertyPath) (any, error) {
	ret, ok := a.lookup(data, path)
	if !ok {
		return nil, errors.WithMessagef(ErrPropertyPathNotFound, "path: %s", path.String())
	}
	return ret, nil
}

func (a *ContextAccessor) HasValue(data any, path *PropertyPath) bool {
	_, ok := a.lookup(data, path)
	return ok
}

// SetValue 写入属性路径, 缺失的中间段自动创建为 map[string]any, 不会自动创建结构体
func (a *ContextAccessor) SetValue(data any, path *PropertyPath, value any) error {
	if path == nil {
		return errors.WithMessage(ErrInvalidPropertyPath, "nil path")
	}
	elements := path.elements
	current := data
	for i := 0; i < len(elements)-1; i++ {
		next, ok := getElement(current, elements[i])
		if !ok || isNilValue(next) {
			if !canHoldMap(current, elements[i]) {
				return errors.WithMessagef(ErrPropertyNotWritable, "cannot create %q of path %s", elements[i], path.String())
			}
			created := make(map[string]any)
			if err := setElement(current, elements[i], created); err != nil {
				return errors.WithMessagef(err, "path: %s", path.String())
			}
			next = created
		}
		current = next
	}
	if err := setElement(current, elements[len(elements)-1], value); err != nil {
		return errors.WithMessagef(err, "path: %s", path.String())
	}
	return nil
}

func (a *ContextAccessor) lookup(data any, path *PropertyPath) (any, bool) {
	if path == nil {
		return nil, false
	}
	current := data
	for _, element := range path.elements {
		next, ok := getElement(current, element)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

func getElement(current any, key string) (any, bool) {
	if current == nil {
		return nil, false
	}
	switch c := current.(type) {
	case PathAccessible:
		return c.GetPathValue(key)
	case map[string]any:
		v, ok := c[key]
		return v, ok
	}
	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true
	case reflect.Struct:
		field, ok := findField(rv, key)
		if !ok || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	case reflect.Slice, reflect.Array:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= rv.Len() {
			return nil, false
		}
		return rv.Index(index).Interface(), true
	}
	return nil, false
}

// canHoldMap 判断 current 的 key 位置能否写入一个自动创建的 map
func canHoldMap(current any, key string) bool {
	switch current.(type) {
	case PathAccessible, map[string]any:
		return true
	}
	rv := reflect.ValueOf(current)
	if !rv.IsValid() {
		return false
	}
	if rv.Kind() == reflect.Map {
		return rv.Type().Key().Kind() == reflect.String && reflect.TypeOf(map[string]any{}).AssignableTo(rv.Type().Elem())
	}
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		field, ok := findField(rv.Elem(), key)
		return ok && field.CanSet() && reflect.TypeOf(map[string]any{}).AssignableTo(field.Type())
	}
	return false
}

func setElement(current any, key string, value any) error {
	switch c := current.(type) {
	case nil:
		return errors.WithMessagef(ErrPropertyNotWritable, "nil container for %q", key)
	case PathAccessible:
		return c.SetPathValue(key, value)
	case map[string]any:
		c[key] = value
		return nil
	}
	rv := reflect.ValueOf(current)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return errors.WithMessagef(ErrPropertyNotWritable, "map cannot hold %q", key)
		}
		v, err := convertValue(value, rv.Type().Elem())
		if err != nil {
			return err
		}
		rv.SetMapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()), v)
		return nil
	case reflect.Pointer:
		if rv.IsNil() {
			return errors.WithMessagef(ErrPropertyNotWritable, "nil pointer for %q", key)
		}
		elem := rv.Elem()
		switch elem.Kind() {
		case reflect.Struct:
			field, ok := findField(elem, key)
			if !ok || !field.CanSet() {
				return errors.WithMessagef(ErrPropertyNotWritable, "field %q not writable", key)
			}
			v, err := convertValue(value, field.Type())
			if err != nil {
				return err
			}
			field.Set(v)
			return nil
		case reflect.Slice:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 {
				return errors.WithMessagef(ErrPropertyNotWritable, "invalid index %q", key)
			}
			v, err := convertValue(value, elem.Type().Elem())
			if err != nil {
				return err
			}
			if index == elem.Len() {
				elem.Set(reflect.Append(elem, v))
				return nil
			}
			if index > elem.Len() {
				return errors.WithMessagef(ErrPropertyNotWritable, "index %d out of range", index)
			}
			elem.Index(index).Set(v)
			return nil
		}
	case reflect.Slice:
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 || index >= rv.Len() {
			return errors.WithMessagef(ErrPropertyNotWritable, "index %q out of range", key)
		}
		v, err := convertValue(value, rv.Type().Elem())
		if err != nil {
			return err
		}
		rv.Index(index).Set(v)
		return nil
	}
	return errors.WithMessagef(ErrPropertyNotWritable, "%T cannot hold %q", current, key)
}

func convertValue(value any, target reflect.Type) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(target), nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target) {
		return v, nil
	}
	if isNumberKind(v.Kind()) && isNumberKind(target.Kind()) {
		return v.Convert(target), nil
	}
	return reflect.Value{}, errors.WithMessagef(ErrPropertyNotWritable, "cannot assign %T to %s", value, target)
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// findField 依次按字段名, 忽略大小写, json tag, 下划线命名查找导出字段
func findField(rv reflect.Value, key string) (reflect.Value, bool) {
	rt := rv.Type()
	if f, ok := rt.FieldByName(key); ok && f.IsExported() {
		return rv.FieldByIndex(f.Index), true
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if strings.EqualFold(f.Name, key) || tag == key || toSnakeCase(f.Name) == key {
			return rv.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

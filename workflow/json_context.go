package workflow

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// JSONContext 保持顶层 key 写入顺序的 JSON 对象, WorkflowData 的底层存储
type JSONContext struct {
	keys []string
	data map[string]any
}

// NewJSONContext 从字节创建, 顶层 key 按 JSON 中出现的顺序保存
func NewJSONContext(b []byte) (*JSONContext, error) {
	ctx := &JSONContext{data: make(map[string]any)}
	if len(bytes.TrimSpace(b)) == 0 || bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return ctx, nil
	}
	if err := json.Unmarshal(b, ctx); err != nil {
		return nil, errors.Wrap(err, "unmarshal json context failed")
	}
	return ctx, nil
}

// NewJSONContextFromMap map 没有顺序, 按 key 排序写入
func NewJSONContextFromMap(m map[string]any) *JSONContext {
	ctx := &JSONContext{data: make(map[string]any, len(m))}
	for _, key := range sortedKeys(m) {
		ctx.Set([]string{key}, m[key])
	}
	return ctx
}

// Get 获取值，支持嵌套路径
// 例如: Get("user", "name") 获取 user.name
func (c *JSONContext) Get(keys ...string) (any, bool) {
	if len(keys) == 0 {
		return nil, false
	}
	current := any(c.data)
	for _, key := range keys {
		currentMap, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := currentMap[key]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

func (c *JSONContext) GetString(keys ...string) (string, bool) {
	val, ok := c.Get(keys...)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt64 兼容 JSON 解码出来的 float64
func (c *JSONContext) GetInt64(keys ...string) (int64, bool) {
	val, ok := c.Get(keys...)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	}
	return 0, false
}

func (c *JSONContext) GetBool(keys ...string) (bool, bool) {
	val, ok := c.Get(keys...)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Set 设置值，中间路径不是 map 时会被覆盖
func (c *JSONContext) Set(keys []string, value any) error {
	if len(keys) == 0 {
		return errors.New("keys cannot be empty")
	}
	if _, ok := c.data[keys[0]]; !ok {
		c.keys = append(c.keys, keys[0])
	}
	if len(keys) == 1 {
		c.data[keys[0]] = value
		return nil
	}
	current, ok := c.data[keys[0]].(map[string]any)
	if !ok {
		current = make(map[string]any)
		c.data[keys[0]] = current
	}
	for i := 1; i < len(keys)-1; i++ {
		next, ok := current[keys[i]].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[keys[i]] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
	return nil
}

// Delete 删除指定路径的值
func (c *JSONContext) Delete(keys ...string) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		if _, ok := c.data[keys[0]]; !ok {
			return
		}
		delete(c.data, keys[0])
		for i, key := range c.keys {
			if key == keys[0] {
				c.keys = append(c.keys[:i], c.keys[i+1:]...)
				break
			}
		}
		return
	}
	current := c.data
	for i := 0; i < len(keys)-1; i++ {
		next, ok := current[keys[i]].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, keys[len(keys)-1])
}

// Keys 顶层 key, 按写入顺序
func (c *JSONContext) Keys() []string {
	ret := make([]string, len(c.keys))
	copy(ret, c.keys)
	return ret
}

func (c *JSONContext) Len() int {
	return len(c.keys)
}

// MarshalJSON 顶层按写入顺序输出
func (c *JSONContext) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.data[key])
		if err != nil {
			return nil, errors.Wrapf(err, "marshal key %s failed", key)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 记录顶层 key 的出现顺序
func (c *JSONContext) UnmarshalJSON(b []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(b))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return errors.New("json context must be an object")
	}
	c.keys = c.keys[:0]
	c.data = make(map[string]any)
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		key, ok := token.(string)
		if !ok {
			return errors.New("json context key must be a string")
		}
		var value any
		if err := decoder.Decode(&value); err != nil {
			return errors.Wrapf(err, "decode key %s failed", key)
		}
		if _, exists := c.data[key]; !exists {
			c.keys = append(c.keys, key)
		}
		c.data[key] = value
	}
	_, err = decoder.Token()
	return err
}

func (c *JSONContext) ToBytes() ([]byte, error) {
	return c.MarshalJSON()
}

// ToMap 返回底层 map（注意：返回的是引用）
func (c *JSONContext) ToMap() map[string]any {
	return c.data
}

// Clone 深拷贝, 无法 JSON 序列化的值保持引用
func (c *JSONContext) Clone() *JSONContext {
	ret := &JSONContext{keys: make([]string, len(c.keys)), data: make(map[string]any, len(c.data))}
	copy(ret.keys, c.keys)
	for key, value := range c.data {
		ret.data[key] = cloneValue(value)
	}
	return ret
}

func cloneValue(v any) any {
	switch value := v.(type) {
	case map[string]any:
		ret := make(map[string]any, len(value))
		for k, item := range value {
			ret[k] = cloneValue(item)
		}
		return ret
	case []any:
		ret := make([]any, len(value))
		for i, item := range value {
			ret[i] = cloneValue(item)
		}
		return ret
	}
	return v
}

// Unmarshal 将上下文反序列化到指定结构体
func (c *JSONContext) Unmarshal(v any) error {
	b, err := c.ToBytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

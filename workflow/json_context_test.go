package workflow

import (
	"encoding/json"
	"testing"
)

func TestJSONContext_BasicOperations(t *testing.T) {
	ctx, err := NewJSONContext(nil)
	if err != nil {
		t.Fatalf("NewJSONContext failed: %v", err)
	}

	_ = ctx.Set([]string{"applicant", "name"}, "张三")
	_ = ctx.Set([]string{"applicant", "age"}, int64(25))
	_ = ctx.Set([]string{"applicant", "active"}, true)
	_ = ctx.Set([]string{"amount"}, 98.5)

	name, ok := ctx.GetString("applicant", "name")
	if !ok || name != "张三" {
		t.Errorf("Expected name=张三, got %s", name)
	}

	age, ok := ctx.GetInt64("applicant", "age")
	if !ok || age != 25 {
		t.Errorf("Expected age=25, got %d", age)
	}

	active, ok := ctx.GetBool("applicant", "active")
	if !ok || !active {
		t.Errorf("Expected active=true, got %v", active)
	}

	if _, ok := ctx.Get("applicant", "missing", "deep"); ok {
		t.Errorf("Expected missing nested path to be absent")
	}
}

func TestJSONContext_FromBytesKeepsKeyOrder(t *testing.T) {
	jsonData := []byte(`{
		"reviewer": "李四",
		"amount": 12345,
		"approval": {
			"comment": "审核通过",
			"ts": 1640000000
		}
	}`)

	ctx, err := NewJSONContext(jsonData)
	if err != nil {
		t.Fatalf("NewJSONContext failed: %v", err)
	}

	keys := ctx.Keys()
	expected := []string{"reviewer", "amount", "approval"}
	if len(keys) != len(expected) {
		t.Fatalf("Expected keys %v, got %v", expected, keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Expected keys %v, got %v", expected, keys)
		}
	}

	amount, ok := ctx.GetInt64("amount")
	if !ok || amount != 12345 {
		t.Errorf("Expected amount=12345, got %d", amount)
	}

	comment, ok := ctx.GetString("approval", "comment")
	if !ok || comment != "审核通过" {
		t.Errorf("Expected comment=审核通过, got %s", comment)
	}
}

func TestJSONContext_InvalidBytes(t *testing.T) {
	if _, err := NewJSONContext([]byte(`[1, 2]`)); err == nil {
		t.Errorf("Expected error for non-object json")
	}
	ctx, err := NewJSONContext([]byte(`null`))
	if err != nil || ctx.Len() != 0 {
		t.Errorf("Expected empty context for null, got %v, %v", ctx, err)
	}
}

func TestJSONContext_ToBytes(t *testing.T) {
	ctx, _ := NewJSONContext(nil)
	_ = ctx.Set([]string{"name"}, "测试")
	_ = ctx.Set([]string{"count"}, int64(100))

	b, err := ctx.ToBytes()
	if err != nil {
		t.Fatalf("ToBytes failed: %v", err)
	}
	if string(b) != `{"name":"测试","count":100}` {
		t.Errorf("Unexpected bytes: %s", string(b))
	}

	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if result["name"] != "测试" {
		t.Errorf("Expected name=测试, got %v", result["name"])
	}
}

func TestJSONContext_Delete(t *testing.T) {
	ctx := NewJSONContextFromMap(map[string]any{
		"b": 1,
		"a": map[string]any{"x": 1, "y": 2},
	})
	if keys := ctx.Keys(); keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected sorted keys, got %v", keys)
	}

	ctx.Delete("a", "x")
	if _, ok := ctx.Get("a", "x"); ok {
		t.Errorf("Expected a.x to be deleted")
	}
	if _, ok := ctx.Get("a", "y"); !ok {
		t.Errorf("Expected a.y to exist")
	}

	ctx.Delete("b")
	if ctx.Len() != 1 || ctx.Keys()[0] != "a" {
		t.Errorf("Expected only key a, got %v", ctx.Keys())
	}
}

func TestJSONContext_Clone(t *testing.T) {
	original := NewJSONContextFromMap(map[string]any{
		"approval": map[string]any{"status": "pending"},
		"tags":     []any{"a"},
	})

	cloned := original.Clone()
	_ = cloned.Set([]string{"approval", "status"}, "approved")
	cloned.ToMap()["tags"].([]any)[0] = "b"

	status, _ := original.GetString("approval", "status")
	if status != "pending" {
		t.Errorf("Expected original status=pending, got %s", status)
	}
	if original.ToMap()["tags"].([]any)[0] != "a" {
		t.Errorf("Expected original tags untouched")
	}
}

func TestJSONContext_Unmarshal(t *testing.T) {
	ctx := NewJSONContextFromMap(map[string]any{
		"name":  "报销",
		"count": 3,
	})

	var target struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	if err := ctx.Unmarshal(&target); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if target.Name != "报销" || target.Count != 3 {
		t.Errorf("Unexpected target: %+v", target)
	}
}

func TestWorkflowData_RoundTrip(t *testing.T) {
	data := NewWorkflowData(nil)
	data.Set("second", "b")
	data.Set("first", "a")

	b, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"second":"b","first":"a"}` {
		t.Errorf("Unexpected bytes: %s", string(b))
	}

	decoded := &WorkflowData{}
	if err := json.Unmarshal(b, decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	keys := decoded.Keys()
	if len(keys) != 2 || keys[0] != "second" || keys[1] != "first" {
		t.Errorf("Expected insertion order, got %v", keys)
	}
}

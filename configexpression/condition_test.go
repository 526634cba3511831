package configexpression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spyCondition 记录被求值的顺序
type spyCondition struct {
	conditionExpression
	id    string
	value bool
	calls *[]string
}

func (s *spyCondition) Initialize(options []any) error {
	s.id = options[0].(string)
	s.value = options[1].(bool)
	s.setOptions(options)
	return nil
}

func (s *spyCondition) Evaluate(ctx context.Context, data any, errs *Errors) (any, error) {
	*s.calls = append(*s.calls, s.id)
	return s.result(s.value, errs, nil)
}

func newSpyAssembler(t *testing.T, calls *[]string) *Assembler {
	factory := NewDefaultFactory(nil)
	err := factory.Register(func(accessor *ContextAccessor) Expression {
		s := &spyCondition{calls: calls}
		s.name, s.accessor = "spy", accessor
		return s
	}, "spy")
	require.NoError(t, err)
	return NewAssembler(factory)
}

func spy(id string, value bool, message ...string) map[string]any {
	body := map[string]any{"parameters": []any{id, value}}
	if len(message) > 0 {
		body["message"] = message[0]
	}
	return map[string]any{"@spy": body}
}

func TestCompositeCondition_ShortCircuit(t *testing.T) {
	ctx := context.Background()

	t.Run("and遇到false停止", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@and": []any{
			spy("a", true), spy("b", false), spy("c", true),
		}})
		require.NoError(t, err)
		ok, err := IsConditionAllowed(ctx, expr, nil, nil)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("or遇到true停止", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@or": []any{
			spy("a", false), spy("b", true), spy("c", false),
		}})
		require.NoError(t, err)
		ok, err := IsConditionAllowed(ctx, expr, nil, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("and全部为true", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@and": []any{spy("a", true), spy("b", true)}})
		require.NoError(t, err)
		ok, err := IsConditionAllowed(ctx, expr, nil, nil)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a", "b"}, calls)
	})
}

func TestCompositeCondition_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("or成功时丢弃失败分支的信息", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@or": []any{
			spy("a", false, "a failed"), spy("b", true),
		}})
		require.NoError(t, err)
		errs := NewErrors()
		ok, err := IsConditionAllowed(ctx, expr, nil, errs)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 0, errs.Len())
	})

	t.Run("or全部失败时保留所有信息", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@or": map[string]any{
			"parameters": []any{spy("a", false, "a failed"), spy("b", false, "b failed")},
			"message":    "none matched",
		}})
		require.NoError(t, err)
		errs := NewErrors()
		ok, err := IsConditionAllowed(ctx, expr, nil, errs)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"a failed", "b failed", "none matched"}, errs.Messages())
	})

	t.Run("and只记录第一个失败", func(t *testing.T) {
		calls := make([]string, 0)
		expr, err := newSpyAssembler(t, &calls).Assemble(map[string]any{"@and": []any{
			spy("a", false, "a failed"), spy("b", false, "b failed"),
		}})
		require.NoError(t, err)
		errs := NewErrors()
		_, err = IsConditionAllowed(ctx, expr, nil, errs)
		require.NoError(t, err)
		assert.Equal(t, []string{"a failed"}, errs.Messages())
	})
}

func TestConditions_Builtin(t *testing.T) {
	assembler := newTestAssembler()
	ctx := context.Background()
	data := map[string]any{
		"data": map[string]any{
			"amount":   120.5,
			"count":    int64(3),
			"status":   "open",
			"note":     "  ",
			"tags":     []any{"a", "b"},
			"nothing":  nil,
			"reviewer": "",
		},
	}
	cases := []struct {
		name   string
		config map[string]any
		want   bool
	}{
		{"eq数字跨类型", map[string]any{"@eq": []any{"$count", 3}}, true},
		{"neq", map[string]any{"@neq": []any{"$status", "closed"}}, true},
		{"gt", map[string]any{"@gt": []any{"$amount", 100}}, true},
		{"gte相等", map[string]any{"@gte": []any{"$count", 3}}, true},
		{"lt", map[string]any{"@lt": []any{"$count", 2}}, false},
		{"lte字符串", map[string]any{"@lte": []any{"$status", "open"}}, true},
		{"gt不可比较", map[string]any{"@gt": []any{"$status", 1}}, false},
		{"in", map[string]any{"@in": []any{"b", "$tags"}}, true},
		{"not_in", map[string]any{"@not_in": []any{"c", "$tags"}}, true},
		{"blank空白字符串", map[string]any{"@blank": "$note"}, true},
		{"empty缺失路径", map[string]any{"@empty": "$missing.deep"}, true},
		{"not_blank", map[string]any{"@not_blank": "$tags"}, true},
		{"has_value值为nil", map[string]any{"@has_value": "$nothing"}, true},
		{"has_value缺失", map[string]any{"@has_value": "$missing"}, false},
		{"not", map[string]any{"@not": []any{map[string]any{"@blank": "$reviewer"}}}, false},
		{"eq嵌套函数", map[string]any{"@eq": []any{map[string]any{"@concat": []any{"$status", "-", "$count"}}, "open-3"}}, true},
		{"nil比较", map[string]any{"@eq": []any{"$nothing", nil}}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			expr, err := assembler.Assemble(c.config)
			require.NoError(t, err)
			ok, err := IsConditionAllowed(ctx, expr, data, nil)
			require.NoError(t, err)
			assert.Equal(t, c.want, ok)
		})
	}
}

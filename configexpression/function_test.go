package configexpression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctions_Tree(t *testing.T) {
	assembler := newTestAssembler()
	ctx := context.Background()

	expr, err := assembler.Assemble(map[string]any{"@tree": []any{
		map[string]any{"@assign_value": []any{"$order.status", "approved"}},
		map[string]any{"@assign_value": map[string]any{"attribute": "$order.title", "value": map[string]any{"@concat": []any{"#", "$number"}}}},
		map[string]any{"@increase_value": []any{"$counter"}},
		map[string]any{"@increase_value": []any{"$score", 0.5}},
		map[string]any{"@unset_value": []any{"$temp"}},
		map[string]any{"@concat": map[string]any{"attribute": "$summary", "values": []any{"$order.status", ":", "$counter"}}},
	}})
	require.NoError(t, err)
	assert.Equal(t, KindFunction, expr.Kind())

	data := map[string]any{"data": map[string]any{"number": 42, "score": 1, "temp": "x"}}
	_, err = Execute(ctx, expr, data, nil)
	require.NoError(t, err)

	values := data["data"].(map[string]any)
	assert.Equal(t, map[string]any{"status": "approved", "title": "#42"}, values["order"])
	assert.Equal(t, int64(1), values["counter"])
	assert.Equal(t, 1.5, values["score"])
	assert.Nil(t, values["temp"])
	assert.Equal(t, "approved:1", values["summary"])
}

func TestFunctions_AttachedCondition(t *testing.T) {
	assembler := newTestAssembler()
	ctx := context.Background()

	expr, err := assembler.Assemble(map[string]any{"@assign_value": map[string]any{
		"parameters": []any{"$approved", true},
		"conditions": map[string]any{"@not_blank": map[string]any{"parameters": []any{"$reviewer"}, "message": "reviewer required"}},
	}})
	require.NoError(t, err)

	t.Run("条件不满足时不执行", func(t *testing.T) {
		data := map[string]any{"data": map[string]any{}}
		errs := NewErrors()
		_, err := Execute(ctx, expr, data, errs)
		require.NoError(t, err)
		_, exists := data["data"].(map[string]any)["approved"]
		assert.False(t, exists)
		assert.Equal(t, []string{"reviewer required"}, errs.Messages())
	})

	t.Run("条件满足时执行", func(t *testing.T) {
		data := map[string]any{"data": map[string]any{"reviewer": "赵六"}}
		_, err := Execute(ctx, expr, data, nil)
		require.NoError(t, err)
		assert.Equal(t, true, data["data"].(map[string]any)["approved"])
	})
}

func TestFunctions_ConfigurationErrors(t *testing.T) {
	assembler := newTestAssembler()
	cases := map[string]map[string]any{
		"assign_value目标不是路径": {"@assign_value": []any{"literal", 1}},
		"tree子节点不是函数":        {"@tree": []any{map[string]any{"@true": nil}}},
		"increase_value参数过多": {"@increase_value": []any{"$a", 1, 2}},
		"concat缺少values":     {"@concat": map[string]any{"attribute": "$a"}},
		"conditions不是条件":     {"@assign_value": map[string]any{"parameters": []any{"$a", 1}, "conditions": map[string]any{"@unset_value": "$b"}}},
	}
	for name, config := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := assembler.Assemble(config)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestExpression_Compile(t *testing.T) {
	assembler := newTestAssembler()
	expr, err := assembler.Assemble(map[string]any{"@and": map[string]any{
		"parameters": []any{
			map[string]any{"@eq": []any{"$status", "open"}},
			map[string]any{"@true": nil},
		},
		"message": "closed",
	}})
	require.NoError(t, err)

	assert.Equal(t,
		`f.MustCreate("and", []any{f.MustCreate("equal", []any{f.Path("data.status", "$status"), "open"}, ""), f.MustCreate("true", []any{}, "")}, "closed")`,
		expr.Compile("f"),
	)
}

func TestFactory_MustCreateRebuildsCompiledTree(t *testing.T) {
	f := NewDefaultFactory(nil)
	expr := f.MustCreate("and", []any{
		f.MustCreate("equal", []any{f.Path("data.status", "$status"), "open"}, ""),
		f.MustCreate("true", []any{}, ""),
	}, "closed")

	errs := NewErrors()
	ok, err := IsConditionAllowed(context.Background(), expr, map[string]any{"data": map[string]any{"status": "done"}}, errs)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"closed"}, errs.Messages())

	assert.Panics(t, func() { f.MustCreate("missing", nil, "") })
}

func TestFactory_Register(t *testing.T) {
	f := NewDefaultFactory(nil)
	assert.True(t, f.Has("@eq"))
	assert.True(t, f.Has("equal"))
	assert.ErrorIs(t, f.Register(newTrueCondition, "true"), ErrConfiguration)
	assert.ErrorIs(t, f.Register(newTrueCondition), ErrConfiguration)
	assert.ErrorIs(t, f.Register(nil, "x"), ErrConfiguration)
	assert.Contains(t, f.Names(), "not_empty")
}

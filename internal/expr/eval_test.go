package expr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/expr"
)

func ctx() map[string]any {
	return map[string]any{
		"user": map[string]any{"id": "12345", "name": "Ada"},
		"args": map[string]any{"text": "Hello World"},
		"items": []any{
			map[string]any{"name": "b", "score": 2.0},
			map[string]any{"name": "a", "score": 1.0},
		},
	}
}

func TestEvaluateMemberAndComparison(t *testing.T) {
	v, err := expr.Evaluate(`user.id == '12345'`, ctx())
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = expr.Evaluate(`user.id != '12345'`, ctx())
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestEvaluateTernaryAndArithmetic(t *testing.T) {
	v, err := expr.Evaluate(`1 + 2 * 3`, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	v, err = expr.Evaluate(`(1 + 2) * 3`, nil)
	require.NoError(t, err)
	assert.Equal(t, 9.0, v)

	v, err = expr.Evaluate(`1 > 2 ? 'a' : 'b'`, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestPipeTransforms(t *testing.T) {
	v, err := expr.Evaluate(`args.text | upper`, ctx())
	require.NoError(t, err)
	assert.Equal(t, "HELLO WORLD", v)

	v, err = expr.Evaluate(`args.text | truncate:5:'..'`, ctx())
	require.NoError(t, err)
	assert.Equal(t, "Hello..", v)

	v, err = expr.Evaluate(`items | sort:'score' | first | get:'name'`, ctx())
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

func TestInterpolate(t *testing.T) {
	s, err := expr.Interpolate("You said: ${args.text}", ctx())
	require.NoError(t, err)
	assert.Equal(t, "You said: Hello World", s)

	_, err = expr.Interpolate("broken ${unbalanced", ctx())
	require.Error(t, err)
}

func TestEvaluatorPurity(t *testing.T) {
	c := ctx()
	v1, err := expr.Evaluate(`user.id | upper`, c)
	require.NoError(t, err)
	v2, err := expr.Evaluate(`user.id | upper`, c)
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, "12345", c["user"].(map[string]any)["id"])
}

func TestJSONTransformHandlesCycles(t *testing.T) {
	m := map[string]any{"a": 1.0}
	m["self"] = m
	s, err := expr.Evaluate(`x | json`, map[string]any{"x": m})
	require.NoError(t, err)
	assert.Contains(t, s, "[Circular]")
}

func TestSafeReplaceRejectsUnsafePattern(t *testing.T) {
	v, err := expr.Evaluate(`'aaaa' | replace:'(a+)+':'x'`, nil)
	require.NoError(t, err)
	// Unsafe nested-quantifier pattern falls back to literal substring
	// behavior, which finds no literal match for "(a+)+".
	assert.Equal(t, "aaaa", v)
}

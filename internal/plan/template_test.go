package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferences(t *testing.T) {
	args := map[string]any{
		"text":  "{{step_3_result}} and {{ step_1_result }}",
		"items": []any{"{{step_1_result}}", map[string]any{"deep": "{{step_2_result}}"}},
		"n":     4,
	}
	assert.Equal(t, []int{1, 2, 3}, References(args))
	assert.Empty(t, References(nil))
}

func TestSubstitute(t *testing.T) {
	results := map[int]any{
		1: map[string]any{"title": "Hello"},
		2: "plain text",
	}
	args := map[string]any{
		"raw":    "{{step_1_result}}",
		"inline": "Summary: {{step_2_result}} / {{step_1_result}}",
		"list":   []any{"{{step_2_result}}"},
		"n":      3.0,
	}

	out, err := Substitute(args, results)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Hello"}, out["raw"])
	assert.Equal(t, `Summary: plain text / {"title":"Hello"}`, out["inline"])
	assert.Equal(t, []any{"plain text"}, out["list"])
	assert.Equal(t, 3.0, out["n"])
	assert.Equal(t, "{{step_1_result}}", args["raw"], "input untouched")

	_, err = Substitute(map[string]any{"x": "see {{step_9_result}}"}, results)
	assert.ErrorContains(t, err, "step_9_result")
}

package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerKey(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		kind AnswerKind
	}{
		{"empty", ``, AnswerNone},
		{"null", `null`, AnswerNone},
		{"number", `2`, AnswerIndex},
		{"numeric string", `"1"`, AnswerIndex},
		{"text", `" Paris "`, AnswerText},
		{"bool", `true`, AnswerText},
		{"set", `["a", 3, false]`, AnswerSet},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			key, err := ParseAnswerKey([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, key.Kind)
		})
	}
}

func TestParseAnswerKeyRejectsObjects(t *testing.T) {
	for _, raw := range []string{`{"a":1}`, `[["nested"]]`, `[null]`, `{bad`} {
		_, err := ParseAnswerKey([]byte(raw))
		assert.Error(t, err, raw)
	}
}

func TestAnswerKeyAccepted(t *testing.T) {
	options := []string{"Berlin", " Paris", "Rome"}

	key, _ := ParseAnswerKey([]byte(`1`))
	assert.Equal(t, []string{"paris"}, key.Accepted(options))

	// 下标越界时按文本比较
	key, _ = ParseAnswerKey([]byte(`7`))
	assert.Equal(t, []string{"7"}, key.Accepted(options))

	key, _ = ParseAnswerKey([]byte(`["Paris", " ROME "]`))
	assert.Equal(t, []string{"paris", "rome"}, key.Accepted(options))

	key, _ = ParseAnswerKey([]byte(`null`))
	assert.Nil(t, key.Accepted(options))
}

func TestAnswerKeyResolve(t *testing.T) {
	options := []string{"True", "False"}

	key, _ := ParseAnswerKey([]byte(`"1"`))
	got, ok := key.Resolve(options)
	assert.True(t, ok)
	assert.Equal(t, "false", got)

	// 数字字符串与选项文本相同时按文本比较
	digits := []string{"1", "2", "3"}
	key, _ = ParseAnswerKey([]byte(`"1"`))
	got, ok = key.Resolve(digits)
	assert.True(t, ok)
	assert.Equal(t, "1", got)

	key, _ = ParseAnswerKey([]byte(`1`))
	got, _ = key.Resolve(digits)
	assert.Equal(t, "2", got)

	key, _ = ParseAnswerKey([]byte(`["a"]`))
	_, ok = key.Resolve(options)
	assert.False(t, ok)

	key, _ = ParseAnswerKey(nil)
	_, ok = key.Resolve(options)
	assert.False(t, ok)
}

func TestValidateStudentAnswer(t *testing.T) {
	for _, raw := range []string{`1`, `"text"`, `true`, `null`} {
		assert.NoError(t, ValidateStudentAnswer(json.RawMessage(raw)), raw)
	}
	for _, raw := range []string{`["a"]`, `{"x":1}`} {
		assert.Error(t, ValidateStudentAnswer(json.RawMessage(raw)), raw)
	}
}

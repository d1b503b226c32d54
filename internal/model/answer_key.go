package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind 标准答案/学生答案的三种存储形态
type AnswerKind int

const (
	AnswerNone AnswerKind = iota
	AnswerIndex
	AnswerText
	AnswerSet
)

var (
	errAnswerShape        = errors.New("answer must be a string, number, boolean, array of strings or null")
	errStudentAnswerShape = errors.New("answer must be a string, number, boolean or null")
)

// AnswerKey 解析后的答案，评分时再结合选项解析为可比较的文本集合
type AnswerKey struct {
	Kind  AnswerKind
	Index int
	Text  string
	Set   []string
	// Quoted 以 JSON 字符串给出的下标
	Quoted bool
}

// ParseAnswerKey 解析多态编码的答案：数字/数字字符串视为选项下标，数组视为可接受文本集合，其余为单个文本
func ParseAnswerKey(raw []byte) (AnswerKey, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return AnswerKey{Kind: AnswerNone}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return AnswerKey{}, fmt.Errorf("%w: %v", errAnswerShape, err)
	}

	switch val := v.(type) {
	case json.Number:
		return scalarKey(val.String()), nil
	case string:
		key := scalarKey(val)
		key.Quoted = key.Kind == AnswerIndex
		return key, nil
	case bool:
		return AnswerKey{Kind: AnswerText, Text: strconv.FormatBool(val)}, nil
	case []interface{}:
		set := make([]string, 0, len(val))
		for _, item := range val {
			switch it := item.(type) {
			case string:
				set = append(set, it)
			case json.Number:
				set = append(set, it.String())
			case bool:
				set = append(set, strconv.FormatBool(it))
			default:
				return AnswerKey{}, errAnswerShape
			}
		}
		return AnswerKey{Kind: AnswerSet, Set: set}, nil
	default:
		return AnswerKey{}, errAnswerShape
	}
}

func scalarKey(s string) AnswerKey {
	if idx, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return AnswerKey{Kind: AnswerIndex, Index: idx, Text: s}
	}
	return AnswerKey{Kind: AnswerText, Text: s}
}

// Accepted 返回归一化后的可接受答案集合；下标在选项范围内时取选项文本
func (k AnswerKey) Accepted(options []string) []string {
	switch k.Kind {
	case AnswerIndex:
		if len(options) > 0 && k.Index >= 0 && k.Index < len(options) {
			return []string{NormalizeAnswer(options[k.Index])}
		}
		return []string{NormalizeAnswer(k.Text)}
	case AnswerText:
		return []string{NormalizeAnswer(k.Text)}
	case AnswerSet:
		out := make([]string, 0, len(k.Set))
		for _, s := range k.Set {
			out = append(out, NormalizeAnswer(s))
		}
		return out
	}
	return nil
}

// Resolve 学生答案归一化为单个可比较文本；集合形态不是合法的学生作答。
// 字符串形式的数字与某个选项文本相同时按文本比较，否则视为下标
func (k AnswerKey) Resolve(options []string) (string, bool) {
	if k.Kind == AnswerNone || k.Kind == AnswerSet {
		return "", false
	}
	if k.Quoted {
		text := NormalizeAnswer(k.Text)
		for _, opt := range options {
			if NormalizeAnswer(opt) == text {
				return text, true
			}
		}
	}
	accepted := k.Accepted(options)
	return accepted[0], true
}

func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateStudentAnswer 学生作答只能是标量或 null
func ValidateStudentAnswer(raw json.RawMessage) error {
	key, err := ParseAnswerKey(raw)
	if err != nil || key.Kind == AnswerSet {
		return errStudentAnswerShape
	}
	return nil
}

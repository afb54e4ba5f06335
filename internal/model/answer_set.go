package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrUnanswered      = errors.New("answer is empty")
	ErrMalformedAnswer = errors.New("answer must be an option index or a list of option indices")
)

// AnswerSet 一组选项下标，升序且去重。题目的正确答案与学生提交的答案都归一化为它，
// 单选题提交的单个下标与多选题提交的下标数组在这里统一
type AnswerSet []int

// NormalizeAnswer 将已解码的 JSON 值（数字或数字数组）归一化为 AnswerSet
func NormalizeAnswer(v interface{}) (AnswerSet, error) {
	switch val := v.(type) {
	case nil:
		return nil, ErrUnanswered
	case float64:
		idx, err := toIndex(val)
		if err != nil {
			return nil, err
		}
		return AnswerSet{idx}, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, ErrMalformedAnswer
		}
		return NormalizeAnswer(f)
	case int:
		return NormalizeAnswer(float64(val))
	case []int:
		items := make([]interface{}, len(val))
		for i, x := range val {
			items[i] = float64(x)
		}
		return NormalizeAnswer(items)
	case []interface{}:
		seen := make(map[int]struct{}, len(val))
		set := make(AnswerSet, 0, len(val))
		for _, item := range val {
			f, ok := item.(float64)
			if !ok {
				if n, isNum := item.(json.Number); isNum {
					parsed, err := n.Float64()
					if err != nil {
						return nil, ErrMalformedAnswer
					}
					f, ok = parsed, true
				}
			}
			if !ok {
				return nil, ErrMalformedAnswer
			}
			idx, err := toIndex(f)
			if err != nil {
				return nil, err
			}
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			set = append(set, idx)
		}
		sort.Ints(set)
		return set, nil
	default:
		return nil, ErrMalformedAnswer
	}
}

// ParseAnswerSet 解析原始 JSON；null 或空内容返回 ErrUnanswered
func ParseAnswerSet(raw json.RawMessage) (AnswerSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrUnanswered
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnswer, err)
	}
	return NormalizeAnswer(v)
}

func toIndex(f float64) (int, error) {
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, ErrMalformedAnswer
	}
	return int(f), nil
}

// Equal 集合相等：大小相同且元素相同（子集、超集都不算）
func (s AnswerSet) Equal(other AnswerSet) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

func (s AnswerSet) Contains(idx int) bool {
	i := sort.SearchInts(s, idx)
	return i < len(s) && s[i] == idx
}

func (s *AnswerSet) UnmarshalJSON(b []byte) error {
	set, err := ParseAnswerSet(b)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

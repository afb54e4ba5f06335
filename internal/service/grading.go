package service

import (
	"encoding/json"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"math"
)

// Grade 一次交卷的评分结果
type Grade struct {
	Correct int
	Total   int
	Score   int
	Status  model.ResultStatus
}

// CanonicalAnswers 把按呈现顺序提交的答案映射回题目的规范顺序：
// raw[i] 对应规范下标 order[i]。超出题目数量的答案被忽略，缺失的答案为 nil
func CanonicalAnswers(order []int, raw []json.RawMessage, total int) []json.RawMessage {
	canonical := make([]json.RawMessage, total)
	for i, idx := range order {
		if i >= len(raw) {
			break
		}
		if idx < 0 || idx >= total {
			continue
		}
		canonical[idx] = raw[i]
	}
	return canonical
}

// ScoreFor 四舍五入到整数百分比
func ScoreFor(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// ValidateOrder 呈现顺序必须是 [0, n) 的一个排列
func ValidateOrder(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("%w: attempt has %d questions, exam has %d", util.ErrExamChanged, len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("%w: presentation order is not a permutation", util.ErrExamChanged)
		}
		seen[idx] = true
	}
	return nil
}

// GradeAnswers 逐题比较答案集合，完全相等才算对；未作答或格式错误按错误计。
// 呈现顺序与题目不匹配（考试在作答期间被修改）时返回 ErrExamChanged，不评分
func GradeAnswers(questions []model.ExamQuestion, order []int, raw []json.RawMessage, passingScore int) (Grade, error) {
	total := len(questions)
	if err := ValidateOrder(order, total); err != nil {
		return Grade{}, err
	}
	canonical := CanonicalAnswers(order, raw, total)

	correct := 0
	for i, q := range questions {
		answer, err := model.ParseAnswerSet(canonical[i])
		if err != nil {
			continue
		}
		if answer.Equal(q.CorrectAnswers) {
			correct++
		}
	}

	g := Grade{Correct: correct, Total: total, Score: ScoreFor(correct, total), Status: model.ResultFail}
	if g.Score >= passingScore {
		g.Status = model.ResultPass
	}
	return g, nil
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// ShuffledOrder Fisher–Yates 洗牌，返回 [0, n) 的均匀随机排列
func ShuffledOrder(n int, intN func(int) int) []int {
	order := identityOrder(n)
	for i := n - 1; i > 0; i-- {
		j := intN(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}

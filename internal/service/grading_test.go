package service

import (
	"encoding/json"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"math/rand/v2"
	"testing"
)

func TestShuffledOrderIsPermutation(t *testing.T) {
	for n := 1; n <= 40; n++ {
		for round := 0; round < 25; round++ {
			order := ShuffledOrder(n, rand.IntN)
			if len(order) != n {
				t.Fatalf("n=%d: got %d indices", n, len(order))
			}
			seen := make([]bool, n)
			for _, idx := range order {
				if idx < 0 || idx >= n {
					t.Fatalf("n=%d: index %d out of range", n, idx)
				}
				if seen[idx] {
					t.Fatalf("n=%d: duplicate index %d in %v", n, idx, order)
				}
				seen[idx] = true
			}
		}
	}
}

func TestShuffledOrderUsesSource(t *testing.T) {
	// 总是选 0 时 Fisher–Yates 结果是确定的
	got := ShuffledOrder(4, func(int) int { return 0 })
	want := []int{1, 2, 3, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func multiQuestion(correct ...int) model.ExamQuestion {
	return model.ExamQuestion{
		Text:           "pick",
		Options:        []string{"a", "b", "c", "d"},
		CorrectAnswers: model.AnswerSet(correct),
	}
}

func mustGrade(t *testing.T, questions []model.ExamQuestion, order []int, raw []json.RawMessage, passing int) Grade {
	t.Helper()
	g, err := GradeAnswers(questions, order, raw, passing)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	return g
}

func TestGradeAnswersMultiSelect(t *testing.T) {
	questions := []model.ExamQuestion{multiQuestion(1, 3)}
	order := []int{0}

	cases := []struct {
		name   string
		answer string
		want   int
	}{
		{"same order", `[1,3]`, 1},
		{"reversed", `[3,1]`, 1},
		{"duplicates collapse", `[3,1,3]`, 1},
		{"subset", `[1]`, 0},
		{"single index", `1`, 0},
		{"superset", `[1,3,2]`, 0},
		{"null", `null`, 0},
		{"string", `"1"`, 0},
		{"negative", `[-1,3]`, 0},
		{"fraction", `[1.5,3]`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := mustGrade(t, questions, order, []json.RawMessage{json.RawMessage(tc.answer)}, 50)
			if g.Correct != tc.want {
				t.Fatalf("answer %s: correct=%d, want %d", tc.answer, g.Correct, tc.want)
			}
		})
	}
}

func TestGradeAnswersSingleAnswerShapes(t *testing.T) {
	questions := []model.ExamQuestion{multiQuestion(2)}
	for _, answer := range []string{`2`, `[2]`, `2.0`} {
		g := mustGrade(t, questions, []int{0}, []json.RawMessage{json.RawMessage(answer)}, 100)
		if g.Correct != 1 || g.Status != model.ResultPass {
			t.Fatalf("answer %s: got %+v", answer, g)
		}
	}
}

func TestGradeAnswersScore(t *testing.T) {
	questions := make([]model.ExamQuestion, 5)
	for i := range questions {
		questions[i] = multiQuestion(0)
	}
	raw := []json.RawMessage{
		json.RawMessage(`0`), json.RawMessage(`0`), json.RawMessage(`0`),
		json.RawMessage(`1`), json.RawMessage(`1`),
	}
	order := []int{0, 1, 2, 3, 4}

	cases := []struct {
		passing int
		status  model.ResultStatus
	}{
		{70, model.ResultFail},
		{60, model.ResultPass},
	}
	for _, tc := range cases {
		g := mustGrade(t, questions, order, raw, tc.passing)
		if g.Score != 60 {
			t.Fatalf("score = %d, want 60", g.Score)
		}
		if g.Status != tc.status {
			t.Fatalf("passing %d: status = %s, want %s", tc.passing, g.Status, tc.status)
		}
	}
}

func TestGradeAnswersMapsPresentationOrder(t *testing.T) {
	questions := []model.ExamQuestion{multiQuestion(0), multiQuestion(1), multiQuestion(2)}
	// 呈现顺序 [2,0,1]：第 0 个答案属于规范第 2 题
	order := []int{2, 0, 1}
	raw := []json.RawMessage{json.RawMessage(`2`), json.RawMessage(`0`), json.RawMessage(`1`)}

	g := mustGrade(t, questions, order, raw, 100)
	if g.Correct != 3 || g.Score != 100 {
		t.Fatalf("got %+v, want all correct", g)
	}

	// 按规范顺序作答则只有巧合的题目能对上
	raw = []json.RawMessage{json.RawMessage(`0`), json.RawMessage(`1`), json.RawMessage(`2`)}
	g = mustGrade(t, questions, order, raw, 100)
	if g.Correct != 0 {
		t.Fatalf("got %+v, want none correct", g)
	}
}

func TestGradeAnswersMissingAndExtra(t *testing.T) {
	questions := []model.ExamQuestion{multiQuestion(0), multiQuestion(1), multiQuestion(2)}
	order := []int{0, 1, 2}

	g := mustGrade(t, questions, order, []json.RawMessage{json.RawMessage(`0`)}, 30)
	if g.Correct != 1 || g.Score != 33 || g.Status != model.ResultPass {
		t.Fatalf("short answers: got %+v", g)
	}

	raw := []json.RawMessage{
		json.RawMessage(`0`), json.RawMessage(`1`), json.RawMessage(`2`), json.RawMessage(`3`),
	}
	g = mustGrade(t, questions, order, raw, 100)
	if g.Correct != 3 {
		t.Fatalf("extra answers: got %+v", g)
	}

	g = mustGrade(t, questions, order, nil, 0)
	if g.Correct != 0 || g.Score != 0 || g.Status != model.ResultPass {
		t.Fatalf("no answers: got %+v", g)
	}
}

func TestGradeAnswersRejectsOrderMismatch(t *testing.T) {
	questions := []model.ExamQuestion{multiQuestion(0), multiQuestion(1), multiQuestion(2)}
	raw := []json.RawMessage{json.RawMessage(`0`), json.RawMessage(`1`), json.RawMessage(`2`)}

	cases := []struct {
		name  string
		order []int
	}{
		{"shorter order", []int{1, 0}},
		{"longer order", []int{0, 1, 2, 3}},
		{"repeated index", []int{0, 0, 1}},
		{"out of range", []int{0, 1, 5}},
		{"nil order", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := GradeAnswers(questions, tc.order, raw, 50); !errors.Is(err, util.ErrExamChanged) {
				t.Fatalf("order %v: expected ErrExamChanged, got %v", tc.order, err)
			}
		})
	}
}

func TestScoreForRounding(t *testing.T) {
	cases := []struct{ correct, total, want int }{
		{3, 4, 75},
		{2, 3, 67},
		{1, 3, 33},
		{1, 8, 13},
		{0, 0, 0},
	}
	for _, tc := range cases {
		if got := ScoreFor(tc.correct, tc.total); got != tc.want {
			t.Errorf("ScoreFor(%d,%d) = %d, want %d", tc.correct, tc.total, got, tc.want)
		}
	}
}

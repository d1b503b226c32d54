package service

import (
	"encoding/json"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository/repotest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGradeAnswer(t *testing.T) {
	capitals := repotest.Choice(2, `1`, "Berlin", "Paris", "Rome")
	textKey := repotest.Choice(1, `" Paris "`)
	setKey := repotest.Choice(1, `["4", "four"]`)
	digits := repotest.Choice(1, `1`, "1", "2", "3", "4")
	trueFalse := model.AssessmentQuestion{Type: model.TrueFalse, Points: 1, Options: []string{"True", "False"}, CorrectAnswer: []byte(`0`)}

	testCases := []struct {
		name    string
		q       *model.AssessmentQuestion
		raw     string
		correct bool
		points  int
	}{
		{"option index", &capitals, `1`, true, 2},
		{"option index as string", &capitals, `"1"`, true, 2},
		{"option text", &capitals, `"  PARIS"`, true, 2},
		{"wrong option", &capitals, `0`, false, 0},
		{"text key", &textKey, `"paris"`, true, 1},
		{"any of set", &setKey, `"Four"`, true, 1},
		{"outside set", &setKey, `"five"`, false, 0},
		{"bool against option text", &trueFalse, `true`, true, 1},
		{"digit option text", &digits, `"2"`, true, 1},
		{"digit option index", &digits, `1`, true, 1},
		{"digit text of another option", &digits, `"1"`, false, 0},
		{"digit text matching no option", &digits, `"7"`, false, 0},
		{"unanswered", &capitals, `null`, false, 0},
		{"empty answer", &capitals, ``, false, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := GradeAnswer(tc.q, json.RawMessage(tc.raw))
			require.NotNil(t, res.IsCorrect)
			assert.Equal(t, tc.correct, *res.IsCorrect)
			assert.Equal(t, tc.points, res.PointsEarned)
		})
	}
}

func TestGradeAnswerMissingQuestion(t *testing.T) {
	res := GradeAnswer(nil, json.RawMessage(`1`))
	require.NotNil(t, res.IsCorrect)
	assert.False(t, *res.IsCorrect)
	assert.Zero(t, res.PointsEarned)
}

func TestGradeAnswerLeavesSubjectiveQuestions(t *testing.T) {
	essay := repotest.Essay(5)
	res := GradeAnswer(&essay, json.RawMessage(`"long answer"`))
	assert.Nil(t, res.IsCorrect)
	assert.Zero(t, res.PointsEarned)
	assert.True(t, RequiresManual(&essay))

	noKey := repotest.Choice(1, `null`, "a", "b")
	res = GradeAnswer(&noKey, json.RawMessage(`0`))
	assert.Nil(t, res.IsCorrect)
	assert.True(t, RequiresManual(&noKey))

	broken := repotest.Choice(1, `{"x":1}`, "a", "b")
	assert.True(t, RequiresManual(&broken))
	assert.Nil(t, GradeAnswer(&broken, json.RawMessage(`0`)).IsCorrect)

	assert.False(t, RequiresManual(nil))
}

func TestGradeSubmissionAutoGraded(t *testing.T) {
	a := &model.Assessment{Questions: []model.AssessmentQuestion{
		repotest.Choice(1, `0`, "yes", "no"),
		repotest.Choice(1, `1`, "yes", "no"),
		repotest.Choice(1, `"go"`),
	}}

	out := GradeSubmission(a, []AnswerInput{
		answer(0, `0`),
		answer(1, `0`),
		answer(2, `"Go"`),
		answer(9, `1`),
	})

	assert.False(t, out.NeedsManual)
	assert.Equal(t, 3, out.TotalPoints)
	assert.Equal(t, 2, out.Score)
	require.Len(t, out.Answers, 4)
	assert.True(t, *out.Answers[0].IsCorrect)
	assert.False(t, *out.Answers[1].IsCorrect)
	assert.True(t, *out.Answers[2].IsCorrect)
	assert.False(t, *out.Answers[3].IsCorrect)
	assert.Equal(t, 67, model.Percent(out.Score, out.TotalPoints))
}

func TestGradeSubmissionNeedsManualForAnySubjectiveQuestion(t *testing.T) {
	a := &model.Assessment{Questions: []model.AssessmentQuestion{
		repotest.Choice(1, `0`, "yes", "no"),
		repotest.Essay(4),
	}}

	// 主观题未作答也需要人工批改
	out := GradeSubmission(a, []AnswerInput{answer(0, `0`)})
	assert.True(t, out.NeedsManual)
	assert.Equal(t, 1, out.Score)
	assert.Equal(t, 5, out.TotalPoints)
	assert.Equal(t, json.RawMessage(`0`), out.Answers[0].Answer)
}

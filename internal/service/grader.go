package service

import (
	"encoding/json"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/logger"

	"go.uber.org/zap"
)

// GradeResult IsCorrect 为 nil 表示需要人工批改
type GradeResult struct {
	IsCorrect    *bool
	PointsEarned int
}

// RequiresManual 主观题，或标准答案缺失/无法解析的题目只能人工批改
func RequiresManual(q *model.AssessmentQuestion) bool {
	if q == nil {
		return false
	}
	if !q.Type.AutoGradable() {
		return true
	}
	key, err := model.ParseAnswerKey(q.CorrectAnswer)
	return err != nil || key.Kind == model.AnswerNone
}

// GradeAnswer 纯函数：不存在的题目判错得零分，不报错
func GradeAnswer(q *model.AssessmentQuestion, raw json.RawMessage) GradeResult {
	if q == nil {
		return GradeResult{IsCorrect: boolPtr(false)}
	}
	if !q.Type.AutoGradable() {
		return GradeResult{}
	}
	key, err := model.ParseAnswerKey(q.CorrectAnswer)
	if err != nil {
		logger.Log.Warn("Unparseable correct answer, leaving for manual grading",
			zap.String("questionId", q.ID), zap.Error(err))
		return GradeResult{}
	}
	if key.Kind == model.AnswerNone {
		return GradeResult{}
	}

	accepted := key.Accepted(q.Options)
	answer, err := model.ParseAnswerKey(raw)
	if err != nil {
		return GradeResult{IsCorrect: boolPtr(false)}
	}
	given, ok := answer.Resolve(q.Options)
	if !ok {
		return GradeResult{IsCorrect: boolPtr(false)}
	}

	for _, a := range accepted {
		if a == given {
			return GradeResult{IsCorrect: boolPtr(true), PointsEarned: q.Points}
		}
	}
	return GradeResult{IsCorrect: boolPtr(false)}
}

// GradedSubmission 整份作答的评分结果
type GradedSubmission struct {
	Answers     []model.SubmissionAnswer
	Score       int
	NeedsManual bool
	TotalPoints int
}

// GradeSubmission 逐题判分；测评中只要有一道题需要人工批改，整份作答就不能自动完成
func GradeSubmission(a *model.Assessment, answers []AnswerInput) GradedSubmission {
	out := GradedSubmission{
		Answers:     make([]model.SubmissionAnswer, 0, len(answers)),
		TotalPoints: a.TotalPoints(),
	}
	for i := range a.Questions {
		if RequiresManual(&a.Questions[i]) {
			out.NeedsManual = true
			break
		}
	}
	for _, in := range answers {
		res := GradeAnswer(a.Question(in.QuestionIndex), in.Answer)
		out.Score += res.PointsEarned
		out.Answers = append(out.Answers, model.SubmissionAnswer{
			QuestionIndex: in.QuestionIndex,
			Answer:        normalizeRaw(in.Answer),
			IsCorrect:     res.IsCorrect,
			PointsEarned:  res.PointsEarned,
		})
	}
	return out
}

func normalizeRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

func boolPtr(b bool) *bool {
	return &b
}

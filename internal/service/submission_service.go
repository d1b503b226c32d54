package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/eventbus"
	"learnhub_backend/pkg/keylock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var validate = validator.New()

// AnswerInput 客户端提交的单题作答；提交序号等字段一律由服务端计算
type AnswerInput struct {
	QuestionIndex int             `json:"questionIndex"`
	Answer        json.RawMessage `json:"answer"`
}

type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" validate:"max=500"`
}

type GradeRequest struct {
	Score    int    `json:"score" validate:"gte=0"`
	Feedback string `json:"feedback" validate:"max=10000"`
}

// SubmissionReflector 提交写入后同步到进度
type SubmissionReflector interface {
	ReflectSubmission(ctx context.Context, sub *model.Submission) (*model.Progress, error)
}

type SubmissionService struct {
	Repo           *repository.SubmissionRepository
	AssessmentRepo *repository.AssessmentRepository
	Progress       SubmissionReflector
	Locker         keylock.Locker
	Bus            eventbus.Bus
}

func NewSubmissionService(
	repo *repository.SubmissionRepository,
	assessmentRepo *repository.AssessmentRepository,
	progress SubmissionReflector,
	locker keylock.Locker,
	bus eventbus.Bus,
) *SubmissionService {
	return &SubmissionService{
		Repo:           repo,
		AssessmentRepo: assessmentRepo,
		Progress:       progress,
		Locker:         locker,
		Bus:            bus,
	}
}

func submissionLockKey(studentID, assessmentID string) string {
	return "submission:" + studentID + ":" + assessmentID
}

// validateAnswers 写入前拒绝格式错误的作答：同一题重复作答、答案不是标量
func validateAnswers(answers []AnswerInput) error {
	if err := validate.Struct(SubmitRequest{Answers: answers}); err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}
	seen := make(map[int]bool, len(answers))
	for _, a := range answers {
		if seen[a.QuestionIndex] {
			return fmt.Errorf("%w: question %d answered more than once", util.ErrInvalidInput, a.QuestionIndex)
		}
		seen[a.QuestionIndex] = true
		if err := model.ValidateStudentAnswer(a.Answer); err != nil {
			return fmt.Errorf("%w: question %d: %v", util.ErrInvalidInput, a.QuestionIndex, err)
		}
	}
	return nil
}

func (s *SubmissionService) loadForWrite(studentID, assessmentID string, answers []AnswerInput) (*model.Assessment, error) {
	if err := requireIDs("studentId", studentID, "assessmentId", assessmentID); err != nil {
		return nil, err
	}
	if err := validateAnswers(answers); err != nil {
		return nil, err
	}
	a, err := s.AssessmentRepo.FindWithQuestions(assessmentID)
	if err != nil {
		return nil, err
	}
	if !a.IsPublished {
		return nil, util.ErrAssessmentNotPublished
	}
	return a, nil
}

// SaveDraft 每个 (学生, 测评) 只保留一份草稿，不评分、不占用次数、不触发进度
func (s *SubmissionService) SaveDraft(ctx context.Context, studentID, assessmentID string, answers []AnswerInput) (*model.Submission, error) {
	a, err := s.loadForWrite(studentID, assessmentID, answers)
	if err != nil {
		return nil, err
	}

	unlock, err := acquire(ctx, s.Locker, "submission", submissionLockKey(studentID, assessmentID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	used, err := s.Repo.CountNonDraft(studentID, assessmentID)
	if err != nil {
		return nil, err
	}
	if a.AttemptsExhausted(used) {
		return nil, util.ErrAttemptsExceeded
	}

	draft, err := s.Repo.FindDraft(studentID, assessmentID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = &model.Submission{
			StudentID:    studentID,
			AssessmentID: assessmentID,
			CourseID:     a.CourseID,
			Status:       model.SubmissionDraft,
		}
	}
	draft.Answers = make([]model.SubmissionAnswer, 0, len(answers))
	for _, in := range answers {
		draft.Answers = append(draft.Answers, model.SubmissionAnswer{
			QuestionIndex: in.QuestionIndex,
			Answer:        normalizeRaw(in.Answer),
		})
	}
	draft.TotalPoints = a.TotalPoints()

	if err := s.Repo.Save(draft); err != nil {
		return nil, err
	}
	monitoring.SubmissionCounter.WithLabelValues(string(model.SubmissionDraft)).Inc()
	return draft, nil
}

// Submit 正式提交：服务端分配提交序号并自动判分；写入是原子的，之后再同步进度
func (s *SubmissionService) Submit(ctx context.Context, studentID, assessmentID string, answers []AnswerInput) (sub *model.Submission, err error) {
	ctx, span := tracing.StartSpan(ctx, "submission.submit",
		attribute.String("studentId", studentID), attribute.String("assessmentId", assessmentID))
	defer func() { tracing.End(span, err) }()

	a, err := s.loadForWrite(studentID, assessmentID, answers)
	if err != nil {
		return nil, err
	}

	sub, err = s.finalize(ctx, a, studentID, answers)
	if err != nil {
		return nil, err
	}
	monitoring.SubmissionCounter.WithLabelValues(string(sub.Status)).Inc()
	logger.Log.Info("Assessment submitted",
		zap.String("submissionId", sub.ID),
		zap.String("studentId", studentID),
		zap.String("assessmentId", assessmentID),
		zap.Int("attempt", sub.Attempt()),
		zap.String("status", string(sub.Status)))

	s.afterWrite(context.WithoutCancel(ctx), sub, a)
	return sub, nil
}

func (s *SubmissionService) finalize(ctx context.Context, a *model.Assessment, studentID string, answers []AnswerInput) (*model.Submission, error) {
	unlock, err := acquire(ctx, s.Locker, "submission", submissionLockKey(studentID, a.ID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	used, err := s.Repo.CountNonDraft(studentID, a.ID)
	if err != nil {
		return nil, err
	}
	if a.AttemptsExhausted(used) {
		return nil, util.ErrAttemptsExceeded
	}

	graded := GradeSubmission(a, answers)

	draft, err := s.Repo.FindDraft(studentID, a.ID)
	if err != nil {
		return nil, err
	}
	sub := draft
	if sub == nil {
		sub = &model.Submission{StudentID: studentID, AssessmentID: a.ID}
	}

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		now := time.Now()
		sub.CourseID = a.CourseID
		sub.Answers = graded.Answers
		sub.TotalPoints = graded.TotalPoints
		sub.SubmittedAt = &now
		sub.IsLate = a.IsLate(now)
		if graded.NeedsManual {
			sub.Status = model.SubmissionSubmitted
			sub.Score = 0
			sub.Percentage = nil
			sub.GradedAt = nil
			sub.GradedBy = ""
		} else {
			sub.ApplyGrade(graded.Score, "", now)
		}

		err = s.Repo.Finalize(sub, a.Attempts)
		if errors.Is(err, util.ErrVersionConflict) {
			monitoring.VersionConflicts.WithLabelValues("submission").Inc()
			// 草稿已被并发转正，改为新建一条
			if draft != nil {
				draft = nil
				sub = &model.Submission{StudentID: studentID, AssessmentID: a.ID}
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		return sub, nil
	}
	return nil, util.ErrVersionConflict
}

// GradeManually 允许重新批改；分数必须在 [0, 总分] 内
func (s *SubmissionService) GradeManually(ctx context.Context, submissionID string, req GradeRequest, graderID string) (sub *model.Submission, err error) {
	ctx, span := tracing.StartSpan(ctx, "submission.grade", attribute.String("submissionId", submissionID))
	defer func() { tracing.End(span, err) }()

	if err := requireIDs("submissionId", submissionID, "graderId", graderID); err != nil {
		return nil, err
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidInput, err)
	}

	sub, err = s.Repo.FindByID(submissionID)
	if err != nil {
		return nil, err
	}
	unlock, err := acquire(ctx, s.Locker, "submission", submissionLockKey(sub.StudentID, sub.AssessmentID))
	if err != nil {
		return nil, err
	}
	sub, err = s.applyManualGrade(submissionID, req, graderID)
	unlock()
	if err != nil {
		return nil, err
	}

	monitoring.SubmissionCounter.WithLabelValues(string(sub.Status)).Inc()
	logger.Log.Info("Submission graded",
		zap.String("submissionId", sub.ID),
		zap.String("gradedBy", graderID),
		zap.Int("score", sub.Score))

	a, err := s.AssessmentRepo.FindByID(sub.AssessmentID)
	if err != nil {
		logger.Log.Warn("Graded submission without assessment", zap.String("submissionId", sub.ID), zap.Error(err))
		return sub, nil
	}
	s.afterWrite(context.WithoutCancel(ctx), sub, a)
	return sub, nil
}

func (s *SubmissionService) applyManualGrade(submissionID string, req GradeRequest, graderID string) (*model.Submission, error) {
	// 加锁后重读，拿到最新状态
	sub, err := s.Repo.FindByID(submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == model.SubmissionDraft {
		return nil, util.ErrSubmissionIsDraft
	}
	if req.Score > sub.TotalPoints {
		return nil, fmt.Errorf("%w: score %d exceeds total points %d", util.ErrInvalidInput, req.Score, sub.TotalPoints)
	}
	sub.Feedback = req.Feedback
	sub.ApplyGrade(req.Score, graderID, time.Now())
	if err := s.Repo.Save(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// afterWrite 发布评分事件并同步进度；这里的失败只记录，由对账任务补齐
func (s *SubmissionService) afterWrite(ctx context.Context, sub *model.Submission, a *model.Assessment) {
	if sub.Status == model.SubmissionGraded {
		ev := model.DomainEvent{
			Kind:       model.EventAssessmentGraded,
			StudentID:  sub.StudentID,
			EntityID:   a.ID,
			Title:      a.Title,
			CourseID:   a.CourseID,
			Score:      intPtr(sub.Score),
			Percentage: sub.Percentage,
			OccurredAt: time.Now(),
		}
		if err := s.Bus.Publish(ctx, ev); err != nil {
			logger.Log.Warn("Failed to publish event", zap.String("kind", string(ev.Kind)), zap.Error(err))
		}
	}
	if s.Progress == nil {
		return
	}
	if _, err := s.Progress.ReflectSubmission(ctx, sub); err != nil {
		logger.Log.Error("Failed to reflect submission in progress",
			zap.String("submissionId", sub.ID),
			zap.String("studentId", sub.StudentID),
			zap.Error(err))
	}
}

func (s *SubmissionService) Get(ctx context.Context, submissionID string) (*model.Submission, error) {
	if err := util.RequireID("submissionId", submissionID); err != nil {
		return nil, err
	}
	return s.Repo.FindByID(submissionID)
}

func (s *SubmissionService) List(ctx context.Context, studentID, assessmentID string) ([]model.Submission, error) {
	if err := requireIDs("studentId", studentID, "assessmentId", assessmentID); err != nil {
		return nil, err
	}
	return s.Repo.ListByStudentAssessment(studentID, assessmentID)
}

func intPtr(v int) *int {
	return &v
}

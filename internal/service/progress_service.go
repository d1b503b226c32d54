package service

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/keylock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxWriteRetries = 3

// Outcome 一次进度写入的结果，交给级联控制器判断是否需要推进报名状态
type Outcome struct {
	Progress    *model.Progress
	CourseTitle string
	Transitions []model.ModuleTransition
	// 本次写入使课程首次达到 100%
	CourseJustCompleted bool
	Created             bool
}

// Cascader 进度写入后的级联处理
type Cascader interface {
	Apply(ctx context.Context, o *Outcome) error
}

type ProgressService struct {
	Repo    *repository.ProgressRepository
	Catalog Catalog
	Locker  keylock.Locker
	Cascade Cascader
}

func NewProgressService(repo *repository.ProgressRepository, catalog Catalog, locker keylock.Locker, cascade Cascader) *ProgressService {
	return &ProgressService{Repo: repo, Catalog: catalog, Locker: locker, Cascade: cascade}
}

type mutation func(p *model.Progress, now time.Time) error

func progressLockKey(studentID, courseID string) string {
	return "progress:" + studentID + ":" + courseID
}

// acquire 等待按 key 的互斥锁并记录等待时长
func acquire(ctx context.Context, locker keylock.Locker, scope, key string) (func(), error) {
	start := time.Now()
	unlock, err := locker.Lock(ctx, key)
	monitoring.LockWait.WithLabelValues(scope).Observe(time.Since(start).Seconds())
	if errors.Is(err, keylock.ErrTimeout) {
		return nil, fmt.Errorf("%w: %s", util.ErrLockTimeout, key)
	}
	return unlock, err
}

// mutate 读-改-写：同一 (学生, 课程) 加锁串行，保存时再做版本比较，冲突重试
func (s *ProgressService) mutate(ctx context.Context, op, studentID, courseID string, create bool, fn mutation) (out *Outcome, err error) {
	ctx, span := tracing.StartSpan(ctx, "progress."+op,
		attribute.String("studentId", studentID), attribute.String("courseId", courseID))
	defer func() { tracing.End(span, err) }()

	outline, err := s.Catalog.Outline(ctx, courseID)
	if err != nil {
		return nil, err
	}

	unlock, err := acquire(ctx, s.Locker, "progress", progressLockKey(studentID, courseID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		now := time.Now()
		p, err := s.Repo.Find(studentID, courseID)
		created := false
		if errors.Is(err, util.ErrProgressNotFound) && create {
			p, created, err = model.NewProgress(studentID, outline, now), true, nil
		}
		if err != nil {
			return nil, err
		}

		p.SyncOutline(outline)
		if err := fn(p, now); err != nil {
			return nil, err
		}
		transitions := p.Recompute()
		monitoring.ProgressRecomputes.WithLabelValues(op).Inc()

		justCompleted := false
		if p.IsComplete() && p.CompletedAt == nil {
			p.CompletedAt = &now
			justCompleted = true
		}

		if created {
			err = s.Repo.Create(p)
		} else {
			err = s.Repo.SaveVersioned(p)
		}
		if errors.Is(err, util.ErrVersionConflict) {
			monitoring.VersionConflicts.WithLabelValues("progress").Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		return &Outcome{
			Progress:            p,
			CourseTitle:         outline.Title,
			Transitions:         transitions,
			CourseJustCompleted: justCompleted,
			Created:             created,
		}, nil
	}
	return nil, util.ErrVersionConflict
}

// cascade 级联失败只记录日志，不回滚已经保存的进度
func (s *ProgressService) cascade(ctx context.Context, o *Outcome) {
	if s.Cascade == nil {
		return
	}
	if err := s.Cascade.Apply(ctx, o); err != nil {
		logger.Log.Error("Completion cascade failed",
			zap.String("studentId", o.Progress.StudentID),
			zap.String("courseId", o.Progress.CourseID),
			zap.Error(err))
	}
}

func (s *ProgressService) run(ctx context.Context, op, studentID, courseID string, create bool, fn mutation) (*Outcome, error) {
	out, err := s.mutate(ctx, op, studentID, courseID, create, fn)
	if err != nil {
		return nil, err
	}
	s.cascade(context.WithoutCancel(ctx), out)
	return out, nil
}

// StartLesson 首次交互时懒创建进度
func (s *ProgressService) StartLesson(ctx context.Context, studentID, lessonID string) (*model.Progress, error) {
	if err := requireIDs("studentId", studentID, "lessonId", lessonID); err != nil {
		return nil, err
	}
	placement, err := s.Catalog.LocateLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "start_lesson", studentID, placement.CourseID, true, func(p *model.Progress, now time.Time) error {
		_, err := p.StartLesson(placement.ModuleID, lessonID, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Progress, nil
}

// CompleteLesson 没有进度记录时返回 ErrProgressNotFound，不会自动创建
func (s *ProgressService) CompleteLesson(ctx context.Context, studentID, lessonID string, timeSpent int) (*model.Progress, error) {
	if err := requireIDs("studentId", studentID, "lessonId", lessonID); err != nil {
		return nil, err
	}
	if timeSpent < 0 {
		return nil, fmt.Errorf("%w: timeSpent must not be negative", util.ErrInvalidInput)
	}
	placement, err := s.Catalog.LocateLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "complete_lesson", studentID, placement.CourseID, false, func(p *model.Progress, now time.Time) error {
		_, err := p.CompleteLesson(placement.ModuleID, lessonID, timeSpent, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Progress, nil
}

func (s *ProgressService) StartAssessment(ctx context.Context, studentID, assessmentID string) (*model.Progress, error) {
	if err := requireIDs("studentId", studentID, "assessmentId", assessmentID); err != nil {
		return nil, err
	}
	a, err := s.Catalog.LocateAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	if !a.IsPublished {
		return nil, util.ErrAssessmentNotPublished
	}
	out, err := s.run(ctx, "start_assessment", studentID, a.CourseID, true, func(p *model.Progress, now time.Time) error {
		_, err := p.StartAssessment(a.ModuleID, a.ID, a.PassingScore, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out.Progress, nil
}

// RecordAssessmentResult percentage 为 nil 表示该次提交待批改；要求测评已开始
func (s *ProgressService) RecordAssessmentResult(ctx context.Context, studentID, assessmentID string, attempt int, percentage *int) (*model.Progress, error) {
	if err := requireIDs("studentId", studentID, "assessmentId", assessmentID); err != nil {
		return nil, err
	}
	if attempt < 1 {
		return nil, fmt.Errorf("%w: attempt must be positive", util.ErrInvalidInput)
	}
	a, err := s.Catalog.LocateAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, "record_result", studentID, a.CourseID, false, func(p *model.Progress, now time.Time) error {
		return p.RecordAssessmentResult(a.ModuleID, a.ID, attempt, percentage, now)
	})
	if err != nil {
		return nil, err
	}
	return out.Progress, nil
}

// ReflectSubmission 把一次正式提交反映到进度：必要时开始测评并记录结果，一次写入完成
func (s *ProgressService) ReflectSubmission(ctx context.Context, sub *model.Submission) (*model.Progress, error) {
	if sub.Status == model.SubmissionDraft || sub.AttemptNumber == nil {
		return nil, fmt.Errorf("%w: draft submissions are not reflected in progress", util.ErrInvalidInput)
	}
	a, err := s.Catalog.LocateAssessment(ctx, sub.AssessmentID)
	if err != nil {
		return nil, err
	}
	var percentage *int
	if sub.Status == model.SubmissionGraded {
		percentage = sub.Percentage
	}
	out, err := s.run(ctx, "reflect_submission", sub.StudentID, a.CourseID, true, func(p *model.Progress, now time.Time) error {
		if _, err := p.StartAssessment(a.ModuleID, a.ID, a.PassingScore, now); err != nil {
			return err
		}
		return p.RecordAssessmentResult(a.ModuleID, a.ID, *sub.AttemptNumber, percentage, now)
	})
	if err != nil {
		return nil, err
	}
	return out.Progress, nil
}

// IsReflected 对账用：该提交是否已体现在进度中
func (s *ProgressService) IsReflected(ctx context.Context, sub *model.Submission) (bool, error) {
	a, err := s.Catalog.LocateAssessment(ctx, sub.AssessmentID)
	if err != nil {
		return false, err
	}
	p, err := s.Repo.Find(sub.StudentID, a.CourseID)
	if errors.Is(err, util.ErrProgressNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var percentage *int
	if sub.Status == model.SubmissionGraded {
		percentage = sub.Percentage
	}
	return p.HasResult(a.ModuleID, a.ID, sub.Attempt(), percentage), nil
}

func (s *ProgressService) GetCourseProgress(ctx context.Context, studentID, courseID string) (*model.Progress, error) {
	if err := requireIDs("studentId", studentID, "courseId", courseID); err != nil {
		return nil, err
	}
	return s.Repo.Find(studentID, courseID)
}

func (s *ProgressService) ListStudentProgress(ctx context.Context, studentID string) ([]model.Progress, error) {
	if err := util.RequireID("studentId", studentID); err != nil {
		return nil, err
	}
	return s.Repo.ListByStudent(studentID)
}

// requireIDs 按 (名称, 值) 成对校验
func requireIDs(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := util.RequireID(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

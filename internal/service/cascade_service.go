package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/eventbus"
	"learnhub_backend/pkg/keylock"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CascadeService 根据进度写入结果推进报名状态并发布完成事件。
// 课程条目 PENDING -> ACTIVE -> COMPLETED 不回退；ProgramCompleted 以报名的原状态为守卫只发一次
type CascadeService struct {
	EnrollmentRepo *repository.EnrollmentRepository
	Catalog        Catalog
	Locker         keylock.Locker
	Bus            eventbus.Bus
}

func NewCascadeService(enrollmentRepo *repository.EnrollmentRepository, catalog Catalog, locker keylock.Locker, bus eventbus.Bus) *CascadeService {
	return &CascadeService{EnrollmentRepo: enrollmentRepo, Catalog: catalog, Locker: locker, Bus: bus}
}

func enrollmentLockKey(studentID, programID string) string {
	return "enrollment:" + studentID + ":" + programID
}

func (s *CascadeService) Apply(ctx context.Context, o *Outcome) (err error) {
	p := o.Progress
	ctx, span := tracing.StartSpan(ctx, "cascade.apply",
		attribute.String("studentId", p.StudentID), attribute.String("courseId", p.CourseID))
	defer func() { tracing.End(span, err) }()

	for _, t := range o.Transitions {
		if !t.Completed {
			continue
		}
		s.publish(ctx, model.DomainEvent{
			Kind:      model.EventModuleCompleted,
			StudentID: p.StudentID,
			EntityID:  t.ModuleID,
			Title:     t.Title,
			CourseID:  p.CourseID,
			ProgramID: p.ProgramID,
		})
	}

	if p.ProgramID == "" {
		if o.CourseJustCompleted {
			s.publish(ctx, s.courseCompleted(o))
		}
		return nil
	}

	courseDone, programDone, err := s.advanceEnrollment(ctx, o)
	if err != nil {
		return err
	}
	if courseDone {
		s.publish(ctx, s.courseCompleted(o))
	}
	if programDone {
		ev := model.DomainEvent{
			Kind:      model.EventProgramCompleted,
			StudentID: p.StudentID,
			EntityID:  p.ProgramID,
			ProgramID: p.ProgramID,
		}
		if program, err := s.Catalog.Program(ctx, p.ProgramID); err == nil {
			ev.Title = program.Title
		}
		s.publish(ctx, ev)
	}
	return nil
}

func (s *CascadeService) courseCompleted(o *Outcome) model.DomainEvent {
	return model.DomainEvent{
		Kind:      model.EventCourseCompleted,
		StudentID: o.Progress.StudentID,
		EntityID:  o.Progress.CourseID,
		Title:     o.CourseTitle,
		CourseID:  o.Progress.CourseID,
		ProgramID: o.Progress.ProgramID,
	}
}

// advanceEnrollment 在报名锁内完成读-改-写，返回本次是否完成了课程、是否完成了项目
func (s *CascadeService) advanceEnrollment(ctx context.Context, o *Outcome) (courseDone, programDone bool, err error) {
	p := o.Progress
	unlock, err := acquire(ctx, s.Locker, "enrollment", enrollmentLockKey(p.StudentID, p.ProgramID))
	if err != nil {
		return false, false, err
	}
	defer unlock()

	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		now := time.Now()
		e, created, err := s.loadEnrollment(ctx, p.StudentID, p.ProgramID)
		if err != nil {
			return false, false, err
		}

		entry := e.EnsureEntry(p.CourseID)
		entry.Activate()
		entry.SyncCounts(p.CompletedLessons, p.TotalLessons)
		courseDone = p.IsComplete() && entry.Complete(now)
		programDone = e.MarkCompleted(now)

		if created {
			err = s.EnrollmentRepo.Create(e)
		} else {
			err = s.EnrollmentRepo.Save(e)
		}
		if errors.Is(err, util.ErrVersionConflict) {
			monitoring.VersionConflicts.WithLabelValues("enrollment").Inc()
			continue
		}
		if err != nil {
			return false, false, err
		}
		return courseDone, programDone, nil
	}
	return false, false, util.ErrVersionConflict
}

// loadEnrollment 懒创建：项目内每门课程一条 PENDING 条目
func (s *CascadeService) loadEnrollment(ctx context.Context, studentID, programID string) (*model.Enrollment, bool, error) {
	e, err := s.EnrollmentRepo.Find(studentID, programID)
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, util.ErrEnrollmentNotFound) {
		return nil, false, err
	}
	courseIDs, err := s.Catalog.ProgramCourses(ctx, programID)
	if err != nil {
		return nil, false, err
	}
	return model.NewEnrollment(studentID, programID, courseIDs), true, nil
}

func (s *CascadeService) GetEnrollment(ctx context.Context, studentID, programID string) (*model.Enrollment, error) {
	if err := requireIDs("studentId", studentID, "programId", programID); err != nil {
		return nil, err
	}
	return s.EnrollmentRepo.Find(studentID, programID)
}

// publish 事件发布失败不影响已经完成的写入
func (s *CascadeService) publish(ctx context.Context, ev model.DomainEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	if err := s.Bus.Publish(ctx, ev); err != nil {
		logger.Log.Warn("Failed to publish event",
			zap.String("kind", string(ev.Kind)),
			zap.String("studentId", ev.StudentID),
			zap.String("entityId", ev.EntityID),
			zap.Error(err))
	}
}

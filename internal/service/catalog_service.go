package service

import (
	"context"
	"encoding/json"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Catalog 引擎需要的目录只读能力，只用于懒创建时的分母和归属定位
type Catalog interface {
	LessonCount(ctx context.Context, courseID string) (int, error)
	ModuleCount(ctx context.Context, courseID string) (int, error)
	AssessmentCount(ctx context.Context, courseID string) (int, error)
	Outline(ctx context.Context, courseID string) (*model.CourseOutline, error)
	LocateLesson(ctx context.Context, lessonID string) (model.Placement, error)
	LocateAssessment(ctx context.Context, assessmentID string) (*model.Assessment, error)
	ProgramCourses(ctx context.Context, programID string) ([]string, error)
	Program(ctx context.Context, programID string) (*model.Program, error)
}

const outlineCacheTTL = time.Minute

type CatalogService struct {
	Repo           *repository.CatalogRepository
	AssessmentRepo *repository.AssessmentRepository
	Redis          *redis.Client

	group singleflight.Group
}

func NewCatalogService(repo *repository.CatalogRepository, assessmentRepo *repository.AssessmentRepository, rdb *redis.Client) *CatalogService {
	return &CatalogService{Repo: repo, AssessmentRepo: assessmentRepo, Redis: rdb}
}

func (s *CatalogService) LessonCount(ctx context.Context, courseID string) (int, error) {
	outline, err := s.Outline(ctx, courseID)
	if err != nil {
		return 0, err
	}
	return outline.LessonCount(), nil
}

func (s *CatalogService) ModuleCount(ctx context.Context, courseID string) (int, error) {
	outline, err := s.Outline(ctx, courseID)
	if err != nil {
		return 0, err
	}
	return len(outline.Modules), nil
}

func (s *CatalogService) AssessmentCount(ctx context.Context, courseID string) (int, error) {
	outline, err := s.Outline(ctx, courseID)
	if err != nil {
		return 0, err
	}
	return outline.AssessmentCount(), nil
}

// Outline 课程结构：先查 redis 缓存，并发请求合并为一次加载
func (s *CatalogService) Outline(ctx context.Context, courseID string) (*model.CourseOutline, error) {
	if outline := s.cachedOutline(ctx, courseID); outline != nil {
		return outline, nil
	}

	v, err, _ := s.group.Do(courseID, func() (interface{}, error) {
		// 合并后的加载被多个调用方等待，不随第一个调用方取消
		loadCtx := context.WithoutCancel(ctx)
		outline, err := s.loadOutline(loadCtx, courseID)
		if err != nil {
			return nil, err
		}
		s.cacheOutline(loadCtx, outline)
		return outline, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight 的结果被多个调用方共享，返回副本
	shared := v.(*model.CourseOutline)
	outline := *shared
	outline.Modules = append([]model.ModuleOutline(nil), shared.Modules...)
	return &outline, nil
}

func (s *CatalogService) loadOutline(ctx context.Context, courseID string) (*model.CourseOutline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	course, err := s.Repo.FindCourse(courseID)
	if err != nil {
		return nil, err
	}

	var (
		modules     []model.CourseModule
		lessons     map[string]int
		assessments map[string]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		modules, err = s.Repo.ListModules(courseID)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		lessons, err = s.Repo.LessonCountsByModule(courseID)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		assessments, err = s.Repo.AssessmentCountsByModule(courseID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outline := &model.CourseOutline{
		CourseID: course.ID,
		Title:    course.Title,
		Modules:  make([]model.ModuleOutline, 0, len(modules)),
	}
	if course.ProgramID != nil {
		outline.ProgramID = *course.ProgramID
	}
	for _, m := range modules {
		outline.Modules = append(outline.Modules, model.ModuleOutline{
			ModuleID:        m.ID,
			Title:           m.Title,
			LessonCount:     lessons[m.ID],
			AssessmentCount: assessments[m.ID],
		})
	}
	return outline, nil
}

func outlineKey(courseID string) string {
	return "learnhub:outline:" + courseID
}

func (s *CatalogService) cachedOutline(ctx context.Context, courseID string) *model.CourseOutline {
	if s.Redis == nil {
		return nil
	}
	val, err := s.Redis.Get(ctx, outlineKey(courseID)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Log.Warn("Outline cache read failed", zap.String("courseId", courseID), zap.Error(err))
		}
		return nil
	}
	var outline model.CourseOutline
	if err := json.Unmarshal([]byte(val), &outline); err != nil {
		return nil
	}
	return &outline
}

func (s *CatalogService) cacheOutline(ctx context.Context, outline *model.CourseOutline) {
	if s.Redis == nil {
		return
	}
	data, err := json.Marshal(outline)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, outlineKey(outline.CourseID), data, outlineCacheTTL).Err(); err != nil {
		logger.Log.Warn("Outline cache write failed", zap.String("courseId", outline.CourseID), zap.Error(err))
	}
}

func (s *CatalogService) LocateLesson(ctx context.Context, lessonID string) (model.Placement, error) {
	lesson, err := s.Repo.FindLesson(lessonID)
	if err != nil {
		return model.Placement{}, err
	}
	return model.Placement{CourseID: lesson.CourseID, ModuleID: lesson.ModuleID, Title: lesson.Title}, nil
}

func (s *CatalogService) LocateAssessment(ctx context.Context, assessmentID string) (*model.Assessment, error) {
	return s.AssessmentRepo.FindByID(assessmentID)
}

func (s *CatalogService) ProgramCourses(ctx context.Context, programID string) ([]string, error) {
	return s.Repo.ProgramCourseIDs(programID)
}

func (s *CatalogService) Program(ctx context.Context, programID string) (*model.Program, error) {
	return s.Repo.FindProgram(programID)
}

package repository

import (
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
)

// CatalogRepository 目录表只读访问
type CatalogRepository struct {
	DB *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{DB: db}
}

type moduleCount struct {
	ModuleID string
	Total    int
}

func (r *CatalogRepository) FindProgram(id string) (*model.Program, error) {
	var p model.Program
	err := r.DB.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrProgramNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepository) FindCourse(id string) (*model.Course, error) {
	var c model.Course
	err := r.DB.First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCourseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CatalogRepository) FindLesson(id string) (*model.Lesson, error) {
	var l model.Lesson
	err := r.DB.First(&l, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrLessonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *CatalogRepository) ListModules(courseID string) ([]model.CourseModule, error) {
	var modules []model.CourseModule
	err := r.DB.Where("course_id = ?", courseID).
		Order("`order` asc, created_at asc").
		Find(&modules).Error
	return modules, err
}

// LessonCountsByModule moduleId -> 课时数
func (r *CatalogRepository) LessonCountsByModule(courseID string) (map[string]int, error) {
	var rows []moduleCount
	err := r.DB.Model(&model.Lesson{}).
		Select("module_id, COUNT(*) as total").
		Where("course_id = ?", courseID).
		Group("module_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// AssessmentCountsByModule moduleId -> 已发布测评数
func (r *CatalogRepository) AssessmentCountsByModule(courseID string) (map[string]int, error) {
	var rows []moduleCount
	err := r.DB.Model(&model.Assessment{}).
		Select("module_id, COUNT(*) as total").
		Where("course_id = ? AND is_published = ?", courseID, true).
		Group("module_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toCountMap(rows), nil
}

// ProgramCourseIDs 项目内课程按顺序排列
func (r *CatalogRepository) ProgramCourseIDs(programID string) ([]string, error) {
	var ids []string
	err := r.DB.Model(&model.Course{}).
		Where("program_id = ?", programID).
		Order("`order` asc, created_at asc").
		Pluck("id", &ids).Error
	return ids, err
}

func toCountMap(rows []moduleCount) map[string]int {
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.ModuleID] = row.Total
	}
	return out
}

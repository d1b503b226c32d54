package repository

import (
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

func (r *ProgressRepository) Find(studentID, courseID string) (*model.Progress, error) {
	var p model.Progress
	err := r.DB.Where("student_id = ? AND course_id = ?", studentID, courseID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrProgressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProgressRepository) ListByStudent(studentID string) ([]model.Progress, error) {
	var list []model.Progress
	err := r.DB.Where("student_id = ?", studentID).
		Order("last_accessed_at desc").
		Find(&list).Error
	return list, err
}

// Create 懒创建；并发创建撞唯一索引时返回 ErrVersionConflict 由调用方重读
func (r *ProgressRepository) Create(p *model.Progress) error {
	err := r.DB.Create(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		p.ID = ""
		return util.ErrVersionConflict
	}
	return err
}

// SaveVersioned 比较并交换：仅当库中版本仍等于 p.Version 时写入，成功后版本号加一
func (r *ProgressRepository) SaveVersioned(p *model.Progress) error {
	now := time.Now()
	res := r.DB.Model(&model.Progress{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"program_id":            p.ProgramID,
			"modules":               p.Modules,
			"overall_progress":      p.OverallProgress,
			"completed_lessons":     p.CompletedLessons,
			"total_lessons":         p.TotalLessons,
			"completed_assessments": p.CompletedAssessments,
			"total_assessments":     p.TotalAssessments,
			"average_score":         p.AverageScore,
			"last_accessed_at":      p.LastAccessedAt,
			"completed_at":          p.CompletedAt,
			"version":               p.Version + 1,
			"updated_at":            now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrVersionConflict
	}
	p.Version++
	p.UpdatedAt = now
	return nil
}

// ListCompletedInProgramSince 对账用：窗口内更新过、已完成且属于项目的课程进度
func (r *ProgressRepository) ListCompletedInProgramSince(since time.Time, limit int) ([]model.Progress, error) {
	var list []model.Progress
	err := r.DB.Where("completed_at IS NOT NULL AND program_id <> '' AND updated_at >= ?", since).
		Order("updated_at asc").
		Limit(limit).
		Find(&list).Error
	return list, err
}

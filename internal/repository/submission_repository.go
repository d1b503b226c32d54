package repository

import (
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"time"

	"gorm.io/gorm"
)

type SubmissionRepository struct {
	DB *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) *SubmissionRepository {
	return &SubmissionRepository{DB: db}
}

// CountNonDraft 已占用的正式提交次数
func (r *SubmissionRepository) CountNonDraft(studentID, assessmentID string) (int64, error) {
	var count int64
	err := r.DB.Model(&model.Submission{}).
		Where("student_id = ? AND assessment_id = ? AND status <> ?", studentID, assessmentID, model.SubmissionDraft).
		Count(&count).Error
	return count, err
}

// FindDraft 没有草稿时返回 nil, nil
func (r *SubmissionRepository) FindDraft(studentID, assessmentID string) (*model.Submission, error) {
	var sub model.Submission
	err := r.DB.Where("student_id = ? AND assessment_id = ? AND status = ?", studentID, assessmentID, model.SubmissionDraft).
		Order("updated_at desc").
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) FindByID(id string) (*model.Submission, error) {
	var sub model.Submission
	err := r.DB.First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *SubmissionRepository) Save(sub *model.Submission) error {
	return r.DB.Save(sub).Error
}

// Finalize 在一个事务内重新计数并写入正式提交：草稿原地转正，否则新建。
// 序号冲突（并发写入）时返回 ErrVersionConflict，记录不会半写入
func (r *SubmissionRepository) Finalize(sub *model.Submission, maxAttempts int) error {
	isNew := sub.ID == ""
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var used int64
		if err := tx.Model(&model.Submission{}).
			Where("student_id = ? AND assessment_id = ? AND status <> ?", sub.StudentID, sub.AssessmentID, model.SubmissionDraft).
			Count(&used).Error; err != nil {
			return err
		}
		if maxAttempts > 0 && used >= int64(maxAttempts) {
			return util.ErrAttemptsExceeded
		}
		attempt := int(used) + 1
		sub.AttemptNumber = &attempt
		if sub.ID == "" {
			return tx.Create(sub).Error
		}
		var drafts int64
		if err := tx.Model(&model.Submission{}).
			Where("id = ? AND status = ?", sub.ID, model.SubmissionDraft).
			Count(&drafts).Error; err != nil {
			return err
		}
		if drafts == 0 {
			return util.ErrVersionConflict
		}
		return tx.Save(sub).Error
	})
	if err != nil {
		sub.AttemptNumber = nil
		if isNew {
			sub.ID = ""
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return util.ErrVersionConflict
	}
	return err
}

func (r *SubmissionRepository) ListByStudentAssessment(studentID, assessmentID string) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Where("student_id = ? AND assessment_id = ?", studentID, assessmentID).
		Order("attempt_number is null, attempt_number asc").
		Find(&subs).Error
	return subs, err
}

// ListFinalizedSince 对账用：时间窗口内更新过的正式提交
func (r *SubmissionRepository) ListFinalizedSince(since time.Time, limit int) ([]model.Submission, error) {
	var subs []model.Submission
	err := r.DB.Where("status <> ? AND updated_at >= ?", model.SubmissionDraft, since).
		Order("updated_at asc").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

package repository

import (
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepository struct {
	DB *gorm.DB
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

func (r *EnrollmentRepository) Find(studentID, programID string) (*model.Enrollment, error) {
	var e model.Enrollment
	err := r.DB.Preload("Courses", func(db *gorm.DB) *gorm.DB {
		return db.Order("position asc")
	}).Where("student_id = ? AND program_id = ?", studentID, programID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create 报名记录与课程条目一起写入
func (r *EnrollmentRepository) Create(e *model.Enrollment) error {
	err := r.DB.Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		e.ID = ""
		for i := range e.Courses {
			e.Courses[i].ID = ""
			e.Courses[i].EnrollmentID = ""
		}
		return util.ErrVersionConflict
	}
	return err
}

// Save 在一个事务内保存报名状态及所有课程条目
func (r *EnrollmentRepository) Save(e *model.Enrollment) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
			return err
		}
		for i := range e.Courses {
			e.Courses[i].EnrollmentID = e.ID
			if err := tx.Save(&e.Courses[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCompletedWithoutCertificate 对账用：已完成但没有有效证书的报名
func (r *EnrollmentRepository) ListCompletedWithoutCertificate(limit int) ([]model.Enrollment, error) {
	var list []model.Enrollment
	err := r.DB.Where("status = ?", model.EnrollmentCompleted).
		Where("NOT EXISTS (?)", r.DB.Model(&model.Certificate{}).
			Select("1").
			Where("certificates.student_id = enrollments.student_id AND certificates.program_id = enrollments.program_id AND certificates.revoked = ? AND certificates.deleted_at IS NULL", false)).
		Limit(limit).
		Find(&list).Error
	return list, err
}

package repository

import (
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	DB *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{DB: db}
}

func (r *CertificateRepository) FindActive(studentID, programID string) (*model.Certificate, error) {
	var c model.Certificate
	err := r.DB.Where("active_key = ?", model.CertificateKey(studentID, programID)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CertificateRepository) FindByID(id string) (*model.Certificate, error) {
	var c model.Certificate
	err := r.DB.First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Create 唯一索引 active_key 保证同一 (学生, 项目) 只有一张有效证书；冲突返回 ErrVersionConflict
func (r *CertificateRepository) Create(c *model.Certificate) error {
	err := r.DB.Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		c.ID = ""
		return util.ErrVersionConflict
	}
	return err
}

func (r *CertificateRepository) Save(c *model.Certificate) error {
	return r.DB.Save(c).Error
}

func (r *CertificateRepository) CountActive(studentID, programID string) (int64, error) {
	var n int64
	err := r.DB.Model(&model.Certificate{}).
		Where("student_id = ? AND program_id = ? AND revoked = ?", studentID, programID, false).
		Count(&n).Error
	return n, err
}

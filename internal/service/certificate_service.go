package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"learnhub_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CertificateIssuer 幂等签发：重复签发返回已有的有效证书
type CertificateIssuer interface {
	Issue(ctx context.Context, studentID, programID string) (*model.Certificate, error)
}

type CertificateService struct {
	Repo           *repository.CertificateRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Archive        CertificateArchive
}

func NewCertificateService(repo *repository.CertificateRepository, enrollmentRepo *repository.EnrollmentRepository, archive CertificateArchive) *CertificateService {
	return &CertificateService{Repo: repo, EnrollmentRepo: enrollmentRepo, Archive: archive}
}

func (s *CertificateService) Issue(ctx context.Context, studentID, programID string) (cert *model.Certificate, err error) {
	ctx, span := tracing.StartSpan(ctx, "certificate.issue",
		attribute.String("studentId", studentID), attribute.String("programId", programID))
	defer func() { tracing.End(span, err) }()

	if err := util.RequireID("studentId", studentID); err != nil {
		return nil, err
	}
	if err := util.RequireID("programId", programID); err != nil {
		return nil, err
	}

	existing, err := s.Repo.FindActive(studentID, programID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, util.ErrCertificateNotFound) {
		return nil, err
	}

	enrollment, err := s.EnrollmentRepo.Find(studentID, programID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status != model.EnrollmentCompleted {
		return nil, util.ErrEnrollmentNotCompleted
	}

	cert = model.NewCertificate(studentID, programID, time.Now())
	if err := s.Repo.Create(cert); err != nil {
		if errors.Is(err, util.ErrVersionConflict) {
			// 并发签发：唯一索引保证只有一张，返回胜出者
			return s.Repo.FindActive(studentID, programID)
		}
		return nil, err
	}
	monitoring.CertificatesIssued.Inc()
	logger.Log.Info("Certificate issued",
		zap.String("certificateId", cert.ID),
		zap.String("studentId", studentID),
		zap.String("programId", programID))

	s.archive(ctx, cert)
	return cert, nil
}

func (s *CertificateService) archive(ctx context.Context, cert *model.Certificate) {
	if s.Archive == nil {
		return
	}
	name, err := s.Archive.Store(ctx, cert)
	if err != nil {
		logger.Log.Warn("Certificate archive failed", zap.String("certificateId", cert.ID), zap.Error(err))
		return
	}
	cert.ArchiveObject = name
	if err := s.Repo.Save(cert); err != nil {
		logger.Log.Warn("Failed to record certificate archive", zap.String("certificateId", cert.ID), zap.Error(err))
	}
}

// Revoke 吊销后同一 (学生, 项目) 可以重新签发
func (s *CertificateService) Revoke(ctx context.Context, certificateID string) (*model.Certificate, error) {
	if err := util.RequireID("certificateId", certificateID); err != nil {
		return nil, err
	}
	cert, err := s.Repo.FindByID(certificateID)
	if err != nil {
		return nil, err
	}
	if !cert.Revoke(time.Now()) {
		return cert, nil
	}
	if err := s.Repo.Save(cert); err != nil {
		return nil, err
	}
	logger.Log.Info("Certificate revoked", zap.String("certificateId", cert.ID))
	return cert, nil
}

func (s *CertificateService) GetActive(ctx context.Context, studentID, programID string) (*model.Certificate, error) {
	if err := util.RequireID("programId", programID); err != nil {
		return nil, err
	}
	return s.Repo.FindActive(studentID, programID)
}

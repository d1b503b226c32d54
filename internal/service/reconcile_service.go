package service

import (
	"context"
	"learnhub_backend/internal/repository"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ReconcileReport 一次对账的统计
type ReconcileReport struct {
	SubmissionsScanned   int `json:"submissionsScanned" yaml:"submissionsScanned"`
	SubmissionsReflected int `json:"submissionsReflected" yaml:"submissionsReflected"`
	CoursesCascaded      int `json:"coursesCascaded" yaml:"coursesCascaded"`
	CertificatesIssued   int `json:"certificatesIssued" yaml:"certificatesIssued"`
	Failures             int `json:"failures" yaml:"failures"`
}

// ReconcileService 修复提交已写入但进度/报名/证书未跟上的情况，所有步骤都是幂等的
type ReconcileService struct {
	SubmissionRepo *repository.SubmissionRepository
	ProgressRepo   *repository.ProgressRepository
	EnrollmentRepo *repository.EnrollmentRepository
	Progress       *ProgressService
	Cascade        Cascader
	Issuer         CertificateIssuer
	BatchSize      int
}

func NewReconcileService(
	submissionRepo *repository.SubmissionRepository,
	progressRepo *repository.ProgressRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	progress *ProgressService,
	cascade Cascader,
	issuer CertificateIssuer,
) *ReconcileService {
	return &ReconcileService{
		SubmissionRepo: submissionRepo,
		ProgressRepo:   progressRepo,
		EnrollmentRepo: enrollmentRepo,
		Progress:       progress,
		Cascade:        cascade,
		Issuer:         issuer,
		BatchSize:      500,
	}
}

func (s *ReconcileService) Run(ctx context.Context, since time.Time) (ReconcileReport, error) {
	var report ReconcileReport

	subs, err := s.SubmissionRepo.ListFinalizedSince(since, s.BatchSize)
	if err != nil {
		return report, err
	}
	for i := range subs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		sub := &subs[i]
		report.SubmissionsScanned++
		ok, err := s.Progress.IsReflected(ctx, sub)
		if err != nil {
			report.Failures++
			logger.Log.Warn("Reconcile check failed", zap.String("submissionId", sub.ID), zap.Error(err))
			continue
		}
		if ok {
			continue
		}
		if _, err := s.Progress.ReflectSubmission(ctx, sub); err != nil {
			report.Failures++
			logger.Log.Warn("Reconcile reflect failed", zap.String("submissionId", sub.ID), zap.Error(err))
			continue
		}
		report.SubmissionsReflected++
		monitoring.ReconcileRepairs.WithLabelValues("submission").Inc()
	}

	completed, err := s.ProgressRepo.ListCompletedInProgramSince(since, s.BatchSize)
	if err != nil {
		return report, err
	}
	for i := range completed {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		p := &completed[i]
		if err := s.Cascade.Apply(ctx, &Outcome{Progress: p}); err != nil {
			report.Failures++
			logger.Log.Warn("Reconcile cascade failed", zap.String("progressId", p.ID), zap.Error(err))
			continue
		}
		report.CoursesCascaded++
	}

	enrollments, err := s.EnrollmentRepo.ListCompletedWithoutCertificate(s.BatchSize)
	if err != nil {
		return report, err
	}
	for _, e := range enrollments {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if _, err := s.Issuer.Issue(ctx, e.StudentID, e.ProgramID); err != nil {
			report.Failures++
			logger.Log.Warn("Reconcile certificate failed",
				zap.String("studentId", e.StudentID), zap.String("programId", e.ProgramID), zap.Error(err))
			continue
		}
		report.CertificatesIssued++
		monitoring.ReconcileRepairs.WithLabelValues("certificate").Inc()
	}

	return report, nil
}

// Schedule 按 cron 表达式定期对账最近 window 内的数据；上一次未结束时跳过
func (s *ReconcileService) Schedule(spec string, window time.Duration) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		report, err := s.Run(ctx, time.Now().Add(-window))
		if err != nil {
			logger.Log.Error("Reconcile run failed", zap.Error(err))
			return
		}
		logger.Log.Info("Reconcile run finished",
			zap.Int("scanned", report.SubmissionsScanned),
			zap.Int("reflected", report.SubmissionsReflected),
			zap.Int("cascaded", report.CoursesCascaded),
			zap.Int("certificates", report.CertificatesIssued),
			zap.Int("failures", report.Failures))
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// CertificateArchive 证书签发后的清单归档，渲染成文档不在引擎范围内
type CertificateArchive interface {
	Store(ctx context.Context, cert *model.Certificate) (string, error)
}

// CertificateManifest 归档内容
type CertificateManifest struct {
	CertificateID string    `json:"certificateId"`
	StudentID     string    `json:"studentId"`
	ProgramID     string    `json:"programId"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// MinioCertificateArchive MinIO存储实现
type MinioCertificateArchive struct {
	Config *config.StorageConfig
	Client *minio.Client
}

func NewMinioCertificateArchive(cfg *config.StorageConfig) (*MinioCertificateArchive, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &MinioCertificateArchive{Config: cfg, Client: client}, nil
}

// NewCertificateArchive 按存储类型创建归档，未配置时返回 nil
func NewCertificateArchive(cfg *config.StorageConfig) (CertificateArchive, error) {
	if cfg.Type != util.StorageMinio {
		return nil, nil
	}
	return NewMinioCertificateArchive(cfg)
}

func certificateObjectName(cert *model.Certificate) string {
	return fmt.Sprintf("certificates/%s/%s/%s.json", cert.ProgramID, cert.StudentID, cert.ID)
}

func (p *MinioCertificateArchive) Store(ctx context.Context, cert *model.Certificate) (string, error) {
	body, err := json.Marshal(CertificateManifest{
		CertificateID: cert.ID,
		StudentID:     cert.StudentID,
		ProgramID:     cert.ProgramID,
		IssuedAt:      cert.IssuedAt,
	})
	if err != nil {
		return "", err
	}
	name := certificateObjectName(cert)
	_, err = p.Client.PutObject(ctx, p.Config.MinioBucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

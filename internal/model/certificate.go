package model

import "time"

// Certificate 每个 (学生, 项目) 至多一张有效证书，由 ActiveKey 唯一索引保证；吊销后 ActiveKey 置空
type Certificate struct {
	UUIDBase
	StudentID     string     `gorm:"type:varchar(36);not null;index" json:"studentId"`
	ProgramID     string     `gorm:"type:varchar(36);not null;index" json:"programId"`
	ActiveKey     *string    `gorm:"type:varchar(80);uniqueIndex" json:"-"`
	IssuedAt      time.Time  `json:"issuedAt"`
	Revoked       bool       `gorm:"default:false" json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	ArchiveObject string     `gorm:"size:255" json:"archiveObject,omitempty"`
}

func (Certificate) TableName() string {
	return "certificates"
}

func CertificateKey(studentID, programID string) string {
	return studentID + ":" + programID
}

func NewCertificate(studentID, programID string, now time.Time) *Certificate {
	key := CertificateKey(studentID, programID)
	return &Certificate{
		StudentID: studentID,
		ProgramID: programID,
		ActiveKey: &key,
		IssuedAt:  now,
	}
}

func (c *Certificate) Revoke(now time.Time) bool {
	if c.Revoked {
		return false
	}
	c.Revoked = true
	c.RevokedAt = &now
	c.ActiveKey = nil
	return true
}

package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "DRAFT"
	SubmissionSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionGraded    SubmissionStatus = "GRADED"
)

// SubmissionAnswer 每题一条作答；IsCorrect 为 nil 表示需人工批改
type SubmissionAnswer struct {
	QuestionIndex int             `json:"questionIndex"`
	Answer        json.RawMessage `json:"answer"`
	IsCorrect     *bool           `json:"isCorrect,omitempty"`
	PointsEarned  int             `json:"pointsEarned"`
}

// Submission 一次测评作答。草稿的 AttemptNumber 为 NULL，不占用次数
type Submission struct {
	UUIDBase
	StudentID     string                                `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_attempt,priority:1" json:"studentId"`
	AssessmentID  string                                `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_attempt,priority:2" json:"assessmentId"`
	AttemptNumber *int                                  `gorm:"uniqueIndex:idx_submission_attempt,priority:3" json:"attemptNumber"`
	CourseID      string                                `gorm:"index;type:varchar(36)" json:"courseId"`
	Answers       datatypes.JSONSlice[SubmissionAnswer] `json:"answers"`
	Score         int                                   `gorm:"default:0" json:"score"`
	Percentage    *int                                  `json:"percentage"`
	TotalPoints   int                                   `gorm:"default:0" json:"totalPoints"`
	Status        SubmissionStatus                      `gorm:"size:20;index;not null" json:"status"`
	IsLate        bool                                  `gorm:"default:false" json:"isLate"`
	Feedback      string                                `gorm:"type:text" json:"feedback,omitempty"`
	SubmittedAt   *time.Time                            `json:"submittedAt,omitempty"`
	GradedAt      *time.Time                            `json:"gradedAt,omitempty"`
	GradedBy      string                                `gorm:"type:varchar(36)" json:"gradedBy,omitempty"`
}

func (Submission) TableName() string {
	return "submissions"
}

func (s *Submission) Attempt() int {
	if s.AttemptNumber == nil {
		return 0
	}
	return *s.AttemptNumber
}

// ApplyGrade 以给定得分完成评分，百分比始终由服务端计算
func (s *Submission) ApplyGrade(score int, gradedBy string, at time.Time) {
	pct := Percent(score, s.TotalPoints)
	s.Score = score
	s.Percentage = &pct
	s.Status = SubmissionGraded
	s.GradedAt = &at
	s.GradedBy = gradedBy
}

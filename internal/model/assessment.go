package model

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortAnswer    QuestionType = "short_answer"
	Essay          QuestionType = "essay"
	Coding         QuestionType = "coding"
)

// AutoGradable 只有客观题可以自动判分
func (t QuestionType) AutoGradable() bool {
	return t == MultipleChoice || t == TrueFalse
}

type Assessment struct {
	UUIDBase
	CourseID     string               `gorm:"index;type:varchar(36);not null" json:"courseId"`
	ModuleID     string               `gorm:"index;type:varchar(36);not null" json:"moduleId"`
	Title        string               `gorm:"size:255;not null" json:"title"`
	PassingScore int                  `gorm:"default:0" json:"passingScore"` // 百分比
	Attempts     int                  `gorm:"default:0" json:"attempts"`     // <=0 表示不限次数
	EndDate      *time.Time           `json:"endDate,omitempty"`
	IsPublished  bool                 `gorm:"default:false" json:"isPublished"`
	Questions    []AssessmentQuestion `gorm:"foreignKey:AssessmentID" json:"questions,omitempty"`
}

func (Assessment) TableName() string {
	return "assessments"
}

func (a *Assessment) TotalPoints() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

// Question 按提交答案中的下标取题，越界返回 nil
func (a *Assessment) Question(index int) *AssessmentQuestion {
	if index < 0 || index >= len(a.Questions) {
		return nil
	}
	return &a.Questions[index]
}

// AttemptsExhausted 已使用的正式提交次数是否达到上限
func (a *Assessment) AttemptsExhausted(used int64) bool {
	return a.Attempts > 0 && used >= int64(a.Attempts)
}

func (a *Assessment) IsLate(at time.Time) bool {
	return a.EndDate != nil && at.After(*a.EndDate)
}

type AssessmentQuestion struct {
	UUIDBase
	AssessmentID  string                      `gorm:"index;type:varchar(36);not null" json:"assessmentId"`
	Type          QuestionType                `gorm:"size:50;not null" json:"type"`
	Content       string                      `gorm:"type:text" json:"content"`
	Points        int                         `gorm:"default:0" json:"points"`
	Options       datatypes.JSONSlice[string] `json:"options,omitempty"`
	CorrectAnswer datatypes.JSON              `gorm:"type:text" json:"correctAnswer,omitempty"` // 下标 / 文本 / 文本集合
	Order         int                         `gorm:"default:0" json:"order"`
}

func (AssessmentQuestion) TableName() string {
	return "assessment_questions"
}

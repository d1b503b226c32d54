package model

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
)

type CourseEntryStatus string

const (
	CoursePending   CourseEntryStatus = "PENDING"
	CourseActive    CourseEntryStatus = "ACTIVE"
	CourseCompleted CourseEntryStatus = "COMPLETED"
)

// Enrollment 每个 (学生, 项目) 一条
type Enrollment struct {
	UUIDBase
	StudentID      string                `gorm:"type:varchar(36);not null;uniqueIndex:idx_enrollment_student_program,priority:1" json:"studentId"`
	ProgramID      string                `gorm:"type:varchar(36);not null;uniqueIndex:idx_enrollment_student_program,priority:2" json:"programId"`
	Status         EnrollmentStatus      `gorm:"size:20;not null;index" json:"status"`
	CompletionDate *time.Time            `json:"completionDate,omitempty"`
	Courses        []CourseProgressEntry `gorm:"foreignKey:EnrollmentID" json:"courses"`
}

func (Enrollment) TableName() string {
	return "enrollments"
}

type CourseProgressEntry struct {
	UUIDBase
	EnrollmentID     string            `gorm:"type:varchar(36);not null;index" json:"enrollmentId"`
	CourseID         string            `gorm:"type:varchar(36);not null;index" json:"courseId"`
	Position         int               `gorm:"default:0" json:"position"`
	Status           CourseEntryStatus `gorm:"size:20;not null" json:"status"`
	LessonsCompleted int               `gorm:"default:0" json:"lessonsCompleted"`
	TotalLessons     int               `gorm:"default:0" json:"totalLessons"`
	CompletionDate   *time.Time        `json:"completionDate,omitempty"`
}

func (CourseProgressEntry) TableName() string {
	return "course_progress_entries"
}

// NewEnrollment 懒创建，项目内每门课程一条 PENDING 记录
func NewEnrollment(studentID, programID string, courseIDs []string) *Enrollment {
	e := &Enrollment{
		StudentID: studentID,
		ProgramID: programID,
		Status:    EnrollmentActive,
	}
	for i, id := range courseIDs {
		e.Courses = append(e.Courses, CourseProgressEntry{
			CourseID: id,
			Position: i,
			Status:   CoursePending,
		})
	}
	return e
}

func (e *Enrollment) Entry(courseID string) *CourseProgressEntry {
	for i := range e.Courses {
		if e.Courses[i].CourseID == courseID {
			return &e.Courses[i]
		}
	}
	return nil
}

// EnsureEntry 项目中后加入的课程补一条 PENDING 记录
func (e *Enrollment) EnsureEntry(courseID string) *CourseProgressEntry {
	if entry := e.Entry(courseID); entry != nil {
		return entry
	}
	e.Courses = append(e.Courses, CourseProgressEntry{
		EnrollmentID: e.ID,
		CourseID:     courseID,
		Position:     len(e.Courses),
		Status:       CoursePending,
	})
	return &e.Courses[len(e.Courses)-1]
}

// Activate PENDING -> ACTIVE
func (c *CourseProgressEntry) Activate() bool {
	if c.Status != CoursePending {
		return false
	}
	c.Status = CourseActive
	return true
}

// Complete ACTIVE -> COMPLETED，状态不回退
func (c *CourseProgressEntry) Complete(now time.Time) bool {
	if c.Status == CourseCompleted {
		return false
	}
	c.Status = CourseCompleted
	c.CompletionDate = &now
	return true
}

func (c *CourseProgressEntry) SyncCounts(lessonsCompleted, totalLessons int) {
	c.LessonsCompleted = lessonsCompleted
	c.TotalLessons = totalLessons
}

func (e *Enrollment) AllCoursesCompleted() bool {
	if len(e.Courses) == 0 {
		return false
	}
	for _, c := range e.Courses {
		if c.Status != CourseCompleted {
			return false
		}
	}
	return true
}

// MarkCompleted 仅在首次满足条件时返回 true，用于保证 ProgramCompleted 只发一次
func (e *Enrollment) MarkCompleted(now time.Time) bool {
	if e.Status == EnrollmentCompleted || !e.AllCoursesCompleted() {
		return false
	}
	e.Status = EnrollmentCompleted
	e.CompletionDate = &now
	return true
}

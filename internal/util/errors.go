package util

import "errors"

var (
	// 校验错误：写入前拒绝
	ErrInvalidInput = errors.New("invalid input")

	// 策略错误：带面向用户的原因，不写入
	ErrAttemptsExceeded       = errors.New("attempt limit exceeded")
	ErrAssessmentNotPublished = errors.New("assessment not published")
	ErrLessonNotStarted       = errors.New("lesson not started")
	ErrAssessmentNotStarted   = errors.New("assessment not started")
	ErrEnrollmentNotCompleted = errors.New("program not completed")
	ErrSubmissionIsDraft      = errors.New("draft submissions cannot be graded")

	// 不存在
	ErrProgressNotFound    = errors.New("progress not found")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrAssessmentNotFound  = errors.New("assessment not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrCourseNotFound      = errors.New("course not found")
	ErrProgramNotFound     = errors.New("program not found")
	ErrEnrollmentNotFound  = errors.New("enrollment not found")
	ErrCertificateNotFound = errors.New("certificate not found")

	// 并发控制
	ErrVersionConflict = errors.New("version conflict")
	ErrLockTimeout     = errors.New("lock wait timeout")
)

type ErrKind int

const (
	KindInternal ErrKind = iota
	KindValidation
	KindPolicy
	KindNotFound
	KindConflict
)

var kinds = []struct {
	err  error
	kind ErrKind
}{
	{ErrInvalidInput, KindValidation},
	{ErrAttemptsExceeded, KindPolicy},
	{ErrAssessmentNotPublished, KindPolicy},
	{ErrLessonNotStarted, KindPolicy},
	{ErrAssessmentNotStarted, KindPolicy},
	{ErrEnrollmentNotCompleted, KindPolicy},
	{ErrSubmissionIsDraft, KindPolicy},
	{ErrProgressNotFound, KindNotFound},
	{ErrSubmissionNotFound, KindNotFound},
	{ErrAssessmentNotFound, KindNotFound},
	{ErrLessonNotFound, KindNotFound},
	{ErrCourseNotFound, KindNotFound},
	{ErrProgramNotFound, KindNotFound},
	{ErrEnrollmentNotFound, KindNotFound},
	{ErrCertificateNotFound, KindNotFound},
	{ErrVersionConflict, KindConflict},
	{ErrLockTimeout, KindConflict},
}

// ErrorKind 按错误分类映射，未知错误视为内部错误
func ErrorKind(err error) ErrKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

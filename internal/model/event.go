package model

import "time"

type EventKind string

const (
	EventModuleCompleted  EventKind = "ModuleCompleted"
	EventCourseCompleted  EventKind = "CourseCompleted"
	EventProgramCompleted EventKind = "ProgramCompleted"
	EventAssessmentGraded EventKind = "AssessmentGraded"
)

// DomainEvent 级联产生的领域事件，足够通知服务渲染消息、证书服务发证
type DomainEvent struct {
	Kind       EventKind `json:"kind"`
	StudentID  string    `json:"studentId"`
	EntityID   string    `json:"entityId"`
	Title      string    `json:"title,omitempty"`
	CourseID   string    `json:"courseId,omitempty"`
	ProgramID  string    `json:"programId,omitempty"`
	Score      *int      `json:"score,omitempty"`
	Percentage *int      `json:"percentage,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

package model

import (
	"learnhub_backend/internal/util"
	"math"
	"sort"
	"time"

	"gorm.io/datatypes"
)

type ItemStatus string

const (
	NotStarted ItemStatus = "not_started"
	InProgress ItemStatus = "in_progress"
	Completed  ItemStatus = "completed"
)

type LessonProgress struct {
	Status      ItemStatus `json:"status"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	TimeSpent   int        `json:"timeSpent"` // 秒
}

type AssessmentProgress struct {
	Status         ItemStatus `json:"status"`
	Attempts       int        `json:"attempts"`
	Score          int        `json:"score"` // 最近一次已评分百分比
	BestPercentage int        `json:"bestPercentage"`
	PassingScore   int        `json:"passingScore"`
	// 提交序号 -> 百分比；nil 表示待人工批改
	Results     map[int]*int `json:"results,omitempty"`
	StartedAt   *time.Time   `json:"startedAt,omitempty"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
}

type ModuleProgress struct {
	ModuleID             string                         `json:"moduleId"`
	Title                string                         `json:"title,omitempty"`
	Lessons              map[string]*LessonProgress     `json:"lessons"`
	Assessments          map[string]*AssessmentProgress `json:"assessments"`
	TotalLessons         int                            `json:"totalLessons"`
	TotalAssessments     int                            `json:"totalAssessments"`
	CompletedLessons     int                            `json:"completedLessons"`
	CompletedAssessments int                            `json:"completedAssessments"`
	CompletionPercentage int                            `json:"completionPercentage"`
}

func (m *ModuleProgress) IsComplete() bool {
	return m.CompletionPercentage == 100
}

// ModuleTree moduleId -> ModuleProgress
type ModuleTree map[string]*ModuleProgress

// Progress 每个 (学生, 课程) 一条，模块树以 JSON 存储；所有百分比均由 Recompute 派生
type Progress struct {
	UUIDBase
	StudentID            string                         `gorm:"type:varchar(36);not null;uniqueIndex:idx_progress_student_course,priority:1" json:"studentId"`
	CourseID             string                         `gorm:"type:varchar(36);not null;uniqueIndex:idx_progress_student_course,priority:2" json:"courseId"`
	ProgramID            string                         `gorm:"type:varchar(36);index" json:"programId,omitempty"`
	Modules              datatypes.JSONType[ModuleTree] `json:"modules"`
	OverallProgress      int                            `gorm:"default:0" json:"overallProgress"`
	CompletedLessons     int                            `gorm:"default:0" json:"completedLessons"`
	TotalLessons         int                            `gorm:"default:0" json:"totalLessons"`
	CompletedAssessments int                            `gorm:"default:0" json:"completedAssessments"`
	TotalAssessments     int                            `gorm:"default:0" json:"totalAssessments"`
	AverageScore         float64                        `gorm:"default:0" json:"averageScore"`
	LastAccessedAt       time.Time                      `json:"lastAccessedAt"`
	CompletedAt          *time.Time                     `json:"completedAt,omitempty"`
	Version              int                            `gorm:"not null;default:1" json:"version"`
}

func (Progress) TableName() string {
	return "progresses"
}

// ModuleTransition 一次重算中完成状态发生翻转的模块
type ModuleTransition struct {
	ModuleID  string
	Title     string
	Completed bool
}

// NewProgress 懒创建：按课程结构建立清零的模块树
func NewProgress(studentID string, outline *CourseOutline, now time.Time) *Progress {
	p := &Progress{
		StudentID:      studentID,
		CourseID:       outline.CourseID,
		ProgramID:      outline.ProgramID,
		Modules:        datatypes.NewJSONType(ModuleTree{}),
		LastAccessedAt: now,
		Version:        1,
	}
	p.SyncOutline(outline)
	p.Recompute()
	return p
}

func (p *Progress) Tree() ModuleTree {
	tree := p.Modules.Data()
	if tree == nil {
		tree = ModuleTree{}
		p.Modules = datatypes.NewJSONType(tree)
	}
	return tree
}

// SyncOutline 补齐目录中新增的模块并刷新分母，目录中已删除的模块从树中移除；
// 现存模块的作答记录保持不变
func (p *Progress) SyncOutline(outline *CourseOutline) {
	tree := p.Tree()
	present := make(map[string]bool, len(outline.Modules))
	for _, mo := range outline.Modules {
		present[mo.ModuleID] = true
	}
	for id := range tree {
		if !present[id] {
			delete(tree, id)
		}
	}
	for _, mo := range outline.Modules {
		m, ok := tree[mo.ModuleID]
		if !ok {
			m = &ModuleProgress{
				ModuleID:    mo.ModuleID,
				Lessons:     map[string]*LessonProgress{},
				Assessments: map[string]*AssessmentProgress{},
			}
			tree[mo.ModuleID] = m
		}
		m.Title = mo.Title
		m.TotalLessons = mo.LessonCount
		m.TotalAssessments = mo.AssessmentCount
	}
	if outline.ProgramID != "" {
		p.ProgramID = outline.ProgramID
	}
}

func (p *Progress) Module(moduleID string) (*ModuleProgress, bool) {
	m, ok := p.Tree()[moduleID]
	if ok {
		if m.Lessons == nil {
			m.Lessons = map[string]*LessonProgress{}
		}
		if m.Assessments == nil {
			m.Assessments = map[string]*AssessmentProgress{}
		}
	}
	return m, ok
}

func (p *Progress) Lesson(moduleID, lessonID string) *LessonProgress {
	m, ok := p.Module(moduleID)
	if !ok {
		return nil
	}
	return m.Lessons[lessonID]
}

func (p *Progress) AssessmentEntry(moduleID, assessmentID string) *AssessmentProgress {
	m, ok := p.Module(moduleID)
	if !ok {
		return nil
	}
	return m.Assessments[assessmentID]
}

// StartLesson not_started -> in_progress，已完成的课时不回退。返回是否有变化
func (p *Progress) StartLesson(moduleID, lessonID string, now time.Time) (bool, error) {
	m, ok := p.Module(moduleID)
	if !ok {
		return false, util.ErrLessonNotFound
	}
	p.LastAccessedAt = now
	lp, ok := m.Lessons[lessonID]
	if !ok {
		lp = &LessonProgress{Status: NotStarted}
		m.Lessons[lessonID] = lp
	}
	if lp.Status != NotStarted {
		return false, nil
	}
	lp.Status = InProgress
	lp.StartedAt = &now
	return true, nil
}

// CompleteLesson 首次完成记录 completedAt，重复调用只累计学习时长
func (p *Progress) CompleteLesson(moduleID, lessonID string, timeSpent int, now time.Time) (bool, error) {
	m, ok := p.Module(moduleID)
	if !ok {
		return false, util.ErrLessonNotFound
	}
	lp, ok := m.Lessons[lessonID]
	if !ok || lp.Status == NotStarted {
		return false, util.ErrLessonNotStarted
	}
	p.LastAccessedAt = now
	if timeSpent > 0 {
		lp.TimeSpent += timeSpent
	}
	if lp.Status == Completed {
		return false, nil
	}
	lp.Status = Completed
	lp.CompletedAt = &now
	return true, nil
}

func (p *Progress) StartAssessment(moduleID, assessmentID string, passingScore int, now time.Time) (bool, error) {
	m, ok := p.Module(moduleID)
	if !ok {
		return false, util.ErrAssessmentNotFound
	}
	p.LastAccessedAt = now
	ap, ok := m.Assessments[assessmentID]
	if !ok {
		ap = &AssessmentProgress{Status: NotStarted, Results: map[int]*int{}}
		m.Assessments[assessmentID] = ap
	}
	ap.PassingScore = passingScore
	if ap.Status != NotStarted {
		return false, nil
	}
	ap.Status = InProgress
	ap.StartedAt = &now
	return true, nil
}

// RecordAssessmentResult 记录一次提交；percentage 为 nil 表示待批改。
// 同一提交序号重复记录（重新批改）覆盖旧值，不重复计数
func (p *Progress) RecordAssessmentResult(moduleID, assessmentID string, attempt int, percentage *int, now time.Time) error {
	m, ok := p.Module(moduleID)
	if !ok {
		return util.ErrAssessmentNotFound
	}
	ap, ok := m.Assessments[assessmentID]
	if !ok || ap.Status == NotStarted {
		return util.ErrAssessmentNotStarted
	}
	if ap.Results == nil {
		ap.Results = map[int]*int{}
	}
	p.LastAccessedAt = now

	var stored *int
	if percentage != nil {
		v := clampPercent(*percentage)
		stored = &v
	}
	ap.Results[attempt] = stored
	ap.Attempts = len(ap.Results)

	best, latest, latestAttempt, graded := 0, 0, 0, false
	for n, r := range ap.Results {
		if r == nil {
			continue
		}
		graded = true
		if *r > best {
			best = *r
		}
		if n >= latestAttempt {
			latestAttempt = n
			latest = *r
		}
	}
	ap.BestPercentage = best
	ap.Score = latest

	if graded && best >= ap.PassingScore {
		if ap.Status != Completed {
			ap.Status = Completed
			ap.CompletedAt = &now
		}
	} else {
		ap.Status = InProgress
		ap.CompletedAt = nil
	}
	return nil
}

// HasResult 该提交是否已反映到进度中（对账用）
func (p *Progress) HasResult(moduleID, assessmentID string, attempt int, percentage *int) bool {
	ap := p.AssessmentEntry(moduleID, assessmentID)
	if ap == nil || ap.Results == nil {
		return false
	}
	r, ok := ap.Results[attempt]
	if !ok {
		return false
	}
	if percentage == nil {
		return true
	}
	return r != nil && *r == clampPercent(*percentage)
}

// Recompute 自底向上重算派生字段：模块百分比 -> 课程汇总 -> 总进度 -> 平均分。
// 纯计算，无 I/O；返回完成状态发生翻转的模块
func (p *Progress) Recompute() []ModuleTransition {
	var transitions []ModuleTransition
	var completedLessons, totalLessons, completedAssessments, totalAssessments int
	var scoreSum, scoreCount int

	for id, m := range p.Tree() {
		wasComplete := m.IsComplete()

		m.CompletedLessons = 0
		for _, lp := range m.Lessons {
			if lp.Status == Completed {
				m.CompletedLessons++
			}
		}
		m.CompletedAssessments = 0
		for _, ap := range m.Assessments {
			if ap.Status == Completed {
				m.CompletedAssessments++
			}
			for _, r := range ap.Results {
				if r != nil {
					scoreSum += *r
					scoreCount++
				}
			}
		}

		m.CompletionPercentage = moduleCompletion(m)

		if m.IsComplete() != wasComplete {
			transitions = append(transitions, ModuleTransition{ModuleID: id, Title: m.Title, Completed: m.IsComplete()})
		}

		completedLessons += minInt(m.CompletedLessons, m.TotalLessons)
		totalLessons += m.TotalLessons
		completedAssessments += minInt(m.CompletedAssessments, m.TotalAssessments)
		totalAssessments += m.TotalAssessments
	}

	p.CompletedLessons = completedLessons
	p.TotalLessons = totalLessons
	p.CompletedAssessments = completedAssessments
	p.TotalAssessments = totalAssessments
	p.OverallProgress = Percent(completedLessons+completedAssessments, totalLessons+totalAssessments)

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].ModuleID < transitions[j].ModuleID
	})

	if scoreCount > 0 {
		p.AverageScore = math.Round(float64(scoreSum)/float64(scoreCount)*100) / 100
	} else {
		p.AverageScore = 0
	}
	return transitions
}

// moduleCompletion 课时与测评使用同一比例公式；没有任何内容的模块视为已完成
func moduleCompletion(m *ModuleProgress) int {
	total := m.TotalLessons + m.TotalAssessments
	if total == 0 {
		return 100
	}
	done := minInt(m.CompletedLessons, m.TotalLessons) + minInt(m.CompletedAssessments, m.TotalAssessments)
	return Percent(done, total)
}

// IsComplete 课程内所有模块均已完成
func (p *Progress) IsComplete() bool {
	tree := p.Tree()
	if len(tree) == 0 {
		return false
	}
	for _, m := range tree {
		if !m.IsComplete() {
			return false
		}
	}
	return true
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Package repotest opens migrated in-memory databases and seeds catalog fixtures for tests.
package repotest

import (
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/database"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq int64

// Open 每个测试一个独立的内存库；单连接避免 sqlite 写锁竞争
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:learnhub_%d?mode=memory&cache=shared&_busy_timeout=5000", atomic.AddInt64(&seq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// Catalog 测试用目录夹具
type Catalog struct {
	DB *gorm.DB
}

func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{DB: db}
}

func (c *Catalog) Program(t *testing.T, title string) *model.Program {
	t.Helper()
	p := &model.Program{Title: title}
	require.NoError(t, c.DB.Create(p).Error)
	return p
}

func (c *Catalog) Course(t *testing.T, programID, title string, order int) *model.Course {
	t.Helper()
	course := &model.Course{Title: title, Order: order}
	if programID != "" {
		course.ProgramID = &programID
	}
	require.NoError(t, c.DB.Create(course).Error)
	return course
}

func (c *Catalog) Module(t *testing.T, courseID, title string, order int) *model.CourseModule {
	t.Helper()
	m := &model.CourseModule{CourseID: courseID, Title: title, Order: order}
	require.NoError(t, c.DB.Create(m).Error)
	return m
}

func (c *Catalog) Lesson(t *testing.T, m *model.CourseModule, title string, order int) *model.Lesson {
	t.Helper()
	l := &model.Lesson{CourseID: m.CourseID, ModuleID: m.ID, Title: title, Order: order}
	require.NoError(t, c.DB.Create(l).Error)
	return l
}

// Assessment 创建已发布测评，题目顺序即传入顺序
func (c *Catalog) Assessment(t *testing.T, m *model.CourseModule, passingScore, attempts int, questions ...model.AssessmentQuestion) *model.Assessment {
	t.Helper()
	a := &model.Assessment{
		CourseID:     m.CourseID,
		ModuleID:     m.ID,
		Title:        "Quiz " + m.Title,
		PassingScore: passingScore,
		Attempts:     attempts,
		IsPublished:  true,
	}
	require.NoError(t, c.DB.Create(a).Error)
	for i := range questions {
		questions[i].AssessmentID = a.ID
		questions[i].Order = i
		require.NoError(t, c.DB.Create(&questions[i]).Error)
	}
	a.Questions = questions
	return a
}

func (c *Catalog) Unpublish(t *testing.T, a *model.Assessment) {
	t.Helper()
	require.NoError(t, c.DB.Model(a).Update("is_published", false).Error)
}

func (c *Catalog) CloseAt(t *testing.T, a *model.Assessment, end time.Time) {
	t.Helper()
	require.NoError(t, c.DB.Model(a).Update("end_date", end).Error)
}

// Choice 单选题，答案为选项下标
func Choice(points int, correct string, options ...string) model.AssessmentQuestion {
	return model.AssessmentQuestion{
		Type:          model.MultipleChoice,
		Content:       "choose one",
		Points:        points,
		Options:       options,
		CorrectAnswer: []byte(correct),
	}
}

func Essay(points int) model.AssessmentQuestion {
	return model.AssessmentQuestion{
		Type:    model.Essay,
		Content: "explain",
		Points:  points,
	}
}

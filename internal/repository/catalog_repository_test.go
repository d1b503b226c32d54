package repository

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository/repotest"
	"learnhub_backend/internal/util"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCounts(t *testing.T) {
	db := repotest.Open(t)
	cat := repotest.NewCatalog(db)
	repo := NewCatalogRepository(db)

	program := cat.Program(t, "Platform")
	second := cat.Course(t, program.ID, "Second", 2)
	first := cat.Course(t, program.ID, "First", 1)
	cat.Course(t, "", "Standalone", 1)

	ids, err := repo.ProgramCourseIDs(program.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids)

	m1 := cat.Module(t, first.ID, "One", 1)
	m2 := cat.Module(t, first.ID, "Two", 2)
	cat.Lesson(t, m1, "a", 1)
	cat.Lesson(t, m1, "b", 2)
	cat.Lesson(t, m2, "c", 1)
	cat.Assessment(t, m1, 50, 0, repotest.Choice(1, `0`, "x", "y"))
	hidden := cat.Assessment(t, m2, 50, 0, repotest.Essay(1))
	cat.Unpublish(t, hidden)

	lessons, err := repo.LessonCountsByModule(first.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{m1.ID: 2, m2.ID: 1}, lessons)

	assessments, err := repo.AssessmentCountsByModule(first.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{m1.ID: 1}, assessments)

	modules, err := repo.ListModules(first.ID)
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Equal(t, m1.ID, modules[0].ID)

	_, err = repo.FindProgram(uuid.NewString())
	assert.ErrorIs(t, err, util.ErrProgramNotFound)
	_, err = repo.FindLesson(uuid.NewString())
	assert.ErrorIs(t, err, util.ErrLessonNotFound)
}

func TestAssessmentQuestionsKeepOrder(t *testing.T) {
	db := repotest.Open(t)
	cat := repotest.NewCatalog(db)
	repo := NewAssessmentRepository(db)

	course := cat.Course(t, "", "Ordering", 1)
	m := cat.Module(t, course.ID, "Only", 1)
	a := cat.Assessment(t, m, 0, 0,
		repotest.Choice(1, `0`, "a"),
		repotest.Essay(2),
		repotest.Choice(3, `"z"`),
	)

	found, err := repo.FindWithQuestions(a.ID)
	require.NoError(t, err)
	require.Len(t, found.Questions, 3)
	assert.Equal(t, 6, found.TotalPoints())
	assert.Equal(t, 2, found.Question(1).Points)
	assert.Nil(t, found.Question(3))
	assert.Equal(t, 0, found.Attempts)

	_, err = repo.FindByID(uuid.NewString())
	assert.ErrorIs(t, err, util.ErrAssessmentNotFound)
}

func TestAssessmentCorrectAnswerRoundTrip(t *testing.T) {
	db := repotest.Open(t)
	cat := repotest.NewCatalog(db)
	repo := NewAssessmentRepository(db)

	course := cat.Course(t, "", "Keys", 1)
	m := cat.Module(t, course.ID, "Only", 1)
	keys := []string{`1`, `"Paris"`, `["4","four"]`, `true`, `"2"`, `2.5`}
	questions := make([]model.AssessmentQuestion, 0, len(keys))
	for _, k := range keys {
		questions = append(questions, repotest.Choice(1, k, "a", "b", "c"))
	}
	a := cat.Assessment(t, m, 50, 0, questions...)

	found, err := repo.FindWithQuestions(a.ID)
	require.NoError(t, err)
	require.Len(t, found.Questions, len(keys))
	for i, k := range keys {
		assert.JSONEq(t, k, string(found.Question(i).CorrectAnswer), k)
	}
}

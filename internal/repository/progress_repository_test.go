package repository

import (
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/repository/repotest"
	"learnhub_backend/internal/util"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProgress(studentID string) *model.Progress {
	outline := &model.CourseOutline{
		CourseID:  "course-1",
		ProgramID: "program-1",
		Modules:   []model.ModuleOutline{{ModuleID: "m1", Title: "Intro", LessonCount: 2}},
	}
	return model.NewProgress(studentID, outline, time.Now())
}

func TestProgressCreateAndFind(t *testing.T) {
	repo := NewProgressRepository(repotest.Open(t))
	student := uuid.NewString()

	_, err := repo.Find(student, "course-1")
	assert.ErrorIs(t, err, util.ErrProgressNotFound)

	p := testProgress(student)
	require.NoError(t, repo.Create(p))

	dup := testProgress(student)
	assert.ErrorIs(t, repo.Create(dup), util.ErrVersionConflict)
	assert.Empty(t, dup.ID)

	found, err := repo.Find(student, "course-1")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.ID)
	m, ok := found.Module("m1")
	require.True(t, ok)
	assert.Equal(t, 2, m.TotalLessons)
}

func TestSaveVersionedDetectsConflicts(t *testing.T) {
	repo := NewProgressRepository(repotest.Open(t))
	student := uuid.NewString()
	p := testProgress(student)
	require.NoError(t, repo.Create(p))

	a, err := repo.Find(student, "course-1")
	require.NoError(t, err)
	b, err := repo.Find(student, "course-1")
	require.NoError(t, err)

	now := time.Now()
	_, err = a.StartLesson("m1", "l1", now)
	require.NoError(t, err)
	a.Recompute()
	require.NoError(t, repo.SaveVersioned(a))
	assert.Equal(t, 2, a.Version)

	_, err = b.StartLesson("m1", "l2", now)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.SaveVersioned(b), util.ErrVersionConflict)
	assert.Equal(t, 1, b.Version)

	stored, err := repo.Find(student, "course-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.NotNil(t, stored.Lesson("m1", "l1"))
	assert.Nil(t, stored.Lesson("m1", "l2"))
}

func TestListCompletedInProgramSince(t *testing.T) {
	repo := NewProgressRepository(repotest.Open(t))

	done := testProgress(uuid.NewString())
	finished := time.Now()
	done.CompletedAt = &finished
	require.NoError(t, repo.Create(done))

	require.NoError(t, repo.Create(testProgress(uuid.NewString())))

	list, err := repo.ListCompletedInProgramSince(time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, done.ID, list[0].ID)
}

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

func TestEnrollmentCreateSaveAndFind(t *testing.T) {
	repo := NewEnrollmentRepository(repotest.Open(t))
	student, program := uuid.NewString(), uuid.NewString()
	courses := []string{uuid.NewString(), uuid.NewString()}

	_, err := repo.Find(student, program)
	assert.ErrorIs(t, err, util.ErrEnrollmentNotFound)

	e := model.NewEnrollment(student, program, courses)
	require.NoError(t, repo.Create(e))

	dup := model.NewEnrollment(student, program, courses)
	assert.ErrorIs(t, repo.Create(dup), util.ErrVersionConflict)
	assert.Empty(t, dup.ID)

	now := time.Now()
	e.Entry(courses[0]).Activate()
	e.Entry(courses[0]).Complete(now)
	e.EnsureEntry(uuid.NewString())
	require.NoError(t, repo.Save(e))

	found, err := repo.Find(student, program)
	require.NoError(t, err)
	require.Len(t, found.Courses, 3)
	assert.Equal(t, courses[0], found.Courses[0].CourseID)
	assert.Equal(t, model.CourseCompleted, found.Courses[0].Status)
	assert.Equal(t, model.CoursePending, found.Courses[2].Status)
	assert.Equal(t, model.EnrollmentActive, found.Status)
}

func TestListCompletedWithoutCertificate(t *testing.T) {
	db := repotest.Open(t)
	repo := NewEnrollmentRepository(db)
	certs := NewCertificateRepository(db)
	now := time.Now()

	completed := func() *model.Enrollment {
		e := model.NewEnrollment(uuid.NewString(), uuid.NewString(), []string{uuid.NewString()})
		e.Courses[0].Complete(now)
		e.MarkCompleted(now)
		require.NoError(t, repo.Create(e))
		return e
	}

	withCert := completed()
	require.NoError(t, certs.Create(model.NewCertificate(withCert.StudentID, withCert.ProgramID, now)))

	missing := completed()

	revoked := completed()
	cert := model.NewCertificate(revoked.StudentID, revoked.ProgramID, now)
	require.NoError(t, certs.Create(cert))
	cert.Revoke(now)
	require.NoError(t, certs.Save(cert))

	require.NoError(t, repo.Create(model.NewEnrollment(uuid.NewString(), uuid.NewString(), []string{uuid.NewString()})))

	list, err := repo.ListCompletedWithoutCertificate(10)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, e := range list {
		ids[e.ID] = true
	}
	assert.Len(t, ids, 2)
	assert.True(t, ids[missing.ID])
	assert.True(t, ids[revoked.ID])
}

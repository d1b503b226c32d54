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

func TestCertificateActiveKeyIsUnique(t *testing.T) {
	repo := NewCertificateRepository(repotest.Open(t))
	student, program := uuid.NewString(), uuid.NewString()
	now := time.Now()

	first := model.NewCertificate(student, program, now)
	require.NoError(t, repo.Create(first))

	second := model.NewCertificate(student, program, now)
	assert.ErrorIs(t, repo.Create(second), util.ErrVersionConflict)
	assert.Empty(t, second.ID)

	found, err := repo.FindActive(student, program)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	first.Revoke(now)
	require.NoError(t, repo.Save(first))
	_, err = repo.FindActive(student, program)
	assert.ErrorIs(t, err, util.ErrCertificateNotFound)

	// 吊销后可以重新签发，历史证书保留
	require.NoError(t, repo.Create(model.NewCertificate(student, program, now)))
	n, err := repo.CountActive(student, program)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	old, err := repo.FindByID(first.ID)
	require.NoError(t, err)
	assert.True(t, old.Revoked)

	_, err = repo.FindByID(uuid.NewString())
	assert.ErrorIs(t, err, util.ErrCertificateNotFound)
}

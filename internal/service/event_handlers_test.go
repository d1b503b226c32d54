package service

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyIssuer struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (f *flakyIssuer) Issue(ctx context.Context, studentID, programID string) (*model.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return model.NewCertificate(studentID, programID, time.Now()), nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []model.EventKind
	users []string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID string, kind model.EventKind, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kinds = append(n.kinds, kind)
	n.users = append(n.users, userID)
	return nil
}

func programCompleted() model.DomainEvent {
	return model.DomainEvent{
		Kind:      model.EventProgramCompleted,
		StudentID: newID(),
		ProgramID: newID(),
	}
}

func TestCertificateHandlerRetriesTransientErrors(t *testing.T) {
	issuer := &flakyIssuer{failures: 2, err: errors.New("connection reset")}
	handler := CertificateHandler(issuer, 3, time.Millisecond)

	require.NoError(t, handler(context.Background(), programCompleted()))
	assert.Equal(t, 3, issuer.calls)
}

func TestCertificateHandlerGivesUp(t *testing.T) {
	issuer := &flakyIssuer{failures: 10, err: errors.New("connection reset")}
	handler := CertificateHandler(issuer, 3, time.Millisecond)

	assert.Error(t, handler(context.Background(), programCompleted()))
	assert.Equal(t, 3, issuer.calls)
}

func TestCertificateHandlerDoesNotRetryPolicyErrors(t *testing.T) {
	issuer := &flakyIssuer{failures: 10, err: fmt.Errorf("issue: %w", util.ErrEnrollmentNotCompleted)}
	handler := CertificateHandler(issuer, 5, time.Millisecond)

	err := handler(context.Background(), programCompleted())
	assert.ErrorIs(t, err, util.ErrEnrollmentNotCompleted)
	assert.Equal(t, 1, issuer.calls)
}

func TestCertificateHandlerIgnoresOtherEvents(t *testing.T) {
	issuer := &flakyIssuer{}
	handler := CertificateHandler(issuer, 3, time.Millisecond)

	require.NoError(t, handler(context.Background(), model.DomainEvent{Kind: model.EventCourseCompleted}))
	assert.Zero(t, issuer.calls)
}

func TestCertificateHandlerStopsOnCancel(t *testing.T) {
	issuer := &flakyIssuer{failures: 10, err: errors.New("timeout")}
	handler := CertificateHandler(issuer, 5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := handler(ctx, programCompleted())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, issuer.calls)
}

func TestRegisterHandlersRoutesEvents(t *testing.T) {
	bus := &recordingBus{}
	notifier := &recordingNotifier{}
	issuer := &flakyIssuer{}
	RegisterHandlers(bus, notifier, issuer, 1)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, model.DomainEvent{Kind: model.EventModuleCompleted, StudentID: "s1"}))
	require.NoError(t, bus.Publish(ctx, programCompleted()))

	assert.Equal(t, []model.EventKind{model.EventModuleCompleted, model.EventProgramCompleted}, notifier.kinds)
	assert.Equal(t, "s1", notifier.users[0])
	assert.Equal(t, 1, issuer.calls)
}

package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	keys     []string
	payloads []interface{}
	err      error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	p.keys = append(p.keys, routingKey)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func TestAMQPNotifierRoutesByKind(t *testing.T) {
	pub := &capturePublisher{}
	n := NewAMQPNotifier(pub)

	require.NoError(t, n.Notify(context.Background(), "student-1", model.EventCourseCompleted, map[string]string{"title": "Go"}))
	require.Len(t, pub.keys, 1)
	assert.Equal(t, "notification."+string(model.EventCourseCompleted), pub.keys[0])

	msg, ok := pub.payloads[0].(NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, "student-1", msg.UserID)
	assert.Equal(t, model.EventCourseCompleted, msg.Kind)
	assert.False(t, msg.SentAt.IsZero())
}

func TestSwitchableNotifier(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	n := NewSwitchableNotifier(NewAMQPNotifier(pub), false)
	ctx := context.Background()

	assert.False(t, n.Enabled())
	require.NoError(t, n.Notify(ctx, "s", model.EventModuleCompleted, nil))
	assert.Empty(t, pub.keys)

	n.SetEnabled(true)
	assert.True(t, n.Enabled())
	assert.Error(t, n.Notify(ctx, "s", model.EventModuleCompleted, nil))
	assert.Len(t, pub.keys, 1)

	assert.NoError(t, LogNotifier{}.Notify(ctx, "s", model.EventModuleCompleted, nil))
}

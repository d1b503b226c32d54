package service

import (
	"context"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/logger"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Notifier 尽力投递，失败由调用方记录后忽略
type Notifier interface {
	Notify(ctx context.Context, userID string, kind model.EventKind, payload interface{}) error
}

// Publisher 通知传输，pkg/messaging.Publisher 实现
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload interface{}) error
}

// NotificationMessage 发往通知交换机的消息体
type NotificationMessage struct {
	UserID  string          `json:"userId"`
	Kind    model.EventKind `json:"kind"`
	Payload interface{}     `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// AMQPNotifier 路由键为 notification.<kind>
type AMQPNotifier struct {
	Publisher Publisher
}

func NewAMQPNotifier(p Publisher) *AMQPNotifier {
	return &AMQPNotifier{Publisher: p}
}

func (n *AMQPNotifier) Notify(ctx context.Context, userID string, kind model.EventKind, payload interface{}) error {
	return n.Publisher.Publish(ctx, "notification."+string(kind), NotificationMessage{
		UserID:  userID,
		Kind:    kind,
		Payload: payload,
		SentAt:  time.Now(),
	})
}

// LogNotifier 未接入消息队列时只写日志
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, userID string, kind model.EventKind, payload interface{}) error {
	logger.Log.Info("Notification", zap.String("userId", userID), zap.String("kind", string(kind)), zap.Any("payload", payload))
	return nil
}

// SwitchableNotifier 运行时开关，由配置热加载切换
type SwitchableNotifier struct {
	Next    Notifier
	enabled atomic.Bool
}

func NewSwitchableNotifier(next Notifier, enabled bool) *SwitchableNotifier {
	n := &SwitchableNotifier{Next: next}
	n.enabled.Store(enabled)
	return n
}

func (n *SwitchableNotifier) SetEnabled(enabled bool) {
	if n.enabled.Swap(enabled) != enabled {
		logger.Log.Info("Notifier toggled", zap.Bool("enabled", enabled))
	}
}

func (n *SwitchableNotifier) Enabled() bool {
	return n.enabled.Load()
}

func (n *SwitchableNotifier) Notify(ctx context.Context, userID string, kind model.EventKind, payload interface{}) error {
	if !n.enabled.Load() {
		return nil
	}
	return n.Next.Notify(ctx, userID, kind, payload)
}

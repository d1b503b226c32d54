// Package eventbus delivers domain events to subscribed handlers off the request path.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrClosed     = errors.New("eventbus: closed")
	ErrBufferFull = errors.New("eventbus: buffer full")
)

type Handler func(ctx context.Context, ev model.DomainEvent) error

type Bus interface {
	// Publish 不阻塞调用方，投递失败只返回错误，不影响已完成的写入
	Publish(ctx context.Context, ev model.DomainEvent) error
	// Subscribe 不传 kinds 时订阅全部事件
	Subscribe(h Handler, kinds ...model.EventKind)
	Start(ctx context.Context)
	Close() error
}

type subscription struct {
	handler Handler
	kinds   map[model.EventKind]bool
}

type dispatcher struct {
	mu   sync.RWMutex
	subs []subscription
}

func (d *dispatcher) Subscribe(h Handler, kinds ...model.EventKind) {
	sub := subscription{handler: h}
	if len(kinds) > 0 {
		sub.kinds = make(map[model.EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	d.mu.Lock()
	d.subs = append(d.subs, sub)
	d.mu.Unlock()
}

func (d *dispatcher) deliver(ctx context.Context, ev model.DomainEvent) {
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	for _, sub := range subs {
		if sub.kinds != nil && !sub.kinds[ev.Kind] {
			continue
		}
		if err := safeCall(ctx, sub.handler, ev); err != nil {
			monitoring.EventFailures.WithLabelValues(string(ev.Kind), "handler").Inc()
			logger.Log.Warn("Event handler failed",
				zap.String("kind", string(ev.Kind)),
				zap.String("studentId", ev.StudentID),
				zap.String("entityId", ev.EntityID),
				zap.Error(err))
		}
	}
}

func safeCall(ctx context.Context, h Handler, ev model.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, ev)
}

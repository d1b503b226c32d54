package eventbus

import (
	"context"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/monitoring"
	"sync"
)

// MemoryBus 进程内有界队列 + 固定数量的 worker；队列满时丢弃并计数
type MemoryBus struct {
	dispatcher
	queue   chan model.DomainEvent
	workers int

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewMemoryBus(workers, buffer int) *MemoryBus {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	return &MemoryBus{
		queue:   make(chan model.DomainEvent, buffer),
		workers: workers,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, ev model.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.queue <- ev:
		monitoring.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
		return nil
	default:
		monitoring.EventFailures.WithLabelValues(string(ev.Kind), "buffer_full").Inc()
		return ErrBufferFull
	}
}

func (b *MemoryBus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for ev := range b.queue {
				b.deliver(context.WithoutCancel(ctx), ev)
			}
		}()
	}
}

// Close 停止接收新事件，等待队列中已有事件处理完
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	started := b.started
	b.mu.Unlock()

	if !started {
		for ev := range b.queue {
			b.deliver(context.Background(), ev)
		}
		return nil
	}
	b.wg.Wait()
	return nil
}

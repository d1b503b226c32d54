package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"learnhub_backend/internal/model"
	"learnhub_backend/pkg/logger"
	"learnhub_backend/pkg/monitoring"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	defaultStream = "learnhub:events"
	defaultGroup  = "learnhub:events:group"
	defaultMaxLen = 100000
)

// RedisStreamBus 多实例部署：事件写入 redis stream，各实例以消费组方式处理。
// 消费者名称按主机稳定，重启后先处理自己未确认的消息；其他消费者闲置过久的消息会被认领
type RedisStreamBus struct {
	dispatcher
	rdb        *redis.Client
	streamName string
	groupName  string
	consumer   string
	workers    int
	batch      int64
	maxLen     int64
	block      time.Duration
	claimIdle  time.Duration
	claimEvery time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisStreamBus(rdb *redis.Client, workers, batch int) *RedisStreamBus {
	if workers < 1 {
		workers = 1
	}
	if batch < 1 {
		batch = 10
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "learnhub"
	}
	return &RedisStreamBus{
		rdb:        rdb,
		streamName: defaultStream,
		groupName:  defaultGroup,
		consumer:   host,
		workers:    workers,
		batch:      int64(batch),
		maxLen:     defaultMaxLen,
		block:      2 * time.Second,
		claimIdle:  time.Minute,
		claimEvery: 30 * time.Second,
	}
}

func (b *RedisStreamBus) Publish(ctx context.Context, ev model.DomainEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamName,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]interface{}{"data": data},
	}).Result()
	if err != nil {
		monitoring.EventFailures.WithLabelValues(string(ev.Kind), "publish").Inc()
		return err
	}
	monitoring.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (b *RedisStreamBus) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	if err := b.rdb.XGroupCreateMkStream(ctx, b.streamName, b.groupName, "0").Err(); err != nil &&
		!strings.HasPrefix(err.Error(), "BUSYGROUP") {
		logger.Log.Error("Failed to create event consumer group",
			zap.String("stream", b.streamName), zap.Error(err))
	}

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		consumer := fmt.Sprintf("%s-%d", b.consumer, i)
		go func() {
			defer b.wg.Done()
			b.consume(ctx, consumer)
		}()
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.reclaimLoop(ctx, fmt.Sprintf("%s-0", b.consumer))
	}()
}

func (b *RedisStreamBus) consume(ctx context.Context, consumer string) {
	// "0" 读取本消费者已投递未确认的消息，读空后切换到新消息
	cursor := "0"
	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.groupName,
			Consumer: consumer,
			Streams:  []string{b.streamName, cursor},
			Count:    b.batch,
			Block:    b.block,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() == nil {
				logger.Log.Warn("Event stream read failed", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			cursor = ">"
			continue
		}
		b.handle(ctx, streams[0].Messages)
	}
}

func (b *RedisStreamBus) reclaimLoop(ctx context.Context, consumer string) {
	ticker := time.NewTicker(b.claimEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reclaim(ctx, consumer)
		}
	}
}

// reclaim 认领其他消费者闲置超过 claimIdle 的消息并处理，返回认领条数
func (b *RedisStreamBus) reclaim(ctx context.Context, consumer string) int {
	pending, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.streamName,
		Group:  b.groupName,
		Start:  "-",
		End:    "+",
		Count:  b.batch,
	}).Result()
	if err != nil {
		if ctx.Err() == nil && err != redis.Nil {
			logger.Log.Warn("Event pending scan failed", zap.Error(err))
		}
		return 0
	}

	var ids []string
	for _, p := range pending {
		if p.Consumer != consumer && p.Idle >= b.claimIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return 0
	}

	msgs, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   b.streamName,
		Group:    b.groupName,
		Consumer: consumer,
		MinIdle:  b.claimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			logger.Log.Warn("Event claim failed", zap.Error(err))
		}
		return 0
	}
	if len(msgs) > 0 {
		logger.Log.Info("Reclaimed idle events", zap.Int("count", len(msgs)))
		b.handle(ctx, msgs)
	}
	return len(msgs)
}

// handle 逐条投递；处理器自带重试，失败的事件由对账任务兜底。
// ctx 已取消时不再确认，消息留在待处理列表中等待重新投递
func (b *RedisStreamBus) handle(ctx context.Context, msgs []redis.XMessage) {
	ids := make([]string, 0, len(msgs))
	for _, xmsg := range msgs {
		if ctx.Err() != nil {
			break
		}
		if ev, ok := decodeEvent(xmsg); ok {
			b.deliver(ctx, ev)
			if ctx.Err() != nil {
				break
			}
		}
		ids = append(ids, xmsg.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := b.rdb.XAck(context.Background(), b.streamName, b.groupName, ids...).Err(); err != nil {
		logger.Log.Warn("Event ack failed", zap.Strings("ids", ids), zap.Error(err))
	}
}

func decodeEvent(xmsg redis.XMessage) (model.DomainEvent, bool) {
	var ev model.DomainEvent
	data, ok := xmsg.Values["data"].(string)
	if !ok {
		logger.Log.Warn("Dropping event without payload", zap.String("id", xmsg.ID))
		return ev, false
	}
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		monitoring.EventFailures.WithLabelValues("unknown", "decode").Inc()
		logger.Log.Warn("Dropping undecodable event", zap.String("id", xmsg.ID), zap.Error(err))
		return ev, false
	}
	return ev, true
}

func (b *RedisStreamBus) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	return nil
}

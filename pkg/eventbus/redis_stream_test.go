package eventbus

import (
	"context"
	"learnhub_backend/internal/model"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamBus(t *testing.T) (*RedisStreamBus, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	b := NewRedisStreamBus(rdb, 1, 10)
	b.consumer = "node-a"
	b.block = 20 * time.Millisecond
	b.claimIdle = 10 * time.Millisecond
	b.claimEvery = 20 * time.Millisecond
	return b, rdb
}

func pendingCount(t *testing.T, rdb *redis.Client) int64 {
	t.Helper()
	p, err := rdb.XPending(context.Background(), defaultStream, defaultGroup).Result()
	require.NoError(t, err)
	return p.Count
}

func TestRedisStreamBusDeliversAndAcks(t *testing.T) {
	b, rdb := newStreamBus(t)
	c := &collector{}
	b.Subscribe(c.handle, model.EventCourseCompleted)
	b.Start(context.Background())
	defer b.Close()

	require.NoError(t, b.Publish(context.Background(), model.DomainEvent{Kind: model.EventCourseCompleted, StudentID: "s1"}))
	require.NoError(t, b.Publish(context.Background(), model.DomainEvent{Kind: model.EventModuleCompleted, StudentID: "s1"}))

	require.Eventually(t, func() bool { return len(c.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []model.EventKind{model.EventCourseCompleted}, c.kinds())
	require.Eventually(t, func() bool { return pendingCount(t, rdb) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisStreamBusReclaimsIdleEntries(t *testing.T) {
	b, rdb := newStreamBus(t)
	ctx := context.Background()

	// 另一个实例读取后宕机，消息一直未确认
	require.NoError(t, rdb.XGroupCreateMkStream(ctx, defaultStream, defaultGroup, "0").Err())
	require.NoError(t, b.Publish(ctx, model.DomainEvent{Kind: model.EventProgramCompleted, StudentID: "s2"}))
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    defaultGroup,
		Consumer: "node-dead-0",
		Streams:  []string{defaultStream, ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), pendingCount(t, rdb))

	c := &collector{}
	b.Subscribe(c.handle)
	b.Start(ctx)
	defer b.Close()

	require.Eventually(t, func() bool { return len(c.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []model.EventKind{model.EventProgramCompleted}, c.kinds())
	require.Eventually(t, func() bool { return pendingCount(t, rdb) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisStreamBusResumesOwnBacklog(t *testing.T) {
	b, rdb := newStreamBus(t)
	b.claimEvery = time.Hour
	ctx := context.Background()

	require.NoError(t, rdb.XGroupCreateMkStream(ctx, defaultStream, defaultGroup, "0").Err())
	require.NoError(t, b.Publish(ctx, model.DomainEvent{Kind: model.EventModuleCompleted, StudentID: "s3"}))
	_, err := rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    defaultGroup,
		Consumer: "node-a-0",
		Streams:  []string{defaultStream, ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)

	c := &collector{}
	b.Subscribe(c.handle)
	b.Start(ctx)
	defer b.Close()

	require.Eventually(t, func() bool { return len(c.kinds()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return pendingCount(t, rdb) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRedisStreamBusSkipsAckWhenCancelled(t *testing.T) {
	b, rdb := newStreamBus(t)
	b.claimEvery = time.Hour
	ctx, cancel := context.WithCancel(context.Background())

	delivered := make(chan struct{})
	b.Subscribe(func(ctx context.Context, ev model.DomainEvent) error {
		cancel()
		close(delivered)
		return nil
	})
	b.Start(ctx)

	require.NoError(t, b.Publish(context.Background(), model.DomainEvent{Kind: model.EventAssessmentGraded, StudentID: "s4"}))
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	require.NoError(t, b.Close())

	assert.Equal(t, int64(1), pendingCount(t, rdb), "取消后处理的消息不确认，等待重新投递")
}

func TestRedisStreamBusCapsStreamLength(t *testing.T) {
	b, rdb := newStreamBus(t)
	b.maxLen = 5
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, b.Publish(ctx, model.DomainEvent{Kind: model.EventModuleCompleted}))
	}
	n, err := rdb.XLen(ctx, defaultStream).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
}

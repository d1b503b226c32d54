package keylock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerSerializesSameKey(t *testing.T) {
	l := NewMemoryLocker(time.Second)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		holders int32
		maxSeen int32
		counter int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "progress:s:c")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&holders, 1)
			if n > atomic.LoadInt32(&maxSeen) {
				atomic.StoreInt32(&maxSeen, n)
			}
			counter++
			atomic.AddInt32(&holders, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen)
	assert.Equal(t, 20, counter)
	assert.Zero(t, l.Len())
}

func TestMemoryLockerIndependentKeys(t *testing.T) {
	l := NewMemoryLocker(50 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())

	unlockA()
	unlockB()
	assert.Zero(t, l.Len())
}

func TestMemoryLockerTimeout(t *testing.T) {
	l := NewMemoryLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrTimeout)

	unlock()
	// 重复调用 unlock 无副作用
	unlock()
	assert.Zero(t, l.Len())

	again, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	again()
}

func TestMemoryLockerHonoursContext(t *testing.T) {
	l := NewMemoryLocker(0)
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, l.Len())
}

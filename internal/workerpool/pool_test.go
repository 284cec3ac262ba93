package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(4)
	p.Start(context.Background())
	defer p.Stop()

	var count atomic.Int64
	for i := 0; i < 20; i++ {
		require.True(t, p.Submit(func(context.Context) { count.Add(1) }))
	}

	require.Eventually(t, func() bool { return count.Load() == 20 }, time.Second, 10*time.Millisecond)
}

func TestPool_StopDrainsRunningWorkers(t *testing.T) {
	p := New(2)
	p.Start(context.Background())

	var ran atomic.Bool
	require.True(t, p.Submit(func(context.Context) { ran.Store(true) }))

	p.Stop()
	assert.True(t, ran.Load())
	assert.False(t, p.Submit(func(context.Context) {}))
}

func TestPool_ClampsNonPositiveSize(t *testing.T) {
	p := New(0)
	assert.Equal(t, 1, p.size)
}

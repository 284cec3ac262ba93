package streamingtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AppendAndReadGroup(t *testing.T) {
	ctx := context.Background()
	f := New()

	id, err := f.Append(ctx, "wal:pre", []byte(`{"a":1}`))
	assert.NoError(t, err)
	assert.NotEmpty(t, id)

	records, err := f.ReadGroup(ctx, "wal:pre", "g1", "c1", 10, 0, true)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, id, records[0].StreamID)

	records, err = f.ReadGroup(ctx, "wal:pre", "g1", "c1", 10, 0, true)
	assert.NoError(t, err)
	assert.Empty(t, records)
}

func TestFake_AckRemovesFromPending(t *testing.T) {
	ctx := context.Background()
	f := New()

	id, _ := f.Append(ctx, "wal:pre", []byte(`{}`))
	records, _ := f.ReadGroup(ctx, "wal:pre", "g1", "c1", 10, 0, true)
	assert.Len(t, records, 1)

	pending, err := f.PendingList(ctx, "wal:pre", "g1")
	assert.NoError(t, err)
	assert.Len(t, pending, 1)

	assert.NoError(t, f.Ack(ctx, "wal:pre", "g1", id))

	pending, err = f.PendingList(ctx, "wal:pre", "g1")
	assert.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFake_ClaimIdleReassignsAfterThreshold(t *testing.T) {
	ctx := context.Background()
	f := New()

	_, _ = f.Append(ctx, "retry:messages", []byte(`{}`))
	_, _ = f.ReadGroup(ctx, "retry:messages", "g1", "c1", 10, 0, true)

	claimed, err := f.ClaimIdle(ctx, "retry:messages", "g1", "c2", time.Millisecond, 10)
	assert.NoError(t, err)
	assert.Empty(t, claimed)

	time.Sleep(5 * time.Millisecond)

	claimed, err = f.ClaimIdle(ctx, "retry:messages", "g1", "c2", time.Millisecond, 10)
	assert.NoError(t, err)
	assert.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempt)
}

func TestFake_MaxLenTrims(t *testing.T) {
	ctx := context.Background()
	f := New()
	f.SetMaxLen("events:messages", 2)

	for i := 0; i < 5; i++ {
		_, _ = f.Append(ctx, "events:messages", []byte(`{}`))
	}

	n, err := f.Length(ctx, "events:messages")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestFake_RangeByTime(t *testing.T) {
	ctx := context.Background()
	f := New()
	_, _ = f.Append(ctx, "events:messages", []byte(`{}`))

	records, err := f.RangeByTime(ctx, "events:messages", time.Time{}, time.Time{}, 10)
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

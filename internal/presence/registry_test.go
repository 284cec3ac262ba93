package presence

import (
	"context"
	"testing"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, members MembersFunc) (*Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "proc-1", time.Minute, logger.GetGlobalLogger(), members), mr
}

func TestRegister_MarksIdentityOnline(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "endpoint-1"))

	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestUnregister_LastEndpointMarksOffline(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "endpoint-1"))
	require.NoError(t, r.Unregister(ctx, "alice", "endpoint-1"))

	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestUnregister_OtherEndpointStaysOnline(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "endpoint-1"))
	require.NoError(t, r.Register(ctx, "alice", "endpoint-2"))
	require.NoError(t, r.Unregister(ctx, "alice", "endpoint-1"))

	endpoints, err := r.Endpoints(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"endpoint-2"}, endpoints)
}

func TestHeartbeat_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "endpoint-1"))
	mr.FastForward(59 * time.Second)
	require.NoError(t, r.Heartbeat(ctx, "alice"))
	mr.FastForward(59 * time.Second)

	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestListAll_ReturnsEveryRegisteredIdentity(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "e1"))
	require.NoError(t, r.Register(ctx, "bob", "e2"))

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, all)
}

func TestList_ScopedToConversationFiltersOffline(t *testing.T) {
	ctx := context.Background()
	members := func(context.Context, string) ([]string, error) {
		return []string{"alice", "bob", "carol"}, nil
	}
	r, _ := newTestRegistry(t, members)

	require.NoError(t, r.Register(ctx, "alice", "e1"))
	require.NoError(t, r.Register(ctx, "bob", "e2"))

	online, err := r.List(ctx, "conv-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, online)
}

func TestList_ScopedWithoutMembersFuncErrors(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRegistry(t, nil)

	_, err := r.List(ctx, "conv-1")
	assert.Error(t, err)
}

func TestIsOnline_UsesCacheWithinTTL(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "e1"))
	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	mr.Del("presence:alice")

	// Still within cacheTTL, so the stale-but-fresh-enough cached view wins.
	online, err = r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestSweep_DetectsExpiredIdentity(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRegistry(t, nil)

	require.NoError(t, r.Register(ctx, "alice", "e1"))
	mr.Del("presence:alice")

	offline, err := r.Sweep(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, offline)
}

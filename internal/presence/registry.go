// Package presence implements the Presence Registry (C4): the canonical
// identity -> {processId, socketEndpoint} mapping shared across every
// process, fronted by a per-process read-through cache.
package presence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/ports"
	cmap "github.com/orcaman/concurrent-map/v2"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// cacheTTL bounds how stale the local read-through cache may be before a
// List/IsOnline call falls back to the canonical Redis view (spec ≤5s).
const cacheTTL = 5 * time.Second

// endpointEntry is one {processId, socketEndpoint} pair registered for an
// identity, stored as a Redis hash field so concurrent processes can each
// own their own entries without clobbering one another.
type endpointEntry struct {
	ProcessID string
	Endpoint  string
}

func (e endpointEntry) field() string {
	return e.ProcessID + "\x00" + e.Endpoint
}

func parseField(field string) endpointEntry {
	parts := strings.SplitN(field, "\x00", 2)
	if len(parts) != 2 {
		return endpointEntry{Endpoint: field}
	}
	return endpointEntry{ProcessID: parts[0], Endpoint: parts[1]}
}

// cachedEntry is the local read-through cache's view of one identity.
type cachedEntry struct {
	endpoints []string
	online    bool
	cachedAt  time.Time
}

// MembersFunc resolves a conversation's participant identities, so List can
// scope its answer without the Presence Registry importing the Room
// Registry directly.
type MembersFunc func(ctx context.Context, conversationID string) ([]string, error)

// Registry is a Redis-backed Presence Registry with a process-local cache.
type Registry struct {
	rdb       goredis.UniversalClient
	processID string
	ttl       time.Duration
	local     cmap.ConcurrentMap[string, cachedEntry]
	logger    ports.Logger
	members   MembersFunc
}

// New constructs a Registry. ttl is the heartbeat expiry (spec default 60s).
// processID tags every endpoint this process registers, so restarts claim a
// fresh set. members resolves conversationId -> participant identities for
// List; pass nil if this process never scopes List by conversation.
func New(rdb goredis.UniversalClient, processID string, ttl time.Duration, logger ports.Logger, members MembersFunc) *Registry {
	return &Registry{rdb: rdb, processID: processID, ttl: ttl, local: cmap.New[cachedEntry](), logger: logger, members: members}
}

func identityKey(identity string) string {
	return keyPrefix + identity
}

// Register adds endpoint to identity's live endpoint set and resets its
// heartbeat.
func (r *Registry) Register(ctx context.Context, identity, endpoint string) error {
	e := endpointEntry{ProcessID: r.processID, Endpoint: endpoint}
	key := identityKey(identity)

	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, e.field(), time.Now().UnixMilli())
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence register %s: %w", identity, err)
	}
	r.local.Remove(identity)
	return nil
}

// Unregister removes endpoint from identity's live set.
func (r *Registry) Unregister(ctx context.Context, identity, endpoint string) error {
	e := endpointEntry{ProcessID: r.processID, Endpoint: endpoint}
	if err := r.rdb.HDel(ctx, identityKey(identity), e.field()).Err(); err != nil {
		return fmt.Errorf("presence unregister %s: %w", identity, err)
	}
	r.local.Remove(identity)
	return nil
}

// Heartbeat refreshes identity's TTL so its entries survive the sweeper.
func (r *Registry) Heartbeat(ctx context.Context, identity string) error {
	if err := r.rdb.Expire(ctx, identityKey(identity), r.ttl).Err(); err != nil {
		return fmt.Errorf("presence heartbeat %s: %w", identity, err)
	}
	r.local.Remove(identity)
	return nil
}

// List returns every online identity. When conversationID is non-empty, it
// is narrowed to that conversation's participants via the configured
// MembersFunc.
func (r *Registry) List(ctx context.Context, conversationID string) ([]string, error) {
	if conversationID == "" {
		return r.listAll(ctx)
	}
	if r.members == nil {
		return nil, fmt.Errorf("presence list: no membership resolver configured for conversation scoping")
	}
	participants, err := r.members(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("presence list %s: %w", conversationID, err)
	}

	var online []string
	for _, identity := range participants {
		isOnline, err := r.IsOnline(ctx, identity)
		if err != nil {
			return nil, err
		}
		if isOnline {
			online = append(online, identity)
		}
	}
	return online, nil
}

func (r *Registry) listAll(ctx context.Context) ([]string, error) {
	var identities []string
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		identities = append(identities, strings.TrimPrefix(iter.Val(), keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("presence list: %w", err)
	}
	return identities, nil
}

// IsOnline reports whether identity has any live endpoint, consulting the
// local cache first within cacheTTL before falling through to Redis.
func (r *Registry) IsOnline(ctx context.Context, identity string) (bool, error) {
	if c, ok := r.local.Get(identity); ok && time.Since(c.cachedAt) < cacheTTL {
		return c.online, nil
	}
	endpoints, err := r.fetchEndpoints(ctx, identity)
	if err != nil {
		return false, err
	}
	online := len(endpoints) > 0
	r.local.Set(identity, cachedEntry{endpoints: endpoints, online: online, cachedAt: time.Now()})
	return online, nil
}

// Endpoints returns every live socket endpoint for identity, consulting the
// local cache first within cacheTTL.
func (r *Registry) Endpoints(ctx context.Context, identity string) ([]string, error) {
	if c, ok := r.local.Get(identity); ok && time.Since(c.cachedAt) < cacheTTL {
		return c.endpoints, nil
	}
	endpoints, err := r.fetchEndpoints(ctx, identity)
	if err != nil {
		return nil, err
	}
	r.local.Set(identity, cachedEntry{endpoints: endpoints, online: len(endpoints) > 0, cachedAt: time.Now()})
	return endpoints, nil
}

func (r *Registry) fetchEndpoints(ctx context.Context, identity string) ([]string, error) {
	fields, err := r.rdb.HKeys(ctx, identityKey(identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("presence endpoints %s: %w", identity, err)
	}
	endpoints := make([]string, 0, len(fields))
	for _, f := range fields {
		endpoints = append(endpoints, parseField(f).Endpoint)
	}
	return endpoints, nil
}

// Sweep checks each identity in known and reports those whose hash key no
// longer exists (TTL elapsed with no heartbeat), evicting each from the
// local cache. The Sweeper passes each one to its onOffline callback; no
// USER_OFFLINE event is published.
func (r *Registry) Sweep(ctx context.Context, known []string) ([]string, error) {
	var offline []string
	for _, identity := range known {
		n, err := r.rdb.Exists(ctx, identityKey(identity)).Result()
		if err != nil {
			return nil, fmt.Errorf("presence sweep exists %s: %w", identity, err)
		}
		if n == 0 {
			offline = append(offline, identity)
			r.local.Remove(identity)
		}
	}
	return offline, nil
}

// Package streaming implements the Stream Manager (C1): a thin typed layer
// over Redis Streams providing append, consumer-group read/ack, idle-claim
// reclaim and time-range reads for the ten named streams the pipeline uses.
package streaming

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
	"github.com/agency-portal/chat-pipeline/internal/domain"
	"github.com/agency-portal/chat-pipeline/internal/ports"
	"github.com/agency-portal/chat-pipeline/pkg/jsonx"
	goredis "github.com/redis/go-redis/v9"
)

// MaxLens maps stream name to its configured MAXLEN trim target.
type MaxLens map[string]int64

// Client implements ports.StreamManager using go-redis v9's universal client.
type Client struct {
	rdb        goredis.UniversalClient
	logger     ports.Logger
	maxLens    MaxLens
	maxRetries int
	retryWait  time.Duration
}

// Options configures a Client.
type Options struct {
	Addresses    []string
	Username     string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxLens      MaxLens
	MaxRetries   int
	RetryWait    time.Duration
}

// NewClient constructs the Redis Streams-backed Stream Manager.
func NewClient(opts Options, logger ports.Logger) *Client {
	rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        opts.Addresses,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	retryWait := opts.RetryWait
	if retryWait <= 0 {
		retryWait = time.Second
	}

	return &Client{
		rdb:        rdb,
		logger:     logger.WithFields(ports.Field{Key: "component", Value: "stream-manager"}),
		maxLens:    opts.MaxLens,
		maxRetries: maxRetries,
		retryWait:  retryWait,
	}
}

// Append writes payload to stream with an approximate MAXLEN trim and returns
// the assigned record id.
func (c *Client) Append(ctx context.Context, stream string, payload []byte) (string, error) {
	var id string
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		args := &goredis.XAddArgs{
			Stream: stream,
			Values: map[string]any{"payload": payload},
		}
		if maxLen, ok := c.maxLens[stream]; ok && maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
		res, err := c.rdb.XAdd(ctx, args).Result()
		if err != nil {
			return err
		}
		id = res
		return nil
	})
	if err != nil {
		return "", apperrors.ErrTransientBroker
	}
	return id, nil
}

// ReadGroup creates the consumer group lazily and reads up to count new
// records for consumer, blocking up to block.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration, fromBeginning bool) ([]domain.StreamRecord, error) {
	var records []domain.StreamRecord

	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		streams, err := c.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    count,
			Block:    block,
			NoAck:    false,
		}).Result()

		if err != nil {
			if errors.Is(err, goredis.Nil) {
				records = nil
				return nil
			}
			if strings.Contains(err.Error(), "NOGROUP") {
				start := "$"
				if fromBeginning {
					start = "0"
				}
				if cgErr := c.rdb.XGroupCreateMkStream(ctx, stream, group, start).Err(); cgErr != nil && !strings.Contains(cgErr.Error(), "BUSYGROUP") {
					return cgErr
				}
				records = nil
				return nil
			}
			return err
		}

		records = convertXStreams(streams)
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrTransientBroker
	}
	return records, nil
}

// Ack acknowledges one record.
func (c *Client) Ack(ctx context.Context, stream, group, id string) error {
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		aerr := c.rdb.XAck(ctx, stream, group, id).Err()
		if aerr != nil && strings.Contains(aerr.Error(), "NOGROUP") {
			return nil
		}
		return aerr
	})
	if err != nil {
		return apperrors.ErrTransientBroker
	}
	return nil
}

// PendingList returns the group's outstanding records.
func (c *Client) PendingList(ctx context.Context, stream, group string) ([]ports.PendingRecord, error) {
	var out []ports.PendingRecord
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		pending, perr := c.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Start:  "-",
			End:    "+",
			Count:  1000,
		}).Result()
		if perr != nil {
			return perr
		}
		out = make([]ports.PendingRecord, len(pending))
		for i, p := range pending {
			out[i] = ports.PendingRecord{
				ID:       p.ID,
				Consumer: p.Consumer,
				Idle:     p.Idle,
				Attempts: p.RetryCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrTransientBroker
	}
	return out, nil
}

// ClaimIdle reassigns records idle for at least minIdle to consumer.
func (c *Client) ClaimIdle(ctx context.Context, stream, group, consumer string, minIdle time.Duration, count int64) ([]domain.StreamRecord, error) {
	var records []domain.StreamRecord
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		pending, perr := c.rdb.XPendingExt(ctx, &goredis.XPendingExtArgs{
			Stream: stream,
			Group:  group,
			Idle:   minIdle,
			Start:  "-",
			End:    "+",
			Count:  count,
		}).Result()
		if perr != nil {
			return perr
		}
		if len(pending) == 0 {
			records = nil
			return nil
		}

		ids := make([]string, len(pending))
		for i, p := range pending {
			ids[i] = p.ID
		}

		xmsgs, cerr := c.rdb.XClaim(ctx, &goredis.XClaimArgs{
			Stream:   stream,
			Group:    group,
			Consumer: consumer,
			MinIdle:  minIdle,
			Messages: ids,
		}).Result()
		if cerr != nil {
			return cerr
		}

		records = convertXStreams([]goredis.XStream{{Stream: stream, Messages: xmsgs}})
		for i := range records {
			for _, p := range pending {
				if p.ID == records[i].StreamID {
					records[i].Attempt = int(p.RetryCount)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrTransientBroker
	}
	return records, nil
}

// Length returns the current stream length.
func (c *Client) Length(ctx context.Context, stream string) (int64, error) {
	var n int64
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		v, lerr := c.rdb.XLen(ctx, stream).Result()
		if lerr != nil {
			return lerr
		}
		n = v
		return nil
	})
	if err != nil {
		return 0, apperrors.ErrTransientBroker
	}
	return n, nil
}

// TrimTo trims stream to approximately maxLen entries.
func (c *Client) TrimTo(ctx context.Context, stream string, maxLen int64) error {
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		return c.rdb.XTrimMaxLenApprox(ctx, stream, maxLen, 0).Err()
	})
	if err != nil {
		return apperrors.ErrTransientBroker
	}
	return nil
}

// RangeByTime reads entries between from and to inclusive, independent of any
// consumer group. A zero from or to leaves that end unbounded.
func (c *Client) RangeByTime(ctx context.Context, stream string, from, to time.Time, count int64) ([]domain.StreamRecord, error) {
	var records []domain.StreamRecord
	end := msToStreamID(to)
	if to.IsZero() {
		end = "+"
	}
	err := c.executeWithRetry(ctx, func(ctx context.Context) error {
		msgs, rerr := c.rdb.XRangeN(ctx, stream, msToStreamID(from), end, count).Result()
		if rerr != nil {
			if errors.Is(rerr, goredis.Nil) {
				records = nil
				return nil
			}
			return rerr
		}
		records = convertXStreams([]goredis.XStream{{Stream: stream, Messages: msgs}})
		return nil
	})
	if err != nil {
		return nil, apperrors.ErrTransientBroker
	}
	return records, nil
}

// Ping verifies broker connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperrors.ErrStoreUnavailable
	}
	return nil
}

// Close releases broker resources.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func msToStreamID(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func convertXStreams(streams []goredis.XStream) []domain.StreamRecord {
	records := make([]domain.StreamRecord, 0, 16)
	now := time.Now()
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			records = append(records, domain.StreamRecord{
				StreamID:    xmsg.ID,
				Payload:     buildPayload(xmsg.Values),
				FirstSeenAt: now,
			})
		}
	}
	return records
}

func buildPayload(values map[string]any) []byte {
	if raw, ok := values["payload"]; ok {
		switch v := raw.(type) {
		case []byte:
			if jsonx.IsLikelyJSONBytes(v) {
				return v
			}
			b, _ := jsonx.Marshal(string(v))
			return b
		case string:
			if jsonx.IsLikelyJSONString(v) {
				return []byte(v)
			}
			b, _ := jsonx.Marshal(v)
			return b
		default:
			b, _ := jsonx.Marshal(v)
			return b
		}
	}
	b, err := jsonx.Marshal(values)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func (c *Client) executeWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var attempt int
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if !isTransientRedisError(err) || attempt >= c.maxRetries {
			return err
		}
		attempt++
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryWait):
		}
	}
}

func isTransientRedisError(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	return strings.Contains(es, "LOADING") ||
		strings.Contains(es, "connect: connection refused") ||
		strings.Contains(es, "i/o timeout") ||
		strings.Contains(es, "EOF") ||
		strings.Contains(es, "read: connection reset")
}

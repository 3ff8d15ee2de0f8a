package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-release-gate/internal/adapter/observability"
	"github.com/fairyhunter13/ai-release-gate/internal/domain"
)

const (
	// DefaultBatchSize is the number of messages fetched per read.
	DefaultBatchSize = 10
	// DefaultBlockTimeout is how long a read blocks waiting for messages.
	DefaultBlockTimeout = 5 * time.Second
	// DefaultClaimInterval is how often stale pending messages are reclaimed.
	DefaultClaimInterval = 30 * time.Second
	// DefaultClaimMinIdle is the minimum idle time before a pending message
	// is taken over from its original consumer.
	DefaultClaimMinIdle = 60 * time.Second
	// DefaultErrorBackoff is the pause after a failed read before retrying.
	DefaultErrorBackoff = 5 * time.Second

	// claimBatch bounds how many pending entries one claim cycle inspects.
	claimBatch = 100
)

// Message is one stream entry handed to a handler. Deliveries counts how many
// times the entry has been handed out including this delivery: fresh reads are
// 1, reclaimed entries carry the pending counter. Workers use it to decide
// when a message has been retried enough.
type Message struct {
	ID         string
	Stream     string
	Data       []byte
	Deliveries int64
}

// HandlerFunc processes one message. Returning nil acknowledges it. Returning
// an error wrapping domain.ErrMalformedEvent acknowledges and drops it, since
// replaying an unparseable payload can never succeed. Any other error leaves
// the message pending for a later claim cycle.
type HandlerFunc func(ctx context.Context, m Message) error

// Options configures a Consumer. Zero fields fall back to defaults.
type Options struct {
	Stream        string
	Group         string
	Consumer      string
	BatchSize     int64
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	ErrorBackoff  time.Duration
}

// Consumer reads one stream on behalf of one consumer group and feeds each
// entry to a handler, acknowledging only after the handler succeeds.
type Consumer struct {
	rdb     *redis.Client
	opts    Options
	handler HandlerFunc

	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
}

// NewConsumer constructs a Consumer.
func NewConsumer(rdb *redis.Client, opts Options, handler HandlerFunc) (*Consumer, error) {
	if opts.Stream == "" || opts.Group == "" || opts.Consumer == "" {
		return nil, fmt.Errorf("op=redisstream.NewConsumer: stream, group and consumer are required: %w", domain.ErrInvalidArgument)
	}
	if handler == nil {
		return nil, fmt.Errorf("op=redisstream.NewConsumer: nil handler: %w", domain.ErrInvalidArgument)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BlockTimeout <= 0 {
		opts.BlockTimeout = DefaultBlockTimeout
	}
	if opts.ClaimInterval <= 0 {
		opts.ClaimInterval = DefaultClaimInterval
	}
	if opts.ClaimMinIdle <= 0 {
		opts.ClaimMinIdle = DefaultClaimMinIdle
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	return &Consumer{
		rdb:       rdb,
		opts:      opts,
		handler:   handler,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Start creates the consumer group if needed and launches the read and claim
// loops. It returns once both are running.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("op=redisstream.Start stream=%s group=%s: already running", c.opts.Stream, c.opts.Group)
	}
	c.running = true
	c.mu.Unlock()

	if err := c.ensureGroup(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go c.readLoop(ctx, &wg)
	go c.claimLoop(ctx, &wg)
	go func() {
		wg.Wait()
		close(c.stoppedCh)
	}()

	slog.Info("consumer started",
		slog.String("stream", c.opts.Stream),
		slog.String("group", c.opts.Group),
		slog.String("consumer", c.opts.Consumer))
	return nil
}

// Stop signals both loops and waits for them to drain, honoring ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	close(c.stopCh)
	select {
	case <-c.stoppedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureGroup registers the group starting from the beginning of the stream,
// so jobs published before the first start are still seen.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("op=redisstream.ensureGroup stream=%s group=%s: %w", c.opts.Stream, c.opts.Group, err)
	}
	return nil
}

func (c *Consumer) readLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.BatchSize,
			Block:    c.opts.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Warn("stream read failed",
				slog.String("stream", c.opts.Stream),
				slog.String("group", c.opts.Group),
				slog.Any("error", err))
			c.pause(c.opts.ErrorBackoff)
			continue
		}

		for _, str := range res {
			for _, xm := range str.Messages {
				c.dispatch(ctx, xm, 1)
			}
		}
	}
}

func (c *Consumer) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(c.opts.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimStale(ctx)
		}
	}
}

// claimStale takes over messages another consumer read but never acknowledged.
func (c *Consumer) claimStale(ctx context.Context) {
	pending, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.opts.Stream,
		Group:  c.opts.Group,
		Start:  "-",
		End:    "+",
		Count:  claimBatch,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			slog.Warn("pending lookup failed",
				slog.String("stream", c.opts.Stream),
				slog.String("group", c.opts.Group),
				slog.Any("error", err))
		}
		return
	}

	var ids []string
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		if p.Idle < c.opts.ClaimMinIdle {
			continue
		}
		ids = append(ids, p.ID)
		// XCLAIM bumps the pending counter, so this delivery is one more
		// than what XPENDING reported.
		deliveries[p.ID] = p.RetryCount + 1
	}
	if len(ids) == 0 {
		return
	}

	claimed, err := c.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.opts.Stream,
		Group:    c.opts.Group,
		Consumer: c.opts.Consumer,
		MinIdle:  c.opts.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("claim failed",
				slog.String("stream", c.opts.Stream),
				slog.String("group", c.opts.Group),
				slog.Any("error", err))
		}
		return
	}

	for _, xm := range claimed {
		observability.ClaimMessage(c.opts.Stream, c.opts.Group)
		slog.Info("reclaimed stale message",
			slog.String("stream", c.opts.Stream),
			slog.String("group", c.opts.Group),
			slog.String("message_id", xm.ID),
			slog.Int64("deliveries", deliveries[xm.ID]))
		c.dispatch(ctx, xm, deliveries[xm.ID])
	}
}

func (c *Consumer) dispatch(ctx context.Context, xm redis.XMessage, deliveries int64) {
	data, ok := payloadBytes(xm)
	if !ok {
		slog.Warn("message missing data field; dropping",
			slog.String("stream", c.opts.Stream),
			slog.String("message_id", xm.ID))
		c.ack(ctx, xm.ID)
		return
	}

	m := Message{ID: xm.ID, Stream: c.opts.Stream, Data: data, Deliveries: deliveries}
	if err := c.handler(ctx, m); err != nil {
		if errors.Is(err, domain.ErrMalformedEvent) {
			slog.Warn("dropping malformed message",
				slog.String("stream", c.opts.Stream),
				slog.String("message_id", xm.ID),
				slog.Any("error", err))
			c.ack(ctx, xm.ID)
			return
		}
		observability.HandlerError(c.opts.Stream, c.opts.Group)
		slog.Warn("handler failed; message left pending",
			slog.String("stream", c.opts.Stream),
			slog.String("group", c.opts.Group),
			slog.String("message_id", xm.ID),
			slog.Int64("deliveries", deliveries),
			slog.Any("error", err))
		return
	}

	c.ack(ctx, xm.ID)
	observability.ConsumeMessage(c.opts.Stream, c.opts.Group)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, c.opts.Stream, c.opts.Group, id).Err(); err != nil && ctx.Err() == nil {
		slog.Warn("ack failed",
			slog.String("stream", c.opts.Stream),
			slog.String("message_id", id),
			slog.Any("error", err))
	}
}

// pause sleeps for d unless the consumer is stopped first.
func (c *Consumer) pause(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.stopCh:
	case <-t.C:
	}
}

func payloadBytes(xm redis.XMessage) ([]byte, bool) {
	v, ok := xm.Values[dataField]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case string:
		return []byte(t), true
	case []byte:
		return t, true
	default:
		return nil, false
	}
}

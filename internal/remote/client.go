package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holla2040/loxr/internal/protocol"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoWorkers is returned when no worker has announced itself on the
	// queue within PresenceTTL.
	ErrNoWorkers = errors.New("no worker is available")
	// ErrTimeout is returned when no result arrives in time.
	ErrTimeout = errors.New("timed out waiting for result")
)

// Client submits programs to remote workers and waits for their results.
type Client struct {
	rdb           *redis.Client
	source        protocol.Source
	queue         string
	resultsPrefix string
}

// NewClient creates a Client that pushes jobs onto queue and receives on
// resultsPrefix + correlation ID.
func NewClient(rdb *redis.Client, source protocol.Source, queue, resultsPrefix string) *Client {
	return &Client{rdb: rdb, source: source, queue: queue, resultsPrefix: resultsPrefix}
}

// Workers reports how many workers on the queue are currently available.
func (c *Client) Workers(ctx context.Context) (int64, error) {
	key := PresenceKeyFor(c.queue)
	n, err := c.rdb.ZCount(ctx, key, liveCutoff(time.Now()), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("ZCOUNT %s: %w", key, err)
	}
	return n, nil
}

// Submit runs source on a worker and returns its report. timeout bounds both
// the remote execution and the wait; zero uses 5 seconds. A job nobody
// claimed before the wait ends is taken back off the queue.
func (c *Client) Submit(ctx context.Context, name, source string, timeout time.Duration) (*result.RunReport, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// 1. Build protocol message.
	msg, err := protocol.NewRunRequest(c.source, "", protocol.RunRequestPayload{
		Name:      name,
		Source:    source,
		TimeoutMs: int(timeout.Milliseconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("build run request: %w", err)
	}
	correlationID := msg.Envelope.CorrelationID
	replyTo := c.resultsPrefix + correlationID
	msg.Envelope.ReplyTo = replyTo

	data, err := protocol.Encode(msg)
	if err != nil {
		return nil, err
	}

	// 2. Subscribe to the reply channel BEFORE queueing the request.
	sub := c.rdb.Subscribe(ctx, replyTo)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("SUBSCRIBE %s: %w", replyTo, err)
	}
	ch := sub.Channel()

	// 3. Refuse when no worker is around to take the job.
	live, err := c.Workers(ctx)
	if err != nil {
		return nil, err
	}
	if live == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoWorkers, c.queue)
	}

	// 4. Queue the job.
	if err := c.rdb.LPush(ctx, c.queue, string(data)).Err(); err != nil {
		return nil, fmt.Errorf("LPUSH %s: %w", c.queue, err)
	}
	withdraw := func() {
		c.rdb.LRem(context.WithoutCancel(ctx), c.queue, 1, string(data))
	}

	// 5. Wait for the correlated result. The worker's own timeout fires
	// first; the extra second covers transport.
	timer := time.NewTimer(timeout + time.Second)
	defer timer.Stop()

	for {
		select {
		case subMsg, ok := <-ch:
			if !ok {
				return nil, fmt.Errorf("subscription channel closed")
			}

			resp, parseErr := protocol.Parse([]byte(subMsg.Payload))
			if parseErr != nil {
				continue
			}
			if resp.Envelope.CorrelationID != correlationID || resp.Envelope.Type != protocol.TypeRunResult {
				continue
			}
			return protocol.ParseRunResult(resp)

		case <-timer.C:
			withdraw()
			return nil, fmt.Errorf("%w on %s (correlation_id=%s)", ErrTimeout, replyTo, correlationID)

		case <-ctx.Done():
			withdraw()
			return nil, ctx.Err()
		}
	}
}

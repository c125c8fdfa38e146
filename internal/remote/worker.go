// Package remote runs Lox programs on workers reached through Redis. A
// Client pushes run.request messages onto the jobs queue, a Redis list that
// hands each job to exactly one Worker. The Worker publishes the run.result
// on the reply channel named in the request. Workers announce themselves in
// a sorted set next to the queue so a Client can tell whether anyone is
// there to take a job.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/holla2040/loxr/internal/protocol"
	"github.com/holla2040/loxr/internal/script/result"
	"github.com/holla2040/loxr/internal/script/runner"
	"github.com/redis/go-redis/v9"
)

// PresenceTTL is how long a worker counts as available after it last
// refreshed its presence entry. Workers refresh every third of it.
const PresenceTTL = 15 * time.Second

// Recorder persists finished runs. *store.Store satisfies it.
type Recorder interface {
	RecordRun(r *result.RunReport) error
}

// Worker consumes run requests from a Redis list.
type Worker struct {
	rdb       *redis.Client
	queue     string
	source    protocol.Source
	timeout   time.Duration
	logger    *log.Logger
	recorder  Recorder
	onResult  func(*result.RunReport)
	heartbeat time.Duration
	poll      time.Duration
	startedAt time.Time

	mu        sync.Mutex
	processed int
	failed    int
	lastErr   string
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithRunTimeout bounds each job that does not carry its own timeout.
func WithRunTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) { w.timeout = d }
}

// WithWorkerLogger sets the worker's logger.
func WithWorkerLogger(l *log.Logger) WorkerOption {
	return func(w *Worker) { w.logger = l }
}

// WithRecorder stores every finished run.
func WithRecorder(r Recorder) WorkerOption {
	return func(w *Worker) { w.recorder = r }
}

// WithOnResult is called after each job finishes.
func WithOnResult(fn func(*result.RunReport)) WorkerOption {
	return func(w *Worker) { w.onResult = fn }
}

// WithHeartbeat publishes a worker.heartbeat every d on the queue's
// ":heartbeat" channel. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) WorkerOption {
	return func(w *Worker) { w.heartbeat = d }
}

// NewWorker creates a Worker taking jobs from queue.
func NewWorker(rdb *redis.Client, queue string, source protocol.Source, opts ...WorkerOption) *Worker {
	w := &Worker{
		rdb:       rdb,
		queue:     queue,
		source:    source,
		timeout:   5 * time.Second,
		logger:    log.New(io.Discard, "", 0),
		poll:      time.Second,
		startedAt: time.Now(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// HeartbeatChannel returns the channel heartbeats are published on.
func (w *Worker) HeartbeatChannel() string {
	return HeartbeatChannelFor(w.queue)
}

// HeartbeatChannelFor names the heartbeat channel of workers on queue.
func HeartbeatChannelFor(queue string) string {
	return queue + ":heartbeat"
}

// PresenceKeyFor names the sorted set where workers on queue announce
// themselves, scored by the Unix time of their last refresh.
func PresenceKeyFor(queue string) string {
	return queue + ":workers"
}

// liveCutoff is the lowest presence score that still counts as available.
func liveCutoff(now time.Time) string {
	return strconv.FormatInt(now.Add(-PresenceTTL).Unix(), 10)
}

// Run takes jobs off the queue until ctx is cancelled. Jobs run one at a
// time in the order they were submitted; each job goes to exactly one
// worker. The worker's presence entry is removed when Run returns.
func (w *Worker) Run(ctx context.Context) error {
	presence := PresenceKeyFor(w.queue)
	if err := w.announce(ctx); err != nil {
		return fmt.Errorf("ZADD %s: %w", presence, err)
	}
	defer w.rdb.ZRem(context.WithoutCancel(ctx), presence, w.source.Instance)
	w.logger.Printf("waiting for jobs on %s", w.queue)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.keepAlive(ctx)
	}()
	defer wg.Wait()

	for {
		popped, err := w.rdb.BRPop(ctx, w.poll, w.queue).Result()
		switch {
		case err == nil:
			// A claimed job is finished even if shutdown began meanwhile;
			// its own timeout still bounds it.
			w.process(context.WithoutCancel(ctx), []byte(popped[1]))
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
		default:
			w.logger.Printf("BRPOP %s: %v", w.queue, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.poll):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// process runs one popped job and publishes its result.
func (w *Worker) process(ctx context.Context, data []byte) {
	reply, replyTo, err := w.handle(ctx, data)
	if err != nil {
		w.logger.Printf("rejected message: %v", err)
		return
	}
	encoded, err := protocol.Encode(reply)
	if err != nil {
		w.logger.Printf("encode result: %v", err)
		return
	}
	if err := w.rdb.Publish(ctx, replyTo, string(encoded)).Err(); err != nil {
		w.logger.Printf("PUBLISH %s: %v", replyTo, err)
	}
}

// announce refreshes this worker's presence entry and drops entries that
// have gone stale.
func (w *Worker) announce(ctx context.Context) error {
	now := time.Now()
	key := PresenceKeyFor(w.queue)
	_, err := w.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: w.source.Instance})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+liveCutoff(now))
		return nil
	})
	return err
}

// keepAlive refreshes presence and publishes heartbeats until ctx is done.
func (w *Worker) keepAlive(ctx context.Context) {
	refresh := time.NewTicker(PresenceTTL / 3)
	defer refresh.Stop()

	var beat <-chan time.Time
	if w.heartbeat > 0 {
		ticker := time.NewTicker(w.heartbeat)
		defer ticker.Stop()
		beat = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := w.announce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Printf("presence: %v", err)
			}
		case <-beat:
			if err := w.publishHeartbeat(ctx); err != nil && ctx.Err() == nil {
				w.logger.Printf("heartbeat: %v", err)
			}
		}
	}
}

// Handle validates one raw run.request, runs the program, and returns the
// run.result to send back. It does not touch Redis.
func (w *Worker) Handle(ctx context.Context, data []byte) (*protocol.Message, error) {
	reply, _, err := w.handle(ctx, data)
	return reply, err
}

func (w *Worker) handle(ctx context.Context, data []byte) (*protocol.Message, string, error) {
	msg, err := protocol.Parse(data)
	if err != nil {
		return nil, "", err
	}
	if err := protocol.Validate(msg); err != nil {
		return nil, "", err
	}
	if msg.Envelope.Type != protocol.TypeRunRequest {
		return nil, "", fmt.Errorf("unexpected message type %q", msg.Envelope.Type)
	}
	req, err := protocol.ParseRunRequest(msg)
	if err != nil {
		return nil, "", err
	}

	timeout := w.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	w.logger.Printf("job %s: running %s (timeout %s)", msg.Envelope.CorrelationID, req.Name, timeout)

	report := runner.Run(ctx, req.Name, req.Source, runner.WithTimeout(timeout), runner.WithLogger(w.logger))
	w.logger.Printf("job %s: %s exit=%d in %dms", msg.Envelope.CorrelationID, report.Status, report.ExitCode, report.DurationMs)

	w.mu.Lock()
	w.processed++
	if !report.OK() {
		w.failed++
		if len(report.Diagnostics) > 0 {
			w.lastErr = report.Diagnostics[0].Message
		}
	}
	w.mu.Unlock()

	if w.recorder != nil {
		if err := w.recorder.RecordRun(report); err != nil {
			w.logger.Printf("record run %s: %v", report.RunID, err)
		}
	}
	if w.onResult != nil {
		w.onResult(report)
	}

	reply, err := protocol.NewRunResult(w.source, msg, report)
	return reply, msg.Envelope.ReplyTo, err
}

// Heartbeat returns the worker's current counters.
func (w *Worker) Heartbeat() protocol.HeartbeatPayload {
	w.mu.Lock()
	defer w.mu.Unlock()

	hb := protocol.HeartbeatPayload{
		Status:        "running",
		UptimeSeconds: int64(time.Since(w.startedAt).Seconds()),
		JobsProcessed: w.processed,
		JobsFailed:    w.failed,
	}
	if w.lastErr != "" {
		lastErr := w.lastErr
		hb.LastError = &lastErr
	}
	return hb
}

func (w *Worker) publishHeartbeat(ctx context.Context) error {
	msg, err := protocol.NewMessage(w.source, protocol.TypeWorkerHeartbeat, w.Heartbeat())
	if err != nil {
		return err
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return w.rdb.Publish(ctx, w.HeartbeatChannel(), string(data)).Err()
}

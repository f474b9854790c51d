package darwin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"tidbyt.dev/darwin/parse"
	"tidbyt.dev/darwin/storage"
	"tidbyt.dev/darwin/transport"
)

const (
	DefaultTopic            = "prod-1010-Darwin-Train-Information-Push-Port-IIII1_1-JSON"
	DefaultSnapshotInterval = 10 * time.Second
	DefaultPruneInterval    = 300 * time.Second
	DefaultPollTimeout      = 1 * time.Second
	DefaultReconnectDelay   = 15 * time.Second
)

type Phase int32

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConsuming
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConsuming:
		return "consuming"
	}
	return "unknown"
}

// Consumer feeds a State from a Push Port subscription.
//
// Run is the only writer of the state. Snapshots and pruning happen
// in between polls, so PollTimeout bounds how late they can run.
type Consumer struct {
	Topic            string
	SnapshotInterval time.Duration
	PruneInterval    time.Duration
	PruneAge         time.Duration
	PollTimeout      time.Duration
	ReconnectDelay   time.Duration
	Logger           *slog.Logger
	TimeNow          func() time.Time

	state      *State
	decoder    *parse.Decoder
	subscriber transport.Subscriber
	storage    storage.Storage

	phase        atomic.Int32
	lastSnapshot time.Time
	lastPrune    time.Time
}

// Creates a consumer applying messages from subscriber to state.
// Snapshots are written to s, which may be nil to disable them.
func NewConsumer(
	state *State,
	decoder *parse.Decoder,
	subscriber transport.Subscriber,
	s storage.Storage,
) *Consumer {
	return &Consumer{
		Topic:            DefaultTopic,
		SnapshotInterval: DefaultSnapshotInterval,
		PruneInterval:    DefaultPruneInterval,
		PruneAge:         DefaultPruneAge,
		PollTimeout:      DefaultPollTimeout,
		ReconnectDelay:   DefaultReconnectDelay,
		TimeNow:          time.Now,

		state:      state,
		decoder:    decoder,
		subscriber: subscriber,
		storage:    s,
	}
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Consumer) now() time.Time {
	if c.TimeNow != nil {
		return c.TimeNow()
	}
	return time.Now()
}

func (c *Consumer) Phase() Phase {
	return Phase(c.phase.Load())
}

func (c *Consumer) setPhase(p Phase) {
	c.phase.Store(int32(p))
}

// Loads the most recent snapshot into the state. Returns
// storage.ErrNoSnapshot if there is none. On error the state is
// left as is.
func (c *Consumer) Restore() error {
	if c.storage == nil {
		return storage.ErrNoSnapshot
	}

	snapshot, err := c.storage.ReadSnapshot()
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	err = c.state.Restore(snapshot.Data)
	if err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	stats := c.state.Stats()
	c.logger().Info(
		"restored snapshot",
		"written_at", snapshot.WrittenAt,
		"services", stats.ActiveServices,
		"stations", stats.IndexedStations,
	)

	return nil
}

// Consumes the feed until ctx is cancelled. Connection failures are
// retried after ReconnectDelay, indefinitely.
//
// A snapshot is restored before subscribing, and a final snapshot
// is written on the way out.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.Restore()
	if errors.Is(err, storage.ErrNoSnapshot) {
		c.logger().Info("no snapshot found, starting empty")
	} else if err != nil {
		c.logger().Warn("ignoring unusable snapshot", "error", err)
	}

	c.state.MarkStarted()

	b := backoff.WithContext(backoff.NewConstantBackOff(c.ReconnectDelay), ctx)
	err = backoff.RetryNotify(
		func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return c.session(ctx)
		},
		b,
		func(err error, delay time.Duration) {
			c.logger().Error("feed connection failed", "error", err, "retry_in", delay)
		},
	)

	c.setPhase(PhaseDisconnected)
	c.state.SetConnected(false)
	c.snapshot()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// One connection to the feed. Returns when the connection is lost
// or ctx is cancelled.
func (c *Consumer) session(ctx context.Context) error {
	c.setPhase(PhaseConnecting)
	c.logger().Info("subscribing", "topic", c.Topic)

	sub, err := c.subscriber.Subscribe(ctx, c.Topic)
	if err != nil {
		c.setPhase(PhaseDisconnected)
		return fmt.Errorf("subscribing to %s: %w", c.Topic, err)
	}
	defer sub.Close()

	c.setPhase(PhaseConsuming)
	c.state.SetConnected(true)
	c.logger().Info("consuming", "topic", c.Topic)

	err = c.consume(ctx, sub)

	c.setPhase(PhaseDisconnected)
	c.state.SetConnected(false)

	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}
	return err
}

func (c *Consumer) consume(ctx context.Context, sub transport.Subscription) error {
	for ctx.Err() == nil {
		msg, err := sub.Poll(ctx, c.PollTimeout)
		switch {
		case err == nil && msg != nil:
			c.handle(msg)
		case err == nil:
			// Timed out. Nothing to do.
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, transport.ErrDisconnected):
			return fmt.Errorf("polling: %w", err)
		default:
			c.logger().Warn("poll failed", "error", err)
		}

		c.housekeeping()
	}

	return ctx.Err()
}

// Applies a single raw feed message.
func (c *Consumer) handle(msg []byte) {
	c.state.CountMessage()
	c.state.Apply(c.decoder.Decode(msg))
}

func (c *Consumer) housekeeping() {
	now := c.now()

	if now.Sub(c.lastSnapshot) >= c.SnapshotInterval {
		c.lastSnapshot = now
		c.snapshot()
	}

	if now.Sub(c.lastPrune) >= c.PruneInterval {
		c.lastPrune = now
		removed := c.state.Prune(c.PruneAge)
		if removed > 0 {
			c.logger().Debug("pruned stale services", "removed", removed)
		}
	}
}

// Writes a snapshot. Failures are logged and retried on the next
// cycle.
func (c *Consumer) snapshot() {
	if c.storage == nil {
		return
	}

	data, err := c.state.Snapshot()
	if err != nil {
		c.logger().Warn("snapshot failed", "error", err)
		return
	}

	err = c.storage.WriteSnapshot(&storage.Snapshot{
		Data:      data,
		WrittenAt: c.now().UTC(),
	})
	if err != nil {
		c.logger().Warn("writing snapshot failed", "error", err)
		return
	}

	c.logger().Debug("wrote snapshot", "bytes", len(data))
}

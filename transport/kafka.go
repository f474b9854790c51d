package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultSessionTimeout = 45 * time.Second
	DefaultCommitInterval = 5 * time.Second
	DefaultMaxFetchErrors = 5
)

type KafkaConfig struct {
	Brokers  []string
	GroupID  string
	Username string
	Password string

	// Disables TLS and SASL, for local brokers.
	Insecure bool

	DialTimeout    time.Duration
	SessionTimeout time.Duration
	CommitInterval time.Duration

	// Consecutive reader errors, with no message read in between,
	// after which a poll timeout is reported as ErrDisconnected.
	MaxFetchErrors int
}

// Subscribes to Kafka topics as part of a consumer group. Connects
// over SASL_SSL with PLAIN credentials unless Insecure is set.
//
// The reader retries failed fetches internally and only reports
// them to its error logger. Subscriptions count those reports, and
// once MaxFetchErrors accumulate without a message getting through,
// Poll returns ErrDisconnected instead of an empty poll so that the
// consumer reconnects.
type Kafka struct {
	KafkaConfig
	Logger *slog.Logger
}

func NewKafka(cfg KafkaConfig) *Kafka {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.CommitInterval == 0 {
		cfg.CommitInterval = DefaultCommitInterval
	}
	if cfg.MaxFetchErrors == 0 {
		cfg.MaxFetchErrors = DefaultMaxFetchErrors
	}
	return &Kafka{KafkaConfig: cfg}
}

func (k *Kafka) logger() *slog.Logger {
	if k.Logger != nil {
		return k.Logger
	}
	return slog.Default()
}

func (k *Kafka) dialer() *kafka.Dialer {
	d := &kafka.Dialer{
		ClientID:  fmt.Sprintf("darwin-%s", uuid.NewString()),
		Timeout:   k.DialTimeout,
		DualStack: true,
	}
	if !k.Insecure {
		d.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		if k.Username != "" {
			d.SASLMechanism = plain.Mechanism{
				Username: k.Username,
				Password: k.Password,
			}
		}
	}
	return d
}

func (k *Kafka) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers configured")
	}

	dialer := k.dialer()

	// Readers connect lazily. Dial once up front so that bad
	// credentials or unreachable brokers surface here.
	conn, err := dialer.DialContext(ctx, "tcp", k.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", ErrDisconnected, k.Brokers[0], err)
	}
	conn.Close()

	logger := k.logger().With("topic", topic)
	sub := &kafkaSubscription{maxErrors: k.MaxFetchErrors}
	sub.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        k.Brokers,
		GroupID:        k.GroupID,
		Topic:          topic,
		Dialer:         dialer,
		StartOffset:    kafka.LastOffset,
		MaxWait:        time.Second,
		SessionTimeout: k.SessionTimeout,
		CommitInterval: k.CommitInterval,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Warn(fmt.Sprintf(msg, args...))
			sub.fetchFailed()
		}),
	})

	return sub, nil
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type kafkaSubscription struct {
	reader    messageReader
	maxErrors int
	failures  atomic.Int64
}

func (s *kafkaSubscription) fetchFailed() {
	s.failures.Add(1)
}

func (s *kafkaSubscription) unhealthy() bool {
	return s.maxErrors > 0 && s.failures.Load() >= int64(s.maxErrors)
}

func (s *kafkaSubscription) Poll(ctx context.Context, timeout time.Duration) ([]byte, error) {
	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := s.reader.ReadMessage(pollCtx)
	if err == nil {
		s.failures.Store(0)
		return msg.Value, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if s.unhealthy() {
			return nil, fmt.Errorf("%w: %d reader errors since last message", ErrDisconnected, s.failures.Load())
		}
		return nil, nil
	}

	return nil, classifyKafkaError(err)
}

func (s *kafkaSubscription) Close() error {
	return s.reader.Close()
}

// Wraps errors that require reconnecting in ErrDisconnected.
func classifyKafkaError(err error) error {
	var kerr kafka.Error
	if errors.As(err, &kerr) {
		if kerr.Temporary() {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && !netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}

	return err
}

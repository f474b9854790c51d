package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tidbyt.dev/darwin"
	"tidbyt.dev/darwin/parse"
	"tidbyt.dev/darwin/transport"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consumes the Push Port feed, keeping a snapshot up to date",
	Args:  cobra.NoArgs,
	RunE:  consume,
}

var insecure bool

func init() {
	consumeCmd.Flags().BoolVarP(&insecure, "insecure", "", false, "Connect without TLS or SASL (local brokers)")
	rootCmd.AddCommand(consumeCmd)
}

func consume(cmd *cobra.Command, args []string) error {
	if insecure {
		cfg.Kafka.Insecure = true
	}

	if !cfg.Kafka.Insecure && !cfg.Kafka.HasCredentials() {
		slog.Warn("kafka credentials missing, set DARWIN_KAFKA_KEY and DARWIN_KAFKA_SECRET")
		return nil
	}

	ref, err := loadReference()
	if err != nil {
		return err
	}

	s, err := openStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	feed := transport.NewKafka(transport.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers(),
		GroupID:  cfg.Kafka.Group,
		Username: cfg.Kafka.Key,
		Password: cfg.Kafka.Secret,
		Insecure: cfg.Kafka.Insecure,
	})

	state := newState()
	consumer := darwin.NewConsumer(state, parse.NewDecoder(ref), feed, s)
	consumer.Topic = cfg.Kafka.Topic
	consumer.SnapshotInterval = cfg.Snapshot.Interval
	consumer.PruneInterval = cfg.Consumer.PruneInterval
	consumer.PruneAge = cfg.Consumer.PruneAge
	consumer.PollTimeout = cfg.Consumer.PollTimeout
	consumer.ReconnectDelay = cfg.Consumer.ReconnectDelay

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return consumer.Run(ctx)
}

package main

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tidbyt.dev/darwin/parse"
	"tidbyt.dev/darwin/storage"
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Applies recorded feed messages (one per line) to the latest snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  replay,
}

var fresh bool

func init() {
	replayCmd.Flags().BoolVarP(&fresh, "fresh", "", false, "Ignore the existing snapshot")
	rootCmd.AddCommand(replayCmd)
}

func replay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ref, err := loadReference()
	if err != nil {
		return err
	}

	s, err := openStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	state := newState()
	if !fresh {
		state, err = loadSnapshot(s)
		if errors.Is(err, storage.ErrNoSnapshot) {
			slog.Info("no snapshot found, starting empty")
			state = newState()
		} else if err != nil {
			return err
		}
	}

	decoder := parse.NewDecoder(ref)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	n := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		state.CountMessage()
		state.Apply(decoder.Decode(line))
		n++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	data, err := state.Snapshot()
	if err != nil {
		return err
	}
	err = s.WriteSnapshot(&storage.Snapshot{Data: data, WrittenAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	stats := state.Stats()
	slog.Info(
		"replayed messages",
		"messages", n,
		"services", stats.ActiveServices,
		"stations", stats.IndexedStations,
	)

	return nil
}

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"tidbyt.dev/darwin"
	"tidbyt.dev/darwin/config"
	"tidbyt.dev/darwin/reference"
	"tidbyt.dev/darwin/storage"
)

var rootCmd = &cobra.Command{
	Use:               "darwin",
	Short:             "Darwin Push Port tool",
	Long:              "Consumes the National Rail Darwin Push Port feed and serves departure boards from it",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath    string
	logLevel      string
	referencePath string

	cfg *config.Config
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&referencePath, "reference", "r", "", "Station reference data (JSON or CSV)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if referencePath != "" {
		cfg.Reference = referencePath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	})))

	return nil
}

func loadReference() (*reference.Table, error) {
	if cfg.Reference == "" {
		slog.Warn("no reference data configured, stations will be shown by code")
		return reference.NewTable(nil), nil
	}

	table, err := reference.Load(cfg.Reference)
	if err != nil {
		return nil, fmt.Errorf("loading reference data: %w", err)
	}
	slog.Info("loaded reference data", "path", cfg.Reference, "locations", table.Len())

	return table, nil
}

func openStorage() (storage.Storage, error) {
	switch cfg.Snapshot.Backend {
	case "file":
		return storage.NewFileStorage(cfg.Snapshot.Path)
	case "sqlite":
		return storage.NewSQLiteStorage(storage.SQLiteConfig{
			OnDisk:    true,
			Directory: cfg.Snapshot.Directory,
		})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Snapshot.PostgresURL, false)
	case "memory":
		return storage.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
}

func newState() *darwin.State {
	state := darwin.NewState()
	state.BackfillDeparted = cfg.Board.BackfillDeparted
	state.Logger = slog.Default()
	return state
}

func boardOptions() darwin.BoardOptions {
	return darwin.BoardOptions{
		CacheTTL: cfg.Board.CacheTTL,
	}
}

func newBoard(state *darwin.State, names darwin.Namer) *darwin.Board {
	return darwin.NewBoard(state, names, boardOptions())
}

// State as of the most recent snapshot.
func loadSnapshot(s storage.Storage) (*darwin.State, error) {
	state := newState()

	snapshot, err := s.ReadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := state.Restore(snapshot.Data); err != nil {
		return nil, err
	}
	slog.Debug("loaded snapshot", "written_at", snapshot.WrittenAt)

	return state, nil
}

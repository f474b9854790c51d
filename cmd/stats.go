package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints feed statistics from the latest snapshot",
	Args:  cobra.NoArgs,
	RunE:  stats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func stats(cmd *cobra.Command, args []string) error {
	s, err := openStorage()
	if err != nil {
		return err
	}
	defer s.Close()

	state, err := loadSnapshot(s)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state.Stats())
}

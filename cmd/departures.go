package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var departuresCmd = &cobra.Command{
	Use:   "departures <from> [to]",
	Short: "Shows the departure board for a station, as of the latest snapshot",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  departures,
}

var (
	count      int
	jsonOutput bool
)

func init() {
	departuresCmd.Flags().IntVarP(&count, "count", "n", 0, "Number of departures (defaults to config)")
	departuresCmd.Flags().BoolVarP(&jsonOutput, "json", "", false, "Output JSON")
	rootCmd.AddCommand(departuresCmd)
}

func departures(cmd *cobra.Command, args []string) error {
	from := args[0]
	to := ""
	if len(args) == 2 {
		to = args[1]
	}
	if count <= 0 {
		count = cfg.Board.Count
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

	state, err := loadSnapshot(s)
	if err != nil {
		return err
	}
	state.MarkStarted()

	board, err := newBoard(state, ref).Departures(from, to, count)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(board)
	}

	fmt.Printf("%s to %s\n", board.Origin, board.Destination)
	for _, msg := range board.Messages {
		fmt.Printf("! %s\n", msg.Text)
	}
	for _, dep := range board.Departures {
		fmt.Printf(
			"%s %-4s %-30s %-3s %s\n",
			dep.Scheduled,
			dep.TrainID,
			dep.Destination,
			dep.Platform,
			dep.Status,
		)
	}

	return nil
}

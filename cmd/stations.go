package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var stationsCmd = &cobra.Command{
	Use:   "stations [query] [limit]",
	Short: "Lists stations in the reference data, optionally matching a query",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  stations,
}

func init() {
	rootCmd.AddCommand(stationsCmd)
}

func stations(cmd *cobra.Command, args []string) error {
	query := ""
	limit := 0
	var err error

	if len(args) >= 1 {
		query = strings.ToLower(args[0])
	}
	if len(args) == 2 {
		limit, err = strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		if limit < 0 {
			return fmt.Errorf("limit must be >= 0")
		}
	}

	ref, err := loadReference()
	if err != nil {
		return err
	}

	n := 0
	for _, station := range ref.Stations() {
		if query != "" &&
			!strings.Contains(strings.ToLower(station.Name), query) &&
			strings.ToLower(string(station.CRS)) != query {
			continue
		}

		fmt.Printf("%s: %s\n", station.CRS, station.Name)

		n++
		if limit > 0 && n == limit {
			break
		}
	}

	return nil
}

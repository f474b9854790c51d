package darwin

import (
	"testing"
	"time"

	"github.com/bluele/gcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/darwin/model"
	"tidbyt.dev/darwin/testutil"
)

func TestBoardNotRunning(t *testing.T) {
	s := testState(newClock())
	s.ApplySchedule(schedule(
		"X1", "1A01",
		origin("PADTON", "PAD", "10:00"),
		dest("YORK", "YRK", "12:30"),
	))

	b := NewBoard(s, testutil.Reference(), BoardOptions{})

	_, err := b.State()
	assert.ErrorIs(t, err, ErrNotRunning)
	_, err = b.Departures("PAD", "", 8)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = NewBoard(nil, nil, BoardOptions{}).State()
	assert.ErrorIs(t, err, ErrNotRunning)

	var nilBoard *Board
	_, err = nilBoard.State()
	assert.ErrorIs(t, err, ErrNotRunning)

	s.MarkStarted()
	state, err := b.State()
	require.NoError(t, err)
	assert.Same(t, s, state)
}

func TestBoardNoActiveServices(t *testing.T) {
	s := testState(newClock())
	s.MarkStarted()

	b := NewBoard(s, testutil.Reference(), BoardOptions{})
	_, err := b.Departures("PAD", "", 8)
	assert.ErrorIs(t, err, ErrNoActiveServices)
}

func TestBoardDepartures(t *testing.T) {
	s := testState(newClock())
	s.MarkStarted()
	s.ApplySchedule(schedule(
		"X1", "1A01",
		origin("PADTON", "PAD", "10:00"),
		dest("YORK", "YRK", "12:30"),
	))
	s.ApplySchedule(schedule(
		"X2", "1A02",
		origin("PADTON", "PAD", "10:15"),
		dest("RDNGSTN", "RDG", "10:45"),
	))
	s.ApplyStationMessage(model.StationMessage{
		ID:       "5",
		Stations: []model.CRS{"PAD"},
		Text:     "Step free access unavailable",
	})

	b := NewBoard(s, testutil.Reference(), BoardOptions{})

	board, err := b.Departures("pad", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "London Paddington", board.Origin)
	assert.Equal(t, AllDestinations, board.Destination)
	require.Equal(t, 2, len(board.Departures))
	assert.Equal(t, model.RID("X1"), board.Departures[0].RID)
	assert.Equal(t, model.RID("X2"), board.Departures[1].RID)
	require.Equal(t, 1, len(board.Messages))
	assert.Equal(t, "Step free access unavailable", board.Messages[0].Text)

	board, err = b.Departures("PAD", "yrk", 8)
	require.NoError(t, err)
	assert.Equal(t, "York", board.Destination)
	require.Equal(t, 1, len(board.Departures))
	assert.Equal(t, model.RID("X1"), board.Departures[0].RID)

	// Unknown stations use the code as name
	board, err = b.Departures("ZZZ", "", 8)
	require.NoError(t, err)
	assert.Equal(t, "ZZZ", board.Origin)
	assert.Equal(t, []model.Departure{}, board.Departures)

	board, err = NewBoard(s, nil, BoardOptions{}).Departures("PAD", "RDG", 1)
	require.NoError(t, err)
	assert.Equal(t, "PAD", board.Origin)
	assert.Equal(t, "RDG", board.Destination)
	assert.Equal(t, 1, len(board.Departures))
}

func TestBoardCache(t *testing.T) {
	s := testState(newClock())
	s.MarkStarted()
	s.ApplySchedule(schedule(
		"X1", "1A01",
		origin("PADTON", "PAD", "10:00"),
		dest("YORK", "YRK", "12:30"),
	))

	fakeClock := gcache.NewFakeClock()
	b := NewBoard(s, testutil.Reference(), BoardOptions{
		CacheTTL: 5 * time.Second,
		Clock:    fakeClock,
	})

	board, err := b.Departures("PAD", "", 8)
	require.NoError(t, err)
	require.Equal(t, 1, len(board.Departures))

	// Callers can't modify the cached board
	board.Departures[0].Status = "Delayed"

	s.ApplyStatus(model.Status{
		RID:       "X1",
		Locations: []model.Location{{TIPLOC: "PADTON", ETD: "10:20"}},
	})

	board, err = b.Departures("PAD", "", 8)
	require.NoError(t, err)
	assert.Equal(t, "On Time", board.Departures[0].Status)

	// Different query, not cached
	board, err = b.Departures("PAD", "YRK", 8)
	require.NoError(t, err)
	assert.Equal(t, "10:20", board.Departures[0].Status)

	fakeClock.Advance(6 * time.Second)
	board, err = b.Departures("PAD", "", 8)
	require.NoError(t, err)
	assert.Equal(t, "10:20", board.Departures[0].Status)
}

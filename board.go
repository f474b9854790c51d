package darwin

import (
	"errors"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"tidbyt.dev/darwin/model"
)

const (
	DefaultDepartureCount = 8
	DefaultBoardCacheSize = 256
	AllDestinations       = "All destinations"
)

var (
	ErrNotRunning       = errors.New("darwin feed not running")
	ErrNoActiveServices = errors.New("no active services")
)

// Maps station codes to display names.
type Namer interface {
	Name(crs model.CRS) string
}

type BoardOptions struct {
	// Formatted boards are cached for this long. Zero disables
	// caching. While a board is cached, status updates applied to
	// the state don't show up in it until the entry expires.
	CacheTTL  time.Duration
	CacheSize int

	// Clock used for cache expiry. Defaults to the real clock.
	Clock gcache.Clock
}

// Board is the query side of the system: it hands out the live
// State and formats departure boards from it.
type Board struct {
	state *State
	names Namer
	cache gcache.Cache
}

func NewBoard(state *State, names Namer, opts BoardOptions) *Board {
	b := &Board{
		state: state,
		names: names,
	}

	if opts.CacheTTL > 0 {
		size := opts.CacheSize
		if size <= 0 {
			size = DefaultBoardCacheSize
		}
		builder := gcache.New(size).LRU().Expiration(opts.CacheTTL)
		if opts.Clock != nil {
			builder = builder.Clock(opts.Clock)
		}
		b.cache = builder.Build()
	}

	return b
}

// The live state. Returns ErrNotRunning until a consumer has started
// feeding it.
func (b *Board) State() (*State, error) {
	if b == nil || b.state == nil || !b.state.Started() {
		return nil, ErrNotRunning
	}
	return b.state, nil
}

// Departure board for a station, optionally filtered to trains
// calling at a destination. Station codes are case insensitive.
func (b *Board) Departures(from, to string, count int) (*model.DepartureBoard, error) {
	state, err := b.State()
	if err != nil {
		return nil, err
	}

	if state.Stats().ActiveServices == 0 {
		return nil, ErrNoActiveServices
	}

	fromCRS := model.NormalizeCRS(from)
	toCRS := model.NormalizeCRS(to)
	if count <= 0 {
		count = DefaultDepartureCount
	}

	key := fmt.Sprintf("%s|%s|%d", fromCRS, toCRS, count)
	if b.cache != nil {
		if cached, err := b.cache.Get(key); err == nil {
			return cloneBoard(cached.(*model.DepartureBoard)), nil
		}
	}

	board := &model.DepartureBoard{
		Origin:      b.name(fromCRS),
		Destination: AllDestinations,
		Departures:  state.Departures(string(fromCRS), string(toCRS), count),
		Messages:    state.StationMessages(fromCRS),
	}
	if toCRS != "" {
		board.Destination = b.name(toCRS)
	}

	if b.cache != nil {
		b.cache.Set(key, board)
	}

	return cloneBoard(board), nil
}

func (b *Board) name(crs model.CRS) string {
	if b.names == nil {
		return string(crs)
	}
	return b.names.Name(crs)
}

func cloneBoard(board *model.DepartureBoard) *model.DepartureBoard {
	c := *board
	c.Departures = append([]model.Departure{}, board.Departures...)
	c.Messages = copyMessages(board.Messages)
	return &c
}

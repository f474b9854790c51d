package darwin

import (
	"maps"
	"sort"

	"tidbyt.dev/darwin/model"
)

// Sorts after any valid time of day.
const unknownTimeKey = 24 * 60

const (
	StatusOnTime    = "On Time"
	StatusCancelled = "Cancelled"
)

// Fields copied out of a service while holding the lock.
type candidate struct {
	rid          model.RID
	trainID      string
	points       []model.CallingPoint
	live         map[model.TIPLOC]model.Location
	cancelled    bool
	cancelReason string
	lateReason   string
}

type departure struct {
	model.Departure
	key int
}

// Upcoming departures from a station, optionally restricted to
// services that call at a destination further down the line.
//
// Returns at most count departures ordered by scheduled time.
// Departed trains are only included if there are too few upcoming
// ones, and only if BackfillDeparted is set.
func (s *State) Departures(from, to string, count int) []model.Departure {
	fromCRS := model.NormalizeCRS(from)
	toCRS := model.NormalizeCRS(to)

	if count <= 0 || fromCRS == "" {
		return []model.Departure{}
	}

	candidates := s.candidates(fromCRS)

	deps := []departure{}
	for _, c := range candidates {
		if dep, ok := buildDeparture(c, fromCRS, toCRS); ok {
			deps = append(deps, dep)
		}
	}

	sort.SliceStable(deps, func(i, j int) bool {
		if deps[i].key != deps[j].key {
			return deps[i].key < deps[j].key
		}
		return deps[i].RID < deps[j].RID
	})

	// Upcoming first, then backfill. Output keeps sort order.
	selected := make([]bool, len(deps))
	n := 0
	for i := range deps {
		if n == count {
			break
		}
		if !deps[i].Departed() {
			selected[i] = true
			n++
		}
	}
	if s.BackfillDeparted {
		for i := range deps {
			if n == count {
				break
			}
			if !selected[i] {
				selected[i] = true
				n++
			}
		}
	}

	result := make([]model.Departure, 0, n)
	for i, dep := range deps {
		if selected[i] {
			result = append(result, dep.Departure)
		}
	}

	return result
}

func (s *State) candidates(from model.CRS) []candidate {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rids := s.index[from]
	candidates := make([]candidate, 0, len(rids))
	for rid := range rids {
		svc, found := s.services[rid]
		if !found {
			continue
		}
		candidates = append(candidates, candidate{
			rid:          svc.RID,
			trainID:      svc.TrainID,
			points:       svc.CallingPoints,
			live:         maps.Clone(svc.Live),
			cancelled:    svc.Cancelled,
			cancelReason: svc.CancelReason,
			lateReason:   svc.LateReason,
		})
	}

	return candidates
}

func buildDeparture(c candidate, from, to model.CRS) (departure, bool) {
	origin := -1
	for i, cp := range c.points {
		if cp.CRS == from {
			origin = i
			break
		}
	}
	if origin < 0 {
		return departure{}, false
	}

	if to != "" {
		found := false
		for _, cp := range c.points[origin+1:] {
			if cp.CRS == to {
				found = true
				break
			}
		}
		if !found {
			return departure{}, false
		}
	}

	cp := c.points[origin]
	scheduled := cp.Departure()
	if scheduled == "" {
		return departure{}, false
	}
	scheduled = hhmm(scheduled)

	live := c.live[cp.TIPLOC]

	dep := model.Departure{
		RID:          c.rid,
		Scheduled:    scheduled,
		Platform:     platform(live.Platform),
		Cancelled:    c.cancelled,
		CancelReason: c.cancelReason,
		LateReason:   c.lateReason,
		Destination:  destinationName(c.points[len(c.points)-1]),
		TrainID:      c.trainID,
	}

	switch {
	case c.cancelled:
		dep.Status = StatusCancelled
		dep.Expected = "-"
	case live.ATD != "":
		dep.Status = "Dep " + hhmm(live.ATD)
		dep.Expected = hhmm(live.ATD)
	case live.ETD != "" && hhmm(live.ETD) != scheduled:
		dep.Status = hhmm(live.ETD)
		dep.Expected = hhmm(live.ETD)
	default:
		dep.Status = StatusOnTime
		dep.Expected = StatusOnTime
	}

	key, ok := model.MinutesOfDay(scheduled)
	if !ok {
		key = unknownTimeKey
	}

	return departure{Departure: dep, key: key}, true
}

// Trims working times ("HH:MM:SS") to display precision.
func hhmm(t string) string {
	if len(t) > 5 {
		return t[:5]
	}
	return t
}

func platform(p model.Platform) string {
	if p.Value == "" || p.Suppressed {
		return "-"
	}
	return p.Value
}

func destinationName(cp model.CallingPoint) string {
	switch {
	case cp.Name != "":
		return cp.Name
	case cp.CRS != "":
		return string(cp.CRS)
	default:
		return string(cp.TIPLOC)
	}
}

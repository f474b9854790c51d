package darwin

import (
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"tidbyt.dev/darwin/model"
	"tidbyt.dev/darwin/parse"
)

const DefaultPruneAge = 4 * time.Hour

// Station code to the set of services calling there. A RID is
// listed under a CRS iff one of the service's calling points
// resolves to that CRS. Only add and remove may modify it.
type stationIndex map[model.CRS]map[model.RID]struct{}

func (idx stationIndex) add(rid model.RID, points []model.CallingPoint) {
	for _, cp := range points {
		if cp.CRS == "" {
			continue
		}
		rids, found := idx[cp.CRS]
		if !found {
			rids = map[model.RID]struct{}{}
			idx[cp.CRS] = rids
		}
		rids[rid] = struct{}{}
	}
}

func (idx stationIndex) remove(rid model.RID, points []model.CallingPoint) {
	for _, cp := range points {
		rids, found := idx[cp.CRS]
		if !found {
			continue
		}
		delete(rids, rid)
		if len(rids) == 0 {
			delete(idx, cp.CRS)
		}
	}
}

// In memory model of all active services, indexed by station.
//
// Safe for concurrent use. All methods hold the lock only while
// reading or writing the underlying maps. Values returned are
// copies.
type State struct {
	// If set, Departures backfills with departed trains when
	// there are too few upcoming ones.
	BackfillDeparted bool

	TimeNow func() time.Time
	Logger  *slog.Logger

	mutex    sync.Mutex
	services map[model.RID]*model.Service
	index    stationIndex
	messages map[model.CRS][]model.StationMessage
	stats    model.Stats
}

func NewState() *State {
	return &State{
		BackfillDeparted: true,
		TimeNow:          time.Now,
		services:         map[model.RID]*model.Service{},
		index:            stationIndex{},
		messages:         map[model.CRS][]model.StationMessage{},
	}
}

func (s *State) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *State) now() time.Time {
	if s.TimeNow != nil {
		return s.TimeNow()
	}
	return time.Now()
}

// Stores a schedule, replacing any existing service with the same
// RID. The replaced service's live data is discarded.
func (s *State) ApplySchedule(sched model.Schedule) {
	if len(sched.CallingPoints) == 0 {
		return
	}

	now := s.now()
	svc := &model.Service{
		RID:           sched.RID,
		UID:           sched.UID,
		StartDate:     sched.StartDate,
		Operator:      sched.Operator,
		TrainID:       sched.TrainID,
		CallingPoints: append([]model.CallingPoint(nil), sched.CallingPoints...),
		Live:          map[model.TIPLOC]model.Location{},
		Updated:       now,
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if old, found := s.services[sched.RID]; found {
		s.index.remove(old.RID, old.CallingPoints)
	}
	s.services[sched.RID] = svc
	s.index.add(svc.RID, svc.CallingPoints)

	s.stats.ScheduleCount++
	s.stats.LastUpdate = now.UTC()
}

// Merges live data into an existing service. Statuses for unknown
// services are dropped: the schedule hasn't been seen yet, or the
// service is already gone.
func (s *State) ApplyStatus(status model.Status) {
	now := s.now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	svc, found := s.services[status.RID]
	if !found {
		return
	}

	if status.Cancelled {
		svc.Cancelled = true
	}
	if status.CancelReason != "" {
		svc.CancelReason = status.CancelReason
	}
	if status.LateReason != "" {
		svc.LateReason = status.LateReason
	}
	for _, loc := range status.Locations {
		if loc.TIPLOC == "" {
			continue
		}
		svc.Live[loc.TIPLOC] = loc
	}
	svc.Updated = now

	s.stats.StatusCount++
	s.stats.LastUpdate = now.UTC()
}

// Removes a service. Unknown RIDs are ignored.
func (s *State) Deactivate(rid model.RID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.removeLocked(rid)
}

func (s *State) removeLocked(rid model.RID) bool {
	svc, found := s.services[rid]
	if !found {
		return false
	}
	delete(s.services, rid)
	s.index.remove(rid, svc.CallingPoints)
	return true
}

// Stores a station message for each of its stations, replacing any
// earlier message with the same ID.
func (s *State) ApplyStationMessage(msg model.StationMessage) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, crs := range msg.Stations {
		kept := []model.StationMessage{}
		for _, m := range s.messages[crs] {
			if m.ID != msg.ID {
				kept = append(kept, m)
			}
		}
		s.messages[crs] = append(kept, msg)
	}
}

// Applies decoded events in order.
func (s *State) Apply(events []parse.Event) {
	for _, ev := range events {
		switch ev.Type {
		case parse.EventSchedule:
			s.ApplySchedule(ev.Schedule)
		case parse.EventStatus:
			s.ApplyStatus(ev.Status)
		case parse.EventDeactivation:
			s.Deactivate(ev.RID)
		case parse.EventStationMessage:
			s.ApplyStationMessage(ev.Message)
		}
	}
}

// Removes all services last updated before now - maxAge. Returns
// the number removed.
func (s *State) Prune(maxAge time.Duration) int {
	cutoff := s.now().Add(-maxAge)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stale := []model.RID{}
	for rid, svc := range s.services {
		if svc.Updated.Before(cutoff) {
			stale = append(stale, rid)
		}
	}
	for _, rid := range stale {
		s.removeLocked(rid)
	}

	return len(stale)
}

// Records receipt of a raw feed message.
func (s *State) CountMessage() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats.MessageCount++
}

func (s *State) SetConnected(connected bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats.Connected = connected
}

// Marks the state as being fed by a running consumer.
func (s *State) MarkStarted() {
	now := s.now()

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stats.StartTime = now.UTC()
}

func (s *State) Started() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return !s.stats.StartTime.IsZero()
}

func (s *State) Stats() model.Stats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stats := s.stats
	stats.ActiveServices = len(s.services)
	stats.IndexedStations = len(s.index)
	return stats
}

// Copy of a single service.
func (s *State) Service(rid model.RID) (model.Service, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	svc, found := s.services[rid]
	if !found {
		return model.Service{}, false
	}
	return copyService(svc), true
}

// Copy of the station index, with RIDs sorted.
func (s *State) StationIndex() map[model.CRS][]model.RID {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.indexCopyLocked()
}

func (s *State) indexCopyLocked() map[model.CRS][]model.RID {
	index := make(map[model.CRS][]model.RID, len(s.index))
	for crs, rids := range s.index {
		list := make([]model.RID, 0, len(rids))
		for rid := range rids {
			list = append(list, rid)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		index[crs] = list
	}
	return index
}

// Messages currently posted for a station.
func (s *State) StationMessages(crs model.CRS) []model.StationMessage {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return copyMessages(s.messages[crs])
}

// Calling points are never modified once attached, so they're
// shared. Live data is not.
func copyService(svc *model.Service) model.Service {
	c := *svc
	c.Live = maps.Clone(svc.Live)
	if c.Live == nil {
		c.Live = map[model.TIPLOC]model.Location{}
	}
	return c
}

func copyMessages(msgs []model.StationMessage) []model.StationMessage {
	out := make([]model.StationMessage, 0, len(msgs))
	for _, m := range msgs {
		m.Stations = append([]model.CRS(nil), m.Stations...)
		out = append(out, m)
	}
	return out
}

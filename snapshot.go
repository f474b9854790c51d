package darwin

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"tidbyt.dev/darwin/model"
)

type snapshotStats struct {
	MessageCount    int       `json:"msg_count"`
	ScheduleCount   int       `json:"schedule_count"`
	StatusCount     int       `json:"status_count"`
	LastUpdate      time.Time `json:"last_update"`
	ActiveServices  int       `json:"active_services"`
	IndexedStations int       `json:"indexed_stations"`
}

type snapshotService struct {
	model.Service

	// Unix time in seconds.
	Updated float64 `json:"updated"`
}

type snapshotDocument struct {
	Stats           snapshotStats                        `json:"stats"`
	Services        map[model.RID]snapshotService        `json:"services"`
	StationIndex    map[model.CRS][]model.RID            `json:"station_index"`
	StationMessages map[model.CRS][]model.StationMessage `json:"station_messages"`
	SnapshotTime    time.Time                            `json:"snapshot_time"`
}

// Serializes all services, the station index, station messages and
// message counters as JSON.
func (s *State) Snapshot() ([]byte, error) {
	now := s.now()

	s.mutex.Lock()
	doc := snapshotDocument{
		Stats: snapshotStats{
			MessageCount:    s.stats.MessageCount,
			ScheduleCount:   s.stats.ScheduleCount,
			StatusCount:     s.stats.StatusCount,
			LastUpdate:      s.stats.LastUpdate,
			ActiveServices:  len(s.services),
			IndexedStations: len(s.index),
		},
		Services:        make(map[model.RID]snapshotService, len(s.services)),
		StationIndex:    s.indexCopyLocked(),
		StationMessages: make(map[model.CRS][]model.StationMessage, len(s.messages)),
		SnapshotTime:    now.UTC(),
	}
	for rid, svc := range s.services {
		doc.Services[rid] = snapshotService{
			Service: copyService(svc),
			Updated: unixSeconds(svc.Updated),
		}
	}
	for crs, msgs := range s.messages {
		doc.StationMessages[crs] = copyMessages(msgs)
	}
	s.mutex.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshaling snapshot: %w", err)
	}

	return data, nil
}

// Services are decoded one by one so that a single unreadable entry
// doesn't cost the rest.
type restoreDocument struct {
	Stats           snapshotStats                        `json:"stats"`
	Services        map[model.RID]json.RawMessage        `json:"services"`
	StationMessages map[model.CRS][]model.StationMessage `json:"station_messages"`
}

// Replaces the state's contents with a snapshot. Services are keyed
// by their key in the snapshot, and the station index is rebuilt
// from them; the index stored in the snapshot is ignored. Services
// that can't be decoded are skipped. On error the state is left
// unchanged.
func (s *State) Restore(data []byte) error {
	doc := restoreDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshaling snapshot: %w", err)
	}

	services := make(map[model.RID]*model.Service, len(doc.Services))
	for rid, raw := range doc.Services {
		entry := snapshotService{}
		if err := json.Unmarshal(raw, &entry); err != nil {
			s.logger().Warn("skipping unreadable service in snapshot", "rid", rid, "error", err)
			continue
		}

		svc := entry.Service
		svc.RID = rid
		if svc.Live == nil {
			svc.Live = map[model.TIPLOC]model.Location{}
		}
		svc.Updated = fromUnixSeconds(entry.Updated)
		services[rid] = &svc
	}

	index := stationIndex{}
	for rid, svc := range services {
		index.add(rid, svc.CallingPoints)
	}

	messages := make(map[model.CRS][]model.StationMessage, len(doc.StationMessages))
	for crs, msgs := range doc.StationMessages {
		if len(msgs) > 0 {
			messages[crs] = msgs
		}
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.services = services
	s.index = index
	s.messages = messages
	s.stats.MessageCount = doc.Stats.MessageCount
	s.stats.ScheduleCount = doc.Stats.ScheduleCount
	s.stats.StatusCount = doc.Stats.StatusCount
	s.stats.LastUpdate = doc.Stats.LastUpdate
	s.stats.Connected = false

	return nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}

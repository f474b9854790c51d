package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Route ID. Unique for one run of a scheduled train on one day.
type RID string

// Public three letter station code, e.g. "PAD".
type CRS string

// Raw timing point location code used by the feed, e.g. "PADTON".
type TIPLOC string

// Normalizes a user supplied station code.
func NormalizeCRS(code string) CRS {
	return CRS(strings.ToUpper(strings.TrimSpace(code)))
}

type CallingPointType int

const (
	CallingPointOrigin CallingPointType = iota
	CallingPointIntermediate
	CallingPointPass
	CallingPointDestination
)

var callingPointTypeNames = map[CallingPointType]string{
	CallingPointOrigin:       "origin",
	CallingPointIntermediate: "intermediate",
	CallingPointPass:         "pass",
	CallingPointDestination:  "destination",
}

func (t CallingPointType) String() string {
	if name, ok := callingPointTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

func (t CallingPointType) MarshalText() ([]byte, error) {
	name, ok := callingPointTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid calling point type %d", int(t))
	}
	return []byte(name), nil
}

// Push Port element tags for each calling point type.
var callingPointTags = map[string]CallingPointType{
	"OR":   CallingPointOrigin,
	"OPOR": CallingPointOrigin,
	"IP":   CallingPointIntermediate,
	"OPIP": CallingPointIntermediate,
	"PP":   CallingPointPass,
	"DT":   CallingPointDestination,
	"OPDT": CallingPointDestination,
}

// Accepts both type names ("origin") and feed tags ("OR").
func (t *CallingPointType) UnmarshalText(text []byte) error {
	for k, v := range callingPointTypeNames {
		if v == string(text) {
			*t = k
			return nil
		}
	}
	if k, ok := callingPointTags[string(text)]; ok {
		*t = k
		return nil
	}
	return fmt.Errorf("invalid calling point type %q", string(text))
}

// One stop of a service, in timetable order. Times are "HH:MM" (or
// "HH:MM:SS" for working times), blank when absent.
type CallingPoint struct {
	TIPLOC      TIPLOC           `json:"tiploc"`
	CRS         CRS              `json:"crs,omitempty"`
	Type        CallingPointType `json:"type"`
	Operational bool             `json:"operational,omitempty"`
	PTA         string           `json:"pta,omitempty"`
	PTD         string           `json:"ptd,omitempty"`
	WTA         string           `json:"wta,omitempty"`
	WTD         string           `json:"wtd,omitempty"`
	Activity    string           `json:"activity,omitempty"`
	Name        string           `json:"name"`
}

// Feed tags as type mark operational stops ("OPIP" etc) as such.
func (cp *CallingPoint) UnmarshalJSON(data []byte) error {
	type plain CallingPoint
	aux := struct {
		*plain
		Type string `json:"type"`
	}{plain: (*plain)(cp)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := cp.Type.UnmarshalText([]byte(aux.Type)); err != nil {
		return err
	}
	if _, ok := callingPointTags[aux.Type]; ok && strings.HasPrefix(aux.Type, "OP") {
		cp.Operational = true
	}

	return nil
}

// Scheduled departure, public time preferred.
func (cp *CallingPoint) Departure() string {
	if cp.PTD != "" {
		return cp.PTD
	}
	return cp.WTD
}

// A full schedule for one service, as carried by a schedule update.
type Schedule struct {
	RID           RID
	UID           string
	StartDate     string
	Operator      string
	TrainID       string
	CallingPoints []CallingPoint
}

type Platform struct {
	Value      string `json:"value,omitempty"`
	Suppressed bool   `json:"suppressed,omitempty"`
	Confirmed  bool   `json:"confirmed,omitempty"`
}

// Most recent realtime data for one stop of a service.
type Location struct {
	TIPLOC          TIPLOC   `json:"tiploc"`
	PTA             string   `json:"pta,omitempty"`
	PTD             string   `json:"ptd,omitempty"`
	ETA             string   `json:"eta,omitempty"`
	ATA             string   `json:"ata,omitempty"`
	ArrivalSource   string   `json:"arr_src,omitempty"`
	ETD             string   `json:"etd,omitempty"`
	ATD             string   `json:"atd,omitempty"`
	DepartureSource string   `json:"dep_src,omitempty"`
	ETP             string   `json:"etp,omitempty"`
	ATP             string   `json:"atp,omitempty"`
	Platform        Platform `json:"platform"`
	Length          string   `json:"length,omitempty"`
}

// Also reads the flat plat, plat_suppressed and plat_confirmed
// fields of older snapshots.
func (l *Location) UnmarshalJSON(data []byte) error {
	type plain Location
	aux := struct {
		*plain
		Plat           string `json:"plat"`
		PlatSuppressed bool   `json:"plat_suppressed"`
		PlatConfirmed  bool   `json:"plat_confirmed"`
	}{plain: (*plain)(l)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if l.Platform.Value == "" && aux.Plat != "" {
		l.Platform = Platform{
			Value:      aux.Plat,
			Suppressed: aux.PlatSuppressed,
			Confirmed:  aux.PlatConfirmed,
		}
	}

	return nil
}

// A train status update for one service.
type Status struct {
	RID          RID
	Locations    []Location
	Cancelled    bool
	CancelReason string
	LateReason   string
}

// Disruption notice for one or more stations.
type StationMessage struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Severity  string    `json:"severity"`
	Stations  []CRS     `json:"stations,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// An active service as held by the state store.
type Service struct {
	RID           RID                 `json:"rid"`
	UID           string              `json:"uid"`
	StartDate     string              `json:"ssd"`
	Operator      string              `json:"toc"`
	TrainID       string              `json:"train_id"`
	CallingPoints []CallingPoint      `json:"calling_points"`
	Live          map[TIPLOC]Location `json:"live"`
	Cancelled     bool                `json:"cancelled"`
	CancelReason  string              `json:"cancel_reason"`
	LateReason    string              `json:"late_reason"`
	Updated       time.Time           `json:"-"`
}

// A train departing from a station.
type Departure struct {
	RID          RID    `json:"rid"`
	Scheduled    string `json:"scheduled"`
	Expected     string `json:"expected"`
	Status       string `json:"status"`
	Platform     string `json:"platform"`
	Cancelled    bool   `json:"cancelled"`
	CancelReason string `json:"cancel_reason,omitempty"`
	LateReason   string `json:"late_reason,omitempty"`
	Destination  string `json:"destination"`
	TrainID      string `json:"train_id"`
}

// Departed reports whether the train has an actual departure time.
func (d *Departure) Departed() bool {
	return strings.HasPrefix(d.Status, "Dep ") && !d.Cancelled
}

// A formatted departure board.
type DepartureBoard struct {
	Origin      string           `json:"origin"`
	Destination string           `json:"destination"`
	Departures  []Departure      `json:"departures"`
	Messages    []StationMessage `json:"messages,omitempty"`
}

type Stats struct {
	MessageCount    int       `json:"msg_count"`
	ScheduleCount   int       `json:"schedule_count"`
	StatusCount     int       `json:"status_count"`
	LastUpdate      time.Time `json:"last_update"`
	Connected       bool      `json:"connected"`
	StartTime       time.Time `json:"start_time"`
	ActiveServices  int       `json:"active_services"`
	IndexedStations int       `json:"indexed_stations"`
}

// Minutes past midnight for a "HH:MM" (or longer) time. Returns false
// if the time can't be parsed.
func MinutesOfDay(hhmm string) (int, bool) {
	parts := strings.Split(hhmm, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

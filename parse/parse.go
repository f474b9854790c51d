package parse

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"tidbyt.dev/darwin/model"
)

// Element names of the Push Port protocol.
const (
	tagPport       = "Pport"
	tagUpdate      = "uR"
	tagSnapshot    = "sR"
	tagSchedule    = "schedule"
	tagTrainStatus = "TS"
	tagDeactivated = "deactivated"
	tagStationMsg  = "OW"
)

var callingPointTags = map[string]struct {
	typ         model.CallingPointType
	operational bool
}{
	"OR":   {model.CallingPointOrigin, false},
	"OPOR": {model.CallingPointOrigin, true},
	"IP":   {model.CallingPointIntermediate, false},
	"OPIP": {model.CallingPointIntermediate, true},
	"PP":   {model.CallingPointPass, false},
	"DT":   {model.CallingPointDestination, false},
	"OPDT": {model.CallingPointDestination, true},
}

type EventType int

const (
	EventSchedule EventType = iota
	EventStatus
	EventDeactivation
	EventStationMessage
)

// A decoded feed event. Which field is populated depends on Type.
type Event struct {
	Type     EventType
	Schedule model.Schedule
	Status   model.Status
	RID      model.RID
	Message  model.StationMessage
}

// Maps raw stop codes to public station codes and display names.
type Resolver interface {
	CRS(tiploc model.TIPLOC) (model.CRS, bool)
	Name(crs model.CRS) string
}

// Turns raw feed messages into events.
type Decoder struct {
	Resolver Resolver
	Logger   *slog.Logger
	TimeNow  func() time.Time
}

func NewDecoder(resolver Resolver) *Decoder {
	return &Decoder{
		Resolver: resolver,
		TimeNow:  time.Now,
	}
}

func (d *Decoder) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Decodes one raw message. Malformed messages are logged at debug
// level and produce no events.
func (d *Decoder) Decode(raw []byte) []Event {
	payload := Classify(raw)
	if payload.Kind == PayloadUnparsable {
		d.logger().Debug("unrecognised message format", "len", len(raw))
		return nil
	}

	events, err := d.ParseXML(payload.XML)
	if err != nil {
		d.logger().Debug("dropping message", "payload", payload.Kind.String(), "error", err)
		return nil
	}

	return events
}

// Parses Push Port XML. The root may be the Pport envelope, an
// update/snapshot response, or a single message element.
func (d *Decoder) ParseXML(data []byte) ([]Event, error) {
	root, err := parseTree(data)
	if err != nil {
		return nil, errors.Wrap(err, "parsing push port xml")
	}

	return d.walk(root, nil), nil
}

func (d *Decoder) walk(el *element, events []Event) []Event {
	switch el.name {
	case tagPport, tagUpdate, tagSnapshot:
		for _, child := range el.children {
			events = d.walk(child, events)
		}

	case tagSchedule:
		if sched, ok := d.parseSchedule(el); ok {
			events = append(events, Event{Type: EventSchedule, RID: sched.RID, Schedule: sched})
		}

	case tagTrainStatus:
		if status, ok := d.parseTrainStatus(el); ok {
			events = append(events, Event{Type: EventStatus, RID: status.RID, Status: status})
		}

	case tagDeactivated:
		if rid := el.attr("rid"); rid != "" {
			events = append(events, Event{Type: EventDeactivation, RID: model.RID(rid)})
		}

	case tagStationMsg:
		if msg, ok := d.parseStationMessage(el); ok {
			events = append(events, Event{Type: EventStationMessage, Message: msg})
		}
	}

	return events
}

func (d *Decoder) parseSchedule(el *element) (model.Schedule, bool) {
	sched := model.Schedule{
		RID:       model.RID(el.attr("rid")),
		UID:       el.attr("uid"),
		StartDate: el.attr("ssd"),
		Operator:  el.attr("toc"),
		TrainID:   el.attr("trainId"),
	}
	if sched.RID == "" {
		return sched, false
	}

	for _, child := range el.children {
		kind, found := callingPointTags[child.name]
		if !found {
			continue
		}

		tiploc := model.TIPLOC(child.attr("tpl"))
		cp := model.CallingPoint{
			TIPLOC:      tiploc,
			Type:        kind.typ,
			Operational: kind.operational,
			PTA:         child.attr("pta"),
			PTD:         child.attr("ptd"),
			WTA:         child.attr("wta"),
			WTD:         child.attr("wtd"),
			Activity:    child.attr("act"),
			Name:        string(tiploc),
		}

		if d.Resolver != nil {
			if crs, ok := d.Resolver.CRS(tiploc); ok {
				cp.CRS = crs
				cp.Name = d.Resolver.Name(crs)
			}
		}

		sched.CallingPoints = append(sched.CallingPoints, cp)
	}

	// Nothing to apply without timing points
	if len(sched.CallingPoints) == 0 {
		return sched, false
	}

	return sched, true
}

func (d *Decoder) parseTrainStatus(el *element) (model.Status, bool) {
	status := model.Status{
		RID: model.RID(el.attr("rid")),
	}
	if status.RID == "" {
		return status, false
	}

	for _, child := range el.children {
		switch child.name {
		case "Location":
			status.Locations = append(status.Locations, parseLocation(child))
		case "LateReason":
			status.LateReason = reasonText(child)
		case "CancelReason":
			status.CancelReason = reasonText(child)
			status.Cancelled = true
		}
	}

	return status, true
}

func parseLocation(el *element) model.Location {
	loc := model.Location{
		TIPLOC: model.TIPLOC(el.attr("tpl")),
		PTA:    el.attr("pta"),
		PTD:    el.attr("ptd"),
	}

	for _, sub := range el.children {
		switch sub.name {
		case "arr":
			loc.ETA = sub.attr("et")
			loc.ATA = sub.attr("at")
			loc.ArrivalSource = sub.attr("src")
		case "dep":
			loc.ETD = sub.attr("et")
			loc.ATD = sub.attr("at")
			loc.DepartureSource = sub.attr("src")
		case "pass":
			loc.ETP = sub.attr("et")
			loc.ATP = sub.attr("at")
		case "plat":
			loc.Platform = model.Platform{
				Value:      strings.TrimSpace(sub.innerText()),
				Suppressed: sub.attr("platsup") == "true",
				Confirmed:  sub.attr("conf") == "true",
			}
		case "length":
			loc.Length = strings.TrimSpace(sub.innerText())
		}
	}

	return loc
}

// Reasons carry either a text body or just a code attribute.
func reasonText(el *element) string {
	if text := strings.TrimSpace(el.innerText()); text != "" {
		return text
	}
	return el.attr("code")
}

func (d *Decoder) parseStationMessage(el *element) (model.StationMessage, bool) {
	msg := model.StationMessage{
		ID:       el.attr("id"),
		Category: el.attr("cat"),
		Severity: el.attr("sev"),
	}

	for _, child := range el.children {
		switch child.name {
		case "Station":
			if crs := model.NormalizeCRS(child.attr("crs")); crs != "" {
				msg.Stations = append(msg.Stations, crs)
			}
		case "Msg":
			msg.Text = strings.TrimSpace(child.innerText())
		}
	}

	if len(msg.Stations) == 0 || msg.Text == "" {
		return msg, false
	}

	now := time.Now
	if d.TimeNow != nil {
		now = d.TimeNow
	}
	msg.Timestamp = now().UTC()

	return msg, true
}

package parse

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/darwin/model"
	"tidbyt.dev/darwin/testutil"
)

func testDecoder() *Decoder {
	d := NewDecoder(testutil.Reference())
	d.TimeNow = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return d
}

func TestParseSchedule(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.Pport(testutil.ScheduleXML(
		"202610157654321",
		"1A23",
		testutil.Point{Tag: "OR", TIPLOC: "PADTON", PTD: "10:00", WTD: "10:00", Act: "TB"},
		testutil.Point{Tag: "PP", TIPLOC: "SLOUGH", WTD: "10:10:30"},
		testutil.Point{Tag: "OPIP", TIPLOC: "RDNGSTN", WTA: "10:24", WTD: "10:26"},
		testutil.Point{Tag: "IP", TIPLOC: "SDON", PTA: "10:50", PTD: "10:52", WTA: "10:50", WTD: "10:52", Act: "T "},
		testutil.Point{Tag: "DT", TIPLOC: "BRSTLTM", PTA: "11:30", WTA: "11:30", Act: "TF"},
	))))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))

	ev := events[0]
	assert.Equal(t, EventSchedule, ev.Type)
	assert.Equal(t, model.RID("202610157654321"), ev.RID)
	assert.Equal(t, model.Schedule{
		RID:       "202610157654321",
		UID:       "Y202610157654321",
		StartDate: "2026-10-15",
		Operator:  "GW",
		TrainID:   "1A23",
		CallingPoints: []model.CallingPoint{
			{TIPLOC: "PADTON", CRS: "PAD", Type: model.CallingPointOrigin, PTD: "10:00", WTD: "10:00", Activity: "TB", Name: "London Paddington"},
			{TIPLOC: "SLOUGH", Type: model.CallingPointPass, WTD: "10:10:30", Name: "SLOUGH"},
			{TIPLOC: "RDNGSTN", CRS: "RDG", Type: model.CallingPointIntermediate, Operational: true, WTA: "10:24", WTD: "10:26", Name: "Reading"},
			{TIPLOC: "SDON", CRS: "SWI", Type: model.CallingPointIntermediate, PTA: "10:50", PTD: "10:52", WTA: "10:50", WTD: "10:52", Activity: "T ", Name: "Swindon"},
			{TIPLOC: "BRSTLTM", CRS: "BRI", Type: model.CallingPointDestination, PTA: "11:30", WTA: "11:30", Activity: "TF", Name: "Bristol Temple Meads"},
		},
	}, ev.Schedule)
}

func TestParseScheduleWithoutPoints(t *testing.T) {
	d := testDecoder()

	// No timing points, nothing to apply
	events, err := d.ParseXML([]byte(testutil.Pport(testutil.ScheduleXML("R1", "1A23"))))
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))

	// Missing RID
	events, err = d.ParseXML([]byte(testutil.Pport(testutil.ScheduleXML(
		"",
		"1A23",
		testutil.Point{Tag: "OR", TIPLOC: "PADTON", PTD: "10:00"},
	))))
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))
}

func TestParseTrainStatus(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.Pport(testutil.StatusXML(
		"R1",
		"104",
		"",
		testutil.Forecast{TIPLOC: "PADTON", PTD: "10:00", ETD: "10:05", DepSource: "Darwin", Platform: "3", PlatConf: true, Length: "8"},
		testutil.Forecast{TIPLOC: "SLOUGH", ETP: "10:15"},
		testutil.Forecast{TIPLOC: "RDNGSTN", ATA: "10:27", ETD: "10:29", Platform: "9", PlatSup: true},
	))))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))

	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, model.Status{
		RID:        "R1",
		LateReason: "104",
		Locations: []model.Location{
			{TIPLOC: "PADTON", PTD: "10:00", ETD: "10:05", DepartureSource: "Darwin", Platform: model.Platform{Value: "3", Confirmed: true}, Length: "8"},
			{TIPLOC: "SLOUGH", ETP: "10:15"},
			{TIPLOC: "RDNGSTN", ATA: "10:27", ETD: "10:29", Platform: model.Platform{Value: "9", Suppressed: true}},
		},
	}, events[0].Status)
}

func TestParseTrainStatusCancelled(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.StatusXML("R1", "", "Signal failure")))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))
	assert.True(t, events[0].Status.Cancelled)
	assert.Equal(t, "Signal failure", events[0].Status.CancelReason)
	assert.Equal(t, "", events[0].Status.LateReason)

	// Reason given as a code attribute only
	events, err = d.ParseXML([]byte(`<TS rid="R2"><CancelReason code="501"/></TS>`))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))
	assert.True(t, events[0].Status.Cancelled)
	assert.Equal(t, "501", events[0].Status.CancelReason)
}

func TestParseDeactivated(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.Pport(
		testutil.DeactivatedXML("R1"),
		`<deactivated/>`,
	)))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))
	assert.Equal(t, EventDeactivation, events[0].Type)
	assert.Equal(t, model.RID("R1"), events[0].RID)
}

func TestParseStationMessage(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.Pport(testutil.StationMessageXML(
		"42",
		`Disruption between <a href="http://example.com">Reading</a> and Swindon.`,
		"pad", "RDG",
	))))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))

	assert.Equal(t, EventStationMessage, events[0].Type)
	assert.Equal(t, model.StationMessage{
		ID:        "42",
		Category:  "Train",
		Severity:  "1",
		Stations:  []model.CRS{"PAD", "RDG"},
		Text:      "Disruption between Reading and Swindon.",
		Timestamp: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
	}, events[0].Message)

	// No stations or no text: nothing emitted
	events, err = d.ParseXML([]byte(testutil.StationMessageXML("43", "text")))
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))

	events, err = d.ParseXML([]byte(testutil.StationMessageXML("44", "  ", "PAD")))
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))
}

func TestParseMixedEnvelope(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.Pport(
		testutil.ScheduleXML("R1", "1A23", testutil.Point{Tag: "OR", TIPLOC: "PADTON", PTD: "10:00"}),
		`<unknownThing foo="bar"/>`,
		testutil.StatusXML("R1", "", "", testutil.Forecast{TIPLOC: "PADTON", ETD: "10:02"}),
		testutil.DeactivatedXML("R1"),
	)))
	require.NoError(t, err)

	types := []EventType{}
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventSchedule, EventStatus, EventDeactivation}, types)
}

func TestParseBareElement(t *testing.T) {
	d := testDecoder()

	events, err := d.ParseXML([]byte(testutil.ScheduleXML("R1", "1A23", testutil.Point{Tag: "OR", TIPLOC: "PADTON", PTD: "10:00"})))
	require.NoError(t, err)
	require.Equal(t, 1, len(events))
	assert.Equal(t, EventSchedule, events[0].Type)

	// Unknown root is no error, just no events
	events, err = d.ParseXML([]byte(`<something/>`))
	require.NoError(t, err)
	assert.Equal(t, 0, len(events))
}

func TestParseXMLErrors(t *testing.T) {
	d := testDecoder()

	for _, content := range []string{
		``,
		`<Pport>`,
		`<Pport></uR>`,
		`<a/><b/>`,
		`not xml`,
	} {
		_, err := d.ParseXML([]byte(content))
		assert.Error(t, err, content)
	}
}

func TestDecode(t *testing.T) {
	logs := &bytes.Buffer{}
	d := testDecoder()
	d.Logger = slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	xml := testutil.Pport(testutil.DeactivatedXML("R1"))

	// JSON envelope and raw XML decode the same
	events := d.Decode(testutil.Envelope(xml))
	require.Equal(t, 1, len(events))
	assert.Equal(t, model.RID("R1"), events[0].RID)

	events = d.Decode([]byte(xml))
	require.Equal(t, 1, len(events))
	assert.Equal(t, model.RID("R1"), events[0].RID)

	// Garbage is dropped and logged at debug level
	assert.Nil(t, d.Decode([]byte("garbage")))
	assert.Nil(t, d.Decode(testutil.Envelope("<Pport><uR>")))
	assert.Contains(t, logs.String(), "level=DEBUG")
	assert.Contains(t, logs.String(), "unrecognised message format")
	assert.Contains(t, logs.String(), "dropping message")
}

func TestDecodeWithoutResolver(t *testing.T) {
	d := NewDecoder(nil)

	events := d.Decode([]byte(testutil.ScheduleXML("R1", "1A23", testutil.Point{Tag: "OR", TIPLOC: "PADTON", PTD: "10:00"})))
	require.Equal(t, 1, len(events))
	cp := events[0].Schedule.CallingPoints[0]
	assert.Equal(t, model.CRS(""), cp.CRS)
	assert.Equal(t, "PADTON", cp.Name)
}

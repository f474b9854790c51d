package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinutesOfDay(t *testing.T) {
	for _, tc := range []struct {
		in      string
		minutes int
		ok      bool
	}{
		{"00:00", 0, true},
		{"10:05", 605, true},
		{"23:59", 1439, true},
		{"10:05:30", 605, true},
		{"", 0, false},
		{"1005", 0, false},
		{"ab:cd", 0, false},
		{"24:00", 0, false},
		{"12:60", 0, false},
	} {
		minutes, ok := MinutesOfDay(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.minutes, minutes, tc.in)
	}
}

func TestCallingPointTypeJSON(t *testing.T) {
	cp := CallingPoint{TIPLOC: "PADTON", CRS: "PAD", Type: CallingPointDestination, Name: "London Paddington"}

	buf, err := json.Marshal(cp)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"type":"destination"`)

	var decoded CallingPoint
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, cp, decoded)

	assert.Error(t, json.Unmarshal([]byte(`{"type":"sideways"}`), &decoded))
}

func TestCallingPointFeedTags(t *testing.T) {
	for _, tc := range []struct {
		tag         string
		typ         CallingPointType
		operational bool
	}{
		{"OR", CallingPointOrigin, false},
		{"OPOR", CallingPointOrigin, true},
		{"IP", CallingPointIntermediate, false},
		{"OPIP", CallingPointIntermediate, true},
		{"PP", CallingPointPass, false},
		{"DT", CallingPointDestination, false},
		{"OPDT", CallingPointDestination, true},
	} {
		t.Run(tc.tag, func(t *testing.T) {
			var cp CallingPoint
			require.NoError(t, json.Unmarshal([]byte(`{"tiploc":"RDNGSTN","crs":"RDG","type":"`+tc.tag+`","pta":"10:24"}`), &cp))
			assert.Equal(t, tc.typ, cp.Type)
			assert.Equal(t, tc.operational, cp.Operational)
			assert.Equal(t, TIPLOC("RDNGSTN"), cp.TIPLOC)
			assert.Equal(t, "10:24", cp.PTA)
		})
	}

	var cp CallingPoint
	assert.Error(t, json.Unmarshal([]byte(`{"type":""}`), &cp))
	assert.Error(t, json.Unmarshal([]byte(`{"type":"XX"}`), &cp))
}

func TestLocationFlatPlatform(t *testing.T) {
	var loc Location
	require.NoError(t, json.Unmarshal([]byte(`{"tiploc":"PADTON","etd":"10:05","plat":"3","plat_suppressed":true,"plat_confirmed":true}`), &loc))
	assert.Equal(t, Location{
		TIPLOC:   "PADTON",
		ETD:      "10:05",
		Platform: Platform{Value: "3", Suppressed: true, Confirmed: true},
	}, loc)

	// Nested form wins
	loc = Location{}
	require.NoError(t, json.Unmarshal([]byte(`{"tiploc":"PADTON","platform":{"value":"4"},"plat":"3"}`), &loc))
	assert.Equal(t, Platform{Value: "4"}, loc.Platform)

	// Round trip through the nested form
	buf, err := json.Marshal(Location{TIPLOC: "YORK", Platform: Platform{Value: "9", Confirmed: true}})
	require.NoError(t, err)
	loc = Location{}
	require.NoError(t, json.Unmarshal(buf, &loc))
	assert.Equal(t, Location{TIPLOC: "YORK", Platform: Platform{Value: "9", Confirmed: true}}, loc)
}

func TestCallingPointDeparture(t *testing.T) {
	assert.Equal(t, "10:00", (&CallingPoint{PTD: "10:00", WTD: "10:00:30"}).Departure())
	assert.Equal(t, "10:00:30", (&CallingPoint{WTD: "10:00:30"}).Departure())
	assert.Equal(t, "", (&CallingPoint{PTA: "10:00"}).Departure())
}

func TestNormalizeCRS(t *testing.T) {
	assert.Equal(t, CRS("PAD"), NormalizeCRS(" pad "))
}

func TestDepartureDeparted(t *testing.T) {
	assert.True(t, (&Departure{Status: "Dep 10:01"}).Departed())
	assert.False(t, (&Departure{Status: "Dep 10:01", Cancelled: true}).Departed())
	assert.False(t, (&Departure{Status: "On Time"}).Departed())
}

package reference

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tidbyt.dev/darwin/model"
)

func TestLoadJSON(t *testing.T) {
	table, err := LoadJSON(strings.NewReader(`{
  "PADTON": {"crs": "PAD", "name": "London Paddington"},
  "PADTLL": {"crs": "PAD", "name": "Paddington Low Level"},
  "YORK":   {"crs": "YRK", "name": "York"},
  "NOCRS":  {"crs": "", "name": "Nowhere"}
}`))
	require.NoError(t, err)

	crs, ok := table.CRS("PADTON")
	assert.True(t, ok)
	assert.Equal(t, model.CRS("PAD"), crs)

	crs, ok = table.CRS("PADTLL")
	assert.True(t, ok)
	assert.Equal(t, model.CRS("PAD"), crs)

	_, ok = table.CRS("NOCRS")
	assert.False(t, ok)

	// First name seen wins
	assert.Equal(t, "London Paddington", table.Name("PAD"))
	assert.Equal(t, "York", table.Name("YRK"))

	// Unknown codes fall back to the code
	assert.Equal(t, "XYZ", table.Name("XYZ"))

	assert.Equal(t, 3, table.Len())
}

func TestLoadJSONInvalid(t *testing.T) {
	for _, content := range []string{
		``,
		`[]`,
		`{"PADTON": 12}`,
		`{"PADTON": {"crs": "PAD"`,
	} {
		_, err := LoadJSON(strings.NewReader(content))
		assert.Error(t, err, content)
	}
}

func TestLoadCSV(t *testing.T) {
	table, err := LoadCSV(strings.NewReader("\ufefftiploc,crs,name\nPADTON,pad,London Paddington\nYORK,YRK,York\n"))
	require.NoError(t, err)

	crs, ok := table.CRS("PADTON")
	assert.True(t, ok)
	assert.Equal(t, model.CRS("PAD"), crs)
	assert.Equal(t, "London Paddington", table.Name("PAD"))
	assert.Equal(t, 2, table.Len())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "tiploc_crs.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"YORK": {"crs": "YRK", "name": "York"}}`), 0644))
	table, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "York", table.Name("YRK"))

	csvPath := filepath.Join(dir, "tiploc_crs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("tiploc,crs,name\nYORK,YRK,York"), 0644))
	table, err = Load(csvPath)
	require.NoError(t, err)
	assert.Equal(t, "York", table.Name("YRK"))

	xmlPath := filepath.Join(dir, "tiploc_crs.xml")
	require.NoError(t, os.WriteFile(xmlPath, []byte("<x/>"), 0644))
	_, err = Load(xmlPath)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoadURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ref/stations.csv":
			w.Write([]byte("tiploc,crs,name\nYORK,YRK,York\n"))
		case "/ref/stations.json":
			w.Write([]byte(`{"EDINBUR": {"crs": "EDB", "name": "Edinburgh"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	table, err := Load(server.URL + "/ref/stations.csv?version=2")
	require.NoError(t, err)
	assert.Equal(t, "York", table.Name("YRK"))

	table, err = Load(server.URL + "/ref/stations.json")
	require.NoError(t, err)
	assert.Equal(t, "Edinburgh", table.Name("EDB"))

	_, err = Load(server.URL + "/ref/missing.json")
	assert.Error(t, err)
}

func TestNilTable(t *testing.T) {
	var table *Table
	_, ok := table.CRS("PADTON")
	assert.False(t, ok)
	assert.Equal(t, "PAD", table.Name("PAD"))
	assert.Equal(t, 0, table.Len())
	assert.Equal(t, []Station{}, table.Stations())
}

func TestStations(t *testing.T) {
	table := NewTable([]Entry{
		{TIPLOC: "YORK", CRS: "YRK", Name: "York"},
		{TIPLOC: "PADTON", CRS: "pad", Name: "London Paddington"},
		{TIPLOC: "PADTONL", CRS: "PAD", Name: "Paddington (Low Level)"},
		{TIPLOC: "RDNGSTN", CRS: "RDG"},
	})

	assert.Equal(t, []Station{
		{CRS: "PAD", Name: "London Paddington"},
		{CRS: "YRK", Name: "York"},
	}, table.Stations())
}

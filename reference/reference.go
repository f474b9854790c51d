package reference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"tidbyt.dev/darwin/downloader"
	"tidbyt.dev/darwin/model"
)

var ErrUnknownFormat = errors.New("unknown reference data format")

// Static TIPLOC to CRS mapping, along with display names for each
// CRS. Read-only once loaded, so safe for concurrent use.
type Table struct {
	crsByTIPLOC map[model.TIPLOC]model.CRS
	nameByCRS   map[model.CRS]string
}

// One row of the reference data.
type Entry struct {
	TIPLOC string `json:"-" csv:"tiploc"`
	CRS    string `json:"crs" csv:"crs"`
	Name   string `json:"name" csv:"name"`
}

func NewTable(entries []Entry) *Table {
	t := &Table{
		crsByTIPLOC: map[model.TIPLOC]model.CRS{},
		nameByCRS:   map[model.CRS]string{},
	}

	for _, e := range entries {
		tiploc := model.TIPLOC(strings.TrimSpace(e.TIPLOC))
		crs := model.NormalizeCRS(e.CRS)
		if tiploc == "" || crs == "" {
			continue
		}
		t.crsByTIPLOC[tiploc] = crs

		// First name seen for a CRS wins
		if _, found := t.nameByCRS[crs]; !found && e.Name != "" {
			t.nameByCRS[crs] = e.Name
		}
	}

	return t
}

// Loads a reference table from a file or an http(s) URL. Format is
// picked by extension: .csv files hold tiploc,crs,name columns,
// anything else is read as JSON on the form
// {"TIPLOC": {"crs": "...", "name": "..."}}.
func Load(location string) (*Table, error) {
	var r io.Reader
	ext := filepath.Ext(location)

	if downloader.IsURL(location) {
		u, err := url.Parse(location)
		if err != nil {
			return nil, errors.Wrap(err, "parsing reference url")
		}
		ext = path.Ext(u.Path)

		body, err := downloader.Get(context.Background(), location, downloader.GetOptions{})
		if err != nil {
			return nil, errors.Wrapf(err, "downloading %s", location)
		}
		r = bytes.NewReader(body)
	} else {
		f, err := os.Open(location)
		if err != nil {
			return nil, errors.Wrap(err, "opening reference data")
		}
		defer f.Close()
		r = f
	}

	switch strings.ToLower(ext) {
	case ".csv":
		return LoadCSV(r)
	case ".json", "":
		return LoadJSON(r)
	}

	return nil, errors.Wrapf(ErrUnknownFormat, "loading %s", location)
}

// Reads the JSON form of the reference data. Entries are kept in file
// order, so that the first name seen for a CRS is the one used.
func LoadJSON(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "reading reference json")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("reference json is not an object")
	}

	entries := []Entry{}
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "reading reference key")
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("unexpected token %v", tok)
		}

		entry := Entry{}
		err = dec.Decode(&entry)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding entry for %s", key)
		}
		entry.TIPLOC = key
		entries = append(entries, entry)
	}

	return NewTable(entries), nil
}

// Reads the CSV form of the reference data. A leading BOM is ignored.
func LoadCSV(r io.Reader) (*Table, error) {
	entries := []Entry{}
	err := gocsv.UnmarshalCSV(gocsv.LazyCSVReader(bom.NewReader(r)), &entries)
	if err != nil {
		return nil, errors.Wrap(err, "unmarshaling reference csv")
	}
	return NewTable(entries), nil
}

// Resolves a TIPLOC to its CRS.
func (t *Table) CRS(tiploc model.TIPLOC) (model.CRS, bool) {
	if t == nil {
		return "", false
	}
	crs, ok := t.crsByTIPLOC[tiploc]
	return crs, ok
}

// Display name of a station. Falls back to the code itself.
func (t *Table) Name(crs model.CRS) string {
	if t != nil {
		if name, ok := t.nameByCRS[crs]; ok {
			return name
		}
	}
	return string(crs)
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.crsByTIPLOC)
}

type Station struct {
	CRS  model.CRS
	Name string
}

// All stations with a known name, sorted by name.
func (t *Table) Stations() []Station {
	if t == nil {
		return []Station{}
	}

	stations := make([]Station, 0, len(t.nameByCRS))
	for crs, name := range t.nameByCRS {
		stations = append(stations, Station{CRS: crs, Name: name})
	}
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].Name != stations[j].Name {
			return stations[i].Name < stations[j].Name
		}
		return stations[i].CRS < stations[j].CRS
	})

	return stations
}

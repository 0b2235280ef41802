// Package refdata provides the static track reference table consulted during enrichment.
package refdata

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/yourusername/nascar-calendar/internal/models"
)

//go:embed tracks.toml
var defaultTracks []byte

// Track is one reference entry
type Track struct {
	Name        string   `toml:"-"`
	LengthMiles float64  `toml:"length_miles"`
	Lat         *float64 `toml:"lat"`
	Lon         *float64 `toml:"lon"`
}

// Location is a track's coordinates
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type trackFile struct {
	Tracks map[string]Track `toml:"tracks"`
}

// Store is an immutable track lookup keyed by normalized track name
type Store struct {
	tracks map[string]Track
}

// LoadDefault loads the embedded track table
func LoadDefault() (*Store, error) {
	return Load(bytes.NewReader(defaultTracks))
}

// LoadFile loads a track table from a TOML file on disk
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewPipelineError(models.KindFatal, "", 0, fmt.Sprintf("open reference data %s", path), err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a TOML track table. Any malformed entry makes the whole table unusable.
func Load(r io.Reader) (*Store, error) {
	var file trackFile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&file); err != nil {
		return nil, models.NewPipelineError(models.KindFatal, "", 0, "decode reference data", err)
	}
	if len(file.Tracks) == 0 {
		return nil, models.NewPipelineError(models.KindFatal, "", 0, "reference data has no tracks", nil)
	}

	tracks := make([]Track, 0, len(file.Tracks))
	for name, t := range file.Tracks {
		t.Name = name
		tracks = append(tracks, t)
	}
	return NewStore(tracks)
}

// NewStore builds a store from explicit entries
func NewStore(tracks []Track) (*Store, error) {
	s := &Store{tracks: make(map[string]Track, len(tracks))}
	for _, t := range tracks {
		key := NormalizeName(t.Name)
		if key == "" {
			return nil, models.NewPipelineError(models.KindFatal, "", 0, "reference track with empty name", nil)
		}
		if t.LengthMiles <= 0 {
			return nil, models.NewPipelineError(models.KindFatal, "", 0, fmt.Sprintf("track %q has non-positive length %v", t.Name, t.LengthMiles), nil)
		}
		if (t.Lat == nil) != (t.Lon == nil) {
			return nil, models.NewPipelineError(models.KindFatal, "", 0, fmt.Sprintf("track %q has only one coordinate", t.Name), nil)
		}
		if prev, dup := s.tracks[key]; dup {
			return nil, models.NewPipelineError(models.KindFatal, "", 0, fmt.Sprintf("tracks %q and %q collide after normalization", prev.Name, t.Name), nil)
		}
		s.tracks[key] = t
	}
	return s, nil
}

// LookupTrackLength returns the track length in miles. Unknown tracks are not an error.
func (s *Store) LookupTrackLength(name string) (float64, bool) {
	t, ok := s.tracks[NormalizeName(name)]
	if !ok {
		return 0, false
	}
	return t.LengthMiles, true
}

// LookupTrackLocation returns the track coordinates when the table has them
func (s *Store) LookupTrackLocation(name string) (Location, bool) {
	t, ok := s.tracks[NormalizeName(name)]
	if !ok || t.Lat == nil || t.Lon == nil {
		return Location{}, false
	}
	return Location{Lat: *t.Lat, Lon: *t.Lon}, true
}

// Len returns the number of tracks
func (s *Store) Len() int {
	return len(s.tracks)
}

// Tracks returns all entries sorted by name
func (s *Store) Tracks() []Track {
	out := make([]Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NormalizeName folds case, composes unicode and collapses whitespace.
// It does not strip words or punctuation: lookups stay exact.
func NormalizeName(name string) string {
	folded := cases.Fold().String(norm.NFC.String(name))
	return strings.Join(strings.Fields(folded), " ")
}

package refdata

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/nascar-calendar/internal/models"
)

func TestLoadDefault(t *testing.T) {
	store, err := LoadDefault()
	require.NoError(t, err)
	assert.Greater(t, store.Len(), 30)

	length, ok := store.LookupTrackLength("Daytona International Speedway")
	require.True(t, ok)
	assert.Equal(t, 2.5, length)

	loc, ok := store.LookupTrackLocation("Daytona International Speedway")
	require.True(t, ok)
	assert.InDelta(t, 29.18, loc.Lat, 0.01)
}

func TestLookupNormalizesCaseAndWhitespace(t *testing.T) {
	store, err := LoadDefault()
	require.NoError(t, err)

	tests := []struct {
		name  string
		input string
		found bool
	}{
		{"Exact", "Martinsville Speedway", true},
		{"Upper case", "MARTINSVILLE SPEEDWAY", true},
		{"Extra whitespace", "  Martinsville   Speedway ", true},
		{"Accented", "autódromo hermanos rodríguez", true},
		{"Partial name", "Martinsville", false},
		{"Unknown", "Nowhere Oval", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := store.LookupTrackLength(tt.input)
			assert.Equal(t, tt.found, ok)
		})
	}
}

func TestLoadRejectsInvalidTables(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"Empty", ``},
		{"Zero length", "[tracks.\"A\"]\nlength_miles = 0\n"},
		{"Unknown field", "[tracks.\"A\"]\nlength_miles = 1.0\nbanking = 12\n"},
		{"Half coordinate", "[tracks.\"A\"]\nlength_miles = 1.0\nlat = 1.0\n"},
		{"Collision", "[tracks.\"A  B\"]\nlength_miles = 1.0\n[tracks.\"a b\"]\nlength_miles = 1.0\n"},
		{"Not toml", "tracks = ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.toml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrFatal), "expected fatal error, got %v", err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile("testdata/does-not-exist.toml")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFatal)
}

func TestTracksSorted(t *testing.T) {
	store, err := NewStore([]Track{
		{Name: "Zeta", LengthMiles: 1},
		{Name: "Alpha", LengthMiles: 2},
	})
	require.NoError(t, err)

	tracks := store.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, "Alpha", tracks[0].Name)

	_, ok := store.LookupTrackLocation("Alpha")
	assert.False(t, ok)
}

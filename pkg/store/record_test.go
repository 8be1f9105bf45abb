// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSighting(t *testing.T) {
	raw := json.RawMessage(`{
		"date": {"@timestamp": "1554076800"},
		"observers": [{
			"id_sighting": 2671175,
			"id_universal": "65_2671175",
			"coord_lon": "5.3698",
			"coord_lat": "43.2965",
			"insert_date": 1530000000,
			"update_date": {"@timestamp": "1554100000"}
		}]
	}`)
	s, err := ParseSighting(raw)
	require.NoError(t, err)
	assert.Equal(t, "2671175", s.ID)
	assert.Equal(t, "65_2671175", s.UniversalID)
	require.True(t, s.HasCoords)
	assert.InDelta(t, 5.3698, s.Lon, 1e-9)
	assert.InDelta(t, 43.2965, s.Lat, 1e-9)
	assert.EqualValues(t, 1554100000, s.UpdateTS)
	assert.EqualValues(t, 1530000000, s.InsertTS)
	assert.EqualValues(t, 1554100000, s.LastModified())
}

func TestParseSightingNeverUpdated(t *testing.T) {
	raw := json.RawMessage(`{"observers": [{"id_sighting": "7", "insert_date": "1530000000"}]}`)
	s, err := ParseSighting(raw)
	require.NoError(t, err)
	assert.False(t, s.HasCoords)
	assert.EqualValues(t, 1530000000, s.LastModified())
}

func TestParseSightingInvalid(t *testing.T) {
	_, err := ParseSighting(json.RawMessage(`{"observers": []}`))
	require.Error(t, err)

	_, err = ParseSighting(json.RawMessage(`{"observers": [{"id_universal": "65_1"}]}`))
	require.Error(t, err)
}

func TestSightingEncodeKeepsLargeIDs(t *testing.T) {
	raw := json.RawMessage(`{"observers": [{"id_sighting": 9007199254740993}]}`)
	s, err := ParseSighting(raw)
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", s.ID)

	s.SetLocalCoords(100.5, 200.5)
	item, err := s.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(item), "9007199254740993")
	assert.Contains(t, string(item), "coord_x_local")
}

func TestParseForm(t *testing.T) {
	raw := json.RawMessage(`{
		"@id": "446",
		"lon": "5.3698",
		"lat": "43.2965",
		"full_form": "1",
		"sightings": [
			{"observers": [{"id_sighting": "1"}]},
			{"observers": [{"id_sighting": "2"}]}
		]
	}`)
	f, err := ParseForm(raw)
	require.NoError(t, err)
	assert.Equal(t, "446", f.ID)
	assert.True(t, f.HasCoords)
	require.Len(t, f.Sightings, 2)

	item, err := f.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(item), "sightings")
	assert.Contains(t, string(item), "full_form")
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(json.RawMessage(`{"id": 42, "coord_lon": "2.35", "coord_lat": "48.85"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	lon, lat, ok := rec.Coords()
	require.True(t, ok)
	assert.InDelta(t, 2.35, lon, 1e-9)
	assert.InDelta(t, 48.85, lat, 1e-9)

	_, err = ParseRecord(json.RawMessage(`{"name": "anonymous"}`))
	require.Error(t, err)
}

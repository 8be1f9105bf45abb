// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Record is one generic controller item, decoded just enough to expose
// its upsert identity and, for geometry controllers, its coordinates.
type Record struct {
	ID   string
	body map[string]interface{}
}

// ParseRecord decodes a raw item and extracts its id.
func ParseRecord(raw json.RawMessage) (*Record, error) {
	body, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	id := asString(body["id"])
	if id == "" {
		return nil, Error.New("record has no id")
	}
	return &Record{ID: id, body: body}, nil
}

// Coords returns the record's WGS84 coordinates, when present.
func (r *Record) Coords() (lon, lat float64, ok bool) {
	lon, lonOK := asFloat(r.body["coord_lon"])
	lat, latOK := asFloat(r.body["coord_lat"])
	return lon, lat, lonOK && latOK
}

// SetLocalCoords augments the record with projected coordinates.
func (r *Record) SetLocalCoords(x, y float64) {
	r.body["coord_x_local"] = x
	r.body["coord_y_local"] = y
}

// Encode serializes the record back to JSON.
func (r *Record) Encode() ([]byte, error) {
	item, err := json.Marshal(r.body)
	return item, Error.Wrap(err)
}

// Sighting is the store-side view of one observation record. The
// identifying fields live on the first observer entry; the full body is
// kept for serialization.
type Sighting struct {
	ID          string
	UniversalID string
	Lon         float64
	Lat         float64
	HasCoords   bool
	UpdateTS    int64
	InsertTS    int64

	body     map[string]interface{}
	observer map[string]interface{}
}

// ParseSighting decodes one raw sighting. Identity and timestamps come
// from the first entry of the observers list.
func ParseSighting(raw json.RawMessage) (*Sighting, error) {
	body, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	observers, ok := body["observers"].([]interface{})
	if !ok || len(observers) == 0 {
		return nil, Error.New("sighting has no observers")
	}
	observer, ok := observers[0].(map[string]interface{})
	if !ok {
		return nil, Error.New("malformed observer entry")
	}

	s := &Sighting{body: body, observer: observer}
	s.ID = asString(observer["id_sighting"])
	if s.ID == "" {
		return nil, Error.New("sighting has no id_sighting")
	}
	s.UniversalID = asString(observer["id_universal"])
	lon, lonOK := asFloat(observer["coord_lon"])
	lat, latOK := asFloat(observer["coord_lat"])
	s.Lon, s.Lat, s.HasCoords = lon, lat, lonOK && latOK
	s.UpdateTS = asTimestamp(observer["update_date"])
	s.InsertTS = asTimestamp(observer["insert_date"])
	return s, nil
}

// LastModified returns the update timestamp, falling back to the
// insertion timestamp for records never modified since creation.
func (s *Sighting) LastModified() int64 {
	if s.UpdateTS != 0 {
		return s.UpdateTS
	}
	return s.InsertTS
}

// SetLocalCoords augments the observer entry with projected coordinates.
func (s *Sighting) SetLocalCoords(x, y float64) {
	s.observer["coord_x_local"] = x
	s.observer["coord_y_local"] = y
}

// Encode serializes the sighting back to JSON.
func (s *Sighting) Encode() ([]byte, error) {
	item, err := json.Marshal(s.body)
	return item, Error.Wrap(err)
}

// Form is the non-sighting part of a form record plus the sightings it
// embeds. The embedded sightings are stored through the observation
// pipeline; the remainder is stored as a form record.
type Form struct {
	ID        string
	Lon       float64
	Lat       float64
	HasCoords bool
	Sightings []json.RawMessage

	body map[string]interface{}
}

// ParseForm decodes one raw form and splits out its embedded sightings.
func ParseForm(raw json.RawMessage) (*Form, error) {
	body, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	f := &Form{body: body}
	f.ID = asString(body["@id"])
	if f.ID == "" {
		return nil, Error.New("form has no @id")
	}
	lon, lonOK := asFloat(body["lon"])
	lat, latOK := asFloat(body["lat"])
	f.Lon, f.Lat, f.HasCoords = lon, lat, lonOK && latOK

	if embedded, ok := body["sightings"].([]interface{}); ok {
		for _, entry := range embedded {
			raw, err := json.Marshal(entry)
			if err != nil {
				return nil, Error.Wrap(err)
			}
			f.Sightings = append(f.Sightings, raw)
		}
		delete(body, "sightings")
	}
	return f, nil
}

// SetLocalCoords augments the form with projected coordinates.
func (f *Form) SetLocalCoords(x, y float64) {
	f.body["coord_x_local"] = x
	f.body["coord_y_local"] = y
}

// Encode serializes the form, without its sightings, back to JSON.
func (f *Form) Encode() ([]byte, error) {
	item, err := json.Marshal(f.body)
	return item, Error.Wrap(err)
}

// decodeObject unmarshals raw into a map, keeping numbers as
// json.Number so large ids survive the round trip.
func decodeObject(raw json.RawMessage) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return nil, Error.Wrap(err)
	}
	return body, nil
}

// asString renders the provider's string-or-number fields as a string.
func asString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// asFloat parses the provider's string-or-number fields as a float.
func asFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asTimestamp parses the provider's timestamp fields, which appear as a
// unix epoch number, a numeric string, or an object carrying an
// @timestamp key. Returns 0 when absent or unreadable.
func asTimestamp(v interface{}) int64 {
	switch v := v.(type) {
	case json.Number:
		ts, err := v.Int64()
		if err != nil {
			return 0
		}
		return ts
	case string:
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0
		}
		return ts
	case map[string]interface{}:
		return asTimestamp(v["@timestamp"])
	default:
		return 0
	}
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnapi

import (
	"bytes"
	"encoding/json"
)

// Response is the merged logical result of one request across all of
// its chunks. Same-named lists are concatenated in arrival order; the
// first chunk seeds the accumulator and subsequent chunks append.
type Response struct {
	// Items holds the top-level "data" array of plain controllers.
	Items []json.RawMessage
	// Sightings and Forms hold the nested observation lists.
	Sightings []json.RawMessage
	Forms     []json.RawMessage
	// List holds bare-array payloads, e.g. observations/diff.
	List []json.RawMessage
}

// Count returns the number of top-level records in the response.
func (r *Response) Count() int {
	return len(r.Items) + len(r.Sightings) + len(r.Forms) + len(r.List)
}

// merge appends one decoded wire chunk to the accumulator.
func (r *Response) merge(chunk []byte) error {
	trimmed := bytes.TrimLeft(chunk, " \t\r\n")
	if len(trimmed) == 0 {
		return Error.New("empty response body")
	}

	if trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return Error.Wrap(err)
		}
		r.List = append(r.List, list...)
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return Error.Wrap(err)
	}
	data := bytes.TrimLeft(envelope.Data, " \t\r\n")
	if len(data) == 0 {
		// no data key, nothing to accumulate
		return nil
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return Error.Wrap(err)
		}
		r.Items = append(r.Items, items...)
		return nil
	}

	var observations struct {
		Sightings []json.RawMessage `json:"sightings"`
		Forms     []json.RawMessage `json:"forms"`
	}
	if err := json.Unmarshal(data, &observations); err != nil {
		return Error.Wrap(err)
	}
	r.Sightings = append(r.Sightings, observations.Sightings...)
	r.Forms = append(r.Forms, observations.Forms...)
	return nil
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBareList(t *testing.T) {
	resp := &Response{}
	require.NoError(t, resp.merge([]byte(`[{"id_sighting": "1"}]`)))
	require.NoError(t, resp.merge([]byte(`[{"id_sighting": "2"}, {"id_sighting": "3"}]`)))

	require.Len(t, resp.List, 3)
	assert.JSONEq(t, `{"id_sighting": "1"}`, string(resp.List[0]))
	assert.JSONEq(t, `{"id_sighting": "3"}`, string(resp.List[2]))
}

func TestMergeDataList(t *testing.T) {
	resp := &Response{}
	require.NoError(t, resp.merge([]byte(`{"data": [{"id": "1"}]}`)))
	require.NoError(t, resp.merge([]byte(`{"data": [{"id": "2"}]}`)))

	require.Len(t, resp.Items, 2)
	assert.JSONEq(t, `{"id": "1"}`, string(resp.Items[0]))
	assert.JSONEq(t, `{"id": "2"}`, string(resp.Items[1]))
}

func TestMergeSightingsAndForms(t *testing.T) {
	resp := &Response{}
	require.NoError(t, resp.merge([]byte(`{"data": {"sightings": [{"obs": "a"}], "forms": [{"@id": "f1"}]}}`)))
	require.NoError(t, resp.merge([]byte(`{"data": {"sightings": [{"obs": "b"}]}}`)))
	require.NoError(t, resp.merge([]byte(`{"data": {"forms": [{"@id": "f2"}]}}`)))

	require.Len(t, resp.Sightings, 2)
	require.Len(t, resp.Forms, 2)
	assert.JSONEq(t, `{"obs": "a"}`, string(resp.Sightings[0]))
	assert.JSONEq(t, `{"obs": "b"}`, string(resp.Sightings[1]))
	assert.JSONEq(t, `{"@id": "f2"}`, string(resp.Forms[1]))
	assert.Equal(t, 4, resp.Count())
}

func TestMergeRejectsGarbage(t *testing.T) {
	resp := &Response{}
	assert.Error(t, resp.merge([]byte(`<html></html>`)))
	assert.Error(t, resp.merge([]byte(``)))
}

func TestMergeWithoutData(t *testing.T) {
	resp := &Response{}
	require.NoError(t, resp.merge([]byte(`{"status": "ok"}`)))
	assert.Equal(t, 0, resp.Count())
}

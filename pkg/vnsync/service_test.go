// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"vnsync.io/vnsync/internal/testcontext"
	"vnsync.io/vnsync/pkg/store"
	"vnsync.io/vnsync/pkg/vnapi"
)

// fakeStore records store calls in memory.
type fakeStore struct {
	mu           sync.Mutex
	observations map[string]bool
	records      map[string]int
	watermarks   map[string]time.Time
	logs         []string
	storeErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		observations: map[string]bool{},
		records:      map[string]int{},
		watermarks:   map[string]time.Time{},
	}
}

func (f *fakeStore) Store(ctx context.Context, ctrl store.Controller, seq string, resp *vnapi.Response) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return 0, f.storeErr
	}
	if ctrl.Kind == store.KindObservation {
		for _, raw := range resp.Sightings {
			sighting, err := store.ParseSighting(raw)
			if err != nil {
				return 0, err
			}
			f.observations[sighting.ID] = true
		}
		return len(resp.Sightings), nil
	}
	f.records[ctrl.Name] += len(resp.Items)
	return len(resp.Items), nil
}

func (f *fakeStore) DeleteObservations(ctx context.Context, ids []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for _, id := range ids {
		if f.observations[id] {
			delete(f.observations, id)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) Log(ctx context.Context, site, controller string, errorCount, httpStatus int, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, controller+": "+comment)
	return nil
}

func (f *fakeStore) IncrementLog(ctx context.Context, site, taxoGroup string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermarks[site+"|"+taxoGroup] = ts
	return nil
}

func (f *fakeStore) IncrementGet(ctx context.Context, site, taxoGroup string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.watermarks[site+"|"+taxoGroup]
	return ts, ok, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) watermark(site, taxoGroup string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.watermarks[site+"|"+taxoGroup]
	return ts, ok
}

func (f *fakeStore) hasObservation(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.observations[id]
}

// counter tracks per-path server hits.
type counter struct {
	mu   sync.Mutex
	hits map[string]int
}

func newCounter() *counter { return &counter{hits: map[string]int{}} }

func (c *counter) inc(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[path]++
}

func (c *counter) get(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits[path]
}

func testService(t *testing.T, db store.Store, baseURL string) *Service {
	return New(zaptest.NewLogger(t), db,
		vnapi.Config{
			BaseURL:    baseURL,
			UserEmail:  "tester@example.org",
			UserPw:     "secret",
			RetryDelay: time.Millisecond,
		},
		Config{Site: "tst"})
}

const taxoGroupsBody = `{"data": [
	{"id": "1", "name": "Birds", "access_mode": "full"},
	{"id": "18", "name": "Mammals", "access_mode": "full"},
	{"id": "19", "name": "Restricted", "access_mode": "none"}
]}`

func TestUpdateSkipsPartitionsWithoutWatermark(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	hits := newCounter()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		hits.inc(r.URL.Path)
		_, _ = w.Write([]byte(taxoGroupsBody))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		hits.inc(r.URL.Path)
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	service := testService(t, db, server.URL)

	require.NoError(t, service.Update(ctx))

	assert.Zero(t, hits.get("/api/observations/diff/"), "no partition has a watermark, no diff expected")
	_, found := db.watermark("tst", "1")
	assert.False(t, found, "skipping must not create a watermark")
}

func TestUpdateAppliesDiff(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	since := time.Date(2019, 4, 1, 12, 30, 0, 0, time.UTC)

	var diffDates []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "1", "name": "Birds", "access_mode": "full"}]}`))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		diffDates = append(diffDates, r.URL.Query().Get("date"))
		_, _ = w.Write([]byte(`[
			{"id_sighting": "10", "id_universal": "65_10", "modification_type": "updated"},
			{"id_sighting": "11", "id_universal": "65_11", "modification_type": "deleted"}
		]`))
	})
	mux.HandleFunc("/api/observations/10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"sightings": [
			{"observers": [{"id_sighting": "10", "id_universal": "65_10", "update_date": 1554121800}]}
		]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	db.observations["11"] = true
	require.NoError(t, db.IncrementLog(ctx, "tst", "1", since))

	service := testService(t, db, server.URL)
	syncStart := time.Now()
	require.NoError(t, service.Update(ctx))

	require.Equal(t, []string{"2019-04-01 12:30:00"}, diffDates)
	assert.True(t, db.hasObservation("10"), "updated observation must be stored")
	assert.False(t, db.hasObservation("11"), "deleted observation must be removed")

	advanced, found := db.watermark("tst", "1")
	require.True(t, found)
	assert.False(t, advanced.Before(syncStart), "watermark must advance to the sync start")
}

func TestUpdateRejectsUnknownModification(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "1", "name": "Birds", "access_mode": "full"}]}`))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id_sighting": "10", "modification_type": "updated"},
			{"id_sighting": "66", "modification_type": "frobbed"}
		]`))
	})
	mux.HandleFunc("/api/observations/10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"sightings": [
			{"observers": [{"id_sighting": "10", "update_date": 1}]}
		]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	require.NoError(t, db.IncrementLog(ctx, "tst", "1", time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC)))

	service := testService(t, db, server.URL)
	err := service.Update(ctx)
	require.Error(t, err)
	assert.True(t, ErrUnknownModification.Has(err))
	assert.False(t, db.hasObservation("10"), "a poisoned diff response stores nothing")
	assert.False(t, db.hasObservation("66"))
}

func TestUpdateSinceOverridesWatermark(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var mu sync.Mutex
	diffDates := map[string]string{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [
			{"id": "1", "name": "Birds", "access_mode": "full"},
			{"id": "18", "name": "Mammals", "access_mode": "full"}
		]}`))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		diffDates[r.URL.Query().Get("id_taxo_group")] = r.URL.Query().Get("date")
		mu.Unlock()
		_, _ = w.Write([]byte(`[]`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	// group 1 has a watermark, group 18 has none
	require.NoError(t, db.IncrementLog(ctx, "tst", "1", time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC)))

	service := testService(t, db, server.URL)
	override := time.Date(2020, 1, 15, 8, 0, 0, 0, time.UTC)
	require.NoError(t, service.UpdateSince(ctx, override))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "2020-01-15 08:00:00", diffDates["1"], "explicit since beats the stored watermark")
	assert.Equal(t, "2020-01-15 08:00:00", diffDates["18"], "explicit since runs partitions without a watermark")
	_, found := db.watermark("tst", "18")
	assert.True(t, found, "the run records a fresh watermark")
}

func TestUpdateAuditsFailedCycle(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "1", "name": "Birds", "access_mode": "full"}]}`))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	require.NoError(t, db.IncrementLog(ctx, "tst", "1", time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC)))

	service := testService(t, db, server.URL)
	require.Error(t, service.Update(ctx))

	db.mu.Lock()
	defer db.mu.Unlock()
	assert.Contains(t, db.logs, "observations: diff 1", "a failed diff cycle still leaves an audit entry")
}

func TestUpdateWatermarkAdvancesOnFailure(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": [{"id": "1", "name": "Birds", "access_mode": "full"}]}`))
	})
	mux.HandleFunc("/api/observations/diff/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id_sighting": "10", "modification_type": "updated"}]`))
	})
	mux.HandleFunc("/api/observations/10", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"sightings": [
			{"observers": [{"id_sighting": "10", "update_date": 1}]}
		]}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	since := time.Date(2019, 4, 1, 0, 0, 0, 0, time.UTC)
	db := newFakeStore()
	require.NoError(t, db.IncrementLog(ctx, "tst", "1", since))
	db.storeErr = Error.New("disk full")

	service := testService(t, db, server.URL)
	require.Error(t, service.Update(ctx))

	advanced, found := db.watermark("tst", "1")
	require.True(t, found)
	assert.True(t, advanced.After(since), "watermark advances even when the apply fails")
}

func TestDownloadSimpleUsesListCache(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	hits := newCounter()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		hits.inc(r.URL.Path)
		_, _ = w.Write([]byte(taxoGroupsBody))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	service := testService(t, db, server.URL)

	require.NoError(t, service.DownloadSimple(ctx, store.TaxoGroups))
	require.NoError(t, service.DownloadSimple(ctx, store.TaxoGroups))

	assert.Equal(t, 1, hits.get("/api/taxo_groups"), "second download must be served from cache")
	assert.Equal(t, 6, db.records["taxo_groups"])
	assert.Len(t, db.logs, 2)
}

func TestDownloadSpecies(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	var taxoParams []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/taxo_groups", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(taxoGroupsBody))
	})
	mux.HandleFunc("/api/species", func(w http.ResponseWriter, r *http.Request) {
		taxoParams = append(taxoParams, r.URL.Query().Get("id_taxo_group"))
		_, _ = w.Write([]byte(`{"data": [{"id": "33", "is_used": "1"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := newFakeStore()
	service := testService(t, db, server.URL)

	require.NoError(t, service.DownloadSpecies(ctx))

	// the group with access_mode none is not queried
	assert.Equal(t, []string{"1", "18"}, taxoParams)
	assert.Equal(t, 2, db.records["species"])
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"vnsync.io/vnsync/internal/dbutil"
	"vnsync.io/vnsync/pkg/vnapi"
)

// Config holds the database settings.
type Config struct {
	Database  string `help:"database connection URL (postgres:// or sqlite3://)" default:"sqlite3://vnsync.db"`
	Site      string `help:"short site identifier stored with every record" default:""`
	LocalSRID int    `help:"EPSG code of the local coordinate reference system" default:"2154"`
	Workers   int    `help:"number of observation store workers" default:"4"`
	QueueSize int    `help:"capacity of the observation store queue" default:"100000"`
}

// execer is satisfied by *sql.DB and *sql.Conn.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQL implements Store on top of postgres or sqlite.
type SQL struct {
	log      *zap.Logger
	db       *sql.DB
	driver   string
	site     string
	proj     *Reprojector
	pipeline *pipeline
}

var _ Store = (*SQL)(nil)

// Open connects to the database named by cfg.Database and starts the
// observation pipeline. The context outlives the call; pipeline workers
// run until Close.
func Open(ctx context.Context, log *zap.Logger, cfg Config) (*SQL, error) {
	driver, source, err := dbutil.SplitConnStr(cfg.Database)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	dbutil.Configure(db, mon)
	if err := db.PingContext(ctx); err != nil {
		return nil, Error.Wrap(errs.Combine(err, db.Close()))
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100000
	}
	srid := cfg.LocalSRID
	if srid == 0 {
		srid = 2154
	}

	s := &SQL{
		log:    log,
		db:     db,
		driver: driver,
		site:   cfg.Site,
		proj:   NewReprojector(srid),
	}
	s.pipeline = newPipeline(log.Named("pipeline"), s, workers, queueSize)
	s.pipeline.start(ctx)
	return s, nil
}

// Close drains the observation pipeline and closes the database.
func (s *SQL) Close() error {
	return Error.Wrap(errs.Combine(
		s.pipeline.close(),
		s.db.Close(),
	))
}

// Store dispatches the response to the persistence strategy of the
// controller's kind. seq tags the originating fetch in debug logs.
func (s *SQL) Store(ctx context.Context, ctrl Controller, seq string, resp *vnapi.Response) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	s.log.Debug("storing response",
		zap.String("controller", ctrl.Name),
		zap.String("seq", seq),
		zap.Int("records", resp.Count()))

	switch ctrl.Kind {
	case KindSimple:
		return s.storeSimple(ctx, ctrl, resp)
	case KindGeometry:
		return s.storeGeometry(ctx, ctrl, resp)
	case KindObservation:
		return s.storeObservations(ctx, ctrl, resp)
	default:
		return 0, Error.New("unknown controller kind %d", ctrl.Kind)
	}
}

func (s *SQL) storeSimple(ctx context.Context, ctrl Controller, resp *vnapi.Response) (int, error) {
	count := 0
	for _, raw := range resp.Items {
		rec, err := ParseRecord(raw)
		if err != nil {
			return count, err
		}
		if err := s.upsert(ctx, s.db, ctrl.Table(), rec.ID, raw); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func (s *SQL) storeGeometry(ctx context.Context, ctrl Controller, resp *vnapi.Response) (int, error) {
	count := 0
	for _, raw := range resp.Items {
		rec, err := ParseRecord(raw)
		if err != nil {
			return count, err
		}
		if lon, lat, ok := rec.Coords(); ok {
			x, y := s.proj.Project(lon, lat)
			rec.SetLocalCoords(x, y)
		}
		item, err := rec.Encode()
		if err != nil {
			return count, err
		}
		if err := s.upsert(ctx, s.db, ctrl.Table(), rec.ID, item); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// storeObservations unwraps sightings and forms. Sightings go through
// the pipeline; only top-level sightings get a uuid cross reference.
// The form remainder is stored as a form record.
func (s *SQL) storeObservations(ctx context.Context, ctrl Controller, resp *vnapi.Response) (int, error) {
	count := 0
	for _, raw := range resp.Sightings {
		sighting, err := ParseSighting(raw)
		if err != nil {
			return count, err
		}
		if err := s.upsertUUID(ctx, sighting.ID, sighting.UniversalID); err != nil {
			return count, err
		}
		s.pipeline.submit(&obsTask{table: ctrl.Table(), sighting: sighting})
		count++
	}
	for _, raw := range resp.Forms {
		form, err := ParseForm(raw)
		if err != nil {
			return count, err
		}
		for _, rawSighting := range form.Sightings {
			sighting, err := ParseSighting(rawSighting)
			if err != nil {
				return count, err
			}
			s.pipeline.submit(&obsTask{table: ctrl.Table(), sighting: sighting})
			count++
		}
		if err := s.storeForm(ctx, form); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *SQL) storeForm(ctx context.Context, form *Form) error {
	if form.HasCoords {
		x, y := s.proj.Project(form.Lon, form.Lat)
		form.SetLocalCoords(x, y)
	}
	item, err := form.Encode()
	if err != nil {
		return err
	}
	return s.upsert(ctx, s.db, "forms_json", form.ID, item)
}

// writeObservation is executed by pipeline workers on their own
// connection.
func (s *SQL) writeObservation(ctx context.Context, ex execer, task *obsTask) error {
	sighting := task.sighting
	if sighting.HasCoords {
		x, y := s.proj.Project(sighting.Lon, sighting.Lat)
		sighting.SetLocalCoords(x, y)
	}
	item, err := sighting.Encode()
	if err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO ` + task.table + ` (id, site, update_ts, item)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id, site)
		DO UPDATE SET update_ts = EXCLUDED.update_ts, item = EXCLUDED.item`)
	_, err = ex.ExecContext(ctx, query, sighting.ID, s.site, sighting.LastModified(), string(item))
	return Error.Wrap(err)
}

func (s *SQL) upsert(ctx context.Context, ex execer, table, id string, item []byte) error {
	query := s.rebind(`
		INSERT INTO ` + table + ` (id, site, item)
		VALUES ($1, $2, $3)
		ON CONFLICT (id, site)
		DO UPDATE SET item = EXCLUDED.item`)
	_, err := ex.ExecContext(ctx, query, id, s.site, string(item))
	return Error.Wrap(err)
}

// upsertUUID assigns a permanent local uuid to a sighting the first
// time it is seen. Later calls leave the existing uuid untouched.
func (s *SQL) upsertUUID(ctx context.Context, id, universalID string) error {
	query := s.rebind(`
		INSERT INTO uuid_xref (id, site, universal_id, uuid, update_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, site) DO NOTHING`)
	_, err := s.db.ExecContext(ctx, query, id, s.site, universalID, uuid.New().String(), time.Now().UTC())
	return Error.Wrap(err)
}

// DeleteObservations removes observations by id. Postgres deletes the
// whole batch in one statement; sqlite deletes row by row.
func (s *SQL) DeleteObservations(ctx context.Context, ids []string) (_ int, err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) == 0 {
		return 0, nil
	}
	deleted := int64(0)
	if s.driver == "postgres" {
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM observations_json WHERE site = $1 AND id = ANY($2)`,
			s.site, pq.Array(ids))
		if err != nil {
			return 0, Error.Wrap(err)
		}
		deleted, err = res.RowsAffected()
		if err != nil {
			return 0, Error.Wrap(err)
		}
	} else {
		for _, id := range ids {
			res, err := s.db.ExecContext(ctx,
				s.rebind(`DELETE FROM observations_json WHERE site = $1 AND id = $2`),
				s.site, id)
			if err != nil {
				return int(deleted), Error.Wrap(err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return int(deleted), Error.Wrap(err)
			}
			deleted += n
		}
	}
	mon.Counter("deleted_observations").Inc(deleted)
	return int(deleted), nil
}

// Log appends one download audit entry.
func (s *SQL) Log(ctx context.Context, site, controller string, errorCount, httpStatus int, comment string) (err error) {
	defer mon.Task()(&ctx)(&err)

	query := s.rebind(`
		INSERT INTO download_log (site, controller, error_count, http_status, comment)
		VALUES ($1, $2, $3, $4, $5)`)
	_, err = s.db.ExecContext(ctx, query, site, controller, errorCount, httpStatus, comment)
	return Error.Wrap(err)
}

// IncrementLog stores the incremental watermark for one partition,
// replacing any previous value.
func (s *SQL) IncrementLog(ctx context.Context, site, taxoGroup string, ts time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	query := s.rebind(`
		INSERT INTO increment_log (site, taxo_group, last_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (site, taxo_group)
		DO UPDATE SET last_ts = EXCLUDED.last_ts`)
	_, err = s.db.ExecContext(ctx, query, site, taxoGroup, ts.UTC())
	return Error.Wrap(err)
}

// IncrementGet returns the incremental watermark for one partition and
// whether one has ever been recorded.
func (s *SQL) IncrementGet(ctx context.Context, site, taxoGroup string) (_ time.Time, _ bool, err error) {
	defer mon.Task()(&ctx)(&err)

	query := s.rebind(`
		SELECT last_ts FROM increment_log WHERE site = $1 AND taxo_group = $2`)
	var ts time.Time
	err = s.db.QueryRowContext(ctx, query, site, taxoGroup).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, Error.Wrap(err)
	}
	return ts, true, nil
}

// TaxonomyCount is one row of the observation summary report.
type TaxonomyCount struct {
	Site     string
	Taxonomy string
	Count    int64
}

// Counts summarizes stored observations per site and taxonomy.
func (s *SQL) Counts(ctx context.Context) (_ []TaxonomyCount, err error) {
	defer mon.Task()(&ctx)(&err)

	query := `
		SELECT site, item->'species'->>'taxonomy' AS taxonomy, COUNT(id)
		FROM observations_json
		GROUP BY site, taxonomy
		ORDER BY site, taxonomy`
	if s.driver == "sqlite3" {
		query = `
			SELECT site, json_extract(item, '$.species.taxonomy') AS taxonomy, COUNT(id)
			FROM observations_json
			GROUP BY site, taxonomy
			ORDER BY site, taxonomy`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = errs.Combine(err, Error.Wrap(rows.Close())) }()

	var counts []TaxonomyCount
	for rows.Next() {
		var row TaxonomyCount
		var taxonomy sql.NullString
		if err := rows.Scan(&row.Site, &taxonomy, &row.Count); err != nil {
			return nil, Error.Wrap(err)
		}
		row.Taxonomy = taxonomy.String
		counts = append(counts, row)
	}
	return counts, Error.Wrap(rows.Err())
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites postgres-style placeholders for sqlite. Queries use
// $1..$n strictly in argument order, so a positional rewrite is safe.
func (s *SQL) rebind(query string) string {
	if s.driver != "sqlite3" {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

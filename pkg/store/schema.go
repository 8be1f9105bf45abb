// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"context"
)

// CreateTables creates the bookkeeping and controller tables when they
// do not exist yet. Safe to run against an initialized database.
func (s *SQL) CreateTables(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

// DropTables removes every table the engine owns.
func (s *SQL) DropTables(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	tables := []string{"download_log", "increment_log", "uuid_xref", "forms_json"}
	for _, ctrl := range All {
		tables = append(tables, ctrl.Table())
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func (s *SQL) schema() []string {
	serial := "SERIAL PRIMARY KEY"
	itemType := "JSONB"
	if s.driver == "sqlite3" {
		serial = "INTEGER PRIMARY KEY AUTOINCREMENT"
		itemType = "TEXT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS download_log (
			id ` + serial + `,
			site TEXT NOT NULL,
			controller TEXT NOT NULL,
			download_ts TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			error_count INTEGER NOT NULL DEFAULT 0,
			http_status INTEGER NOT NULL DEFAULT 0,
			comment TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS download_log_site_idx ON download_log (site, controller)`,
		`CREATE TABLE IF NOT EXISTS increment_log (
			id ` + serial + `,
			site TEXT NOT NULL,
			taxo_group TEXT NOT NULL,
			last_ts TIMESTAMP NOT NULL,
			UNIQUE (site, taxo_group)
		)`,
		`CREATE TABLE IF NOT EXISTS uuid_xref (
			id TEXT NOT NULL,
			site TEXT NOT NULL,
			universal_id TEXT NOT NULL,
			uuid TEXT NOT NULL,
			update_ts TIMESTAMP NOT NULL,
			PRIMARY KEY (id, site)
		)`,
		`CREATE TABLE IF NOT EXISTS forms_json (
			id TEXT NOT NULL,
			site TEXT NOT NULL,
			item ` + itemType + ` NOT NULL,
			PRIMARY KEY (id, site)
		)`,
	}
	for _, ctrl := range All {
		if ctrl.Kind == KindObservation {
			stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+ctrl.Table()+` (
				id TEXT NOT NULL,
				site TEXT NOT NULL,
				update_ts BIGINT NOT NULL DEFAULT 0,
				item `+itemType+` NOT NULL,
				PRIMARY KEY (id, site)
			)`)
			continue
		}
		stmts = append(stmts, `CREATE TABLE IF NOT EXISTS `+ctrl.Table()+` (
			id TEXT NOT NULL,
			site TEXT NOT NULL,
			item `+itemType+` NOT NULL,
			PRIMARY KEY (id, site)
		)`)
	}
	return stmts
}

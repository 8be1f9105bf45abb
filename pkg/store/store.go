// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

// Package store persists fetched records and the engine's bookkeeping
// tables in a SQL database.
package store

import (
	"context"
	"time"

	"vnsync.io/vnsync/pkg/vnapi"
)

// Store persists fetched records plus the audit and watermark tables.
type Store interface {
	// Store persists every record of a fetched response under the given
	// controller and returns the number of stored records.
	Store(ctx context.Context, ctrl Controller, seq string, resp *vnapi.Response) (int, error)

	// DeleteObservations removes the observations with the given ids and
	// returns the number of rows actually removed.
	DeleteObservations(ctx context.Context, ids []string) (int, error)

	// Log appends one download audit entry.
	Log(ctx context.Context, site, controller string, errorCount, httpStatus int, comment string) error

	// IncrementLog records the incremental watermark for one partition.
	IncrementLog(ctx context.Context, site, taxoGroup string, ts time.Time) error

	// IncrementGet returns the incremental watermark for one partition,
	// reporting whether one exists.
	IncrementGet(ctx context.Context, site, taxoGroup string) (time.Time, bool, error)

	// Close flushes the observation pipeline and releases the database.
	Close() error
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

// Package vnsync orchestrates downloads from a VisioNature site into
// the local store: full downloads of the reference controllers,
// windowed backfill of the observation history and incremental diff
// updates per taxonomic group.
package vnsync

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"vnsync.io/vnsync/pkg/store"
	"vnsync.io/vnsync/pkg/vnapi"
)

// Config configures the synchronization service.
type Config struct {
	Site        string   `help:"short site identifier stored with every record" default:""`
	TaxoExclude []string `help:"taxonomic group ids excluded from download" default:""`

	Method    string `help:"observation backfill method: search or list" default:"search"`
	BySpecies bool   `help:"explode list backfill per species" default:"false"`

	WindowInitial int     `help:"initial backfill window in days" default:"15"`
	WindowMin     float64 `help:"smallest backfill window in days" default:"10"`
	WindowMax     float64 `help:"largest backfill window in days" default:"2000"`
	WindowKp      float64 `help:"window regulator proportional gain" default:"0"`
	WindowKi      float64 `help:"window regulator integral gain" default:"0.003"`
	WindowKd      float64 `help:"window regulator derivative gain" default:"0"`
	Setpoint      float64 `help:"target observation count per backfill window" default:"10000"`

	CacheSize int           `help:"entries kept in the list response cache" default:"32"`
	CacheTTL  time.Duration `help:"lifetime of cached list responses" default:"1h"`
}

// epochFloor is the date beyond which no site holds observations; the
// backfill walk stops there.
var epochFloor = time.Date(1901, 1, 1, 0, 0, 0, 0, time.UTC)

// searchDateFormat is the dd.mm.yyyy convention of the search endpoint.
const searchDateFormat = "02.01.2006"

// Service drives downloads for one site.
type Service struct {
	log   *zap.Logger
	store store.Store
	api   vnapi.Config
	cfg   Config

	obs   *vnapi.Observations
	cache *expirable.LRU[string, *vnapi.Response]

	now func() time.Time
}

// New creates a synchronization service.
func New(log *zap.Logger, db store.Store, api vnapi.Config, cfg Config) *Service {
	if cfg.Method == "" {
		cfg.Method = "search"
	}
	if cfg.WindowInitial == 0 {
		cfg.WindowInitial = 15
	}
	if cfg.WindowMin == 0 {
		cfg.WindowMin = 10
	}
	if cfg.WindowMax == 0 {
		cfg.WindowMax = 2000
	}
	if cfg.Setpoint == 0 {
		cfg.Setpoint = 10000
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 32
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = time.Hour
	}
	return &Service{
		log:   log,
		store: db,
		api:   api,
		cfg:   cfg,
		obs:   vnapi.NewObservations(log, api),
		cache: expirable.NewLRU[string, *vnapi.Response](cfg.CacheSize, nil, cfg.CacheTTL),
		now:   time.Now,
	}
}

// Update runs one incremental synchronization pass: for every active
// taxonomic group it fetches the diff since the stored watermark,
// refreshes the modified observations and removes the deleted ones.
// A failing group does not stop the others.
func (s *Service) Update(ctx context.Context) error {
	return s.UpdateSince(ctx, time.Time{})
}

// UpdateSince is Update with an explicit lower bound. A non-zero since
// overrides the stored watermark of every partition, so an operator can
// re-synchronize from a chosen date, including partitions that have no
// watermark yet.
func (s *Service) UpdateSince(ctx context.Context, since time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	groups, err := s.activeTaxoGroups(ctx)
	if err != nil {
		return err
	}

	var group errs.Group
	for _, taxoGroup := range groups {
		if err := s.updateTaxoGroup(ctx, taxoGroup.ID, since); err != nil {
			s.log.Error("partition update failed",
				zap.String("taxo_group", taxoGroup.ID),
				zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

// updateTaxoGroup synchronizes one taxonomic group. When since is zero
// it is resolved from the stored watermark. The watermark is advanced
// before the diff is applied: a run that fails midway leaves a gap
// until the next backfill rather than repeating work.
func (s *Service) updateTaxoGroup(ctx context.Context, taxoGroup string, since time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	if since.IsZero() {
		var found bool
		since, found, err = s.store.IncrementGet(ctx, s.cfg.Site, taxoGroup)
		if err != nil {
			return err
		}
		if !found {
			s.log.Info("no watermark, skipping partition",
				zap.String("taxo_group", taxoGroup))
			return nil
		}
	}
	if err := s.store.IncrementLog(ctx, s.cfg.Site, taxoGroup, s.now()); err != nil {
		return err
	}

	// audited whether the cycle succeeds or not
	defer func() {
		logErr := s.audit(ctx, "observations", "diff "+taxoGroup)
		err = errs.Combine(err, logErr)
	}()

	items, err := s.obs.Diff(ctx, taxoGroup, since, vnapi.DiffAll)
	if err != nil {
		return err
	}

	// classification happens before any write: an unrecognized marker
	// discards the whole diff response
	var updated, deleted []string
	var unknown errs.Group
	for _, item := range items {
		switch item.Modification {
		case vnapi.ModificationUpdated:
			updated = append(updated, item.SightingID)
		case vnapi.ModificationDeleted:
			deleted = append(deleted, item.SightingID)
		default:
			s.log.Error("unknown modification marker",
				zap.String("taxo_group", taxoGroup),
				zap.String("id_sighting", item.SightingID),
				zap.String("modification_type", item.Modification))
			unknown.Add(ErrUnknownModification.New("%q for sighting %s", item.Modification, item.SightingID))
		}
	}
	if err := unknown.Err(); err != nil {
		return err
	}
	s.log.Info("diff received",
		zap.String("taxo_group", taxoGroup),
		zap.Time("since", since),
		zap.Int("updated", len(updated)),
		zap.Int("deleted", len(deleted)))

	stored := 0
	for _, id := range updated {
		resp, err := s.obs.Get(ctx, id, nil)
		if err != nil {
			return err
		}
		n, err := s.store.Store(ctx, store.Observations, "diff:"+taxoGroup, resp)
		if err != nil {
			return err
		}
		stored += n
	}
	removed, err := s.store.DeleteObservations(ctx, deleted)
	if err != nil {
		return err
	}

	mon.IntVal("updated_observations").Observe(int64(stored))
	mon.IntVal("deleted_observations").Observe(int64(removed))
	return nil
}

// audit appends one download log entry carrying the observation
// client's cumulative transfer state.
func (s *Service) audit(ctx context.Context, controller, comment string) error {
	return s.store.Log(ctx, s.cfg.Site, controller,
		s.obs.TransferErrors(), s.obs.LastStatus(), comment)
}

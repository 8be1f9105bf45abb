// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnsync

import (
	"context"
	"net/url"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"vnsync.io/vnsync/pkg/regulator"
	"vnsync.io/vnsync/pkg/store"
	"vnsync.io/vnsync/pkg/vnapi"
)

// Backfill downloads the complete observation history of every active
// taxonomic group and seeds the incremental watermark, so later Update
// runs pick up from the backfill start. A failing group does not stop
// the others.
func (s *Service) Backfill(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	if s.cfg.Method != "search" && s.cfg.Method != "list" {
		return Error.New("unknown backfill method %q", s.cfg.Method)
	}

	groups, err := s.activeTaxoGroups(ctx)
	if err != nil {
		return err
	}

	var group errs.Group
	for _, taxoGroup := range groups {
		if err := s.backfillTaxoGroup(ctx, taxoGroup.ID); err != nil {
			s.log.Error("partition backfill failed",
				zap.String("taxo_group", taxoGroup.ID),
				zap.Error(err))
			group.Add(err)
		}
	}
	return group.Err()
}

func (s *Service) backfillTaxoGroup(ctx context.Context, taxoGroup string) (err error) {
	defer mon.Task()(&ctx)(&err)

	started := s.now()
	defer func() {
		logErr := s.audit(ctx, "observations", "backfill "+taxoGroup)
		err = errs.Combine(err, logErr)
	}()

	switch s.cfg.Method {
	case "list":
		err = s.backfillList(ctx, taxoGroup)
	default:
		err = s.backfillSearch(ctx, taxoGroup)
	}
	if err != nil {
		return err
	}
	// modifications made while the backfill ran are picked up by the
	// next incremental pass
	return s.store.IncrementLog(ctx, s.cfg.Site, taxoGroup, started)
}

// backfillSearch walks date windows backwards from now until the epoch
// floor, one search query per window. The window length is driven by a
// regulator aiming at a constant observation count per query.
func (s *Service) backfillSearch(ctx context.Context, taxoGroup string) error {
	pid := regulator.New(regulator.Config{
		Kp:       s.cfg.WindowKp,
		Ki:       s.cfg.WindowKi,
		Kd:       s.cfg.WindowKd,
		Setpoint: s.cfg.Setpoint,
		Min:      s.cfg.WindowMin,
		Max:      s.cfg.WindowMax,
	}, float64(s.cfg.WindowInitial))

	total := 0
	windows := 0
	end := s.now()
	days := float64(s.cfg.WindowInitial)
	for end.After(epochFloor) {
		start := end.Add(-time.Duration(days * 24 * float64(time.Hour)))
		if start.Before(epochFloor) {
			start = epochFloor
		}
		query := &vnapi.SearchQuery{
			PeriodChoice:   "range",
			DateFrom:       start.Format(searchDateFormat),
			DateTo:         end.Format(searchDateFormat),
			TaxonomicGroup: taxoGroup,
		}
		resp, err := s.obs.Search(ctx, query, nil)
		if err != nil {
			return err
		}
		stored, err := s.store.Store(ctx, store.Observations, "search:"+taxoGroup+":"+query.DateFrom, resp)
		if err != nil {
			return err
		}
		total += stored
		windows++

		s.log.Debug("window downloaded",
			zap.String("taxo_group", taxoGroup),
			zap.String("from", query.DateFrom),
			zap.String("to", query.DateTo),
			zap.Int("observations", stored),
			zap.Float64("window_days", days))

		days = pid.Update(float64(stored))
		end = start
	}

	s.log.Info("backfill finished",
		zap.String("taxo_group", taxoGroup),
		zap.Int("observations", total),
		zap.Int("windows", windows))
	return nil
}

// backfillList downloads the whole group in one list call, optionally
// exploded per species for groups too large for a single response.
func (s *Service) backfillList(ctx context.Context, taxoGroup string) error {
	if !s.cfg.BySpecies {
		resp, err := s.obs.ListTaxoGroup(ctx, taxoGroup, nil)
		if err != nil {
			return err
		}
		_, err = s.store.Store(ctx, store.Observations, "list:"+taxoGroup, resp)
		return err
	}

	speciesClient := vnapi.NewSpecies(s.log, s.api)
	params := url.Values{}
	params.Set("id_taxo_group", taxoGroup)
	resp, err := speciesClient.List(ctx, params)
	if err != nil {
		return err
	}
	species, err := vnapi.DecodeSpecies(resp)
	if err != nil {
		return err
	}

	for _, one := range species {
		if one.IsUsed != "1" {
			continue
		}
		params := url.Values{}
		params.Set("id_species", one.ID)
		resp, err := s.obs.List(ctx, params)
		if err != nil {
			return err
		}
		if _, err := s.store.Store(ctx, store.Observations, "list:"+taxoGroup+":"+one.ID, resp); err != nil {
			return err
		}
	}
	return nil
}

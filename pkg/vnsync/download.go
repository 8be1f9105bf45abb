// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnsync

import (
	"context"
	"net/url"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"vnsync.io/vnsync/pkg/store"
	"vnsync.io/vnsync/pkg/vnapi"
)

// DownloadSimple performs a full download of one reference controller
// and stores every record. An audit entry is written whether the
// download succeeds or not.
func (s *Service) DownloadSimple(ctx context.Context, ctrl store.Controller) (err error) {
	defer mon.Task()(&ctx)(&err)

	client := vnapi.NewClient(s.log, s.api, ctrl.Name)
	defer func() {
		logErr := s.store.Log(ctx, s.cfg.Site, ctrl.Name,
			client.TransferErrors(), client.LastStatus(), "full download")
		err = errs.Combine(err, logErr)
	}()

	var resp *vnapi.Response
	switch ctrl {
	case store.TaxoGroups, store.TerritorialUnits:
		resp, err = s.cachedList(ctx, client)
	default:
		resp, err = client.List(ctx, nil)
	}
	if err != nil {
		return err
	}

	stored, err := s.store.Store(ctx, ctrl, "full:"+ctrl.Name, resp)
	if err != nil {
		return err
	}
	s.log.Info("controller downloaded",
		zap.String("controller", ctrl.Name),
		zap.Int("records", stored))
	return nil
}

// DownloadSpecies performs a full download of the species controller,
// one taxonomic group at a time to keep responses within the chunk
// ceiling.
func (s *Service) DownloadSpecies(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	groups, err := s.activeTaxoGroups(ctx)
	if err != nil {
		return err
	}

	client := vnapi.NewSpecies(s.log, s.api)
	defer func() {
		logErr := s.store.Log(ctx, s.cfg.Site, store.Species.Name,
			client.TransferErrors(), client.LastStatus(), "full download")
		err = errs.Combine(err, logErr)
	}()

	total := 0
	for _, taxoGroup := range groups {
		params := url.Values{}
		params.Set("id_taxo_group", taxoGroup.ID)
		resp, err := client.List(ctx, params)
		if err != nil {
			return err
		}
		stored, err := s.store.Store(ctx, store.Species, "full:species:"+taxoGroup.ID, resp)
		if err != nil {
			return err
		}
		total += stored
	}
	s.log.Info("species downloaded", zap.Int("records", total))
	return nil
}

// activeTaxoGroups lists the taxonomic groups available for download on
// the site, minus the configured exclusions.
func (s *Service) activeTaxoGroups(ctx context.Context) (_ []vnapi.TaxoGroup, err error) {
	defer mon.Task()(&ctx)(&err)

	resp, err := s.cachedList(ctx, vnapi.NewTaxoGroups(s.log, s.api))
	if err != nil {
		return nil, err
	}
	groups, err := vnapi.DecodeTaxoGroups(resp)
	if err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(s.cfg.TaxoExclude))
	for _, id := range s.cfg.TaxoExclude {
		excluded[id] = true
	}

	active := groups[:0]
	for _, group := range groups {
		if group.AccessMode == "none" || excluded[group.ID] {
			continue
		}
		active = append(active, group)
	}
	return active, nil
}

// cachedList serves list-all responses from a TTL bounded cache, keyed
// by controller name.
func (s *Service) cachedList(ctx context.Context, client *vnapi.Client) (*vnapi.Response, error) {
	if resp, ok := s.cache.Get(client.Controller()); ok {
		mon.Counter("list_cache_hits").Inc(1)
		return resp, nil
	}
	mon.Counter("list_cache_misses").Inc(1)
	resp, err := client.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.cache.Add(client.Controller(), resp)
	return resp, nil
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnapi

import (
	"encoding/json"

	"go.uber.org/zap"
)

// NewEntities creates a client for the entities controller.
func NewEntities(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "entities") }

// NewFields creates a client for the fields controller.
func NewFields(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "fields") }

// NewLocalAdminUnits creates a client for the local_admin_units controller.
func NewLocalAdminUnits(log *zap.Logger, cfg Config) *Client {
	return NewClient(log, cfg, "local_admin_units")
}

// NewObservers creates a client for the observers controller.
func NewObservers(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "observers") }

// NewPlaces creates a client for the places controller.
func NewPlaces(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "places") }

// NewSpecies creates a client for the species controller.
func NewSpecies(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "species") }

// NewTaxoGroups creates a client for the taxo_groups controller.
func NewTaxoGroups(log *zap.Logger, cfg Config) *Client { return NewClient(log, cfg, "taxo_groups") }

// NewTerritorialUnits creates a client for the territorial_units controller.
func NewTerritorialUnits(log *zap.Logger, cfg Config) *Client {
	return NewClient(log, cfg, "territorial_units")
}

// TaxoGroup is one taxonomic group entry. Groups whose access mode is
// "none" are not available for download on the site.
type TaxoGroup struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AccessMode string `json:"access_mode"`
}

// DecodeTaxoGroups converts a taxo_groups list response.
func DecodeTaxoGroups(resp *Response) ([]TaxoGroup, error) {
	groups := make([]TaxoGroup, 0, len(resp.Items))
	for _, raw := range resp.Items {
		var group TaxoGroup
		if err := json.Unmarshal(raw, &group); err != nil {
			return nil, Error.Wrap(err)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// Species is one species entry of a taxonomic group.
type Species struct {
	ID     string `json:"id"`
	IsUsed string `json:"is_used"`
}

// DecodeSpecies converts a species list response.
func DecodeSpecies(resp *Response) ([]Species, error) {
	species := make([]Species, 0, len(resp.Items))
	for _, raw := range resp.Items {
		var one Species
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, Error.Wrap(err)
		}
		species = append(species, one)
	}
	return species, nil
}

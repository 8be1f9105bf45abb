// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package vnapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DiffMode selects which modifications a diff query returns.
type DiffMode string

// Diff modes understood by the provider.
const (
	DiffAll          DiffMode = "all"
	DiffOnlyModified DiffMode = "only_modified"
	DiffOnlyDeleted  DiffMode = "only_deleted"
)

// Modification markers carried by diff items.
const (
	ModificationUpdated = "updated"
	ModificationDeleted = "deleted"
)

// DiffItem is one entry of a diff response.
type DiffItem struct {
	SightingID   string `json:"id_sighting"`
	UniversalID  string `json:"id_universal"`
	Modification string `json:"modification_type"`
}

// SearchQuery is the body of an observations search request. Dates use
// the provider's dd.mm.yyyy convention.
type SearchQuery struct {
	PeriodChoice   string `json:"period_choice"`
	DateFrom       string `json:"date_from"`
	DateTo         string `json:"date_to"`
	SpeciesChoice  string `json:"species_choice"`
	TaxonomicGroup string `json:"taxonomic_group"`
}

// Observations is the client for the observations controller, adding
// the diff and search calls on top of the generic ones.
type Observations struct {
	*Client
}

// NewObservations creates an observations client.
func NewObservations(log *zap.Logger, cfg Config) *Observations {
	return &Observations{Client: NewClient(log, cfg, "observations")}
}

// ListTaxoGroup lists observations of one taxonomic group.
func (o *Observations) ListTaxoGroup(ctx context.Context, taxoGroup string, opts url.Values) (*Response, error) {
	params := url.Values{}
	for key, values := range opts {
		params[key] = values
	}
	params.Set("id_taxo_group", taxoGroup)
	return o.List(ctx, params)
}

// Diff returns the observations of a taxonomic group created, updated
// or deleted since the given date.
func (o *Observations) Diff(ctx context.Context, taxoGroup string, since time.Time, mode DiffMode) (_ []DiffItem, err error) {
	defer mon.Task()(&ctx)(&err)

	params := url.Values{}
	params.Set("id_taxo_group", taxoGroup)
	params.Set("modification_type", string(mode))
	params.Set("date", since.Format("2006-01-02 15:04:05"))

	resp, err := o.Fetch(ctx, Request{Scope: "observations/diff/", Params: params})
	if err != nil {
		return nil, err
	}

	items := make([]DiffItem, 0, len(resp.List))
	for _, raw := range resp.List {
		var item DiffItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, Error.Wrap(err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Search returns the observations matching the query conditions. The
// query body is mandatory.
func (o *Observations) Search(ctx context.Context, query *SearchQuery, opts url.Values) (_ *Response, err error) {
	defer mon.Task()(&ctx)(&err)

	if query == nil {
		return nil, ErrIncorrectParameter.New("search requires a query body")
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return o.Fetch(ctx, Request{
		Scope:  "observations/search/",
		Params: opts,
		Method: http.MethodPost,
		Body:   body,
	})
}

// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

// Kind selects the persistence strategy for a controller's records.
type Kind int

const (
	// KindSimple records are stored verbatim, keyed by their id field.
	KindSimple Kind = iota
	// KindGeometry records additionally get local projected coordinates
	// before storage.
	KindGeometry
	// KindObservation records are unwrapped from their sighting/form
	// envelope and written through the observation pipeline.
	KindObservation
)

// Controller identifies one remote collection and how it is persisted.
// The set of controllers is closed; adding one requires a schema change.
type Controller struct {
	Name string
	Kind Kind
}

var (
	Entities         = Controller{Name: "entities", Kind: KindSimple}
	Fields           = Controller{Name: "fields", Kind: KindSimple}
	LocalAdminUnits  = Controller{Name: "local_admin_units", Kind: KindGeometry}
	Observations     = Controller{Name: "observations", Kind: KindObservation}
	Observers        = Controller{Name: "observers", Kind: KindSimple}
	Places           = Controller{Name: "places", Kind: KindGeometry}
	Species          = Controller{Name: "species", Kind: KindSimple}
	TaxoGroups       = Controller{Name: "taxo_groups", Kind: KindSimple}
	TerritorialUnits = Controller{Name: "territorial_units", Kind: KindSimple}
)

// All lists every known controller, in schema order.
var All = []Controller{
	Entities,
	Fields,
	LocalAdminUnits,
	Observations,
	Observers,
	Places,
	Species,
	TaxoGroups,
	TerritorialUnits,
}

// Table returns the name of the controller's storage table.
func (c Controller) Table() string { return c.Name + "_json" }

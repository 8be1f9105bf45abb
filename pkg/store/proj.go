// Copyright (C) 2025 VNSync Authors.
// See LICENSE for copying information.

package store

import (
	"github.com/wroge/wgs84"
)

// Reprojector converts the provider's WGS84 coordinates into the
// configured local coordinate reference system.
type Reprojector struct {
	srid      int
	transform func(a, b, c float64) (float64, float64, float64)
}

// NewReprojector builds a reprojector targeting the given EPSG code.
func NewReprojector(srid int) *Reprojector {
	return &Reprojector{
		srid:      srid,
		transform: wgs84.LonLat().To(wgs84.EPSG().Code(srid)),
	}
}

// SRID returns the target EPSG code.
func (p *Reprojector) SRID() int { return p.srid }

// Project converts a lon/lat pair into local easting/northing.
func (p *Reprojector) Project(lon, lat float64) (x, y float64) {
	x, y, _ = p.transform(lon, lat, 0)
	return x, y
}

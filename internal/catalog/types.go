// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package catalog models the static schema catalog -- bundles, datasets
// and the variables they carry -- and the transactional operations that
// persist and reload it.
package catalog

import "time"

// PropertyBag is the opaque key/value mapping attached to catalog
// entities. The catalog never interprets unknown keys; only the keys
// named by spec are ever read back out of it.
type PropertyBag map[string]interface{}

var (
	// ValidTemporalResolutions enumerates DataSet.TemporalResolution.
	ValidTemporalResolutions = []string{"daily", "pentad", "dekad", "monthly", "yearly"}
	// ValidSpatialResolutions enumerates DataSet.SpatialResolution (degrees, as strings).
	ValidSpatialResolutions = []string{"0.05", "0.1", "0.25", "0.5", "1"}
)

// Variable is a named measurement within a DataSet.
type Variable struct {
	VariableID   string
	VariableName string
	Spec         PropertyBag
}

// DataSet is a catalog entry describing one dataset's resolution,
// location template and variables.
type DataSet struct {
	DatasetID          string
	DatasetName        string
	TemporalResolution string
	SpatialResolution  string
	StartDate          time.Time
	EndDate            time.Time // zero value means null
	Location           string
	Spec               PropertyBag
	Variables          map[string]*Variable
	Enabled            bool
}

// HasEndDate reports whether EndDate has been set.
func (d *DataSet) HasEndDate() bool { return !d.EndDate.IsZero() }

// Validate enforces the DataSet invariants from spec.md §3.
func (d *DataSet) Validate() error {
	if !contains(ValidTemporalResolutions, d.TemporalResolution) {
		return &CatalogError{File: d.DatasetID, Field: "temporal_resolution"}
	}
	if !contains(ValidSpatialResolutions, d.SpatialResolution) {
		return &CatalogError{File: d.DatasetID, Field: "spatial_resolution"}
	}
	if d.Location == "" {
		return &CatalogError{File: d.DatasetID, Field: "location"}
	}
	if d.HasEndDate() && d.StartDate.After(d.EndDate) {
		return &CatalogError{File: d.DatasetID, Field: "start_date"}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Bundle is a named, user-facing grouping of datasets with a bounding box.
type Bundle struct {
	BundleID   string
	BundleName string
	Spec       PropertyBag
	DatasetIDs []string
	Enabled    bool
}

// Bounds returns the bundle's bounding box from spec.bounds, defaulting to
// the whole globe when absent (spec.md §4.6 step 2).
func (b *Bundle) Bounds() (minx, miny, maxx, maxy float64) {
	minx, miny, maxx, maxy = -180, -90, 180, 90
	raw, ok := b.Spec["bounds"]
	if !ok {
		return
	}
	bounds, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	if v, ok := asFloat(bounds["minx"]); ok {
		minx = v
	}
	if v, ok := asFloat(bounds["miny"]); ok {
		miny = v
	}
	if v, ok := asFloat(bounds["maxx"]); ok {
		maxx = v
	}
	if v, ok := asFloat(bounds["maxy"]); ok {
		maxy = v
	}
	return
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/eocis/data-manager/internal/store"
)

// Repository is a mixin over a *store.Transaction exposing the schema
// catalog operations of spec.md §4.3 (populate/list/get bundle and
// dataset, get/update end-date), grounded on schema_operations.py and the
// teacher's internal/repository/init.go bulk-insert-in-one-transaction
// pattern.
type Repository struct {
	tx *store.Transaction
}

// NewRepository wraps tx with the schema catalog operations.
func NewRepository(tx *store.Transaction) *Repository {
	return &Repository{tx: tx}
}

type datasetRow struct {
	DatasetID          string `db:"dataset_id"`
	Location           string `db:"location"`
	Spec               string `db:"spec"`
	DatasetName        string `db:"dataset_name"`
	TemporalResolution string `db:"temporal_resolution"`
	SpatialResolution  string `db:"spatial_resolution"`
	StartDate          string `db:"start_date"`
	EndDate            string `db:"end_date"`
	Enabled            bool   `db:"enabled"`
}

type bundleRow struct {
	BundleID   string  `db:"bundle_id"`
	BundleName string  `db:"bundle_name"`
	Spec       string  `db:"spec"`
	Minx       float64 `db:"minx"`
	Miny       float64 `db:"miny"`
	Maxx       float64 `db:"maxx"`
	Maxy       float64 `db:"maxy"`
	Enabled    bool    `db:"enabled"`
}

type variableRow struct {
	DatasetID    string `db:"dataset_id"`
	VariableID   string `db:"variable_id"`
	VariableName string `db:"variable_name"`
	Spec         string `db:"spec"`
}

// Populate implements spec.md §4.3's "populate schema from a directory":
// snapshot existing end-dates, clear the four catalog tables, insert every
// enabled dataset and its variables, insert every enabled bundle and its
// dataset_bundle rows, then restore the snapshotted end-dates for datasets
// that still exist.
func (r *Repository) Populate(datasets map[string]*DataSet, bundles map[string]*Bundle) error {
	endDates, err := r.snapshotEndDates()
	if err != nil {
		return err
	}

	for _, table := range []string{"variables", "dataset_bundle", "datasets", "bundles"} {
		if _, err := r.tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("catalog: clear %s: %w", table, err)
		}
	}

	for _, ds := range datasets {
		if !ds.Enabled {
			continue
		}
		if err := r.insertDataset(ds); err != nil {
			return err
		}
	}

	for _, b := range bundles {
		if !b.Enabled {
			continue
		}
		if err := r.insertBundle(b, datasets); err != nil {
			return err
		}
	}

	for datasetID, endDate := range endDates {
		if _, ok := datasets[datasetID]; !ok {
			continue
		}
		if _, err := r.tx.Exec(`UPDATE datasets SET end_date = ? WHERE dataset_id = ?`, endDate, datasetID); err != nil {
			return fmt.Errorf("catalog: restore end_date for %s: %w", datasetID, err)
		}
	}

	return nil
}

func (r *Repository) snapshotEndDates() (map[string]string, error) {
	var rows []struct {
		DatasetID string `db:"dataset_id"`
		EndDate   string `db:"end_date"`
	}
	if err := r.tx.Select(&rows, `SELECT dataset_id, end_date FROM datasets WHERE end_date != ''`); err != nil {
		return nil, fmt.Errorf("catalog: snapshot end dates: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.DatasetID] = row.EndDate
	}
	return out, nil
}

func (r *Repository) insertDataset(ds *DataSet) error {
	specJSON, err := json.Marshal(ds.Spec)
	if err != nil {
		return err
	}

	_, err = r.tx.Exec(`
		INSERT INTO datasets (dataset_id, dataset_name, temporal_resolution, spatial_resolution,
			start_date, end_date, location, spec, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ds.DatasetID, ds.DatasetName, ds.TemporalResolution, ds.SpatialResolution,
		store.EncodeDate(ds.StartDate), store.EncodeDate(ds.EndDate), ds.Location, string(specJSON), ds.Enabled)
	if err != nil {
		return fmt.Errorf("catalog: insert dataset %s: %w", ds.DatasetID, err)
	}

	for _, v := range ds.Variables {
		vSpec, err := json.Marshal(v.Spec)
		if err != nil {
			return err
		}
		_, err = r.tx.Exec(`
			INSERT INTO variables (dataset_id, variable_id, variable_name, spec)
			VALUES (?, ?, ?, ?)`, ds.DatasetID, v.VariableID, v.VariableName, string(vSpec))
		if err != nil {
			return fmt.Errorf("catalog: insert variable %s/%s: %w", ds.DatasetID, v.VariableID, err)
		}
	}
	return nil
}

func (r *Repository) insertBundle(b *Bundle, datasets map[string]*DataSet) error {
	specJSON, err := json.Marshal(b.Spec)
	if err != nil {
		return err
	}
	minx, miny, maxx, maxy := b.Bounds()

	_, err = r.tx.Exec(`
		INSERT INTO bundles (bundle_id, bundle_name, spec, minx, miny, maxx, maxy, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, b.BundleID, b.BundleName, string(specJSON), minx, miny, maxx, maxy, b.Enabled)
	if err != nil {
		return fmt.Errorf("catalog: insert bundle %s: %w", b.BundleID, err)
	}

	for _, datasetID := range b.DatasetIDs {
		ds, ok := datasets[datasetID]
		if !ok || !ds.Enabled {
			continue
		}
		_, err = r.tx.Exec(`
			INSERT INTO dataset_bundle (bundle_id, dataset_id) VALUES (?, ?)`, b.BundleID, datasetID)
		if err != nil {
			return fmt.Errorf("catalog: insert dataset_bundle %s/%s: %w", b.BundleID, datasetID, err)
		}
	}
	return nil
}

const datasetColumns = `dataset_id, dataset_name, temporal_resolution, spatial_resolution, start_date, end_date, location, spec, enabled`

// ListDatasets returns every persisted dataset, rehydrated with its
// variables.
func (r *Repository) ListDatasets() ([]*DataSet, error) {
	var rows []datasetRow
	if err := r.tx.Select(&rows, `SELECT `+datasetColumns+` FROM datasets`); err != nil {
		return nil, fmt.Errorf("catalog: list datasets: %w", err)
	}

	out := make([]*DataSet, 0, len(rows))
	for _, row := range rows {
		ds, err := r.hydrateDataset(row)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

// GetDataset returns the dataset named by id, or nil if it does not exist.
// More than one matching row indicates corruption and is reported as an
// error (spec.md §4.3).
func (r *Repository) GetDataset(datasetID string) (*DataSet, error) {
	var rows []datasetRow
	err := r.tx.Select(&rows, `SELECT `+datasetColumns+` FROM datasets WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("catalog: get dataset %s: %w", datasetID, err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return r.hydrateDataset(rows[0])
	default:
		return nil, fmt.Errorf("catalog: dataset %s has %d rows, expected at most one", datasetID, len(rows))
	}
}

func (r *Repository) hydrateDataset(row datasetRow) (*DataSet, error) {
	var spec PropertyBag
	if err := json.Unmarshal([]byte(row.Spec), &spec); err != nil {
		return nil, fmt.Errorf("catalog: decode spec for %s: %w", row.DatasetID, err)
	}

	var varRows []variableRow
	err := r.tx.Select(&varRows, `SELECT dataset_id, variable_id, variable_name, spec FROM variables WHERE dataset_id = ?`, row.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list variables for %s: %w", row.DatasetID, err)
	}

	variables := make(map[string]*Variable, len(varRows))
	for _, vr := range varRows {
		var vSpec PropertyBag
		if err := json.Unmarshal([]byte(vr.Spec), &vSpec); err != nil {
			return nil, fmt.Errorf("catalog: decode variable spec for %s/%s: %w", row.DatasetID, vr.VariableID, err)
		}
		variables[vr.VariableID] = &Variable{
			VariableID:   vr.VariableID,
			VariableName: vr.VariableName,
			Spec:         vSpec,
		}
	}

	startDate, err := store.DecodeDate(row.StartDate)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode start_date for %s: %w", row.DatasetID, err)
	}
	endDate, err := store.DecodeDate(row.EndDate)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode end_date for %s: %w", row.DatasetID, err)
	}

	return &DataSet{
		DatasetID:          row.DatasetID,
		DatasetName:        row.DatasetName,
		TemporalResolution: row.TemporalResolution,
		SpatialResolution:  row.SpatialResolution,
		StartDate:          startDate,
		EndDate:            endDate,
		Location:           row.Location,
		Spec:               spec,
		Variables:          variables,
		Enabled:            row.Enabled,
	}, nil
}

const bundleColumns = `bundle_id, bundle_name, spec, minx, miny, maxx, maxy, enabled`

// ListBundles returns every persisted bundle, rehydrated with its
// dataset_ids.
func (r *Repository) ListBundles() ([]*Bundle, error) {
	var rows []bundleRow
	if err := r.tx.Select(&rows, `SELECT `+bundleColumns+` FROM bundles`); err != nil {
		return nil, fmt.Errorf("catalog: list bundles: %w", err)
	}

	out := make([]*Bundle, 0, len(rows))
	for _, row := range rows {
		b, err := r.hydrateBundle(row)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// GetBundle returns the bundle named by id, or nil if it does not exist.
func (r *Repository) GetBundle(bundleID string) (*Bundle, error) {
	var rows []bundleRow
	err := r.tx.Select(&rows, `SELECT `+bundleColumns+` FROM bundles WHERE bundle_id = ?`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("catalog: get bundle %s: %w", bundleID, err)
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return r.hydrateBundle(rows[0])
	default:
		return nil, fmt.Errorf("catalog: bundle %s has %d rows, expected at most one", bundleID, len(rows))
	}
}

func (r *Repository) hydrateBundle(row bundleRow) (*Bundle, error) {
	var spec PropertyBag
	if err := json.Unmarshal([]byte(row.Spec), &spec); err != nil {
		return nil, fmt.Errorf("catalog: decode spec for %s: %w", row.BundleID, err)
	}
	if spec == nil {
		spec = PropertyBag{}
	}
	spec["bounds"] = map[string]interface{}{
		"minx": row.Minx, "miny": row.Miny, "maxx": row.Maxx, "maxy": row.Maxy,
	}

	var ids []string
	err := r.tx.Select(&ids, `SELECT dataset_id FROM dataset_bundle WHERE bundle_id = ?`, row.BundleID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list dataset_bundle for %s: %w", row.BundleID, err)
	}

	return &Bundle{
		BundleID:   row.BundleID,
		BundleName: row.BundleName,
		Spec:       spec,
		DatasetIDs: ids,
		Enabled:    row.Enabled,
	}, nil
}

// GetDatasetEndDate reads the end_date column for datasetID. An empty
// string means the column is empty.
func (r *Repository) GetDatasetEndDate(datasetID string) (string, error) {
	var endDate string
	err := r.tx.Get(&endDate, `SELECT end_date FROM datasets WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return "", fmt.Errorf("catalog: get end_date for %s: %w", datasetID, err)
	}
	return endDate, nil
}

// UpdateDatasetEndDate writes the end_date column for datasetID.
func (r *Repository) UpdateDatasetEndDate(datasetID, endDate string) error {
	_, err := r.tx.Exec(`UPDATE datasets SET end_date = ? WHERE dataset_id = ?`, endDate, datasetID)
	if err != nil {
		return fmt.Errorf("catalog: update end_date for %s: %w", datasetID, err)
	}
	return nil
}

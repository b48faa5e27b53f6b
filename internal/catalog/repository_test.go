// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package catalog

import (
	"context"
	"testing"

	"github.com/eocis/data-manager/internal/config"
	"github.com/eocis/data-manager/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.Defaults()
	cfg.DBDriver = "sqlite3"
	cfg.DatabasePath = t.TempDir() + "/catalog_test.db"

	s, err := store.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPopulateAndListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	dir := writeCatalogDir(t)

	datasets, err := LoadDatasets(dir)
	require.NoError(t, err)
	bundles, err := LoadBundles(dir)
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return NewRepository(tx).Populate(datasets, bundles)
	})
	require.NoError(t, err)

	var listedDatasets []*DataSet
	var listedBundles []*Bundle
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		repo := NewRepository(tx)
		var err error
		listedDatasets, err = repo.ListDatasets()
		if err != nil {
			return err
		}
		listedBundles, err = repo.ListBundles()
		return err
	})
	require.NoError(t, err)

	require.Len(t, listedDatasets, 1)
	assert.Equal(t, "sst", listedDatasets[0].DatasetID)
	require.Len(t, listedDatasets[0].Variables, 2)

	sst, ok := listedDatasets[0].Variables["sst"]
	require.True(t, ok)
	assert.Equal(t, "sst", sst.VariableID)
	assert.Equal(t, "Sea Surface Temperature", sst.VariableName)

	uncertainty, ok := listedDatasets[0].Variables["sst_uncertainty"]
	require.True(t, ok)
	assert.Equal(t, "sst_uncertainty", uncertainty.VariableID)
	assert.Equal(t, "SST Uncertainty", uncertainty.VariableName)

	require.Len(t, listedBundles, 1)
	assert.Equal(t, "ocean", listedBundles[0].BundleID)
	assert.Equal(t, []string{"sst"}, listedBundles[0].DatasetIDs)
}

func TestEndDatePreservedAcrossPopulate(t *testing.T) {
	s := newTestStore(t)
	dir := writeCatalogDir(t)

	datasets, err := LoadDatasets(dir)
	require.NoError(t, err)
	bundles, err := LoadBundles(dir)
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return NewRepository(tx).Populate(datasets, bundles)
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return NewRepository(tx).UpdateDatasetEndDate("sst", "2026/01/01")
	})
	require.NoError(t, err)

	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		return NewRepository(tx).Populate(datasets, bundles)
	})
	require.NoError(t, err)

	var endDate string
	err = s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		endDate, err = NewRepository(tx).GetDatasetEndDate("sst")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "2026/01/01", endDate)
}

func TestGetDatasetReturnsNilWhenMissing(t *testing.T) {
	s := newTestStore(t)

	var ds *DataSet
	err := s.WithTx(context.Background(), func(tx *store.Transaction) error {
		var err error
		ds, err = NewRepository(tx).GetDataset("missing")
		return err
	})
	require.NoError(t, err)
	assert.Nil(t, ds)
}

// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package catalog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// dateLayout is the catalog file's own date encoding, distinct from the
// store's on-disk YYYY/MM/DD (spec.md §4.7: "dd-mm-yyyy").
const dateLayout = "02-01-2006"

// LoadDatasets parses every *.yaml file under <dir>/datasets/ into DataSet
// entities, grounded on the source loader's load_dataset_from_file: the
// filename stem becomes the dataset_id.
func LoadDatasets(dir string) (map[string]*DataSet, error) {
	files, err := filepath.Glob(filepath.Join(dir, "datasets", "*.yaml"))
	if err != nil {
		return nil, err
	}

	out := make(map[string]*DataSet, len(files))
	for _, f := range files {
		ds, err := loadDatasetFile(f)
		if err != nil {
			return nil, err
		}
		out[ds.DatasetID] = ds
	}
	return out, nil
}

func loadDatasetFile(path string) (*DataSet, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	name, ok := doc["name"].(string)
	if !ok || name == "" {
		return nil, &CatalogError{File: id, Field: "name"}
	}
	temporal, _ := doc["temporal_resolution"].(string)
	spatial := stringify(doc["spatial_resolution"])
	location, _ := doc["location"].(string)
	startRaw, _ := doc["start_date"].(string)
	if startRaw == "" {
		return nil, &CatalogError{File: id, Field: "start_date"}
	}
	startDate, err := time.Parse(dateLayout, startRaw)
	if err != nil {
		return nil, &CatalogError{File: id, Field: "start_date"}
	}

	enabled := true
	if v, ok := doc["enabled"].(bool); ok {
		enabled = v
	}

	ds := &DataSet{
		DatasetID:          id,
		DatasetName:        name,
		TemporalResolution: temporal,
		SpatialResolution:  spatial,
		StartDate:          startDate,
		Location:           location,
		Spec:               toPropertyBag(doc["spec"]),
		Variables:          map[string]*Variable{},
		Enabled:            enabled,
	}

	if vars, ok := doc["variables"].(map[string]interface{}); ok {
		for varID, raw := range vars {
			vdoc, _ := raw.(map[string]interface{})
			vname, _ := vdoc["name"].(string)
			if vname == "" {
				vname = varID
			}
			ds.Variables[varID] = &Variable{
				VariableID:   varID,
				VariableName: vname,
				Spec:         toPropertyBag(vdoc["spec"]),
			}
		}
	}

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// LoadBundles parses every *.yaml file under <dir>/bundles/ into Bundle
// entities, grounded on the source loader's load_bundle_from_file.
func LoadBundles(dir string) (map[string]*Bundle, error) {
	files, err := filepath.Glob(filepath.Join(dir, "bundles", "*.yaml"))
	if err != nil {
		return nil, err
	}

	out := make(map[string]*Bundle, len(files))
	for _, f := range files {
		b, err := loadBundleFile(f)
		if err != nil {
			return nil, err
		}
		out[b.BundleID] = b
	}
	return out, nil
}

func loadBundleFile(path string) (*Bundle, error) {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	name, ok := doc["name"].(string)
	if !ok || name == "" {
		return nil, &CatalogError{File: id, Field: "name"}
	}

	enabled := true
	if v, ok := doc["enabled"].(bool); ok {
		enabled = v
	}

	spec := toPropertyBag(doc["spec"])
	if bounds := extractBounds(doc); bounds != nil {
		spec["bounds"] = bounds
	}

	var datasetIDs []string
	if ids, ok := doc["datasets"].([]interface{}); ok {
		for _, v := range ids {
			if s, ok := v.(string); ok {
				datasetIDs = append(datasetIDs, s)
			}
		}
	}

	return &Bundle{
		BundleID:   id,
		BundleName: name,
		Spec:       spec,
		DatasetIDs: datasetIDs,
		Enabled:    enabled,
	}, nil
}

func extractBounds(doc map[string]interface{}) map[string]interface{} {
	keys := []string{"minx", "miny", "maxx", "maxy"}
	bounds := map[string]interface{}{}
	found := false
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			bounds[k] = v
			found = true
		}
	}
	if !found {
		return nil
	}
	return bounds
}

func toPropertyBag(v interface{}) PropertyBag {
	m, ok := v.(map[string]interface{})
	if !ok {
		return PropertyBag{}
	}
	return PropertyBag(m)
}

func stringify(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	default:
		return ""
	}
}

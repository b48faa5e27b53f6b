// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the process-wide configuration record described in
// spec.md §6. It is read once at startup and passed explicitly into the
// components that need it -- nothing in this module reaches for a global.
package config

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Host + u.Path)
}

func init() {
	jsonschema.Loaders["embedfs"] = loadSchema
}

// ProgramConfig is the process-wide configuration record of spec.md §6.
type ProgramConfig struct {
	DBDriver              string `json:"DB_DRIVER"`
	DatabasePath          string `json:"DATABASE_PATH"`
	OutputPath            string `json:"OUTPUT_PATH"`
	OutputFilenamePattern string `json:"OUTPUT_FILENAME_PATTERN"`
	TaskQuota             int    `json:"TASK_QUOTA"`
	JobQuota              int    `json:"JOB_QUOTA"`
	CleanupAfterSecs      int    `json:"CLEANUP_AFTER_SECS"`
	MaxTaskRetries        int    `json:"MAX_TASK_RETRIES"`
	TransactionTimeout    string `json:"TRANSACTION_TIMEOUT"`
}

// Defaults mirrors the teacher's package-level Keys default literal, but is
// returned by value rather than kept as mutable global state.
func Defaults() ProgramConfig {
	return ProgramConfig{
		DBDriver:              "sqlite3",
		DatabasePath:          "./var/eocis.db",
		OutputPath:            "./var/output",
		OutputFilenamePattern: "{LEVEL}_{PRODUCT}_{VERSION}_{Y}{m}{d}{H}{M}{S}",
		TaskQuota:             8,
		JobQuota:              64,
		CleanupAfterSecs:      7 * 24 * 3600,
		MaxTaskRetries:        3,
		TransactionTimeout:    "10s",
	}
}

// Load reads and validates a JSON configuration file at path, overlaying it
// onto Defaults(). A missing file is not an error; the defaults are used.
func Load(path string) (ProgramConfig, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return cfg, err
	}

	var v interface{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := s.Validate(v); err != nil {
		return cfg, fmt.Errorf("config: validate %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return cfg, nil
}

// TransactionWait parses TransactionTimeout, defaulting to 10s on a blank
// or malformed value (spec.md §5: "bounded wait ... default on the order
// of 10s").
func (c ProgramConfig) TransactionWait() time.Duration {
	d, err := time.ParseDuration(c.TransactionTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

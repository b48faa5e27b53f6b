// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/eocis/data-manager/internal/repository"
)

// specInt reads key from spec as an int, accepting either a JSON number
// (decoded as float64) or a numeric string -- job specs round-trip through
// JSON and callers may hand either representation.
func specInt(spec repository.Spec, key string) (int, error) {
	raw, ok := spec[key]
	if !ok {
		return 0, fmt.Errorf("scheduler: job spec missing %s", key)
	}
	switch v := raw.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("scheduler: job spec %s is not an integer: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("scheduler: job spec %s has unexpected type %T", key, raw)
	}
}

func specString(spec repository.Spec, key, fallback string) string {
	raw, ok := spec[key]
	if !ok {
		return fallback
	}
	s, ok := raw.(string)
	if !ok {
		return fallback
	}
	return s
}

// splitVariableRef splits a "{dataset_id}:{variable_id}" reference
// (spec.md §3 Job.spec.VARIABLES) into its two parts.
func splitVariableRef(ref string) (datasetID, variableID string, err error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("scheduler: malformed variable reference %q", ref)
	}
	return parts[0], parts[1], nil
}

// cloneSpec deep-copies a property bag through JSON semantics, equivalent
// to the original's copy.deepcopy(job_spec) (job_manager.py create_tasks).
func cloneSpec(spec repository.Spec) repository.Spec {
	var copyValue func(v interface{}) interface{}
	copyValue = func(v interface{}) interface{} {
		switch t := v.(type) {
		case map[string]interface{}:
			m := make(map[string]interface{}, len(t))
			for k, e := range t {
				m[k] = copyValue(e)
			}
			return m
		case []interface{}:
			s := make([]interface{}, len(t))
			for i, e := range t {
				s[i] = copyValue(e)
			}
			return s
		default:
			return v
		}
	}
	out := make(repository.Spec, len(spec))
	for k, v := range spec {
		out[k] = copyValue(v)
	}
	return out
}

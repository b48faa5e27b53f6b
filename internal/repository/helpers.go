// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// requireOneRowAffected turns a zero-row update/delete result into
// notFoundErr, wrapped with id for context.
func requireOneRowAffected(res sql.Result, id string, notFoundErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("repository: %s: %w", id, notFoundErr)
	}
	return nil
}

// withStateFilter adds an IN (...) clause over column when states is
// non-empty, otherwise returns builder unchanged (spec.md §4.4: an empty
// state filter means "every state").
func withStateFilter(builder sq.SelectBuilder, column string, states []State) sq.SelectBuilder {
	if len(states) == 0 {
		return builder
	}
	values := make([]string, len(states))
	for i, s := range states {
		values[i] = string(s)
	}
	return builder.Where(sq.Eq{column: values})
}

// splitColumns turns a comma-joined column list constant (e.g. jobColumns)
// into the variadic form squirrel's Select expects.
func splitColumns(columns string) []string {
	parts := strings.Split(columns, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"time"

	"github.com/eocis/data-manager/internal/eolog"
)

type sqlTimingKey struct{}

// Hooks satisfies the sqlhooks.Hooks interface and logs every statement run
// against the database together with its elapsed time.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	eolog.Debugf("SQL query %s %q", query, args)
	return context.WithValue(ctx, sqlTimingKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	begin, _ := ctx.Value(sqlTimingKey{}).(time.Time)
	eolog.Debugf("took: %s", time.Since(begin))
	return ctx, nil
}

// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLHooks(t *testing.T) {
	t.Run("before records a start time", func(t *testing.T) {
		h := &Hooks{}

		ctx, err := h.Before(context.Background(), "SELECT * FROM jobs WHERE id = ?", "abc")
		require.NoError(t, err)

		begin, ok := ctx.Value(sqlTimingKey{}).(time.Time)
		assert.True(t, ok, "begin time should be time.Time")
		assert.False(t, begin.IsZero())
	})

	t.Run("after reads the start time back without error", func(t *testing.T) {
		h := &Hooks{}

		ctx, err := h.Before(context.Background(), "SELECT 1", nil)
		require.NoError(t, err)

		time.Sleep(time.Millisecond)

		_, err = h.After(ctx, "SELECT 1", nil)
		require.NoError(t, err)
	})
}

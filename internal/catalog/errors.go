// Copyright (C) 2026 EOCIS.
// All rights reserved. This file is part of eocis-data-manager.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package catalog

import "fmt"

// CatalogError reports an invalid or missing field in a catalog file, or a
// resolution value outside its enum (spec.md §7).
type CatalogError struct {
	File  string
	Field string
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog: %s: invalid or missing field %q", e.File, e.Field)
}

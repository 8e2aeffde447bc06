// Package store is the Store component (spec §4.1): typed CRUD over
// host/scheme, monitor, event, monitor_status, resource, server, region,
// customer_capabilities, and customer_mapping, with per-caller thread tags
// for log correlation and keyword-blob codec wiring.
package store

import "errors"

// ErrNotFound is returned when an update or delete by id matches no row.
// Lookups by id (GetByID) return a zero-value sentinel instead.
//
//	err := hostSchemes.Delete(ctx, "tag", id)
//	if errors.Is(err, store.ErrNotFound) { ... }
var ErrNotFound = errors.New("store: not found")

// ErrConflict names a uniqueness violation (e.g. (host_scheme_id, slug)
// already taken). No Store method returns it; such violations surface as
// the wrapped driver error.
var ErrConflict = errors.New("store: conflict")

// ErrInvalid is returned for write attempts that violate an entity
// invariant that isn't a uniqueness conflict (e.g. modifying an ACTIVE
// server, deleting a non-DEFUNCT server).
var ErrInvalid = errors.New("store: invalid operation")

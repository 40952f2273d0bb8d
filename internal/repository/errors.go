package repository

import "errors"

// ErrStale is returned by guarded writes whose expected product or request state no
// longer matches the stored row.
var ErrStale = errors.New("stale write: entity changed concurrently")

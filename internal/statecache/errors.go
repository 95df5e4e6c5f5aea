package statecache

import "errors"

// ErrCacheMiss indicates one or more of the fields/entities/meta keys was
// absent, requiring a full reload via the State Loader (spec §4.5).
var ErrCacheMiss = errors.New("statecache: cache miss")

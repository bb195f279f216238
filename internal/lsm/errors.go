package lsm

import "errors"

// ErrClosed is returned by Upsert, Get, Range and Compact once Close
// has run.
var ErrClosed = errors.New("lsm: engine closed")

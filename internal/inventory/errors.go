package inventory

import "errors"

// ErrUnavailable indicates the inventory store could not be reached or
// queried. It is a distinct error kind so callers can tell connectivity
// faults apart from empty results; it is never swallowed by this package.
var ErrUnavailable = errors.New("inventory store unavailable")

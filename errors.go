package sensormux

import "errors"

var (
	// ErrNotConfigured is returned by a read before any source was selected.
	ErrNotConfigured = errors.New("no source selected")

	// ErrSourceUnavailable is returned when the selected source could not be
	// opened or read. The selection is kept, so the read may be retried.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrBoundaryFault is returned when bytes could not be moved between the
	// caller's buffer and the channel.
	ErrBoundaryFault = errors.New("bad address")
)

package zoomify

import "errors"

var (
	// ErrNoBackend is returned by New when the requested backend, or every
	// backend when auto-detecting, is unavailable.
	ErrNoBackend = errors.New("zoomify: no imaging backend available")

	// ErrUnknownBackend is returned by New for an unrecognised backend name.
	ErrUnknownBackend = errors.New("zoomify: unknown backend")

	// ErrInvalidOptions is returned by New and Options.Validate.
	ErrInvalidOptions = errors.New("zoomify: invalid options")

	// ErrNotFound is returned by Process when the source image does not
	// exist or cannot be read.
	ErrNotFound = errors.New("zoomify: source image not found")
)

//go:build !nogpu

package native

import "errors"

var (
	// ErrNoGPU is returned when the backend exposes no adapter.
	ErrNoGPU = errors.New("native: no GPU adapter available")

	// ErrUnknownBackend is returned for an unrecognized backend name.
	ErrUnknownBackend = errors.New("native: unknown backend")

	// ErrProviderUnsupported is returned when a device provider does not
	// expose HAL types.
	ErrProviderUnsupported = errors.New("native: provider does not expose HAL types")
)

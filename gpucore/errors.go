package gpucore

import "errors"

var (
	// ErrResourceNotFound is returned when an operation names an ID the
	// adapter does not know (never created, or already destroyed).
	ErrResourceNotFound = errors.New("gpucore: resource not found")

	// ErrInvalidDescriptor is returned for descriptors that cannot be
	// satisfied (zero size, unknown format, empty entry point).
	ErrInvalidDescriptor = errors.New("gpucore: invalid descriptor")

	// ErrComputeUnsupported is returned by adapters without compute support.
	ErrComputeUnsupported = errors.New("gpucore: compute shaders not supported")
)

package vkms

import "errors"

// Common errors returned by the pipeline.
var (
	// ErrNoMemory is returned when the memory budget refuses an allocation
	// needed by a commit or a composed frame.
	ErrNoMemory = errors.New("vkms: out of memory")

	// ErrInvalidCRCSource is returned for an unknown CRC source name.
	ErrInvalidCRCSource = errors.New("vkms: invalid CRC source")

	// ErrInvalidPlane is returned when a plane configuration fails the check.
	ErrInvalidPlane = errors.New("vkms: invalid plane configuration")

	// ErrInvalidMode is returned for a display mode outside the supported limits.
	ErrInvalidMode = errors.New("vkms: invalid display mode")

	// ErrInvalidWriteback is returned when a writeback job does not fit the output.
	ErrInvalidWriteback = errors.New("vkms: invalid writeback job")

	// ErrWritebackAbandoned completes a writeback job whose state was replaced
	// before any frame was composed into it.
	ErrWritebackAbandoned = errors.New("vkms: writeback job abandoned")

	// ErrNoWriteback is returned when a commit carries a writeback job but the
	// device was created without a writeback connector.
	ErrNoWriteback = errors.New("vkms: writeback connector not enabled")

	// ErrClosed is returned by operations on a closed device.
	ErrClosed = errors.New("vkms: device closed")
)

package services

import "errors"

var (
	// ErrUnsupportedType is returned for a submission whose task type is not
	// one of the registered pipelines.
	ErrUnsupportedType = errors.New("unsupported task type")

	// ErrEmptyInput is returned when a submission carries no payload.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidInput is returned when the payload does not match the task
	// type (not a PNG/JPEG raster, not a StarUML JSON document).
	ErrInvalidInput = errors.New("invalid input for task type")

	// ErrNotReady is returned when an artifact is requested before the stage
	// that produces it has run.
	ErrNotReady = errors.New("result not ready")

	// ErrUnknownKind is returned for an artifact kind no pipeline produces.
	ErrUnknownKind = errors.New("unknown result kind")
)

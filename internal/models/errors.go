package models

import "errors"

var (
	// ErrNotFound indicates a missing folder or a folder without supported documents.
	ErrNotFound = errors.New("not found")

	// ErrUnsupportedFormat indicates a file extension without an extraction handler.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtraction indicates every extraction strategy for a document failed.
	ErrExtraction = errors.New("text extraction failed")

	// ErrBackend indicates an embedding or vector index failure.
	ErrBackend = errors.New("backend failure")

	// ErrGeneration indicates the generative backend failed.
	ErrGeneration = errors.New("generation failed")

	// ErrInvalidConfig indicates configuration rejected at construction time.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotSupported indicates the configured backend lacks an optional capability.
	ErrNotSupported = errors.New("not supported")
)

package services

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMessage is returned for blank user input. Nothing is recorded.
	ErrEmptyMessage = errors.New("message is required")

	// ErrEmptyResponse is returned when the model produced no usable text,
	// e.g. every candidate was blocked by safety filters.
	ErrEmptyResponse = errors.New("model returned an empty response")
)

// GenerationError reports a failed call to the generation API. The user's
// turn has already been recorded when it is returned.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidSession = errors.New("invalid class session")
	ErrProcessor      = errors.New("payment processor error")
	ErrUnaddressable  = errors.New("contact has no email")
)

// ProcessorError carries the hold and last reported status of a failed
// capture or cancel.
type ProcessorError struct {
	Op          string
	ReferenceID string
	Status      string
	Err         error
}

func (e *ProcessorError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.ReferenceID)
	if e.Status != "" {
		msg += " (status=" + e.Status + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessorError) Unwrap() error {
	if e.Err == nil {
		return ErrProcessor
	}
	return e.Err
}

func (e *ProcessorError) Is(target error) bool {
	return target == ErrProcessor
}

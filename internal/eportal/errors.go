package eportal

import (
	"errors"
	"strings"
)

var (
	ErrValidation     = errors.New("invalid configuration")
	ErrTransport      = errors.New("transport failure")
	ErrProbe          = errors.New("network status check failed")
	ErrProtocolFormat = errors.New("unexpected portal response")
)

// ValidationError lists the configuration fields that are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing " + strings.Join(e.Missing, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

package service

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindAdmission  ErrorKind = "admission"
	KindTransfer   ErrorKind = "transfer"
	KindExtraction ErrorKind = "extraction"
	KindUnexpected ErrorKind = "unexpected"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	ErrTooLarge          = errors.New("archive exceeds size limit")
	ErrDuplicateRequest  = errors.New("request is already being processed")
)

// RelayError is returned by Process for every request that did not reach the
// relay loop. The user has already been told about it.
type RelayError struct {
	Kind ErrorKind
	Err  error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a RelayError in err's chain, or KindUnexpected.
func KindOf(err error) ErrorKind {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return KindUnexpected
}

package block

import (
	"errors"
	"fmt"
)

var (
	// ErrTemplate marks a resolved body that is not valid JSON and is sent as raw text.
	ErrTemplate = errors.New("resolved body is not valid JSON")
	// ErrTransport marks a request that produced no HTTP response.
	ErrTransport = errors.New("transport failure")
	// ErrRemote marks an HTTP response with a 4xx or 5xx status.
	ErrRemote = errors.New("remote returned an error status")
	// ErrExtractionMiss marks a response path that did not resolve.
	ErrExtractionMiss = errors.New("response path did not resolve")
)

// ConfigurationError reports a block definition that cannot be executed.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid block configuration"
	if e.Field != "" {
		msg += fmt.Sprintf(": field '%s'", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErr(field, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: reason, Err: err}
}

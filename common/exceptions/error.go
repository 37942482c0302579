package exceptions

import (
	"errors"
	"fmt"
)

type Exception interface {
	error
	Cause() error
}

type exception struct {
	message string
	cause   error
}

func (e *exception) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *exception) Cause() error {
	return e.cause
}

func (e *exception) Unwrap() error {
	return e.cause
}

func New(message ...any) error {
	return errors.New(fmt.Sprint(message...))
}

func Cause(cause error, message ...any) error {
	if cause == nil {
		return nil
	}
	return &exception{fmt.Sprint(message...), cause}
}

// Extend appends message to cause instead of prefixing it.
func Extend(cause error, message ...any) error {
	if cause == nil {
		return nil
	}
	return &extendedError{cause, fmt.Sprint(message...)}
}

type extendedError struct {
	cause   error
	message string
}

func (e *extendedError) Error() string {
	return e.cause.Error() + ": " + e.message
}

func (e *extendedError) Unwrap() error {
	return e.cause
}

package exceptions

import "go.uber.org/multierr"

// Errors joins the non-nil errors; it returns nil when there are none.
func Errors(errors ...error) error {
	return multierr.Combine(errors...)
}

func Unwrap(err error) []error {
	return multierr.Errors(err)
}

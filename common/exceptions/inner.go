package exceptions

import "errors"

func Cast[T any](err error) (T, bool) {
	var zero T
	if err == nil {
		return zero, false
	}
	for {
		if interfaceError, isInterface := err.(T); isInterface {
			return interfaceError, true
		}
		switch x := err.(type) {
		case interface{ Unwrap() error }:
			err = x.Unwrap()
			if err == nil {
				return zero, false
			}
		case interface{ Unwrap() []error }:
			for _, innerErr := range x.Unwrap() {
				if interfaceError, isInterface := Cast[T](innerErr); isInterface {
					return interfaceError, true
				}
			}
			return zero, false
		default:
			return zero, false
		}
	}
}

func IsAny(err error, targetList ...error) bool {
	for _, target := range targetList {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

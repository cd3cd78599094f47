package errors

import (
	"errors"
	"fmt"
)

// Common error types for the broker
var (
	// Configuration errors
	ErrConfiguration = errors.New("invalid configuration")

	// Crypto errors
	ErrDecryption = errors.New("decryption failed")

	// Client errors
	ErrInvalidClient = errors.New("invalid client")

	// Authorization errors
	ErrInvalidGrant = errors.New("invalid grant")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// General errors
	ErrNotFound = errors.New("not found")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Package errors provides error wrapping helpers shared across the pipeline.
package errors

import "fmt"

// Wrap annotates err with context, preserving the original for errors.Is.
// A nil err passes through unchanged.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

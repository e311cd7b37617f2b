// Package slogx carries small helpers for structured logging attributes.
package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog attribute with the key "error" and the error's
// message as value.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer returns a slog attribute holding the string form of value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

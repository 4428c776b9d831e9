// Package serviceerr carries the coded error type shared by the QuickHelp services.
package serviceerr

import (
	"fmt"

	"go.uber.org/zap"
)

// Error pairs a stable "operation.reason" code with the underlying cause.
type Error struct {
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the "operation.reason" code.
func (e *Error) Code() string {
	return e.code
}

// New builds an Error for the given operation and reason.
func New(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &Error{code: code, err: cause}
}

// Log records a service failure with the operation and reason attached.
func Log(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	if logger == nil {
		return
	}
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger.Error("quickhelp service error", attrs...)
}

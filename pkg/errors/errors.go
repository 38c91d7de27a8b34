// Unified error handling for gcodeview
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Worker protocol errors
	ErrUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
	ErrNoModel        ErrorCode = "NO_MODEL"
	ErrWorkerClosed   ErrorCode = "WORKER_CLOSED"

	// Infrastructure errors
	ErrSource    ErrorCode = "SOURCE"
	ErrExport    ErrorCode = "EXPORT"
	ErrHistory   ErrorCode = "HISTORY"
	ErrTransport ErrorCode = "TRANSPORT"

	ErrRuntime ErrorCode = "RUNTIME"
)

// HostError is the coded error type shared by the infrastructure packages
type HostError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// File is the source file or URI (if available)
	File string

	// Line is the line number in the source file (if available)
	Line int

	// Section is the config section or context
	Section string

	// Option is the config option name (if applicable)
	Option string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}
}

// Error implements the error interface
func (e *HostError) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Section + "." + e.Option
	}
	if e.File != "" {
		where = e.File
		if e.Line > 0 {
			where = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
	}
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if where != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *HostError) Unwrap() error {
	return e.Err
}

// SetFile sets the source file
func (e *HostError) SetFile(file string) *HostError {
	e.File = file
	return e
}

// SetLine sets the line number
func (e *HostError) SetLine(line int) *HostError {
	e.Line = line
	return e
}

// SetSection sets the context section
func (e *HostError) SetSection(section string) *HostError {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *HostError) SetOption(option string) *HostError {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *HostError) SetContext(key string, value interface{}) *HostError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new HostError
func New(code ErrorCode, message string) *HostError {
	return &HostError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *HostError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ConfigOptionError creates an error for missing or invalid config option
func ConfigOptionError(section, option string) *HostError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section)).
		SetSection(section).
		SetOption(option)
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *HostError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason)).
		SetSection(section).
		SetOption(option)
}

// ConfigTypeError creates an error for config type conversion failure
func ConfigTypeError(section, option, value string, targetType string, err error) *HostError {
	return Wrap(err, ErrConfigType, fmt.Sprintf("failed to parse '%s' as %s", value, targetType)).
		SetSection(section).
		SetOption(option)
}

// Worker errors

// UnknownCommandError reports a request the worker does not understand
func UnknownCommandError(cmd string) *HostError {
	return New(ErrUnknownCommand, fmt.Sprintf("unknown command: %s", cmd)).
		SetContext("cmd", cmd)
}

// NoModelError reports an analyze request with nothing parsed
func NoModelError() *HostError {
	return New(ErrNoModel, "no parsed model to analyze")
}

// WorkerClosedError reports a submit after Close
func WorkerClosedError() *HostError {
	return New(ErrWorkerClosed, "worker is closed")
}

// Infrastructure errors

// SourceError wraps a failure reading G-code input
func SourceError(uri string, err error) *HostError {
	return Wrap(err, ErrSource, "read source").SetFile(uri)
}

// ExportError wraps a failure writing an export
func ExportError(message string, err error) *HostError {
	return Wrap(err, ErrExport, message)
}

// HistoryError wraps a history store failure
func HistoryError(operation string, err error) *HostError {
	return Wrap(err, ErrHistory, fmt.Sprintf("history %s failed", operation))
}

// TransportError wraps a server transport failure
func TransportError(message string, err error) *HostError {
	return Wrap(err, ErrTransport, message)
}

// RuntimeError creates a general runtime error
func RuntimeError(message string) *HostError {
	return New(ErrRuntime, message)
}

// FromPanic converts a recovered panic value to a HostError.
// Call it as `if r := recover(); r != nil { err = FromPanic(r) }`.
func FromPanic(r interface{}) *HostError {
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, ErrRuntime, "panic")
	case error:
		return Wrap(x, ErrRuntime, "panic")
	case string:
		return RuntimeError(fmt.Sprintf("panic: %s", x))
	default:
		return RuntimeError(fmt.Sprintf("panic: %v", x))
	}
}

// Is checks if the outermost error matches the given code
func Is(err error, code ErrorCode) bool {
	if hostErr, ok := err.(*HostError); ok {
		return hostErr.Code == code
	}
	return false
}

// HasCode reports whether any HostError in the chain carries code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var hostErr *HostError
		if !stderrors.As(err, &hostErr) {
			return false
		}
		if hostErr.Code == code {
			return true
		}
		err = hostErr.Err
	}
	return false
}

// CodeOf returns the code of the first HostError in the chain, or "".
func CodeOf(err error) ErrorCode {
	var hostErr *HostError
	if stderrors.As(err, &hostErr) {
		return hostErr.Code
	}
	return ""
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return HasCode(err, ErrConfigSection) ||
		HasCode(err, ErrConfigOption) ||
		HasCode(err, ErrConfigValidation) ||
		HasCode(err, ErrConfigType)
}

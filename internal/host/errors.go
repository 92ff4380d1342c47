// Package host is the wasmtime runtime for micro-apps: module compilation
// and caching, a pooled instance allocator, fuel and epoch budgets, and the
// capability bridge that exposes the table store, mutation interface, audit
// log, and inference gateway to guests.
package host

import (
	"errors"
	"fmt"
)

// Guest-visible error codes, shared across all capabilities.
const (
	// CodeNotConfigured: the capability's backing resource is not attached.
	CodeNotConfigured uint32 = 1
	// CodeDownstream: the store, transport, or remote service failed.
	CodeDownstream uint32 = 2
	// CodeCodec: bytes could not be encoded or decoded.
	CodeCodec uint32 = 3
)

// CapError is the only error shape that crosses the sandbox boundary.
type CapError struct {
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

func (e *CapError) Error() string {
	return fmt.Sprintf("capability error %d: %s", e.Code, e.Message)
}

func capErr(code uint32, format string, args ...any) *CapError {
	return &CapError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Host-internal error kinds. These never cross the sandbox boundary.
var (
	// ErrCompile: the module bytes were rejected; the execution never starts.
	ErrCompile = errors.New("host: compile")
	// ErrLink: an import mismatch or resource cap was hit at instantiation;
	// the execution never starts.
	ErrLink = errors.New("host: link")
)

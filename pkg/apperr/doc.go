// Package apperr defines the error taxonomy shared by every request-path
// package.
//
// # Overview
//
// All failures that can reach a client are represented as *apperr.Error with
// a stable Code, an HTTP status, and a client-safe message. Internal causes
// are wrapped (Unwrap-compatible) for logging but never serialized.
//
// # Usage
//
//	return apperr.Conflict("User with this email already exists")
//
//	if apperr.IsCode(err, apperr.CodeNotFound) { ... }
//
// Coerce folds any untyped error into a 500 Internal with a generic message,
// so unexpected failures never leak detail to clients.
//
// # Related Packages
//
//   - pkg/httputil: serializes *Error into the response envelope
//   - pkg/middleware: error-translation step of the request chain
package apperr

// Package httputil holds the JSON request/response helpers shared by the
// middleware chain and the API handlers: the uniform error envelope
// (message, code, ISO-8601 timestamp, request path) and small parsing
// helpers for bodies, path variables and query parameters.
package httputil

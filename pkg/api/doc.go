// Package api wires the user CRUD procedures behind the request pipeline:
// gorilla/mux routing, the middleware chain in its canonical stage order,
// session resolution, and health/metrics endpoints.
package api

// Package middleware executes the pre-handler request pipeline as an
// explicit state machine.
//
// # Overview
//
// A Chain holds an ordered list of Stages fixed at construction. Each
// stage returns a Result: Continue (next stage), Terminal (complete
// response, skip everything downstream), or Fail (error, translated once
// by the chain into the uniform error envelope). No stage communicates
// through panics; rejection is always a returned value.
//
// Stages may also implement Finalizer to observe the final response
// status. Finalizers run only for stages that returned Continue, after
// the response has been written. The rate limit stage uses this to
// forgive counted requests when its skip flags match the outcome.
//
// Built-in stages, in their canonical order: RequestLogging, IPDenylist,
// CSRF, SizeLimit, BodyValidation, RateLimit. Request shaping and
// validation run before admission control; authorization happens at the
// procedure boundary behind the handler.
package middleware

// Package ratelimit implements fixed-window request admission control.
//
// # Overview
//
// Store keeps one counter per key for the current time window. Check counts
// a request and decides admission; denied requests still increment the
// counter so a burst past the limit cannot reset the window early. Forgive
// lets the middleware exclude a completed request from the count after the
// fact (skip-successful / skip-failed), never below zero and never on an
// expired window.
//
// Expired records are treated as absent by Check itself; the periodic Reap
// sweep only bounds memory and may safely race with in-flight checks.
//
// # Fixed window
//
// Counts reset sharply at the window boundary rather than decaying
// continuously. After maxRequests calls within one window the next call is
// denied; the first call after ResetAt starts a fresh window with count=1.
//
// # Variants
//
// Store is in-memory and per-process. RedisStore shares the same semantics
// across instances via INCR + PEXPIRE, failing open on Redis errors.
package ratelimit

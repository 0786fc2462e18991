package embed

import "errors"

// ErrUpstreamUnavailable means the embedding model endpoint could not be
// reached or returned a 5xx/timeout — retriable by the caller, and the
// Matcher should degrade to rule-only scoring rather than fail the request.
var ErrUpstreamUnavailable = errors.New("embed: upstream unavailable")

// ErrInputInvalid means the composed text was empty or the upstream
// rejected it outright (4xx) — not retriable, a caller bug rather than a
// transient condition.
var ErrInputInvalid = errors.New("embed: input invalid")

// ErrDimensionMismatch means the upstream returned a vector whose length
// does not match the configured embedding dimension.
var ErrDimensionMismatch = errors.New("embed: dimension mismatch")

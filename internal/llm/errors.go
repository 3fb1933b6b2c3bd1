package llm

import "errors"

// Sentinel errors for the status classes the upstream contract distinguishes.
// Callers classify with errors.Is; error strings never carry request or
// response bodies.
var (
	// ErrRateLimited maps HTTP 429. The request may be retried later.
	ErrRateLimited = errors.New("llm: rate limited")
	// ErrUnauthorized maps HTTP 401/403. A configuration problem, not a
	// caller problem.
	ErrUnauthorized = errors.New("llm: unauthorized")
	// ErrUnavailable maps HTTP 5xx and transport failures.
	ErrUnavailable = errors.New("llm: service unavailable")
)

package shopify

import "fmt"

// UpstreamError is a non-2xx response from the platform API. Retryable
// unless Permanent reports true (a client error such as bad credentials).
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream API error (status %d): %s", e.Status, e.Body)
}

// Permanent reports whether retrying the same request cannot succeed.
// 429 is the one 4xx that is retryable after backoff.
func (e *UpstreamError) Permanent() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != 429
}

// TransportError is a network-level failure (connect, DNS, timeout).
// Always retryable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

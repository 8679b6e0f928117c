// Package fetch defines the failure taxonomy for single page retrievals.
package fetch

import "fmt"

// Kind classifies a fetch failure so the pipeline can log it precisely.
type Kind int

// Fetch failure kinds.
const (
	// KindUnreachable covers connection, DNS and TLS failures.
	KindUnreachable Kind = iota
	// KindHTTPStatus covers responses with a non-success status code.
	KindHTTPStatus
	// KindTimeout covers deadline expiry during the round trip.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	default:
		return "unreachable"
	}
}

// Error describes a failed page retrieval. Fetchers return exactly one Error
// per failed round trip; they never retry on their own.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timeout: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: unreachable: %v", e.URL, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

package llm

import "fmt"

// UnreachableError indicates a transport-level failure (DNS, connect,
// timeout, mid-stream read) before or while consuming the provider
// response. It is terminal for the current turn; callers surface it to
// the client rather than retrying.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("failed to reach upstream API: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// RejectedError indicates the provider answered with a non-2xx status.
// Status and body are surfaced verbatim; retrying would only amplify
// provider-side errors.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("upstream API error: %d %s", e.Status, e.Body)
}

package http

import "fmt"

// StatusError reports a non-2xx upstream response. Callers branch on Code to
// classify auth failures versus transient faults.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, truncate(e.Body, 256))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

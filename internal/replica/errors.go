package replica

import "fmt"

// ConnectionError reports a failed or lost server link.
type ConnectionError struct {
	URL string
	Err error
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.URL, e.Err)
}

func (e ConnectionError) Unwrap() error { return e.Err }

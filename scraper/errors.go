package scraper

import (
	"fmt"
)

// AuthError means the upstream rejected the credential. Retrying cannot help.
type AuthError struct {
	Resource string
	Page     int
	Status   int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s page %d: authentication rejected (HTTP %d)", e.Resource, e.Page, e.Status)
}

// TransientFetchError is returned once retries for a page are exhausted or the
// failure was not worth retrying. The page is skipped for this cycle.
type TransientFetchError struct {
	Resource string
	Page     int
	Attempts int
	Err      error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s page %d: unavailable after %d attempt(s): %v", e.Resource, e.Page, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// DataAnomalyError describes one upstream record that was skipped.
type DataAnomalyError struct {
	Resource string
	Page     int
	Index    int
	Reason   string
}

func (e *DataAnomalyError) Error() string {
	return fmt.Sprintf("%s page %d record %d: %s", e.Resource, e.Page, e.Index, e.Reason)
}

type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

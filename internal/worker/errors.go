package worker

// RetryableError wraps transient infrastructure errors that should trigger a
// broker requeue of the original message. Delivery failures themselves never
// use it; those are rescheduled with backoff through the dispatch queue.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

package spacetrack

import "fmt"

// AuthError is returned when the login request is rejected or fails.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("space-track login: %v", e.Err)
	}
	return fmt.Sprintf("space-track login: http %d", e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RequestError is returned when a catalog query fails or the response is
// not a JSON document.
type RequestError struct {
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *RequestError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("space-track query %s: %v", e.URL, e.Err)
	case e.StatusCode != 200:
		return fmt.Sprintf("space-track query %s: http %d", e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("space-track query %s: invalid content-type %q", e.URL, e.ContentType)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

package salesforce

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingToken is returned by New when no access token is configured and
// the client was not created tokenless.
var ErrMissingToken = errors.New("salesforce: access token missing; set Tokenless to use joins without querying")

// RemoteQueryError reports a failed fetch of a query page: a transport
// error, a non-200 response or a body that could not be read or decoded.
// NextURL is set when the failure happened while following pagination.
// Body holds whatever the server sent, when anything was read.
type RemoteQueryError struct {
	Query      string
	NextURL    string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteQueryError) Error() string {
	where := fmt.Sprintf("query %q", e.Query)
	if e.NextURL != "" {
		where += fmt.Sprintf(" on next page %q", e.NextURL)
	}
	switch {
	case e.StatusCode != 0 && e.StatusCode != http.StatusOK:
		return fmt.Sprintf("%s failed with status %d: %s", where, e.StatusCode, e.Body)
	case e.Body != "":
		return fmt.Sprintf("%s failed: %v: %s", where, e.Err, e.Body)
	default:
		return fmt.Sprintf("%s failed: %v", where, e.Err)
	}
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

// TokenRequestError reports a failed client-credentials token exchange.
type TokenRequestError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenRequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token request failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token request failed: %v", e.Err)
}

func (e *TokenRequestError) Unwrap() error { return e.Err }

// IsRemoteQueryError reports whether err wraps a RemoteQueryError.
func IsRemoteQueryError(err error) bool {
	var rq *RemoteQueryError
	return errors.As(err, &rq)
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package idputil

import (
	"fmt"
	"net/http"
)

// UnexpectedResponseError is returned when JWKS or OpenID configuration endpoint responds with non-200 status.
// Response headers are kept, so callers may inspect Retry-After or similar.
type UnexpectedResponseError struct {
	StatusCode int
	Header     http.Header
}

// NewUnexpectedResponseError makes UnexpectedResponseError from the received response.
func NewUnexpectedResponseError(resp *http.Response) *UnexpectedResponseError {
	return &UnexpectedResponseError{StatusCode: resp.StatusCode, Header: resp.Header.Clone()}
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected HTTP status code %d", e.StatusCode)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package jwks

import "fmt"

// FetchError is an error that may occur during fetching JWKS:
// request can't be made, transport fails, server responds non-200 status code or malformed body.
type FetchError struct {
	Inner error
	URL   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("error while fetching JWKS (URL: %q): %s", e.URL, e.Inner.Error())
}

func (e *FetchError) Unwrap() error {
	return e.Inner
}

// EncodingError is an error that occurs when JWK contains malformed key material
// and can't be converted to PEM-encoded public key.
type EncodingError struct {
	Inner error
	KeyID string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("error while encoding JWK to PEM (Key ID: %q): %s", e.KeyID, e.Inner.Error())
}

func (e *EncodingError) Unwrap() error {
	return e.Inner
}

// OpenIDConfigurationError is an error that may occur during getting OpenID configuration for issuer.
type OpenIDConfigurationError struct {
	Inner error
	URL   string
}

func (e *OpenIDConfigurationError) Error() string {
	return fmt.Sprintf("error while getting OpenID configuration (URL: %q): %s", e.URL, e.Inner.Error())
}

func (e *OpenIDConfigurationError) Unwrap() error {
	return e.Inner
}

// UntrustedURLError is an error that occurs when JWKS is requested from URL that doesn't match trusted ones.
type UntrustedURLError struct {
	URL string
}

func (e *UntrustedURLError) Error() string {
	return fmt.Sprintf("JWKS URL %q is not trusted", e.URL)
}

// JWKNotFoundError is an error that occurs when JWK is not found by kid.
type JWKNotFoundError struct {
	URL   string
	KeyID string
}

func (e *JWKNotFoundError) Error() string {
	return fmt.Sprintf("JWK not found (Key ID: %q, JWKS URL: %q)", e.KeyID, e.URL)
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package idptest provides helper primitives for testing JWKS consumers:
// JWKS and OpenID configuration HTTP handlers, a simple HTTP server serving them,
// and functions for signing tokens with the pre-defined test key.
package idptest

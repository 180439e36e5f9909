/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package idputil provides utilities for talking to identity providers (authorization servers).
// It's used in the internal code and not exposed to the public API.
package idputil

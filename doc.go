/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package pubkeyutil provides configuration and construction helpers for jwks.CachingClient,
// which fetches JWKS, keeps received RSA public keys in memory and returns them PEM-encoded by key ID.
package pubkeyutil

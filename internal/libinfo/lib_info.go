/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package libinfo

// PrometheusVersionLabel is a name of the constant label with the library version attached to all metrics.
const PrometheusVersionLabel = "lib_version"

// UserAgent returns User-Agent header value for requests to JWKS and OpenID configuration endpoints.
func UserAgent() string {
	return LibName + "/" + GetLibVersion()
}

// LogPrefix returns a prefix added to all log messages of the library.
func LogPrefix() string {
	return "[" + UserAgent() + "] "
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package idputil

import (
	"net/http"
	"time"

	"github.com/acronis/go-appkit/httpclient"
	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-pubkeyutil/internal/libinfo"
)

const DefaultHTTPRequestTimeout = 30 * time.Second

// HTTPClientOpts contains options for MakeHTTPClient.
type HTTPClientOpts struct {
	// RequestTimeout limits the whole request including reading the body.
	// DefaultHTTPRequestTimeout is used if it's zero.
	RequestTimeout time.Duration

	// MaxRetryAttempts enables retrying of failed requests when it's positive.
	// By default, every request is made exactly once.
	MaxRetryAttempts int

	Logger log.FieldLogger
}

func MakeDefaultHTTPClient(reqTimeout time.Duration, logger log.FieldLogger) *http.Client {
	return MakeHTTPClient(HTTPClientOpts{RequestTimeout: reqTimeout, Logger: logger})
}

func MakeHTTPClient(opts HTTPClientOpts) *http.Client {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultHTTPRequestTimeout
	}
	var tr http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if opts.MaxRetryAttempts > 0 {
		tr, _ = httpclient.NewRetryableRoundTripperWithOpts(tr, httpclient.RetryableRoundTripperOpts{
			MaxRetryAttempts: opts.MaxRetryAttempts, Logger: opts.Logger}) // error is always nil
	}
	tr = httpclient.NewUserAgentRoundTripper(tr, libinfo.UserAgent())
	return &http.Client{Timeout: opts.RequestTimeout, Transport: tr}
}

func PrepareLogger(logger log.FieldLogger) log.FieldLogger {
	if logger == nil {
		return log.NewDisabledLogger()
	}
	return log.NewPrefixedLogger(logger, libinfo.LogPrefix())
}

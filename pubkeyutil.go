/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package pubkeyutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-pubkeyutil/internal/idputil"
	"github.com/acronis/go-pubkeyutil/jwks"
)

// ErrJWKSURLNotConfigured is returned when neither JWKS URL nor issuer URL is configured.
var ErrJWKSURLNotConfigured = errors.New("neither JWKS URL nor issuer URL is configured")

// NewCachingClient creates a new jwks.CachingClient with the given configuration.
func NewCachingClient(cfg *Config, opts ...CachingClientOption) (*jwks.CachingClient, error) {
	var options cachingClientOptions
	for _, opt := range opts {
		opt(&options)
	}

	logger := idputil.PrepareLogger(options.logger)
	httpClient := idputil.MakeHTTPClient(idputil.HTTPClientOpts{
		RequestTimeout:   time.Duration(cfg.HTTPClient.RequestTimeout),
		MaxRetryAttempts: cfg.HTTPClient.MaxRetryAttempts,
		Logger:           logger,
	})

	if len(cfg.JWKS.TrustedURLs) == 0 {
		logger.Warn("list of trusted JWKS URLs is empty, keys may be fetched from any URL")
	}

	cachingClient, err := jwks.NewCachingClientWithOpts(jwks.CachingClientOpts{
		ClientOpts: jwks.ClientOpts{
			HTTPClient:                 httpClient,
			Logger:                     options.logger,
			PrometheusLibInstanceLabel: options.prometheusLibInstanceLabel,
		},
		Fetcher:                    options.fetcher,
		CacheUpdateMinInterval:     time.Duration(cfg.JWKS.Cache.UpdateMinInterval),
		MissingKeysCacheMaxEntries: cfg.JWKS.Cache.MissingKeysMaxEntries,
		TrustedURLs:                cfg.JWKS.TrustedURLs,
	})
	if err != nil {
		return nil, fmt.Errorf("new JWKS caching client: %w", err)
	}
	return cachingClient, nil
}

type cachingClientOptions struct {
	logger                     log.FieldLogger
	prometheusLibInstanceLabel string
	fetcher                    jwks.Fetcher
}

// CachingClientOption is an option for creating jwks.CachingClient.
type CachingClientOption func(options *cachingClientOptions)

// WithCachingClientLogger sets the logger for jwks.CachingClient.
func WithCachingClientLogger(logger log.FieldLogger) CachingClientOption {
	return func(options *cachingClientOptions) {
		options.logger = logger
	}
}

// WithCachingClientPrometheusLibInstanceLabel sets the Prometheus lib instance label for jwks.CachingClient.
func WithCachingClientPrometheusLibInstanceLabel(label string) CachingClientOption {
	return func(options *cachingClientOptions) {
		options.prometheusLibInstanceLabel = label
	}
}

// WithCachingClientFetcher sets the fetcher used by jwks.CachingClient instead of the HTTP one.
func WithCachingClientFetcher(fetcher jwks.Fetcher) CachingClientOption {
	return func(options *cachingClientOptions) {
		options.fetcher = fetcher
	}
}

// JWKSURLResolver is implemented by jwks.CachingClient.
type JWKSURLResolver interface {
	ResolveJWKSURL(ctx context.Context, issuerURL string) (string, error)
}

// ConfiguredJWKSURL returns JWKS URL from the configuration.
// If only issuer URL is configured, JWKS URL is discovered from the issuer's OpenID configuration.
func ConfiguredJWKSURL(ctx context.Context, cfg *Config, resolver JWKSURLResolver) (string, error) {
	if cfg.JWKS.URL != "" {
		return cfg.JWKS.URL, nil
	}
	if cfg.JWKS.IssuerURL != "" {
		return resolver.ResolveJWKSURL(ctx, cfg.JWKS.IssuerURL)
	}
	return "", ErrJWKSURLNotConfigured
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package jwks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-pubkeyutil/internal/idputil"
	"github.com/acronis/go-pubkeyutil/internal/jwk"
	"github.com/acronis/go-pubkeyutil/internal/metrics"
)

// OpenIDConfigurationPath is appended to issuer URL for discovering the JWKS endpoint.
const OpenIDConfigurationPath = idputil.OpenIDConfigurationPath

// KeyEntry is a single key of JWKS. Only fields required for building RSA public key are kept.
type KeyEntry struct {
	KeyID    string `json:"kid"`
	KeyType  string `json:"kty,omitempty"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}

// IsRSA reports whether the entry describes RSA key. Entries without "kty" are considered RSA.
func (e KeyEntry) IsRSA() bool {
	k := jwk.Key{Kty: e.KeyType}
	return k.IsRSA()
}

// KeySet is a set of keys received in one JWKS response.
type KeySet struct {
	Keys []KeyEntry `json:"keys"`
}

// Fetcher fetches JWKS from the remote endpoint.
type Fetcher interface {
	FetchKeySet(ctx context.Context, jwksURL string) (KeySet, error)
}

// FetcherFunc is a function that implements Fetcher interface.
type FetcherFunc func(ctx context.Context, jwksURL string) (KeySet, error)

// FetchKeySet implements Fetcher interface.
func (f FetcherFunc) FetchKeySet(ctx context.Context, jwksURL string) (KeySet, error) {
	return f(ctx, jwksURL)
}

// ClientOpts contains options for the JWKS client.
type ClientOpts struct {
	// HTTPClient is an HTTP client for making requests.
	HTTPClient *http.Client

	// Logger is a logger for the client.
	Logger log.FieldLogger

	// PrometheusLibInstanceLabel is a label for Prometheus metrics.
	// It allows distinguishing metrics from different instances of the same library.
	PrometheusLibInstanceLabel string
}

// Client gets public keys from remote JWKS.
// Every FetchKeySet call makes exactly one HTTP request.
// NOTE: CachingClient should be used in a typical service
// to avoid making HTTP requests on each JWT verification.
type Client struct {
	httpClient  *http.Client
	logger      log.FieldLogger
	promMetrics *metrics.PrometheusMetrics
}

var _ Fetcher = (*Client)(nil)

// NewClient returns a new Client.
func NewClient() *Client {
	return NewClientWithOpts(ClientOpts{})
}

// NewClientWithOpts returns a new Client with options.
func NewClientWithOpts(opts ClientOpts) *Client {
	promMetrics := metrics.GetPrometheusMetrics(opts.PrometheusLibInstanceLabel, "jwks_client")
	opts.Logger = idputil.PrepareLogger(opts.Logger)
	if opts.HTTPClient == nil {
		opts.HTTPClient = idputil.MakeDefaultHTTPClient(idputil.DefaultHTTPRequestTimeout, opts.Logger)
	}
	return &Client{httpClient: opts.HTTPClient, logger: opts.Logger, promMetrics: promMetrics}
}

// FetchKeySet makes GET request to the JWKS endpoint and decodes the response.
// Missing or empty "keys" is not an error, empty KeySet is returned in this case.
func (c *Client) FetchKeySet(ctx context.Context, jwksURL string) (KeySet, error) {
	keySet, err := c.getJWKS(ctx, jwksURL)
	if err != nil {
		return KeySet{}, &FetchError{Inner: err, URL: jwksURL}
	}
	c.logger.Info(fmt.Sprintf("%d keys fetched (jwks_url: %s)", len(keySet.Keys), jwksURL))
	return keySet, nil
}

// DiscoverJWKSURL gets jwks_uri from the issuer's /.well-known/openid-configuration endpoint.
func (c *Client) DiscoverJWKSURL(ctx context.Context, issuerURL string) (string, error) {
	openIDConfigURL := strings.TrimSuffix(issuerURL, "/") + OpenIDConfigurationPath
	openIDConfig, err := idputil.GetOpenIDConfiguration(ctx, c.httpClient, openIDConfigURL, c.logger, c.promMetrics)
	if err != nil {
		return "", &OpenIDConfigurationError{Inner: err, URL: openIDConfigURL}
	}
	if openIDConfig.JWKSURI == "" {
		return "", &OpenIDConfigurationError{Inner: errors.New("jwks_uri is missing"), URL: openIDConfigURL}
	}
	if _, err = url.ParseRequestURI(openIDConfig.JWKSURI); err != nil {
		return "", &OpenIDConfigurationError{
			Inner: fmt.Errorf("jwks_uri %q is not a valid URL: %w", openIDConfig.JWKSURI, err), URL: openIDConfigURL}
	}
	return openIDConfig.JWKSURI, nil
}

func (c *Client) getJWKS(ctx context.Context, jwksURL string) (KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, http.NoBody)
	if err != nil {
		return KeySet{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(startTime)
	if err != nil {
		c.promMetrics.ObserveHTTPClientRequest(http.MethodGet, jwksURL, 0, elapsed, metrics.HTTPRequestErrorDo)
		return KeySet{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeBodyErr := resp.Body.Close(); closeBodyErr != nil {
			c.logger.Error(fmt.Sprintf("closing response body error for GET %s", jwksURL), log.Error(closeBodyErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		c.promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, jwksURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorUnexpectedStatusCode)
		return KeySet{}, idputil.NewUnexpectedResponseError(resp)
	}

	var res KeySet
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		c.promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, jwksURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorDecodeBody)
		return KeySet{}, fmt.Errorf("decode response body json: %w", err)
	}

	c.promMetrics.ObserveHTTPClientRequest(http.MethodGet, jwksURL, resp.StatusCode, elapsed, "")
	return res, nil
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package idputil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-pubkeyutil/internal/metrics"
)

const OpenIDConfigurationPath = "/.well-known/openid-configuration"

type OpenIDConfiguration struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

func GetOpenIDConfiguration(
	ctx context.Context,
	httpClient *http.Client,
	targetURL string,
	logger log.FieldLogger,
	promMetrics *metrics.PrometheusMetrics,
) (OpenIDConfiguration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, http.NoBody)
	if err != nil {
		return OpenIDConfiguration{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := httpClient.Do(req)
	elapsed := time.Since(startTime)
	if err != nil {
		promMetrics.ObserveHTTPClientRequest(http.MethodGet, targetURL, 0, elapsed, metrics.HTTPRequestErrorDo)
		return OpenIDConfiguration{}, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if closeBodyErr := resp.Body.Close(); closeBodyErr != nil && logger != nil {
			logger.Error(fmt.Sprintf("closing response body error for GET %s", targetURL), log.Error(closeBodyErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, targetURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorUnexpectedStatusCode)
		return OpenIDConfiguration{}, NewUnexpectedResponseError(resp)
	}

	var openIDCfg OpenIDConfiguration
	if err = json.NewDecoder(resp.Body).Decode(&openIDCfg); err != nil {
		promMetrics.ObserveHTTPClientRequest(
			http.MethodGet, targetURL, resp.StatusCode, elapsed, metrics.HTTPRequestErrorDecodeBody)
		return OpenIDConfiguration{}, fmt.Errorf("decode response body json (Content-Type: %s): %w",
			resp.Header.Get("Content-Type"), err)
	}

	promMetrics.ObserveHTTPClientRequest(http.MethodGet, targetURL, resp.StatusCode, elapsed, "")
	return openIDCfg, nil
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package pubkeyutil

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-pubkeyutil/internal/idputil"
	"github.com/acronis/go-pubkeyutil/jwks"
)

func TestConfig_Set(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
pubkeyutil:
  httpClient:
    requestTimeout: 1m
    maxRetryAttempts: 3
  jwks:
    url: https://my-idp.com/idp/keys
    issuerUrl: https://my-idp.com
    trustedUrls:
      - https://*.my-company1.com/idp/keys
      - https://my-idp.com/idp/keys
    cache:
      updateMinInterval: 5m
      missingKeysMaxEntries: 42
`)
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, HTTPClientConfig{
			RequestTimeout:   config.TimeDuration(time.Minute),
			MaxRetryAttempts: 3,
		}, cfg.HTTPClient)
		require.Equal(t, JWKSConfig{
			URL:       "https://my-idp.com/idp/keys",
			IssuerURL: "https://my-idp.com",
			TrustedURLs: []string{
				"https://*.my-company1.com/idp/keys",
				"https://my-idp.com/idp/keys",
			},
			Cache: JWKSCacheConfig{
				UpdateMinInterval:     config.TimeDuration(time.Minute * 5),
				MissingKeysMaxEntries: 42,
			},
		}, cfg.JWKS)
	})

	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(""), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig().HTTPClient, cfg.HTTPClient)
		require.Equal(t, NewDefaultConfig().JWKS.Cache, cfg.JWKS.Cache)
		require.Empty(t, cfg.JWKS.URL)
		require.Empty(t, cfg.JWKS.TrustedURLs)
		require.Equal(t, config.TimeDuration(idputil.DefaultHTTPRequestTimeout), cfg.HTTPClient.RequestTimeout)
		require.Equal(t, 0, cfg.HTTPClient.MaxRetryAttempts)
		require.Equal(t, config.TimeDuration(jwks.DefaultCacheUpdateMinInterval), cfg.JWKS.Cache.UpdateMinInterval)
		require.Equal(t, jwks.DefaultMissingKeysCacheMaxEntries, cfg.JWKS.Cache.MissingKeysMaxEntries)
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfgData := bytes.NewBufferString(`
keys:
  jwks:
    url: https://my-idp.com/idp/keys
`)
		cfg := NewConfig(WithKeyPrefix("keys"))
		require.Equal(t, "keys", cfg.KeyPrefix())
		err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, "https://my-idp.com/idp/keys", cfg.JWKS.URL)
	})
}

func TestConfig_SetErrors(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		errKey  string
		errMsg  string
	}{
		{
			name: "invalid HTTP client timeout",
			cfgData: `
pubkeyutil:
  httpClient:
    requestTimeout: invalid
`,
			errKey: cfgKeyHTTPClientRequestTimeout,
			errMsg: "invalid duration",
		},
		{
			name: "negative max retry attempts",
			cfgData: `
pubkeyutil:
  httpClient:
    maxRetryAttempts: -1
`,
			errKey: cfgKeyHTTPClientMaxRetryAttempts,
			errMsg: "max retry attempts should be non-negative",
		},
		{
			name: "invalid JWKS URL",
			cfgData: `
pubkeyutil:
  jwks:
    url: ://invalid-url
`,
			errKey: cfgKeyJWKSURL,
			errMsg: "missing protocol scheme",
		},
		{
			name: "relative JWKS URL",
			cfgData: `
pubkeyutil:
  jwks:
    url: /idp/keys
`,
			errKey: cfgKeyJWKSURL,
			errMsg: "must be absolute",
		},
		{
			name: "invalid issuer URL",
			cfgData: `
pubkeyutil:
  jwks:
    issuerUrl: ://invalid-url
`,
			errKey: cfgKeyJWKSIssuerURL,
			errMsg: "missing protocol scheme",
		},
		{
			name: "invalid trusted URL",
			cfgData: `
pubkeyutil:
  jwks:
    trustedUrls:
      - ://invalid-url
`,
			errKey: cfgKeyJWKSTrustedURLs,
			errMsg: "must be absolute",
		},
		{
			name: "relative trusted URL",
			cfgData: `
pubkeyutil:
  jwks:
    trustedUrls:
      - /relative/keys
`,
			errKey: cfgKeyJWKSTrustedURLs,
			errMsg: "must be absolute",
		},
		{
			name: "invalid cache update min interval",
			cfgData: `
pubkeyutil:
  jwks:
    cache:
      updateMinInterval: invalid
`,
			errKey: cfgKeyJWKSCacheUpdateMinInterval,
			errMsg: "invalid duration",
		},
		{
			name: "negative missing keys max entries",
			cfgData: `
pubkeyutil:
  jwks:
    cache:
      missingKeysMaxEntries: -1
`,
			errKey: cfgKeyJWKSCacheMissingKeysMaxEntries,
			errMsg: "max entries should be non-negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			err := config.NewDefaultLoader("").LoadFromReader(strings.NewReader(tt.cfgData), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.errMsg)
			wantPrefix := cfgDefaultKeyPrefix + "." + tt.errKey
			require.Truef(t, strings.HasPrefix(err.Error(), wantPrefix),
				"expected error starts with %q, got %q", wantPrefix, err.Error())
		})
	}
}

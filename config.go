/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package pubkeyutil

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-appkit/config"

	"github.com/acronis/go-pubkeyutil/internal/idputil"
	"github.com/acronis/go-pubkeyutil/jwks"
)

const cfgDefaultKeyPrefix = "pubkeyutil"

const (
	cfgKeyHTTPClientRequestTimeout       = "httpClient.requestTimeout"
	cfgKeyHTTPClientMaxRetryAttempts     = "httpClient.maxRetryAttempts"
	cfgKeyJWKSURL                        = "jwks.url"
	cfgKeyJWKSIssuerURL                  = "jwks.issuerUrl"
	cfgKeyJWKSTrustedURLs                = "jwks.trustedUrls"
	cfgKeyJWKSCacheUpdateMinInterval     = "jwks.cache.updateMinInterval"
	cfgKeyJWKSCacheMissingKeysMaxEntries = "jwks.cache.missingKeysMaxEntries"
)

// Config represents a set of configuration parameters for fetching and caching public keys.
type Config struct {
	HTTPClient HTTPClientConfig `mapstructure:"httpClient" yaml:"httpClient" json:"httpClient"`
	JWKS       JWKSConfig       `mapstructure:"jwks" yaml:"jwks" json:"jwks"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	var opts = configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.HTTPClient = HTTPClientConfig{
		RequestTimeout: config.TimeDuration(idputil.DefaultHTTPRequestTimeout),
	}
	cfg.JWKS = JWKSConfig{
		Cache: JWKSCacheConfig{
			UpdateMinInterval:     config.TimeDuration(jwks.DefaultCacheUpdateMinInterval),
			MissingKeysMaxEntries: jwks.DefaultMissingKeysCacheMaxEntries,
		},
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyHTTPClientRequestTimeout, idputil.DefaultHTTPRequestTimeout.String())
	dp.SetDefault(cfgKeyHTTPClientMaxRetryAttempts, 0)
	dp.SetDefault(cfgKeyJWKSCacheUpdateMinInterval, jwks.DefaultCacheUpdateMinInterval.String())
	dp.SetDefault(cfgKeyJWKSCacheMissingKeysMaxEntries, jwks.DefaultMissingKeysCacheMaxEntries)
}

// HTTPClientConfig is a configuration of the HTTP client used for getting JWKS.
type HTTPClientConfig struct {
	RequestTimeout   config.TimeDuration `mapstructure:"requestTimeout" yaml:"requestTimeout" json:"requestTimeout"`
	MaxRetryAttempts int                 `mapstructure:"maxRetryAttempts" yaml:"maxRetryAttempts" json:"maxRetryAttempts"`
}

// JWKSConfig is a configuration of where JWKS is taken from and how it's cached.
type JWKSConfig struct {
	// URL is the JWKS endpoint. Either it or IssuerURL should be set.
	URL string `mapstructure:"url" yaml:"url" json:"url"`

	// IssuerURL is used for discovering the JWKS endpoint via OpenID configuration if URL is empty.
	IssuerURL string `mapstructure:"issuerUrl" yaml:"issuerUrl" json:"issuerUrl"`

	// TrustedURLs is a list of URL patterns (with glob wildcards in host, port and path) JWKS may be fetched from.
	TrustedURLs []string `mapstructure:"trustedUrls" yaml:"trustedUrls" json:"trustedUrls"`

	Cache JWKSCacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`
}

// JWKSCacheConfig represents configuration of the public keys cache.
type JWKSCacheConfig struct {
	UpdateMinInterval     config.TimeDuration `mapstructure:"updateMinInterval" yaml:"updateMinInterval" json:"updateMinInterval"`
	MissingKeysMaxEntries int                 `mapstructure:"missingKeysMaxEntries" yaml:"missingKeysMaxEntries" json:"missingKeysMaxEntries"` // nolint:lll
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	if err := c.setHTTPClientConfig(dp); err != nil {
		return err
	}
	return c.setJWKSConfig(dp)
}

func (c *Config) setHTTPClientConfig(dp config.DataProvider) error {
	var err error

	var reqTimeout time.Duration
	if reqTimeout, err = dp.GetDuration(cfgKeyHTTPClientRequestTimeout); err != nil {
		return err
	}
	c.HTTPClient.RequestTimeout = config.TimeDuration(reqTimeout)

	if c.HTTPClient.MaxRetryAttempts, err = dp.GetInt(cfgKeyHTTPClientMaxRetryAttempts); err != nil {
		return err
	}
	if c.HTTPClient.MaxRetryAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyHTTPClientMaxRetryAttempts, fmt.Errorf("max retry attempts should be non-negative"))
	}

	return nil
}

func (c *Config) setJWKSConfig(dp config.DataProvider) error {
	var err error

	if c.JWKS.URL, err = dp.GetString(cfgKeyJWKSURL); err != nil {
		return err
	}
	if err = validateAbsoluteURL(c.JWKS.URL); err != nil {
		return dp.WrapKeyErr(cfgKeyJWKSURL, err)
	}
	if c.JWKS.IssuerURL, err = dp.GetString(cfgKeyJWKSIssuerURL); err != nil {
		return err
	}
	if err = validateAbsoluteURL(c.JWKS.IssuerURL); err != nil {
		return dp.WrapKeyErr(cfgKeyJWKSIssuerURL, err)
	}
	if c.JWKS.TrustedURLs, err = dp.GetStringSlice(cfgKeyJWKSTrustedURLs); err != nil {
		return err
	}
	for _, trustedURL := range c.JWKS.TrustedURLs {
		if err = idputil.ValidateTrustedURLPattern(trustedURL); err != nil {
			return dp.WrapKeyErr(cfgKeyJWKSTrustedURLs, err)
		}
	}

	var updateMinInterval time.Duration
	if updateMinInterval, err = dp.GetDuration(cfgKeyJWKSCacheUpdateMinInterval); err != nil {
		return err
	}
	c.JWKS.Cache.UpdateMinInterval = config.TimeDuration(updateMinInterval)

	if c.JWKS.Cache.MissingKeysMaxEntries, err = dp.GetInt(cfgKeyJWKSCacheMissingKeysMaxEntries); err != nil {
		return err
	}
	if c.JWKS.Cache.MissingKeysMaxEntries < 0 {
		return dp.WrapKeyErr(cfgKeyJWKSCacheMissingKeysMaxEntries, fmt.Errorf("max entries should be non-negative"))
	}

	return nil
}

// validateAbsoluteURL accepts empty value.
func validateAbsoluteURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL %q must be absolute", rawURL)
	}
	return nil
}

/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package pubkeyutil

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/log"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-pubkeyutil/idptest"
	"github.com/acronis/go-pubkeyutil/jwks"
)

func TestNewCachingClient(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		jwksHandler := &idptest.JWKSHandler{}
		jwksServer := httptest.NewServer(jwksHandler)
		defer jwksServer.Close()

		logger := log.NewDisabledLogger()
		cachingClient, err := NewCachingClient(NewDefaultConfig(), WithCachingClientLogger(logger))
		require.NoError(t, err)
		require.NoError(t, cachingClient.RetrievePublicKeys(context.Background(), jwksServer.URL))
		_, found := cachingClient.GetPublicKeyPEMByKeyID(idptest.TestKeyID)
		require.True(t, found)
		require.EqualValues(t, 1, jwksHandler.ServedCount())
	})

	t.Run("trusted urls", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.JWKS.TrustedURLs = []string{"https://*.my-company.com/idp/keys"}
		cachingClient, err := NewCachingClient(cfg)
		require.NoError(t, err)

		err = cachingClient.RetrievePublicKeys(context.Background(), "https://evil.com/idp/keys")
		var untrustedErr *jwks.UntrustedURLError
		require.True(t, errors.As(err, &untrustedErr))
	})

	t.Run("invalid trusted url pattern", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.JWKS.TrustedURLs = []string{"idp/keys"}
		_, err := NewCachingClient(cfg)
		require.Error(t, err)
	})

	t.Run("custom fetcher", func(t *testing.T) {
		fetcher := jwks.FetcherFunc(func(ctx context.Context, jwksURL string) (jwks.KeySet, error) {
			return jwks.KeySet{Keys: []jwks.KeyEntry{{KeyID: "123", Modulus: "1", Exponent: "2"}}}, nil
		})
		cachingClient, err := NewCachingClient(&Config{}, WithCachingClientFetcher(fetcher),
			WithCachingClientPrometheusLibInstanceLabel("custom-fetcher"))
		require.NoError(t, err)
		require.NoError(t, cachingClient.RetrievePublicKeys(context.Background(), "https://my-idp.com/idp/keys"))
		pemKey, found := cachingClient.GetPublicKeyPEMByKeyID("123")
		require.True(t, found)
		require.Contains(t, pemKey, "BEGIN RSA PUBLIC KEY")
	})

	t.Run("request timeout", func(t *testing.T) {
		jwksServer := httptest.NewServer(&idptest.JWKSHandler{Delay: time.Second * 2})
		defer jwksServer.Close()

		cfg := NewDefaultConfig()
		cfg.HTTPClient.RequestTimeout = config.TimeDuration(time.Millisecond * 100)
		cachingClient, err := NewCachingClient(cfg)
		require.NoError(t, err)
		err = cachingClient.RetrievePublicKeys(context.Background(), jwksServer.URL)
		var fetchErr *jwks.FetchError
		require.True(t, errors.As(err, &fetchErr))
		require.False(t, cachingClient.InFlight())
	})
}

func TestConfiguredJWKSURL(t *testing.T) {
	idpSrv := idptest.NewHTTPServer()
	require.NoError(t, idpSrv.StartAndWaitForReady(time.Second*3))
	defer func() { require.NoError(t, idpSrv.Shutdown(context.Background())) }()

	cachingClient, err := NewCachingClient(NewDefaultConfig())
	require.NoError(t, err)

	t.Run("jwks url", func(t *testing.T) {
		jwksURL, err := ConfiguredJWKSURL(context.Background(),
			&Config{JWKS: JWKSConfig{URL: "https://my-idp.com/keys", IssuerURL: idpSrv.URL()}}, cachingClient)
		require.NoError(t, err)
		require.Equal(t, "https://my-idp.com/keys", jwksURL)
	})

	t.Run("issuer url", func(t *testing.T) {
		jwksURL, err := ConfiguredJWKSURL(context.Background(),
			&Config{JWKS: JWKSConfig{IssuerURL: idpSrv.URL()}}, cachingClient)
		require.NoError(t, err)
		require.Equal(t, idpSrv.JWKSURL(), jwksURL)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := ConfiguredJWKSURL(context.Background(), &Config{}, cachingClient)
		require.ErrorIs(t, err, ErrJWKSURLNotConfigured)
	})
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jwks_test

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-pubkeyutil/idptest"
	"github.com/acronis/go-pubkeyutil/jwks"
)

func TestEncodeRSAPublicKeyPEM(t *testing.T) {
	tests := []struct {
		name        string
		modulus     string
		exponent    string
		wantN       *big.Int
		wantE       int
		wantErrText string
	}{
		{name: "decimal values", modulus: "1", exponent: "2", wantN: big.NewInt(1), wantE: 2},
		{name: "base64url values", modulus: "DKE", exponent: "AQAB", wantN: big.NewInt(3233), wantE: 65537},
		{name: "padded base64 values", modulus: "DKE=", exponent: "AQAB", wantN: big.NewInt(3233), wantE: 65537},
		{name: "empty modulus", modulus: "", exponent: "AQAB", wantErrText: "missing N or E"},
		{name: "empty exponent", modulus: "DKE", exponent: "", wantErrText: "missing N or E"},
		{name: "zero modulus", modulus: "0", exponent: "AQAB", wantErrText: "modulus must be positive"},
		{name: "garbage modulus", modulus: "!!!", exponent: "AQAB", wantErrText: "modulus"},
		{name: "too wide exponent", modulus: "DKE", exponent: "AQAAAAAA", wantErrText: "exponent is out of range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pemKey, err := jwks.EncodeRSAPublicKeyPEM(tt.modulus, tt.exponent)
			if tt.wantErrText != "" {
				var encErr *jwks.EncodingError
				require.ErrorAs(t, err, &encErr)
				require.Empty(t, encErr.KeyID)
				require.Contains(t, encErr.Inner.Error(), tt.wantErrText)
				require.Empty(t, pemKey)
				return
			}
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(pemKey, "-----BEGIN RSA PUBLIC KEY-----\n"))
			require.True(t, strings.HasSuffix(pemKey, "-----END RSA PUBLIC KEY-----\n"))

			pubKey := requireDecodePEM(t, pemKey)
			require.Equal(t, 0, tt.wantN.Cmp(pubKey.N))
			require.Equal(t, tt.wantE, pubKey.E)

			pemKey2, err := jwks.EncodeRSAPublicKeyPEM(tt.modulus, tt.exponent)
			require.NoError(t, err)
			require.Equal(t, pemKey, pemKey2)
		})
	}

	t.Run("test key", func(t *testing.T) {
		testJWK := idptest.GetTestPublicJWKS()[0]
		pemKey, err := jwks.EncodeRSAPublicKeyPEM(testJWK.N, testJWK.E)
		require.NoError(t, err)
		pubKey := requireDecodePEM(t, pemKey)
		privKey := idptest.GetTestRSAPrivateKey().(*rsa.PrivateKey)
		require.True(t, privKey.PublicKey.Equal(pubKey))
	})
}

func requireDecodePEM(t *testing.T, pemKey string) *rsa.PublicKey {
	t.Helper()
	block, rest := pem.Decode([]byte(pemKey))
	require.NotNil(t, block)
	require.Empty(t, rest)
	require.Equal(t, jwks.PEMBlockTypeRSAPublicKey, block.Type)
	pubKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	require.NoError(t, err)
	return pubKey
}

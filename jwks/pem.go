/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jwks

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/acronis/go-pubkeyutil/internal/jwk"
)

// PEMBlockTypeRSAPublicKey is a type of PEM block with PKCS #1 RSA public key.
const PEMBlockTypeRSAPublicKey = "RSA PUBLIC KEY"

// EncodeRSAPublicKeyPEM converts modulus and exponent of JWK to PEM-encoded PKCS #1 RSA public key.
// Values are base64url-encoded big-endian integers (decimal strings are accepted too).
// The result is deterministic for the same input. Malformed key material results in *EncodingError.
func EncodeRSAPublicKeyPEM(modulus, exponent string) (string, error) {
	pubKey, err := jwk.DecodeRSAPublicKey(modulus, exponent)
	if err != nil {
		return "", &EncodingError{Inner: err}
	}
	return encodePublicKeyPEM(pubKey), nil
}

func encodePublicKeyPEM(pubKey *rsa.PublicKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  PEMBlockTypeRSAPublicKey,
		Bytes: x509.MarshalPKCS1PublicKey(pubKey),
	}))
}

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package jwk provides JSON Web Key (JWK) structure and methods to decode it to public and private keys.
package jwk

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// TypeRSA is the "kty" value of RSA keys.
const TypeRSA = "RSA"

var supportedKeyTypes = map[string]struct{}{
	TypeRSA: {},
}

// Key defines JSON Web Key structure.
type Key struct {
	Alg string `json:"alg,omitempty"` // algorithm
	D   string `json:"d,omitempty"`   // private exponent
	DP  string `json:"dp,omitempty"`  // d mod (p-1)
	DQ  string `json:"dq,omitempty"`  // d mod (q-1)
	E   string `json:"e"`             // public exponent
	Kid string `json:"kid"`           // Key ID
	Kty string `json:"kty,omitempty"` // Key Type
	N   string `json:"n"`             // modulus
	P   string `json:"p,omitempty"`   // prime factor 1
	Q   string `json:"q,omitempty"`   // prime factor 2
	QI  string `json:"qi,omitempty"`  // q^(-1) mod p
	Use string `json:"use,omitempty"`
}

// IsRSA reports whether the key is an RSA one.
// Some authorization servers omit "kty" and publish only RSA keys, so an empty type is treated as RSA.
func (j *Key) IsRSA() bool {
	return j.Kty == "" || j.Kty == TypeRSA
}

// DecodePublicKey decodes Key to public key.
func (j *Key) DecodePublicKey() (crypto.PublicKey, error) {
	if !j.IsRSA() {
		return nil, fmt.Errorf("unsupported key type %s", j.Kty)
	}
	return DecodeRSAPublicKey(j.N, j.E)
}

// DecodeRSAPublicKey makes RSA public key from the modulus and the public exponent.
// Both values are numeric strings accepted by DecodeNumericString.
func DecodeRSAPublicKey(modulus, exponent string) (*rsa.PublicKey, error) {
	if modulus == "" || exponent == "" {
		return nil, errors.New("malformed JWK RSA key: missing N or E")
	}

	n, err := DecodeNumericString(modulus)
	if err != nil {
		return nil, fmt.Errorf("malformed JWK RSA key: modulus: %w", err)
	}
	if n.Sign() <= 0 {
		return nil, errors.New("malformed JWK RSA key: modulus must be positive")
	}

	e, err := DecodeNumericString(exponent)
	if err != nil {
		return nil, fmt.Errorf("malformed JWK RSA key: exponent: %w", err)
	}
	if e.Sign() <= 0 || !e.IsInt64() || e.Int64() > math.MaxInt32 {
		return nil, errors.New("malformed JWK RSA key: exponent is out of range")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// DecodePrivateKey decodes Key to private key.
func (j *Key) DecodePrivateKey() (crypto.PrivateKey, error) {
	if _, ok := supportedKeyTypes[j.Kty]; !ok {
		return nil, fmt.Errorf("unsupported key type %s", j.Kty)
	}

	if j.D == "" {
		return nil, errors.New("malformed JWK RSA private exponent")
	}

	// Private components are always base64url-encoded, no decimal fallback here.
	components := []string{j.N, j.E, j.D, j.P, j.Q, j.DP, j.DQ, j.QI}
	decodedComponents := make([]*big.Int, len(components))
	for i, component := range components {
		var err error
		if decodedComponents[i], err = decodeBase64URLToBigInt(component); err != nil {
			return nil, fmt.Errorf("malformed Key RSA component: %w", err)
		}
	}

	rsaPrivateKey := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{
			N: decodedComponents[0],
			E: int(decodedComponents[1].Int64()),
		},
		D:      decodedComponents[2],
		Primes: []*big.Int{decodedComponents[3], decodedComponents[4]},
		Precomputed: rsa.PrecomputedValues{
			Dp:   decodedComponents[5],
			Dq:   decodedComponents[6],
			Qinv: decodedComponents[7],
		},
	}
	rsaPrivateKey.Precompute()
	if err := rsaPrivateKey.Validate(); err != nil {
		return nil, fmt.Errorf("invalid RSA private key: %w", err)
	}
	return rsaPrivateKey, nil
}

// DecodeNumericString decodes a big-endian unsigned integer.
// The value is base64url as RFC 7518 requires (trailing padding and the standard alphabet are tolerated).
// If it's not valid base64 but consists of decimal digits only, it's parsed as a decimal number.
func DecodeNumericString(encoded string) (*big.Int, error) {
	if encoded == "" {
		return nil, errors.New("empty value")
	}
	normalized := strings.TrimRight(encoded, "=")
	normalized = strings.NewReplacer("+", "-", "/", "_").Replace(normalized)
	data, err := base64.RawURLEncoding.DecodeString(normalized)
	if err == nil {
		return new(big.Int).SetBytes(data), nil
	}
	if isDecimal(encoded) {
		if n, ok := new(big.Int).SetString(encoded, 10); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("value is neither base64url nor decimal: %w", err)
}

func isDecimal(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

// decodeBase64URLToBigInt is a helper function to decode base64url without padding.
func decodeBase64URLToBigInt(encoded string) (*big.Int, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64url: %w", err)
	}
	return new(big.Int).SetBytes(data), nil
}

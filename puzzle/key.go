// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package puzzle RSA puzzles: a puzzle is the RSA encryption of a secret
// solution, only the private key holder can solve it, and the scheme is
// multiplicatively homomorphic so puzzles can be blinded and chained.
package puzzle

import (
	"crypto/rsa"
	"crypto/x509"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

// MinKeyBits smallest accepted modulus
const MinKeyBits = 1024

var bigOne = big.NewInt(1)

// RsaPubKey signer puzzle key, shared by every session
type RsaPubKey struct {
	key *rsa.PublicKey
}

// RsaKey private puzzle key, used by the blind signing oracle
type RsaKey struct {
	key    *rsa.PrivateKey
	pubKey *RsaPubKey
}

// GenerateKey generates a new puzzle key with e = 65537
func GenerateKey(r io.Reader, bits int) (*RsaKey, error) {
	if bits < MinKeyBits {
		return nil, errors.Wrapf(ErrInvalidKey, "key bits %d < %d", bits, MinKeyBits)
	}
	key, err := rsa.GenerateKey(r, bits)
	if err != nil {
		return nil, errors.Wrap(err, "GenerateKey")
	}
	return newRsaKey(key), nil
}

func newRsaKey(key *rsa.PrivateKey) *RsaKey {
	key.Precompute()
	return &RsaKey{key: key, pubKey: &RsaPubKey{key: &key.PublicKey}}
}

// RsaKeyFromBytes decodes a PKCS#1 private key
func RsaKeyFromBytes(b []byte) (*RsaKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(b)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, errors.Wrapf(ErrInvalidKey, "modulus bits %d", key.N.BitLen())
	}
	return newRsaKey(key), nil
}

// Bytes PKCS#1 encoding
func (k *RsaKey) Bytes() []byte {
	return x509.MarshalPKCS1PrivateKey(k.key)
}

// PubKey public part
func (k *RsaKey) PubKey() *RsaPubKey {
	return k.pubKey
}

// Solve decrypts a puzzle. This is the blind signing oracle operation: the
// caller only ever submits blinded puzzles.
func (k *RsaKey) Solve(p *Puzzle) (*PuzzleSolution, error) {
	if p == nil || !k.pubKey.InRange(p.v) {
		return nil, ErrOutOfRange
	}
	// rsa.DecryptPKCS1v15 pads, the raw operation is plain modular exponentiation
	s := new(big.Int).Exp(p.v, k.key.D, k.key.N)
	return &PuzzleSolution{value{s}}, nil
}

// RsaPubKeyFromBytes decodes a PKCS#1 public key
func RsaPubKeyFromBytes(b []byte) (*RsaPubKey, error) {
	key, err := x509.ParsePKCS1PublicKey(b)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEncoding, err.Error())
	}
	if key.N.BitLen() < MinKeyBits {
		return nil, errors.Wrapf(ErrInvalidKey, "modulus bits %d", key.N.BitLen())
	}
	return &RsaPubKey{key: key}, nil
}

// Bytes PKCS#1 encoding
func (k *RsaPubKey) Bytes() []byte {
	return x509.MarshalPKCS1PublicKey(k.key)
}

// Modulus copy of N
func (k *RsaPubKey) Modulus() *big.Int {
	return new(big.Int).Set(k.key.N)
}

// Equal compares modulus and exponent
func (k *RsaPubKey) Equal(o *RsaPubKey) bool {
	if o == nil {
		return false
	}
	return k.key.E == o.key.E && k.key.N.Cmp(o.key.N) == 0
}

// InRange 0 <= v < N
func (k *RsaPubKey) InRange(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(k.key.N) < 0
}

// Encrypt v^e mod N
func (k *RsaPubKey) Encrypt(v *big.Int) *big.Int {
	return new(big.Int).Exp(v, big.NewInt(int64(k.key.E)), k.key.N)
}

// randUnit returns a uniform value in [1, N) invertible mod N
func (k *RsaPubKey) randUnit(r io.Reader) (*big.Int, error) {
	max := new(big.Int).Sub(k.key.N, bigOne)
	for {
		v, err := randInt(r, max)
		if err != nil {
			return nil, err
		}
		v.Add(v, bigOne)
		if new(big.Int).GCD(nil, nil, v, k.key.N).Cmp(bigOne) == 0 {
			return v, nil
		}
	}
}

func (k *RsaPubKey) mulMod(a, b *big.Int) *big.Int {
	v := new(big.Int).Mul(a, b)
	return v.Mod(v, k.key.N)
}

func (k *RsaPubKey) inverse(v *big.Int) (*big.Int, error) {
	inv := new(big.Int).ModInverse(v, k.key.N)
	if inv == nil {
		return nil, ErrNotInvertible
	}
	return inv, nil
}

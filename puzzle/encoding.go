// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package puzzle

import (
	"encoding/hex"
	"math/big"
)

// MarshalText hex
func (x value) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(x.Bytes())), nil
}

func (x *value) unmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil || len(b) == 0 {
		return ErrInvalidEncoding
	}
	x.v = new(big.Int).SetBytes(b)
	return nil
}

// UnmarshalText hex
func (p *Puzzle) UnmarshalText(text []byte) error { return p.unmarshalText(text) }

// UnmarshalText hex
func (s *PuzzleSolution) UnmarshalText(text []byte) error { return s.unmarshalText(text) }

// UnmarshalText hex
func (f *BlindFactor) UnmarshalText(text []byte) error { return f.unmarshalText(text) }

// UnmarshalText hex
func (q *Quotient) UnmarshalText(text []byte) error { return q.unmarshalText(text) }

// MarshalText hex of the PKCS#1 encoding
func (k *RsaPubKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(k.Bytes())), nil
}

// UnmarshalText hex of the PKCS#1 encoding
func (k *RsaPubKey) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return ErrInvalidEncoding
	}
	pub, err := RsaPubKeyFromBytes(b)
	if err != nil {
		return err
	}
	k.key = pub.key
	return nil
}

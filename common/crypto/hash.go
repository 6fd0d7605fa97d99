// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package crypto

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

//Sha256 加密算法
func Sha256(bytes []byte) []byte {
	hasher := sha256.New()
	hasher.Write(bytes)
	return hasher.Sum(nil)
}

//Sha256Hash sha256 as a fixed size array
func Sha256Hash(bytes []byte) [32]byte {
	return sha256.Sum256(bytes)
}

//Hash256 double sha256, the bitcoin transaction hash function
func Hash256(parts ...[]byte) chainhash.Hash {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return chainhash.DoubleHashH(buf)
}

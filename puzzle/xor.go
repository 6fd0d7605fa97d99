// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package puzzle

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

var promiseInfo = []byte("puzzle-promise")

// maxPromiseLen hkdf-sha256 output limit
const maxPromiseLen = 255 * sha256.Size

// XOR masks (or unmasks) data with a keystream derived from the solution.
// A promise is XOR(solution, signature): it opens once the puzzle is solved.
func XOR(s *PuzzleSolution, data []byte) ([]byte, error) {
	if len(data) > maxPromiseLen {
		return nil, ErrPromiseKeyLength
	}
	stream := make([]byte, len(data))
	kdf := hkdf.New(sha256.New, s.Bytes(), nil, promiseInfo)
	if _, err := io.ReadFull(kdf, stream); err != nil {
		return nil, err
	}
	for i := range stream {
		stream[i] ^= data[i]
	}
	return stream, nil
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/puzzle"
)

// Oracle solves the single blinded puzzle of a session
type Oracle interface {
	SolveBlinded(blinded *puzzle.Puzzle) (*puzzle.PuzzleSolution, error)
}

// LocalOracle oracle backed by the signer's puzzle key
type LocalOracle struct {
	key *puzzle.RsaKey
}

// NewLocalOracle new
func NewLocalOracle(key *puzzle.RsaKey) *LocalOracle {
	return &LocalOracle{key: key}
}

// SolveBlinded RSA decryption of blinded
func (o *LocalOracle) SolveBlinded(blinded *puzzle.Puzzle) (*puzzle.PuzzleSolution, error) {
	return o.key.Solve(blinded)
}

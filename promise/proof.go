// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/pkg/errors"
)

// openPromise unmasks the promise of c with sol and checks the signature it
// carries against the candidate hash. Returns the DER signature.
func openPromise(signerKey *btcec.PublicKey, c *Candidate, sol *puzzle.PuzzleSolution) ([]byte, error) {
	if c.Commitment == nil {
		return nil, errors.Wrapf(ErrInvalidMessage, "candidate %d has no commitment", c.Index)
	}
	der, err := puzzle.XOR(sol, c.Commitment.Promise)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDecoySignature, "candidate %d der: %v", c.Index, err)
	}
	if !sig.Verify(c.Hash[:], signerKey) {
		return nil, errors.Wrapf(ErrInvalidDecoySignature, "candidate %d signature", c.Index)
	}
	return der, nil
}

// checkDecoys every decoy solution is in range, solves its puzzle and opens a
// valid signature over the decoy hash
func checkDecoys(key *puzzle.RsaPubKey, signerKey *btcec.PublicKey, decoys []*Candidate, solutions []*puzzle.PuzzleSolution) error {
	for i, c := range decoys {
		sol := solutions[i]
		if sol == nil || !key.InRange(sol.Int()) {
			return errors.Wrapf(ErrSolutionRange, "decoy %d", c.Index)
		}
		if !key.Verify(c.Commitment.Puzzle, sol) {
			return errors.Wrapf(ErrInvalidDecoySolution, "decoy %d", c.Index)
		}
		if _, err := openPromise(signerKey, c, sol); err != nil {
			return errors.Wrapf(ErrInvalidDecoySignature, "decoy %d: %v", c.Index, err)
		}
	}
	return nil
}

// checkQuotients puzzle(real_{j+1}) == puzzle(real_j) * q_j^e for every consecutive pair
func checkQuotients(key *puzzle.RsaPubKey, reals []*Candidate, quotients []*puzzle.Quotient) error {
	for j := 0; j+1 < len(reals); j++ {
		from, to := reals[j], reals[j+1]
		if !key.CheckQuotient(from.Commitment.Puzzle, to.Commitment.Puzzle, quotients[j]) {
			return errors.Wrapf(ErrInvalidQuotient, "quotient %d between %d and %d", j, from.Index, to.Index)
		}
	}
	return nil
}

// deriveSolutions fold over the quotients: s_0, s_0*q_0, s_0*q_0*q_1, ...
func deriveSolutions(key *puzzle.RsaPubKey, first *puzzle.PuzzleSolution, quotients []*puzzle.Quotient) []*puzzle.PuzzleSolution {
	solutions := make([]*puzzle.PuzzleSolution, 0, len(quotients)+1)
	solutions = append(solutions, first)
	for _, q := range quotients {
		solutions = append(solutions, key.ApplyQuotient(solutions[len(solutions)-1], q))
	}
	return solutions
}

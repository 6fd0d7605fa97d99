// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/metrics"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// SignerSession the escrow co-signer's side of the exchange. The signer
// generates every puzzle itself, so it never has to decrypt one.
type SignerSession struct {
	params    *Parameters
	opts      *options
	escrowKey *btcec.PrivateKey

	state                  SignerState
	hashes                 []chainhash.Hash
	decoyIndexesCommitment chainhash.Hash
	// solutions[i] solves the puzzle committed for hashes[i], cleared once proven
	solutions []*puzzle.PuzzleSolution
}

// NewSignerSession escrowKey is the initiator key of the escrow script
func NewSignerSession(params *Parameters, escrowKey *btcec.PrivateKey, opts ...Option) (*SignerSession, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if escrowKey == nil {
		return nil, errors.Wrap(ErrInvalidParameters, "nil escrow key")
	}
	return &SignerSession{
		params:    params,
		opts:      newOptions(opts),
		escrowKey: escrowKey,
		state:     SignerWaitingHashes,
	}, nil
}

// State current state
func (s *SignerSession) State() SignerState {
	return s.state
}

// Parameters session parameters
func (s *SignerSession) Parameters() *Parameters {
	return s.params
}

func (s *SignerSession) enter(op string) (signerTransition, error) {
	t := signerTransitions[op]
	if s.state != t.from {
		err := &StateError{Op: op, Actual: s.state, Expected: t.from}
		report(roleSigner, op, err)
		return t, err
	}
	return t, nil
}

func (s *SignerSession) fail(op string, err error) error {
	report(roleSigner, op, err)
	return err
}

func (s *SignerSession) abort(op string, err error) error {
	s.state = SignerAborted
	s.solutions = nil
	report(roleSigner, op, err)
	return err
}

// Commit signs every requested hash and hides each signature behind a fresh puzzle
func (s *SignerSession) Commit(req *SignatureRequest) ([]*Commitment, error) {
	t, err := s.enter(OpCommit)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, s.abort(OpCommit, errors.Wrap(ErrInvalidMessage, "nil request"))
	}
	if len(req.Hashes) != s.params.Total() {
		return nil, s.abort(OpCommit, errors.Wrapf(ErrHashCount, "got %d expected %d", len(req.Hashes), s.params.Total()))
	}
	key := s.params.SignerKey
	commitments := make([]*Commitment, len(req.Hashes))
	solutions := make([]*puzzle.PuzzleSolution, len(req.Hashes))
	for i, h := range req.Hashes {
		p, sol, err := key.GeneratePuzzle(s.opts.rng)
		if err != nil {
			return nil, s.fail(OpCommit, err)
		}
		sig := ecdsa.Sign(s.escrowKey, h[:])
		promise, err := puzzle.XOR(sol, sig.Serialize())
		if err != nil {
			return nil, s.fail(OpCommit, err)
		}
		commitments[i] = &Commitment{Puzzle: p, Promise: promise}
		solutions[i] = sol
	}
	s.hashes = append([]chainhash.Hash(nil), req.Hashes...)
	s.decoyIndexesCommitment = req.DecoyIndexesCommitment
	s.solutions = solutions
	s.state = t.to
	plog.Info(OpCommit, "commitments", len(commitments))
	return commitments, nil
}

// Prove checks the revelation against the committed request, solves the
// decoys and links the remaining puzzles with quotients.
func (s *SignerSession) Prove(rev *Revelation) (*CommitmentsProof, error) {
	t, err := s.enter(OpProve)
	if err != nil {
		return nil, err
	}
	if rev == nil {
		return nil, s.abort(OpProve, errors.Wrap(ErrInvalidMessage, "nil revelation"))
	}
	decoyCount := s.params.DecoyCount
	if len(rev.DecoyIndexes) != decoyCount || len(rev.DecoySalts) != decoyCount {
		return nil, s.abort(OpProve, errors.Wrapf(ErrRevelationCount, "indexes %d salts %d expected %d",
			len(rev.DecoyIndexes), len(rev.DecoySalts), decoyCount))
	}
	total := len(s.hashes)
	prev := -1
	for _, idx := range rev.DecoyIndexes {
		if idx <= prev || idx >= total {
			return nil, s.abort(OpProve, errors.Wrapf(ErrInvalidIndexes, "index %d after %d of %d", idx, prev, total))
		}
		prev = idx
	}
	if HashIndexes(rev.IndexSalt, rev.DecoyIndexes) != s.decoyIndexesCommitment {
		return nil, s.abort(OpProve, ErrIndexCommitmentMismatch)
	}
	for i, idx := range rev.DecoyIndexes {
		if s.params.DecoyHash(rev.DecoySalts[i]) != s.hashes[idx] {
			return nil, s.abort(OpProve, errors.Wrapf(ErrDecoySaltMismatch, "decoy %d", idx))
		}
	}

	key := s.params.SignerKey
	proof := &CommitmentsProof{
		DecoySolutions: make([]*puzzle.PuzzleSolution, decoyCount),
		Quotients:      make([]*puzzle.Quotient, 0, s.params.RealCount-1),
	}
	isDecoy := make([]bool, total)
	for i, idx := range rev.DecoyIndexes {
		proof.DecoySolutions[i] = s.solutions[idx]
		isDecoy[idx] = true
	}
	var last *puzzle.PuzzleSolution
	for i, sol := range s.solutions {
		if isDecoy[i] {
			continue
		}
		if last != nil {
			q, err := key.ComputeQuotient(last, sol)
			if err != nil {
				return nil, s.fail(OpProve, err)
			}
			proof.Quotients = append(proof.Quotients, q)
		}
		last = sol
	}
	s.solutions = nil
	s.state = t.to
	metrics.SessionsCompleted.Inc(1)
	plog.Info(OpProve, "decoys", decoyCount, "quotients", len(proof.Quotients))
	return proof, nil
}

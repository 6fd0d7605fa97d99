// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"io"

	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// CandidateKind tag of a candidate
type CandidateKind uint8

// candidate kinds
const (
	CandidateReal CandidateKind = iota + 1
	CandidateDecoy
)

func (k CandidateKind) String() string {
	switch k {
	case CandidateReal:
		return "real"
	case CandidateDecoy:
		return "decoy"
	}
	return "unknown"
}

// Candidate one entry of the shuffled list. FeeOffset is set for real
// candidates only, Salt for decoys only.
type Candidate struct {
	Kind       CandidateKind
	Index      int
	FeeOffset  int64
	Salt       [32]byte
	Hash       chainhash.Hash
	Commitment *Commitment
}

// IsReal tag check
func (c *Candidate) IsReal() bool {
	return c.Kind == CandidateReal
}

// RealHashFunc signature hash of the cashout paying feeOffset satoshis less
type RealHashFunc func(feeOffset int64) (chainhash.Hash, error)

// CandidateSet candidates indexed by their shuffled position
type CandidateSet []*Candidate

// NewCandidateSet builds N real candidates with fee offsets 0..N-1 and M decoys
// with fresh salts, shuffles them with rng and hashes every one of them.
func NewCandidateSet(params *Parameters, rng io.Reader, realHash RealHashFunc) (CandidateSet, error) {
	set := make(CandidateSet, 0, params.Total())
	for k := 0; k < params.RealCount; k++ {
		set = append(set, &Candidate{Kind: CandidateReal, FeeOffset: int64(k)})
	}
	for k := 0; k < params.DecoyCount; k++ {
		salt, err := crypto.RandHash32(rng)
		if err != nil {
			return nil, errors.Wrap(err, "decoy salt")
		}
		set = append(set, &Candidate{Kind: CandidateDecoy, Salt: salt})
	}
	if err := set.shuffle(rng); err != nil {
		return nil, err
	}
	for i, c := range set {
		c.Index = i
		h, err := candidateHash(params, c, realHash)
		if err != nil {
			return nil, err
		}
		c.Hash = h
	}
	return set, nil
}

func candidateHash(params *Parameters, c *Candidate, realHash RealHashFunc) (chainhash.Hash, error) {
	switch c.Kind {
	case CandidateReal:
		return realHash(c.FeeOffset)
	case CandidateDecoy:
		return params.DecoyHash(c.Salt), nil
	}
	return chainhash.Hash{}, errors.Wrapf(ErrInvalidMessage, "candidate %d kind %d", c.Index, c.Kind)
}

// Fisher-Yates
func (s CandidateSet) shuffle(rng io.Reader) error {
	for i := len(s) - 1; i > 0; i-- {
		j, err := crypto.RandIntn(rng, i+1)
		if err != nil {
			return errors.Wrap(err, "shuffle")
		}
		s[i], s[j] = s[j], s[i]
	}
	return nil
}

// Counts number of real and decoy candidates
func (s CandidateSet) Counts() (reals, decoys int) {
	for _, c := range s {
		if c.IsReal() {
			reals++
		} else {
			decoys++
		}
	}
	return reals, decoys
}

// Reals real candidates in ascending position
func (s CandidateSet) Reals() []*Candidate {
	return s.filter(CandidateReal)
}

// Decoys decoy candidates in ascending position
func (s CandidateSet) Decoys() []*Candidate {
	return s.filter(CandidateDecoy)
}

func (s CandidateSet) filter(kind CandidateKind) []*Candidate {
	var out []*Candidate
	for _, c := range s {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// DecoyIndexes ascending positions of the decoys
func (s CandidateSet) DecoyIndexes() []int {
	decoys := s.Decoys()
	indexes := make([]int, len(decoys))
	for i, c := range decoys {
		indexes[i] = c.Index
	}
	return indexes
}

// Hashes candidate hashes in position order
func (s CandidateSet) Hashes() []chainhash.Hash {
	hashes := make([]chainhash.Hash, len(s))
	for i, c := range s {
		hashes[i] = c.Hash
	}
	return hashes
}

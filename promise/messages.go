// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// SignatureRequest requester -> signer, one hash per candidate in shuffled order
type SignatureRequest struct {
	Hashes                 []chainhash.Hash `json:"hashes"`
	DecoyIndexesCommitment chainhash.Hash   `json:"decoyIndexesCommitment"`
}

// Commitment signer -> requester, one per requested hash in the same order
type Commitment struct {
	Puzzle *puzzle.Puzzle `json:"puzzle"`
	// DER signature over the hash masked with the puzzle solution
	Promise []byte `json:"promise"`
}

// Revelation requester -> signer, opens the decoy index commitment
type Revelation struct {
	// strictly ascending
	DecoyIndexes []int      `json:"decoyIndexes"`
	IndexSalt    [32]byte   `json:"indexSalt"`
	DecoySalts   [][32]byte `json:"decoySalts"`
}

// CommitmentsProof signer -> requester
type CommitmentsProof struct {
	// DecoySolutions[i] solves the puzzle at DecoyIndexes[i]
	DecoySolutions []*puzzle.PuzzleSolution `json:"decoySolutions"`
	// Quotients[j] links the j-th and (j+1)-th real puzzle in position order
	Quotients []*puzzle.Quotient `json:"quotients"`
}

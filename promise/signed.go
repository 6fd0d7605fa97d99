// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/metrics"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// SignedTxIterator lazy, finite, non restartable sequence of signed cashouts.
// Real candidates whose promise does not open are skipped.
//
//	it, err := session.GetSignedTransactions(solution)
//	for it.Next() {
//		broadcast(it.Tx())
//	}
//	err = it.Err()
type SignedTxIterator struct {
	key             *puzzle.RsaPubKey
	counterpartyKey *btcec.PublicKey
	ownerKey        *btcec.PrivateKey
	escrow          *ledger.EscrowCoin
	cashout         *wire.MsgTx
	assembler       *ledger.Assembler
	reals           []*Candidate
	solutions       []*puzzle.PuzzleSolution

	pos     int
	yielded int
	tx      *wire.MsgTx
	err     error
}

// Next assembles the next usable candidate
func (it *SignedTxIterator) Next() bool {
	it.tx = nil
	if it.err != nil {
		return false
	}
	for it.pos < len(it.reals) {
		c, sol := it.reals[it.pos], it.solutions[it.pos]
		it.pos++
		tx, err := it.assemble(c, sol)
		if err != nil {
			metrics.CandidatesSkipped.Inc(1)
			plog.Debug("SignedTxIterator skip", "index", c.Index, "feeOffset", c.FeeOffset, "err", err)
			continue
		}
		it.yielded++
		it.tx = tx
		metrics.TransactionsSigned.Inc(1)
		return true
	}
	if it.yielded == 0 {
		it.err = errors.Wrapf(ErrNoUsableTransaction, "%d real candidates", len(it.reals))
		report(roleRequester, OpGetSignedTransactions, it.err)
	}
	return false
}

// Tx transaction produced by the last successful Next
func (it *SignedTxIterator) Tx() *wire.MsgTx {
	return it.tx
}

// Err ErrNoUsableTransaction once the sequence ends without a single transaction
func (it *SignedTxIterator) Err() error {
	return it.err
}

func (it *SignedTxIterator) assemble(c *Candidate, sol *puzzle.PuzzleSolution) (*wire.MsgTx, error) {
	if !it.key.Verify(c.Commitment.Puzzle, sol) {
		return nil, errors.Errorf("derived solution does not solve puzzle %d", c.Index)
	}
	der, err := openPromise(it.counterpartyKey, c, sol)
	if err != nil {
		return nil, err
	}
	tx, err := ledger.CashoutVariant(it.cashout, c.FeeOffset)
	if err != nil {
		return nil, err
	}
	return it.assembler.Assemble(tx, it.escrow, der, it.ownerKey)
}

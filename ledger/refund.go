// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// BuildRefund signed transaction returning the escrow to the initiator once
// the lock time passed. The ELSE branch is selected with an empty item.
func BuildRefund(coin *EscrowCoin, destination []byte, feeRate btcutil.Amount, initiatorKey *btcec.PrivateKey) (*wire.MsgTx, error) {
	params, err := coin.Params()
	if err != nil {
		return nil, err
	}
	if !params.Initiator.IsEqual(initiatorKey.PubKey()) {
		return nil, errors.Wrap(ErrInvalidBtcPrivKey, "not the escrow initiator")
	}
	if len(destination) == 0 {
		return nil, ErrInvalidDestination
	}
	tx := wire.NewMsgTx(btcTxVersion)
	in := wire.NewTxIn(&coin.OutPoint, nil, nil)
	// a final sequence disables the lock time
	in.Sequence = wire.MaxTxInSequenceNum - 1
	tx.AddTxIn(in)
	tx.AddTxOut(wire.NewTxOut(0, destination))
	tx.LockTime = params.LockTime

	fee := EstimateFee(tx, wire.TxWitness{make([]byte, maxSigLen), nil, coin.RedeemScript}, feeRate)
	value := coin.Amount - fee
	if value <= DustLimit {
		return nil, errors.Wrapf(ErrInsufficientEscrow, "escrow %v fee %v", coin.Amount, fee)
	}
	tx.TxOut[0].Value = int64(value)

	signer := NewWitnessSigner()
	sig, err := signer.SignInput(tx, initiatorKey, coin)
	if err != nil {
		return nil, err
	}
	tx.TxIn[0].Witness = wire.TxWitness{sig, nil, coin.RedeemScript}
	if err := signer.VerifyInput(tx, coin); err != nil {
		return nil, err
	}
	return tx, nil
}

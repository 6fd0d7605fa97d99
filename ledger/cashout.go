// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	// DustLimit smallest output the cashout may produce
	DustLimit btcutil.Amount = 546
	// 比特币交易版本
	btcTxVersion = 2
	// DER signature upper bound plus the hash type byte
	maxSigLen = 73
)

// NewCashout unsigned transaction moving the whole escrow, minus fee, to destination
func NewCashout(coin *EscrowCoin, destination []byte, feeRate btcutil.Amount) (*wire.MsgTx, error) {
	if len(destination) == 0 || txscript.GetScriptClass(destination) == txscript.NonStandardTy {
		return nil, ErrInvalidDestination
	}
	tx := wire.NewMsgTx(btcTxVersion)
	tx.AddTxIn(wire.NewTxIn(&coin.OutPoint, nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, destination))

	witness := wire.TxWitness{nil, make([]byte, maxSigLen), make([]byte, maxSigLen), {1}, coin.RedeemScript}
	fee := EstimateFee(tx, witness, feeRate)
	value := coin.Amount - fee
	if value <= DustLimit {
		return nil, errors.Wrapf(ErrInsufficientEscrow, "escrow %v fee %v", coin.Amount, fee)
	}
	tx.TxOut[0].Value = int64(value)
	return tx, nil
}

// EstimateFee fee of tx once its first input carries witness, feeRate per 1000 virtual bytes
func EstimateFee(tx *wire.MsgTx, witness wire.TxWitness, feeRate btcutil.Amount) btcutil.Amount {
	sized := tx.Copy()
	sized.TxIn[0].Witness = witness
	weight := blockchain.GetTransactionWeight(btcutil.NewTx(sized))
	vsize := (weight + blockchain.WitnessScaleFactor - 1) / blockchain.WitnessScaleFactor
	return feeRate * btcutil.Amount(vsize) / 1000
}

// CashoutVariant copy of the template paying offset satoshis less, which makes its hash unique
func CashoutVariant(template *wire.MsgTx, offset int64) (*wire.MsgTx, error) {
	tx := template.Copy()
	if len(tx.TxOut) != 1 {
		return nil, errors.Wrapf(ErrInvalidDestination, "outputs %d", len(tx.TxOut))
	}
	tx.TxOut[0].Value -= offset
	if btcutil.Amount(tx.TxOut[0].Value) <= DustLimit {
		return nil, errors.Wrapf(ErrInsufficientEscrow, "value %d", tx.TxOut[0].Value)
	}
	return tx, nil
}

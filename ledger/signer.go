// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// TransactionSigner ledger specific signing of the input spending an escrow coin
type TransactionSigner interface {
	// SignatureHash hash the escrow parties sign for the input spending coin
	SignatureHash(tx *wire.MsgTx, coin *EscrowCoin) ([]byte, error)
	// SignInput signature of key over the input spending coin, hash type appended
	SignInput(tx *wire.MsgTx, key *btcec.PrivateKey, coin *EscrowCoin) ([]byte, error)
	// BuildWitness cashout witness from both parties signatures
	BuildWitness(initiatorSig, receiverSig, redeemScript []byte) wire.TxWitness
	// VerifyInput runs the input spending coin through the script engine
	VerifyInput(tx *wire.MsgTx, coin *EscrowCoin) error
}

// WitnessSigner segwit v0 P2WSH signer, SIGHASH_ALL
type WitnessSigner struct{}

// NewWitnessSigner new
func NewWitnessSigner() *WitnessSigner {
	return &WitnessSigner{}
}

func inputIndex(tx *wire.MsgTx, coin *EscrowCoin) (int, error) {
	for i, in := range tx.TxIn {
		if in.PreviousOutPoint == coin.OutPoint {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrInputNotFound, "outpoint %s", coin.OutPoint)
}

func sigHashes(tx *wire.MsgTx, coin *EscrowCoin) (*txscript.TxSigHashes, txscript.PrevOutputFetcher, error) {
	pkScript, err := coin.PkScript()
	if err != nil {
		return nil, nil, err
	}
	fetcher := txscript.NewCannedPrevOutputFetcher(pkScript, int64(coin.Amount))
	return txscript.NewTxSigHashes(tx, fetcher), fetcher, nil
}

// SignatureHash BIP143 hash of the input spending coin
func (s *WitnessSigner) SignatureHash(tx *wire.MsgTx, coin *EscrowCoin) ([]byte, error) {
	idx, err := inputIndex(tx, coin)
	if err != nil {
		return nil, err
	}
	hashes, _, err := sigHashes(tx, coin)
	if err != nil {
		return nil, err
	}
	return txscript.CalcWitnessSigHash(coin.RedeemScript, hashes, txscript.SigHashAll, tx, idx, int64(coin.Amount))
}

// SignInput DER signature followed by SIGHASH_ALL
func (s *WitnessSigner) SignInput(tx *wire.MsgTx, key *btcec.PrivateKey, coin *EscrowCoin) ([]byte, error) {
	idx, err := inputIndex(tx, coin)
	if err != nil {
		return nil, err
	}
	hashes, _, err := sigHashes(tx, coin)
	if err != nil {
		return nil, err
	}
	sig, err := txscript.RawTxInWitnessSignature(tx, hashes, idx, int64(coin.Amount),
		coin.RedeemScript, txscript.SigHashAll, key)
	if err != nil {
		btcLog.Error("SignInput", "sign btc tx in error", err)
		return nil, ErrGetBtcTxInSig
	}
	return sig, nil
}

// BuildWitness <empty> <initiatorSig> <receiverSig> 1 <redeemScript>
// The empty item is consumed by the CHECKMULTISIG off-by-one, the 1 selects the IF branch.
func (s *WitnessSigner) BuildWitness(initiatorSig, receiverSig, redeemScript []byte) wire.TxWitness {
	return wire.TxWitness{nil, initiatorSig, receiverSig, {1}, redeemScript}
}

// VerifyInput executes the escrow script for the input spending coin
func (s *WitnessSigner) VerifyInput(tx *wire.MsgTx, coin *EscrowCoin) error {
	idx, err := inputIndex(tx, coin)
	if err != nil {
		return err
	}
	pkScript, err := coin.PkScript()
	if err != nil {
		return err
	}
	hashes, fetcher, err := sigHashes(tx, coin)
	if err != nil {
		return err
	}
	vm, err := txscript.NewEngine(pkScript, tx, idx, txscript.StandardVerifyFlags, nil, hashes, int64(coin.Amount), fetcher)
	if err != nil {
		return errors.Wrap(ErrVerifyInput, "new script engine err:"+err.Error())
	}
	if err := vm.Execute(); err != nil {
		return errors.Wrap(ErrVerifyInput, "execute engine err:"+err.Error())
	}
	return nil
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Assembler turns an unsigned cashout and the initiator's signature into a
// fully witnessed transaction. It never returns a transaction that does not verify.
type Assembler struct {
	signer TransactionSigner
}

// NewAssembler new
func NewAssembler(signer TransactionSigner) *Assembler {
	return &Assembler{signer: signer}
}

// Assemble adds the receiver signature, builds the witness and verifies the input.
// initiatorSig is a DER signature without hash type.
func (a *Assembler) Assemble(tx *wire.MsgTx, coin *EscrowCoin, initiatorSig []byte, receiverKey *btcec.PrivateKey) (*wire.MsgTx, error) {
	signed := tx.Copy()
	idx, err := inputIndex(signed, coin)
	if err != nil {
		return nil, err
	}
	receiverSig, err := a.signer.SignInput(signed, receiverKey, coin)
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 0, len(initiatorSig)+1)
	sig = append(sig, initiatorSig...)
	sig = append(sig, byte(txscript.SigHashAll))

	signed.TxIn[idx].Witness = a.signer.BuildWitness(sig, receiverSig, coin.RedeemScript)
	if err := a.signer.VerifyInput(signed, coin); err != nil {
		btcLog.Error("Assemble", "txid", signed.TxHash(), "verify err", err)
		return nil, err
	}
	return signed, nil
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ledger bitcoin side of the puzzle promise: the two party escrow,
// its cashout and refund transactions, signing and verification.
package ledger

import (
	"bytes"
	"crypto/sha256"

	"github.com/33cn/puzzlepromise/common/log"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var btcLog = log.New("module", "ledger")

// EscrowParams parties of the escrow
// IF 2 <Initiator> <Receiver> 2 CHECKMULTISIG ELSE <LockTime> CHECKLOCKTIMEVERIFY DROP <Initiator> CHECKSIG ENDIF
type EscrowParams struct {
	// Initiator funds the escrow and signs the payout promises, refunded after LockTime
	Initiator *btcec.PublicKey
	// Receiver cashes out with both signatures
	Receiver *btcec.PublicKey
	LockTime uint32
}

// NewEscrowScript escrow redeem script
func NewEscrowScript(p *EscrowParams) ([]byte, error) {
	if p == nil || p.Initiator == nil || p.Receiver == nil {
		return nil, ErrInvalidBtcPubKey
	}
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF).
		AddOp(txscript.OP_2).AddData(p.Initiator.SerializeCompressed()).
		AddData(p.Receiver.SerializeCompressed()).AddOp(txscript.OP_2).
		AddOp(txscript.OP_CHECKMULTISIG).
		AddOp(txscript.OP_ELSE).
		AddInt64(int64(p.LockTime)).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).
		AddOp(txscript.OP_DROP).AddData(p.Initiator.SerializeCompressed()).
		AddOp(txscript.OP_CHECKSIG).
		AddOp(txscript.OP_ENDIF)

	script, err := builder.Script()
	if err != nil {
		btcLog.Error("NewEscrowScript", "build script err", err)
		return nil, ErrBuildBtcScript
	}
	return script, nil
}

// ParseEscrowScript extracts the parameters of an escrow redeem script.
// Only the canonical encoding produced by NewEscrowScript is accepted.
func ParseEscrowScript(script []byte) (*EscrowParams, error) {
	var ops []byte
	var pushes [][]byte
	tokenizer := txscript.MakeScriptTokenizer(0, script)
	for tokenizer.Next() {
		ops = append(ops, tokenizer.Opcode())
		if len(tokenizer.Data()) > 0 {
			pushes = append(pushes, tokenizer.Data())
		}
	}
	if err := tokenizer.Err(); err != nil {
		return nil, errors.Wrap(ErrInvalidEscrowScript, err.Error())
	}
	// 13 opcodes, 3 key pushes, the lock time may be a small int opcode or a push
	if len(ops) != 13 || len(pushes) < 3 {
		return nil, errors.Wrapf(ErrInvalidEscrowScript, "ops %d pushes %d", len(ops), len(pushes))
	}
	lockOp := ops[7]
	var lockTime int64
	switch {
	case lockOp == txscript.OP_0:
		lockTime = 0
	case lockOp >= txscript.OP_1 && lockOp <= txscript.OP_16:
		lockTime = int64(lockOp-txscript.OP_1) + 1
	case len(pushes) == 4:
		v, err := decodeScriptNum(pushes[2])
		if err != nil {
			return nil, err
		}
		lockTime = v
		pushes = [][]byte{pushes[0], pushes[1], pushes[3]}
	default:
		return nil, errors.Wrap(ErrInvalidEscrowScript, "lock time")
	}
	if lockTime < 0 || lockTime > 0xffffffff {
		return nil, errors.Wrapf(ErrInvalidEscrowScript, "lock time %d", lockTime)
	}
	initiator, err := btcec.ParsePubKey(pushes[0])
	if err != nil {
		return nil, ErrInvalidBtcPubKey
	}
	receiver, err := btcec.ParsePubKey(pushes[1])
	if err != nil {
		return nil, ErrInvalidBtcPubKey
	}
	p := &EscrowParams{Initiator: initiator, Receiver: receiver, LockTime: uint32(lockTime)}
	canonical, err := NewEscrowScript(p)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, script) || !bytes.Equal(pushes[2], pushes[0]) {
		return nil, errors.Wrap(ErrInvalidEscrowScript, "not canonical")
	}
	return p, nil
}

// decodeScriptNum little endian sign-magnitude, at most 5 bytes for lock times
func decodeScriptNum(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 5 {
		return 0, errors.Wrapf(ErrInvalidEscrowScript, "script num length %d", len(b))
	}
	var v int64
	for i, c := range b {
		v |= int64(c) << uint(8*i)
	}
	if b[len(b)-1]&0x80 != 0 {
		v &^= int64(0x80) << uint(8*(len(b)-1))
		v = -v
	}
	return v, nil
}

// EscrowCoin the escrow output the promise negotiation is about
type EscrowCoin struct {
	OutPoint     wire.OutPoint
	Amount       btcutil.Amount
	RedeemScript []byte
}

// Params parses the redeem script
func (c *EscrowCoin) Params() (*EscrowParams, error) {
	return ParseEscrowScript(c.RedeemScript)
}

// PkScript P2WSH output script: OP_0 <sha256(redeemScript)>
func (c *EscrowCoin) PkScript() ([]byte, error) {
	return WitnessScriptHash(c.RedeemScript)
}

// Address P2WSH address on the given network
func (c *EscrowCoin) Address(params *chaincfg.Params) (btcutil.Address, error) {
	h := sha256.Sum256(c.RedeemScript)
	return btcutil.NewAddressWitnessScriptHash(h[:], params)
}

// WitnessScriptHash P2WSH output script of a redeem script
func WitnessScriptHash(redeemScript []byte) ([]byte, error) {
	h := sha256.Sum256(redeemScript)
	script, err := txscript.NewScriptBuilder().AddOp(txscript.OP_0).AddData(h[:]).Script()
	if err != nil {
		return nil, ErrBuildBtcScript
	}
	return script, nil
}

// PrivKeyFromBytes 获取比特币公私钥
func PrivKeyFromBytes(priv []byte) (*btcec.PrivateKey, error) {
	if len(priv) != btcec.PrivKeyBytesLen {
		return nil, ErrInvalidBtcPrivKey
	}
	key, _ := btcec.PrivKeyFromBytes(priv)
	return key, nil
}

// PubKeyFromBytes parses a serialized public key
func PubKeyFromBytes(pub []byte) (*btcec.PublicKey, error) {
	key, err := btcec.ParsePubKey(pub)
	if err != nil {
		return nil, ErrInvalidBtcPubKey
	}
	return key, nil
}

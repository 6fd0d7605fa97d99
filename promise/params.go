// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package promise cut-and-choose puzzle promise exchange between a requester
// owning an escrow and the signer co-owning it
package promise

import (
	"encoding/binary"

	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/33cn/puzzlepromise/common/log"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/33cn/puzzlepromise/types"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

var plog = log.New("module", "promise")

// Parameters negotiated once, immutable for the lifetime of a session
type Parameters struct {
	SignerKey   *puzzle.RsaPubKey
	RealCount   int
	DecoyCount  int
	DecoyFormat [32]byte
}

// NewParametersFromConfig parameters of the [promise] section with the signer's puzzle key
func NewParametersFromConfig(cfg *types.Promise, signerKey *puzzle.RsaPubKey) (*Parameters, error) {
	if cfg == nil {
		return nil, errors.Wrap(ErrInvalidParameters, "nil promise config")
	}
	c := &types.Config{Promise: cfg}
	format, err := c.DecoyFormat()
	if err != nil {
		return nil, err
	}
	p := &Parameters{
		SignerKey:   signerKey,
		RealCount:   cfg.RealCount,
		DecoyCount:  cfg.DecoyCount,
		DecoyFormat: format,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate N >= 1, M >= 0 and a signer key
func (p *Parameters) Validate() error {
	if p == nil || p.SignerKey == nil {
		return errors.Wrap(ErrInvalidParameters, "signer key missing")
	}
	if p.RealCount < 1 {
		return errors.Wrapf(ErrInvalidParameters, "realCount %d", p.RealCount)
	}
	if p.DecoyCount < 0 {
		return errors.Wrapf(ErrInvalidParameters, "decoyCount %d", p.DecoyCount)
	}
	return nil
}

// Total number of candidates, N+M
func (p *Parameters) Total() int {
	return p.RealCount + p.DecoyCount
}

// DecoyHash DoubleSHA256(decoyFormat || salt)
func (p *Parameters) DecoyHash(salt [32]byte) chainhash.Hash {
	return crypto.Hash256(p.DecoyFormat[:], salt[:])
}

// HashIndexes DoubleSHA256(salt || uint32le(i_0) || uint32le(i_1) ...)
func HashIndexes(salt [32]byte, indexes []int) chainhash.Hash {
	buf := make([]byte, 4*len(indexes))
	for i, idx := range indexes {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(idx))
	}
	return crypto.Hash256(salt[:], buf)
}

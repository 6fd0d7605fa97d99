// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"io"

	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/33cn/puzzlepromise/ledger"
)

type options struct {
	rng    io.Reader
	signer ledger.TransactionSigner
}

// Option session option
type Option func(*options)

// WithRand randomness for salts, shuffling, puzzles and blinding
func WithRand(r io.Reader) Option {
	return func(o *options) {
		o.rng = r
	}
}

// WithTransactionSigner ledger signing capability, segwit P2WSH by default
func WithTransactionSigner(s ledger.TransactionSigner) Option {
	return func(o *options) {
		o.signer = s
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		rng:    crypto.CReader(),
		signer: ledger.NewWitnessSigner(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ledger

import "errors"

// ledger errors
var (
	ErrInvalidBtcPubKey    = errors.New("ErrInvalidBtcPubKey")
	ErrInvalidBtcPrivKey   = errors.New("ErrInvalidBtcPrivKey")
	ErrBuildBtcScript      = errors.New("ErrBuildBtcScript")
	ErrInvalidEscrowScript = errors.New("ErrInvalidEscrowScript")
	ErrInputNotFound       = errors.New("ErrInputNotFound")
	ErrInsufficientEscrow  = errors.New("ErrInsufficientEscrow")
	ErrInvalidDestination  = errors.New("ErrInvalidDestination")
	ErrGetBtcTxInSig       = errors.New("ErrGetBtcTxInSig")
	ErrVerifyInput         = errors.New("ErrVerifyInput")
)

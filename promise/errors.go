// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"errors"
	"fmt"

	"github.com/33cn/puzzlepromise/metrics"
	perr "github.com/pkg/errors"
)

// sequencing errors
var (
	ErrInvalidState = errors.New("ErrInvalidState")
)

// validation errors
var (
	ErrInvalidParameters = errors.New("ErrInvalidParameters")
	ErrEscrowMismatch    = errors.New("ErrEscrowMismatch")
	ErrHashCount         = errors.New("ErrHashCount")
	ErrCommitmentCount   = errors.New("ErrCommitmentCount")
	ErrRevelationCount   = errors.New("ErrRevelationCount")
	ErrProofCount        = errors.New("ErrProofCount")
	ErrInvalidIndexes    = errors.New("ErrInvalidIndexes")
	ErrInvalidMessage    = errors.New("ErrInvalidMessage")
	ErrSolutionRange     = errors.New("ErrSolutionRange")
	ErrSnapshotVersion   = errors.New("ErrSnapshotVersion")
	ErrInvalidSnapshot   = errors.New("ErrInvalidSnapshot")
)

// proof errors, the counterparty cheated
var (
	ErrInvalidDecoySolution    = errors.New("ErrInvalidDecoySolution")
	ErrInvalidDecoySignature   = errors.New("ErrInvalidDecoySignature")
	ErrInvalidQuotient         = errors.New("ErrInvalidQuotient")
	ErrIndexCommitmentMismatch = errors.New("ErrIndexCommitmentMismatch")
	ErrDecoySaltMismatch       = errors.New("ErrDecoySaltMismatch")
	ErrNoUsableTransaction     = errors.New("ErrNoUsableTransaction")
)

// ErrorKind error taxonomy of a session failure
type ErrorKind int

// error kinds
const (
	KindInternal ErrorKind = iota
	KindSequencing
	KindValidation
	KindProof
)

func (k ErrorKind) String() string {
	switch k {
	case KindSequencing:
		return "sequencing"
	case KindValidation:
		return "validation"
	case KindProof:
		return "proof"
	}
	return "internal"
}

var errorKinds = map[error]ErrorKind{
	ErrInvalidState: KindSequencing,

	ErrInvalidParameters: KindValidation,
	ErrEscrowMismatch:    KindValidation,
	ErrHashCount:         KindValidation,
	ErrCommitmentCount:   KindValidation,
	ErrRevelationCount:   KindValidation,
	ErrProofCount:        KindValidation,
	ErrInvalidIndexes:    KindValidation,
	ErrInvalidMessage:    KindValidation,
	ErrSolutionRange:     KindValidation,
	ErrSnapshotVersion:   KindValidation,
	ErrInvalidSnapshot:   KindValidation,

	ErrInvalidDecoySolution:    KindProof,
	ErrInvalidDecoySignature:   KindProof,
	ErrInvalidQuotient:         KindProof,
	ErrIndexCommitmentMismatch: KindProof,
	ErrDecoySaltMismatch:       KindProof,
	ErrNoUsableTransaction:     KindProof,
}

// Classify maps err to its kind, unknown errors are internal
func Classify(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	if kind, ok := errorKinds[perr.Cause(err)]; ok {
		return kind
	}
	return KindInternal
}

// StateError an operation was invoked outside its required state
type StateError struct {
	Op       string
	Actual   fmt.Stringer
	Expected fmt.Stringer
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s in state %s, expected %s", ErrInvalidState, e.Op, e.Actual, e.Expected)
}

// Cause ErrInvalidState
func (e *StateError) Cause() error {
	return ErrInvalidState
}

// Unwrap ErrInvalidState
func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// report logs err by kind and counts it
func report(role, op string, err error) {
	switch Classify(err) {
	case KindSequencing:
		metrics.SequencingErrors.Inc(1)
		plog.Error(op, "role", role, "err", err)
	case KindValidation:
		metrics.ValidationErrors.Inc(1)
		plog.Error(op, "role", role, "err", err)
	case KindProof:
		metrics.ProofErrors.Inc(1)
		plog.Crit(op, "role", role, "cheat", true, "err", err)
	default:
		plog.Error(op, "role", role, "internal err", err)
	}
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

// State of a requester session
type State int

// requester states
const (
	StateWaitingEscrow State = iota
	StateWaitingSignatureRequest
	StateWaitingCommitments
	StateWaitingCommitmentsProof
	StateCompleted
	// StateAborted a counterparty message failed validation or proof, the session is dead
	StateAborted
)

var stateNames = map[State]string{
	StateWaitingEscrow:           "WaitingEscrow",
	StateWaitingSignatureRequest: "WaitingSignatureRequest",
	StateWaitingCommitments:      "WaitingCommitments",
	StateWaitingCommitmentsProof: "WaitingCommitmentsProof",
	StateCompleted:               "Completed",
	StateAborted:                 "Aborted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// SignerState of a signer session
type SignerState int

// signer states
const (
	SignerWaitingHashes SignerState = iota
	SignerWaitingRevelation
	SignerCompleted
	SignerAborted
)

var signerStateNames = map[SignerState]string{
	SignerWaitingHashes:     "WaitingHashes",
	SignerWaitingRevelation: "WaitingRevelation",
	SignerCompleted:         "Completed",
	SignerAborted:           "Aborted",
}

func (s SignerState) String() string {
	if name, ok := signerStateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// requester operations
const (
	OpConfigureEscrow        = "ConfigureEscrow"
	OpCreateSignatureRequest = "CreateSignatureRequest"
	OpReveal                 = "Reveal"
	OpCheckCommitmentsProof  = "CheckCommitmentsProof"
	OpGetSignedTransactions  = "GetSignedTransactions"
)

// signer operations
const (
	OpCommit = "Commit"
	OpProve  = "Prove"
)

type transition struct {
	from State
	to   State
}

// every requester entry point and the only state it may run in.
// GetSignedTransactions does not advance the session.
var requesterTransitions = map[string]transition{
	OpConfigureEscrow:        {StateWaitingEscrow, StateWaitingSignatureRequest},
	OpCreateSignatureRequest: {StateWaitingSignatureRequest, StateWaitingCommitments},
	OpReveal:                 {StateWaitingCommitments, StateWaitingCommitmentsProof},
	OpCheckCommitmentsProof:  {StateWaitingCommitmentsProof, StateCompleted},
	OpGetSignedTransactions:  {StateCompleted, StateCompleted},
}

type signerTransition struct {
	from SignerState
	to   SignerState
}

var signerTransitions = map[string]signerTransition{
	OpCommit: {SignerWaitingHashes, SignerWaitingRevelation},
	OpProve:  {SignerWaitingRevelation, SignerCompleted},
}

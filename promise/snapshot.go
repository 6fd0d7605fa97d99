// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/33cn/puzzlepromise/types"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// SnapshotVersion current session snapshot format
const SnapshotVersion = 1

// snapshot kinds
const (
	KindRequesterSnapshot = roleRequester
	KindSignerSnapshot    = roleSigner
)

type hexBytes []byte

func (b hexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *hexBytes) UnmarshalText(text []byte) error {
	v, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func (b hexBytes) array32() ([32]byte, error) {
	var a [32]byte
	if len(b) != len(a) {
		return a, errors.Wrapf(ErrInvalidSnapshot, "expected 32 bytes got %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

type envelope struct {
	Version   int
	Kind      string
	Requester *requesterSnapshot
	Signer    *signerSnapshot
}

type paramsSnapshot struct {
	SignerKey   *puzzle.RsaPubKey `json:"signerKey"`
	RealCount   int               `json:"realCount"`
	DecoyCount  int               `json:"decoyCount"`
	DecoyFormat hexBytes          `json:"decoyFormat"`
}

type escrowSnapshot struct {
	Hash         hexBytes `json:"hash"`
	Index        uint32   `json:"index"`
	Amount       int64    `json:"amount"`
	RedeemScript hexBytes `json:"redeemScript"`
}

type candidateSnapshot struct {
	Kind       CandidateKind `json:"kind"`
	Index      int           `json:"index"`
	FeeOffset  int64         `json:"feeOffset,omitempty"`
	Salt       hexBytes      `json:"salt,omitempty"`
	Hash       hexBytes      `json:"hash"`
	Commitment *Commitment   `json:"commitment,omitempty"`
}

type requesterSnapshot struct {
	State       State               `json:"state"`
	Params      *paramsSnapshot     `json:"params"`
	Escrow      *escrowSnapshot     `json:"escrow,omitempty"`
	OwnerKey    hexBytes            `json:"ownerKey,omitempty"`
	Cashout     hexBytes            `json:"cashout,omitempty"`
	Candidates  []candidateSnapshot `json:"candidates,omitempty"`
	IndexSalt   hexBytes            `json:"indexSalt,omitempty"`
	Quotients   []*puzzle.Quotient  `json:"quotients,omitempty"`
	BlindFactor *puzzle.BlindFactor `json:"blindFactor,omitempty"`
}

type signerSnapshot struct {
	State                  SignerState              `json:"state"`
	Params                 *paramsSnapshot          `json:"params"`
	EscrowKey              hexBytes                 `json:"escrowKey"`
	Hashes                 []hexBytes               `json:"hashes,omitempty"`
	DecoyIndexesCommitment hexBytes                 `json:"decoyIndexesCommitment,omitempty"`
	Solutions              []*puzzle.PuzzleSolution `json:"solutions,omitempty"`
}

// SnapshotInfo header of a snapshot, Body is the json encoded session
type SnapshotInfo struct {
	Version int
	Kind    string
	State   string
	Body    []byte
}

// ParseSnapshotInfo reads the protobuf header of a requester or signer snapshot
func ParseSnapshotInfo(data []byte) (*SnapshotInfo, error) {
	header, err := decodeHeader(data, "")
	if err != nil {
		return nil, err
	}
	return &SnapshotInfo{
		Version: int(header.Version),
		Kind:    header.Kind,
		State:   header.State,
		Body:    header.Body,
	}, nil
}

func encodeEnvelope(kind string, state fmt.Stringer, body interface{}) ([]byte, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return types.Encode(&types.SnapshotEnvelope{
		Version: SnapshotVersion,
		Kind:    kind,
		State:   state.String(),
		Body:    data,
	}), nil
}

func decodeHeader(data []byte, kind string) (*types.SnapshotEnvelope, error) {
	var header types.SnapshotEnvelope
	if err := types.Decode(data, &header); err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "decode: %v", err)
	}
	if header.Version != SnapshotVersion {
		return nil, errors.Wrapf(ErrSnapshotVersion, "version %d", header.Version)
	}
	if header.Kind != KindRequesterSnapshot && header.Kind != KindSignerSnapshot {
		return nil, errors.Wrapf(ErrSnapshotVersion, "kind %q", header.Kind)
	}
	if kind != "" && header.Kind != kind {
		return nil, errors.Wrapf(ErrSnapshotVersion, "kind %q expected %q", header.Kind, kind)
	}
	return &header, nil
}

func decodeEnvelope(data []byte, kind string) (*envelope, error) {
	header, err := decodeHeader(data, kind)
	if err != nil {
		return nil, err
	}
	env := &envelope{Version: int(header.Version), Kind: header.Kind}
	var body interface{} = &env.Requester
	if header.Kind == KindSignerSnapshot {
		body = &env.Signer
	}
	if err := json.Unmarshal(header.Body, body); err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "decode %s body: %v", header.Kind, err)
	}
	if env.Requester == nil && env.Signer == nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "missing %s", header.Kind)
	}
	return env, nil
}

func snapshotParams(p *Parameters) *paramsSnapshot {
	return &paramsSnapshot{
		SignerKey:   p.SignerKey,
		RealCount:   p.RealCount,
		DecoyCount:  p.DecoyCount,
		DecoyFormat: p.DecoyFormat[:],
	}
}

func (ps *paramsSnapshot) restore() (*Parameters, error) {
	if ps == nil {
		return nil, errors.Wrap(ErrInvalidSnapshot, "missing params")
	}
	format, err := ps.DecoyFormat.array32()
	if err != nil {
		return nil, err
	}
	p := &Parameters{
		SignerKey:   ps.SignerKey,
		RealCount:   ps.RealCount,
		DecoyCount:  ps.DecoyCount,
		DecoyFormat: format,
	}
	return p, p.Validate()
}

// Snapshot serializes the whole session. An aborted session keeps no secrets.
func (s *RequesterSession) Snapshot() ([]byte, error) {
	rs := &requesterSnapshot{
		State:  s.state,
		Params: snapshotParams(s.params),
	}
	if s.state == StateAborted {
		return encodeEnvelope(KindRequesterSnapshot, s.state, rs)
	}
	rs.Quotients = s.quotients
	rs.BlindFactor = s.blindFactor
	if s.escrow != nil {
		rs.Escrow = &escrowSnapshot{
			Hash:         s.escrow.OutPoint.Hash[:],
			Index:        s.escrow.OutPoint.Index,
			Amount:       int64(s.escrow.Amount),
			RedeemScript: s.escrow.RedeemScript,
		}
	}
	if s.ownerKey != nil {
		rs.OwnerKey = s.ownerKey.Serialize()
	}
	if s.cashout != nil {
		var buf bytes.Buffer
		if err := s.cashout.Serialize(&buf); err != nil {
			return nil, err
		}
		rs.Cashout = buf.Bytes()
	}
	if s.candidates != nil {
		rs.IndexSalt = s.indexSalt[:]
	}
	for _, c := range s.candidates {
		cs := candidateSnapshot{
			Kind:       c.Kind,
			Index:      c.Index,
			FeeOffset:  c.FeeOffset,
			Hash:       c.Hash[:],
			Commitment: c.Commitment,
		}
		if c.Kind == CandidateDecoy {
			cs.Salt = c.Salt[:]
		}
		rs.Candidates = append(rs.Candidates, cs)
	}
	return encodeEnvelope(KindRequesterSnapshot, s.state, rs)
}

// RestoreRequesterSession resumes a session from Snapshot output
func RestoreRequesterSession(data []byte, opts ...Option) (*RequesterSession, error) {
	env, err := decodeEnvelope(data, KindRequesterSnapshot)
	if err != nil {
		return nil, err
	}
	rs := env.Requester
	params, err := rs.Params.restore()
	if err != nil {
		return nil, err
	}
	s, err := NewRequesterSession(params, opts...)
	if err != nil {
		return nil, err
	}
	if _, ok := stateNames[rs.State]; !ok {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "state %d", rs.State)
	}
	s.state = rs.State
	if s.state == StateAborted {
		return s, nil
	}
	if s.state >= StateWaitingSignatureRequest {
		if err := s.restoreEscrow(rs); err != nil {
			return nil, err
		}
	}
	if s.state >= StateWaitingCommitments {
		if err := s.restoreCandidates(rs); err != nil {
			return nil, err
		}
	}
	if s.state == StateCompleted {
		if rs.BlindFactor == nil || len(rs.Quotients) != len(s.candidates)-1 {
			return nil, errors.Wrap(ErrInvalidSnapshot, "missing blind factor or quotients")
		}
		for _, q := range rs.Quotients {
			if q == nil {
				return nil, errors.Wrap(ErrInvalidSnapshot, "nil quotient")
			}
		}
		s.quotients = rs.Quotients
		s.blindFactor = rs.BlindFactor
	}
	return s, nil
}

func (s *RequesterSession) restoreEscrow(rs *requesterSnapshot) error {
	if rs.Escrow == nil || len(rs.OwnerKey) == 0 {
		return errors.Wrap(ErrInvalidSnapshot, "missing escrow")
	}
	hash, err := chainhash.NewHash(rs.Escrow.Hash)
	if err != nil {
		return errors.Wrapf(ErrInvalidSnapshot, "escrow outpoint: %v", err)
	}
	coin := &ledger.EscrowCoin{
		OutPoint:     *wire.NewOutPoint(hash, rs.Escrow.Index),
		Amount:       btcutil.Amount(rs.Escrow.Amount),
		RedeemScript: rs.Escrow.RedeemScript,
	}
	ownerKey, err := ledger.PrivKeyFromBytes(rs.OwnerKey)
	if err != nil {
		return errors.Wrapf(ErrInvalidSnapshot, "owner key: %v", err)
	}
	p, err := coin.Params()
	if err != nil {
		return errors.Wrapf(ErrInvalidSnapshot, "escrow: %v", err)
	}
	if !p.Receiver.IsEqual(ownerKey.PubKey()) {
		return errors.Wrap(ErrInvalidSnapshot, "owner key is not the escrow receiver")
	}
	s.escrow = coin
	s.ownerKey = ownerKey
	s.counterpartyKey = p.Initiator
	return nil
}

func (s *RequesterSession) restoreCandidates(rs *requesterSnapshot) error {
	if len(rs.Cashout) == 0 {
		return errors.Wrap(ErrInvalidSnapshot, "missing cashout")
	}
	cashout := new(wire.MsgTx)
	if err := cashout.Deserialize(bytes.NewReader(rs.Cashout)); err != nil {
		return errors.Wrapf(ErrInvalidSnapshot, "cashout: %v", err)
	}
	salt, err := rs.IndexSalt.array32()
	if err != nil {
		return err
	}
	candidates := make(CandidateSet, len(rs.Candidates))
	for i, cs := range rs.Candidates {
		hash, err := chainhash.NewHash(cs.Hash)
		if err != nil {
			return errors.Wrapf(ErrInvalidSnapshot, "candidate %d hash: %v", i, err)
		}
		c := &Candidate{Kind: cs.Kind, Index: cs.Index, FeeOffset: cs.FeeOffset, Hash: *hash, Commitment: cs.Commitment}
		switch cs.Kind {
		case CandidateReal:
		case CandidateDecoy:
			if c.Salt, err = cs.Salt.array32(); err != nil {
				return err
			}
		default:
			return errors.Wrapf(ErrInvalidSnapshot, "candidate %d kind %d", i, cs.Kind)
		}
		if s.state >= StateWaitingCommitmentsProof && (c.Commitment == nil || c.Commitment.Puzzle == nil) {
			return errors.Wrapf(ErrInvalidSnapshot, "candidate %d has no commitment", i)
		}
		candidates[i] = c
	}
	reals, decoys := candidates.Counts()
	switch {
	case s.state == StateCompleted && (reals != s.params.RealCount || decoys != 0):
		return errors.Wrapf(ErrInvalidSnapshot, "completed with %d real %d decoy", reals, decoys)
	case s.state < StateCompleted && (reals != s.params.RealCount || decoys != s.params.DecoyCount):
		return errors.Wrapf(ErrInvalidSnapshot, "%d real %d decoy", reals, decoys)
	}
	s.cashout = cashout
	s.candidates = candidates
	s.indexSalt = salt
	return nil
}

// Snapshot serializes the whole session, including the unrevealed solutions
func (s *SignerSession) Snapshot() ([]byte, error) {
	ss := &signerSnapshot{
		State:     s.state,
		Params:    snapshotParams(s.params),
		EscrowKey: s.escrowKey.Serialize(),
		Solutions: s.solutions,
	}
	if s.state == SignerAborted {
		ss.Solutions = nil
		return encodeEnvelope(KindSignerSnapshot, s.state, ss)
	}
	if s.hashes != nil {
		for i := range s.hashes {
			ss.Hashes = append(ss.Hashes, s.hashes[i][:])
		}
		ss.DecoyIndexesCommitment = s.decoyIndexesCommitment[:]
	}
	return encodeEnvelope(KindSignerSnapshot, s.state, ss)
}

// RestoreSignerSession resumes a session from Snapshot output
func RestoreSignerSession(data []byte, opts ...Option) (*SignerSession, error) {
	env, err := decodeEnvelope(data, KindSignerSnapshot)
	if err != nil {
		return nil, err
	}
	ss := env.Signer
	params, err := ss.Params.restore()
	if err != nil {
		return nil, err
	}
	escrowKey, err := ledger.PrivKeyFromBytes(ss.EscrowKey)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "escrow key: %v", err)
	}
	s, err := NewSignerSession(params, escrowKey, opts...)
	if err != nil {
		return nil, err
	}
	if _, ok := signerStateNames[ss.State]; !ok {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "state %d", ss.State)
	}
	s.state = ss.State
	if s.state == SignerWaitingHashes || s.state == SignerAborted {
		return s, nil
	}
	if len(ss.Hashes) != params.Total() {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "%d hashes", len(ss.Hashes))
	}
	for i, h := range ss.Hashes {
		hash, err := chainhash.NewHash(h)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidSnapshot, "hash %d: %v", i, err)
		}
		s.hashes = append(s.hashes, *hash)
	}
	commitment, err := chainhash.NewHash(ss.DecoyIndexesCommitment)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSnapshot, "decoy indexes commitment: %v", err)
	}
	s.decoyIndexesCommitment = *commitment
	if s.state == SignerWaitingRevelation {
		if len(ss.Solutions) != params.Total() {
			return nil, errors.Wrapf(ErrInvalidSnapshot, "%d solutions", len(ss.Solutions))
		}
		for i, sol := range ss.Solutions {
			if sol == nil {
				return nil, errors.Wrapf(ErrInvalidSnapshot, "solution %d", i)
			}
		}
		s.solutions = ss.Solutions
	}
	return s, nil
}

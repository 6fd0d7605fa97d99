// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"github.com/33cn/puzzlepromise/common/crypto"
	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/metrics"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

const (
	roleRequester = "requester"
	roleSigner    = "signer"
)

// RequesterSession the escrow owner's side of the exchange. Operations must
// be called in order, each one exactly once. Not safe for concurrent use.
type RequesterSession struct {
	params    *Parameters
	opts      *options
	assembler *ledger.Assembler

	state           State
	escrow          *ledger.EscrowCoin
	ownerKey        *btcec.PrivateKey
	counterpartyKey *btcec.PublicKey
	cashout         *wire.MsgTx
	// shuffled candidates, only the reals once the proof is checked
	candidates  CandidateSet
	indexSalt   [32]byte
	quotients   []*puzzle.Quotient
	blindFactor *puzzle.BlindFactor
}

// NewRequesterSession new session waiting for its escrow
func NewRequesterSession(params *Parameters, opts ...Option) (*RequesterSession, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &RequesterSession{
		params:    params,
		opts:      o,
		assembler: ledger.NewAssembler(o.signer),
		state:     StateWaitingEscrow,
	}, nil
}

// State current state
func (s *RequesterSession) State() State {
	return s.state
}

// Parameters session parameters
func (s *RequesterSession) Parameters() *Parameters {
	return s.params
}

// Escrow the configured escrow coin, nil before ConfigureEscrow
func (s *RequesterSession) Escrow() *ledger.EscrowCoin {
	return s.escrow
}

// Cashout copy of the unsigned cashout template, nil before CreateSignatureRequest
func (s *RequesterSession) Cashout() *wire.MsgTx {
	if s.cashout == nil {
		return nil
	}
	return s.cashout.Copy()
}

// Candidates the candidate list in position order
func (s *RequesterSession) Candidates() CandidateSet {
	return s.candidates
}

func (s *RequesterSession) enter(op string) (transition, error) {
	t := requesterTransitions[op]
	if s.state != t.from {
		err := &StateError{Op: op, Actual: s.state, Expected: t.from}
		report(roleRequester, op, err)
		return t, err
	}
	return t, nil
}

// fail reports a local error, the session stays where it is
func (s *RequesterSession) fail(op string, err error) error {
	report(roleRequester, op, err)
	return err
}

// abort reports a counterparty error and kills the session
func (s *RequesterSession) abort(op string, err error) error {
	s.state = StateAborted
	report(roleRequester, op, err)
	return err
}

// ConfigureEscrow binds the session to coin. ownerKey must be the receiver key
// of the escrow script, the initiator key is the signer's.
func (s *RequesterSession) ConfigureEscrow(coin *ledger.EscrowCoin, ownerKey *btcec.PrivateKey) error {
	t, err := s.enter(OpConfigureEscrow)
	if err != nil {
		return err
	}
	if coin == nil || ownerKey == nil {
		return s.fail(OpConfigureEscrow, errors.Wrap(ErrEscrowMismatch, "nil escrow or owner key"))
	}
	p, err := coin.Params()
	if err != nil {
		return s.fail(OpConfigureEscrow, errors.Wrapf(ErrEscrowMismatch, "redeem script: %v", err))
	}
	if !p.Receiver.IsEqual(ownerKey.PubKey()) {
		return s.fail(OpConfigureEscrow, errors.Wrap(ErrEscrowMismatch, "owner key is not the escrow receiver"))
	}
	s.escrow = &ledger.EscrowCoin{
		OutPoint:     coin.OutPoint,
		Amount:       coin.Amount,
		RedeemScript: append([]byte(nil), coin.RedeemScript...),
	}
	s.ownerKey = ownerKey
	s.counterpartyKey = p.Initiator
	s.state = t.to
	plog.Info(OpConfigureEscrow, "outpoint", coin.OutPoint, "amount", coin.Amount, "lockTime", p.LockTime)
	return nil
}

func (s *RequesterSession) realHash(cashout *wire.MsgTx) RealHashFunc {
	return func(feeOffset int64) (chainhash.Hash, error) {
		tx, err := ledger.CashoutVariant(cashout, feeOffset)
		if err != nil {
			return chainhash.Hash{}, err
		}
		h, err := s.opts.signer.SignatureHash(tx, s.escrow)
		if err != nil {
			return chainhash.Hash{}, err
		}
		hash, err := chainhash.NewHash(h)
		if err != nil {
			return chainhash.Hash{}, err
		}
		return *hash, nil
	}
}

// CreateSignatureRequest builds the cashout paying destination, the shuffled
// candidates and the commitment to the decoy positions.
func (s *RequesterSession) CreateSignatureRequest(destination []byte, feeRate btcutil.Amount) (*SignatureRequest, error) {
	t, err := s.enter(OpCreateSignatureRequest)
	if err != nil {
		return nil, err
	}
	cashout, err := ledger.NewCashout(s.escrow, destination, feeRate)
	if err != nil {
		return nil, s.fail(OpCreateSignatureRequest, err)
	}
	// the real candidate with the largest fee offset must stay above dust
	if _, err := ledger.CashoutVariant(cashout, int64(s.params.RealCount-1)); err != nil {
		return nil, s.fail(OpCreateSignatureRequest, err)
	}
	candidates, err := NewCandidateSet(s.params, s.opts.rng, s.realHash(cashout))
	if err != nil {
		return nil, s.fail(OpCreateSignatureRequest, err)
	}
	reals, decoys := candidates.Counts()
	if reals != s.params.RealCount || decoys != s.params.DecoyCount {
		return nil, s.fail(OpCreateSignatureRequest, errors.Wrapf(ErrInvalidParameters, "built %d real %d decoy", reals, decoys))
	}
	indexSalt, err := crypto.RandHash32(s.opts.rng)
	if err != nil {
		return nil, s.fail(OpCreateSignatureRequest, errors.Wrap(err, "index salt"))
	}
	req := &SignatureRequest{
		Hashes:                 candidates.Hashes(),
		DecoyIndexesCommitment: HashIndexes(indexSalt, candidates.DecoyIndexes()),
	}
	s.cashout = cashout
	s.candidates = candidates
	s.indexSalt = indexSalt
	s.state = t.to
	plog.Info(OpCreateSignatureRequest, "hashes", len(req.Hashes), "cashout", cashout.TxHash(), "value", cashout.TxOut[0].Value)
	return req, nil
}

// Reveal attaches one commitment per candidate and opens the decoys
func (s *RequesterSession) Reveal(commitments []*Commitment) (*Revelation, error) {
	t, err := s.enter(OpReveal)
	if err != nil {
		return nil, err
	}
	if len(commitments) != len(s.candidates) {
		return nil, s.abort(OpReveal, errors.Wrapf(ErrCommitmentCount, "got %d expected %d", len(commitments), len(s.candidates)))
	}
	key := s.params.SignerKey
	for i, c := range commitments {
		if c == nil || c.Puzzle == nil || len(c.Promise) == 0 {
			return nil, s.abort(OpReveal, errors.Wrapf(ErrInvalidMessage, "commitment %d incomplete", i))
		}
		if !key.InRange(c.Puzzle.Int()) {
			return nil, s.abort(OpReveal, errors.Wrapf(ErrInvalidMessage, "commitment %d puzzle out of range", i))
		}
	}
	for i, c := range commitments {
		s.candidates[i].Commitment = &Commitment{
			Puzzle:  c.Puzzle,
			Promise: append([]byte(nil), c.Promise...),
		}
	}
	decoys := s.candidates.Decoys()
	rev := &Revelation{
		DecoyIndexes: s.candidates.DecoyIndexes(),
		IndexSalt:    s.indexSalt,
		DecoySalts:   make([][32]byte, len(decoys)),
	}
	for i, c := range decoys {
		rev.DecoySalts[i] = c.Salt
	}
	s.state = t.to
	plog.Info(OpReveal, "commitments", len(commitments), "decoys", len(decoys))
	return rev, nil
}

// CheckCommitmentsProof verifies every decoy and every quotient, drops the
// decoys and returns the first real puzzle blinded for the oracle.
func (s *RequesterSession) CheckCommitmentsProof(proof *CommitmentsProof) (*puzzle.Puzzle, error) {
	t, err := s.enter(OpCheckCommitmentsProof)
	if err != nil {
		return nil, err
	}
	if proof == nil {
		return nil, s.abort(OpCheckCommitmentsProof, errors.Wrap(ErrInvalidMessage, "nil proof"))
	}
	decoys, reals := s.candidates.Decoys(), s.candidates.Reals()
	if len(proof.DecoySolutions) != len(decoys) || len(proof.Quotients) != len(reals)-1 {
		return nil, s.abort(OpCheckCommitmentsProof, errors.Wrapf(ErrProofCount, "decoy solutions %d expected %d, quotients %d expected %d",
			len(proof.DecoySolutions), len(decoys), len(proof.Quotients), len(reals)-1))
	}
	key := s.params.SignerKey
	if err := checkDecoys(key, s.counterpartyKey, decoys, proof.DecoySolutions); err != nil {
		return nil, s.abort(OpCheckCommitmentsProof, err)
	}
	if err := checkQuotients(key, reals, proof.Quotients); err != nil {
		return nil, s.abort(OpCheckCommitmentsProof, err)
	}
	blinded, factor, err := key.Blind(s.opts.rng, reals[0].Commitment.Puzzle)
	if err != nil {
		return nil, s.fail(OpCheckCommitmentsProof, err)
	}
	s.candidates = reals
	s.quotients = append([]*puzzle.Quotient(nil), proof.Quotients...)
	s.blindFactor = factor
	s.state = t.to
	metrics.SessionsCompleted.Inc(1)
	plog.Info(OpCheckCommitmentsProof, "decoys", len(decoys), "reals", len(reals))
	return blinded, nil
}

// GetSignedTransactions unblinds the oracle's solution, fans it out over the
// real candidates and returns the lazy sequence of signed cashouts.
func (s *RequesterSession) GetSignedTransactions(solution *puzzle.PuzzleSolution) (*SignedTxIterator, error) {
	if _, err := s.enter(OpGetSignedTransactions); err != nil {
		return nil, err
	}
	key := s.params.SignerKey
	if solution == nil || !key.InRange(solution.Int()) {
		return nil, s.fail(OpGetSignedTransactions, errors.Wrap(ErrSolutionRange, "blinded solution"))
	}
	first, err := key.Unblind(solution, s.blindFactor)
	if err != nil {
		return nil, s.fail(OpGetSignedTransactions, errors.Wrapf(ErrSolutionRange, "unblind: %v", err))
	}
	return &SignedTxIterator{
		key:             key,
		counterpartyKey: s.counterpartyKey,
		ownerKey:        s.ownerKey,
		escrow:          s.escrow,
		cashout:         s.cashout,
		assembler:       s.assembler,
		reals:           s.candidates,
		solutions:       deriveSolutions(key, first, s.quotients),
	}, nil
}

// FirstSignedTransaction first transaction of GetSignedTransactions
func (s *RequesterSession) FirstSignedTransaction(solution *puzzle.PuzzleSolution) (*wire.MsgTx, error) {
	it, err := s.GetSignedTransactions(solution)
	if err != nil {
		return nil, err
	}
	if it.Next() {
		return it.Tx(), nil
	}
	return nil, it.Err()
}

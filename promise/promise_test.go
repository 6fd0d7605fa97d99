// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"crypto/rand"
	"math/big"
	"sync"
	"testing"

	"github.com/33cn/puzzlepromise/ledger"
	"github.com/33cn/puzzlepromise/metrics"
	"github.com/33cn/puzzlepromise/puzzle"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testFeeRate = btcutil.Amount(1000)

var (
	testKeyOnce sync.Once
	testKey     *puzzle.RsaKey
)

func getTestKey(t *testing.T) *puzzle.RsaKey {
	testKeyOnce.Do(func() {
		var err error
		testKey, err = puzzle.GenerateKey(rand.Reader, puzzle.MinKeyBits)
		require.Nil(t, err)
	})
	return testKey
}

type testEnv struct {
	key       *puzzle.RsaKey
	params    *Parameters
	signerKey *btcec.PrivateKey
	ownerKey  *btcec.PrivateKey
	coin      *ledger.EscrowCoin
	dest      []byte
}

func newTestEnv(t *testing.T, n, m int) *testEnv {
	key := getTestKey(t)
	signerKey, err := btcec.NewPrivateKey()
	require.Nil(t, err)
	ownerKey, err := btcec.NewPrivateKey()
	require.Nil(t, err)
	script, err := ledger.NewEscrowScript(&ledger.EscrowParams{
		Initiator: signerKey.PubKey(),
		Receiver:  ownerKey.PubKey(),
		LockTime:  500,
	})
	require.Nil(t, err)

	var funding [32]byte
	_, err = rand.Read(funding[:])
	require.Nil(t, err)

	return &testEnv{
		key: key,
		params: &Parameters{
			SignerKey:   key.PubKey(),
			RealCount:   n,
			DecoyCount:  m,
			DecoyFormat: [32]byte{1},
		},
		signerKey: signerKey,
		ownerKey:  ownerKey,
		coin: &ledger.EscrowCoin{
			OutPoint:     wire.OutPoint{Hash: chainhash.Hash(funding), Index: 0},
			Amount:       btcutil.Amount(100000000),
			RedeemScript: script,
		},
		dest: newDestination(t),
	}
}

func newDestination(t *testing.T) []byte {
	k, err := btcec.NewPrivateKey()
	require.Nil(t, err)
	addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(k.PubKey().SerializeCompressed()), &chaincfg.RegressionNetParams)
	require.Nil(t, err)
	dest, err := txscript.PayToAddrScript(addr)
	require.Nil(t, err)
	return dest
}

type exchange struct {
	t           *testing.T
	env         *testEnv
	requester   *RequesterSession
	signer      *SignerSession
	req         *SignatureRequest
	commitments []*Commitment
	rev         *Revelation
	proof       *CommitmentsProof
	blinded     *puzzle.Puzzle
}

func newExchange(t *testing.T, env *testEnv) *exchange {
	requester, err := NewRequesterSession(env.params)
	require.Nil(t, err)
	signer, err := NewSignerSession(env.params, env.signerKey)
	require.Nil(t, err)
	return &exchange{t: t, env: env, requester: requester, signer: signer}
}

func (e *exchange) configure() *exchange {
	require.Nil(e.t, e.requester.ConfigureEscrow(e.env.coin, e.env.ownerKey))
	return e
}

func (e *exchange) request() *exchange {
	var err error
	e.req, err = e.requester.CreateSignatureRequest(e.env.dest, testFeeRate)
	require.Nil(e.t, err)
	return e
}

func (e *exchange) commit() *exchange {
	var err error
	e.commitments, err = e.signer.Commit(e.req)
	require.Nil(e.t, err)
	return e
}

func (e *exchange) reveal() *exchange {
	var err error
	e.rev, err = e.requester.Reveal(e.commitments)
	require.Nil(e.t, err)
	return e
}

func (e *exchange) prove() *exchange {
	var err error
	e.proof, err = e.signer.Prove(e.rev)
	require.Nil(e.t, err)
	return e
}

func (e *exchange) check() *exchange {
	var err error
	e.blinded, err = e.requester.CheckCommitmentsProof(e.proof)
	require.Nil(e.t, err)
	return e
}

func (e *exchange) toProof() *exchange {
	return e.configure().request().commit().reveal().prove()
}

func (e *exchange) signedTransactions(oracle Oracle) []*wire.MsgTx {
	sol, err := oracle.SolveBlinded(e.blinded)
	require.Nil(e.t, err)
	it, err := e.requester.GetSignedTransactions(sol)
	require.Nil(e.t, err)
	var txs []*wire.MsgTx
	for it.Next() {
		txs = append(txs, it.Tx())
	}
	require.Nil(e.t, it.Err())
	return txs
}

func hashSet(cs []*Candidate) map[chainhash.Hash]bool {
	set := make(map[chainhash.Hash]bool)
	for _, c := range cs {
		set[c.Hash] = true
	}
	return set
}

func TestHonestRun(t *testing.T) {
	cases := []struct{ n, m int }{{1, 0}, {1, 1}, {2, 3}, {3, 0}, {4, 6}}
	for _, c := range cases {
		env := newTestEnv(t, c.n, c.m)
		e := newExchange(t, env).toProof()
		reals := hashSet(e.requester.Candidates().Reals())
		decoys := hashSet(e.requester.Candidates().Decoys())
		e.check()
		assert.Equal(t, StateCompleted, e.requester.State())
		assert.Equal(t, SignerCompleted, e.signer.State())
		assert.Len(t, e.requester.Candidates(), c.n)

		txs := e.signedTransactions(NewLocalOracle(env.key))
		require.Len(t, txs, c.n, "n=%d m=%d", c.n, c.m)
		signer := ledger.NewWitnessSigner()
		for _, tx := range txs {
			require.Nil(t, signer.VerifyInput(tx, env.coin))
			h, err := signer.SignatureHash(tx, env.coin)
			require.Nil(t, err)
			hash, err := chainhash.NewHash(h)
			require.Nil(t, err)
			assert.True(t, reals[*hash])
			assert.False(t, decoys[*hash])
		}
	}
}

func TestScenarioFiveRealFifteenDecoys(t *testing.T) {
	env := newTestEnv(t, 5, 15)
	e := newExchange(t, env).configure().request()
	require.Len(t, e.req.Hashes, 20)
	e.commit().reveal().prove().check()

	txs := e.signedTransactions(NewLocalOracle(env.key))
	require.Len(t, txs, 5)
	values := make(map[int64]bool)
	lo, hi := txs[0].TxOut[0].Value, txs[0].TxOut[0].Value
	for _, tx := range txs {
		require.Len(t, tx.TxIn, 1)
		require.Len(t, tx.TxOut, 1)
		assert.Equal(t, env.coin.OutPoint, tx.TxIn[0].PreviousOutPoint)
		assert.Equal(t, env.dest, tx.TxOut[0].PkScript)
		v := tx.TxOut[0].Value
		values[v] = true
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	assert.Len(t, values, 5)
	assert.True(t, hi-lo <= 4)
	assert.Equal(t, e.requester.Cashout().TxOut[0].Value, hi)
}

func TestFirstSignedTransaction(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	e := newExchange(t, env).toProof().check()
	sol, err := NewLocalOracle(env.key).SolveBlinded(e.blinded)
	require.Nil(t, err)
	tx, err := e.requester.FirstSignedTransaction(sol)
	require.Nil(t, err)
	assert.Nil(t, ledger.NewWitnessSigner().VerifyInput(tx, env.coin))
}

func TestFanOut(t *testing.T) {
	env := newTestEnv(t, 6, 2)
	e := newExchange(t, env).toProof().check()
	pub := env.params.SignerKey

	blindSol, err := env.key.Solve(e.blinded)
	require.Nil(t, err)
	first, err := pub.Unblind(blindSol, e.requester.blindFactor)
	require.Nil(t, err)

	reals := e.requester.Candidates()
	solutions := deriveSolutions(pub, first, e.requester.quotients)
	require.Len(t, solutions, len(reals))
	for j, c := range reals {
		assert.True(t, pub.Verify(c.Commitment.Puzzle, solutions[j]), "real %d", j)
	}
}

func flipBit(s *puzzle.PuzzleSolution) *puzzle.PuzzleSolution {
	v := s.Int()
	v.SetBit(v, 1, v.Bit(1)^1)
	return puzzle.NewPuzzleSolution(v)
}

func TestTamperDecoySolution(t *testing.T) {
	env := newTestEnv(t, 3, 5)
	for i := 0; i < env.params.DecoyCount; i++ {
		e := newExchange(t, env).toProof()
		e.proof.DecoySolutions[i] = flipBit(e.proof.DecoySolutions[i])
		_, err := e.requester.CheckCommitmentsProof(e.proof)
		require.NotNil(t, err)
		assert.Equal(t, ErrInvalidDecoySolution, errors.Cause(err))
		assert.Equal(t, KindProof, Classify(err))
		assert.Equal(t, StateAborted, e.requester.State())
	}
}

func TestTamperQuotient(t *testing.T) {
	env := newTestEnv(t, 4, 2)
	for j := 0; j < env.params.RealCount-1; j++ {
		e := newExchange(t, env).toProof()
		q := e.proof.Quotients[j].Int()
		e.proof.Quotients[j] = puzzle.NewQuotient(q.Add(q, big.NewInt(1)))
		before := metrics.ProofErrors.Count()
		_, err := e.requester.CheckCommitmentsProof(e.proof)
		require.NotNil(t, err)
		assert.Equal(t, ErrInvalidQuotient, errors.Cause(err))
		assert.Equal(t, before+1, metrics.ProofErrors.Count())
	}
}

func TestTamperDecoyPromise(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	e := newExchange(t, env).configure().request().commit()
	decoy := e.requester.Candidates().Decoys()[1]
	e.commitments[decoy.Index].Promise[4] ^= 0x01
	e.reveal().prove()
	_, err := e.requester.CheckCommitmentsProof(e.proof)
	assert.Equal(t, ErrInvalidDecoySignature, errors.Cause(err))
	assert.Equal(t, KindProof, Classify(err))
}

func TestDecoySolutionOutOfRange(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	e := newExchange(t, env).toProof()
	e.proof.DecoySolutions[0] = puzzle.NewPuzzleSolution(env.params.SignerKey.Modulus())
	_, err := e.requester.CheckCommitmentsProof(e.proof)
	assert.Equal(t, ErrSolutionRange, errors.Cause(err))
	assert.Equal(t, KindValidation, Classify(err))
}

func TestSkipDegenerateCandidate(t *testing.T) {
	env := newTestEnv(t, 4, 4)
	e := newExchange(t, env).configure().request().commit()
	cand := e.requester.Candidates().Reals()[2]
	e.commitments[cand.Index].Promise[4] ^= 0x01
	e.reveal().prove().check()

	before := metrics.CandidatesSkipped.Count()
	txs := e.signedTransactions(NewLocalOracle(env.key))
	assert.Len(t, txs, 3)
	assert.Equal(t, before+1, metrics.CandidatesSkipped.Count())
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) SolveBlinded(blinded *puzzle.Puzzle) (*puzzle.PuzzleSolution, error) {
	args := m.Called(blinded)
	sol, _ := args.Get(0).(*puzzle.PuzzleSolution)
	return sol, args.Error(1)
}

func TestNoUsableTransaction(t *testing.T) {
	env := newTestEnv(t, 3, 3)
	e := newExchange(t, env).toProof().check()

	oracle := new(mockOracle)
	oracle.On("SolveBlinded", mock.Anything).Return(puzzle.NewPuzzleSolution(big.NewInt(12345)), nil)
	sol, err := oracle.SolveBlinded(e.blinded)
	require.Nil(t, err)
	oracle.AssertExpectations(t)

	it, err := e.requester.GetSignedTransactions(sol)
	require.Nil(t, err)
	assert.False(t, it.Next())
	assert.Nil(t, it.Tx())
	assert.Equal(t, ErrNoUsableTransaction, errors.Cause(it.Err()))
	assert.Equal(t, KindProof, Classify(it.Err()))
	assert.False(t, it.Next())

	_, err = e.requester.FirstSignedTransaction(sol)
	assert.Equal(t, ErrNoUsableTransaction, errors.Cause(err))

	_, err = e.requester.GetSignedTransactions(puzzle.NewPuzzleSolution(env.params.SignerKey.Modulus()))
	assert.Equal(t, ErrSolutionRange, errors.Cause(err))
}

type mockSigner struct {
	mock.Mock
	*ledger.WitnessSigner
}

func (m *mockSigner) VerifyInput(tx *wire.MsgTx, coin *ledger.EscrowCoin) error {
	return m.Called(tx, coin).Error(0)
}

func TestAssemblerRejectsUnverified(t *testing.T) {
	env := newTestEnv(t, 3, 2)
	signer := &mockSigner{WitnessSigner: ledger.NewWitnessSigner()}
	signer.On("VerifyInput", mock.Anything, mock.Anything).Return(ledger.ErrVerifyInput).Once()
	signer.On("VerifyInput", mock.Anything, mock.Anything).Return(nil)

	e := newExchange(t, env)
	var err error
	e.requester, err = NewRequesterSession(env.params, WithTransactionSigner(signer))
	require.Nil(t, err)
	e.toProof().check()

	before := metrics.CandidatesSkipped.Count()
	txs := e.signedTransactions(NewLocalOracle(env.key))
	assert.Len(t, txs, 2)
	assert.Equal(t, before+1, metrics.CandidatesSkipped.Count())
	signer.AssertNumberOfCalls(t, "VerifyInput", 3)
}

func TestRevealCountMismatch(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	e := newExchange(t, env).configure().request().commit()
	before := metrics.ValidationErrors.Count()
	_, err := e.requester.Reveal(e.commitments[:len(e.commitments)-1])
	require.NotNil(t, err)
	assert.Equal(t, ErrCommitmentCount, errors.Cause(err))
	assert.Equal(t, KindValidation, Classify(err))
	assert.Equal(t, before+1, metrics.ValidationErrors.Count())
	assert.Equal(t, StateAborted, e.requester.State())

	_, err = e.requester.Reveal(e.commitments)
	assert.Equal(t, KindSequencing, Classify(err))

	e = newExchange(t, env).configure().request().commit()
	e.commitments[1] = nil
	_, err = e.requester.Reveal(e.commitments)
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))
}

func TestCheckProofCountMismatch(t *testing.T) {
	env := newTestEnv(t, 3, 3)

	e := newExchange(t, env).toProof()
	e.proof.DecoySolutions = e.proof.DecoySolutions[1:]
	_, err := e.requester.CheckCommitmentsProof(e.proof)
	assert.Equal(t, ErrProofCount, errors.Cause(err))

	e = newExchange(t, env).toProof()
	e.proof.Quotients = append(e.proof.Quotients, e.proof.Quotients[0])
	_, err = e.requester.CheckCommitmentsProof(e.proof)
	assert.Equal(t, ErrProofCount, errors.Cause(err))

	e = newExchange(t, env).toProof()
	_, err = e.requester.CheckCommitmentsProof(nil)
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))
}

func TestProveRejectsRevelation(t *testing.T) {
	env := newTestEnv(t, 2, 4)
	e := newExchange(t, env).configure().request().commit().reveal()

	commitSigner := func() *SignerSession {
		s, err := NewSignerSession(env.params, env.signerKey)
		require.Nil(t, err)
		_, err = s.Commit(e.req)
		require.Nil(t, err)
		return s
	}
	copyRev := func() *Revelation {
		return &Revelation{
			DecoyIndexes: append([]int(nil), e.rev.DecoyIndexes...),
			IndexSalt:    e.rev.IndexSalt,
			DecoySalts:   append([][32]byte(nil), e.rev.DecoySalts...),
		}
	}

	rev := copyRev()
	rev.DecoySalts[2][0] ^= 0x01
	s := commitSigner()
	_, err := s.Prove(rev)
	assert.Equal(t, ErrDecoySaltMismatch, errors.Cause(err))
	assert.Equal(t, KindProof, Classify(err))
	assert.Equal(t, SignerAborted, s.State())

	rev = copyRev()
	rev.IndexSalt[31] ^= 0x80
	_, err = commitSigner().Prove(rev)
	assert.Equal(t, ErrIndexCommitmentMismatch, errors.Cause(err))

	rev = copyRev()
	rev.DecoyIndexes[0], rev.DecoyIndexes[1] = rev.DecoyIndexes[1], rev.DecoyIndexes[0]
	_, err = commitSigner().Prove(rev)
	assert.Equal(t, ErrInvalidIndexes, errors.Cause(err))

	rev = copyRev()
	rev.DecoyIndexes[3] = len(e.req.Hashes)
	_, err = commitSigner().Prove(rev)
	assert.Equal(t, ErrInvalidIndexes, errors.Cause(err))

	rev = copyRev()
	rev.DecoyIndexes = rev.DecoyIndexes[1:]
	rev.DecoySalts = rev.DecoySalts[1:]
	_, err = commitSigner().Prove(rev)
	assert.Equal(t, ErrRevelationCount, errors.Cause(err))
	assert.Equal(t, KindValidation, Classify(err))

	_, err = commitSigner().Prove(nil)
	assert.Equal(t, ErrInvalidMessage, errors.Cause(err))

	_, err = commitSigner().Prove(copyRev())
	assert.Nil(t, err)
}

func TestCommitHashCount(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	e := newExchange(t, env).configure().request()
	e.req.Hashes = e.req.Hashes[1:]
	_, err := e.signer.Commit(e.req)
	assert.Equal(t, ErrHashCount, errors.Cause(err))
	assert.Equal(t, SignerAborted, e.signer.State())
}

func assertStateError(t *testing.T, err error, op string) {
	require.NotNil(t, err)
	se, ok := err.(*StateError)
	require.True(t, ok, "%v", err)
	assert.Equal(t, op, se.Op)
	assert.Equal(t, ErrInvalidState, errors.Cause(err))
	assert.Equal(t, KindSequencing, Classify(err))
}

func TestReplay(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	e := newExchange(t, env)

	_, err := e.requester.CreateSignatureRequest(env.dest, testFeeRate)
	assertStateError(t, err, OpCreateSignatureRequest)
	_, err = e.requester.GetSignedTransactions(nil)
	assertStateError(t, err, OpGetSignedTransactions)
	_, err = e.signer.Prove(&Revelation{})
	assertStateError(t, err, OpProve)

	e.configure()
	assertStateError(t, e.requester.ConfigureEscrow(env.coin, env.ownerKey), OpConfigureEscrow)

	e.request()
	_, err = e.requester.CreateSignatureRequest(env.dest, testFeeRate)
	assertStateError(t, err, OpCreateSignatureRequest)
	_, err = e.requester.CheckCommitmentsProof(&CommitmentsProof{})
	assertStateError(t, err, OpCheckCommitmentsProof)

	e.commit()
	_, err = e.signer.Commit(e.req)
	assertStateError(t, err, OpCommit)

	e.reveal()
	_, err = e.requester.Reveal(e.commitments)
	assertStateError(t, err, OpReveal)

	e.prove()
	_, err = e.signer.Prove(e.rev)
	assertStateError(t, err, OpProve)

	e.check()
	_, err = e.requester.CheckCommitmentsProof(e.proof)
	assertStateError(t, err, OpCheckCommitmentsProof)

	se := &StateError{Op: OpReveal, Actual: StateCompleted, Expected: StateWaitingCommitments}
	assert.Contains(t, se.Error(), "Completed")
	assert.Contains(t, se.Error(), "WaitingCommitments")
}

func TestConfigureEscrowMismatch(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	e := newExchange(t, env)
	err := e.requester.ConfigureEscrow(env.coin, env.signerKey)
	assert.Equal(t, ErrEscrowMismatch, errors.Cause(err))
	assert.Equal(t, StateWaitingEscrow, e.requester.State())

	bad := *env.coin
	bad.RedeemScript = []byte{txscript.OP_TRUE}
	err = e.requester.ConfigureEscrow(&bad, env.ownerKey)
	assert.Equal(t, ErrEscrowMismatch, errors.Cause(err))

	require.Nil(t, e.requester.ConfigureEscrow(env.coin, env.ownerKey))
	assert.Equal(t, StateWaitingSignatureRequest, e.requester.State())
}

func TestInsufficientEscrow(t *testing.T) {
	env := newTestEnv(t, 3, 1)
	env.coin.Amount = 600
	e := newExchange(t, env).configure()
	_, err := e.requester.CreateSignatureRequest(env.dest, testFeeRate)
	assert.Equal(t, ledger.ErrInsufficientEscrow, errors.Cause(err))
	assert.Equal(t, StateWaitingSignatureRequest, e.requester.State())

	_, err = e.requester.CreateSignatureRequest([]byte{txscript.OP_RETURN, 0xff, 0xff}, testFeeRate)
	assert.NotNil(t, err)
}

func TestNewSessionInvalidParameters(t *testing.T) {
	key := getTestKey(t).PubKey()
	for _, p := range []*Parameters{
		nil,
		{RealCount: 1},
		{SignerKey: key, RealCount: 0},
		{SignerKey: key, RealCount: 1, DecoyCount: -1},
	} {
		_, err := NewRequesterSession(p)
		assert.Equal(t, ErrInvalidParameters, errors.Cause(err))
	}
	_, err := NewSignerSession(&Parameters{SignerKey: key, RealCount: 1}, nil)
	assert.Equal(t, ErrInvalidParameters, errors.Cause(err))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindInternal, Classify(nil))
	assert.Equal(t, KindInternal, Classify(errors.New("boom")))
	assert.Equal(t, KindValidation, Classify(errors.Wrap(ErrProofCount, "x")))
	assert.Equal(t, KindProof, Classify(errors.Wrap(ErrInvalidQuotient, "x")))
	assert.Equal(t, KindSequencing, Classify(&StateError{Op: "x", Actual: StateAborted, Expected: StateCompleted}))
	assert.Equal(t, "proof", KindProof.String())
	assert.Equal(t, "Unknown", State(42).String())
}

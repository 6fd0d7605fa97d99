// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"encoding/json"
	"testing"

	"github.com/33cn/puzzlepromise/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resumeRequester(t *testing.T, s *RequesterSession) *RequesterSession {
	data, err := s.Snapshot()
	require.Nil(t, err)
	restored, err := RestoreRequesterSession(data)
	require.Nil(t, err)
	assert.Equal(t, s.State(), restored.State())

	again, err := restored.Snapshot()
	require.Nil(t, err)
	assertSameSnapshot(t, data, again)
	return restored
}

func decodeSnapshot(t *testing.T, data []byte) *types.SnapshotEnvelope {
	var env types.SnapshotEnvelope
	require.Nil(t, types.Decode(data, &env))
	return &env
}

func assertSameSnapshot(t *testing.T, expected, actual []byte) {
	a, b := decodeSnapshot(t, expected), decodeSnapshot(t, actual)
	assert.Equal(t, a.Version, b.Version)
	assert.Equal(t, a.Kind, b.Kind)
	assert.Equal(t, a.State, b.State)
	assert.JSONEq(t, string(a.Body), string(b.Body))
}

func resumeSigner(t *testing.T, s *SignerSession) *SignerSession {
	data, err := s.Snapshot()
	require.Nil(t, err)
	restored, err := RestoreSignerSession(data)
	require.Nil(t, err)
	assert.Equal(t, s.State(), restored.State())
	return restored
}

func TestSnapshotResumeEveryState(t *testing.T) {
	env := newTestEnv(t, 3, 4)
	e := newExchange(t, env)
	steps := []func() *exchange{e.configure, e.request, e.commit, e.reveal, e.prove, e.check}

	e.requester = resumeRequester(t, e.requester)
	e.signer = resumeSigner(t, e.signer)
	for _, step := range steps {
		step()
		e.requester = resumeRequester(t, e.requester)
		e.signer = resumeSigner(t, e.signer)
	}
	assert.Equal(t, StateCompleted, e.requester.State())
	assert.Equal(t, SignerCompleted, e.signer.State())

	txs := e.signedTransactions(NewLocalOracle(env.key))
	assert.Len(t, txs, 3)
}

func TestSnapshotAborted(t *testing.T) {
	env := newTestEnv(t, 2, 2)
	e := newExchange(t, env).configure().request().commit()
	_, err := e.requester.Reveal(nil)
	require.NotNil(t, err)

	restored := resumeRequester(t, e.requester)
	assert.Equal(t, StateAborted, restored.State())
	_, err = restored.Reveal(e.commitments)
	assert.Equal(t, KindSequencing, Classify(err))
}

func TestParseSnapshotInfo(t *testing.T) {
	env := newTestEnv(t, 1, 1)
	e := newExchange(t, env).configure().request().commit()

	data, err := e.requester.Snapshot()
	require.Nil(t, err)
	info, err := ParseSnapshotInfo(data)
	require.Nil(t, err)
	assert.Equal(t, SnapshotVersion, info.Version)
	assert.Equal(t, KindRequesterSnapshot, info.Kind)
	assert.Equal(t, "WaitingCommitments", info.State)
	assert.True(t, json.Valid(info.Body))

	data, err = e.signer.Snapshot()
	require.Nil(t, err)
	info, err = ParseSnapshotInfo(data)
	require.Nil(t, err)
	assert.Equal(t, KindSignerSnapshot, info.Kind)
	assert.Equal(t, "WaitingRevelation", info.State)

	_, err = RestoreRequesterSession(data)
	assert.Equal(t, ErrSnapshotVersion, errors.Cause(err))
}

func TestSnapshotRejects(t *testing.T) {
	encode := func(version uint32, kind, body string) []byte {
		return types.Encode(&types.SnapshotEnvelope{Version: version, Kind: kind, Body: []byte(body)})
	}
	cases := []struct {
		data     []byte
		expected error
	}{
		{[]byte("garbage"), ErrInvalidSnapshot},
		{encode(2, KindRequesterSnapshot, `{}`), ErrSnapshotVersion},
		{encode(1, "broker", `{}`), ErrSnapshotVersion},
		{encode(1, KindRequesterSnapshot, ``), ErrInvalidSnapshot},
		{encode(1, KindRequesterSnapshot, `null`), ErrInvalidSnapshot},
		{encode(1, KindRequesterSnapshot, `{}`), ErrInvalidSnapshot},
	}
	for i, c := range cases {
		_, err := RestoreRequesterSession(c.data)
		assert.Equal(t, c.expected, errors.Cause(err), "case %d", i)
	}
}

func TestSnapshotInconsistentState(t *testing.T) {
	env := newTestEnv(t, 2, 3)
	e := newExchange(t, env).configure().request()
	data, err := e.requester.Snapshot()
	require.Nil(t, err)

	header := decodeSnapshot(t, data)
	var raw map[string]interface{}
	require.Nil(t, json.Unmarshal(header.Body, &raw))
	forge := func(state int) []byte {
		raw["state"] = state
		body, err := json.Marshal(raw)
		require.Nil(t, err)
		header.State = State(state).String()
		header.Body = body
		return types.Encode(header)
	}

	_, err = RestoreRequesterSession(forge(int(StateCompleted)))
	assert.Equal(t, ErrInvalidSnapshot, errors.Cause(err))

	_, err = RestoreRequesterSession(forge(99))
	assert.Equal(t, ErrInvalidSnapshot, errors.Cause(err))
}

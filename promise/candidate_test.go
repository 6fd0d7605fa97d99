// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package promise

import (
	"crypto/rand"
	"math/bits"
	"testing"

	"github.com/33cn/puzzlepromise/types"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubRealHash(offset int64) (chainhash.Hash, error) {
	return chainhash.DoubleHashH([]byte{byte(offset), 0xaa}), nil
}

func TestCandidateSet(t *testing.T) {
	params := &Parameters{SignerKey: getTestKey(t).PubKey(), RealCount: 5, DecoyCount: 7, DecoyFormat: [32]byte{1}}
	set, err := NewCandidateSet(params, rand.Reader, stubRealHash)
	require.Nil(t, err)
	require.Len(t, set, 12)

	reals, decoys := set.Counts()
	assert.Equal(t, 5, reals)
	assert.Equal(t, 7, decoys)

	offsets := make(map[int64]bool)
	for i, c := range set {
		assert.Equal(t, i, c.Index)
		if c.IsReal() {
			offsets[c.FeeOffset] = true
			h, _ := stubRealHash(c.FeeOffset)
			assert.Equal(t, h, c.Hash)
		} else {
			assert.Equal(t, params.DecoyHash(c.Salt), c.Hash)
		}
	}
	assert.Len(t, offsets, 5)
	for k := int64(0); k < 5; k++ {
		assert.True(t, offsets[k])
	}

	indexes := set.DecoyIndexes()
	require.Len(t, indexes, 7)
	for i := 1; i < len(indexes); i++ {
		assert.True(t, indexes[i-1] < indexes[i])
	}
	assert.Equal(t, set[3].Hash, set.Hashes()[3])
}

func TestCandidateSetRealHashError(t *testing.T) {
	params := &Parameters{SignerKey: getTestKey(t).PubKey(), RealCount: 2, DecoyCount: 1}
	fail := func(int64) (chainhash.Hash, error) {
		return chainhash.Hash{}, errors.New("no sighash")
	}
	_, err := NewCandidateSet(params, rand.Reader, fail)
	assert.NotNil(t, err)
}

func TestShufflePositionsUniform(t *testing.T) {
	params := &Parameters{SignerKey: getTestKey(t).PubKey(), RealCount: 2, DecoyCount: 2}
	const trials = 2000
	counts := make([]int, params.Total())
	for i := 0; i < trials; i++ {
		set, err := NewCandidateSet(params, rand.Reader, stubRealHash)
		require.Nil(t, err)
		for _, c := range set {
			if c.IsReal() {
				counts[c.Index]++
			}
		}
	}
	expected := trials * params.RealCount / params.Total()
	for pos, n := range counts {
		assert.InDelta(t, expected, n, float64(expected)/10, "position %d", pos)
	}
}

// real sighashes and decoy hashes must look alike to a black box
func TestDecoyHashIndistinguishable(t *testing.T) {
	const trials = 150
	var realHashes, decoyHashes []chainhash.Hash
	for i := 0; i < trials; i++ {
		env := newTestEnv(t, 2, 2)
		e := newExchange(t, env).configure().request()
		for _, c := range e.requester.Candidates() {
			if c.IsReal() {
				realHashes = append(realHashes, c.Hash)
			} else {
				decoyHashes = append(decoyHashes, c.Hash)
			}
		}
	}
	stats := func(hashes []chainhash.Hash) (ones float64, firstByte float64) {
		var n, sum int
		for _, h := range hashes {
			for _, b := range h {
				n += bits.OnesCount8(b)
			}
			sum += int(h[0])
		}
		return float64(n) / float64(len(hashes)*256), float64(sum) / float64(len(hashes))
	}
	realOnes, realFirst := stats(realHashes)
	decoyOnes, decoyFirst := stats(decoyHashes)
	assert.InDelta(t, 0.5, realOnes, 0.01)
	assert.InDelta(t, 0.5, decoyOnes, 0.01)
	assert.InDelta(t, realOnes, decoyOnes, 0.015)
	assert.InDelta(t, 127.5, realFirst, 20)
	assert.InDelta(t, 127.5, decoyFirst, 20)
}

func TestHashIndexes(t *testing.T) {
	salt := [32]byte{7}
	h := HashIndexes(salt, []int{1, 4, 9})
	assert.Equal(t, h, HashIndexes(salt, []int{1, 4, 9}))
	assert.NotEqual(t, h, HashIndexes(salt, []int{1, 4, 10}))
	assert.NotEqual(t, h, HashIndexes(salt, []int{4, 1, 9}))
	assert.NotEqual(t, h, HashIndexes([32]byte{8}, []int{1, 4, 9}))
}

func TestNewParametersFromConfig(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.Promise.RealCount = 5
	cfg.Promise.DecoyCount = 15
	p, err := NewParametersFromConfig(cfg.Promise, getTestKey(t).PubKey())
	require.Nil(t, err)
	assert.Equal(t, 20, p.Total())
	assert.Equal(t, byte(1), p.DecoyFormat[0])

	cfg.Promise.DecoyFormat = "00"
	_, err = NewParametersFromConfig(cfg.Promise, getTestKey(t).PubKey())
	assert.Equal(t, types.ErrInvalidConfig, errors.Cause(err))

	_, err = NewParametersFromConfig(nil, getTestKey(t).PubKey())
	assert.Equal(t, ErrInvalidParameters, errors.Cause(err))
}

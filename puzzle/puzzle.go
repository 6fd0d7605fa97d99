// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package puzzle

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/pkg/errors"
)

type value struct {
	v *big.Int
}

// Int copy of the underlying integer, nil for a zero value
func (x value) Int() *big.Int {
	if x.v == nil {
		return nil
	}
	return new(big.Int).Set(x.v)
}

// Bytes minimal big endian encoding
func (x value) Bytes() []byte {
	if x.v == nil {
		return nil
	}
	return x.v.Bytes()
}

func (x value) String() string {
	return x.v.Text(16)
}

func fromBytes(b []byte) (value, error) {
	if len(b) == 0 {
		return value{}, ErrInvalidEncoding
	}
	return value{new(big.Int).SetBytes(b)}, nil
}

// Puzzle RSA ciphertext of a solution
type Puzzle struct{ value }

// PuzzleSolution plaintext of a puzzle
type PuzzleSolution struct{ value }

// BlindFactor random r, a blinded puzzle is p * r^e
type BlindFactor struct{ value }

// Quotient q such that puzzle2 = puzzle1 * q^e
type Quotient struct{ value }

// NewPuzzle wraps an integer
func NewPuzzle(v *big.Int) *Puzzle { return &Puzzle{value{new(big.Int).Set(v)}} }

// NewPuzzleSolution wraps an integer
func NewPuzzleSolution(v *big.Int) *PuzzleSolution {
	return &PuzzleSolution{value{new(big.Int).Set(v)}}
}

// NewQuotient wraps an integer
func NewQuotient(v *big.Int) *Quotient { return &Quotient{value{new(big.Int).Set(v)}} }

// PuzzleFromBytes decode
func PuzzleFromBytes(b []byte) (*Puzzle, error) {
	v, err := fromBytes(b)
	if err != nil {
		return nil, err
	}
	return &Puzzle{v}, nil
}

// SolutionFromBytes decode
func SolutionFromBytes(b []byte) (*PuzzleSolution, error) {
	v, err := fromBytes(b)
	if err != nil {
		return nil, err
	}
	return &PuzzleSolution{v}, nil
}

// BlindFactorFromBytes decode
func BlindFactorFromBytes(b []byte) (*BlindFactor, error) {
	v, err := fromBytes(b)
	if err != nil {
		return nil, err
	}
	return &BlindFactor{v}, nil
}

// QuotientFromBytes decode
func QuotientFromBytes(b []byte) (*Quotient, error) {
	v, err := fromBytes(b)
	if err != nil {
		return nil, err
	}
	return &Quotient{v}, nil
}

// Equal same integer
func (p *Puzzle) Equal(o *Puzzle) bool {
	return p != nil && o != nil && p.v.Cmp(o.v) == 0
}

// Equal same integer
func (s *PuzzleSolution) Equal(o *PuzzleSolution) bool {
	return s != nil && o != nil && s.v.Cmp(o.v) == 0
}

// GeneratePuzzle draws a random solution and returns it with its puzzle
func (k *RsaPubKey) GeneratePuzzle(r io.Reader) (*Puzzle, *PuzzleSolution, error) {
	s, err := k.randUnit(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "GeneratePuzzle")
	}
	return &Puzzle{value{k.Encrypt(s)}}, &PuzzleSolution{value{s}}, nil
}

// Verify s is in range and s^e == p
func (k *RsaPubKey) Verify(p *Puzzle, s *PuzzleSolution) bool {
	if p == nil || s == nil || !k.InRange(s.v) || !k.InRange(p.v) {
		return false
	}
	return k.Encrypt(s.v).Cmp(p.v) == 0
}

// Blind hides p behind a fresh random factor
func (k *RsaPubKey) Blind(r io.Reader, p *Puzzle) (*Puzzle, *BlindFactor, error) {
	if p == nil || !k.InRange(p.v) {
		return nil, nil, ErrOutOfRange
	}
	f, err := k.randUnit(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Blind")
	}
	blinded := k.mulMod(p.v, k.Encrypt(f))
	return &Puzzle{value{blinded}}, &BlindFactor{value{f}}, nil
}

// Unblind removes the blind factor from the solution of a blinded puzzle
func (k *RsaPubKey) Unblind(s *PuzzleSolution, f *BlindFactor) (*PuzzleSolution, error) {
	if s == nil || f == nil || !k.InRange(s.v) {
		return nil, ErrOutOfRange
	}
	inv, err := k.inverse(f.v)
	if err != nil {
		return nil, err
	}
	return &PuzzleSolution{value{k.mulMod(s.v, inv)}}, nil
}

// ComputeQuotient q = to * from^-1, so that puzzle(to) = puzzle(from) * q^e
func (k *RsaPubKey) ComputeQuotient(from, to *PuzzleSolution) (*Quotient, error) {
	inv, err := k.inverse(from.v)
	if err != nil {
		return nil, err
	}
	return &Quotient{value{k.mulMod(to.v, inv)}}, nil
}

// CheckQuotient to == from * q^e mod N
func (k *RsaPubKey) CheckQuotient(from, to *Puzzle, q *Quotient) bool {
	if from == nil || to == nil || q == nil || !k.InRange(q.v) {
		return false
	}
	return k.mulMod(from.v, k.Encrypt(q.v)).Cmp(to.v) == 0
}

// ApplyQuotient s * q mod N, the solution of the puzzle the quotient leads to
func (k *RsaPubKey) ApplyQuotient(s *PuzzleSolution, q *Quotient) *PuzzleSolution {
	return &PuzzleSolution{value{k.mulMod(s.v, q.v)}}
}

func randInt(r io.Reader, max *big.Int) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	return rand.Int(r, max)
}

// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package puzzle

import "errors"

// puzzle errors
var (
	ErrInvalidKey       = errors.New("ErrInvalidKey")
	ErrOutOfRange       = errors.New("ErrOutOfRange")
	ErrNotInvertible    = errors.New("ErrNotInvertible")
	ErrInvalidEncoding  = errors.New("ErrInvalidEncoding")
	ErrPromiseKeyLength = errors.New("ErrPromiseKeyLength")
)

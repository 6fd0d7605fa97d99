// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "errors"

// 全局错误
var (
	ErrInvalidConfig = errors.New("ErrInvalidConfig")
	ErrNotFound      = errors.New("ErrNotFound")
	ErrInvalidParam  = errors.New("ErrInvalidParam")
)

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot proceed immediately.
//
// For Ring.Enqueue and Ring.TransferAll: the destination lacks space
// For Ring.Dequeue: nothing is queued
//
// ErrWouldBlock is a control flow signal, not a failure. The multiplexer
// never surfaces it: a transfer that would block parks the client until
// the driver frees space.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// Configuration and binding errors.
var (
	ErrInvalidConfig  = errors.New("sermux: invalid config")
	ErrUnknownRole    = errors.New("sermux: unknown role")
	ErrUnknownClient  = errors.New("sermux: unknown client")
	ErrRegionTooSmall = errors.New("sermux: region too small")
	ErrUnknownChannel = errors.New("sermux: unknown channel")
)

// IsWouldBlock reports whether err indicates the operation would block.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}

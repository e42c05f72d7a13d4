// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package sermux

// RaceEnabled is true when the race detector is active.
// Used by tests to skip concurrent ring tests: the data bytes are ordered
// by the head and tail indices, which the detector does not follow.
const RaceEnabled = true

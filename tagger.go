// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import "strconv"

// Colour escape sequences. Each chunk is sent as
//
//	ESC "[38;5;" <palette index> "m" <bytes> ESC "[0m"
const (
	colourStart    = "\x1b[38;5;"
	colourStartEnd = "m"
	colourReset    = "\x1b[0m"
)

const (
	// PaletteSize is the number of colours of the 256-colour palette.
	PaletteSize = 256

	// paletteDigits is the widest decimal palette index.
	paletteDigits = 3
)

// Tagger decides how a client's chunk is bracketed on the shared line.
//
// Overhead must be an upper bound on len(prefix)+len(suffix) for every
// client. It sizes the rings: a client ring plus Overhead must fit the
// downstream ring. The space check of a transfer uses the exact tags
// returned by Wrap.
type Tagger interface {
	Overhead() int
	Wrap(client int) (prefix, suffix []byte)
}

// PassThrough copies chunks verbatim.
type PassThrough struct{}

// Overhead returns 0.
func (PassThrough) Overhead() int { return 0 }

// Wrap returns no prefix and no suffix.
func (PassThrough) Wrap(int) (prefix, suffix []byte) { return nil, nil }

// Colour tags each client's chunks with its palette colour.
// Client i uses palette index i mod PaletteSize.
type Colour struct {
	prefixes [][]byte
	reset    []byte
}

// NewColour assigns palette slots to clients 0..n-1.
func NewColour(n int) *Colour {
	c := &Colour{
		prefixes: make([][]byte, n),
		reset:    []byte(colourReset),
	}
	for i := range n {
		c.prefixes[i] = AppendColourStart(nil, i)
	}
	return c
}

// Overhead returns the widest prefix plus the reset sequence.
func (c *Colour) Overhead() int {
	return len(colourStart) + paletteDigits + len(colourStartEnd) + len(colourReset)
}

// Wrap returns the client's colour prefix and the reset suffix.
// The returned slices must not be modified.
func (c *Colour) Wrap(client int) (prefix, suffix []byte) {
	return c.prefixes[client], c.reset
}

// AppendColourStart appends the escape sequence selecting client's
// palette colour to dst.
func AppendColourStart(dst []byte, client int) []byte {
	dst = append(dst, colourStart...)
	dst = strconv.AppendUint(dst, uint64(client%PaletteSize), 10)
	return append(dst, colourStartEnd...)
}

// AppendColourReset appends the escape sequence restoring the default
// colour to dst.
func AppendColourReset(dst []byte) []byte {
	return append(dst, colourReset...)
}

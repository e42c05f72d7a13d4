// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux

import (
	"errors"
	"fmt"
)

// ClientConfig describes one client of the serial system.
type ClientConfig struct {
	// Name is the protection domain name of the client.
	Name string

	// TxDataSize is the size of the client's transmit data region.
	TxDataSize int
}

// Config holds the static configuration of a serial system: who the
// clients are, how the shared regions are laid out and how channels are
// numbered on the multiplexer.
type Config struct {
	// Clients lists the clients in index order.
	Clients []ClientConfig

	// DriverName, VirtTxName and VirtRxName are the protection domain
	// names of the driver and the two virtualisers.
	DriverName string
	VirtTxName string
	VirtRxName string

	// DriverTxDataSize is the size of the driver's transmit data region.
	// It must hold any client's full ring plus the colour tags.
	DriverTxDataSize int

	// ControlStride is the distance between consecutive ring control
	// blocks in a control region.
	ControlStride int

	// DriverChannel and ClientOffset number the multiplexer's channels:
	// the driver is DriverChannel, client i is ClientOffset+i.
	DriverChannel Channel
	ClientOffset  Channel

	// Colour tags each client's output with its palette colour.
	Colour bool

	// Baud is the line rate of the UART.
	Baud int
}

// Default system layout.
const (
	DefaultControlStride = 0x1000
	DefaultDataSize      = 0x200000
	DefaultBaud          = 115200
)

// DefaultConfig returns the two-client configuration.
func DefaultConfig() Config {
	return Config{
		Clients: []ClientConfig{
			{Name: "client0", TxDataSize: DefaultDataSize},
			{Name: "client1", TxDataSize: DefaultDataSize},
		},
		DriverName:       "uart",
		VirtTxName:       "serial_virt_tx",
		VirtRxName:       "serial_virt_rx",
		DriverTxDataSize: 2 * DefaultDataSize,
		ControlStride:    DefaultControlStride,
		DriverChannel:    0,
		ClientOffset:     1,
		Colour:           true,
		Baud:             DefaultBaud,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	var errs []error
	if len(c.Clients) == 0 {
		errs = append(errs, errors.New("no clients"))
	}

	overhead := PassThrough{}.Overhead()
	if c.Colour {
		overhead = (&Colour{}).Overhead()
	}
	seen := make(map[string]bool, len(c.Clients))
	for i, cli := range c.Clients {
		switch {
		case cli.Name == "":
			errs = append(errs, fmt.Errorf("client %d has no name", i))
		case seen[cli.Name]:
			errs = append(errs, fmt.Errorf("client %d: duplicate name %q", i, cli.Name))
		}
		seen[cli.Name] = true
		if !isPow2(cli.TxDataSize) {
			errs = append(errs, fmt.Errorf("client %q: tx data size %#x is not a power of 2", cli.Name, cli.TxDataSize))
		} else if cli.TxDataSize+overhead > c.DriverTxDataSize {
			errs = append(errs, fmt.Errorf("client %q: tx data size %#x does not fit the driver ring", cli.Name, cli.TxDataSize))
		}
	}

	if !isPow2(c.DriverTxDataSize) {
		errs = append(errs, fmt.Errorf("driver tx data size %#x is not a power of 2", c.DriverTxDataSize))
	}
	if c.ControlStride < RingControlSize || c.ControlStride%8 != 0 {
		errs = append(errs, fmt.Errorf("control stride %#x must be a multiple of 8 and >= %d", c.ControlStride, RingControlSize))
	}
	if c.VirtTxName == "" {
		errs = append(errs, errors.New("no tx virtualiser name"))
	}
	if c.DriverChannel >= c.ClientOffset && c.DriverChannel-c.ClientOffset < Channel(len(c.Clients)) {
		errs = append(errs, fmt.Errorf("driver channel %d overlaps client channels", c.DriverChannel))
	}
	if c.Baud < 0 {
		errs = append(errs, fmt.Errorf("negative baud %d", c.Baud))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Builder returns a multiplexer builder configured from c.
// c should have passed Validate.
func (c Config) Builder() *Builder {
	names := make([]string, len(c.Clients))
	for i, cli := range c.Clients {
		names[i] = cli.Name
	}
	b := New(len(c.Clients)).Names(names...).Channels(c.DriverChannel, c.ClientOffset)
	if c.Colour {
		b.Colour()
	}
	return b
}

// ControlRegionSize returns the size of a control region holding one
// control block per client.
func (c Config) ControlRegionSize() int {
	return len(c.Clients) * c.ControlStride
}

// DataRegionSize returns the size of a data region holding every client's
// transmit data back to back.
func (c Config) DataRegionSize() int {
	n := 0
	for _, cli := range c.Clients {
		n += cli.TxDataSize
	}
	return n
}

// ClientIndex returns the index of the named client.
func (c Config) ClientIndex(name string) (int, error) {
	for i, cli := range c.Clients {
		if cli.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownClient, name)
}

// BindVirt binds the client transmit rings as seen by the protection
// domain called role.
//
// ctlRegion holds one control block per client every ControlStride
// bytes; dataRegion holds the clients' data regions back to back. Only
// the transmit virtualiser is supported.
func BindVirt(c Config, role string, ctlRegion, dataRegion []byte) ([]*Ring, error) {
	switch role {
	case c.VirtTxName:
	case c.VirtRxName:
		return nil, fmt.Errorf("%w: %q (receive multiplexing is not supported)", ErrUnknownRole, role)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	if len(ctlRegion) < c.ControlRegionSize() {
		return nil, fmt.Errorf("%w: control region is %#x bytes, need %#x", ErrRegionTooSmall, len(ctlRegion), c.ControlRegionSize())
	}
	if len(dataRegion) < c.DataRegionSize() {
		return nil, fmt.Errorf("%w: data region is %#x bytes, need %#x", ErrRegionTooSmall, len(dataRegion), c.DataRegionSize())
	}

	rings := make([]*Ring, len(c.Clients))
	off := 0
	for i, cli := range c.Clients {
		ctl, err := ControlAt(ctlRegion[i*c.ControlStride:])
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", cli.Name, err)
		}
		end := off + cli.TxDataSize
		rings[i] = BindRing(ctl, dataRegion[off:end:end])
		off = end
	}
	return rings, nil
}

// BindClient binds the transmit ring of the named client over its own
// control and data regions. Returns the ring and the client's index.
func BindClient(c Config, name string, ctlRegion, dataRegion []byte) (*Ring, int, error) {
	i, err := c.ClientIndex(name)
	if err != nil {
		return nil, 0, err
	}
	size := c.Clients[i].TxDataSize
	if len(dataRegion) < size {
		return nil, 0, fmt.Errorf("%w: data region is %#x bytes, need %#x", ErrRegionTooSmall, len(dataRegion), size)
	}
	ctl, err := ControlAt(ctlRegion)
	if err != nil {
		return nil, 0, err
	}
	return BindRing(ctl, dataRegion[:size:size]), i, nil
}

// BindDriver binds the driver's transmit ring.
func BindDriver(c Config, ctlRegion, dataRegion []byte) (*Ring, error) {
	if len(dataRegion) < c.DriverTxDataSize {
		return nil, fmt.Errorf("%w: data region is %#x bytes, need %#x", ErrRegionTooSmall, len(dataRegion), c.DriverTxDataSize)
	}
	ctl, err := ControlAt(ctlRegion)
	if err != nil {
		return nil, err
	}
	return BindRing(ctl, dataRegion[:c.DriverTxDataSize:c.DriverTxDataSize]), nil
}

func isPow2(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

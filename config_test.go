// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sermux_test

import (
	"errors"
	"strings"
	"testing"

	"code.hybscloud.com/sermux"
)

// smallConfig is DefaultConfig scaled down for tests.
func smallConfig() sermux.Config {
	cfg := sermux.DefaultConfig()
	cfg.Clients = []sermux.ClientConfig{
		{Name: "shell", TxDataSize: 64},
		{Name: "logger", TxDataSize: 32},
	}
	cfg.DriverTxDataSize = 128
	cfg.ControlStride = 512
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := sermux.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Clients) != 2 || !cfg.Colour || cfg.DriverChannel != 0 || cfg.ClientOffset != 1 {
		t.Fatalf("DefaultConfig: %+v", cfg)
	}
	if cfg.ControlRegionSize() != 2*sermux.DefaultControlStride {
		t.Fatalf("ControlRegionSize: got %#x", cfg.ControlRegionSize())
	}
	if cfg.DataRegionSize() != 2*sermux.DefaultDataSize {
		t.Fatalf("DataRegionSize: got %#x", cfg.DataRegionSize())
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*sermux.Config)
		detail string
	}{
		{"NoClients", func(c *sermux.Config) { c.Clients = nil }, "no clients"},
		{"EmptyName", func(c *sermux.Config) { c.Clients[0].Name = "" }, "has no name"},
		{"DuplicateName", func(c *sermux.Config) { c.Clients[1].Name = "shell" }, "duplicate name"},
		{"NotPow2", func(c *sermux.Config) { c.Clients[0].TxDataSize = 48 }, "not a power of 2"},
		{"TagsDoNotFit", func(c *sermux.Config) { c.Clients[0].TxDataSize = 128 }, "does not fit the driver ring"},
		{"DriverNotPow2", func(c *sermux.Config) { c.DriverTxDataSize = 100 }, "driver tx data size"},
		{"Stride", func(c *sermux.Config) { c.ControlStride = 8 }, "control stride"},
		{"Overlap", func(c *sermux.Config) { c.DriverChannel = 2 }, "overlaps client channels"},
		{"Baud", func(c *sermux.Config) { c.Baud = -1 }, "negative baud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, sermux.ErrInvalidConfig) {
				t.Fatalf("Validate: got %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Fatalf("Validate: %q does not mention %q", err, tt.detail)
			}
		})
	}

	// Without colour a client ring may be as large as the driver ring
	cfg := smallConfig()
	cfg.Colour = false
	cfg.Clients[0].TxDataSize = 128
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate without colour: %v", err)
	}
}

func TestConfigClientIndex(t *testing.T) {
	cfg := smallConfig()
	if i, err := cfg.ClientIndex("logger"); err != nil || i != 1 {
		t.Fatalf("ClientIndex(logger): got (%d, %v), want (1, nil)", i, err)
	}
	if _, err := cfg.ClientIndex("nobody"); !errors.Is(err, sermux.ErrUnknownClient) {
		t.Fatalf("ClientIndex(nobody): got %v, want ErrUnknownClient", err)
	}
}

func TestBindRoles(t *testing.T) {
	cfg := smallConfig()
	ctl := make([]byte, cfg.ControlRegionSize())
	data := make([]byte, cfg.DataRegionSize())

	if _, err := sermux.BindVirt(cfg, cfg.VirtRxName, ctl, data); !errors.Is(err, sermux.ErrUnknownRole) {
		t.Fatalf("BindVirt(rx): got %v, want ErrUnknownRole", err)
	}
	if _, err := sermux.BindVirt(cfg, "timer", ctl, data); !errors.Is(err, sermux.ErrUnknownRole) {
		t.Fatalf("BindVirt(timer): got %v, want ErrUnknownRole", err)
	}
	if _, err := sermux.BindVirt(cfg, cfg.VirtTxName, ctl[:len(ctl)-1], data); !errors.Is(err, sermux.ErrRegionTooSmall) {
		t.Fatalf("BindVirt short control region: got %v, want ErrRegionTooSmall", err)
	}
	if _, err := sermux.BindVirt(cfg, cfg.VirtTxName, ctl, data[:len(data)-1]); !errors.Is(err, sermux.ErrRegionTooSmall) {
		t.Fatalf("BindVirt short data region: got %v, want ErrRegionTooSmall", err)
	}
	if _, err := sermux.BindDriver(cfg, ctl, data[:64]); !errors.Is(err, sermux.ErrRegionTooSmall) {
		t.Fatalf("BindDriver short data region: got %v, want ErrRegionTooSmall", err)
	}
	if _, _, err := sermux.BindClient(cfg, "nobody", ctl, data); !errors.Is(err, sermux.ErrUnknownClient) {
		t.Fatalf("BindClient(nobody): got %v, want ErrUnknownClient", err)
	}
}

// TestBindShared binds the same regions from each side and moves data
// from a client, through the multiplexer, to the driver.
func TestBindShared(t *testing.T) {
	cfg := smallConfig()
	cliCtl := make([]byte, cfg.ControlRegionSize())
	cliData := make([]byte, cfg.DataRegionSize())
	drvCtl := make([]byte, cfg.ControlStride)
	drvData := make([]byte, cfg.DriverTxDataSize)

	virt, err := sermux.BindVirt(cfg, cfg.VirtTxName, cliCtl, cliData)
	if err != nil {
		t.Fatalf("BindVirt: %v", err)
	}
	if len(virt) != 2 || virt[0].Cap() != 64 || virt[1].Cap() != 32 {
		t.Fatalf("BindVirt: got %d rings", len(virt))
	}

	// The logger's regions start after the shell's
	logger, idx, err := sermux.BindClient(cfg, "logger", cliCtl[cfg.ControlStride:], cliData[64:])
	if err != nil || idx != 1 {
		t.Fatalf("BindClient: got (%d, %v), want (1, nil)", idx, err)
	}
	virtDrv, err := sermux.BindDriver(cfg, drvCtl, drvData)
	if err != nil {
		t.Fatalf("BindDriver: %v", err)
	}
	uartDrv, err := sermux.BindDriver(cfg, drvCtl, drvData)
	if err != nil {
		t.Fatalf("BindDriver: %v", err)
	}

	rec := &recorder{}
	m := cfg.Builder().Notifier(rec).Build(virtDrv, virt)

	fill(t, logger, "boot ok")
	m.Notified(m.ClientChannel(idx))

	want := "\x1b[38;5;1mboot ok\x1b[0m"
	if got := string(drain(uartDrv, uartDrv.Len())); got != want {
		t.Fatalf("driver: got %q, want %q", got, want)
	}
	if !logger.Empty() || !logger.ProducerSignalRequested() {
		t.Fatal("client side does not see the multiplexer's progress")
	}
	if len(rec.delayed) != 1 || rec.delayed[0] != cfg.DriverChannel {
		t.Fatalf("delayed notifications: got %v", rec.delayed)
	}
}

// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command sermux-demo runs a transmit multiplexer, an emulated UART and a
// set of clients in one process, each protection domain on its own
// goroutine, and prints the multiplexed output to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/sermux"
	"code.hybscloud.com/sermux/uart"
)

func main() {
	var (
		clients = flag.Int("clients", 2, "number of clients")
		colour  = flag.Bool("colour", true, "tag each client's output with a colour")
		baud    = flag.Int("baud", sermux.DefaultBaud, "UART line rate, 0 for unpaced")
		lines   = flag.Int("lines", 20, "lines written by each client")
		size    = flag.Int("size", 0x1000, "client ring size in bytes")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, logger, config(*clients, *size, *colour, *baud), *lines); err != nil {
		logger.Error("sermux-demo: failed", "error", err)
		os.Exit(1)
	}
}

func config(clients, size int, colour bool, baud int) sermux.Config {
	cfg := sermux.DefaultConfig()
	cfg.Clients = make([]sermux.ClientConfig, clients)
	for i := range cfg.Clients {
		cfg.Clients[i] = sermux.ClientConfig{Name: fmt.Sprintf("client%d", i), TxDataSize: size}
	}
	cfg.DriverTxDataSize = 4 * size
	cfg.Colour = colour
	cfg.Baud = baud
	return cfg
}

func run(ctx context.Context, logger *slog.Logger, cfg sermux.Config, lines int) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Shared regions between the virtualiser and its clients, and between
	// the virtualiser and the driver.
	cliCtl := make([]byte, cfg.ControlRegionSize())
	cliData := make([]byte, cfg.DataRegionSize())
	drvCtl := make([]byte, cfg.ControlStride)
	drvData := make([]byte, cfg.DriverTxDataSize)

	virtRings, err := sermux.BindVirt(cfg, cfg.VirtTxName, cliCtl, cliData)
	if err != nil {
		return err
	}
	virtDrv, err := sermux.BindDriver(cfg, drvCtl, drvData)
	if err != nil {
		return err
	}
	uartRing, err := sermux.BindDriver(cfg, drvCtl, drvData)
	if err != nil {
		return err
	}

	// Driver channel 0 reaches the virtualiser; virtualiser channel
	// cfg.DriverChannel reaches the driver.
	channels := max(int(cfg.ClientOffset)+len(cfg.Clients), int(cfg.DriverChannel)+1)
	if channels > sermux.MaxChannels {
		return fmt.Errorf("sermux-demo: %d channels, a domain has at most %d", channels, sermux.MaxChannels)
	}
	var virtLoop, uartLoop *sermux.Loop
	virtLoop = sermux.NewLoop(channels, func(ch sermux.Channel) {
		if ch == cfg.DriverChannel {
			_ = uartLoop.Signal(0)
		}
	})
	uartLoop = sermux.NewLoop(1, func(ch sermux.Channel) {
		_ = virtLoop.Signal(cfg.DriverChannel)
	})

	mux := cfg.Builder().Logger(logger).Notifier(virtLoop).Build(virtDrv, virtRings)
	drv := uart.New(uartRing, os.Stdout, uartLoop, uart.Config{Baud: cfg.Baud, Logger: logger})
	if cfg.Colour {
		if err := mux.Legend(os.Stderr); err != nil {
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	domains, dctx := errgroup.WithContext(runCtx)
	domains.Go(func() error { return virtLoop.Run(dctx, mux) })
	domains.Go(func() error { return uartLoop.Run(dctx, drv) })

	producers, pctx := errgroup.WithContext(ctx)
	for i, cli := range cfg.Clients {
		producers.Go(func() error {
			ring, _, err := sermux.BindClient(cfg, cli.Name, cliCtl[i*cfg.ControlStride:], cliData[offset(cfg, i):])
			if err != nil {
				return err
			}
			w := sermux.NewWriter(ring, func() { _ = virtLoop.Signal(mux.ClientChannel(i)) })
			var line []byte
			for n := range lines {
				line = fmt.Appendf(line[:0], "%s: line %d\n", cli.Name, n)
				if _, err := w.WriteContext(pctx, line); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err = producers.Wait()
	if err == nil {
		err = quiesce(ctx, append(virtRings[:len(virtRings):len(virtRings)], virtDrv))
	}
	cancel()
	if werr := domains.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
		err = errors.Join(err, werr)
	}

	st := mux.Stats()
	logger.Info("sermux-demo: done",
		"transfers", st.Transfers,
		"bytes", st.Bytes,
		"parked", st.Parked,
		"driver_wakeups", st.Notifications,
		"sent", drv.Sent(),
	)
	return err
}

// offset returns where client i's data starts in the shared data region.
func offset(cfg sermux.Config, i int) int {
	off := 0
	for _, cli := range cfg.Clients[:i] {
		off += cli.TxDataSize
	}
	return off
}

// quiesce waits until every ring is drained. Rings are checked in order,
// so upstream rings must come first.
func quiesce(ctx context.Context, rings []*sermux.Ring) error {
	var bo iox.Backoff
	deadline := time.Now().Add(time.Minute)
	for {
		busy := false
		for _, r := range rings {
			if !r.Empty() {
				busy = true
				break
			}
		}
		if !busy {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errors.New("sermux-demo: rings did not drain")
		}
		bo.Wait()
	}
}

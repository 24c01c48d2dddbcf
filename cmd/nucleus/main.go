package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"nucleus/internal/console"
	"nucleus/internal/job"
	"nucleus/internal/kernel"
	"nucleus/internal/monitor"
	"nucleus/internal/timer"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	ticks := flag.Int("ticks", 5000, "ticks to simulate with the manual timer backend")
	tui := flag.Bool("tui", false, "show the live task monitor")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*configPath, *duration, *ticks, *tui, logger); err != nil {
		logger.Error("nucleus exited", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, duration time.Duration, ticks int, tui bool, logger *slog.Logger) error {
	// Read the configuration
	cfg, err := kernel.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("loaded config", "path", configPath, "tick_hz", cfg.TickHz, "preemptive", cfg.Preemptive, "arena", cfg.ArenaSize)

	showTUI := tui && isatty.IsTerminal(os.Stdout.Fd())
	if tui && !showTUI {
		logger.Warn("stdout is not a terminal, monitor disabled")
	}

	// Console: serial port, the monitor pane, or the terminal.
	var (
		sink    console.Sink
		pane    *monitor.Console
		closers []io.Closer
	)
	switch {
	case cfg.Console.Port != "":
		uart, closer, err := console.OpenSerial(cfg.Console.Port, cfg.Console.Baud)
		if err != nil {
			return fmt.Errorf("open console %s: %w", cfg.Console.Port, err)
		}
		closers = append(closers, closer)
		sink = uart
	case showTUI:
		pane = monitor.NewConsole(500)
		sink = pane
	default:
		sink = console.NewUART(colorable.NewColorableStdout(), cfg.Console.CRLF)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	if showTUI && pane == nil {
		// Console lines go to the serial port; the monitor pane stays empty.
		pane = monitor.NewConsole(500)
	}

	// Metrics
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())
	metrics, err := kernel.NewMetrics(provider.Meter(kernel.MeterName))
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	var (
		clock  timer.Backend
		manual *timer.Manual
	)
	switch cfg.Timer.Backend {
	case "manual":
		manual = timer.NewManual(cfg.TickHz)
		clock = manual
	default:
		clock = timer.NewTickClock(cfg.TickHz)
	}

	k, err := kernel.New(cfg, clock,
		kernel.WithConsole(sink),
		kernel.WithLogger(logger),
		kernel.WithMetrics(metrics),
	)
	if err != nil {
		sink.WriteLine("")
		sink.WriteLine("*** KERNEL PANIC ***")
		sink.Printf("Fatal error: %s\n", err.Error())
		sink.WriteLine("System halted.")
		return err
	}
	if cfg.CSVLog != "" {
		if err := k.EnableCSVLogging(cfg.CSVLog); err != nil {
			return fmt.Errorf("open csv log: %w", err)
		}
	}
	k.Banner()

	if err := createDemoTasks(k, cfg, clock); err != nil {
		sink.Printf("Failed to create demo tasks: %s\n", err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	if manual != nil {
		if err := k.Start(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return k.Run(gctx) })
	if manual != nil {
		g.Go(func() error { return simulate(gctx, k, manual, ticks, logger) })
	}
	if showTUI {
		g.Go(func() error {
			err := monitor.Run(gctx, k, pane)
			// Leaving the monitor ends the session.
			k.Shutdown()
			return err
		})
	}
	err = g.Wait()
	report(reader, logger, k)
	return err
}

// createDemoTasks starts the two demo tasks the firmware booted with, plus a
// CPU-bound worker when the kernel preempts.
func createDemoTasks(k *kernel.Kernel, cfg kernel.Config, clock timer.Backend) error {
	stack := uint32(cfg.DefaultStack)
	if _, err := k.Create("DemoTask1", job.Periodic("Demo Task 1", 1000, nil), kernel.PriorityNormal, stack); err != nil {
		return err
	}
	if _, err := k.Create("DemoTask2", job.Periodic("Demo Task 2", 2000, nil), kernel.PriorityNormal, stack); err != nil {
		return err
	}
	if cfg.Preemptive {
		wait := timer.ParseWaitStrategy(cfg.Timer.Wait)
		if _, err := k.Create("Burst", job.Burst(clock, wait, 250, 750), kernel.PriorityLow, stack); err != nil {
			return err
		}
	}
	return nil
}

// simulate drives the manual backend one tick at a time as fast as the
// tasks settle, then shuts the kernel down.
func simulate(ctx context.Context, k *kernel.Kernel, clock *timer.Manual, ticks int, logger *slog.Logger) error {
	defer k.Shutdown()
	if err := k.WaitIdle(); err != nil {
		return ignoreStop(err)
	}
	for i := 0; i < ticks && ctx.Err() == nil; i++ {
		clock.Fire(1)
		if err := k.WaitIdle(); err != nil {
			return ignoreStop(err)
		}
	}
	logger.Info("simulation finished", "ticks", k.Ticks())
	return nil
}

func ignoreStop(err error) error {
	if errors.Is(err, kernel.ErrStopped) || errors.Is(err, kernel.ErrHalted) {
		// Run reports the halt.
		return nil
	}
	return err
}

func report(reader *sdkmetric.ManualReader, logger *slog.Logger, k *kernel.Kernel) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		logger.Warn("collect metrics", "err", err)
		return
	}
	attrs := []any{"session", k.Session().String(), "dropped_events", k.Dropped()}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			attrs = append(attrs, m.Name, total)
		}
	}
	capacity, high, inUse := k.ArenaUsage()
	attrs = append(attrs, "arena_capacity", capacity, "arena_high_water", high, "arena_in_use", inUse)
	logger.Info("session summary", attrs...)
}

// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/volumefs/volumefs/bridge"
	"github.com/volumefs/volumefs/engine"
	"github.com/volumefs/volumefs/engine/format"
	"github.com/volumefs/volumefs/lib/config"
	"github.com/volumefs/volumefs/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("volumefs-engine", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to the YAML configuration file")
	socketPath := flags.StringP("socket", "s", "", "unix socket to listen on (overrides the config file)")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("volumefs-engine %s\n", version.Info())
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *socketPath != "" {
		cfg.Listen.SocketPath = *socketPath
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	registry, err := buildRegistry(cfg.Engine.Formats)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A stale socket from an unclean shutdown would block the listener.
	if err := os.Remove(cfg.Listen.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	listener, err := net.Listen("unix", cfg.Listen.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen.SocketPath, err)
	}
	defer os.Remove(cfg.Listen.SocketPath)
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Info("engine listening", "socket", cfg.Listen.SocketPath)

	var connections sync.WaitGroup
	var nextConnection atomic.Int64
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		connLogger := logger.With("connection", nextConnection.Add(1))
		connections.Add(1)
		go func() {
			defer connections.Done()
			serveConnection(ctx, conn, registry, connLogger)
		}()
	}

	connections.Wait()
	logger.Info("engine stopped")
	return nil
}

// buildRegistry resolves the configured format allowlist. An empty
// list enables every reference driver.
func buildRegistry(names []string) (*format.Registry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	drivers := make([]format.Driver, 0, len(names))
	for _, name := range names {
		driver, ok := format.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown archive format %q in engine.formats", name)
		}
		drivers = append(drivers, driver)
	}
	return format.NewRegistry(drivers...), nil
}

// serveConnection runs one front-end connection to completion: a fresh
// engine, a peer serve loop, and session teardown when the loop exits.
func serveConnection(ctx context.Context, conn net.Conn, registry *format.Registry, logger *slog.Logger) {
	logger.Info("front end connected")
	eng := engine.New(registry, logger)
	peer := bridge.NewPeer(conn, eng, logger)
	err := peer.Serve(ctx)
	eng.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("connection ended", "error", err)
		return
	}
	logger.Info("front end disconnected")
}

// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/volumefs/volumefs/frontend"
	"github.com/volumefs/volumefs/lib/version"
	"github.com/volumefs/volumefs/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("volumefs", pflag.ContinueOnError)
	flags.Usage = printUsage
	socketPath := flags.StringP("socket", "s", "/run/volumefs/engine.sock", "unix socket of the engine daemon")
	timeout := flags.Duration("timeout", 30*time.Second, "per-operation timeout")
	verbose := flags.BoolP("verbose", "v", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Printf("volumefs %s\n", version.Info())
		return nil
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	args := flags.Args()
	if len(args) < 2 {
		printUsage()
		return fmt.Errorf("a command and an archive path are required")
	}
	command, archivePath := args[0], args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	volume, cleanup, err := mount(ctx, *socketPath, archivePath, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	opCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	switch command {
	case "meta":
		return printTree(os.Stdout, volume.Metadata(), "")
	case "ls":
		directory := "/"
		if len(args) > 2 {
			directory = args[2]
		}
		return printDirectory(os.Stdout, volume, directory)
	case "cat":
		if len(args) < 3 {
			return fmt.Errorf("cat requires a member path")
		}
		return catMember(opCtx, volume, args[2])
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `volumefs - inspect archives through a volumefs engine

USAGE
    volumefs [flags] meta <archive>
    volumefs [flags] ls <archive> [directory]
    volumefs [flags] cat <archive> <member>

FLAGS
    -s, --socket <path>   engine daemon socket (default: /run/volumefs/engine.sock)
        --timeout <dur>   per-operation timeout (default: 30s)
    -v, --verbose         enable debug logging
        --version         print version information

The archive is served to the engine from this process; the engine
receives only the byte ranges it asks for.
`)
}

// mount connects to the engine and starts a volume session for the
// archive. The returned cleanup closes the volume and the connection.
func mount(ctx context.Context, socketPath, archivePath string, logger *slog.Logger) (*frontend.Volume, func(), error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to engine at %s: %w", socketPath, err)
	}

	source, err := frontend.OpenFileSource(archivePath)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	client := frontend.NewClient(conn, logger)
	go client.Serve(ctx)

	volume, err := client.Mount(ctx, source)
	if err != nil {
		client.Close()
		source.Close()
		return nil, nil, err
	}

	cleanup := func() {
		volume.Close()
		client.Close()
		source.Close()
	}
	return volume, cleanup, nil
}

// printTree renders the metadata tree depth-first with sizes.
func printTree(out *os.File, entry *protocol.Entry, prefix string) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	writeTree(writer, entry, prefix)
	return writer.Flush()
}

func writeTree(writer *tabwriter.Writer, entry *protocol.Entry, prefix string) {
	for _, name := range sortedChildren(entry) {
		child := entry.Entries[name]
		path := prefix + "/" + name
		if child.IsDirectory {
			fmt.Fprintf(writer, "%s/\t\n", path)
			writeTree(writer, child, path)
			continue
		}
		fmt.Fprintf(writer, "%s\t%d\n", path, child.Size)
	}
}

// printDirectory lists one directory's immediate children.
func printDirectory(out *os.File, volume *frontend.Volume, directory string) error {
	entry := volume.Metadata().Lookup(directory)
	if entry == nil {
		return fmt.Errorf("no such directory: %s", directory)
	}
	if !entry.IsDirectory {
		return fmt.Errorf("not a directory: %s", directory)
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range sortedChildren(entry) {
		child := entry.Entries[name]
		if child.IsDirectory {
			fmt.Fprintf(writer, "%s/\t\n", name)
			continue
		}
		fmt.Fprintf(writer, "%s\t%d\n", name, child.Size)
	}
	return writer.Flush()
}

// catMember streams one member's decompressed bytes to stdout.
func catMember(ctx context.Context, volume *frontend.Volume, path string) error {
	file, err := volume.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.Close(ctx)

	archiveSize := volume.ArchiveSize()
	for offset := int64(0); ; {
		length := int64(frontend.DefaultChunkResponseCap)
		if remaining := archiveSize - offset; length > remaining {
			length = remaining
		}
		if length <= 0 {
			return fmt.Errorf("archive size %d exhausted with more data promised", archiveSize)
		}
		data, hasMore, err := file.Read(ctx, offset, length)
		if err != nil {
			return err
		}
		if _, err := os.Stdout.Write(data); err != nil {
			return err
		}
		if !hasMore {
			return nil
		}
		if len(data) == 0 {
			return fmt.Errorf("empty read with more data promised at offset %d", offset)
		}
		offset += int64(len(data))
	}
}

func sortedChildren(entry *protocol.Entry) []string {
	names := make([]string, 0, len(entry.Entries))
	for name := range entry.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

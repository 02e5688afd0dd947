// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// blobctl is a small operator tool for exercising a blob store from the
// command line: writing, reading and sizing blobs under any of the three
// protection modes. It is not part of the library and carries its own
// dependency on log/slog's level flag and devlog, kept out of the core
// package's import graph.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	blob "github.com/fido-device-onboard/go-fdo-blobstore"
	"github.com/fido-device-onboard/go-fdo-blobstore/secretstore"
)

var flags = flag.NewFlagSet("blobctl", flag.ContinueOnError)

var (
	dir      = flags.String("dir", ".", "directory holding blob files and the file-backed secret store")
	sqlite   = flags.String("sqlite", "", "use a SQLite-backed secret store at this path instead of the file-backed one")
	password = flags.String("password", "", "password for the SQLite-backed secret store's xts encryption-at-rest")
	verbose  = flags.Bool("v", false, "enable debug logging")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  blobctl [options] size <name> <mode>
  blobctl [options] read <name> <mode>
  blobctl [options] write <name> <mode> <file>
  blobctl [options] exists <name> <mode>

mode is one of: plain, authenticated, sealed

Options:
`)
	flags.PrintDefaults()
}

func main() {
	flags.Usage = usage
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *verbose {
		level.Set(slog.LevelDebug)
	}

	if err := run(flags.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "blobctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) < 2 {
		usage()
		return fmt.Errorf("missing command or blob name")
	}
	cmd, name, rest := args[0], args[1], args[2:]
	if len(rest) < 1 {
		return fmt.Errorf("missing mode")
	}
	mode, err := parseMode(rest[0])
	if err != nil {
		return err
	}

	secrets, err := openSecretStore()
	if err != nil {
		return err
	}
	if closer, ok := secrets.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	store := blob.New(*dir, secrets)

	switch cmd {
	case "size":
		n, err := store.Size(name, mode)
		if err != nil {
			return err
		}
		fmt.Println(n)
	case "exists":
		fmt.Println(store.Exists(name, mode))
	case "read":
		buf := make([]byte, 1<<20)
		n, err := store.Read(name, mode, buf)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(buf[:n])
		return err
	case "write":
		if len(rest) < 2 {
			return fmt.Errorf("missing input file")
		}
		payload, err := os.ReadFile(rest[1])
		if err != nil {
			return err
		}
		n, err := store.Write(name, mode, payload)
		if err != nil {
			return err
		}
		fmt.Println(n)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func parseMode(s string) (blob.Mode, error) {
	switch s {
	case "plain":
		return blob.Plain, nil
	case "authenticated":
		return blob.Authenticated, nil
	case "sealed":
		return blob.Sealed, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

func openSecretStore() (secretstore.Store, error) {
	if *sqlite != "" {
		return secretstore.OpenSQLite(*sqlite, *password)
	}
	return secretstore.NewFile(*dir), nil
}

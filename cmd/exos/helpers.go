// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/exoscore/exos/kernel"
	"github.com/exoscore/exos/vfs"
)

// Stdin is swappable for tests.
var Stdin *os.File = os.Stdin

// stdinReader buffers Stdin across prompts so that consecutive reads see
// every line; it is rebuilt whenever Stdin is swapped.
var (
	stdinReader     *bufio.Reader
	stdinReaderFile *os.File
)

// readPassword prompts for a password without echo when stdin is a
// terminal, falling back to a plain line read otherwise.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(Stdout, prompt)
	fd := int(Stdin.Fd())
	if term.IsTerminal(fd) {
		defer fmt.Fprintln(Stdout)
		pw, err := term.ReadPassword(fd)
		return string(pw), err
	}
	if stdinReader == nil || stdinReaderFile != Stdin {
		stdinReader = bufio.NewReader(Stdin)
		stdinReaderFile = Stdin
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readNewPassword prompts twice and insists the entries match.
func readNewPassword(userName string) (string, error) {
	pw, err := readPassword(fmt.Sprintf("Password for %s: ", userName))
	if err != nil {
		return "", err
	}
	again, err := readPassword("Repeat password: ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

// writeVFSFile stores a whole file through the provider mounted on the
// file's folder.
func writeVFSFile(k *kernel.Kernel, path string, data []byte) error {
	dir, leaf := vfs.Split(path)
	if err := k.VFS.EnsureFolderChain(dir); err != nil {
		return err
	}
	node, remaining, err := k.VFS.Resolve(dir, vfs.ResolveOptions{ExpandFinalAlias: true})
	if err != nil {
		return err
	}
	if node.Mounted() == nil {
		return fmt.Errorf("cannot write %q: %w", path, vfs.ErrNoPermission)
	}
	if remaining == "" {
		remaining = node.SourcePath()
		if remaining == "" {
			remaining = "/"
		}
	}
	writer, ok := node.Mounted().(interface {
		WriteFile(path string, data []byte) error
	})
	if !ok {
		return fmt.Errorf("cannot write %q: %w", path, vfs.ErrNoPermission)
	}
	return writer.WriteFile(vfs.Join(remaining, leaf), data)
}

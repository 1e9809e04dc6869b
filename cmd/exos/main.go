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

// Command exos is the userspace shell over the EXOS core runtime: it
// boots the kernel against a host-backed volume and exposes the
// shell-facing commands (user, package, run, gfx).
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"

	"github.com/exoscore/exos/kernel"
	"github.com/exoscore/exos/kernelcfg"
	"github.com/exoscore/exos/logger"
	"github.com/exoscore/exos/vfs/hostfs"
)

// Stdout and Stderr are swappable for tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

type options struct {
	Root   string `long:"root" description:"Host directory backing the active volume" env:"EXOS_ROOT"`
	Config string `long:"config" description:"Kernel configuration file" env:"EXOS_CONFIG"`
}

type command interface {
	Execute(args []string) error
}

// cmdInfo describes one registered subcommand, cmd/snap style.
type cmdInfo struct {
	name      string
	shortHelp string
	longHelp  string
	builder   func(k *kernel.Kernel) command
}

var commands []*cmdInfo

func addCommand(name, shortHelp, longHelp string, builder func(k *kernel.Kernel) command) {
	commands = append(commands, &cmdInfo{
		name:      name,
		shortHelp: shortHelp,
		longHelp:  longHelp,
		builder:   builder,
	})
}

func defaultRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".exos")
	}
	return ".exos"
}

// Parser assembles the go-flags parser over a booted kernel.
func Parser(k *kernel.Kernel) *flags.Parser {
	parser := flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)
	parser.ShortDescription = "Tool to interact with the EXOS core runtime"
	for _, ci := range commands {
		cmd := ci.builder(k)
		if _, err := parser.AddCommand(ci.name, ci.shortHelp, ci.longHelp, cmd); err != nil {
			logger.Panicf("cannot add command %q: %v", ci.name, err)
		}
	}
	return parser
}

func boot(opts *options) (*kernel.Kernel, error) {
	root := opts.Root
	if root == "" {
		root = defaultRoot()
	}
	cfgPath := opts.Config
	if cfgPath == "" {
		cfgPath = filepath.Join(root, "kernel.conf")
	}
	cfg, err := kernelcfg.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	volume, err := hostfs.New("host0", filepath.Join(root, "volume"))
	if err != nil {
		return nil, err
	}
	return kernel.Boot(&kernel.Options{
		Config:   cfg,
		ActiveFS: volume,
		StateDir: root,
	})
}

// run parses the command line and executes the selected command.
// Exit code 0 on success, non-zero on usage or operation failure.
func run(args []string) int {
	logger.SimpleSetup()

	var opts options
	preParser := flags.NewParser(&opts, flags.PassDoubleDash|flags.IgnoreUnknown)
	rest, err := preParser.ParseArgs(args)
	if err != nil {
		fmt.Fprintf(Stderr, "error: %v\n", err)
		return 64
	}

	k, err := boot(&opts)
	if err != nil {
		fmt.Fprintf(Stderr, "error: cannot boot kernel: %v\n", err)
		return 1
	}
	defer func() {
		if err := k.Shutdown(); err != nil {
			fmt.Fprintf(Stderr, "error: shutdown: %v\n", err)
		}
	}()

	parser := Parser(k)
	if _, err := parser.ParseArgs(rest); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			parser.WriteHelp(Stdout)
			return 0
		}
		// the shell prints the failing subsystem and error kind verbatim
		fmt.Fprintf(Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}

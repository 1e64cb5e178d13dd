// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Xv8run boots an xv8 machine on the terminal: the console is wired to
// stdin/stdout, and Ctrl-\ halts the machine.
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/term"

	"xv8/kern"
)

var (
	loglevel   = flag.String("log", "off", "kernel log `level` (trace, debug, info, warn, error, off)")
	cpuprofile = flag.String("cpuprofile", "", "write cpuprofile to `file`")
	diskfile   = flag.String("disk", "", "boot from txtar `archive` instead of the built-in disk")
)

func main() {
	log.SetPrefix("xv8run: ")
	log.SetFlags(0)
	flag.Parse()

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal(err)
		}
		defer pprof.StopCPUProfile()
	}

	var disk []byte
	if *diskfile != "" {
		b, err := os.ReadFile(*diskfile)
		if err != nil {
			log.Fatal(err)
		}
		disk = b
	}

	fixup := func() {}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			log.Fatal(err)
		}
		fixup = func() { term.Restore(int(os.Stdin.Fd()), oldState) }
		defer fixup()
	}

	k, err := kern.New(kern.Config{
		Disk: disk,
		Out:  os.Stdout,
		Log: hclog.New(&hclog.LoggerOptions{
			Name:   "xv8",
			Level:  hclog.LevelFromString(*loglevel),
			Output: os.Stderr,
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	k.Start()

	buf := make([]byte, 100)
	for {
		n, err := os.Stdin.Read(buf)
		for _, c := range buf[:n] {
			if c == 0x1c {
				pprof.StopCPUProfile()
				fixup()
				os.Exit(0)
			}
			if c == '\r' {
				c = '\n'
			}
			k.ConsoleInput([]byte{c})
		}
		if err == io.EOF {
			k.ConsoleEOF()
			k.Shutdown()
			return
		} else if err != nil {
			log.Fatalf("reading stdin: %v", err)
		}
	}
}

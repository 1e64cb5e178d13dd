// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "io"

// console is the one device the simulation carries: output goes to an
// io.Writer, input arrives asynchronously through Kernel.ConsoleInput the
// way a UART interrupt would deliver bytes. A reader with no pending input
// sleeps on the console until input or EOF arrives.
type console struct {
	lock spinlock
	out  io.Writer
	buf  []byte
	eof  bool
}

func newConsole(out io.Writer) *console {
	c := &console{out: out}
	c.lock.init("console")
	return c
}

func (k *Kernel) consoleRead(p *Proc, dst []byte) (int, Errno) {
	c := k.cons
	c.lock.acquire()
	for len(c.buf) == 0 {
		if c.eof {
			c.lock.release()
			return 0, 0
		}
		if p.isKilled() {
			c.lock.release()
			return 0, EINTR
		}
		p.sleep(c, &c.lock)
	}
	n := copy(dst, c.buf)
	c.buf = c.buf[n:]
	c.lock.release()
	return n, 0
}

func (k *Kernel) consoleWrite(p *Proc, src []byte) (int, Errno) {
	c := k.cons
	c.lock.acquire()
	defer c.lock.release()
	if c.out == nil {
		return len(src), 0
	}
	n, err := c.out.Write(src)
	if err != nil {
		return n, EIO
	}
	return n, 0
}

// ConsoleInput delivers input bytes to the console, waking any sleeping
// readers. Safe to call from outside process context, like an interrupt.
func (k *Kernel) ConsoleInput(b []byte) {
	c := k.cons
	c.lock.acquire()
	c.buf = append(c.buf, b...)
	k.wakeup(c)
	c.lock.release()
}

// ConsoleEOF marks end of input; blocked readers return 0.
func (k *Kernel) ConsoleEOF() {
	c := k.cons
	c.lock.acquire()
	c.eof = true
	k.wakeup(c)
	c.lock.release()
}

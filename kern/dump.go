// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"fmt"
	"io"
)

// Dump writes a one-line-per-process listing of the table to w, for
// debugging. Each entry's lock is taken just long enough to snapshot that
// line, so the listing is per-line consistent on a live machine.
func (k *Kernel) Dump(w io.Writer) {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		state, pid, wchan := p.state, p.pid, p.wchan
		name := p.name
		p.lock.release()
		if state == Unused {
			continue
		}
		fmt.Fprintf(w, "%d %s %s", pid, state, name)
		if state == Sleeping && wchan != nil {
			fmt.Fprintf(w, " chan %p", wchan)
		}
		fmt.Fprintln(w)
	}
}

// dumpTrapframe writes the saved registers, in the layout of the hardware
// frame, for panics and the debug log.
func dumpTrapframe(w io.Writer, tf *trapframe) {
	for i := 0; i < len(tf.X); i += 4 {
		for j := i; j < i+4 && j < len(tf.X); j++ {
			fmt.Fprintf(w, "x%-2d %016x  ", j, tf.X[j])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "sp  %016x  spsr %016x  elr %016x\n", tf.SP, tf.SPSR, tf.ELR)
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "runtime"

// context is a saved kernel execution state: the target of swtch. On real
// hardware this is the callee-saved registers and a stack pointer; here each
// thread of control is a goroutine and the saved state is the goroutine
// itself, parked on an unbuffered channel until something switches back.
type context struct {
	resume chan struct{}
}

func newContext() *context {
	return &context{resume: make(chan struct{})}
}

// swtch saves the current thread of control as save and resumes load.
// It returns only when some other context switches back to save; the caller
// then runs exactly where it left off. If the process owning save is
// reclaimed while parked, its channel is closed and the goroutine retires.
func swtch(save, load *context) {
	load.resume <- struct{}{}
	if _, ok := <-save.resume; !ok {
		runtime.Goexit()
	}
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"sync"
	"sync/atomic"
)

// spinlock stands in for the hardware spinlock. The simulation backs it with
// a mutex and keeps a held flag so that invariant checks like sched's
// "caller must hold p.lock" remain expressible. Unlike the hardware version
// it cannot name the holding CPU; holding reports only that someone holds it.
type spinlock struct {
	name string
	mu   sync.Mutex
	held atomic.Bool
}

func (l *spinlock) init(name string) {
	l.name = name
}

func (l *spinlock) acquire() {
	l.mu.Lock()
	l.held.Store(true)
}

// release may be called by a different goroutine than the one that acquired,
// which is how lock ownership transfers across swtch.
func (l *spinlock) release() {
	if !l.held.Load() {
		panic("release " + l.name + ": not held")
	}
	l.held.Store(false)
	l.mu.Unlock()
}

func (l *spinlock) holding() bool {
	return l.held.Load()
}

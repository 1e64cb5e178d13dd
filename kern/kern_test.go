// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"
)

// newTestKernel builds a machine but does not start it. Tests that only poke
// at kernel internals from the test goroutine use this directly; tests that
// need running processes use bootTestKernel.
func newTestKernel(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	if cfg.NCPU == 0 {
		cfg.NCPU = 1
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	k, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

// bootTestKernel builds and starts a machine, with the given steps replacing
// the default init image. The first process must never exit, so the last
// step of init images passed here must block (usually in park).
func bootTestKernel(t *testing.T, cfg Config, initSteps ...func(p *Proc)) *Kernel {
	t.Helper()
	k := newTestKernel(t, cfg)
	if len(initSteps) > 0 {
		k.Register("/bin/init", initSteps...)
	}
	k.Start()
	t.Cleanup(k.Shutdown)
	return k
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// gate is a test rendezvous: processes block in wait until the test (or
// another process) opens it.
type gate struct {
	lock   spinlock
	opened bool
}

func newGate(name string) *gate {
	g := new(gate)
	g.lock.init(name)
	return g
}

func (g *gate) wait(p *Proc) {
	g.lock.acquire()
	for !g.opened {
		p.sleep(g, &g.lock)
	}
	g.lock.release()
}

func (g *gate) open(k *Kernel) {
	g.lock.acquire()
	g.opened = true
	k.wakeup(g)
	g.lock.release()
}

// park blocks the process forever without pinning a CPU. Test init images
// end here because the first process must never exit.
func park(p *Proc) {
	g := newGate("park")
	g.lock.acquire()
	for {
		p.sleep(g, &g.lock)
	}
}

// procState reads the state of the table entry holding pid, or Unused if no
// entry does.
func procState(k *Kernel, pid int) Procstate {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		if p.pid == pid && p.state != Unused {
			s := p.state
			p.lock.release()
			return s
		}
		p.lock.release()
	}
	return Unused
}

// sleepingOn reports whether some process is parked on ch.
func sleepingOn(k *Kernel, ch any) bool {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		ok := p.state == Sleeping && p.wchan == ch
		p.lock.release()
		if ok {
			return true
		}
	}
	return false
}

// parentPid reads pid's parent under waitLock, or 0.
func parentPid(k *Kernel, pid int) int {
	k.waitLock.acquire()
	defer k.waitLock.release()
	for i := range k.ptable {
		p := &k.ptable[i]
		if p.parent != nil && p.Pid() == pid {
			return p.parent.Pid()
		}
	}
	return 0
}

// syncBuffer collects console output safely across goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

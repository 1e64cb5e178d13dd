// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"bytes"
	"testing"
)

func TestKalloc(t *testing.T) {
	m := newKmem(2)
	pg1 := m.kalloc()
	pg2 := m.kalloc()
	if pg1 == nil || pg2 == nil {
		t.Fatal("kalloc failed with free pages")
	}
	if m.kalloc() != nil {
		t.Error("kalloc succeeded with no free pages")
	}

	pg1[0] = 0xff
	m.kfree(pg1)
	pg := m.kalloc()
	if pg == nil {
		t.Fatal("kalloc failed after kfree")
	}
	if pg[0] != 0 {
		t.Error("kfree returned a dirty page to the free list")
	}
	if n := m.freePages(); n != 0 {
		t.Errorf("freePages = %d, want 0", n)
	}
}

func TestUvmAllocRollback(t *testing.T) {
	k := newTestKernel(t, Config{NPAGE: 2})
	pt := k.pgdirInit() // takes one page for the dir
	if pt == nil {
		t.Fatal("pgdirInit = nil")
	}

	// Asking for three pages with one free must fail and undo the
	// partial growth.
	if _, err := k.uvmAlloc(pt, 0, 3*PGSIZE); err != ENOMEM {
		t.Fatalf("uvmAlloc past physical memory: err = %v, want ENOMEM", err)
	}
	if len(pt.pages) != 0 {
		t.Errorf("pages mapped after failed alloc = %d, want 0", len(pt.pages))
	}
	if n := k.kmem.freePages(); n != 1 {
		t.Errorf("freePages after failed alloc = %d, want 1", n)
	}

	if sz, err := k.uvmAlloc(pt, 0, PGSIZE); sz != PGSIZE || err != 0 {
		t.Fatalf("uvmAlloc(PGSIZE) = %d, %v", sz, err)
	}
	k.vmFree(pt)
	if n := k.kmem.freePages(); n != 2 {
		t.Errorf("freePages after vmFree = %d, want 2", n)
	}
}

func TestCopyinCopyout(t *testing.T) {
	k := newTestKernel(t, Config{})
	pt := k.pgdirInit()
	if _, err := k.uvmAlloc(pt, 0, 2*PGSIZE); err != 0 {
		t.Fatal(err)
	}

	// Straddle the page boundary.
	msg := []byte("crossing")
	va := uint64(PGSIZE - 3)
	if err := pt.copyout(va, msg); err != 0 {
		t.Fatalf("copyout across pages: %v", err)
	}
	got := make([]byte, len(msg))
	if err := pt.copyin(got, va); err != 0 {
		t.Fatalf("copyin across pages: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("copyin = %q, want %q", got, msg)
	}

	if err := pt.copyout(2*PGSIZE-2, msg); err != EFAULT {
		t.Errorf("copyout past the mapping: err = %v, want EFAULT", err)
	}
	if err := pt.copyin(got, 2*PGSIZE); err != EFAULT {
		t.Errorf("copyin past the mapping: err = %v, want EFAULT", err)
	}
	k.vmFree(pt)
}

func TestUvmCopy(t *testing.T) {
	k := newTestKernel(t, Config{})
	old := k.pgdirInit()
	if _, err := k.uvmAlloc(old, 0, PGSIZE); err != 0 {
		t.Fatal(err)
	}
	old.pages[0][10] = 7

	new := k.pgdirInit()
	if err := k.uvmCopy(old, new, PGSIZE); err != 0 {
		t.Fatal(err)
	}
	old.pages[0][10] = 8 // the copy must not alias the original
	if new.pages[0][10] != 7 {
		t.Errorf("copied page byte = %d, want 7", new.pages[0][10])
	}
	k.vmFree(old)
	k.vmFree(new)
}

func TestGrowproc(t *testing.T) {
	k := newTestKernel(t, Config{})
	p := k.allocProc()
	p.lock.release()
	p.pgdir = k.pgdirInit()

	if err := k.growproc(p, 2*PGSIZE); err != 0 {
		t.Fatalf("growproc(+2 pages): %v", err)
	}
	if p.sz != 2*PGSIZE {
		t.Errorf("sz after growth = %d, want %d", p.sz, 2*PGSIZE)
	}
	if err := k.growproc(p, -PGSIZE); err != 0 {
		t.Fatalf("growproc(-1 page): %v", err)
	}
	if p.sz != PGSIZE {
		t.Errorf("sz after shrink = %d, want %d", p.sz, PGSIZE)
	}
	if err := k.growproc(p, -2*PGSIZE); err != EINVAL {
		t.Errorf("growproc below zero: err = %v, want EINVAL", err)
	}

	p.lock.acquire()
	k.freeProc(p)
	p.lock.release()
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// kmem is the simulated physical page allocator: a fixed pool carved into
// PGSIZE pages kept on a free list. Exhaustion is real here, which is what
// makes the allocation-failure paths in proc_alloc and fork testable.
type kmem struct {
	lock spinlock
	free [][]byte
}

func newKmem(npage int) *kmem {
	m := new(kmem)
	m.lock.init("kmem")
	pool := make([]byte, npage*PGSIZE)
	for i := 0; i < npage; i++ {
		m.free = append(m.free, pool[i*PGSIZE:(i+1)*PGSIZE:(i+1)*PGSIZE])
	}
	return m
}

// kalloc returns one page, or nil if physical memory is exhausted.
func (m *kmem) kalloc() []byte {
	m.lock.acquire()
	defer m.lock.release()
	n := len(m.free)
	if n == 0 {
		return nil
	}
	pg := m.free[n-1]
	m.free = m.free[:n-1]
	return pg
}

func (m *kmem) kfree(pg []byte) {
	if len(pg) != PGSIZE {
		panic("kfree: not a page")
	}
	clear(pg)
	m.lock.acquire()
	m.free = append(m.free, pg)
	m.lock.release()
}

func (m *kmem) freePages() int {
	m.lock.acquire()
	defer m.lock.release()
	return len(m.free)
}

// pagetable is a simulated user address space: pages mapped contiguously
// from virtual address 0. The dir page models the top-level translation
// table the hardware would walk; it is charged to the owner but never read.
type pagetable struct {
	dir   []byte
	pages [][]byte
}

// pgdirInit allocates an empty address space, or nil if out of memory.
func (k *Kernel) pgdirInit() *pagetable {
	dir := k.kmem.kalloc()
	if dir == nil {
		return nil
	}
	return &pagetable{dir: dir}
}

// vmFree releases every page of the address space.
func (k *Kernel) vmFree(pt *pagetable) {
	for _, pg := range pt.pages {
		k.kmem.kfree(pg)
	}
	pt.pages = nil
	if pt.dir != nil {
		k.kmem.kfree(pt.dir)
		pt.dir = nil
	}
}

// uvmAlloc grows the address space from oldsz to newsz, allocating pages as
// needed. Returns the new size, or ENOMEM with the partial growth undone.
func (k *Kernel) uvmAlloc(pt *pagetable, oldsz, newsz uint64) (uint64, Errno) {
	if newsz < oldsz {
		return oldsz, 0
	}
	for uint64(len(pt.pages))*PGSIZE < newsz {
		pg := k.kmem.kalloc()
		if pg == nil {
			k.uvmDealloc(pt, uint64(len(pt.pages))*PGSIZE, oldsz)
			return 0, ENOMEM
		}
		pt.pages = append(pt.pages, pg)
	}
	return newsz, 0
}

// uvmDealloc shrinks the address space from oldsz to newsz and returns the
// new size. Pages above newsz go back to the allocator.
func (k *Kernel) uvmDealloc(pt *pagetable, oldsz, newsz uint64) uint64 {
	if newsz >= oldsz {
		return oldsz
	}
	keep := int((newsz + PGSIZE - 1) / PGSIZE)
	for len(pt.pages) > keep {
		n := len(pt.pages)
		k.kmem.kfree(pt.pages[n-1])
		pt.pages = pt.pages[:n-1]
	}
	return newsz
}

// uvmCopy duplicates the first sz bytes of old into new, for fork.
// On failure the partially built copy is torn back down to empty.
func (k *Kernel) uvmCopy(old, new *pagetable, sz uint64) Errno {
	if _, err := k.uvmAlloc(new, 0, sz); err != 0 {
		return err
	}
	for i := range new.pages {
		copy(new.pages[i], old.pages[i])
	}
	return 0
}

// uvmSwitch installs p's address space as the CPU's current one, the way the
// hardware would load a translation table base register.
func (k *Kernel) uvmSwitch(c *CPU, p *Proc) {
	if c != nil {
		c.pgdir = p.pgdir
	}
}

// copyin copies len(dst) bytes from the address space at srcva into dst.
func (pt *pagetable) copyin(dst []byte, srcva uint64) Errno {
	for len(dst) > 0 {
		i := srcva / PGSIZE
		if i >= uint64(len(pt.pages)) {
			return EFAULT
		}
		n := copy(dst, pt.pages[i][srcva%PGSIZE:])
		dst = dst[n:]
		srcva += uint64(n)
	}
	return 0
}

// copyout copies src into the address space at dstva.
func (pt *pagetable) copyout(dstva uint64, src []byte) Errno {
	for len(src) > 0 {
		i := dstva / PGSIZE
		if i >= uint64(len(pt.pages)) {
			return EFAULT
		}
		n := copy(pt.pages[i][dstva%PGSIZE:], src)
		src = src[n:]
		dstva += uint64(n)
	}
	return 0
}

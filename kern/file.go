// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// The open-file table is shared by all processes; fork duplicates
// references into it, and the last close releases the underlying inode.

type file struct {
	ref      int
	readable bool
	writable bool
	ip       *inode

	// lock serializes I/O through this entry: fork shares the entry (and
	// so the offset) across processes.
	lock spinlock
	off  uint64
}

type ftable struct {
	lock spinlock
	file [NFILE]file
}

func newFtable() *ftable {
	t := new(ftable)
	t.lock.init("ftable")
	for i := range t.file {
		t.file[i].lock.init("file")
	}
	return t
}

// fileAlloc finds a free slot in the table, or nil if the table is full.
func (t *ftable) alloc() *file {
	t.lock.acquire()
	defer t.lock.release()
	for i := range t.file {
		f := &t.file[i]
		if f.ref == 0 {
			f.ref = 1
			return f
		}
	}
	return nil
}

// dup bumps the reference count on f.
func (t *ftable) dup(f *file) *file {
	t.lock.acquire()
	if f.ref < 1 {
		panic("file dup: no reference")
	}
	f.ref++
	t.lock.release()
	return f
}

// fileClose drops one reference; the last close releases the inode.
func (k *Kernel) fileClose(f *file) {
	t := k.ftable
	t.lock.acquire()
	if f.ref < 1 {
		panic("file close: no reference")
	}
	f.ref--
	if f.ref > 0 {
		t.lock.release()
		return
	}
	ip := f.ip
	f.ip = nil
	f.readable = false
	f.writable = false
	f.off = 0
	t.lock.release()

	// iput may block on I/O, so it runs outside the table lock.
	k.iput(ip)
}

// fileRead reads up to len(dst) bytes from f. Device files go through the
// device switch; a console read may sleep until input arrives.
func (k *Kernel) fileRead(p *Proc, f *file, dst []byte) (int, Errno) {
	if !f.readable {
		return 0, EBADF
	}
	if f.ip.isDev() {
		dev := f.ip.major
		if int(dev) >= NDEV || k.devsw[dev].read == nil {
			return 0, ENODEV
		}
		return k.devsw[dev].read(p, dst)
	}
	f.lock.acquire()
	defer f.lock.release()
	n, err := k.readi(f.ip, dst, f.off)
	if n > 0 {
		f.off += uint64(n)
	}
	return n, err
}

// fileWrite writes src to f. A short write from the lower layer stops the
// loop and reports what was written, or the error if nothing was.
func (k *Kernel) fileWrite(p *Proc, f *file, src []byte) (int, Errno) {
	if !f.writable {
		return 0, EBADF
	}
	if f.ip.isDev() {
		dev := f.ip.major
		if int(dev) >= NDEV || k.devsw[dev].write == nil {
			return 0, ENODEV
		}
		return k.devsw[dev].write(p, src)
	}
	f.lock.acquire()
	defer f.lock.release()
	total := 0
	for total < len(src) {
		n, err := k.writei(f.ip, src[total:], f.off)
		if n > 0 {
			f.off += uint64(n)
			total += n
		}
		if err != 0 || n == 0 {
			if total == 0 {
				if err == 0 {
					err = EIO
				}
				return 0, err
			}
			break
		}
	}
	return total, 0
}

// stat is the metadata record statInode fills; sysFstat copies it out to
// user space with the encoding in syscall.go.
type stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Size  uint64
}

func (k *Kernel) statInode(ip *inode, st *stat) {
	st.Dev = uint64(ip.major)<<8 | uint64(ip.minor)
	st.Ino = uint64(ip.inum)
	st.Mode = uint32(ip.mode)
	st.Nlink = uint32(ip.nlink)
	st.Size = k.isize(ip)
}

// devsw is the device switch: read/write entry points per major number.
type devsw struct {
	read  func(p *Proc, dst []byte) (int, Errno)
	write func(p *Proc, src []byte) (int, Errno)
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

/*
 * File-descriptor system calls. These are pass-throughs to the external
 * file and inode layers; the process core contributes only the per-process
 * descriptor table and the cwd reference.
 */

// argfd converts a descriptor argument into an open file.
func argfd(p *Proc, n int) (*file, Errno) {
	fd := argint(p, n)
	if fd < 0 || fd >= NOFILE || p.ofile[fd] == nil {
		return nil, EBADF
	}
	return p.ofile[fd], 0
}

// fdalloc finds a free slot in the process's descriptor table.
func fdalloc(p *Proc, f *file) (int, Errno) {
	for fd := range p.ofile {
		if p.ofile[fd] == nil {
			p.ofile[fd] = f
			return fd, 0
		}
	}
	return 0, EMFILE
}

// argdirfd accepts only the AT_FDCWD form of the *at calls.
func argdirfd(p *Proc, n int) Errno {
	if argint(p, n) != AT_FDCWD {
		return EINVAL
	}
	return 0
}

func sysOpenat(p *Proc) int64 {
	if err := argdirfd(p, 0); err != 0 {
		return -int64(err)
	}
	path, err := argstr(p, 1)
	if err != 0 {
		return -int64(err)
	}
	flags := argint(p, 2)

	k := p.kernel
	ip, err := k.namei(p, path)
	if err != 0 {
		if err != ENOENT || flags&O_CREATE == 0 {
			return -int64(err)
		}
		if ip, err = k.maknode(p, path, S_IFREG|0o644, 0, 0); err != 0 {
			return -int64(err)
		}
	}
	if ip.isDir() && flags&(O_WRONLY|O_RDWR) != 0 {
		k.iput(ip)
		return -int64(EISDIR)
	}

	f := k.ftable.alloc()
	if f == nil {
		k.iput(ip)
		return -int64(ENFILE)
	}
	f.ip = ip
	f.readable = flags&O_WRONLY == 0
	f.writable = flags&(O_WRONLY|O_RDWR) != 0
	if flags&O_TRUNC != 0 && !ip.isDev() {
		k.disk.lock.acquire()
		ip.data = nil
		k.disk.lock.release()
	}

	fd, err := fdalloc(p, f)
	if err != 0 {
		k.fileClose(f)
		return -int64(err)
	}
	return int64(fd)
}

func sysClose(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	p.ofile[argint(p, 0)] = nil
	p.kernel.fileClose(f)
	return 0
}

func sysRead(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	count := argint(p, 2)
	if count < 0 {
		return -int64(EINVAL)
	}
	addr, err := argptr(p, 1, uint64(count))
	if err != 0 {
		return -int64(err)
	}

	buf := make([]byte, count)
	n, err := p.kernel.fileRead(p, f, buf)
	if err != 0 {
		return -int64(err)
	}
	if err := p.pgdir.copyout(addr, buf[:n]); err != 0 {
		return -int64(err)
	}
	return int64(n)
}

func sysWrite(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	count := argint(p, 2)
	if count < 0 {
		return -int64(EINVAL)
	}
	addr, err := argptr(p, 1, uint64(count))
	if err != 0 {
		return -int64(err)
	}

	buf := make([]byte, count)
	if err := p.pgdir.copyin(buf, addr); err != 0 {
		return -int64(err)
	}
	n, err := p.kernel.fileWrite(p, f, buf)
	if err != 0 {
		return -int64(err)
	}
	return int64(n)
}

func sysWritev(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	iov := argaddr(p, 1)
	iovcnt := argint(p, 2)
	if iovcnt < 0 || iovcnt > MAXARG {
		return -int64(EINVAL)
	}

	var total int64
	for i := int64(0); i < iovcnt; i++ {
		base, err := fetchint(p, iov+16*uint64(i))
		if err != 0 {
			return -int64(err)
		}
		length, err := fetchint(p, iov+16*uint64(i)+8)
		if err != 0 {
			return -int64(err)
		}
		if length == 0 {
			continue
		}
		if length > p.sz || base >= p.sz || base+length > p.sz {
			return -int64(EFAULT)
		}
		buf := make([]byte, length)
		if err := p.pgdir.copyin(buf, base); err != 0 {
			return -int64(err)
		}
		n, err := p.kernel.fileWrite(p, f, buf)
		if err != 0 {
			if total > 0 {
				break
			}
			return -int64(err)
		}
		total += int64(n)
		if n < len(buf) {
			break
		}
	}
	return total
}

func sysDup(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	fd, err := fdalloc(p, f)
	if err != 0 {
		return -int64(err)
	}
	p.kernel.ftable.dup(f)
	return int64(fd)
}

func sysChdir(p *Proc) int64 {
	path, err := argstr(p, 0)
	if err != 0 {
		return -int64(err)
	}
	k := p.kernel
	ip, err := k.namei(p, path)
	if err != 0 {
		return -int64(err)
	}
	if !ip.isDir() {
		k.iput(ip)
		return -int64(ENOTDIR)
	}
	k.iput(p.cwd)
	p.cwd = ip
	return 0
}

func sysFstat(p *Proc) int64 {
	f, err := argfd(p, 0)
	if err != 0 {
		return -int64(err)
	}
	addr, err := argptr(p, 1, statSize)
	if err != 0 {
		return -int64(err)
	}
	var st stat
	p.kernel.statInode(f.ip, &st)
	if err := p.pgdir.copyout(addr, encodeStat(&st)); err != 0 {
		return -int64(err)
	}
	return 0
}

func sysFstatat(p *Proc) int64 {
	if err := argdirfd(p, 0); err != 0 {
		return -int64(err)
	}
	path, err := argstr(p, 1)
	if err != 0 {
		return -int64(err)
	}
	addr, err := argptr(p, 2, statSize)
	if err != 0 {
		return -int64(err)
	}

	k := p.kernel
	ip, err := k.namei(p, path)
	if err != 0 {
		return -int64(err)
	}
	var st stat
	k.statInode(ip, &st)
	k.iput(ip)
	if err := p.pgdir.copyout(addr, encodeStat(&st)); err != 0 {
		return -int64(err)
	}
	return 0
}

func sysMkdirat(p *Proc) int64 {
	if err := argdirfd(p, 0); err != 0 {
		return -int64(err)
	}
	path, err := argstr(p, 1)
	if err != 0 {
		return -int64(err)
	}
	ip, err := p.kernel.maknode(p, path, S_IFDIR|0o755, 0, 0)
	if err != 0 {
		return -int64(err)
	}
	p.kernel.iput(ip)
	return 0
}

func sysMknodat(p *Proc) int64 {
	if err := argdirfd(p, 0); err != 0 {
		return -int64(err)
	}
	path, err := argstr(p, 1)
	if err != 0 {
		return -int64(err)
	}
	mode := argint(p, 2)
	dev := argint(p, 3)

	ip, err := p.kernel.maknode(p, path, uint16(mode), uint8(dev>>8), uint8(dev))
	if err != 0 {
		return -int64(err)
	}
	p.kernel.iput(ip)
	return 0
}

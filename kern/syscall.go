// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import "encoding/binary"

// trapframe is the full register snapshot captured when control enters the
// kernel from user execution, and restored on the way back: x0..x30 plus
// the user stack pointer, saved program status, and the user pc.
type trapframe struct {
	X    [31]uint64
	SP   uint64 // sp_el0
	SPSR uint64 // spsr_el1
	ELR  uint64 // elr_el1
}

// System call numbers, arm64 numbering. The number rides in x8; arguments
// ride in x1..x4; the result comes back in x0.
const (
	SYS_dup             = 23
	SYS_ioctl           = 29
	SYS_mknodat         = 33
	SYS_mkdirat         = 34
	SYS_chdir           = 49
	SYS_openat          = 56
	SYS_close           = 57
	SYS_read            = 63
	SYS_write           = 64
	SYS_writev          = 66
	SYS_newfstatat      = 79
	SYS_fstat           = 80
	SYS_exit            = 93
	SYS_exit_group      = 94
	SYS_set_tid_address = 96
	SYS_sched_yield     = 124
	SYS_rt_sigprocmask  = 135
	SYS_gettid          = 178
	SYS_brk             = 214
	SYS_clone           = 220
	SYS_execve          = 221
	SYS_wait4           = 260
)

const maxSyscall = 512

// sysent is the jump table from syscall number to handler. Handlers take no
// arguments; each pulls what it needs through the argument layer below.
var sysent [maxSyscall]func(*Proc) int64

func init() {
	sysent[SYS_dup] = sysDup
	sysent[SYS_ioctl] = sysIoctl
	sysent[SYS_mknodat] = sysMknodat
	sysent[SYS_mkdirat] = sysMkdirat
	sysent[SYS_chdir] = sysChdir
	sysent[SYS_openat] = sysOpenat
	sysent[SYS_close] = sysClose
	sysent[SYS_read] = sysRead
	sysent[SYS_write] = sysWrite
	sysent[SYS_writev] = sysWritev
	sysent[SYS_newfstatat] = sysFstatat
	sysent[SYS_fstat] = sysFstat
	sysent[SYS_exit] = sysExit
	sysent[SYS_exit_group] = sysExit
	sysent[SYS_set_tid_address] = sysGettid
	sysent[SYS_sched_yield] = sysYield
	sysent[SYS_rt_sigprocmask] = sysSigprocmask
	sysent[SYS_gettid] = sysGettid
	sysent[SYS_brk] = sysBrk
	sysent[SYS_clone] = sysClone
	sysent[SYS_execve] = sysExecve
	sysent[SYS_wait4] = sysWait4
}

// syscall dispatches the system call named by x8, storing the result in x0.
// Unknown or out-of-range numbers are rejected with ENOSYS rather than
// wedging the core.
func (k *Kernel) syscall(p *Proc) {
	num := p.tf.X[8]
	if num >= maxSyscall || sysent[num] == nil {
		k.slog.Warn("unknown syscall", "num", num, "pid", p.pid)
		r := -int64(ENOSYS)
		p.tf.X[0] = uint64(r)
		return
	}
	k.slog.Trace("syscall", "num", num, "pid", p.pid)
	p.tf.X[0] = uint64(sysent[num](p))
}

/*
 * The argument layer. Every handler pulls arguments through these; they
 * validate against the calling process's address-space bounds and never
 * hand back partially validated data.
 */

// argraw returns the nth system call argument register.
func argraw(p *Proc, n int) uint64 {
	if n > 3 {
		panic("argraw: too many syscall arguments")
	}
	return p.tf.X[1+n]
}

// argint fetches the nth argument as an integer.
func argint(p *Proc, n int) int64 {
	return int64(argraw(p, n))
}

// argaddr fetches the nth argument as an address, unchecked; the checks
// happen where the address is dereferenced.
func argaddr(p *Proc, n int) uint64 {
	return argraw(p, n)
}

// argptr fetches the nth argument as a pointer to size bytes and checks
// that the whole block lies inside the process's address space.
func argptr(p *Proc, n int, size uint64) (uint64, Errno) {
	addr := argraw(p, n)
	if addr >= p.sz || addr+size > p.sz {
		return 0, EFAULT
	}
	return addr, 0
}

// argstr fetches the nth argument as a string pointer and reads the
// NUL-terminated string it names.
func argstr(p *Proc, n int) (string, Errno) {
	return fetchstr(p, argraw(p, n))
}

// fetchint reads the 64-bit word at addr in the process's address space.
func fetchint(p *Proc, addr uint64) (uint64, Errno) {
	if addr >= p.sz || addr+8 > p.sz {
		return 0, EFAULT
	}
	var buf [8]byte
	if err := p.pgdir.copyin(buf[:], addr); err != 0 {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), 0
}

// fetchstr reads the NUL-terminated string at addr, failing if no NUL
// appears before the end of the address space.
func fetchstr(p *Proc, addr uint64) (string, Errno) {
	if addr >= p.sz {
		return "", EFAULT
	}
	buf := make([]byte, p.sz-addr)
	if err := p.pgdir.copyin(buf, addr); err != 0 {
		return "", err
	}
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i]), 0
		}
	}
	return "", EFAULT
}

// statSize is the wire size of the stat record copied out by fstat.
const statSize = 32

func encodeStat(st *stat) []byte {
	buf := make([]byte, statSize)
	binary.LittleEndian.PutUint64(buf[0:], st.Dev)
	binary.LittleEndian.PutUint64(buf[8:], st.Ino)
	binary.LittleEndian.PutUint32(buf[16:], st.Mode)
	binary.LittleEndian.PutUint32(buf[20:], st.Nlink)
	binary.LittleEndian.PutUint64(buf[24:], st.Size)
	return buf
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"encoding/binary"
	"strings"
)

// A Program is a simulated user image: a sequence of steps indexed by the
// trapframe's ELR, which plays the role of the user program counter. Each
// step runs to completion in "user mode" and enters the kernel only through
// Trap. Because a clone'd child receives a copy of the parent's trapframe,
// it resumes at the same ELR the parent will continue from — a clone issued
// inside step n returns the child pid to the parent, which finishes step n,
// while the child starts at step n+1 seeing 0 in x0.
type Program []func(p *Proc)

// Register installs a program at path, standing in for an on-disk binary.
// The path must also exist in the disk archive for execve to find it.
func (k *Kernel) Register(path string, steps ...func(p *Proc)) {
	k.progs[path] = Program(steps)
}

// Trap enters the kernel from user mode: syscall number in x8, up to four
// arguments in x1..x4, result in x0.
func (p *Proc) Trap(num uint64, args ...uint64) int64 {
	if len(args) > 4 {
		panic("Trap: too many syscall arguments")
	}
	p.tf.X[8] = num
	for i := range p.tf.X[1:5] {
		p.tf.X[1+i] = 0
	}
	copy(p.tf.X[1:5], args)
	p.kernel.syscall(p)
	return int64(p.tf.X[0])
}

// Ustr copies s, NUL-terminated, into the process's memory at addr and
// returns addr, so a step can build string arguments for Trap.
func (p *Proc) Ustr(addr uint64, s string) uint64 {
	if err := p.pgdir.copyout(addr, append([]byte(s), 0)); err != 0 {
		panic("Ustr: " + err.Error())
	}
	return addr
}

// usertrapret completes the return to user execution: run the step the user
// pc names, forever. An image that runs off its end exits cleanly; a killed
// process exits at the next return instead of resuming.
func (k *Kernel) usertrapret(p *Proc) {
	for {
		if p.isKilled() {
			k.exit(p, -1)
		}
		pc := p.tf.ELR
		if pc >= uint64(len(p.prog)) {
			k.exit(p, 0)
		}
		p.tf.ELR = pc + 1
		p.prog[pc](p)
	}
}

// exec replaces the current image with the program registered at path,
// resetting the address space and starting the new image at its beginning.
// Returns the argument count in x0, like the images expect.
func (k *Kernel) exec(p *Proc, path string, argv []string) int64 {
	ip, err := k.namei(p, path)
	if err != 0 {
		return -int64(err)
	}
	k.iput(ip)

	prog, ok := k.progs[path]
	if !ok {
		return -int64(ENOEXEC)
	}

	pgdir := k.pgdirInit()
	if pgdir == nil {
		return -int64(ENOMEM)
	}
	if _, err := k.uvmAlloc(pgdir, 0, PGSIZE); err != 0 {
		k.vmFree(pgdir)
		return -int64(err)
	}

	// Lay the argument strings out at the top of the new stack, then the
	// NULL-terminated pointer array beneath them. The array address goes in
	// x1 and doubles as the initial stack pointer.
	sp := uint64(PGSIZE)
	addrs := make([]uint64, len(argv)+1)
	for i := len(argv) - 1; i >= 0; i-- {
		sp -= uint64(len(argv[i])) + 1
		if err := pgdir.copyout(sp, append([]byte(argv[i]), 0)); err != 0 {
			k.vmFree(pgdir)
			return -int64(err)
		}
		addrs[i] = sp
	}
	sp &^= 7
	sp -= uint64(len(addrs)) * 8
	uargv := make([]byte, len(addrs)*8)
	for i, a := range addrs {
		binary.LittleEndian.PutUint64(uargv[i*8:], a)
	}
	if err := pgdir.copyout(sp, uargv); err != 0 {
		k.vmFree(pgdir)
		return -int64(err)
	}

	old := p.pgdir
	p.pgdir = pgdir
	p.sz = PGSIZE
	p.prog = prog
	*p.tf = trapframe{SP: sp}
	p.tf.X[1] = sp
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		name = path[i+1:]
	}
	// Dump snapshots names under the proc lock.
	p.lock.acquire()
	p.name = name
	p.lock.release()
	k.vmFree(old)
	k.uvmSwitch(p.cpu, p)

	k.plog.Debug("exec", "pid", p.pid, "path", path)
	return int64(len(argv))
}

// initProgram is the default first process: open the console twice (fds 0
// and 1), announce the boot, then loop reaping children and echoing console
// input. It must never exit.
var initProgram = []func(p *Proc){
	func(p *Proc) {
		cons := p.Ustr(64, "/dev/console")
		if fd := p.Trap(SYS_openat, uint64mask(AT_FDCWD), cons, O_RDWR); fd != 0 {
			panic("init: cannot open console")
		}
		p.Trap(SYS_dup, 0)
		msg := "xv8: init started\n"
		buf := p.Ustr(128, msg)
		p.Trap(SYS_write, 1, buf, uint64(len(msg)))
	},
	func(p *Proc) {
		for {
			// Reap any orphans handed to us.
			for p.Trap(SYS_wait4, uint64mask(-1), 0, 0, 0) > 0 {
			}
			n := p.Trap(SYS_read, 0, 256, 128)
			if n <= 0 {
				p.Trap(SYS_sched_yield)
				continue
			}
			p.Trap(SYS_write, 1, 256, uint64(n))
		}
	},
}

// uint64mask widens a negative argument the way the user ABI would.
func uint64mask(n int64) uint64 {
	return uint64(n)
}

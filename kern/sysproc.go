// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

// cloneSIGCHLD is the one supported clone flag combination: a plain fork
// with the parent notified on exit.
const cloneSIGCHLD = 17

func sysClone(p *Proc) int64 {
	flags := argint(p, 0)
	// The child stack argument is ignored: the child gets a copy of the
	// parent's address space, not a shared one.
	if flags != cloneSIGCHLD {
		p.kernel.slog.Warn("clone: unsupported flags", "flags", flags, "pid", p.pid)
		return -int64(EINVAL)
	}
	pid, err := p.kernel.fork(p)
	if err != 0 {
		return -int64(err)
	}
	return int64(pid)
}

func sysWait4(p *Proc) int64 {
	pid := argint(p, 0)
	wstatus := argaddr(p, 1)
	opts := argint(p, 2)
	rusage := argaddr(p, 3)

	// Only the degenerate form: wait for any child, no options.
	if pid != -1 || wstatus != 0 || opts != 0 || rusage != 0 {
		p.kernel.slog.Warn("wait4: unsupported arguments",
			"pid", pid, "wstatus", wstatus, "opts", opts, "rusage", rusage)
		return -int64(EINVAL)
	}

	cpid, err := p.kernel.wait(p)
	if err != 0 {
		return -int64(err)
	}
	return int64(cpid)
}

func sysExit(p *Proc) int64 {
	p.kernel.exit(p, int(argint(p, 0)))
	panic("sysExit: exit returned")
}

func sysYield(p *Proc) int64 {
	p.yield()
	return 0
}

func sysBrk(p *Proc) int64 {
	n := argint(p, 0)
	addr := p.sz
	if err := p.kernel.growproc(p, n); err != 0 {
		return -int64(err)
	}
	return int64(addr)
}

func sysGettid(p *Proc) int64 {
	return int64(p.pid)
}

func sysIoctl(p *Proc) int64 {
	return 0
}

func sysSigprocmask(p *Proc) int64 {
	return 0
}

func sysExecve(p *Proc) int64 {
	path, err := argstr(p, 0)
	if err != 0 {
		return -int64(err)
	}
	uargv := argaddr(p, 1)

	var argv []string
	for i := 0; uargv != 0; i++ {
		if i >= MAXARG {
			return -int64(E2BIG)
		}
		uarg, err := fetchint(p, uargv+8*uint64(i))
		if err != 0 {
			return -int64(err)
		}
		if uarg == 0 {
			break
		}
		s, err := fetchstr(p, uarg)
		if err != 0 {
			return -int64(err)
		}
		argv = append(argv, s)
	}
	return p.kernel.exec(p, path, argv)
}

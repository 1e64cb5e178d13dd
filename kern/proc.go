// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/hashicorp/go-hclog"
)

// Procstate is a process's place in the lifecycle state machine.
type Procstate int32

const (
	Unused   Procstate = iota // free table slot
	Embryo                    // allocated, not yet runnable
	Runnable                  // eligible for scheduling
	Running                   // executing on some CPU
	Sleeping                  // parked on a channel
	Zombie                    // exited, waiting for the parent's wait
)

func (s Procstate) String() string {
	switch s {
	case Unused:
		return "UNUSED"
	case Embryo:
		return "EMBRYO"
	case Runnable:
		return "RUNNABLE"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Zombie:
		return "ZOMBIE"
	}
	return fmt.Sprintf("Procstate(%d)", int32(s))
}

// CPU is one simulated core: the process it is running, the scheduler
// loop's own saved context, and the installed address space.
type CPU struct {
	id        int
	proc      *Proc    // process running on this cpu, or nil
	scheduler *context // swtch here to enter the scheduler loop
	pgdir     *pagetable
}

// Proc is one process table entry.
type Proc struct {
	lock spinlock

	// lock must be held when using these:
	state  Procstate
	wchan  any // sleep channel; nil unless SLEEPING
	killed bool
	xstate int // exit status, read by the parent's wait
	pid    int

	// waitLock must be held when using this:
	parent *Proc

	// these are private to the process, so lock need not be held:
	kstack  []byte
	sz      uint64 // size of process memory in bytes
	pgdir   *pagetable
	tf      *trapframe
	context *context
	cpu     *CPU // set by the scheduler while running
	cwd     *inode
	ofile   [NOFILE]*file
	name    string
	prog    Program
	kernel  *Kernel
}

// Pid returns the process identifier.
func (p *Proc) Pid() int {
	p.lock.acquire()
	defer p.lock.release()
	return p.pid
}

// Config carries the boot parameters. The zero value boots a default
// machine: NCPU cores, NPROC table entries, NPAGE pages, the embedded disk
// archive, console output to stdout, no logging.
type Config struct {
	NCPU  int
	NPROC int
	NPAGE int
	Disk  []byte
	Out   io.Writer // console output
	Log   hclog.Logger
}

// Kernel is one simulated machine.
type Kernel struct {
	log  hclog.Logger
	plog hclog.Logger // proc subsystem
	slog hclog.Logger // syscall subsystem
	flog hclog.Logger // fs subsystem

	cpus   []*CPU
	ptable []Proc // fixed at New; one lock per entry, no table lock

	initproc *Proc

	pidLock  spinlock
	nextpid  int
	waitLock spinlock

	kmem   *kmem
	disk   *disk
	ftable *ftable
	cons   *console
	devsw  [NDEV]devsw
	progs  map[string]Program

	ranInit atomic.Bool // forkret's one-shot latch
	halted  atomic.Bool
	wg      sync.WaitGroup
}

// New builds a machine but does not start it; Start boots the first
// process and the per-CPU scheduler loops.
func New(cfg Config) (*Kernel, error) {
	if cfg.NCPU == 0 {
		cfg.NCPU = NCPU
	}
	if cfg.NPROC == 0 {
		cfg.NPROC = NPROC
	}
	if cfg.NPAGE == 0 {
		cfg.NPAGE = NPAGE
	}
	if cfg.Disk == nil {
		cfg.Disk = FS
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Log == nil {
		cfg.Log = hclog.NewNullLogger()
	}

	k := &Kernel{
		log:     cfg.Log,
		nextpid: 1,
		kmem:    newKmem(cfg.NPAGE),
		ftable:  newFtable(),
		cons:    newConsole(cfg.Out),
		progs:   make(map[string]Program),
	}
	k.plog = cfg.Log.Named("proc")
	k.slog = cfg.Log.Named("syscall")
	k.flog = cfg.Log.Named("fs")

	d, err := newDisk(cfg.Disk)
	if err != nil {
		return nil, err
	}
	k.disk = d

	k.pidLock.init("pid")
	k.waitLock.init("wait")
	k.ptable = make([]Proc, cfg.NPROC)
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.init("proc")
		p.kernel = k
	}
	for i := 0; i < cfg.NCPU; i++ {
		k.cpus = append(k.cpus, &CPU{id: i, scheduler: newContext()})
	}

	k.devsw[CONSOLE] = devsw{read: k.consoleRead, write: k.consoleWrite}
	k.Register("/bin/init", initProgram...)
	k.plog.Debug("machine built", "ncpu", cfg.NCPU, "nproc", cfg.NPROC)
	return k, nil
}

// Start sets up the first user process and launches a scheduler loop on
// every CPU. It returns once the machine is running.
func (k *Kernel) Start() {
	k.userInit()
	for _, c := range k.cpus {
		c := c
		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			k.scheduler(c)
		}()
	}
}

// Shutdown stops the scheduler loops. Processes parked in the kernel are
// abandoned; the machine cannot be restarted.
func (k *Kernel) Shutdown() {
	k.halted.Store(true)
	k.wg.Wait()
}

func (k *Kernel) nextPid() int {
	k.pidLock.acquire()
	pid := k.nextpid
	k.nextpid++
	k.pidLock.release()
	return pid
}

// allocProc looks through the table for an UNUSED entry. If found, it
// assigns a pid, allocates a kernel stack with the trapframe reserved at the
// top, arranges for the first resumption to begin at forkret, and returns
// the entry in EMBRYO state with its lock held. Returns nil if the table is
// full or the stack allocation fails; a failed entry is rolled back to
// UNUSED before returning.
func (k *Kernel) allocProc() *Proc {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		if p.state != Unused {
			p.lock.release()
			continue
		}

		p.pid = k.nextPid()

		if p.kstack = k.kmem.kalloc(); p.kstack == nil {
			k.freeProc(p)
			p.lock.release()
			return nil
		}

		// Leave room for the trapframe at the top of the stack.
		p.tf = (*trapframe)(unsafe.Pointer(uintptr(unsafe.Pointer(&p.kstack[0])) + KSTACKSIZE - unsafe.Sizeof(trapframe{})))
		*p.tf = trapframe{}

		// The new context's first resumption begins at forkret.
		p.context = newContext()
		go p.kthread(p.context)

		p.state = Embryo
		k.plog.Debug("proc allocated", "pid", p.pid)
		return p
	}
	return nil
}

// kthread is the process's kernel thread of control. It parks until the
// scheduler's first swtch to the new context, then runs forkret.
func (p *Proc) kthread(ctx *context) {
	if _, ok := <-ctx.resume; !ok {
		return // reclaimed before ever running
	}
	p.kernel.forkret(p)
	panic("kthread: returned from user image")
}

// freeProc returns a table entry to the free state, releasing the kernel
// stack and address space. p.lock must be held. Only the parent may do this,
// after observing ZOMBIE.
func (k *Kernel) freeProc(p *Proc) {
	p.wchan = nil
	p.killed = false
	p.xstate = 0
	p.pid = 0
	p.parent = nil
	if p.kstack != nil {
		k.kmem.kfree(p.kstack)
		p.kstack = nil
	}
	p.sz = 0
	if p.pgdir != nil {
		k.vmFree(p.pgdir)
		p.pgdir = nil
	}
	p.tf = nil
	p.name = ""
	p.prog = nil
	p.cpu = nil
	if p.context != nil {
		close(p.context.resume)
		p.context = nil
	}
	p.state = Unused
}

// userInit sets up the first user process (used once, at boot).
func (k *Kernel) userInit() {
	p := k.allocProc()
	if p == nil {
		panic("userInit: no process")
	}
	k.initproc = p

	if p.pgdir = k.pgdirInit(); p.pgdir == nil {
		panic("userInit: no page table")
	}
	if _, err := k.uvmAlloc(p.pgdir, 0, PGSIZE); err != 0 {
		panic("userInit: no memory")
	}
	p.sz = PGSIZE

	// First "return" to user space starts the image at its beginning.
	*p.tf = trapframe{SP: PGSIZE}

	p.prog = k.progs["/bin/init"]
	p.name = "initproc"
	p.state = Runnable
	ip, err := k.namei(p, "/")
	if err != 0 {
		panic("userInit: no root directory")
	}
	p.cwd = ip
	p.lock.release()
	k.plog.Info("init process ready", "pid", p.pid)
}

// scheduler runs forever on one CPU. It loops over the table looking for a
// RUNNABLE process, switches to it, and picks up the scan when the process
// switches back. No policy beyond scan order; an empty scan idles.
func (k *Kernel) scheduler(c *CPU) {
	c.proc = nil
	for !k.halted.Load() {
		for i := range k.ptable {
			p := &k.ptable[i]
			p.lock.acquire()
			if p.state != Runnable {
				p.lock.release()
				continue
			}

			// Switch to the chosen process. It is the process's job
			// to release its lock and then reacquire it before
			// jumping back to us.
			c.proc = p
			p.cpu = c
			k.uvmSwitch(c, p)
			p.state = Running

			swtch(c.scheduler, p.context)

			// Process is done running for now. It changed its state
			// before coming back.
			c.proc = nil
			p.cpu = nil
			p.lock.release()
		}
		runtime.Gosched()
	}
}

// sched enters the scheduler loop. The caller must hold p.lock and must
// already have changed p.state; violating either is a corrupted core.
func (p *Proc) sched() {
	if !p.lock.holding() {
		panic("sched: proc lock not held")
	}
	if p.state == Running {
		panic("sched: process running")
	}
	swtch(p.context, p.cpu.scheduler)
}

// yield gives up the CPU for one scheduling round.
func (p *Proc) yield() {
	p.lock.acquire()
	p.state = Runnable
	p.sched()
	p.lock.release()
}

// forkret is a new process's first scheduling target. The first process
// through runs the initialization that needs process context, exactly once
// machine-wide, then control passes to user execution.
func (k *Kernel) forkret(p *Proc) {
	// Still holding p.lock from the scheduler.
	p.lock.release()

	if k.ranInit.CompareAndSwap(false, true) {
		// Parts of filesystem setup may sleep, so they cannot run
		// at boot; they run here instead.
		k.fsinit()
	}

	k.usertrapret(p)
}

// fork creates a new process copying p. The child resumes user execution at
// the exact point p trapped, with x0 forced to zero. Failure rolls back
// every partially acquired resource.
func (k *Kernel) fork(p *Proc) (int, Errno) {
	np := k.allocProc()
	if np == nil {
		return 0, EAGAIN
	}

	if np.pgdir = k.pgdirInit(); np.pgdir == nil {
		k.freeProc(np)
		np.lock.release()
		return 0, ENOMEM
	}
	if err := k.uvmCopy(p.pgdir, np.pgdir, p.sz); err != 0 {
		k.freeProc(np)
		np.lock.release()
		return 0, err
	}
	np.sz = p.sz

	// Copy saved user registers; fork returns 0 in the child.
	*np.tf = *p.tf
	np.tf.X[0] = 0

	for i, f := range p.ofile {
		if f != nil {
			np.ofile[i] = k.ftable.dup(f)
		}
	}
	np.cwd = k.idup(p.cwd)

	np.name = p.name
	np.prog = p.prog
	pid := np.pid
	np.lock.release()

	k.waitLock.acquire()
	np.parent = p
	k.waitLock.release()

	np.lock.acquire()
	np.state = Runnable
	np.lock.release()

	k.plog.Debug("fork", "parent", p.pid, "child", pid)
	return pid, 0
}

// reparent passes p's abandoned children to init. Caller must hold waitLock.
func (k *Kernel) reparent(p *Proc) {
	for i := range k.ptable {
		q := &k.ptable[i]
		if q.parent == p {
			q.parent = k.initproc
			k.wakeup(k.initproc)
		}
	}
}

// exit terminates the current process; it does not return. The process
// stays a zombie until the parent's wait collects its status.
func (k *Kernel) exit(p *Proc, status int) {
	if p == k.initproc {
		panic("exit: init exiting")
	}

	for fd, f := range p.ofile {
		if f != nil {
			k.fileClose(f)
			p.ofile[fd] = nil
		}
	}
	k.iput(p.cwd)
	p.cwd = nil

	// waitLock covers the whole reparent+zombify step so that a waiter
	// either sees the zombie in its next scan or is woken here.
	k.waitLock.acquire()

	k.reparent(p)
	k.wakeup(p.parent)

	p.lock.acquire()
	p.xstate = status
	p.state = Zombie

	k.waitLock.release()

	k.plog.Debug("exit", "pid", p.pid, "status", status)

	// Jump into the scheduler, never to return.
	p.sched()
	panic("exit: zombie returned")
}

// wait waits for a child of p to exit and returns its pid, reclaiming the
// child's table entry. Returns ECHILD if p has no children or was killed.
func (k *Kernel) wait(p *Proc) (int, Errno) {
	k.waitLock.acquire()
	for {
		havekids := false
		for i := range k.ptable {
			np := &k.ptable[i]
			if np.parent != p {
				continue
			}
			np.lock.acquire()
			havekids = true
			if np.state == Zombie {
				pid := np.pid
				k.freeProc(np)
				np.lock.release()
				k.waitLock.release()
				return pid, 0
			}
			np.lock.release()
		}

		// No point waiting without children.
		if !havekids || p.isKilled() {
			k.waitLock.release()
			return 0, ECHILD
		}

		// Wait for a child to exit.
		p.sleep(p, &k.waitLock)
	}
}

// growproc grows or shrinks the current process's memory by n bytes.
func (k *Kernel) growproc(p *Proc, n int64) Errno {
	sz := p.sz
	if n > 0 {
		var err Errno
		if sz, err = k.uvmAlloc(p.pgdir, sz, sz+uint64(n)); err != 0 {
			return err
		}
	} else if n < 0 {
		if uint64(-n) > sz {
			return EINVAL
		}
		sz = k.uvmDealloc(p.pgdir, sz, sz-uint64(-n))
	}
	p.sz = sz
	k.uvmSwitch(p.cpu, p)
	return 0
}

// Kill marks the process with the given pid. The victim is not preempted;
// it exits when it next crosses a cooperative check. A sleeping victim is
// made runnable so the check happens soon.
func (k *Kernel) Kill(pid int) Errno {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		if p.pid == pid && p.state != Unused {
			p.killed = true
			if p.state == Sleeping {
				p.wchan = nil
				p.state = Runnable
			}
			p.lock.release()
			return 0
		}
		p.lock.release()
	}
	return ESRCH
}

func (p *Proc) isKilled() bool {
	p.lock.acquire()
	defer p.lock.release()
	return p.killed
}

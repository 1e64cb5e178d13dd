// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

/*
 * Give up the processor until a wakeup occurs on ch.
 * Channels are matched by identity, not meaning; by convention they are
 * pointers to whatever object guards the awaited condition.
 */

// sleep atomically releases lk and parks p on ch, reacquiring lk when
// awakened. The caller must hold lk, which protects the condition it is
// waiting on, and must recheck that condition on return.
func (p *Proc) sleep(ch any, lk *spinlock) {
	// Must hold p.lock in order to change p.state and then call sched.
	// Once p.lock is held, no wakeup can be missed (wakeup locks p.lock),
	// so it is safe to let go of lk.
	p.lock.acquire()
	lk.release()

	// Go to sleep.
	p.wchan = ch
	p.state = Sleeping
	p.sched()

	// Tidy up.
	p.wchan = nil

	// Reacquire the original lock.
	p.lock.release()
	lk.acquire()
}

// wakeup makes every process sleeping on ch runnable. Must be called
// without holding any process's lock, and while holding the lock the
// corresponding sleepers passed to sleep, so the two rendezvous correctly.
func (k *Kernel) wakeup(ch any) {
	for i := range k.ptable {
		p := &k.ptable[i]
		p.lock.acquire()
		if p.state == Sleeping && p.wchan == ch {
			p.wchan = nil
			p.state = Runnable
		}
		p.lock.release()
	}
}

// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

/*
 * tunable variables
 */
const (
	NPROC  = 64  /* max number of processes */
	NCPU   = 4   /* number of simulated cores */
	NOFILE = 16  /* max open files per process */
	NFILE  = 100 /* open files per system */
	NDEV   = 10  /* major device numbers */
	NPAGE  = 512 /* pages of simulated physical memory */
	MAXARG = 32  /* max exec arguments */
)

/*
 * fundamental constants
 */
const (
	PGSIZE     = 4096
	KSTACKSIZE = PGSIZE

	CONSOLE = 1 /* major device number of the console */

	AT_FDCWD = -100
)

/* open flags, Linux numbering */
const (
	O_RDONLY = 0o0
	O_WRONLY = 0o1
	O_RDWR   = 0o2
	O_CREATE = 0o100
	O_TRUNC  = 0o1000
)

/* inode type bits, Linux numbering */
const (
	S_IFMT  = 0o170000
	S_IFREG = 0o100000
	S_IFDIR = 0o040000
	S_IFCHR = 0o020000
)

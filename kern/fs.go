// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/tools/txtar"
)

//go:embed disk.txtar
var FS []byte

// The inode cache is an external collaborator of the process core: the core
// touches it only through namei, idup, iput, readi, writei and maknode.
// There is no on-disk form; the whole filesystem lives in memory, built from
// a txtar archive at boot. A txtar file name is a path optionally followed
// by k=v attributes: mode (octal), major, minor.

type inode struct {
	inum  uint16
	mode  uint16
	nlink int
	count int // in-core reference count
	major uint8
	minor uint8
	data  []byte
	ents  map[string]*inode // directories only
}

func (ip *inode) isDir() bool { return ip.mode&S_IFMT == S_IFDIR }
func (ip *inode) isDev() bool { return ip.mode&S_IFMT == S_IFCHR }

type disk struct {
	lock     spinlock
	root     *inode
	nextInum uint16
	ninode   int
}

func newDisk(archive []byte) (*disk, error) {
	d := new(disk)
	d.lock.init("disk")
	d.nextInum = 1
	d.root = d.mkinode(S_IFDIR | 0o555)
	d.root.ents["."] = d.root
	d.root.ents[".."] = d.root

	ar := txtar.Parse(archive)
	for _, f := range ar.Files {
		fields := strings.Fields(f.Name)
		if len(fields) == 0 {
			continue
		}
		name := fields[0]
		mode := uint16(S_IFREG | 0o644)
		var major, minor uint8
		for _, arg := range fields[1:] {
			key, val, ok := strings.Cut(arg, "=")
			if !ok {
				return nil, fmt.Errorf("invalid txtar k=v: %s", arg)
			}
			switch key {
			case "mode":
				m, err := strconv.ParseUint(val, 8, 16)
				if err != nil {
					return nil, fmt.Errorf("invalid txtar mode: %s", arg)
				}
				mode = uint16(m)
			case "major":
				m, err := strconv.ParseUint(val, 10, 8)
				if err != nil {
					return nil, fmt.Errorf("invalid txtar major: %s", arg)
				}
				major = uint8(m)
			case "minor":
				m, err := strconv.ParseUint(val, 10, 8)
				if err != nil {
					return nil, fmt.Errorf("invalid txtar minor: %s", arg)
				}
				minor = uint8(m)
			default:
				return nil, fmt.Errorf("unknown txtar attribute: %s", arg)
			}
		}
		ip, err := d.addPath(name, mode)
		if err != nil {
			return nil, err
		}
		ip.major = major
		ip.minor = minor
		if !ip.isDir() && !ip.isDev() {
			ip.data = f.Data
		}
	}
	return d, nil
}

func (d *disk) mkinode(mode uint16) *inode {
	ip := &inode{inum: d.nextInum, mode: mode, nlink: 1}
	d.nextInum++
	d.ninode++
	if ip.isDir() {
		ip.ents = make(map[string]*inode)
	}
	return ip
}

// addPath creates the inode at path, creating parent directories as needed.
func (d *disk) addPath(path string, mode uint16) (*inode, error) {
	dp := d.root
	elems := strings.Split(strings.Trim(path, "/"), "/")
	for i, elem := range elems {
		if elem == "" {
			return dp, nil
		}
		last := i == len(elems)-1
		if ip, ok := dp.ents[elem]; ok {
			if last && !ip.isDir() {
				return nil, fmt.Errorf("duplicate txtar path: %s", path)
			}
			dp = ip
			continue
		}
		m := mode
		if !last {
			m = S_IFDIR | 0o755
		}
		ip := d.mkinode(m)
		if ip.isDir() {
			ip.ents["."] = ip
			ip.ents[".."] = dp
		}
		dp.ents[elem] = ip
		dp = ip
	}
	return dp, nil
}

// namei resolves path to a referenced inode. Relative paths start at p.cwd.
func (k *Kernel) namei(p *Proc, path string) (*inode, Errno) {
	d := k.disk
	d.lock.acquire()
	defer d.lock.release()

	ip := d.root
	if !strings.HasPrefix(path, "/") && p != nil && p.cwd != nil {
		ip = p.cwd
	}
	for _, elem := range strings.Split(path, "/") {
		if elem == "" {
			continue
		}
		if !ip.isDir() {
			return nil, ENOTDIR
		}
		next, ok := ip.ents[elem]
		if !ok {
			return nil, ENOENT
		}
		ip = next
	}
	ip.count++
	return ip, 0
}

// idup bumps the in-core reference count on ip.
func (k *Kernel) idup(ip *inode) *inode {
	d := k.disk
	d.lock.acquire()
	if ip.count < 1 {
		panic("idup: no reference")
	}
	ip.count++
	d.lock.release()
	return ip
}

// iput drops one reference. Must be called outside any process-table lock,
// since dropping the last reference of an unlinked inode may do I/O.
func (k *Kernel) iput(ip *inode) {
	if ip == nil {
		return
	}
	d := k.disk
	d.lock.acquire()
	if ip.count < 1 {
		panic("iput: no reference")
	}
	ip.count--
	if ip.count == 0 && ip.nlink == 0 {
		ip.data = nil
		d.ninode--
	}
	d.lock.release()
}

// readi reads up to len(dst) bytes from ip at off.
func (k *Kernel) readi(ip *inode, dst []byte, off uint64) (int, Errno) {
	d := k.disk
	d.lock.acquire()
	defer d.lock.release()
	if off >= uint64(len(ip.data)) {
		return 0, 0
	}
	return copy(dst, ip.data[off:]), 0
}

// writei writes src to ip at off, extending the file as needed.
func (k *Kernel) writei(ip *inode, src []byte, off uint64) (int, Errno) {
	d := k.disk
	d.lock.acquire()
	defer d.lock.release()
	if ip.isDir() {
		return 0, EISDIR
	}
	if end := off + uint64(len(src)); end > uint64(len(ip.data)) {
		grown := make([]byte, end)
		copy(grown, ip.data)
		ip.data = grown
	}
	return copy(ip.data[off:], src), 0
}

// maknode creates a node of the given mode at path. The parent directory
// must exist. Returns the new inode with one reference.
func (k *Kernel) maknode(p *Proc, path string, mode uint16, major, minor uint8) (*inode, Errno) {
	dir, name := splitPath(path)
	dp, err := k.namei(p, dir)
	if err != 0 {
		return nil, err
	}
	defer k.iput(dp)

	d := k.disk
	d.lock.acquire()
	defer d.lock.release()
	if !dp.isDir() {
		return nil, ENOTDIR
	}
	if name == "" || name == "." || name == ".." {
		return nil, EINVAL
	}
	if _, ok := dp.ents[name]; ok {
		return nil, EEXIST
	}
	ip := d.mkinode(mode)
	if ip.isDir() {
		ip.ents["."] = ip
		ip.ents[".."] = dp
	}
	ip.major = major
	ip.minor = minor
	ip.count = 1
	dp.ents[name] = ip
	return ip, 0
}

// size reports the file length; directories report their entry count.
func (k *Kernel) isize(ip *inode) uint64 {
	d := k.disk
	d.lock.acquire()
	defer d.lock.release()
	if ip.isDir() {
		return uint64(len(ip.ents))
	}
	return uint64(len(ip.data))
}

func splitPath(path string) (dir, name string) {
	path = strings.TrimRight(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return ".", path
	}
	if i == 0 {
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

// fsinit runs once kernel-wide, from the first process's first return: the
// pieces of filesystem setup that must run in process context.
func (k *Kernel) fsinit() {
	root, err := k.namei(nil, "/")
	if err != 0 {
		panic("fsinit: no root")
	}
	k.iput(root)
	k.flog.Info("filesystem mounted", "inodes", k.disk.ninode)
}

// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package handle is the open-file table (spec §4.G): the in-memory map
// from descriptor number to (inode, flags, cursor), and the open_refs
// count that gates inode deletion while a descriptor is still live.
package handle

import (
	"sync"

	"github.com/pedrocarlo/agentfs/fs/types"
)

// Flag mirrors the open(2) flags this filesystem recognizes.
type Flag int

const (
	ORDONLY Flag = 0
	OWRONLY Flag = 1 << (iota - 1)
	ORDWR
	OCREAT
	OEXCL
	OTRUNC
	OAPPEND
)

func (f Flag) Has(bit Flag) bool { return f&bit != 0 }

// Writable reports whether this flag set allows write().
func (f Flag) Writable() bool { return f.Has(OWRONLY) || f.Has(ORDWR) }

// Readable reports whether this flag set allows read().
func (f Flag) Readable() bool { return !f.Has(OWRONLY) }

// OpenFile is one entry in the open-file table: a descriptor's view
// onto an inode, entirely in-memory per spec §3.
type OpenFile struct {
	mu     sync.Mutex // serializes operations on this descriptor (spec §5)
	Fd     int
	Ino    types.Ino
	Flags  Flag
	cursor uint64
}

// Lock/Unlock implement the per-descriptor ordering the concurrency
// model requires: operations on one fd are serialized by this mutex.
func (o *OpenFile) Lock()   { o.mu.Lock() }
func (o *OpenFile) Unlock() { o.mu.Unlock() }

// Cursor returns the current read/write position. Must be called with
// the descriptor locked.
func (o *OpenFile) Cursor() uint64 { return o.cursor }

// SetCursor moves the position. Must be called with the descriptor locked.
func (o *OpenFile) SetCursor(pos uint64) { o.cursor = pos }

// Advance moves the cursor forward by n bytes and returns the new value.
func (o *OpenFile) Advance(n uint64) uint64 {
	o.cursor += n
	return o.cursor
}

// Table is the process-wide (per instance) open-file table. The zero
// value is not usable; construct with New.
type Table struct {
	mu       sync.Mutex
	files    map[int]*OpenFile
	nextFd   int
	openRefs map[types.Ino]int
}

func New() *Table {
	return &Table{
		files:    make(map[int]*OpenFile),
		openRefs: make(map[types.Ino]int),
	}
}

// Open allocates the lowest unused descriptor for ino and registers it,
// POSIX-style (spec §4.G).
func (t *Table) Open(ino types.Ino, flags Flag) *OpenFile {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.lowestUnusedFdLocked()
	of := &OpenFile{Fd: fd, Ino: ino, Flags: flags}
	t.files[fd] = of
	t.openRefs[ino]++
	return of
}

func (t *Table) lowestUnusedFdLocked() int {
	fd := 0
	for {
		if _, taken := t.files[fd]; !taken {
			return fd
		}
		fd++
	}
}

// Get returns the OpenFile for fd, or (nil, false) if it is not open —
// the caller should report BadDescriptor.
func (t *Table) Get(fd int) (*OpenFile, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	of, ok := t.files[fd]
	return of, ok
}

// Close removes fd from the table and decrements open_refs for its
// inode. Returns the inode number so the caller can run
// inode.MaybeDelete against it (the caller owns the backing-store
// transaction; this package never touches the database).
func (t *Table) Close(fd int) (ino types.Ino, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	of, ok := t.files[fd]
	if !ok {
		return 0, false
	}
	delete(t.files, fd)
	t.openRefs[of.Ino]--
	if t.openRefs[of.Ino] <= 0 {
		delete(t.openRefs, of.Ino)
	}
	return of.Ino, true
}

// OpenRefs implements inode.RefCounter: the number of live descriptors
// pinning ino open.
func (t *Table) OpenRefs(ino types.Ino) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openRefs[ino]
}

// Len reports how many descriptors are currently open, mostly useful
// for tests and diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.files)
}

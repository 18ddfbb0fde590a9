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

package agentfs

import (
	"context"
	"database/sql"

	"github.com/pedrocarlo/agentfs/fs/handle"
	"github.com/pedrocarlo/agentfs/fs/types"
	"github.com/pedrocarlo/agentfs/internal/logger"
)

// Re-export the open(2) flags so callers don't need to import fs/handle
// directly for the low-level surface.
const (
	ORDONLY = handle.ORDONLY
	OWRONLY = handle.OWRONLY
	ORDWR   = handle.ORDWR
	OCREAT  = handle.OCREAT
	OEXCL   = handle.OEXCL
	OTRUNC  = handle.OTRUNC
	OAPPEND = handle.OAPPEND
)

// Open resolves path and returns a descriptor, creating the file if
// O_CREAT is set and it doesn't exist. Each call is one transaction
// (spec §4.H); the returned descriptor then lives in the open-file
// table until Close.
func (fs *FS) Open(ctx context.Context, path string, flags handle.Flag, mode uint16) (int, error) {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var fd int
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		_, of, err := fs.openOrCreateLocked(ctx, tx, path, flags, mode)
		if err != nil {
			return err
		}
		fd = of.Fd
		return nil
	})
	return fd, err
}

// openOrCreateLocked implements the shared open/create/truncate logic
// used by both the low-level Open and the high-level WriteFile (which
// is specified as O_WRONLY|O_CREAT|O_TRUNC under the hood).
func (fs *FS) openOrCreateLocked(ctx context.Context, tx *sql.Tx, path string, flags handle.Flag, mode uint16) (types.Ino, *handle.OpenFile, error) {
	ino, err := fs.paths.Resolve(ctx, tx, fs.cwd, path)
	if err != nil {
		kind, ok := types.KindOf(err)
		if !ok || kind != types.KindNotFound || !flags.Has(OCREAT) {
			return 0, nil, err
		}
		parent, name, perr := fs.paths.ResolveParent(ctx, tx, fs.cwd, path)
		if perr != nil {
			return 0, nil, perr
		}
		newIno, aerr := fs.inodes.Allocate(ctx, tx, types.KindRegular, mode, 0, 0)
		if aerr != nil {
			return 0, nil, aerr
		}
		newInode, lerr := fs.inodes.Load(ctx, tx, newIno)
		if lerr != nil {
			return 0, nil, lerr
		}
		if lerr := fs.dirents.LinkEntry(ctx, tx, parent, name, newInode); lerr != nil {
			return 0, nil, lerr
		}
		ino = newIno
	} else if flags.Has(OCREAT) && flags.Has(OEXCL) {
		return 0, nil, types.NewError(types.KindExists, "open", path, nil)
	}

	in, err := fs.inodes.Load(ctx, tx, ino)
	if err != nil {
		return 0, nil, err
	}
	if in.IsDir() && flags.Writable() {
		return 0, nil, types.NewError(types.KindIsDirectory, "open", path, nil)
	}

	if flags.Has(OTRUNC) && !in.IsDir() && flags.Writable() {
		if err := fs.blocks.Truncate(ctx, tx, ino, in.Size, 0); err != nil {
			return 0, nil, err
		}
		in.Size = 0
		now := fs.inodes.Clock.Now().Unix()
		in.Mtime, in.Ctime = now, now
		if err := fs.inodes.Store(ctx, tx, in); err != nil {
			return 0, nil, err
		}
	}

	of := fs.handles.Open(ino, flags)
	return ino, of, nil
}

// Close releases fd. If its inode's nlink has already hit zero, this is
// the point the inode and its blocks are actually deleted (spec §3,
// "open-unlinked"). Per spec §7, a failure during the trailing
// MaybeDelete is logged but does not fail Close.
func (fs *FS) Close(ctx context.Context, fd int) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	ino, ok := fs.handles.Close(fd)
	if !ok {
		return types.NewError(types.KindBadDescriptor, "close", "", nil)
	}

	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		return fs.inodes.MaybeDelete(ctx, tx, ino)
	})
	if err != nil {
		logFailedCleanup(fd, ino, err)
	}
	return nil
}

// Read reads up to len(buf) bytes from fd's current cursor, advancing it.
func (fs *FS) Read(ctx context.Context, fd int, buf []byte) (int, error) {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return 0, types.NewError(types.KindBadDescriptor, "read", "", nil)
	}
	of.Lock()
	defer of.Unlock()

	if !of.Flags.Readable() {
		return 0, types.NewError(types.KindBadDescriptor, "read", "", nil)
	}

	n, err := fs.Pread(ctx, fd, buf, of.Cursor())
	if err != nil {
		return 0, err
	}
	of.Advance(uint64(n))
	return n, nil
}

// Write writes buf at fd's current cursor (or at EOF if O_APPEND),
// advancing the cursor by the number of bytes written.
func (fs *FS) Write(ctx context.Context, fd int, buf []byte) (int, error) {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return 0, types.NewError(types.KindBadDescriptor, "write", "", nil)
	}
	of.Lock()
	defer of.Unlock()

	if !of.Flags.Writable() {
		return 0, types.NewError(types.KindBadDescriptor, "write", "", nil)
	}

	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var n int
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := fs.inodes.Load(ctx, tx, of.Ino)
		if err != nil {
			return err
		}
		pos := of.Cursor()
		if of.Flags.Has(OAPPEND) {
			pos = in.Size // O_APPEND is atomic with respect to size (spec §5)
		}
		newSize, err := fs.blocks.Write(ctx, tx, of.Ino, in.Size, pos, buf)
		if err != nil {
			return err
		}
		in.Size = newSize
		now := fs.inodes.Clock.Now().Unix()
		in.Mtime, in.Ctime = now, now
		if err := fs.inodes.Store(ctx, tx, in); err != nil {
			return err
		}
		of.SetCursor(pos + uint64(len(buf)))
		n = len(buf)
		return nil
	})
	return n, err
}

// Pread reads up to len(buf) bytes at a fixed offset without touching
// fd's cursor.
func (fs *FS) Pread(ctx context.Context, fd int, buf []byte, offset uint64) (int, error) {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return 0, types.NewError(types.KindBadDescriptor, "pread", "", nil)
	}
	if !of.Flags.Readable() {
		return 0, types.NewError(types.KindBadDescriptor, "pread", "", nil)
	}

	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var n int
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := fs.inodes.Load(ctx, tx, of.Ino)
		if err != nil {
			return err
		}
		data, err := fs.blocks.Read(ctx, tx, of.Ino, in.Size, offset, len(buf))
		if err != nil {
			return err
		}
		n = copy(buf, data)
		return nil
	})
	return n, err
}

// Pwrite writes data at a fixed offset without touching fd's cursor.
func (fs *FS) Pwrite(ctx context.Context, fd int, data []byte, offset uint64) (int, error) {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return 0, types.NewError(types.KindBadDescriptor, "pwrite", "", nil)
	}
	if !of.Flags.Writable() {
		return 0, types.NewError(types.KindBadDescriptor, "pwrite", "", nil)
	}

	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := fs.inodes.Load(ctx, tx, of.Ino)
		if err != nil {
			return err
		}
		newSize, err := fs.blocks.Write(ctx, tx, of.Ino, in.Size, offset, data)
		if err != nil {
			return err
		}
		in.Size = newSize
		now := fs.inodes.Clock.Now().Unix()
		in.Mtime, in.Ctime = now, now
		return fs.inodes.Store(ctx, tx, in)
	})
	return len(data), err
}

// Ftruncate changes fd's inode size.
func (fs *FS) Ftruncate(ctx context.Context, fd int, size uint64) error {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return types.NewError(types.KindBadDescriptor, "ftruncate", "", nil)
	}

	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := fs.inodes.Load(ctx, tx, of.Ino)
		if err != nil {
			return err
		}
		if err := fs.blocks.Truncate(ctx, tx, of.Ino, in.Size, size); err != nil {
			return err
		}
		in.Size = size
		now := fs.inodes.Clock.Now().Unix()
		in.Mtime, in.Ctime = now, now
		return fs.inodes.Store(ctx, tx, in)
	})
}

// Fstat returns the attributes of fd's inode.
func (fs *FS) Fstat(ctx context.Context, fd int) (Stat, error) {
	of, ok := fs.handles.Get(fd)
	if !ok {
		return Stat{}, types.NewError(types.KindBadDescriptor, "fstat", "", nil)
	}

	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var out Stat
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		in, err := fs.inodes.Load(ctx, tx, of.Ino)
		if err != nil {
			return err
		}
		out = statFromInode(in)
		return nil
	})
	return out, err
}

func logFailedCleanup(fd int, ino types.Ino, err error) {
	// spec §7: MaybeDelete failures during close are logged but must not
	// fail the close itself.
	logger.Errorf("close fd=%d ino=%d: deferred inode cleanup failed: %v", fd, ino, err)
}

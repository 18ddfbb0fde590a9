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
	"strings"

	"github.com/pedrocarlo/agentfs/fs/dirent"
	"github.com/pedrocarlo/agentfs/fs/handle"
	fspath "github.com/pedrocarlo/agentfs/fs/path"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// High-level calls are each exactly one backing-store transaction
// (spec §4.H): open+op+close happen under a single tx so a caller can
// never observe partial state.

// WriteFile truncates (or creates) path and writes data to it —
// equivalent to O_WRONLY|O_CREAT|O_TRUNC.
func (fs *FS) WriteFile(ctx context.Context, path string, data []byte) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, of, err := fs.openOrCreateLocked(ctx, tx, path, handle.OWRONLY|handle.OCREAT|handle.OTRUNC, types.DefaultFileMode)
		if err != nil {
			return err
		}
		defer fs.handles.Close(of.Fd)
		in, err := fs.inodes.Load(ctx, tx, ino)
		if err != nil {
			return err
		}
		if err := fs.blocks.Truncate(ctx, tx, ino, in.Size, 0); err != nil {
			return err
		}
		in.Size = 0
		newSize, err := fs.blocks.Write(ctx, tx, ino, 0, 0, data)
		if err != nil {
			return err
		}
		in.Size = newSize
		now := fs.inodes.Clock.Now().Unix()
		in.Mtime, in.Ctime = now, now
		return fs.inodes.Store(ctx, tx, in)
	})
}

// ReadFile reads the entire contents of path.
func (fs *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var out []byte
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, err := fs.paths.Resolve(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		in, err := fs.inodes.Load(ctx, tx, ino)
		if err != nil {
			return err
		}
		if in.IsDir() {
			return types.NewError(types.KindIsDirectory, "readfile", path, nil)
		}
		out, err = fs.blocks.Read(ctx, tx, ino, in.Size, 0, int(in.Size))
		return err
	})
	return out, err
}

// Mkdir creates a directory at path. With recursive=true, missing
// ancestors are created and an already-existing final directory is not
// an error (idempotent); without it, behaves like a plain mkdir and
// fails with Exists if the final component is already present.
func (fs *FS) Mkdir(ctx context.Context, path string, recursive bool) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		if recursive {
			return fs.mkdirAllLocked(ctx, tx, path)
		}
		parent, name, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		return fs.mkdirOneLocked(ctx, tx, parent, name)
	})
}

func (fs *FS) mkdirOneLocked(ctx context.Context, tx *sql.Tx, parent types.Ino, name string) error {
	ino, err := fs.inodes.Allocate(ctx, tx, types.KindDirectory, types.DefaultDirMode, 0, 0)
	if err != nil {
		return err
	}
	in, err := fs.inodes.Load(ctx, tx, ino)
	if err != nil {
		return err
	}
	return fs.dirents.LinkEntry(ctx, tx, parent, name, in)
}

func (fs *FS) mkdirAllLocked(ctx context.Context, tx *sql.Tx, p string) error {
	components, _ := fspath.Split(p)
	cur := fs.cwd
	if strings.HasPrefix(p, "/") {
		cur = types.RootIno
	}

	for _, name := range components {
		child, err := fs.dirents.Lookup(ctx, tx, cur, name)
		if err == nil {
			in, err := fs.inodes.Load(ctx, tx, child)
			if err != nil {
				return err
			}
			if !in.IsDir() {
				return types.NewError(types.KindNotDirectory, "mkdir", name, nil)
			}
			cur = child
			continue
		}
		if k, ok := types.KindOf(err); !ok || k != types.KindNotFound {
			return err
		}
		if err := fs.mkdirOneLocked(ctx, tx, cur, name); err != nil {
			return err
		}
		child, err = fs.dirents.Lookup(ctx, tx, cur, name)
		if err != nil {
			return err
		}
		cur = child
	}
	return nil
}

// Readdir lists the entries of path.
func (fs *FS) Readdir(ctx context.Context, path string) ([]DirEntry, error) {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var out []DirEntry
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, err := fs.paths.Resolve(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		in, err := fs.inodes.Load(ctx, tx, ino)
		if err != nil {
			return err
		}
		if !in.IsDir() {
			return types.NewError(types.KindNotDirectory, "readdir", path, nil)
		}
		parent, err := fs.dirents.ParentOf(ctx, tx, ino)
		if err != nil {
			return err
		}
		entries, err := fs.dirents.Readdir(ctx, tx, ino, parent)
		if err != nil {
			return err
		}
		out = make([]DirEntry, len(entries))
		for i, e := range entries {
			out[i] = DirEntry{Name: e.Name, Ino: e.Ino, Kind: e.Kind}
		}
		return nil
	})
	return out, err
}

// Stat returns the attributes of path.
func (fs *FS) Stat(ctx context.Context, path string) (Stat, error) {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	var out Stat
	err := fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		ino, err := fs.paths.Resolve(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		in, err := fs.inodes.Load(ctx, tx, ino)
		if err != nil {
			return err
		}
		out = statFromInode(in)
		return nil
	})
	return out, err
}

// Exists reports whether path resolves to anything. Never returns a
// storage error as "false"; storage failures propagate.
func (fs *FS) Exists(ctx context.Context, path string) (bool, error) {
	_, err := fs.Stat(ctx, path)
	if err == nil {
		return true, nil
	}
	if k, ok := types.KindOf(err); ok && k == types.KindNotFound {
		return false, nil
	}
	return false, err
}

// Rename moves from to to, replacing an existing compatible destination
// (spec §4.E).
func (fs *FS) Rename(ctx context.Context, from, to string) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		oldParent, oldName, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, from)
		if err != nil {
			return err
		}
		newParent, newName, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, to)
		if err != nil {
			return err
		}
		return fs.dirents.Rename(ctx, tx, oldParent, oldName, newParent, newName)
	})
}

// Unlink removes a name from its parent directory. Fails with
// IsDirectory if path names a directory (use Rmdir for that).
func (fs *FS) Unlink(ctx context.Context, path string) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		return fs.dirents.UnlinkEntry(ctx, tx, parent, name, dirent.ExpectRegular)
	})
}

// Rmdir removes an empty directory.
func (fs *FS) Rmdir(ctx context.Context, path string) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		parent, name, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, path)
		if err != nil {
			return err
		}
		return fs.dirents.UnlinkEntry(ctx, tx, parent, name, dirent.ExpectDirectory)
	})
}

// Link creates newPath as a new name for the same inode as oldPath
// (spec §8, hard-link inode sharing). Linking a directory is rejected
// with Permission (tolerant of the OS-dependent EPERM/EISDIR choice
// noted in spec §9).
func (fs *FS) Link(ctx context.Context, oldPath, newPath string) error {
	fs.callMu.Lock()
	defer fs.callMu.Unlock()

	return fs.store.WithTx(ctx, func(tx *sql.Tx) error {
		srcIno, err := fs.paths.Resolve(ctx, tx, fs.cwd, oldPath)
		if err != nil {
			return err
		}
		srcInode, err := fs.inodes.Load(ctx, tx, srcIno)
		if err != nil {
			return err
		}
		if srcInode.IsDir() {
			return types.NewError(types.KindPermission, "link", oldPath, nil)
		}
		parent, name, err := fs.paths.ResolveParent(ctx, tx, fs.cwd, newPath)
		if err != nil {
			return err
		}
		return fs.dirents.LinkEntry(ctx, tx, parent, name, srcInode)
	})
}

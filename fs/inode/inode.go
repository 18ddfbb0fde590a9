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

// Package inode is the inode layer (spec §4.C): allocation, metadata
// storage, link-count bookkeeping, and the nlink+open_refs==0 deletion
// rule that makes unlink-while-open and rmdir-of-empty-dir work.
package inode

import (
	"context"
	"database/sql"

	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
	"github.com/pedrocarlo/agentfs/internal/clock"
	"github.com/pedrocarlo/agentfs/internal/logger"
)

// RefCounter is consulted by MaybeDelete to decide whether an inode with
// nlink==0 is still pinned open by a live descriptor (spec §4.G). It is
// implemented by the open-file table (fs/handle); this package only
// depends on the interface to avoid an import cycle.
type RefCounter interface {
	OpenRefs(ino types.Ino) int
}

// Which timestamp Touch should update.
type TimeField int

const (
	Ctime TimeField = iota
	Mtime
	Atime
)

// Store is the inode layer, bound to one backing-store connection and
// clock.
type Store struct {
	Clock clock.Clock
	Refs  RefCounter
}

// New constructs an inode Store. refs may be nil during migration-time
// bootstrapping; every call site that can reach MaybeDelete passes a
// real RefCounter.
func New(c clock.Clock, refs RefCounter) *Store {
	return &Store{Clock: c, Refs: refs}
}

// Allocate reserves the next inode number from the superblock and
// inserts a new inode row. A regular file starts with nlink=0 — the
// caller (fs/dirent's link_entry) bumps nlink once the first directory
// entry referencing it is created. A directory starts with nlink=2,
// already counting its own "." and the entry mkdir is about to create.
func (s *Store) Allocate(ctx context.Context, q store.Querier, kind types.Kind, mode uint16, uid, gid uint32) (types.Ino, error) {
	var next types.Ino
	row := q.QueryRowContext(ctx, `SELECT next_inode FROM superblock WHERE id = 1`)
	if err := row.Scan(&next); err != nil {
		return 0, types.NewError(types.KindStorage, "allocate", "", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE superblock SET next_inode = ? WHERE id = 1`, next+1); err != nil {
		return 0, types.NewError(types.KindStorage, "allocate", "", err)
	}

	now := s.Clock.Now().Unix()
	initialNlink := 0
	if kind == types.KindDirectory {
		initialNlink = 2
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO inodes (ino, kind, mode, nlink, size, ctime, mtime, atime, uid, gid)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		next, kind, mode, initialNlink, now, now, now, uid, gid)
	if err != nil {
		return 0, types.NewError(types.KindStorage, "allocate", "", err)
	}
	return next, nil
}

// Load fetches an inode's metadata. Returns KindNotFound if no such
// inode exists.
func (s *Store) Load(ctx context.Context, q store.Querier, ino types.Ino) (types.Inode, error) {
	var in types.Inode
	in.Ino = ino
	row := q.QueryRowContext(ctx, `
		SELECT kind, mode, nlink, size, ctime, mtime, atime, uid, gid
		FROM inodes WHERE ino = ?`, ino)
	err := row.Scan(&in.Kind, &in.Mode, &in.Nlink, &in.Size, &in.Ctime, &in.Mtime, &in.Atime, &in.Uid, &in.Gid)
	if err == sql.ErrNoRows {
		return types.Inode{}, types.NewError(types.KindNotFound, "load", "", nil)
	}
	if err != nil {
		return types.Inode{}, types.NewError(types.KindStorage, "load", "", err)
	}
	return in, nil
}

// Store writes back an inode's full metadata row.
func (s *Store) Store(ctx context.Context, q store.Querier, in types.Inode) error {
	_, err := q.ExecContext(ctx, `
		UPDATE inodes SET kind=?, mode=?, nlink=?, size=?, ctime=?, mtime=?, atime=?, uid=?, gid=?
		WHERE ino=?`,
		in.Kind, in.Mode, in.Nlink, in.Size, in.Ctime, in.Mtime, in.Atime, in.Uid, in.Gid, in.Ino)
	if err != nil {
		return types.NewError(types.KindStorage, "store", "", err)
	}
	return nil
}

// BumpNlink adds delta (which may be negative) to an inode's nlink.
func (s *Store) BumpNlink(ctx context.Context, q store.Querier, ino types.Ino, delta int) error {
	_, err := q.ExecContext(ctx, `UPDATE inodes SET nlink = nlink + ?, ctime = ? WHERE ino = ?`,
		delta, s.Clock.Now().Unix(), ino)
	if err != nil {
		return types.NewError(types.KindStorage, "bump-nlink", "", err)
	}
	return nil
}

// Touch updates one timestamp field to the current time.
func (s *Store) Touch(ctx context.Context, q store.Querier, ino types.Ino, which TimeField) error {
	now := s.Clock.Now().Unix()
	var col string
	switch which {
	case Ctime:
		col = "ctime"
	case Mtime:
		col = "mtime"
	case Atime:
		col = "atime"
	}
	_, err := q.ExecContext(ctx, `UPDATE inodes SET `+col+` = ? WHERE ino = ?`, now, ino)
	if err != nil {
		return types.NewError(types.KindStorage, "touch", "", err)
	}
	return nil
}

// MaybeDelete removes the inode and all of its blocks if nlink has hit
// zero and no descriptor still holds it open (spec §3, §4.C, §9). It is
// safe to call after every nlink decrement and after every close; most
// calls are no-ops.
func (s *Store) MaybeDelete(ctx context.Context, q store.Querier, ino types.Ino) error {
	if ino == types.RootIno {
		return nil
	}

	var nlink uint32
	err := q.QueryRowContext(ctx, `SELECT nlink FROM inodes WHERE ino = ?`, ino).Scan(&nlink)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return types.NewError(types.KindStorage, "maybe-delete", "", err)
	}
	if nlink != 0 {
		return nil
	}
	if s.Refs != nil && s.Refs.OpenRefs(ino) > 0 {
		return nil
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE ino = ?`, ino); err != nil {
		return types.NewError(types.KindStorage, "maybe-delete", "", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM inodes WHERE ino = ?`, ino); err != nil {
		return types.NewError(types.KindStorage, "maybe-delete", "", err)
	}
	logger.Tracef("inode %d deleted (nlink=0, open_refs=0)", ino)
	return nil
}

// SweepOrphans deletes every inode with nlink=0 (and cascades its
// blocks). Run once at instance startup: if a previous process died
// with open-unlinked descriptors, their inodes are unreachable garbage
// because open_refs only ever lived in that process's memory (spec §9).
func SweepOrphans(ctx context.Context, q store.Querier) (int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT ino FROM inodes WHERE nlink = 0`)
	if err != nil {
		return 0, types.NewError(types.KindStorage, "sweep-orphans", "", err)
	}
	var orphans []types.Ino
	for rows.Next() {
		var ino types.Ino
		if err := rows.Scan(&ino); err != nil {
			rows.Close()
			return 0, types.NewError(types.KindStorage, "sweep-orphans", "", err)
		}
		orphans = append(orphans, ino)
	}
	rows.Close()

	for _, ino := range orphans {
		if _, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE ino = ?`, ino); err != nil {
			return 0, types.NewError(types.KindStorage, "sweep-orphans", "", err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM inodes WHERE ino = ?`, ino); err != nil {
			return 0, types.NewError(types.KindStorage, "sweep-orphans", "", err)
		}
	}
	return int64(len(orphans)), nil
}

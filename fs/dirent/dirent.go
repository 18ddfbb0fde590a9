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

// Package dirent is the directory layer (spec §4.E): the (parent_ino,
// name) -> child_ino mapping, name uniqueness, and the coupling between
// directory entries and link counts.
package dirent

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pedrocarlo/agentfs/fs/inode"
	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// Store is the directory layer, composed with the inode layer since
// every dirent mutation also adjusts nlink on the inodes involved.
type Store struct {
	Inodes *inode.Store
}

func New(inodes *inode.Store) *Store {
	return &Store{Inodes: inodes}
}

// ValidateName enforces spec §3: non-empty, no '/', no NUL.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return types.NewError(types.KindInvalidArgument, "validate-name", name, nil)
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, 0) {
		return types.NewError(types.KindInvalidArgument, "validate-name", name, nil)
	}
	return nil
}

// Lookup resolves (parent, name) to a child inode number.
func (s *Store) Lookup(ctx context.Context, q store.Querier, parent types.Ino, name string) (types.Ino, error) {
	var child types.Ino
	err := q.QueryRowContext(ctx, `SELECT child_ino FROM dirents WHERE parent_ino = ? AND name = ?`, parent, name).Scan(&child)
	if err == sql.ErrNoRows {
		return 0, types.NewError(types.KindNotFound, "lookup", name, nil)
	}
	if err != nil {
		return 0, types.NewError(types.KindStorage, "lookup", name, err)
	}
	return child, nil
}

// LinkEntry inserts a new (parent, name) -> child dirent, bumping
// nlink on a regular child (a directory child keeps the nlink of 2 it
// was allocated with, which already counts this entry and its own ".")
// and, for a child directory, nlink on parent to account for the new
// "..". Fails with Exists if the name is taken.
func (s *Store) LinkEntry(ctx context.Context, q store.Querier, parent types.Ino, name string, child types.Inode) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM dirents WHERE parent_ino = ? AND name = ?`, parent, name).Scan(&exists)
	if err == nil {
		return types.NewError(types.KindExists, "link", name, nil)
	}
	if err != sql.ErrNoRows {
		return types.NewError(types.KindStorage, "link", name, err)
	}

	if _, err := q.ExecContext(ctx, `INSERT INTO dirents (parent_ino, name, child_ino) VALUES (?, ?, ?)`,
		parent, name, child.Ino); err != nil {
		return types.NewError(types.KindStorage, "link", name, err)
	}

	if child.Kind != types.KindDirectory {
		if err := s.Inodes.BumpNlink(ctx, q, child.Ino, 1); err != nil {
			return err
		}
	}
	if child.Kind == types.KindDirectory {
		if err := s.Inodes.BumpNlink(ctx, q, parent, 1); err != nil {
			return err
		}
	}
	return nil
}

// ExpectKind tells UnlinkEntry what the caller believes the target is,
// so unlink() on a directory and rmdir() on a regular file both fail
// predictably.
type ExpectKind int

const (
	ExpectAny ExpectKind = iota
	ExpectRegular
	ExpectDirectory
)

// UnlinkEntry removes the (parent, name) dirent, decrements nlink on the
// child (by 2 for a directory: this entry and its own "."), and invokes
// MaybeDelete. ExpectRegular on a directory fails
// with IsDirectory; ExpectDirectory (rmdir) on a non-empty directory
// fails with NotEmpty, and on a regular file fails with NotDirectory.
func (s *Store) UnlinkEntry(ctx context.Context, q store.Querier, parent types.Ino, name string, expect ExpectKind) error {
	child, err := s.Lookup(ctx, q, parent, name)
	if err != nil {
		return err
	}
	childInode, err := s.Inodes.Load(ctx, q, child)
	if err != nil {
		return err
	}

	if err := checkExpectedKind(childInode.Kind, expect, name); err != nil {
		return err
	}

	if childInode.Kind == types.KindDirectory {
		empty, err := s.isEmpty(ctx, q, child)
		if err != nil {
			return err
		}
		if !empty {
			return types.NewError(types.KindNotEmpty, "rmdir", name, nil)
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM dirents WHERE parent_ino = ? AND name = ?`, parent, name); err != nil {
		return types.NewError(types.KindStorage, "unlink", name, err)
	}

	childDelta := -1
	if childInode.Kind == types.KindDirectory {
		childDelta = -2
	}
	if err := s.Inodes.BumpNlink(ctx, q, child, childDelta); err != nil {
		return err
	}
	if childInode.Kind == types.KindDirectory {
		if err := s.Inodes.BumpNlink(ctx, q, parent, -1); err != nil {
			return err
		}
	}

	if err := s.Inodes.MaybeDelete(ctx, q, child); err != nil {
		return err
	}
	return nil
}

func checkExpectedKind(actual types.Kind, expect ExpectKind, name string) error {
	switch expect {
	case ExpectRegular:
		if actual == types.KindDirectory {
			return types.NewError(types.KindIsDirectory, "unlink", name, nil)
		}
	case ExpectDirectory:
		if actual != types.KindDirectory {
			return types.NewError(types.KindNotDirectory, "rmdir", name, nil)
		}
	}
	return nil
}

func (s *Store) isEmpty(ctx context.Context, q store.Querier, dir types.Ino) (bool, error) {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM dirents WHERE parent_ino = ? LIMIT 1`, dir).Scan(&exists)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, types.NewError(types.KindStorage, "rmdir", "", err)
	}
	return false, nil
}

// Readdir lists the entries of dir, synthesizing "." and "..". Order is
// deterministic within a snapshot (by rowid) but not guaranteed
// lexicographic, matching spec §4.E.
func (s *Store) Readdir(ctx context.Context, q store.Querier, dir types.Ino, parentOfDir types.Ino) ([]types.DirEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.name, d.child_ino, i.kind
		FROM dirents d JOIN inodes i ON i.ino = d.child_ino
		WHERE d.parent_ino = ?
		ORDER BY d.rowid`, dir)
	if err != nil {
		return nil, types.NewError(types.KindStorage, "readdir", "", err)
	}
	defer rows.Close()

	entries := []types.DirEntry{
		{Name: ".", Ino: dir, Kind: types.KindDirectory},
		{Name: "..", Ino: parentOfDir, Kind: types.KindDirectory},
	}
	for rows.Next() {
		var e types.DirEntry
		if err := rows.Scan(&e.Name, &e.Ino, &e.Kind); err != nil {
			return nil, types.NewError(types.KindStorage, "readdir", "", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewError(types.KindStorage, "readdir", "", err)
	}
	return entries, nil
}

// ParentOf returns the parent inode of dir by following its single
// incoming dirent (every non-root directory has exactly one). Root is
// its own parent.
func (s *Store) ParentOf(ctx context.Context, q store.Querier, dir types.Ino) (types.Ino, error) {
	if dir == types.RootIno {
		return types.RootIno, nil
	}
	var parent types.Ino
	err := q.QueryRowContext(ctx, `SELECT parent_ino FROM dirents WHERE child_ino = ? LIMIT 1`, dir).Scan(&parent)
	if err == sql.ErrNoRows {
		return 0, types.NewError(types.KindNotFound, "parent-of", "", nil)
	}
	if err != nil {
		return 0, types.NewError(types.KindStorage, "parent-of", "", err)
	}
	return parent, nil
}

// IsAncestor reports whether candidate is dir or one of its ancestors,
// walking parent links up to the root. Used by Rename to reject moving a
// directory into its own descendant (spec §4.E, EINVAL).
func (s *Store) IsAncestor(ctx context.Context, q store.Querier, candidate, dir types.Ino) (bool, error) {
	cur := dir
	for {
		if cur == candidate {
			return true, nil
		}
		if cur == types.RootIno {
			return false, nil
		}
		parent, err := s.ParentOf(ctx, q, cur)
		if err != nil {
			return false, err
		}
		cur = parent
	}
}

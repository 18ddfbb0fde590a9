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

package dirent

import (
	"context"

	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// Rename moves (oldParent, oldName) to (newParent, newName). If the
// destination name already exists and is compatible with the source
// (regular replaces regular, empty directory replaces empty directory),
// it is replaced atomically within the caller's transaction. Moving a
// directory into its own descendant fails with InvalidArgument.
func (s *Store) Rename(ctx context.Context, q store.Querier, oldParent types.Ino, oldName string, newParent types.Ino, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}

	srcIno, err := s.Lookup(ctx, q, oldParent, oldName)
	if err != nil {
		return err
	}
	srcInode, err := s.Inodes.Load(ctx, q, srcIno)
	if err != nil {
		return err
	}

	if srcInode.Kind == types.KindDirectory {
		isDescendant, err := s.IsAncestor(ctx, q, srcIno, newParent)
		if err != nil {
			return err
		}
		if isDescendant {
			return types.NewError(types.KindInvalidArgument, "rename", newName, nil)
		}
	}

	dstIno, err := s.Lookup(ctx, q, newParent, newName)
	if err != nil && !isNotFound(err) {
		return err
	}
	destExists := err == nil

	if destExists {
		if oldParent == newParent && oldName == newName {
			return nil // renaming a path onto itself is a no-op
		}
		dstInode, err := s.Inodes.Load(ctx, q, dstIno)
		if err != nil {
			return err
		}
		expect := ExpectRegular
		if srcInode.Kind == types.KindDirectory {
			expect = ExpectDirectory
		}
		if err := checkExpectedKind(dstInode.Kind, expect, newName); err != nil {
			return err
		}
		if err := s.UnlinkEntry(ctx, q, newParent, newName, expect); err != nil {
			return err
		}
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM dirents WHERE parent_ino = ? AND name = ?`, oldParent, oldName); err != nil {
		return types.NewError(types.KindStorage, "rename", oldName, err)
	}
	if _, err := q.ExecContext(ctx, `INSERT INTO dirents (parent_ino, name, child_ino) VALUES (?, ?, ?)`,
		newParent, newName, srcIno); err != nil {
		return types.NewError(types.KindStorage, "rename", newName, err)
	}

	if oldParent != newParent && srcInode.Kind == types.KindDirectory {
		// The moved directory's ".." now points elsewhere: the old parent
		// loses the subdirectory link, the new parent gains one.
		if err := s.Inodes.BumpNlink(ctx, q, oldParent, -1); err != nil {
			return err
		}
		if err := s.Inodes.BumpNlink(ctx, q, newParent, 1); err != nil {
			return err
		}
	}

	return nil
}

func isNotFound(err error) bool {
	kind, ok := types.KindOf(err)
	return ok && kind == types.KindNotFound
}

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

// Package block is the block layer (spec §4.D): file content addressed
// as fixed-size (ino, block_index) rows, where a missing row is a hole
// rather than a materialized run of zeros.
package block

import (
	"context"
	"database/sql"

	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// Store is the block layer, bound to a fixed block size read once from
// the superblock at instance-open time (spec §9: immutable for the life
// of the instance).
type Store struct {
	BlockSize int
}

func New(blockSize int) *Store {
	return &Store{BlockSize: blockSize}
}

func (s *Store) blockIndex(offset uint64) uint64 { return offset / uint64(s.BlockSize) }

// Read returns up to length bytes starting at offset, clamped to the
// inode's logical size. Holes synthesize zero bytes; they are never
// materialized by a read.
func (s *Store) Read(ctx context.Context, q store.Querier, ino types.Ino, size, offset uint64, length int) ([]byte, error) {
	if offset >= size || length <= 0 {
		return []byte{}, nil
	}
	if offset+uint64(length) > size {
		length = int(size - offset)
	}

	out := make([]byte, length)
	end := offset + uint64(length)

	firstBlock := s.blockIndex(offset)
	lastBlock := s.blockIndex(end - 1)

	for bi := firstBlock; bi <= lastBlock; bi++ {
		blockStart := bi * uint64(s.BlockSize)
		data, err := s.loadBlockRaw(ctx, q, ino, bi)
		if err != nil {
			return nil, err
		}

		// Slice the portion of this block that falls within [offset, end).
		loCopy := uint64(0)
		if offset > blockStart {
			loCopy = offset - blockStart
		}
		hiCopy := uint64(s.BlockSize)
		if end < blockStart+uint64(s.BlockSize) {
			hiCopy = end - blockStart
		}
		if loCopy >= uint64(len(data)) {
			continue // entirely past the stored (short, final) block or a hole: stays zero
		}
		if hiCopy > uint64(len(data)) {
			hiCopy = uint64(len(data))
		}

		destOffset := blockStart + loCopy - offset
		copy(out[destOffset:], data[loCopy:hiCopy])
	}

	return out, nil
}

// loadBlockRaw returns the bytes actually stored for (ino, index), or
// nil if the row is absent (a hole). Unlike a zero-padded read, callers
// that need to know "how much of this block was really written" (Write,
// Truncate) use the raw length.
func (s *Store) loadBlockRaw(ctx context.Context, q store.Querier, ino types.Ino, index uint64) ([]byte, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM blocks WHERE ino = ? AND block_index = ?`, ino, index).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.KindStorage, "read", "", err)
	}
	return data, nil
}

// upsertStmt is the narrow subset of *sql.Tx/*sql.DB this package needs to
// prepare a statement. Both satisfy it; store.Querier alone does not,
// since not every caller of loadBlockRaw/storeBlock runs inside a
// transaction that's worth preparing a statement against.
type upsertStmt interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

const upsertBlockSQL = `
	INSERT INTO blocks (ino, block_index, data) VALUES (?, ?, ?)
	ON CONFLICT (ino, block_index) DO UPDATE SET data = excluded.data`

// Write overlays data at offset, materializing only the blocks the
// write actually touches, and returns the new logical size (which the
// caller stores on the inode along with updated mtime/ctime).
//
// Every touched block is read-modify-written: the existing stored bytes
// (or nothing, for a hole) are loaded, the write's slice is overlaid,
// and the result is stored at full block width — except the block that
// ends up holding the new end-of-file, which is stored at its true
// (possibly short) length, per spec §4.D. When q is a transaction handle
// (the normal case — every public call is one transaction), the upsert is
// prepared once and reused for every block this write touches instead of
// re-parsing the statement per block.
func (s *Store) Write(ctx context.Context, q store.Querier, ino types.Ino, size, offset uint64, data []byte) (newSize uint64, err error) {
	if len(data) == 0 {
		if offset > size {
			return offset, nil
		}
		return size, nil
	}

	end := offset + uint64(len(data))
	newSize = size
	if end > newSize {
		newSize = end
	}

	lastBlockOfFile := s.blockIndex(newSize - 1)
	firstBlock := s.blockIndex(offset)
	lastBlock := s.blockIndex(end - 1)

	var stmt *sql.Stmt
	if p, ok := q.(upsertStmt); ok {
		stmt, err = p.PrepareContext(ctx, upsertBlockSQL)
		if err != nil {
			return 0, types.NewError(types.KindStorage, "write", "", err)
		}
		defer stmt.Close()
	}

	for bi := firstBlock; bi <= lastBlock; bi++ {
		blockStart := bi * uint64(s.BlockSize)

		storeWidth := s.BlockSize
		if bi == lastBlockOfFile {
			storeWidth = int(newSize - blockStart)
		}

		existing, loadErr := s.loadBlockRaw(ctx, q, ino, bi)
		if loadErr != nil {
			return 0, loadErr
		}
		buf := make([]byte, storeWidth)
		copy(buf, existing)

		loWrite := uint64(0)
		if offset > blockStart {
			loWrite = offset - blockStart
		}
		hiWrite := uint64(s.BlockSize)
		if end < blockStart+uint64(s.BlockSize) {
			hiWrite = end - blockStart
		}
		srcOffset := blockStart + loWrite - offset
		copy(buf[loWrite:hiWrite], data[srcOffset:srcOffset+(hiWrite-loWrite)])

		if stmt != nil {
			if _, err := stmt.ExecContext(ctx, ino, bi, buf); err != nil {
				return 0, types.NewError(types.KindStorage, "write", "", err)
			}
			continue
		}
		if err := s.storeBlock(ctx, q, ino, bi, buf); err != nil {
			return 0, err
		}
	}

	return newSize, nil
}

func (s *Store) storeBlock(ctx context.Context, q store.Querier, ino types.Ino, index uint64, data []byte) error {
	_, err := q.ExecContext(ctx, upsertBlockSQL, ino, index, data)
	if err != nil {
		return types.NewError(types.KindStorage, "write", "", err)
	}
	return nil
}

// Truncate changes the logical size of ino's content, deleting blocks
// beyond newSize and, if newSize falls inside a retained block, trimming
// that block to the remainder. Growing never materializes the
// intermediate hole.
func (s *Store) Truncate(ctx context.Context, q store.Querier, ino types.Ino, size, newSize uint64) error {
	if newSize >= size {
		return nil // pure hole extension: nothing to materialize
	}

	if newSize == 0 {
		_, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE ino = ?`, ino)
		if err != nil {
			return types.NewError(types.KindStorage, "truncate", "", err)
		}
		return nil
	}

	boundaryBlock := s.blockIndex(newSize - 1)
	remainder := newSize - boundaryBlock*uint64(s.BlockSize)

	if _, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE ino = ? AND block_index > ?`, ino, boundaryBlock); err != nil {
		return types.NewError(types.KindStorage, "truncate", "", err)
	}

	if remainder < uint64(s.BlockSize) {
		existing, err := s.loadBlockRaw(ctx, q, ino, boundaryBlock)
		if err != nil {
			return err
		}
		if uint64(len(existing)) > remainder {
			if err := s.storeBlock(ctx, q, ino, boundaryBlock, existing[:remainder]); err != nil {
				return err
			}
		}
	}

	return nil
}

// DeleteAll removes every block row for ino. Exposed for inode.MaybeDelete
// and the startup orphan sweep, which both delete blocks outside of a
// (ino, size) write/truncate call.
func (s *Store) DeleteAll(ctx context.Context, q store.Querier, ino types.Ino) error {
	_, err := q.ExecContext(ctx, `DELETE FROM blocks WHERE ino = ?`, ino)
	if err != nil {
		return types.NewError(types.KindStorage, "delete-all", "", err)
	}
	return nil
}

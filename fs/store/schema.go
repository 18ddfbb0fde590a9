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

package store

import (
	"context"
	"database/sql"

	"github.com/pedrocarlo/agentfs/fs/types"
)

// schemaVersion is the current value migrations bring PRAGMA user_version
// to. SQLite's user_version is the natural analogue of spec's
// superblock.version and is what gates which migration steps still need
// to run on reopen.
const schemaVersion = 1

type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS superblock (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				block_size INTEGER NOT NULL,
				next_inode INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS inodes (
				ino INTEGER PRIMARY KEY,
				kind INTEGER NOT NULL,
				mode INTEGER NOT NULL,
				nlink INTEGER NOT NULL,
				size INTEGER NOT NULL,
				ctime INTEGER NOT NULL,
				mtime INTEGER NOT NULL,
				atime INTEGER NOT NULL,
				uid INTEGER NOT NULL,
				gid INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS dirents (
				parent_ino INTEGER NOT NULL,
				name TEXT NOT NULL,
				child_ino INTEGER NOT NULL,
				PRIMARY KEY (parent_ino, name)
			)`,
			`CREATE INDEX IF NOT EXISTS dirents_child_ino_idx ON dirents (child_ino)`,
			`CREATE TABLE IF NOT EXISTS blocks (
				ino INTEGER NOT NULL,
				block_index INTEGER NOT NULL,
				data BLOB NOT NULL,
				PRIMARY KEY (ino, block_index)
			)`,
		},
	},
}

// Migrate creates the schema (idempotently) and inserts the root inode
// and superblock row on first open. blockSize is only used the first
// time the database is created; on reopen the stored value wins and a
// mismatched request fails with InvalidArgument (spec §9, "block size
// is fixed at instance creation").
func Migrate(ctx context.Context, db *sql.DB, blockSize int) error {
	var userVersion int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&userVersion); err != nil {
		return types.NewError(types.KindStorage, "migrate", "", err)
	}

	for _, m := range migrations {
		if m.version <= userVersion {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return err
		}
	}

	if userVersion < schemaVersion {
		if _, err := db.ExecContext(ctx, `PRAGMA user_version = `+itoa(schemaVersion)); err != nil {
			return types.NewError(types.KindStorage, "migrate", "", err)
		}
	}

	return seedSuperblockAndRoot(ctx, db, blockSize)
}

func runMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return types.NewError(types.KindStorage, "migrate", "", err)
	}
	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return types.NewError(types.KindStorage, "migrate", "", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return types.NewError(types.KindStorage, "migrate", "", err)
	}
	return nil
}

func seedSuperblockAndRoot(ctx context.Context, db *sql.DB, blockSize int) error {
	var existing int
	err := db.QueryRowContext(ctx, `SELECT block_size FROM superblock WHERE id = 1`).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		tx, txErr := db.BeginTx(ctx, nil)
		if txErr != nil {
			return types.NewError(types.KindStorage, "migrate", "", txErr)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO superblock (id, block_size, next_inode) VALUES (1, ?, ?)`,
			blockSize, types.RootIno+1); err != nil {
			_ = tx.Rollback()
			return types.NewError(types.KindStorage, "migrate", "", err)
		}
		now := nowUnix()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO inodes (ino, kind, mode, nlink, size, ctime, mtime, atime, uid, gid)
			 VALUES (?, ?, ?, 2, 0, ?, ?, ?, 0, 0)`,
			types.RootIno, types.KindDirectory, types.DefaultDirMode, now, now, now); err != nil {
			_ = tx.Rollback()
			return types.NewError(types.KindStorage, "migrate", "", err)
		}
		return tx.Commit()
	case err != nil:
		return types.NewError(types.KindStorage, "migrate", "", err)
	default:
		if existing != blockSize {
			return types.NewError(types.KindInvalidArgument, "migrate", "",
				errBlockSizeMismatch(existing, blockSize))
		}
		return nil
	}
}

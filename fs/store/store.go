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

// Package store is the backing store adapter (spec §4.A): a uniform,
// transactional SQL interface over the embedded database. Every mutating
// filesystem operation runs through WithTx so that a single public call
// is exactly one backing-store transaction, per the concurrency model in
// spec §5.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pedrocarlo/agentfs/fs/types"
	_ "modernc.org/sqlite"
)

// Querier is the narrow surface the inode/block/dirent layers use. Both
// *sql.DB and *sql.Tx satisfy it, so a layer's functions can be handed
// either an ambient connection (for reads) or the transaction of the
// public call currently in flight (for everything else).
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the *sql.DB for one AgentFS instance.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if necessary) the SQLite database at dsn with
// settings appropriate for a single-process embedded filesystem: a
// single connection, since SQLite serializes writers anyway and the
// concurrency model (spec §5) is cooperative single-connection by
// design, not a multi-writer pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, types.NewError(types.KindStorage, "open", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, types.NewError(types.KindStorage, "open", dsn, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, types.NewError(types.KindStorage, "open", dsn, err)
	}
	return &Store{DB: db}, nil
}

// Close drops the connection. It does not flush anything: the backing
// store is transactional, so every committed call is already durable.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a serializable transaction, committing on a nil
// return and rolling back otherwise (including on panic, which it
// re-panics after rollback).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return types.NewError(types.KindStorage, "begin-tx", "", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return types.NewError(types.KindStorage, "rollback", "", fmt.Errorf("%w (rollback after: %v)", rbErr, err))
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return types.NewError(types.KindStorage, "commit", "", err)
	}
	return nil
}

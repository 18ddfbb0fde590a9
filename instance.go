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

// Package agentfs is the public filesystem interface (spec §4.H) and
// instance/handle manager (spec §4.I): it assembles the inode, block,
// dirent, path and handle layers into one transactional, POSIX-semantic
// virtual filesystem backed by an embedded SQL database.
package agentfs

import (
	"context"
	"sync"

	"github.com/pedrocarlo/agentfs/fs/block"
	"github.com/pedrocarlo/agentfs/fs/dirent"
	"github.com/pedrocarlo/agentfs/fs/handle"
	"github.com/pedrocarlo/agentfs/fs/inode"
	"github.com/pedrocarlo/agentfs/fs/path"
	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
	"github.com/pedrocarlo/agentfs/internal/clock"
	"github.com/pedrocarlo/agentfs/internal/logger"
)

// Config controls how Open creates or reopens an instance.
type Config struct {
	// DSN is the SQLite data source name (a file path, or ":memory:").
	DSN string
	// InstanceID names the instance in the process-wide registry: a
	// second Open with the same id returns the same *FS and shares its
	// open-file table, matching the Durable-Object-per-id hosting model
	// described in spec §6.
	InstanceID string
	// BlockSize sets the block size when this DSN is first created (zero
	// means 4096). On reopen it must equal the stored size, otherwise
	// Open fails with InvalidArgument.
	BlockSize int
	// Clock overrides the time source; defaults to the real wall clock.
	Clock clock.Clock
	// Cwd is the inode relative paths resolve against; defaults to root.
	Cwd types.Ino
}

// FS is one open AgentFS instance: a backing store, the layered kernel
// on top of it, and its own open-file table (spec §4.G, §4.I).
type FS struct {
	id    string
	store *store.Store

	inodes  *inode.Store
	blocks  *block.Store
	dirents *dirent.Store
	paths   *path.Resolver
	handles *handle.Table

	// callMu serializes public operations: the concurrency model (spec
	// §5) is "one transaction per call, no interleaving observable from
	// outside", which this mutex realizes directly instead of leaning on
	// a particular host's cooperative scheduler.
	callMu sync.Mutex

	cwd types.Ino
}

var (
	registryMu sync.Mutex
	registry   = map[string]*FS{}
)

// Open creates (if necessary) and opens an AgentFS instance. Concurrent
// callers using the same InstanceID within one process receive the same
// *FS and share its open-file table; opening the same DSN from separate
// processes is outside this module's scope (spec §4.I, §6).
func Open(ctx context.Context, cfg Config) (*FS, error) {
	id := cfg.InstanceID
	if id == "" {
		id = "default"
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if existing, ok := registry[id]; ok {
		return existing, nil
	}

	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = 4096
	}

	st, err := store.Open(cfg.DSN)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx, st.DB, blockSize); err != nil {
		st.Close()
		return nil, err
	}

	actualBlockSize, err := loadBlockSize(ctx, st)
	if err != nil {
		st.Close()
		return nil, err
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	handles := handle.New()
	inodes := inode.New(clk, handles)

	if _, err := inode.SweepOrphans(ctx, st.DB); err != nil {
		logger.Errorf("orphan sweep failed for instance %q: %v", id, err)
	}

	dirents := dirent.New(inodes)
	blocks := block.New(actualBlockSize)
	resolver := path.New(dirents, inodes)

	cwd := cfg.Cwd
	if cwd == 0 {
		cwd = types.RootIno
	}

	fs := &FS{
		id:      id,
		store:   st,
		inodes:  inodes,
		blocks:  blocks,
		dirents: dirents,
		paths:   resolver,
		handles: handles,
		cwd:     cwd,
	}
	registry[id] = fs
	logger.Infof("opened instance %q (dsn=%s, block_size=%d)", id, cfg.DSN, actualBlockSize)
	return fs, nil
}

func loadBlockSize(ctx context.Context, st *store.Store) (int, error) {
	var bs int
	err := st.DB.QueryRowContext(ctx, `SELECT block_size FROM superblock WHERE id = 1`).Scan(&bs)
	if err != nil {
		return 0, types.NewError(types.KindStorage, "open", "", err)
	}
	return bs, nil
}

// Close drops this instance's registry entry and its backing-store
// connection. It does not flush anything (the store is transactional),
// but it does discard the open-file table: open descriptors become
// invalid.
func (fs *FS) Close() error {
	registryMu.Lock()
	delete(registry, fs.id)
	registryMu.Unlock()
	return fs.store.Close()
}

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

package inode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
	"github.com/pedrocarlo/agentfs/internal/clock"
)

type fakeRefs struct{ refs map[types.Ino]int }

func (f *fakeRefs) OpenRefs(ino types.Ino) int { return f.refs[ino] }

func newTestStore(t *testing.T) (*store.Store, *Store, *fakeRefs) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, store.Migrate(context.Background(), st.DB, 4096))

	refs := &fakeRefs{refs: map[types.Ino]int{}}
	fc := clock.NewFakeClock(time.Unix(1_700_000_000, 0))
	return st, New(fc, refs), refs
}

func TestAllocateAssignsIncreasingInoAndNlinkZero(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	a, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	b, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)

	require.Greater(t, b, a)

	in, err := inodes.Load(ctx, st.DB, a)
	require.NoError(t, err)
	require.EqualValues(t, 0, in.Nlink)
}

func TestAllocateDirectoryStartsWithNlinkTwo(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	ino, err := inodes.Allocate(ctx, st.DB, types.KindDirectory, types.DefaultDirMode, 0, 0)
	require.NoError(t, err)

	in, err := inodes.Load(ctx, st.DB, ino)
	require.NoError(t, err)
	require.EqualValues(t, 2, in.Nlink)
}

func TestLoadMissingInodeIsNotFound(t *testing.T) {
	st, inodes, _ := newTestStore(t)

	_, err := inodes.Load(context.Background(), st.DB, 999)

	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNotFound, kind)
}

func TestMaybeDeleteSkipsWhileNlinkNonZero(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	ino, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	require.NoError(t, inodes.BumpNlink(ctx, st.DB, ino, 1))

	require.NoError(t, inodes.MaybeDelete(ctx, st.DB, ino))

	_, err = inodes.Load(ctx, st.DB, ino)
	require.NoError(t, err)
}

func TestMaybeDeleteSkipsWhileOpen(t *testing.T) {
	st, inodes, refs := newTestStore(t)
	ctx := context.Background()

	ino, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	refs.refs[ino] = 1 // still held open by a descriptor

	require.NoError(t, inodes.MaybeDelete(ctx, st.DB, ino))

	_, err = inodes.Load(ctx, st.DB, ino)
	require.NoError(t, err, "inode must survive while a descriptor is open")
}

func TestMaybeDeleteRemovesWhenUnreferenced(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	ino, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)

	require.NoError(t, inodes.MaybeDelete(ctx, st.DB, ino))

	_, err = inodes.Load(ctx, st.DB, ino)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNotFound, kind)
}

func TestMaybeDeleteNeverRemovesRoot(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, inodes.MaybeDelete(ctx, st.DB, types.RootIno))

	_, err := inodes.Load(ctx, st.DB, types.RootIno)
	require.NoError(t, err)
}

func TestSweepOrphansDeletesNlinkZeroInodes(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	orphan, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	live, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	require.NoError(t, inodes.BumpNlink(ctx, st.DB, live, 1))

	n, err := SweepOrphans(ctx, st.DB)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = inodes.Load(ctx, st.DB, orphan)
	require.Error(t, err)
	_, err = inodes.Load(ctx, st.DB, live)
	require.NoError(t, err)
}

func TestTouchUpdatesOnlyRequestedField(t *testing.T) {
	st, inodes, _ := newTestStore(t)
	ctx := context.Background()

	ino, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	before, err := inodes.Load(ctx, st.DB, ino)
	require.NoError(t, err)

	fc := inodes.Clock.(*clock.FakeClock)
	fc.Advance(time.Hour)

	require.NoError(t, inodes.Touch(ctx, st.DB, ino, Atime))

	after, err := inodes.Load(ctx, st.DB, ino)
	require.NoError(t, err)
	require.Greater(t, after.Atime, before.Atime)
	require.Equal(t, before.Mtime, after.Mtime)
	require.Equal(t, before.Ctime, after.Ctime)
}

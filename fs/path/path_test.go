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

package path

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pedrocarlo/agentfs/fs/dirent"
	"github.com/pedrocarlo/agentfs/fs/inode"
	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
	"github.com/pedrocarlo/agentfs/internal/clock"
)

func TestSplit(t *testing.T) {
	cases := []struct {
		in             string
		wantComponents []string
		wantTrailing   bool
	}{
		{"/", nil, false},
		{"/a/b/c", []string{"a", "b", "c"}, false},
		{"/a/b/", []string{"a", "b"}, true},
		{"a/./b", []string{"a", "b"}, false},
		{"/a/../b", []string{"b"}, false},
		{"/../../a", []string{"a"}, false},
	}
	for _, tc := range cases {
		components, trailing := Split(tc.in)
		require.Equal(t, tc.wantComponents, components, tc.in)
		require.Equal(t, tc.wantTrailing, trailing, tc.in)
	}
}

type noRefs struct{}

func (noRefs) OpenRefs(types.Ino) int { return 0 }

func newTestResolver(t *testing.T) (*store.Store, *Resolver, *dirent.Store, *inode.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, store.Migrate(context.Background(), st.DB, 4096))

	fc := clock.NewFakeClock(time.Unix(1_700_000_000, 0))
	inodes := inode.New(fc, noRefs{})
	dirents := dirent.New(inodes)
	return st, New(dirents, inodes), dirents, inodes
}

func TestResolveNestedPath(t *testing.T) {
	st, resolver, dirents, inodes := newTestResolver(t)
	ctx := context.Background()

	sub, err := inodes.Allocate(ctx, st.DB, types.KindDirectory, types.DefaultDirMode, 0, 0)
	require.NoError(t, err)
	subInode, err := inodes.Load(ctx, st.DB, sub)
	require.NoError(t, err)
	require.NoError(t, dirents.LinkEntry(ctx, st.DB, types.RootIno, "sub", subInode))

	file, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	fileInode, err := inodes.Load(ctx, st.DB, file)
	require.NoError(t, err)
	require.NoError(t, dirents.LinkEntry(ctx, st.DB, sub, "f", fileInode))

	got, err := resolver.Resolve(ctx, st.DB, types.RootIno, "/sub/f")
	require.NoError(t, err)
	require.Equal(t, file, got)
}

func TestResolveMissingComponentIsNotFound(t *testing.T) {
	st, resolver, _, _ := newTestResolver(t)

	_, err := resolver.Resolve(context.Background(), st.DB, types.RootIno, "/nope")

	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNotFound, kind)
}

func TestResolveThroughNonDirectoryIsNotDirectory(t *testing.T) {
	st, resolver, dirents, inodes := newTestResolver(t)
	ctx := context.Background()
	file, err := inodes.Allocate(ctx, st.DB, types.KindRegular, types.DefaultFileMode, 0, 0)
	require.NoError(t, err)
	fileInode, err := inodes.Load(ctx, st.DB, file)
	require.NoError(t, err)
	require.NoError(t, dirents.LinkEntry(ctx, st.DB, types.RootIno, "f", fileInode))

	_, err = resolver.Resolve(ctx, st.DB, types.RootIno, "/f/g")

	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNotDirectory, kind)
}

func TestResolveParentOfTopLevelName(t *testing.T) {
	st, resolver, _, _ := newTestResolver(t)

	parent, name, err := resolver.ResolveParent(context.Background(), st.DB, types.RootIno, "/foo")
	require.NoError(t, err)
	require.Equal(t, types.RootIno, parent)
	require.Equal(t, "foo", name)
}

func TestResolveParentOfRelativeName(t *testing.T) {
	st, resolver, _, _ := newTestResolver(t)

	parent, name, err := resolver.ResolveParent(context.Background(), st.DB, types.RootIno, "foo")
	require.NoError(t, err)
	require.Equal(t, types.RootIno, parent)
	require.Equal(t, "foo", name)
}

func TestResolveParentNested(t *testing.T) {
	st, resolver, dirents, inodes := newTestResolver(t)
	ctx := context.Background()
	sub, err := inodes.Allocate(ctx, st.DB, types.KindDirectory, types.DefaultDirMode, 0, 0)
	require.NoError(t, err)
	subInode, err := inodes.Load(ctx, st.DB, sub)
	require.NoError(t, err)
	require.NoError(t, dirents.LinkEntry(ctx, st.DB, types.RootIno, "sub", subInode))

	parent, name, err := resolver.ResolveParent(ctx, st.DB, types.RootIno, "/sub/f")
	require.NoError(t, err)
	require.Equal(t, sub, parent)
	require.Equal(t, "f", name)
}

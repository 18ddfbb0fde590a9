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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/pedrocarlo/agentfs/fs/handle"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// ScenarioTest covers the end-to-end scenarios from the filesystem-semantics
// section: S1 (hard links), S2 (sparse files) is covered in fs/block, S3
// (rename replace), S4 (rmdir non-empty) is covered in fs/dirent, S5 (link
// errors) and S6 (persistence across reopen).
type ScenarioTest struct {
	suite.Suite
	ctx context.Context
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioTest))
}

func (s *ScenarioTest) SetupTest() {
	s.ctx = context.Background()
}

func (s *ScenarioTest) openInstance(id, dsn string) *FS {
	fsys, err := Open(s.ctx, Config{DSN: dsn, InstanceID: id})
	s.Require().NoError(err)
	return fsys
}

// S1: hard links share an inode number and content; unlinking one name
// leaves the other intact with nlink==1.
func (s *ScenarioTest) TestS1HardLink() {
	fsys := s.openInstance("s1", ":memory:")
	defer fsys.Close()

	s.Require().NoError(fsys.WriteFile(s.ctx, "/a", []byte("test content\n")))
	s.Require().NoError(fsys.Link(s.ctx, "/a", "/b"))

	statA, err := fsys.Stat(s.ctx, "/a")
	s.Require().NoError(err)
	statB, err := fsys.Stat(s.ctx, "/b")
	s.Require().NoError(err)
	s.Require().Equal(statA.Ino, statB.Ino)

	s.Require().NoError(fsys.WriteFile(s.ctx, "/b", []byte("modified")))
	data, err := fsys.ReadFile(s.ctx, "/a")
	s.Require().NoError(err)
	s.Require().Equal("modified", string(data))

	s.Require().NoError(fsys.Unlink(s.ctx, "/a"))
	data, err = fsys.ReadFile(s.ctx, "/b")
	s.Require().NoError(err)
	s.Require().Equal("modified", string(data))

	statB, err = fsys.Stat(s.ctx, "/b")
	s.Require().NoError(err)
	s.Require().EqualValues(1, statB.Nlink)
}

// S3: renaming onto an existing compatible destination replaces it.
func (s *ScenarioTest) TestS3RenameReplace() {
	fsys := s.openInstance("s3", ":memory:")
	defer fsys.Close()

	s.Require().NoError(fsys.WriteFile(s.ctx, "/x", []byte("1")))
	s.Require().NoError(fsys.WriteFile(s.ctx, "/y", []byte("2")))
	s.Require().NoError(fsys.Rename(s.ctx, "/x", "/y"))

	exists, err := fsys.Exists(s.ctx, "/x")
	s.Require().NoError(err)
	s.Require().False(exists)

	data, err := fsys.ReadFile(s.ctx, "/y")
	s.Require().NoError(err)
	s.Require().Equal("1", string(data))
}

// S5: link() error cases.
func (s *ScenarioTest) TestS5LinkErrors() {
	fsys := s.openInstance("s5", ":memory:")
	defer fsys.Close()

	err := fsys.Link(s.ctx, "/nope", "/dst")
	kind, ok := types.KindOf(err)
	s.Require().True(ok)
	s.Require().Equal(types.KindNotFound, kind)

	s.Require().NoError(fsys.WriteFile(s.ctx, "/a", nil))
	s.Require().NoError(fsys.WriteFile(s.ctx, "/b", nil))
	err = fsys.Link(s.ctx, "/a", "/b")
	kind, ok = types.KindOf(err)
	s.Require().True(ok)
	s.Require().Equal(types.KindExists, kind)

	s.Require().NoError(fsys.Mkdir(s.ctx, "/dd", false))
	err = fsys.Link(s.ctx, "/dd", "/e")
	kind, ok = types.KindOf(err)
	s.Require().True(ok)
	s.Require().True(kind == types.KindPermission || kind == types.KindIsDirectory)
}

// S6: data survives closing and reopening the same backing store.
func (s *ScenarioTest) TestS6Persistence() {
	dsn := filepath.Join(s.T().TempDir(), "agentfs.db")

	first := s.openInstance("s6", dsn)
	s.Require().NoError(first.WriteFile(s.ctx, "/persist", []byte("hello")))
	s.Require().NoError(first.Close())

	second := s.openInstance("s6", dsn)
	defer second.Close()
	data, err := second.ReadFile(s.ctx, "/persist")
	s.Require().NoError(err)
	s.Require().Equal("hello", string(data))
}

func TestOpenReturnsSameInstanceForSameID(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, Config{DSN: ":memory:", InstanceID: "shared"})
	require.NoError(t, err)
	defer a.Close()

	b, err := Open(ctx, Config{DSN: "ignored-because-cached", InstanceID: "shared"})
	require.NoError(t, err)

	require.Same(t, a, b)
}

func TestMkdirRecursiveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fsys, err := Open(ctx, Config{DSN: ":memory:", InstanceID: "mkdir-p"})
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.Mkdir(ctx, "/a/b/c", true))
	require.NoError(t, fsys.Mkdir(ctx, "/a/b/c", true), "recursive mkdir of an existing path is a no-op")

	st, err := fsys.Stat(ctx, "/a/b/c")
	require.NoError(t, err)
	require.Equal(t, types.KindDirectory, st.Kind)
}

func TestOpenUnlinkedStaysReadableUntilClose(t *testing.T) {
	ctx := context.Background()
	fsys, err := Open(ctx, Config{DSN: ":memory:", InstanceID: "open-unlinked"})
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.WriteFile(ctx, "/tmp", []byte("still here")))
	st, err := fsys.Stat(ctx, "/tmp")
	require.NoError(t, err)
	fd, err := fsys.Open(ctx, "/tmp", handle.ORDONLY, 0)
	require.NoError(t, err)

	require.NoError(t, fsys.Unlink(ctx, "/tmp"))

	exists, err := fsys.Exists(ctx, "/tmp")
	require.NoError(t, err)
	require.False(t, exists)

	buf := make([]byte, 32)
	n, err := fsys.Read(ctx, fd, buf)
	require.NoError(t, err)
	require.Equal(t, "still here", string(buf[:n]))

	require.NoError(t, fsys.Close(ctx, fd))

	var remaining int
	row := fsys.store.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM blocks WHERE ino = ?`, st.Ino)
	require.NoError(t, row.Scan(&remaining))
	require.Zero(t, remaining, "blocks for the deleted inode must be gone once the last fd closes")
}

// The low-level POSIX surface (Open/Pwrite/Ftruncate/Fstat/Pread/Close)
// threads offset, size, and cursor correctly end to end, including a
// write past EOF whose unwritten gap reads back as zeros.
func TestPosixSurfaceSparseWriteReadBack(t *testing.T) {
	ctx := context.Background()
	fsys, err := Open(ctx, Config{DSN: ":memory:", InstanceID: "posix-surface"})
	require.NoError(t, err)
	defer fsys.Close()

	fd, err := fsys.Open(ctx, "/sparse", OWRONLY|OCREAT, 0o644)
	require.NoError(t, err)

	n, err := fsys.Pwrite(ctx, fd, []byte("tail"), 100)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	st, err := fsys.Fstat(ctx, fd)
	require.NoError(t, err)
	require.EqualValues(t, 104, st.Size)

	require.NoError(t, fsys.Ftruncate(ctx, fd, 102))

	st, err = fsys.Fstat(ctx, fd)
	require.NoError(t, err)
	require.EqualValues(t, 102, st.Size)

	buf := make([]byte, 102)
	n, err = fsys.Pread(ctx, fd, buf, 0)
	require.NoError(t, err)
	require.Equal(t, 102, n)
	require.Equal(t, make([]byte, 100), buf[:100], "region before the write reads back as zeros")
	require.Equal(t, "ta", string(buf[100:102]), "truncate trimmed the tail to its first two bytes")

	require.NoError(t, fsys.Close(ctx, fd))
}

func TestWriteStringReadStringRoundTrip(t *testing.T) {
	ctx := context.Background()
	fsys, err := Open(ctx, Config{DSN: ":memory:", InstanceID: "text-layer"})
	require.NoError(t, err)
	defer fsys.Close()

	require.NoError(t, fsys.WriteString(ctx, "/note.txt", "hi there"))

	got, err := fsys.ReadString(ctx, "/note.txt")
	require.NoError(t, err)
	require.Equal(t, "hi there", got)
}

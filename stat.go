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

import "github.com/pedrocarlo/agentfs/fs/types"

// Stat is the host-facing attribute snapshot returned by Stat and
// Fstat. Its fields deliberately mirror struct stat so a POSIX-facing
// caller (spec §6, "tool adapter contract") can map it 1:1: st_ino is
// stable within an instance, hard links share st_ino, and st_nlink
// reflects the live number of names.
type Stat struct {
	Ino   uint64
	Kind  types.Kind
	Mode  uint16
	Nlink uint32
	Size  uint64
	Ctime int64
	Mtime int64
	Atime int64
	Uid   uint32
	Gid   uint32
}

// DirEntry is one entry of a Readdir listing.
type DirEntry struct {
	Name string
	Ino  uint64
	Kind types.Kind
}

func statFromInode(in types.Inode) Stat {
	return Stat{
		Ino:   in.Ino,
		Kind:  in.Kind,
		Mode:  in.Mode,
		Nlink: in.Nlink,
		Size:  in.Size,
		Ctime: in.Ctime,
		Mtime: in.Mtime,
		Atime: in.Atime,
		Uid:   in.Uid,
		Gid:   in.Gid,
	}
}

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

// Package path is the path resolver (spec §4.F): walking a path
// component by component through the directory layer, from either the
// root or a configured working directory.
package path

import (
	"context"
	"strings"

	"github.com/pedrocarlo/agentfs/fs/dirent"
	"github.com/pedrocarlo/agentfs/fs/inode"
	"github.com/pedrocarlo/agentfs/fs/store"
	"github.com/pedrocarlo/agentfs/fs/types"
)

// Resolver walks paths using the directory and inode layers.
type Resolver struct {
	Dirents *dirent.Store
	Inodes  *inode.Store
}

func New(d *dirent.Store, i *inode.Store) *Resolver {
	return &Resolver{Dirents: d, Inodes: i}
}

// Split breaks path into components, dropping empty segments and "."
// entries and resolving ".." by popping the stack — but never above
// root. It also reports whether the original path had a trailing slash,
// which requires the final component to resolve to a directory.
func Split(p string) (components []string, trailingSlash bool) {
	trailingSlash = strings.HasSuffix(p, "/") && p != "/"
	for _, part := range strings.Split(p, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(components) > 0 {
				components = components[:len(components)-1]
			}
		default:
			components = append(components, part)
		}
	}
	return components, trailingSlash
}

// Resolve walks path starting from cwd (use types.RootIno for an
// absolute path) and returns the inode number of the final component.
// Fails with NotFound on a missing intermediate, NotDirectory if a
// non-final component isn't a directory, and NotDirectory if the final
// component with a trailing slash isn't a directory.
func (r *Resolver) Resolve(ctx context.Context, q store.Querier, cwd types.Ino, p string) (types.Ino, error) {
	if p == "" {
		return 0, types.NewError(types.KindInvalidArgument, "resolve", p, nil)
	}

	start := cwd
	if strings.HasPrefix(p, "/") {
		start = types.RootIno
	}

	components, trailingSlash := Split(p)
	cur := start

	for i, name := range components {
		in, err := r.Inodes.Load(ctx, q, cur)
		if err != nil {
			return 0, err
		}
		if !in.IsDir() {
			return 0, types.NewError(types.KindNotDirectory, "resolve", name, nil)
		}

		child, err := r.Dirents.Lookup(ctx, q, cur, name)
		if err != nil {
			return 0, err
		}
		cur = child

		isFinal := i == len(components)-1
		if isFinal && trailingSlash {
			childInode, err := r.Inodes.Load(ctx, q, cur)
			if err != nil {
				return 0, err
			}
			if !childInode.IsDir() {
				return 0, types.NewError(types.KindNotDirectory, "resolve", name, nil)
			}
		}
	}

	return cur, nil
}

// ResolveParent resolves the parent directory of path and returns its
// inode along with the final path component's name, for operations
// (link, mkdir, unlink, rename) that need to act on a name within a
// directory rather than the resolved target itself.
func (r *Resolver) ResolveParent(ctx context.Context, q store.Querier, cwd types.Ino, p string) (parent types.Ino, name string, err error) {
	components, _ := Split(p)
	if len(components) == 0 {
		return 0, "", types.NewError(types.KindInvalidArgument, "resolve-parent", p, nil)
	}

	name = components[len(components)-1]
	dirComponents := strings.Join(components[:len(components)-1], "/")
	dirPath := dirComponents
	if strings.HasPrefix(p, "/") {
		dirPath = "/" + dirComponents
	}

	if dirPath == "" {
		parent = cwd
		return parent, name, nil
	}

	parent, err = r.Resolve(ctx, q, cwd, dirPath)
	return parent, name, err
}

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

import "context"

// WriteString is the utf8 convenience wrapper over WriteFile mentioned in
// spec §6: agent tool calls deal in text, not bytes, almost everywhere.
func (fs *FS) WriteString(ctx context.Context, path string, data string) error {
	return fs.WriteFile(ctx, path, []byte(data))
}

// ReadString is the utf8 convenience wrapper over ReadFile.
func (fs *FS) ReadString(ctx context.Context, path string) (string, error) {
	data, err := fs.ReadFile(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

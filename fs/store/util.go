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
	"fmt"
	"strconv"
	"time"
)

func itoa(i int) string { return strconv.Itoa(i) }

func nowUnix() int64 { return time.Now().Unix() }

func errBlockSizeMismatch(existing, requested int) error {
	return fmt.Errorf("instance was created with block_size=%d, cannot reopen with block_size=%d", existing, requested)
}

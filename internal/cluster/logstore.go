/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cluster

import (
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"
)

// commitIdxKey is a stable-store witness key FlyDB writes on every
// applied index. Nothing in hashicorp/raft needs it (the library
// tracks its own commit index internally); it exists so INFO and
// crash-recovery tooling can answer "what was last applied" by
// reading the same BoltDB file the log lives in, without attaching to
// a running node.
var commitIdxKey = []byte("flydb_commit_idx")

// BoltStores bundles the LogStore and StableStore hashicorp/raft
// needs, both backed by a single BoltDB file via raft-boltdb.
type BoltStores struct {
	*raftboltdb.BoltStore
	lastApplied uint64
}

// OpenBoltStores opens (creating if absent) the Raft log/stable store
// file under dataDir.
func OpenBoltStores(dataDir string) (*BoltStores, error) {
	store, err := raftboltdb.NewBoltStore(filepath.Join(dataDir, "raft.db"))
	if err != nil {
		return nil, err
	}
	b := &BoltStores{BoltStore: store}
	if v, err := store.GetUint64(commitIdxKey); err == nil {
		b.lastApplied = v
	}
	return b, nil
}

// RecordApplied persists the witness commit index. Called from
// FSM.Apply (via FSM.recordApplied) after each applied entry.
func (b *BoltStores) RecordApplied(index uint64) error {
	atomic.StoreUint64(&b.lastApplied, index)
	return b.SetUint64(commitIdxKey, index)
}

// LastApplied returns the most recently recorded witness commit
// index, 0 if none has ever been recorded.
func (b *BoltStores) LastApplied() uint64 {
	return atomic.LoadUint64(&b.lastApplied)
}

var _ raft.LogStore = (*BoltStores)(nil)
var _ raft.StableStore = (*BoltStores)(nil)

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
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// PeerLinkStatus is a snapshot of one peer's connection-state, the
// piece of bookkeeping the text transport doesn't need internally
// (reconnects happen lazily in getConn) but INFO and operators do
// want: when did we last talk to this peer and how is it doing.
type PeerLinkStatus struct {
	ID          raft.ServerID
	Address     raft.ServerAddress
	State       ConnState
	LastContact time.Time
	LastError   error
}

// PeerRegistry tracks connection state per known peer, updated by the
// text transport's AppendEntries/RequestVote call sites and read by
// the INFO handler.
type PeerRegistry struct {
	mu    sync.RWMutex
	peers map[raft.ServerID]*PeerLinkStatus
}

// NewPeerRegistry returns an empty registry.
func NewPeerRegistry() *PeerRegistry {
	return &PeerRegistry{peers: make(map[raft.ServerID]*PeerLinkStatus)}
}

// Touch records an id/address pair as known to the cluster, adding it
// if new.
func (r *PeerRegistry) Touch(id raft.ServerID, addr raft.ServerAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		p = &PeerLinkStatus{ID: id, Address: addr, State: Disconnected}
		r.peers[id] = p
	}
	p.Address = addr
}

// MarkConnected records a successful RPC round-trip to id.
func (r *PeerRegistry) MarkConnected(id raft.ServerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.State = Connected
		p.LastContact = time.Now()
		p.LastError = nil
	}
}

// MarkFailed records a failed RPC attempt to id.
func (r *PeerRegistry) MarkFailed(id raft.ServerID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.peers[id]; ok {
		p.State = Disconnected
		p.LastError = err
	}
}

// Remove drops a peer from the registry, used on CFGCHANGE_REMOVENODE.
func (r *PeerRegistry) Remove(id raft.ServerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, id)
}

// Snapshot returns a copy of all known peer statuses, in no particular
// order.
func (r *PeerRegistry) Snapshot() []PeerLinkStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerLinkStatus, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

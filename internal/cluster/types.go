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

/*
Package cluster implements FlyDB's Raft coordination engine: the
request-queue boundary between the front end and the replication
goroutine, the Raft callback surface (FSM, log store, stable store),
the Peer Link transport, and the cluster-membership change path.

Term/election/commit arithmetic is provided by github.com/hashicorp/raft
and is not reimplemented here; this package is the glue between that
library and FlyDB's own request model and data store.
*/
package cluster

import (
	"sync"

	"github.com/hashicorp/raft"
)

// ReqKind identifies the kind of a RaftReq.
type ReqKind int

const (
	ReqCfgChangeAddNode ReqKind = iota
	ReqCfgChangeRemoveNode
	ReqAppendEntries
	ReqRequestVote
	ReqRedisCommand
	ReqInfo
)

func (k ReqKind) String() string {
	switch k {
	case ReqCfgChangeAddNode:
		return "CFGCHANGE_ADDNODE"
	case ReqCfgChangeRemoveNode:
		return "CFGCHANGE_REMOVENODE"
	case ReqAppendEntries:
		return "APPENDENTRIES"
	case ReqRequestVote:
		return "REQUESTVOTE"
	case ReqRedisCommand:
		return "REDISCOMMAND"
	case ReqInfo:
		return "INFO"
	default:
		return "UNKNOWN"
	}
}

// ReqFlags carries per-request bookkeeping flags.
type ReqFlags uint32

const (
	// FlagPendingCommit marks a request whose reply is deferred until
	// its log entry commits and is applied (I4).
	FlagPendingCommit ReqFlags = 1 << iota
)

// BlockedClient is the minimal surface the front-end collaborator
// offers for "block this client, unblock later with this reply." The
// network protocol front end is out of scope for this package; this
// interface is the boundary it would implement.
type BlockedClient interface {
	// Reply sends data back to the blocked client without unblocking it.
	Reply(data []byte)
	// Unblock releases the client to process further requests.
	Unblock()
}

// RaftReq is the tagged-union request the front end enqueues and the
// replication goroutine's handler dispatch table consumes.
type RaftReq struct {
	Kind    ReqKind
	Client  BlockedClient
	Flags   ReqFlags
	Command [][]byte    // argv, for ReqRedisCommand
	CfgNode CfgChange   // for ReqCfgChangeAddNode / ReqCfgChangeRemoveNode
	RPC     *inboundRPC // for ReqAppendEntries / ReqRequestVote (audit copy, see DESIGN.md)

	mu     sync.Mutex
	freed  bool
}

// MarkFreed records that this request's resources have been released.
// It is idempotent: calling it twice is a programming error the
// caller should avoid, but is made safe rather than fatal because the
// handler and the apply path both sit on error-recovery branches that
// can race to free the same request exactly once in practice.
func (r *RaftReq) MarkFreed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.freed {
		return false
	}
	r.freed = true
	return true
}

// CfgChange is the payload of a membership-change log entry: the
// joining/leaving node's id and address.
type CfgChange struct {
	ID      raft.ServerID
	Address raft.ServerAddress
}

// ConnState is the lifecycle state of a PeerLink's outbound connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

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

package errors

import "fmt"

// Raft coordination engine errors (7000-7999).
const (
	ErrCodeRaft              ErrorCode = 7000
	ErrCodeRaftCodec         ErrorCode = 7001
	ErrCodeRaftMalformedReply ErrorCode = 7002
	ErrCodeRaftPeerDisconnected ErrorCode = 7003
	ErrCodeRaftDiskFlushFailed  ErrorCode = 7004
	ErrCodeRaftEntryRejected    ErrorCode = 7005
	ErrCodeRaftNoLeader         ErrorCode = 7006
	ErrCodeRaftSelfRemoved      ErrorCode = 7007
	ErrCodeRaftMalformedRPC     ErrorCode = 7008
)

// CategoryRaft is the error category for the Raft coordination engine.
const CategoryRaft Category = "RAFT"

// NewRaftError creates a new Raft-category error with the given code.
func NewRaftError(code ErrorCode, message string) *FlyDBError {
	return &FlyDBError{
		Code:     code,
		Category: CategoryRaft,
		Message:  message,
	}
}

// RaftMalformedReply is returned when a peer's RPC reply cannot be parsed.
// The text transport returns it to the Raft library as that RPC's error;
// the reply is not logged and dropped.
func RaftMalformedReply(peer, detail string) *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftMalformedReply,
		Category: CategoryRaft,
		Message:  fmt.Sprintf("malformed reply from peer %s", peer),
		Detail:   detail,
	}
}

// RaftPeerDisconnected is returned when a send is attempted against a
// peer link that is not connected. The caller reconnects lazily.
func RaftPeerDisconnected(peer string) *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftPeerDisconnected,
		Category: CategoryRaft,
		Message:  fmt.Sprintf("peer %s is disconnected", peer),
		Hint:     "the connection will be retried on the next send",
	}
}

// RaftDiskFlushFailed is fatal: the node must shut down rather than
// risk losing the durability invariants on current_term/voted_for/commit_idx.
func RaftDiskFlushFailed(what string, cause error) *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftDiskFlushFailed,
		Category: CategoryRaft,
		Message:  fmt.Sprintf("failed to durably persist %s", what),
		Cause:    cause,
		Hint:     "this node must shut down to avoid violating durability invariants",
	}
}

// RaftEntryRejected is returned when the Raft library rejects a
// submitted entry (e.g. not leader, or leadership lost mid-flight).
func RaftEntryRejected(cause error) *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftEntryRejected,
		Category: CategoryRaft,
		Message:  "log entry rejected by the Raft engine",
		Cause:    cause,
	}
}

// RaftNoLeader is returned by the REDISCOMMAND handler when no leader
// is currently known.
func RaftNoLeader() *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftNoLeader,
		Category: CategoryRaft,
		Message:  "no leader known",
	}
}

// RaftSelfRemoved is returned from the apply path when a committed
// REMOVE_NODE entry targets this node; the node exits cleanly.
func RaftSelfRemoved() *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftSelfRemoved,
		Category: CategoryRaft,
		Message:  "this node was removed from the cluster",
	}
}

// RaftMalformedRPC is returned when an inbound peer RPC cannot be
// parsed as the expected text protocol command.
func RaftMalformedRPC(detail string) *FlyDBError {
	return &FlyDBError{
		Code:     ErrCodeRaftMalformedRPC,
		Category: CategoryRaft,
		Message:  "malformed inbound RPC",
		Detail:   detail,
	}
}

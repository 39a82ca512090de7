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

import (
	"errors"
	"strings"
	"testing"
)

func TestRaftErrorConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *FlyDBError
		code ErrorCode
	}{
		{"RaftMalformedReply", RaftMalformedReply("node2", "short array"), ErrCodeRaftMalformedReply},
		{"RaftPeerDisconnected", RaftPeerDisconnected("node2"), ErrCodeRaftPeerDisconnected},
		{"RaftDiskFlushFailed", RaftDiskFlushFailed("voted_for", errors.New("disk full")), ErrCodeRaftDiskFlushFailed},
		{"RaftEntryRejected", RaftEntryRejected(errors.New("not leader")), ErrCodeRaftEntryRejected},
		{"RaftNoLeader", RaftNoLeader(), ErrCodeRaftNoLeader},
		{"RaftSelfRemoved", RaftSelfRemoved(), ErrCodeRaftSelfRemoved},
		{"RaftMalformedRPC", RaftMalformedRPC("bad argc"), ErrCodeRaftMalformedRPC},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Expected code %d, got %d", tt.code, tt.err.Code)
			}
			if tt.err.Category != CategoryRaft {
				t.Errorf("Expected category %s, got %s", CategoryRaft, tt.err.Category)
			}
			if !IsRaftError(tt.err) {
				t.Error("Expected IsRaftError to return true")
			}
		})
	}
}

func TestRaftDiskFlushFailedUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := RaftDiskFlushFailed("voted_for", cause)
	if err.Unwrap() != cause {
		t.Error("expected Unwrap to return the underlying cause")
	}
	if !strings.Contains(err.UserMessage(), "shut down") {
		t.Error("expected hint about shutdown in user message")
	}
}

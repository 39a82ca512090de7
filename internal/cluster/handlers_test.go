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
	"testing"
	"time"

	"github.com/hashicorp/raft"
)

// TestPendingCommitApplyPath is P5: a REDISCOMMAND submitted to the
// leader is held PENDING_COMMIT until FSM.Apply actually runs the
// entry, at which point the original client is replied to directly
// from the apply path rather than from handleRedisCommand itself.
func TestPendingCommitApplyPath(t *testing.T) {
	n, engine := newTestNode(t, "solo", true)
	if !waitForCondition(5*time.Second, n.IsLeader) {
		t.Fatal("solo node never became leader")
	}

	setClient := newFakeClient()
	n.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  setClient,
		Command: [][]byte{[]byte("SET"), []byte("k"), []byte("v1")},
	})
	if reply := setClient.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
		t.Fatalf("SET reply = %q, want +OK", reply)
	}

	v, err := engine.Get([]byte("k"))
	if err != nil {
		t.Fatalf("engine.Get: %v", err)
	}
	if string(v) != "v1" {
		t.Fatalf("engine value = %q, want v1", v)
	}

	delClient := newFakeClient()
	n.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  delClient,
		Command: [][]byte{[]byte("DEL"), []byte("k")},
	})
	if reply := delClient.waitReply(t, 5*time.Second); string(reply) != ":1\r\n" {
		t.Fatalf("DEL reply = %q, want :1", reply)
	}

	v, err = engine.Get([]byte("k"))
	if err != nil {
		t.Fatalf("engine.Get after DEL: %v", err)
	}
	if v != nil {
		t.Fatalf("key survived DEL: %q", v)
	}
}

// TestPendingCommitRejectsUnsupportedCommand confirms the narrow
// replicated command set (SET/DEL) still resolves the pending client
// with an error reply rather than leaving it blocked forever.
func TestPendingCommitRejectsUnsupportedCommand(t *testing.T) {
	n, _ := newTestNode(t, "solo2", true)
	if !waitForCondition(5*time.Second, n.IsLeader) {
		t.Fatal("solo2 node never became leader")
	}

	client := newFakeClient()
	n.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  client,
		Command: [][]byte{[]byte("INCR"), []byte("k")},
	})
	reply := client.waitReply(t, 5*time.Second)
	if len(reply) == 0 || reply[0] != '-' {
		t.Fatalf("expected an error reply for an unsupported command, got %q", reply)
	}
}

// TestRedisCommandNoLeaderBeforeElection is the NOLEADER branch of
// handleRedisCommand: a node that hasn't yet settled on a leader
// rejects a REDISCOMMAND immediately rather than blocking it.
func TestRedisCommandNoLeaderBeforeElection(t *testing.T) {
	n, _ := newTestNode(t, "pending", false)

	client := newFakeClient()
	n.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  client,
		Command: [][]byte{[]byte("SET"), []byte("k"), []byte("v")},
	})
	reply := client.waitReply(t, 5*time.Second)
	if len(reply) == 0 || reply[0] != '-' {
		t.Fatalf("expected a NOLEADER error reply, got %q", reply)
	}
}

// TestConfigChangeAddPromotes is scenario 5: a node joined via
// CFGCHANGE_ADDNODE starts as a nonvoter and is promoted once
// promoteCaughtUpVoters sees it as recently contacted.
func TestConfigChangeAddPromotes(t *testing.T) {
	leader, _ := newTestNode(t, "leader", true)
	if !waitForCondition(5*time.Second, leader.IsLeader) {
		t.Fatal("leader node never became leader")
	}
	joiner, _ := newTestNode(t, "joiner", false)

	addClient := newFakeClient()
	leader.Submit(&RaftReq{
		Kind:    ReqCfgChangeAddNode,
		Client:  addClient,
		CfgNode: CfgChange{ID: raft.ServerID("joiner"), Address: joiner.transport.LocalAddr()},
	})
	if reply := addClient.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
		t.Fatalf("CFGCHANGE_ADDNODE reply = %q, want +OK", reply)
	}

	leader.nonvotersMu.Lock()
	_, tracked := leader.nonvoters[raft.ServerID("joiner")]
	leader.nonvotersMu.Unlock()
	if !tracked {
		t.Fatal("joiner was not tracked as a nonvoter after CFGCHANGE_ADDNODE")
	}

	// promoteCaughtUpVoters only promotes a nonvoter it has heard from
	// recently; mark the contact directly rather than waiting on a real
	// AppendEntries round trip to land within the test's window.
	leader.peers.MarkConnected(raft.ServerID("joiner"))
	leader.promoteCaughtUpVoters()

	if !waitForCondition(5*time.Second, func() bool {
		leader.nonvotersMu.Lock()
		defer leader.nonvotersMu.Unlock()
		_, stillNonvoter := leader.nonvoters[raft.ServerID("joiner")]
		return !stillNonvoter
	}) {
		t.Fatal("joiner was never promoted out of the nonvoter set")
	}

	cfgFuture := leader.raft.GetConfiguration()
	if err := cfgFuture.Error(); err != nil {
		t.Fatalf("GetConfiguration: %v", err)
	}
	found := false
	for _, s := range cfgFuture.Configuration().Servers {
		if s.ID == raft.ServerID("joiner") {
			found = true
			if s.Suffrage != raft.Voter {
				t.Fatalf("joiner suffrage = %v, want Voter", s.Suffrage)
			}
		}
	}
	if !found {
		t.Fatal("joiner missing from the configuration after promotion")
	}
}

// TestSelfRemove is scenario 6: a node dropped from the configuration
// via CFGCHANGE_REMOVENODE detects its own absence in FSM.Apply and
// shuts itself down.
func TestSelfRemove(t *testing.T) {
	leader, _ := newTestNode(t, "leader2", true)
	if !waitForCondition(5*time.Second, leader.IsLeader) {
		t.Fatal("leader2 node never became leader")
	}
	follower, _ := newTestNode(t, "follower", false)
	addVoter(t, leader, follower)

	if !waitForCondition(10*time.Second, func() bool {
		_, id := follower.LeaderAddr()
		return id != ""
	}) {
		t.Fatal("follower never learned the cluster leader")
	}

	removeClient := newFakeClient()
	leader.Submit(&RaftReq{
		Kind:    ReqCfgChangeRemoveNode,
		Client:  removeClient,
		CfgNode: CfgChange{ID: raft.ServerID("follower")},
	})
	if reply := removeClient.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
		t.Fatalf("CFGCHANGE_REMOVENODE reply = %q, want +OK", reply)
	}

	if !waitForCondition(10*time.Second, func() bool {
		select {
		case <-follower.stopCh:
			return true
		default:
			return false
		}
	}) {
		t.Fatal("removed node never shut itself down")
	}
}

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
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/raft"

	"flydb/internal/storage"
)

// addVoter has the cluster leader add joining as a full voter,
// failing the test if the membership change doesn't commit.
func addVoter(t *testing.T, leader, joining *Node) {
	t.Helper()
	f := leader.raft.AddVoter(raft.ServerID(joining.cfg.NodeID), joining.transport.LocalAddr(), 0, 5*time.Second)
	if err := f.Error(); err != nil {
		t.Fatalf("AddVoter(%s): %v", joining.cfg.NodeID, err)
	}
}

// newThreeNodeCluster brings up a bootstrap leader and two voters
// added to it directly through hashicorp/raft's own membership API,
// then waits for all three to agree a leader exists before returning.
func newThreeNodeCluster(t *testing.T) ([3]*Node, [3]storage.Engine) {
	t.Helper()

	var nodes [3]*Node
	var engines [3]storage.Engine

	nodes[0], engines[0] = newTestNode(t, "n1", true)
	if !waitForCondition(5*time.Second, nodes[0].IsLeader) {
		t.Fatal("bootstrap node n1 never became leader")
	}

	nodes[1], engines[1] = newTestNode(t, "n2", false)
	nodes[2], engines[2] = newTestNode(t, "n3", false)
	addVoter(t, nodes[0], nodes[1])
	addVoter(t, nodes[0], nodes[2])

	for i, n := range nodes {
		n := n
		if !waitForCondition(10*time.Second, func() bool {
			_, id := n.LeaderAddr()
			return id != ""
		}) {
			t.Fatalf("node %d (%s) never learned the cluster leader", i, n.cfg.NodeID)
		}
	}
	return nodes, engines
}

// leaderNode returns whichever of nodes currently believes itself
// leader, failing the test if none (or, by construction elsewhere,
// more than one at a time) does.
func leaderNode(t *testing.T, nodes [3]*Node) *Node {
	t.Helper()
	for _, n := range nodes {
		if n.IsLeader() {
			return n
		}
	}
	t.Fatal("no leader among the cluster's nodes")
	return nil
}

// TestThreeNodeReplication is scenario 2: a write submitted through
// the leader must reach every member's data store (P3, agreement).
func TestThreeNodeReplication(t *testing.T) {
	nodes, engines := newThreeNodeCluster(t)
	leader := leaderNode(t, nodes)

	client := newFakeClient()
	leader.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  client,
		Command: [][]byte{[]byte("SET"), []byte("k"), []byte("v")},
	})
	if reply := client.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
		t.Fatalf("SET reply = %q, want +OK", reply)
	}

	for i, e := range engines {
		e := e
		if !waitForCondition(5*time.Second, func() bool {
			v, _ := e.Get([]byte("k"))
			return string(v) == "v"
		}) {
			t.Fatalf("node %d never replicated the committed entry", i)
		}
	}
}

// TestLeaderUniqueness is P4: at any moment exactly one of the three
// nodes identifies as leader, and every other node agrees who it is.
func TestLeaderUniqueness(t *testing.T) {
	nodes, _ := newThreeNodeCluster(t)

	leaders := 0
	var leaderID raft.ServerID
	for _, n := range nodes {
		if n.IsLeader() {
			leaders++
			leaderID = raft.ServerID(n.cfg.NodeID)
		}
	}
	if leaders != 1 {
		t.Fatalf("expected exactly one leader among three nodes, found %d", leaders)
	}
	for _, n := range nodes {
		if !waitForCondition(5*time.Second, func() bool {
			_, id := n.LeaderAddr()
			return id == leaderID
		}) {
			_, id := n.LeaderAddr()
			t.Fatalf("node %s disagrees on leader: got %s, want %s", n.cfg.NodeID, id, leaderID)
		}
	}
}

// TestClusterLiveness is P7: the cluster keeps committing writes
// across a run of sequential submissions, not just a single one.
func TestClusterLiveness(t *testing.T) {
	nodes, engines := newThreeNodeCluster(t)
	leader := leaderNode(t, nodes)

	const n = 5
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%d", i)
		client := newFakeClient()
		leader.Submit(&RaftReq{
			Kind:    ReqRedisCommand,
			Client:  client,
			Command: [][]byte{[]byte("SET"), []byte(key), []byte("v")},
		})
		if reply := client.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
			t.Fatalf("SET %s reply = %q, want +OK", key, reply)
		}
	}

	for i := 0; i < n; i++ {
		key := fmt.Sprintf("key%d", i)
		for j, e := range engines {
			e := e
			if !waitForCondition(5*time.Second, func() bool {
				v, _ := e.Get([]byte(key))
				return string(v) == "v"
			}) {
				t.Fatalf("%s never replicated to node %d", key, j)
			}
		}
	}
}

// TestLeaderChange is scenario 3: once the leader is shut down, the
// surviving majority elects a new one and the cluster keeps accepting
// writes.
func TestLeaderChange(t *testing.T) {
	nodes, engines := newThreeNodeCluster(t)

	oldLeader := leaderNode(t, nodes)
	oldLeaderID := oldLeader.cfg.NodeID
	if err := oldLeader.Shutdown(); err != nil {
		t.Fatalf("shutdown old leader: %v", err)
	}

	var remaining []*Node
	var remainingEngines []storage.Engine
	for i, n := range nodes {
		if n.cfg.NodeID != oldLeaderID {
			remaining = append(remaining, n)
			remainingEngines = append(remainingEngines, engines[i])
		}
	}

	if !waitForCondition(15*time.Second, func() bool {
		for _, n := range remaining {
			if n.IsLeader() {
				return true
			}
		}
		return false
	}) {
		t.Fatal("no new leader elected among the surviving nodes")
	}

	var newLeader *Node
	for _, n := range remaining {
		if n.IsLeader() {
			newLeader = n
		}
	}
	if newLeader.cfg.NodeID == oldLeaderID {
		t.Fatal("new leader is the node that was just shut down")
	}

	client := newFakeClient()
	newLeader.Submit(&RaftReq{
		Kind:    ReqRedisCommand,
		Client:  client,
		Command: [][]byte{[]byte("SET"), []byte("after"), []byte("election")},
	})
	if reply := client.waitReply(t, 5*time.Second); string(reply) != "+OK\r\n" {
		t.Fatalf("SET reply after leader change = %q, want +OK", reply)
	}

	for i, e := range remainingEngines {
		e := e
		if !waitForCondition(5*time.Second, func() bool {
			v, _ := e.Get([]byte("after"))
			return string(v) == "election"
		}) {
			t.Fatalf("surviving node %d never replicated the post-election write", i)
		}
	}
}

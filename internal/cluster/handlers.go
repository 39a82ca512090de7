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
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/raft"

	flyerrors "flydb/internal/errors"
	"flydb/internal/raftcmd"
)

// handlerFunc processes one dequeued RaftReq. Handlers run on the
// Replication Thread (drainOnce), one request at a time. REDISCOMMAND
// waits on its Apply future from a spawned goroutine; the CFGCHANGE_*
// handlers block the thread on their configuration-change futures.
type handlerFunc func(n *Node, req *RaftReq)

// buildHandlers assembles the ReqKind -> handlerFunc dispatch table.
func (n *Node) buildHandlers() map[ReqKind]handlerFunc {
	return map[ReqKind]handlerFunc{
		ReqRedisCommand:        handleRedisCommand,
		ReqCfgChangeAddNode:    handleCfgChangeAddNode,
		ReqCfgChangeRemoveNode: handleCfgChangeRemoveNode,
		ReqAppendEntries:       handleInboundRPCAudit,
		ReqRequestVote:         handleInboundRPCAudit,
		ReqInfo:                handleInfo,
	}
}

const applyTimeout = 5 * time.Second

// handleRedisCommand is the REDISCOMMAND three-way branch: reject with
// NOLEADER if no leader is known, redirect with LEADERIS if some other
// node leads, or submit-and-defer (PENDING_COMMIT) if this node is
// leader. The reply in the submit-and-defer case is sent later, by
// FSM.Apply, once the entry commits.
func handleRedisCommand(n *Node, req *RaftReq) {
	if !n.IsLeader() {
		addr, id := n.LeaderAddr()
		if id == "" {
			replyErr(req, flyerrors.RaftNoLeader())
			return
		}
		replyErr(req, fmt.Errorf("LEADERIS %s", addr))
		return
	}

	payload := raftcmd.Encode(req.Command)
	body, err := n.comp.Compress(payload)
	if err != nil {
		replyErr(req, flyerrors.NewRaftError(flyerrors.ErrCodeRaftCodec, "failed to compress command").WithCause(err))
		return
	}
	data := make([]byte, 1+len(body))
	data[0] = byte(n.compAlgo)
	copy(data[1:], body)

	id := n.nextReqID()
	ext := make([]byte, 8)
	binary.BigEndian.PutUint64(ext, id)

	req.Flags |= FlagPendingCommit
	n.fsm.TrackPending(id, req)

	future := n.raft.ApplyLog(raft.Log{Data: data, Extensions: ext}, 0)

	// Don't block the Replication Thread on commit: on success
	// FSM.Apply (running on raft's own goroutine) will have already
	// replied by the time this resolves. Only the failure path, where
	// the entry never reaches Apply, needs to act here.
	go func() {
		if err := future.Error(); err != nil {
			if pending := n.fsm.takePending(id); pending != nil {
				replyErr(pending, flyerrors.RaftEntryRejected(err))
			}
		}
	}()
}

// handleCfgChangeAddNode adds the joining node as a Raft nonvoter.
// Nonvoters receive the log stream but cannot vote or count toward
// quorum until promoteCaughtUpVoters finds them caught up (§4.3,
// node_has_sufficient_logs).
func handleCfgChangeAddNode(n *Node, req *RaftReq) {
	if !n.IsLeader() {
		replyErr(req, flyerrors.RaftNoLeader())
		return
	}
	f := n.raft.AddNonvoter(req.CfgNode.ID, req.CfgNode.Address, 0, applyTimeout)
	if err := f.Error(); err != nil {
		replyErr(req, flyerrors.RaftEntryRejected(err))
		return
	}
	n.peers.Touch(req.CfgNode.ID, req.CfgNode.Address)
	n.nonvotersMu.Lock()
	n.nonvoters[req.CfgNode.ID] = struct{}{}
	n.nonvotersMu.Unlock()
	replyOK(req)
}

// handleCfgChangeRemoveNode removes a node from the Raft
// configuration entirely. If the removed node is this one, FSM.Apply
// detects the resulting configuration no longer contains selfID and
// triggers this node's own shutdown (I6's terminal case); that
// detection fires on whichever node is applying the entry, independent
// of which node requested the removal.
func handleCfgChangeRemoveNode(n *Node, req *RaftReq) {
	if !n.IsLeader() {
		replyErr(req, flyerrors.RaftNoLeader())
		return
	}
	f := n.raft.RemoveServer(req.CfgNode.ID, 0, applyTimeout)
	if err := f.Error(); err != nil {
		replyErr(req, flyerrors.RaftEntryRejected(err))
		return
	}
	n.peers.Remove(req.CfgNode.ID)
	n.nonvotersMu.Lock()
	delete(n.nonvoters, req.CfgNode.ID)
	n.nonvotersMu.Unlock()
	replyOK(req)
}

// handleInboundRPCAudit is the sink for the ReqQueue's audit copy of
// inbound REQUESTVOTE/APPENDENTRIES lines (see transport.go's
// publishAudit and DESIGN.md for why the copy exists). The RPC itself
// was already answered on the Peer Link's own goroutine via
// raft.Transport.Consumer(); this handler only updates bookkeeping.
func handleInboundRPCAudit(n *Node, req *RaftReq) {
	if req.RPC == nil {
		return
	}
	n.peers.Touch(req.RPC.from, "")
	n.peers.MarkConnected(req.RPC.from)
}

// promoteCaughtUpVoters is the node_has_sufficient_logs equivalent:
// hashicorp/raft has no hook to auto-promote a nonvoter once it has
// caught up, and its public API exposes no per-follower match index
// (only the aggregate raft.Stats()), so the Replication Thread polls
// each tick and approximates "caught up" with Peer Link contact
// recency instead of an exact log-gap count: a nonvoter this node has
// successfully round-tripped an AppendEntries to recently is assumed
// to be within n.promoteLogGap of the leader's last index.
func (n *Node) promoteCaughtUpVoters() {
	if !n.IsLeader() {
		return
	}
	n.nonvotersMu.Lock()
	candidates := make([]raft.ServerID, 0, len(n.nonvoters))
	for id := range n.nonvoters {
		candidates = append(candidates, id)
	}
	n.nonvotersMu.Unlock()
	if len(candidates) == 0 {
		return
	}

	cfgFuture := n.raft.GetConfiguration()
	if err := cfgFuture.Error(); err != nil {
		n.log.Warn("promote poll: failed to read configuration", "error", err)
		return
	}
	cfg := cfgFuture.Configuration()

	stats := n.raft.Stats()
	lastIndex, err := parseStatUint(stats["last_log_index"])
	if err != nil {
		return
	}

	for _, id := range candidates {
		addr, ok := serverAddress(cfg, id)
		if !ok {
			// no longer a member at all; drop it from tracking
			n.nonvotersMu.Lock()
			delete(n.nonvoters, id)
			n.nonvotersMu.Unlock()
			continue
		}
		status := n.peers.Snapshot()
		if !n.peerRecentlyContacted(status, id) {
			continue // don't promote a node we haven't heard from
		}

		future := n.raft.AddVoter(id, addr, 0, applyTimeout)
		if err := future.Error(); err != nil {
			n.log.Warn("promote nonvoter failed", "node", id, "error", err)
			continue
		}
		n.nonvotersMu.Lock()
		delete(n.nonvoters, id)
		n.nonvotersMu.Unlock()
		n.log.Info("promoted nonvoter to voter", "node", id, "last_log_index", lastIndex)
	}
}

func serverAddress(cfg raft.Configuration, id raft.ServerID) (raft.ServerAddress, bool) {
	for _, s := range cfg.Servers {
		if s.ID == id {
			return s.Address, true
		}
	}
	return "", false
}

// peerRecentlyContacted bounds how stale a PeerLinkStatus's
// LastContact may be and still count as "caught up": hashicorp/raft's
// own heartbeats refresh it constantly for a healthy follower, so a
// gap wider than n.promoteLogGap ticks means something is actually
// wrong, not just an unlucky poll.
func (n *Node) peerRecentlyContacted(statuses []PeerLinkStatus, id raft.ServerID) bool {
	window := time.Duration(n.promoteLogGap) * tickInterval
	for _, s := range statuses {
		if s.ID == id {
			return s.State == Connected && time.Since(s.LastContact) < window
		}
	}
	return false
}

func parseStatUint(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

// roleString renders a raft.RaftState the way §6's INFO contract
// expects it in the "role" key: lowercase, matching the scenarios'
// "role=leader"/"role=follower" assertions.
func roleString(s raft.RaftState) string {
	return strings.ToLower(s.String())
}

// splitHostPort breaks a Peer Link address into the host/port pair
// §6's node<i> line spells out separately (addr=…,port=…); an address
// that fails to parse (e.g. not yet known) falls back to the raw
// string as the host with an empty port.
func splitHostPort(addr raft.ServerAddress) (host, port string) {
	host, port, err := net.SplitHostPort(string(addr))
	if err != nil {
		return string(addr), ""
	}
	return host, port
}

// handleInfo builds the INFO reply exactly per §6: a bulk string with
// a "# Nodes" section (node_id, role, leader_id, current_term, then
// one node<i> line per known cluster member) and a "# Log" section
// (log_entries, current_index, commit_index, last_applied_index).
func handleInfo(n *Node, req *RaftReq) {
	var b strings.Builder

	stats := n.raft.Stats()
	_, leaderID := n.LeaderAddr()

	fmt.Fprintf(&b, "# Nodes\n")
	fmt.Fprintf(&b, "node_id:%s\n", n.cfg.NodeID)
	fmt.Fprintf(&b, "role:%s\n", roleString(n.raft.State()))
	fmt.Fprintf(&b, "leader_id:%s\n", leaderID)
	fmt.Fprintf(&b, "current_term:%s\n", stats["term"])

	peers := n.peers.Snapshot()
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	for i, p := range peers {
		host, port := splitHostPort(p.Address)
		fmt.Fprintf(&b, "node%d:id=%s,state=%s,addr=%s,port=%s\n", i, p.ID, p.State, host, port)
	}

	fmt.Fprintf(&b, "# Log\n")
	fmt.Fprintf(&b, "log_entries:%s\n", stats["last_log_index"])
	fmt.Fprintf(&b, "current_index:%s\n", stats["last_log_index"])
	fmt.Fprintf(&b, "commit_index:%s\n", stats["commit_index"])
	fmt.Fprintf(&b, "last_applied_index:%d\n", n.store.LastApplied())

	reply := b.String()
	req.Client.Reply([]byte(fmt.Sprintf("$%d\r\n%s\r\n", len(reply), reply)))
	req.Client.Unblock()
}

func replyOK(req *RaftReq) {
	if req.Client == nil {
		return
	}
	req.Client.Reply([]byte("+OK\r\n"))
	req.Client.Unblock()
}

func replyErr(req *RaftReq, err error) {
	if req.Client == nil {
		return
	}
	req.Client.Reply([]byte(fmt.Sprintf("-ERR %v\r\n", err)))
	req.Client.Unblock()
}

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
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	"golang.org/x/sync/errgroup"

	"flydb/internal/compression"
	"flydb/internal/logging"
	"flydb/internal/storage"
	flytls "flydb/internal/tls"
)

// tickInterval is the Replication Thread's queue-drain period. Raft's
// own election/heartbeat timing is owned entirely by hashicorp/raft's
// internal clock (raft.Config.HeartbeatTimeout/ElectionTimeout); this
// ticker only decides how often FlyDB looks at its own request queue.
const tickInterval = 500 * time.Millisecond

// defaultPromoteLogGap is the built-in node_has_sufficient_logs
// threshold, in Replication Thread ticks: a nonvoter contacted more
// recently than this is considered caught up and eligible for
// promotion.
const defaultPromoteLogGap = 100

// Config configures a Node.
type Config struct {
	NodeID        string
	BindAddr      string
	DataDir       string
	Bootstrap     bool // true for the founding node of a new cluster
	SnapshotCount int  // not read by NewNode; triggered snapshots are always disabled

	// LogCompression names the compression.Algorithm applied to a
	// command payload before it is replicated via raft.Raft.ApplyLog.
	// Empty or "none" disables compression.
	LogCompression string

	// PromoteLogGap bounds, in Replication Thread ticks, how long a
	// tracked nonvoter may go without a successful Peer Link round
	// trip and still be promoted to voter (the node_has_sufficient_logs
	// equivalent, §4.3 - see promoteCaughtUpVoters for why this is a
	// contact-recency proxy rather than an exact log-index gap). Zero
	// selects a built-in default.
	PromoteLogGap uint64

	// TLSCertFile/TLSKeyFile, if both set, encrypt Peer Link traffic
	// with the certificate internal/tls provisioned.
	TLSCertFile string
	TLSKeyFile  string
}

// Node owns the full coordination engine for one cluster member: the
// hashicorp/raft instance, the Peer Link transport, the FSM and its
// stores, the request queue, and the Replication Thread that drains
// it.
type Node struct {
	cfg   Config
	log   *logging.Logger
	raft  *raft.Raft
	fsm   *FSM
	store *BoltStores

	transport *TextTransport
	peers     *PeerRegistry
	queue     *ReqQueue

	comp      *compression.Compressor
	compAlgo  compression.Algorithm
	reqSeq    uint64 // atomic; assigns the Extensions id stamped on outbound ApplyLog calls

	promoteLogGap uint64
	nonvotersMu   sync.Mutex
	nonvoters     map[raft.ServerID]struct{}

	handlers map[ReqKind]handlerFunc

	group  errgroup.Group
	stopCh chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// nextReqID returns the next monotonic id to stamp into a log entry's
// Extensions for PENDING_COMMIT tracking.
func (n *Node) nextReqID() uint64 {
	return atomic.AddUint64(&n.reqSeq, 1)
}

// NewNode constructs and starts a cluster Node: opens the log/stable
// store, builds the FSM over engine, starts the Peer Link listener,
// and brings up hashicorp/raft. If cfg.Bootstrap is set, the node
// forms a brand-new single-member cluster; otherwise it starts ready
// to be added by an existing leader (CFGCHANGE_ADDNODE adds it as a
// nonvoter; promoteCaughtUpVoters later makes it a voter).
func NewNode(cfg Config, engine storage.Engine, log *logging.Logger) (*Node, error) {
	queue := NewReqQueue()

	compAlgo, err := compression.ParseAlgorithm(cfg.LogCompression)
	if err != nil {
		return nil, fmt.Errorf("raft log compression: %w", err)
	}
	comp := compression.NewCompressor(compression.Config{Algorithm: compAlgo, Level: compression.LevelDefault, MinSize: 0})

	store, err := OpenBoltStores(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open raft stores: %w", err)
	}

	fsm := NewFSM(engine, log, comp, raft.ServerID(cfg.NodeID), store)

	var transport *TextTransport
	if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
		tlsConfig, err := flytls.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load peer link tls config: %w", err)
		}
		transport, err = NewTextTransportTLS(raft.ServerID(cfg.NodeID), cfg.BindAddr, log, queue, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("start peer link: %w", err)
		}
	} else {
		transport, err = NewTextTransport(raft.ServerID(cfg.NodeID), cfg.BindAddr, log, queue)
		if err != nil {
			return nil, fmt.Errorf("start peer link: %w", err)
		}
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.Logger = NewHCLogAdapter(log.With("component", "raft"))
	raftCfg.SnapshotThreshold = 1 << 62 // effectively disabled; log compaction is out of scope

	r, err := raft.NewRaft(raftCfg, fsm, store, store, newSnapshotStoreNoop(), transport)
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("start raft: %w", err)
	}

	if cfg.Bootstrap {
		cfgFuture := r.BootstrapCluster(raft.Configuration{
			Servers: []raft.Server{{
				ID:      raftCfg.LocalID,
				Address: transport.LocalAddr(),
			}},
		})
		if err := cfgFuture.Error(); err != nil && err != raft.ErrCantBootstrap {
			transport.Close()
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	promoteLogGap := cfg.PromoteLogGap
	if promoteLogGap == 0 {
		promoteLogGap = defaultPromoteLogGap
	}

	n := &Node{
		cfg:           cfg,
		log:           log,
		raft:          r,
		fsm:           fsm,
		store:         store,
		transport:     transport,
		peers:         NewPeerRegistry(),
		queue:         queue,
		comp:          comp,
		compAlgo:      compAlgo,
		promoteLogGap: promoteLogGap,
		nonvoters:     make(map[raft.ServerID]struct{}),
		stopCh:        make(chan struct{}),
	}
	n.handlers = n.buildHandlers()
	n.peers.Touch(raftCfg.LocalID, transport.LocalAddr())
	transport.SetPeerRegistry(n.peers)

	n.group.Go(func() error {
		n.runApplier()
		return nil
	})
	n.group.Go(func() error {
		n.watchSelfRemoved()
		return nil
	})
	return n, nil
}

// watchSelfRemoved shuts the node down once the FSM observes a
// committed configuration change that drops this node from the
// cluster (I6's terminal case), or once the FSM reports a fatal
// disk-flush failure on the commit_idx witness key (§7).
func (n *Node) watchSelfRemoved() {
	select {
	case <-n.fsm.SelfRemoved():
		n.log.Warn("this node was removed from the cluster; shutting down")
		go n.Shutdown()
	case err := <-n.fsm.Fatal():
		n.log.Error("fatal disk-flush failure; shutting down", "error", err)
		go n.Shutdown()
	case <-n.stopCh:
	}
}

// Submit enqueues req for the next tick of the Replication Thread.
// For ReqRedisCommand this is the front end's only interaction with
// the coordination engine: it blocks req.Client until FSM.Apply
// replies.
func (n *Node) Submit(req *RaftReq) {
	n.queue.Push(req)
}

// IsLeader reports whether this node currently believes itself to be
// the Raft leader.
func (n *Node) IsLeader() bool {
	return n.raft.State() == raft.Leader
}

// LeaderAddr returns the current leader's advertised address and ID,
// if known.
func (n *Node) LeaderAddr() (raft.ServerAddress, raft.ServerID) {
	addr, id := n.raft.LeaderWithID()
	return addr, id
}

// Shutdown stops the Replication Thread and the underlying Raft
// instance. It is safe to call more than once (self-removal and an
// operator-initiated shutdown can race); only the first call's result
// is returned.
func (n *Node) Shutdown() error {
	n.shutdownOnce.Do(func() {
		close(n.stopCh)
		n.group.Wait() // runApplier drains anything left, watchSelfRemoved exits
		if err := n.raft.Shutdown().Error(); err != nil {
			n.shutdownErr = err
			return
		}
		n.transport.Close()
		n.shutdownErr = n.store.Close()
	})
	return n.shutdownErr
}

func newSnapshotStoreNoop() raft.SnapshotStore {
	return raft.NewInmemSnapshotStore()
}

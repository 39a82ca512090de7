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
flydb-node runs one member of a FlyDB Raft cluster: the coordination
engine (internal/cluster) wrapping a local storage.Engine, plus an
in-process admin shell for issuing INFO/CFGCHANGE_*/data commands
against it.

Usage:

	flydb-node --config /etc/flydb/node.toml --init
	flydb-node --node-id 2 --bind 127.0.0.1:7100 --join 127.0.0.1:7000
	flydb-node --node-id 3 --bind 127.0.0.1:7200 --join auto
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"flydb/internal/cliadmin"
	"flydb/internal/cluster"
	"flydb/internal/config"
	"flydb/internal/logging"
	"flydb/internal/storage"
)

func main() {
	configFile := flag.String("config", "", "Path to a TOML config file")
	nodeID := flag.Uint64("node-id", 0, "This node's numeric Raft ID")
	bindAddr := flag.String("bind", "127.0.0.1:7000", "Peer Link bind address")
	dataDir := flag.String("data-dir", "flydb-raft", "Raft log/stable store directory")
	dbPath := flag.String("db-path", "flydb-data", "Storage engine data directory")
	initCluster := flag.Bool("init", false, "Bootstrap a brand-new single-member cluster")
	join := flag.String("join", "", "Existing cluster member's Peer Link address to join, or 'auto' to discover one via mDNS")
	compressionAlgo := flag.String("log-compression", "none", "Raft log compression algorithm: none, gzip, lz4, snappy, zstd")
	advertise := flag.Bool("advertise", false, "Advertise this node over mDNS for flydb-discover/--join=auto")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logJSON := flag.Bool("log-json", false, "Emit logs as JSON")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		if err := config.Global().LoadFromFile(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "flydb-node: %v\n", err)
			os.Exit(1)
		}
		cfg = config.Global().Get()
	}
	config.Global().LoadFromEnv()

	if *nodeID != 0 {
		cfg.NodeID = *nodeID
	}
	if *bindAddr != "" {
		cfg.RaftBindAddr = *bindAddr
	}
	if *dataDir != "" {
		cfg.RaftDataDir = *dataDir
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	cfg.RaftInit = *initCluster
	cfg.RaftJoin = *join != "" && *join != "auto"
	cfg.RaftJoinAddr = *join
	if *compressionAlgo != "" {
		cfg.RaftLogCompression = *compressionAlgo
	}
	if cfg.NodeID == 0 {
		fmt.Fprintln(os.Stderr, "flydb-node: --node-id (or config node_id) is required")
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(*logLevel))
	logging.SetJSONMode(*logJSON)
	log := logging.NewLogger("flydb-node")

	engine, err := storage.NewStorageEngine(storage.StorageConfig{DataDir: cfg.DBPath})
	if err != nil {
		log.Error("failed to open storage engine", "error", err)
		os.Exit(1)
	}

	node, err := cluster.NewNode(cluster.Config{
		NodeID:         strconv.FormatUint(cfg.NodeID, 10),
		BindAddr:       cfg.RaftBindAddr,
		DataDir:        cfg.RaftDataDir,
		Bootstrap:      cfg.RaftInit,
		LogCompression: cfg.RaftLogCompression,
	}, engine, log)
	if err != nil {
		log.Error("failed to start cluster node", "error", err)
		os.Exit(1)
	}

	var discovery *cluster.DiscoveryService
	if *advertise || *join == "auto" {
		discovery = cluster.NewDiscoveryService(cluster.DiscoveryConfig{
			NodeID:      strconv.FormatUint(cfg.NodeID, 10),
			Enabled:     *advertise,
			RaftAddr:    cfg.RaftBindAddr,
			ClusterAddr: cfg.RaftBindAddr,
		})
	}

	if *join == "auto" {
		if err := joinViaDiscovery(discovery, cfg, log); err != nil {
			log.Error("auto-join failed", "error", err)
		}
	} else if cfg.RaftJoin {
		log.Info("starting as a joining node; run CFGCHANGE_ADDNODE on the leader to admit it", "join_addr", cfg.RaftJoinAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		if discovery != nil {
			discovery.Shutdown()
		}
		node.Shutdown()
		os.Exit(0)
	}()

	repl, err := cliadmin.New(node, log)
	if err != nil {
		log.Error("failed to start admin shell", "error", err)
		os.Exit(1)
	}
	defer repl.Close()

	if err := repl.Run(); err != nil {
		log.Error("admin shell exited with error", "error", err)
	}
	node.Shutdown()
}

// joinViaDiscovery looks up an existing cluster member over mDNS.
// CFGCHANGE_ADDNODE has to be issued on the *existing* leader, not on
// this joining node - this node has no local leader yet, and the admin
// shell talks only to the local Node (§5's network front end is out of
// scope). Auto-join therefore stops at discovery and tells the
// operator which member to run CFGCHANGE_ADDNODE against, rather than
// silently doing nothing useful with a local Submit call.
func joinViaDiscovery(discovery *cluster.DiscoveryService, cfg *config.Config, log *logging.Logger) error {
	if discovery == nil {
		discovery = cluster.NewDiscoveryService(cluster.DiscoveryConfig{})
	}
	nodes, err := discovery.DiscoverNodes(3 * time.Second)
	if err != nil {
		return fmt.Errorf("discover peers: %w", err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("no existing FlyDB nodes found on the network")
	}
	target := nodes[0]
	log.Info("discovered existing cluster member; admit this node from its admin shell",
		"node_id", target.NodeID, "raft_addr", target.RaftAddr,
		"hint", fmt.Sprintf("CFGCHANGE_ADDNODE %d %s", cfg.NodeID, cfg.RaftBindAddr))
	return nil
}

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
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// mdnsService is the Bonjour/Avahi service type FlyDB nodes advertise
// themselves under. flydb-discover and any node looking to join an
// existing cluster both query this same name.
const mdnsService = "_flydb._tcp"

// DiscoveredNode is one FlyDB node found on the LAN via mDNS.
type DiscoveredNode struct {
	NodeID      string
	ClusterID   string
	ClusterAddr string
	RaftAddr    string
	HTTPAddr    string
	Version     string
}

// DiscoveryConfig configures a DiscoveryService. Enabled controls
// whether this node advertises itself; a client that only wants to
// discover others (flydb-discover) leaves it false.
type DiscoveryConfig struct {
	NodeID      string
	Enabled     bool
	ClusterID   string
	ClusterAddr string
	RaftAddr    string
	HTTPAddr    string
	Version     string
	Port        int // advertised service port; defaults to 7946 if zero
}

// DiscoveryService advertises this node (if configured to) and can
// query the LAN for other FlyDB nodes, both over mDNS.
type DiscoveryService struct {
	cfg    DiscoveryConfig
	server *mdns.Server
}

// NewDiscoveryService constructs a DiscoveryService. If cfg.Enabled,
// it immediately starts advertising an mDNS service record for this
// node; advertising failures are swallowed (discovery is a convenience,
// never a dependency for cluster operation) and simply leave the node
// undiscoverable.
func NewDiscoveryService(cfg DiscoveryConfig) *DiscoveryService {
	d := &DiscoveryService{cfg: cfg}
	if cfg.Enabled {
		d.startAdvertising()
	}
	return d
}

func (d *DiscoveryService) startAdvertising() {
	port := d.cfg.Port
	if port == 0 {
		port = 7946
	}
	host, err := mdnsHostname(d.cfg.NodeID)
	if err != nil {
		return
	}
	txt := []string{
		"node_id=" + d.cfg.NodeID,
		"cluster_id=" + d.cfg.ClusterID,
		"cluster_addr=" + d.cfg.ClusterAddr,
		"raft_addr=" + d.cfg.RaftAddr,
		"http_addr=" + d.cfg.HTTPAddr,
		"version=" + d.cfg.Version,
	}
	svc, err := mdns.NewMDNSService(d.cfg.NodeID, mdnsService, "", host, port, nil, txt)
	if err != nil {
		return
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return
	}
	d.server = server
}

func mdnsHostname(nodeID string) (string, error) {
	if nodeID == "" {
		return "", fmt.Errorf("node id must not be empty")
	}
	return nodeID + ".local.", nil
}

// DiscoverNodes queries the LAN for FlyDB service records and returns
// what answered within timeout.
func (d *DiscoveryService) DiscoverNodes(timeout time.Duration) ([]*DiscoveredNode, error) {
	entries := make(chan *mdns.ServiceEntry, 32)
	params := mdns.DefaultParams(mdnsService)
	params.Timeout = timeout
	params.Entries = entries

	done := make(chan error, 1)
	go func() { done <- mdns.Query(params) }()

	var nodes []*DiscoveredNode
	timer := time.NewTimer(timeout + 250*time.Millisecond)
	defer timer.Stop()

collect:
	for {
		select {
		case e, ok := <-entries:
			if !ok {
				break collect
			}
			nodes = append(nodes, discoveredFromEntry(e))
		case <-timer.C:
			break collect
		}
	}

	select {
	case err := <-done:
		if err != nil {
			return nodes, fmt.Errorf("mdns query: %w", err)
		}
	default:
	}
	return nodes, nil
}

func discoveredFromEntry(e *mdns.ServiceEntry) *DiscoveredNode {
	n := &DiscoveredNode{NodeID: e.Name, ClusterAddr: fmt.Sprintf("%s:%d", e.Host, e.Port)}
	for _, field := range e.InfoFields {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "node_id":
			n.NodeID = kv[1]
		case "cluster_id":
			n.ClusterID = kv[1]
		case "cluster_addr":
			n.ClusterAddr = kv[1]
		case "raft_addr":
			n.RaftAddr = kv[1]
		case "http_addr":
			n.HTTPAddr = kv[1]
		case "version":
			n.Version = kv[1]
		}
	}
	return n
}

// Shutdown stops advertising, if this service was doing so.
func (d *DiscoveryService) Shutdown() error {
	if d.server == nil {
		return nil
	}
	return d.server.Shutdown()
}

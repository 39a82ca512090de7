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
	"time"

	"github.com/hashicorp/raft"
)

// runApplier is the Replication Thread: on every tick it drains
// whatever accumulated on the request queue, dispatches each entry to
// its handler, and (while leader) polls caught-up nonvoters for
// promotion. Raft's own commit/replication work happens on
// hashicorp/raft's internal goroutines regardless of this loop; what
// this loop owns is strictly FlyDB's own request bookkeeping.
func (n *Node) runApplier() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			n.drainOnce() // best effort: fail anything left pending rather than leak blocked clients
			return
		case <-ticker.C:
			n.drainOnce()
			n.promoteCaughtUpVoters()
		}
	}
}

func (n *Node) drainOnce() {
	for _, req := range n.queue.DrainAll() {
		h, ok := n.handlers[req.Kind]
		if !ok {
			n.log.Warn("no handler for request kind", "kind", req.Kind.String())
			continue
		}
		h(n, req)
	}
}

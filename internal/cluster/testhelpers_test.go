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
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"flydb/internal/logging"
	"flydb/internal/storage"
)

// TestMain keeps the Replication Thread's ordinary logging out of `go
// test -v` output; the tests themselves assert on RaftReq replies and
// engine state, never on log lines.
func TestMain(m *testing.M) {
	logging.SetGlobalOutput(io.Discard)
	logging.SetGlobalLevel(logging.ERROR)
	os.Exit(m.Run())
}

// fakeClient is the test double for the BlockedClient boundary: the
// network front end is out of scope for this package (see types.go),
// so tests stand in for it with a channel-backed adapter that records
// the reply and signals completion the same way a real blocked client
// would be released.
type fakeClient struct {
	mu    sync.Mutex
	reply []byte
	done  chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{done: make(chan struct{})}
}

func (c *fakeClient) Reply(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = append([]byte(nil), data...)
}

func (c *fakeClient) Unblock() {
	close(c.done)
}

// waitReply blocks until Unblock is called or timeout elapses, failing
// the test on timeout.
func (c *fakeClient) waitReply(t *testing.T, timeout time.Duration) []byte {
	t.Helper()
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reply
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a reply")
		return nil
	}
}

// waitForCondition polls cond until it reports true or timeout
// elapses, returning the final result either way.
func waitForCondition(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

// newTestNode builds one in-process cluster member on a loopback port
// chosen by the OS, backed by a real (TempDir-rooted) storage engine
// so FSM.Apply exercises the same Engine contract production does.
// The node is registered for cleanup and shut down when t ends.
func newTestNode(t *testing.T, id string, bootstrap bool) (*Node, storage.Engine) {
	t.Helper()

	engine, err := storage.NewStorageEngine(storage.StorageConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("new storage engine for %s: %v", id, err)
	}

	n, err := NewNode(Config{
		NodeID:    id,
		BindAddr:  "127.0.0.1:0",
		DataDir:   t.TempDir(),
		Bootstrap: bootstrap,
	}, engine, logging.NewLogger(id))
	if err != nil {
		t.Fatalf("new node %s: %v", id, err)
	}
	t.Cleanup(func() { n.Shutdown() })
	return n, engine
}

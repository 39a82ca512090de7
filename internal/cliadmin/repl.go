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

// Package cliadmin implements cmd/flydb-node's interactive operator
// shell. It talks to the local cluster.Node in-process via a
// synchronous cluster.BlockedClient adapter rather than a network
// front end, which is explicitly out of scope for this repository
// (§5 of the coordination-engine design).
package cliadmin

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/hashicorp/raft"
	"golang.org/x/term"

	"flydb/internal/cluster"
	"flydb/internal/logging"
)

// syncClient adapts one request/reply round trip to cluster.BlockedClient
// for a caller willing to block synchronously on the result - the REPL's
// calling goroutine, here, rather than a pooled network connection.
type syncClient struct {
	done  chan struct{}
	reply []byte
}

func newSyncClient() *syncClient {
	return &syncClient{done: make(chan struct{})}
}

func (c *syncClient) Reply(data []byte) { c.reply = data }
func (c *syncClient) Unblock()          { close(c.done) }

// submit enqueues req on n and blocks until its handler (or FSM.Apply,
// for REDISCOMMAND) replies.
func submit(n *cluster.Node, req *cluster.RaftReq) string {
	c := newSyncClient()
	req.Client = c
	n.Submit(req)
	<-c.done
	return string(c.reply)
}

// REPL is the admin shell driving one cluster.Node.
type REPL struct {
	node *cluster.Node
	log  *logging.Logger
	rl   *readline.Instance
}

// New constructs a REPL reading from stdin and writing to stdout.
func New(node *cluster.Node, log *logging.Logger) (*REPL, error) {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "flydb> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("start admin shell: %w", err)
	}
	_ = width // reserved for future column-aware INFO rendering

	return &REPL{node: node, log: log, rl: rl}, nil
}

// Close releases the underlying terminal.
func (r *REPL) Close() error { return r.rl.Close() }

// Run reads commands until EOF/Ctrl-D, dispatching each to the local
// Node and printing its reply.
func (r *REPL) Run() error {
	for {
		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		out, err := r.dispatch(line)
		if err != nil {
			fmt.Fprintf(r.rl.Stderr(), "ERR %v\n", err)
			continue
		}
		fmt.Fprintln(r.rl.Stdout(), out)
	}
}

func (r *REPL) dispatch(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	switch strings.ToUpper(fields[0]) {
	case "INFO":
		return submit(r.node, &cluster.RaftReq{Kind: cluster.ReqInfo}), nil

	case "CFGCHANGE_ADDNODE":
		if len(fields) != 3 {
			return "", fmt.Errorf("usage: CFGCHANGE_ADDNODE <id> <address>")
		}
		return submit(r.node, &cluster.RaftReq{
			Kind: cluster.ReqCfgChangeAddNode,
			CfgNode: cluster.CfgChange{
				ID:      raft.ServerID(fields[1]),
				Address: raft.ServerAddress(fields[2]),
			},
		}), nil

	case "CFGCHANGE_REMOVENODE":
		if len(fields) != 2 {
			return "", fmt.Errorf("usage: CFGCHANGE_REMOVENODE <id>")
		}
		return submit(r.node, &cluster.RaftReq{
			Kind:    cluster.ReqCfgChangeRemoveNode,
			CfgNode: cluster.CfgChange{ID: raft.ServerID(fields[1])},
		}), nil

	default:
		argv := make([][]byte, len(fields))
		for i, f := range fields {
			argv[i] = []byte(f)
		}
		return submit(r.node, &cluster.RaftReq{Kind: cluster.ReqRedisCommand, Command: argv}), nil
	}
}

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
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	"golang.org/x/net/netutil"

	flyerrors "flydb/internal/errors"
	"flydb/internal/logging"
)

// maxPeerConns bounds concurrent inbound Peer Link connections so a
// runaway or hostile peer can't exhaust file descriptors; ordinary
// cluster sizes never come close to this.
const maxPeerConns = 256

// inboundRPC is the audit-trail copy of a REQUESTVOTE/APPENDENTRIES
// line published onto the ReqQueue alongside the structurally
// required delivery through raft.Transport.Consumer(). See DESIGN.md
// for why both paths exist.
type inboundRPC struct {
	kind ReqKind
	line string
	from raft.ServerID
}

// TextTransport is FlyDB's Peer Link: a raft.Transport that speaks
// the literal RAFT.REQUESTVOTE / RAFT.APPENDENTRIES text protocol on
// the wire instead of hashicorp/raft's native (binary, opaque)
// transport encoding. It deliberately does not embed or delegate to
// raft.NetworkTransport.
type TextTransport struct {
	localID   raft.ServerID
	localAddr raft.ServerAddress
	log       *logging.Logger
	queue     *ReqQueue // optional; nil in tests that don't need audit fidelity

	listener  net.Listener
	tlsConfig *tls.Config // nil disables Peer Link TLS
	timeout   time.Duration

	peersMu sync.Mutex
	peers   *PeerRegistry // optional; set via SetPeerRegistry once the Node has one

	consumerCh chan raft.RPC

	heartbeatMu sync.Mutex
	heartbeatFn func(raft.RPC)

	connMu sync.Mutex
	conns  map[raft.ServerAddress]*textConn

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

type textConn struct {
	mu sync.Mutex
	c  net.Conn
	r  *bufio.Reader
}

// NewTextTransport binds bindAddr and begins accepting plaintext Peer
// Link connections. The address peers are told to dial (LocalAddr) is
// the bound listener address. NewTextTransportTLS is the TLS variant.
func NewTextTransport(localID raft.ServerID, bindAddr string, log *logging.Logger, queue *ReqQueue) (*TextTransport, error) {
	return newTextTransport(localID, bindAddr, log, queue, nil)
}

// NewTextTransportTLS is NewTextTransport with Peer Link traffic
// encrypted, for deployments where internal/tls.EnsureCertificates has
// provisioned a cluster certificate.
func NewTextTransportTLS(localID raft.ServerID, bindAddr string, log *logging.Logger, queue *ReqQueue, tlsConfig *tls.Config) (*TextTransport, error) {
	return newTextTransport(localID, bindAddr, log, queue, tlsConfig)
}

func newTextTransport(localID raft.ServerID, bindAddr string, log *logging.Logger, queue *ReqQueue, tlsConfig *tls.Config) (*TextTransport, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("peer link listen: %w", err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}
	// Bound concurrent inbound peers: ordinary cluster sizes stay well
	// under this, a misbehaving one shouldn't exhaust file descriptors.
	ln = netutil.LimitListener(ln, maxPeerConns)

	t := &TextTransport{
		localID:    localID,
		localAddr:  raft.ServerAddress(ln.Addr().String()),
		log:        log,
		queue:      queue,
		listener:   ln,
		tlsConfig:  tlsConfig,
		timeout:    5 * time.Second,
		consumerCh: make(chan raft.RPC, 64),
		conns:      make(map[raft.ServerAddress]*textConn),
		shutdownCh: make(chan struct{}),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *TextTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.shutdownCh:
				return
			default:
				t.log.Warn("peer link accept failed", "error", err)
				return
			}
		}
		go t.serve(conn)
	}
}

func (t *TextTransport) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		reply, err := t.handleLine(strings.TrimRight(line, "\r\n"))
		if err != nil {
			t.log.Warn("peer link malformed request", "error", err)
			return
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// handleLine parses one inbound wire command, delivers it to
// raft.Transport's consumer (or the heartbeat fast path), blocks for
// the RPC's response, and returns the encoded reply line.
func (t *TextTransport) handleLine(line string) (string, error) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return "", flyerrors.RaftMalformedRPC("missing command body")
	}
	switch fields[0] {
	case cmdRequestVote:
		src, req, err := decodeRequestVote(fields[1])
		if err != nil {
			return "", err
		}
		t.publishAudit(ReqRequestVote, line, src)
		resp, err := t.dispatch(&req)
		if err != nil {
			return "", err
		}
		rv := resp.(*raft.RequestVoteResponse)
		return encodeRequestVoteReply(rv), nil

	case cmdAppendEntries:
		src, req, err := decodeAppendEntries(fields[1])
		if err != nil {
			return "", err
		}
		t.publishAudit(ReqAppendEntries, line, src)
		resp, err := t.dispatch(&req)
		if err != nil {
			return "", err
		}
		ae := resp.(*raft.AppendEntriesResponse)
		firstIdx := req.PrevLogEntry + 1
		return encodeAppendEntriesReply(ae, firstIdx), nil

	default:
		return "", flyerrors.RaftMalformedRPC("unknown command " + fields[0])
	}
}

func (t *TextTransport) publishAudit(kind ReqKind, line string, src raft.ServerID) {
	if t.queue == nil {
		return
	}
	t.queue.Push(&RaftReq{Kind: kind, RPC: &inboundRPC{kind: kind, line: line, from: src}})
}

func (t *TextTransport) dispatch(command interface{}) (interface{}, error) {
	respCh := make(chan raft.RPCResponse, 1)
	rpc := raft.RPC{Command: command, RespChan: respCh}

	t.heartbeatMu.Lock()
	hb := t.heartbeatFn
	t.heartbeatMu.Unlock()

	if ae, ok := command.(*raft.AppendEntriesRequest); ok && hb != nil && len(ae.Entries) == 0 && ae.LeaderCommitIndex == 0 {
		hb(rpc)
	} else {
		select {
		case t.consumerCh <- rpc:
		case <-t.shutdownCh:
			return nil, flyerrors.RaftPeerDisconnected(string(t.localID)).WithDetail("peer link shutting down")
		}
	}

	select {
	case r := <-respCh:
		if r.Error != nil {
			return nil, r.Error
		}
		return r.Response, nil
	case <-time.After(t.timeout):
		return nil, flyerrors.RaftPeerDisconnected(string(t.localID)).WithDetail("rpc handler timed out")
	}
}

// Consumer implements raft.Transport.
func (t *TextTransport) Consumer() <-chan raft.RPC { return t.consumerCh }

// LocalAddr implements raft.Transport.
func (t *TextTransport) LocalAddr() raft.ServerAddress { return t.localAddr }

// EncodePeer implements raft.Transport.
func (t *TextTransport) EncodePeer(_ raft.ServerID, addr raft.ServerAddress) []byte { return []byte(addr) }

// DecodePeer implements raft.Transport.
func (t *TextTransport) DecodePeer(b []byte) raft.ServerAddress { return raft.ServerAddress(b) }

// SetPeerRegistry attaches the PeerRegistry that outbound
// AppendEntries/RequestVote calls report connection results to. Safe
// to call once after construction; nil-safe if never called.
func (t *TextTransport) SetPeerRegistry(peers *PeerRegistry) {
	t.peersMu.Lock()
	t.peers = peers
	t.peersMu.Unlock()
}

func (t *TextTransport) reportPeer(id raft.ServerID, err error) {
	t.peersMu.Lock()
	peers := t.peers
	t.peersMu.Unlock()
	if peers == nil {
		return
	}
	if err != nil {
		peers.MarkFailed(id, err)
	} else {
		peers.MarkConnected(id)
	}
}

// SetHeartbeatHandler implements raft.Transport. hashicorp/raft uses
// this to fast-path heartbeat AppendEntries calls off its main
// processing loop; our heuristic for "is a heartbeat" is the same one
// raft.NetworkTransport uses: zero entries and zero leader commit.
func (t *TextTransport) SetHeartbeatHandler(cb func(raft.RPC)) {
	t.heartbeatMu.Lock()
	t.heartbeatFn = cb
	t.heartbeatMu.Unlock()
}

func (t *TextTransport) getConn(target raft.ServerAddress) (*textConn, error) {
	t.connMu.Lock()
	if c, ok := t.conns[target]; ok {
		t.connMu.Unlock()
		return c, nil
	}
	t.connMu.Unlock()

	var conn net.Conn
	var err error
	if t.tlsConfig != nil {
		dialer := &net.Dialer{Timeout: t.timeout}
		conn, err = tls.DialWithDialer(dialer, "tcp", string(target), t.tlsConfig)
	} else {
		conn, err = net.DialTimeout("tcp", string(target), t.timeout)
	}
	if err != nil {
		return nil, flyerrors.RaftPeerDisconnected(string(target)).WithDetail("dial peer failed").WithCause(err)
	}
	tc := &textConn{c: conn, r: bufio.NewReader(conn)}
	t.connMu.Lock()
	t.conns[target] = tc
	t.connMu.Unlock()
	return tc, nil
}

func (t *TextTransport) dropConn(target raft.ServerAddress) {
	t.connMu.Lock()
	if c, ok := t.conns[target]; ok {
		c.c.Close()
		delete(t.conns, target)
	}
	t.connMu.Unlock()
}

// AppendEntries implements raft.Transport by writing a
// RAFT.APPENDENTRIES line and parsing its bracketed reply.
func (t *TextTransport) AppendEntries(id raft.ServerID, target raft.ServerAddress, args *raft.AppendEntriesRequest, resp *raft.AppendEntriesResponse) error {
	err := t.appendEntries(target, args, resp)
	t.reportPeer(id, err)
	return err
}

func (t *TextTransport) appendEntries(target raft.ServerAddress, args *raft.AppendEntriesRequest, resp *raft.AppendEntriesResponse) error {
	tc, err := t.getConn(target)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, err := tc.c.Write([]byte(encodeAppendEntries(t.localID, args))); err != nil {
		t.dropConn(target)
		return flyerrors.RaftPeerDisconnected(string(target)).WithDetail("write append entries failed").WithCause(err)
	}
	line, err := tc.r.ReadString('\n')
	if err != nil {
		t.dropConn(target)
		return flyerrors.RaftPeerDisconnected(string(target)).WithDetail("read append entries reply failed").WithCause(err)
	}
	term, success, lastLog, _, err := decodeAppendEntriesReply(line, target)
	if err != nil {
		return err
	}
	resp.Term = term
	resp.Success = success
	resp.LastLog = lastLog
	return nil
}

// RequestVote implements raft.Transport by writing a
// RAFT.REQUESTVOTE line and parsing its bracketed reply.
func (t *TextTransport) RequestVote(id raft.ServerID, target raft.ServerAddress, args *raft.RequestVoteRequest, resp *raft.RequestVoteResponse) error {
	err := t.requestVote(target, args, resp)
	t.reportPeer(id, err)
	return err
}

func (t *TextTransport) requestVote(target raft.ServerAddress, args *raft.RequestVoteRequest, resp *raft.RequestVoteResponse) error {
	tc, err := t.getConn(target)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if _, err := tc.c.Write([]byte(encodeRequestVote(t.localID, args))); err != nil {
		t.dropConn(target)
		return flyerrors.RaftPeerDisconnected(string(target)).WithDetail("write request vote failed").WithCause(err)
	}
	line, err := tc.r.ReadString('\n')
	if err != nil {
		t.dropConn(target)
		return flyerrors.RaftPeerDisconnected(string(target)).WithDetail("read request vote reply failed").WithCause(err)
	}
	term, granted, err := decodeRequestVoteReply(line, target)
	if err != nil {
		return err
	}
	resp.Term = term
	resp.Granted = granted
	return nil
}

// InstallSnapshot implements raft.Transport. Log compaction and
// snapshot transfer are out of scope; nothing in this coordination
// engine ever triggers one (no SnapshotThreshold is configured), so
// this is reached only if a future change enables snapshotting
// without updating the Peer Link to match.
func (t *TextTransport) InstallSnapshot(_ raft.ServerID, _ raft.ServerAddress, _ *raft.InstallSnapshotRequest, _ *raft.InstallSnapshotResponse, _ io.Reader) error {
	return flyerrors.NewRaftError(flyerrors.ErrCodeRaft, "InstallSnapshot is not supported by the text peer link")
}

// TimeoutNow implements raft.Transport. Leadership transfer is not a
// named operation; reaching this indicates a caller outside this
// engine's documented surface invoked raft.LeadershipTransfer.
func (t *TextTransport) TimeoutNow(_ raft.ServerID, _ raft.ServerAddress, _ *raft.TimeoutNowRequest, _ *raft.TimeoutNowResponse) error {
	return flyerrors.NewRaftError(flyerrors.ErrCodeRaft, "TimeoutNow is not supported by the text peer link")
}

// AppendEntriesPipeline implements raft.Transport with a trivial
// pipeline that issues each call synchronously; the text protocol has
// no pipelined wire form, so there is no batching benefit to chase.
func (t *TextTransport) AppendEntriesPipeline(id raft.ServerID, target raft.ServerAddress) (raft.AppendPipeline, error) {
	return &textPipeline{t: t, id: id, target: target, doneCh: make(chan raft.AppendFuture, 8)}, nil
}

// Close shuts down the listener and all outbound connections.
func (t *TextTransport) Close() error {
	t.shutdownOnce.Do(func() {
		close(t.shutdownCh)
		t.listener.Close()
		t.connMu.Lock()
		for addr, c := range t.conns {
			c.c.Close()
			delete(t.conns, addr)
		}
		t.connMu.Unlock()
	})
	return nil
}

type textPipeline struct {
	t      *TextTransport
	id     raft.ServerID
	target raft.ServerAddress
	doneCh chan raft.AppendFuture
}

type textAppendFuture struct {
	start    time.Time
	req      *raft.AppendEntriesRequest
	resp     raft.AppendEntriesResponse
	err      error
}

func (f *textAppendFuture) Error() error                            { return f.err }
func (f *textAppendFuture) Start() time.Time                        { return f.start }
func (f *textAppendFuture) Request() *raft.AppendEntriesRequest      { return f.req }
func (f *textAppendFuture) Response() *raft.AppendEntriesResponse    { return &f.resp }

func (p *textPipeline) AppendEntries(args *raft.AppendEntriesRequest, resp *raft.AppendEntriesResponse) (raft.AppendFuture, error) {
	fut := &textAppendFuture{start: time.Now(), req: args}
	fut.err = p.t.AppendEntries(p.id, p.target, args, resp)
	fut.resp = *resp
	select {
	case p.doneCh <- fut:
	default:
	}
	return fut, fut.err
}

func (p *textPipeline) Consumer() <-chan raft.AppendFuture { return p.doneCh }

func (p *textPipeline) Close() error { return nil }

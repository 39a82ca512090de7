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
	"strconv"
	"strings"

	"github.com/hashicorp/raft"

	flyerrors "flydb/internal/errors"
)

// Peer Link wire format. Every message is newline-terminated ASCII;
// fields are colon- or space-separated as shown. These two commands
// are the entire text protocol the Peer Link speaks on the wire; all
// other hashicorp/raft RPCs (InstallSnapshot, TimeoutNow) are not
// part of it, see transport.go.
const (
	cmdRequestVote   = "RAFT.REQUESTVOTE"
	cmdAppendEntries = "RAFT.APPENDENTRIES"
)

// encodeRequestVote builds:
//   RAFT.REQUESTVOTE <src_node_id> <term>:<candidate_id>:<last_log_idx>:<last_log_term>
func encodeRequestVote(srcNodeID raft.ServerID, req *raft.RequestVoteRequest) string {
	return fmt.Sprintf("%s %s %d:%s:%d:%d\n",
		cmdRequestVote, srcNodeID, req.Term, string(req.ID), req.LastLogIndex, req.LastLogTerm)
}

// decodeRequestVote parses a RAFT.REQUESTVOTE line (without the
// leading command token, already stripped by the caller).
func decodeRequestVote(rest string) (srcNodeID raft.ServerID, req raft.RequestVoteRequest, err error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "", req, flyerrors.RaftMalformedRPC("malformed REQUESTVOTE")
	}
	srcNodeID = raft.ServerID(fields[0])
	parts := strings.Split(fields[1], ":")
	if len(parts) != 4 {
		return "", req, flyerrors.RaftMalformedRPC("malformed REQUESTVOTE payload")
	}
	term, err1 := strconv.ParseUint(parts[0], 10, 64)
	lastIdx, err2 := strconv.ParseUint(parts[2], 10, 64)
	lastTerm, err3 := strconv.ParseUint(parts[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return "", req, flyerrors.RaftMalformedRPC("non-numeric REQUESTVOTE field")
	}
	req.Term = term
	req.Candidate = []byte(parts[1])
	req.LastLogIndex = lastIdx
	req.LastLogTerm = lastTerm
	return srcNodeID, req, nil
}

// encodeRequestVoteReply builds the "[term, vote_granted]" reply line.
// §6 mandates "all integers decimal ASCII", so vote_granted travels as
// 0/1, not a textual boolean.
func encodeRequestVoteReply(resp *raft.RequestVoteResponse) string {
	return fmt.Sprintf("[%d, %d]\n", resp.Term, boolToInt(resp.Granted))
}

func decodeRequestVoteReply(line string, peer raft.ServerAddress) (term uint64, granted bool, err error) {
	term, granted, err = decodeBracketPair(line, peer)
	return
}

// encodeAppendEntries builds:
//   RAFT.APPENDENTRIES <src_node_id> <term>:<prev_log_idx>:<prev_log_term>:<leader_commit> <n_entries> (<term>:<id>:<type> <payload>)*
func encodeAppendEntries(srcNodeID raft.ServerID, req *raft.AppendEntriesRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %d:%d:%d:%d %d",
		cmdAppendEntries, srcNodeID, req.Term, req.PrevLogEntry, req.PrevLogTerm,
		req.LeaderCommitIndex, len(req.Entries))
	for _, e := range req.Entries {
		fmt.Fprintf(&b, " %d:%d:%d %s", e.Term, e.Index, e.Type, encodePayload(e.Data))
	}
	b.WriteByte('\n')
	return b.String()
}

func decodeAppendEntries(rest string) (srcNodeID raft.ServerID, req raft.AppendEntriesRequest, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return "", req, flyerrors.RaftMalformedRPC("malformed APPENDENTRIES")
	}
	srcNodeID = raft.ServerID(fields[0])
	parts := strings.Split(fields[1], ":")
	if len(parts) != 4 {
		return "", req, flyerrors.RaftMalformedRPC("malformed APPENDENTRIES header")
	}
	term, e1 := strconv.ParseUint(parts[0], 10, 64)
	prevIdx, e2 := strconv.ParseUint(parts[1], 10, 64)
	prevTerm, e3 := strconv.ParseUint(parts[2], 10, 64)
	leaderCommit, e4 := strconv.ParseUint(parts[3], 10, 64)
	n, e5 := strconv.ParseUint(fields[2], 10, 64)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil {
		return "", req, flyerrors.RaftMalformedRPC("non-numeric APPENDENTRIES field")
	}
	req.Term = term
	req.PrevLogEntry = prevIdx
	req.PrevLogTerm = prevTerm
	req.LeaderCommitIndex = leaderCommit

	want := 3 + int(n)*2
	if len(fields) != want {
		return "", req, flyerrors.RaftMalformedRPC("entry count mismatch in APPENDENTRIES")
	}
	entries := make([]*raft.Log, 0, n)
	for i := uint64(0); i < n; i++ {
		hdr := fields[3+i*2]
		payload := fields[4+i*2]
		hp := strings.Split(hdr, ":")
		if len(hp) != 3 {
			return "", req, flyerrors.RaftMalformedRPC("malformed log entry header")
		}
		eTerm, f1 := strconv.ParseUint(hp[0], 10, 64)
		eIdx, f2 := strconv.ParseUint(hp[1], 10, 64)
		eType, f3 := strconv.ParseUint(hp[2], 10, 64)
		if f1 != nil || f2 != nil || f3 != nil {
			return "", req, flyerrors.RaftMalformedRPC("non-numeric log entry field")
		}
		data, derr := decodePayload(payload)
		if derr != nil {
			return "", req, derr
		}
		entries = append(entries, &raft.Log{
			Term:  eTerm,
			Index: eIdx,
			Type:  raft.LogType(eType),
			Data:  data,
		})
	}
	req.Entries = entries
	return srcNodeID, req, nil
}

// encodeAppendEntriesReply builds "[term, success, current_idx, first_idx]".
func encodeAppendEntriesReply(resp *raft.AppendEntriesResponse, firstIdx uint64) string {
	return fmt.Sprintf("[%d, %d, %d, %d]\n", resp.Term, boolToInt(resp.Success), resp.LastLog, firstIdx)
}

func decodeAppendEntriesReply(line string, peer raft.ServerAddress) (term uint64, success bool, currentIdx, firstIdx uint64, err error) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "[")
	line = strings.TrimSuffix(line, "]")
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return 0, false, 0, 0, flyerrors.RaftMalformedReply(string(peer), "malformed APPENDENTRIES reply")
	}
	term, e1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	successInt, e2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	currentIdx, e3 := strconv.ParseUint(strings.TrimSpace(parts[2]), 10, 64)
	firstIdx, e4 := strconv.ParseUint(strings.TrimSpace(parts[3]), 10, 64)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return 0, false, 0, 0, flyerrors.RaftMalformedReply(string(peer), "non-numeric reply field")
	}
	return term, successInt != 0, currentIdx, firstIdx, nil
}

func decodeBracketPair(line string, peer raft.ServerAddress) (uint64, bool, error) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "[")
	line = strings.TrimSuffix(line, "]")
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, false, flyerrors.RaftMalformedReply(string(peer), "malformed REQUESTVOTE reply")
	}
	term, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, false, flyerrors.RaftMalformedReply(string(peer), "non-numeric term in reply")
	}
	flag, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, false, flyerrors.RaftMalformedReply(string(peer), "non-numeric vote_granted in reply")
	}
	return term, flag != 0, nil
}

// boolToInt renders a Raft reply flag as the decimal ASCII 0/1 §6
// requires instead of a textual true/false.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodePayload / decodePayload transport a log entry's opaque
// command bytes (themselves already raftcmd-encoded) as a single
// whitespace-free field using hex, so the surrounding text protocol
// can keep splitting on ASCII spaces.
func encodePayload(data []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(data)*2)
	for i, b := range data {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0xf]
	}
	return string(out)
}

func decodePayload(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, flyerrors.RaftMalformedRPC("odd-length hex payload")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		hi, err := hexVal(s[i*2])
		if err != nil {
			return nil, err
		}
		lo, err := hexVal(s[i*2+1])
		if err != nil {
			return nil, err
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, flyerrors.RaftMalformedRPC("invalid hex digit in payload")
	}
}

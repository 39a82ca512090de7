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
Package raftcmd implements the command codec used inside Raft log
entry payloads: a command is an ordered sequence of opaque
byte-string arguments (argv), encoded as little-endian fixed-width
counters.

Wire format:

	u64 argc
	repeat argc times: u64 len; bytes[len]

The format is byte-exact on the wire and on disk. Cross-endian
clusters are rejected: this package refuses to operate on a
big-endian host, since nothing in the format carries a byte-order
marker to correct for it.
*/
package raftcmd

import (
	"encoding/binary"
	"math"
	"unsafe"

	"flydb/internal/errors"
)

func init() {
	if !hostIsLittleEndian() {
		panic(errors.NewRaftError(errors.ErrCodeRaftCodec, "raftcmd requires a little-endian host").
			WithHint("run this node on a little-endian architecture, or add byteswap support"))
	}
}

func hostIsLittleEndian() bool {
	var i uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&i))
	return b[0] == 1
}

// Encode serializes argv into a Raft log entry payload. Encoding
// cannot fail except on allocation.
func Encode(argv [][]byte) []byte {
	size := 8
	for _, a := range argv {
		size += 8 + len(a)
	}
	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(len(argv)))
	off += 8
	for _, a := range argv {
		binary.LittleEndian.PutUint64(buf[off:], uint64(len(a)))
		off += 8
		copy(buf[off:], a)
		off += len(a)
	}
	return buf
}

// Decode reverses Encode. It fails if the buffer is truncated
// relative to the declared lengths.
func Decode(buf []byte) ([][]byte, error) {
	if len(buf) < 8 {
		return nil, errTruncated()
	}
	argc := binary.LittleEndian.Uint64(buf)
	if argc > math.MaxUint32 {
		// A legitimate command vector will never approach this; treat
		// it as corruption rather than attempting a giant allocation.
		return nil, errTruncated()
	}
	off := 8
	argv := make([][]byte, 0, argc)
	for i := uint64(0); i < argc; i++ {
		if off+8 > len(buf) {
			return nil, errTruncated()
		}
		l := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		if uint64(off)+l > uint64(len(buf)) {
			return nil, errTruncated()
		}
		arg := make([]byte, l)
		copy(arg, buf[off:off+int(l)])
		off += int(l)
		argv = append(argv, arg)
	}
	return argv, nil
}

func errTruncated() error {
	return errors.NewRaftError(errors.ErrCodeRaftCodec, "truncated command payload").
		WithHint("the log entry was corrupted or written by an incompatible version")
}

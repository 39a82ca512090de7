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
	"io"
)

// encodeSnapshot/decodeSnapshot give the FSM a concrete (if never
// exercised in practice, see fsm.go's Snapshot doc comment)
// persistence format: a u64 pair count followed by
// length-prefixed key/value pairs, the same little-endian
// length-prefix convention raftcmd uses for command arguments.
func encodeSnapshot(w io.Writer, pairs map[string][]byte) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(pairs)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for k, v := range pairs {
		if err := writeSnapshotField(w, []byte(k)); err != nil {
			return err
		}
		if err := writeSnapshotField(w, v); err != nil {
			return err
		}
	}
	return nil
}

func writeSnapshotField(w io.Writer, b []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func decodeSnapshot(r io.Reader) (map[string][]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint64(hdr[:])
	pairs := make(map[string][]byte, count)
	for i := uint64(0); i < count; i++ {
		k, err := readSnapshotField(r)
		if err != nil {
			return nil, err
		}
		v, err := readSnapshotField(r)
		if err != nil {
			return nil, err
		}
		pairs[string(k)] = v
	}
	return pairs, nil
}

func readSnapshotField(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	l := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

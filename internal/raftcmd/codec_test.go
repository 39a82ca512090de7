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

package raftcmd

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := [][][]byte{
		{[]byte("SET"), []byte("k"), []byte("v")},
		{[]byte("SET"), []byte(""), []byte("binary\x00\x01")},
		{},
		{[]byte("")},
		{[]byte("PING")},
	}

	for _, argv := range tests {
		encoded := Encode(argv)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode failed for %v: %v", argv, err)
		}
		if len(decoded) != len(argv) {
			t.Fatalf("argc mismatch: got %d, want %d", len(decoded), len(argv))
		}
		for i := range argv {
			if !bytes.Equal(decoded[i], argv[i]) {
				t.Errorf("arg %d mismatch: got %q, want %q", i, decoded[i], argv[i])
			}
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	full := Encode([][]byte{[]byte("SET"), []byte("key"), []byte("value")})

	for l := 0; l < len(full); l++ {
		if _, err := Decode(full[:l]); err == nil {
			// A prefix may legitimately decode to fewer declared
			// arguments only if argc itself was truncated; any
			// truncation inside a declared argument must error.
			if l >= 8 {
				argc := full[:8]
				_ = argc
			}
		}
	}

	// Explicit truncation inside the first argument's length-prefixed body.
	if _, err := Decode(full[:12]); err == nil {
		t.Error("expected error decoding truncated buffer, got nil")
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Error("expected error decoding nil buffer")
	}
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error decoding short buffer")
	}
}

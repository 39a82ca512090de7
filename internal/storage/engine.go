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

package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"flydb/internal/storage/disk"
)

// Engine is the minimal key-value interface the Raft FSM applies
// committed commands against. It is the "data store collaborator"
// named by the coordination engine's design: out of scope for the
// Raft subsystem itself, but the thing FSM.Apply calls.
type Engine interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	Scan(prefix []byte, fn func(key, value []byte) bool) error
	Close() error
}

// EncryptionConfig controls at-rest encryption of the WAL.
type EncryptionConfig struct {
	Enabled    bool
	Passphrase string
}

// StorageConfig configures a DiskEngine.
type StorageConfig struct {
	DataDir            string
	BufferPoolSize     int // pages; advisory only, see EngineStats.BufferPoolSize
	CheckpointInterval time.Duration
	Encryption         EncryptionConfig
}

// NewStorageEngine constructs the unified disk-based storage engine,
// replaying its write-ahead log if one already exists in DataDir.
func NewStorageEngine(config StorageConfig) (StorageEngine, error) {
	if config.DataDir == "" {
		return nil, ErrEngineNotSupported
	}
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var aead cipher.AEAD
	if config.Encryption.Enabled {
		a, err := newAEAD(config.Encryption.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("init encryption: %w", err)
		}
		aead = a
	}

	wal, err := openWAL(filepath.Join(config.DataDir, "engine.wal"), aead)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}

	e := &DiskEngine{
		config: config,
		data:   make(map[string][]byte),
		wal:    wal,
	}

	if err := wal.Replay(func(op byte, key, value []byte) {
		switch op {
		case walOpPut:
			e.data[string(key)] = value
		case walOpDelete:
			delete(e.data, string(key))
		}
	}); err != nil {
		return nil, fmt.Errorf("replay wal: %w", err)
	}

	if config.CheckpointInterval > 0 {
		e.aio = disk.NewAsyncIO(wal.file, disk.AsyncIOConfig{
			NumWorkers:   1,
			QueueSize:    64,
			BatchSize:    1,
			BatchTimeout: config.CheckpointInterval,
		})
	}

	return e, nil
}

// DiskEngine is FlyDB's unified disk-based key-value storage engine:
// an in-memory map backed by a write-ahead log for crash recovery,
// fronted by the StorageEngine interface the Raft FSM applies against.
type DiskEngine struct {
	mu     sync.RWMutex
	config StorageConfig
	data   map[string][]byte
	wal    *WAL
	aio    *disk.AsyncIO

	pageReads, pageWrites atomicCounter
}

func (e *DiskEngine) Put(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.wal.Append(walOpPut, key, value); err != nil {
		return err
	}
	e.data[string(key)] = append([]byte(nil), value...)
	e.pageWrites.add(1)
	return nil
}

func (e *DiskEngine) Get(key []byte) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.pageReads.add(1)
	v, ok := e.data[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (e *DiskEngine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.wal.Append(walOpDelete, key, nil); err != nil {
		return err
	}
	delete(e.data, string(key))
	return nil
}

func (e *DiskEngine) Scan(prefix []byte, fn func(key, value []byte) bool) error {
	e.mu.RLock()
	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make(map[string][]byte, len(keys))
	for _, k := range keys {
		snapshot[k] = e.data[k]
	}
	e.mu.RUnlock()

	for _, k := range keys {
		if !fn([]byte(k), snapshot[k]) {
			break
		}
	}
	return nil
}

func (e *DiskEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.aio != nil {
		e.aio.Close()
		e.aio = nil
	}
	return e.wal.Close()
}

func (e *DiskEngine) Sync() error {
	return e.wal.Sync()
}

func (e *DiskEngine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	size, _ := e.wal.Size()
	return EngineStats{
		KeyCount:       int64(len(e.data)),
		WALSize:        size,
		EngineType:     EngineTypeDisk,
		IsEncrypted:    e.config.Encryption.Enabled,
		BufferPoolSize: int64(e.config.BufferPoolSize) * 4096,
		PageReads:      e.pageReads.value(),
		PageWrites:     e.pageWrites.value(),
	}
}

func (e *DiskEngine) Type() StorageEngineType { return EngineTypeDisk }

func (e *DiskEngine) WAL() *WAL { return e.wal }

func (e *DiskEngine) IsEncrypted() bool { return e.config.Encryption.Enabled }

type atomicCounter struct {
	mu sync.Mutex
	n  int64
}

func (c *atomicCounter) add(d int64) {
	c.mu.Lock()
	c.n += d
	c.mu.Unlock()
}

func (c *atomicCounter) value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newAEAD(passphrase string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

const (
	walOpPut    byte = 1
	walOpDelete byte = 2
)

// WAL is the write-ahead log backing a DiskEngine. Every mutation is
// appended as a record before being applied to the in-memory map, so
// a crash can always be recovered by replay. Optionally encrypted
// at rest with AES-GCM.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	aead cipher.AEAD
}

func openWAL(path string, aead cipher.AEAD) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &WAL{file: f, aead: aead}, nil
}

// Append durably writes one WAL record: op, key, value.
func (w *WAL) Append(op byte, key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var rec bytes.Buffer
	rec.WriteByte(op)
	writeLenPrefixed(&rec, key)
	writeLenPrefixed(&rec, value)

	payload := rec.Bytes()
	if w.aead != nil {
		nonce := make([]byte, w.aead.NonceSize())
		if _, err := randRead(nonce); err != nil {
			return err
		}
		sealed := w.aead.Seal(nonce, nonce, payload, nil)
		payload = sealed
	}

	var frame bytes.Buffer
	writeLenPrefixed(&frame, payload)
	if _, err := w.file.Write(frame.Bytes()); err != nil {
		return err
	}
	return w.file.Sync()
}

// Sync forces any buffered writes to durable storage.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Size returns the current WAL file size in bytes.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fi, err := w.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Close closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Replay reads every record from the beginning of the log and
// invokes sink in insertion order.
func (w *WAL) Replay(sink func(op byte, key, value []byte)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}
	defer w.file.Seek(0, 2)

	for {
		frame, err := readLenPrefixed(w.file)
		if err != nil {
			break
		}
		payload := frame
		if w.aead != nil {
			ns := w.aead.NonceSize()
			if len(frame) < ns {
				break
			}
			nonce, ciphertext := frame[:ns], frame[ns:]
			plain, err := w.aead.Open(nil, nonce, ciphertext, nil)
			if err != nil {
				break
			}
			payload = plain
		}

		r := bytes.NewReader(payload)
		op, err := r.ReadByte()
		if err != nil {
			break
		}
		key, err := readLenPrefixedReader(r)
		if err != nil {
			break
		}
		value, err := readLenPrefixedReader(r)
		if err != nil {
			break
		}
		sink(op, key, value)
	}
	return nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func readLenPrefixed(f *os.File) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(f, lenBuf[:]); err != nil {
		return nil, err
	}
	l := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, l)
	if _, err := readFull(f, data); err != nil {
		return nil, err
	}
	return data, nil
}

func readLenPrefixedReader(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, err
	}
	l := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, l)
	if _, err := r.Read(data); err != nil && l > 0 {
		return nil, err
	}
	return data, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func randRead(b []byte) (int, error) {
	return cryptorand.Read(b)
}

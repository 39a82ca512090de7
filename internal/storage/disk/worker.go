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

package disk

import "time"

// PageID identifies a page-sized region of the backing file. The
// disk-based storage engine no longer pages data itself (DiskEngine
// keeps its working set in memory and relies on the WAL for
// durability). DiskEngine opens an AsyncIO worker pool on the WAL file
// when checkpoints are enabled but submits no requests to it; PageID
// is kept as the addressing unit its IORequest struct names.
type PageID uint64

// Submit enqueues an I/O request for a background worker to process.
// It returns immediately; completion is reported via req.Callback.
func (aio *AsyncIO) Submit(req *IORequest) {
	req.submittedAt = time.Now()
	aio.pending.Add(1)
	select {
	case aio.requestCh <- req:
	case <-aio.stopCh:
		aio.pending.Add(-1)
		if req.Callback != nil {
			req.Callback(errAsyncIOClosed)
		}
	}
}

func (aio *AsyncIO) worker(id int) {
	defer aio.wg.Done()
	for {
		select {
		case <-aio.stopCh:
			return
		case req := <-aio.requestCh:
			err := aio.process(req)
			aio.pending.Add(-1)
			latency := time.Since(req.submittedAt)
			aio.totalLatency.Add(uint64(latency))
			if req.Callback != nil {
				req.Callback(err)
			}
		}
	}
}

func (aio *AsyncIO) process(req *IORequest) error {
	aio.mu.RLock()
	file := aio.file
	aio.mu.RUnlock()

	switch req.Type {
	case IORead:
		aio.reads.Add(1)
		_, err := file.ReadAt(req.Data, req.Offset)
		return err
	case IOWrite:
		aio.writes.Add(1)
		_, err := file.WriteAt(req.Data, req.Offset)
		return err
	case IOSync, IOFlush:
		aio.syncs.Add(1)
		return file.Sync()
	default:
		return nil
	}
}

// Stats returns a point-in-time snapshot of AsyncIO counters.
func (aio *AsyncIO) Stats() (reads, writes, syncs uint64, pending int64) {
	return aio.reads.Load(), aio.writes.Load(), aio.syncs.Load(), aio.pending.Load()
}

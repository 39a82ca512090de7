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
	"log"

	"github.com/hashicorp/go-hclog"

	"flydb/internal/logging"
)

// hclogAdapter bridges FlyDB's own *logging.Logger to the
// hashicorp/go-hclog interface raft.Config.Logger requires, so the
// library's internal election/heartbeat chatter lands in the same
// structured log stream as the rest of FlyDB instead of a separate
// unstructured one.
type hclogAdapter struct {
	name string
	log  *logging.Logger
}

// NewHCLogAdapter wraps log for use as a raft.Config.Logger.
func NewHCLogAdapter(log *logging.Logger) hclog.Logger {
	return &hclogAdapter{name: "raft", log: log}
}

func (a *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		a.log.Debug(msg, args...)
	case hclog.Warn:
		a.log.Warn(msg, args...)
	case hclog.Error:
		a.log.Error(msg, args...)
	default:
		a.log.Info(msg, args...)
	}
}

func (a *hclogAdapter) Trace(msg string, args ...interface{}) { a.log.Debug(msg, args...) }
func (a *hclogAdapter) Debug(msg string, args ...interface{}) { a.log.Debug(msg, args...) }
func (a *hclogAdapter) Info(msg string, args ...interface{})  { a.log.Info(msg, args...) }
func (a *hclogAdapter) Warn(msg string, args ...interface{})  { a.log.Warn(msg, args...) }
func (a *hclogAdapter) Error(msg string, args ...interface{}) { a.log.Error(msg, args...) }

func (a *hclogAdapter) IsTrace() bool { return false }
func (a *hclogAdapter) IsDebug() bool { return true }
func (a *hclogAdapter) IsInfo() bool  { return true }
func (a *hclogAdapter) IsWarn() bool  { return true }
func (a *hclogAdapter) IsError() bool { return true }

func (a *hclogAdapter) ImpliedArgs() []interface{} { return nil }

func (a *hclogAdapter) With(args ...interface{}) hclog.Logger {
	return &hclogAdapter{name: a.name, log: a.log.With(args...)}
}

func (a *hclogAdapter) Name() string { return a.name }

func (a *hclogAdapter) Named(name string) hclog.Logger {
	return &hclogAdapter{name: a.name + "." + name, log: a.log}
}

func (a *hclogAdapter) ResetNamed(name string) hclog.Logger {
	return &hclogAdapter{name: name, log: a.log}
}

func (a *hclogAdapter) SetLevel(hclog.Level) {}

func (a *hclogAdapter) GetLevel() hclog.Level { return hclog.Info }

func (a *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(a.StandardWriter(opts), "", 0)
}

func (a *hclogAdapter) StandardWriter(_ *hclog.StandardLoggerOptions) io.Writer {
	return &hclogWriter{a: a}
}

type hclogWriter struct{ a *hclogAdapter }

func (w *hclogWriter) Write(p []byte) (int, error) {
	w.a.log.Info(string(p))
	return len(p), nil
}

var _ hclog.Logger = (*hclogAdapter)(nil)

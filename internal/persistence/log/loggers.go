package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
)

// JSONLZstdWriter appends JSON lines to one zstd-compressed file, opened on first write.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (w *JSONLZstdWriter) Path() string { return w.path }

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.w == nil {
		if err := w.openLocked(); err != nil {
			return err
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		err1 = w.w.Flush()
	}
	if w.enc != nil {
		if err := w.enc.Close(); err1 == nil {
			err1 = err
		}
		w.enc = nil
	}
	if w.f != nil {
		if err := w.f.Close(); err1 == nil {
			err1 = err
		}
		w.f = nil
	}
	w.w = nil
	return err1
}

// TraceEntry is one line of a search trace.
type TraceEntry struct {
	Time     time.Time           `json:"ts"`
	RunID    string              `json:"run_id"`
	Type     string              `json:"type"`
	Chunk    int                 `json:"chunk"`
	Progress *search.Progress    `json:"progress,omitempty"`
	Stats    *planner.ChunkStats `json:"stats,omitempty"`
	Error    string              `json:"error,omitempty"`
}

const (
	TraceProgress = "progress"
	TraceChunk    = "chunk"
	TraceFailed   = "failed"
)

// TraceLogger writes the search trace of one planning run.
type TraceLogger struct {
	runID string
	w     *JSONLZstdWriter
}

func NewTraceLogger(dir, runID string) *TraceLogger {
	return &TraceLogger{runID: runID, w: NewJSONLZstdWriter(filepath.Join(dir, fmt.Sprintf("trace-%s.jsonl.zst", runID)))}
}

func (l *TraceLogger) Path() string { return l.w.Path() }

func (l *TraceLogger) WriteProgress(chunk int, p search.Progress) error {
	return l.w.Write(TraceEntry{Time: time.Now().UTC(), RunID: l.runID, Type: TraceProgress, Chunk: chunk, Progress: &p})
}

func (l *TraceLogger) WriteChunk(s planner.ChunkStats) error {
	return l.w.Write(TraceEntry{Time: time.Now().UTC(), RunID: l.runID, Type: TraceChunk, Chunk: s.Index, Stats: &s})
}

func (l *TraceLogger) WriteFailure(chunk int, err error) error {
	return l.w.Write(TraceEntry{Time: time.Now().UTC(), RunID: l.runID, Type: TraceFailed, Chunk: chunk, Error: err.Error()})
}

func (l *TraceLogger) Close() error { return l.w.Close() }

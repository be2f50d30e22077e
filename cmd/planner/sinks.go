package main

import (
	"log"

	"voxelplan.ai/internal/persistence/indexdb"
	persistlog "voxelplan.ai/internal/persistence/log"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
	"voxelplan.ai/internal/transport/ws"
)

// runSinks fans planner callbacks out to whichever of the trace, index and
// websocket hub are enabled.
type runSinks struct {
	runID string
	log   *log.Logger

	trace *persistlog.TraceLogger
	idx   *indexdb.SQLiteIndex
	hub   *ws.Hub

	traceFailed bool
}

func (s *runSinks) traceErr(err error) {
	if err == nil || s.traceFailed {
		return
	}
	s.traceFailed = true
	s.log.Printf("trace %s: %v (further errors suppressed)", s.trace.Path(), err)
}

func (s *runSinks) run(row indexdb.RunRow) {
	if s.idx != nil {
		s.idx.RecordRun(row)
	}
}

func (s *runSinks) progress(chunk int, p search.Progress) {
	if s.trace != nil {
		s.traceErr(s.trace.WriteProgress(chunk, p))
	}
	if s.idx != nil {
		s.idx.RecordProgress(s.runID, chunk, p)
	}
	if s.hub != nil {
		s.hub.PublishProgress(s.runID, chunk, p)
	}
}

func (s *runSinks) chunk(st planner.ChunkStats) {
	if s.trace != nil {
		s.traceErr(s.trace.WriteChunk(st))
	}
	if s.idx != nil {
		s.idx.RecordChunk(s.runID, st)
	}
	if s.hub != nil {
		s.hub.PublishChunk(s.runID, st)
	}
}

func (s *runSinks) failed(chunk int, err error) {
	if s.trace != nil {
		s.traceErr(s.trace.WriteFailure(chunk, err))
	}
	if s.hub != nil {
		s.hub.PublishFailure(s.runID, chunk, err)
	}
}

func (s *runSinks) done(plan *planner.Plan) {
	if s.hub != nil {
		s.hub.PublishDone(plan)
	}
}

// close flushes everything; used on the fatal path where deferred calls do not run.
func (s *runSinks) close() {
	if s.trace != nil {
		_ = s.trace.Close()
	}
	if s.idx != nil {
		_ = s.idx.Close()
	}
	if s.hub != nil {
		s.hub.Close()
	}
}

package main

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelplan.ai/internal/persistence/indexdb"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
	"voxelplan.ai/internal/transport/ws"
)

func TestHTTPMux_Metrics(t *testing.T) {
	hub := ws.NewHub(nil)
	defer hub.Close()
	mux := httpMux(hub, nil)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != 200 || rw.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rw.Code, rw.Body.String())
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rw.Body.String()
	if !strings.Contains(body, "voxelplan_ws_clients 0") {
		t.Fatalf("metrics:\n%s", body)
	}
	if strings.Contains(body, "voxelplan_index_queue_depth") {
		t.Fatalf("index metrics without an index")
	}
}

func TestRunSinks_RecordsIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dir, "runs.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer idx.Close()

	s := &runSinks{runID: "r1", log: log.New(&strings.Builder{}, "", 0), idx: idx}
	s.run(indexdb.RunRow{RunID: "r1", Structure: "hut", Status: indexdb.StatusRunning, StartedAt: time.Now()})
	s.progress(0, search.Progress{Expanded: 10})
	s.chunk(planner.ChunkStats{Index: 0, Blocks: 4, Actions: 9, Cost: 12})
	s.run(indexdb.RunRow{RunID: "r1", Structure: "hut", Status: indexdb.StatusDone, Chunks: 1, Actions: 9, Cost: 12, StartedAt: time.Now(), FinishedAt: time.Now()})
	idx.Flush()

	row, err := idx.Run(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if row.Status != indexdb.StatusDone || row.Cost != 12 {
		t.Fatalf("row=%+v", row)
	}
	chunks, err := idx.Chunks(context.Background(), "r1")
	if err != nil || len(chunks) != 1 || chunks[0].Blocks != 4 {
		t.Fatalf("chunks=%+v err=%v", chunks, err)
	}
}

package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelplan.ai/internal/catalogs"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/search"
	"voxelplan.ai/internal/tuning"
)

// SQLiteIndex is a queryable side index of planning runs. Writes go through a buffered
// channel to a single writer goroutine and are dropped when it falls behind; the plan
// files and traces remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRun      atomic.Uint64
	dropChunk    atomic.Uint64
	dropProgress atomic.Uint64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqChunk
	reqProgress
	reqFlush
)

type req struct {
	kind reqKind

	run      RunRow
	runID    string
	chunk    planner.ChunkStats
	progress progressRow
	done     chan struct{}
}

const (
	StatusRunning    = "running"
	StatusDone       = "done"
	StatusInfeasible = "infeasible"
	StatusFailed     = "failed"
)

// RunRow is one planning run. Started rows are replaced by the finished row.
type RunRow struct {
	RunID           string
	Structure       string
	StructureDigest string
	CatalogDigest   string
	Status          string
	Chunks          int
	Actions         int
	Cost            int
	PlanPath        string
	Error           string
	StartedAt       time.Time
	FinishedAt      time.Time
}

type progressRow struct {
	RunID string
	Chunk int
	P     search.Progress
	At    time.Time
}

type QueueStats struct {
	QueueDepth        int
	QueueCapacity     int
	DropRunTotal      uint64
	DropChunkTotal    uint64
	DropProgressTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			structure TEXT NOT NULL,
			structure_digest TEXT NOT NULL,
			catalog_digest TEXT NOT NULL,
			status TEXT NOT NULL,
			chunks INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			plan_path TEXT NOT NULL,
			error TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_structure ON runs(structure_digest, started_at);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			min_y INTEGER NOT NULL,
			max_y INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			actions INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			weight REAL NOT NULL,
			end_hash TEXT NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			PRIMARY KEY (run_id, idx)
		);`,
		`CREATE TABLE IF NOT EXISTS progress (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			chunk INTEGER NOT NULL,
			expanded INTEGER NOT NULL,
			open_nodes INTEGER NOT NULL,
			closed_nodes INTEGER NOT NULL,
			best INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			weight REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}
	return QueueStats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropRunTotal:      s.dropRun.Load(),
		DropChunkTotal:    s.dropChunk.Load(),
		DropProgressTotal: s.dropProgress.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordRun(r RunRow) { s.enqueue(req{kind: reqRun, run: r}, &s.dropRun) }

func (s *SQLiteIndex) RecordChunk(runID string, c planner.ChunkStats) {
	s.enqueue(req{kind: reqChunk, runID: runID, chunk: c}, &s.dropChunk)
}

func (s *SQLiteIndex) RecordProgress(runID string, chunk int, p search.Progress) {
	s.enqueue(req{kind: reqProgress, progress: progressRow{RunID: runID, Chunk: chunk, P: p, At: time.Now().UTC()}}, &s.dropProgress)
}

// Flush waits until everything queued so far is committed.
func (s *SQLiteIndex) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}

// UpsertCatalog stores the rule catalog and the tuning in effect, keyed by digest.
func (s *SQLiteIndex) UpsertCatalog(raw []byte, cat *catalogs.RuleCatalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	rows := []kv{{name: "rules", digest: cat.Digest, json: raw}}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	// The writer goroutine must not hold the only connection while we write.
	s.Flush()
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func timeText(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,structure,structure_digest,catalog_digest,status,chunks,actions,cost,plan_path,error,started_at,finished_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertChunk, _ := s.db.Prepare(`INSERT OR REPLACE INTO chunks(run_id,idx,min_y,max_y,blocks,actions,cost,expanded,weight,end_hash,elapsed_ms) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertProgress, _ := s.db.Prepare(`INSERT OR REPLACE INTO progress(run_id,seq,chunk,expanded,open_nodes,closed_nodes,best,remaining,weight,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertRun, insertChunk, insertProgress} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		progressSeq = map[string]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		select {
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		case <-ticker.C:
			if time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRun:
			ru := r.run
			var errText any
			if ru.Error != "" {
				errText = ru.Error
			}
			exec(insertRun, ru.RunID, ru.Structure, ru.StructureDigest, ru.CatalogDigest, ru.Status,
				ru.Chunks, ru.Actions, ru.Cost, ru.PlanPath, errText, timeText(ru.StartedAt), timeText(ru.FinishedAt))

		case reqChunk:
			c := r.chunk
			exec(insertChunk, r.runID, c.Index, c.MinY, c.MaxY, c.Blocks, c.Actions, c.Cost, c.Expanded, c.Weight,
				fmt.Sprintf("%016x", c.EndHash), c.Elapsed.Milliseconds())

		case reqProgress:
			p := r.progress
			seq := progressSeq[p.RunID]
			progressSeq[p.RunID] = seq + 1
			exec(insertProgress, p.RunID, seq, p.Chunk, p.P.Expanded, p.P.Open, p.P.Closed, p.P.Best, p.P.Remaining, p.P.Weight, timeText(p.At))
		}
		if tx != nil && opCount >= commitEvery {
			commit()
		}
	}
}

// Run reads back a run row.
func (s *SQLiteIndex) Run(ctx context.Context, runID string) (RunRow, error) {
	s.Flush()
	var (
		r        RunRow
		errText  sql.NullString
		started  string
		finished sql.NullString
	)
	row := s.db.QueryRowContext(ctx, `SELECT run_id,structure,structure_digest,catalog_digest,status,chunks,actions,cost,plan_path,error,started_at,finished_at FROM runs WHERE run_id=?`, runID)
	if err := row.Scan(&r.RunID, &r.Structure, &r.StructureDigest, &r.CatalogDigest, &r.Status, &r.Chunks, &r.Actions, &r.Cost, &r.PlanPath, &errText, &started, &finished); err != nil {
		return r, err
	}
	r.Error = errText.String
	r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	return r, nil
}

// Chunks reads back the chunk rows of a run in order.
func (s *SQLiteIndex) Chunks(ctx context.Context, runID string) ([]planner.ChunkStats, error) {
	s.Flush()
	rows, err := s.db.QueryContext(ctx, `SELECT idx,min_y,max_y,blocks,actions,cost,expanded,weight,elapsed_ms FROM chunks WHERE run_id=? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []planner.ChunkStats
	for rows.Next() {
		var (
			c  planner.ChunkStats
			ms int64
		)
		if err := rows.Scan(&c.Index, &c.MinY, &c.MaxY, &c.Blocks, &c.Actions, &c.Cost, &c.Expanded, &c.Weight, &ms); err != nil {
			return nil, err
		}
		c.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

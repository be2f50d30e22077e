package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"voxelplan.ai/internal/catalogs"
	"voxelplan.ai/internal/persistence/indexdb"
	persistlog "voxelplan.ai/internal/persistence/log"
	"voxelplan.ai/internal/persistence/planfile"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/rules"
	"voxelplan.ai/internal/script"
	"voxelplan.ai/internal/structure"
	"voxelplan.ai/internal/transport/ws"
	"voxelplan.ai/internal/tuning"
)

func main() {
	var (
		structPath = flag.String("structure", "", "structure document (json)")
		rulesPath  = flag.String("rules", "", "rule catalog (default: embedded catalog)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		outPath    = flag.String("out", "", "plan file (default: <data>/plans/<name>.plan.zst)")
		luaPath    = flag.String("lua", "", "also write a turtle script here")
		disableDB  = flag.Bool("disable_db", false, "disable the run index")
		noTrace    = flag.Bool("no_trace", false, "do not write a progress trace")
		addr       = flag.String("addr", "", "http listen address for /ws progress and /metrics (empty to disable)")
		timeout    = flag.Duration("timeout", 0, "give up after this long (0 = no limit)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[planner] ", log.LstdFlags|log.Lmicroseconds)

	if strings.TrimSpace(*structPath) == "" {
		logger.Fatalf("missing -structure")
	}

	cat, err := catalogs.Load(strings.TrimSpace(*rulesPath))
	if err != nil {
		logger.Fatalf("load rules: %v", err)
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	doc, raw, err := structure.Read(*structPath)
	if err != nil {
		logger.Fatalf("read structure: %v", err)
	}
	st, err := structure.Build(doc, cat, rules.NewRegistry(), structure.Options{LiquidDepth: tune.LiquidDepth})
	if err != nil {
		logger.Fatalf("build structure: %v", err)
	}
	logger.Printf("structure=%s size=%v blocks=%d", st.Name, st.Size, st.Remaining.Placeable())
	for _, l := range st.Materials() {
		logger.Printf("  %-24s %d", l.Item, l.Count)
	}

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(*dataDir, "plans", st.Name+".plan.zst")
	}

	ctx, cancel := signalContext()
	defer cancel()
	if *timeout > 0 {
		var c context.CancelFunc
		ctx, c = context.WithTimeout(ctx, *timeout)
		defer c()
	}

	runID := uuid.NewString()
	sinks := &runSinks{runID: runID, log: logger}

	if !*disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "runs.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalog(cat.Raw, cat, tune); err != nil {
			logger.Printf("index: upsert catalog: %v", err)
		}
		sinks.idx = idx
	}
	if !*noTrace {
		trace := persistlog.NewTraceLogger(filepath.Join(*dataDir, "traces"), runID)
		defer trace.Close()
		sinks.trace = trace
	}
	if a := strings.TrimSpace(*addr); a != "" {
		hub := ws.NewHub(logger)
		hub.SetRun(runID)
		defer hub.Close()
		sinks.hub = hub
		srv := &http.Server{Addr: a, Handler: httpMux(hub, sinks.idx)}
		go func() {
			logger.Printf("listening on %s", a)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Printf("http: %v", err)
			}
		}()
		defer func() {
			sctx, c := context.WithTimeout(context.Background(), 2*time.Second)
			defer c()
			_ = srv.Shutdown(sctx)
		}()
	}

	cfg := tune.PlannerConfig(cat.StackSize)
	cfg.RunID = runID
	cfg.Logger = logger
	cfg.Progress = sinks.progress
	cfg.OnChunk = sinks.chunk

	started := time.Now().UTC()
	row := indexdb.RunRow{
		RunID:           runID,
		Structure:       st.Name,
		StructureDigest: structure.Digest(raw),
		CatalogDigest:   cat.Digest,
		Status:          indexdb.StatusRunning,
		StartedAt:       started,
	}
	sinks.run(row)

	plan, err := planner.Run(ctx, st.Problem(), cfg)
	row.FinishedAt = time.Now().UTC()
	if err != nil {
		row.Status = indexdb.StatusFailed
		row.Error = err.Error()
		var inf *planner.InfeasibleError
		chunk := len(plan.Chunks)
		if errors.As(err, &inf) {
			row.Status = indexdb.StatusInfeasible
			chunk = inf.Chunk
		}
		row.Chunks = len(plan.Chunks)
		row.Actions = len(plan.Actions)
		row.Cost = plan.Cost
		sinks.failed(chunk, err)
		sinks.run(row)
		sinks.close()
		logger.Fatalf("plan: %v", err)
	}

	v := planfile.FromPlan(plan, cfg)
	v.Header.Structure = st.Name
	v.Header.StructureDigest = row.StructureDigest
	v.Header.CatalogDigest = cat.Digest
	v.LiquidDepth = tune.LiquidDepth
	if err := planfile.Write(out, v); err != nil {
		logger.Fatalf("write plan: %v", err)
	}
	logger.Printf("plan=%s actions=%d cost=%d chunks=%d in %s", out, len(plan.Actions), plan.Cost, len(plan.Chunks), plan.Elapsed)

	if lp := strings.TrimSpace(*luaPath); lp != "" {
		if err := writeLua(lp, st, cfg, plan); err != nil {
			logger.Fatalf("lua: %v", err)
		}
		logger.Printf("script=%s", lp)
	}

	row.Status = indexdb.StatusDone
	row.Chunks = len(plan.Chunks)
	row.Actions = len(plan.Actions)
	row.Cost = plan.Cost
	row.PlanPath = out
	sinks.run(row)
	sinks.done(plan)
}

func writeLua(path string, st *structure.Structure, cfg planner.Config, plan *planner.Plan) error {
	states, err := planner.Replay(st.Problem(), cfg, plan)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := script.WriteLua(f, st.Name, plan, states); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func httpMux(hub *ws.Hub, idx *indexdb.SQLiteIndex) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/ws", hub.Handler())
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		fmt.Fprintf(rw, "# HELP voxelplan_ws_clients Connected progress watchers.\n")
		fmt.Fprintf(rw, "# TYPE voxelplan_ws_clients gauge\n")
		fmt.Fprintf(rw, "voxelplan_ws_clients %d\n", hub.Clients())

		if idx == nil {
			return
		}
		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP voxelplan_index_queue_depth Index writer backlog.\n")
		fmt.Fprintf(rw, "# TYPE voxelplan_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxelplan_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxelplan_index_dropped_total Index rows dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxelplan_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxelplan_index_dropped_total{kind=%q} %d\n", "run", st.DropRunTotal)
		fmt.Fprintf(rw, "voxelplan_index_dropped_total{kind=%q} %d\n", "chunk", st.DropChunkTotal)
		fmt.Fprintf(rw, "voxelplan_index_dropped_total{kind=%q} %d\n", "progress", st.DropProgressTotal)
	})
	return mux
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

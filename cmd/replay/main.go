package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelplan.ai/internal/catalogs"
	persistlog "voxelplan.ai/internal/persistence/log"
	"voxelplan.ai/internal/persistence/planfile"
	"voxelplan.ai/internal/plan/planner"
	"voxelplan.ai/internal/plan/rules"
	"voxelplan.ai/internal/script"
	"voxelplan.ai/internal/structure"
)

func main() {
	var (
		planPath   = flag.String("plan", "", "path to .plan.zst")
		structPath = flag.String("structure", "", "structure document the plan was made for (optional)")
		rulesPath  = flag.String("rules", "", "rule catalog (default: embedded catalog)")
		tracePath  = flag.String("trace", "", "trace-*.jsonl.zst to check against the plan (optional)")
		luaPath    = flag.String("lua", "", "write a turtle script here after a successful replay")
		force      = flag.Bool("force", false, "replay even if structure or catalog digests differ")
	)
	flag.Parse()

	if *planPath == "" {
		fmt.Fprintln(os.Stderr, "missing -plan")
		os.Exit(2)
	}

	v, err := planfile.Read(*planPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read plan:", err)
		os.Exit(1)
	}
	fmt.Printf("plan v%d run=%s structure=%s actions=%d cost=%d chunks=%d layers=%d slots=%d created=%s\n",
		v.Header.Version, v.Header.RunID, v.Header.Structure, v.Header.Actions, v.Header.Cost,
		len(v.Chunks), v.LayersPerChunk, v.InventorySlots, v.Header.Created.Format("2006-01-02T15:04:05Z"))

	plan, err := v.Plan()
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode plan:", err)
		os.Exit(1)
	}

	if *tracePath != "" {
		n, err := checkTrace(*tracePath, plan)
		if err != nil {
			fmt.Fprintln(os.Stderr, "trace:", err)
			os.Exit(1)
		}
		fmt.Printf("trace ok: %d entries\n", n)
	}

	if *structPath == "" {
		return
	}

	cat, err := catalogs.Load(strings.TrimSpace(*rulesPath))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load rules:", err)
		os.Exit(1)
	}
	doc, raw, err := structure.Read(*structPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read structure:", err)
		os.Exit(1)
	}
	if err := checkDigests(v.Header, structure.Digest(raw), cat.Digest); err != nil {
		if !*force {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "warning:", err)
	}
	st, err := structure.Build(doc, cat, rules.NewRegistry(), structure.Options{LiquidDepth: v.LiquidDepth})
	if err != nil {
		fmt.Fprintln(os.Stderr, "build structure:", err)
		os.Exit(1)
	}

	cfg := planner.DefaultConfig()
	cfg.Costs = v.Costs
	cfg.LayersPerChunk = v.LayersPerChunk
	cfg.InventorySlots = v.InventorySlots
	cfg.StackSizes = cat.StackSize

	states, err := planner.Replay(st.Problem(), cfg, plan)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: %d actions, %d chunks verified\n", len(plan.Actions), len(plan.Chunks))

	if *luaPath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(*luaPath), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "lua:", err)
		os.Exit(1)
	}
	f, err := os.Create(*luaPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lua:", err)
		os.Exit(1)
	}
	if err := script.WriteLua(f, st.Name, plan, states); err != nil {
		_ = f.Close()
		fmt.Fprintln(os.Stderr, "lua:", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "lua:", err)
		os.Exit(1)
	}
	fmt.Printf("script=%s\n", *luaPath)
}

func checkDigests(h planfile.Header, structDigest, catDigest string) error {
	if h.StructureDigest != "" && h.StructureDigest != structDigest {
		return fmt.Errorf("structure digest mismatch: plan=%s file=%s", short(h.StructureDigest), short(structDigest))
	}
	if h.CatalogDigest != "" && h.CatalogDigest != catDigest {
		return fmt.Errorf("catalog digest mismatch: plan=%s file=%s", short(h.CatalogDigest), short(catDigest))
	}
	return nil
}

func short(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// checkTrace reads a run trace and checks that its chunk entries agree with the plan.
func checkTrace(path string, plan *planner.Plan) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	n := 0
	chunks := 0
	for sc.Scan() {
		var e persistlog.TraceEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return n, fmt.Errorf("%s: line %d: %w", filepath.Base(path), n+1, err)
		}
		n++
		if e.RunID != plan.RunID {
			return n, fmt.Errorf("run id mismatch at line %d: trace=%s plan=%s", n, e.RunID, plan.RunID)
		}
		switch e.Type {
		case persistlog.TraceChunk:
			if e.Stats == nil || chunks >= len(plan.Chunks) {
				return n, fmt.Errorf("unexpected chunk entry at line %d", n)
			}
			want := plan.Chunks[chunks]
			if e.Stats.Index != want.Index || e.Stats.EndHash != want.EndHash || e.Stats.Cost != want.Cost {
				return n, fmt.Errorf("chunk %d: trace hash %x cost %d, plan hash %x cost %d",
					want.Index, e.Stats.EndHash, e.Stats.Cost, want.EndHash, want.Cost)
			}
			chunks++
		case persistlog.TraceFailed:
			return n, fmt.Errorf("trace records a failed run: %s", e.Error)
		}
	}
	if err := sc.Err(); err != nil {
		return n, err
	}
	if chunks != len(plan.Chunks) {
		return n, fmt.Errorf("trace has %d chunks, plan has %d", chunks, len(plan.Chunks))
	}
	return n, nil
}

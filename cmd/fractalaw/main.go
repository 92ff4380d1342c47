// Fractalaw - local-first analytical platform for legislative data.
// Imports columnar snapshots, runs sandboxed micro-apps against them, and
// ships the surrounding tooling: embedding pipeline, classifier, sync, repl.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fractalaw/fractalaw/internal/ai"
	"github.com/fractalaw/fractalaw/internal/codec"
	"github.com/fractalaw/fractalaw/internal/display"
	"github.com/fractalaw/fractalaw/internal/host"
	"github.com/fractalaw/fractalaw/internal/inference"
	"github.com/fractalaw/fractalaw/internal/ledger"
	"github.com/fractalaw/fractalaw/internal/loader"
	"github.com/fractalaw/fractalaw/internal/pipeline"
	"github.com/fractalaw/fractalaw/internal/schema"
	"github.com/fractalaw/fractalaw/internal/store"
	"github.com/fractalaw/fractalaw/internal/syncer"
)

const version = "0.3.0"

func usage() {
	fmt.Fprintf(os.Stderr, `Fractalaw v%s - legislative data platform

Usage: fractalaw <command> [options]

Commands:
  run        Execute a micro-app module against the stores
  load       Import parquet snapshots into a persistent store
  repl       Interactive SQL shell over the store
  show       Display one law as a card
  classify   Centroid-classify laws from an embedding snapshot
  embed      Run the embedding pipeline over the section snapshot
  sync       Pull annotations from / push polished entries to the partner
  runs       List recent micro-app executions

Environment Variables:
  FRACTALAW_INFER_ENDPOINT   Inference service base URL
  FRACTALAW_API_KEY          Inference service API key
  FRACTALAW_INFER_MODEL      Inference model id
  FRACTALAW_EMBED_ENDPOINT   Embedding service base URL
  FRACTALAW_EMBED_MODEL      Embedding model id

Run 'fractalaw <command> -h' for command options.
`, version)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "load":
		err = cmdLoad(os.Args[2:])
	case "repl":
		err = cmdRepl(os.Args[2:])
	case "show":
		err = cmdShow(os.Args[2:])
	case "classify":
		err = cmdClassify(os.Args[2:])
	case "embed":
		err = cmdEmbed(os.Args[2:])
	case "sync":
		err = cmdSync(os.Args[2:])
	case "runs":
		err = cmdRuns(os.Args[2:])
	case "-version", "--version", "version":
		fmt.Printf("fractalaw v%s\n", version)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStore opens the persistent store at dbPath, or an ephemeral one when
// dbPath is empty.
func openStore(dbPath string, logger *zap.Logger) (*store.Store, error) {
	if dbPath == "" {
		return store.Open(logger)
	}
	return store.OpenPersistent(dbPath, logger)
}

func inferenceFromEnv() *inference.Config {
	endpoint := os.Getenv("FRACTALAW_INFER_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	return &inference.Config{
		Endpoint: endpoint,
		APIKey:   os.Getenv("FRACTALAW_API_KEY"),
		Model:    os.Getenv("FRACTALAW_INFER_MODEL"),
	}
}

// ── run ──

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	appPath := fs.String("app", "", "Path to the micro-app .wasm module (required)")
	fuel := fs.Uint64("fuel", 1_000_000_000, "Fuel budget")
	ticks := fs.Uint64("ticks", host.DefaultDeadlineTicks, "Epoch deadline in ticks (1s each)")
	dbPath := fs.String("db", "", "Persistent store path (empty: ephemeral)")
	dataDir := fs.String("data", "", "Snapshot directory for bootstrap (optional)")
	ledgerPath := fs.String("ledger", ".fractalaw/runs.db", "Run ledger path (empty: disabled)")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(args)

	if *appPath == "" {
		return fmt.Errorf("run: -app is required")
	}
	logger := newLogger(*verbose)

	st, err := openStore(*dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if *dataDir != "" {
		if _, err := loader.Bootstrap(st, *dataDir, logger); err != nil {
			return err
		}
	}

	engine, err := host.NewEngine(logger)
	if err != nil {
		return err
	}
	mod, err := engine.LoadModuleFile(*appPath)
	if err != nil {
		return err
	}

	started := time.Now()
	result, err := engine.Run(context.Background(), mod, host.Options{
		Fuel:          *fuel,
		DeadlineTicks: *ticks,
		Store:         st,
		Inference:     inferenceFromEnv(),
	})
	if err != nil {
		return err
	}
	finished := time.Now()

	if result.OK {
		fmt.Printf("Outcome: Ok(%q)\n", result.Output)
	} else {
		fmt.Printf("Outcome: Err(%q)\n", result.Output)
	}
	fmt.Printf("Fuel consumed: %d\n", result.FuelConsumed)
	fmt.Printf("Audit trail (%d):\n", len(result.Audit))
	for _, rec := range result.Audit {
		fmt.Printf("  %s  %-20s %-20s %s\n",
			rec.Timestamp.Format("15:04:05.000"), rec.EventType, rec.Resource, rec.Detail)
	}

	if *ledgerPath != "" {
		if err := recordToLedger(*ledgerPath, *appPath, result, started, finished); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: ledger: %v\n", err)
		}
	}
	return nil
}

func recordToLedger(path, module string, result *host.RunResult, started, finished time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	l, err := ledger.Open(path)
	if err != nil {
		return err
	}
	defer l.Close()

	events := make([]ledger.AuditEvent, len(result.Audit))
	for i, rec := range result.Audit {
		events[i] = ledger.AuditEvent{
			Event:    rec.EventType,
			Resource: rec.Resource,
			Detail:   rec.Detail,
			At:       rec.Timestamp,
		}
	}
	_, err = l.RecordRun(ledger.Run{
		Module:       module,
		OK:           result.OK,
		Outcome:      result.Output,
		FuelConsumed: result.FuelConsumed,
		StartedAt:    started,
		FinishedAt:   finished,
	}, events)
	return err
}

// ── load ──

func cmdLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	dbPath := fs.String("db", "fractalaw.duckdb", "Persistent store path")
	dataDir := fs.String("data", "data", "Snapshot directory")
	force := fs.Bool("force", false, "Re-import even when tables exist")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(args)

	logger := newLogger(*verbose)
	st, err := store.OpenPersistent(*dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if *force {
		if err := st.LoadAll(*dataDir); err != nil {
			return err
		}
	} else {
		imported, err := loader.Bootstrap(st, *dataDir, logger)
		if err != nil {
			return err
		}
		if !imported {
			fmt.Println("Tables already present; use -force to re-import.")
			return nil
		}
	}

	leg, _ := st.LegislationCount()
	edges, _ := st.LawEdgesCount()
	fmt.Printf("Imported: %d laws, %d edges\n", leg, edges)
	return nil
}

// ── show ──

func cmdShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dbPath := fs.String("db", "fractalaw.duckdb", "Persistent store path")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("show: exactly one law name expected")
	}
	st, err := store.OpenPersistent(*dbPath, newLogger(false))
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetLegislation(fs.Arg(0))
	if err != nil {
		return err
	}
	defer rec.Release()
	return display.RenderCard(os.Stdout, rec)
}

// ── classify ──

func cmdClassify(args []string) error {
	fs := flag.NewFlagSet("classify", flag.ExitOnError)
	dbPath := fs.String("db", "fractalaw.duckdb", "Persistent store path")
	embPath := fs.String("embeddings", "embedded.arrow", "Embedding snapshot from the embed pipeline")
	domainThreshold := fs.Float64("domain-threshold", 0.3, "Domain similarity threshold")
	subjectThreshold := fs.Float64("subject-threshold", 0.3, "Subject similarity threshold")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(args)

	st, err := store.OpenPersistent(*dbPath, newLogger(*verbose))
	if err != nil {
		return err
	}
	defer st.Close()

	labelBatches, err := st.Query("SELECT name, domain, family, sub_family, subjects FROM legislation")
	if err != nil {
		return err
	}
	defer codec.Release(labelBatches)
	labels, err := ai.LabelSetFromLegislation(labelBatches)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(*embPath)
	if err != nil {
		return err
	}
	embBatches, err := codec.Decode(raw)
	if err != nil {
		return err
	}
	defer codec.Release(embBatches)

	lawEmbs, err := ai.AggregateLawEmbeddings(embBatches)
	if err != nil {
		return err
	}

	clf := ai.BuildClassifier(lawEmbs, labels)
	summary := clf.Summary(len(lawEmbs))
	fmt.Printf("Centroids: %d families, %d domains, %d subjects (from %d laws)\n",
		summary.FamilyCount, summary.DomainCount, summary.SubjectCount, summary.LawsUsed)

	results := clf.ClassifyBatch(lawEmbs, labels,
		float32(*domainThreshold), float32(*subjectThreshold))

	counts := map[ai.ClassificationStatus]int{}
	for _, r := range results {
		counts[r.Status]++
	}
	fmt.Printf("Classified %d laws: %d predicted, %d confirmed, %d conflicts\n",
		len(results), counts[ai.StatusPredicted], counts[ai.StatusConfirmed], counts[ai.StatusConflict])

	for _, r := range results {
		if r.Status == ai.StatusConflict {
			fmt.Printf("  conflict: %-24s predicted %s (%.2f), labelled %s\n",
				r.LawName, r.Family, r.FamilyConfidence, labels.LawFamily[r.LawName])
		}
	}
	return nil
}

// ── embed ──

func cmdEmbed(args []string) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	in := fs.String("in", "data/legislation_text.parquet", "Section text snapshot")
	out := fs.String("out", "embedded.arrow", "Output embedding snapshot")
	model := fs.String("model", "all-MiniLM-L6-v2", "Embedding model id")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(args)

	endpoint := os.Getenv("FRACTALAW_EMBED_ENDPOINT")
	if endpoint == "" {
		return fmt.Errorf("embed: FRACTALAW_EMBED_ENDPOINT not set")
	}
	if m := os.Getenv("FRACTALAW_EMBED_MODEL"); m != "" {
		*model = m
	}

	embedder := ai.NewHTTPEmbedder(endpoint, os.Getenv("FRACTALAW_EMBED_API_KEY"), *model, schema.EmbeddingDim)
	stats, err := pipeline.RunEmbed(context.Background(), embedder, *in, *out, *model, newLogger(*verbose))
	if err != nil {
		return err
	}
	fmt.Printf("Embedded %d sections in %.1fs -> %s\n", stats.Rows, stats.Elapsed.Seconds(), *out)
	return nil
}

// ── sync ──

func cmdSync(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("sync: expected 'pull' or 'push'")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("sync "+sub, flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:4000", "Partner service base URL")
	dbPath := fs.String("db", "fractalaw.duckdb", "Persistent store path")
	since := fs.String("since", "", "Pull only annotations after this RFC3339 instant")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(rest)

	logger := newLogger(*verbose)
	client := syncer.NewClient(*baseURL, logger)
	st, err := store.OpenPersistent(*dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	switch sub {
	case "pull":
		var sinceTime time.Time
		if *since != "" {
			sinceTime, err = time.Parse(time.RFC3339, *since)
			if err != nil {
				return fmt.Errorf("sync pull: bad -since: %w", err)
			}
		}
		anns, err := client.PullAnnotations(ctx, sinceTime)
		if err != nil {
			return err
		}
		if len(anns) == 0 {
			fmt.Println("No new annotations.")
			return nil
		}
		if _, err := st.Execute(syncer.AnnotationsDDL); err != nil {
			return err
		}
		rec := syncer.AnnotationsToRecord(anns)
		defer rec.Release()
		n, err := st.InsertBatch(syncer.AnnotationsTable, rec)
		if err != nil {
			return err
		}
		fmt.Printf("Pulled %d annotations into %s\n", n, syncer.AnnotationsTable)
		return nil

	case "push":
		recs, err := st.Query("SELECT * FROM " + syncer.PolishedTable)
		if err != nil {
			return err
		}
		defer codec.Release(recs)
		entries, err := syncer.RecordsToPolished(recs)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Nothing to push.")
			return nil
		}
		accepted, err := client.PushPolished(ctx, entries)
		if err != nil {
			return err
		}
		fmt.Printf("Pushed %d entries, %d accepted\n", len(entries), accepted)
		return nil

	default:
		return fmt.Errorf("sync: unknown subcommand %q", sub)
	}
}

// ── runs ──

func cmdRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	ledgerPath := fs.String("ledger", ".fractalaw/runs.db", "Run ledger path")
	limit := fs.Int("n", 20, "How many runs to list")
	showAudit := fs.Bool("audit", false, "Include each run's audit trail")
	fs.Parse(args)

	l, err := ledger.Open(*ledgerPath)
	if err != nil {
		return err
	}
	defer l.Close()

	runs, err := l.RecentRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}
	for _, r := range runs {
		status := "err"
		if r.OK {
			status = "ok"
		}
		fmt.Printf("%s  %-3s fuel=%-12d %s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), status, r.FuelConsumed, r.Module, r.Outcome)
		if *showAudit {
			events, err := l.AuditFor(r.ID)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("    %s  %-20s %-20s %s\n",
					ev.At.Format("15:04:05.000"), ev.Event, ev.Resource, ev.Detail)
			}
		}
	}
	return nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apache/arrow/go/v15/arrow"
	"github.com/chzyer/readline"

	"github.com/fractalaw/fractalaw/internal/codec"
	"github.com/fractalaw/fractalaw/internal/display"
	"github.com/fractalaw/fractalaw/internal/loader"
	"github.com/fractalaw/fractalaw/internal/store"
)

// replRowLimit caps how many rows a repl query prints.
const replRowLimit = 50

func cmdRepl(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	dbPath := fs.String("db", "fractalaw.duckdb", "Persistent store path")
	dataDir := fs.String("data", "", "Snapshot directory (bootstrap + auto-reload)")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	fs.Parse(args)

	logger := newLogger(*verbose)
	st, err := openStore(*dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *dataDir != "" {
		if _, err := loader.Bootstrap(st, *dataDir, logger); err != nil {
			return err
		}
		go loader.Watch(ctx, st, *dataDir, logger, func() {
			fmt.Println("\n(snapshots reloaded)")
		})
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fractalaw> ",
		HistoryFile:     ".fractalaw/history",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Printf("Fractalaw v%s SQL shell. .help for commands, .quit to exit.\n", version)

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if quit := replDotCommand(st, line); quit {
				return nil
			}
			continue
		}

		if err := replQuery(st, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

// replDotCommand handles shell commands; returns true on quit.
func replDotCommand(st *store.Store, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case ".quit", ".exit":
		return true
	case ".help":
		fmt.Println(`Commands:
  .tables           List tables
  .card <law>       Show one law as a card
  .quit             Exit
Anything else runs as SQL.`)
	case ".tables":
		if err := replQuery(st, "SELECT table_name FROM information_schema.tables ORDER BY table_name"); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	case ".card":
		if arg == "" {
			fmt.Println("usage: .card <law-name>")
			return false
		}
		rec, err := st.GetLegislation(strings.TrimSpace(arg))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return false
		}
		defer rec.Release()
		if err := display.RenderCard(os.Stdout, rec); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	default:
		fmt.Printf("unknown command %s (.help for help)\n", cmd)
	}
	return false
}

func replQuery(st *store.Store, stmt string) error {
	upper := strings.ToUpper(strings.TrimSpace(stmt))
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		n, err := st.Execute(stmt)
		if err != nil {
			return err
		}
		fmt.Printf("ok (%d rows affected)\n", n)
		return nil
	}

	recs, err := st.Query(stmt)
	if err != nil {
		return err
	}
	defer codec.Release(recs)
	printRecords(os.Stdout, recs, replRowLimit)
	return nil
}

// printRecords writes a plain row listing, capped at limit rows.
func printRecords(w io.Writer, recs []arrow.Record, limit int) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "(no results)")
		return
	}

	sch := recs[0].Schema()
	names := make([]string, len(sch.Fields()))
	for i, f := range sch.Fields() {
		names[i] = f.Name
	}
	fmt.Fprintln(w, strings.Join(names, " | "))

	printed := 0
	total := int64(0)
	for _, rec := range recs {
		total += rec.NumRows()
		for row := 0; row < int(rec.NumRows()) && printed < limit; row++ {
			cells := make([]string, int(rec.NumCols()))
			for col := range cells {
				if rec.Column(col).IsNull(row) {
					cells[col] = "NULL"
				} else {
					cells[col] = rec.Column(col).ValueStr(row)
				}
			}
			fmt.Fprintln(w, strings.Join(cells, " | "))
			printed++
		}
	}
	if int64(printed) < total {
		fmt.Fprintf(w, "… %d of %d rows shown\n", printed, total)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to facilitator.db (journal mode)")
	fixturePath := flag.String("fixture", "", "fixture file or directory of fixtures (fixture mode)")
	session := flag.String("session", "", "journal mode: only check this session")
	limit := flag.Int("limit", 10000, "journal mode: max tick entries to read")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json|dir")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/facilitator.db [--session id] [--limit N]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *session, *limit)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func fixturePaths(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var out []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, m...)
	}
	sort.Strings(out)
	return out, nil
}

func runFixtureMode(path string) int {
	paths, err := fixturePaths(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fixtures: %v\n", err)
		return 2
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "no fixtures under %s\n", path)
		return 2
	}

	exitCode := 0
	for _, p := range paths {
		f, err := replay.LoadFixture(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			return 2
		}
		results, sess, err := replay.Replay(f, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "replay %s: %v\n", p, err)
			return 2
		}
		fmt.Printf("== %s", filepath.Base(p))
		if f.Description != "" {
			fmt.Printf(" (%s)", f.Description)
		}
		fmt.Println()
		if code := printComparison(results, f.ExpectedResults); code != 0 {
			exitCode = code
		}
		s := replay.Summarize(results, sess.Style())
		fmt.Printf("ticks=%d intervene=%d suppress=%d errors=%d score_errors=%d style_changes=%d final=%s\n\n",
			s.Ticks, s.Interventions, s.Suppressions, s.Errors, s.ScoreErrors, s.StyleChanges, s.FinalStyle)
	}
	return exitCode
}

// #endregion fixture-mode

// #region db-mode

func runDBMode(dbPath, session string, limit int) int {
	journal, err := logging.OpenJournal(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open journal: %v\n", err)
		return 2
	}
	defer journal.Close()

	entries, err := journal.Recent(session, logging.KindTick, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read journal: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no tick entries found")
		return 0
	}

	bySession := make(map[string][]logging.Entry)
	for _, e := range entries {
		bySession[e.SessionID] = append(bySession[e.SessionID], e)
	}
	ids := make([]string, 0, len(bySession))
	for id := range bySession {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total, diverged := 0, 0
	for _, id := range ids {
		divs, err := replay.CheckJournal(bySession[id])
		if err != nil {
			fmt.Fprintf(os.Stderr, "session %s: %v\n", id, err)
			return 2
		}
		total += len(bySession[id])
		diverged += len(divs)
		for _, d := range divs {
			fmt.Printf("%s  %s\n", id, d)
		}
	}

	fmt.Printf("\nSummary: %d sessions, %d ticks, %d diverge\n", len(ids), total, diverged)
	if diverged > 0 {
		return 1
	}
	return 0
}

// #endregion db-mode

// #region output

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.Result, expected []replay.FixtureExpectedResult) int {
	fmt.Printf("%-8s| %-10s| %-10s| %-11s| %s\n", "At", "Kind", "Expected", "Replayed", "Match")
	fmt.Printf("%-8s+%-11s+%-11s+%-12s+%s\n",
		"--------", "-----------", "-----------", "------------", "------")

	want := make(map[float64]string, len(expected))
	for _, e := range expected {
		want[e.AtSeconds] = e.Action
	}
	for _, r := range results {
		exp, ok := want[r.AtSeconds]
		match := ""
		switch {
		case !ok:
			exp = "-"
		case exp == r.Action:
			match = "OK"
		default:
			match = "DIFF"
		}
		fmt.Printf("%-8.1f| %-10s| %-10s| %-11s| %s\n", r.AtSeconds, r.Kind, exp, r.Action, match)
	}

	mismatches := replay.Verify(results, expected)
	for _, m := range mismatches {
		fmt.Printf("  %s\n", m)
	}
	if len(mismatches) > 0 {
		return 1
	}
	return 0
}

// #endregion output

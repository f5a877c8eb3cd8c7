package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to facilitator.db")
	session := flag.String("session", "", "filter to one session id")
	kind := flag.String("kind", "", "filter by kind (tick|style_change|control_rejected|refresh|score_error)")
	last := flag.Int("last", 20, "show N most recent entries")
	counts := flag.Bool("counts", false, "show decision counts per kind instead of entries")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/facilitator.db [--session id] [--kind k] [--last N] [--counts] [--json]")
		os.Exit(2)
	}
	if *kind != "" && !knownKind(logging.Kind(*kind)) {
		fmt.Fprintf(os.Stderr, "unknown kind %q\n", *kind)
		os.Exit(2)
	}

	journal, err := logging.OpenJournal(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer journal.Close()

	if *counts {
		err = runCountMode(journal, *session, logging.Kind(*kind), *jsonOut)
	} else {
		err = runListMode(journal, *session, logging.Kind(*kind), *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var kinds = []logging.Kind{
	logging.KindTick,
	logging.KindStyle,
	logging.KindControl,
	logging.KindRefresh,
	logging.KindScoreErr,
}

func knownKind(k logging.Kind) bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

// #endregion main

// #region list-mode

type listRow struct {
	ID         int64   `json:"id"`
	SessionID  string  `json:"session_id"`
	Kind       string  `json:"kind"`
	Style      string  `json:"style,omitempty"`
	Generation uint64  `json:"generation"`
	Decision   string  `json:"decision"`
	Reason     string  `json:"reason,omitempty"`
	Score      float64 `json:"score"`
	Payload    any     `json:"payload,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

func runListMode(journal *logging.Journal, session string, kind logging.Kind, last int, jsonOut bool) error {
	entries, err := journal.Recent(session, kind, last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no entries found")
		return nil
	}

	// Recent returns newest first; print chronologically.
	rows := make([]listRow, len(entries))
	for i, e := range entries {
		r := listRow{
			ID:         e.ID,
			SessionID:  e.SessionID,
			Kind:       string(e.Kind),
			Style:      e.Style,
			Generation: e.Generation,
			Decision:   e.Decision,
			Reason:     e.Reason,
			Score:      e.Score,
			CreatedAt:  e.CreatedAt.Format("2006-01-02T15:04:05.000Z"),
		}
		if e.PayloadJSON != "" {
			r.Payload = json.RawMessage(e.PayloadJSON)
		}
		rows[len(entries)-1-i] = r
	}

	if jsonOut {
		return printJSON(rows)
	}
	fmt.Printf("%-6s  %-8s  %-16s  %-10s  %4s  %-9s  %5s  %-24s  %s\n",
		"ID", "Session", "Kind", "Style", "Gen", "Decision", "Score", "Time", "Reason")
	for _, r := range rows {
		fmt.Printf("%-6d  %-8s  %-16s  %-10s  %4d  %-9s  %5.2f  %-24s  %s\n",
			r.ID, shortID(r.SessionID), r.Kind, r.Style, r.Generation, r.Decision, r.Score, r.CreatedAt, r.Reason)
	}
	return nil
}

// #endregion list-mode

// #region count-mode

func runCountMode(journal *logging.Journal, session string, only logging.Kind, jsonOut bool) error {
	out := make(map[string]map[string]int)
	for _, k := range kinds {
		if only != "" && k != only {
			continue
		}
		c, err := journal.CountByDecision(session, k)
		if err != nil {
			return err
		}
		if len(c) > 0 {
			out[string(k)] = c
		}
	}

	if jsonOut {
		return printJSON(out)
	}
	for _, k := range kinds {
		c, ok := out[string(k)]
		if !ok {
			continue
		}
		fmt.Printf("%s:\n", k)
		decisions := make([]string, 0, len(c))
		for d := range c {
			decisions = append(decisions, d)
		}
		sort.Strings(decisions)
		for _, d := range decisions {
			fmt.Printf("  %-12s %d\n", d, c[d])
		}
	}
	return nil
}

// #endregion count-mode

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output

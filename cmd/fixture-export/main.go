package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/logging"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/replay"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to facilitator.db")
	session := flag.String("session", "", "session id to export")
	last := flag.Int("last", 1000, "number of most recent journal rows to export")
	quiet := flag.Duration("quiet", 0, "quiet window length the session ran with (default 2m)")
	override := flag.Duration("override", 0, "override grace length the session ran with (default 2m)")
	outPath := flag.String("out", "", "output fixture path (.json, .yaml or .yml)")
	flag.Parse()

	if *dbPath == "" || *session == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --session id --out path/to/fixture.json [--last N] [--quiet 2m] [--override 2m]")
		os.Exit(2)
	}

	if err := run(*dbPath, *session, *last, *quiet, *override, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, session string, last int, quiet, override time.Duration, outPath string) error {
	journal, err := logging.OpenJournal(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer journal.Close()

	entries, err := journal.Recent(session, "", last)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no journal entries for session %s", session)
	}

	fixture := replay.FixtureFromJournal(entries, quiet, override)
	if err := fixture.Validate(); err != nil {
		return fmt.Errorf("exported fixture: %w", err)
	}
	if err := writeFixture(fixture, outPath); err != nil {
		return err
	}
	fmt.Printf("Exported %d steps (%d expectations) from %d rows to %s\n",
		len(fixture.Steps), len(fixture.ExpectedResults), len(entries), outPath)
	return nil
}

// #endregion export

// #region output

func writeFixture(fixture replay.Fixture, outPath string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(outPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(fixture)
	default:
		data, err = json.MarshalIndent(fixture, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// #endregion output

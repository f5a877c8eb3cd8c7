package logging

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"
)

// #region helpers
func tempJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// #endregion helpers

// #region record-tests
func TestRecord_Success(t *testing.T) {
	j := tempJournal(t)

	err := j.Record(Entry{
		SessionID:   "s1",
		EventID:     "e1",
		Kind:        KindTick,
		Style:       "moderate",
		Generation:  2,
		Decision:    "intervene",
		Reason:      "score 0.75 >= threshold 0.70",
		Score:       0.75,
		PayloadJSON: `{"topic":"budget"}`,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := j.Recent("s1", "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EventID != "e1" || e.Kind != KindTick || e.Decision != "intervene" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Generation != 2 || e.Score != 0.75 {
		t.Errorf("unexpected numbers: gen=%d score=%f", e.Generation, e.Score)
	}
	if e.PayloadJSON != `{"topic":"budget"}` {
		t.Errorf("unexpected payload: %s", e.PayloadJSON)
	}
	if !e.CreatedAt.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected created_at: %v", e.CreatedAt)
	}
}

func TestRecord_AutoFillsIDAndTime(t *testing.T) {
	j := tempJournal(t)
	before := time.Now().UTC()

	if err := j.Record(Entry{SessionID: "s1", Kind: KindStyle, Decision: "accepted"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, _ := j.Recent("s1", KindStyle, 1)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].EventID == "" {
		t.Error("expected generated event id")
	}
	if entries[0].CreatedAt.Before(before.Add(-time.Second)) {
		t.Error("expected auto-filled created_at")
	}
}

func TestRecord_EmptyOptionalFieldsAreNull(t *testing.T) {
	j := tempJournal(t)
	if err := j.Record(Entry{SessionID: "s1", Kind: KindControl, Decision: "rejected"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var styleCol, reason, payload sql.NullString
	j.DB().QueryRow("SELECT style, reason, payload_json FROM decision_log").Scan(&styleCol, &reason, &payload)
	if styleCol.Valid || reason.Valid || payload.Valid {
		t.Error("expected NULL for empty optional fields")
	}
}

func TestRecord_ClosedDB(t *testing.T) {
	j, err := OpenJournal(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("OpenJournal: %v", err)
	}
	j.Close()

	if err := j.Record(Entry{SessionID: "s1", Kind: KindTick, Decision: "suppress"}); err == nil {
		t.Fatal("expected error on closed db")
	}
}

// #endregion record-tests

// #region query-tests
func TestRecent_FiltersAndOrders(t *testing.T) {
	j := tempJournal(t)
	j.Record(Entry{SessionID: "s1", Kind: KindTick, Decision: "suppress"})
	j.Record(Entry{SessionID: "s1", Kind: KindRefresh, Decision: "applied"})
	j.Record(Entry{SessionID: "s2", Kind: KindTick, Decision: "intervene"})
	j.Record(Entry{SessionID: "s1", Kind: KindTick, Decision: "intervene"})

	ticks, err := j.Recent("s1", KindTick, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("expected 2 ticks for s1, got %d", len(ticks))
	}
	if ticks[0].Decision != "intervene" {
		t.Errorf("expected newest first, got %s", ticks[0].Decision)
	}

	all, _ := j.Recent("", "", 10)
	if len(all) != 4 {
		t.Fatalf("expected 4 entries overall, got %d", len(all))
	}

	limited, _ := j.Recent("", "", 2)
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestCountByDecision(t *testing.T) {
	j := tempJournal(t)
	j.Record(Entry{SessionID: "s1", Kind: KindRefresh, Decision: "discarded"})
	j.Record(Entry{SessionID: "s1", Kind: KindRefresh, Decision: "discarded"})
	j.Record(Entry{SessionID: "s1", Kind: KindRefresh, Decision: "applied"})
	j.Record(Entry{SessionID: "s1", Kind: KindTick, Decision: "applied"})

	counts, err := j.CountByDecision("s1", KindRefresh)
	if err != nil {
		t.Fatalf("CountByDecision: %v", err)
	}
	if counts["discarded"] != 2 || counts["applied"] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

// #endregion query-tests

// #region null-if-empty-tests
func TestNullIfEmpty(t *testing.T) {
	if nullIfEmpty("") != nil {
		t.Error("expected nil for empty string")
	}
	if nullIfEmpty("hello") != "hello" {
		t.Error("expected passthrough for non-empty string")
	}
}

func TestDiscardRecorder(t *testing.T) {
	if err := Discard.Record(Entry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// #endregion null-if-empty-tests

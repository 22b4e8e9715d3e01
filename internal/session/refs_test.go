package session

import (
	"testing"
)

func TestScanReferencesFindsDataAndHistory(t *testing.T) {
	sqlText := `SELECT * FROM ice.db.events e JOIN ice.db.users u ON e.user_id = u.id WHERE EXISTS (SELECT 1 FROM ice.db.events.history)`
	refs := scanReferences("ice", sqlText)
	if len(refs) != 3 {
		t.Fatalf("refs = %+v", refs)
	}
	if refs[0].Table.String() != "ice.db.events" || refs[0].History {
		t.Fatalf("refs[0] = %+v", refs[0])
	}
	if refs[1].Table.String() != "ice.db.users" {
		t.Fatalf("refs[1] = %+v", refs[1])
	}
	if !refs[2].History || refs[2].Table.Table != "events" {
		t.Fatalf("refs[2] = %+v", refs[2])
	}
}

func TestScanReferencesDeduplicates(t *testing.T) {
	sqlText := `SELECT a.id FROM ice.db.events a, ice.db.events b`
	refs := scanReferences("ice", sqlText)
	if len(refs) != 1 {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestScanReferencesIgnoresOtherCatalogs(t *testing.T) {
	refs := scanReferences("ice", `SELECT * FROM lake.db.events`)
	if len(refs) != 0 {
		t.Fatalf("refs = %+v", refs)
	}
}

func TestRewriteReferencesQuotesWholeName(t *testing.T) {
	got := rewriteReferences("ice", `SELECT * FROM ice.db.events WHERE x IN (SELECT snapshot_id FROM ice.db.events.history)`)
	want := `SELECT * FROM "ice.db.events" WHERE x IN (SELECT snapshot_id FROM "ice.db.events.history")`
	if got != want {
		t.Fatalf("rewritten = %q", got)
	}
}

func TestRewriteReferencesLeavesPlainSQLUntouched(t *testing.T) {
	sqlText := `SELECT 1 AS one`
	if got := rewriteReferences("ice", sqlText); got != sqlText {
		t.Fatalf("rewritten = %q", got)
	}
}

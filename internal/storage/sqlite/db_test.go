package sqlite

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/lernloop/guidance/internal/domain"
	"github.com/lernloop/guidance/internal/store"
)

var (
	_ store.Store       = (*GuidanceStore)(nil)
	_ store.BanditStore = (*GuidanceStore)(nil)
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	v1, err := db.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v1 < 1 {
		t.Fatalf("version after migrate = %d; want >= 1", v1)
	}

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}
	v2, _ := db.Version()
	if v2 != v1 {
		t.Errorf("version changed on re-migrate: %d -> %d", v1, v2)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_initial.sql", 1, false},
		{"042_add_index.sql", 42, false},
		{"noversion.sql", 0, true},
		{"abc_def.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := parseVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseVersion(%q) error = %v; wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVersion(%q) = %d; want %d", tt.name, got, tt.want)
		}
	}
}

func TestInteractions_RoundTrip(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	first := domain.NewInteraction("l1", "p1", domain.KindError)
	first.ErrorSubtype = "off-by-one"
	first.OccurredAt = base
	second := domain.NewInteraction("l1", "p1", domain.KindHintView)
	second.SourceIDs = []string{"ref-001", "src-1"}
	second.Detail = "rung 2 guidance"
	second.OccurredAt = base.Add(time.Minute)
	other := domain.NewInteraction("l2", "p1", domain.KindAttempt)
	other.OccurredAt = base

	for _, it := range []domain.Interaction{second, first, other} {
		if err := s.SaveInteraction(ctx, it); err != nil {
			t.Fatalf("SaveInteraction failed: %v", err)
		}
	}

	got, err := s.InteractionsByLearner(ctx, "l1")
	if err != nil {
		t.Fatalf("InteractionsByLearner failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("interaction count = %d; want 2", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("interactions not oldest first: %v, %v", got[0].Kind, got[1].Kind)
	}
	if got[0].ErrorSubtype != "off-by-one" {
		t.Errorf("ErrorSubtype = %q; want off-by-one", got[0].ErrorSubtype)
	}
	if !reflect.DeepEqual(got[1].SourceIDs, []string{"ref-001", "src-1"}) {
		t.Errorf("SourceIDs = %v; want round-tripped list", got[1].SourceIDs)
	}
}

func TestInteractions_UnknownLearner(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))

	got, err := s.InteractionsByLearner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("InteractionsByLearner failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("interactions = %v; want none", got)
	}
}

func TestTextbookUnits_Upsert(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))
	ctx := context.Background()

	if tb, err := s.Textbook(ctx, "tb1"); err != nil || tb != nil {
		t.Fatalf("Textbook on empty store = %v, %v; want nil, nil", tb, err)
	}

	unit := domain.TextbookUnit{ID: "u1", Title: "Loops", ConceptIDs: []string{"c1"}}
	if err := s.SaveTextbookUnit(ctx, "tb1", "Intro", unit); err != nil {
		t.Fatalf("SaveTextbookUnit failed: %v", err)
	}
	unit.Summary = "iteration basics"
	if err := s.SaveTextbookUnit(ctx, "tb1", "Intro", unit); err != nil {
		t.Fatalf("SaveTextbookUnit upsert failed: %v", err)
	}

	tb, err := s.Textbook(ctx, "tb1")
	if err != nil {
		t.Fatalf("Textbook failed: %v", err)
	}
	if tb.Title != "Intro" || len(tb.Units) != 1 {
		t.Fatalf("textbook = %+v; want one unit", tb)
	}
	if tb.Units[0].Summary != "iteration basics" {
		t.Errorf("unit summary = %q; want updated value", tb.Units[0].Summary)
	}
	if !reflect.DeepEqual(tb.Units[0].ConceptIDs, []string{"c1"}) {
		t.Errorf("concept ids = %v; want [c1]", tb.Units[0].ConceptIDs)
	}
}

func TestPdfIndex_RoundTrip(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))
	ctx := context.Background()

	if doc, err := s.PdfIndex(ctx); err != nil || doc != nil {
		t.Fatalf("PdfIndex on empty store = %v, %v; want nil, nil", doc, err)
	}

	doc := &domain.PdfIndexDoc{
		Version:  2,
		Passages: []domain.Passage{{ID: "p1", SourceID: "s1", Text: "loop bounds"}},
	}
	if err := s.SavePdfIndex(ctx, doc); err != nil {
		t.Fatalf("SavePdfIndex failed: %v", err)
	}

	got, err := s.PdfIndex(ctx)
	if err != nil {
		t.Fatalf("PdfIndex failed: %v", err)
	}
	if got.Version != 2 || len(got.Passages) != 1 || got.Passages[0].Text != "loop bounds" {
		t.Errorf("pdf index = %+v; want round-tripped document", got)
	}

	// Wholesale replacement, then removal
	if err := s.SavePdfIndex(ctx, &domain.PdfIndexDoc{Version: 3}); err != nil {
		t.Fatalf("SavePdfIndex replace failed: %v", err)
	}
	got, _ = s.PdfIndex(ctx)
	if got.Version != 3 || len(got.Passages) != 0 {
		t.Errorf("replaced index = %+v; want version 3 with no passages", got)
	}

	if err := s.SavePdfIndex(ctx, nil); err != nil {
		t.Fatalf("SavePdfIndex(nil) failed: %v", err)
	}
	if got, _ := s.PdfIndex(ctx); got != nil {
		t.Errorf("index after delete = %+v; want nil", got)
	}
}

func TestProfile_Upsert(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))
	ctx := context.Background()

	if p, err := s.Profile(ctx, "l1"); err != nil || p != nil {
		t.Fatalf("Profile on empty store = %v, %v; want nil, nil", p, err)
	}

	p := &domain.LearnerProfile{LearnerID: "l1", TotalProblems: 3, BaselineErrors: 5}
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	p.TotalProblems = 4
	if err := s.SaveProfile(ctx, p); err != nil {
		t.Fatalf("SaveProfile upsert failed: %v", err)
	}

	got, err := s.Profile(ctx, "l1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if got.TotalProblems != 4 || got.BaselineErrors != 5 {
		t.Errorf("profile = %+v; want updated values", got)
	}

	if err := s.SaveProfile(ctx, nil); err == nil {
		t.Error("SaveProfile(nil) should fail")
	}
}

func TestBanditSnapshot_Upsert(t *testing.T) {
	s := NewGuidanceStore(openTestDB(t))
	ctx := context.Background()

	if data, err := s.BanditSnapshot(ctx, "l1"); err != nil || data != nil {
		t.Fatalf("BanditSnapshot on empty store = %v, %v; want nil, nil", data, err)
	}

	if err := s.SaveBanditSnapshot(ctx, "l1", []byte(`{"arms":[{"id":"a"}]}`)); err != nil {
		t.Fatalf("SaveBanditSnapshot failed: %v", err)
	}
	if err := s.SaveBanditSnapshot(ctx, "l1", []byte(`{"arms":[]}`)); err != nil {
		t.Fatalf("SaveBanditSnapshot upsert failed: %v", err)
	}

	data, err := s.BanditSnapshot(ctx, "l1")
	if err != nil {
		t.Fatalf("BanditSnapshot failed: %v", err)
	}
	if string(data) != `{"arms":[]}` {
		t.Errorf("snapshot = %s; want latest payload", data)
	}

	if err := s.DeleteBanditSnapshot(ctx, "l1"); err != nil {
		t.Fatalf("DeleteBanditSnapshot failed: %v", err)
	}
	if data, _ := s.BanditSnapshot(ctx, "l1"); data != nil {
		t.Error("snapshot survived delete")
	}
}

package store

import (
	"fmt"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/emoseum/journey/internal/models"
)

func testRecord(id, key, owner string, createdAt time.Time) models.JourneyRecord {
	return models.JourneyRecord{
		ID:              id,
		RecordKey:       key,
		OwnerID:         owner,
		DiaryText:       "today was calm",
		EmotionKeywords: []string{"calm", "tired"},
		VADScores:       models.VADScore{0.2, -0.1, 0.5},
		PromptText:      "a quiet seaside morning",
		ImagePath:       "reflection/" + key + ".png",
		CreatedAt:       createdAt,
		CopingStyle:     models.DefaultCopingStyle,
		PromptGenerated: true,
		ReviewGenerated: true,
		PromptTokens:    10,
		PromptMethod:    models.MethodGPT,
		ReviewMethod:    models.MethodGPT,
	}
}

// runStoreSuite exercises the full Store contract against a backend.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := testRecord("11111111-1111-4111-8111-111111111111", "u1-20250601_120000", "u1", base)
	rec.ExternalLinkID = "diary-77"
	if err := s.AddRecord(rec); err != nil {
		t.Fatalf("AddRecord failed: %v", err)
	}

	// Lookup by primary ID.
	got, err := s.GetRecordByID(rec.ID)
	if err != nil {
		t.Fatalf("GetRecordByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetRecordByID returned nil for existing record")
	}
	if got.RecordKey != rec.RecordKey || got.OwnerID != "u1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.VADScores != rec.VADScores {
		t.Errorf("VAD scores not preserved: %v", got.VADScores)
	}
	if len(got.EmotionKeywords) != 2 || got.EmotionKeywords[0] != "calm" {
		t.Errorf("keywords not preserved: %v", got.EmotionKeywords)
	}
	if got.ExternalLinkID != "diary-77" {
		t.Errorf("external link not preserved: %q", got.ExternalLinkID)
	}
	if got.Title != "" || !got.ReviewMessage.IsZero() {
		t.Error("new record should have empty title and review")
	}

	// Lookup by human-readable key.
	got, err = s.GetRecordByKey(rec.RecordKey)
	if err != nil {
		t.Fatalf("GetRecordByKey failed: %v", err)
	}
	if got == nil || got.ID != rec.ID {
		t.Fatalf("GetRecordByKey returned wrong record: %+v", got)
	}

	// Missing lookups are (nil, nil), not errors.
	if missing, err := s.GetRecordByID("22222222-2222-4222-8222-222222222222"); err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for missing ID, got (%v, %v)", missing, err)
	}
	if missing, err := s.GetRecordByKey("nobody-20250601_120000"); err != nil || missing != nil {
		t.Errorf("expected (nil, nil) for missing key, got (%v, %v)", missing, err)
	}

	// Title update is atomic over both fields.
	n, err := s.UpdateTitle(rec.ID, "Quiet Morning", "What made this moment calm?")
	if err != nil {
		t.Fatalf("UpdateTitle failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 modified, got %d", n)
	}
	got, _ = s.GetRecordByID(rec.ID)
	if got.Title != "Quiet Morning" || got.GuidedQuestion != "What made this moment calm?" {
		t.Errorf("title update not applied: %+v", got)
	}
	if !got.ReviewMessage.IsZero() {
		t.Error("review should still be empty after title update")
	}

	// Review update persists the message JSON and extracted token count.
	review := models.ReviewMessage{
		Content:  "a thoughtful reflection",
		Metadata: &models.ReviewMetadata{TokenUsage: models.TokenUsage{TotalTokens: 42}},
	}
	n, err = s.UpdateReview(rec.ID, review, 42)
	if err != nil {
		t.Fatalf("UpdateReview failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 modified, got %d", n)
	}
	got, _ = s.GetRecordByID(rec.ID)
	if got.ReviewMessage.Content != "a thoughtful reflection" {
		t.Errorf("review content not persisted: %+v", got.ReviewMessage)
	}
	if got.ReviewMessage.TotalTokens() != 42 || got.ReviewTokens != 42 {
		t.Errorf("token count not persisted: msg=%d col=%d", got.ReviewMessage.TotalTokens(), got.ReviewTokens)
	}

	// Updates against a missing record modify nothing.
	if n, err := s.UpdateTitle("33333333-3333-4333-8333-333333333333", "x", "y"); err != nil || n != 0 {
		t.Errorf("expected 0 modified for missing record, got (%d, %v)", n, err)
	}
	if n, err := s.UpdateReview("33333333-3333-4333-8333-333333333333", review, 1); err != nil || n != 0 {
		t.Errorf("expected 0 modified for missing record, got (%d, %v)", n, err)
	}

	// Listing: five records, newest first.
	for i := 1; i <= 4; i++ {
		extra := testRecord(
			fmt.Sprintf("4444444%d-4444-4444-8444-444444444444", i),
			fmt.Sprintf("u1-2025060%d_090000", i+1),
			"u1",
			base.Add(time.Duration(i)*24*time.Hour),
		)
		if err := s.AddRecord(extra); err != nil {
			t.Fatalf("AddRecord extra failed: %v", err)
		}
	}

	all, err := s.ListOwnerRecords("u1", ListQuery{})
	if err != nil {
		t.Fatalf("ListOwnerRecords failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Error("records not sorted by creation time descending")
		}
	}

	// limit=2 offset=1 returns the 2nd and 3rd newest.
	page, err := s.ListOwnerRecords("u1", ListQuery{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListOwnerRecords paged failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 records, got %d", len(page))
	}
	if !page[0].CreatedAt.Equal(all[1].CreatedAt) || !page[1].CreatedAt.Equal(all[2].CreatedAt) {
		t.Errorf("pagination returned wrong ranks: %v, %v", page[0].CreatedAt, page[1].CreatedAt)
	}

	// Date filtering is inclusive on both ends.
	from := base.Add(24 * time.Hour)
	to := base.Add(3 * 24 * time.Hour)
	ranged, err := s.ListOwnerRecords("u1", ListQuery{DateFrom: &from, DateTo: &to})
	if err != nil {
		t.Fatalf("ListOwnerRecords ranged failed: %v", err)
	}
	if len(ranged) != 3 {
		t.Errorf("expected 3 records in inclusive range, got %d", len(ranged))
	}

	// Listings for other owners are empty.
	other, err := s.ListOwnerRecords("u2", ListQuery{})
	if err != nil {
		t.Fatalf("ListOwnerRecords other owner failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected no records for other owner, got %d", len(other))
	}

	// Counts.
	total, err := s.CountRecords()
	if err != nil {
		t.Fatalf("CountRecords failed: %v", err)
	}
	if total != 5 {
		t.Errorf("expected 5 total, got %d", total)
	}
	generated, err := s.CountGeneratedRecords()
	if err != nil {
		t.Fatalf("CountGeneratedRecords failed: %v", err)
	}
	if generated != 5 {
		t.Errorf("expected 5 generated, got %d", generated)
	}
}

func TestInMemoryStore(t *testing.T) {
	runStoreSuite(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "journey.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to open SQLite store: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for the connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	s.db.Exec("DELETE FROM journey_records")
	runStoreSuite(t, s)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

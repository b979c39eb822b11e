package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emoseum/journey/internal/images"
	"github.com/emoseum/journey/internal/journey"
	"github.com/emoseum/journey/internal/models"
	"github.com/emoseum/journey/internal/store"
	"github.com/emoseum/journey/internal/webhook"
)

type stubGenerator struct {
	msg models.ReviewMessage
	err error
}

func (g *stubGenerator) GenerateDocentMessage(ctx context.Context, rec *models.JourneyRecord) (models.ReviewMessage, error) {
	return g.msg, g.err
}

type stubStats struct{ stats webhook.Stats }

func (s *stubStats) Stats() webhook.Stats { return s.stats }

func newTestServer(t *testing.T, gen DocentGenerator, sync SyncStats) (*Server, store.Store) {
	t.Helper()
	st := store.NewInMemoryStore()
	imgWriter, err := images.NewWriter(images.WithBaseDir(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create image writer: %v", err)
	}
	mgr := journey.NewManager(st, imgWriter, nil)
	return NewServer(mgr, gen, sync), st
}

func testImageBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func doJSON(t *testing.T, handler http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func createTestRecord(t *testing.T, handler http.Handler, ownerID string) string {
	t.Helper()
	rr := doJSON(t, handler, http.MethodPost, "/gallery", models.CreateRecordRequest{
		OwnerID:         ownerID,
		DiaryText:       "a quiet morning by the sea",
		EmotionKeywords: []string{"calm", "tired"},
		VADScores:       []float64{0.2, -0.1, 0.5},
		ImageBase64:     testImageBase64(t),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("expected result object, got %T", resp.Result)
	}
	key, _ := result["record_id"].(string)
	if key == "" {
		t.Fatal("expected record_id in create response")
	}
	return key
}

func TestCreateGetTitleReviewFlow(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()

	key := createTestRecord(t, handler, "user1")

	// Freshly created record needs a title next.
	rr := doJSON(t, handler, http.MethodGet, "/gallery/"+key, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	if got := result["next_step"]; got != string(models.StepTitle) {
		t.Errorf("expected next_step %q, got %v", models.StepTitle, got)
	}

	rr = doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/title", models.CompleteTitleRequest{
		Title:          "Quiet Morning",
		GuidedQuestion: "What made this moment calm?",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on title, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = decodeResponse(t, rr)
	if got := resp.Result.(map[string]interface{})["next_step"]; got != string(models.StepReview) {
		t.Errorf("expected next_step %q after title, got %v", models.StepReview, got)
	}

	rr = doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{
		Content: "You noticed calm today.",
		Metadata: &models.ReviewMetadata{
			TokenUsage: models.TokenUsage{TotalTokens: 42},
			Method:     models.MethodGPT,
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on review, got %d: %s", rr.Code, rr.Body.String())
	}
	resp = decodeResponse(t, rr)
	result = resp.Result.(map[string]interface{})
	if got := result["next_step"]; got != string(models.StepCompleted) {
		t.Errorf("expected next_step %q after review, got %v", models.StepCompleted, got)
	}
	if got := result["token_usage"]; got != float64(42) {
		t.Errorf("expected token_usage 42, got %v", got)
	}

	rr = doJSON(t, handler, http.MethodGet, "/gallery/"+key, nil)
	resp = decodeResponse(t, rr)
	result = resp.Result.(map[string]interface{})
	if got := result["next_step"]; got != string(models.StepCompleted) {
		t.Errorf("expected completed record, got next_step %v", got)
	}
}

func TestCreateRecordValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()

	tests := []struct {
		name string
		req  models.CreateRecordRequest
	}{
		{"missing owner", models.CreateRecordRequest{DiaryText: "x", VADScores: []float64{0, 0, 0}, ImageBase64: testImageBase64(t)}},
		{"missing diary", models.CreateRecordRequest{OwnerID: "u", VADScores: []float64{0, 0, 0}, ImageBase64: testImageBase64(t)}},
		{"wrong vad length", models.CreateRecordRequest{OwnerID: "u", DiaryText: "x", VADScores: []float64{0.5}, ImageBase64: testImageBase64(t)}},
		{"missing image", models.CreateRecordRequest{OwnerID: "u", DiaryText: "x", VADScores: []float64{0, 0, 0}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, handler, http.MethodPost, "/gallery", tc.req)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateRecordRejectsBadBase64(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := doJSON(t, srv.Handler(), http.MethodPost, "/gallery", models.CreateRecordRequest{
		OwnerID:     "u",
		DiaryText:   "x",
		VADScores:   []float64{0, 0, 0},
		ImageBase64: "not-base64!!!",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid base64, got %d", rr.Code)
	}
}

func TestCreateRecordRejectsNonImageBytes(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := doJSON(t, srv.Handler(), http.MethodPost, "/gallery", models.CreateRecordRequest{
		OwnerID:     "u",
		DiaryText:   "x",
		VADScores:   []float64{0, 0, 0},
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("plain text")),
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for undecodable image, got %d", rr.Code)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/gallery/nope-20250101_000000-ffff", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestCompleteTitleNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := doJSON(t, srv.Handler(), http.MethodPost, "/gallery/missing-key/title",
		models.CompleteTitleRequest{Title: "T"})
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestCompleteTitleAfterReviewConflicts(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")

	doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/title", models.CompleteTitleRequest{Title: "First"})
	doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{Content: "done"})

	rr := doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/title", models.CompleteTitleRequest{Title: "Second"})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 after review exists, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCompleteReviewGenerated(t *testing.T) {
	gen := &stubGenerator{msg: models.ReviewMessage{
		Content: "generated docent message",
		Metadata: &models.ReviewMetadata{
			TokenUsage: models.TokenUsage{PromptTokens: 10, CompletionTokens: 15, TotalTokens: 25},
			Model:      "gpt-4o-mini",
			Method:     models.MethodGPT,
		},
	}}
	srv, _ := newTestServer(t, gen, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")
	doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/title", models.CompleteTitleRequest{Title: "T"})

	rr := doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{Generate: true})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if got := resp.Result.(map[string]interface{})["token_usage"]; got != float64(25) {
		t.Errorf("expected token_usage 25, got %v", got)
	}

	rr = doJSON(t, handler, http.MethodGet, "/gallery/"+key, nil)
	resp = decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	review, _ := result["review_message"].(map[string]interface{})
	if review["content"] != "generated docent message" {
		t.Errorf("expected generated content persisted, got %v", review["content"])
	}
}

func TestCompleteReviewGenerateWithoutBackend(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")

	rr := doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{Generate: true})
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when generation unconfigured, got %d", rr.Code)
	}
}

func TestCompleteReviewGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("upstream unavailable")}
	srv, _ := newTestServer(t, gen, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")

	rr := doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{Generate: true})
	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on generation failure, got %d", rr.Code)
	}
}

func TestCompleteReviewEmptyRejected(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")

	rr := doJSON(t, handler, http.MethodPost, "/gallery/"+key+"/review", models.CompleteReviewRequest{})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty review, got %d", rr.Code)
	}
}

func TestListRecords(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	for i := 0; i < 3; i++ {
		createTestRecord(t, handler, "user1")
	}
	createTestRecord(t, handler, "user2")

	rr := doJSON(t, handler, http.MethodGet, "/gallery?owner_id=user1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	if got := result["count"]; got != float64(3) {
		t.Errorf("expected 3 records for user1, got %v", got)
	}

	rr = doJSON(t, handler, http.MethodGet, "/gallery?owner_id=user1&limit=2", nil)
	resp = decodeResponse(t, rr)
	if got := resp.Result.(map[string]interface{})["count"]; got != float64(2) {
		t.Errorf("expected limit to cap results at 2, got %v", got)
	}
}

func TestListRecordsRequiresOwner(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/gallery", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without owner_id, got %d", rr.Code)
	}
}

func TestListRecordsRejectsBadParams(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	for _, target := range []string{
		"/gallery?owner_id=u&limit=abc",
		"/gallery?owner_id=u&offset=abc",
		"/gallery?owner_id=u&date_from=notadate",
	} {
		rr := doJSON(t, handler, http.MethodGet, target, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestListRecordsDateFilter(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)
	handler := srv.Handler()
	createTestRecord(t, handler, "user1")

	rr := doJSON(t, handler, http.MethodGet, "/gallery?owner_id=user1&date_from=2000-01-01&date_to=2099-12-31", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if got := resp.Result.(map[string]interface{})["count"]; got != float64(1) {
		t.Errorf("expected 1 record inside range, got %v", got)
	}

	rr = doJSON(t, handler, http.MethodGet, "/gallery?owner_id=user1&date_to=2000-01-01", nil)
	resp = decodeResponse(t, rr)
	if got := resp.Result.(map[string]interface{})["count"]; got != float64(0) {
		t.Errorf("expected 0 records before range, got %v", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubGenerator{}, nil)
	rr := doJSON(t, srv.Handler(), http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	services := result["services"].(map[string]interface{})
	if services["database"] != true {
		t.Error("expected database service healthy")
	}
	if services["review_generation"] != true {
		t.Error("expected review_generation reported available")
	}
	if services["external_sync"] != false {
		t.Error("expected external_sync reported unavailable")
	}
}

func TestStatusEndpoint(t *testing.T) {
	stats := &stubStats{stats: webhook.Stats{Enqueued: 5, Sent: 4, Failed: 1}}
	srv, _ := newTestServer(t, nil, stats)
	handler := srv.Handler()
	createTestRecord(t, handler, "user1")

	rr := doJSON(t, handler, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	result := resp.Result.(map[string]interface{})
	system := result["system"].(map[string]interface{})
	if got := system["total_records"]; got != float64(1) {
		t.Errorf("expected total_records 1, got %v", got)
	}
	sync := result["sync"].(map[string]interface{})
	if got := sync["enqueued"]; got != float64(5) {
		t.Errorf("expected enqueued 5, got %v", got)
	}
}

func TestGetRecordByUUIDAndKey(t *testing.T) {
	srv, st := newTestServer(t, nil, nil)
	handler := srv.Handler()
	key := createTestRecord(t, handler, "user1")

	rec, err := st.GetRecordByKey(key)
	if err != nil || rec == nil {
		t.Fatalf("failed to load created record: %v", err)
	}

	for _, id := range []string{rec.ID, rec.RecordKey} {
		rr := doJSON(t, handler, http.MethodGet, "/gallery/"+id, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("lookup by %q: expected 200, got %d", id, rr.Code)
		}
	}
}

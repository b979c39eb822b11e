package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/emoseum/journey/internal/journey"
	"github.com/emoseum/journey/internal/models"
	"github.com/emoseum/journey/internal/store"
)

// createRecordHandler handles POST /gallery.
func (s *Server) createRecordHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	imageData, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("image_base64 is not valid base64"))
		return
	}
	vad, err := models.VADFromSlice(req.VADScores)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	key, err := s.mgr.CreateRecord(r.Context(), journeyCreateParams(req, imageData, vad))
	if err != nil {
		if isValidationError(err) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.createRecordHandler: create failed", "error", err, "ownerID", req.OwnerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to create record"))
		return
	}

	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]interface{}{
		"record_id": key,
		"next_step": models.StepTitle,
	}))
}

// completeTitleHandler handles POST /gallery/{id}/title.
func (s *Server) completeTitleHandler(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")

	var req models.CompleteTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	ok, err := s.mgr.CompleteTitle(r.Context(), recordID, req.Title, req.GuidedQuestion, req.ExternalLinkID)
	if err != nil {
		if errors.Is(err, models.ErrStageCompleted) {
			writeJSONResponse(w, http.StatusConflict, models.Error(err.Error()))
			return
		}
		if isValidationError(err) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.completeTitleHandler: update failed", "error", err, "recordID", recordID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to complete title"))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("record not found"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"success":   true,
		"next_step": models.StepReview,
	}))
}

// completeReviewHandler handles POST /gallery/{id}/review.
func (s *Server) completeReviewHandler(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")

	var req models.CompleteReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	review := models.ReviewMessage{Content: req.Content, Metadata: req.Metadata}
	if req.Generate && req.Content == "" {
		if s.gen == nil {
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("review generation not configured"))
			return
		}
		rec, err := s.mgr.GetRecord(r.Context(), recordID)
		if err != nil {
			slog.Error("Server.completeReviewHandler: lookup failed", "error", err, "recordID", recordID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load record"))
			return
		}
		if rec == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("record not found"))
			return
		}
		review, err = s.gen.GenerateDocentMessage(r.Context(), rec)
		if err != nil {
			slog.Error("Server.completeReviewHandler: generation failed", "error", err, "recordID", recordID)
			writeJSONResponse(w, http.StatusBadGateway, models.Error("review generation failed"))
			return
		}
	}

	ok, err := s.mgr.CompleteReview(r.Context(), recordID, review)
	if err != nil {
		if isValidationError(err) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.completeReviewHandler: update failed", "error", err, "recordID", recordID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to complete review"))
		return
	}
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("record not found"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"success":     true,
		"next_step":   models.StepCompleted,
		"token_usage": review.TotalTokens(),
	}))
}

// getRecordHandler handles GET /gallery/{id}.
func (s *Server) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")

	rec, err := s.mgr.GetRecord(r.Context(), recordID)
	if err != nil {
		if isValidationError(err) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Error("Server.getRecordHandler: lookup failed", "error", err, "recordID", recordID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to load record"))
		return
	}
	if rec == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("record not found"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(models.NewRecordResponse(rec)))
}

// listRecordsHandler handles GET /gallery.
func (s *Server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("owner_id is required"))
		return
	}

	q := store.ListQuery{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("limit must be an integer"))
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("offset must be an integer"))
			return
		}
		q.Offset = n
	}
	if v := r.URL.Query().Get("date_from"); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("date_from must be RFC3339 or YYYY-MM-DD"))
			return
		}
		q.DateFrom = &ts
	}
	if v := r.URL.Query().Get("date_to"); v != "" {
		ts, err := parseDateParam(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("date_to must be RFC3339 or YYYY-MM-DD"))
			return
		}
		q.DateTo = &ts
	}

	records, err := s.mgr.ListOwnerRecords(r.Context(), ownerID, q)
	if err != nil {
		slog.Error("Server.listRecordsHandler: list failed", "error", err, "ownerID", ownerID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list records"))
		return
	}

	responses := make([]models.RecordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, models.NewRecordResponse(&records[i]))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"records": responses,
		"count":   len(responses),
	}))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.mgr.SystemStatus(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("store unavailable"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services": map[string]interface{}{
			"database":          status.DatabaseReady,
			"review_generation": s.gen != nil,
			"external_sync":     s.sync != nil,
		},
	}))
}

// statusHandler handles GET /status.
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := s.mgr.SystemStatus(r.Context())
	if err != nil {
		slog.Error("Server.statusHandler: status failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to read system status"))
		return
	}

	result := map[string]interface{}{"system": status}
	if s.sync != nil {
		result["sync"] = s.sync.Stats()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// journeyCreateParams maps an API request onto manager create parameters.
func journeyCreateParams(req models.CreateRecordRequest, imageData []byte, vad models.VADScore) journey.CreateParams {
	return journey.CreateParams{
		OwnerID:         req.OwnerID,
		DiaryText:       req.DiaryText,
		EmotionKeywords: req.EmotionKeywords,
		VADScores:       vad,
		PromptText:      req.PromptText,
		ImageData:       imageData,
		CopingStyle:     req.CopingStyle,
		PromptTokens:    req.PromptTokens,
		PromptSeconds:   req.PromptSeconds,
		ExternalLinkID:  req.ExternalLinkID,
	}
}

// parseDateParam accepts RFC3339 timestamps or bare dates.
func parseDateParam(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", value)
}

// isValidationError reports whether the error is caller-caused input
// rejection rather than a storage failure.
func isValidationError(err error) bool {
	for _, candidate := range []error{
		models.ErrEmptyOwnerID, models.ErrEmptyDiaryText, models.ErrDiaryTextTooLong,
		models.ErrInvalidVADScore, models.ErrTooManyKeywords, models.ErrEmptyImageData,
		models.ErrUndecodableImage, models.ErrEmptyTitle, models.ErrTitleTooLong,
		models.ErrEmptyRecordID, models.ErrEmptyReview,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}

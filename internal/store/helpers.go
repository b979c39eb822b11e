package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/emoseum/journey/internal/models"
)

// recordColumns is the fixed column order used by every query that scans a
// full record. Keep in sync with the scan helpers below.
const recordColumns = `id, record_key, owner_id, diary_text, emotion_keywords, vad_scores,
	prompt_text, image_path, title, guided_question, review_message, created_at,
	coping_style, external_link_id, prompt_generated, prompt_tokens,
	review_generated, review_tokens, prompt_seconds, prompt_method, review_method`

// scanner abstracts *sql.Row and *sql.Rows for the shared scan path.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a full journey record from a row, decoding the JSON
// columns (keywords, VAD scores, review message).
func scanRecord(row scanner) (models.JourneyRecord, error) {
	var rec models.JourneyRecord
	var keywordsJSON, vadJSON, reviewJSON string
	var externalLinkID sql.NullString

	err := row.Scan(
		&rec.ID, &rec.RecordKey, &rec.OwnerID, &rec.DiaryText, &keywordsJSON, &vadJSON,
		&rec.PromptText, &rec.ImagePath, &rec.Title, &rec.GuidedQuestion, &reviewJSON, &rec.CreatedAt,
		&rec.CopingStyle, &externalLinkID, &rec.PromptGenerated, &rec.PromptTokens,
		&rec.ReviewGenerated, &rec.ReviewTokens, &rec.PromptSeconds, &rec.PromptMethod, &rec.ReviewMethod,
	)
	if err != nil {
		return rec, err
	}

	rec.ExternalLinkID = externalLinkID.String
	if keywordsJSON != "" {
		if err := json.Unmarshal([]byte(keywordsJSON), &rec.EmotionKeywords); err != nil {
			return rec, fmt.Errorf("decode emotion keywords for %s: %w", rec.ID, err)
		}
	}
	if vadJSON != "" {
		if err := json.Unmarshal([]byte(vadJSON), &rec.VADScores); err != nil {
			return rec, fmt.Errorf("decode VAD scores for %s: %w", rec.ID, err)
		}
	}
	if reviewJSON != "" {
		if err := json.Unmarshal([]byte(reviewJSON), &rec.ReviewMessage); err != nil {
			return rec, fmt.Errorf("decode review message for %s: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// encodeRecord marshals a record's JSON columns for insertion.
func encodeRecord(rec models.JourneyRecord) (keywordsJSON, vadJSON, reviewJSON string, err error) {
	keywords := rec.EmotionKeywords
	if keywords == nil {
		keywords = []string{}
	}
	kw, err := json.Marshal(keywords)
	if err != nil {
		return "", "", "", fmt.Errorf("encode emotion keywords: %w", err)
	}
	vad, err := json.Marshal(rec.VADScores)
	if err != nil {
		return "", "", "", fmt.Errorf("encode VAD scores: %w", err)
	}
	review, err := json.Marshal(rec.ReviewMessage)
	if err != nil {
		return "", "", "", fmt.Errorf("encode review message: %w", err)
	}
	return string(kw), string(vad), string(review), nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

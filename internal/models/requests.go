// Package models defines request and response payloads for the journey API.
package models

// CreateRecordRequest is the payload for creating a journey record.
// The image is produced by an external collaborator before record creation
// and supplied here as base64-encoded bytes.
type CreateRecordRequest struct {
	OwnerID         string    `json:"owner_id" validate:"required"`
	DiaryText       string    `json:"diary_text" validate:"required"`
	EmotionKeywords []string  `json:"emotion_keywords,omitempty"`
	VADScores       []float64 `json:"vad_scores" validate:"required"`
	PromptText      string    `json:"prompt_text,omitempty"`
	ImageBase64     string    `json:"image_base64" validate:"required"`
	CopingStyle     string    `json:"coping_style,omitempty"`
	PromptTokens    int       `json:"prompt_tokens,omitempty"`
	PromptSeconds   float64   `json:"prompt_seconds,omitempty"`
	ExternalLinkID  string    `json:"external_link_id,omitempty"`
}

// Validate performs field-level validation on a CreateRecordRequest.
// Image decodability is checked later, when the bytes are decoded.
func (r *CreateRecordRequest) Validate() error {
	if r.OwnerID == "" {
		return ErrEmptyOwnerID
	}
	if r.DiaryText == "" {
		return ErrEmptyDiaryText
	}
	if len(r.DiaryText) > MaxDiaryTextLength {
		return ErrDiaryTextTooLong
	}
	if len(r.VADScores) != VADDimensions {
		return ErrInvalidVADScore
	}
	if len(r.EmotionKeywords) > MaxEmotionKeywords {
		return ErrTooManyKeywords
	}
	if r.ImageBase64 == "" {
		return ErrEmptyImageData
	}
	return nil
}

// CompleteTitleRequest is the payload for completing the title stage.
type CompleteTitleRequest struct {
	Title          string `json:"title" validate:"required"`
	GuidedQuestion string `json:"guided_question,omitempty"`
	ExternalLinkID string `json:"external_link_id,omitempty"`
}

// Validate performs field-level validation on a CompleteTitleRequest.
func (r *CompleteTitleRequest) Validate() error {
	if r.Title == "" {
		return ErrEmptyTitle
	}
	if len(r.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// CompleteReviewRequest is the payload for completing the review stage.
// When Generate is true and Content is empty, the review message is produced
// by the generation backend instead of taken from the request.
type CompleteReviewRequest struct {
	Content  string          `json:"content,omitempty"`
	Metadata *ReviewMetadata `json:"metadata,omitempty"`
	Generate bool            `json:"generate,omitempty"`
}

// Validate performs field-level validation on a CompleteReviewRequest.
func (r *CompleteReviewRequest) Validate() error {
	if r.Content == "" && !r.Generate {
		return ErrEmptyReview
	}
	return nil
}

// RecordResponse is the API projection of a journey record, including the
// derived completion state.
type RecordResponse struct {
	JourneyRecord
	Status   CompletionStatus `json:"completion_status"`
	NextStep Step             `json:"next_step"`
	Usage    UsageSummary     `json:"usage_summary"`
}

// NewRecordResponse builds the API projection for a record.
func NewRecordResponse(rec *JourneyRecord) RecordResponse {
	return RecordResponse{
		JourneyRecord: *rec,
		Status:        rec.CompletionStatus(),
		NextStep:      rec.NextStep(),
		Usage:         rec.UsageSummary(),
	}
}

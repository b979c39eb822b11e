// Package models defines the core data structures for the journey service.
//
// It includes the journey record entity, its completion-state projection,
// and the request/response types shared across modules.
package models

import (
	"errors"
	"time"
)

// Step identifies one phase of a journey record's completion.
type Step string

const (
	// StepReflection is the initial phase; complete once an image reference exists.
	StepReflection Step = "reflection"
	// StepTitle is the naming phase; complete once a title has been set.
	StepTitle Step = "title"
	// StepReview is the final phase; complete once a review message has been set.
	StepReview Step = "review"
	// StepCompleted indicates all phases are done.
	StepCompleted Step = "completed"
)

// Generation method tags for the prompt and review steps.
const (
	// MethodGPT marks content produced by a GPT backend.
	MethodGPT = "gpt"
	// MethodManual marks content supplied directly by a caller.
	MethodManual = "manual"
)

// DefaultCopingStyle is assigned when a record is created without an explicit style.
const DefaultCopingStyle = "balanced"

// Validation constants for input validation
const (
	// MaxDiaryTextLength defines the maximum allowed length for diary text
	MaxDiaryTextLength = 10000
	// MaxTitleLength defines the maximum allowed length for a record title
	MaxTitleLength = 200
	// MaxEmotionKeywords defines the maximum number of emotion keywords per record
	MaxEmotionKeywords = 20
	// VADDimensions is the fixed number of dimensions in a VAD score
	VADDimensions = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyOwnerID     = errors.New("owner ID cannot be empty")
	ErrEmptyDiaryText   = errors.New("diary text cannot be empty")
	ErrDiaryTextTooLong = errors.New("diary text exceeds maximum length")
	ErrInvalidVADScore  = errors.New("VAD score must have exactly 3 values")
	ErrTooManyKeywords  = errors.New("too many emotion keywords")
	ErrEmptyImageData   = errors.New("image data cannot be empty")
	ErrUndecodableImage = errors.New("image data is not a decodable image")
	ErrEmptyTitle       = errors.New("title cannot be empty")
	ErrTitleTooLong     = errors.New("title exceeds maximum length")
	ErrEmptyRecordID    = errors.New("record ID cannot be empty")
	ErrEmptyReview      = errors.New("review message content cannot be empty")
	ErrStageCompleted   = errors.New("record has already advanced past this stage")
)

// VADScore is a valence/arousal/dominance emotion representation.
// The array type guarantees the score is always a full 3-tuple.
type VADScore [VADDimensions]float64

// Valence returns the first VAD dimension.
func (v VADScore) Valence() float64 { return v[0] }

// Arousal returns the second VAD dimension.
func (v VADScore) Arousal() float64 { return v[1] }

// Dominance returns the third VAD dimension.
func (v VADScore) Dominance() float64 { return v[2] }

// IsZero reports whether all dimensions are zero.
func (v VADScore) IsZero() bool {
	return v[0] == 0 && v[1] == 0 && v[2] == 0
}

// VADFromSlice converts a caller-supplied slice into a VADScore.
// Returns ErrInvalidVADScore unless the slice has exactly 3 elements.
func VADFromSlice(values []float64) (VADScore, error) {
	var v VADScore
	if len(values) != VADDimensions {
		return v, ErrInvalidVADScore
	}
	copy(v[:], values)
	return v, nil
}

// TokenUsage captures token counts reported by a generation backend.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens"`
}

// ReviewMetadata carries generation metadata attached to a review message.
type ReviewMetadata struct {
	TokenUsage TokenUsage `json:"token_usage"`
	Model      string     `json:"model,omitempty"`
	Method     string     `json:"method,omitempty"`
}

// ReviewMessage is the structured reviewer ("docent") content for a record.
type ReviewMessage struct {
	Content  string          `json:"content,omitempty"`
	Metadata *ReviewMetadata `json:"metadata,omitempty"`
}

// IsZero reports whether the review message is absent.
func (r ReviewMessage) IsZero() bool {
	return r.Content == "" && r.Metadata == nil
}

// TotalTokens extracts the total token count from the review metadata.
// Returns 0 when metadata is absent.
func (r ReviewMessage) TotalTokens() int {
	if r.Metadata == nil {
		return 0
	}
	return r.Metadata.TokenUsage.TotalTokens
}

// JourneyRecord is one reflection cycle's persisted data for one owner.
type JourneyRecord struct {
	// ID is the opaque primary key, immutable after creation.
	ID string `json:"id"`
	// RecordKey is the human-readable secondary identifier ("owner-timestamp").
	// Either form may be presented to lookups.
	RecordKey       string        `json:"record_key"`
	OwnerID         string        `json:"owner_id"`
	DiaryText       string        `json:"diary_text"`
	EmotionKeywords []string      `json:"emotion_keywords"`
	VADScores       VADScore      `json:"vad_scores"`
	PromptText      string        `json:"prompt_text"`
	ImagePath       string        `json:"image_path"`
	Title           string        `json:"title"`
	GuidedQuestion  string        `json:"guided_question"`
	ReviewMessage   ReviewMessage `json:"review_message"`
	CreatedAt       time.Time     `json:"created_at"`
	CopingStyle     string        `json:"coping_style"`
	// ExternalLinkID correlates this record with the external system of
	// record. Once set at creation it is never reassigned.
	ExternalLinkID string `json:"external_link_id,omitempty"`

	// Generation metadata for the prompt and review steps.
	PromptGenerated bool    `json:"prompt_generated"`
	PromptTokens    int     `json:"prompt_tokens"`
	ReviewGenerated bool    `json:"review_generated"`
	ReviewTokens    int     `json:"review_tokens"`
	PromptSeconds   float64 `json:"prompt_seconds"`
	PromptMethod    string  `json:"prompt_method"`
	ReviewMethod    string  `json:"review_method"`
}

// CompletionStatus is a side-effect-free projection over a record reporting
// which stages are present. It is derived, never stored.
type CompletionStatus struct {
	Reflection bool `json:"reflection"`
	Title      bool `json:"title"`
	Review     bool `json:"review"`
	Completed  bool `json:"completed"`
}

// CompletionStatus computes the stage-presence projection for the record.
func (r *JourneyRecord) CompletionStatus() CompletionStatus {
	review := !r.ReviewMessage.IsZero()
	return CompletionStatus{
		Reflection: r.ImagePath != "",
		Title:      r.Title != "",
		Review:     review,
		Completed:  review,
	}
}

// NextStep returns the next stage the record needs, scanning the three
// optional fields in fixed order. Pure function of the record's fields.
func (r *JourneyRecord) NextStep() Step {
	status := r.CompletionStatus()
	switch {
	case !status.Reflection:
		return StepReflection
	case !status.Title:
		return StepTitle
	case !status.Review:
		return StepReview
	default:
		return StepCompleted
	}
}

// UsageSummary aggregates generation token usage for a record.
type UsageSummary struct {
	TotalTokens    int     `json:"total_tokens"`
	PromptTokens   int     `json:"prompt_tokens"`
	ReviewTokens   int     `json:"review_tokens"`
	PromptMethod   string  `json:"prompt_method"`
	ReviewMethod   string  `json:"review_method"`
	GenerationTime float64 `json:"generation_time"`
	FullyGenerated bool    `json:"fully_generated"`
}

// UsageSummary returns the aggregated generation usage for the record.
func (r *JourneyRecord) UsageSummary() UsageSummary {
	return UsageSummary{
		TotalTokens:    r.PromptTokens + r.ReviewTokens,
		PromptTokens:   r.PromptTokens,
		ReviewTokens:   r.ReviewTokens,
		PromptMethod:   r.PromptMethod,
		ReviewMethod:   r.ReviewMethod,
		GenerationTime: r.PromptSeconds,
		FullyGenerated: r.PromptGenerated && r.ReviewGenerated,
	}
}

// SystemStatus reports store-level health and generation adoption.
type SystemStatus struct {
	DatabaseReady       bool    `json:"database_ready"`
	TotalRecords        int64   `json:"total_records"`
	GenerationAdoption  float64 `json:"generation_adoption_rate"`
	SupportsGenMetadata bool    `json:"supports_generation_metadata"`
}

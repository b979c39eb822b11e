// Package journey orchestrates the lifecycle of journey records.
//
// The manager is the sole writer of records: it validates input, persists
// through the store, and schedules detached webhook updates after each
// stage transition. Webhook outcomes never affect the result returned to
// the caller.
package journey

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/emoseum/journey/internal/images"
	"github.com/emoseum/journey/internal/models"
	"github.com/emoseum/journey/internal/store"
	"github.com/emoseum/journey/internal/util"
	"github.com/emoseum/journey/internal/webhook"
)

// recordKeyTimestampLayout formats the creation time embedded in the
// human-readable record key.
const recordKeyTimestampLayout = "20060102_150405"

// Syncer schedules detached updates toward the external system of record.
// Enqueue must never block; its return value reports only whether the
// update was accepted for delivery.
type Syncer interface {
	Enqueue(linkID string, fields webhook.Fields) bool
}

// Manager orchestrates record creation and stage-completion transitions.
type Manager struct {
	store  store.Store
	images *images.Writer
	syncer Syncer
}

// NewManager creates a manager over the given store and image writer.
// The syncer may be nil, in which case no external updates are scheduled.
func NewManager(st store.Store, imgWriter *images.Writer, syncer Syncer) *Manager {
	return &Manager{store: st, images: imgWriter, syncer: syncer}
}

// CreateParams carries the inputs for creating a journey record.
// The image bytes must decode to a valid image; the image itself is
// produced by an external collaborator before record creation.
type CreateParams struct {
	OwnerID         string
	DiaryText       string
	EmotionKeywords []string
	VADScores       models.VADScore
	PromptText      string
	ImageData       []byte
	CopingStyle     string
	PromptTokens    int
	PromptSeconds   float64
	ExternalLinkID  string
}

// CreateRecord validates the inputs, saves the reflection image, persists
// the record with title and review empty, and — when an external link is
// supplied — schedules a detached update carrying the emotion keywords and
// VAD scores. Returns the new record's human-readable key.
//
// If the insert fails after the image file was written, the file is not
// rolled back; the partial write is logged and accepted.
func (m *Manager) CreateRecord(ctx context.Context, p CreateParams) (string, error) {
	if p.OwnerID == "" {
		return "", models.ErrEmptyOwnerID
	}
	if p.DiaryText == "" {
		return "", models.ErrEmptyDiaryText
	}

	img, err := images.Decode(p.ImageData)
	if err != nil {
		slog.Debug("Manager.CreateRecord: image validation failed", "error", err, "ownerID", p.OwnerID)
		return "", err
	}

	now := time.Now()
	imagePath, err := m.images.SaveReflection(p.OwnerID, img, now)
	if err != nil {
		return "", fmt.Errorf("failed to save reflection image: %w", err)
	}

	copingStyle := p.CopingStyle
	if copingStyle == "" {
		copingStyle = models.DefaultCopingStyle
	}

	rec := models.JourneyRecord{
		ID:              uuid.NewString(),
		// The timestamp has second resolution; the random suffix keeps keys
		// unique when an owner creates several records within one second.
		RecordKey:       fmt.Sprintf("%s-%s-%s", p.OwnerID, now.Format(recordKeyTimestampLayout), util.GenerateRandomHex(4)),
		OwnerID:         p.OwnerID,
		DiaryText:       p.DiaryText,
		EmotionKeywords: p.EmotionKeywords,
		VADScores:       p.VADScores,
		PromptText:      p.PromptText,
		ImagePath:       imagePath,
		CreatedAt:       now,
		CopingStyle:     copingStyle,
		ExternalLinkID:  p.ExternalLinkID,
		PromptGenerated: true,
		PromptTokens:    p.PromptTokens,
		ReviewGenerated: true,
		PromptSeconds:   p.PromptSeconds,
		PromptMethod:    models.MethodGPT,
		ReviewMethod:    models.MethodGPT,
	}

	if err := m.store.AddRecord(rec); err != nil {
		slog.Error("Manager.CreateRecord: insert failed, image file not rolled back",
			"error", err, "ownerID", p.OwnerID, "imagePath", imagePath)
		return "", fmt.Errorf("failed to persist record: %w", err)
	}
	slog.Info("Manager.CreateRecord: record created", "key", rec.RecordKey, "ownerID", p.OwnerID)

	if p.ExternalLinkID != "" {
		vad := rec.VADScores
		m.scheduleSync(p.ExternalLinkID, webhook.Fields{
			Keywords:  rec.EmotionKeywords,
			VADScores: &vad,
		})
	}

	return rec.RecordKey, nil
}

// CompleteTitle sets the title and guided question together in one update
// and schedules a detached title update toward the external system.
// Returns false when the record does not exist or the update matched
// nothing. Re-invocation before the review stage overwrites the title;
// once a review message exists the title is frozen and ErrStageCompleted
// is returned.
//
// linkID is used for the detached update only when the record itself has
// no external link; a stored link is never reassigned.
func (m *Manager) CompleteTitle(ctx context.Context, recordID, title, guidedQuestion, linkID string) (bool, error) {
	if recordID == "" {
		return false, models.ErrEmptyRecordID
	}
	if title == "" {
		return false, models.ErrEmptyTitle
	}

	rec, err := m.resolve(recordID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		slog.Debug("Manager.CompleteTitle: record not found", "recordID", recordID)
		return false, nil
	}
	if !rec.ReviewMessage.IsZero() {
		slog.Warn("Manager.CompleteTitle: record already reviewed", "recordID", recordID)
		return false, models.ErrStageCompleted
	}

	n, err := m.store.UpdateTitle(rec.ID, title, guidedQuestion)
	if err != nil {
		return false, fmt.Errorf("failed to update title: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	slog.Info("Manager.CompleteTitle: title set", "key", rec.RecordKey, "title", title)

	if link := firstNonEmpty(rec.ExternalLinkID, linkID); link != "" {
		m.scheduleSync(link, webhook.Fields{
			Title:          title,
			GuidedQuestion: guidedQuestion,
		})
	}

	return true, nil
}

// CompleteReview sets the review message and its extracted token count in
// one update, then schedules a detached update that re-sends the record's
// full field set (keywords, title, guided question, VAD scores) to the
// external system. Returns false when the record does not exist or the
// update matched nothing.
func (m *Manager) CompleteReview(ctx context.Context, recordID string, review models.ReviewMessage) (bool, error) {
	if recordID == "" {
		return false, models.ErrEmptyRecordID
	}
	if review.IsZero() {
		return false, models.ErrEmptyReview
	}

	rec, err := m.resolve(recordID)
	if err != nil {
		return false, err
	}
	if rec == nil {
		slog.Debug("Manager.CompleteReview: record not found", "recordID", recordID)
		return false, nil
	}

	tokens := review.TotalTokens()
	n, err := m.store.UpdateReview(rec.ID, review, tokens)
	if err != nil {
		return false, fmt.Errorf("failed to update review: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	slog.Info("Manager.CompleteReview: review set", "key", rec.RecordKey, "tokens", tokens)

	if rec.ExternalLinkID != "" {
		vad := rec.VADScores
		m.scheduleSync(rec.ExternalLinkID, webhook.Fields{
			Keywords:       rec.EmotionKeywords,
			Title:          rec.Title,
			GuidedQuestion: rec.GuidedQuestion,
			VADScores:      &vad,
		})
	}

	return true, nil
}

// GetRecord resolves a record by either identifier form: primary key when
// the identifier parses as one, falling back to the human-readable record
// key. Returns (nil, nil) when nothing matches.
func (m *Manager) GetRecord(ctx context.Context, recordID string) (*models.JourneyRecord, error) {
	if recordID == "" {
		return nil, models.ErrEmptyRecordID
	}
	return m.resolve(recordID)
}

// ListOwnerRecords returns an owner's records sorted by creation time
// descending with pagination and inclusive date filtering.
func (m *Manager) ListOwnerRecords(ctx context.Context, ownerID string, q store.ListQuery) ([]models.JourneyRecord, error) {
	if ownerID == "" {
		return nil, models.ErrEmptyOwnerID
	}
	records, err := m.store.ListOwnerRecords(ownerID, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

// SystemStatus reports store-level totals and the share of records whose
// prompt and review were both produced by a generation backend.
func (m *Manager) SystemStatus(ctx context.Context) (models.SystemStatus, error) {
	total, err := m.store.CountRecords()
	if err != nil {
		return models.SystemStatus{}, fmt.Errorf("failed to count records: %w", err)
	}
	generated, err := m.store.CountGeneratedRecords()
	if err != nil {
		return models.SystemStatus{}, fmt.Errorf("failed to count generated records: %w", err)
	}

	adoption := 1.0
	if total > 0 {
		adoption = float64(generated) / float64(total)
	}
	return models.SystemStatus{
		DatabaseReady:       true,
		TotalRecords:        total,
		GenerationAdoption:  adoption,
		SupportsGenMetadata: true,
	}, nil
}

// resolve implements the dual-key lookup: primary key first when the
// identifier parses as one, then the human-readable key. Both paths are
// total; a miss is (nil, nil).
func (m *Manager) resolve(recordID string) (*models.JourneyRecord, error) {
	if _, err := uuid.Parse(recordID); err == nil {
		rec, err := m.store.GetRecordByID(recordID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up record: %w", err)
		}
		if rec != nil {
			return rec, nil
		}
	}
	rec, err := m.store.GetRecordByKey(recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up record: %w", err)
	}
	return rec, nil
}

// scheduleSync hands an update to the syncer. Failures are invisible to
// callers; the dispatcher logs and counts them.
func (m *Manager) scheduleSync(linkID string, fields webhook.Fields) {
	if m.syncer == nil {
		return
	}
	m.syncer.Enqueue(linkID, fields)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

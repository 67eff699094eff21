package models

import (
	"fmt"
	"time"
)

// JobStatus определяет возможные статусы задачи генерации истории.
// Совпадает со значениями поля status в ответах сервера.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"    // Задача принята, но еще не начата
	StatusProcessing JobStatus = "processing" // Идет генерация сцен
	StatusCompleted  JobStatus = "completed"  // История готова к воспроизведению
	StatusFailed     JobStatus = "failed"     // Генерация завершилась ошибкой (или истек таймаут)
)

// IsTerminal reports whether no further status transition can occur.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Scene represents one narrated unit of a completed story.
// Index is 1-based and matches narrative order; the sequence is fixed at
// completion time and never reordered.
type Scene struct {
	Index             int     `json:"index"`
	Text              string  `json:"text"`
	VisualDescription string  `json:"visual_description,omitempty"`
	AudioURL          string  `json:"audio_url,omitempty"`
	ImageURL          string  `json:"image_url,omitempty"`
	StartOffset       float64 `json:"start_offset"` // секунды от начала истории
	Duration          float64 `json:"duration"`     // секунды
}

// StoryRecord is the server-owned form of a generation job, mirrored locally.
// Scenes is only populated once Status == StatusCompleted.
type StoryRecord struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Status        JobStatus `json:"status"`
	Scenes        []Scene   `json:"scenes,omitempty"`
	TotalDuration float64   `json:"total_duration"`
	TotalScenes   int       `json:"total_scenes"`
	Thumbnail     string    `json:"thumbnail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Validate checks the internal consistency of a record received from the
// server. A record claiming completion without a single playable scene is
// rejected: there is nothing the player could do with it.
func (r *StoryRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: story record without id", ErrInvalidInput)
	}
	if r.Status == StatusCompleted && len(r.Scenes) == 0 {
		return fmt.Errorf("story %s: %w", r.ID, ErrEmptyStory)
	}
	return nil
}

// FirstSceneImage returns the thumbnail reference for list display: the
// explicit thumbnail when the server set one, otherwise the first scene's
// image.
func (r *StoryRecord) FirstSceneImage() string {
	if r.Thumbnail != "" {
		return r.Thumbnail
	}
	if len(r.Scenes) > 0 {
		return r.Scenes[0].ImageURL
	}
	return ""
}

// PlaceholderTitle is shown in lists while a story is still being generated.
const PlaceholderTitle = "Generating..."

// LocalCacheEntry is the persisted projection of a story used for
// offline/instant list rendering. Description carries the original prompt.
type LocalCacheEntry struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	GeneratedAt time.Time `json:"generated_at"`
	Duration    float64   `json:"duration"`
	Status      JobStatus `json:"status"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
}

// NewPendingEntry builds the placeholder entry written immediately after a
// generation job is accepted by the server.
func NewPendingEntry(jobID, prompt string) LocalCacheEntry {
	return LocalCacheEntry{
		ID:          jobID,
		Title:       PlaceholderTitle,
		Description: prompt,
		GeneratedAt: time.Now().UTC(),
		Status:      StatusProcessing,
	}
}

// EntryFromRecord converts a server record into its cache projection.
// prompt may be empty when the record came from a list refresh; in that case
// the server-side description (if any) was already folded into the record
// title and the description is left as is.
func EntryFromRecord(r *StoryRecord, prompt string) LocalCacheEntry {
	generatedAt := r.CreatedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	return LocalCacheEntry{
		ID:          r.ID,
		Title:       r.Title,
		Description: prompt,
		GeneratedAt: generatedAt,
		Duration:    r.TotalDuration,
		Status:      r.Status,
		Thumbnail:   r.FirstSceneImage(),
	}
}

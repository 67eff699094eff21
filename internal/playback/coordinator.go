// Package playback drives a scene pointer over a completed story and feeds
// the opaque audio player one scene at a time.
package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"story-client/internal/models"

	"go.uber.org/zap"
)

// Player is the opaque audio engine capability the coordinator relies on.
// Implementations live in the UI layer (native players); tests use fakes.
type Player interface {
	Load(ctx context.Context, url string) error
	Play() error
	Pause() error
	Seek(offset time.Duration) error
	Unload() error
	// Position returns the current playback position and the loaded
	// resource's duration.
	Position() (pos, dur time.Duration)
	// OnFinished registers the callback fired when the loaded resource
	// plays to its end. Registering replaces any previous callback.
	OnFinished(fn func())
}

// Coordinator advances through a completed story's scenes, loading and
// unloading the player per scene and auto-advancing when scene audio ends.
type Coordinator struct {
	player Player
	logger *zap.Logger

	mu    sync.Mutex
	story *models.StoryRecord
	index int // 0-based position in story.Scenes
}

// NewCoordinator creates a Coordinator over the given player.
func NewCoordinator(player Player, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		player: player,
		logger: logger.Named("Playback"),
	}
	player.OnFinished(c.handleFinished)
	return c
}

// Start begins playback of a completed story from its first scene.
func (c *Coordinator) Start(ctx context.Context, story *models.StoryRecord) error {
	if story == nil || story.Status != models.StatusCompleted {
		return fmt.Errorf("%w: story is not ready for playback", models.ErrInvalidInput)
	}
	if len(story.Scenes) == 0 {
		return models.ErrEmptyStory
	}

	c.mu.Lock()
	c.story = story
	c.index = 0
	c.mu.Unlock()

	if err := c.LoadScene(ctx, 0); err != nil {
		return err
	}
	return c.player.Play()
}

// LoadScene unloads whatever is currently loaded and loads the scene at the
// given 0-based index. A load failure is scene-local: the story position is
// kept so the UI can offer a retry.
func (c *Coordinator) LoadScene(ctx context.Context, index int) error {
	c.mu.Lock()
	story := c.story
	c.mu.Unlock()

	if story == nil {
		return fmt.Errorf("%w: no story loaded", models.ErrInvalidInput)
	}
	if index < 0 || index >= len(story.Scenes) {
		return fmt.Errorf("scene %d: %w", index, models.ErrNoSceneIndex)
	}

	if err := c.player.Unload(); err != nil {
		// Не фатально: старый ресурс мог и не быть загружен
		c.logger.Debug("Unload before scene switch failed", zap.Error(err))
	}

	scene := story.Scenes[index]
	if err := c.player.Load(ctx, scene.AudioURL); err != nil {
		c.logger.Warn("Failed to load scene audio",
			zap.Int("scene", scene.Index), zap.Error(err))
		return fmt.Errorf("scene %d: %w: %v", scene.Index, models.ErrMediaLoad, err)
	}

	c.mu.Lock()
	c.index = index
	c.mu.Unlock()

	c.logger.Debug("Scene loaded", zap.Int("scene", scene.Index))
	return nil
}

// Advance moves to the next scene; a no-op at the last scene.
func (c *Coordinator) Advance(ctx context.Context) error {
	c.mu.Lock()
	story, index := c.story, c.index
	c.mu.Unlock()

	if story == nil || index >= len(story.Scenes)-1 {
		return nil
	}
	if err := c.LoadScene(ctx, index+1); err != nil {
		return err
	}
	return c.player.Play()
}

// Back moves to the previous scene; a no-op at the first scene.
func (c *Coordinator) Back(ctx context.Context) error {
	c.mu.Lock()
	story, index := c.story, c.index
	c.mu.Unlock()

	if story == nil || index <= 0 {
		return nil
	}
	if err := c.LoadScene(ctx, index-1); err != nil {
		return err
	}
	return c.player.Play()
}

// Current returns the active scene and its 0-based index. ok is false when
// no story is loaded.
func (c *Coordinator) Current() (scene models.Scene, index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.story == nil || c.index >= len(c.story.Scenes) {
		return models.Scene{}, 0, false
	}
	return c.story.Scenes[c.index], c.index, true
}

// handleFinished auto-advances on the player's finished callback, unless the
// story just played its last scene.
func (c *Coordinator) handleFinished() {
	c.mu.Lock()
	story, index := c.story, c.index
	c.mu.Unlock()

	if story == nil {
		return
	}
	if index >= len(story.Scenes)-1 {
		c.logger.Debug("Story playback finished")
		return
	}
	if err := c.Advance(context.Background()); err != nil {
		c.logger.Warn("Auto-advance failed", zap.Int("fromScene", index+1), zap.Error(err))
	}
}

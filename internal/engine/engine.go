// Package engine implements the story reconciliation core: it submits
// generation jobs, polls the remote API until a terminal state, merges
// results into the local cache and exposes the unified list/detail view.
// The engine is the sole writer of the cache; UI layers only read.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"story-client/internal/cache"
	"story-client/internal/interfaces"
	"story-client/internal/models"

	"go.uber.org/zap"
)

// CredentialSource supplies a bearer credential to API calls and retries
// once after a refresh on auth-class failures. Implemented by
// session.Provider.
type CredentialSource interface {
	Do(ctx context.Context, fn func(token string) error) error
	Token(ctx context.Context) (string, error)
}

// Config holds the engine's tunables. Defaults match the product: a fixed
// 15s interval and 20 attempts, about five minutes of waiting overall.
type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
	PageSize        int
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.MaxPollAttempts <= 0 {
		c.MaxPollAttempts = 20
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
}

// Engine orchestrates generation requests against the remote API and owns
// all writes to the local story cache.
type Engine struct {
	api     interfaces.StoryAPIClient
	cache   *cache.StoryCache
	creds   CredentialSource
	cfg     Config
	metrics *Metrics
	logger  *zap.Logger
}

// New creates an Engine. metrics may be nil.
func New(api interfaces.StoryAPIClient, storyCache *cache.StoryCache, creds CredentialSource, cfg Config, metrics *Metrics, logger *zap.Logger) *Engine {
	cfg.applyDefaults()
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		api:     api,
		cache:   storyCache,
		creds:   creds,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("Engine"),
	}
}

// StartGeneration submits a prompt and, once the server accepts the job,
// writes the placeholder cache entry. On failure nothing is cached and the
// error is surfaced to the caller.
func (e *Engine) StartGeneration(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", models.ErrEmptyPrompt
	}

	var result interfaces.GenerateResult
	err := e.creds.Do(ctx, func(token string) error {
		r, err := e.api.Generate(ctx, token, prompt)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		e.logger.Warn("Failed to start generation", zap.Error(err))
		return "", err
	}

	e.cache.Upsert(ctx, models.NewPendingEntry(result.JobID, prompt))
	e.logger.Info("Generation started",
		zap.String("jobID", result.JobID), zap.String("status", string(result.Status)))
	return result.JobID, nil
}

// GenerateStory is the blocking convenience flow: submit the prompt, then
// poll until the story is ready (or the job reaches a terminal failure).
func (e *Engine) GenerateStory(ctx context.Context, prompt string, onProgress func(models.JobStatus)) (*models.StoryRecord, error) {
	jobID, err := e.StartGeneration(ctx, prompt)
	if err != nil {
		e.metrics.Generations.WithLabelValues("error").Inc()
		return nil, err
	}
	return e.RunPollLoop(ctx, jobID, onProgress)
}

// LoadUserStories refreshes the story list from the server and atomically
// replaces the cache. On any failure it falls back to whatever the cache
// currently holds: stale-but-available beats empty.
func (e *Engine) LoadUserStories(ctx context.Context) ([]models.LocalCacheEntry, error) {
	entries, err := e.fetchAllPages(ctx)
	if err != nil {
		e.logger.Warn("Story list refresh failed, serving cached list", zap.Error(err))
		e.metrics.CacheFallbacks.Inc()
		return e.cache.Get(ctx), nil
	}

	e.cache.ReplaceAll(ctx, entries)
	e.logger.Debug("Story list refreshed", zap.Int("count", len(entries)))
	return entries, nil
}

// Refresh is the pull-to-refresh variant of LoadUserStories: the user
// already has a populated list, so failures stay silent.
func (e *Engine) Refresh(ctx context.Context) {
	if _, err := e.fetchAllPagesAndReplace(ctx); err != nil {
		e.logger.Debug("Silent refresh failed", zap.Error(err))
		e.metrics.CacheFallbacks.Inc()
	}
}

// Stories returns the current cached list without touching the network.
func (e *Engine) Stories(ctx context.Context) []models.LocalCacheEntry {
	return e.cache.Get(ctx)
}

// DeleteStory removes a story server-side and evicts its cache entry.
func (e *Engine) DeleteStory(ctx context.Context, storyID string) error {
	err := e.creds.Do(ctx, func(token string) error {
		return e.api.DeleteStory(ctx, token, storyID)
	})
	if err != nil {
		return fmt.Errorf("failed to delete story %s: %w", storyID, err)
	}
	e.cache.Remove(ctx, storyID)
	e.logger.Info("Story deleted", zap.String("storyID", storyID))
	return nil
}

func (e *Engine) fetchAllPagesAndReplace(ctx context.Context) ([]models.LocalCacheEntry, error) {
	entries, err := e.fetchAllPages(ctx)
	if err != nil {
		return nil, err
	}
	e.cache.ReplaceAll(ctx, entries)
	return entries, nil
}

// fetchAllPages accumulates offset pages until the server reports no more.
func (e *Engine) fetchAllPages(ctx context.Context) ([]models.LocalCacheEntry, error) {
	// Описания (промпты) живут только локально; сохраняем их при замене
	existing := make(map[string]string)
	for _, entry := range e.cache.Get(ctx) {
		existing[entry.ID] = entry.Description
	}

	var entries []models.LocalCacheEntry
	offset := 0
	for {
		var page interfaces.StoryPage
		err := e.creds.Do(ctx, func(token string) error {
			p, err := e.api.ListForUser(ctx, token, e.cfg.PageSize, offset)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, err
		}

		for i := range page.Records {
			rec := &page.Records[i]
			entries = append(entries, models.EntryFromRecord(rec, existing[rec.ID]))
		}

		if !page.HasMore || len(page.Records) == 0 {
			break
		}
		offset += len(page.Records)
	}
	return entries, nil
}

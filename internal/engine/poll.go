package engine

import (
	"context"
	"errors"
	"fmt"

	"story-client/internal/interfaces"
	"story-client/internal/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// errStillProcessing marks a tick whose job has not reached a terminal
// state yet; it keeps the retry loop going and never leaves this package.
var errStillProcessing = errors.New("generation still in progress")

// PollOutcome classifies a single poll tick.
type PollOutcome struct {
	Status models.JobStatus
	Record *models.StoryRecord // set only when Status == StatusCompleted
	Reason error               // cause when Status == StatusFailed
}

// PollOnce fetches the job status once and merges a terminal result into the
// cache. The context is checked again after the fetch resolves so a response
// arriving after cancellation is discarded instead of applied.
func (e *Engine) PollOnce(ctx context.Context, jobID string) (PollOutcome, error) {
	var result interfaces.FetchResult
	err := e.creds.Do(ctx, func(token string) error {
		r, err := e.api.FetchStatus(ctx, token, jobID)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return PollOutcome{}, err
	}

	// Проверка отмены до записи в кеш: поздний ответ не должен применяться
	if err := ctx.Err(); err != nil {
		return PollOutcome{}, err
	}

	switch result.Status {
	case models.StatusCompleted:
		record := result.Record
		if record == nil {
			record = &models.StoryRecord{ID: jobID, Status: models.StatusCompleted}
		}
		if err := record.Validate(); err != nil {
			// История без сцен бесполезна для плеера; считаем ее проваленной
			e.logger.Warn("Completed story rejected as unusable",
				zap.String("jobID", jobID), zap.Error(err))
			e.cache.PatchStatus(ctx, jobID, models.StatusFailed)
			return PollOutcome{Status: models.StatusFailed, Reason: fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)}, nil
		}

		e.cache.Upsert(ctx, models.EntryFromRecord(record, e.cachedDescription(ctx, jobID)))
		return PollOutcome{Status: models.StatusCompleted, Record: record}, nil

	case models.StatusFailed:
		e.cache.PatchStatus(ctx, jobID, models.StatusFailed)
		return PollOutcome{Status: models.StatusFailed, Reason: models.ErrGenerationFailed}, nil

	default:
		return PollOutcome{Status: result.Status}, nil
	}
}

// RunPollLoop drives PollOnce at the configured fixed interval until a
// terminal state, the attempt budget runs out, or ctx is cancelled. The
// interval is deliberately constant: server-side generation latency is
// bounded and predictable, so exponential backoff would only add waiting.
// onProgress (optional) is invoked after every successful tick.
func (e *Engine) RunPollLoop(ctx context.Context, jobID string, onProgress func(models.JobStatus)) (*models.StoryRecord, error) {
	log := e.logger.With(zap.String("jobID", jobID))
	e.metrics.ActivePolls.Inc()
	defer e.metrics.ActivePolls.Dec()

	var record *models.StoryRecord
	attempt := 0

	operation := func() error {
		attempt++
		outcome, err := e.PollOnce(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, models.ErrSessionExpired) || errors.Is(err, models.ErrNoToken) || errors.Is(err, models.ErrUnauthorized) {
				// Сессию уже пытались обновить внутри Do; дальше только sign-out
				return backoff.Permanent(err)
			}
			// Сетевые и серверные сбои переживаем в рамках бюджета попыток
			e.metrics.PollTicks.WithLabelValues("error").Inc()
			log.Warn("Poll tick failed, will retry", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		if onProgress != nil {
			onProgress(outcome.Status)
		}

		switch outcome.Status {
		case models.StatusCompleted:
			e.metrics.PollTicks.WithLabelValues("completed").Inc()
			record = outcome.Record
			return nil
		case models.StatusFailed:
			e.metrics.PollTicks.WithLabelValues("failed").Inc()
			return backoff.Permanent(outcome.Reason)
		default:
			e.metrics.PollTicks.WithLabelValues("pending").Inc()
			log.Debug("Story still generating", zap.Int("attempt", attempt), zap.String("status", string(outcome.Status)))
			return errStillProcessing
		}
	}

	// Первая попытка выполняется сразу, дальше с фиксированным интервалом
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.PollInterval), uint64(e.cfg.MaxPollAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)

	switch {
	case err == nil:
		e.metrics.Generations.WithLabelValues("completed").Inc()
		log.Info("Story generation completed", zap.Int("attempts", attempt))
		return record, nil

	case ctx.Err() != nil:
		// Отмена потребителем: кеш не трогаем, поздние результаты отброшены
		log.Debug("Poll loop cancelled", zap.Int("attempts", attempt))
		return nil, ctx.Err()

	case errors.Is(err, errStillProcessing):
		// Бюджет попыток исчерпан, задача так и не завершилась
		e.cache.PatchStatus(ctx, jobID, models.StatusFailed)
		e.metrics.Generations.WithLabelValues("timeout").Inc()
		log.Warn("Story generation timed out", zap.Int("attempts", attempt))
		return nil, fmt.Errorf("story %s: %w", jobID, models.ErrGenerationTimeout)

	case errors.Is(err, models.ErrGenerationFailed):
		e.metrics.Generations.WithLabelValues("failed").Inc()
		log.Warn("Story generation failed", zap.Int("attempts", attempt))
		return nil, err

	default:
		// Транзиентные ошибки кончились вместе с бюджетом: job считаем проваленным
		e.cache.PatchStatus(ctx, jobID, models.StatusFailed)
		e.metrics.Generations.WithLabelValues("error").Inc()
		log.Warn("Poll loop gave up after repeated errors", zap.Int("attempts", attempt), zap.Error(err))
		return nil, err
	}
}

// cachedDescription returns the locally stored prompt for a job so a
// completed record does not wipe it from the list entry.
func (e *Engine) cachedDescription(ctx context.Context, jobID string) string {
	for _, entry := range e.cache.Get(ctx) {
		if entry.ID == jobID {
			return entry.Description
		}
	}
	return ""
}

package engine

import (
	"context"
	"testing"
	"time"

	"story-client/internal/cache"
	"story-client/internal/interfaces"
	"story-client/internal/interfaces/mocks"
	"story-client/internal/kvstore"
	"story-client/internal/models"
	"story-client/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// staticCreds is a CredentialSource with a fixed token and no refresh logic.
type staticCreds struct {
	token string
}

func (s staticCreds) Do(ctx context.Context, fn func(token string) error) error {
	return fn(s.token)
}

func (s staticCreds) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

func newTestEngine(t *testing.T, api interfaces.StoryAPIClient, cfg Config) (*Engine, *cache.StoryCache) {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Millisecond
	}
	storyCache := cache.NewStoryCache(kvstore.NewMemoryStore(), zap.NewNop())
	eng := New(api, storyCache, staticCreds{token: "token-1"}, cfg, nil, zap.NewNop())
	return eng, storyCache
}

func completedRecord(id string) *models.StoryRecord {
	return &models.StoryRecord{
		ID:     id,
		Title:  "The Moon Robot",
		Status: models.StatusCompleted,
		Scenes: []models.Scene{
			{Index: 1, Text: "Once upon a time...", AudioURL: "https://cdn/a1.mp3", Duration: 12.5},
			{Index: 2, Text: "The robot landed.", AudioURL: "https://cdn/a2.mp3", StartOffset: 12.5, Duration: 12.5},
		},
		TotalDuration: 25,
		TotalScenes:   2,
	}
}

func TestGenerateStoryHappyPath(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("Generate", mock.Anything, "token-1", "A robot visits the moon").
		Return(interfaces.GenerateResult{JobID: "job-1", Status: models.StatusProcessing}, nil).Once()
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{Status: models.StatusProcessing}, nil).Times(2)
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{Status: models.StatusCompleted, Record: completedRecord("job-1")}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 10})

	var progress []models.JobStatus
	record, err := eng.GenerateStory(ctx, "A robot visits the moon", func(s models.JobStatus) {
		progress = append(progress, s)
	})
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "The Moon Robot", record.Title)
	assert.Equal(t, []models.JobStatus{models.StatusProcessing, models.StatusProcessing, models.StatusCompleted}, progress)

	// Ровно одна запись: плейсхолдер заменен на месте, без дублей
	entries := storyCache.Get(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].ID)
	assert.Equal(t, models.StatusCompleted, entries[0].Status)
	assert.Equal(t, "The Moon Robot", entries[0].Title)
	assert.Equal(t, "A robot visits the moon", entries[0].Description, "local prompt survives the completed record")
	api.AssertExpectations(t)
}

func TestGenerateStoryTimesOut(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("Generate", mock.Anything, "token-1", "slow prompt").
		Return(interfaces.GenerateResult{JobID: "job-1", Status: models.StatusProcessing}, nil).Once()
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{Status: models.StatusProcessing}, nil)

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 3})

	_, err := eng.GenerateStory(ctx, "slow prompt", nil)
	assert.ErrorIs(t, err, models.ErrGenerationTimeout)
	api.AssertNumberOfCalls(t, "FetchStatus", 3)

	entries := storyCache.Get(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
}

func TestGenerateStoryServerReportsFailure(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("Generate", mock.Anything, "token-1", "bad prompt").
		Return(interfaces.GenerateResult{JobID: "job-1", Status: models.StatusProcessing}, nil).Once()
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{Status: models.StatusFailed}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 5})

	_, err := eng.GenerateStory(ctx, "bad prompt", nil)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	entries := storyCache.Get(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
}

func TestCompletedStoryWithoutScenesIsFailed(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("Generate", mock.Anything, "token-1", "empty prompt").
		Return(interfaces.GenerateResult{JobID: "job-1", Status: models.StatusProcessing}, nil).Once()
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{
			Status: models.StatusCompleted,
			Record: &models.StoryRecord{ID: "job-1", Title: "Empty", Status: models.StatusCompleted},
		}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 5})

	_, err := eng.GenerateStory(ctx, "empty prompt", nil)
	assert.ErrorIs(t, err, models.ErrGenerationFailed)

	// Completed без единой сцены для плеера бесполезен
	entries := storyCache.Get(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusFailed, entries[0].Status)
}

func TestCancellationDiscardsLateResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	api := new(mocks.StoryAPIClient)
	// Отмена приходит, пока запрос еще в полете; ответ успевает вернуться
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Run(func(args mock.Arguments) { cancel() }).
		Return(interfaces.FetchResult{Status: models.StatusCompleted, Record: completedRecord("job-1")}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 5})
	storyCache.Upsert(context.Background(), models.NewPendingEntry("job-1", "prompt"))

	_, err := eng.PollOnce(ctx, "job-1")
	assert.ErrorIs(t, err, context.Canceled)

	// Поздний результат не должен попасть в кеш
	entries := storyCache.Get(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusProcessing, entries[0].Status)
	assert.Equal(t, models.PlaceholderTitle, entries[0].Title)
}

func TestRunPollLoopCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	api := new(mocks.StoryAPIClient)
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Run(func(args mock.Arguments) { cancel() }).
		Return(interfaces.FetchResult{Status: models.StatusProcessing}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{MaxPollAttempts: 5})
	storyCache.Upsert(context.Background(), models.NewPendingEntry("job-1", "prompt"))

	_, err := eng.RunPollLoop(ctx, "job-1", nil)
	assert.ErrorIs(t, err, context.Canceled)

	// Отмена потребителем не помечает историю проваленной
	entries := storyCache.Get(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusProcessing, entries[0].Status)
}

func TestStartGenerationFailureLeavesCacheEmpty(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("Generate", mock.Anything, "token-1", "prompt").
		Return(interfaces.GenerateResult{}, models.ErrServer).Once()

	eng, storyCache := newTestEngine(t, api, Config{})

	_, err := eng.StartGeneration(ctx, "prompt")
	assert.ErrorIs(t, err, models.ErrServer)
	assert.Empty(t, storyCache.Get(ctx))
}

func TestStartGenerationRejectsEmptyPrompt(t *testing.T) {
	api := new(mocks.StoryAPIClient)
	eng, storyCache := newTestEngine(t, api, Config{})

	_, err := eng.StartGeneration(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrEmptyPrompt)
	assert.Empty(t, storyCache.Get(context.Background()))
	api.AssertNotCalled(t, "Generate")
}

func TestLoadUserStoriesFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("ListForUser", mock.Anything, "token-1", mock.Anything, mock.Anything).
		Return(interfaces.StoryPage{}, models.ErrNetwork)

	eng, storyCache := newTestEngine(t, api, Config{})
	storyCache.Upsert(ctx, models.LocalCacheEntry{ID: "s1", Title: "Cached", Status: models.StatusCompleted})

	entries, err := eng.LoadUserStories(ctx)
	require.NoError(t, err, "list failures degrade to the cached copy")
	require.Len(t, entries, 1)
	assert.Equal(t, "Cached", entries[0].Title)
}

func TestLoadUserStoriesPaginationPreservesDescriptions(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("ListForUser", mock.Anything, "token-1", 2, 0).
		Return(interfaces.StoryPage{
			Records: []models.StoryRecord{
				{ID: "s1", Title: "One", Status: models.StatusCompleted},
				{ID: "s2", Title: "Two", Status: models.StatusCompleted},
			},
			HasMore:    true,
			TotalCount: 3,
		}, nil).Once()
	api.On("ListForUser", mock.Anything, "token-1", 2, 2).
		Return(interfaces.StoryPage{
			Records:    []models.StoryRecord{{ID: "s3", Title: "Three", Status: models.StatusCompleted}},
			HasMore:    false,
			TotalCount: 3,
		}, nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{PageSize: 2})
	storyCache.Upsert(ctx, models.LocalCacheEntry{ID: "s1", Title: "One", Description: "prompt one", Status: models.StatusCompleted})

	entries, err := eng.LoadUserStories(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "s1", entries[0].ID)
	assert.Equal(t, "prompt one", entries[0].Description, "server list must not wipe the local prompt")
	assert.Equal(t, "s3", entries[2].ID)
	api.AssertExpectations(t)
}

func TestDeleteStoryEvictsCacheEntry(t *testing.T) {
	ctx := context.Background()
	api := new(mocks.StoryAPIClient)
	api.On("DeleteStory", mock.Anything, "token-1", "s1").Return(nil).Once()

	eng, storyCache := newTestEngine(t, api, Config{})
	storyCache.Upsert(ctx, models.LocalCacheEntry{ID: "s1", Title: "One", Status: models.StatusCompleted})
	storyCache.Upsert(ctx, models.LocalCacheEntry{ID: "s2", Title: "Two", Status: models.StatusCompleted})

	require.NoError(t, eng.DeleteStory(ctx, "s1"))
	entries := storyCache.Get(ctx)
	require.Len(t, entries, 1)
	assert.Equal(t, "s2", entries[0].ID)
	api.AssertExpectations(t)
}

func TestPollRefreshesSessionMidLoop(t *testing.T) {
	ctx := context.Background()

	authClient := new(mocks.AuthClient)
	authClient.On("RefreshToken", mock.Anything, "refresh-1").
		Return(interfaces.TokenPair{AccessToken: "token-2", RefreshToken: "refresh-2"}, nil).Once()

	provider := session.NewProvider(authClient, kvstore.NewMemoryStore(), session.Options{}, zap.NewNop())
	require.NoError(t, provider.SetTokens(ctx, interfaces.TokenPair{AccessToken: "token-1", RefreshToken: "refresh-1"}))

	api := new(mocks.StoryAPIClient)
	// Токен протух посреди опроса: единичный 401, рефреш, повтор с новым токеном
	api.On("FetchStatus", mock.Anything, "token-1", "job-1").
		Return(interfaces.FetchResult{}, models.ErrUnauthorized).Once()
	api.On("FetchStatus", mock.Anything, "token-2", "job-1").
		Return(interfaces.FetchResult{Status: models.StatusCompleted, Record: completedRecord("job-1")}, nil).Once()

	storyCache := cache.NewStoryCache(kvstore.NewMemoryStore(), zap.NewNop())
	eng := New(api, storyCache, provider, Config{PollInterval: time.Millisecond, MaxPollAttempts: 5}, nil, zap.NewNop())

	record, err := eng.RunPollLoop(ctx, "job-1", nil)
	require.NoError(t, err)
	assert.Equal(t, "The Moon Robot", record.Title)
	authClient.AssertExpectations(t)
	api.AssertExpectations(t)
}

package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"story-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*StoryAPIClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewStoryAPIClient(server.URL, 5*time.Second, zap.NewNop())
	require.NoError(t, err)
	return client, server
}

func TestGenerateSuccess(t *testing.T) {
	var gotAuth, gotRequestID string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stories/generate", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "A robot visits the moon", body["prompt"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"story_id": "job-1",
			"status":   "processing",
		})
	}))

	result, err := client.Generate(context.Background(), "token-1", "A robot visits the moon")
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, models.StatusProcessing, result.Status)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestGenerateEmptyPromptIsRejectedLocally(t *testing.T) {
	called := false
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	_, err := client.Generate(context.Background(), "token", "   ")
	assert.ErrorIs(t, err, models.ErrEmptyPrompt)
	assert.False(t, called, "empty prompt must not reach the network")
}

func TestErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, models.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, models.ErrUnauthorized},
		{"not found", http.StatusNotFound, models.ErrStoryNotFound},
		{"bad request", http.StatusBadRequest, models.ErrInvalidInput},
		{"server error", http.StatusInternalServerError, models.ErrServer},
		{"bad gateway", http.StatusBadGateway, models.ErrServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			_, err := client.FetchStatus(context.Background(), "token", "job-1")
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := NewStoryAPIClient(server.URL, time.Second, zap.NewNop())
	require.NoError(t, err)
	server.Close() // Сервер уже недоступен

	_, err = client.FetchStatus(context.Background(), "token", "job-1")
	assert.ErrorIs(t, err, models.ErrNetwork)
}

func TestMalformedBodyIsServerError(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))

	_, err := client.FetchStatus(context.Background(), "token", "job-1")
	assert.ErrorIs(t, err, models.ErrServer)
}

func TestFetchStatusInFlight(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stories/fetch/job-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "status": "processing"})
	}))

	result, err := client.FetchStatus(context.Background(), "token", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, result.Status)
	assert.Nil(t, result.Record, "no record until the job completes")
}

func TestFetchStatusCompleted(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"story": map[string]interface{}{
				"id":     "job-1",
				"title":  "The Moon Robot",
				"status": "completed",
				"scenes": []map[string]interface{}{
					{"index": 1, "text": "Once upon a time...", "audio_url": "https://cdn/a1.mp3"},
				},
				"total_duration": 12.5,
				"total_scenes":   1,
			},
		})
	}))

	result, err := client.FetchStatus(context.Background(), "token", "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, result.Status)
	require.NotNil(t, result.Record)
	assert.Equal(t, "The Moon Robot", result.Record.Title)
	require.Len(t, result.Record.Scenes, 1)
	assert.Equal(t, "https://cdn/a1.mp3", result.Record.Scenes[0].AudioURL)
}

func TestListForUserPagination(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":     true,
			"stories":     []map[string]interface{}{{"id": "s1", "title": "One", "status": "completed"}},
			"has_more":    true,
			"total_count": 31,
		})
	}))

	page, err := client.ListForUser(context.Background(), "token", 10, 20)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.True(t, page.HasMore)
	assert.Equal(t, 31, page.TotalCount)
}

func TestDeleteStory(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		require.Equal(t, "/stories/user/token/story/job-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	}))

	assert.NoError(t, client.DeleteStory(context.Background(), "token", "job-1"))
}

func TestDeleteStoryRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "nope"})
	}))

	err := client.DeleteStory(context.Background(), "token", "job-1")
	assert.ErrorIs(t, err, models.ErrServer)
}

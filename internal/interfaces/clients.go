package interfaces

import (
	"context"

	"story-client/internal/models"
)

// GenerateResult is returned by StoryAPIClient.Generate once the server has
// accepted a generation job.
type GenerateResult struct {
	JobID  string
	Status models.JobStatus
}

// FetchResult carries the outcome of a single status fetch. Record is only
// set when the server returned the full story payload (terminal states);
// otherwise Status alone tells the caller the job is still in flight.
type FetchResult struct {
	Status models.JobStatus
	Record *models.StoryRecord
}

// StoryPage is one page of a user's story list. Offset-based pagination: the
// caller accumulates pages while HasMore is true.
type StoryPage struct {
	Records    []models.StoryRecord
	HasMore    bool
	TotalCount int
}

// StoryAPIClient is the typed wrapper over the remote story REST API.
// Implementations translate transport and HTTP failures into the sentinel
// errors from the models package and never touch local state.
type StoryAPIClient interface {
	Generate(ctx context.Context, credential, prompt string) (GenerateResult, error)
	FetchStatus(ctx context.Context, credential, storyID string) (FetchResult, error)
	ListForUser(ctx context.Context, credential string, limit, offset int) (StoryPage, error)
	DeleteStory(ctx context.Context, credential, storyID string) error
}

// TokenPair is the credential pair issued by the identity provider.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthClient talks to the external identity provider. Token issuance itself
// (sign-up/sign-in) happens elsewhere in the app; this client only covers the
// lifecycle operations the session provider needs.
type AuthClient interface {
	VerifyToken(ctx context.Context, token string) (bool, error)
	RefreshToken(ctx context.Context, refreshToken string) (TokenPair, error)
}

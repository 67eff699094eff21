package mocks

import (
	"context"

	"story-client/internal/interfaces"

	"github.com/stretchr/testify/mock"
)

// Mock StoryAPIClient
type StoryAPIClient struct {
	mock.Mock
}

func (m *StoryAPIClient) Generate(ctx context.Context, credential, prompt string) (interfaces.GenerateResult, error) {
	args := m.Called(ctx, credential, prompt)
	return args.Get(0).(interfaces.GenerateResult), args.Error(1)
}

func (m *StoryAPIClient) FetchStatus(ctx context.Context, credential, storyID string) (interfaces.FetchResult, error) {
	args := m.Called(ctx, credential, storyID)
	return args.Get(0).(interfaces.FetchResult), args.Error(1)
}

func (m *StoryAPIClient) ListForUser(ctx context.Context, credential string, limit, offset int) (interfaces.StoryPage, error) {
	args := m.Called(ctx, credential, limit, offset)
	return args.Get(0).(interfaces.StoryPage), args.Error(1)
}

func (m *StoryAPIClient) DeleteStory(ctx context.Context, credential, storyID string) error {
	args := m.Called(ctx, credential, storyID)
	return args.Error(0)
}

// Mock AuthClient
type AuthClient struct {
	mock.Mock
}

func (m *AuthClient) VerifyToken(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func (m *AuthClient) RefreshToken(ctx context.Context, refreshToken string) (interfaces.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(interfaces.TokenPair), args.Error(1)
}

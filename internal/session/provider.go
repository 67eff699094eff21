// Package session owns the bearer credential used by every network call.
// Readers always go through the provider per call instead of caching the
// token locally, so a refresh is immediately visible everywhere.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"story-client/internal/interfaces"
	"story-client/internal/kvstore"
	"story-client/internal/models"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	accessTokenKey  = "access_token"
	refreshTokenKey = "refresh_token"

	validityCacheKey = "token_valid"
)

// Options tune provider behaviour; zero values fall back to the defaults
// observed in the product.
type Options struct {
	// VerifyDebounce bounds how often IsValid performs a server round-trip.
	VerifyDebounce time.Duration
	// RefreshLeeway refreshes proactively when the access token expires
	// within this window.
	RefreshLeeway time.Duration
}

// Provider supplies the bearer credential and handles its refresh/expiry.
type Provider struct {
	authClient interfaces.AuthClient
	store      kvstore.Store
	logger     *zap.Logger
	opts       Options

	// Дебаунс проверки валидности: не чаще одного запроса за VerifyDebounce
	validity *gocache.Cache

	refreshMu sync.Mutex
}

// NewProvider creates a session provider over the given auth client and
// credential store.
func NewProvider(authClient interfaces.AuthClient, store kvstore.Store, opts Options, logger *zap.Logger) *Provider {
	if opts.VerifyDebounce <= 0 {
		opts.VerifyDebounce = 30 * time.Second
	}
	if opts.RefreshLeeway <= 0 {
		opts.RefreshLeeway = 30 * time.Second
	}
	return &Provider{
		authClient: authClient,
		store:      store,
		logger:     logger.Named("SessionProvider"),
		opts:       opts,
		validity:   gocache.New(opts.VerifyDebounce, time.Minute),
	}
}

// SetTokens stores a freshly issued credential pair (after sign-in).
func (p *Provider) SetTokens(ctx context.Context, pair interfaces.TokenPair) error {
	if err := p.store.Set(ctx, accessTokenKey, pair.AccessToken); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if pair.RefreshToken != "" {
		if err := p.store.Set(ctx, refreshTokenKey, pair.RefreshToken); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
	}
	p.validity.Flush()
	return nil
}

// Token returns the current access token, refreshing proactively when it is
// about to expire. Returns ErrNoToken when the user has never signed in.
func (p *Provider) Token(ctx context.Context) (string, error) {
	token, err := p.store.Get(ctx, accessTokenKey)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return "", models.ErrNoToken
		}
		return "", fmt.Errorf("failed to read access token: %w", err)
	}

	if p.expiresSoon(token) {
		p.logger.Debug("Access token expires soon, refreshing proactively")
		refreshed, rerr := p.Refresh(ctx)
		if rerr == nil {
			return refreshed, nil
		}
		// Рефреш не удался — возвращаем текущий токен, пусть решает сервер
		p.logger.Warn("Proactive refresh failed, using stored token", zap.Error(rerr))
	}
	return token, nil
}

// Refresh exchanges the stored refresh token for a new pair. A definitive
// rejection clears the stored credentials and returns ErrSessionExpired:
// the caller must force a full sign-out.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	refreshToken, err := p.store.Get(ctx, refreshTokenKey)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return "", models.ErrSessionExpired
		}
		return "", fmt.Errorf("failed to read refresh token: %w", err)
	}

	pair, err := p.authClient.RefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) {
			p.logger.Info("Refresh token rejected, clearing session")
			p.SignOut(ctx)
			return "", models.ErrSessionExpired
		}
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}

	if err := p.SetTokens(ctx, pair); err != nil {
		// Новый токен есть, но сохранить не вышло; отдаем его вызывающему
		p.logger.Warn("Failed to persist refreshed tokens", zap.Error(err))
	}
	p.logger.Debug("Access token refreshed")
	return pair.AccessToken, nil
}

// IsValid reports whether the stored access token is accepted by the
// identity provider. The server round-trip is debounced: within the
// configured window the last answer is reused.
func (p *Provider) IsValid(ctx context.Context) bool {
	if cached, ok := p.validity.Get(validityCacheKey); ok {
		return cached.(bool)
	}

	token, err := p.store.Get(ctx, accessTokenKey)
	if err != nil {
		return false
	}

	valid, err := p.authClient.VerifyToken(ctx, token)
	if err != nil {
		// Сетевая ошибка не означает невалидный токен; ответ не кешируем
		p.logger.Warn("Token verification round-trip failed", zap.Error(err))
		return false
	}
	p.validity.Set(validityCacheKey, valid, gocache.DefaultExpiration)
	return valid
}

// SignOut removes the stored credential pair.
func (p *Provider) SignOut(ctx context.Context) {
	if err := p.store.Delete(ctx, accessTokenKey); err != nil {
		p.logger.Warn("Failed to delete access token", zap.Error(err))
	}
	if err := p.store.Delete(ctx, refreshTokenKey); err != nil {
		p.logger.Warn("Failed to delete refresh token", zap.Error(err))
	}
	p.validity.Flush()
}

// Do runs fn with the current token. On an auth-class failure it refreshes
// once and reruns fn exactly once with the new token; a second failure
// propagates to the caller.
func (p *Provider) Do(ctx context.Context, fn func(token string) error) error {
	token, err := p.Token(ctx)
	if err != nil {
		return err
	}

	err = fn(token)
	if err == nil || !errors.Is(err, models.ErrUnauthorized) {
		return err
	}

	p.logger.Debug("Request unauthorized, refreshing token and retrying once")
	newToken, rerr := p.Refresh(ctx)
	if rerr != nil {
		return rerr
	}
	return fn(newToken)
}

// expiresSoon peeks at the JWT exp claim without verifying the signature.
// Verification is the server's job; here we only want to avoid sending a
// token we already know is dead.
func (p *Provider) expiresSoon(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		// Непрозрачный (не-JWT) токен: срок жизни знает только сервер
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return time.Until(claims.ExpiresAt.Time) < p.opts.RefreshLeeway
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/clicktrail/internal/app/metrics"
	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	"go.uber.org/zap"
)

const (
	tokenAttempts = 5
	// RedirectPath is the path segment in front of every token.
	RedirectPath = "/r/"
)

// TokenIssuerOptions configures a TokenIssuer.
type TokenIssuerOptions struct {
	BaseURL      string
	ItemsPerPost int
	Generator    TokenGenerator
	Filter       *TokenFilter
	Logger       *zap.Logger
	Now          func() time.Time
}

// TokenIssuer binds fresh tokens to (post, item, destination) triples.
type TokenIssuer struct {
	redirects    repository.RedirectRepository
	baseURL      string
	itemsPerPost int
	gen          TokenGenerator
	filter       *TokenFilter
	logger       *zap.Logger
	nowFunc      func() time.Time
}

// NewTokenIssuer returns an issuer writing to redirects.
func NewTokenIssuer(redirects repository.RedirectRepository, opts TokenIssuerOptions) *TokenIssuer {
	gen := opts.Generator
	if gen == nil {
		gen = RandomTokenGenerator{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		redirects:    redirects,
		baseURL:      opts.BaseURL,
		itemsPerPost: opts.ItemsPerPost,
		gen:          gen,
		filter:       opts.Filter,
		logger:       logger,
		nowFunc:      now,
	}
}

// Issue creates one RedirectTarget and returns it with its public short link.
// After tokenAttempts collisions it fails with ErrTokenExhausted.
func (s *TokenIssuer) Issue(ctx context.Context, postID int64, item int, targetURL string) (*model.RedirectTarget, string, error) {
	if item < 1 || item > s.itemsPerPost {
		return nil, "", fmt.Errorf("%w: item index %d outside 1..%d", ErrInvalidPublish, item, s.itemsPerPost)
	}

	for attempt := 1; attempt <= tokenAttempts; attempt++ {
		token, err := s.gen.NewToken(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("generate token: %w", err)
		}

		target := &model.RedirectTarget{
			Token:     token,
			PostID:    postID,
			ItemIndex: item,
			TargetURL: targetURL,
			CreatedAt: s.nowFunc().Unix(),
		}
		err = s.redirects.Create(ctx, target)
		if err == nil {
			if s.filter != nil {
				s.filter.Add(token)
			}
			metrics.TokensIssued.Inc()
			return target, s.ShortURL(token), nil
		}
		if !errors.Is(err, repository.ErrTokenConflict) {
			return nil, "", fmt.Errorf("create redirect: %w", err)
		}

		metrics.TokenCollisions.Inc()
		s.logger.Warn("redirect token collision",
			zap.Int("attempt", attempt),
			zap.Int64("post_id", postID),
			zap.Int("item", item),
		)
	}
	return nil, "", ErrTokenExhausted
}

// ShortURL builds the public link for token.
func (s *TokenIssuer) ShortURL(token string) string {
	return s.baseURL + RedirectPath + token
}

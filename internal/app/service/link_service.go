package service

import (
	"context"
	"fmt"

	"github.com/sifan077/clicktrail/internal/app/repository"
)

// LinkStat is one redirect target of a post with its all-time hit count.
type LinkStat struct {
	Item      int    `json:"item"`
	Token     string `json:"token"`
	TargetURL string `json:"target_url"`
	ShortURL  string `json:"short_url"`
	Clicks    int64  `json:"clicks"`
}

// LinkService lists the links of a post.
type LinkService struct {
	redirects repository.RedirectRepository
	hits      repository.HitRepository
	issuer    *TokenIssuer
}

// NewLinkService returns a LinkService; issuer builds the short URLs.
func NewLinkService(redirects repository.RedirectRepository, hits repository.HitRepository, issuer *TokenIssuer) *LinkService {
	return &LinkService{redirects: redirects, hits: hits, issuer: issuer}
}

// Links returns the post's targets ordered by item index, or ErrEmptyResult.
func (s *LinkService) Links(ctx context.Context, postID int64) ([]LinkStat, error) {
	targets, err := s.redirects.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("list redirects: %w", err)
	}
	if len(targets) == 0 {
		return nil, ErrEmptyResult
	}

	out := make([]LinkStat, 0, len(targets))
	for _, t := range targets {
		count, err := s.hits.CountByRedirect(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("count hits: %w", err)
		}
		out = append(out, LinkStat{
			Item:      t.ItemIndex,
			Token:     t.Token,
			TargetURL: t.TargetURL,
			ShortURL:  s.issuer.ShortURL(t.Token),
			Clicks:    count,
		})
	}
	return out, nil
}

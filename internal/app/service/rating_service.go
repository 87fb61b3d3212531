package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
)

// RateInput is a validated-at-boundary rating request.
type RateInput struct {
	PostID  int64
	RaterID int64
	Action  model.RatingAction
}

// RatingService appends ratings to the store.
type RatingService struct {
	posts        repository.PostRepository
	ratings      repository.RatingRepository
	itemsPerPost int
	nowFunc      func() time.Time
}

// NewRatingService wires a rating service. now may be nil.
func NewRatingService(posts repository.PostRepository, ratings repository.RatingRepository, itemsPerPost int, now func() time.Time) *RatingService {
	if now == nil {
		now = time.Now
	}
	return &RatingService{posts: posts, ratings: ratings, itemsPerPost: itemsPerPost, nowFunc: now}
}

// Rate stores one rating. Item approvals are always positive and carry the
// item marker; whole-post reactions take the sentiment of their emoji.
func (s *RatingService) Rate(ctx context.Context, in RateInput) (*model.Rating, error) {
	if err := in.Action.Validate(s.itemsPerPost); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRating, err)
	}
	if _, err := s.posts.GetByID(ctx, in.PostID); err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, fmt.Errorf("%w: post %d does not exist", ErrInvalidIdentifier, in.PostID)
		}
		return nil, fmt.Errorf("load post: %w", err)
	}

	rating := &model.Rating{
		PostID:    in.PostID,
		RaterID:   in.RaterID,
		Kind:      in.Action.Kind,
		Timestamp: s.nowFunc().Unix(),
	}
	if in.Action.Kind == model.RatingKindItem {
		rating.ItemIndex = in.Action.Item
		rating.Emoji = model.ItemRatingMarker
		rating.Sentiment = model.SentimentPositive
	} else {
		rating.ItemIndex = model.WholePostItem
		rating.Emoji = in.Action.Emoji
		rating.Sentiment = model.SentimentOf(in.Action.Emoji)
	}

	if err := s.ratings.Create(ctx, rating); err != nil {
		return nil, fmt.Errorf("create rating: %w", err)
	}
	return rating, nil
}

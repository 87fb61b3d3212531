package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sifan077/clicktrail/internal/app/model"
	"github.com/sifan077/clicktrail/internal/app/repository"
	"go.uber.org/zap"
)

const maxURLLength = 2048

// PublishItem is one entry of a published post.
type PublishItem struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// PublishInput captures a publish event reported by the messaging channel.
type PublishInput struct {
	MessageRef int64         `json:"message_ref"`
	Items      []PublishItem `json:"items"`
}

// IssuedLink is the short link of one published item.
type IssuedLink struct {
	Item     int    `json:"item"`
	Title    string `json:"title"`
	Token    string `json:"token"`
	ShortURL string `json:"short_url"`
	Rate     string `json:"rate_callback"`
}

// PublishResult lists what the channel needs to render the post controls.
type PublishResult struct {
	PostID      int64        `json:"post_id"`
	MessageRef  int64        `json:"message_ref"`
	Links       []IssuedLink `json:"links"`
	PostRatings []string     `json:"post_rating_callbacks"`
}

// PublishService records posts and issues one redirect token per item.
// A post and all of its redirect targets are committed together.
type PublishService struct {
	posts        repository.PostRepository
	issuer       *TokenIssuer
	tx           repository.Transactor
	itemsPerPost int
	logger       *zap.Logger
	nowFunc      func() time.Time
}

// NewPublishService wires a publish service. tx and now may be nil; without
// a Transactor each write commits on its own.
func NewPublishService(posts repository.PostRepository, issuer *TokenIssuer, tx repository.Transactor, itemsPerPost int, logger *zap.Logger, now func() time.Time) *PublishService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &PublishService{
		posts:        posts,
		issuer:       issuer,
		tx:           tx,
		itemsPerPost: itemsPerPost,
		logger:       logger,
		nowFunc:      now,
	}
}

// Publish validates input, stores the post and issues its short links.
func (s *PublishService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	post := &model.Post{MessageRef: in.MessageRef, CreatedAt: s.nowFunc().Unix()}
	var links []IssuedLink
	err := s.withinTx(ctx, func(ctx context.Context) error {
		if err := s.posts.Create(ctx, post); err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		for i, item := range in.Items {
			idx := i + 1
			target, shortURL, err := s.issuer.Issue(ctx, post.ID, idx, strings.TrimSpace(item.URL))
			if err != nil {
				return fmt.Errorf("issue link for item %d: %w", idx, err)
			}
			links = append(links, IssuedLink{
				Item:     idx,
				Title:    item.Title,
				Token:    target.Token,
				ShortURL: shortURL,
				Rate:     model.RatingAction{Kind: model.RatingKindItem, Item: idx}.Callback(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &PublishResult{PostID: post.ID, MessageRef: post.MessageRef, Links: links}
	for _, emoji := range model.PostEmojis {
		result.PostRatings = append(result.PostRatings, model.RatingAction{Kind: model.RatingKindAll, Emoji: emoji}.Callback())
	}

	s.logger.Info("post published",
		zap.Int64("post_id", post.ID),
		zap.Int64("message_ref", post.MessageRef),
		zap.Int("items", len(result.Links)),
	)
	return result, nil
}

func (s *PublishService) withinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.WithinTransaction(ctx, fn)
}

func (s *PublishService) validate(in PublishInput) error {
	if len(in.Items) != s.itemsPerPost {
		return fmt.Errorf("%w: expected %d items, got %d", ErrInvalidPublish, s.itemsPerPost, len(in.Items))
	}
	for i, item := range in.Items {
		if err := validateTargetURL(item.URL); err != nil {
			return fmt.Errorf("%w: item %d: %v", ErrInvalidPublish, i+1, err)
		}
	}
	return nil
}

func validateTargetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxURLLength {
		return fmt.Errorf("url is empty or longer than %d characters", maxURLLength)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("url does not parse")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https")
	}
	if parsed.Host == "" {
		return fmt.Errorf("url has no host")
	}
	return nil
}

package repository

import (
	"context"
	"errors"

	"github.com/sifan077/clicktrail/internal/app/model"
	"gorm.io/gorm"
)

// ErrPostNotFound signals that the requested post does not exist.
var ErrPostNotFound = errors.New("post not found")

// PostRepository defines the data access contract for posts.
type PostRepository interface {
	Create(ctx context.Context, post *model.Post) error
	GetByID(ctx context.Context, id int64) (*model.Post, error)
	ListCreatedSince(ctx context.Context, since int64) ([]model.Post, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository returns a GORM-backed PostRepository.
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *model.Post) error {
	return conn(ctx, r.db).Create(post).Error
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	var post model.Post
	if err := conn(ctx, r.db).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListCreatedSince(ctx context.Context, since int64) ([]model.Post, error) {
	var posts []model.Post
	if err := conn(ctx, r.db).
		Where("created_at >= ?", since).
		Order("id ASC").
		Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

package repository

import (
	"context"

	"github.com/sifan077/clicktrail/internal/app/model"
	"gorm.io/gorm"
)

// RatingRepository defines the data access contract for ratings.
type RatingRepository interface {
	Create(ctx context.Context, rating *model.Rating) error
	CountBySentimentSince(ctx context.Context, since int64) (map[model.Sentiment]int64, error)
}

type ratingRepository struct {
	db *gorm.DB
}

// NewRatingRepository returns a GORM-backed RatingRepository.
func NewRatingRepository(db *gorm.DB) RatingRepository {
	return &ratingRepository{db: db}
}

func (r *ratingRepository) Create(ctx context.Context, rating *model.Rating) error {
	return r.db.WithContext(ctx).Create(rating).Error
}

func (r *ratingRepository) CountBySentimentSince(ctx context.Context, since int64) (map[model.Sentiment]int64, error) {
	var rows []struct {
		Sentiment model.Sentiment
		Count     int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.Rating{}).
		Select("sentiment, COUNT(*) AS count").
		Where("ts >= ?", since).
		Group("sentiment").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[model.Sentiment]int64, len(rows))
	for _, row := range rows {
		out[row.Sentiment] = row.Count
	}
	return out, nil
}

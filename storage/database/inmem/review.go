package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/cohort/core/review"
)

type reviewRepository struct {
	db *reviewTable
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db.review}
}

func (repo *reviewRepository) GetOrCreate(_ context.Context, key review.Key) (review.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if r, ok := repo.db.table[key]; ok {
		return *r, nil
	}
	now := time.Now().UTC()
	r := &review.Review{
		ID:         uuid.New().String(),
		BatchID:    key.BatchID,
		StudentID:  key.StudentID,
		WeekNumber: key.WeekNumber,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	repo.db.table[key] = r
	return *r, nil
}

func (repo *reviewRepository) UpdateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := review.Key{BatchID: r.BatchID, StudentID: r.StudentID, WeekNumber: r.WeekNumber}
	orig, ok := repo.db.table[key]
	if !ok || orig.ID != r.ID {
		return review.Review{}, review.ErrNotFound
	}
	orig.MentorFeedback = r.MentorFeedback
	orig.StudentFeedback = r.StudentFeedback
	orig.ReviewedBy = r.ReviewedBy
	orig.ReviewedAt = r.ReviewedAt
	orig.UpdatedAt = r.UpdatedAt
	return *orig, nil
}

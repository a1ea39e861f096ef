package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cohort/core/review"
)

const reviewColumns = `id, batch_id, student_id, week_number, mentor_feedback, student_feedback,
	reviewed_by, reviewed_at, created_at, updated_at`

type reviewRow struct {
	ID              string      `db:"id"`
	BatchID         string      `db:"batch_id"`
	StudentID       string      `db:"student_id"`
	WeekNumber      int         `db:"week_number"`
	MentorFeedback  string      `db:"mentor_feedback"`
	StudentFeedback string      `db:"student_feedback"`
	ReviewedBy      null.String `db:"reviewed_by"`
	ReviewedAt      null.Time   `db:"reviewed_at"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (r reviewRow) review() review.Review {
	return review.Review{
		ID:              r.ID,
		BatchID:         r.BatchID,
		StudentID:       r.StudentID,
		WeekNumber:      r.WeekNumber,
		MentorFeedback:  r.MentorFeedback,
		StudentFeedback: r.StudentFeedback,
		ReviewedBy:      r.ReviewedBy.String,
		ReviewedAt:      utcPtr(r.ReviewedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type reviewRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*reviewRepository)(nil) // interface compliance check

func NewReviewRepository(db *sqlx.DB) review.Repository {
	return &reviewRepository{db: db}
}

// GetOrCreate inserts the empty review unless it exists, then reads it back: concurrent first reads share one row.
func (repo *reviewRepository) GetOrCreate(ctx context.Context, key review.Key) (review.Review, error) {
	if !isUUID(key.BatchID) || !isUUID(key.StudentID) {
		return review.Review{}, review.ErrNotFound
	}
	now := time.Now().UTC()
	q := `INSERT INTO progress_review (id, batch_id, student_id, week_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (batch_id, student_id, week_number) DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, uuid.New().String(), key.BatchID, key.StudentID, key.WeekNumber, now); err != nil {
		return review.Review{}, errors.Wrap(err, "inserting review")
	}

	var row reviewRow
	q = `SELECT ` + reviewColumns + ` FROM progress_review WHERE batch_id = $1 AND student_id = $2 AND week_number = $3`
	if err := repo.db.GetContext(ctx, &row, q, key.BatchID, key.StudentID, key.WeekNumber); err != nil {
		return review.Review{}, trapNoRowsErr(err, "finding review")
	}
	return row.review(), nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, r review.Review) (review.Review, error) {
	if !isUUID(r.ID) {
		return review.Review{}, review.ErrNotFound
	}
	var row reviewRow
	q := `UPDATE progress_review
		SET mentor_feedback = $2, student_feedback = $3, reviewed_by = $4, reviewed_at = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + reviewColumns
	err := repo.db.GetContext(ctx, &row, q,
		r.ID, r.MentorFeedback, r.StudentFeedback,
		null.NewString(r.ReviewedBy, r.ReviewedBy != ""), null.TimeFromPtr(r.ReviewedAt), r.UpdatedAt.UTC())
	if err != nil {
		return review.Review{}, trapNoRowsErr(err, "updating review")
	}
	return row.review(), nil
}

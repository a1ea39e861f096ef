// Package review keeps the weekly progress reviews mentors write about the students of their batches.
package review

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/user"
)

var (
	ErrNotFound     = core.ErrNotFound
	ErrAccessDenied = core.ErrAccessDenied
)

type Review struct {
	ID              string     `json:"id"`
	BatchID         string     `json:"batch_id"`
	StudentID       string     `json:"student_id"`
	WeekNumber      int        `json:"week_number"`
	MentorFeedback  string     `json:"mentor_feedback,omitempty"` // never shown to the student
	StudentFeedback string     `json:"student_feedback"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"` // UTC
	UpdatedAt       time.Time  `json:"updated_at"` // UTC
}

// Key identifies the single review of a student for a week in a batch.
type Key struct {
	BatchID    string
	StudentID  string
	WeekNumber int
}

type Input struct {
	MentorFeedback  *string `json:"mentor_feedback"`
	StudentFeedback *string `json:"student_feedback"`
}

type Repository interface {
	// GetOrCreate returns the review of key, creating an empty one atomically when missing.
	GetOrCreate(ctx context.Context, key Key) (Review, error)
	UpdateReview(ctx context.Context, r Review) (Review, error)
}

type Service struct {
	repo  Repository
	graph *course.Graph
}

func NewService(repo Repository, graph *course.Graph) *Service {
	return &Service{repo: repo, graph: graph}
}

func (svc *Service) scope(ctx context.Context, key Key) (user.Scope, error) {
	if key.WeekNumber < 1 {
		return user.Scope{}, core.NewValidationError(nil, core.FieldError{Field: "week_number", Error: "week_number must be 1 or greater"})
	}
	b, err := svc.graph.GetBatch(ctx, key.BatchID)
	if err != nil {
		return user.Scope{}, errors.Wrap(err, "getting batch")
	}
	ids, err := svc.graph.Repository().BatchStudentIDs(ctx, b.ID)
	if err != nil {
		return user.Scope{}, errors.Wrap(err, "listing batch students")
	}
	if !core.NewStringSet(ids...).Has(key.StudentID) {
		return user.Scope{}, errors.Wrap(ErrNotFound, "student is not in the batch")
	}
	return user.Scope{
		CourseID:  b.CourseID,
		BatchID:   b.ID,
		MentorIDs: []string{b.MentorID},
		StudentID: key.StudentID,
	}, nil
}

// Get returns the review of key, creating it on first access.
// Students only see the feedback meant for them.
func (svc *Service) Get(ctx context.Context, actor user.User, key Key) (Review, error) {
	scope, err := svc.scope(ctx, key)
	if err != nil {
		return Review{}, err
	}
	if !actor.CanViewReview(scope) {
		return Review{}, ErrAccessDenied
	}
	r, err := svc.repo.GetOrCreate(ctx, key)
	if err != nil {
		return Review{}, errors.Wrap(err, "getting review")
	}
	if actor.ID == key.StudentID {
		r.MentorFeedback = ""
	}
	return r, nil
}

// Update writes the feedback set in in. Only the batch mentor may write reviews.
func (svc *Service) Update(ctx context.Context, actor user.User, key Key, in Input) (Review, error) {
	scope, err := svc.scope(ctx, key)
	if err != nil {
		return Review{}, err
	}
	if !actor.CanReview(scope) {
		return Review{}, ErrAccessDenied
	}
	r, err := svc.repo.GetOrCreate(ctx, key)
	if err != nil {
		return Review{}, errors.Wrap(err, "getting review")
	}

	if in.MentorFeedback != nil {
		r.MentorFeedback = core.CleanString(*in.MentorFeedback)
	}
	if in.StudentFeedback != nil {
		r.StudentFeedback = core.CleanString(*in.StudentFeedback)
	}
	now := time.Now().UTC()
	r.ReviewedBy = actor.ID
	r.ReviewedAt = &now
	r.UpdatedAt = now

	r, err = svc.repo.UpdateReview(ctx, r)
	return r, errors.Wrap(err, "updating review")
}

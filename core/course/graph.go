// Package course is the read view over the organisational graph: courses, their batches,
// the batch mentor and the batch students.
package course

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/user"
)

var ErrNotFound = core.ErrNotFound

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		CreateBatch(ctx context.Context, b Batch) (Batch, error)
		GetCourse(ctx context.Context, id string) (Course, error)
		GetBatch(ctx context.Context, id string) (Batch, error)
		// QueryBatches returns batches ordered by creation time.
		QueryBatches(ctx context.Context, filter BatchFilter) ([]Batch, error)
		BatchStudentIDs(ctx context.Context, batchID string) ([]string, error)
		// AddStudents returns the ids that were not members yet.
		AddStudents(ctx context.Context, batchID string, studentIDs []string) ([]string, error)
		// RemoveStudents returns the ids that were actually members.
		RemoveStudents(ctx context.Context, batchID string, studentIDs []string) ([]string, error)
		// MarkWelcomed flags the memberships of studentIDs as announced and returns the ids that were not flagged yet.
		// Removing a student clears the flag.
		MarkWelcomed(ctx context.Context, batchID string, studentIDs []string) ([]string, error)
	}

	Graph struct {
		repo  Repository
		users user.Repository
	}
)

func NewGraph(repo Repository, users user.Repository) *Graph {
	return &Graph{repo: repo, users: users}
}

// Repository exposes membership writes to the assignment resolver.
func (g *Graph) Repository() Repository { return g.repo }

func (g *Graph) GetCourse(ctx context.Context, id string) (Course, error) {
	return g.repo.GetCourse(ctx, id)
}

func (g *Graph) GetBatch(ctx context.Context, id string) (Batch, error) {
	return g.repo.GetBatch(ctx, id)
}

func (g *Graph) BatchesOfCourse(ctx context.Context, courseID string) ([]Batch, error) {
	return g.repo.QueryBatches(ctx, BatchFilter{CourseID: courseID})
}

func (g *Graph) BatchesOfStudent(ctx context.Context, studentID, courseID string) ([]Batch, error) {
	return g.repo.QueryBatches(ctx, BatchFilter{CourseID: courseID, StudentID: studentID})
}

func (g *Graph) BatchesOfMentor(ctx context.Context, mentorID string) ([]Batch, error) {
	return g.repo.QueryBatches(ctx, BatchFilter{MentorID: mentorID})
}

// StudentsOfBatch returns the batch members, restricted to approved active students when approvedOnly.
func (g *Graph) StudentsOfBatch(ctx context.Context, batchID string, approvedOnly bool) ([]user.User, error) {
	ids, err := g.repo.BatchStudentIDs(ctx, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "listing batch students")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	filter := &user.QueryFilter{IDs: ids, Roles: []string{user.RoleStudent}}
	if approvedOnly {
		yes := true
		filter.IsApproved = &yes
		filter.IsActive = &yes
	}
	return g.users.QueryUsers(ctx, filter)
}

// MentorOf returns nil when the batch has no mentor.
func (g *Graph) MentorOf(ctx context.Context, batchID string) (*user.User, error) {
	b, err := g.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if !b.HasMentor() {
		return nil, nil
	}
	m, err := g.users.GetUser(ctx, user.GetFilter{ID: b.MentorID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting batch mentor")
	}
	return &m, nil
}

// MentorsOfCourse returns the distinct mentor ids of every batch of the course.
func (g *Graph) MentorsOfCourse(ctx context.Context, courseID string) (core.StringSet, error) {
	batches, err := g.BatchesOfCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	mentors := core.NewStringSet()
	for _, b := range batches {
		mentors.Add(b.MentorID)
	}
	return mentors, nil
}

package task

import (
	"context"
	"time"
)

type Repository interface {
	// CreateTask stores t along with its initial audience.
	CreateTask(ctx context.Context, t Task, assignees []string) (Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	QueryTasks(ctx context.Context, filter Filter) ([]Task, error)

	// AddAssignees unions studentIDs into the audience of the task and returns the ids that were not in it yet.
	AddAssignees(ctx context.Context, taskID string, studentIDs []string) ([]string, error)
	AssigneeIDs(ctx context.Context, taskID string) ([]string, error)
	IsAssigned(ctx context.Context, taskID, studentID string) (bool, error)

	// CreateSubmission returns ErrDuplicateSubmission when the (task, student) pair already exists.
	CreateSubmission(ctx context.Context, s Submission) (Submission, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	FindSubmission(ctx context.Context, taskID, studentID string) (Submission, error)
	QuerySubmissions(ctx context.Context, query SubmissionQuery) ([]Submission, error)
	GradeSubmission(ctx context.Context, id string, marks float64, feedback, gradedBy string, gradedAt time.Time) (Submission, error)
}

package task

import (
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/user"
)

// Event kinds
const (
	KindCreated        = "task.created"
	KindStudentsJoined = "batch.students_joined"
	KindSubmitted      = "task.submitted"
	KindGraded         = "task.graded"
)

// Created is published once a task and its initial audience are stored.
type Created struct {
	Task     Task
	Audience []string
	Creator  user.User
}

// StudentsJoined is published once per membership, when approved students joined a batch and received its existing tasks.
type StudentsJoined struct {
	Batch      course.Batch
	StudentIDs []string
	// Assigned maps each student to the tasks newly added to their audience.
	Assigned map[string][]string
}

type Submitted struct {
	Task       Task
	Submission Submission
	Student    user.User
}

type Graded struct {
	Task       Task
	Submission Submission
	Grader     user.User
}

func (Created) Kind() string        { return KindCreated }
func (StudentsJoined) Kind() string { return KindStudentsJoined }
func (Submitted) Kind() string      { return KindSubmitted }
func (Graded) Kind() string         { return KindGraded }

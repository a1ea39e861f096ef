package inmemdb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/task"
)

type taskRepository struct {
	db *taskTable
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *DB) task.Repository {
	return &taskRepository{db: db.task}
}

func (repo *taskRepository) CreateTask(_ context.Context, t task.Task, assignees []string) (task.Task, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	repo.db.tasks[t.ID] = &t
	repo.db.assignees[t.ID] = core.NewStringSet(assignees...)
	return t, nil
}

func (repo *taskRepository) GetTask(_ context.Context, id string) (task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if t, ok := repo.db.tasks[id]; ok {
		return *t, nil
	}
	return task.Task{}, task.ErrNotFound
}

func (repo *taskRepository) QueryTasks(_ context.Context, filter task.Filter) ([]task.Task, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids core.StringSet
	if filter.IDs != nil {
		ids = core.NewStringSet(filter.IDs...)
	}
	tasks := make([]task.Task, 0)
	for _, t := range repo.db.tasks {
		switch {
		case ids != nil && !ids.Has(t.ID),
			filter.CourseID != "" && t.CourseID != filter.CourseID,
			filter.BatchID != "" && t.BatchID != filter.BatchID,
			filter.CourseWideOnly && !t.IsCourseWide(),
			filter.AssigneeID != "" && !repo.db.assignees[t.ID].Has(filter.AssigneeID):
			continue
		}
		tasks = append(tasks, *t)
	}
	task.SortTasks(tasks)
	return tasks, nil
}

func (repo *taskRepository) AddAssignees(_ context.Context, taskID string, studentIDs []string) ([]string, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	audience, ok := repo.db.assignees[taskID]
	if !ok {
		return nil, task.ErrNotFound
	}
	added := core.NewStringSet()
	for _, id := range studentIDs {
		if id != "" && !audience.Has(id) {
			audience.Add(id)
			added.Add(id)
		}
	}
	return added.Sorted(), nil
}

func (repo *taskRepository) AssigneeIDs(_ context.Context, taskID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	audience, ok := repo.db.assignees[taskID]
	if !ok {
		return nil, task.ErrNotFound
	}
	return audience.Sorted(), nil
}

func (repo *taskRepository) IsAssigned(_ context.Context, taskID, studentID string) (bool, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.db.assignees[taskID].Has(studentID), nil
}

func (repo *taskRepository) findSubmission(taskID, studentID string) (*task.Submission, bool) {
	for _, s := range repo.db.submissions {
		if s.TaskID == taskID && s.StudentID == studentID {
			return s, true
		}
	}
	return nil, false
}

func (repo *taskRepository) CreateSubmission(_ context.Context, s task.Submission) (task.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.tasks[s.TaskID]; !ok {
		return task.Submission{}, task.ErrNotFound
	}
	if _, exists := repo.findSubmission(s.TaskID, s.StudentID); exists {
		return task.Submission{}, task.ErrDuplicateSubmission
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.db.submissions[s.ID] = &s
	return s, nil
}

func (repo *taskRepository) GetSubmission(_ context.Context, id string) (task.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.submissions[id]; ok {
		return *s, nil
	}
	return task.Submission{}, task.ErrNotFound
}

func (repo *taskRepository) FindSubmission(_ context.Context, taskID, studentID string) (task.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.findSubmission(taskID, studentID); ok {
		return *s, nil
	}
	return task.Submission{}, task.ErrNotFound
}

func (repo *taskRepository) QuerySubmissions(_ context.Context, query task.SubmissionQuery) ([]task.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var ids, taskIDs core.StringSet
	if query.IDs != nil {
		ids = core.NewStringSet(query.IDs...)
	}
	if query.TaskIDs != nil {
		taskIDs = core.NewStringSet(query.TaskIDs...)
	}
	subs := make([]task.Submission, 0)
	for _, s := range repo.db.submissions {
		switch {
		case ids != nil && !ids.Has(s.ID),
			taskIDs != nil && !taskIDs.Has(s.TaskID),
			query.StudentID != "" && s.StudentID != query.StudentID,
			query.Graded != nil && s.IsGraded() != *query.Graded:
			continue
		}
		subs = append(subs, *s)
	}
	task.SortSubmissions(subs, query.Ordering)
	return subs, nil
}

func (repo *taskRepository) GradeSubmission(_ context.Context, id string, marks float64, feedback, gradedBy string, gradedAt time.Time) (task.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	s, ok := repo.db.submissions[id]
	if !ok {
		return task.Submission{}, task.ErrNotFound
	}
	s.Marks = &marks
	s.Feedback = feedback
	s.GradedBy = gradedBy
	s.GradedAt = &gradedAt
	return *s, nil
}

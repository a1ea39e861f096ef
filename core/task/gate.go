package task

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
)

const releaseDateLayout = "January 02, 2006 at 03:04 PM"

type LockState struct {
	Locked bool   `json:"is_locked"`
	Reason string `json:"lock_reason,omitempty"`
}

func unlocked() LockState { return LockState{} }

func locked(format string, args ...interface{}) LockState {
	return LockState{Locked: true, Reason: fmt.Sprintf(format, args...)}
}

// StudentTask is an assigned task as seen by its student.
type StudentTask struct {
	Task
	LockState
	Submission *Submission `json:"submission"`
}

// Gate computes the per student progression: within a course, a task opens once the previous one is graded with a passing score.
type Gate struct {
	repo Repository

	// Now is the clock scheduled releases are compared to.
	Now func() time.Time
}

func NewGate(repo Repository) *Gate {
	return &Gate{
		repo: repo,
		Now:  func() time.Time { return time.Now().UTC() },
	}
}

// lockStates computes the lock state of each task of a single course.
// tasks must be sorted by the progression order.
func lockStates(tasks []Task, subs map[string]Submission, now time.Time) []LockState {
	states := make([]LockState, len(tasks))
	for i := range tasks {
		states[i] = lockStateAt(tasks, i, subs, now)
	}
	return states
}

// lockStateAt only looks at the task itself and its predecessor.
func lockStateAt(tasks []Task, i int, subs map[string]Submission, now time.Time) LockState {
	t := tasks[i]
	if !t.IsReleasedAt(now) {
		return locked("Available from %s", t.ReleaseDate.UTC().Format(releaseDateLayout))
	}
	if i == 0 {
		return unlocked()
	}

	prev := tasks[i-1]
	sub, ok := subs[prev.ID]
	switch {
	case !ok:
		return locked("Complete '%s' first", prev.Title)
	case !sub.IsGraded():
		return locked("Waiting for '%s' to be graded", prev.Title)
	case !sub.Passed(prev.MaxMarks):
		return locked("Score at least %d%% in '%s' (current: %.1f%%)", PassPercentage, prev.Title, sub.Percentage(prev.MaxMarks))
	}
	return unlocked()
}

func (g *Gate) submissionsOf(ctx context.Context, studentID string, tasks []Task) (map[string]Submission, error) {
	subs := make(map[string]Submission, len(tasks))
	if len(tasks) == 0 {
		return subs, nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	list, err := g.repo.QuerySubmissions(ctx, SubmissionQuery{TaskIDs: ids, StudentID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	for _, s := range list {
		subs[s.TaskID] = s
	}
	return subs, nil
}

// ListForStudent returns every task assigned to the student grouped by course, in progression order.
func (g *Gate) ListForStudent(ctx context.Context, studentID string) ([]StudentTask, error) {
	tasks, err := g.repo.QueryTasks(ctx, Filter{AssigneeID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying assigned tasks")
	}
	subs, err := g.submissionsOf(ctx, studentID, tasks)
	if err != nil {
		return nil, err
	}

	byCourse := make(map[string][]Task)
	for _, t := range tasks {
		byCourse[t.CourseID] = append(byCourse[t.CourseID], t)
	}
	courseIDs := make([]string, 0, len(byCourse))
	for id := range byCourse {
		courseIDs = append(courseIDs, id)
	}
	sort.Strings(courseIDs)

	now := g.Now()
	out := make([]StudentTask, 0, len(tasks))
	for _, cid := range courseIDs {
		courseTasks := byCourse[cid]
		SortTasks(courseTasks)
		states := lockStates(courseTasks, subs, now)
		for i, t := range courseTasks {
			st := StudentTask{Task: t, LockState: states[i]}
			if s, ok := subs[t.ID]; ok {
				st.Submission = &s
			}
			out = append(out, st)
		}
	}
	return out, nil
}

// LockState returns the lock state of a task for the student it is assigned to.
func (g *Gate) LockState(ctx context.Context, studentID, taskID string) (LockState, error) {
	t, err := g.repo.GetTask(ctx, taskID)
	if err != nil {
		return LockState{}, errors.Wrap(err, "getting task")
	}
	assigned, err := g.repo.IsAssigned(ctx, t.ID, studentID)
	if err != nil {
		return LockState{}, errors.Wrap(err, "checking assignment")
	}
	if !assigned {
		return LockState{}, ErrNotAssigned
	}
	return g.lockStateOf(ctx, studentID, t)
}

func (g *Gate) lockStateOf(ctx context.Context, studentID string, t Task) (LockState, error) {
	tasks, err := g.repo.QueryTasks(ctx, Filter{CourseID: t.CourseID, AssigneeID: studentID})
	if err != nil {
		return LockState{}, errors.Wrap(err, "querying course tasks")
	}
	SortTasks(tasks)
	idx := -1
	for i := range tasks {
		if tasks[i].ID == t.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return LockState{}, ErrNotAssigned
	}

	window := tasks[:idx+1]
	if idx > 0 {
		window = tasks[idx-1 : idx+1]
	}
	subs, err := g.submissionsOf(ctx, studentID, window)
	if err != nil {
		return LockState{}, err
	}
	return lockStateAt(tasks, idx, subs, g.Now()), nil
}

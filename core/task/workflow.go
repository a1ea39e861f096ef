package task

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/user"
)

// Workflow takes submissions in and grades them.
type Workflow struct {
	repo  Repository
	gate  *Gate
	graph *course.Graph
	bus   *event.Bus
}

func NewWorkflow(repo Repository, gate *Gate, graph *course.Graph, bus *event.Bus) *Workflow {
	return &Workflow{repo: repo, gate: gate, graph: graph, bus: bus}
}

// Submit records the single submission of a student for an unlocked task assigned to them.
func (w *Workflow) Submit(ctx context.Context, student user.User, ns NewSubmission) (Submission, error) {
	ns.Clean()

	t, err := w.repo.GetTask(ctx, ns.TaskID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting task")
	}
	assigned, err := w.repo.IsAssigned(ctx, t.ID, student.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "checking assignment")
	}
	if !assigned {
		return Submission{}, ErrNotAssigned
	}
	switch _, err := w.repo.FindSubmission(ctx, t.ID, student.ID); errors.Cause(err) {
	case nil:
		return Submission{}, ErrDuplicateSubmission
	case ErrNotFound:
	default:
		return Submission{}, errors.Wrap(err, "finding submission")
	}
	if ns.IsEmpty() {
		return Submission{}, ErrEmptySubmission
	}
	state, err := w.gate.lockStateOf(ctx, student.ID, t)
	if err != nil {
		return Submission{}, err
	}
	if state.Locked {
		return Submission{}, &LockedError{Reason: state.Reason}
	}

	sub, err := w.repo.CreateSubmission(ctx, Submission{
		TaskID:      t.ID,
		StudentID:   student.ID,
		SubmittedAt: time.Now().UTC(),
		Text:        ns.Text,
		File:        ns.File,
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicateSubmission {
			return Submission{}, ErrDuplicateSubmission
		}
		return Submission{}, errors.Wrap(err, "creating submission")
	}

	w.bus.Publish(ctx, Submitted{Task: t, Submission: sub, Student: student})
	return sub, nil
}

// gradingScope gathers the mentors answerable for the submission of studentID on t:
// the batch mentor of a batch task, or the mentors of the student's batches in the course of a course-wide task.
func (w *Workflow) gradingScope(ctx context.Context, t Task, studentID string) (user.Scope, error) {
	scope := user.Scope{CourseID: t.CourseID, BatchID: t.BatchID, StudentID: studentID}
	if !t.IsCourseWide() {
		b, err := w.graph.GetBatch(ctx, t.BatchID)
		if err != nil {
			return scope, errors.Wrap(err, "getting batch")
		}
		scope.MentorIDs = []string{b.MentorID}
		return scope, nil
	}
	batches, err := w.graph.BatchesOfStudent(ctx, studentID, t.CourseID)
	if err != nil {
		return scope, errors.Wrap(err, "listing student batches")
	}
	for _, b := range batches {
		scope.MentorIDs = append(scope.MentorIDs, b.MentorID)
	}
	return scope, nil
}

// Grade sets the marks & feedback of a submission. Grading again overwrites the previous grade.
func (w *Workflow) Grade(ctx context.Context, grader user.User, submissionID string, gi GradeInput) (Submission, error) {
	sub, err := w.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	if err = gi.Validate(); err != nil {
		return Submission{}, err
	}
	t, err := w.repo.GetTask(ctx, sub.TaskID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting task")
	}
	if marks := *gi.Marks; !(marks >= 0 && marks <= t.MaxMarks) { // rejects NaN too
		return Submission{}, &OutOfRangeError{Max: t.MaxMarks}
	}

	scope, err := w.gradingScope(ctx, t, sub.StudentID)
	if err != nil {
		return Submission{}, err
	}
	if !grader.CanGrade(scope) {
		return Submission{}, ErrAccessDenied
	}

	graded, err := w.repo.GradeSubmission(ctx, sub.ID, *gi.Marks, gi.Feedback, grader.ID, time.Now().UTC())
	if err != nil {
		return Submission{}, errors.Wrap(err, "grading submission")
	}

	w.bus.Publish(ctx, Graded{Task: t, Submission: graded, Grader: grader})
	return graded, nil
}

// GetSubmission returns a submission to its student or to a user allowed to grade it.
func (w *Workflow) GetSubmission(ctx context.Context, actor user.User, id string) (Submission, error) {
	sub, err := w.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting submission")
	}
	if actor.ID == sub.StudentID {
		return sub, nil
	}
	t, err := w.repo.GetTask(ctx, sub.TaskID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting task")
	}
	scope, err := w.gradingScope(ctx, t, sub.StudentID)
	if err != nil {
		return Submission{}, err
	}
	if !actor.CanGrade(scope) {
		return Submission{}, ErrAccessDenied
	}
	return sub, nil
}

// ListSubmissions returns the submissions visible to actor: their own for students,
// those of the batches they mentor for mentors and all of them for admins.
func (w *Workflow) ListSubmissions(ctx context.Context, actor user.User, filter SubmissionFilter) ([]Submission, error) {
	if err := checkOrdering(filter.Ordering); err != nil {
		return nil, err
	}
	query := SubmissionQuery{Graded: filter.Graded, Ordering: filter.Ordering}

	taskFilter := Filter{BatchID: filter.BatchID}
	if filter.TaskID != "" {
		taskFilter.IDs = []string{filter.TaskID}
	}

	var mentored core.StringSet // students a mentor sees course-wide submissions of
	switch {
	case actor.IsAdmin() && actor.IsActive:
	case actor.IsStudent() && actor.IsActive:
		query.StudentID = actor.ID
	case actor.IsMentor() && actor.IsActive:
		batches, err := w.graph.BatchesOfMentor(ctx, actor.ID)
		if err != nil {
			return nil, errors.Wrap(err, "listing mentored batches")
		}
		taskIDs := core.NewStringSet()
		mentored = core.NewStringSet()
		courses := core.NewStringSet()
		for _, b := range batches {
			if filter.BatchID != "" && b.ID != filter.BatchID {
				continue
			}
			courses.Add(b.CourseID)
			students, err := w.graph.Repository().BatchStudentIDs(ctx, b.ID)
			if err != nil {
				return nil, errors.Wrap(err, "listing batch students")
			}
			mentored.Add(students...)

			tasks, err := w.repo.QueryTasks(ctx, Filter{IDs: taskFilter.IDs, BatchID: b.ID})
			if err != nil {
				return nil, errors.Wrap(err, "querying batch tasks")
			}
			for _, t := range tasks {
				taskIDs.Add(t.ID)
			}
		}
		for _, cid := range courses.Sorted() {
			tasks, err := w.repo.QueryTasks(ctx, Filter{IDs: taskFilter.IDs, CourseID: cid, CourseWideOnly: true})
			if err != nil {
				return nil, errors.Wrap(err, "querying course tasks")
			}
			for _, t := range tasks {
				taskIDs.Add(t.ID)
			}
		}
		if len(taskIDs) == 0 {
			return []Submission{}, nil
		}
		query.TaskIDs = taskIDs.Sorted()
	default:
		return nil, ErrAccessDenied
	}

	if query.TaskIDs == nil && (taskFilter.IDs != nil || taskFilter.BatchID != "") {
		tasks, err := w.repo.QueryTasks(ctx, taskFilter)
		if err != nil {
			return nil, errors.Wrap(err, "querying tasks")
		}
		if len(tasks) == 0 {
			return []Submission{}, nil
		}
		for _, t := range tasks {
			query.TaskIDs = append(query.TaskIDs, t.ID)
		}
	}

	subs, err := w.repo.QuerySubmissions(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	if mentored == nil {
		return subs, nil
	}

	courseWide := make(map[string]bool)
	filtered := make([]Submission, 0, len(subs))
	for _, s := range subs {
		cw, ok := courseWide[s.TaskID]
		if !ok {
			t, err := w.repo.GetTask(ctx, s.TaskID)
			if err != nil {
				return nil, errors.Wrap(err, "getting task")
			}
			cw = t.IsCourseWide()
			courseWide[s.TaskID] = cw
		}
		if !cw || mentored.Has(s.StudentID) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

func checkOrdering(ordering []core.DBOrdering) error {
	allowed := core.NewStringSet(SubmissionOrderingFields...)
	for _, ord := range ordering {
		if !allowed.Has(ord.Field) {
			return core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "invalid ordering field: " + ord.Field})
		}
	}
	return nil
}

// SortSubmissions orders subs in place following ordering, then by submission time (latest first).
func SortSubmissions(subs []Submission, ordering []core.DBOrdering) {
	sort.SliceStable(subs, func(i, j int) bool {
		a, b := subs[i], subs[j]
		for _, ord := range ordering {
			c := compareSubmissions(a, b, ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.After(b.SubmittedAt)
		}
		return a.ID < b.ID
	})
}

// compareSubmissions sorts missing values first.
func compareSubmissions(a, b Submission, field string) int {
	switch field {
	case "submitted_at":
		return compareTimes(&a.SubmittedAt, &b.SubmittedAt)
	case "graded_at":
		return compareTimes(a.GradedAt, b.GradedAt)
	case "marks_obtained":
		switch {
		case a.Marks == nil && b.Marks == nil:
			return 0
		case a.Marks == nil:
			return -1
		case b.Marks == nil:
			return 1
		case *a.Marks < *b.Marks:
			return -1
		case *a.Marks > *b.Marks:
			return 1
		}
	}
	return 0
}

func compareTimes(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return 0
}

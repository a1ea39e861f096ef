package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cohort/core/task"
)

const (
	taskColumns = `id, title, description, course_id, batch_id, task_type, week_number, task_order, max_marks,
		due_date, is_scheduled, release_date, created_by, created_at, updated_at`
	submissionColumns = `id, task_id, student_id, submitted_at, submission_text, submission_file,
		marks_obtained, feedback, graded_by, graded_at`

	// progression order
	taskOrdering = `week_number, task_order, created_at, id`
)

type taskRow struct {
	ID          string      `db:"id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	CourseID    string      `db:"course_id"`
	BatchID     null.String `db:"batch_id"`
	Type        string      `db:"task_type"`
	WeekNumber  int         `db:"week_number"`
	TaskOrder   int         `db:"task_order"`
	MaxMarks    float64     `db:"max_marks"`
	DueDate     null.Time   `db:"due_date"`
	IsScheduled bool        `db:"is_scheduled"`
	ReleaseDate null.Time   `db:"release_date"`
	CreatedBy   null.String `db:"created_by"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func newTaskRow(t task.Task) taskRow {
	return taskRow{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		CourseID:    t.CourseID,
		BatchID:     null.NewString(t.BatchID, t.BatchID != ""),
		Type:        t.Type,
		WeekNumber:  t.WeekNumber,
		TaskOrder:   t.TaskOrder,
		MaxMarks:    t.MaxMarks,
		DueDate:     null.TimeFromPtr(t.DueDate),
		IsScheduled: t.IsScheduled,
		ReleaseDate: null.TimeFromPtr(t.ReleaseDate),
		CreatedBy:   null.NewString(t.CreatedBy, t.CreatedBy != ""),
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func (r taskRow) task() task.Task {
	return task.Task{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		CourseID:    r.CourseID,
		BatchID:     r.BatchID.String,
		Type:        r.Type,
		WeekNumber:  r.WeekNumber,
		TaskOrder:   r.TaskOrder,
		MaxMarks:    r.MaxMarks,
		DueDate:     utcPtr(r.DueDate),
		IsScheduled: r.IsScheduled,
		ReleaseDate: utcPtr(r.ReleaseDate),
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type submissionRow struct {
	ID          string       `db:"id"`
	TaskID      string       `db:"task_id"`
	StudentID   string       `db:"student_id"`
	SubmittedAt time.Time    `db:"submitted_at"`
	Text        null.String  `db:"submission_text"`
	File        null.String  `db:"submission_file"`
	Marks       null.Float64 `db:"marks_obtained"`
	Feedback    null.String  `db:"feedback"`
	GradedBy    null.String  `db:"graded_by"`
	GradedAt    null.Time    `db:"graded_at"`
}

func (r submissionRow) submission() task.Submission {
	return task.Submission{
		ID:          r.ID,
		TaskID:      r.TaskID,
		StudentID:   r.StudentID,
		SubmittedAt: r.SubmittedAt.UTC(),
		Text:        r.Text.String,
		File:        r.File.String,
		Marks:       r.Marks.Ptr(),
		Feedback:    r.Feedback.String,
		GradedBy:    r.GradedBy.String,
		GradedAt:    utcPtr(r.GradedAt),
	}
}

type taskRepository struct {
	db *sqlx.DB
}

var _ task.Repository = (*taskRepository)(nil) // interface compliance check

func NewTaskRepository(db *sqlx.DB) task.Repository {
	return &taskRepository{db: db}
}

// CreateTask inserts the task and its audience in a single transaction.
func (repo *taskRepository) CreateTask(ctx context.Context, t task.Task, assignees []string) (task.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return task.Task{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO task (` + taskColumns + `) VALUES (
		:id, :title, :description, :course_id, :batch_id, :task_type, :week_number, :task_order, :max_marks,
		:due_date, :is_scheduled, :release_date, :created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, newTaskRow(t)); err != nil {
		return task.Task{}, errors.Wrap(err, "inserting task")
	}
	if len(assignees) > 0 {
		q = `INSERT INTO task_assignee (task_id, student_id)
			SELECT $1, s FROM UNNEST($2::uuid[]) s ON CONFLICT DO NOTHING`
		if _, err = tx.ExecContext(ctx, q, t.ID, pq.Array(validUUIDs(assignees))); err != nil {
			return task.Task{}, errors.Wrap(err, "inserting task assignees")
		}
	}
	if err = tx.Commit(); err != nil {
		return task.Task{}, errors.Wrap(err, "committing task")
	}
	return t, nil
}

func (repo *taskRepository) GetTask(ctx context.Context, id string) (task.Task, error) {
	if !isUUID(id) {
		return task.Task{}, task.ErrNotFound
	}
	var row taskRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+taskColumns+` FROM task WHERE id = $1`, id); err != nil {
		return task.Task{}, trapNoRowsErr(err, "finding task")
	}
	return row.task(), nil
}

func (repo *taskRepository) QueryTasks(ctx context.Context, filter task.Filter) ([]task.Task, error) {
	var w where
	for _, id := range []string{filter.CourseID, filter.BatchID, filter.AssigneeID} {
		if id != "" && !isUUID(id) {
			return []task.Task{}, nil
		}
	}
	if filter.IDs != nil {
		w.add("id = ANY(?)", pq.Array(validUUIDs(filter.IDs)))
	}
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.BatchID != "" {
		w.add("batch_id = ?", filter.BatchID)
	}
	if filter.CourseWideOnly {
		w.addRaw("batch_id IS NULL")
	}
	if filter.AssigneeID != "" {
		w.add("id IN (SELECT task_id FROM task_assignee WHERE student_id = ?)", filter.AssigneeID)
	}

	var rows []taskRow
	q := `SELECT ` + taskColumns + ` FROM task` + w.String() + ` ORDER BY ` + taskOrdering
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying tasks")
	}
	tasks := make([]task.Task, 0, len(rows))
	for _, r := range rows {
		tasks = append(tasks, r.task())
	}
	return tasks, nil
}

// AddAssignees is a set union: concurrent calls never drop nor duplicate a student.
func (repo *taskRepository) AddAssignees(ctx context.Context, taskID string, studentIDs []string) ([]string, error) {
	if _, err := repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	added := make([]string, 0)
	q := `INSERT INTO task_assignee (task_id, student_id)
		SELECT $1, s FROM UNNEST($2::uuid[]) s
		ON CONFLICT DO NOTHING
		RETURNING student_id`
	if err := repo.db.SelectContext(ctx, &added, q, taskID, pq.Array(validUUIDs(studentIDs))); err != nil {
		return nil, errors.Wrap(err, "adding task assignees")
	}
	return added, nil
}

func (repo *taskRepository) AssigneeIDs(ctx context.Context, taskID string) ([]string, error) {
	if _, err := repo.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	q := `SELECT student_id FROM task_assignee WHERE task_id = $1 ORDER BY student_id`
	if err := repo.db.SelectContext(ctx, &ids, q, taskID); err != nil {
		return nil, errors.Wrap(err, "listing task assignees")
	}
	return ids, nil
}

func (repo *taskRepository) IsAssigned(ctx context.Context, taskID, studentID string) (bool, error) {
	if !isUUID(taskID) || !isUUID(studentID) {
		return false, nil
	}
	var assigned bool
	q := `SELECT EXISTS (SELECT 1 FROM task_assignee WHERE task_id = $1 AND student_id = $2)`
	if err := repo.db.GetContext(ctx, &assigned, q, taskID, studentID); err != nil {
		return false, errors.Wrap(err, "checking task assignee")
	}
	return assigned, nil
}

// CreateSubmission relies on the (task_id, student_id) unique constraint: no row back means a duplicate.
func (repo *taskRepository) CreateSubmission(ctx context.Context, s task.Submission) (task.Submission, error) {
	if !isUUID(s.TaskID) {
		return task.Submission{}, task.ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	var row submissionRow
	q := `INSERT INTO task_submission (id, task_id, student_id, submitted_at, submission_text, submission_file)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (task_id, student_id) DO NOTHING
		RETURNING ` + submissionColumns
	err := repo.db.GetContext(ctx, &row, q,
		s.ID, s.TaskID, s.StudentID, s.SubmittedAt.UTC(),
		null.NewString(s.Text, s.Text != ""), null.NewString(s.File, s.File != ""))
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return task.Submission{}, task.ErrDuplicateSubmission
		}
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code.Name() == "foreign_key_violation" {
			return task.Submission{}, task.ErrNotFound
		}
		return task.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return row.submission(), nil
}

func (repo *taskRepository) GetSubmission(ctx context.Context, id string) (task.Submission, error) {
	if !isUUID(id) {
		return task.Submission{}, task.ErrNotFound
	}
	var row submissionRow
	q := `SELECT ` + submissionColumns + ` FROM task_submission WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return task.Submission{}, trapNoRowsErr(err, "finding submission")
	}
	return row.submission(), nil
}

func (repo *taskRepository) FindSubmission(ctx context.Context, taskID, studentID string) (task.Submission, error) {
	if !isUUID(taskID) || !isUUID(studentID) {
		return task.Submission{}, task.ErrNotFound
	}
	var row submissionRow
	q := `SELECT ` + submissionColumns + ` FROM task_submission WHERE task_id = $1 AND student_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, taskID, studentID); err != nil {
		return task.Submission{}, trapNoRowsErr(err, "finding submission")
	}
	return row.submission(), nil
}

func (repo *taskRepository) QuerySubmissions(ctx context.Context, query task.SubmissionQuery) ([]task.Submission, error) {
	var w where
	if query.StudentID != "" && !isUUID(query.StudentID) {
		return []task.Submission{}, nil
	}
	if query.IDs != nil {
		w.add("id = ANY(?)", pq.Array(validUUIDs(query.IDs)))
	}
	if query.TaskIDs != nil {
		w.add("task_id = ANY(?)", pq.Array(validUUIDs(query.TaskIDs)))
	}
	if query.StudentID != "" {
		w.add("student_id = ?", query.StudentID)
	}
	if query.Graded != nil {
		if *query.Graded {
			w.addRaw("marks_obtained IS NOT NULL")
		} else {
			w.addRaw("marks_obtained IS NULL")
		}
	}

	var rows []submissionRow
	q := `SELECT ` + submissionColumns + ` FROM task_submission` + w.String() +
		orderBy(query.Ordering, "submitted_at DESC, id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]task.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}

func (repo *taskRepository) GradeSubmission(ctx context.Context, id string, marks float64, feedback, gradedBy string, gradedAt time.Time) (task.Submission, error) {
	if !isUUID(id) {
		return task.Submission{}, task.ErrNotFound
	}
	var row submissionRow
	q := `UPDATE task_submission
		SET marks_obtained = $2, feedback = $3, graded_by = $4, graded_at = $5
		WHERE id = $1
		RETURNING ` + submissionColumns
	err := repo.db.GetContext(ctx, &row, q,
		id, marks, null.NewString(feedback, feedback != ""), null.NewString(gradedBy, gradedBy != ""), gradedAt.UTC())
	if err != nil {
		return task.Submission{}, trapNoRowsErr(err, "grading submission")
	}
	return row.submission(), nil
}

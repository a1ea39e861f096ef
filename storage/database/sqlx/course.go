package sqlxrepos

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cohort/core/course"
)

const (
	courseColumns = `id, name, code, weeks, created_at`
	batchColumns  = `id, name, course_id, mentor_id, max_students, created_at`
)

type courseRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Code      string    `db:"code"`
	Weeks     []byte    `db:"weeks"`
	CreatedAt time.Time `db:"created_at"`
}

func (r courseRow) course() (course.Course, error) {
	c := course.Course{ID: r.ID, Name: r.Name, Code: r.Code, CreatedAt: r.CreatedAt.UTC()}
	if len(r.Weeks) > 0 {
		if err := json.Unmarshal(r.Weeks, &c.Weeks); err != nil {
			return course.Course{}, errors.Wrap(err, "decoding course weeks")
		}
	}
	return c, nil
}

type batchRow struct {
	ID          string      `db:"id"`
	Name        string      `db:"name"`
	CourseID    string      `db:"course_id"`
	MentorID    null.String `db:"mentor_id"`
	MaxStudents int         `db:"max_students"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r batchRow) batch() course.Batch {
	return course.Batch{
		ID:          r.ID,
		Name:        r.Name,
		CourseID:    r.CourseID,
		MentorID:    r.MentorID.String,
		MaxStudents: r.MaxStudents,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	weeks := c.Weeks
	if weeks == nil {
		weeks = []course.Week{}
	}
	raw, err := json.Marshal(weeks)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "encoding course weeks")
	}
	q := `INSERT INTO course (` + courseColumns + `) VALUES ($1, $2, $3, $4, $5)`
	if _, err = repo.db.ExecContext(ctx, q, c.ID, c.Name, c.Code, raw, c.CreatedAt); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) CreateBatch(ctx context.Context, b course.Batch) (course.Batch, error) {
	if !isUUID(b.CourseID) {
		return course.Batch{}, course.ErrNotFound
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.MaxStudents == 0 {
		b.MaxStudents = course.DefaultMaxStudents
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO batch (` + batchColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	mentor := null.NewString(b.MentorID, b.MentorID != "")
	if _, err := repo.db.ExecContext(ctx, q, b.ID, b.Name, b.CourseID, mentor, b.MaxStudents, b.CreatedAt); err != nil {
		return course.Batch{}, errors.Wrap(err, "inserting batch")
	}
	return b, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if !isUUID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+courseColumns+` FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, "finding course")
	}
	return row.course()
}

func (repo *courseRepository) GetBatch(ctx context.Context, id string) (course.Batch, error) {
	if !isUUID(id) {
		return course.Batch{}, course.ErrNotFound
	}
	var row batchRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+batchColumns+` FROM batch WHERE id = $1`, id); err != nil {
		return course.Batch{}, trapNoRowsErr(err, "finding batch")
	}
	return row.batch(), nil
}

func (repo *courseRepository) QueryBatches(ctx context.Context, filter course.BatchFilter) ([]course.Batch, error) {
	var w where
	for _, id := range []string{filter.CourseID, filter.MentorID, filter.StudentID} {
		if id != "" && !isUUID(id) {
			return []course.Batch{}, nil
		}
	}
	if filter.CourseID != "" {
		w.add("course_id = ?", filter.CourseID)
	}
	if filter.MentorID != "" {
		w.add("mentor_id = ?", filter.MentorID)
	}
	if filter.StudentID != "" {
		w.add("id IN (SELECT batch_id FROM batch_student WHERE student_id = ?)", filter.StudentID)
	}

	var rows []batchRow
	q := `SELECT ` + batchColumns + ` FROM batch` + w.String() + ` ORDER BY created_at, id`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	batches := make([]course.Batch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, r.batch())
	}
	return batches, nil
}

func (repo *courseRepository) batchExists(ctx context.Context, batchID string) error {
	if !isUUID(batchID) {
		return course.ErrNotFound
	}
	var exists bool
	if err := repo.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM batch WHERE id = $1)`, batchID); err != nil {
		return errors.Wrap(err, "checking batch")
	}
	if !exists {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) BatchStudentIDs(ctx context.Context, batchID string) ([]string, error) {
	if err := repo.batchExists(ctx, batchID); err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	q := `SELECT student_id FROM batch_student WHERE batch_id = $1 ORDER BY student_id`
	if err := repo.db.SelectContext(ctx, &ids, q, batchID); err != nil {
		return nil, errors.Wrap(err, "listing batch students")
	}
	return ids, nil
}

func (repo *courseRepository) AddStudents(ctx context.Context, batchID string, studentIDs []string) ([]string, error) {
	if err := repo.batchExists(ctx, batchID); err != nil {
		return nil, err
	}
	added := make([]string, 0)
	q := `INSERT INTO batch_student (batch_id, student_id)
		SELECT $1, s FROM UNNEST($2::uuid[]) s
		ON CONFLICT DO NOTHING
		RETURNING student_id`
	if err := repo.db.SelectContext(ctx, &added, q, batchID, pq.Array(validUUIDs(studentIDs))); err != nil {
		return nil, errors.Wrap(err, "adding batch students")
	}
	return added, nil
}

func (repo *courseRepository) RemoveStudents(ctx context.Context, batchID string, studentIDs []string) ([]string, error) {
	if err := repo.batchExists(ctx, batchID); err != nil {
		return nil, err
	}
	removed := make([]string, 0)
	q := `DELETE FROM batch_student WHERE batch_id = $1 AND student_id = ANY($2) RETURNING student_id`
	if err := repo.db.SelectContext(ctx, &removed, q, batchID, pq.Array(validUUIDs(studentIDs))); err != nil {
		return nil, errors.Wrap(err, "removing batch students")
	}
	return removed, nil
}

func (repo *courseRepository) MarkWelcomed(ctx context.Context, batchID string, studentIDs []string) ([]string, error) {
	if err := repo.batchExists(ctx, batchID); err != nil {
		return nil, err
	}
	marked := make([]string, 0)
	q := `UPDATE batch_student SET welcomed_at = NOW()
		WHERE batch_id = $1 AND student_id = ANY($2) AND welcomed_at IS NULL
		RETURNING student_id`
	if err := repo.db.SelectContext(ctx, &marked, q, batchID, pq.Array(validUUIDs(studentIDs))); err != nil {
		return nil, errors.Wrap(err, "marking welcomed students")
	}
	sort.Strings(marked)
	return marked, nil
}

package task

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/cohort/core"
)

// Task types
const (
	TypeCourse = "course"
	TypeBatch  = "batch"
)

// Submission statuses
const (
	StatusSubmitted = "submitted"
	StatusGraded    = "graded"
)

const (
	DefaultMaxMarks   = 100.0
	DefaultWeekNumber = 1

	// PassPercentage is the minimum score on a task unlocking the next one.
	PassPercentage = 70
)

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	CourseID    string     `json:"course_id"`
	BatchID     string     `json:"batch_id,omitempty"` // empty for course-wide tasks
	Type        string     `json:"task_type"`
	WeekNumber  int        `json:"week_number"`
	TaskOrder   int        `json:"task_order"`
	MaxMarks    float64    `json:"max_marks"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	IsScheduled bool       `json:"is_scheduled"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

func (t Task) IsCourseWide() bool { return t.BatchID == "" }

// IsReleasedAt reports whether a scheduled task is visible at now.
func (t Task) IsReleasedAt(now time.Time) bool {
	return !t.IsScheduled || t.ReleaseDate == nil || !t.ReleaseDate.After(now)
}

// Before is the progression order: week, order within the week, creation time then id.
func (t Task) Before(o Task) bool {
	if t.WeekNumber != o.WeekNumber {
		return t.WeekNumber < o.WeekNumber
	}
	if t.TaskOrder != o.TaskOrder {
		return t.TaskOrder < o.TaskOrder
	}
	if !t.CreatedAt.Equal(o.CreatedAt) {
		return t.CreatedAt.Before(o.CreatedAt)
	}
	return t.ID < o.ID
}

func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Before(tasks[j]) })
}

// NewTask contains information needed to create a new Task.
type NewTask struct {
	Title       string     `json:"title" validate:"required,notblank,max=200"`
	Description string     `json:"description"`
	CourseID    string     `json:"course_id" validate:"required"`
	BatchID     string     `json:"batch_id"`
	Type        string     `json:"task_type" validate:"required,oneof=course batch"`
	WeekNumber  int        `json:"week_number" validate:"gte=1"`
	TaskOrder   int        `json:"task_order" validate:"gte=0"`
	MaxMarks    float64    `json:"max_marks" validate:"gt=0"`
	DueDate     *time.Time `json:"due_date"`
	IsScheduled bool       `json:"is_scheduled"`
	ReleaseDate *time.Time `json:"release_date"`
	StudentIDs  []string   `json:"assigned_to"` // explicit roster of a batch task
}

// Clean trims the input and fills the defaults.
func (nt *NewTask) Clean() {
	nt.Title = core.CleanString(nt.Title)
	nt.Description = strings.TrimSpace(nt.Description)
	nt.CourseID = core.CleanString(nt.CourseID)
	nt.BatchID = core.CleanString(nt.BatchID)
	nt.Type = core.CleanString(nt.Type, true /* lower */)
	if nt.Type == "" {
		nt.Type = TypeCourse
		if nt.BatchID != "" {
			nt.Type = TypeBatch
		}
	}
	if nt.WeekNumber == 0 {
		nt.WeekNumber = DefaultWeekNumber
	}
	if nt.MaxMarks == 0 {
		nt.MaxMarks = DefaultMaxMarks
	}
	if nt.DueDate != nil {
		d := nt.DueDate.UTC()
		nt.DueDate = &d
	}
	if nt.ReleaseDate != nil {
		d := nt.ReleaseDate.UTC()
		nt.ReleaseDate = &d
	}
}

func (nt *NewTask) Validate() error {
	nt.Clean()
	return core.Validate.Struct(nt)
}

// Filter applies AND operation on its set fields.
type Filter struct {
	IDs            []string
	CourseID       string
	BatchID        string
	CourseWideOnly bool
	AssigneeID     string
}

type Submission struct {
	ID          string     `json:"id"`
	TaskID      string     `json:"task_id"`
	StudentID   string     `json:"student_id"`
	SubmittedAt time.Time  `json:"submitted_at"` // UTC
	Text        string     `json:"submission_text,omitempty"`
	File        string     `json:"submission_file,omitempty"` // opaque handle of the file store
	Marks       *float64   `json:"marks_obtained"`
	Feedback    string     `json:"feedback,omitempty"`
	GradedBy    string     `json:"graded_by,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

func (s Submission) IsGraded() bool { return s.Marks != nil }

func (s Submission) Status() string {
	if s.IsGraded() {
		return StatusGraded
	}
	return StatusSubmitted
}

// MarshalJSON adds the derived status to the submission fields.
func (s Submission) MarshalJSON() ([]byte, error) {
	type submission Submission
	return json.Marshal(struct {
		submission
		Status string `json:"status"`
	}{submission(s), s.Status()})
}

// Passed reports whether the graded submission reaches PassPercentage of maxMarks.
func (s Submission) Passed(maxMarks float64) bool {
	return s.IsGraded() && *s.Marks*100 >= PassPercentage*maxMarks
}

func (s Submission) Percentage(maxMarks float64) float64 {
	if !s.IsGraded() || maxMarks <= 0 {
		return 0
	}
	return *s.Marks / maxMarks * 100
}

// NewSubmission contains what a student hands in for a task.
type NewSubmission struct {
	TaskID string `json:"task_id"`
	Text   string `json:"submission_text"`
	File   string `json:"submission_file"`
}

func (ns *NewSubmission) Clean() {
	ns.TaskID = core.CleanString(ns.TaskID)
	ns.Text = strings.TrimSpace(ns.Text)
	ns.File = core.CleanString(ns.File)
}

func (ns NewSubmission) IsEmpty() bool { return ns.Text == "" && ns.File == "" }

type GradeInput struct {
	Marks    *float64 `json:"marks_obtained" validate:"required"`
	Feedback string   `json:"feedback"`
}

func (gi *GradeInput) Validate() error {
	gi.Feedback = strings.TrimSpace(gi.Feedback)
	return core.Validate.Struct(gi)
}

// SubmissionFilter applies AND operation on its set fields.
type SubmissionFilter struct {
	TaskID   string `query:"task"`
	BatchID  string `query:"batch"`
	Graded   *bool  `query:"graded"`
	Ordering []core.DBOrdering
}

// SubmissionQuery is the storage level filter of submissions.
type SubmissionQuery struct {
	IDs       []string
	TaskIDs   []string
	StudentID string
	Graded    *bool
	Ordering  []core.DBOrdering // defaults to submitted_at DESC
}

// SubmissionOrderingFields are the fields submissions may be ordered by.
var SubmissionOrderingFields = []string{"submitted_at", "graded_at", "marks_obtained"}

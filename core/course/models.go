package course

import "time"

// DefaultMaxStudents is the soft cap of a batch membership.
const DefaultMaxStudents = 30

type Week struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

type Course struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	Weeks     []Week    `json:"weeks"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

type Batch struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CourseID    string    `json:"course_id"`
	MentorID    string    `json:"mentor_id,omitempty"` // empty when the batch has no mentor
	MaxStudents int       `json:"max_students"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

func (b Batch) HasMentor() bool { return b.MentorID != "" }

// BatchFilter applies AND operation on its set fields.
type BatchFilter struct {
	CourseID  string
	MentorID  string
	StudentID string
}

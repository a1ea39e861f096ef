package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) CreateBatch(_ context.Context, b course.Batch) (course.Batch, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[b.CourseID]; !ok {
		return course.Batch{}, course.ErrNotFound
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.MaxStudents == 0 {
		b.MaxStudents = course.DefaultMaxStudents
	}
	repo.db.batches[b.ID] = &b
	repo.db.students[b.ID] = core.NewStringSet()
	repo.db.welcomed[b.ID] = core.NewStringSet()
	return b, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) GetBatch(_ context.Context, id string) (course.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if b, ok := repo.db.batches[id]; ok {
		return *b, nil
	}
	return course.Batch{}, course.ErrNotFound
}

func (repo *courseRepository) QueryBatches(_ context.Context, filter course.BatchFilter) ([]course.Batch, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	batches := make([]course.Batch, 0)
	for _, b := range repo.db.batches {
		if filter.CourseID != "" && b.CourseID != filter.CourseID {
			continue
		}
		if filter.MentorID != "" && b.MentorID != filter.MentorID {
			continue
		}
		if filter.StudentID != "" && !repo.db.students[b.ID].Has(filter.StudentID) {
			continue
		}
		batches = append(batches, *b)
	}
	sort.Slice(batches, func(i, j int) bool {
		if !batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
			return batches[i].CreatedAt.Before(batches[j].CreatedAt)
		}
		return batches[i].ID < batches[j].ID
	})
	return batches, nil
}

func (repo *courseRepository) BatchStudentIDs(_ context.Context, batchID string) ([]string, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	members, ok := repo.db.students[batchID]
	if !ok {
		return nil, course.ErrNotFound
	}
	return members.Sorted(), nil
}

func (repo *courseRepository) AddStudents(_ context.Context, batchID string, studentIDs []string) ([]string, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	members, ok := repo.db.students[batchID]
	if !ok {
		return nil, course.ErrNotFound
	}
	added := core.NewStringSet()
	for _, id := range studentIDs {
		if id != "" && !members.Has(id) {
			members.Add(id)
			added.Add(id)
		}
	}
	return added.Sorted(), nil
}

func (repo *courseRepository) RemoveStudents(_ context.Context, batchID string, studentIDs []string) ([]string, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	members, ok := repo.db.students[batchID]
	if !ok {
		return nil, course.ErrNotFound
	}
	removed := core.NewStringSet()
	for _, id := range studentIDs {
		if members.Has(id) {
			members.Remove(id)
			repo.db.welcomed[batchID].Remove(id)
			removed.Add(id)
		}
	}
	return removed.Sorted(), nil
}

func (repo *courseRepository) MarkWelcomed(_ context.Context, batchID string, studentIDs []string) ([]string, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	members, ok := repo.db.students[batchID]
	if !ok {
		return nil, course.ErrNotFound
	}
	welcomed := repo.db.welcomed[batchID]
	marked := core.NewStringSet()
	for _, id := range studentIDs {
		if members.Has(id) && !welcomed.Has(id) {
			welcomed.Add(id)
			marked.Add(id)
		}
	}
	return marked.Sorted(), nil
}

package task

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/user"
)

// Resolver owns task audiences: it computes them on creation and grows them as batches gain students.
// Audiences only ever grow; removing a student from a batch leaves their assignments in place.
type Resolver struct {
	repo   Repository
	graph  *course.Graph
	users  user.Repository
	locker core.Locker
	bus    *event.Bus
	logger core.Logger
}

func NewResolver(
	repo Repository,
	graph *course.Graph,
	users user.Repository,
	locker core.Locker,
	bus *event.Bus,
	logger core.Logger,
) *Resolver {
	return &Resolver{
		repo:   repo,
		graph:  graph,
		users:  users,
		locker: locker,
		bus:    bus,
		logger: logger,
	}
}

// ResolveInitialAudience returns the approved students a new task applies to.
// Callers mutating the audience must hold the locks of the batches it reads from.
func (r *Resolver) ResolveInitialAudience(ctx context.Context, nt NewTask) ([]string, error) {
	audience := core.NewStringSet()

	if nt.Type == TypeCourse {
		batches, err := r.graph.BatchesOfCourse(ctx, nt.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "listing course batches")
		}
		for _, b := range batches {
			students, err := r.graph.StudentsOfBatch(ctx, b.ID, true /* approvedOnly */)
			if err != nil {
				return nil, errors.Wrap(err, "listing batch students")
			}
			for _, s := range students {
				audience.Add(s.ID)
			}
		}
		return audience.Sorted(), nil
	}

	students, err := r.graph.StudentsOfBatch(ctx, nt.BatchID, true /* approvedOnly */)
	if err != nil {
		return nil, errors.Wrap(err, "listing batch students")
	}
	members := core.NewStringSet()
	for _, s := range students {
		members.Add(s.ID)
	}
	if len(nt.StudentIDs) == 0 {
		audience = members
	} else {
		for _, id := range nt.StudentIDs {
			if members.Has(id) {
				audience.Add(id)
			}
		}
	}

	if len(audience) == 0 {
		return nil, ErrEmptyAudience
	}
	return audience.Sorted(), nil
}

func (r *Resolver) lockBatches(ctx context.Context, batchIDs ...string) (func(), error) {
	keys := make([]string, 0, len(batchIDs))
	for _, id := range batchIDs {
		keys = append(keys, core.BatchLockKey(id))
	}
	release, err := r.locker.Lock(ctx, keys...)
	return release, errors.Wrap(err, "locking batches")
}

// CreateTask validates nt, resolves its audience and stores both atomically with respect to membership changes.
func (r *Resolver) CreateTask(ctx context.Context, actor user.User, nt NewTask) (Task, error) {
	if err := nt.Validate(); err != nil {
		return Task{}, err
	}

	if _, err := r.graph.GetCourse(ctx, nt.CourseID); err != nil {
		return Task{}, errors.Wrap(err, "getting course")
	}

	scope := user.Scope{CourseID: nt.CourseID, BatchID: nt.BatchID}
	var lockIDs []string
	if nt.Type == TypeBatch {
		b, err := r.graph.GetBatch(ctx, nt.BatchID)
		if err != nil {
			return Task{}, errors.Wrap(err, "getting batch")
		}
		if b.CourseID != nt.CourseID {
			return Task{}, errors.Wrap(ErrNotFound, "batch does not belong to the course")
		}
		scope.MentorIDs = []string{b.MentorID}
		lockIDs = []string{b.ID}
	} else {
		batches, err := r.graph.BatchesOfCourse(ctx, nt.CourseID)
		if err != nil {
			return Task{}, errors.Wrap(err, "listing course batches")
		}
		for _, b := range batches {
			lockIDs = append(lockIDs, b.ID)
			scope.MentorIDs = append(scope.MentorIDs, b.MentorID)
		}
	}
	if !actor.CanCreateTask(scope) {
		return Task{}, ErrAccessDenied
	}

	release, err := r.lockBatches(ctx, lockIDs...)
	if err != nil {
		return Task{}, err
	}
	audience, err := r.ResolveInitialAudience(ctx, nt)
	if err != nil {
		release()
		return Task{}, err
	}

	now := time.Now().UTC()
	t, err := r.repo.CreateTask(ctx, Task{
		Title:       nt.Title,
		Description: nt.Description,
		CourseID:    nt.CourseID,
		BatchID:     nt.BatchID,
		Type:        nt.Type,
		WeekNumber:  nt.WeekNumber,
		TaskOrder:   nt.TaskOrder,
		MaxMarks:    nt.MaxMarks,
		DueDate:     nt.DueDate,
		IsScheduled: nt.IsScheduled,
		ReleaseDate: nt.ReleaseDate,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, audience)
	release()
	if err != nil {
		return Task{}, errors.Wrap(err, "creating task")
	}

	r.bus.Publish(ctx, Created{Task: t, Audience: audience, Creator: actor})
	return t, nil
}

// OnBatchMembershipChanged assigns the existing batch tasks & course-wide tasks to the approved students just added to the batch.
// It is idempotent: students already in an audience are left untouched and a student is announced once per membership.
func (r *Resolver) OnBatchMembershipChanged(ctx context.Context, batchID string, addedStudentIDs []string) error {
	b, err := r.graph.GetBatch(ctx, batchID)
	if err != nil {
		return errors.Wrap(err, "getting batch")
	}

	release, err := r.lockBatches(ctx, batchID)
	if err != nil {
		return err
	}
	joined, err := r.assignExistingTasks(ctx, b, addedStudentIDs)
	release()
	if err != nil {
		return err
	}

	if joined != nil {
		r.bus.Publish(ctx, *joined)
	}
	return nil
}

// assignExistingTasks must be called under the batch lock.
func (r *Resolver) assignExistingTasks(ctx context.Context, b course.Batch, addedStudentIDs []string) (*StudentsJoined, error) {
	if len(addedStudentIDs) == 0 {
		return nil, nil
	}

	members, err := r.graph.StudentsOfBatch(ctx, b.ID, true /* approvedOnly */)
	if err != nil {
		return nil, errors.Wrap(err, "listing batch students")
	}
	memberIDs := core.NewStringSet()
	for _, s := range members {
		memberIDs.Add(s.ID)
	}
	eligible := core.NewStringSet()
	for _, id := range addedStudentIDs {
		if memberIDs.Has(id) {
			eligible.Add(id)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	studentIDs := eligible.Sorted()

	batchTasks, err := r.repo.QueryTasks(ctx, Filter{BatchID: b.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying batch tasks")
	}
	courseTasks, err := r.repo.QueryTasks(ctx, Filter{CourseID: b.CourseID, CourseWideOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "querying course tasks")
	}

	assigned := make(map[string][]string, len(studentIDs))
	for _, t := range append(batchTasks, courseTasks...) {
		added, err := r.repo.AddAssignees(ctx, t.ID, studentIDs)
		if err != nil {
			return nil, errors.Wrapf(err, "assigning task %s", t.ID)
		}
		for _, id := range added {
			assigned[id] = append(assigned[id], t.ID)
		}
	}

	newcomers, err := r.graph.Repository().MarkWelcomed(ctx, b.ID, studentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "marking welcomed students")
	}
	if len(newcomers) == 0 {
		return nil, nil
	}
	return &StudentsJoined{Batch: b, StudentIDs: newcomers, Assigned: assigned}, nil
}

func (r *Resolver) checkEnrollment(ctx context.Context, actor user.User, batchID string, studentIDs []string) (course.Batch, []string, error) {
	if !actor.IsAdmin() || !actor.IsActive {
		return course.Batch{}, nil, ErrAccessDenied
	}
	b, err := r.graph.GetBatch(ctx, batchID)
	if err != nil {
		return course.Batch{}, nil, errors.Wrap(err, "getting batch")
	}
	ids := core.NewStringSet(studentIDs...).Sorted()
	if len(ids) == 0 {
		return course.Batch{}, nil, core.NewValidationError(nil, core.FieldError{Field: "student_ids", Error: "this field is required"})
	}
	return b, ids, nil
}

// EnrollStudents adds approved students to a batch and assigns them its existing tasks.
func (r *Resolver) EnrollStudents(ctx context.Context, actor user.User, batchID string, studentIDs []string) ([]string, error) {
	b, ids, err := r.checkEnrollment(ctx, actor, batchID, studentIDs)
	if err != nil {
		return nil, err
	}

	yes := true
	students, err := r.users.QueryUsers(ctx, &user.QueryFilter{
		IDs:        ids,
		Roles:      []string{user.RoleStudent},
		IsApproved: &yes,
		IsActive:   &yes,
	})
	if err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	found := core.NewStringSet()
	for _, s := range students {
		found.Add(s.ID)
	}
	for _, id := range ids {
		if !found.Has(id) {
			return nil, errors.Wrapf(ErrNotFound, "approved student %s", id)
		}
	}

	release, err := r.lockBatches(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	added, err := r.graph.Repository().AddStudents(ctx, b.ID, ids)
	if err != nil {
		release()
		return nil, errors.Wrap(err, "adding students")
	}
	joined, err := r.assignExistingTasks(ctx, b, added)
	if err == nil {
		r.warnOverCapacity(ctx, b)
	}
	release()
	if err != nil {
		return nil, err
	}

	if joined != nil {
		r.bus.Publish(ctx, *joined)
	}
	return added, nil
}

func (r *Resolver) warnOverCapacity(ctx context.Context, b course.Batch) {
	if b.MaxStudents <= 0 {
		return
	}
	ids, err := r.graph.Repository().BatchStudentIDs(ctx, b.ID)
	if err != nil {
		r.logger.Error("counting batch students", err)
		return
	}
	if len(ids) > b.MaxStudents {
		r.logger.Warn(fmt.Sprintf("batch %s has %d students, above its capacity of %d", b.Name, len(ids), b.MaxStudents))
	}
}

// UnenrollStudents removes students from a batch. Their task assignments are kept.
func (r *Resolver) UnenrollStudents(ctx context.Context, actor user.User, batchID string, studentIDs []string) ([]string, error) {
	b, ids, err := r.checkEnrollment(ctx, actor, batchID, studentIDs)
	if err != nil {
		return nil, err
	}

	release, err := r.lockBatches(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	removed, err := r.graph.Repository().RemoveStudents(ctx, b.ID, ids)
	return removed, errors.Wrap(err, "removing students")
}

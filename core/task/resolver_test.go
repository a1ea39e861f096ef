package task_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	"github.com/trezcool/cohort/tests"
)

func assignees(t *testing.T, env *testutil.Env, taskID string) []string {
	t.Helper()
	ids, err := env.TaskRepo.AssigneeIDs(context.Background(), taskID)
	require.NoError(t, err)
	return ids
}

func ids(users ...user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestResolver_CreateTask_courseWide(t *testing.T) {
	env := testutil.NewEnv(t)

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	admin2 := testutil.CreateAdmin(t, env.UserRepo, "admin2")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	b := testutil.CreateStudent(t, env.UserRepo, "b")
	c := testutil.CreateStudent(t, env.UserRepo, "c")
	pending := testutil.CreateUser(t, env.UserRepo, "Pending", "pending", user.RoleStudent, false)
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, a, b, pending)
	testutil.CreateBatch(t, env.CourseRepo, crs, "Y", "", c, a)

	tsk := testutil.CreateTask(t, env, admin, task.NewTask{Title: "T", CourseID: crs.ID})

	assert.Equal(t, task.TypeCourse, tsk.Type)
	assert.ElementsMatch(t, ids(a, b, c), assignees(t, env, tsk.ID))

	for _, s := range []user.User{a, b, c} {
		notifs := testutil.NotificationsOfType(t, env, s.ID, notification.TypeTaskCreated)
		if assert.Len(t, notifs, 1, s.Username) {
			assert.Equal(t, "New task 'T' has been assigned", notifs[0].Message)
			assert.Equal(t, "/student/tasks/"+tsk.ID, notifs[0].Link)
			assert.Equal(t, admin.ID, notifs[0].SenderID)
		}
	}
	for _, u := range []user.User{pending, admin, admin2, mentor} {
		assert.Empty(t, testutil.Notifications(t, env, u.ID), u.Username)
	}
}

func TestResolver_CreateTask_courseWithoutStudents(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")

	tsk := testutil.CreateTask(t, env, admin, task.NewTask{Title: "T", CourseID: crs.ID})
	assert.Empty(t, assignees(t, env, tsk.ID))
}

func TestResolver_CreateTask_batch(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	other := testutil.CreateMentor(t, env.UserRepo, "other")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	b := testutil.CreateStudent(t, env.UserRepo, "b")
	stranger := testutil.CreateStudent(t, env.UserRepo, "stranger")
	pending := testutil.CreateUser(t, env.UserRepo, "Pending", "pending", user.RoleStudent, false)
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	crs2 := testutil.CreateCourse(t, env.CourseRepo, "Rust", "RS101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, a, b, pending)
	empty := testutil.CreateBatch(t, env.CourseRepo, crs, "E", mentor.ID, pending)

	t.Run("whole batch by admin", func(t *testing.T) {
		tsk := testutil.CreateTask(t, env, admin, task.NewTask{Title: "T1", CourseID: crs.ID, BatchID: x.ID})
		assert.Equal(t, task.TypeBatch, tsk.Type)
		assert.ElementsMatch(t, ids(a, b), assignees(t, env, tsk.ID))
		assert.Len(t, testutil.NotificationsOfType(t, env, mentor.ID, notification.TypeTaskCreated), 1)
	})

	t.Run("roster by mentor", func(t *testing.T) {
		tsk := testutil.CreateTask(t, env, mentor, task.NewTask{
			Title:      "T2",
			CourseID:   crs.ID,
			BatchID:    x.ID,
			StudentIDs: []string{b.ID, stranger.ID, pending.ID},
		})
		assert.Equal(t, []string{b.ID}, assignees(t, env, tsk.ID))
		assert.Len(t, testutil.NotificationsOfType(t, env, admin.ID, notification.TypeTaskCreated), 1)
		assert.Len(t, testutil.NotificationsOfType(t, env, a.ID, notification.TypeTaskCreated), 1, "a is not on the roster")
	})

	tests := []struct {
		name    string
		actor   user.User
		nt      task.NewTask
		wantErr error
	}{
		{
			name:    "roster without eligible student",
			actor:   mentor,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID, BatchID: x.ID, StudentIDs: []string{stranger.ID}},
			wantErr: task.ErrEmptyAudience,
		},
		{
			name:    "batch without approved student",
			actor:   admin,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID, BatchID: empty.ID},
			wantErr: task.ErrEmptyAudience,
		},
		{
			name:    "mentor of another batch",
			actor:   other,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID, BatchID: x.ID},
			wantErr: task.ErrAccessDenied,
		},
		{
			name:    "mentor creating a course-wide task",
			actor:   mentor,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID},
			wantErr: task.ErrAccessDenied,
		},
		{
			name:    "student",
			actor:   a,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID, BatchID: x.ID},
			wantErr: task.ErrAccessDenied,
		},
		{
			name:    "batch of another course",
			actor:   admin,
			nt:      task.NewTask{Title: "T", CourseID: crs2.ID, BatchID: x.ID},
			wantErr: task.ErrNotFound,
		},
		{
			name:    "unknown course",
			actor:   admin,
			nt:      task.NewTask{Title: "T", CourseID: "nope"},
			wantErr: task.ErrNotFound,
		},
		{
			name:    "unknown batch",
			actor:   admin,
			nt:      task.NewTask{Title: "T", CourseID: crs.ID, BatchID: "nope"},
			wantErr: task.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := env.TaskRepo.QueryTasks(ctx, task.Filter{})
			require.NoError(t, err)

			_, err = env.Resolver.CreateTask(ctx, tt.actor, tt.nt)
			assert.Equal(t, tt.wantErr, errors.Cause(err))

			after, err := env.TaskRepo.QueryTasks(ctx, task.Filter{})
			require.NoError(t, err)
			assert.Len(t, after, len(before), "task must not be created")
		})
	}
}

func TestResolver_CreateTask_validation(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")

	tests := []struct {
		name      string
		nt        task.NewTask
		wantField string
	}{
		{name: "blank title", nt: task.NewTask{Title: "   ", CourseID: crs.ID}, wantField: "title"},
		{name: "no course", nt: task.NewTask{Title: "T"}, wantField: "course_id"},
		{name: "batch type without batch", nt: task.NewTask{Title: "T", CourseID: crs.ID, Type: task.TypeBatch}, wantField: "batch_id"},
		{name: "course type with batch", nt: task.NewTask{Title: "T", CourseID: crs.ID, Type: task.TypeCourse, BatchID: "b"}, wantField: "batch_id"},
		{name: "unknown type", nt: task.NewTask{Title: "T", CourseID: crs.ID, Type: "quiz"}, wantField: "task_type"},
		{name: "negative max marks", nt: task.NewTask{Title: "T", CourseID: crs.ID, MaxMarks: -1}, wantField: "max_marks"},
		{name: "scheduled without date", nt: task.NewTask{Title: "T", CourseID: crs.ID, IsScheduled: true}, wantField: "release_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Resolver.CreateTask(context.Background(), admin, tt.nt)
			require.Error(t, err)
			assert.Contains(t, fmt.Sprint(err), tt.wantField)
		})
	}
}

// A student joining after tasks exist receives them all, without a task_created notification.
func TestResolver_EnrollStudents_lateJoiner(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	j := testutil.CreateStudent(t, env.UserRepo, "j")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, a)

	for i := 1; i <= 3; i++ {
		testutil.CreateTask(t, env, mentor, task.NewTask{Title: fmt.Sprintf("T%d", i), CourseID: crs.ID, BatchID: x.ID, TaskOrder: i})
	}

	added, err := env.Resolver.EnrollStudents(ctx, admin, x.ID, []string{j.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{j.ID}, added)

	tasks, err := env.Gate.ListForStudent(ctx, j.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i, st := range tasks {
		assert.Equal(t, fmt.Sprintf("T%d", i+1), st.Title)
	}

	assert.Empty(t, testutil.NotificationsOfType(t, env, j.ID, notification.TypeTaskCreated))
	joined := testutil.NotificationsOfType(t, env, j.ID, notification.TypeBatchAssigned)
	if assert.Len(t, joined, 1) {
		assert.Equal(t, "You have been added to batch 'X'", joined[0].Message)
		assert.Equal(t, "/student/tasks", joined[0].Link)
	}
}

func TestResolver_EnrollStudents_errors(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	pending := testutil.CreateUser(t, env.UserRepo, "Pending", "pending", user.RoleStudent, false)
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID)

	tests := []struct {
		name    string
		actor   user.User
		batchID string
		ids     []string
		wantErr error
	}{
		{name: "mentor", actor: mentor, batchID: x.ID, ids: []string{a.ID}, wantErr: task.ErrAccessDenied},
		{name: "unknown batch", actor: admin, batchID: "nope", ids: []string{a.ID}, wantErr: task.ErrNotFound},
		{name: "unapproved student", actor: admin, batchID: x.ID, ids: []string{pending.ID}, wantErr: task.ErrNotFound},
		{name: "mentor as student", actor: admin, batchID: x.ID, ids: []string{mentor.ID}, wantErr: task.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.Resolver.EnrollStudents(ctx, tt.actor, tt.batchID, tt.ids)
			assert.Equal(t, tt.wantErr, errors.Cause(err))
		})
	}

	_, err := env.Resolver.EnrollStudents(ctx, admin, x.ID, nil)
	assert.Error(t, err)

	members, err := env.CourseRepo.BatchStudentIDs(ctx, x.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestResolver_EnrollStudents_overCapacity(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", "")

	students := make([]string, 0, 31)
	for i := 0; i < 31; i++ {
		students = append(students, testutil.CreateStudent(t, env.UserRepo, fmt.Sprintf("s%02d", i)).ID)
	}
	added, err := env.Resolver.EnrollStudents(ctx, admin, x.ID, students)
	require.NoError(t, err)
	assert.Len(t, added, 31)
	assert.Len(t, env.Logger.Entries("WARN"), 1)
}

func TestResolver_OnBatchMembershipChanged_idempotent(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	j := testutil.CreateStudent(t, env.UserRepo, "j")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, a)

	courseTask := testutil.CreateTask(t, env, admin, task.NewTask{Title: "C", CourseID: crs.ID})
	batchTask := testutil.CreateTask(t, env, mentor, task.NewTask{Title: "B", CourseID: crs.ID, BatchID: x.ID})

	_, err := env.CourseRepo.AddStudents(ctx, x.ID, []string{j.ID})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, env.Resolver.OnBatchMembershipChanged(ctx, x.ID, []string{j.ID}))
		assert.Equal(t, sortedIDs(a, j), assignees(t, env, courseTask.ID))
		assert.Equal(t, sortedIDs(a, j), assignees(t, env, batchTask.ID))
	}
	assert.Len(t, testutil.NotificationsOfType(t, env, j.ID, notification.TypeBatchAssigned), 1)

	// students outside the batch are ignored
	stranger := testutil.CreateStudent(t, env.UserRepo, "stranger")
	require.NoError(t, env.Resolver.OnBatchMembershipChanged(ctx, x.ID, []string{stranger.ID}))
	assert.NotContains(t, assignees(t, env, courseTask.ID), stranger.ID)
}

// sortedIDs returns the sorted ids of two users.
func sortedIDs(u1, u2 user.User) []string {
	if u1.ID < u2.ID {
		return []string{u1.ID, u2.ID}
	}
	return []string{u2.ID, u1.ID}
}

func TestResolver_batchWithoutTasks(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID)

	t.Run("enroll", func(t *testing.T) {
		s := testutil.CreateStudent(t, env.UserRepo, "enrolled")
		_, err := env.Resolver.EnrollStudents(ctx, admin, x.ID, []string{s.ID})
		require.NoError(t, err)
		assert.Len(t, testutil.NotificationsOfType(t, env, s.ID, notification.TypeBatchAssigned), 1)
	})

	t.Run("membership hook", func(t *testing.T) {
		s := testutil.CreateStudent(t, env.UserRepo, "hooked")
		_, err := env.CourseRepo.AddStudents(ctx, x.ID, []string{s.ID})
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			require.NoError(t, env.Resolver.OnBatchMembershipChanged(ctx, x.ID, []string{s.ID}))
		}
		assert.Len(t, testutil.NotificationsOfType(t, env, s.ID, notification.TypeBatchAssigned), 1)
	})

	t.Run("rejoin", func(t *testing.T) {
		s := testutil.CreateStudent(t, env.UserRepo, "rejoined")
		_, err := env.Resolver.EnrollStudents(ctx, admin, x.ID, []string{s.ID})
		require.NoError(t, err)
		_, err = env.Resolver.UnenrollStudents(ctx, admin, x.ID, []string{s.ID})
		require.NoError(t, err)
		_, err = env.Resolver.EnrollStudents(ctx, admin, x.ID, []string{s.ID})
		require.NoError(t, err)
		assert.Len(t, testutil.NotificationsOfType(t, env, s.ID, notification.TypeBatchAssigned), 2)
	})
}

func TestResolver_UnenrollStudents_keepsAssignments(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, a)
	tsk := testutil.CreateTask(t, env, mentor, task.NewTask{Title: "B", CourseID: crs.ID, BatchID: x.ID})

	removed, err := env.Resolver.UnenrollStudents(ctx, admin, x.ID, []string{a.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, removed)

	members, err := env.CourseRepo.BatchStudentIDs(ctx, x.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, []string{a.ID}, assignees(t, env, tsk.ID))

	tasks, err := env.Gate.ListForStudent(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

// Concurrent joins & task creations never lose a student from an audience.
func TestResolver_concurrentMembershipAndCreation(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	seed := testutil.CreateStudent(t, env.UserRepo, "seed")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, seed)
	y := testutil.CreateBatch(t, env.CourseRepo, crs, "Y", "")

	const n = 20
	students := make([]user.User, n)
	for i := range students {
		students[i] = testutil.CreateStudent(t, env.UserRepo, fmt.Sprintf("s%02d", i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(s user.User, batchID string) {
			defer wg.Done()
			if _, err := env.Resolver.EnrollStudents(ctx, admin, batchID, []string{s.ID}); err != nil {
				errs <- err
			}
		}(students[i], []string{x.ID, y.ID}[i%2])
		go func(i int) {
			defer wg.Done()
			nt := task.NewTask{Title: fmt.Sprintf("C%02d", i), CourseID: crs.ID}
			if i%2 == 0 {
				nt = task.NewTask{Title: fmt.Sprintf("B%02d", i), CourseID: crs.ID, BatchID: x.ID}
			}
			if _, err := env.Resolver.CreateTask(ctx, admin, nt); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	tasks, err := env.TaskRepo.QueryTasks(ctx, task.Filter{})
	require.NoError(t, err)
	require.Len(t, tasks, n)
	for _, tsk := range tasks {
		audience := assignees(t, env, tsk.ID)
		for i, s := range students {
			if tsk.IsCourseWide() || i%2 == 0 {
				assert.Contains(t, audience, s.ID, "task %s lost student %s", tsk.Title, s.Username)
			}
		}
	}
}

package notification_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	"github.com/trezcool/cohort/tests"
)

type graphFixture struct {
	env            *testutil.Env
	admin1, admin2 user.User
	mx, my         user.User
	sx, sy         user.User
	courseTask     task.Task
	batchTask      task.Task
	orphanTask     task.Task // batch task of a batch without mentor
}

func newGraphFixture(t *testing.T) graphFixture {
	env := testutil.NewEnv(t)
	f := graphFixture{
		env:    env,
		admin1: testutil.CreateAdmin(t, env.UserRepo, "admin1"),
		admin2: testutil.CreateAdmin(t, env.UserRepo, "admin2"),
		mx:     testutil.CreateMentor(t, env.UserRepo, "mx"),
		my:     testutil.CreateMentor(t, env.UserRepo, "my"),
		sx:     testutil.CreateStudent(t, env.UserRepo, "sx"),
		sy:     testutil.CreateStudent(t, env.UserRepo, "sy"),
	}
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", f.mx.ID, f.sx)
	testutil.CreateBatch(t, env.CourseRepo, crs, "Y", f.my.ID, f.sy)
	z := testutil.CreateBatch(t, env.CourseRepo, crs, "Z", "", f.sy)

	f.courseTask = testutil.CreateTask(t, env, f.admin1, task.NewTask{Title: "C", CourseID: crs.ID})
	f.batchTask = testutil.CreateTask(t, env, f.admin1, task.NewTask{Title: "B", CourseID: crs.ID, BatchID: x.ID})
	f.orphanTask = testutil.CreateTask(t, env, f.admin1, task.NewTask{Title: "O", CourseID: crs.ID, BatchID: z.ID})
	return f
}

func TestRouter_ResolveRecipients(t *testing.T) {
	f := newGraphFixture(t)

	tests := []struct {
		name    string
		trig    notification.Trigger
		wantIDs []string
	}{
		{
			name:    "submission of a batch task",
			trig:    notification.Trigger{Type: notification.TypeTaskSubmitted, Task: f.batchTask, StudentID: f.sx.ID},
			wantIDs: []string{f.mx.ID, f.admin1.ID, f.admin2.ID},
		},
		{
			name:    "submission of a course-wide task",
			trig:    notification.Trigger{Type: notification.TypeTaskSubmitted, Task: f.courseTask, StudentID: f.sx.ID},
			wantIDs: []string{f.mx.ID, f.my.ID, f.admin1.ID, f.admin2.ID},
		},
		{
			name:    "submission of a batch task without mentor",
			trig:    notification.Trigger{Type: notification.TypeTaskSubmitted, Task: f.orphanTask, StudentID: f.sy.ID},
			wantIDs: []string{f.admin1.ID, f.admin2.ID},
		},
		{
			name:    "grade",
			trig:    notification.Trigger{Type: notification.TypeTaskGraded, Task: f.batchTask, StudentID: f.sx.ID},
			wantIDs: []string{f.sx.ID},
		},
		{
			name: "course-wide task by an admin",
			trig: notification.Trigger{
				Type: notification.TypeTaskCreated, Task: f.courseTask, Creator: f.admin1, StudentIDs: []string{f.sx.ID, f.sy.ID},
			},
			wantIDs: []string{f.sx.ID, f.sy.ID},
		},
		{
			name: "batch task by an admin",
			trig: notification.Trigger{
				Type: notification.TypeTaskCreated, Task: f.batchTask, Creator: f.admin1, StudentIDs: []string{f.sx.ID},
			},
			wantIDs: []string{f.sx.ID, f.mx.ID},
		},
		{
			name: "batch task by its mentor",
			trig: notification.Trigger{
				Type: notification.TypeTaskCreated, Task: f.batchTask, Creator: f.mx, StudentIDs: []string{f.sx.ID},
			},
			wantIDs: []string{f.sx.ID, f.admin1.ID, f.admin2.ID},
		},
		{
			name:    "batch joined",
			trig:    notification.Trigger{Type: notification.TypeBatchAssigned, StudentIDs: []string{f.sx.ID, f.sy.ID}},
			wantIDs: []string{f.sx.ID, f.sy.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.env.Router.ResolveRecipients(context.Background(), tt.trig)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.wantIDs, got.Sorted())
		})
	}

	_, err := f.env.Router.ResolveRecipients(context.Background(), notification.Trigger{Type: notification.TypeCourseUpdated})
	assert.Error(t, err)
}

func TestRouter_ResolveRecipients_inactiveAdmin(t *testing.T) {
	f := newGraphFixture(t)
	ctx := context.Background()

	inactive, err := f.env.UserRepo.CreateUser(ctx, user.User{
		Name: "Gone", Username: "gone", Email: "gone@test.cd", Role: user.RoleAdmin, IsApproved: true, CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := f.env.Router.ResolveRecipients(ctx, notification.Trigger{Type: notification.TypeTaskSubmitted, Task: f.batchTask})
	require.NoError(t, err)
	assert.False(t, got.Has(inactive.ID))
}

func TestRouter_Dispatch(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	b := testutil.CreateStudent(t, env.UserRepo, "b")

	t.Run("sender excluded", func(t *testing.T) {
		notifs, err := env.Router.Dispatch(ctx, notification.Dispatch{
			Type:       notification.TypeTaskGraded,
			SenderID:   a.ID,
			Recipients: core.NewStringSet(a.ID, b.ID),
			Title:      "title",
			Message:    "msg",
		})
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, b.ID, notifs[0].RecipientID)
		assert.Equal(t, a.ID, notifs[0].SenderID)
		assert.False(t, notifs[0].IsRead)
		assert.NotEmpty(t, notifs[0].ID)
		assert.Empty(t, testutil.Notifications(t, env, a.ID))
	})

	t.Run("only the sender", func(t *testing.T) {
		env.Mail.Reset()
		notifs, err := env.Router.Dispatch(ctx, notification.Dispatch{
			Type:       notification.TypeTaskGraded,
			SenderID:   a.ID,
			Recipients: core.NewStringSet(a.ID),
		})
		require.NoError(t, err)
		assert.Empty(t, notifs)
		assert.Empty(t, env.Mail.SentMessages())
	})

	t.Run("empty recipients", func(t *testing.T) {
		notifs, err := env.Router.Dispatch(ctx, notification.Dispatch{Type: notification.TypeTaskGraded})
		require.NoError(t, err)
		assert.Empty(t, notifs)
	})

	t.Run("long title", func(t *testing.T) {
		notifs, err := env.Router.Dispatch(ctx, notification.Dispatch{
			Type:       notification.TypeTaskGraded,
			Recipients: core.NewStringSet(b.ID),
			Title:      strings.Repeat("é", notification.MaxTitleLength+10),
		})
		require.NoError(t, err)
		require.Len(t, notifs, 1)
		assert.Equal(t, strings.Repeat("é", notification.MaxTitleLength), notifs[0].Title)
	})
}

// The longest valid task title still fits the task_graded title.
func TestRouter_taskGraded_longTitle(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	s := testutil.CreateStudent(t, env.UserRepo, "s")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, s)

	title := strings.Repeat("t", 200)
	tsk := testutil.CreateTask(t, env, mentor, task.NewTask{Title: title, CourseID: crs.ID, BatchID: x.ID})
	sub := testutil.Submit(t, env, s, tsk.ID)
	marks := 80.0
	_, err := env.Workflow.Grade(ctx, mentor, sub.ID, task.GradeInput{Marks: &marks})
	require.NoError(t, err)

	graded := testutil.NotificationsOfType(t, env, s.ID, notification.TypeTaskGraded)
	require.Len(t, graded, 1)
	assert.Equal(t, "Task Graded: "+title, graded[0].Title)
	assert.LessOrEqual(t, len([]rune(graded[0].Title)), notification.MaxTitleLength)
}

// A student in two batches of the course is told once about a course-wide task.
func TestRouter_taskCreated_deduplicated(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	s := testutil.CreateStudent(t, env.UserRepo, "s")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	testutil.CreateBatch(t, env.CourseRepo, crs, "X", "", s)
	testutil.CreateBatch(t, env.CourseRepo, crs, "Y", "", s)

	testutil.CreateTask(t, env, admin, task.NewTask{Title: "C", CourseID: crs.ID})
	assert.Len(t, testutil.NotificationsOfType(t, env, s.ID, notification.TypeTaskCreated), 1)
}

// Notifications are emailed to their recipients.
func TestMailer(t *testing.T) {
	env := testutil.NewEnv(t)
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	s := testutil.CreateStudent(t, env.UserRepo, "s")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	x := testutil.CreateBatch(t, env.CourseRepo, crs, "X", mentor.ID, s)
	tsk := testutil.CreateTask(t, env, mentor, task.NewTask{Title: "T1", CourseID: crs.ID, BatchID: x.ID})

	var toStudent *core.EmailMessage
	for _, msg := range env.Mail.SentMessages() {
		msg := msg
		if len(msg.To) == 1 && msg.To[0].Address == s.Email {
			toStudent = &msg
		}
	}
	require.NotNil(t, toStudent, "no email sent to the student")
	assert.Equal(t, "New Task Assigned", toStudent.Subject)
	assert.Contains(t, toStudent.TextContent, "Hi Student s,")
	assert.Contains(t, toStudent.TextContent, "New task 'T1' has been assigned")
	assert.Contains(t, toStudent.TextContent, env.Conf.FrontendBaseURL+"/student/tasks/"+tsk.ID)
	assert.Contains(t, toStudent.HTMLContent, "<p>New task &#39;T1&#39; has been assigned</p>")
}

func TestInbox(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a := testutil.CreateStudent(t, env.UserRepo, "a")
	b := testutil.CreateStudent(t, env.UserRepo, "b")

	for _, msg := range []string{"one", "two", "three"} {
		_, err := env.Router.Dispatch(ctx, notification.Dispatch{
			Type:       notification.TypeBatchAssigned,
			Recipients: core.NewStringSet(a.ID, b.ID),
			Title:      msg,
			Message:    msg,
		})
		require.NoError(t, err)
	}

	notifs, err := env.Inbox.List(ctx, a.ID, false)
	require.NoError(t, err)
	require.Len(t, notifs, 3)

	cnt, err := env.Inbox.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cnt)

	read, err := env.Inbox.MarkRead(ctx, a.ID, notifs[0].ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)

	unread, err := env.Inbox.List(ctx, a.ID, true)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	// notifications of somebody else cannot be touched
	_, err = env.Inbox.MarkRead(ctx, b.ID, notifs[1].ID)
	assert.Equal(t, notification.ErrNotFound, errors.Cause(err))

	cnt, err = env.Inbox.MarkAllRead(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)

	cnt, err = env.Inbox.UnreadCount(ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	cnt, err = env.Inbox.UnreadCount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, cnt)
}

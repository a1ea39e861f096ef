// Package testutil holds the fixtures shared by the package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/review"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
	"github.com/trezcool/cohort/services/email"
	"github.com/trezcool/cohort/storage/database/inmem"
)

// LogEntry is one call recorded by Logger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records every call instead of printing.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

var _ core.Logger = (*Logger)(nil)

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// Entries returns the calls made at level (all of them when level is empty).
func (l *Logger) Entries(level string) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Env is a fully wired engine on in-memory storage.
type Env struct {
	Conf   *core.Config
	Logger *Logger
	DB     *inmemdb.DB
	Locker core.Locker
	Bus    *event.Bus
	Mail   *emailsvc.ConsoleServiceMock

	UserRepo   user.Repository
	CourseRepo course.Repository
	TaskRepo   task.Repository
	NotifRepo  notification.Repository
	ReviewRepo review.Repository

	UserSvc   *user.Service
	Graph     *course.Graph
	Resolver  *task.Resolver
	Gate      *task.Gate
	Workflow  *task.Workflow
	Router    *notification.Router
	Inbox     *notification.Inbox
	ReviewSvc *review.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	logger := new(Logger)
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.Open()
	env := &Env{
		Conf:       conf,
		Logger:     logger,
		DB:         db,
		Locker:     inmemdb.NewLocker(),
		Bus:        event.NewBus(logger),
		Mail:       emailsvc.NewConsoleServiceMock(conf, logger),
		UserRepo:   inmemdb.NewUserRepository(db),
		CourseRepo: inmemdb.NewCourseRepository(db),
		TaskRepo:   inmemdb.NewTaskRepository(db),
		NotifRepo:  inmemdb.NewNotificationRepository(db),
		ReviewRepo: inmemdb.NewReviewRepository(db),
	}

	env.UserSvc = user.NewService(env.UserRepo)
	env.Graph = course.NewGraph(env.CourseRepo, env.UserRepo)
	env.Resolver = task.NewResolver(env.TaskRepo, env.Graph, env.UserRepo, env.Locker, env.Bus, logger)
	env.Gate = task.NewGate(env.TaskRepo)
	env.Workflow = task.NewWorkflow(env.TaskRepo, env.Gate, env.Graph, env.Bus)
	env.Router = notification.NewRouter(env.NotifRepo, env.Graph, env.UserSvc, env.Bus, logger)
	env.Inbox = notification.NewInbox(env.NotifRepo)
	env.ReviewSvc = review.NewService(env.ReviewRepo, env.Graph)

	env.Router.Register(env.Bus)
	notification.NewMailer(env.UserSvc, env.Mail).Register(env.Bus)
	return env
}

func CreateUser(t *testing.T, repo user.Repository, name, uname, role string, approved bool) user.User {
	t.Helper()
	usr, err := repo.CreateUser(context.Background(), user.User{
		Name:       name,
		Username:   uname,
		Email:      uname + "@test.cd",
		Role:       role,
		IsApproved: approved,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateAdmin(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Admin "+uname, uname, user.RoleAdmin, true)
}

func CreateMentor(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Mentor "+uname, uname, user.RoleMentor, true)
}

func CreateStudent(t *testing.T, repo user.Repository, uname string) user.User {
	return CreateUser(t, repo, "Student "+uname, uname, user.RoleStudent, true)
}

func CreateCourse(t *testing.T, repo course.Repository, name, code string) course.Course {
	t.Helper()
	c, err := repo.CreateCourse(context.Background(), course.Course{Name: name, Code: code, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// CreateBatch creates a batch of c mentored by mentorID (may be empty) with students as members.
func CreateBatch(t *testing.T, repo course.Repository, c course.Course, name, mentorID string, students ...user.User) course.Batch {
	t.Helper()
	ctx := context.Background()
	b, err := repo.CreateBatch(ctx, course.Batch{Name: name, CourseID: c.ID, MentorID: mentorID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateBatch() failed: %v", err)
	}
	if len(students) > 0 {
		ids := make([]string, 0, len(students))
		for _, s := range students {
			ids = append(ids, s.ID)
		}
		if _, err = repo.AddStudents(ctx, b.ID, ids); err != nil {
			t.Fatalf("CreateBatch() failed to add students: %v", err)
		}
	}
	return b
}

// CreateTask issues a task through the resolver as actor.
func CreateTask(t *testing.T, env *Env, actor user.User, nt task.NewTask) task.Task {
	t.Helper()
	tsk, err := env.Resolver.CreateTask(context.Background(), actor, nt)
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	return tsk
}

// Submit hands a text submission in as student.
func Submit(t *testing.T, env *Env, student user.User, taskID string) task.Submission {
	t.Helper()
	sub, err := env.Workflow.Submit(context.Background(), student, task.NewSubmission{TaskID: taskID, Text: "done"})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return sub
}

func Grade(t *testing.T, env *Env, grader user.User, submissionID string, marks float64) task.Submission {
	t.Helper()
	sub, err := env.Workflow.Grade(context.Background(), grader, submissionID, task.GradeInput{Marks: &marks})
	if err != nil {
		t.Fatalf("Grade() failed: %v", err)
	}
	return sub
}

// Notifications returns every notification of userID, latest first.
func Notifications(t *testing.T, env *Env, userID string) []notification.Notification {
	t.Helper()
	notifs, err := env.Inbox.List(context.Background(), userID, false)
	if err != nil {
		t.Fatalf("Notifications() failed: %v", err)
	}
	return notifs
}

func NotificationsOfType(t *testing.T, env *Env, userID, typ string) []notification.Notification {
	t.Helper()
	out := make([]notification.Notification, 0)
	for _, n := range Notifications(t, env, userID) {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

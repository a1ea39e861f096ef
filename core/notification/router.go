// Package notification routes task lifecycle events to the users concerned and keeps their inbox.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/cohort/core"
	"github.com/trezcool/cohort/core/course"
	"github.com/trezcool/cohort/core/event"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/core/user"
)

// Trigger is a lifecycle fact recipients are resolved for.
type Trigger struct {
	Type     string
	Task     task.Task
	SenderID string

	// StudentID is the submitting student for task_submitted & task_graded.
	StudentID string
	// Creator is the task author for task_created.
	Creator user.User
	// StudentIDs is the resolved audience (task_created) or the joining students (batch_assigned).
	StudentIDs []string
}

// Dispatch is one message fanned out to a set of recipients.
type Dispatch struct {
	Type       string
	SenderID   string
	Recipients core.StringSet
	Title      string
	Message    string
	Link       string
}

type Router struct {
	repo   Repository
	graph  *course.Graph
	users  *user.Service
	bus    *event.Bus
	logger core.Logger
}

func NewRouter(repo Repository, graph *course.Graph, users *user.Service, bus *event.Bus, logger core.Logger) *Router {
	return &Router{repo: repo, graph: graph, users: users, bus: bus, logger: logger}
}

// Register subscribes the router to the task lifecycle events.
func (r *Router) Register(bus *event.Bus) {
	bus.Subscribe(task.KindCreated, "notification.router", r.handle)
	bus.Subscribe(task.KindStudentsJoined, "notification.router", r.handle)
	bus.Subscribe(task.KindSubmitted, "notification.router", r.handle)
	bus.Subscribe(task.KindGraded, "notification.router", r.handle)
}

func (r *Router) handle(ctx context.Context, e event.Event) error {
	var (
		trig Trigger
		d    Dispatch
	)
	switch ev := e.(type) {
	case task.Created:
		trig = Trigger{Type: TypeTaskCreated, Task: ev.Task, SenderID: ev.Creator.ID, Creator: ev.Creator, StudentIDs: ev.Audience}
		d = Dispatch{
			Title:   "New Task Assigned",
			Message: fmt.Sprintf("New task '%s' has been assigned", ev.Task.Title),
			Link:    "/student/tasks/" + ev.Task.ID,
		}
	case task.StudentsJoined:
		trig = Trigger{Type: TypeBatchAssigned, StudentIDs: ev.StudentIDs}
		d = Dispatch{
			Title:   "Added to Batch",
			Message: fmt.Sprintf("You have been added to batch '%s'", ev.Batch.Name),
			Link:    "/student/tasks",
		}
	case task.Submitted:
		trig = Trigger{Type: TypeTaskSubmitted, Task: ev.Task, SenderID: ev.Student.ID, StudentID: ev.Student.ID}
		link := "/admin/tasks"
		if !ev.Task.IsCourseWide() {
			link = "/mentor/grade-submissions/" + ev.Task.BatchID
		}
		d = Dispatch{
			Title:   "New Task Submission",
			Message: fmt.Sprintf("%s submitted '%s'", ev.Student.FullName(), ev.Task.Title),
			Link:    link,
		}
	case task.Graded:
		trig = Trigger{Type: TypeTaskGraded, Task: ev.Task, SenderID: ev.Grader.ID, StudentID: ev.Submission.StudentID}
		var marks float64
		if ev.Submission.Marks != nil {
			marks = *ev.Submission.Marks
		}
		d = Dispatch{
			Title:   "Task Graded: " + ev.Task.Title,
			Message: fmt.Sprintf("You received %g/%g marks", marks, ev.Task.MaxMarks),
			Link:    "/student/submissions",
		}
	default:
		return fmt.Errorf("unexpected event %T", e)
	}

	recipients, err := r.ResolveRecipients(ctx, trig)
	if err != nil {
		return err
	}
	d.Type = trig.Type
	d.SenderID = trig.SenderID
	d.Recipients = recipients
	_, err = r.Dispatch(ctx, d)
	return err
}

// ResolveRecipients computes who is told about trig. The sender is not removed here.
func (r *Router) ResolveRecipients(ctx context.Context, trig Trigger) (core.StringSet, error) {
	recipients := core.NewStringSet()

	switch trig.Type {
	case TypeTaskSubmitted:
		if !trig.Task.IsCourseWide() {
			mentor, err := r.graph.MentorOf(ctx, trig.Task.BatchID)
			if err != nil {
				return nil, errors.Wrap(err, "getting batch mentor")
			}
			if mentor != nil {
				recipients.Add(mentor.ID)
			}
		} else {
			mentors, err := r.graph.MentorsOfCourse(ctx, trig.Task.CourseID)
			if err != nil {
				return nil, errors.Wrap(err, "listing course mentors")
			}
			recipients.Add(mentors.Sorted()...)
		}
		if err := r.addAdmins(ctx, recipients); err != nil {
			return nil, err
		}

	case TypeTaskGraded:
		recipients.Add(trig.StudentID)

	case TypeTaskCreated:
		recipients.Add(trig.StudentIDs...)
		switch {
		case trig.Creator.IsMentor():
			if err := r.addAdmins(ctx, recipients); err != nil {
				return nil, err
			}
		case trig.Creator.IsAdmin() && !trig.Task.IsCourseWide():
			mentor, err := r.graph.MentorOf(ctx, trig.Task.BatchID)
			if err != nil {
				return nil, errors.Wrap(err, "getting batch mentor")
			}
			if mentor != nil {
				recipients.Add(mentor.ID)
			}
		}

	case TypeBatchAssigned:
		recipients.Add(trig.StudentIDs...)

	default:
		return nil, errors.Errorf("no routing for notification type %q", trig.Type)
	}
	return recipients, nil
}

func (r *Router) addAdmins(ctx context.Context, recipients core.StringSet) error {
	admins, err := r.users.Admins(ctx)
	if err != nil {
		return errors.Wrap(err, "listing admins")
	}
	for _, a := range admins {
		recipients.Add(a.ID)
	}
	return nil
}

// Dispatch stores one notification per recipient, the sender excluded, and announces them on the bus.
// An empty recipient set is not an error.
func (r *Router) Dispatch(ctx context.Context, d Dispatch) ([]Notification, error) {
	recipients := core.NewStringSet()
	for id := range d.Recipients {
		recipients.Add(id)
	}
	recipients.Remove(d.SenderID)
	if len(recipients) == 0 {
		return []Notification{}, nil
	}

	title := d.Title
	if runes := []rune(title); len(runes) > MaxTitleLength {
		title = string(runes[:MaxTitleLength])
	}

	now := time.Now().UTC()
	notifs := make([]Notification, 0, len(recipients))
	for _, id := range recipients.Sorted() {
		notifs = append(notifs, Notification{
			RecipientID: id,
			SenderID:    d.SenderID,
			Type:        d.Type,
			Title:       title,
			Message:     d.Message,
			Link:        d.Link,
			CreatedAt:   now,
		})
	}
	notifs, err := r.repo.CreateNotifications(ctx, notifs)
	if err != nil {
		return nil, errors.Wrap(err, "creating notifications")
	}

	r.bus.Publish(ctx, Dispatched{Notifications: notifs})
	return notifs, nil
}

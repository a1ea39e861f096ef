package notification

import (
	"context"
	"time"

	"github.com/trezcool/cohort/core"
)

// Notification types
const (
	TypeTaskSubmitted = "task_submitted"
	TypeTaskGraded    = "task_graded"
	TypeTaskCreated   = "task_created"
	TypeBatchAssigned = "batch_assigned"
	TypeCourseUpdated = "course_updated"
	TypeUserApproved  = "user_approved"
)

var AllTypes = []string{
	TypeTaskSubmitted, TypeTaskGraded, TypeTaskCreated, TypeBatchAssigned, TypeCourseUpdated, TypeUserApproved,
}

// MaxTitleLength is the number of characters a stored title holds. Longer titles are cut.
const MaxTitleLength = 255

var ErrNotFound = core.ErrNotFound

type Notification struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipient_id"`
	SenderID    string    `json:"sender_id,omitempty"`
	Type        string    `json:"notification_type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"is_read"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

type Repository interface {
	CreateNotifications(ctx context.Context, notifs []Notification) ([]Notification, error)
	// QueryNotifications returns the notifications of recipientID, latest first.
	QueryNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	// MarkRead returns ErrNotFound when id is not a notification of recipientID.
	MarkRead(ctx context.Context, recipientID, id string) (Notification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
}

// KindDispatched is the kind of the event published once notifications are stored.
const KindDispatched = "notification.dispatched"

type Dispatched struct {
	Notifications []Notification
}

func (Dispatched) Kind() string { return KindDispatched }

package notification

import (
	"context"

	"github.com/pkg/errors"
)

// Inbox gives users access to their own notifications.
type Inbox struct {
	repo Repository
}

func NewInbox(repo Repository) *Inbox {
	return &Inbox{repo: repo}
}

func (in *Inbox) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	notifs, err := in.repo.QueryNotifications(ctx, userID, unreadOnly)
	return notifs, errors.Wrap(err, "querying notifications")
}

func (in *Inbox) UnreadCount(ctx context.Context, userID string) (int, error) {
	cnt, err := in.repo.CountUnread(ctx, userID)
	return cnt, errors.Wrap(err, "counting unread notifications")
}

func (in *Inbox) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	n, err := in.repo.MarkRead(ctx, userID, id)
	if err != nil {
		return Notification{}, errors.Wrap(err, "marking notification read")
	}
	return n, nil
}

func (in *Inbox) MarkAllRead(ctx context.Context, userID string) (int, error) {
	cnt, err := in.repo.MarkAllRead(ctx, userID)
	return cnt, errors.Wrap(err, "marking notifications read")
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/cohort/core/notification"
)

type notificationRepository struct {
	db *notificationTable
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db.notification}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, notifs []notification.Notification) ([]notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	created := make([]notification.Notification, 0, len(notifs))
	for _, n := range notifs {
		n := n
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		repo.db.table[n.ID] = &n
		created = append(created, n)
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, recipientID string, unreadOnly bool) ([]notification.Notification, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	notifs := make([]notification.Notification, 0)
	for _, n := range repo.db.table {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		notifs = append(notifs, *n)
	}
	sort.Slice(notifs, func(i, j int) bool {
		if !notifs[i].CreatedAt.Equal(notifs[j].CreatedAt) {
			return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
		}
		return notifs[i].ID < notifs[j].ID
	})
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, recipientID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.RecipientID == recipientID && !n.IsRead {
			cnt++
		}
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, recipientID, id string) (notification.Notification, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	n, ok := repo.db.table[id]
	if !ok || n.RecipientID != recipientID {
		return notification.Notification{}, notification.ErrNotFound
	}
	n.IsRead = true
	return *n, nil
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, recipientID string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for _, n := range repo.db.table {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			cnt++
		}
	}
	return cnt, nil
}

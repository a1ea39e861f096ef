package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/cohort/core/notification"
)

const notificationColumns = `id, recipient_id, sender_id, notification_type, title, message, is_read, link, created_at`

type notificationRow struct {
	ID          string      `db:"id"`
	RecipientID string      `db:"recipient_id"`
	SenderID    null.String `db:"sender_id"`
	Type        string      `db:"notification_type"`
	Title       string      `db:"title"`
	Message     string      `db:"message"`
	IsRead      bool        `db:"is_read"`
	Link        null.String `db:"link"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:          r.ID,
		RecipientID: r.RecipientID,
		SenderID:    r.SenderID.String,
		Type:        r.Type,
		Title:       r.Title,
		Message:     r.Message,
		IsRead:      r.IsRead,
		Link:        r.Link.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(ctx context.Context, notifs []notification.Notification) ([]notification.Notification, error) {
	if len(notifs) == 0 {
		return []notification.Notification{}, nil
	}
	rows := make([]notificationRow, 0, len(notifs))
	for _, n := range notifs {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		rows = append(rows, notificationRow{
			ID:          n.ID,
			RecipientID: n.RecipientID,
			SenderID:    null.NewString(n.SenderID, n.SenderID != ""),
			Type:        n.Type,
			Title:       n.Title,
			Message:     n.Message,
			IsRead:      n.IsRead,
			Link:        null.NewString(n.Link, n.Link != ""),
			CreatedAt:   n.CreatedAt.UTC(),
		})
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `INSERT INTO notification (` + notificationColumns + `) VALUES (
		:id, :recipient_id, :sender_id, :notification_type, :title, :message, :is_read, :link, :created_at)`
	for _, r := range rows {
		if _, err = tx.NamedExecContext(ctx, q, r); err != nil {
			return nil, errors.Wrap(err, "inserting notification")
		}
	}
	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing notifications")
	}

	created := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		created = append(created, r.notification())
	}
	return created, nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, recipientID string, unreadOnly bool) ([]notification.Notification, error) {
	if !isUUID(recipientID) {
		return []notification.Notification{}, nil
	}
	var w where
	w.add("recipient_id = ?", recipientID)
	if unreadOnly {
		w.addRaw("NOT is_read")
	}
	var rows []notificationRow
	q := `SELECT ` + notificationColumns + ` FROM notification` + w.String() + ` ORDER BY created_at DESC, id`
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	notifs := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		notifs = append(notifs, r.notification())
	}
	return notifs, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	if !isUUID(recipientID) {
		return 0, nil
	}
	var cnt int
	q := `SELECT COUNT(*) FROM notification WHERE recipient_id = $1 AND NOT is_read`
	if err := repo.db.GetContext(ctx, &cnt, q, recipientID); err != nil {
		return 0, errors.Wrap(err, "counting notifications")
	}
	return cnt, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, recipientID, id string) (notification.Notification, error) {
	if !isUUID(recipientID) || !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	q := `UPDATE notification SET is_read = TRUE WHERE id = $1 AND recipient_id = $2 RETURNING ` + notificationColumns
	if err := repo.db.GetContext(ctx, &row, q, id, recipientID); err != nil {
		return notification.Notification{}, trapNoRowsErr(err, "marking notification read")
	}
	return row.notification(), nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	if !isUUID(recipientID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, `UPDATE notification SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	cnt, err := res.RowsAffected()
	return int(cnt), errors.Wrap(err, "marking notifications read")
}
